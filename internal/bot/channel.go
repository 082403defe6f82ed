package bot

import (
	"bytes"
	"context"
	"strconv"

	tele "gopkg.in/telebot.v3"

	"github.com/smysle/sakura-raffle-go/internal/bot/keyboards"
	botutils "github.com/smysle/sakura-raffle-go/internal/bot/utils"
	"github.com/smysle/sakura-raffle-go/internal/service"
	"github.com/smysle/sakura-raffle-go/pkg/logger"
)

// ChannelPublisher 把奖品公告发到频道
type ChannelPublisher struct {
	bot         *tele.Bot
	channelID   int64
	botUsername string
}

// NewChannelPublisher 创建频道公告发布器
func NewChannelPublisher(b *tele.Bot, channelID int64) *ChannelPublisher {
	p := &ChannelPublisher{bot: b, channelID: channelID}
	if b.Me != nil {
		p.botUsername = b.Me.Username
	}
	return p
}

// Publish 发送新公告
func (p *ChannelPublisher) Publish(ctx context.Context, a service.Announcement) (*service.AnnouncementHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	chat := &tele.Chat{ID: p.channelID}
	markup := keyboards.ChannelKeyboard(p.botUsername)

	var what interface{}
	if photo := announcementPhoto(a); photo != nil {
		what = photo
	} else {
		what = botutils.Truncate(a.Text, botutils.MaxTextLength)
	}

	msg, err := p.bot.Send(chat, what, markup)
	if err != nil {
		return nil, err
	}
	return &service.AnnouncementHandle{ChatID: msg.Chat.ID, MessageID: msg.ID}, nil
}

// Update 编辑已发布的公告，内容未变化时返回 nil
func (p *ChannelPublisher) Update(ctx context.Context, h service.AnnouncementHandle, a service.Announcement) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tele.StoredMessage{MessageID: strconv.Itoa(h.MessageID), ChatID: h.ChatID}
	markup := keyboards.ChannelKeyboard(p.botUsername)

	var err error
	switch {
	case a.ImagePath != "":
		// 奖品图片不变，只改说明
		_, err = p.bot.EditCaption(msg, botutils.Truncate(a.Text, botutils.MaxCaptionLength), markup)
	case len(a.Board) > 0:
		_, err = p.bot.EditMedia(msg, announcementPhoto(a), markup)
	default:
		_, err = p.bot.Edit(msg, botutils.Truncate(a.Text, botutils.MaxTextLength), markup)
	}
	if botutils.IsNotModified(err) {
		logger.Debug().Int("message_id", h.MessageID).Msg("公告内容未变化")
		return nil
	}
	return err
}

// announcementPhoto 奖品图片优先，其次是号码牌
func announcementPhoto(a service.Announcement) *tele.Photo {
	caption := botutils.Truncate(a.Text, botutils.MaxCaptionLength)
	switch {
	case a.ImagePath != "":
		return &tele.Photo{File: tele.FromDisk(a.ImagePath), Caption: caption}
	case len(a.Board) > 0:
		return &tele.Photo{File: tele.FromReader(bytes.NewReader(a.Board)), Caption: caption}
	default:
		return nil
	}
}
