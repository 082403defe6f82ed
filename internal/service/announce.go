// Package service 奖品公告
package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/smysle/sakura-raffle-go/internal/database/models"
	"github.com/smysle/sakura-raffle-go/pkg/imggen"
	"github.com/smysle/sakura-raffle-go/pkg/logger"
	"github.com/smysle/sakura-raffle-go/pkg/utils"
)

// Announcement 公告内容
type Announcement struct {
	Text      string
	ImagePath string // 奖品图片，优先使用
	Board     []byte // 号码牌 PNG，没有奖品图片时使用
}

// AnnouncementHandle 已发布公告的位置
type AnnouncementHandle struct {
	ChatID    int64
	MessageID int
}

// Publisher 公告频道，内容未变化时 Update 应返回 nil
type Publisher interface {
	Publish(ctx context.Context, a Announcement) (*AnnouncementHandle, error)
	Update(ctx context.Context, h AnnouncementHandle, a Announcement) error
}

// RefreshAnnouncement 发布或刷新当前激活奖品的公告
func (s *PrizeService) RefreshAnnouncement(ctx context.Context) error {
	prize, err := s.Active(ctx)
	if err != nil {
		if errors.Is(err, ErrNoActivePrize) {
			return nil
		}
		return err
	}
	if !prize.HasAnnouncement() {
		return s.publishAnnouncement(ctx, prize)
	}
	return s.updateAnnouncement(ctx, prize)
}

// publishAnnouncement 发布公告并记录消息位置
func (s *PrizeService) publishAnnouncement(ctx context.Context, prize *models.Prize) error {
	if s.publisher == nil {
		return nil
	}
	a, err := s.buildAnnouncement(ctx, prize)
	if err != nil {
		return err
	}
	handle, err := s.publisher.Publish(ctx, a)
	if err != nil {
		return fmt.Errorf("发布公告失败: %w", err)
	}
	if err := s.prizes.WithTx(s.db.WithContext(ctx)).SetAnnouncement(prize.ID, handle.ChatID, handle.MessageID); err != nil {
		return fmt.Errorf("保存公告位置失败: %w", err)
	}
	prize.AnnounceChatID = &handle.ChatID
	prize.AnnounceMessageID = &handle.MessageID
	logger.Info().Uint("prize_id", prize.ID).Int("message_id", handle.MessageID).Msg("奖品公告已发布")
	return nil
}

func (s *PrizeService) updateAnnouncement(ctx context.Context, prize *models.Prize) error {
	if s.publisher == nil {
		return nil
	}
	a, err := s.buildAnnouncement(ctx, prize)
	if err != nil {
		return err
	}
	handle := AnnouncementHandle{ChatID: *prize.AnnounceChatID, MessageID: *prize.AnnounceMessageID}
	if err := s.publisher.Update(ctx, handle, a); err != nil {
		return fmt.Errorf("更新公告失败: %w", err)
	}
	return nil
}

// updateAnnouncementQuietly 状态变化后尽力更新公告，失败只记录日志
func (s *PrizeService) updateAnnouncementQuietly(ctx context.Context, prize *models.Prize) {
	if s.publisher == nil || !prize.HasAnnouncement() {
		return
	}
	if err := s.updateAnnouncement(ctx, prize); err != nil {
		logger.Warn().Err(err).Uint("prize_id", prize.ID).Msg("更新奖品公告失败")
	}
}

// buildAnnouncement 生成公告文本与图片
func (s *PrizeService) buildAnnouncement(ctx context.Context, prize *models.Prize) (Announcement, error) {
	tickets, err := s.tickets.WithTx(s.db.WithContext(ctx)).ListByPrize(prize.ID)
	if err != nil {
		return Announcement{}, err
	}
	var held, paid []int
	taken := make(map[int]bool, len(tickets))
	for _, t := range tickets {
		switch {
		case t.IsPaid:
			paid = append(paid, t.TicketNumber)
			taken[t.TicketNumber] = true
		case t.IsReserved:
			held = append(held, t.TicketNumber)
			taken[t.TicketNumber] = true
		}
	}
	available := make([]int, 0, prize.TicketCount-len(taken))
	for n := 1; n <= prize.TicketCount; n++ {
		if !taken[n] {
			available = append(available, n)
		}
	}

	a := Announcement{Text: s.announcementText(prize, available)}
	if prize.Image != nil && *prize.Image != "" {
		a.ImagePath = filepath.Join(s.opts.mediaRoot, *prize.Image)
		return a, nil
	}
	if prize.TicketCount <= imggen.MaxBoardTickets {
		board, err := imggen.RenderTicketBoard(imggen.BoardConfig{
			Title:       prize.Title,
			TicketCount: prize.TicketCount,
			Held:        held,
			Paid:        paid,
			GeneratedAt: s.opts.now().In(s.opts.location),
		})
		if err != nil {
			logger.Warn().Err(err).Uint("prize_id", prize.ID).Msg("生成号码牌失败")
		} else {
			a.Board = board
		}
	}
	return a, nil
}

// announcementText 公告文本
func (s *PrizeService) announcementText(prize *models.Prize, available []int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎁 %s\n\n", prize.Title)
	if prize.Description != "" {
		b.WriteString(prize.Description)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "🕒 %s - %s\n",
		utils.FormatDateTime(prize.StartDate, s.opts.location),
		utils.FormatDateTime(prize.EndDate, s.opts.location))
	fmt.Fprintf(&b, "💰 单价：%s\n", utils.FormatPrice(prize.TicketPrice, s.opts.currency))

	switch prize.Status {
	case models.PrizeWinnerDrawn:
		b.WriteString("\n🏆 已开奖")
		if prize.WinnerTicketNumber != nil {
			fmt.Fprintf(&b, "，中奖号码：%d", *prize.WinnerTicketNumber)
		}
		if prize.Winner != nil {
			fmt.Fprintf(&b, "\n中奖者：%s", prize.Winner.DisplayName())
		}
	case models.PrizeFinished:
		b.WriteString("\n⏹ 抽奖已结束，等待开奖")
	default:
		fmt.Fprintf(&b, "🎟 剩余 %d / %d 张\n", len(available), prize.TicketCount)
		if len(available) > 0 {
			fmt.Fprintf(&b, "可选号码：%s\n", utils.FormatTicketNumbers(available))
		} else {
			b.WriteString("彩票已售罄\n")
		}
	}
	return b.String()
}
