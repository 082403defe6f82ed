// Package utils Bot 工具函数
package utils

import (
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"

	"github.com/smysle/sakura-raffle-go/pkg/logger"
)

// Telegram 消息长度限制
const (
	MaxTextLength    = 4096
	MaxCaptionLength = 1024
)

// DeleteAfter 定时删除消息
func DeleteAfter(b *tele.Bot, msg *tele.Message, seconds int) {
	if msg == nil || b == nil {
		return
	}
	go func() {
		time.Sleep(time.Duration(seconds) * time.Second)
		if err := b.Delete(msg); err != nil {
			logger.Debug().Err(err).Msg("删除消息失败")
		}
	}()
}

// SendAndDelete 发送消息并定时删除
func SendAndDelete(c tele.Context, text string, seconds int, opts ...interface{}) error {
	msg, err := c.Bot().Send(c.Chat(), text, opts...)
	if err != nil {
		return err
	}
	DeleteAfter(c.Bot(), msg, seconds)
	return nil
}

// Truncate 按字符截断，超长时以省略号结尾
func Truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	if limit <= 1 {
		return string(runes[:limit])
	}
	return strings.TrimRight(string(runes[:limit-1]), " \n") + "…"
}

// IsNotModified 编辑内容与原消息相同
func IsNotModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}
