package handlers

import (
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v3"

	"github.com/smysle/sakura-raffle-go/internal/bot/session"
)

// OnText 处理文本消息
func OnText(c tele.Context) error {
	// 只处理私聊消息
	if c.Chat().Type != tele.ChatPrivate {
		return nil
	}

	text := strings.TrimSpace(c.Text())
	if text == "" {
		return nil
	}
	if isChatCommand(text) {
		return ChatLink(c)
	}

	switch session.GetManager().State(c.Sender().ID) {
	case session.StateWaitingNumbers:
		return handleNumbersInput(c, text)
	default:
		// 没有特殊状态，忽略消息
		return nil
	}
}

// Cancel /cancel 取消当前输入并释放预留
func Cancel(c tele.Context) error {
	tg := c.Sender().ID
	session.GetManager().Clear(tg)
	svc.Watcher.Stop(tg)

	ctx, cancel := requestContext()
	defer cancel()
	result, err := svc.Reservations.CancelAll(ctx, tg)
	if err != nil {
		return c.Send(errorText(err))
	}
	if result.Released > 0 {
		return c.Send(fmt.Sprintf("✅ 已取消操作，释放了 %d 张预留的彩票\n\n发送 /start 返回主菜单", result.Released))
	}
	return c.Send("✅ 已取消操作\n\n发送 /start 返回主菜单")
}
