package handlers

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v3"

	"github.com/smysle/sakura-raffle-go/internal/bot/keyboards"
	"github.com/smysle/sakura-raffle-go/internal/config"
	"github.com/smysle/sakura-raffle-go/internal/service"
	"github.com/smysle/sakura-raffle-go/pkg/logger"
)

// FAQ /faq 常见问题
func FAQ(c tele.Context) error {
	ctx, cancel := requestContext()
	defer cancel()

	logger.Info().Int64("tg", c.Sender().ID).Msg("查看常见问题")
	faq, err := svc.FAQ.Active(ctx)
	if err != nil {
		if errors.Is(err, service.ErrFAQUnavailable) {
			return editOrReply(c, "ℹ️ 暂时没有常见问题说明", keyboards.BackKeyboard("back_start"))
		}
		return c.Send(errorText(err))
	}
	return editOrReply(c, "❓ 常见问题\n\n"+faq.Text, keyboards.BackKeyboard("back_start"))
}

// SetFAQ /setfaq <文本> 替换常见问题
func SetFAQ(c tele.Context) error {
	text := c.Message().Payload
	if strings.TrimSpace(text) == "" {
		return c.Send("用法: /setfaq <常见问题全文>")
	}

	ctx, cancel := requestContext()
	defer cancel()
	faq, err := svc.FAQ.Set(ctx, text)
	if err != nil {
		return c.Send(errorText(err))
	}
	logger.Info().Int64("admin", c.Sender().ID).Uint("faq_id", faq.ID).Msg("管理员更新常见问题")
	return c.Send("✅ 常见问题已更新")
}

// ChatLink /chat <tg> 或 /chat<tg> 回复一个打开用户对话的按钮
func ChatLink(c tele.Context) error {
	if !config.Get().IsAdmin(c.Sender().ID) {
		return nil
	}
	tg, ok := parseChatTarget(c.Text())
	if !ok {
		return c.Send("用法: /chat <用户TG ID>")
	}
	logger.Info().Int64("admin", c.Sender().ID).Int64("target", tg).Msg("生成用户对话链接")
	return c.Send(fmt.Sprintf("👤 点击下方按钮打开与 %d 的对话", tg), keyboards.UserLinkKeyboard(tg))
}

// parseChatTarget 解析 /chat123、/chat 123 与 /chat@bot 123
func parseChatTarget(text string) (int64, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/chat") {
		return 0, false
	}
	rest := strings.TrimPrefix(text, "/chat")
	if strings.HasPrefix(rest, "@") {
		if i := strings.IndexAny(rest, " \t\n"); i >= 0 {
			rest = rest[i:]
		} else {
			rest = ""
		}
	}
	tg, err := strconv.ParseInt(strings.TrimSpace(rest), 10, 64)
	if err != nil || tg <= 0 {
		return 0, false
	}
	return tg, true
}

// isChatCommand 未注册为命令的 /chat<tg> 会落到文本处理
func isChatCommand(text string) bool {
	if !strings.HasPrefix(text, "/chat") || len(text) == len("/chat") {
		return false
	}
	next := text[len("/chat")]
	return next >= '0' && next <= '9'
}
