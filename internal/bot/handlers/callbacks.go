package handlers

import (
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v3"

	"github.com/smysle/sakura-raffle-go/internal/config"
	"github.com/smysle/sakura-raffle-go/pkg/logger"
)

// adminActions 需要管理员权限的回调
var adminActions = map[string]bool{
	"admin_panel":      true,
	"admin_prizes":     true,
	"prize":            true,
	"participants":     true,
	"draw":             true,
	"activate":         true,
	"refresh_announce": true,
}

// parseCallback 解析回调数据，格式可能是 "action|param" 或 "action:param"
func parseCallback(raw string) (string, []string) {
	data := raw
	// telebot v3 的 Data() 生成的回调格式是 "\f{unique}|{data}"
	if len(data) > 0 && data[0] == '\f' {
		data = data[1:]
	}

	var parts []string
	switch {
	case strings.Contains(data, "|"):
		parts = strings.Split(data, "|")
	case strings.Contains(data, ":"):
		parts = strings.Split(data, ":")
	default:
		parts = []string{data}
	}
	// Data() 在没有附加数据时会留下空尾段
	for len(parts) > 1 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts[0], parts
}

// OnCallback 回调查询分发
func OnCallback(c tele.Context) error {
	action, parts := parseCallback(c.Callback().Data)
	logger.Debug().Str("raw_data", c.Callback().Data).Str("action", action).Msg("收到回调")

	if adminActions[action] && !config.Get().IsAdmin(c.Sender().ID) {
		return c.Respond(&tele.CallbackResponse{Text: "❌ 仅管理员可用", ShowAlert: true})
	}

	// 先应答，避免客户端一直转圈
	_ = c.Respond()

	switch action {
	case "back_start":
		return handleBackStart(c)
	case "close":
		return handleClose(c)
	case "noop":
		return nil
	case "buy":
		return showAvailable(c)
	case "my_tickets":
		return MyTickets(c)
	case "pay":
		return Pay(c)
	case "faq":
		return FAQ(c)
	case "cancel_hold":
		return CancelHold(c)
	case "enter_numbers":
		if id, ok := callbackID(parts); ok {
			return handleEnterNumbers(c, id)
		}
	case "admin_panel":
		return AdminPanel(c)
	case "admin_prizes":
		page := 1
		if len(parts) >= 2 {
			if p, err := strconv.Atoi(parts[1]); err == nil {
				page = p
			}
		}
		return handleAdminPrizes(c, page)
	case "prize":
		if id, ok := callbackID(parts); ok {
			return handlePrizeDetail(c, id)
		}
	case "participants":
		if id, ok := callbackID(parts); ok {
			return handleParticipants(c, id)
		}
	case "draw":
		if id, ok := callbackID(parts); ok {
			return handleDraw(c, id)
		}
	case "activate":
		if id, ok := callbackID(parts); ok {
			return handleActivate(c, id)
		}
	case "refresh_announce":
		return RefreshAnnouncement(c)
	default:
		logger.Debug().Str("action", action).Msg("未知回调")
		return nil
	}

	logger.Debug().Strs("parts", parts).Msg("回调参数无效")
	return nil
}

func callbackID(parts []string) (uint, bool) {
	if len(parts) < 2 {
		return 0, false
	}
	return parseID(parts[1])
}
