// Package keyboards 键盘按钮
package keyboards

import (
	"fmt"

	tele "gopkg.in/telebot.v3"

	"github.com/smysle/sakura-raffle-go/internal/database/models"
)

// StartKeyboard 用户主面板
func StartKeyboard(isAdmin bool) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}

	var rows []tele.Row
	rows = append(rows, markup.Row(
		markup.Data("🎟 购买彩票", "buy"),
		markup.Data("📋 我的彩票", "my_tickets"),
	))
	rows = append(rows, markup.Row(
		markup.Data("💳 支付", "pay"),
		markup.Data("❌ 取消预留", "cancel_hold"),
	))
	rows = append(rows, markup.Row(
		markup.Data("❓ 常见问题", "faq"),
	))

	if isAdmin {
		rows = append(rows, markup.Row(
			markup.Data("⚙️ 管理面板", "admin_panel"),
		))
	}

	markup.Inline(rows...)
	return markup
}

// BuyKeyboard 选号面板
func BuyKeyboard(prizeID uint) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	markup.Inline(
		markup.Row(markup.Data("✍️ 输入号码", fmt.Sprintf("enter_numbers|%d", prizeID))),
		markup.Row(markup.Data("« 返回", "back_start")),
	)
	return markup
}

// ReservedKeyboard 预留成功后的操作
func ReservedKeyboard() *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	markup.Inline(markup.Row(
		markup.Data("💳 去支付", "pay"),
		markup.Data("❌ 取消预留", "cancel_hold"),
	))
	return markup
}

// PaymentKeyboard 支付链接
func PaymentKeyboard(url string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	markup.Inline(
		markup.Row(markup.URL("💳 打开支付页面", url)),
		markup.Row(markup.Data("❌ 取消预留", "cancel_hold")),
	)
	return markup
}

// ChannelKeyboard 频道公告下方的参与按钮
func ChannelKeyboard(botUsername string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	if botUsername == "" {
		return markup
	}
	markup.Inline(markup.Row(
		markup.URL("🎟 参与抽奖", fmt.Sprintf("https://t.me/%s?start=buy", botUsername)),
	))
	return markup
}

// AdminPanelKeyboard 管理面板
func AdminPanelKeyboard() *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	markup.Inline(
		markup.Row(
			markup.Data("🎁 奖品列表", "admin_prizes|1"),
			markup.Data("🔄 刷新公告", "refresh_announce"),
		),
		markup.Row(markup.Data("« 返回", "back_start")),
	)
	return markup
}

// PrizeAdminKeyboard 单个奖品的管理按钮
func PrizeAdminKeyboard(prize *models.Prize) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}

	var rows []tele.Row
	rows = append(rows, markup.Row(
		markup.Data("👥 参与者", fmt.Sprintf("participants|%d", prize.ID)),
	))
	switch prize.Status {
	case models.PrizeScheduled:
		rows = append(rows, markup.Row(
			markup.Data("▶️ 立即激活", fmt.Sprintf("activate|%d", prize.ID)),
		))
	case models.PrizeActive, models.PrizeFinished:
		rows = append(rows, markup.Row(
			markup.Data("🏆 开奖", fmt.Sprintf("draw|%d", prize.ID)),
		))
	}
	rows = append(rows, markup.Row(markup.Data("« 返回", "admin_prizes|1")))

	markup.Inline(rows...)
	return markup
}

// UserLinkKeyboard 打开与指定用户的对话
func UserLinkKeyboard(tg int64) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	markup.Inline(markup.Row(
		markup.URL(fmt.Sprintf("💬 打开与 %d 的对话", tg), fmt.Sprintf("tg://user?id=%d", tg)),
	))
	return markup
}

// BackKeyboard 返回按钮
func BackKeyboard(data string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	markup.Inline(markup.Row(markup.Data("« 返回", data)))
	return markup
}

// CloseKeyboard 关闭按钮
func CloseKeyboard() *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	markup.Inline(markup.Row(markup.Data("❌ 关闭", "close")))
	return markup
}
