package handlers

import (
	"context"
	"fmt"

	tele "gopkg.in/telebot.v3"

	"github.com/smysle/sakura-raffle-go/internal/bot/keyboards"
	"github.com/smysle/sakura-raffle-go/internal/config"
	"github.com/smysle/sakura-raffle-go/internal/database/models"
	"github.com/smysle/sakura-raffle-go/internal/service"
	"github.com/smysle/sakura-raffle-go/pkg/logger"
	"github.com/smysle/sakura-raffle-go/pkg/utils"
)

// Notifier 通过私聊推送支付与预留状态
type Notifier struct {
	bot *tele.Bot
}

// NewNotifier 创建私聊通知器
func NewNotifier(b *tele.Bot) *Notifier {
	return &Notifier{bot: b}
}

var _ service.Notifier = (*Notifier)(nil)

func (n *Notifier) send(tg int64, text string, opts ...interface{}) {
	if _, err := n.bot.Send(&tele.User{ID: tg}, text, opts...); err != nil {
		logger.Warn().Err(err).Int64("tg", tg).Msg("发送通知失败")
	}
}

// PaymentSettled 支付成功
func (n *Notifier) PaymentSettled(_ context.Context, tg int64, result *service.SettleResult) {
	cfg := config.Get()
	n.send(tg, fmt.Sprintf("🎉 支付成功！\n\n🎟 彩票 %s 已生效\n💰 金额：%s\n\n开奖结果将在频道公布，祝你好运！",
		utils.FormatTicketNumbers(result.Numbers),
		utils.FormatPrice(result.Amount, cfg.Raffle.Currency)))
}

// PaymentFailed 支付被取消或失败
func (n *Notifier) PaymentFailed(_ context.Context, tg int64, status models.PaymentStatus, released *service.CancelResult) {
	reason := "已取消"
	if status == models.PaymentFailed {
		reason = "失败"
	}
	n.send(tg, fmt.Sprintf("❌ 支付%s，已释放 %d 张预留的彩票，可以重新选择号码。", reason, released.Released),
		keyboards.StartKeyboard(false))
}

// PaymentTimedOut 支付超时
func (n *Notifier) PaymentTimedOut(_ context.Context, tg int64, released *service.CancelResult) {
	n.send(tg, fmt.Sprintf("⌛ 支付超时，已释放 %d 张预留的彩票。", released.Released),
		keyboards.StartKeyboard(false))
}

// HoldExpired 预留到期
func (n *Notifier) HoldExpired(_ context.Context, tg int64, released int64) {
	n.send(tg, fmt.Sprintf("⌛ 预留已到期，%d 张彩票已释放。", released), keyboards.StartKeyboard(false))
}

// WinnerDrawn 私聊通知中奖者
func (n *Notifier) WinnerDrawn(_ context.Context, result *service.WinnerResult) {
	if result.TelegramID == 0 {
		return
	}
	n.send(result.TelegramID, fmt.Sprintf("🏆 恭喜！你在「%s」中获奖了！\n\n🎟 中奖号码：%d\n\n管理员会尽快与你联系。",
		result.PrizeTitle, result.TicketNumber))
}
