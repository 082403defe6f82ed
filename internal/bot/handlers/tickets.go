package handlers

import (
	"errors"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v3"

	"github.com/smysle/sakura-raffle-go/internal/bot/keyboards"
	"github.com/smysle/sakura-raffle-go/internal/bot/session"
	botutils "github.com/smysle/sakura-raffle-go/internal/bot/utils"
	"github.com/smysle/sakura-raffle-go/internal/config"
	"github.com/smysle/sakura-raffle-go/internal/service"
	"github.com/smysle/sakura-raffle-go/pkg/logger"
	"github.com/smysle/sakura-raffle-go/pkg/utils"
)

// Buy /buy 查看可选号码；带参数时直接预留
func Buy(c tele.Context) error {
	if args := c.Args(); len(args) > 0 && c.Callback() == nil {
		ctx, cancel := requestContext()
		defer cancel()
		prize, err := svc.Prizes.Active(ctx)
		if err != nil {
			return c.Send(errorText(err))
		}
		return reserveNumbers(c, prize.ID, strings.Join(args, " "))
	}
	return showAvailable(c)
}

// showAvailable 展示当前奖品的可选号码并进入选号状态
func showAvailable(c tele.Context) error {
	ctx, cancel := requestContext()
	defer cancel()

	prize, err := svc.Prizes.Active(ctx)
	if err != nil {
		return editOrReply(c, errorText(err), keyboards.BackKeyboard("back_start"))
	}

	available, err := svc.Reservations.AvailableNumbers(ctx, prize.ID)
	if err != nil {
		return c.Send(errorText(err))
	}

	cfg := config.Get()
	var b strings.Builder
	fmt.Fprintf(&b, "🎁 %s\n", prize.Title)
	fmt.Fprintf(&b, "💰 单价：%s\n", utils.FormatPrice(prize.TicketPrice, cfg.Raffle.Currency))
	fmt.Fprintf(&b, "🕒 截止：%s\n\n", utils.FormatDateTime(prize.EndDate, cfg.Location()))
	if len(available) == 0 {
		b.WriteString("😢 彩票已售罄")
		return editOrReply(c, b.String(), keyboards.BackKeyboard("back_start"))
	}
	fmt.Fprintf(&b, "🎟 剩余 %d / %d 张\n", len(available), prize.TicketCount)
	fmt.Fprintf(&b, "可选号码：%s\n\n", utils.FormatTicketNumbers(available))
	if prize.IsFree() {
		b.WriteString("本次抽奖免费，每人限选一个号码。")
	} else {
		fmt.Fprintf(&b, "直接发送想要的号码，例如：%s", exampleNumbers(available))
	}

	session.GetManager().StartPicking(c.Sender().ID, prize.ID)

	return editOrReply(c, botutils.Truncate(b.String(), botutils.MaxTextLength), keyboards.BuyKeyboard(prize.ID))
}

// exampleNumbers 取前几个可选号码作为输入示例
func exampleNumbers(available []int) string {
	n := len(available)
	if n > 3 {
		n = 3
	}
	parts := make([]string, 0, n)
	for _, v := range available[:n] {
		parts = append(parts, fmt.Sprint(v))
	}
	return strings.Join(parts, " ")
}

// handleEnterNumbers 进入选号输入状态
func handleEnterNumbers(c tele.Context, prizeID uint) error {
	session.GetManager().StartPicking(c.Sender().ID, prizeID)
	return c.Send("✍️ 请发送想要的号码，多个号码用空格或逗号分隔\n\n发送 /cancel 取消")
}

// handleNumbersInput 处理用户输入的号码
func handleNumbersInput(c tele.Context, text string) error {
	prizeID, ok := session.GetManager().PickingPrize(c.Sender().ID)
	if !ok {
		session.GetManager().Clear(c.Sender().ID)
		return c.Send("⚠️ 会话已过期，请重新点击「购买彩票」")
	}
	return reserveNumbers(c, prizeID, text)
}

// reserveNumbers 预留号码并回复结果
func reserveNumbers(c tele.Context, prizeID uint, text string) error {
	tg := c.Sender().ID
	ctx, cancel := requestContext()
	defer cancel()

	result, err := svc.Reservations.ReserveText(ctx, prizeID, requester(c), text)
	if err != nil {
		var unavailable *service.TicketsUnavailableError
		switch {
		case errors.As(err, &unavailable):
			return c.Send(fmt.Sprintf("❌ 号码 %s 已被占用，请换其他号码后重新发送",
				utils.FormatTicketNumbers(unavailable.Numbers)))
		case errors.Is(err, service.ErrInvalidTicketNumbers), errors.Is(err, service.ErrFreePrizeSingleTicket):
			// 保留会话，允许直接重新输入
			return c.Send(errorText(err))
		default:
			session.GetManager().Clear(tg)
			return c.Send(errorText(err), keyboards.BackKeyboard("back_start"))
		}
	}
	session.GetManager().Clear(tg)

	if result.Free {
		return c.Send(fmt.Sprintf("🎉 参与成功！\n\n🎁 %s\n🎟 你的号码：%s\n\n开奖结果将在频道公布，祝你好运！",
			result.PrizeTitle, utils.FormatTicketNumbers(result.Numbers)))
	}

	svc.Watcher.WatchHold(tg, *result.ReservedUntil)

	cfg := config.Get()
	text = fmt.Sprintf("✅ 预留成功！\n\n🎁 %s\n🎟 号码：%s\n💰 合计：%s\n⏳ 请在 %s 前完成支付，超时将自动释放",
		result.PrizeTitle,
		utils.FormatTicketNumbers(result.Numbers),
		utils.FormatPrice(result.Total, cfg.Raffle.Currency),
		utils.FormatDateTime(*result.ReservedUntil, cfg.Location()))
	return c.Send(text, keyboards.ReservedKeyboard())
}

// MyTickets /mytickets 查看我的彩票
func MyTickets(c tele.Context) error {
	ctx, cancel := requestContext()
	defer cancel()

	prize, err := svc.Prizes.Active(ctx)
	if err != nil {
		return editOrReply(c, errorText(err), keyboards.BackKeyboard("back_start"))
	}
	mine, err := svc.Reservations.MyTickets(ctx, c.Sender().ID, prize.ID)
	if err != nil {
		return c.Send(errorText(err))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📋 我的彩票 · %s\n\n", prize.Title)
	if len(mine.Paid) == 0 && len(mine.Held) == 0 {
		b.WriteString("你还没有参与本次抽奖")
		return editOrReply(c, b.String(), keyboards.BackKeyboard("back_start"))
	}
	if len(mine.Paid) > 0 {
		fmt.Fprintf(&b, "✅ 已支付：%s\n", utils.FormatTicketNumbers(mine.Paid))
	}
	if len(mine.Held) > 0 {
		fmt.Fprintf(&b, "⏳ 待支付：%s\n", utils.FormatTicketNumbers(mine.Held))
		if mine.ReservedUntil != nil {
			fmt.Fprintf(&b, "保留至：%s\n", utils.FormatDateTime(*mine.ReservedUntil, config.Get().Location()))
		}
		return editOrReply(c, b.String(), keyboards.ReservedKeyboard())
	}
	return editOrReply(c, b.String(), keyboards.BackKeyboard("back_start"))
}

// CancelHold 释放用户的全部预留
func CancelHold(c tele.Context) error {
	tg := c.Sender().ID
	session.GetManager().Clear(tg)
	svc.Watcher.Stop(tg)

	ctx, cancel := requestContext()
	defer cancel()
	result, err := svc.Reservations.CancelAll(ctx, tg)
	if err != nil {
		return c.Send(errorText(err))
	}
	if result.Released == 0 {
		return editOrReply(c, "ℹ️ 你没有待支付的预留", keyboards.BackKeyboard("back_start"))
	}
	return editOrReply(c, fmt.Sprintf("✅ 已释放 %d 张预留的彩票", result.Released), keyboards.BackKeyboard("back_start"))
}

// Pay /pay 为预留的彩票发起支付
func Pay(c tele.Context) error {
	tg := c.Sender().ID
	ctx, cancel := requestContext()
	defer cancel()

	result, err := svc.Payments.Initiate(ctx, tg, c.Bot().Me.Username)
	if err != nil {
		return c.Send(errorText(err))
	}
	svc.Watcher.WatchPayment(tg, result.Ref)

	cfg := config.Get()
	text := fmt.Sprintf("💳 请完成支付\n\n🎁 %s\n🎟 号码：%s\n💰 金额：%s\n⏳ 支付有效期至 %s\n\n支付完成后会自动确认，无需手动操作。",
		result.PrizeTitle,
		utils.FormatTicketNumbers(result.Numbers),
		utils.FormatPrice(result.Amount, result.Currency),
		utils.FormatDateTime(result.ExpiresAt, cfg.Location()))
	logger.Debug().Int64("tg", tg).Str("payment_id", result.Ref).Msg("已发送支付链接")
	return c.Send(text, keyboards.PaymentKeyboard(result.ConfirmationURL))
}
