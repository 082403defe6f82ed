package handlers

import (
	"errors"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v3"

	"github.com/smysle/sakura-raffle-go/internal/bot/keyboards"
	botutils "github.com/smysle/sakura-raffle-go/internal/bot/utils"
	"github.com/smysle/sakura-raffle-go/internal/config"
	"github.com/smysle/sakura-raffle-go/internal/service"
	"github.com/smysle/sakura-raffle-go/pkg/logger"
	"github.com/smysle/sakura-raffle-go/pkg/utils"
)

// Start /start 命令处理器
func Start(c tele.Context) error {
	user := c.Sender()

	if c.Chat().Type != tele.ChatPrivate {
		return botutils.SendAndDelete(c, fmt.Sprintf("🤖 %s，请私聊我参与抽奖", user.FirstName), 30)
	}

	ctx, cancel := requestContext()
	defer cancel()
	if _, err := svc.Users.Ensure(ctx, requester(c)); err != nil {
		logger.Error().Err(err).Int64("tg", user.ID).Msg("创建用户记录失败")
		return c.Send("❌ 系统错误，请稍后重试")
	}

	// 频道按钮带 start=buy 参数，直接进入选号
	if args := c.Args(); len(args) > 0 && args[0] == "buy" {
		return showAvailable(c)
	}

	return c.Send(welcomeText(c), keyboards.StartKeyboard(config.Get().IsAdmin(user.ID)))
}

// Help /help 命令处理器
func Help(c tele.Context) error {
	text := "📖 使用说明\n\n" +
		"1. 点击「购买彩票」或发送 /buy 查看可选号码\n" +
		"2. 发送想要的号码，例如：3 7 12\n" +
		"3. 号码会为你保留一段时间，请在此期间点击「支付」完成付款\n" +
		"4. 支付成功后彩票即生效，开奖时在已支付的彩票中随机抽取\n\n" +
		"/mytickets 查看我的彩票\n" +
		"/pay 支付预留的彩票\n" +
		"/faq 常见问题\n" +
		"/cancel 取消输入并释放预留"
	return c.Send(text, keyboards.CloseKeyboard())
}

// welcomeText 主面板文本，附带当前抽奖概况
func welcomeText(c tele.Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎉 你好，%s！\n\n", c.Sender().FirstName)

	ctx, cancel := requestContext()
	defer cancel()
	prize, err := svc.Prizes.Active(ctx)
	switch {
	case err == nil:
		cfg := config.Get()
		fmt.Fprintf(&b, "🎁 当前抽奖：%s\n", prize.Title)
		fmt.Fprintf(&b, "💰 单价：%s\n", utils.FormatPrice(prize.TicketPrice, cfg.Raffle.Currency))
		fmt.Fprintf(&b, "🕒 截止：%s\n", utils.FormatDateTime(prize.EndDate, cfg.Location()))
	case errors.Is(err, service.ErrNoActivePrize):
		b.WriteString("当前没有进行中的抽奖，敬请期待 ✨\n")
	default:
		logger.Error().Err(err).Msg("获取当前奖品失败")
	}
	b.WriteString("\n请选择功能 👇")
	return b.String()
}

// handleBackStart 返回主面板
func handleBackStart(c tele.Context) error {
	return editOrReply(c, welcomeText(c), keyboards.StartKeyboard(config.Get().IsAdmin(c.Sender().ID)))
}

// handleClose 关闭面板
func handleClose(c tele.Context) error {
	if err := c.Delete(); err != nil {
		logger.Debug().Err(err).Msg("删除消息失败")
	}
	return nil
}
