package handlers

import (
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v3"

	"github.com/smysle/sakura-raffle-go/internal/bot/keyboards"
	botutils "github.com/smysle/sakura-raffle-go/internal/bot/utils"
	"github.com/smysle/sakura-raffle-go/internal/config"
	"github.com/smysle/sakura-raffle-go/internal/database/models"
	"github.com/smysle/sakura-raffle-go/pkg/logger"
	"github.com/smysle/sakura-raffle-go/pkg/utils"
)

// prizesPerPage 奖品列表每页数量
const prizesPerPage = 8

var statusNames = map[models.PrizeStatus]string{
	models.PrizeScheduled:   "⏳ 未开始",
	models.PrizeActive:      "🟢 进行中",
	models.PrizeFinished:    "⏹ 已结束",
	models.PrizeWinnerDrawn: "🏆 已开奖",
}

// AdminPanel 管理面板
func AdminPanel(c tele.Context) error {
	return editOrReply(c, "⚙️ 管理面板", keyboards.AdminPanelKeyboard())
}

// Prizes /prizes 奖品列表
func Prizes(c tele.Context) error {
	return handleAdminPrizes(c, 1)
}

func handleAdminPrizes(c tele.Context, page int) error {
	ctx, cancel := requestContext()
	defer cancel()

	prizes, err := svc.Prizes.List(ctx)
	if err != nil {
		return c.Send(errorText(err))
	}
	if len(prizes) == 0 {
		return editOrReply(c, "📭 还没有奖品，请通过管理 API 创建", keyboards.BackKeyboard("admin_panel"))
	}

	totalPages := (len(prizes) + prizesPerPage - 1) / prizesPerPage
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}
	start := (page - 1) * prizesPerPage
	end := start + prizesPerPage
	if end > len(prizes) {
		end = len(prizes)
	}

	loc := config.Get().Location()
	var rows []tele.Row
	for _, p := range prizes[start:end] {
		label := fmt.Sprintf("#%d %s · %s · %s", p.ID, p.Title, statusNames[p.Status],
			p.StartDate.In(loc).Format("01-02"))
		rows = append(rows, keyboards.PrizeButton(p.ID, botutils.Truncate(label, 60)))
	}

	text := fmt.Sprintf("🎁 奖品列表（第 %d/%d 页，共 %d 个）", page, totalPages, len(prizes))
	return editOrReply(c, text, keyboards.PrizesPagination(page, totalPages, rows...))
}

// handlePrizeDetail 奖品详情
func handlePrizeDetail(c tele.Context, id uint) error {
	ctx, cancel := requestContext()
	defer cancel()

	prize, err := svc.Prizes.Get(ctx, id)
	if err != nil {
		return c.Send(errorText(err))
	}
	available, err := svc.Reservations.AvailableNumbers(ctx, id)
	if err != nil {
		return c.Send(errorText(err))
	}

	cfg := config.Get()
	loc := cfg.Location()
	var b strings.Builder
	fmt.Fprintf(&b, "🎁 #%d %s\n", prize.ID, prize.Title)
	fmt.Fprintf(&b, "状态：%s\n", statusNames[prize.Status])
	fmt.Fprintf(&b, "时间：%s - %s\n", utils.FormatDateTime(prize.StartDate, loc), utils.FormatDateTime(prize.EndDate, loc))
	fmt.Fprintf(&b, "单价：%s\n", utils.FormatPrice(prize.TicketPrice, cfg.Raffle.Currency))
	fmt.Fprintf(&b, "剩余：%d / %d 张\n", len(available), prize.TicketCount)
	if prize.WinnerDetermined && prize.WinnerTicketNumber != nil {
		fmt.Fprintf(&b, "\n🏆 中奖号码：%d", *prize.WinnerTicketNumber)
		if prize.Winner != nil {
			fmt.Fprintf(&b, "（%s）", prize.Winner.DisplayName())
		}
	}
	return editOrReply(c, b.String(), keyboards.PrizeAdminKeyboard(prize))
}

// Draw /draw <奖品ID> 开奖
func Draw(c tele.Context) error {
	id, ok := argID(c)
	if !ok {
		return c.Send("用法: /draw <奖品ID>")
	}
	return handleDraw(c, id)
}

func handleDraw(c tele.Context, id uint) error {
	ctx, cancel := requestContext()
	defer cancel()

	result, err := svc.Prizes.DetermineWinner(ctx, id)
	if err != nil {
		return c.Send(errorText(err))
	}
	logger.Info().Int64("admin", c.Sender().ID).Uint("prize_id", id).Msg("管理员执行开奖")
	NewNotifier(c.Bot()).WinnerDrawn(ctx, result)

	name := result.UserName
	if result.Username != "" {
		name += " @" + result.Username
	}
	return c.Send(fmt.Sprintf("🏆 开奖完成\n\n🎁 %s\n🎟 中奖号码：%d\n👤 中奖者：%s（%d）\n📊 有效彩票：%d 张",
		result.PrizeTitle, result.TicketNumber, name, result.TelegramID, result.PaidTickets))
}

// Participants /participants <奖品ID> 参与者列表
func Participants(c tele.Context) error {
	id, ok := argID(c)
	if !ok {
		return c.Send("用法: /participants <奖品ID>")
	}
	return handleParticipants(c, id)
}

func handleParticipants(c tele.Context, id uint) error {
	ctx, cancel := requestContext()
	defer cancel()

	participants, err := svc.Prizes.Participants(ctx, id)
	if err != nil {
		return c.Send(errorText(err))
	}
	if len(participants) == 0 {
		return c.Send("📭 还没有人完成支付")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "👥 参与者（%d 人）\n\n", len(participants))
	for i, p := range participants {
		name := p.Name
		if p.Username != "" {
			name += " @" + p.Username
		}
		fmt.Fprintf(&b, "%d. %s（%d）：%s\n", i+1, name, p.TelegramID, utils.FormatTicketNumbers(p.Numbers))
	}
	return c.Send(botutils.Truncate(b.String(), botutils.MaxTextLength), keyboards.CloseKeyboard())
}

// Activate /activate <奖品ID> 手动激活
func Activate(c tele.Context) error {
	id, ok := argID(c)
	if !ok {
		return c.Send("用法: /activate <奖品ID>")
	}
	return handleActivate(c, id)
}

func handleActivate(c tele.Context, id uint) error {
	ctx, cancel := requestContext()
	defer cancel()

	prize, err := svc.Prizes.Activate(ctx, id)
	if err != nil {
		return c.Send(errorText(err))
	}
	return c.Send(fmt.Sprintf("✅ 奖品「%s」已激活", prize.Title))
}

// RefreshAnnouncement 立即刷新频道公告
func RefreshAnnouncement(c tele.Context) error {
	ctx, cancel := requestContext()
	defer cancel()

	if err := svc.Prizes.RefreshAnnouncement(ctx); err != nil {
		return c.Send(errorText(err))
	}
	return c.Send("✅ 公告已刷新")
}

// PaymentInfo /payment <支付ID> 查询支付
func PaymentInfo(c tele.Context) error {
	args := c.Args()
	if len(args) == 0 {
		return c.Send("用法: /payment <支付ID>")
	}

	ctx, cancel := requestContext()
	defer cancel()
	info, err := svc.Payments.Describe(ctx, args[0])
	if err != nil {
		return c.Send(errorText(err))
	}

	status := "⏳ 未结算"
	if info.Settled {
		status = "✅ 已结算"
	}
	return c.Send(fmt.Sprintf("💳 支付 %s\n\n状态：%s（%s）\n用户：%s（%d）\n奖品：%s\n号码：%s\n金额：%s",
		info.Ref, status, info.Status, info.UserName, info.TelegramID, info.PrizeTitle,
		utils.FormatTicketNumbers(info.Numbers), utils.FormatPrice(info.Amount, info.Currency)))
}

// DeleteUser /deluser <用户ID> 删除用户
func DeleteUser(c tele.Context) error {
	args := c.Args()
	if len(args) == 0 {
		return c.Send("用法: /deluser <用户ID>")
	}
	tg, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Send("❌ 无效的用户ID")
	}

	ctx, cancel := requestContext()
	defer cancel()
	svc.Watcher.Stop(tg)
	if err := svc.Users.Delete(ctx, tg); err != nil {
		return c.Send(errorText(err))
	}
	return c.Send(fmt.Sprintf("✅ 用户 %d 已删除", tg))
}

// argID 读取第一个命令参数作为 ID
func argID(c tele.Context) (uint, bool) {
	args := c.Args()
	if len(args) == 0 {
		return 0, false
	}
	return parseID(args[0])
}
