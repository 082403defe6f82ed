// Package bot Telegram Bot 核心
package bot

import (
	"time"

	tele "gopkg.in/telebot.v3"

	"github.com/smysle/sakura-raffle-go/internal/bot/handlers"
	"github.com/smysle/sakura-raffle-go/internal/bot/middleware"
	"github.com/smysle/sakura-raffle-go/internal/config"
	"github.com/smysle/sakura-raffle-go/pkg/logger"
)

// Bot Telegram Bot 实例
type Bot struct {
	*tele.Bot
	cfg *config.Config
}

var instance *Bot

// New 创建新的 Bot 实例，处理器在 Register 中注册
func New(cfg *config.Config) (*Bot, error) {
	pref := tele.Settings{
		Token:  cfg.BotToken,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c tele.Context) {
			logger.Error().Err(err).Msg("Bot 错误")
		},
	}

	b, err := tele.NewBot(pref)
	if err != nil {
		return nil, err
	}

	bot := &Bot{
		Bot: b,
		cfg: cfg,
	}

	// 注册中间件
	bot.registerMiddleware()

	instance = bot
	return bot, nil
}

// Get 获取 Bot 单例
func Get() *Bot {
	return instance
}

// Register 注入业务服务并注册处理器与命令列表
func (b *Bot) Register(services *handlers.Services) {
	handlers.Init(services)
	b.registerHandlers()
	b.setCommands()
}

// registerMiddleware 注册中间件
func (b *Bot) registerMiddleware() {
	// 日志中间件
	b.Use(middleware.Logger())

	// 恢复中间件
	b.Use(middleware.Recover())

	// 限流
	b.Use(middleware.RateLimit(30))
	b.Use(middleware.AntiFlood(3))
}

// registerHandlers 注册所有处理器
func (b *Bot) registerHandlers() {
	// 用户命令
	b.Handle("/start", handlers.Start)
	b.Handle("/help", handlers.Help)
	b.Handle("/faq", handlers.FAQ)

	// 购票相关命令只在私聊中可用
	ticketGroup := b.Group()
	ticketGroup.Use(middleware.PrivateOnly())

	ticketGroup.Handle("/buy", handlers.Buy)
	ticketGroup.Handle("/mytickets", handlers.MyTickets)
	ticketGroup.Handle("/pay", handlers.Pay)
	ticketGroup.Handle("/cancel", handlers.Cancel)

	// 管理员命令 (需要权限验证)
	adminGroup := b.Group()
	adminGroup.Use(middleware.AdminOnly())

	adminGroup.Handle("/admin", handlers.AdminPanel)
	adminGroup.Handle("/prizes", handlers.Prizes)
	adminGroup.Handle("/draw", handlers.Draw)
	adminGroup.Handle("/participants", handlers.Participants)
	adminGroup.Handle("/activate", handlers.Activate)
	adminGroup.Handle("/announce", handlers.RefreshAnnouncement)
	adminGroup.Handle("/payment", handlers.PaymentInfo)
	adminGroup.Handle("/deluser", handlers.DeleteUser)
	adminGroup.Handle("/setfaq", handlers.SetFAQ)
	adminGroup.Handle("/chat", handlers.ChatLink)

	// Owner 命令
	ownerGroup := b.Group()
	ownerGroup.Use(middleware.OwnerOnly())

	ownerGroup.Handle("/proadmin", handlers.ProAdmin)
	ownerGroup.Handle("/revadmin", handlers.RevAdmin)
	ownerGroup.Handle("/backup_db", handlers.BackupDB)

	// 回调查询
	b.Handle(tele.OnCallback, handlers.OnCallback)

	// 文本消息处理（用于会话状态）
	b.Handle(tele.OnText, handlers.OnText)
}

// setCommands 设置命令列表
func (b *Bot) setCommands() {
	// 用户命令
	userCmds := []tele.Command{
		{Text: "start", Description: "[私聊] 开启用户面板"},
		{Text: "buy", Description: "[私聊] 购买彩票"},
		{Text: "mytickets", Description: "[私聊] 我的彩票"},
		{Text: "pay", Description: "[私聊] 支付预留的彩票"},
		{Text: "cancel", Description: "[私聊] 取消并释放预留"},
		{Text: "faq", Description: "常见问题"},
		{Text: "help", Description: "使用说明"},
	}

	// 管理员命令
	adminCmds := append(userCmds, []tele.Command{
		{Text: "admin", Description: "管理面板 [管理]"},
		{Text: "prizes", Description: "奖品列表 [管理]"},
		{Text: "draw", Description: "开奖 [管理]"},
		{Text: "participants", Description: "参与者列表 [管理]"},
		{Text: "activate", Description: "立即激活奖品 [管理]"},
		{Text: "announce", Description: "刷新频道公告 [管理]"},
		{Text: "payment", Description: "查询支付 [管理]"},
		{Text: "deluser", Description: "删除用户 [管理]"},
		{Text: "setfaq", Description: "更新常见问题 [管理]"},
		{Text: "chat", Description: "打开与用户的对话 [管理]"},
	}...)

	// Owner 命令
	ownerCmds := append(adminCmds, []tele.Command{
		{Text: "proadmin", Description: "添加bot管理 [owner]"},
		{Text: "revadmin", Description: "移除bot管理 [owner]"},
		{Text: "backup_db", Description: "手动备份数据库 [owner]"},
	}...)

	if err := b.SetCommands(userCmds); err != nil {
		logger.Warn().Err(err).Msg("设置命令列表失败")
	}

	// 为管理员设置专属命令列表
	for _, adminID := range b.cfg.Admins {
		if err := b.SetCommands(adminCmds, tele.CommandScope{
			Type:   tele.CommandScopeChat,
			ChatID: adminID,
		}); err != nil {
			logger.Warn().Err(err).Int64("admin", adminID).Msg("设置管理员命令失败")
		}
	}

	// 为 Owner 设置专属命令列表
	if b.cfg.Owner != 0 {
		if err := b.SetCommands(ownerCmds, tele.CommandScope{
			Type:   tele.CommandScopeChat,
			ChatID: b.cfg.Owner,
		}); err != nil {
			logger.Warn().Err(err).Msg("设置 Owner 命令失败")
		}
	}
}

// Run 运行 Bot
func (b *Bot) Run() {
	logger.Info().Str("bot", b.cfg.BotName).Msg("Bot 启动中...")
	b.Start()
}

// Stop 停止 Bot
func (b *Bot) Stop() {
	logger.Info().Msg("Bot 停止中...")
	b.Bot.Stop()
}
