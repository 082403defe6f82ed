// Sakura Raffle - Go Version
// Telegram Bot for paid prize raffles
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smysle/sakura-raffle-go/internal/bot"
	"github.com/smysle/sakura-raffle-go/internal/bot/handlers"
	"github.com/smysle/sakura-raffle-go/internal/config"
	"github.com/smysle/sakura-raffle-go/internal/database"
	"github.com/smysle/sakura-raffle-go/internal/scheduler"
	"github.com/smysle/sakura-raffle-go/internal/service"
	"github.com/smysle/sakura-raffle-go/internal/web"
	"github.com/smysle/sakura-raffle-go/internal/yookassa"
	"github.com/smysle/sakura-raffle-go/pkg/logger"
	"github.com/smysle/sakura-raffle-go/pkg/utils"
)

var (
	configPath = flag.String("config", "config.json", "配置文件路径")
	debug      = flag.Bool("debug", false, "调试模式")
)

func main() {
	flag.Parse()

	// 先输出到控制台，加载配置后再按配置初始化
	logger.Init(logger.Options{Debug: *debug})
	logger.Info().Msg("🌸 Sakura Raffle Go 启动中...")

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("加载配置失败")
	}
	logger.Init(logger.Options{Debug: *debug, File: cfg.LogFile, Timezone: cfg.Timezone})
	logger.Info().Msg("✅ 配置加载完成")

	// 初始化数据库
	if err := database.Init(&cfg.Database); err != nil {
		logger.Fatal().Err(err).Msg("初始化数据库失败")
	}
	defer database.Close()
	db := database.GetDB()
	logger.Info().Msg("✅ 数据库连接成功")

	// 支付网关
	gateway, err := yookassa.NewClientFromConfig(&cfg.YooKassa)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化支付网关失败")
	}

	// 初始化 Telegram Bot
	tgBot, err := bot.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化 Telegram Bot 失败")
	}

	var publisher service.Publisher
	if cfg.ChannelID != 0 {
		publisher = bot.NewChannelPublisher(tgBot.Bot, cfg.ChannelID)
	} else {
		logger.Warn().Msg("未配置公告频道，奖品公告不会发布")
	}

	// 业务服务
	users := service.NewUserService(db)
	prizes := service.NewPrizeService(db, publisher)
	reservations := service.NewReservationService(db)
	payments := service.NewPaymentService(db, gateway)
	backup := service.NewBackupService(db, cfg.Database.BackupDir)
	faqs := service.NewFAQService(db)

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()
	tasks := utils.NewTaskRegistry(rootCtx)
	notifier := handlers.NewNotifier(tgBot.Bot)
	watcher := service.NewPaymentWatcher(payments, reservations, tasks, notifier)

	// 合并数据库中记录的管理员
	mergeAdmins(rootCtx, users)

	tgBot.Register(&handlers.Services{
		Users:        users,
		Prizes:       prizes,
		Reservations: reservations,
		Payments:     payments,
		Watcher:      watcher,
		Backup:       backup,
		FAQ:          faqs,
	})
	logger.Info().Str("bot", cfg.BotName).Msg("✅ Telegram Bot 初始化完成")

	// 初始化定时任务调度器
	sched := scheduler.New(cfg, reservations, prizes)
	sched.SetBot(tgBot.Bot)
	sched.SetBackup(backup)
	if err := sched.Start(); err != nil {
		logger.Fatal().Err(err).Msg("启动定时任务调度器失败")
	}
	logger.Info().Msg("✅ 定时任务调度器启动")

	// 初始化 Web API 服务
	webServer := web.New(&cfg.API, web.Deps{
		DB:       db,
		Prizes:   prizes,
		Payments: payments,
		FAQ:      faqs,
		Notifier: notifier,
	})
	go func() {
		if err := webServer.Start(); err != nil {
			logger.Error().Err(err).Msg("Web API 服务启动失败")
		}
	}()

	// 监听系统信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// 在后台运行 Bot
	go tgBot.Run()

	logger.Info().Msg("🚀 Sakura Raffle Go 启动成功!")
	logger.Info().Msg("按 Ctrl+C 停止...")

	// 等待退出信号
	<-quit

	logger.Info().Msg("正在关闭服务...")
	tgBot.Stop()
	sched.Stop()
	if err := webServer.Stop(); err != nil {
		logger.Warn().Err(err).Msg("关闭 Web API 服务失败")
	}
	// 取消支付轮询与预留计时
	tasks.Stop()
	logger.Info().Msg("👋 再见!")
}

// mergeAdmins 把数据库中的管理员标记合并进运行时配置
func mergeAdmins(ctx context.Context, users *service.UserService) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	ids, err := users.AdminIDs(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("读取管理员列表失败")
		return
	}
	config.Update(func(c *config.Config) {
		for _, id := range ids {
			c.AddAdmin(id)
		}
	})
	if len(ids) > 0 {
		logger.Info().Int("count", len(ids)).Msg("已加载数据库中的管理员")
	}
}
