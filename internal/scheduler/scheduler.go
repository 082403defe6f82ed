// Package scheduler 定时任务调度
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	tele "gopkg.in/telebot.v3"

	"github.com/smysle/sakura-raffle-go/internal/config"
	"github.com/smysle/sakura-raffle-go/internal/database/models"
	"github.com/smysle/sakura-raffle-go/internal/service"
	"github.com/smysle/sakura-raffle-go/pkg/logger"
)

// 任务标签
const (
	TagReleaseExpired = "release_expired"
	TagPrizeLifecycle = "prize_lifecycle"
	TagAnnouncement   = "announcement"
	TagBackup         = "backup"
)

// jobTimeout 单次任务的超时
const jobTimeout = time.Minute

// Reservations 过期预留清理
type Reservations interface {
	ReleaseExpired(ctx context.Context, now time.Time) (int64, error)
}

// Prizes 奖品生命周期
type Prizes interface {
	ActivateDue(ctx context.Context, now time.Time) (*models.Prize, error)
	RetireExpired(ctx context.Context, now time.Time) ([]models.Prize, error)
	RefreshAnnouncement(ctx context.Context) error
}

// Backuper 数据备份
type Backuper interface {
	Backup(ctx context.Context, compress bool) (*service.BackupResult, error)
	CleanOldBackups(keepDays int) (int, error)
}

// Scheduler 定时任务调度器
type Scheduler struct {
	cron         *gocron.Scheduler
	cfg          *config.Config
	bot          *tele.Bot
	reservations Reservations
	prizes       Prizes
	backup       Backuper
	now          func() time.Time
}

var instance *Scheduler

// New 创建调度器
func New(cfg *config.Config, reservations Reservations, prizes Prizes) *Scheduler {
	s := gocron.NewScheduler(cfg.Location())
	// 同一任务上一轮未结束时跳过本轮
	s.SingletonModeAll()

	instance = &Scheduler{
		cron:         s,
		cfg:          cfg,
		reservations: reservations,
		prizes:       prizes,
		now:          time.Now,
	}

	return instance
}

// Get 获取调度器实例
func Get() *Scheduler {
	return instance
}

// SetBot 设置 Bot 实例（用于向 Owner 发送报告）
func (s *Scheduler) SetBot(bot *tele.Bot) {
	s.bot = bot
}

// SetBackup 设置备份服务，未设置时不注册备份任务
func (s *Scheduler) SetBackup(b Backuper) {
	s.backup = b
}

// Start 启动调度器
func (s *Scheduler) Start() error {
	logger.Info().Msg("启动定时任务调度器")

	// 注册定时任务
	if err := s.registerJobs(); err != nil {
		return err
	}

	// 异步启动
	s.cron.StartAsync()
	return nil
}

// Stop 停止调度器
func (s *Scheduler) Stop() {
	logger.Info().Msg("停止定时任务调度器")
	s.cron.Stop()
}

// registerJobs 注册所有定时任务
func (s *Scheduler) registerJobs() error {
	cfg := s.cfg.Scheduler

	jobs := []struct {
		tag     string
		seconds int
		fn      func()
		name    string
	}{
		{TagReleaseExpired, cfg.ReleaseIntervalSeconds, s.releaseExpired, "过期预留清理"},
		{TagPrizeLifecycle, cfg.PrizeIntervalSeconds, s.prizeLifecycle, "奖品激活与结束"},
		{TagAnnouncement, cfg.AnnounceIntervalSeconds, s.refreshAnnouncement, "频道公告刷新"},
	}

	for _, job := range jobs {
		if _, err := s.cron.Every(job.seconds).Seconds().Tag(job.tag).Do(job.fn); err != nil {
			return fmt.Errorf("注册任务 %s 失败: %w", job.tag, err)
		}
		logger.Info().Int("interval_seconds", job.seconds).Msgf("已注册: %s任务", job.name)
	}

	// 数据库备份 - 每天凌晨 3 点
	if cfg.BackupDB && s.backup != nil {
		if _, err := s.cron.Every(1).Day().At("03:00").Tag(TagBackup).Do(s.backupDatabase); err != nil {
			return fmt.Errorf("注册任务 %s 失败: %w", TagBackup, err)
		}
		logger.Info().Msg("已注册: 数据库备份任务 (每天 03:00)")
	}
	return nil
}

// releaseExpired 释放超时未支付的预留
func (s *Scheduler) releaseExpired() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	released, err := s.reservations.ReleaseExpired(ctx, s.now())
	if err != nil {
		logger.Error().Err(err).Msg("释放过期预留失败")
		return
	}
	if released > 0 {
		logger.Info().Int64("released", released).Msg("已释放过期预留")
	}
}

// prizeLifecycle 先结束到期奖品，再激活下一个
func (s *Scheduler) prizeLifecycle() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	now := s.now()

	retired, err := s.prizes.RetireExpired(ctx, now)
	if err != nil {
		logger.Error().Err(err).Msg("结束到期奖品失败")
	}
	for i := range retired {
		s.reportRetired(&retired[i])
	}

	activated, err := s.prizes.ActivateDue(ctx, now)
	if err != nil {
		logger.Error().Err(err).Msg("激活奖品失败")
		return
	}
	if activated != nil {
		s.reportOwner(fmt.Sprintf("▶️ 奖品 #%d「%s」已开始售票", activated.ID, activated.Title))
	}
}

// refreshAnnouncement 刷新频道公告，并补发失败的公告
func (s *Scheduler) refreshAnnouncement() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if err := s.prizes.RefreshAnnouncement(ctx); err != nil {
		logger.Warn().Err(err).Msg("刷新频道公告失败")
	}
}

// backupDatabase 备份数据并清理旧备份
func (s *Scheduler) backupDatabase() {
	if s.backup == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	result, err := s.backup.Backup(ctx, true)
	if err != nil {
		logger.Error().Err(err).Msg("数据库备份失败")
		s.reportOwner("❌ 数据库备份失败: " + err.Error())
		return
	}

	deleted, err := s.backup.CleanOldBackups(s.cfg.Scheduler.BackupKeepDays)
	if err != nil {
		logger.Warn().Err(err).Msg("清理旧备份失败")
	}
	logger.Info().Str("file", result.Filename).Int("deleted", deleted).Msg("定时备份完成")
}

func (s *Scheduler) reportRetired(p *models.Prize) {
	s.reportOwner(fmt.Sprintf("⏹ 奖品 #%d「%s」已结束售票\n\n发送 /draw %d 开奖", p.ID, p.Title, p.ID))
}

// reportOwner 向 Owner 发送报告
func (s *Scheduler) reportOwner(text string) {
	if s.bot == nil || s.cfg.Owner == 0 {
		return
	}
	if _, err := s.bot.Send(&tele.Chat{ID: s.cfg.Owner}, text); err != nil {
		logger.Warn().Err(err).Msg("发送 Owner 报告失败")
	}
}

// RunNow 立即执行指定任务
func (s *Scheduler) RunNow(taskName string) error {
	switch taskName {
	case TagReleaseExpired:
		s.releaseExpired()
	case TagPrizeLifecycle:
		s.prizeLifecycle()
	case TagAnnouncement:
		s.refreshAnnouncement()
	case TagBackup:
		s.backupDatabase()
	default:
		return fmt.Errorf("未知任务: %s", taskName)
	}
	return nil
}
