package handlers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v3"

	"github.com/smysle/sakura-raffle-go/internal/config"
	"github.com/smysle/sakura-raffle-go/internal/service"
	"github.com/smysle/sakura-raffle-go/pkg/logger"
)

// ProAdmin /proadmin 添加管理员
func ProAdmin(c tele.Context) error {
	tgID, ok := argTelegramID(c, "/proadmin")
	if !ok {
		return nil
	}

	ctx, cancel := requestContext()
	defer cancel()
	if err := svc.Users.SetAdmin(ctx, tgID, true); err != nil {
		return c.Send(errorText(err))
	}
	config.Update(func(cfg *config.Config) {
		cfg.AddAdmin(tgID)
	})

	logger.Info().Int64("owner", c.Sender().ID).Int64("tg", tgID).Msg("添加管理员")
	return c.Send(fmt.Sprintf("✅ 用户 %d 已添加为管理员", tgID))
}

// RevAdmin /revadmin 移除管理员
func RevAdmin(c tele.Context) error {
	tgID, ok := argTelegramID(c, "/revadmin")
	if !ok {
		return nil
	}

	if !config.Get().IsAdmin(tgID) {
		return c.Send("❌ 该用户不是管理员")
	}
	if config.Get().IsOwner(tgID) {
		return c.Send("❌ 不能移除 Owner")
	}

	ctx, cancel := requestContext()
	defer cancel()
	if err := svc.Users.SetAdmin(ctx, tgID, false); err != nil {
		return c.Send(errorText(err))
	}
	config.Update(func(cfg *config.Config) {
		cfg.RemoveAdmin(tgID)
	})

	logger.Info().Int64("owner", c.Sender().ID).Int64("tg", tgID).Msg("移除管理员")
	return c.Send(fmt.Sprintf("✅ 用户 %d 已移除管理员权限", tgID))
}

// argTelegramID 读取用户ID参数，失败时已回复用法
func argTelegramID(c tele.Context, command string) (int64, bool) {
	args := c.Args()
	if len(args) == 0 {
		_ = c.Send(fmt.Sprintf("用法: %s <用户ID>", command))
		return 0, false
	}
	tgID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		_ = c.Send("❌ 无效的用户ID")
		return 0, false
	}
	return tgID, true
}

// BackupDB /backup_db 备份数据库
func BackupDB(c tele.Context) error {
	_ = c.Send("⏳ 正在备份数据库...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	result, err := svc.Backup.Backup(ctx, true) // 压缩备份
	if err != nil {
		logger.Error().Err(err).Msg("数据库备份失败")
		return c.Send("❌ 备份失败: " + err.Error())
	}

	caption := fmt.Sprintf("✅ 备份完成\n记录数: %d\n大小: %s\n耗时: %s",
		result.Records, service.FormatSize(result.Size), result.Duration.Round(time.Millisecond))
	doc := &tele.Document{
		File:     tele.FromDisk(result.FilePath),
		FileName: result.Filename,
		Caption:  caption,
	}
	if err := c.Send(doc); err != nil {
		logger.Warn().Err(err).Msg("发送备份文件失败")
		return c.Send(caption + "\n文件: " + result.FilePath)
	}
	return nil
}
