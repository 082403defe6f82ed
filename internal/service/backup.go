// Package service 数据库备份服务
package service

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/smysle/sakura-raffle-go/internal/database/models"
	"github.com/smysle/sakura-raffle-go/pkg/logger"
)

// BackupService 把抽奖数据导出为 JSON 快照
type BackupService struct {
	db        *gorm.DB
	backupDir string
	opts      options
}

// BackupData 备份数据结构
type BackupData struct {
	Version   string                `json:"version"`
	CreatedAt time.Time             `json:"created_at"`
	Users     []models.TelegramUser `json:"users"`
	Prizes    []models.Prize        `json:"prizes"`
	Tickets   []models.Ticket       `json:"tickets"`
	Batches   []models.PaymentBatch `json:"payment_batches"`
	Payments  []models.Payment      `json:"payments"`
}

// Records 快照中的记录总数
func (d *BackupData) Records() int {
	return len(d.Users) + len(d.Prizes) + len(d.Tickets) + len(d.Batches) + len(d.Payments)
}

// BackupResult 备份结果
type BackupResult struct {
	Filename   string
	FilePath   string
	Size       int64
	Duration   time.Duration
	Records    int
	Compressed bool
}

// BackupInfo 备份文件信息
type BackupInfo struct {
	Filename  string
	Size      int64
	CreatedAt time.Time
}

// NewBackupService 创建备份服务，backupDir 为空时使用 ./backups
func NewBackupService(db *gorm.DB, backupDir string, opts ...Option) *BackupService {
	if backupDir == "" {
		backupDir = "./backups"
	}
	return &BackupService{
		db:        db,
		backupDir: backupDir,
		opts:      newOptions(opts),
	}
}

// Backup 在一个只读事务中导出全部抽奖数据
func (s *BackupService) Backup(ctx context.Context, compress bool) (*BackupResult, error) {
	startTime := time.Now()
	now := s.opts.now()

	data := BackupData{Version: "1.0", CreatedAt: now}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		steps := []struct {
			name    string
			dest    interface{}
			preload string
		}{
			{"用户", &data.Users, ""},
			{"奖品", &data.Prizes, ""},
			{"彩票", &data.Tickets, ""},
			{"支付批次", &data.Batches, ""},
			// payment_tickets 关联随支付记录一起导出
			{"支付记录", &data.Payments, "Tickets"},
		}
		for _, step := range steps {
			q := tx.Order("id")
			if step.preload != "" {
				q = q.Preload(step.preload, func(db *gorm.DB) *gorm.DB {
					return db.Order("ticket_number ASC")
				})
			}
			if err := q.Find(step.dest).Error; err != nil {
				return fmt.Errorf("备份%s失败: %w", step.name, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.backupDir, 0755); err != nil {
		return nil, fmt.Errorf("创建备份目录失败: %w", err)
	}

	// 生成文件名
	filename := fmt.Sprintf("raffle_%s.json", now.Format("20060102_150405"))
	if compress {
		filename += ".gz"
	}
	filePath := filepath.Join(s.backupDir, filename)

	// 序列化
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("序列化失败: %w", err)
	}

	var fileSize int64
	if compress {
		fileSize, err = writeCompressed(filePath, jsonData)
	} else {
		fileSize, err = writeRaw(filePath, jsonData)
	}
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("file", filename).
		Int64("size", fileSize).
		Int("records", data.Records()).
		Msg("数据库备份完成")

	return &BackupResult{
		Filename:   filename,
		FilePath:   filePath,
		Size:       fileSize,
		Duration:   time.Since(startTime),
		Records:    data.Records(),
		Compressed: compress,
	}, nil
}

// writeRaw 写入原始 JSON
func writeRaw(path string, data []byte) (int64, error) {
	if err := os.WriteFile(path, data, 0644); err != nil {
		return 0, fmt.Errorf("写入文件失败: %w", err)
	}
	return fileSize(path)
}

// writeCompressed 写入压缩文件
func writeCompressed(path string, data []byte) (int64, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("创建文件失败: %w", err)
	}

	gz := gzip.NewWriter(file)
	if _, err := gz.Write(data); err != nil {
		file.Close()
		return 0, fmt.Errorf("压缩写入失败: %w", err)
	}
	if err := gz.Close(); err != nil {
		file.Close()
		return 0, fmt.Errorf("压缩写入失败: %w", err)
	}
	if err := file.Close(); err != nil {
		return 0, fmt.Errorf("写入文件失败: %w", err)
	}
	return fileSize(path)
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// ListBackups 列出所有备份，最新的在前
func (s *BackupService) ListBackups() ([]BackupInfo, error) {
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var backups []BackupInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}

		backups = append(backups, BackupInfo{
			Filename:  entry.Name(),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		})
	}

	// 按时间倒序
	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})

	return backups, nil
}

// CleanOldBackups 删除早于 keepDays 天的备份
func (s *BackupService) CleanOldBackups(keepDays int) (int, error) {
	if keepDays <= 0 {
		keepDays = 7 // 默认保留 7 天
	}

	backups, err := s.ListBackups()
	if err != nil {
		return 0, err
	}

	cutoff := s.opts.now().AddDate(0, 0, -keepDays)
	deleted := 0

	for _, backup := range backups {
		if !backup.CreatedAt.Before(cutoff) {
			continue
		}
		filePath := filepath.Join(s.backupDir, backup.Filename)
		if err := os.Remove(filePath); err != nil {
			logger.Warn().Err(err).Str("file", backup.Filename).Msg("删除旧备份失败")
			continue
		}
		deleted++
		logger.Debug().Str("file", backup.Filename).Msg("已删除旧备份")
	}

	return deleted, nil
}

// FormatSize 格式化文件大小
func FormatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
