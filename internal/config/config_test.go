// Package config 配置模块测试
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig_IsAdmin(t *testing.T) {
	cfg := &Config{
		Owner:  12345,
		Admins: []int64{11111, 22222},
	}

	tests := []struct {
		name     string
		userID   int64
		expected bool
	}{
		{"Owner 是管理员", 12345, true},
		{"Admin 是管理员", 11111, true},
		{"Admin2 是管理员", 22222, true},
		{"普通用户不是管理员", 99999, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cfg.IsAdmin(tt.userID); got != tt.expected {
				t.Errorf("IsAdmin(%d) = %v, want %v", tt.userID, got, tt.expected)
			}
		})
	}
}

func TestConfig_AddRemoveAdmin(t *testing.T) {
	cfg := &Config{Admins: []int64{11111}}

	if !cfg.AddAdmin(22222) {
		t.Error("AddAdmin(22222) 应该返回 true")
	}
	if cfg.AddAdmin(22222) {
		t.Error("AddAdmin(22222) 重复添加应该返回 false")
	}
	if !cfg.RemoveAdmin(11111) {
		t.Error("RemoveAdmin(11111) 应该返回 true")
	}
	if cfg.RemoveAdmin(11111) {
		t.Error("RemoveAdmin(11111) 重复移除应该返回 false")
	}
	if len(cfg.Admins) != 1 || cfg.Admins[0] != 22222 {
		t.Errorf("管理员列表应为 [22222]，实际是 %v", cfg.Admins)
	}
}

func TestConfig_setDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.setDefaults()

	if cfg.Raffle.HoldDuration() != 15*time.Minute {
		t.Errorf("默认预留时长应为 15 分钟，实际是 %v", cfg.Raffle.HoldDuration())
	}
	if cfg.Raffle.PaymentWindow() != 10*time.Minute {
		t.Errorf("默认支付窗口应为 10 分钟，实际是 %v", cfg.Raffle.PaymentWindow())
	}
	if cfg.Raffle.PollInterval() != 15*time.Second {
		t.Errorf("默认轮询间隔应为 15 秒，实际是 %v", cfg.Raffle.PollInterval())
	}
	if cfg.Scheduler.ReleaseIntervalSeconds != 30 {
		t.Errorf("默认释放间隔应为 30 秒，实际是 %d", cfg.Scheduler.ReleaseIntervalSeconds)
	}
	if cfg.Raffle.AllowAdjacentWindows {
		t.Error("默认不允许首尾相接的时间段")
	}
	if cfg.Location().String() != "Europe/Moscow" {
		t.Errorf("默认时区应为 Europe/Moscow，实际是 %s", cfg.Location())
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{"bot_token":"from-file","database":{"host":"db","user":"root"},"raffle":{"hold_minutes":5}}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("BOT_TOKEN", "from-env")
	t.Setenv("YOOKASSA_SHOP_ID", "shop-1")
	t.Setenv("ADMINS", "1, 2,abc")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BotToken != "from-env" {
		t.Errorf("BotToken = %q, want from-env", cfg.BotToken)
	}
	if cfg.YooKassa.ShopID != "shop-1" {
		t.Errorf("ShopID = %q, want shop-1", cfg.YooKassa.ShopID)
	}
	if cfg.Database.Host != "db" {
		t.Errorf("Database.Host = %q, want db", cfg.Database.Host)
	}
	if cfg.Raffle.HoldMinutes != 5 {
		t.Errorf("HoldMinutes = %d, want 5", cfg.Raffle.HoldMinutes)
	}
	if !cfg.IsAdmin(1) || !cfg.IsAdmin(2) {
		t.Errorf("ADMINS 环境变量未生效: %v", cfg.Admins)
	}
	if Get() != cfg {
		t.Error("Load 之后 Get() 应返回同一实例")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("缺少配置文件时应使用默认值，err = %v", err)
	}
	if cfg.API.Port != 8838 {
		t.Errorf("API.Port = %d, want 8838", cfg.API.Port)
	}
}
