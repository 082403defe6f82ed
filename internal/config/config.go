// Package config 配置管理模块
package config

import (
	"encoding/json"
	"errors"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Config 全局配置结构
type Config struct {
	BotName   string  `json:"bot_name"`
	BotToken  string  `json:"bot_token"`
	Owner     int64   `json:"owner"`
	Admins    []int64 `json:"admins"`
	ChannelID int64   `json:"channel_id"` // 公告频道
	Timezone  string  `json:"timezone"`
	MediaRoot string  `json:"media_root"` // 奖品图片目录
	LogFile   string  `json:"log_file"`

	Database  DatabaseConfig  `json:"database"`
	Raffle    RaffleConfig    `json:"raffle"`
	YooKassa  YooKassaConfig  `json:"yookassa"`
	Scheduler SchedulerConfig `json:"scheduler"`
	API       APIConfig       `json:"api"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver    string `json:"driver"` // mysql / sqlite
	Host      string `json:"host"`
	Port      int    `json:"port"`
	User      string `json:"user"`
	Password  string `json:"password"`
	Name      string `json:"name"`
	Path      string `json:"path"`       // sqlite 文件路径
	BackupDir string `json:"backup_dir"` // JSON 备份目录
}

// RaffleConfig 抽奖配置
type RaffleConfig struct {
	HoldMinutes          int    `json:"hold_minutes"`
	PaymentWindowMinutes int    `json:"payment_window_minutes"`
	PollIntervalSeconds  int    `json:"poll_interval_seconds"`
	PollTimeoutMinutes   int    `json:"poll_timeout_minutes"`
	AllowAdjacentWindows bool   `json:"allow_adjacent_windows"` // 是否允许首尾相接的抽奖时间段
	Currency             string `json:"currency"`
	MaxTicketsPerRequest int    `json:"max_tickets_per_request"`
}

// YooKassaConfig 支付网关配置
type YooKassaConfig struct {
	ShopID    string `json:"shop_id"`
	SecretKey string `json:"secret_key"`
	APIURL    string `json:"api_url"`
}

// SchedulerConfig 定时任务配置
type SchedulerConfig struct {
	ReleaseIntervalSeconds  int  `json:"release_interval_seconds"`
	PrizeIntervalSeconds    int  `json:"prize_interval_seconds"`
	AnnounceIntervalSeconds int  `json:"announce_interval_seconds"`
	BackupDB                bool `json:"backup_db"`        // 每天 03:00 备份
	BackupKeepDays          int  `json:"backup_keep_days"` // 备份保留天数
}

// APIConfig Web API 配置
type APIConfig struct {
	Enabled    bool   `json:"enabled"`
	Host       string `json:"host"`
	Port       int    `json:"port"`
	AdminToken string `json:"admin_token"`
}

var (
	cfg     *Config
	cfgLock sync.RWMutex
)

// Load 加载配置文件，.env 与环境变量中的值优先
func Load(path string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, err
		}
	case errors.Is(err, os.ErrNotExist):
		// 允许只用环境变量运行
	default:
		return nil, err
	}

	// .env 不存在时忽略
	_ = godotenv.Load()
	config.applyEnv()
	config.setDefaults()

	cfgLock.Lock()
	cfg = &config
	cfgLock.Unlock()

	return &config, nil
}

// Get 获取全局配置（线程安全）
func Get() *Config {
	cfgLock.RLock()
	defer cfgLock.RUnlock()
	return cfg
}

// Set 替换全局配置
func Set(c *Config) {
	cfgLock.Lock()
	cfg = c
	cfgLock.Unlock()
}

// Update 在写锁内修改全局配置
func Update(fn func(c *Config)) {
	cfgLock.Lock()
	defer cfgLock.Unlock()
	if cfg != nil {
		fn(cfg)
	}
}

// applyEnv 用环境变量覆盖敏感配置
func (c *Config) applyEnv() {
	setString(&c.BotToken, "BOT_TOKEN")
	setString(&c.BotName, "BOT_NAME")
	setInt64(&c.ChannelID, "CHANNEL_ID")
	setString(&c.Database.Driver, "DB_DRIVER")
	setString(&c.Database.Host, "DB_HOST")
	setInt(&c.Database.Port, "DB_PORT")
	setString(&c.Database.User, "DB_USER")
	setString(&c.Database.Password, "DB_PASSWORD")
	setString(&c.Database.Name, "DB_NAME")
	setString(&c.YooKassa.ShopID, "YOOKASSA_SHOP_ID")
	setString(&c.YooKassa.SecretKey, "YOOKASSA_SECRET_KEY")
	setString(&c.YooKassa.APIURL, "YOOKASSA_API_URL")
	setString(&c.API.AdminToken, "ADMIN_TOKEN")

	if v := os.Getenv("ADMINS"); v != "" {
		for _, part := range strings.Split(v, ",") {
			if id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64); err == nil {
				c.AddAdmin(id)
			}
		}
	}
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

// setDefaults 设置默认值
func (c *Config) setDefaults() {
	if c.Timezone == "" {
		c.Timezone = "Europe/Moscow"
	}
	if c.MediaRoot == "" {
		c.MediaRoot = "media"
	}
	if c.LogFile == "" {
		c.LogFile = "log/raffle.log"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.Path == "" {
		c.Database.Path = "raffle.db"
	}
	if c.Database.BackupDir == "" {
		c.Database.BackupDir = "backups"
	}
	if c.Raffle.HoldMinutes == 0 {
		c.Raffle.HoldMinutes = 15
	}
	if c.Raffle.PaymentWindowMinutes == 0 {
		c.Raffle.PaymentWindowMinutes = 10
	}
	if c.Raffle.PollIntervalSeconds == 0 {
		c.Raffle.PollIntervalSeconds = 15
	}
	if c.Raffle.PollTimeoutMinutes == 0 {
		c.Raffle.PollTimeoutMinutes = 15
	}
	if c.Raffle.Currency == "" {
		c.Raffle.Currency = "RUB"
	}
	if c.Raffle.MaxTicketsPerRequest == 0 {
		c.Raffle.MaxTicketsPerRequest = 50
	}
	if c.YooKassa.APIURL == "" {
		c.YooKassa.APIURL = "https://api.yookassa.ru/v3"
	}
	if c.Scheduler.ReleaseIntervalSeconds == 0 {
		c.Scheduler.ReleaseIntervalSeconds = 30
	}
	if c.Scheduler.PrizeIntervalSeconds == 0 {
		c.Scheduler.PrizeIntervalSeconds = 60
	}
	if c.Scheduler.AnnounceIntervalSeconds == 0 {
		c.Scheduler.AnnounceIntervalSeconds = 60
	}
	if c.Scheduler.BackupKeepDays == 0 {
		c.Scheduler.BackupKeepDays = 7
	}
	if c.API.Port == 0 {
		c.API.Port = 8838
	}
}

// HoldDuration 预留时长
func (r RaffleConfig) HoldDuration() time.Duration {
	return time.Duration(r.HoldMinutes) * time.Minute
}

// PaymentWindow 支付等待时长
func (r RaffleConfig) PaymentWindow() time.Duration {
	return time.Duration(r.PaymentWindowMinutes) * time.Minute
}

// PollInterval 支付状态轮询间隔
func (r RaffleConfig) PollInterval() time.Duration {
	return time.Duration(r.PollIntervalSeconds) * time.Second
}

// PollTimeout 支付状态轮询总时长
func (r RaffleConfig) PollTimeout() time.Duration {
	return time.Duration(r.PollTimeoutMinutes) * time.Minute
}

// Location 业务时区
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// IsAdmin 判断是否是管理员
func (c *Config) IsAdmin(userID int64) bool {
	if userID == c.Owner {
		return true
	}
	for _, admin := range c.Admins {
		if admin == userID {
			return true
		}
	}
	return false
}

// IsOwner 判断是否是 Owner
func (c *Config) IsOwner(userID int64) bool {
	return userID == c.Owner
}

// AddAdmin 添加管理员
func (c *Config) AddAdmin(userID int64) bool {
	for _, admin := range c.Admins {
		if admin == userID {
			return false
		}
	}
	c.Admins = append(c.Admins, userID)
	return true
}

// RemoveAdmin 移除管理员
func (c *Config) RemoveAdmin(userID int64) bool {
	for i, admin := range c.Admins {
		if admin == userID {
			c.Admins = append(c.Admins[:i], c.Admins[i+1:]...)
			return true
		}
	}
	return false
}
