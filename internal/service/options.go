// Package service 服务公共选项
package service

import (
	mathrand "math/rand"
	"time"

	"github.com/smysle/sakura-raffle-go/internal/config"
	"github.com/smysle/sakura-raffle-go/pkg/utils"
)

// RandomSource 随机数来源，math/rand.Rand 可直接使用
type RandomSource interface {
	Intn(n int) int
}

// cryptoSource 默认使用 crypto/rand
type cryptoSource struct{}

func (cryptoSource) Intn(n int) int {
	idx, err := utils.RandomIndex(n)
	if err != nil {
		return mathrand.Intn(n)
	}
	return idx
}

// Requester 发起请求的聊天用户
type Requester struct {
	TelegramID int64
	FullName   string
	Username   string
}

type options struct {
	clock         func() time.Time
	random        RandomSource
	holdDuration  time.Duration
	paymentWindow time.Duration
	pollInterval  time.Duration
	pollTimeout   time.Duration
	allowAdjacent bool
	currency      string
	maxTickets    int
	location      *time.Location
	mediaRoot     string
}

// Option 服务选项
type Option func(*options)

// WithClock 注入时钟
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// WithRandom 注入随机数来源
func WithRandom(r RandomSource) Option {
	return func(o *options) { o.random = r }
}

// WithHoldDuration 预留时长
func WithHoldDuration(d time.Duration) Option {
	return func(o *options) { o.holdDuration = d }
}

// WithPaymentWindow 支付等待时长
func WithPaymentWindow(d time.Duration) Option {
	return func(o *options) { o.paymentWindow = d }
}

// WithPolling 支付轮询间隔与总时长
func WithPolling(interval, timeout time.Duration) Option {
	return func(o *options) {
		o.pollInterval = interval
		o.pollTimeout = timeout
	}
}

// WithAdjacentWindows 是否允许首尾相接的奖品时间段
func WithAdjacentWindows(allow bool) Option {
	return func(o *options) { o.allowAdjacent = allow }
}

// WithLocation 展示用时区
func WithLocation(loc *time.Location) Option {
	return func(o *options) { o.location = loc }
}

// newOptions 从全局配置读取默认值，再应用选项
func newOptions(opts []Option) options {
	o := options{
		clock:         time.Now,
		random:        cryptoSource{},
		holdDuration:  15 * time.Minute,
		paymentWindow: 10 * time.Minute,
		pollInterval:  15 * time.Second,
		pollTimeout:   15 * time.Minute,
		currency:      "RUB",
		maxTickets:    50,
		location:      time.UTC,
		mediaRoot:     "media",
	}
	if cfg := config.Get(); cfg != nil {
		setDuration(&o.holdDuration, cfg.Raffle.HoldDuration())
		setDuration(&o.paymentWindow, cfg.Raffle.PaymentWindow())
		setDuration(&o.pollInterval, cfg.Raffle.PollInterval())
		setDuration(&o.pollTimeout, cfg.Raffle.PollTimeout())
		o.allowAdjacent = cfg.Raffle.AllowAdjacentWindows
		if cfg.Raffle.Currency != "" {
			o.currency = cfg.Raffle.Currency
		}
		if cfg.Raffle.MaxTicketsPerRequest > 0 {
			o.maxTickets = cfg.Raffle.MaxTicketsPerRequest
		}
		if cfg.Timezone != "" {
			o.location = cfg.Location()
		}
		if cfg.MediaRoot != "" {
			o.mediaRoot = cfg.MediaRoot
		}
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func setDuration(dst *time.Duration, d time.Duration) {
	if d > 0 {
		*dst = d
	}
}

// now 存储统一使用 UTC
func (o options) now() time.Time {
	return o.clock().UTC()
}
