// Package middleware Bot 中间件
package middleware

import (
	"runtime/debug"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	tele "gopkg.in/telebot.v3"

	"github.com/smysle/sakura-raffle-go/internal/config"
	"github.com/smysle/sakura-raffle-go/pkg/logger"
)

// deny 拒绝请求：回调用弹窗提示，消息直接回复
func deny(c tele.Context, text string) error {
	if c.Callback() != nil {
		return c.Respond(&tele.CallbackResponse{Text: text, ShowAlert: true})
	}
	return c.Send(text)
}

// Logger 日志中间件
func Logger() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil {
				return next(c)
			}
			event := logger.Debug().Int64("tg", user.ID).Str("username", user.Username)
			if chat := c.Chat(); chat != nil {
				event = event.Str("chat", string(chat.Type))
			}
			if cb := c.Callback(); cb != nil {
				event = event.Str("callback", cb.Data)
			} else {
				event = event.Str("text", c.Text())
			}
			event.Msg("收到消息")
			return next(c)
		}
	}
}

// Recover 恢复中间件
func Recover() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error().
						Interface("panic", r).
						Str("stack", string(debug.Stack())).
						Msg("处理器 panic")
					err = deny(c, "❌ 处理请求时发生错误，请稍后重试")
				}
			}()
			return next(c)
		}
	}
}

// requireRole 按配置中的身份放行
func requireRole(allowed func(cfg *config.Config, tg int64) bool, text string) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			cfg := config.Get()
			if user == nil || cfg == nil || !allowed(cfg, user.ID) {
				return deny(c, text)
			}
			return next(c)
		}
	}
}

// AdminOnly 管理员权限中间件
func AdminOnly() tele.MiddlewareFunc {
	return requireRole((*config.Config).IsAdmin, "❌ 您没有权限执行此操作")
}

// OwnerOnly Owner 权限中间件
func OwnerOnly() tele.MiddlewareFunc {
	return requireRole((*config.Config).IsOwner, "❌ 此命令仅限 Owner 使用")
}

// PrivateOnly 选号与支付只在私聊中进行
func PrivateOnly() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			chat := c.Chat()
			if chat == nil || chat.Type != tele.ChatPrivate {
				return deny(c, "❌ 请私聊机器人购买彩票")
			}
			return next(c)
		}
	}
}

// limiter 固定窗口计数，窗口到期由缓存清除
type limiter struct {
	hits   *cache.Cache
	limit  int
	window time.Duration
}

func newLimiter(limit int, window time.Duration) *limiter {
	return &limiter{
		hits:   cache.New(window, 5*time.Minute),
		limit:  limit,
		window: window,
	}
}

// allow 记录一次请求，返回是否仍在限额内
func (l *limiter) allow(tg int64) bool {
	key := strconv.FormatInt(tg, 10)
	if err := l.hits.Add(key, 1, l.window); err == nil {
		return true
	}
	n, err := l.hits.IncrementInt(key, 1)
	if err != nil {
		// 计数在两次调用之间过期
		l.hits.Set(key, 1, l.window)
		return true
	}
	return n <= l.limit
}

// RateLimit 每分钟请求上限，管理员不受限制
func RateLimit(requestsPerMinute int) tele.MiddlewareFunc {
	l := newLimiter(requestsPerMinute, time.Minute)

	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil {
				return next(c)
			}
			if cfg := config.Get(); cfg != nil && cfg.IsAdmin(user.ID) {
				return next(c)
			}
			if !l.allow(user.ID) {
				logger.Warn().Int64("tg", user.ID).Int("limit", requestsPerMinute).Msg("用户触发速率限制")
				return deny(c, "⏳ 操作太频繁，请稍后再试")
			}
			return next(c)
		}
	}
}

// AntiFlood 两次请求间隔过短时静默丢弃
func AntiFlood(maxPerSecond int) tele.MiddlewareFunc {
	l := newLimiter(1, time.Second/time.Duration(maxPerSecond))

	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil {
				return next(c)
			}
			if !l.allow(user.ID) {
				if c.Callback() != nil {
					return c.Respond()
				}
				return nil
			}
			return next(c)
		}
	}
}
