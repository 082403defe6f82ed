// Package service 支付轮询与预留提醒
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smysle/sakura-raffle-go/internal/database/models"
	"github.com/smysle/sakura-raffle-go/pkg/logger"
	"github.com/smysle/sakura-raffle-go/pkg/utils"
)

// Notifier 向用户推送支付与预留状态
type Notifier interface {
	PaymentSettled(ctx context.Context, tg int64, result *SettleResult)
	PaymentFailed(ctx context.Context, tg int64, status models.PaymentStatus, released *CancelResult)
	PaymentTimedOut(ctx context.Context, tg int64, released *CancelResult)
	HoldExpired(ctx context.Context, tg int64, released int64)
}

// PaymentWatcher 每个用户一个支付轮询与一个预留计时器，新任务替换旧任务。
// 只负责提醒，过期与结算的权威状态始终由数据库中的定时清理得出。
type PaymentWatcher struct {
	payments     *PaymentService
	reservations *ReservationService
	tasks        *utils.TaskRegistry
	notifier     Notifier
	opts         options
}

// NewPaymentWatcher 创建支付轮询器
func NewPaymentWatcher(payments *PaymentService, reservations *ReservationService, tasks *utils.TaskRegistry, notifier Notifier, opts ...Option) *PaymentWatcher {
	return &PaymentWatcher{
		payments:     payments,
		reservations: reservations,
		tasks:        tasks,
		notifier:     notifier,
		opts:         newOptions(opts),
	}
}

func paymentKey(tg int64) string { return fmt.Sprintf("payment:%d", tg) }
func holdKey(tg int64) string    { return fmt.Sprintf("hold:%d", tg) }

// WatchPayment 轮询支付状态，超时后取消用户的全部预留
func (w *PaymentWatcher) WatchPayment(tg int64, ref string) {
	w.tasks.Cancel(holdKey(tg))
	w.tasks.Start(paymentKey(tg), func(ctx context.Context) {
		w.pollLoop(ctx, tg, ref)
	})
}

func (w *PaymentWatcher) pollLoop(ctx context.Context, tg int64, ref string) {
	ticker := time.NewTicker(w.opts.pollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(w.opts.pollTimeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			released, err := w.reservations.CancelAll(ctx, tg)
			if err != nil {
				logger.Error().Err(err).Int64("tg", tg).Str("payment_id", ref).Msg("支付超时后取消预留失败")
				return
			}
			logger.Info().Int64("tg", tg).Str("payment_id", ref).Int64("released", released.Released).Msg("支付超时，已取消预留")
			w.notifier.PaymentTimedOut(ctx, tg, released)
			return
		case <-ticker.C:
			result, err := w.payments.Poll(ctx, ref)
			if err != nil {
				if errors.Is(err, ErrPaymentNotFound) || errors.Is(err, ErrConcurrentModification) {
					logger.Warn().Err(err).Int64("tg", tg).Str("payment_id", ref).Msg("停止支付轮询")
					return
				}
				logger.Warn().Err(err).Int64("tg", tg).Str("payment_id", ref).Msg("查询支付状态失败")
				continue
			}
			switch {
			case result.Settled:
				w.notifier.PaymentSettled(ctx, tg, result)
				return
			case result.Status == models.PaymentCanceled || result.Status == models.PaymentFailed:
				released, err := w.reservations.CancelAll(ctx, tg)
				if err != nil {
					logger.Error().Err(err).Int64("tg", tg).Msg("支付失败后取消预留失败")
					return
				}
				w.notifier.PaymentFailed(ctx, tg, result.Status, released)
				return
			}
		}
	}
}

// WatchHold 预留到期时释放并提醒用户
func (w *PaymentWatcher) WatchHold(tg int64, until time.Time) {
	w.tasks.Start(holdKey(tg), func(ctx context.Context) {
		// 过期条件是 reserved_until < now，必须等到时钟越过 until
		for {
			wait := until.Sub(w.opts.now())
			if wait < 0 {
				break
			}
			timer := time.NewTimer(wait + time.Millisecond)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}

		released, err := w.reservations.ReleaseExpiredForUser(ctx, tg, w.opts.now())
		if err != nil {
			logger.Warn().Err(err).Int64("tg", tg).Msg("释放过期预留失败")
			return
		}
		if released > 0 {
			w.notifier.HoldExpired(ctx, tg, released)
		}
	})
}

// Stop 取消用户的所有后台任务
func (w *PaymentWatcher) Stop(tg int64) {
	w.tasks.Cancel(paymentKey(tg))
	w.tasks.Cancel(holdKey(tg))
}
