// Package service 彩票预留服务
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/smysle/sakura-raffle-go/internal/database/models"
	"github.com/smysle/sakura-raffle-go/internal/database/repository"
	"github.com/smysle/sakura-raffle-go/pkg/logger"
	"github.com/smysle/sakura-raffle-go/pkg/utils"
	"gorm.io/gorm"
)

// ReservationService 预留服务
type ReservationService struct {
	db      *gorm.DB
	tickets *repository.TicketRepository
	prizes  *repository.PrizeRepository
	users   *repository.UserRepository
	opts    options
}

// NewReservationService 创建预留服务
func NewReservationService(db *gorm.DB, opts ...Option) *ReservationService {
	return &ReservationService{
		db:      db,
		tickets: repository.NewTicketRepository(db),
		prizes:  repository.NewPrizeRepository(db),
		users:   repository.NewUserRepository(db),
		opts:    newOptions(opts),
	}
}

// ReserveRequest 预留请求
type ReserveRequest struct {
	PrizeID      uint
	User         Requester
	Numbers      []int
	HoldDuration time.Duration // 为 0 时使用默认预留时长
}

// ReserveResult 预留结果
type ReserveResult struct {
	PrizeID       uint
	PrizeTitle    string
	Numbers       []int
	ReservedUntil *time.Time // 免费奖品为 nil
	Free          bool
	PaymentRef    string // 免费奖品的合成引用
	Total         decimal.Decimal
}

// CancelResult 取消结果，Released 为 0 表示没有可释放的预留
type CancelResult struct {
	Released int64
	Numbers  map[uint][]int // prize_id -> 号码
}

// MyTicketsResult 用户在某奖品下的彩票
type MyTicketsResult struct {
	Held          []int
	Paid          []int
	ReservedUntil *time.Time
}

// Reserve 预留彩票，要么全部成功，要么全部不变
func (s *ReservationService) Reserve(ctx context.Context, req ReserveRequest) (*ReserveResult, error) {
	if len(req.Numbers) == 0 {
		return nil, ErrInvalidTicketNumbers
	}
	numbers := utils.NormalizeNumbers(req.Numbers)
	if len(numbers) > s.opts.maxTickets {
		return nil, fmt.Errorf("%w: 一次最多选择 %d 张", ErrInvalidTicketNumbers, s.opts.maxTickets)
	}
	hold := req.HoldDuration
	if hold <= 0 {
		hold = s.opts.holdDuration
	}
	now := s.opts.now()

	var result *ReserveResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		prize, err := s.prizes.WithTx(tx).Get(req.PrizeID)
		if err != nil {
			if repository.IsNotFound(err) {
				return ErrPrizeNotFound
			}
			return err
		}
		if !prize.IsOpen(now) {
			return ErrPrizeInactive
		}
		if err := validateRange(prize, numbers); err != nil {
			return err
		}
		if prize.IsFree() && len(numbers) != 1 {
			return ErrFreePrizeSingleTicket
		}

		user, err := ensureUser(s.users.WithTx(tx), req.User)
		if err != nil {
			return err
		}
		tickets := s.tickets.WithTx(tx)
		if err := tickets.EnsureRange(prize.ID, numbers); err != nil {
			return err
		}

		if prize.IsFree() {
			result, err = s.reserveFree(tx, prize, user, numbers[0])
			return err
		}

		until := now.Add(hold)
		var conflicts []int
		for _, n := range numbers {
			ok, err := tickets.TryHold(prize.ID, n, user.ID, until)
			if err != nil {
				return err
			}
			if !ok {
				conflicts = append(conflicts, n)
			}
		}
		if len(conflicts) > 0 {
			return &TicketsUnavailableError{Numbers: conflicts}
		}

		result = &ReserveResult{
			PrizeID:       prize.ID,
			PrizeTitle:    prize.Title,
			Numbers:       numbers,
			ReservedUntil: &until,
			Total:         prize.TicketPrice.Mul(decimal.NewFromInt(int64(len(numbers)))),
		}
		return nil
	})
	if err != nil {
		logReserveError(req, err)
		return nil, err
	}

	logger.Info().
		Int64("tg", req.User.TelegramID).
		Uint("prize_id", result.PrizeID).
		Ints("numbers", result.Numbers).
		Bool("free", result.Free).
		Msg("彩票预留成功")
	return result, nil
}

// reserveFree 免费奖品每人限一张，直接记为已支付
func (s *ReservationService) reserveFree(tx *gorm.DB, prize *models.Prize, user *models.TelegramUser, number int) (*ReserveResult, error) {
	// 锁住用户行，串行化同一用户的并发免费请求
	if _, err := s.users.WithTx(tx).LockByID(user.ID); err != nil {
		return nil, err
	}
	tickets := s.tickets.WithTx(tx)
	paid, err := tickets.CountPaidByUser(user.ID, prize.ID)
	if err != nil {
		return nil, err
	}
	if paid > 0 {
		return nil, ErrAlreadyParticipated
	}

	ref := fmt.Sprintf("free_%d_%d_%s", user.TelegramID, prize.ID, uuid.NewString())
	ok, err := tickets.MarkFreePaid(prize.ID, number, user.ID, ref)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &TicketsUnavailableError{Numbers: []int{number}}
	}
	return &ReserveResult{
		PrizeID:    prize.ID,
		PrizeTitle: prize.Title,
		Numbers:    []int{number},
		Free:       true,
		PaymentRef: ref,
		Total:      decimal.Zero,
	}, nil
}

// ReserveText 解析用户输入的号码后预留
func (s *ReservationService) ReserveText(ctx context.Context, prizeID uint, user Requester, text string) (*ReserveResult, error) {
	prize, err := s.prizes.WithTx(s.db.WithContext(ctx)).Get(prizeID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrPrizeNotFound
		}
		return nil, err
	}
	numbers, err := utils.ParseTicketNumbers(text, prize.TicketCount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTicketNumbers, err)
	}
	return s.Reserve(ctx, ReserveRequest{PrizeID: prizeID, User: user, Numbers: numbers})
}

// CancelAll 释放用户在所有奖品下未支付的预留，可重复调用
func (s *ReservationService) CancelAll(ctx context.Context, tg int64) (*CancelResult, error) {
	result := &CancelResult{Numbers: make(map[uint][]int)}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.users.WithTx(tx).GetByTG(tg)
		if err != nil {
			if repository.IsNotFound(err) {
				return nil
			}
			return err
		}
		tickets := s.tickets.WithTx(tx)
		held, err := tickets.HeldByUserAll(user.ID)
		if err != nil {
			return err
		}
		if len(held) == 0 {
			return nil
		}

		ids := make([]uint, 0, len(held))
		for _, t := range held {
			ids = append(ids, t.ID)
			result.Numbers[t.PrizeID] = append(result.Numbers[t.PrizeID], t.TicketNumber)
		}
		released, err := tickets.ReleaseHeld(ids, user.ID)
		if err != nil {
			return err
		}
		result.Released = released
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Released > 0 {
		logger.Info().Int64("tg", tg).Int64("released", result.Released).Msg("用户取消预留")
	}
	return result, nil
}

// ReleaseExpired 释放所有已过期的预留，返回释放数量
func (s *ReservationService) ReleaseExpired(ctx context.Context, now time.Time) (int64, error) {
	released, err := s.tickets.WithTx(s.db.WithContext(ctx)).ReleaseExpired(now.UTC())
	if err != nil {
		return 0, fmt.Errorf("释放过期预留失败: %w", err)
	}
	if released > 0 {
		logger.Info().Int64("released", released).Msg("已释放过期预留")
	}
	return released, nil
}

// ReleaseExpiredForUser 释放某用户已过期的预留
func (s *ReservationService) ReleaseExpiredForUser(ctx context.Context, tg int64, now time.Time) (int64, error) {
	db := s.db.WithContext(ctx)
	user, err := s.users.WithTx(db).GetByTG(tg)
	if err != nil {
		if repository.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	return s.tickets.WithTx(db).ReleaseExpiredForUser(user.ID, now.UTC())
}

// AvailableNumbers 当前可购买的号码，每次都从数据库读取
func (s *ReservationService) AvailableNumbers(ctx context.Context, prizeID uint) ([]int, error) {
	db := s.db.WithContext(ctx)
	prize, err := s.prizes.WithTx(db).Get(prizeID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrPrizeNotFound
		}
		return nil, err
	}
	return s.tickets.WithTx(db).AvailableNumbers(prize.ID, prize.TicketCount)
}

// MyTickets 用户在某奖品下预留中和已支付的号码
func (s *ReservationService) MyTickets(ctx context.Context, tg int64, prizeID uint) (*MyTicketsResult, error) {
	db := s.db.WithContext(ctx)
	result := &MyTicketsResult{}
	user, err := s.users.WithTx(db).GetByTG(tg)
	if err != nil {
		if repository.IsNotFound(err) {
			return result, nil
		}
		return nil, err
	}

	tickets := s.tickets.WithTx(db)
	held, err := tickets.HeldByUser(user.ID, prizeID)
	if err != nil {
		return nil, err
	}
	for _, t := range held {
		result.Held = append(result.Held, t.TicketNumber)
		if t.ReservedUntil != nil && (result.ReservedUntil == nil || t.ReservedUntil.Before(*result.ReservedUntil)) {
			until := *t.ReservedUntil
			result.ReservedUntil = &until
		}
	}
	paid, err := tickets.PaidByUser(user.ID, prizeID)
	if err != nil {
		return nil, err
	}
	for _, t := range paid {
		result.Paid = append(result.Paid, t.TicketNumber)
	}
	return result, nil
}

// validateRange 号码必须在 1..ticket_count 内
func validateRange(prize *models.Prize, numbers []int) error {
	var invalid []int
	for _, n := range numbers {
		if !prize.ValidNumber(n) {
			invalid = append(invalid, n)
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("%w: %s 不在 1-%d 范围内", ErrInvalidTicketNumbers, utils.FormatTicketNumbers(invalid), prize.TicketCount)
	}
	return nil
}

func logReserveError(req ReserveRequest, err error) {
	event := logger.Debug()
	switch ErrorKind(err) {
	case KindValidation, KindConflict:
	default:
		event = logger.Error()
	}
	var unavailable *TicketsUnavailableError
	if errors.As(err, &unavailable) {
		event = event.Ints("conflicts", unavailable.Numbers)
	}
	event.Err(err).
		Int64("tg", req.User.TelegramID).
		Uint("prize_id", req.PrizeID).
		Ints("numbers", req.Numbers).
		Msg("彩票预留失败")
}
