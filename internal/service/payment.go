// Package service 支付结算服务
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/smysle/sakura-raffle-go/internal/database/models"
	"github.com/smysle/sakura-raffle-go/internal/database/repository"
	"github.com/smysle/sakura-raffle-go/internal/yookassa"
	"github.com/smysle/sakura-raffle-go/pkg/logger"
	"github.com/smysle/sakura-raffle-go/pkg/utils"
	"gorm.io/gorm"
)

// Gateway 支付网关
type Gateway interface {
	CreatePayment(ctx context.Context, req yookassa.CreatePaymentRequest) (*yookassa.Payment, error)
	GetPaymentStatus(ctx context.Context, ref string) (*yookassa.Payment, error)
}

// errSettledElsewhere 其他调用方已完成结算
var errSettledElsewhere = errors.New("支付已由其他请求结算")

// PaymentService 支付结算服务
type PaymentService struct {
	db       *gorm.DB
	gateway  Gateway
	tickets  *repository.TicketRepository
	prizes   *repository.PrizeRepository
	users    *repository.UserRepository
	payments *repository.PaymentRepository
	opts     options
}

// NewPaymentService 创建支付服务
func NewPaymentService(db *gorm.DB, gateway Gateway, opts ...Option) *PaymentService {
	return &PaymentService{
		db:       db,
		gateway:  gateway,
		tickets:  repository.NewTicketRepository(db),
		prizes:   repository.NewPrizeRepository(db),
		users:    repository.NewUserRepository(db),
		payments: repository.NewPaymentRepository(db),
		opts:     newOptions(opts),
	}
}

// InitiateResult 发起支付结果
type InitiateResult struct {
	Ref             string
	ConfirmationURL string
	PrizeID         uint
	PrizeTitle      string
	Numbers         []int
	Amount          decimal.Decimal
	Currency        string
	ExpiresAt       time.Time
}

// SettleResult 结算结果
type SettleResult struct {
	Ref            string
	Status         models.PaymentStatus
	Settled        bool // 本次或之前已成功结算
	AlreadySettled bool // 之前已结算，本次未做任何修改
	TelegramID     int64
	PrizeID        uint
	Numbers        []int
	Amount         decimal.Decimal
}

// PaymentInfo 支付批次的只读视图
type PaymentInfo struct {
	Ref        string               `json:"ref"`
	Status     models.PaymentStatus `json:"status"`
	Settled    bool                 `json:"settled"`
	TelegramID int64                `json:"tg"`
	UserName   string               `json:"name"`
	PrizeID    uint                 `json:"prize_id"`
	PrizeTitle string               `json:"prize_title"`
	Numbers    []int                `json:"numbers"`
	Amount     decimal.Decimal      `json:"amount"`
	Currency   string               `json:"currency"`
}

// Initiate 为用户当前预留的彩票发起支付
func (s *PaymentService) Initiate(ctx context.Context, tg int64, botUsername string) (*InitiateResult, error) {
	db := s.db.WithContext(ctx)
	user, err := s.users.WithTx(db).GetByTG(tg)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrNoHeldTickets
		}
		return nil, err
	}
	prize, err := s.prizes.WithTx(db).GetActive()
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrNoActivePrize
		}
		return nil, err
	}
	held, err := s.tickets.WithTx(db).HeldByUser(user.ID, prize.ID)
	if err != nil {
		return nil, err
	}
	if len(held) == 0 {
		return nil, ErrNoHeldTickets
	}

	numbers := make([]int, 0, len(held))
	ids := make([]uint, 0, len(held))
	for _, t := range held {
		numbers = append(numbers, t.TicketNumber)
		ids = append(ids, t.ID)
	}
	amount := prize.TicketPrice.Mul(decimal.NewFromInt(int64(len(held))))

	// 同一批预留已有未过期的支付时直接复用，避免重复收款
	if pending, err := s.pendingBatch(db, user.ID, prize.ID, held, amount); err != nil {
		return nil, err
	} else if pending != nil {
		logger.Debug().Str("payment_id", pending.Ref).Int64("tg", tg).Msg("复用进行中的支付")
		return &InitiateResult{
			Ref:             pending.Ref,
			ConfirmationURL: pending.ConfirmationURL,
			PrizeID:         prize.ID,
			PrizeTitle:      prize.Title,
			Numbers:         numbers,
			Amount:          pending.Amount,
			Currency:        pending.Currency,
			ExpiresAt:       pending.ExpiresAt,
		}, nil
	}

	idempotencyKey := uuid.NewString()

	gp, err := s.gateway.CreatePayment(ctx, yookassa.CreatePaymentRequest{
		Amount:      amount,
		Currency:    s.opts.currency,
		Description: fmt.Sprintf("彩票付款 %s，奖品：%s", utils.FormatTicketNumbers(numbers), prize.Title),
		ReturnURL:   "https://t.me/" + botUsername,
		Metadata: map[string]string{
			"user_id":        strconv.FormatInt(tg, 10),
			"prize_id":       strconv.FormatUint(uint64(prize.ID), 10),
			"ticket_numbers": utils.FormatTicketNumbers(numbers),
		},
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		logger.Warn().Err(err).Int64("tg", tg).Uint("prize_id", prize.ID).Msg("创建支付失败")
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if gp.Status == models.PaymentCanceled || gp.Status == models.PaymentFailed {
		logger.Warn().Str("payment_id", gp.ID).Str("status", string(gp.Status)).Msg("网关拒绝了支付")
		return nil, ErrGatewayUnavailable
	}

	expiresAt := s.opts.now().Add(s.opts.paymentWindow)
	err = db.Transaction(func(tx *gorm.DB) error {
		extended, err := s.tickets.WithTx(tx).ExtendHold(ids, user.ID, expiresAt, gp.ID)
		if err != nil {
			return err
		}
		if extended != int64(len(ids)) {
			return ErrConcurrentModification
		}
		return s.payments.WithTx(tx).CreateBatch(&models.PaymentBatch{
			Ref:             gp.ID,
			UserID:          user.ID,
			PrizeID:         prize.ID,
			Amount:          amount,
			Currency:        s.opts.currency,
			Status:          models.PaymentPending,
			ConfirmationURL: gp.ConfirmationURL,
			IdempotencyKey:  idempotencyKey,
			ExpiresAt:       expiresAt,
		})
	})
	if err != nil {
		logger.Error().Err(err).Str("payment_id", gp.ID).Int64("tg", tg).Msg("保存支付批次失败")
		return nil, err
	}

	logger.Info().
		Str("payment_id", gp.ID).
		Int64("tg", tg).
		Uint("prize_id", prize.ID).
		Ints("numbers", numbers).
		Str("amount", amount.StringFixed(2)).
		Msg("已发起支付")

	return &InitiateResult{
		Ref:             gp.ID,
		ConfirmationURL: gp.ConfirmationURL,
		PrizeID:         prize.ID,
		PrizeTitle:      prize.Title,
		Numbers:         numbers,
		Amount:          amount,
		Currency:        s.opts.currency,
		ExpiresAt:       expiresAt,
	}, nil
}

// pendingBatch 找到覆盖当前全部预留且未过期的待支付批次
func (s *PaymentService) pendingBatch(db *gorm.DB, userID, prizeID uint, held []models.Ticket, amount decimal.Decimal) (*models.PaymentBatch, error) {
	batch, err := s.payments.WithTx(db).LatestBatch(userID, prizeID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if batch.Status != models.PaymentPending || !batch.ExpiresAt.After(s.opts.now()) || !batch.Amount.Equal(amount) {
		return nil, nil
	}
	for _, t := range held {
		if t.PaymentRef == nil || *t.PaymentRef != batch.Ref {
			return nil, nil
		}
	}
	return batch, nil
}

// Settle 按网关终态结算支付，同一引用最多成功结算一次
func (s *PaymentService) Settle(ctx context.Context, ref string, status models.PaymentStatus) (*SettleResult, error) {
	db := s.db.WithContext(ctx)
	if existing, err := s.payments.WithTx(db).GetByRef(ref); err == nil {
		return s.settledResult(db, existing)
	} else if !repository.IsNotFound(err) {
		return nil, err
	}

	now := s.opts.now()
	var result *SettleResult
	err := db.Transaction(func(tx *gorm.DB) error {
		payments := s.payments.WithTx(tx)
		if _, err := payments.GetByRef(ref); err == nil {
			return errSettledElsewhere
		} else if !repository.IsNotFound(err) {
			return err
		}
		tickets := s.tickets.WithTx(tx)
		carriers, err := tickets.ByPaymentRef(ref)
		if err != nil {
			return err
		}
		// 批次记录了网关实际收取的金额；免费奖品的合成引用没有批次
		batchRow, err := payments.GetBatch(ref)
		if err != nil && !repository.IsNotFound(err) {
			return err
		}
		hasBatch := err == nil

		var userID, prizeID uint
		switch {
		case len(carriers) > 0 && carriers[0].UserID != nil:
			userID, prizeID = *carriers[0].UserID, carriers[0].PrizeID
		case hasBatch:
			// 彩票已被新的支付批次接管或已释放时，通过批次记录定位用户
			userID, prizeID = batchRow.UserID, batchRow.PrizeID
		default:
			return ErrPaymentNotFound
		}

		user, err := s.users.WithTx(tx).GetByID(userID)
		if err != nil {
			if repository.IsNotFound(err) {
				return ErrUserNotFound
			}
			return err
		}
		result = &SettleResult{Ref: ref, Status: status, TelegramID: user.TelegramID, PrizeID: prizeID}

		if !hasBatch && allPaid(carriers) {
			result.Status = models.PaymentSucceeded
			result.Settled, result.AlreadySettled = true, true
			result.Numbers = ticketNumbers(carriers)
			result.Amount = decimal.Zero
			return nil
		}
		if status != models.PaymentSucceeded {
			if hasBatch {
				return payments.UpdateBatchStatus(ref, status, nil)
			}
			return nil
		}

		// 一次支付结算该用户在该奖品下的整批预留
		var held []models.Ticket
		if !allPaid(carriers) {
			if held, err = tickets.HeldByUser(userID, prizeID); err != nil {
				return err
			}
		}
		prize, err := s.prizes.WithTx(tx).Get(prizeID)
		if err != nil {
			return err
		}
		amount := prize.TicketPrice.Mul(decimal.NewFromInt(int64(len(held))))
		if len(held) == 0 || (hasBatch && !amount.Equal(batchRow.Amount)) {
			result.Numbers = ticketNumbers(held)
			return payments.UpdateBatchStatus(ref, models.PaymentRefundRequired, nil)
		}

		ids := make([]uint, 0, len(held))
		for _, t := range held {
			ids = append(ids, t.ID)
		}
		result.Numbers = ticketNumbers(held)
		payment := &models.Payment{
			Ref:          ref,
			UserID:       userID,
			PrizeID:      prizeID,
			Amount:       amount,
			IsSuccessful: true,
			Tickets:      held,
		}
		if err := payments.Create(payment); err != nil {
			if repository.IsDuplicateKey(err) {
				return errSettledElsewhere
			}
			return err
		}
		paid, err := tickets.MarkPaid(ids, userID, ref)
		if err != nil {
			return err
		}
		if paid != int64(len(ids)) {
			return ErrConcurrentModification
		}
		if err := payments.UpdateBatchStatus(ref, models.PaymentSucceeded, &now); err != nil {
			return err
		}
		result.Settled = true
		result.Amount = amount
		return nil
	})

	switch {
	case errors.Is(err, errSettledElsewhere):
		existing, getErr := s.payments.WithTx(db).GetByRef(ref)
		if getErr != nil {
			return nil, getErr
		}
		return s.settledResult(db, existing)
	case err != nil:
		if ErrorKind(err) == KindIntegrity {
			logger.Error().Err(err).Str("payment_id", ref).Msg("支付结算失败")
		}
		return nil, err
	}

	if result.AlreadySettled {
		logger.Debug().Str("payment_id", ref).Msg("免费参与的合成引用，无需结算")
		return result, nil
	}
	if status == models.PaymentSucceeded && !result.Settled {
		logger.Error().
			Str("payment_id", ref).
			Int64("tg", result.TelegramID).
			Uint("prize_id", result.PrizeID).
			Ints("held", result.Numbers).
			Msg("支付已成功但彩票无法入账，需要人工退款")
		return nil, ErrRefundRequired
	}
	if result.Settled {
		logger.Info().
			Str("payment_id", ref).
			Int64("tg", result.TelegramID).
			Uint("prize_id", result.PrizeID).
			Ints("numbers", result.Numbers).
			Msg("支付结算成功")
	} else {
		logger.Info().Str("payment_id", ref).Str("status", string(status)).Msg("支付未成功，彩票保持预留")
	}
	return result, nil
}

func allPaid(tickets []models.Ticket) bool {
	for _, t := range tickets {
		if !t.IsPaid {
			return false
		}
	}
	return len(tickets) > 0
}

func ticketNumbers(tickets []models.Ticket) []int {
	numbers := make([]int, 0, len(tickets))
	for _, t := range tickets {
		numbers = append(numbers, t.TicketNumber)
	}
	return numbers
}

func (s *PaymentService) settledResult(db *gorm.DB, payment *models.Payment) (*SettleResult, error) {
	result := &SettleResult{
		Ref:            payment.Ref,
		Status:         models.PaymentSucceeded,
		Settled:        true,
		AlreadySettled: true,
		PrizeID:        payment.PrizeID,
		Numbers:        payment.TicketNumbers(),
		Amount:         payment.Amount,
	}
	user, err := s.users.WithTx(db).GetByID(payment.UserID)
	if err == nil {
		result.TelegramID = user.TelegramID
	} else if !repository.IsNotFound(err) {
		return nil, err
	}
	return result, nil
}

// Poll 查询网关状态，终态时结算
func (s *PaymentService) Poll(ctx context.Context, ref string) (*SettleResult, error) {
	gp, err := s.gateway.GetPaymentStatus(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if !gp.Status.IsTerminal() {
		return &SettleResult{Ref: ref, Status: gp.Status}, nil
	}
	return s.Settle(ctx, ref, gp.Status)
}

// Describe 支付详情（已结算或进行中）
func (s *PaymentService) Describe(ctx context.Context, ref string) (*PaymentInfo, error) {
	db := s.db.WithContext(ctx)
	payments := s.payments.WithTx(db)

	var info *PaymentInfo
	var userID uint
	if payment, err := payments.GetByRef(ref); err == nil {
		info = &PaymentInfo{
			Ref:     ref,
			Status:  models.PaymentSucceeded,
			Settled: true,
			PrizeID: payment.PrizeID,
			Numbers: payment.TicketNumbers(),
			Amount:  payment.Amount,
		}
		userID = payment.UserID
	} else if !repository.IsNotFound(err) {
		return nil, err
	}

	if info == nil {
		if batch, err := payments.GetBatch(ref); err == nil {
			info = &PaymentInfo{
				Ref:      ref,
				Status:   batch.Status,
				Settled:  batch.Status == models.PaymentSucceeded,
				PrizeID:  batch.PrizeID,
				Amount:   batch.Amount,
				Currency: batch.Currency,
			}
			for _, t := range batch.Tickets {
				info.Numbers = append(info.Numbers, t.TicketNumber)
			}
			userID = batch.UserID
		} else if !repository.IsNotFound(err) {
			return nil, err
		}
	}

	if info == nil {
		// 免费奖品只有合成引用，没有支付记录
		tickets, err := s.tickets.WithTx(db).ByPaymentRef(ref)
		if err != nil {
			return nil, err
		}
		if len(tickets) == 0 || tickets[0].UserID == nil {
			return nil, ErrPaymentNotFound
		}
		info = &PaymentInfo{
			Ref:     ref,
			Status:  models.PaymentSucceeded,
			Settled: tickets[0].IsPaid,
			PrizeID: tickets[0].PrizeID,
			Amount:  decimal.Zero,
		}
		for _, t := range tickets {
			info.Numbers = append(info.Numbers, t.TicketNumber)
		}
		userID = *tickets[0].UserID
	}

	if info.Currency == "" {
		info.Currency = s.opts.currency
	}
	if user, err := s.users.WithTx(db).GetByID(userID); err == nil {
		info.TelegramID = user.TelegramID
		info.UserName = user.DisplayName()
	}
	if prize, err := s.prizes.WithTx(db).Get(info.PrizeID); err == nil {
		info.PrizeTitle = prize.Title
	}
	return info, nil
}
