package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smysle/sakura-raffle-go/internal/database/models"
	"github.com/smysle/sakura-raffle-go/internal/database/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reserveAndInitiate 预留号码并发起支付
func (f *fixture) reserveAndInitiate(t *testing.T, prize *models.Prize, user Requester, numbers ...int) *InitiateResult {
	t.Helper()
	ctx := context.Background()
	_, err := f.reservations.Reserve(ctx, ReserveRequest{PrizeID: prize.ID, User: user, Numbers: numbers})
	require.NoError(t, err)
	result, err := f.payments.Initiate(ctx, user.TelegramID, "raffle_bot")
	require.NoError(t, err)
	return result
}

func TestInitiate_ExtendsHoldAndRecordsBatch(t *testing.T) {
	f := newFixture(t)
	prize := f.activePrize(t, 100, 10)

	result := f.reserveAndInitiate(t, prize, alice, 1, 2)
	assert.Equal(t, "pay-1", result.Ref)
	assert.Equal(t, "200", result.Amount.String())
	assert.Equal(t, []int{1, 2}, result.Numbers)
	assert.True(t, result.ExpiresAt.Equal(baseTime.Add(10*time.Minute)))

	require.Len(t, f.gateway.requests, 1)
	req := f.gateway.requests[0]
	assert.Equal(t, "RUB", req.Currency)
	assert.Equal(t, "https://t.me/raffle_bot", req.ReturnURL)
	assert.Equal(t, "1001", req.Metadata["user_id"])
	assert.NotEmpty(t, req.IdempotencyKey)

	for _, n := range []int{1, 2} {
		ticket := f.ticket(t, prize.ID, n)
		assert.Equal(t, models.TicketHeld, ticket.State())
		require.NotNil(t, ticket.PaymentRef)
		assert.Equal(t, "pay-1", *ticket.PaymentRef)
		assert.True(t, ticket.ReservedUntil.Equal(result.ExpiresAt))
	}

	batch, err := repository.NewPaymentRepository(f.db).GetBatch("pay-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, batch.Status)
	assert.Len(t, batch.Tickets, 2)
}

func TestInitiate_Errors(t *testing.T) {
	t.Run("没有预留", func(t *testing.T) {
		f := newFixture(t)
		f.activePrize(t, 100, 10)
		_, err := f.payments.Initiate(context.Background(), alice.TelegramID, "raffle_bot")
		assert.ErrorIs(t, err, ErrNoHeldTickets)
	})

	t.Run("没有激活的奖品", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.users.Ensure(context.Background(), alice)
		require.NoError(t, err)
		_, err = f.payments.Initiate(context.Background(), alice.TelegramID, "raffle_bot")
		assert.ErrorIs(t, err, ErrNoActivePrize)
	})

	t.Run("网关失败时预留不变", func(t *testing.T) {
		f := newFixture(t)
		prize := f.activePrize(t, 100, 10)
		_, err := f.reservations.Reserve(context.Background(), ReserveRequest{PrizeID: prize.ID, User: alice, Numbers: []int{3}})
		require.NoError(t, err)
		before := f.ticket(t, prize.ID, 3)

		f.gateway.createErr = errors.New("connection refused")
		_, err = f.payments.Initiate(context.Background(), alice.TelegramID, "raffle_bot")
		assert.ErrorIs(t, err, ErrGatewayUnavailable)
		assert.Equal(t, KindExternal, ErrorKind(err))

		after := f.ticket(t, prize.ID, 3)
		assert.Equal(t, models.TicketHeld, after.State())
		assert.Nil(t, after.PaymentRef)
		assert.True(t, before.ReservedUntil.Equal(*after.ReservedUntil))
	})
}

func TestInitiate_ReusesPendingBatch(t *testing.T) {
	f := newFixture(t)
	prize := f.activePrize(t, 100, 10)
	ctx := context.Background()
	first := f.reserveAndInitiate(t, prize, alice, 1, 2)

	// 重复点击支付
	again, err := f.payments.Initiate(ctx, alice.TelegramID, "raffle_bot")
	require.NoError(t, err)
	assert.Equal(t, first.Ref, again.Ref)
	assert.Equal(t, first.ConfirmationURL, again.ConfirmationURL)
	assert.True(t, again.ExpiresAt.Equal(first.ExpiresAt))
	assert.Len(t, f.gateway.requests, 1, "不会重复创建网关支付")

	tests := []struct {
		name    string
		prepare func(t *testing.T)
		wantRef string
	}{
		{"追加号码后重新发起", func(t *testing.T) {
			_, err := f.reservations.Reserve(ctx, ReserveRequest{PrizeID: prize.ID, User: alice, Numbers: []int{3}})
			require.NoError(t, err)
		}, "pay-2"},
		{"支付期限已过", func(t *testing.T) {
			f.now = f.now.Add(11 * time.Minute)
		}, "pay-3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.prepare(t)
			result, err := f.payments.Initiate(ctx, alice.TelegramID, "raffle_bot")
			require.NoError(t, err)
			assert.Equal(t, tt.wantRef, result.Ref)
		})
	}
}

func TestSettle_Succeeded(t *testing.T) {
	f := newFixture(t)
	prize := f.activePrize(t, 100, 10)
	initiated := f.reserveAndInitiate(t, prize, alice, 4, 5)

	result, err := f.payments.Settle(context.Background(), initiated.Ref, models.PaymentSucceeded)
	require.NoError(t, err)
	assert.True(t, result.Settled)
	assert.False(t, result.AlreadySettled)
	assert.Equal(t, alice.TelegramID, result.TelegramID)
	assert.Equal(t, []int{4, 5}, result.Numbers)
	assert.Equal(t, "200", result.Amount.String())

	for _, n := range []int{4, 5} {
		assert.Equal(t, models.TicketPaid, f.ticket(t, prize.ID, n).State())
	}
	payment, err := repository.NewPaymentRepository(f.db).GetByRef(initiated.Ref)
	require.NoError(t, err)
	assert.True(t, payment.IsSuccessful)
	assert.Equal(t, []int{4, 5}, payment.TicketNumbers())

	batch, err := repository.NewPaymentRepository(f.db).GetBatch(initiated.Ref)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSucceeded, batch.Status)
	assert.NotNil(t, batch.SettledAt)
	f.assertTicketInvariants(t)
}

func TestSettle_Twice(t *testing.T) {
	f := newFixture(t)
	prize := f.activePrize(t, 100, 10)
	initiated := f.reserveAndInitiate(t, prize, alice, 1)
	ctx := context.Background()

	first, err := f.payments.Settle(ctx, initiated.Ref, models.PaymentSucceeded)
	require.NoError(t, err)
	second, err := f.payments.Settle(ctx, initiated.Ref, models.PaymentSucceeded)
	require.NoError(t, err)

	assert.False(t, first.AlreadySettled)
	assert.True(t, second.AlreadySettled)
	assert.True(t, second.Settled)
	assert.Equal(t, first.Numbers, second.Numbers)
	assert.Equal(t, alice.TelegramID, second.TelegramID)
	assert.EqualValues(t, 1, f.countPayments(t))
}

func TestSettle_ConcurrentCallers(t *testing.T) {
	f := newFixture(t)
	prize := f.activePrize(t, 100, 10)
	initiated := f.reserveAndInitiate(t, prize, alice, 1, 2, 3)

	const callers = 5
	var wg sync.WaitGroup
	results := make([]*SettleResult, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.payments.Settle(context.Background(), initiated.Ref, models.PaymentSucceeded)
		}(i)
	}
	wg.Wait()

	fresh := 0
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.True(t, results[i].Settled)
		if !results[i].AlreadySettled {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh)
	assert.EqualValues(t, 1, f.countPayments(t))
	f.assertTicketInvariants(t)
}

func TestSettle_CanceledKeepsHold(t *testing.T) {
	f := newFixture(t)
	prize := f.activePrize(t, 100, 10)
	initiated := f.reserveAndInitiate(t, prize, alice, 6)

	result, err := f.payments.Settle(context.Background(), initiated.Ref, models.PaymentCanceled)
	require.NoError(t, err)
	assert.False(t, result.Settled)
	assert.Equal(t, models.PaymentCanceled, result.Status)

	assert.Equal(t, models.TicketHeld, f.ticket(t, prize.ID, 6).State(), "失败的支付不释放预留，由过期清理回收")
	assert.Zero(t, f.countPayments(t))

	batch, err := repository.NewPaymentRepository(f.db).GetBatch(initiated.Ref)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCanceled, batch.Status)
}

func TestSettle_UnknownRef(t *testing.T) {
	f := newFixture(t)
	f.activePrize(t, 100, 10)

	_, err := f.payments.Settle(context.Background(), "missing", models.PaymentSucceeded)
	assert.ErrorIs(t, err, ErrPaymentNotFound)
	assert.Equal(t, KindIntegrity, ErrorKind(err))
}

func TestSettle_WinsOverExpiry(t *testing.T) {
	f := newFixture(t)
	prize := f.activePrize(t, 100, 10)
	initiated := f.reserveAndInitiate(t, prize, alice, 7)
	ctx := context.Background()

	_, err := f.payments.Settle(ctx, initiated.Ref, models.PaymentSucceeded)
	require.NoError(t, err)

	released, err := f.reservations.ReleaseExpired(ctx, baseTime.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, released)
	assert.Equal(t, models.TicketPaid, f.ticket(t, prize.ID, 7).State())
}

func TestSettle_AfterHoldReleasedFails(t *testing.T) {
	f := newFixture(t)
	prize := f.activePrize(t, 100, 10)
	initiated := f.reserveAndInitiate(t, prize, alice, 8)
	ctx := context.Background()

	_, err := f.reservations.ReleaseExpired(ctx, baseTime.Add(time.Hour))
	require.NoError(t, err)

	_, err = f.payments.Settle(ctx, initiated.Ref, models.PaymentSucceeded)
	assert.ErrorIs(t, err, ErrConcurrentModification)
	assert.Zero(t, f.countPayments(t))
	assert.Equal(t, models.TicketFree, f.ticket(t, prize.ID, 8).State())
}

func TestSettle_FreeRefIsAlreadySettled(t *testing.T) {
	f := newFixture(t)
	prize := f.activePrize(t, 0, 10)
	reserved, err := f.reservations.Reserve(context.Background(), ReserveRequest{PrizeID: prize.ID, User: alice, Numbers: []int{2}})
	require.NoError(t, err)

	result, err := f.payments.Settle(context.Background(), reserved.PaymentRef, models.PaymentSucceeded)
	require.NoError(t, err)
	assert.True(t, result.AlreadySettled)
	assert.Equal(t, []int{2}, result.Numbers)
	assert.Zero(t, f.countPayments(t))
}

func TestPoll(t *testing.T) {
	f := newFixture(t)
	prize := f.activePrize(t, 100, 10)
	initiated := f.reserveAndInitiate(t, prize, alice, 1)
	ctx := context.Background()

	result, err := f.payments.Poll(ctx, initiated.Ref)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, result.Status)
	assert.False(t, result.Settled)

	f.gateway.setStatus(initiated.Ref, models.PaymentSucceeded)
	result, err = f.payments.Poll(ctx, initiated.Ref)
	require.NoError(t, err)
	assert.True(t, result.Settled)

	f.gateway.statusErr = errors.New("timeout")
	_, err = f.payments.Poll(ctx, initiated.Ref)
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestDescribe(t *testing.T) {
	f := newFixture(t)
	prize := f.activePrize(t, 100, 10)
	initiated := f.reserveAndInitiate(t, prize, alice, 3, 9)
	ctx := context.Background()

	info, err := f.payments.Describe(ctx, initiated.Ref)
	require.NoError(t, err)
	assert.False(t, info.Settled)
	assert.Equal(t, models.PaymentPending, info.Status)
	assert.Equal(t, []int{3, 9}, info.Numbers)
	assert.Equal(t, "Alice", info.UserName)
	assert.Equal(t, prize.Title, info.PrizeTitle)

	_, err = f.payments.Settle(ctx, initiated.Ref, models.PaymentSucceeded)
	require.NoError(t, err)
	info, err = f.payments.Describe(ctx, initiated.Ref)
	require.NoError(t, err)
	assert.True(t, info.Settled)
	assert.Equal(t, "200", info.Amount.String())

	_, err = f.payments.Describe(ctx, "missing")
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestSettle_SecondPaymentForSameHold(t *testing.T) {
	f := newFixture(t)
	prize := f.activePrize(t, 100, 10)
	ctx := context.Background()
	first := f.reserveAndInitiate(t, prize, alice, 1, 2)

	// 第一笔支付过期后重新发起，同一批预留对应两笔网关支付
	f.now = f.now.Add(11 * time.Minute)
	second, err := f.payments.Initiate(ctx, alice.TelegramID, "raffle_bot")
	require.NoError(t, err)
	require.NotEqual(t, first.Ref, second.Ref)

	settled, err := f.payments.Settle(ctx, first.Ref, models.PaymentSucceeded)
	require.NoError(t, err)
	assert.True(t, settled.Settled)
	assert.Equal(t, []int{1, 2}, settled.Numbers)
	ticket := f.ticket(t, prize.ID, 1)
	require.NotNil(t, ticket.PaymentRef)
	assert.Equal(t, first.Ref, *ticket.PaymentRef, "彩票指向实际入账的支付")

	_, err = f.payments.Settle(ctx, second.Ref, models.PaymentSucceeded)
	assert.ErrorIs(t, err, ErrRefundRequired)
	assert.ErrorIs(t, err, ErrConcurrentModification)
	assert.Equal(t, KindIntegrity, ErrorKind(err))
	assert.EqualValues(t, 1, f.countPayments(t))

	repo := repository.NewPaymentRepository(f.db)
	batch, err := repo.GetBatch(second.Ref)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefundRequired, batch.Status)

	info, err := f.payments.Describe(ctx, second.Ref)
	require.NoError(t, err)
	assert.False(t, info.Settled)
	assert.Equal(t, models.PaymentRefundRequired, info.Status)

	// 重复回调结果不变
	_, err = f.payments.Settle(ctx, second.Ref, models.PaymentSucceeded)
	assert.ErrorIs(t, err, ErrRefundRequired)
	assert.EqualValues(t, 1, f.countPayments(t))
	f.assertTicketInvariants(t)
}

func TestSettle_StalePaymentDoesNotCoverNewNumbers(t *testing.T) {
	f := newFixture(t)
	prize := f.activePrize(t, 100, 10)
	ctx := context.Background()
	first := f.reserveAndInitiate(t, prize, alice, 1, 2)

	_, err := f.reservations.Reserve(ctx, ReserveRequest{PrizeID: prize.ID, User: alice, Numbers: []int{3}})
	require.NoError(t, err)
	second, err := f.payments.Initiate(ctx, alice.TelegramID, "raffle_bot")
	require.NoError(t, err)
	assert.Equal(t, "300", second.Amount.String())

	// 旧链接只付了两张的钱
	_, err = f.payments.Settle(ctx, first.Ref, models.PaymentSucceeded)
	assert.ErrorIs(t, err, ErrRefundRequired)
	for _, n := range []int{1, 2, 3} {
		assert.Equal(t, models.TicketHeld, f.ticket(t, prize.ID, n).State())
	}

	result, err := f.payments.Settle(ctx, second.Ref, models.PaymentSucceeded)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, result.Numbers)
	assert.Equal(t, "300", result.Amount.String())
	f.assertTicketInvariants(t)
}
