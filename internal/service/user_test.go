package service

import (
	"context"
	"testing"

	"github.com/smysle/sakura-raffle-go/internal/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserEnsure_RefreshesProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.users.Ensure(ctx, Requester{TelegramID: 42, FullName: "Old Name"})
	require.NoError(t, err)
	again, err := f.users.Ensure(ctx, Requester{TelegramID: 42, FullName: "Old Name"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	renamed, err := f.users.Ensure(ctx, Requester{TelegramID: 42, FullName: "New Name", Username: "newname"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, renamed.ID)
	assert.Equal(t, "New Name", renamed.FullName)
	assert.Equal(t, "newname", renamed.Username)
}

func TestUserDelete(t *testing.T) {
	t.Run("释放预留后删除", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		prize := f.activePrize(t, 100, 10)
		_, err := f.reservations.Reserve(ctx, ReserveRequest{PrizeID: prize.ID, User: alice, Numbers: []int{1, 2}})
		require.NoError(t, err)

		require.NoError(t, f.users.Delete(ctx, alice.TelegramID))
		_, err = f.users.Get(ctx, alice.TelegramID)
		assert.ErrorIs(t, err, ErrUserNotFound)
		assert.Equal(t, models.TicketFree, f.ticket(t, prize.ID, 1).State())
		f.assertTicketInvariants(t)
	})

	t.Run("持有已支付彩票时拒绝", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		prize := f.activePrize(t, 100, 10)
		initiated := f.reserveAndInitiate(t, prize, alice, 3)
		_, err := f.payments.Settle(ctx, initiated.Ref, models.PaymentSucceeded)
		require.NoError(t, err)

		assert.ErrorIs(t, f.users.Delete(ctx, alice.TelegramID), ErrUserHasPaidTickets)
		assert.Equal(t, models.TicketPaid, f.ticket(t, prize.ID, 3).State())
	})

	t.Run("用户不存在", func(t *testing.T) {
		f := newFixture(t)
		assert.ErrorIs(t, f.users.Delete(context.Background(), 777), ErrUserNotFound)
	})
}

func TestUserSetAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.users.SetAdmin(ctx, alice.TelegramID, true), ErrUserNotFound)

	_, err := f.users.Ensure(ctx, alice)
	require.NoError(t, err)
	_, err = f.users.Ensure(ctx, bob)
	require.NoError(t, err)
	require.NoError(t, f.users.SetAdmin(ctx, alice.TelegramID, true))

	ids, err := f.users.AdminIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{alice.TelegramID}, ids)

	require.NoError(t, f.users.SetAdmin(ctx, alice.TelegramID, false))
	ids, err = f.users.AdminIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
