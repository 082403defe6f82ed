package repository

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smysle/sakura-raffle-go/internal/database/models"
	"github.com/smysle/sakura-raffle-go/internal/database/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentRepository_CreateIsUniquePerRef(t *testing.T) {
	db := testdb.New(t)
	prize := seedPrize(t, db, 3)
	alice := seedUser(t, db, 1)
	repo := NewPaymentRepository(db)

	ticket, err := NewTicketRepository(db).Get(prize.ID, 2)
	require.NoError(t, err)

	payment := &models.Payment{
		Ref: "pay-1", UserID: alice.ID, PrizeID: prize.ID,
		Amount: decimal.NewFromInt(100), IsSuccessful: true,
		Tickets: []models.Ticket{*ticket},
	}
	require.NoError(t, repo.Create(payment))

	dup := &models.Payment{Ref: "pay-1", UserID: alice.ID, PrizeID: prize.ID, Amount: decimal.NewFromInt(100)}
	err = repo.Create(dup)
	require.Error(t, err)
	assert.True(t, IsDuplicateKey(err))

	got, err := repo.GetByRef("pay-1")
	require.NoError(t, err)
	assert.Equal(t, []int{2}, got.TicketNumbers())
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(100)))
}

func TestPaymentRepository_BatchStatus(t *testing.T) {
	db := testdb.New(t)
	prize := seedPrize(t, db, 3)
	alice := seedUser(t, db, 1)
	repo := NewPaymentRepository(db)

	batch := &models.PaymentBatch{
		Ref: "pay-2", UserID: alice.ID, PrizeID: prize.ID,
		Amount: decimal.NewFromInt(200), Currency: "RUB",
		Status: models.PaymentPending, ExpiresAt: baseTime.Add(10 * time.Minute),
	}
	require.NoError(t, repo.CreateBatch(batch))

	settled := baseTime
	require.NoError(t, repo.UpdateBatchStatus("pay-2", models.PaymentSucceeded, &settled))
	require.NoError(t, repo.UpdateBatchStatus("pay-2", models.PaymentCanceled, nil))

	got, err := repo.GetBatch("pay-2")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSucceeded, got.Status, "成功状态不会被覆盖")
	require.NotNil(t, got.SettledAt)

	latest, err := repo.LatestBatch(alice.ID, prize.ID)
	require.NoError(t, err)
	assert.Equal(t, "pay-2", latest.Ref)
}

func TestUserRepository_Upsert(t *testing.T) {
	db := testdb.New(t)
	repo := NewUserRepository(db)

	first, err := repo.Upsert(42, "旧名字", "old")
	require.NoError(t, err)
	second, err := repo.Upsert(42, "新名字", "new")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "新名字", second.FullName)
	assert.Equal(t, "new", second.Username)
}
