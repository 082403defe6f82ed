package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"github.com/smysle/sakura-raffle-go/internal/database/models"
	"github.com/smysle/sakura-raffle-go/internal/database/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestPrizeRepository_ActivateSingleSlot(t *testing.T) {
	db := testdb.New(t)
	first := seedPrize(t, db, 3)
	second := seedPrize(t, db, 3)
	repo := NewPrizeRepository(db)

	ok, err := repo.Activate(first.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = repo.Activate(second.ID)
	require.Error(t, err)
	assert.True(t, IsDuplicateKey(err), "第二个激活应触发唯一索引冲突: %v", err)

	count, err := repo.CountActive()
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	ok, err = repo.Finish(first.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Activate(second.ID)
	require.NoError(t, err)
	assert.True(t, ok, "前一个结束后槽位释放")
}

func TestPrizeRepository_FindOverlapping(t *testing.T) {
	db := testdb.New(t)
	repo := NewPrizeRepository(db)
	existing := &models.Prize{
		Title:       "已有",
		StartDate:   baseTime,
		EndDate:     baseTime.Add(24 * time.Hour),
		TicketPrice: decimal.Zero,
		TicketCount: 1,
		Status:      models.PrizeScheduled,
	}
	require.NoError(t, repo.Create(existing))

	tests := []struct {
		name          string
		start, end    time.Time
		allowAdjacent bool
		overlaps      bool
	}{
		{"部分重叠", baseTime.Add(12 * time.Hour), baseTime.Add(36 * time.Hour), false, true},
		{"完全包含", baseTime.Add(-time.Hour), baseTime.Add(48 * time.Hour), false, true},
		{"不重叠", baseTime.Add(48 * time.Hour), baseTime.Add(72 * time.Hour), false, false},
		{"首尾相接-严格模式", baseTime.Add(24 * time.Hour), baseTime.Add(48 * time.Hour), false, true},
		{"首尾相接-允许相邻", baseTime.Add(24 * time.Hour), baseTime.Add(48 * time.Hour), true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, err := repo.FindOverlapping(tt.start, tt.end, 0, tt.allowAdjacent)
			require.NoError(t, err)
			assert.Equal(t, tt.overlaps, len(found) > 0)
		})
	}

	found, err := repo.FindOverlapping(baseTime, baseTime.Add(time.Hour), existing.ID, false)
	require.NoError(t, err)
	assert.Empty(t, found, "排除自身")
}

func TestPrizeRepository_SetWinnerOnlyOnce(t *testing.T) {
	db := testdb.New(t)
	prize := seedPrize(t, db, 3)
	alice := seedUser(t, db, 1)
	repo := NewPrizeRepository(db)

	ok, err := repo.SetWinner(prize.ID, alice.ID, 1, baseTime)
	require.NoError(t, err)
	assert.False(t, ok, "未激活的奖品不能开奖")

	_, err = repo.Activate(prize.ID)
	require.NoError(t, err)

	ok, err = repo.SetWinner(prize.ID, alice.ID, 1, baseTime)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.SetWinner(prize.ID, alice.ID, 2, baseTime)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.GetWithWinner(prize.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PrizeWinnerDrawn, got.Status)
	assert.False(t, got.IsActive)
	require.NotNil(t, got.WinnerTicketNumber)
	assert.Equal(t, 1, *got.WinnerTicketNumber)
	require.NotNil(t, got.Winner)
	assert.Equal(t, alice.TelegramID, got.Winner.TelegramID)
}

func TestPrizeRepository_DeleteCascade(t *testing.T) {
	db := testdb.New(t)
	prize := seedPrize(t, db, 3)
	alice := seedUser(t, db, 1)
	tickets := NewTicketRepository(db)
	payments := NewPaymentRepository(db)

	ticket, err := tickets.Get(prize.ID, 1)
	require.NoError(t, err)
	require.NoError(t, payments.Create(&models.Payment{
		Ref: "pay-x", UserID: alice.ID, PrizeID: prize.ID, Amount: decimal.NewFromInt(100),
		IsSuccessful: true, Tickets: []models.Ticket{*ticket},
	}))

	require.NoError(t, NewPrizeRepository(db).DeleteCascade(prize.ID))

	var count int64
	require.NoError(t, db.Model(&models.Ticket{}).Where("prize_id = ?", prize.ID).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, db.Table("payment_tickets").Count(&count).Error)
	assert.Zero(t, count)
	_, err = payments.GetByRef("pay-x")
	assert.True(t, IsNotFound(err))
}

func TestIsDuplicateKey(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"gorm 翻译后的错误", gorm.ErrDuplicatedKey, true},
		{"MySQL 1062", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, true},
		{"MySQL 其他错误", &mysql.MySQLError{Number: 1213, Message: "Deadlock"}, false},
		{"SQLite UNIQUE", errors.New("UNIQUE constraint failed: payments.ref"), true},
		{"普通错误", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDuplicateKey(tt.err); got != tt.expected {
				t.Errorf("IsDuplicateKey(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}
