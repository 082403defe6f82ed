package service

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smysle/sakura-raffle-go/internal/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackup_WritesSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	prize := f.activePrize(t, 100, 5)
	_, err := f.reservations.Reserve(ctx, ReserveRequest{PrizeID: prize.ID, User: alice, Numbers: []int{1, 2}})
	require.NoError(t, err)

	dir := t.TempDir()
	svc := NewBackupService(f.db, dir, WithClock(func() time.Time { return f.now }))

	tests := []struct {
		name     string
		compress bool
		wantName string
	}{
		{"原始 JSON", false, "raffle_20260301_120000.json"},
		{"gzip 压缩", true, "raffle_20260301_120000.json.gz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := svc.Backup(ctx, tt.compress)
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, result.Filename)
			// 1 个用户 + 1 个奖品 + 5 张彩票
			assert.Equal(t, 7, result.Records)
			assert.Positive(t, result.Size)

			data := readBackup(t, result.FilePath, tt.compress)
			assert.Len(t, data.Tickets, 5)
			assert.Len(t, data.Users, 1)
			assert.Equal(t, prize.ID, data.Prizes[0].ID)
		})
	}
}

func TestBackup_IncludesPaymentTickets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	prize := f.activePrize(t, 100, 5)
	initiated := f.reserveAndInitiate(t, prize, alice, 2, 4)
	_, err := f.payments.Settle(ctx, initiated.Ref, models.PaymentSucceeded)
	require.NoError(t, err)

	svc := NewBackupService(f.db, t.TempDir(), WithClock(func() time.Time { return f.now }))
	result, err := svc.Backup(ctx, false)
	require.NoError(t, err)

	data := readBackup(t, result.FilePath, false)
	require.Len(t, data.Payments, 1)
	payment := data.Payments[0]
	assert.Equal(t, initiated.Ref, payment.Ref)
	assert.Equal(t, []int{2, 4}, payment.TicketNumbers(), "快照需保留支付与彩票的关联")
	require.Len(t, data.Batches, 1)
	assert.Equal(t, models.PaymentSucceeded, data.Batches[0].Status)
}

func readBackup(t *testing.T, path string, compressed bool) BackupData {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var r io.Reader = file
	if compressed {
		gz, err := gzip.NewReader(file)
		require.NoError(t, err)
		defer gz.Close()
		r = gz
	}

	var data BackupData
	require.NoError(t, json.NewDecoder(r).Decode(&data))
	return data
}

func TestCleanOldBackups(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	svc := NewBackupService(nil, dir, WithClock(func() time.Time { return now }))

	old := filepath.Join(dir, "raffle_old.json")
	fresh := filepath.Join(dir, "raffle_fresh.json")
	require.NoError(t, os.WriteFile(old, []byte("{}"), 0644))
	require.NoError(t, os.WriteFile(fresh, []byte("{}"), 0644))
	require.NoError(t, os.Chtimes(old, now.AddDate(0, 0, -10), now.AddDate(0, 0, -10)))

	deleted, err := svc.CleanOldBackups(7)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	backups, err := svc.ListBackups()
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, "raffle_fresh.json", backups[0].Filename)
}

func TestListBackups_MissingDir(t *testing.T) {
	svc := NewBackupService(nil, filepath.Join(t.TempDir(), "missing"))
	backups, err := svc.ListBackups()
	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatSize(tt.bytes))
		})
	}
}
