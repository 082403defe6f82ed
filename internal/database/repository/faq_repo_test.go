package repository

import (
	"testing"

	"github.com/smysle/sakura-raffle-go/internal/database/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFAQRepository_ReplaceKeepsSingleActive(t *testing.T) {
	db := testdb.New(t)
	repo := NewFAQRepository(db)

	_, err := repo.Active()
	assert.True(t, IsNotFound(err), "没有文本时返回未找到: %v", err)

	first, err := repo.Replace("旧的说明")
	require.NoError(t, err)
	second, err := repo.Replace("新的说明")
	require.NoError(t, err)
	assert.Greater(t, second.ID, first.ID)

	active, err := repo.Active()
	require.NoError(t, err)
	assert.Equal(t, "新的说明", active.Text)

	count, err := repo.CountActive()
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}
