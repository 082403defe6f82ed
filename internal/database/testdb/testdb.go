// Package testdb 测试用 SQLite 内存数据库
package testdb

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/smysle/sakura-raffle-go/internal/database"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var seq int64

// New 为当前测试创建独立的内存数据库并完成迁移
func New(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:raffle_test_%d?mode=memory&cache=shared", atomic.AddInt64(&seq, 1))
	db, err := database.Open(sqlite.Open(dsn))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 单连接：内存库随连接存活，同时串行化写入
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}
