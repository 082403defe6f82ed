// Package session 选号会话
package session

import (
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// DefaultTTL 选号会话超时时间
const DefaultTTL = 10 * time.Minute

// State 会话状态类型
type State string

const (
	StateNone           State = ""
	StateWaitingNumbers State = "waiting_numbers" // 等待输入彩票号码
)

// Picking 正在进行的选号
type Picking struct {
	PrizeID   uint
	StartedAt time.Time
}

// Manager 会话管理器，过期会话由缓存自行清理
type Manager struct {
	store *cache.Cache
}

var (
	instance *Manager
	once     sync.Once
)

// NewManager 创建会话管理器
func NewManager(ttl time.Duration) *Manager {
	return &Manager{store: cache.New(ttl, ttl/2)}
}

// GetManager 获取会话管理器单例
func GetManager() *Manager {
	once.Do(func() {
		instance = NewManager(DefaultTTL)
	})
	return instance
}

func key(tg int64) string {
	return strconv.FormatInt(tg, 10)
}

// StartPicking 进入选号状态，重复调用会切换奖品并重新计时
func (m *Manager) StartPicking(tg int64, prizeID uint) {
	m.store.SetDefault(key(tg), Picking{PrizeID: prizeID, StartedAt: time.Now()})
}

// State 获取用户状态
func (m *Manager) State(tg int64) State {
	if _, ok := m.store.Get(key(tg)); ok {
		return StateWaitingNumbers
	}
	return StateNone
}

// PickingPrize 当前选号对应的奖品
func (m *Manager) PickingPrize(tg int64) (uint, bool) {
	v, ok := m.store.Get(key(tg))
	if !ok {
		return 0, false
	}
	p, ok := v.(Picking)
	return p.PrizeID, ok
}

// Clear 结束会话
func (m *Manager) Clear(tg int64) {
	m.store.Delete(key(tg))
}
