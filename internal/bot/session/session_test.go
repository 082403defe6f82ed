package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManager(t *testing.T) {
	m := NewManager(DefaultTTL)
	const user int64 = 99

	assert.Equal(t, StateNone, m.State(user))
	_, ok := m.PickingPrize(user)
	assert.False(t, ok)

	m.StartPicking(user, 7)
	assert.Equal(t, StateWaitingNumbers, m.State(user))
	id, ok := m.PickingPrize(user)
	assert.True(t, ok)
	assert.Equal(t, uint(7), id)

	// 切换到另一个奖品
	m.StartPicking(user, 8)
	id, _ = m.PickingPrize(user)
	assert.Equal(t, uint(8), id)

	m.Clear(user)
	assert.Equal(t, StateNone, m.State(user))
	_, ok = m.PickingPrize(user)
	assert.False(t, ok)
}

func TestManagerExpiry(t *testing.T) {
	m := NewManager(20 * time.Millisecond)
	m.StartPicking(1, 3)
	assert.Equal(t, StateWaitingNumbers, m.State(1))

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, StateNone, m.State(1), "超时后会话失效")
}

func TestGetManagerSingleton(t *testing.T) {
	assert.Same(t, GetManager(), GetManager())
}
