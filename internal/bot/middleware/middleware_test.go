package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter(t *testing.T) {
	l := newLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, l.allow(1), "第 %d 次请求", i+1)
	}
	assert.False(t, l.allow(1), "超过每分钟上限")
	assert.False(t, l.allow(1), "窗口内持续拒绝")
	assert.True(t, l.allow(2), "不同用户互不影响")
}

func TestLimiterWindowReset(t *testing.T) {
	l := newLimiter(1, 20*time.Millisecond)

	assert.True(t, l.allow(1))
	assert.False(t, l.allow(1), "间隔过短")

	time.Sleep(40 * time.Millisecond)
	assert.True(t, l.allow(1), "窗口过期后重新计数")
}
