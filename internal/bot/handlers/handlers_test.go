package handlers

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/smysle/sakura-raffle-go/internal/service"
)

func TestParseCallback(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantAction string
		wantParts  []string
	}{
		{"Data 按钮带参数", "\fprize|12", "prize", []string{"prize", "12"}},
		{"Data 按钮无参数", "\fbuy", "buy", []string{"buy"}},
		{"Data 按钮空尾段", "\fadmin_panel|", "admin_panel", []string{"admin_panel"}},
		{"原始 Data 字段", "prize|3", "prize", []string{"prize", "3"}},
		{"冒号分隔", "draw:7", "draw", []string{"draw", "7"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, parts := parseCallback(tt.raw)
			assert.Equal(t, tt.wantAction, action)
			assert.Equal(t, tt.wantParts, parts)
		})
	}
}

func TestCallbackID(t *testing.T) {
	id, ok := callbackID([]string{"prize", "42"})
	assert.True(t, ok)
	assert.Equal(t, uint(42), id)

	_, ok = callbackID([]string{"prize"})
	assert.False(t, ok)

	_, ok = callbackID([]string{"prize", "abc"})
	assert.False(t, ok)
}

func TestParseID(t *testing.T) {
	tests := []struct {
		name   string
		arg    string
		want   uint
		wantOK bool
	}{
		{"正常", "5", 5, true},
		{"带空格", " 8 ", 8, true},
		{"零", "0", 0, false},
		{"负数", "-1", 0, false},
		{"非数字", "x", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseID(tt.arg)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestErrorText(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"输入错误", service.ErrNoActivePrize, "❌ " + service.ErrNoActivePrize.Error()},
		{"冲突", fmt.Errorf("reserve: %w", service.ErrAlreadyParticipated), "❌ reserve: " + service.ErrAlreadyParticipated.Error()},
		{"外部依赖", service.ErrGatewayUnavailable, "⚠️ " + service.ErrGatewayUnavailable.Error()},
		{"用户不存在", service.ErrUserNotFound, "❌ " + service.ErrUserNotFound.Error()},
		{"并发修改", service.ErrConcurrentModification, "⚠️ 操作未完成，请重新尝试"},
		{"内部错误", errors.New("db down"), "❌ 系统错误，请稍后重试"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errorText(tt.err))
		})
	}
}

func TestExampleNumbers(t *testing.T) {
	assert.Equal(t, "1 2 3", exampleNumbers([]int{1, 2, 3, 4, 5}))
	assert.Equal(t, "9", exampleNumbers([]int{9}))
}

func TestParseChatTarget(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   int64
		wantOK bool
	}{
		{"紧跟 ID", "/chat123456", 123456, true},
		{"空格分隔", "/chat 42", 42, true},
		{"带机器人用户名", "/chat@raffle_bot 77", 77, true},
		{"缺少 ID", "/chat", 0, false},
		{"非数字", "/chat abc", 0, false},
		{"零", "/chat0", 0, false},
		{"其他命令", "/start 5", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseChatTarget(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsChatCommand(t *testing.T) {
	assert.True(t, isChatCommand("/chat123"))
	assert.False(t, isChatCommand("/chat 123"), "带空格的形式由命令处理器接管")
	assert.False(t, isChatCommand("/chat"))
	assert.False(t, isChatCommand("/chatroom"))
	assert.False(t, isChatCommand("12 13"))
}
