package utils

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  string
	}{
		{"未超长", "你好", 10, "你好"},
		{"恰好等于", "abc", 3, "abc"},
		{"按字符截断", "一二三四五", 3, "一二…"},
		{"去掉结尾空白", "ab  cd", 4, "ab…"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Truncate(tt.text, tt.limit))
		})
	}

	long := strings.Repeat("抽", MaxCaptionLength+10)
	assert.Len(t, []rune(Truncate(long, MaxCaptionLength)), MaxCaptionLength)
}

func TestIsNotModified(t *testing.T) {
	assert.True(t, IsNotModified(errors.New("telegram: Bad Request: message is not modified (400)")))
	assert.False(t, IsNotModified(errors.New("telegram: chat not found (400)")))
	assert.False(t, IsNotModified(nil))
}
