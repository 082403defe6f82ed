package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"号码无效", ErrInvalidTicketNumbers, KindValidation},
		{"包装后的号码无效", fmt.Errorf("%w: 0 不在范围内", ErrInvalidTicketNumbers), KindValidation},
		{"号码冲突", &TicketsUnavailableError{Numbers: []int{4}}, KindConflict},
		{"已开奖", ErrWinnerAlreadyDetermined, KindConflict},
		{"网关不可用", fmt.Errorf("%w: timeout", ErrGatewayUnavailable), KindExternal},
		{"并发修改", ErrConcurrentModification, KindIntegrity},
		{"未知错误", errors.New("disk full"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorKind(tt.err))
		})
	}
}

func TestTicketsUnavailableError(t *testing.T) {
	err := fmt.Errorf("预留失败: %w", &TicketsUnavailableError{Numbers: []int{3, 5}})
	assert.ErrorIs(t, err, ErrTicketsUnavailable)
	assert.Contains(t, err.Error(), "3")
	assert.Contains(t, err.Error(), "5")
}
