package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smysle/sakura-raffle-go/internal/database/testdb"
)

func TestFAQ_SetAndActive(t *testing.T) {
	svc := NewFAQService(testdb.New(t))
	ctx := context.Background()

	_, err := svc.Active(ctx)
	require.ErrorIs(t, err, ErrFAQUnavailable)
	assert.Equal(t, KindValidation, ErrorKind(err))

	_, err = svc.Set(ctx, "  1. 如何购买？发送 /buy  ")
	require.NoError(t, err)
	_, err = svc.Set(ctx, "2. 如何支付？发送 /pay")
	require.NoError(t, err)

	faq, err := svc.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2. 如何支付？发送 /pay", faq.Text)
	assert.True(t, faq.IsActive)
}

func TestFAQ_SetValidation(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"空白", "   \n"},
		{"超长", strings.Repeat("问", faqMaxLength+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewFAQService(testdb.New(t))
			_, err := svc.Set(context.Background(), tt.text)
			assert.ErrorIs(t, err, ErrInvalidFAQText)

			_, err = svc.Active(context.Background())
			assert.ErrorIs(t, err, ErrFAQUnavailable, "校验失败不写库")
		})
	}
}
