package yookassa

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/smysle/sakura-raffle-go/internal/config"
	"github.com/smysle/sakura-raffle-go/internal/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_CreatePayment(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payments", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("Idempotence-Key"))
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "shop", user)
		assert.Equal(t, "secret", pass)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pay-1","status":"pending","paid":false,
			"amount":{"value":"200.00","currency":"RUB"},
			"confirmation":{"type":"redirect","confirmation_url":"https://pay.example/1"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "shop", "secret")
	payment, err := client.CreatePayment(context.Background(), CreatePaymentRequest{
		Amount:         decimal.NewFromInt(200),
		Currency:       "RUB",
		Description:    "彩票 1, 2",
		ReturnURL:      "https://t.me/raffle_bot",
		Metadata:       map[string]string{"user_id": "7"},
		IdempotencyKey: "key-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "pay-1", payment.ID)
	assert.Equal(t, models.PaymentPending, payment.Status)
	assert.Equal(t, "https://pay.example/1", payment.ConfirmationURL)
	assert.True(t, payment.Amount.Equal(decimal.NewFromInt(200)))

	amount := got["amount"].(map[string]interface{})
	assert.Equal(t, "200.00", amount["value"])
	assert.Equal(t, true, got["capture"])
	confirmation := got["confirmation"].(map[string]interface{})
	assert.Equal(t, "redirect", confirmation["type"])
	assert.Equal(t, "https://t.me/raffle_bot", confirmation["return_url"])
}

func TestClient_GetPaymentStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/pay-9", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pay-9","status":"succeeded","paid":true,"amount":{"value":"100.00","currency":"RUB"}}`))
	}))
	defer server.Close()

	payment, err := NewClient(server.URL, "shop", "secret").GetPaymentStatus(context.Background(), "pay-9")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSucceeded, payment.Status)
	assert.True(t, payment.Paid)
}

func TestClient_ErrorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","code":"invalid_request","description":"bad amount"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "shop", "secret")
	_, err := client.CreatePayment(context.Background(), CreatePaymentRequest{
		Amount: decimal.NewFromInt(1), Currency: "RUB", IdempotencyKey: "k",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad amount")
}

func TestMapStatus(t *testing.T) {
	tests := []struct {
		in       string
		expected models.PaymentStatus
	}{
		{"pending", models.PaymentPending},
		{"waiting_for_capture", models.PaymentPending},
		{"succeeded", models.PaymentSucceeded},
		{"canceled", models.PaymentCanceled},
		{"failed", models.PaymentFailed},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.expected, MapStatus(tt.in))
		})
	}
}

func TestNewClientFromConfig_RequiresCredentials(t *testing.T) {
	_, err := NewClientFromConfig(&config.YooKassaConfig{APIURL: "https://api.yookassa.ru/v3"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	client, err := NewClientFromConfig(&config.YooKassaConfig{ShopID: "1", SecretKey: "s", APIURL: "https://api.yookassa.ru/v3"})
	require.NoError(t, err)
	assert.NotNil(t, client)
}
