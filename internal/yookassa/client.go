// Package yookassa YooKassa 支付网关客户端
package yookassa

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/smysle/sakura-raffle-go/internal/config"
	"github.com/smysle/sakura-raffle-go/internal/database/models"
	"github.com/smysle/sakura-raffle-go/pkg/logger"
)

// ErrNotConfigured 未配置商户信息
var ErrNotConfigured = errors.New("YooKassa 未配置")

// CreatePaymentRequest 创建支付请求
type CreatePaymentRequest struct {
	Amount         decimal.Decimal
	Currency       string
	Description    string
	ReturnURL      string
	Metadata       map[string]string
	IdempotencyKey string
}

// Payment 网关返回的支付信息
type Payment struct {
	ID              string
	Status          models.PaymentStatus
	Paid            bool
	Amount          decimal.Decimal
	Currency        string
	ConfirmationURL string
	Metadata        map[string]string
}

type amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type confirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

type createBody struct {
	Amount       amount            `json:"amount"`
	Capture      bool              `json:"capture"`
	Confirmation confirmation      `json:"confirmation"`
	Description  string            `json:"description"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type paymentBody struct {
	ID           string            `json:"id"`
	Status       string            `json:"status"`
	Paid         bool              `json:"paid"`
	Amount       amount            `json:"amount"`
	Confirmation confirmation      `json:"confirmation"`
	Metadata     map[string]string `json:"metadata"`
}

type errorBody struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	Description string `json:"description"`
}

// Client YooKassa API 客户端
type Client struct {
	httpClient *resty.Client
}

// NewClient 创建客户端
func NewClient(baseURL, shopID, secretKey string) *Client {
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetBasicAuth(shopID, secretKey)
	client.SetTimeout(30 * time.Second)
	client.SetRetryCount(2)
	client.SetRetryWaitTime(2 * time.Second)
	client.SetHeader("Content-Type", "application/json")

	return &Client{httpClient: client}
}

// NewClientFromConfig 根据配置创建客户端
func NewClientFromConfig(cfg *config.YooKassaConfig) (*Client, error) {
	if cfg.ShopID == "" || cfg.SecretKey == "" {
		return nil, ErrNotConfigured
	}
	return NewClient(cfg.APIURL, cfg.ShopID, cfg.SecretKey), nil
}

// CreatePayment 创建支付，Idempotence-Key 保证重试不会重复扣款
func (c *Client) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*Payment, error) {
	body := createBody{
		Amount: amount{
			Value:    req.Amount.StringFixed(2),
			Currency: req.Currency,
		},
		Capture: true,
		Confirmation: confirmation{
			Type:      "redirect",
			ReturnURL: req.ReturnURL,
		},
		Description: req.Description,
		Metadata:    req.Metadata,
	}

	var result paymentBody
	var apiErr errorBody
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Idempotence-Key", req.IdempotencyKey).
		SetBody(body).
		SetResult(&result).
		SetError(&apiErr).
		Post("/payments")
	if err != nil {
		return nil, fmt.Errorf("创建支付请求失败: %w", err)
	}
	if resp.IsError() {
		logger.Warn().Int("status", resp.StatusCode()).Str("code", apiErr.Code).Str("desc", apiErr.Description).Msg("YooKassa 创建支付失败")
		return nil, fmt.Errorf("创建支付失败: HTTP %d %s", resp.StatusCode(), apiErr.Description)
	}
	return result.toPayment()
}

// GetPaymentStatus 查询支付状态
func (c *Client) GetPaymentStatus(ctx context.Context, ref string) (*Payment, error) {
	var result paymentBody
	var apiErr errorBody
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetPathParam("id", ref).
		SetResult(&result).
		SetError(&apiErr).
		Get("/payments/{id}")
	if err != nil {
		return nil, fmt.Errorf("查询支付状态失败: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("查询支付状态失败: HTTP %d %s", resp.StatusCode(), apiErr.Description)
	}
	return result.toPayment()
}

func (b *paymentBody) toPayment() (*Payment, error) {
	if b.ID == "" {
		return nil, errors.New("网关响应缺少支付 ID")
	}
	p := &Payment{
		ID:              b.ID,
		Status:          MapStatus(b.Status),
		Paid:            b.Paid,
		Currency:        b.Amount.Currency,
		ConfirmationURL: b.Confirmation.ConfirmationURL,
		Metadata:        b.Metadata,
	}
	if b.Amount.Value != "" {
		value, err := decimal.NewFromString(b.Amount.Value)
		if err != nil {
			return nil, fmt.Errorf("解析金额失败: %w", err)
		}
		p.Amount = value
	}
	return p, nil
}

// MapStatus 网关状态映射，waiting_for_capture 仍视为处理中
func MapStatus(status string) models.PaymentStatus {
	switch status {
	case "succeeded":
		return models.PaymentSucceeded
	case "canceled":
		return models.PaymentCanceled
	case "failed":
		return models.PaymentFailed
	default:
		return models.PaymentPending
	}
}
