// Package models 数据模型 - 支付
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus 网关支付状态
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentCanceled  PaymentStatus = "canceled"
	PaymentFailed    PaymentStatus = "failed"

	// PaymentRefundRequired 网关已收款但彩票无法入账，只在本地批次上使用
	PaymentRefundRequired PaymentStatus = "refund_required"
)

// IsTerminal 是否终态
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentSucceeded || s == PaymentCanceled || s == PaymentFailed
}

// PaymentBatch 进行中的支付批次，通过 tickets.payment_ref 关联其彩票
type PaymentBatch struct {
	ID              uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	Ref             string          `gorm:"column:ref;size:100;uniqueIndex;not null" json:"ref"`
	UserID          uint            `gorm:"column:user_id;index;not null" json:"user_id"`
	PrizeID         uint            `gorm:"column:prize_id;index;not null" json:"prize_id"`
	Amount          decimal.Decimal `gorm:"column:amount;type:decimal(10,2);not null" json:"amount"`
	Currency        string          `gorm:"column:currency;size:3;default:'RUB'" json:"currency"`
	Status          PaymentStatus   `gorm:"column:status;size:20;default:'pending'" json:"status"`
	ConfirmationURL string          `gorm:"column:confirmation_url;size:500" json:"confirmation_url"`
	IdempotencyKey  string          `gorm:"column:idempotency_key;size:64" json:"-"`
	ExpiresAt       time.Time       `gorm:"column:expires_at" json:"expires_at"`
	SettledAt       *time.Time      `gorm:"column:settled_at" json:"settled_at,omitempty"`
	CreatedAt       time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"column:updated_at" json:"updated_at"`

	Tickets []Ticket `gorm:"foreignKey:PaymentRef;references:Ref" json:"tickets,omitempty"`
}

// TableName 表名
func (PaymentBatch) TableName() string {
	return "payment_batches"
}

// Payment 成功的支付记录，每个 Ref 只会有一条
type Payment struct {
	ID           uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	Ref          string          `gorm:"column:ref;size:100;uniqueIndex;not null" json:"ref"`
	UserID       uint            `gorm:"column:user_id;index;not null" json:"user_id"`
	PrizeID      uint            `gorm:"column:prize_id;index;not null" json:"prize_id"`
	Amount       decimal.Decimal `gorm:"column:amount;type:decimal(10,2);not null" json:"amount"`
	IsSuccessful bool            `gorm:"column:is_successful" json:"is_successful"`
	CreatedAt    time.Time       `gorm:"column:created_at" json:"created_at"`

	Tickets []Ticket `gorm:"many2many:payment_tickets;" json:"tickets,omitempty"`
}

// TableName 表名
func (Payment) TableName() string {
	return "payments"
}

// TicketNumbers 关联的彩票号
func (p *Payment) TicketNumbers() []int {
	numbers := make([]int, 0, len(p.Tickets))
	for _, t := range p.Tickets {
		numbers = append(numbers, t.TicketNumber)
	}
	return numbers
}
