// Package models 数据模型 - 彩票
package models

import (
	"errors"
	"time"
)

// TicketState 彩票状态
type TicketState string

const (
	TicketFree TicketState = "free"
	TicketHeld TicketState = "held"
	TicketPaid TicketState = "paid"
)

var (
	errPaidStillReserved = errors.New("已支付的彩票仍处于预留状态")
	errOrphanTicket      = errors.New("无主彩票不能处于预留或已支付状态")
)

// Ticket 彩票表
type Ticket struct {
	ID            uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	PrizeID       uint       `gorm:"column:prize_id;not null;uniqueIndex:idx_prize_ticket,priority:1" json:"prize_id"`
	TicketNumber  int        `gorm:"column:ticket_number;not null;uniqueIndex:idx_prize_ticket,priority:2" json:"ticket_number"`
	UserID        *uint      `gorm:"column:user_id;index" json:"user_id,omitempty"`
	IsReserved    bool       `gorm:"column:is_reserved;default:false;index" json:"is_reserved"`
	IsPaid        bool       `gorm:"column:is_paid;default:false;index" json:"is_paid"`
	ReservedUntil *time.Time `gorm:"column:reserved_until;index" json:"reserved_until,omitempty"`
	PaymentRef    *string    `gorm:"column:payment_ref;size:100;index" json:"payment_ref,omitempty"`
	CreatedAt     time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"column:updated_at" json:"updated_at"`

	User *TelegramUser `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// TableName 表名
func (Ticket) TableName() string {
	return "tickets"
}

// State 当前状态
func (t *Ticket) State() TicketState {
	switch {
	case t.IsPaid:
		return TicketPaid
	case t.IsReserved:
		return TicketHeld
	default:
		return TicketFree
	}
}

// HeldBy 是否被该用户预留中
func (t *Ticket) HeldBy(userID uint) bool {
	return t.IsReserved && !t.IsPaid && t.UserID != nil && *t.UserID == userID
}

// HoldExpired 预留是否已过期
func (t *Ticket) HoldExpired(now time.Time) bool {
	return t.IsReserved && t.ReservedUntil != nil && t.ReservedUntil.Before(now)
}

// CheckInvariants 校验状态组合是否合法
func (t *Ticket) CheckInvariants() error {
	if t.IsPaid && (t.IsReserved || t.ReservedUntil != nil) {
		return errPaidStillReserved
	}
	if t.UserID == nil && (t.IsReserved || t.IsPaid) {
		return errOrphanTicket
	}
	return nil
}
