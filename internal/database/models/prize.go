// Package models 数据模型 - 奖品
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PrizeStatus 奖品状态
type PrizeStatus string

const (
	PrizeScheduled   PrizeStatus = "scheduled"    // 等待开始
	PrizeActive      PrizeStatus = "active"       // 正在售票
	PrizeFinished    PrizeStatus = "finished"     // 已结束
	PrizeWinnerDrawn PrizeStatus = "winner_drawn" // 已开奖
)

// Prize 奖品表
type Prize struct {
	ID          uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	Title       string          `gorm:"column:title;size:255;not null" json:"title"`
	Description string          `gorm:"column:description;type:text" json:"description"`
	Image       *string         `gorm:"column:image;size:500" json:"image,omitempty"` // 图片路径
	StartDate   time.Time       `gorm:"column:start_date;index" json:"start_date"`
	EndDate     time.Time       `gorm:"column:end_date;index" json:"end_date"`
	TicketPrice decimal.Decimal `gorm:"column:ticket_price;type:decimal(10,2);not null;default:0" json:"ticket_price"`
	TicketCount int             `gorm:"column:ticket_count;not null" json:"ticket_count"`
	Status      PrizeStatus     `gorm:"column:status;size:20;index;default:'scheduled'" json:"status"`
	IsActive    bool            `gorm:"column:is_active;default:false" json:"is_active"`
	// ActiveSlot 激活时为 1，否则为 NULL；唯一索引保证同一时刻只有一个激活奖品
	ActiveSlot *int `gorm:"column:active_slot;uniqueIndex" json:"-"`

	WinnerDetermined   bool       `gorm:"column:winner_determined;default:false" json:"winner_determined"`
	WinnerUserID       *uint      `gorm:"column:winner_user_id" json:"winner_user_id,omitempty"`
	WinnerTicketNumber *int       `gorm:"column:winner_ticket_number" json:"winner_ticket_number,omitempty"`
	WinnerDrawnAt      *time.Time `gorm:"column:winner_drawn_at" json:"winner_drawn_at,omitempty"`

	AnnounceChatID    *int64 `gorm:"column:announce_chat_id" json:"announce_chat_id,omitempty"`
	AnnounceMessageID *int   `gorm:"column:announce_message_id" json:"announce_message_id,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`

	Tickets []Ticket      `gorm:"foreignKey:PrizeID" json:"-"`
	Winner  *TelegramUser `gorm:"foreignKey:WinnerUserID" json:"winner,omitempty"`
}

// TableName 表名
func (Prize) TableName() string {
	return "prizes"
}

// IsFree 是否免费奖品
func (p *Prize) IsFree() bool {
	return p.TicketPrice.IsZero()
}

// InWindow 时间点是否落在 [start, end) 内
func (p *Prize) InWindow(t time.Time) bool {
	return !t.Before(p.StartDate) && t.Before(p.EndDate)
}

// IsOpen 是否可以预留彩票
func (p *Prize) IsOpen(now time.Time) bool {
	return p.IsActive && p.Status == PrizeActive && now.Before(p.EndDate)
}

// HasAnnouncement 是否已发布公告
func (p *Prize) HasAnnouncement() bool {
	return p.AnnounceChatID != nil && p.AnnounceMessageID != nil
}

// ValidNumber 彩票号是否在 1..TicketCount 内
func (p *Prize) ValidNumber(n int) bool {
	return n >= 1 && n <= p.TicketCount
}
