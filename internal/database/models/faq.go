// Package models 数据模型 - 常见问题
package models

import "time"

// FAQ 常见问题文本，同一时刻只有一条处于启用状态
type FAQ struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Text      string    `gorm:"column:text;type:text;not null" json:"text"`
	IsActive  bool      `gorm:"column:is_active;index;default:false" json:"is_active"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// TableName 表名
func (FAQ) TableName() string {
	return "faqs"
}
