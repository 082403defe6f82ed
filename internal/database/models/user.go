// Package models 数据模型 - Telegram 用户
package models

import (
	"strings"
	"time"
)

// TelegramUser 用户表
type TelegramUser struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	TelegramID int64     `gorm:"column:telegram_id;uniqueIndex;not null" json:"telegram_id"`
	FullName   string    `gorm:"column:full_name;size:255" json:"full_name"`
	Username   string    `gorm:"column:username;size:255" json:"username"`
	IsAdmin    bool      `gorm:"column:is_admin;default:false" json:"is_admin"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// TableName 表名
func (TelegramUser) TableName() string {
	return "users"
}

// DisplayName 展示用名称
func (u *TelegramUser) DisplayName() string {
	if name := strings.TrimSpace(u.FullName); name != "" {
		return name
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return "用户"
}
