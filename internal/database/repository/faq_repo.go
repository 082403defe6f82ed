// Package repository 常见问题数据仓库
package repository

import (
	"github.com/smysle/sakura-raffle-go/internal/database/models"
	"gorm.io/gorm"
)

// FAQRepository 常见问题仓库
type FAQRepository struct {
	db *gorm.DB
}

// NewFAQRepository 创建常见问题仓库
func NewFAQRepository(db *gorm.DB) *FAQRepository {
	return &FAQRepository{db: db}
}

// WithTx 绑定事务
func (r *FAQRepository) WithTx(tx *gorm.DB) *FAQRepository {
	return &FAQRepository{db: tx}
}

// Active 当前启用的文本，多条启用时取最新一条
func (r *FAQRepository) Active() (*models.FAQ, error) {
	var faq models.FAQ
	err := r.db.Where("is_active = ?", true).Order("id DESC").First(&faq).Error
	if err != nil {
		return nil, err
	}
	return &faq, nil
}

// Replace 停用旧文本并写入新的启用文本
func (r *FAQRepository) Replace(text string) (*models.FAQ, error) {
	if err := r.db.Model(&models.FAQ{}).
		Where("is_active = ?", true).
		Update("is_active", false).Error; err != nil {
		return nil, err
	}
	faq := models.FAQ{Text: text, IsActive: true}
	if err := r.db.Create(&faq).Error; err != nil {
		return nil, err
	}
	return &faq, nil
}

// CountActive 启用中的条数
func (r *FAQRepository) CountActive() (int64, error) {
	var n int64
	err := r.db.Model(&models.FAQ{}).Where("is_active = ?", true).Count(&n).Error
	return n, err
}
