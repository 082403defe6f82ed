// Package repository 支付数据仓库
package repository

import (
	"time"

	"github.com/smysle/sakura-raffle-go/internal/database/models"
	"gorm.io/gorm"
)

// PaymentRepository 支付仓库
type PaymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository 创建支付仓库
func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// WithTx 绑定事务
func (r *PaymentRepository) WithTx(tx *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: tx}
}

// CreateBatch 创建支付批次
func (r *PaymentRepository) CreateBatch(batch *models.PaymentBatch) error {
	return r.db.Omit("Tickets").Create(batch).Error
}

// GetBatch 根据引用获取支付批次
func (r *PaymentRepository) GetBatch(ref string) (*models.PaymentBatch, error) {
	var batch models.PaymentBatch
	err := r.db.Preload("Tickets", func(db *gorm.DB) *gorm.DB {
		return db.Order("ticket_number ASC")
	}).Where("ref = ?", ref).First(&batch).Error
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// LatestBatch 用户最近一次支付批次
func (r *PaymentRepository) LatestBatch(userID, prizeID uint) (*models.PaymentBatch, error) {
	var batch models.PaymentBatch
	err := r.db.Where("user_id = ? AND prize_id = ?", userID, prizeID).
		Order("created_at DESC, id DESC").
		First(&batch).Error
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// UpdateBatchStatus 更新批次状态，已成功的批次不会被改回
func (r *PaymentRepository) UpdateBatchStatus(ref string, status models.PaymentStatus, settledAt *time.Time) error {
	updates := map[string]interface{}{"status": status}
	if settledAt != nil {
		updates["settled_at"] = *settledAt
	}
	return r.db.Model(&models.PaymentBatch{}).
		Where("ref = ? AND status <> ?", ref, models.PaymentSucceeded).
		Updates(updates).Error
}

// GetByRef 根据引用获取支付记录（带彩票）
func (r *PaymentRepository) GetByRef(ref string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.Preload("Tickets", func(db *gorm.DB) *gorm.DB {
		return db.Order("ticket_number ASC")
	}).Where("ref = ?", ref).First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// Create 创建支付记录并关联彩票，ref 重复时返回唯一键冲突
func (r *PaymentRepository) Create(payment *models.Payment) error {
	return r.db.Omit("Tickets.*").Create(payment).Error
}

// ListByPrize 奖品下的支付记录
func (r *PaymentRepository) ListByPrize(prizeID uint) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.Where("prize_id = ?", prizeID).Order("created_at ASC").Find(&payments).Error
	return payments, err
}
