// Package repository 用户数据仓库
package repository

import (
	"github.com/smysle/sakura-raffle-go/internal/database/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository 用户仓库
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建用户仓库
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// WithTx 绑定事务
func (r *UserRepository) WithTx(tx *gorm.DB) *UserRepository {
	return &UserRepository{db: tx}
}

// GetByTG 根据 Telegram ID 获取用户
func (r *UserRepository) GetByTG(tg int64) (*models.TelegramUser, error) {
	var user models.TelegramUser
	if err := r.db.Where("telegram_id = ?", tg).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByID 根据主键获取用户
func (r *UserRepository) GetByID(id uint) (*models.TelegramUser, error) {
	var user models.TelegramUser
	if err := r.db.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// LockByID 行锁读取用户（SELECT ... FOR UPDATE）
func (r *UserRepository) LockByID(id uint) (*models.TelegramUser, error) {
	var user models.TelegramUser
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// Upsert 不存在则创建，存在则刷新展示名
func (r *UserRepository) Upsert(tg int64, fullName, username string) (*models.TelegramUser, error) {
	user := models.TelegramUser{TelegramID: tg, FullName: fullName, Username: username}
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "telegram_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"full_name", "username", "updated_at"}),
	}).Create(&user).Error
	if err != nil {
		return nil, err
	}
	return r.GetByTG(tg)
}

// SetAdmin 设置管理员标记
func (r *UserRepository) SetAdmin(tg int64, isAdmin bool) error {
	return r.db.Model(&models.TelegramUser{}).
		Where("telegram_id = ?", tg).
		Update("is_admin", isAdmin).Error
}

// ListAdmins 被标记为管理员的用户
func (r *UserRepository) ListAdmins() ([]models.TelegramUser, error) {
	var users []models.TelegramUser
	err := r.db.Where("is_admin = ?", true).Order("id ASC").Find(&users).Error
	return users, err
}

// Delete 删除用户
func (r *UserRepository) Delete(id uint) error {
	return r.db.Delete(&models.TelegramUser{}, id).Error
}
