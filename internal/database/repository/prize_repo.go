// Package repository 奖品数据仓库
package repository

import (
	"time"

	"github.com/smysle/sakura-raffle-go/internal/database/models"
	"gorm.io/gorm"
)

// activeSlot 激活奖品占用的唯一槽位
const activeSlot = 1

// PrizeRepository 奖品仓库
type PrizeRepository struct {
	db *gorm.DB
}

// NewPrizeRepository 创建奖品仓库
func NewPrizeRepository(db *gorm.DB) *PrizeRepository {
	return &PrizeRepository{db: db}
}

// WithTx 绑定事务
func (r *PrizeRepository) WithTx(tx *gorm.DB) *PrizeRepository {
	return &PrizeRepository{db: tx}
}

// Create 创建奖品
func (r *PrizeRepository) Create(prize *models.Prize) error {
	return r.db.Omit("Tickets", "Winner").Create(prize).Error
}

// Get 获取奖品
func (r *PrizeRepository) Get(id uint) (*models.Prize, error) {
	var prize models.Prize
	if err := r.db.First(&prize, id).Error; err != nil {
		return nil, err
	}
	return &prize, nil
}

// GetWithWinner 获取奖品及中奖用户
func (r *PrizeRepository) GetWithWinner(id uint) (*models.Prize, error) {
	var prize models.Prize
	if err := r.db.Preload("Winner").First(&prize, id).Error; err != nil {
		return nil, err
	}
	return &prize, nil
}

// List 按开始时间列出奖品
func (r *PrizeRepository) List() ([]models.Prize, error) {
	var prizes []models.Prize
	err := r.db.Order("start_date DESC").Find(&prizes).Error
	return prizes, err
}

// UpdateDetails 更新可编辑字段
func (r *PrizeRepository) UpdateDetails(prize *models.Prize) error {
	return r.db.Model(&models.Prize{}).
		Where("id = ?", prize.ID).
		Updates(map[string]interface{}{
			"title":        prize.Title,
			"description":  prize.Description,
			"image":        prize.Image,
			"start_date":   prize.StartDate,
			"end_date":     prize.EndDate,
			"ticket_price": prize.TicketPrice,
			"ticket_count": prize.TicketCount,
		}).Error
}

// GetActive 获取当前激活的奖品
func (r *PrizeRepository) GetActive() (*models.Prize, error) {
	var prize models.Prize
	err := r.db.Where("is_active = ?", true).Order("start_date ASC").First(&prize).Error
	if err != nil {
		return nil, err
	}
	return &prize, nil
}

// CountActive 激活中的奖品数量
func (r *PrizeRepository) CountActive() (int64, error) {
	var count int64
	err := r.db.Model(&models.Prize{}).Where("is_active = ?", true).Count(&count).Error
	return count, err
}

// FindOverlapping 查找与 [start, end] 时间段重叠的奖品
// allowAdjacent 为 true 时首尾相接不算重叠
func (r *PrizeRepository) FindOverlapping(start, end time.Time, excludeID uint, allowAdjacent bool) ([]models.Prize, error) {
	query := r.db.Model(&models.Prize{})
	if allowAdjacent {
		query = query.Where("start_date < ? AND end_date > ?", end, start)
	} else {
		query = query.Where("start_date <= ? AND end_date >= ?", end, start)
	}
	if excludeID != 0 {
		query = query.Where("id <> ?", excludeID)
	}
	var prizes []models.Prize
	err := query.Order("start_date ASC").Find(&prizes).Error
	return prizes, err
}

// NextDue 下一个到期应激活的奖品
func (r *PrizeRepository) NextDue(now time.Time) (*models.Prize, error) {
	var prize models.Prize
	err := r.db.Where("status = ? AND start_date <= ? AND end_date > ? AND winner_determined = ?",
		models.PrizeScheduled, now, now, false).
		Order("start_date ASC").
		First(&prize).Error
	if err != nil {
		return nil, err
	}
	return &prize, nil
}

// Activate 激活奖品（原子操作）
// 已有激活奖品时 active_slot 唯一索引冲突，调用方用 IsDuplicateKey 判断
func (r *PrizeRepository) Activate(id uint) (bool, error) {
	result := r.db.Model(&models.Prize{}).
		Where("id = ? AND status = ?", id, models.PrizeScheduled).
		Updates(map[string]interface{}{
			"status":      models.PrizeActive,
			"is_active":   true,
			"active_slot": activeSlot,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Finish 结束激活中的奖品（原子操作）
func (r *PrizeRepository) Finish(id uint) (bool, error) {
	result := r.db.Model(&models.Prize{}).
		Where("id = ? AND status = ?", id, models.PrizeActive).
		Updates(map[string]interface{}{
			"status":      models.PrizeFinished,
			"is_active":   false,
			"active_slot": nil,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ExpiredActive 已到结束时间但仍激活的奖品
func (r *PrizeRepository) ExpiredActive(now time.Time) ([]models.Prize, error) {
	var prizes []models.Prize
	err := r.db.Where("status = ? AND end_date <= ?", models.PrizeActive, now).Find(&prizes).Error
	return prizes, err
}

// FinishStaleScheduled 结束从未激活就已过期的奖品
func (r *PrizeRepository) FinishStaleScheduled(now time.Time) (int64, error) {
	result := r.db.Model(&models.Prize{}).
		Where("status = ? AND end_date <= ?", models.PrizeScheduled, now).
		Updates(map[string]interface{}{
			"status":    models.PrizeFinished,
			"is_active": false,
		})
	return result.RowsAffected, result.Error
}

// SetAnnouncement 记录公告消息
func (r *PrizeRepository) SetAnnouncement(id uint, chatID int64, messageID int) error {
	return r.db.Model(&models.Prize{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"announce_chat_id":    chatID,
			"announce_message_id": messageID,
		}).Error
}

// SetWinner 记录中奖结果（原子操作，只会成功一次）
func (r *PrizeRepository) SetWinner(id, userID uint, number int, at time.Time) (bool, error) {
	result := r.db.Model(&models.Prize{}).
		Where("id = ? AND winner_determined = ? AND status IN ?", id, false,
			[]models.PrizeStatus{models.PrizeActive, models.PrizeFinished}).
		Updates(map[string]interface{}{
			"winner_determined":    true,
			"winner_user_id":       userID,
			"winner_ticket_number": number,
			"winner_drawn_at":      at,
			"status":               models.PrizeWinnerDrawn,
			"is_active":            false,
			"active_slot":          nil,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// DeleteCascade 先删子表再删奖品
func (r *PrizeRepository) DeleteCascade(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM payment_tickets WHERE payment_id IN (SELECT id FROM payments WHERE prize_id = ?)", id).Error; err != nil {
			return err
		}
		if err := tx.Where("prize_id = ?", id).Delete(&models.Payment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("prize_id = ?", id).Delete(&models.PaymentBatch{}).Error; err != nil {
			return err
		}
		if err := tx.Where("prize_id = ?", id).Delete(&models.Ticket{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Prize{}, id).Error
	})
}
