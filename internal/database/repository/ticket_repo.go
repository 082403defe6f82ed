// Package repository 彩票数据仓库
package repository

import (
	"time"

	"github.com/smysle/sakura-raffle-go/internal/database/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TicketRepository 彩票仓库
//
// 所有状态变更都是带条件的 UPDATE，调用方通过 RowsAffected 判断是否命中，
// 已支付的彩票不会被释放或重新预留。
type TicketRepository struct {
	db *gorm.DB
}

// NewTicketRepository 创建彩票仓库
func NewTicketRepository(db *gorm.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

// WithTx 绑定事务
func (r *TicketRepository) WithTx(tx *gorm.DB) *TicketRepository {
	return &TicketRepository{db: tx}
}

// releaseFields 释放预留时清空的字段
func releaseFields() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        nil,
		"is_reserved":    false,
		"reserved_until": nil,
		"payment_ref":    nil,
	}
}

// EnsureRange 确保指定号码的彩票行存在（懒创建）
func (r *TicketRepository) EnsureRange(prizeID uint, numbers []int) error {
	if len(numbers) == 0 {
		return nil
	}
	tickets := make([]models.Ticket, 0, len(numbers))
	for _, n := range numbers {
		tickets = append(tickets, models.Ticket{PrizeID: prizeID, TicketNumber: n})
	}
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&tickets, 200).Error
}

// BulkCreate 批量创建 from..to 号彩票
func (r *TicketRepository) BulkCreate(prizeID uint, from, to int) error {
	if from < 1 {
		from = 1
	}
	numbers := make([]int, 0, to-from+1)
	for n := from; n <= to; n++ {
		numbers = append(numbers, n)
	}
	return r.EnsureRange(prizeID, numbers)
}

// Get 获取单张彩票
func (r *TicketRepository) Get(prizeID uint, number int) (*models.Ticket, error) {
	var ticket models.Ticket
	err := r.db.Where("prize_id = ? AND ticket_number = ?", prizeID, number).First(&ticket).Error
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// ListByPrize 获取奖品的全部彩票
func (r *TicketRepository) ListByPrize(prizeID uint) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := r.db.Where("prize_id = ?", prizeID).Order("ticket_number ASC").Find(&tickets).Error
	return tickets, err
}

// UnavailableNumbers 已被预留或已支付的号码
func (r *TicketRepository) UnavailableNumbers(prizeID uint) ([]int, error) {
	var numbers []int
	err := r.db.Model(&models.Ticket{}).
		Where("prize_id = ? AND (is_reserved = ? OR is_paid = ?)", prizeID, true, true).
		Order("ticket_number ASC").
		Pluck("ticket_number", &numbers).Error
	return numbers, err
}

// AvailableNumbers 可购买的号码 = {1..count} - 不可用号码
func (r *TicketRepository) AvailableNumbers(prizeID uint, count int) ([]int, error) {
	taken, err := r.UnavailableNumbers(prizeID)
	if err != nil {
		return nil, err
	}
	takenSet := make(map[int]struct{}, len(taken))
	for _, n := range taken {
		takenSet[n] = struct{}{}
	}
	available := make([]int, 0, count-len(taken))
	for n := 1; n <= count; n++ {
		if _, ok := takenSet[n]; !ok {
			available = append(available, n)
		}
	}
	return available, nil
}

// TryHold 尝试预留一张彩票（原子操作）
// 仅当彩票未支付，且未被预留或已被同一用户预留时成功；同一用户重复预留会刷新截止时间
func (r *TicketRepository) TryHold(prizeID uint, number int, userID uint, until time.Time) (bool, error) {
	result := r.db.Model(&models.Ticket{}).
		Where("prize_id = ? AND ticket_number = ? AND is_paid = ? AND (is_reserved = ? OR user_id = ?)",
			prizeID, number, false, false, userID).
		Updates(map[string]interface{}{
			"user_id":        userID,
			"is_reserved":    true,
			"reserved_until": until,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// HeldByUser 用户在某奖品下预留中的彩票
func (r *TicketRepository) HeldByUser(userID, prizeID uint) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := r.db.Where("user_id = ? AND prize_id = ? AND is_reserved = ? AND is_paid = ?", userID, prizeID, true, false).
		Order("ticket_number ASC").
		Find(&tickets).Error
	return tickets, err
}

// HeldByUserAll 用户在所有奖品下预留中的彩票
func (r *TicketRepository) HeldByUserAll(userID uint) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := r.db.Where("user_id = ? AND is_reserved = ? AND is_paid = ?", userID, true, false).
		Order("prize_id ASC, ticket_number ASC").
		Find(&tickets).Error
	return tickets, err
}

// PaidByUser 用户在某奖品下已支付的彩票
func (r *TicketRepository) PaidByUser(userID, prizeID uint) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := r.db.Where("user_id = ? AND prize_id = ? AND is_paid = ?", userID, prizeID, true).
		Order("ticket_number ASC").
		Find(&tickets).Error
	return tickets, err
}

// ReleaseHeld 释放用户仍在预留中的指定彩票，已支付的跳过
func (r *TicketRepository) ReleaseHeld(ids []uint, userID uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.Model(&models.Ticket{}).
		Where("id IN ? AND user_id = ? AND is_reserved = ? AND is_paid = ?", ids, userID, true, false).
		Updates(releaseFields())
	return result.RowsAffected, result.Error
}

// ReleaseExpired 释放所有已过期且未支付的预留
func (r *TicketRepository) ReleaseExpired(now time.Time) (int64, error) {
	result := r.db.Model(&models.Ticket{}).
		Where("is_reserved = ? AND is_paid = ? AND reserved_until < ?", true, false, now).
		Updates(releaseFields())
	return result.RowsAffected, result.Error
}

// ReleaseExpiredForUser 释放某用户已过期且未支付的预留
func (r *TicketRepository) ReleaseExpiredForUser(userID uint, now time.Time) (int64, error) {
	result := r.db.Model(&models.Ticket{}).
		Where("user_id = ? AND is_reserved = ? AND is_paid = ? AND reserved_until < ?", userID, true, false, now).
		Updates(releaseFields())
	return result.RowsAffected, result.Error
}

// ExtendHold 延长预留并写入支付批次引用
func (r *TicketRepository) ExtendHold(ids []uint, userID uint, until time.Time, ref string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.Model(&models.Ticket{}).
		Where("id IN ? AND user_id = ? AND is_reserved = ? AND is_paid = ?", ids, userID, true, false).
		Updates(map[string]interface{}{
			"reserved_until": until,
			"payment_ref":    ref,
		})
	return result.RowsAffected, result.Error
}

// MarkPaid 将用户预留中的彩票标记为已支付，payment_ref 指向实际入账的支付
func (r *TicketRepository) MarkPaid(ids []uint, userID uint, ref string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.Model(&models.Ticket{}).
		Where("id IN ? AND user_id = ? AND is_reserved = ? AND is_paid = ?", ids, userID, true, false).
		Updates(map[string]interface{}{
			"is_paid":        true,
			"is_reserved":    false,
			"reserved_until": nil,
			"payment_ref":    ref,
		})
	return result.RowsAffected, result.Error
}

// MarkFreePaid 免费奖品直接标记为已支付
func (r *TicketRepository) MarkFreePaid(prizeID uint, number int, userID uint, ref string) (bool, error) {
	result := r.db.Model(&models.Ticket{}).
		Where("prize_id = ? AND ticket_number = ? AND is_paid = ? AND (is_reserved = ? OR user_id = ?)",
			prizeID, number, false, false, userID).
		Updates(map[string]interface{}{
			"user_id":        userID,
			"is_paid":        true,
			"is_reserved":    false,
			"reserved_until": nil,
			"payment_ref":    ref,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ByPaymentRef 携带指定支付引用的彩票
func (r *TicketRepository) ByPaymentRef(ref string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := r.db.Where("payment_ref = ?", ref).Order("ticket_number ASC").Find(&tickets).Error
	return tickets, err
}

// PaidByPrize 奖品下所有已支付彩票（带用户）
func (r *TicketRepository) PaidByPrize(prizeID uint) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := r.db.Preload("User").
		Where("prize_id = ? AND is_paid = ?", prizeID, true).
		Order("ticket_number ASC").
		Find(&tickets).Error
	return tickets, err
}

// CountPaidByUser 用户在某奖品下已支付的张数
func (r *TicketRepository) CountPaidByUser(userID, prizeID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Ticket{}).
		Where("user_id = ? AND prize_id = ? AND is_paid = ?", userID, prizeID, true).
		Count(&count).Error
	return count, err
}

// CountPaidByPrize 奖品下已支付的张数
func (r *TicketRepository) CountPaidByPrize(prizeID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Ticket{}).
		Where("prize_id = ? AND is_paid = ?", prizeID, true).
		Count(&count).Error
	return count, err
}

// DetachUser 释放用户所有未支付的预留
func (r *TicketRepository) DetachUser(userID uint) (int64, error) {
	result := r.db.Model(&models.Ticket{}).
		Where("user_id = ? AND is_paid = ?", userID, false).
		Updates(releaseFields())
	return result.RowsAffected, result.Error
}
