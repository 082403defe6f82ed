// Package service 用户服务
package service

import (
	"context"
	"fmt"

	"github.com/smysle/sakura-raffle-go/internal/database/models"
	"github.com/smysle/sakura-raffle-go/internal/database/repository"
	"github.com/smysle/sakura-raffle-go/pkg/logger"
	"github.com/smysle/sakura-raffle-go/pkg/utils"
	"gorm.io/gorm"
)

// UserService 用户服务
type UserService struct {
	db      *gorm.DB
	users   *repository.UserRepository
	tickets *repository.TicketRepository
}

// NewUserService 创建用户服务
func NewUserService(db *gorm.DB) *UserService {
	return &UserService{
		db:      db,
		users:   repository.NewUserRepository(db),
		tickets: repository.NewTicketRepository(db),
	}
}

// Ensure 获取或创建用户，并刷新展示名
func (s *UserService) Ensure(ctx context.Context, r Requester) (*models.TelegramUser, error) {
	return ensureUser(s.users.WithTx(s.db.WithContext(ctx)), r)
}

// ensureUser 资料未变化时只读，变化时 upsert
func ensureUser(repo *repository.UserRepository, r Requester) (*models.TelegramUser, error) {
	if utils.ProfileSynced(r.TelegramID, r.FullName, r.Username) {
		user, err := repo.GetByTG(r.TelegramID)
		if err == nil {
			return user, nil
		}
		if !repository.IsNotFound(err) {
			return nil, err
		}
		utils.ForgetProfile(r.TelegramID)
	}

	user, err := repo.Upsert(r.TelegramID, r.FullName, r.Username)
	if err != nil {
		return nil, fmt.Errorf("保存用户失败: %w", err)
	}
	utils.MarkProfileSynced(r.TelegramID, r.FullName, r.Username)
	return user, nil
}

// Get 根据 Telegram ID 获取用户
func (s *UserService) Get(ctx context.Context, tg int64) (*models.TelegramUser, error) {
	user, err := s.users.WithTx(s.db.WithContext(ctx)).GetByTG(tg)
	if repository.IsNotFound(err) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// SetAdmin 设置管理员标记
func (s *UserService) SetAdmin(ctx context.Context, tg int64, isAdmin bool) error {
	if _, err := s.Get(ctx, tg); err != nil {
		return err
	}
	return s.users.WithTx(s.db.WithContext(ctx)).SetAdmin(tg, isAdmin)
}

// AdminIDs 数据库中被标记为管理员的 Telegram ID
func (s *UserService) AdminIDs(ctx context.Context) ([]int64, error) {
	users, err := s.users.WithTx(s.db.WithContext(ctx)).ListAdmins()
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.TelegramID)
	}
	return ids, nil
}

// Delete 删除用户：先释放其未支付的预留，持有已支付彩票时拒绝
func (s *UserService) Delete(ctx context.Context, tg int64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users := s.users.WithTx(tx)
		tickets := s.tickets.WithTx(tx)

		user, err := users.GetByTG(tg)
		if err != nil {
			if repository.IsNotFound(err) {
				return ErrUserNotFound
			}
			return err
		}
		if _, err := users.LockByID(user.ID); err != nil {
			return err
		}

		var paid int64
		if err := tx.Model(&models.Ticket{}).
			Where("user_id = ? AND is_paid = ?", user.ID, true).
			Count(&paid).Error; err != nil {
			return err
		}
		if paid > 0 {
			return ErrUserHasPaidTickets
		}

		released, err := tickets.DetachUser(user.ID)
		if err != nil {
			return err
		}
		if err := users.Delete(user.ID); err != nil {
			return err
		}
		utils.ForgetProfile(tg)
		logger.Info().Int64("tg", tg).Int64("released", released).Msg("用户已删除")
		return nil
	})
	return err
}
