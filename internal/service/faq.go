// Package service 常见问题服务
package service

import (
	"context"
	"strings"

	"github.com/smysle/sakura-raffle-go/internal/database/models"
	"github.com/smysle/sakura-raffle-go/internal/database/repository"
	"github.com/smysle/sakura-raffle-go/pkg/logger"
	"gorm.io/gorm"
)

// faqMaxLength Telegram 单条消息的长度上限
const faqMaxLength = 4096

// FAQService 常见问题文本
type FAQService struct {
	db   *gorm.DB
	faqs *repository.FAQRepository
}

// NewFAQService 创建常见问题服务
func NewFAQService(db *gorm.DB) *FAQService {
	return &FAQService{db: db, faqs: repository.NewFAQRepository(db)}
}

// Active 当前启用的文本
func (s *FAQService) Active(ctx context.Context) (*models.FAQ, error) {
	faq, err := s.faqs.WithTx(s.db.WithContext(ctx)).Active()
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrFAQUnavailable
		}
		return nil, err
	}
	return faq, nil
}

// Set 替换启用的文本，旧文本保留但停用
func (s *FAQService) Set(ctx context.Context, text string) (*models.FAQ, error) {
	text = strings.TrimSpace(text)
	if text == "" || len([]rune(text)) > faqMaxLength {
		return nil, ErrInvalidFAQText
	}

	var faq *models.FAQ
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		faq, err = s.faqs.WithTx(tx).Replace(text)
		return err
	})
	if err != nil {
		return nil, err
	}
	logger.Info().Uint("faq_id", faq.ID).Int("length", len([]rune(text))).Msg("常见问题已更新")
	return faq, nil
}
