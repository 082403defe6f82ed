// Package service 奖品生命周期服务
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smysle/sakura-raffle-go/internal/database/models"
	"github.com/smysle/sakura-raffle-go/internal/database/repository"
	"github.com/smysle/sakura-raffle-go/pkg/logger"
	"github.com/smysle/sakura-raffle-go/pkg/utils"
	"gorm.io/gorm"
)

// maxTicketCount 单个奖品的彩票上限
const maxTicketCount = 10000

// PrizeService 奖品服务
type PrizeService struct {
	db        *gorm.DB
	prizes    *repository.PrizeRepository
	tickets   *repository.TicketRepository
	users     *repository.UserRepository
	publisher Publisher
	opts      options
}

// NewPrizeService 创建奖品服务，publisher 为 nil 时不发布公告
func NewPrizeService(db *gorm.DB, publisher Publisher, opts ...Option) *PrizeService {
	return &PrizeService{
		db:        db,
		prizes:    repository.NewPrizeRepository(db),
		tickets:   repository.NewTicketRepository(db),
		users:     repository.NewUserRepository(db),
		publisher: publisher,
		opts:      newOptions(opts),
	}
}

// PrizeInput 创建/更新奖品的参数
type PrizeInput struct {
	Title       string
	Description string
	Image       *string
	StartDate   time.Time
	EndDate     time.Time
	TicketPrice decimal.Decimal
	TicketCount int
}

// WinnerResult 开奖结果
type WinnerResult struct {
	PrizeID      uint      `json:"prize_id"`
	PrizeTitle   string    `json:"prize_title"`
	TelegramID   int64     `json:"tg"`
	UserName     string    `json:"name"`
	Username     string    `json:"username"`
	TicketNumber int       `json:"ticket_number"`
	PaidTickets  int       `json:"paid_tickets"`
	DrawnAt      time.Time `json:"drawn_at"`
}

// Participant 参与者及其已支付号码
type Participant struct {
	TelegramID int64  `json:"tg"`
	Name       string `json:"name"`
	Username   string `json:"username"`
	Numbers    []int  `json:"numbers"`
}

// Validate 校验奖品参数，creating 为 true 时要求结束时间在未来
func (s *PrizeService) Validate(ctx context.Context, in PrizeInput, excludeID uint, creating bool) error {
	if strings.TrimSpace(in.Title) == "" {
		return ErrInvalidPrizeTitle
	}
	if !in.EndDate.After(in.StartDate) {
		return ErrInvalidPrizeWindow
	}
	if creating && !in.EndDate.After(s.opts.now()) {
		return ErrPrizeEndInPast
	}
	if in.TicketPrice.IsNegative() {
		return ErrInvalidPrizePrice
	}
	if in.TicketCount <= 0 || in.TicketCount > maxTicketCount {
		return fmt.Errorf("%w（上限 %d）", ErrInvalidTicketCount, maxTicketCount)
	}

	overlapping, err := s.prizes.WithTx(s.db.WithContext(ctx)).
		FindOverlapping(in.StartDate.UTC(), in.EndDate.UTC(), excludeID, s.opts.allowAdjacent)
	if err != nil {
		return err
	}
	if len(overlapping) > 0 {
		other := overlapping[0]
		return fmt.Errorf("%w：「%s」(%s - %s)", ErrPrizeOverlap, other.Title,
			utils.FormatDateTime(other.StartDate, s.opts.location),
			utils.FormatDateTime(other.EndDate, s.opts.location))
	}
	return nil
}

// Create 创建奖品并生成 1..N 号彩票
func (s *PrizeService) Create(ctx context.Context, in PrizeInput) (*models.Prize, error) {
	if err := s.Validate(ctx, in, 0, true); err != nil {
		return nil, err
	}
	prize := &models.Prize{
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Image:       in.Image,
		StartDate:   in.StartDate.UTC(),
		EndDate:     in.EndDate.UTC(),
		TicketPrice: in.TicketPrice.Round(2),
		TicketCount: in.TicketCount,
		Status:      models.PrizeScheduled,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.prizes.WithTx(tx).Create(prize); err != nil {
			return err
		}
		return s.tickets.WithTx(tx).BulkCreate(prize.ID, 1, prize.TicketCount)
	})
	if err != nil {
		return nil, fmt.Errorf("创建奖品失败: %w", err)
	}
	logger.Info().Uint("prize_id", prize.ID).Str("title", prize.Title).Int("tickets", prize.TicketCount).Msg("奖品已创建")
	return prize, nil
}

// Update 更新奖品，彩票数量只能增加
func (s *PrizeService) Update(ctx context.Context, id uint, in PrizeInput) (*models.Prize, error) {
	prize, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.Validate(ctx, in, id, false); err != nil {
		return nil, err
	}
	if in.TicketCount < prize.TicketCount {
		return nil, ErrTicketCountShrink
	}

	oldCount := prize.TicketCount
	prize.Title = strings.TrimSpace(in.Title)
	prize.Description = in.Description
	prize.Image = in.Image
	prize.StartDate = in.StartDate.UTC()
	prize.EndDate = in.EndDate.UTC()
	prize.TicketPrice = in.TicketPrice.Round(2)
	prize.TicketCount = in.TicketCount

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.prizes.WithTx(tx).UpdateDetails(prize); err != nil {
			return err
		}
		if prize.TicketCount > oldCount {
			return s.tickets.WithTx(tx).BulkCreate(prize.ID, oldCount+1, prize.TicketCount)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("更新奖品失败: %w", err)
	}
	logger.Info().Uint("prize_id", prize.ID).Msg("奖品已更新")
	return prize, nil
}

// Delete 删除奖品及其彩票、支付记录
func (s *PrizeService) Delete(ctx context.Context, id uint) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.prizes.WithTx(s.db.WithContext(ctx)).DeleteCascade(id); err != nil {
		return fmt.Errorf("删除奖品失败: %w", err)
	}
	logger.Info().Uint("prize_id", id).Msg("奖品已删除")
	return nil
}

// Get 获取奖品
func (s *PrizeService) Get(ctx context.Context, id uint) (*models.Prize, error) {
	prize, err := s.prizes.WithTx(s.db.WithContext(ctx)).GetWithWinner(id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrPrizeNotFound
		}
		return nil, err
	}
	return prize, nil
}

// List 列出全部奖品
func (s *PrizeService) List(ctx context.Context) ([]models.Prize, error) {
	return s.prizes.WithTx(s.db.WithContext(ctx)).List()
}

// Active 当前激活的奖品，每次都从数据库读取
func (s *PrizeService) Active(ctx context.Context) (*models.Prize, error) {
	prize, err := s.prizes.WithTx(s.db.WithContext(ctx)).GetActive()
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrNoActivePrize
		}
		return nil, err
	}
	return prize, nil
}

// ActivateDue 激活到期的奖品（至多一个），并发布公告
func (s *PrizeService) ActivateDue(ctx context.Context, now time.Time) (*models.Prize, error) {
	db := s.db.WithContext(ctx)
	prizes := s.prizes.WithTx(db)

	active, err := prizes.CountActive()
	if err != nil {
		return nil, err
	}
	if active > 0 {
		return nil, nil
	}

	due, err := prizes.NextDue(now.UTC())
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	ok, err := prizes.Activate(due.ID)
	if err != nil {
		if repository.IsDuplicateKey(err) {
			logger.Debug().Uint("prize_id", due.ID).Msg("已有其他奖品被激活，跳过")
			return nil, nil
		}
		return nil, fmt.Errorf("激活奖品失败: %w", err)
	}
	if !ok {
		return nil, nil
	}

	prize, err := prizes.Get(due.ID)
	if err != nil {
		return nil, err
	}
	logger.Info().Uint("prize_id", prize.ID).Str("title", prize.Title).Msg("奖品已激活")

	if err := s.publishAnnouncement(ctx, prize); err != nil {
		// 激活不回滚，公告由定时刷新补发
		logger.Warn().Err(err).Uint("prize_id", prize.ID).Msg("发布奖品公告失败")
	}
	return prize, nil
}

// Activate 管理员手动激活处于时间窗口内的奖品
func (s *PrizeService) Activate(ctx context.Context, id uint) (*models.Prize, error) {
	prize, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if prize.Status != models.PrizeScheduled || !prize.InWindow(s.opts.now()) {
		return nil, fmt.Errorf("%w：不在可激活的时间窗口内", ErrPrizeInactive)
	}

	ok, err := s.prizes.WithTx(s.db.WithContext(ctx)).Activate(id)
	if err != nil {
		if repository.IsDuplicateKey(err) {
			return nil, ErrAnotherPrizeActive
		}
		return nil, err
	}
	if !ok {
		return nil, ErrConcurrentModification
	}
	prize.Status = models.PrizeActive
	prize.IsActive = true
	logger.Info().Uint("prize_id", prize.ID).Msg("奖品已手动激活")

	if err := s.publishAnnouncement(ctx, prize); err != nil {
		logger.Warn().Err(err).Uint("prize_id", prize.ID).Msg("发布奖品公告失败")
	}
	return prize, nil
}

// RetireExpired 结束已到期的奖品
func (s *PrizeService) RetireExpired(ctx context.Context, now time.Time) ([]models.Prize, error) {
	db := s.db.WithContext(ctx)
	prizes := s.prizes.WithTx(db)
	now = now.UTC()

	expired, err := prizes.ExpiredActive(now)
	if err != nil {
		return nil, err
	}
	var retired []models.Prize
	for _, p := range expired {
		ok, err := prizes.Finish(p.ID)
		if err != nil {
			return retired, fmt.Errorf("结束奖品失败: %w", err)
		}
		if !ok {
			continue
		}
		p.Status = models.PrizeFinished
		p.IsActive = false
		p.ActiveSlot = nil
		retired = append(retired, p)
		logger.Info().Uint("prize_id", p.ID).Str("title", p.Title).Msg("奖品已结束")
		s.updateAnnouncementQuietly(ctx, &p)
	}

	stale, err := prizes.FinishStaleScheduled(now)
	if err != nil {
		return retired, err
	}
	if stale > 0 {
		logger.Warn().Int64("count", stale).Msg("有奖品未被激活就已过期")
	}
	return retired, nil
}

// DetermineWinner 在已支付彩票中均匀随机抽取中奖者，每个奖品只能开奖一次
func (s *PrizeService) DetermineWinner(ctx context.Context, prizeID uint) (*WinnerResult, error) {
	db := s.db.WithContext(ctx)
	prize, err := s.prizes.WithTx(db).Get(prizeID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrPrizeNotFound
		}
		return nil, err
	}
	if prize.WinnerDetermined {
		return nil, ErrWinnerAlreadyDetermined
	}
	if prize.Status == models.PrizeScheduled {
		return nil, ErrPrizeNotDrawable
	}

	paid, err := s.tickets.WithTx(db).PaidByPrize(prize.ID)
	if err != nil {
		return nil, err
	}
	if len(paid) == 0 {
		return nil, ErrNoPaidTickets
	}

	winner := paid[s.opts.random.Intn(len(paid))]
	if winner.UserID == nil {
		return nil, ErrConcurrentModification
	}
	now := s.opts.now()
	ok, err := s.prizes.WithTx(db).SetWinner(prize.ID, *winner.UserID, winner.TicketNumber, now)
	if err != nil {
		return nil, fmt.Errorf("保存开奖结果失败: %w", err)
	}
	if !ok {
		return nil, ErrWinnerAlreadyDetermined
	}

	result := &WinnerResult{
		PrizeID:      prize.ID,
		PrizeTitle:   prize.Title,
		TicketNumber: winner.TicketNumber,
		PaidTickets:  len(paid),
		DrawnAt:      now,
	}
	if winner.User != nil {
		result.TelegramID = winner.User.TelegramID
		result.UserName = winner.User.DisplayName()
		result.Username = winner.User.Username
	}
	logger.Info().
		Uint("prize_id", prize.ID).
		Int64("winner_tg", result.TelegramID).
		Int("ticket", result.TicketNumber).
		Int("paid_tickets", len(paid)).
		Msg("开奖完成")

	if updated, err := s.prizes.WithTx(db).GetWithWinner(prize.ID); err == nil {
		s.updateAnnouncementQuietly(ctx, updated)
	}
	return result, nil
}

// Participants 已支付彩票按用户分组
func (s *PrizeService) Participants(ctx context.Context, prizeID uint) ([]Participant, error) {
	if _, err := s.Get(ctx, prizeID); err != nil {
		return nil, err
	}
	paid, err := s.tickets.WithTx(s.db.WithContext(ctx)).PaidByPrize(prizeID)
	if err != nil {
		return nil, err
	}

	index := make(map[uint]int)
	var participants []Participant
	for _, t := range paid {
		if t.UserID == nil {
			continue
		}
		i, ok := index[*t.UserID]
		if !ok {
			p := Participant{}
			if t.User != nil {
				p.TelegramID = t.User.TelegramID
				p.Name = t.User.DisplayName()
				p.Username = t.User.Username
			}
			participants = append(participants, p)
			i = len(participants) - 1
			index[*t.UserID] = i
		}
		participants[i].Numbers = append(participants[i].Numbers, t.TicketNumber)
	}
	return participants, nil
}
