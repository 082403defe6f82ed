package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smysle/sakura-raffle-go/internal/database/models"
	"github.com/smysle/sakura-raffle-go/internal/database/repository"
	"github.com/smysle/sakura-raffle-go/internal/database/testdb"
	"github.com/smysle/sakura-raffle-go/internal/yookassa"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var (
	alice = Requester{TelegramID: 1001, FullName: "Alice"}
	bob   = Requester{TelegramID: 1002, FullName: "Bob"}
)

// fakeGateway 内存支付网关
type fakeGateway struct {
	mu        sync.Mutex
	seq       int
	requests  []yookassa.CreatePaymentRequest
	statuses  map[string]models.PaymentStatus
	createErr error
	statusErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{statuses: make(map[string]models.PaymentStatus)}
}

func (g *fakeGateway) CreatePayment(_ context.Context, req yookassa.CreatePaymentRequest) (*yookassa.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.seq++
	id := fmt.Sprintf("pay-%d", g.seq)
	g.requests = append(g.requests, req)
	g.statuses[id] = models.PaymentPending
	return &yookassa.Payment{
		ID:              id,
		Status:          models.PaymentPending,
		Amount:          req.Amount,
		Currency:        req.Currency,
		ConfirmationURL: "https://pay.example/" + id,
	}, nil
}

func (g *fakeGateway) GetPaymentStatus(_ context.Context, ref string) (*yookassa.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.statusErr != nil {
		return nil, g.statusErr
	}
	status, ok := g.statuses[ref]
	if !ok {
		return nil, errors.New("payment not found")
	}
	return &yookassa.Payment{ID: ref, Status: status}, nil
}

func (g *fakeGateway) setStatus(ref string, status models.PaymentStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[ref] = status
}

// fakePublisher 内存公告频道
type fakePublisher struct {
	mu         sync.Mutex
	published  []Announcement
	updated    []Announcement
	publishErr error
}

func (p *fakePublisher) Publish(_ context.Context, a Announcement) (*AnnouncementHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.publishErr != nil {
		return nil, p.publishErr
	}
	p.published = append(p.published, a)
	return &AnnouncementHandle{ChatID: -100, MessageID: len(p.published)}, nil
}

func (p *fakePublisher) Update(_ context.Context, _ AnnouncementHandle, a Announcement) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updated = append(p.updated, a)
	return nil
}

type fixture struct {
	db           *gorm.DB
	now          time.Time
	gateway      *fakeGateway
	publisher    *fakePublisher
	reservations *ReservationService
	payments     *PaymentService
	prizes       *PrizeService
	users        *UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		db:        testdb.New(t),
		now:       baseTime,
		gateway:   newFakeGateway(),
		publisher: &fakePublisher{},
	}
	clock := WithClock(func() time.Time { return f.now })
	f.reservations = NewReservationService(f.db, clock, WithHoldDuration(15*time.Minute))
	f.payments = NewPaymentService(f.db, f.gateway, clock, WithPaymentWindow(10*time.Minute))
	f.prizes = NewPrizeService(f.db, f.publisher, clock, WithRandom(rand.New(rand.NewSource(1))))
	f.users = NewUserService(f.db)
	return f
}

// activePrize 直接写库创建一个已激活的奖品
func (f *fixture) activePrize(t *testing.T, price int64, count int) *models.Prize {
	t.Helper()
	prize := f.scheduledPrize(t, price, count, f.now.Add(-time.Hour), f.now.Add(24*time.Hour))
	ok, err := repository.NewPrizeRepository(f.db).Activate(prize.ID)
	require.NoError(t, err)
	require.True(t, ok)
	prize.Status = models.PrizeActive
	prize.IsActive = true
	return prize
}

func (f *fixture) scheduledPrize(t *testing.T, price int64, count int, start, end time.Time) *models.Prize {
	t.Helper()
	prize := &models.Prize{
		Title:       "测试奖品",
		StartDate:   start,
		EndDate:     end,
		TicketPrice: decimal.NewFromInt(price),
		TicketCount: count,
		Status:      models.PrizeScheduled,
	}
	require.NoError(t, repository.NewPrizeRepository(f.db).Create(prize))
	require.NoError(t, repository.NewTicketRepository(f.db).BulkCreate(prize.ID, 1, count))
	return prize
}

func (f *fixture) ticket(t *testing.T, prizeID uint, number int) *models.Ticket {
	t.Helper()
	ticket, err := repository.NewTicketRepository(f.db).Get(prizeID, number)
	require.NoError(t, err)
	return ticket
}

func (f *fixture) countPayments(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&models.Payment{}).Count(&count).Error)
	return count
}

// assertTicketInvariants 所有彩票的状态组合必须合法
func (f *fixture) assertTicketInvariants(t *testing.T) {
	t.Helper()
	var tickets []models.Ticket
	require.NoError(t, f.db.Find(&tickets).Error)
	for _, ticket := range tickets {
		require.NoError(t, ticket.CheckInvariants(), "prize %d ticket %d", ticket.PrizeID, ticket.TicketNumber)
	}
}

func (f *fixture) assertSingleActive(t *testing.T) {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&models.Prize{}).Where("is_active = ?", true).Count(&count).Error)
	require.LessOrEqual(t, count, int64(1))
}
