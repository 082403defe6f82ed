// Package web Web API 服务
package web

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/keyauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/smysle/sakura-raffle-go/internal/config"
	"github.com/smysle/sakura-raffle-go/internal/database/models"
	"github.com/smysle/sakura-raffle-go/internal/service"
	pkglogger "github.com/smysle/sakura-raffle-go/pkg/logger"
)

// requestTimeout 单个请求的处理超时
const requestTimeout = 30 * time.Second

// WinnerNotifier 开奖后通知中奖者
type WinnerNotifier interface {
	WinnerDrawn(ctx context.Context, result *service.WinnerResult)
}

// Deps Web 服务依赖
type Deps struct {
	DB       *gorm.DB
	Prizes   *service.PrizeService
	Payments *service.PaymentService
	FAQ      *service.FAQService
	Notifier WinnerNotifier // 可为空
}

// Server Web 服务器
type Server struct {
	app       *fiber.App
	cfg       *config.APIConfig
	deps      Deps
	startTime time.Time
}

// New 创建 Web 服务器
func New(cfg *config.APIConfig, deps Deps) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// 中间件
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, X-Admin-Token",
	}))

	server := &Server{
		app:       app,
		cfg:       cfg,
		deps:      deps,
		startTime: time.Now(),
	}

	// 注册路由
	server.registerRoutes()

	return server
}

// registerRoutes 注册路由
func (s *Server) registerRoutes() {
	// 健康检查
	s.app.Get("/health", s.healthCheck)
	s.app.Get("/", s.healthCheck)

	// API v1
	v1 := s.app.Group("/api/v1")

	// Webhook
	webhook := v1.Group("/webhook")
	webhook.Post("/yookassa", s.yookassaWebhook)

	// 管理接口
	auth := s.adminAuth()
	v1.Get("/status", auth, s.detailedStatus)
	v1.Get("/payments/:ref", auth, s.getPayment)

	prizes := v1.Group("/prizes", auth)
	prizes.Get("/", s.listPrizes)
	prizes.Post("/", s.createPrize)
	prizes.Get("/:id", s.getPrize)
	prizes.Put("/:id", s.updatePrize)
	prizes.Delete("/:id", s.deletePrize)
	prizes.Get("/:id/participants", s.participants)
	prizes.Post("/:id/winner", s.drawWinner)

	v1.Get("/faq", auth, s.getFAQ)
	v1.Put("/faq", auth, s.putFAQ)
}

// Start 启动服务器
func (s *Server) Start() error {
	if !s.cfg.Enabled {
		pkglogger.Info().Msg("【API服务】未启用，跳过...")
		return nil
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	pkglogger.Info().Str("addr", addr).Msg("【API服务】启动中...")

	return s.app.Listen(addr)
}

// Stop 停止服务器
func (s *Server) Stop() error {
	return s.app.Shutdown()
}

// adminAuth 校验 X-Admin-Token，未配置令牌时关闭管理接口
func (s *Server) adminAuth() fiber.Handler {
	token := []byte(s.cfg.AdminToken)
	if len(token) == 0 {
		return func(c *fiber.Ctx) error {
			return fiber.NewError(fiber.StatusForbidden, "管理接口未启用")
		}
	}
	return keyauth.New(keyauth.Config{
		KeyLookup: "header:X-Admin-Token",
		Validator: func(_ *fiber.Ctx, key string) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(key), token) == 1, nil
		},
		ErrorHandler: func(_ *fiber.Ctx, _ error) error {
			return fiber.NewError(fiber.StatusUnauthorized, "无效的管理令牌")
		},
	})
}

// requestContext 请求级超时
func requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), requestTimeout)
}

// statusFor 错误分类对应的 HTTP 状态码
func statusFor(err error) int {
	if errors.Is(err, service.ErrPrizeNotFound) || errors.Is(err, service.ErrPaymentNotFound) ||
		errors.Is(err, service.ErrFAQUnavailable) {
		return fiber.StatusNotFound
	}
	switch service.ErrorKind(err) {
	case service.KindValidation:
		return fiber.StatusBadRequest
	case service.KindConflict, service.KindIntegrity:
		return fiber.StatusConflict
	case service.KindExternal:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// fail 按错误分类返回 JSON 错误
func fail(c *fiber.Ctx, err error) error {
	code := statusFor(err)
	msg := err.Error()
	if code == fiber.StatusInternalServerError {
		pkglogger.Error().Err(err).Str("path", c.Path()).Msg("处理 API 请求失败")
		msg = "内部错误"
	}
	return c.Status(code).JSON(fiber.Map{
		"error": msg,
		"kind":  service.ErrorKind(err),
	})
}

func paramID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "无效的奖品ID")
	}
	return uint(id), nil
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Uptime    string `json:"uptime"`
}

// healthCheck 健康检查
func (s *Server) healthCheck(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().Format(time.RFC3339),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
	})
}

// StatusResponse 详细状态响应
type StatusResponse struct {
	Status      string         `json:"status"`
	Uptime      string         `json:"uptime"`
	System      SystemInfo     `json:"system"`
	Database    DatabaseStatus `json:"database"`
	ActivePrize *models.Prize  `json:"active_prize,omitempty"`
}

// SystemInfo 系统信息
type SystemInfo struct {
	GoVersion    string `json:"go_version"`
	NumCPU       int    `json:"num_cpu"`
	NumGoroutine int    `json:"num_goroutine"`
	MemAlloc     string `json:"mem_alloc"`
}

// DatabaseStatus 数据库状态
type DatabaseStatus struct {
	Connected bool `json:"connected"`
}

// detailedStatus 详细状态
func (s *Server) detailedStatus(c *fiber.Ctx) error {
	// 系统信息
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	// 数据库状态
	dbConnected := false
	if s.deps.DB != nil {
		sqlDB, err := s.deps.DB.DB()
		if err == nil && sqlDB.Ping() == nil {
			dbConnected = true
		}
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	active, err := s.deps.Prizes.Active(ctx)
	if err != nil && !errors.Is(err, service.ErrNoActivePrize) {
		pkglogger.Warn().Err(err).Msg("获取当前奖品失败")
	}

	return c.JSON(StatusResponse{
		Status: "ok",
		Uptime: time.Since(s.startTime).Round(time.Second).String(),
		System: SystemInfo{
			GoVersion:    runtime.Version(),
			NumCPU:       runtime.NumCPU(),
			NumGoroutine: runtime.NumGoroutine(),
			MemAlloc:     fmt.Sprintf("%.2f MB", float64(memStats.Alloc)/1024/1024),
		},
		Database: DatabaseStatus{
			Connected: dbConnected,
		},
		ActivePrize: active,
	})
}

// PrizeRequest 创建或修改奖品的请求体
type PrizeRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Image       *string         `json:"image"`
	StartDate   time.Time       `json:"start_date"`
	EndDate     time.Time       `json:"end_date"`
	TicketPrice decimal.Decimal `json:"ticket_price"`
	TicketCount int             `json:"ticket_count"`
}

func (r PrizeRequest) input() service.PrizeInput {
	return service.PrizeInput{
		Title:       r.Title,
		Description: r.Description,
		Image:       r.Image,
		StartDate:   r.StartDate,
		EndDate:     r.EndDate,
		TicketPrice: r.TicketPrice,
		TicketCount: r.TicketCount,
	}
}

func (s *Server) listPrizes(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	prizes, err := s.deps.Prizes.List(ctx)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"prizes": prizes})
}

func (s *Server) getPrize(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	prize, err := s.deps.Prizes.Get(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(prize)
}

func (s *Server) createPrize(c *fiber.Ctx) error {
	var req PrizeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "无效的请求体")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	prize, err := s.deps.Prizes.Create(ctx, req.input())
	if err != nil {
		return fail(c, err)
	}
	pkglogger.Info().Uint("prize_id", prize.ID).Str("title", prize.Title).Msg("通过 API 创建奖品")
	return c.Status(fiber.StatusCreated).JSON(prize)
}

func (s *Server) updatePrize(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	var req PrizeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "无效的请求体")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	prize, err := s.deps.Prizes.Update(ctx, id, req.input())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(prize)
}

func (s *Server) deletePrize(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := s.deps.Prizes.Delete(ctx, id); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) participants(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	participants, err := s.deps.Prizes.Participants(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"participants": participants})
}

func (s *Server) drawWinner(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	result, err := s.deps.Prizes.DetermineWinner(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	if s.deps.Notifier != nil {
		s.deps.Notifier.WinnerDrawn(ctx, result)
	}
	return c.JSON(result)
}

func (s *Server) getPayment(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	info, err := s.deps.Payments.Describe(ctx, c.Params("ref"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(info)
}

// FAQRequest 更新常见问题的请求体
type FAQRequest struct {
	Text string `json:"text"`
}

func (s *Server) getFAQ(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	faq, err := s.deps.FAQ.Active(ctx)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(faq)
}

func (s *Server) putFAQ(c *fiber.Ctx) error {
	var req FAQRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "无效的请求体")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	faq, err := s.deps.FAQ.Set(ctx, req.Text)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(faq)
}

// YooKassaNotification 支付网关回调载荷
type YooKassaNotification struct {
	Type   string `json:"type"`
	Event  string `json:"event"`
	Object struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"object"`
}

// yookassaWebhook 处理支付回调
// 回调内容不可信，只用其中的支付 ID 向网关重新查询状态
func (s *Server) yookassaWebhook(c *fiber.Ctx) error {
	var payload YooKassaNotification
	if err := c.BodyParser(&payload); err != nil || payload.Object.ID == "" {
		pkglogger.Warn().Err(err).Msg("解析 YooKassa 回调失败")
		return fiber.NewError(fiber.StatusBadRequest, "无效的请求体")
	}

	pkglogger.Debug().
		Str("event", payload.Event).
		Str("payment_id", payload.Object.ID).
		Msg("收到 YooKassa 回调")

	ctx, cancel := requestContext(c)
	defer cancel()

	result, err := s.deps.Payments.Poll(ctx, payload.Object.ID)
	if err != nil {
		if errors.Is(err, service.ErrPaymentNotFound) {
			// 不是本系统发起的支付，应答成功避免网关重试
			pkglogger.Warn().Str("payment_id", payload.Object.ID).Msg("回调的支付不存在")
			return c.JSON(fiber.Map{"status": "ignored"})
		}
		if errors.Is(err, service.ErrRefundRequired) {
			// 已记录待退款，重试也无法入账
			return c.JSON(fiber.Map{"status": models.PaymentRefundRequired, "settled": false})
		}
		return fail(c, err)
	}

	pkglogger.Info().
		Str("payment_id", result.Ref).
		Str("status", string(result.Status)).
		Bool("settled", result.Settled).
		Msg("已处理 YooKassa 回调")
	return c.JSON(fiber.Map{"status": result.Status, "settled": result.Settled})
}
