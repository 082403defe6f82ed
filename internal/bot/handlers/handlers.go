// Package handlers Bot 命令处理器
package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"

	"github.com/smysle/sakura-raffle-go/internal/service"
	"github.com/smysle/sakura-raffle-go/pkg/logger"
)

// requestTimeout 单次处理的数据库与网关超时
const requestTimeout = 30 * time.Second

// Services 处理器依赖的业务服务
type Services struct {
	Users        *service.UserService
	Prizes       *service.PrizeService
	Reservations *service.ReservationService
	Payments     *service.PaymentService
	Watcher      *service.PaymentWatcher
	Backup       *service.BackupService
	FAQ          *service.FAQService
}

var svc *Services

// Init 注入业务服务，必须在注册处理器前调用
func Init(s *Services) {
	svc = s
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

// requester 当前发送者
func requester(c tele.Context) service.Requester {
	u := c.Sender()
	return service.Requester{
		TelegramID: u.ID,
		FullName:   strings.TrimSpace(u.FirstName + " " + u.LastName),
		Username:   u.Username,
	}
}

// errorText 按错误类型生成给用户看的提示
func errorText(err error) string {
	switch service.ErrorKind(err) {
	case service.KindValidation, service.KindConflict:
		return "❌ " + err.Error()
	case service.KindExternal:
		return "⚠️ " + err.Error()
	case service.KindIntegrity:
		if errors.Is(err, service.ErrUserNotFound) || errors.Is(err, service.ErrPaymentNotFound) {
			return "❌ " + err.Error()
		}
		logger.Warn().Err(err).Msg("操作因并发修改未完成")
		return "⚠️ 操作未完成，请重新尝试"
	default:
		logger.Error().Err(err).Msg("处理请求失败")
		return "❌ 系统错误，请稍后重试"
	}
}

// parseID 解析命令参数中的 ID
func parseID(arg string) (uint, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(arg), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// editOrReply 编辑消息或发送新消息
// 媒体消息使用 EditCaption，文本消息使用 Edit
func editOrReply(c tele.Context, text string, opts ...interface{}) error {
	msg := c.Message()
	if msg == nil || c.Callback() == nil {
		return c.Send(text, opts...)
	}

	if msg.Photo != nil || msg.Document != nil {
		if _, err := c.Bot().EditCaption(msg, text, opts...); err != nil {
			logger.Debug().Err(err).Msg("EditCaption failed, sending new message")
			return c.Send(text, opts...)
		}
		return nil
	}

	if err := c.Edit(text, opts...); err != nil {
		logger.Debug().Err(err).Msg("Edit failed, sending new message")
		return c.Send(text, opts...)
	}
	return nil
}
