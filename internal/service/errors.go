// Package service 业务错误定义
package service

import (
	"errors"
	"fmt"

	"github.com/smysle/sakura-raffle-go/pkg/utils"
)

var (
	ErrPrizeNotFound           = errors.New("奖品不存在")
	ErrPrizeInactive           = errors.New("该抽奖当前未开放")
	ErrNoActivePrize           = errors.New("当前没有进行中的抽奖")
	ErrInvalidTicketNumbers    = errors.New("彩票号码无效")
	ErrTicketsUnavailable      = errors.New("部分彩票已被占用")
	ErrFreePrizeSingleTicket   = errors.New("免费抽奖只能选择一张彩票")
	ErrAlreadyParticipated     = errors.New("您已参加过本次免费抽奖")
	ErrNoHeldTickets           = errors.New("没有待支付的预留彩票")
	ErrGatewayUnavailable      = errors.New("支付服务暂时不可用，请稍后再试")
	ErrPaymentNotFound         = errors.New("支付记录不存在")
	ErrNoPaidTickets           = errors.New("没有已支付的彩票，无法开奖")
	ErrWinnerAlreadyDetermined = errors.New("该奖品已开奖")
	ErrPrizeNotDrawable        = errors.New("奖品尚未开始，不能开奖")
	ErrUserNotFound            = errors.New("用户不存在")
	ErrUserHasPaidTickets      = errors.New("用户持有已支付的彩票，不能删除")
	ErrConcurrentModification  = errors.New("数据已被并发修改，请重试")
	ErrRefundRequired          = fmt.Errorf("%w: 支付已成功但彩票无法入账，需要人工退款", ErrConcurrentModification)

	ErrInvalidPrizeTitle  = errors.New("奖品名称不能为空")
	ErrInvalidPrizeWindow = errors.New("结束时间必须晚于开始时间")
	ErrPrizeEndInPast     = errors.New("结束时间必须在未来")
	ErrInvalidPrizePrice  = errors.New("彩票价格不能为负数")
	ErrInvalidTicketCount = errors.New("彩票数量必须大于 0")
	ErrTicketCountShrink  = errors.New("彩票数量只能增加")
	ErrPrizeOverlap       = errors.New("时间段与其他奖品重叠")
	ErrAnotherPrizeActive = errors.New("已有其他奖品处于激活状态")

	ErrFAQUnavailable = errors.New("常见问题暂未提供")
	ErrInvalidFAQText = errors.New("常见问题内容不能为空且不超过 4096 字")
)

// TicketsUnavailableError 列出所有冲突的号码
type TicketsUnavailableError struct {
	Numbers []int
}

func (e *TicketsUnavailableError) Error() string {
	return fmt.Sprintf("彩票 %s 已被占用", utils.FormatTicketNumbers(e.Numbers))
}

// Is 支持 errors.Is(err, ErrTicketsUnavailable)
func (e *TicketsUnavailableError) Is(target error) bool {
	return target == ErrTicketsUnavailable
}

// Kind 错误分类
type Kind string

const (
	KindValidation Kind = "validation" // 输入错误，修正后可重试
	KindConflict   Kind = "conflict"   // 预期内的冲突
	KindExternal   Kind = "external"   // 外部依赖失败
	KindIntegrity  Kind = "integrity"  // 并发修改导致的前置条件失效
	KindInternal   Kind = "internal"
)

var errorKinds = []struct {
	err  error
	kind Kind
}{
	{ErrInvalidTicketNumbers, KindValidation},
	{ErrFreePrizeSingleTicket, KindValidation},
	{ErrPrizeNotFound, KindValidation},
	{ErrPrizeInactive, KindValidation},
	{ErrNoActivePrize, KindValidation},
	{ErrNoHeldTickets, KindValidation},
	{ErrPrizeNotDrawable, KindValidation},
	{ErrInvalidPrizeTitle, KindValidation},
	{ErrInvalidPrizeWindow, KindValidation},
	{ErrPrizeEndInPast, KindValidation},
	{ErrInvalidPrizePrice, KindValidation},
	{ErrInvalidTicketCount, KindValidation},
	{ErrTicketCountShrink, KindValidation},
	{ErrPrizeOverlap, KindValidation},
	{ErrFAQUnavailable, KindValidation},
	{ErrInvalidFAQText, KindValidation},
	{ErrTicketsUnavailable, KindConflict},
	{ErrAlreadyParticipated, KindConflict},
	{ErrWinnerAlreadyDetermined, KindConflict},
	{ErrAnotherPrizeActive, KindConflict},
	{ErrNoPaidTickets, KindConflict},
	{ErrUserHasPaidTickets, KindConflict},
	{ErrGatewayUnavailable, KindExternal},
	{ErrPaymentNotFound, KindIntegrity},
	{ErrUserNotFound, KindIntegrity},
	{ErrConcurrentModification, KindIntegrity},
}

// ErrorKind 对错误分类，供机器人和 Web 层决定提示方式
func ErrorKind(err error) Kind {
	if err == nil {
		return ""
	}
	for _, ek := range errorKinds {
		if errors.Is(err, ek.err) {
			return ek.kind
		}
	}
	return KindInternal
}
