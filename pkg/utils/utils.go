// Package utils 工具函数
package utils

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNoTicketNumbers 输入中没有任何号码
var ErrNoTicketNumbers = errors.New("未找到彩票号码")

// OutOfRangeError 号码超出 1..Max
type OutOfRangeError struct {
	Tokens []string
	Max    int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("号码 %s 不在 1-%d 范围内", strings.Join(e.Tokens, ", "), e.Max)
}

var numberPattern = regexp.MustCompile(`\d+`)

// ParseTicketNumbers 从任意文本中提取彩票号码：去重、升序，越界号码全部列出后拒绝
func ParseTicketNumbers(text string, max int) ([]int, error) {
	tokens := numberPattern.FindAllString(text, -1)
	if len(tokens) == 0 {
		return nil, ErrNoTicketNumbers
	}

	seen := make(map[int]struct{}, len(tokens))
	numbers := make([]int, 0, len(tokens))
	var invalid []string
	for _, token := range tokens {
		n, err := strconv.Atoi(token)
		if err != nil || n < 1 || n > max {
			invalid = append(invalid, token)
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		numbers = append(numbers, n)
	}
	if len(invalid) > 0 {
		return nil, &OutOfRangeError{Tokens: invalid, Max: max}
	}

	sort.Ints(numbers)
	return numbers, nil
}

// NormalizeNumbers 去重并升序
func NormalizeNumbers(numbers []int) []int {
	seen := make(map[int]struct{}, len(numbers))
	result := make([]int, 0, len(numbers))
	for _, n := range numbers {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		result = append(result, n)
	}
	sort.Ints(result)
	return result
}

// FormatTicketNumbers 格式化号码列表，如 "1, 2, 5"
func FormatTicketNumbers(numbers []int) string {
	parts := make([]string, len(numbers))
	for i, n := range numbers {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ", ")
}

// FormatPrice 格式化金额
func FormatPrice(amount decimal.Decimal, currency string) string {
	if amount.IsZero() {
		return "免费"
	}
	return amount.StringFixed(2) + " " + currency
}

// RandomIndex 返回 [0, n) 内的均匀随机数
func RandomIndex(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("无效的随机范围: %d", n)
	}
	num, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(num.Int64()), nil
}

// FormatDateTime 按时区格式化时间
func FormatDateTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format("2006-01-02 15:04")
}

// ParseDateTime 在指定时区解析时间，支持 RFC3339 与 "2006-01-02 15:04"
func ParseDateTime(value string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation("2006-01-02 15:04", value, loc)
}

// FormatRemaining 剩余时间，如 "14分32秒"
func FormatRemaining(d time.Duration) string {
	if d <= 0 {
		return "0秒"
	}
	d = d.Round(time.Second)
	minutes := int(d / time.Minute)
	seconds := int((d % time.Minute) / time.Second)
	if minutes > 0 {
		return fmt.Sprintf("%d分%d秒", minutes, seconds)
	}
	return fmt.Sprintf("%d秒", seconds)
}
