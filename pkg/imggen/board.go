// Package imggen 图片生成模块
package imggen

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"image/png"
	"strconv"
	"sync"
	"time"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

// MaxBoardTickets 超过该数量不生成号码牌
const MaxBoardTickets = 300

// ErrTooManyTickets 号码过多
var ErrTooManyTickets = errors.New("彩票数量过多，无法生成号码牌")

// BoardConfig 号码牌配置
type BoardConfig struct {
	Title       string
	TicketCount int
	Held        []int
	Paid        []int
	GeneratedAt time.Time
}

const (
	boardCols    = 10
	cellSize     = 56
	cellGap      = 6
	boardPadding = 24
	headerHeight = 90
	footerHeight = 44
)

// 颜色定义
var (
	bgColor      = color.RGBA{25, 25, 35, 255}    // 深色背景
	freeColor    = color.RGBA{46, 160, 67, 255}   // 可购买
	heldColor    = color.RGBA{230, 160, 30, 255}  // 预留中
	paidColor    = color.RGBA{90, 90, 105, 255}   // 已售出
	textColor    = color.RGBA{255, 255, 255, 255} // 白色文字
	subTextColor = color.RGBA{180, 180, 180, 255} // 灰色文字
	accentColor  = color.RGBA{138, 43, 226, 255}  // 紫色强调
)

var (
	fontOnce  sync.Once
	fontErr   error
	titleFace font.Face
	cellFace  font.Face
	smallFace font.Face
)

// loadFonts 加载内置 Go 字体
func loadFonts() error {
	fontOnce.Do(func() {
		bold, err := truetype.Parse(gobold.TTF)
		if err != nil {
			fontErr = fmt.Errorf("加载字体失败: %w", err)
			return
		}
		regular, err := truetype.Parse(goregular.TTF)
		if err != nil {
			fontErr = fmt.Errorf("加载字体失败: %w", err)
			return
		}
		titleFace = truetype.NewFace(bold, &truetype.Options{Size: 26})
		cellFace = truetype.NewFace(bold, &truetype.Options{Size: 18})
		smallFace = truetype.NewFace(regular, &truetype.Options{Size: 14})
	})
	return fontErr
}

// boardSize 画布尺寸
func boardSize(count int) (int, int) {
	rows := (count + boardCols - 1) / boardCols
	width := boardPadding*2 + boardCols*cellSize + (boardCols-1)*cellGap
	height := headerHeight + rows*cellSize + max(rows-1, 0)*cellGap + footerHeight + boardPadding
	return width, height
}

// cellOrigin 第 n 号格子的左上角
func cellOrigin(n int) (float64, float64) {
	idx := n - 1
	col := idx % boardCols
	row := idx / boardCols
	x := boardPadding + col*(cellSize+cellGap)
	y := headerHeight + row*(cellSize+cellGap)
	return float64(x), float64(y)
}

// RenderTicketBoard 生成号码牌图片：绿色可购买，橙色预留中，灰色已售出
func RenderTicketBoard(cfg BoardConfig) ([]byte, error) {
	if cfg.TicketCount <= 0 {
		return nil, fmt.Errorf("无效的彩票数量: %d", cfg.TicketCount)
	}
	if cfg.TicketCount > MaxBoardTickets {
		return nil, ErrTooManyTickets
	}
	if err := loadFonts(); err != nil {
		return nil, err
	}

	width, height := boardSize(cfg.TicketCount)
	dc := gg.NewContext(width, height)
	dc.SetColor(bgColor)
	dc.Clear()

	held := toSet(cfg.Held)
	paid := toSet(cfg.Paid)

	// 标题
	dc.SetFontFace(titleFace)
	dc.SetColor(textColor)
	dc.DrawStringAnchored(cfg.Title, float64(width)/2, 34, 0.5, 0.5)

	free := cfg.TicketCount - len(held) - len(paid)
	dc.SetFontFace(smallFace)
	dc.SetColor(subTextColor)
	dc.DrawStringAnchored(fmt.Sprintf("free %d / held %d / sold %d", free, len(held), len(paid)), float64(width)/2, 64, 0.5, 0.5)

	dc.SetColor(accentColor)
	dc.SetLineWidth(2)
	dc.DrawLine(boardPadding, headerHeight-12, float64(width-boardPadding), headerHeight-12)
	dc.Stroke()

	// 号码格子
	dc.SetFontFace(cellFace)
	for n := 1; n <= cfg.TicketCount; n++ {
		x, y := cellOrigin(n)
		switch {
		case paid[n]:
			dc.SetColor(paidColor)
		case held[n]:
			dc.SetColor(heldColor)
		default:
			dc.SetColor(freeColor)
		}
		dc.DrawRoundedRectangle(x, y, cellSize, cellSize, 8)
		dc.Fill()

		dc.SetColor(textColor)
		dc.DrawStringAnchored(strconv.Itoa(n), x+cellSize/2, y+cellSize/2, 0.5, 0.35)
	}

	// 底部时间
	dc.SetFontFace(smallFace)
	dc.SetColor(subTextColor)
	footer := cfg.GeneratedAt.Format("2006-01-02 15:04")
	dc.DrawStringAnchored(footer, float64(width)/2, float64(height-footerHeight/2), 0.5, 0.5)

	return exportPNG(dc)
}

func toSet(numbers []int) map[int]bool {
	set := make(map[int]bool, len(numbers))
	for _, n := range numbers {
		set[n] = true
	}
	return set
}

// exportPNG 导出为 PNG
func exportPNG(dc *gg.Context) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, dc.Image()); err != nil {
		return nil, fmt.Errorf("编码 PNG 失败: %w", err)
	}
	return buf.Bytes(), nil
}
