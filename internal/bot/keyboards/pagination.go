// Package keyboards 分页组件
package keyboards

import (
	"fmt"
	"strconv"

	tele "gopkg.in/telebot.v3"
)

// pageWindow 最多显示的页码按钮数
const pageWindow = 5

// pageRange 以当前页为中心取页码区间，靠边时整体平移
func pageRange(current, total, window int) (start, end int) {
	half := window / 2
	start, end = current-half, current+half
	if start < 1 {
		end += 1 - start
		start = 1
	}
	if end > total {
		start -= end - total
		end = total
	}
	if start < 1 {
		start = 1
	}
	return start, end
}

// pageRows 页码行与翻页行，只有一页时为空
func pageRows(current, total int, data func(page int) string) []tele.Row {
	if total <= 1 {
		return nil
	}

	start, end := pageRange(current, total, pageWindow)
	pages := make(tele.Row, 0, end-start+1)
	for i := start; i <= end; i++ {
		if i == current {
			pages = append(pages, tele.Btn{Text: fmt.Sprintf("·%d·", i), Data: "noop"})
			continue
		}
		pages = append(pages, tele.Btn{Text: strconv.Itoa(i), Data: data(i)})
	}

	var nav tele.Row
	if current > 1 {
		nav = append(nav, tele.Btn{Text: "◀️", Data: data(current - 1)})
	}
	if current < total {
		nav = append(nav, tele.Btn{Text: "▶️", Data: data(current + 1)})
	}
	return []tele.Row{pages, nav}
}

// PrizesPagination 奖品列表分页键盘，每个奖品一个按钮
func PrizesPagination(page, total int, prizeRows ...tele.Row) *tele.ReplyMarkup {
	rows := append([]tele.Row{}, prizeRows...)
	rows = append(rows, pageRows(page, total, func(p int) string {
		return fmt.Sprintf("admin_prizes|%d", p)
	})...)
	rows = append(rows, tele.Row{tele.Btn{Text: "« 返回", Data: "admin_panel"}})

	markup := &tele.ReplyMarkup{}
	markup.Inline(rows...)
	return markup
}

// PrizeButton 奖品列表中的单个按钮
func PrizeButton(id uint, label string) tele.Row {
	return tele.Row{tele.Btn{Text: label, Data: fmt.Sprintf("prize|%d", id)}}
}
