package tgui

import (
	"strconv"

	tele "gopkg.in/telebot.v4"
)

// Inline is a small builder for inline keyboards (ReplyMarkup).
type Inline struct {
	rm   *tele.ReplyMarkup
	rows []tele.Row
}

func NewInline() *Inline {
	return &Inline{rm: &tele.ReplyMarkup{}}
}

// Row appends a row of buttons. Empty rows are skipped.
func (i *Inline) Row(btn ...tele.Btn) *Inline {
	if len(btn) == 0 {
		return i
	}
	i.rows = append(i.rows, i.rm.Row(btn...))
	i.rm.Inline(i.rows...)
	return i
}

// Markup returns underlying reply markup.
func (i *Inline) Markup() *tele.ReplyMarkup { return i.rm }

// Len returns the number of rows.
func (i *Inline) Len() int { return len(i.rows) }

// Btn creates a callback button with raw callback_data.
func Btn(text, data string) tele.Btn {
	return tele.Btn{Text: text, Data: data}
}

// URLBtn creates a URL button.
func URLBtn(text, url string) tele.Btn {
	return tele.Btn{Text: text, URL: url}
}

// PagerRow returns prev/next buttons for p. The payload of each button is
// the target page number (0-based). Nil when there is only one page.
func PagerRow(scope, action string, p Page) []tele.Btn {
	var row []tele.Btn
	if p.HasPrev {
		row = append(row, Btn("⬅️ Prev", Data(scope, action, strconv.Itoa(p.Index-1))))
	}
	if p.HasNext {
		row = append(row, Btn("Next ➡️", Data(scope, action, strconv.Itoa(p.Index+1))))
	}
	return row
}
