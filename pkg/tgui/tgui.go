package tgui

import (
	tele "gopkg.in/telebot.v4"
)

// Inline builds an inline keyboard row by row.
type Inline struct {
	rm   *tele.ReplyMarkup
	rows []tele.Row
}

func NewInline() *Inline {
	return &Inline{rm: &tele.ReplyMarkup{}}
}

// Row appends a row. Buttons with empty text are skipped.
func (i *Inline) Row(btn ...tele.Btn) *Inline {
	keep := btn[:0:0]
	for _, b := range btn {
		if b.Text != "" {
			keep = append(keep, b)
		}
	}
	if len(keep) == 0 {
		return i
	}
	i.rows = append(i.rows, i.rm.Row(keep...))
	i.rm.Inline(i.rows...)
	return i
}

// Markup returns the reply markup, or nil when no rows were added.
func (i *Inline) Markup() *tele.ReplyMarkup {
	if len(i.rows) == 0 {
		return nil
	}
	return i.rm
}

// Btn is a callback button carrying raw callback_data.
func Btn(text, data string) tele.Btn {
	return tele.Btn{Text: text, Data: data}
}

// URLBtn opens url when pressed.
func URLBtn(text, url string) tele.Btn {
	return tele.Btn{Text: text, URL: url}
}
