package dialogue

import (
	"context"
	"strings"
)

type Intent string

const (
	IntentRecommend      Intent = "recommend"
	IntentEvent          Intent = "event"
	IntentChooseDinner   Intent = "choose_dinner"
	IntentChooseStyle    Intent = "choose_style"
	IntentAdjustQuantity Intent = "adjust_quantity"
	IntentConfirm        Intent = "confirm"
	IntentFinish         Intent = "finish"
	IntentUnknown        Intent = "unknown"
)

func (i Intent) Valid() bool {
	switch i {
	case IntentRecommend, IntentEvent, IntentChooseDinner, IntentChooseStyle,
		IntentAdjustQuantity, IntentConfirm, IntentFinish, IntentUnknown:
		return true
	}
	return false
}

// Interpretation is a best-effort reading of one utterance. Nil slots were
// not extracted.
type Interpretation struct {
	Intent       Intent
	Dinner       *string
	Style        *Style
	Baguettes    *int
	Champagne    *int
	DeliveryDate *string
	IsCorrect    *bool
}

// Interpreter extracts intent and slots from an utterance. Implementations
// receive a copy of the order as it stood when the turn began.
type Interpreter interface {
	Interpret(ctx context.Context, utterance string, current Order) (Interpretation, error)
}

// InterpreterFunc adapts a plain function to Interpreter.
type InterpreterFunc func(ctx context.Context, utterance string, current Order) (Interpretation, error)

func (f InterpreterFunc) Interpret(ctx context.Context, utterance string, current Order) (Interpretation, error) {
	return f(ctx, utterance, current)
}

// sanitize drops every slot the script could not apply as-is, so a confused
// interpreter degrades to "no signal" instead of corrupting the order.
func (c *Catalog) sanitize(in Interpretation) Interpretation {
	out := Interpretation{Intent: in.Intent, IsCorrect: in.IsCorrect}
	if !out.Intent.Valid() {
		out.Intent = IntentUnknown
	}
	if in.Dinner != nil && c.HasDinner(*in.Dinner) {
		d := *in.Dinner
		out.Dinner = &d
	}
	if in.Style != nil && in.Style.Valid() {
		s := *in.Style
		out.Style = &s
	}
	if in.Baguettes != nil && *in.Baguettes >= 0 {
		n := *in.Baguettes
		out.Baguettes = &n
	}
	if in.Champagne != nil && *in.Champagne >= 0 {
		n := *in.Champagne
		out.Champagne = &n
	}
	if in.DeliveryDate != nil {
		if d := strings.TrimSpace(*in.DeliveryDate); d != "" {
			out.DeliveryDate = &d
		}
	}
	return out
}

type NoticeStatus string

const (
	NoticeSkipped NoticeStatus = "skipped"
	NoticeOK      NoticeStatus = "ok"
	NoticeFailed  NoticeStatus = "failed"
)

// Notice reports what happened to the last interpreter call. It is display
// state only.
type Notice struct {
	Status NoticeStatus `json:"status"`
	Text   string       `json:"text"`
}
