package dialogue

import (
	"regexp"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

var (
	baguetteRe  = regexp.MustCompile(`(바게트|바케트|빵).*?(\d+)\s*개`)
	champagneRe = regexp.MustCompile(`샴페인.*?(\d+)\s*병`)
)

// turn is the input of one transition. raw keeps its whitespace so digit
// runs stay separated; interp is nil when no usable interpretation exists.
type turn struct {
	raw        string
	normalized string
	interp     *Interpretation
}

func newTurn(raw string, interp *Interpretation) turn {
	return turn{raw: norm.NFC.String(raw), normalized: Normalize(raw), interp: interp}
}

func (t turn) intent() Intent {
	if t.interp == nil {
		return IntentUnknown
	}
	return t.interp.Intent
}

func (t turn) has(keywords ...string) bool {
	return containsAny(t.normalized, keywords...)
}

type outcome struct {
	state    State
	order    Order
	reply    string
	complete bool
}

// transition is the whole script. It is pure: the order is passed and
// returned by value. Interpreter slots seed each value and keyword or
// pattern matches on the utterance override them.
func transition(c *Catalog, s State, o Order, t turn) outcome {
	stay := func(reply string) outcome {
		return outcome{state: s, order: o, reply: reply}
	}

	switch s {
	case StateGreeting:
		if t.intent() == IntentRecommend || t.has("맛있는", "추천") {
			return outcome{state: StateAskOccasion, order: o, reply: msgAskOccasion}
		}
		return stay(msgGreetingReprompt)

	case StateAskOccasion:
		if t.intent() != IntentEvent && !t.has("생신", "생일") {
			return stay(msgOccasionReprompt)
		}
		switch {
		case t.interp != nil && t.interp.DeliveryDate != nil:
			o.DeliveryDate = *t.interp.DeliveryDate
		case t.has("내일"):
			o.DeliveryDate = "내일"
		case t.has("모레"):
			o.DeliveryDate = "모레"
		}
		return outcome{state: StateChooseDinner, order: o, reply: msgSuggestDinner}

	case StateChooseDinner:
		var dinner string
		if t.interp != nil && t.interp.Dinner != nil {
			dinner = *t.interp.Dinner
		}
		if d, ok := c.matchDinner(t.normalized); ok {
			dinner = d
		}
		if dinner == "" {
			return stay(msgDinnerReprompt(c))
		}
		o.Dinner = dinner
		return outcome{state: StateChooseStyle, order: o, reply: msgDinnerChosen(dinner)}

	case StateChooseStyle:
		var style Style
		if t.interp != nil && t.interp.Style != nil {
			style = *t.interp.Style
		}
		if st, ok := c.matchStyle(t.normalized); ok {
			style = st
		}
		if style == "" {
			return stay(msgStyleReprompt)
		}
		o.Style = style
		return outcome{state: StateAdjustQuantities, order: o, reply: msgStyleChosen(c, o)}

	case StateAdjustQuantities:
		if t.interp != nil {
			if t.interp.Baguettes != nil {
				o.Baguettes = *t.interp.Baguettes
			}
			if t.interp.Champagne != nil {
				o.Champagne = *t.interp.Champagne
			}
		}
		if n, ok := extractCount(baguetteRe, t.raw, 2); ok {
			o.Baguettes = n
		}
		if n, ok := extractCount(champagneRe, t.raw, 1); ok {
			o.Champagne = n
		}
		return outcome{state: StateConfirm, order: o, reply: msgSummary(c, o)}

	case StateConfirm:
		confirmed := t.interp != nil && t.interp.IsCorrect != nil && *t.interp.IsCorrect
		if confirmed || t.has("맞아요", "맞습니다") || t.normalized == "네" {
			return outcome{state: StateAnythingElse, order: o, reply: msgAnythingElse, complete: true}
		}
		return outcome{state: StateAdjustQuantities, order: o, reply: msgCorrection}

	case StateAnythingElse:
		if t.intent() == IntentFinish || t.has("없어요", "없습니다", "끝") {
			return outcome{state: StateDone, order: o, reply: msgClosing(o)}
		}
		return stay(msgWhatElse)
	}

	return outcome{state: s, order: o}
}

func extractCount(re *regexp.Regexp, raw string, group int) (int, bool) {
	m := re.FindStringSubmatch(raw)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[group])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
