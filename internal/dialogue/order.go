package dialogue

import "fmt"

type Style string

const (
	StyleSimple Style = "simple"
	StyleGrand  Style = "grand"
	StyleDeluxe Style = "deluxe"
)

func (s Style) Valid() bool {
	switch s {
	case StyleSimple, StyleGrand, StyleDeluxe:
		return true
	}
	return false
}

const (
	DefaultBaguettes    = 4
	DefaultChampagne    = 1
	DefaultDeliveryDate = "12월 2일"
)

// Order is the order accumulated over one dialogue. Dinner and Style stay
// empty until the matching step resolves them.
type Order struct {
	Dinner       string `json:"dinner,omitempty"`
	Style        Style  `json:"style,omitempty"`
	Baguettes    int    `json:"baguetteCount"`
	Champagne    int    `json:"champagneCount"`
	DeliveryDate string `json:"deliveryDate"`
}

func NewOrder() Order {
	return Order{
		Baguettes:    DefaultBaguettes,
		Champagne:    DefaultChampagne,
		DeliveryDate: DefaultDeliveryDate,
	}
}

func (o Order) String() string {
	return fmt.Sprintf("%s/%s baguette=%d champagne=%d date=%s",
		o.Dinner, o.Style, o.Baguettes, o.Champagne, o.DeliveryDate)
}

type Speaker string

const (
	SpeakerSystem Speaker = "system"
	SpeakerUser   Speaker = "user"
)

type Message struct {
	Speaker Speaker `json:"from"`
	Text    string  `json:"text"`
}
