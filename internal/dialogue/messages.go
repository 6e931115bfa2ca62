package dialogue

import (
	"fmt"
	"strings"
)

const (
	msgGreeting         = "안녕하세요, 고객님. 어떤 디너를 주문하시겠습니까?"
	msgAskOccasion      = "무슨 기념일인가요? 생신, 생일 등 말씀해 주세요."
	msgGreetingReprompt = "맛있는 디너를 추천해 드릴까요? 기념일을 알려주세요."
	msgSuggestDinner    = "정말 축하드려요. 프렌치 디너 또는 샴페인 축제 디너는 어떠세요?"
	msgOccasionReprompt = "어떤 기념일인지 다시 말씀해 주세요."
	msgStyleReprompt    = "심플, 그랜드, 디럭스 중에 하나를 말씀해 주세요."
	msgAnythingElse     = "추가로 필요하신 것 있으세요?"
	msgCorrection       = "수정이 필요하면 다시 수량을 말씀해 주세요."
	msgWhatElse         = "추가로 변경할 내용이 있으면 말씀해 주세요."

	MsgRecognitionFailed = "음성 인식 중 오류가 발생했습니다. 다시 시도해 주세요."
	MsgUnsupported       = "이 장치에서는 음성 인식을 지원하지 않습니다."

	noticeDisabled = "AI 해석 미사용: 키워드로 진행합니다."
	noticeOK       = "AI 해석 성공"
	noticeFailed   = "AI 해석 실패: 키워드로 진행합니다."
)

func msgDinnerChosen(dinner string) string {
	return fmt.Sprintf("%s 알겠습니다. 그리고 서빙은 디럭스 스타일 어떨까요?", dinner)
}

func msgDinnerReprompt(c *Catalog) string {
	return strings.Join(c.DinnerNames(), ", ") + " 중에 골라주세요."
}

func msgStyleChosen(c *Catalog, o Order) string {
	dinner := o.Dinner
	if dinner == "" {
		dinner = "선택된 디너"
	}
	return fmt.Sprintf("네, 고객님. 디너는 %s, 서빙은 %s 스타일로 준비합니다. 바게트빵 개수와 샴페인 병 수를 변경하시겠어요?",
		dinner, c.StyleLabel(o.Style))
}

func msgSummary(c *Catalog, o Order) string {
	return fmt.Sprintf("네, 디너는 %s, 서빙은 %s 스타일, 바게트빵 %d개, 샴페인 %d병으로 주문하셨습니다. 맞으면 \"맞아요\"라고 말씀해 주세요.",
		o.Dinner, c.StyleLabel(o.Style), o.Baguettes, o.Champagne)
}

func msgClosing(o Order) string {
	return fmt.Sprintf("%s에 주문하신 대로 보내드리겠습니다. 감사합니다.", o.DeliveryDate)
}
