package dialogue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scenario = []string{
	"맛있는 거 추천해줘",
	"생신이에요 내일요",
	"샴페인 축제 디너로 할게요",
	"디럭스로 해주세요",
	"바게트 6개로 바꿔줘",
	"맞아요",
	"없어요",
}

var scenarioOrder = Order{
	Dinner:       "샴페인 축제 디너",
	Style:        StyleDeluxe,
	Baguettes:    6,
	Champagne:    1,
	DeliveryDate: "내일",
}

func ptr[T any](v T) *T { return &v }

// drive feeds the first n scenario utterances and fails on any error.
func drive(t *testing.T, c *Controller, n int) {
	t.Helper()
	for _, u := range scenario[:n] {
		_, err := c.Handle(context.Background(), u)
		require.NoError(t, err, "utterance %q", u)
	}
}

func failing(context.Context, string, Order) (Interpretation, error) {
	return Interpretation{}, errors.New("connection refused")
}

func TestController_Scenario(t *testing.T) {
	cases := []struct {
		name   string
		interp Interpreter
		notice NoticeStatus
	}{
		{"keywords only", nil, NoticeSkipped},
		{"interpreter always fails", InterpreterFunc(failing), NoticeFailed},
		{"interpreter knows nothing", InterpreterFunc(func(context.Context, string, Order) (Interpretation, error) {
			return Interpretation{Intent: IntentUnknown}, nil
		}), NoticeOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var completed []Order
			c := NewController(Config{
				SessionID:   "s1",
				Interpreter: tc.interp,
				OnComplete:  func(o Order) { completed = append(completed, o) },
			})

			want := []State{
				StateAskOccasion, StateChooseDinner, StateChooseStyle, StateAdjustQuantities,
				StateConfirm, StateAnythingElse, StateDone,
			}
			for i, u := range scenario {
				reply, err := c.Handle(context.Background(), u)
				require.NoError(t, err)
				assert.Equal(t, want[i], reply.State, "after %q", u)
				assert.Equal(t, tc.notice, reply.Notice.Status)
			}

			assert.Equal(t, scenarioOrder, c.Order())
			require.Len(t, completed, 1)
			assert.Equal(t, scenarioOrder, completed[0])

			tr := c.Transcript()
			require.Len(t, tr, 1+2*len(scenario))
			assert.Equal(t, msgGreeting, tr[0].Text)
			assert.Equal(t, Message{Speaker: SpeakerUser, Text: scenario[0]}, tr[1])
			assert.Equal(t, "내일에 주문하신 대로 보내드리겠습니다. 감사합니다.", tr[len(tr)-1].Text)
		})
	}
}

func TestController_InterpreterOnly(t *testing.T) {
	// Utterances carry no keywords; every step is resolved from slots.
	answers := []Interpretation{
		{Intent: IntentRecommend},
		{Intent: IntentEvent, DeliveryDate: ptr("12월 3일")},
		{Intent: IntentChooseDinner, Dinner: ptr("발렌타인 디너")},
		{Intent: IntentChooseStyle, Style: ptr(StyleGrand)},
		{Intent: IntentAdjustQuantity, Baguettes: ptr(2), Champagne: ptr(3)},
		{Intent: IntentConfirm, IsCorrect: ptr(true)},
		{Intent: IntentFinish},
	}
	var calls int
	var seen []Order
	interp := InterpreterFunc(func(_ context.Context, _ string, cur Order) (Interpretation, error) {
		seen = append(seen, cur)
		a := answers[calls]
		calls++
		return a, nil
	})

	c := NewController(Config{Interpreter: interp})
	for range answers {
		_, err := c.Handle(context.Background(), "음")
		require.NoError(t, err)
	}

	assert.Equal(t, StateDone, c.State())
	assert.Equal(t, Order{
		Dinner: "발렌타인 디너", Style: StyleGrand, Baguettes: 2, Champagne: 3, DeliveryDate: "12월 3일",
	}, c.Order())

	require.Len(t, seen, len(answers))
	assert.Equal(t, NewOrder(), seen[0])
	assert.Equal(t, "발렌타인 디너", seen[3].Dinner, "interpreter sees the order as of turn start")
}

func TestController_UnmatchedUtteranceReprompts(t *testing.T) {
	cases := []struct {
		steps    int
		state    State
		reprompt string
	}{
		{0, StateGreeting, msgGreetingReprompt},
		{1, StateAskOccasion, msgOccasionReprompt},
		{2, StateChooseDinner, "샴페인 축제 디너, 프렌치 디너, 발렌타인 디너, 잉글리시 디너 중에 골라주세요."},
		{3, StateChooseStyle, msgStyleReprompt},
		{6, StateAnythingElse, msgWhatElse},
	}

	for _, tc := range cases {
		t.Run(tc.state.String(), func(t *testing.T) {
			c := NewController(Config{})
			drive(t, c, tc.steps)
			require.Equal(t, tc.state, c.State())

			before := c.View()
			reply, err := c.Handle(context.Background(), "글쎄요 잘 모르겠네")
			require.NoError(t, err)

			after := c.View()
			assert.Equal(t, tc.state, after.State)
			assert.Equal(t, before.Order, after.Order)
			require.Len(t, after.Transcript, len(before.Transcript)+2)
			assert.Equal(t, SpeakerUser, after.Transcript[len(after.Transcript)-2].Speaker)
			assert.Equal(t, Message{Speaker: SpeakerSystem, Text: tc.reprompt}, after.Transcript[len(after.Transcript)-1])
			assert.Equal(t, tc.reprompt, reply.Text)
		})
	}
}

func TestController_KeywordOverridesInterpreter(t *testing.T) {
	t.Run("dinner", func(t *testing.T) {
		c := NewController(Config{Interpreter: InterpreterFunc(func(context.Context, string, Order) (Interpretation, error) {
			return Interpretation{Intent: IntentChooseDinner, Dinner: ptr("프렌치 디너")}, nil
		})})
		drive(t, c, 2)
		_, err := c.Handle(context.Background(), "샴페인 축제 디너로 할게요")
		require.NoError(t, err)
		assert.Equal(t, "샴페인 축제 디너", c.Order().Dinner)
	})

	t.Run("style", func(t *testing.T) {
		c := NewController(Config{Interpreter: InterpreterFunc(func(context.Context, string, Order) (Interpretation, error) {
			return Interpretation{Intent: IntentChooseStyle, Style: ptr(StyleSimple)}, nil
		})})
		drive(t, c, 3)
		_, err := c.Handle(context.Background(), "그랜드로 해주세요")
		require.NoError(t, err)
		assert.Equal(t, StyleGrand, c.Order().Style)
	})

	t.Run("quantities", func(t *testing.T) {
		c := NewController(Config{Interpreter: InterpreterFunc(func(context.Context, string, Order) (Interpretation, error) {
			return Interpretation{Intent: IntentAdjustQuantity, Baguettes: ptr(9), Champagne: ptr(5)}, nil
		})})
		drive(t, c, 4)
		_, err := c.Handle(context.Background(), "바게트 6개로 바꿔줘")
		require.NoError(t, err)
		o := c.Order()
		assert.Equal(t, 6, o.Baguettes, "regex match wins")
		assert.Equal(t, 5, o.Champagne, "interpreter value kept without a match")
	})
}

func TestController_DeliveryDate(t *testing.T) {
	dated := InterpreterFunc(func(context.Context, string, Order) (Interpretation, error) {
		return Interpretation{Intent: IntentEvent, DeliveryDate: ptr("12월 5일")}, nil
	})
	cases := []struct {
		name   string
		interp Interpreter
		text   string
		want   string
	}{
		{"tomorrow", nil, "생신이에요 내일요", "내일"},
		{"day after tomorrow", nil, "생신이에요 모레요", "모레"},
		{"no date keeps default", nil, "생일이에요", DefaultDeliveryDate},
		{"interpreter date beats keyword", dated, "생일이에요 내일요", "12월 5일"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewController(Config{Interpreter: tc.interp})
			drive(t, c, 1)
			reply, err := c.Handle(context.Background(), tc.text)
			require.NoError(t, err)
			assert.Equal(t, StateChooseDinner, reply.State)
			assert.Equal(t, tc.want, c.Order().DeliveryDate)
		})
	}
}

func TestController_QuantityExtraction(t *testing.T) {
	cases := []struct {
		text      string
		baguettes int
		champagne int
	}{
		{"바게트 6개로 바꿔줘", 6, 1},
		{"바케트 12개 주세요", 12, 1},
		{"빵 3 개, 샴페인 2병", 3, 2},
		{"샴페인은 3 병으로요", 4, 3},
		{"그대로 해주세요", 4, 1},
		// Digits split by a space must not merge into 12.
		{"바게트 1 2개", 2, 1},
	}

	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			c := NewController(Config{})
			drive(t, c, 4)
			reply, err := c.Handle(context.Background(), tc.text)
			require.NoError(t, err)
			assert.Equal(t, StateConfirm, reply.State)
			o := c.Order()
			assert.Equal(t, tc.baguettes, o.Baguettes)
			assert.Equal(t, tc.champagne, o.Champagne)
		})
	}
}

func TestController_ConfirmRejectionReturnsToQuantities(t *testing.T) {
	completions := 0
	c := NewController(Config{OnComplete: func(Order) { completions++ }})
	drive(t, c, 5)

	reply, err := c.Handle(context.Background(), "아니요 틀렸어요")
	require.NoError(t, err)
	assert.Equal(t, StateAdjustQuantities, reply.State)
	assert.Equal(t, msgCorrection, reply.Text)
	assert.Equal(t, "샴페인 축제 디너", c.Order().Dinner)
	assert.Equal(t, StyleDeluxe, c.Order().Style)
	assert.Zero(t, completions)

	_, err = c.Handle(context.Background(), "샴페인 2병으로 해주세요")
	require.NoError(t, err)
	reply, err = c.Handle(context.Background(), "네")
	require.NoError(t, err)
	assert.Equal(t, StateAnythingElse, reply.State)
	assert.Equal(t, 1, completions)
	assert.Equal(t, 2, c.Order().Champagne)
}

func TestController_CompletionFiresOnce(t *testing.T) {
	var got []Order
	c := NewController(Config{OnComplete: func(o Order) { got = append(got, o) }})
	drive(t, c, 6)

	for _, u := range []string{"음", "하나 더 있어요", "글쎄요"} {
		reply, err := c.Handle(context.Background(), u)
		require.NoError(t, err)
		assert.Equal(t, StateAnythingElse, reply.State)
	}
	_, err := c.Handle(context.Background(), "끝")
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, scenarioOrder, got[0])
}

func TestController_Terminal(t *testing.T) {
	closes := 0
	c := NewController(Config{OnClose: func() { closes++ }})
	drive(t, c, len(scenario))
	n := len(c.Transcript())

	_, err := c.Handle(context.Background(), "맛있는 거 추천해줘")
	assert.ErrorIs(t, err, ErrFinished)
	assert.Len(t, c.Transcript(), n)

	c.Close()
	c.Close()
	assert.Equal(t, 1, closes)
	_, err = c.Handle(context.Background(), "안녕")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestController_RecognitionFailed(t *testing.T) {
	c := NewController(Config{})
	drive(t, c, 3)
	before := c.View()

	c.RecognitionFailed(errors.New("no-speech"))

	after := c.View()
	assert.Equal(t, before.State, after.State)
	assert.Equal(t, before.Order, after.Order)
	require.Len(t, after.Transcript, len(before.Transcript)+1)
	assert.Equal(t, MsgRecognitionFailed, after.Transcript[len(after.Transcript)-1].Text)
}

func TestController_SanitizesInterpretation(t *testing.T) {
	c := NewController(Config{Interpreter: InterpreterFunc(func(context.Context, string, Order) (Interpretation, error) {
		return Interpretation{
			Intent:       "order_pizza",
			Dinner:       ptr("불고기 피자"),
			Style:        ptr(Style("huge")),
			Baguettes:    ptr(-3),
			Champagne:    ptr(-1),
			DeliveryDate: ptr("  "),
		}, nil
	})})

	reply, err := c.Handle(context.Background(), "음")
	require.NoError(t, err)
	assert.Equal(t, StateGreeting, reply.State)
	assert.Equal(t, NoticeOK, reply.Notice.Status)

	drive(t, c, 5)
	assert.Equal(t, StateConfirm, c.State())
	assert.Equal(t, scenarioOrder.Dinner, c.Order().Dinner)
	assert.Equal(t, 6, c.Order().Baguettes)
	assert.Equal(t, 1, c.Order().Champagne)
}

func TestController_InterpreterPanicDegrades(t *testing.T) {
	c := NewController(Config{Interpreter: InterpreterFunc(func(context.Context, string, Order) (Interpretation, error) {
		panic("boom")
	})})
	reply, err := c.Handle(context.Background(), "추천해 주세요")
	require.NoError(t, err)
	assert.Equal(t, StateAskOccasion, reply.State)
	assert.Equal(t, NoticeFailed, reply.Notice.Status)
}

func TestController_SkippedInterpretation(t *testing.T) {
	c := NewController(Config{Interpreter: InterpreterFunc(func(context.Context, string, Order) (Interpretation, error) {
		return Interpretation{}, ErrInterpretationSkipped
	})})
	reply, err := c.Handle(context.Background(), "추천해 주세요")
	require.NoError(t, err)
	assert.Equal(t, NoticeSkipped, reply.Notice.Status)
	assert.Equal(t, StateAskOccasion, reply.State)
}

func TestController_InterpreterTimeout(t *testing.T) {
	c := NewController(Config{
		Timeout: 20 * time.Millisecond,
		Interpreter: InterpreterFunc(func(ctx context.Context, _ string, _ Order) (Interpretation, error) {
			<-ctx.Done()
			return Interpretation{}, ctx.Err()
		}),
	})

	start := time.Now()
	reply, err := c.Handle(context.Background(), "맛있는 거 추천해줘")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, NoticeFailed, reply.Notice.Status)
	assert.Equal(t, StateAskOccasion, reply.State)
}

// stubborn ignores ctx and answers after d.
func stubborn(d time.Duration) InterpreterFunc {
	return func(context.Context, string, Order) (Interpretation, error) {
		time.Sleep(d)
		return Interpretation{Intent: IntentEvent, DeliveryDate: ptr("12월 9일")}, nil
	}
}

func TestController_TimeoutIgnoredByInterpreter(t *testing.T) {
	c := NewController(Config{Timeout: 50 * time.Millisecond, Interpreter: stubborn(2 * time.Second)})

	start := time.Now()
	reply, err := c.Handle(context.Background(), "맛있는 거 추천해줘")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, NoticeFailed, reply.Notice.Status)
	assert.Equal(t, StateAskOccasion, reply.State, "keywords still drive the turn")

	// the late answer never lands on a later turn
	reply, err = c.Handle(context.Background(), "생일이에요")
	require.NoError(t, err)
	assert.Equal(t, StateChooseDinner, reply.State)
	assert.Equal(t, "12월 2일", c.Order().DeliveryDate)
}

func TestController_CloseAbandonsHungInterpreter(t *testing.T) {
	c := NewController(Config{Timeout: time.Minute, Interpreter: stubborn(3 * time.Second)})

	done := make(chan error, 1)
	go func() {
		_, err := c.Handle(context.Background(), "추천해줘")
		done <- err
	}()

	require.Eventually(t, c.Busy, time.Second, time.Millisecond)
	c.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("turn did not return after close")
	}
	assert.Equal(t, StateGreeting, c.State())
}

func TestController_BusyWhileInterpreting(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	c := NewController(Config{Interpreter: InterpreterFunc(func(context.Context, string, Order) (Interpretation, error) {
		close(entered)
		<-release
		return Interpretation{Intent: IntentUnknown}, nil
	})})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := c.Handle(context.Background(), "추천해줘")
		assert.NoError(t, err)
	}()

	<-entered
	assert.True(t, c.Busy())
	_, err := c.Handle(context.Background(), "생일이에요")
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	wg.Wait()
	assert.False(t, c.Busy())
	assert.Equal(t, StateAskOccasion, c.State())
	assert.Len(t, c.Transcript(), 3)
}

func TestController_CloseDiscardsInflightResult(t *testing.T) {
	entered := make(chan struct{})
	var closes atomic.Int32
	c := NewController(Config{
		OnClose: func() { closes.Add(1) },
		Interpreter: InterpreterFunc(func(ctx context.Context, _ string, _ Order) (Interpretation, error) {
			close(entered)
			<-ctx.Done()
			// A late answer that would advance the script if applied.
			return Interpretation{Intent: IntentRecommend}, nil
		}),
	})

	done := make(chan error, 1)
	go func() {
		_, err := c.Handle(context.Background(), "추천해줘")
		done <- err
	}()

	<-entered
	c.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("turn did not return after close")
	}
	assert.Equal(t, StateGreeting, c.State())
	assert.Equal(t, NewOrder(), c.Order())
	assert.True(t, c.Closed())
	assert.EqualValues(t, 1, closes.Load())
}

func TestController_TranscriptIsCopied(t *testing.T) {
	c := NewController(Config{})
	tr := c.Transcript()
	tr[0].Text = "changed"
	assert.Equal(t, msgGreeting, c.Transcript()[0].Text)
}
