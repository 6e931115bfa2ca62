package dialogue

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"sync"
	"time"
)

const DefaultInterpreterTimeout = 5 * time.Second

type Config struct {
	SessionID string

	// Interpreter is optional; without it every turn runs on keywords only.
	Interpreter Interpreter
	Timeout     time.Duration
	Catalog     *Catalog

	// OnComplete receives a copy of the order when the customer confirms
	// the summary. It runs at most once per session.
	OnComplete func(Order)
	// OnClose runs once, on the first Close.
	OnClose func()

	Logger *log.Logger
}

// Reply is what a turn produced.
type Reply struct {
	State  State  `json:"state"`
	Text   string `json:"text"`
	Notice Notice `json:"notice"`
}

// View is a consistent copy of the controller's state.
type View struct {
	SessionID  string    `json:"session"`
	State      State     `json:"state"`
	Order      Order     `json:"order"`
	Transcript []Message `json:"transcript"`
	Notice     Notice    `json:"notice"`
	Busy       bool      `json:"busy"`
	Closed     bool      `json:"closed"`
}

// Controller runs one ordering conversation. Turns are serialized: while
// one is in flight, including its interpreter round-trip, others are
// refused with ErrBusy.
type Controller struct {
	id          string
	interpreter Interpreter
	timeout     time.Duration
	catalog     *Catalog
	onComplete  func(Order)
	onClose     func()
	log         *log.Logger

	mu         sync.Mutex
	state      State
	order      Order
	transcript []Message
	notice     Notice
	busy       bool
	closed     bool
	completed  bool
	cancel     context.CancelFunc
}

func NewController(cfg Config) *Controller {
	if cfg.Catalog == nil {
		cfg.Catalog = DefaultCatalog()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultInterpreterTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	c := &Controller{
		id:          cfg.SessionID,
		interpreter: cfg.Interpreter,
		timeout:     cfg.Timeout,
		catalog:     cfg.Catalog,
		onComplete:  cfg.OnComplete,
		onClose:     cfg.OnClose,
		log:         cfg.Logger.With("session", cfg.SessionID),
		state:       StateGreeting,
		order:       NewOrder(),
	}
	if c.interpreter == nil {
		c.notice = Notice{Status: NoticeSkipped, Text: noticeDisabled}
	}
	c.transcript = append(c.transcript, Message{Speaker: SpeakerSystem, Text: msgGreeting})
	return c
}

func (c *Controller) SessionID() string { return c.id }

// Handle runs one turn for a recognized utterance.
func (c *Controller) Handle(ctx context.Context, utterance string) (Reply, error) {
	raw := strings.TrimSpace(utterance)

	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return Reply{}, ErrClosed
	case c.state.Terminal():
		c.mu.Unlock()
		return Reply{}, ErrFinished
	case c.busy:
		c.mu.Unlock()
		return Reply{}, ErrBusy
	}
	c.busy = true
	c.transcript = append(c.transcript, Message{Speaker: SpeakerUser, Text: raw})
	snapshot := c.order
	callCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	interp, notice := c.interpret(callCtx, raw, snapshot)
	cancel()

	c.mu.Lock()
	c.busy = false
	c.cancel = nil
	if c.closed {
		c.mu.Unlock()
		c.log.Debug("Dropped turn after close", "text", raw)
		return Reply{}, ErrClosed
	}

	from := c.state
	out := transition(c.catalog, c.state, c.order, newTurn(raw, interp))
	c.state = out.state
	c.order = out.order
	c.notice = notice
	c.transcript = append(c.transcript, Message{Speaker: SpeakerSystem, Text: out.reply})

	deliver := out.complete && !c.completed
	if deliver {
		c.completed = true
	}
	final := c.order
	reply := Reply{State: c.state, Text: out.reply, Notice: notice}
	c.mu.Unlock()

	c.log.Info("Turn", "from", from, "to", out.state, "text", raw, "notice", notice.Status)

	if deliver && c.onComplete != nil {
		c.onComplete(final)
	}
	return reply, nil
}

type interpretResult struct {
	res Interpretation
	err error
}

// interpret asks the interpreter with a deadline. A call that outlives ctx
// is abandoned and its late answer dropped.
func (c *Controller) interpret(ctx context.Context, raw string, snapshot Order) (*Interpretation, Notice) {
	if c.interpreter == nil {
		return nil, Notice{Status: NoticeSkipped, Text: noticeDisabled}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan interpretResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.log.Error("Interpreter panicked", "panic", r)
				done <- interpretResult{err: fmt.Errorf("interpreter panic: %v", r)}
			}
		}()
		res, err := c.interpreter.Interpret(ctx, raw, snapshot)
		done <- interpretResult{res: res, err: err}
	}()

	var r interpretResult
	select {
	case r = <-done:
	case <-ctx.Done():
		c.log.Warn("Interpreter did not answer in time, using keywords", "err", ctx.Err())
		return nil, Notice{Status: NoticeFailed, Text: noticeFailed}
	}

	switch {
	case errors.Is(r.err, ErrInterpretationSkipped):
		c.log.Debug("Interpretation skipped", "err", r.err)
		return nil, Notice{Status: NoticeSkipped, Text: noticeDisabled}
	case r.err != nil:
		c.log.Warn("Interpretation failed, using keywords", "err", r.err)
		return nil, Notice{Status: NoticeFailed, Text: noticeFailed}
	}

	res := c.catalog.sanitize(r.res)
	return &res, Notice{Status: NoticeOK, Text: fmt.Sprintf("%s (%s)", noticeOK, res.Intent)}
}

// RecognitionFailed records a capture error. State and order are untouched.
func (c *Controller) RecognitionFailed(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.state.Terminal() {
		return
	}
	c.log.Warn("Recognition failed", "err", err)
	c.transcript = append(c.transcript, Message{Speaker: SpeakerSystem, Text: MsgRecognitionFailed})
}

// Announce appends a system message outside of the script.
func (c *Controller) Announce(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.transcript = append(c.transcript, Message{Speaker: SpeakerSystem, Text: text})
}

// Close ends the session from any state. An in-flight interpreter call is
// cancelled and its result discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
	state := c.state
	c.mu.Unlock()

	c.log.Info("Session closed", "state", state)
	if c.onClose != nil {
		c.onClose()
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Order() Order {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order
}

func (c *Controller) Transcript() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.transcript...)
}

func (c *Controller) Notice() Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notice
}

func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return View{
		SessionID:  c.id,
		State:      c.state,
		Order:      c.order,
		Transcript: append([]Message(nil), c.transcript...),
		Notice:     c.notice,
		Busy:       c.busy,
		Closed:     c.closed,
	}
}
