package nlu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"golang.org/x/time/rate"

	"daebak/internal/dialogue"
)

const DefaultModel = openai.ChatModelGPT5Nano

type Config struct {
	Model   string
	Catalog *dialogue.Catalog
	// RPS and Burst bound calls to the API; turns above the limit are
	// skipped, not queued. RPS <= 0 disables the limit.
	RPS   float64
	Burst int
}

// Client interprets customer utterances with a chat completion model.
type Client struct {
	api     openai.Client
	model   openai.ChatModel
	prompt  string
	limiter *rate.Limiter
}

func New(api openai.Client, cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = string(DefaultModel)
	}
	if cfg.Catalog == nil {
		cfg.Catalog = dialogue.DefaultCatalog()
	}

	c := &Client{
		api:    api,
		model:  openai.ChatModel(cfg.Model),
		prompt: buildSystemPrompt(cfg.Catalog),
	}
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}
	return c
}

type request struct {
	Utterance    string         `json:"utterance"`
	CurrentOrder dialogue.Order `json:"currentOrder"`
}

func (c *Client) Interpret(ctx context.Context, utterance string, current dialogue.Order) (dialogue.Interpretation, error) {
	if c.limiter != nil && !c.limiter.Allow() {
		return dialogue.Interpretation{}, fmt.Errorf("rate limited: %w", dialogue.ErrInterpretationSkipped)
	}

	user, err := json.Marshal(request{Utterance: utterance, CurrentOrder: current})
	if err != nil {
		return dialogue.Interpretation{}, fmt.Errorf("marshal request: %w", err)
	}

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(c.prompt),
			openai.UserMessage(string(user)),
		},
		Model: c.model,
	})
	if err != nil {
		return dialogue.Interpretation{}, fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return dialogue.Interpretation{}, errors.New("no choices in response")
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return dialogue.Interpretation{}, errors.New("empty message content")
	}

	log.Debug("Interpreted", "utterance", utterance, "data", content)

	return Parse(content)
}

// Parse validates a model answer against the result schema and converts it.
// Markdown code fences around the JSON are tolerated.
func Parse(content string) (dialogue.Interpretation, error) {
	raw := stripFence(content)

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return dialogue.Interpretation{}, fmt.Errorf("unmarshal NLU result: %w (raw: %s)", err, content)
	}
	if err := resultSchema.Validate(doc); err != nil {
		return dialogue.Interpretation{}, fmt.Errorf("validate NLU result: %w", err)
	}

	var out result
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return dialogue.Interpretation{}, fmt.Errorf("decode NLU result: %w", err)
	}
	return out.interpretation(), nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

type result struct {
	Intent         string  `json:"intent"`
	Dinner         *string `json:"dinner"`
	Style          *string `json:"style"`
	BaguetteCount  *int    `json:"baguetteCount"`
	ChampagneCount *int    `json:"champagneCount"`
	DeliveryDate   *string `json:"deliveryDate"`
	IsCorrect      *bool   `json:"isCorrect"`
}

func (r result) interpretation() dialogue.Interpretation {
	out := dialogue.Interpretation{
		Intent:       dialogue.Intent(r.Intent),
		Dinner:       r.Dinner,
		Baguettes:    r.BaguetteCount,
		Champagne:    r.ChampagneCount,
		DeliveryDate: r.DeliveryDate,
		IsCorrect:    r.IsCorrect,
	}
	if r.Style != nil {
		s := dialogue.Style(*r.Style)
		out.Style = &s
	}
	return out
}
