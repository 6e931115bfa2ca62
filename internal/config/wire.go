package config

import (
	"fmt"
	log "log/slog"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"daebak/internal/dialogue"
	"daebak/internal/nlu"
	"daebak/internal/orders"
	"daebak/internal/proxy"
)

// Interpreter builds the language-model interpreter, or returns nil when
// no API key is configured.
func (c Config) Interpreter(catalog *dialogue.Catalog, opts ...option.RequestOption) (dialogue.Interpreter, error) {
	if !c.InterpreterEnabled() {
		return nil, nil
	}

	opts = append([]option.RequestOption{option.WithAPIKey(c.OpenAIKey)}, opts...)
	if c.SocksProxy != "" {
		hc, err := proxy.NewSocksClient(c.SocksProxy, 2*c.InterpreterTimeout)
		if err != nil {
			return nil, err
		}
		opts = append(opts, option.WithHTTPClient(hc))
	}

	return nlu.New(openai.NewClient(opts...), nlu.Config{
		Model:   c.Model,
		Catalog: catalog,
		RPS:     c.InterpreterRPS,
		Burst:   c.InterpreterBurst,
	}), nil
}

// Sinks opens every configured order sink. The returned close func
// releases them all.
func (c Config) Sinks() (orders.Sink, func(), error) {
	var (
		sinks   orders.Multi
		closers []func() error
	)
	closeAll := func() {
		for _, f := range closers {
			if err := f(); err != nil {
				log.Warn("closing order sink failed", "err", err)
			}
		}
	}

	if c.SQLitePath != "" {
		b, err := orders.OpenBook(c.SQLitePath)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("order book: %w", err)
		}
		sinks = append(sinks, b)
		closers = append(closers, b.Close)
	}
	if c.RedisAddr != "" {
		p := orders.NewPublisher(c.RedisAddr, c.RedisChannel)
		sinks = append(sinks, p)
		closers = append(closers, p.Close)
	}
	if len(sinks) == 0 {
		sinks = append(sinks, orders.SinkFunc(orders.LogOnly))
	}

	return sinks, closeAll, nil
}
