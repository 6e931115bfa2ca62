// Package config reads the daebak environment. Binaries load the env file
// with godotenv first, so values from it and from the process environment
// are read the same way.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"daebak/internal/dialogue"
	"daebak/internal/nlu"
	"daebak/internal/orders"
)

type Config struct {
	OpenAIKey          string
	Model              string
	InterpreterTimeout time.Duration
	InterpreterRPS     float64
	InterpreterBurst   int

	CatalogPath string

	SQLitePath   string
	RedisAddr    string
	RedisChannel string

	WhisperModel string
	ListenAddr   string
	SocksProxy   string
}

func Default() Config {
	return Config{
		Model:              string(nlu.DefaultModel),
		InterpreterTimeout: dialogue.DefaultInterpreterTimeout,
		InterpreterRPS:     1,
		InterpreterBurst:   3,
		RedisChannel:       orders.DefaultChannel,
		ListenAddr:         ":8092",
	}
}

// Load reads the environment on top of Default. Malformed numbers and
// durations are reported together.
func Load() (Config, error) {
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (Config, error) {
	c := Default()
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("OPENAI_API_KEY", &c.OpenAIKey)
	str("DAEBAK_MODEL", &c.Model)
	str("DAEBAK_CATALOG", &c.CatalogPath)
	str("DAEBAK_SQLITE_PATH", &c.SQLitePath)
	str("DAEBAK_REDIS_ADDR", &c.RedisAddr)
	str("DAEBAK_REDIS_CHANNEL", &c.RedisChannel)
	str("DAEBAK_WHISPER_MODEL", &c.WhisperModel)
	str("DAEBAK_LISTEN_ADDR", &c.ListenAddr)
	str("DAEBAK_SOCKS_PROXY", &c.SocksProxy)

	if v, ok := lookup("DAEBAK_INTERPRETER_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err == nil && d <= 0 {
			err = errors.New("must be positive")
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("DAEBAK_INTERPRETER_TIMEOUT: %w", err))
		} else {
			c.InterpreterTimeout = d
		}
	}
	if v, ok := lookup("DAEBAK_INTERPRETER_RPS"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil && f <= 0 {
			err = errors.New("must be positive")
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("DAEBAK_INTERPRETER_RPS: %w", err))
		} else {
			c.InterpreterRPS = f
		}
	}
	if v, ok := lookup("DAEBAK_INTERPRETER_BURST"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err == nil && n < 1 {
			err = errors.New("must be at least 1")
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("DAEBAK_INTERPRETER_BURST: %w", err))
		} else {
			c.InterpreterBurst = n
		}
	}

	return c, errors.Join(errs...)
}

// InterpreterEnabled reports whether turns can consult the language model.
func (c Config) InterpreterEnabled() bool { return c.OpenAIKey != "" }

// Catalog returns the configured catalog, or the built-in one.
func (c Config) Catalog() (*dialogue.Catalog, error) {
	if c.CatalogPath == "" {
		return dialogue.DefaultCatalog(), nil
	}
	return dialogue.LoadCatalog(c.CatalogPath)
}
