package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	"daebak/internal/config"
	"daebak/internal/server"
	"daebak/internal/speech"
	"daebak/pkg/stt"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	addr := cli.StringP("addr", "a", "", "Listen address (overrides DAEBAK_LISTEN_ADDR)")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	maxClip := cli.IntP("max-clip", "m", 15, "Longest audio clip accepted, in seconds")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevelMap[*logLevel],
	})))

	log.Info("Booting up")

	if err := godotenv.Load(*envFile); err != nil {
		log.Debug("No env file", "path", *envFile, "err", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Error("Bad configuration", "err", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}

	catalog, err := cfg.Catalog()
	if err != nil {
		log.Error("Failed to load catalog", "err", err)
		os.Exit(1)
	}

	interp, err := cfg.Interpreter(catalog)
	if err != nil {
		log.Error("Failed to set up interpreter", "err", err)
		os.Exit(1)
	}
	if interp == nil {
		log.Warn("OPENAI_API_KEY not set, running on keywords only")
	}

	sink, closeSinks, err := cfg.Sinks()
	if err != nil {
		log.Error("Failed to open order sinks", "err", err)
		os.Exit(1)
	}
	defer closeSinks()

	srvCfg := server.Config{
		Catalog:     catalog,
		Interpreter: interp,
		Timeout:     cfg.InterpreterTimeout,
		Sink:        sink,
	}
	if cfg.WhisperModel != "" {
		whisper, err := stt.NewTranscriber(cfg.WhisperModel, stt.Options{})
		if err != nil {
			log.Error("Failed to init whisper", "err", err)
			os.Exit(1)
		}
		defer whisper.Close()
		srvCfg.Clips = speech.NewClips(whisper, *maxClip)
		log.Debug("Loaded whisper", "model", cfg.WhisperModel)
	}

	srv := server.New(srvCfg)
	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("Boot up - successful", "addr", cfg.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("Sessions did not end in time", "err", err)
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown failed", "err", err)
	}
}
