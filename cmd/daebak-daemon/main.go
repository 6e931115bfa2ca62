package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	"daebak/internal/audio"
	"daebak/internal/capture"
	"daebak/internal/config"
	"daebak/internal/dialogue"
	"daebak/internal/ipc"
	"daebak/internal/kiosk"
	"daebak/internal/notify"
	"daebak/internal/speech"
	"daebak/internal/tts"
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
	input := cli.StringP("input", "i", "mic", "Utterance source: mic or stdin")
	socket := cli.StringP("socket", "s", ipc.DefaultSocketPath, "Control socket path")
	beepFile := cli.StringP("beep", "b", "beep.mp3", "Listening cue (mp3), empty to disable")
	voice := cli.StringP("voice", "v", tts.DefaultVoice, "espeak-ng voice, empty to stay silent")
	duck := cli.BoolP("duck", "d", false, "Lower other audio while listening")
	logLevel := cli.StringP("log", "l", "info", "Log level")
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

	kcfg := kiosk.Config{
		Catalog:     catalog,
		Interpreter: interp,
		Timeout:     cfg.InterpreterTimeout,
		Sink:        sink,
	}
	if *voice != "" {
		v := *voice
		kcfg.Speak = func(text string) error { return tts.Speak(v, text) }
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch *input {
	case "stdin":
		kcfg.Recognizer = capture.NewLines(os.Stdin)
		log.Info("Boot up - successful", "input", "stdin")
		if err := kiosk.New(kcfg).Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("Input loop failed", "err", err)
			os.Exit(1)
		}
		return

	case "mic":
		rec, closeMic := openMic(cfg, catalog)
		defer closeMic()
		kcfg.Recognizer = rec
		if *duck {
			kcfg.Ducker = audio.NewDucker(audio.Pactl{}, audio.DefaultDuckOptions())
		}
		if *beepFile != "" {
			b := notify.NewBeeper(*beepFile)
			kcfg.Cue = func() {
				if err := b.Beep(); err != nil {
					log.Warn("Listening cue failed", "err", err)
				}
			}
		}

	default:
		log.Error("Unknown input", "input", *input)
		os.Exit(1)
	}

	k := kiosk.New(kcfg)
	srv, err := ipc.StartServer(*socket, k.Control)
	if err != nil {
		log.Error("Failed ipc server", "err", err)
		os.Exit(1)
	}
	defer srv.Close()

	log.Info("Boot up - successful", "socket", srv.Path())
	<-ctx.Done()
	log.Info("Shutting down")
	k.Session().Controller().Close()
}

// openMic returns nil when the device cannot capture speech; the kiosk
// then tells customers so.
func openMic(cfg config.Config, catalog *dialogue.Catalog) (capture.Recognizer, func()) {
	if cfg.WhisperModel == "" {
		log.Warn("DAEBAK_WHISPER_MODEL not set, speech capture disabled")
		return nil, func() {}
	}

	rec := audio.NewRecorder(audio.DefaultRecorderOptions())
	if err := rec.Init(); err != nil {
		log.Error("Failed to init audio, speech capture disabled", "err", err)
		return nil, func() {}
	}
	log.Debug("Loaded recorder")

	whisper, err := stt.NewTranscriber(cfg.WhisperModel, stt.Options{
		InitialPrompt: strings.Join(append(catalog.DinnerNames(), "바게트", "샴페인", "디럭스", "그랜드", "심플"), ", "),
	})
	if err != nil {
		rec.Close()
		log.Error("Failed to init whisper, speech capture disabled", "err", err)
		return nil, func() {}
	}
	log.Debug("Loaded whisper")

	return speech.NewMic(rec, whisper), func() {
		_ = whisper.Close()
		rec.Close()
	}
}
