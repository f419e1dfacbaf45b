package logger

import (
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

// SetupLogger builds the base logger for env. Local runs log colored text to
// stdout; dev and prod append plain text to logPath.
func SetupLogger(env, logPath string) *slog.Logger {
	var logger *slog.Logger

	switch env {
	case envLocal:
		logger = slog.New(NewConsoleHandler(os.Stdout, slog.LevelDebug))
	case envDev, envProd:
		logFile, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Fatal("error opening log file: ", err)
		}
		log.Printf("env: %s; log file: %s", env, logPath)
		level := slog.LevelInfo
		if env == envDev {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: level}))
	default:
		log.Fatal("invalid environment: ", env)
	}

	return logger
}

// NewConsoleHandler returns a tint handler; colors are off when w is not a terminal.
func NewConsoleHandler(w io.Writer, level slog.Level) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
		NoColor:    !isTerminal(w),
	})
}

func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}

// ParseLevel maps a config value to a level, falling back to def.
func ParseLevel(s string, def slog.Level) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return def
	}
	return level
}
