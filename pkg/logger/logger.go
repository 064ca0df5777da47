package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Log is the process logger built by Init. Components take a *slog.Logger
// from their owner and fall back to Default when none is given.
var Log *slog.Logger

const timeLayout = "2006-01-02T15:04:05.000-07:00"

var (
	history    []string
	historyMu  sync.RWMutex
	maxHistory = 500
	logFile    *os.File
	logFileMu  sync.Mutex
)

// ParseLevel maps DEBUG/INFO/WARN/ERROR (any case) to a slog level.
// Unknown strings mean INFO.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init initializes the global logger writing to w (stdout when nil).
func Init(w io.Writer, levelStr string) {
	if w == nil {
		w = os.Stdout
	}
	Log = New(w, levelStr)
	slog.SetDefault(Log)
}

// New builds a logger that writes text records to w and keeps them in the
// in-memory history (and the log file, when one is open).
func New(w io.Writer, levelStr string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(levelStr),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String("time", a.Value.Time().Format(timeLayout))
			}
			return a
		},
	}
	return slog.New(&historyHandler{Handler: slog.NewTextHandler(w, opts)})
}

// Default returns Log, or slog's default logger before Init ran.
func Default() *slog.Logger {
	if Log != nil {
		return Log
	}
	return slog.Default()
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OpenFile starts appending records to h3rvfs-YYYY-MM-DD.log under dir.
func OpenFile(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	name := fmt.Sprintf("h3rvfs-%s.log", time.Now().Format("2006-01-02"))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	logFileMu.Lock()
	if logFile != nil {
		logFile.Close()
	}
	logFile = f
	logFileMu.Unlock()
	return nil
}

// historyHandler records every handled line before passing it on.
type historyHandler struct {
	slog.Handler
}

func (h *historyHandler) Handle(ctx context.Context, r slog.Record) error {
	msg := fmt.Sprintf("time=%s level=%s msg=%q", r.Time.Format(timeLayout), r.Level, r.Message)
	r.Attrs(func(a slog.Attr) bool {
		msg += fmt.Sprintf(" %s=%v", a.Key, a.Value)
		return true
	})

	historyMu.Lock()
	if len(history) >= maxHistory {
		history = history[1:]
	}
	history = append(history, msg)
	historyMu.Unlock()

	err := h.Handler.Handle(ctx, r)

	logFileMu.Lock()
	if logFile != nil {
		fmt.Fprintln(logFile, msg)
	}
	logFileMu.Unlock()
	return err
}

func (h *historyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &historyHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *historyHandler) WithGroup(name string) slog.Handler {
	return &historyHandler{Handler: h.Handler.WithGroup(name)}
}

// GetHistory returns a copy of the most recent log lines.
func GetHistory() []string {
	historyMu.RLock()
	defer historyMu.RUnlock()
	cp := make([]string, len(history))
	copy(cp, history)
	return cp
}

// Close closes the log file if one is open
func Close() {
	logFileMu.Lock()
	defer logFileMu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

// Helper functions for easy access
func Debug(msg string, args ...any) {
	Default().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	Default().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	Default().Error(msg, args...)
}

func Fatal(msg string, args ...any) {
	Default().Error(msg, args...)
	os.Exit(1)
}
