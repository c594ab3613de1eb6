// Process-wide log sink. One append-only file plus, optionally, stderr; both
// fed through tint and serialised on a single mutex.
package logsink

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	c "bgio/internal"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

type Config struct {
	Path   string
	Stderr bool
	Level  slog.Level
}

func DefaultConfig() Config {
	return Config{Path: c.DEFAULT_LOG_PATH, Stderr: true, Level: slog.LevelInfo}
}

var (
	mu     sync.Mutex
	file   *os.File
	logger *slog.Logger

	writeMu sync.Mutex
)

// Init opens the sink. Later calls return the logger built by the first one
// until Teardown.
func Init(cfg Config) (*slog.Logger, error) {
	mu.Lock()
	defer mu.Unlock()

	if logger != nil { return logger, nil }
	if cfg.Path == "" { cfg.Path = c.DEFAULT_LOG_PATH }

	f, err := os.OpenFile(cfg.Path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, c.F_PERM_SHARE_READ)
	if err != nil { return nil, err }

	handlers := []slog.Handler{
		tint.NewHandler(lockedWriter{f}, &tint.Options{
			Level:      cfg.Level,
			TimeFormat: time.DateTime,
			NoColor:    true,
		}),
	}
	if cfg.Stderr {
		fd := os.Stderr.Fd()
		handlers = append(handlers, tint.NewHandler(lockedWriter{os.Stderr}, &tint.Options{
			Level:      cfg.Level,
			TimeFormat: time.TimeOnly,
			NoColor:    !(isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)),
		}))
	}

	file = f
	logger = slog.New(fanout(handlers))
	return logger, nil
}

// Teardown closes the sink file. Loggers handed out earlier keep working but
// their file output is dropped.
func Teardown() error {
	mu.Lock()
	defer mu.Unlock()

	if logger == nil { return nil }
	logger = nil

	writeMu.Lock()
	err := file.Close()
	writeMu.Unlock()
	file = nil
	return err
}

// Failures are swallowed: logging must never fail the caller.
type lockedWriter struct {
	w io.Writer
}

func (l lockedWriter) Write(p []byte) (int, error) {
	writeMu.Lock()
	defer writeMu.Unlock()
	l.w.Write(p)
	return len(p), nil
}

type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, lvl slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, lvl) { return true }
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) { continue }
		if err := h.Handle(ctx, r.Clone()); err != nil { errs = append(errs, err) }
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f { out[i] = h.WithAttrs(attrs) }
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f { out[i] = h.WithGroup(name) }
	return out
}
