package fileio

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	c "bgio/internal"
)

type BackendKind string

const (
	BackendAuto       BackendKind = "auto"
	BackendURing      BackendKind = "uring"
	BackendOverlapped BackendKind = "overlapped"
	BackendSync       BackendKind = "sync"
)

type Config struct {
	Backend     BackendKind
	RingEntries uint32
	// Pin the io_uring reaper to core RingCPU. Ignored by other backends.
	RingPin bool
	RingCPU int
}

func DefaultConfig() Config {
	return Config{
		Backend:     BackendAuto,
		RingEntries: c.DEFAULT_RING_ENTRIES,
	}
}

// The capability every platform provides. issue may complete the op before
// returning; poll never blocks; wait returns only once the op is complete.
type backend interface {
	kind() BackendKind
	issue(fd sysfd, op *asyncOp, buf []byte) error
	poll(fd sysfd, op *asyncOp) bool
	wait(fd sysfd, op *asyncOp)
	sync(fd sysfd) error
	close() error
}

// In-flight bookkeeping for one issued transfer. Backends fill n/err and set
// done; the Handle interprets them.
type asyncOp struct {
	kind opKind
	off  int64
	want int

	n    int
	err  error
	done bool

	// set once a Token consumed this op
	resolved bool

	// backend-private state (ring op, OVERLAPPED, ...)
	plat any
}

func (op *asyncOp) complete(n int, err error) {
	op.n = n
	op.err = err
	op.done = true
}

// System is the entry point: it owns the backend and hands out Handles.
type System struct {
	root *slog.Logger // unlabelled, for deriving per-component loggers
	log  *slog.Logger
	be   backend

	closed atomic.Bool
}

// New selects a backend for cfg. With BackendAuto a native async backend is
// preferred and the blocking one used when it cannot be set up.
func New(cfg Config, log *slog.Logger) (*System, error) {
	if log == nil { log = slog.Default() }
	if cfg.Backend == "" { cfg.Backend = BackendAuto }
	if cfg.RingEntries == 0 { cfg.RingEntries = c.DEFAULT_RING_ENTRIES }

	be, err := newBackend(cfg, log)
	if err != nil {
		log.Error("Unable to set up I/O backend", "src", "System", "backend", cfg.Backend, "err", err)
		return nil, fmt.Errorf("backend %q: %w", cfg.Backend, err)
	}

	s := &System{
		root: log,
		log:  log.With("src", "System"),
		be:   be,
	}
	s.log.Debug("New", "backend", be.kind())
	return s, nil
}

// Backend reports which backend was selected.
func (s *System) Backend() BackendKind {
	return s.be.kind()
}

// Close tears down the backend. Handles must be closed, and tokens resolved,
// before this is called.
func (s *System) Close() error {
	if !s.closed.CompareAndSwap(false, true) { return nil }

	if err := s.be.close(); err != nil {
		s.log.Error("Close backend", "err", err)
		return err
	}
	return nil
}

func (s *System) isClosed() bool {
	return s.closed.Load()
}
