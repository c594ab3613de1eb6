//go:build unix && !linux

package fileio

import (
	"fmt"
	"log/slog"
)

// No native async file I/O here; everything completes inside issue.
func newBackend(cfg Config, log *slog.Logger) (backend, error) {
	switch cfg.Backend {
	case BackendAuto, BackendSync:
		return &syncBackend{}, nil
	}
	return nil, fmt.Errorf("%q: %w", cfg.Backend, ErrBackend)
}
