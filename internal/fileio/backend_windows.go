//go:build windows

package fileio

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sys/windows"
)

// Overlapped backend. Each op carries its own OVERLAPPED and a manual-reset
// event, so several ops on one handle can be waited on independently.
type overlappedBackend struct{}

type overlappedOp struct {
	ov  windows.Overlapped
	buf []byte
	pin runtime.Pinner
}

func (o *overlappedOp) release() {
	if o.ov.HEvent != 0 {
		windows.CloseHandle(o.ov.HEvent)
		o.ov.HEvent = 0
	}
	o.pin.Unpin()
}

func (b *overlappedBackend) kind() BackendKind { return BackendOverlapped }

func (b *overlappedBackend) issue(fd sysfd, op *asyncOp, buf []byte) error {
	ev, err := windows.CreateEvent(nil, 1, 0, nil)
	if err != nil { return fmt.Errorf("CreateEvent: %w", err) }

	o := &overlappedOp{buf: buf}
	o.ov.Offset = uint32(op.off)
	o.ov.OffsetHigh = uint32(op.off >> 32)
	o.ov.HEvent = ev
	o.pin.Pin(&buf[0])
	o.pin.Pin(o)

	var n uint32
	if op.kind == opRead {
		err = windows.ReadFile(fd, buf, &n, &o.ov)
	} else {
		err = windows.WriteFile(fd, buf, &n, &o.ov)
	}

	switch {
	case err == nil:
		// finished on this thread; collect the count through the OVERLAPPED
		b.finish(fd, op, o, false)
		return nil
	case errors.Is(err, windows.ERROR_IO_PENDING):
		op.plat = o
		return nil
	case errors.Is(err, windows.ERROR_HANDLE_EOF):
		o.release()
		op.complete(0, nil)
		return nil
	}
	o.release()
	return err
}

func (b *overlappedBackend) poll(fd sysfd, op *asyncOp) bool {
	return b.finish(fd, op, op.plat.(*overlappedOp), false)
}

func (b *overlappedBackend) wait(fd sysfd, op *asyncOp) {
	b.finish(fd, op, op.plat.(*overlappedOp), true)
}

func (b *overlappedBackend) finish(fd sysfd, op *asyncOp, o *overlappedOp, block bool) bool {
	var n uint32
	err := windows.GetOverlappedResult(fd, &o.ov, &n, block)
	switch {
	case err == nil:
		op.complete(int(n), nil)
	case errors.Is(err, windows.ERROR_IO_INCOMPLETE):
		return false
	case errors.Is(err, windows.ERROR_HANDLE_EOF):
		op.complete(int(n), nil)
	default:
		op.complete(int(n), err)
	}
	o.release()
	return true
}

func (b *overlappedBackend) sync(fd sysfd) error {
	return windows.FlushFileBuffers(fd)
}

func (b *overlappedBackend) close() error { return nil }

func newBackend(cfg Config, log *slog.Logger) (backend, error) {
	switch cfg.Backend {
	case BackendAuto, BackendOverlapped:
		return &overlappedBackend{}, nil
	}
	return nil, fmt.Errorf("%q: %w", cfg.Backend, ErrBackend)
}
