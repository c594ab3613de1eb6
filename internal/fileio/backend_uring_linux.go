//go:build linux

package fileio

import (
	"fmt"
	"io"
	"log/slog"

	c "bgio/internal"
	"bgio/internal/iomgr"
)

// io_uring backend. Every System gets its own ring; ops from all of its
// Handles share it.
type uringBackend struct {
	mgr *iomgr.IoMgr
}

func newURingBackend(cfg Config, log *slog.Logger) (*uringBackend, error) {
	mgr, err := iomgr.CreateIoMgr(iomgr.Config{
		Entries: cfg.RingEntries,
		Pin:     cfg.RingPin,
		CPU:     cfg.RingCPU,
	}, log)
	if err != nil { return nil, err }
	return &uringBackend{mgr: mgr}, nil
}

func (b *uringBackend) kind() BackendKind { return BackendURing }

// The kernel moves at most MAX_SQE_TRANSFER bytes per SQE, so one op may
// span several SQEs submitted back to back.
type uringOp struct {
	rop  *iomgr.Op
	code iomgr.OpCode
	fd   sysfd
	buf  []byte
	off  uint64
	n    int
}

func (b *uringBackend) issue(fd sysfd, op *asyncOp, buf []byte) error {
	code := iomgr.OpRead
	if op.kind == opWrite { code = iomgr.OpWrite }

	u := &uringOp{code: code, fd: fd, buf: buf, off: uint64(op.off)}
	if err := b.submit(u); err != nil { return err }
	op.plat = u

	// already reaped: report Done straight away
	for u.rop.Done() && !b.step(op, u) {}
	return nil
}

func (b *uringBackend) poll(fd sysfd, op *asyncOp) bool {
	u := op.plat.(*uringOp)
	for u.rop.Done() {
		if b.step(op, u) { return true }
	}
	return false
}

func (b *uringBackend) wait(fd sysfd, op *asyncOp) {
	u := op.plat.(*uringOp)
	for {
		<-u.rop.Ch
		if b.step(op, u) { return }
	}
}

func (b *uringBackend) submit(u *uringOp) error {
	rest := u.buf[u.n:]
	if len(rest) > c.MAX_SQE_TRANSFER { rest = rest[:c.MAX_SQE_TRANSFER] }
	u.rop = iomgr.NewOp(u.code, u.fd, rest, u.off+uint64(u.n))
	return b.mgr.Submit(u.rop)
}

// step folds a reaped SQE into u and reports whether op is complete. When
// bytes remain it submits the next SQE and returns false.
func (b *uringBackend) step(op *asyncOp, u *uringOp) bool {
	if err := u.rop.Err(); err != nil {
		op.complete(u.n, err)
		return true
	}
	res := int(u.rop.Res)
	u.n += res
	switch {
	case u.n >= len(u.buf):
	case res == 0 && u.code == iomgr.OpWrite:
		op.complete(u.n, io.ErrShortWrite)
		return true
	case res == 0:
		// EOF
	default:
		if err := b.submit(u); err != nil {
			op.complete(u.n, err)
			return true
		}
		return false
	}
	op.complete(u.n, nil)
	return true
}

func (b *uringBackend) sync(fd sysfd) error {
	rop := iomgr.NewOp(iomgr.OpSync, fd, nil, 0)
	if err := b.mgr.Submit(rop); err != nil { return err }
	<-rop.Ch
	return rop.Err()
}

func (b *uringBackend) close() error {
	b.mgr.Close()
	return nil
}

func newBackend(cfg Config, log *slog.Logger) (backend, error) {
	switch cfg.Backend {
	case BackendAuto:
		be, err := newURingBackend(cfg, log)
		if err == nil { return be, nil }
		log.Warn("io_uring unavailable, falling back to blocking I/O", "src", "System", "err", err)
		return &syncBackend{}, nil
	case BackendURing:
		return newURingBackend(cfg, log)
	case BackendSync:
		return &syncBackend{}, nil
	}
	return nil, fmt.Errorf("%q: %w", cfg.Backend, ErrBackend)
}
