//go:build unix

package fileio

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Blocking backend: every issue call performs the whole transfer before it
// returns, so ops are always complete and Pending never escapes.
type syncBackend struct{}

func (b *syncBackend) kind() BackendKind { return BackendSync }

func (b *syncBackend) issue(fd sysfd, op *asyncOp, buf []byte) error {
	n, err := transferAt(fd, op.kind, buf, op.off)
	op.complete(n, err)
	return nil
}

func (b *syncBackend) poll(fd sysfd, op *asyncOp) bool { return op.done }

func (b *syncBackend) wait(fd sysfd, op *asyncOp) {}

func (b *syncBackend) sync(fd sysfd) error {
	for {
		err := unix.Fsync(fd)
		if errors.Is(err, unix.EINTR) { continue }
		return err
	}
}

func (b *syncBackend) close() error { return nil }
