//go:build unix

package fileio

import (
	"errors"
	"io"

	c "bgio/internal"

	"golang.org/x/sys/unix"
)

type sysfd = int

const invalidFD sysfd = -1

func permFor(share Share) uint32 {
	switch share {
	case ShareNone:  return c.F_PERM_SHARE_NONE
	case ShareWrite: return c.F_PERM_SHARE_WRITE
	}
	return c.F_PERM_SHARE_READ
}

func openFD(path string, create bool, access Access, share Share) (sysfd, error) {
	flags := unix.O_CLOEXEC
	if access == ReadWrite {
		flags |= unix.O_RDWR
	} else {
		flags |= unix.O_RDONLY
	}
	if create {
		flags |= unix.O_CREAT | unix.O_EXCL
	}

	for {
		fd, err := unix.Open(path, flags, permFor(share))
		if errors.Is(err, unix.EINTR) { continue }
		if err != nil { return invalidFD, err }
		return fd, nil
	}
}

func closeFD(fd sysfd) error {
	return unix.Close(fd)
}

func fdSize(fd sysfd) (int64, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return 0, err
	}
	return st.Size, nil
}

// pread/pwrite until buf is done, EOF (reads) or an error. Neither touches
// the descriptor's own cursor, so concurrent transfers on one fd do not race
// on it.
func transferAt(fd sysfd, kind opKind, buf []byte, off int64) (int, error) {
	done := 0
	for done < len(buf) {
		var n int
		var err error
		if kind == opRead {
			n, err = unix.Pread(fd, buf[done:], off+int64(done))
		} else {
			n, err = unix.Pwrite(fd, buf[done:], off+int64(done))
		}
		if errors.Is(err, unix.EINTR) { continue }
		if err != nil { return done, err }
		if n == 0 {
			if kind == opRead { return done, nil }
			return done, io.ErrShortWrite
		}
		done += n
	}
	return done, nil
}
