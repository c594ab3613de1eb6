// Package fileio puts blocking and overlapped file I/O behind one small set
// of operations.
//
// A [System] owns the platform backend and the logger. Handles opened through
// it carry an exclusively owned descriptor and a cached logical position.
// Reads and writes come in two shapes:
//
//   - [Handle.IssueRead] / [Handle.IssueWrite] start a transfer at an explicit
//     offset and return [Done], [Error] or [Pending] together with a [Token].
//     A Token is resolved exactly once with [Handle.Poll] or [Handle.Wait].
//   - [Handle.Read] / [Handle.Write] issue at the cached position, wait, and
//     advance the position on success.
//
// Backends: io_uring on Linux, overlapped I/O on Windows, pread/pwrite
// everywhere else (and on Linux when io_uring cannot be set up). The
// pread/pwrite backend completes every issue call before returning, so
// [Pending] is never observed there.
//
// Nothing here is safe for sharing one Handle across goroutines without
// external synchronization; separate Handles may be used concurrently.
package fileio

import "fmt"

// Outcome of an issue or poll call.
type Result uint8

const (
	Error   Result = 0
	Done    Result = 1
	Pending Result = 2
)

func (r Result) String() string {
	switch r {
	case Error:   return "Error"
	case Done:    return "Done"
	case Pending: return "Pending"
	}
	return fmt.Sprintf("Result(%d)", uint8(r))
}

type Access uint8

const (
	ReadOnly Access = iota
	ReadWrite
)

func (a Access) String() string {
	switch a {
	case ReadOnly:  return "read-only"
	case ReadWrite: return "read-write"
	}
	return fmt.Sprintf("Access(%d)", uint8(a))
}

// Share controls whether other processes may open the same path while the
// Handle is open. Only Windows enforces it; on POSIX it picks the permission
// bits of newly created files and is otherwise a no-op.
type Share uint8

const (
	ShareRead Share = iota
	ShareWrite
	ShareNone
)

func (s Share) String() string {
	switch s {
	case ShareRead:  return "share-read"
	case ShareWrite: return "share-write"
	case ShareNone:  return "share-none"
	}
	return fmt.Sprintf("Share(%d)", uint8(s))
}

type Whence uint8

const (
	WhenceBegin Whence = iota
	WhenceEnd
)

type opKind uint8

const (
	opRead opKind = iota
	opWrite
)

func (k opKind) String() string {
	if k == opRead { return "read" }
	return "write"
}
