//go:build linux

package iomgr

import (
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"unsafe"

	c "bgio/internal"
	"bgio/internal/util"

	"github.com/aethne0/giouring"
	"github.com/negrel/assert"
	"golang.org/x/sys/unix"
)

// PERF:
// 1. read/write fixed
// 2. register buffer
// 3. register file
// The ring serves every Handle of a System, so files cannot be registered up
// front; buffers belong to callers and are only pinned for the op's lifetime.

const RING_DPTHTRG = 0x40
const OP_Q_SIZE    = 0x100

var (
	ErrClosed = errors.New("iomgr: closed")
)

type Config struct {
	Entries uint32
	// Pin the reaper goroutine to core CPU. The zero value leaves it unpinned.
	Pin bool
	CPU int
}

func DefaultConfig() Config {
	return Config{
		Entries: c.DEFAULT_RING_ENTRIES,
	}
}

type IoMgr struct {
	log     *slog.Logger
	ring    *giouring.Ring
	entries int

	opQueue chan *Op
	opSem   chan struct{}

	// only touched by the ringlord
	tickets util.TicketQueue[*Op]

	mu     sync.RWMutex
	closed bool
	quit   chan struct{}
	done   chan struct{}

	pin bool
	cpu int
}

func CreateIoMgr(cfg Config, log *slog.Logger) (*IoMgr, error) {
	if log == nil { log = slog.Default() }
	log = log.With("src", "IoMgr")

	if cfg.Entries == 0 { cfg.Entries = c.DEFAULT_RING_ENTRIES }

	ring, err := giouring.CreateRing(cfg.Entries)
	if err != nil {
		log.Warn("CreateRing", "entries", cfg.Entries, "err", err)
		return nil, err
	}

	m := IoMgr {
		log:     log,
		ring:    ring,
		entries: int(cfg.Entries),
		opQueue: make(chan *Op, OP_Q_SIZE),
		opSem:   make(chan struct{}, cfg.Entries),
		tickets: util.CreateTicketQueue[*Op](int(cfg.Entries)),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		pin:     cfg.Pin,
		cpu:     cfg.CPU,
	}

	log.Debug("CreateIoMgr", "entries", cfg.Entries, "pin", cfg.Pin, "cpu", cfg.CPU)
	go m.ringlord()
	return &m, nil
}

// Close stops accepting ops, lets everything in flight complete, fails
// whatever was still queued with ECANCELED and tears the ring down.
func (m *IoMgr) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.quit)
	m.mu.Unlock()

	<-m.done
	if free := m.tickets.Free(); free != m.entries {
		m.log.Warn("Tickets not returned at close", "free", free, "entries", m.entries)
	}
	m.ring.QueueExit()
	m.log.Debug("Close")
}

type OpCode uint16
const (
	OpNop 	OpCode = iota
	OpWrite
	OpRead
	OpSync
)

func (o OpCode) String() string {
	switch o {
	case OpNop:   return "NOP"
	case OpWrite: return "WRITE"
	case OpRead:  return "READ"
	case OpSync:  return "FSYNC"
	}
	return "INVALID"
}

// One SQE worth of work. The Op must stay reachable until Ch is closed, and
// Buf must not be touched by the caller in the meantime.
type Op struct {
	Fd		int
	Buf		[]byte
	Off		uint64
	Opcode	OpCode

	// Valid once Ch is closed: bytes transferred, or -errno.
	Res		int32
	Ch 		chan struct{}

	pin		runtime.Pinner
	ticket	int
	done	bool
}

func NewOp(opcode OpCode, fd int, buf []byte, off uint64) *Op {
	return &Op{
		Fd:     fd,
		Buf:    buf,
		Off:    off,
		Opcode: opcode,
		Ch:     make(chan struct{}),
		ticket: -1,
	}
}

// Err converts a negative Res into the errno it carries.
func (op *Op) Err() error {
	if op.Res >= 0 { return nil }
	return unix.Errno(-op.Res)
}

// Reports whether the op completed, without blocking.
func (op *Op) Done() bool {
	select {
	case <-op.Ch:
		return true
	default:
		return false
	}
}

// Queues op for submission. Blocks while the ring is saturated.
func (m *IoMgr) Submit(op *Op) error {
	if op.Opcode == OpRead || op.Opcode == OpWrite {
		if len(op.Buf) == 0 || uint64(len(op.Buf)) > c.MAX_TRANSFER {
			return unix.EINVAL
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed { return ErrClosed }

	m.opSem <- struct{}{}
	if len(op.Buf) > 0 { op.pin.Pin(&op.Buf[0]) }
	m.opQueue <- op
	return nil
}

func (m *IoMgr) complete(op *Op, res int32) {
	if op.done { return }
	op.done = true
	op.Res = res
	op.pin.Unpin()
	close(op.Ch)
}

func (m *IoMgr) prepSQE(op *Op) bool {
	sqe := m.ring.GetSQE()
	if sqe == nil {
		// opSem should make this unreachable
		m.log.Error("GetSQE returned nil", "op", op.Opcode)
		m.complete(op, -int32(unix.EBUSY))
		<- m.opSem
		return false
	}

	ticket, ok := m.tickets.Acq(op)
	if !ok {
		m.log.Error("Out of tickets", "op", op.Opcode)
		sqe.PrepareNop()
		sqe.UserData = ^uint64(0)
		m.complete(op, -int32(unix.EBUSY))
		return true
	}
	op.ticket = ticket

	switch op.Opcode {
	case OpNop:
		sqe.PrepareNop()

	case OpWrite:
		sqe.PrepareWrite(op.Fd, uintptr(unsafe.Pointer(&op.Buf[0])), uint32(len(op.Buf)), op.Off)

	case OpRead:
		sqe.PrepareRead(op.Fd, uintptr(unsafe.Pointer(&op.Buf[0])), uint32(len(op.Buf)), op.Off)

	case OpSync:
		sqe.PrepareFsync(op.Fd, 0)

	default:
		m.log.Warn("Invalid opcode", "opcode", op.Opcode)
		sqe.PrepareNop()
		sqe.UserData = ^uint64(0)
		m.tickets.Rel(ticket)
		m.complete(op, -int32(unix.EINVAL))
		return true
	}
	sqe.UserData = uint64(ticket)
	return true
}

func (m *IoMgr) cancelQueued() {
	for {
		select {
		case op := <- m.opQueue:
			m.complete(op, -int32(unix.ECANCELED))
			<- m.opSem
		default:
			return
		}
	}
}

// "Those who sow the good seed
// Shall surely reap"
func (m *IoMgr) ringlord() {
	defer close(m.done)

	if m.pin {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		var cpuSet unix.CPUSet
		cpuSet.Zero()
		cpuSet.Set(m.cpu)
		err := unix.SchedSetaffinity(0, &cpuSet)
		if err != nil { m.log.Warn("Couldn't set core affinity for ring manager", "cpu", m.cpu, "err", err) }
	}

	var queued   uint = 0 // SQEs that we have "got" and prepared from the opQueue
	var inflight uint = 0 // SQEs that have been SUBMITTED

	// Main loop, three phases:
	// 1. collect ops from the opQueue and get+prepare SQEs
	// 2. submit; if nothing new was queued, block in the kernel for a completion
	// 3. reap completed CQEs
	for {
		// STAGE 1
		if inflight == 0 && queued == 0 {
			// Nothing to reap: block until there is work or we are told to stop.
			select {
			case op := <- m.opQueue:
				if m.prepSQE(op) { queued++ }
			case <- m.quit:
				m.cancelQueued()
				return
			}
		}
		// Non-blocking
		COLLECT: for {
			select {
			case op := <- m.opQueue:
				if m.prepSQE(op) { queued++ }
			default:
				break COLLECT
			}
		}

		assert.LessOrEqual(int(inflight+queued), m.entries, "more SQEs outstanding than ring entries")

		// STAGE 2
		if queued > 0 || inflight > 0 {
			var submitted uint
			var err error
			switch {
			case queued == 0:
				submitted, err = m.ring.SubmitAndWait(1)
			case inflight + queued > RING_DPTHTRG:
				submitted, err = m.ring.SubmitAndWait(8)
			default:
				submitted, err = m.ring.Submit()
			}
			if err != nil && !errors.Is(err, unix.ETIME) && !errors.Is(err, unix.EINTR) {
				m.log.Error("Submit", "err", err)
			}
			queued   -= min(submitted, queued)
			inflight += submitted
		}

		// STAGE 3
		for inflight > 0 {
			cqe, err := m.ring.PeekCQE()
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) || errors.Is(err, unix.ETIME) {
				break
			} else if err != nil {
				m.log.Error("PeekCQE", "err", err)
				break
			}
			if cqe == nil { break }

			inflight--
			ticket, res := cqe.UserData, cqe.Res
			m.ring.CQESeen(cqe)

			if ticket == ^uint64(0) {
				// placeholder for an op that was failed while preparing
				<- m.opSem
				continue
			}

			assert.Less(int(ticket), m.entries, "CQE carries a ticket we never issued")
			op := m.tickets.Get(int(ticket))
			m.tickets.Rel(int(ticket))
			if op != nil { m.complete(op, res) }
			<- m.opSem
		}
	}
}
