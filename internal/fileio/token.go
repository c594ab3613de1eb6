package fileio

import (
	"fmt"

	c "bgio/internal"
)

// Token identifies one issued transfer. It is resolved exactly once, by a
// Poll that returns something other than Pending or by a Wait; after that the
// Token is spent and any further Poll/Wait on it (or on a copy of it) fails
// with ErrTokenResolved.
//
// Dropping a Pending Token without resolving it keeps the transfer's buffer
// and platform resources alive until its Handle is closed.
type Token struct {
	h  *Handle
	op *asyncOp
	n  int
}

// N is the number of bytes the transfer moved. Meaningful once resolved.
func (t *Token) N() int {
	if t == nil { return 0 }
	return t.n
}

// Spent reports whether the token has been resolved (or never held an op).
func (t *Token) Spent() bool {
	return t == nil || t.op == nil
}

// IssueRead starts reading len(buf) bytes at off. buf must not be touched
// until the returned Token is resolved.
func (h *Handle) IssueRead(buf []byte, off int64) (Result, Token, error) {
	return h.issue(opRead, buf, off)
}

// IssueWrite starts writing buf at off. buf must not be touched until the
// returned Token is resolved.
func (h *Handle) IssueWrite(buf []byte, off int64) (Result, Token, error) {
	return h.issue(opWrite, buf, off)
}

func (h *Handle) issue(kind opKind, buf []byte, off int64) (Result, Token, error) {
	if !h.IsValid() {
		h.logInvalid("issue " + kind.String())
		return Error, Token{}, ErrInvalidHandle
	}
	if h.sys.isClosed() {
		h.log.Error("Issue on closed system", "op", kind)
		return Error, Token{}, ErrClosed
	}
	if off < 0 {
		h.log.Error("Issue: negative offset", "op", kind, "offset", off)
		return Error, Token{}, ErrNegativeOffset
	}
	if uint64(len(buf)) > c.MAX_TRANSFER {
		h.log.Warn("Transfers over 4 GiB are not supported", "op", kind, "n", len(buf))
		return Error, Token{}, fmt.Errorf("%s of %d bytes: %w", kind, len(buf), ErrTooLarge)
	}
	if kind == opWrite && h.access == ReadOnly {
		h.log.Error("Write on read-only handle", "offset", off, "n", len(buf))
		return Error, Token{}, ErrAccess
	}

	op := &asyncOp{kind: kind, off: off, want: len(buf)}
	tok := Token{h: h, op: op}

	if len(buf) == 0 {
		op.complete(0, nil)
		return Done, tok, nil
	}

	if err := h.sys.be.issue(h.fd, op, buf); err != nil {
		h.log.Error("Unable to issue", "op", kind, "offset", off, "n", len(buf), "err", err)
		return Error, Token{}, fmt.Errorf("issue %s %s: %w", kind, h.path, err)
	}

	if !op.done {
		h.inflight[op] = struct{}{}
		return Pending, tok, nil
	}
	res, err := h.outcome(op)
	return res, tok, err
}

// Poll checks a token without blocking. Pending leaves the token live; any
// other result resolves it.
func (h *Handle) Poll(tok *Token) (Result, error) {
	op, err := h.claim(tok, "Poll")
	if err != nil { return Error, err }

	if !op.done && !h.sys.be.poll(h.fd, op) {
		return Pending, nil
	}
	res, err := h.resolve(tok, op)
	return res, err
}

// Wait blocks until the token's transfer completes and resolves it. A nil
// error means Done.
func (h *Handle) Wait(tok *Token) error {
	op, err := h.claim(tok, "Wait")
	if err != nil { return err }

	if !op.done { h.sys.be.wait(h.fd, op) }
	_, err = h.resolve(tok, op)
	return err
}

func (h *Handle) claim(tok *Token, what string) (*asyncOp, error) {
	if tok == nil || tok.op == nil || tok.op.resolved {
		if h != nil { h.log.Error(what+" on spent token") }
		return nil, ErrTokenResolved
	}
	if tok.h != h {
		if h != nil { h.log.Error(what+" on token from another handle", "other", tok.h.Path()) }
		return nil, ErrForeignToken
	}
	if !h.IsValid() {
		h.logInvalid(what)
		return nil, ErrInvalidHandle
	}
	return tok.op, nil
}

func (h *Handle) resolve(tok *Token, op *asyncOp) (Result, error) {
	op.resolved = true
	delete(h.inflight, op)
	tok.op = nil
	tok.n = op.n
	op.plat = nil
	return h.outcome(op)
}

// outcome maps a completed op onto Done/Error. A read that ran into end of
// file is Done with a short count; a short write is an Error.
func (h *Handle) outcome(op *asyncOp) (Result, error) {
	if op.err != nil {
		h.log.Error("I/O failed", "op", op.kind, "offset", op.off, "n", op.want, "err", op.err)
		return Error, fmt.Errorf("%s %s at %d: %w", op.kind, h.path, op.off, op.err)
	}
	if op.n < op.want {
		if op.kind == opRead {
			h.log.Warn("Read operation goes beyond EOF, this isn't an error",
				"offset", op.off, "want", op.want, "got", op.n)
			return Done, nil
		}
		h.log.Error("Short write", "offset", op.off, "want", op.want, "got", op.n)
		return Error, fmt.Errorf("write %s at %d: %d of %d bytes: %w",
			h.path, op.off, op.n, op.want, ErrShortTransfer)
	}
	return Done, nil
}
