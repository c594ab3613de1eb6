package fileio

import "fmt"

// Read fills buf from the cached position, waiting if the backend reports
// Pending, and advances the position by len(buf). Anything short of a full
// buffer is an error here, including running into end of file.
func (h *Handle) Read(buf []byte) error {
	return h.transfer(opRead, buf)
}

// Write writes buf at the cached position and advances it by len(buf).
func (h *Handle) Write(buf []byte) error {
	return h.transfer(opWrite, buf)
}

func (h *Handle) transfer(kind opKind, buf []byte) error {
	if !h.IsValid() {
		h.logInvalid(kind.String())
		return ErrInvalidHandle
	}
	off := h.pos
	if off < 0 {
		h.log.Error("Position unknown, set it before sequential I/O", "op", kind)
		return ErrPositionUnknown
	}

	res, tok, err := h.issue(kind, buf, off)
	if res == Error { return err }

	if err := h.Wait(&tok); err != nil { return err }

	if tok.N() != len(buf) {
		h.log.Error(fmt.Sprintf("Unable to %s n(%d) bytes, instead transferred %d", kind, len(buf), tok.N()),
			"offset", off)
		return fmt.Errorf("%s %s at %d: %d of %d bytes: %w", kind, h.path, off, tok.N(), len(buf), ErrShortTransfer)
	}

	h.pos = off + int64(len(buf))
	return nil
}
