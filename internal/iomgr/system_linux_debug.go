//go:build linux
package iomgr

import (
	"fmt"
	"strings"
	"unsafe"
)

func (o *Op) String() string {
	if o == nil {
		return "<nil>"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Op | Opcode: %v, Fd: 0x%x, Done: %v, Ticket: %d, Res: %d | Ch: @0x%x\n",
		o.Opcode, o.Fd, o.Done(), o.ticket, o.Res, unsafe.Pointer(&o.Ch))

	switch o.Opcode {
	case OpWrite, OpRead:
		var base unsafe.Pointer
		if len(o.Buf) > 0 { base = unsafe.Pointer(&o.Buf[0]) }
		fmt.Fprintf(&b, "   > %-9s [ Buf: @0x%x | Len: 0x%08x | Off: 0x%08x ]\n",
			o.Opcode, base, len(o.Buf), o.Off)
	case OpSync:
		fmt.Fprintf(&b, "   > FSYNC     [ ]\n")
	case OpNop:
		fmt.Fprintf(&b, "   > NOP       [ ]\n")
	}

	return b.String()
}
