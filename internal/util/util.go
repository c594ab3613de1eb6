package util

import (
	"encoding/binary"
	"fmt"
	"strings"
)

const hexBytesPerRow = 32

// HexDump renders up to limit bytes of data as rows of big-endian u16 chunks,
// 32 bytes per row, with an offset column. limit <= 0 dumps everything.
func HexDump(data []byte, limit int) string {
	if limit <= 0 || limit > len(data) {
		limit = len(data)
	}

	var b strings.Builder
	bar := strings.Repeat("━", 5*hexBytesPerRow/2+hexBytesPerRow/8+1)
	fmt.Fprintf(&b, "┏━━━━━━━━━━━━┳%s┓\n", bar)
	fmt.Fprintf(&b, "┃ Offset     ┃ %-*s┃\n", len([]rune(bar))-1,
		fmt.Sprintf("u16 chunks (BigEndian) - %d of %d bytes (0x%x)", limit, len(data), len(data)))
	fmt.Fprintf(&b, "┣━━━━━━━━━━━━╋%s┫\n", bar)

	for i := 0; i < limit; i += hexBytesPerRow {
		fmt.Fprintf(&b, "┃ 0x%08x ┃ ", i)
		for j := 0; j < hexBytesPerRow; j += 2 {
			switch {
			case i+j+1 < limit:
				fmt.Fprintf(&b, "%04x ", binary.BigEndian.Uint16(data[i+j:i+j+2]))
			case i+j < limit:
				// odd tail byte
				fmt.Fprintf(&b, "%02x   ", data[i+j])
			default:
				b.WriteString("     ")
			}
			// Space every 8 bytes to keep your eyes from crossing
			if (j+2)%8 == 0 {
				b.WriteByte(' ')
			}
		}
		b.WriteString("┃\n")
	}
	fmt.Fprintf(&b, "┗━━━━━━━━━━━━┻%s┛\n", bar)

	return b.String()
}

// splitmix64
func Hash(val uint64) uint64 {
	x := val
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	x =  x ^ (x >> 31)
	return x
}

// FillPattern writes a deterministic splitmix stream derived from seed into buf.
// The same (seed, len) always yields the same bytes.
func FillPattern(buf []byte, seed uint64) {
	var word [8]byte
	for i := 0; i < len(buf); i += 8 {
		binary.LittleEndian.PutUint64(word[:], Hash(seed+uint64(i)))
		copy(buf[i:], word[:])
	}
}
