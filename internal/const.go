// Constants
package internal

const KiB = 0x400
const MiB = KiB << 10
const GiB = MiB << 10

// Largest byte count a single issue call will accept. The native async APIs
// take a 32-bit length, so anything past this is rejected rather than split.
const MAX_TRANSFER = 0xFFFF_FFFF

// Linux moves at most this many bytes per read or write, io_uring SQEs
// included. Larger uring transfers are split across SQEs.
const MAX_SQE_TRANSFER = 0x7FFF_F000

const _OS_PAGE = 0x1000

// Rounds n up to a whole number of OS pages.
func PageAlign(n int) int {
	return (n + _OS_PAGE - 1) &^ (_OS_PAGE - 1)
}

// Default permission bits for files this layer creates, per share mode.
// POSIX has no share-mode locking, so these only decide who else may open.
const F_PERM_SHARE_NONE  = 0o600
const F_PERM_SHARE_READ  = 0o644
const F_PERM_SHARE_WRITE = 0o666

const DEFAULT_LOG_PATH     = "bg_log_file.txt"
const DEFAULT_RING_ENTRIES = 0x80
