//go:build unix

package fileio

import (
	"golang.org/x/sys/unix"
)

// The descriptor is only needed to establish the mapping.
func mapView(path string) ([]byte, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil { return nil, err }
	defer unix.Close(fd)

	size, err := fdSize(fd)
	if err != nil { return nil, err }
	if size == 0 { return []byte{}, nil }

	return unix.Mmap(fd, 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
}

func unmapView(data []byte) error {
	return unix.Munmap(data)
}
