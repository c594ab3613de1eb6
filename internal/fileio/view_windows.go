//go:build windows

package fileio

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// Both the file and the mapping object can be closed once the view exists;
// the view keeps the section alive.
func mapView(path string) ([]byte, error) {
	name, err := windows.UTF16PtrFromString(path)
	if err != nil { return nil, err }

	fh, err := windows.CreateFile(name, windows.GENERIC_READ, windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE, nil,
		windows.OPEN_EXISTING, windows.FILE_ATTRIBUTE_NORMAL, 0)
	if err != nil { return nil, err }
	defer windows.CloseHandle(fh)

	size, err := fdSize(fh)
	if err != nil { return nil, err }
	if size == 0 { return []byte{}, nil }

	mh, err := windows.CreateFileMapping(fh, nil, windows.PAGE_READONLY, 0, 0, nil)
	if err != nil { return nil, err }
	defer windows.CloseHandle(mh)

	addr, err := windows.MapViewOfFile(mh, windows.FILE_MAP_READ, 0, 0, 0)
	if err != nil { return nil, err }

	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(size)), nil
}

func unmapView(data []byte) error {
	return windows.UnmapViewOfFile(uintptr(unsafe.Pointer(&data[0])))
}
