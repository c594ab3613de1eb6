//go:build windows

package fileio

import (
	"golang.org/x/sys/windows"
)

type sysfd = windows.Handle

const invalidFD sysfd = windows.InvalidHandle

func shareFor(share Share) uint32 {
	switch share {
	case ShareNone:  return 0
	case ShareWrite: return windows.FILE_SHARE_READ | windows.FILE_SHARE_WRITE
	}
	return windows.FILE_SHARE_READ
}

// Paths are converted to UTF-16 here, at the boundary, and nowhere else.
func openFD(path string, create bool, access Access, share Share) (sysfd, error) {
	name, err := windows.UTF16PtrFromString(path)
	if err != nil { return invalidFD, err }

	var acc uint32 = windows.GENERIC_READ
	if access == ReadWrite { acc |= windows.GENERIC_WRITE }

	var disposition uint32 = windows.OPEN_EXISTING
	if create { disposition = windows.CREATE_NEW }

	h, err := windows.CreateFile(name, acc, shareFor(share), nil, disposition,
		windows.FILE_ATTRIBUTE_NORMAL|windows.FILE_FLAG_OVERLAPPED, 0)
	if err != nil { return invalidFD, err }
	return h, nil
}

func closeFD(fd sysfd) error {
	return windows.CloseHandle(fd)
}

func fdSize(fd sysfd) (int64, error) {
	var info windows.ByHandleFileInformation
	if err := windows.GetFileInformationByHandle(fd, &info); err != nil {
		return 0, err
	}
	return int64(info.FileSizeHigh)<<32 | int64(info.FileSizeLow), nil
}
