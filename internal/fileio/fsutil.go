package fileio

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	c "bgio/internal"

	"github.com/natefinch/atomic"
)

// ReadEntireFile returns the whole contents of path, read with a single
// transfer. The file may be open for writing elsewhere. Either every byte is returned or nothing is; an empty file gives
// an empty, non-nil slice.
func (s *System) ReadEntireFile(path string) ([]byte, error) {
	h, err := s.Open(path, ReadOnly, ShareWrite)
	if err != nil { return nil, err }
	defer h.Close()

	size, err := h.Size()
	if err != nil { return nil, err }
	if size > c.MAX_TRANSFER {
		s.log.Warn("Reading bigger than 4GB is not supported yet", "path", path, "size", size)
		return nil, fmt.Errorf("read %s: %d bytes: %w", path, size, ErrTooLarge)
	}

	buf := make([]byte, size)
	if err := h.Read(buf); err != nil {
		s.log.Error("Unable to read entire file", "path", path, "bytes", size, "err", err)
		return nil, err
	}
	return buf, nil
}

// ReadFileN fills buf from the start of path.
func (s *System) ReadFileN(path string, buf []byte) error {
	h, err := s.Open(path, ReadOnly, ShareWrite)
	if err != nil { return err }
	defer h.Close()

	if err := h.Read(buf); err != nil {
		s.log.Error("Unable to read head of file", "path", path, "bytes", len(buf), "err", err)
		return err
	}
	return nil
}

// ReadFileNLast fills buf with the last len(buf) bytes of path. Fails when
// the file is shorter than buf.
func (s *System) ReadFileNLast(path string, buf []byte) error {
	h, err := s.Open(path, ReadOnly, ShareWrite)
	if err != nil { return err }
	defer h.Close()

	if _, err := h.Seek(-int64(len(buf)), WhenceEnd); err != nil {
		s.log.Error("File shorter than requested tail", "path", path, "bytes", len(buf), "err", err)
		if errors.Is(err, ErrNegativeOffset) {
			return fmt.Errorf("read tail of %s: %w", path, ErrShortTransfer)
		}
		return err
	}
	return h.Read(buf)
}

// DumpFile writes data to a new file at path. It fails if path exists.
func (s *System) DumpFile(path string, data []byte) error {
	h, err := s.Create(path, ReadWrite, ShareRead)
	if err != nil { return err }

	werr := h.Write(data)
	cerr := h.Close()
	if werr != nil {
		s.log.Error("Unable to dump memory to file", "path", path, "bytes", len(data), "err", werr)
		return werr
	}
	return cerr
}

// Delete removes path. Deleting a file that is still open is allowed;
// on POSIX the open Handle keeps working on the unlinked inode, on Windows
// the call fails unless every opener shared delete access.
func (s *System) Delete(path string) error {
	if err := os.Remove(path); err != nil {
		s.log.Error("Unable to delete file", "path", path, "err", err)
		return err
	}
	return nil
}

// GetSize returns the size of path without opening a Handle.
func (s *System) GetSize(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		s.log.Error("Unable to open file for file size query operation", "path", path, "err", err)
		return 0, err
	}
	if !fi.Mode().IsRegular() {
		s.log.Error("Size query on non-regular file", "path", path, "mode", fi.Mode())
		return 0, &fs.PathError{Op: "size", Path: path, Err: errors.ErrUnsupported}
	}
	return fi.Size(), nil
}

// CopyOverwrite copies src to dst, replacing dst atomically if it exists.
func (s *System) CopyOverwrite(src, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		s.log.Error("Unable to open copy source", "src_path", src, "err", err)
		return err
	}
	defer f.Close()

	if err := atomic.WriteFile(dst, f); err != nil {
		s.log.Error("Unable to copy file", "src_path", src, "dst_path", dst, "err", err)
		return err
	}
	return nil
}

// ListFiles returns the paths of the non-directory entries of dir, sorted by
// name.
func (s *System) ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		s.log.Error("Unable to list directory", "dir", dir, "err", err)
		return nil, err
	}

	out := slices.Grow([]string(nil), len(entries))
	for _, e := range entries {
		if e.IsDir() { continue }
		out = append(out, filepath.Join(dir, e.Name()))
	}
	return out, nil
}
