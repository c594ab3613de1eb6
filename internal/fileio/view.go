package fileio

import (
	"fmt"
	"log/slog"
)

// View is a read-only mapping of a whole file. It does not hold the file
// open; it stays valid until Close, even if the file is deleted. Bytes()
// must not be used after Close.
type View struct {
	data   []byte
	path   string
	log    *slog.Logger
	closed bool
}

func (v *View) Bytes() []byte { return v.data }

func (v *View) Len() int { return len(v.data) }

func (v *View) Close() error {
	if v.closed { return nil }
	v.closed = true
	data := v.data
	v.data = nil
	if len(data) == 0 { return nil }
	if err := unmapView(data); err != nil {
		v.log.Error("Unable to unmap view", "path", v.path, "err", err)
		return fmt.Errorf("unmap %s: %w", v.path, err)
	}
	return nil
}

// OpenFileView maps path read-only. Empty files give an empty, valid view.
func (s *System) OpenFileView(path string) (*View, error) {
	data, err := mapView(path)
	if err != nil {
		s.log.Error("Unable to map file view", "path", path, "err", err)
		return nil, fmt.Errorf("view %s: %w", path, err)
	}
	s.log.Debug("OpenFileView", "path", path, "bytes", len(data))
	return &View{data: data, path: path, log: s.root.With("src", "View")}, nil
}
