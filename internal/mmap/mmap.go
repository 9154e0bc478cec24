package mmap

import (
	"errors"
	"io"
	"os"
)

// File is a read-only mapping of a whole file.
type File struct {
	data   []byte
	mapped bool
}

// Open maps the file at path.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}

	size := fi.Size()
	if size < 0 {
		return nil, errors.New("mmap: negative file size")
	}
	if size == 0 {
		return &File{}, nil
	}

	data, mapped, err := mapFile(f, int(size))
	if err != nil {
		return nil, err
	}
	return &File{data: data, mapped: mapped}, nil
}

// Bytes returns the mapped region. It is invalid after Close.
func (m *File) Bytes() []byte { return m.data }

func (m *File) Len() int { return len(m.data) }

func (m *File) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Close releases the mapping. Calling Close twice is safe.
func (m *File) Close() error {
	if m == nil || m.data == nil {
		return nil
	}
	var err error
	if m.mapped {
		err = unmap(m.data)
	}
	m.data = nil
	return err
}
