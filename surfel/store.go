package surfel

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// store is the byte-addressed backing storage of a Database. Offsets are
// identical for the in-memory and file variants, so a database can move
// from one to the other by copying bytes.
type store interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
	Size() (int64, error)
	Truncate(size int64) error
}

// memStore keeps block data in memory for databases without a file.
type memStore struct {
	buf []byte
}

func (m *memStore) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.Errorf("negative offset %d", off)
	}
	if off >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memStore) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.Errorf("negative offset %d", off)
	}
	end := off + int64(len(p))
	if end > int64(len(m.buf)) {
		if end > int64(cap(m.buf)) {
			grown := make([]byte, end, 2*end)
			copy(grown, m.buf)
			m.buf = grown
		} else {
			m.buf = m.buf[:end]
		}
	}
	return copy(m.buf[off:], p), nil
}

func (m *memStore) Size() (int64, error) {
	return int64(len(m.buf)), nil
}

func (m *memStore) Truncate(size int64) error {
	if size < int64(len(m.buf)) {
		m.buf = m.buf[:size]
	}
	return nil
}

func (m *memStore) Close() error {
	m.buf = nil
	return nil
}

// fileStore is an .ssb file on disk.
type fileStore struct {
	*os.File
}

func (f fileStore) Size() (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
