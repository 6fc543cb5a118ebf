package fcs

import (
	"bytes"
	"io"
	"os"

	"flowcore/pkg/flowerr"
)

// Source is random-access byte storage holding one FCS data set. Files,
// in-memory buffers and ranged blob-store objects all satisfy it.
type Source interface {
	io.ReaderAt
	Size() int64
}

// BytesSource returns a Source over an in-memory buffer.
func BytesSource(b []byte) Source { return bytes.NewReader(b) }

// FileSource reads a file by path, opening it for every ReadAt call so that
// a parsed header does not pin an open descriptor for the lifetime of a lazy
// frame.
type FileSource struct {
	path string
	size int64
}

// NewFileSource stats path and returns a Source for it.
func NewFileSource(path string) (*FileSource, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, flowerr.WrapIO(err, "stat %s", path)
	}
	if st.IsDir() {
		return nil, flowerr.IOf("%s is a directory", path)
	}
	return &FileSource{path: path, size: st.Size()}, nil
}

// Path returns the file path.
func (s *FileSource) Path() string { return s.path }

// Size returns the file size observed when the source was created.
func (s *FileSource) Size() int64 { return s.size }

// ReadAt implements io.ReaderAt.
func (s *FileSource) ReadAt(p []byte, off int64) (int, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return f.ReadAt(p, off)
}

// readFull reads exactly n bytes at off, mapping short reads to IOError.
func readFull(src Source, off, n int64, what string) ([]byte, error) {
	buf := make([]byte, n)
	if n == 0 {
		return buf, nil
	}
	got, err := src.ReadAt(buf, off)
	if int64(got) == n {
		return buf, nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return nil, flowerr.WrapIO(err, "read %s: got %d of %d bytes at offset %d", what, got, n, off)
}
