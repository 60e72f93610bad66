package mailstats

import (
	"io"
	"io/fs"
	"os"
)

// FileSystem is the file access the resolver needs. OSFileSystem is used
// unless a Resolver is built with another one.
type FileSystem interface {
	Stat(name string) (fs.FileInfo, error)
	Open(name string) (io.ReadCloser, error)
}

// OSFileSystem reads from the local filesystem.
type OSFileSystem struct{}

// Stat calls os.Stat.
func (OSFileSystem) Stat(name string) (fs.FileInfo, error) {
	return os.Stat(name)
}

// Open opens name read-only.
func (OSFileSystem) Open(name string) (io.ReadCloser, error) {
	return os.OpenFile(name, os.O_RDONLY, 0)
}

// readFile reads exactly RecordSize bytes from path into a fresh buffer.
// The file is closed on every return path.
func readFile(fsys FileSystem, path string) ([]byte, error) {
	if _, err := fsys.Stat(path); err != nil {
		return nil, newError(KindInvalidStatisticsFile, ErrInvalidStatisticsFile.Msg, err)
	}

	f, err := fsys.Open(path)
	if err != nil {
		return nil, newError(KindUnableToOpen, ErrUnableToOpen.Msg, err)
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, RecordSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, newError(KindUnableToRead, ErrUnableToRead.Msg, err)
	}
	return buf, nil
}
