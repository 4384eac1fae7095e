package blrouter

import (
	"os"
	"sync"

	"github.com/pkg/errors"
)

// binlogMagic opens every file FileStorage creates, the same
// four-byte magic the teacher library's own binlog file reader looks
// for at offset 0 before trusting the rest of a file.
var binlogMagic = [4]byte{0xfe, 'b', 'i', 'n'}

// FileStorage is a default Storage collaborator that appends events to
// a single growing file per binlog name under dir. It is not the focus
// of this package (the real storage format and rotation mechanics are
// explicitly out of scope per spec), but it is enough to make
// cmd/blrouter runnable end-to-end without a caller supplying their
// own collaborator.
type FileStorage struct {
	dir string

	mu   sync.Mutex
	cur  *os.File
	name string
}

// NewFileStorage returns a FileStorage rooted at dir, which must
// already exist.
func NewFileStorage(dir string) *FileStorage {
	return &FileStorage{dir: dir}
}

func (s *FileStorage) openLocked(name string) error {
	if s.cur != nil && s.name == name {
		return nil
	}
	if s.cur != nil {
		s.cur.Close()
	}
	f, err := os.OpenFile(s.dir+string(os.PathSeparator)+name, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return errors.Wrapf(err, "blrouter: open binlog file %s", name)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return errors.Wrap(err, "blrouter: stat binlog file")
	}
	if info.Size() == 0 {
		if _, err := f.Write(binlogMagic[:]); err != nil {
			f.Close()
			return errors.Wrap(err, "blrouter: write binlog magic")
		}
	} else if err := readMagic(f); err != nil {
		f.Close()
		return err
	}
	s.cur = f
	s.name = name
	return nil
}

// Write appends one event's persisted payload (header included, packet
// framing and leading OK byte stripped by the caller) to the current
// file.
func (s *FileStorage) Write(hdr EventHeader, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return
	}
	if _, err := s.cur.Write(payload); err != nil {
		return
	}
}

// Rotate switches the active file to newName, creating it (with the
// magic header) if it does not already exist.
func (s *FileStorage) Rotate(newName string, newPosition uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openLocked(newName)
}

// Flush syncs the current file to disk.
func (s *FileStorage) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != nil {
		s.cur.Sync()
	}
}

// readMagic validates that a binlog file opens with the expected
// four-byte marker, mirroring the sanity check the teacher library
// performs before trusting a dump-directory file as a binlog.
func readMagic(f *os.File) error {
	var got [4]byte
	if _, err := f.ReadAt(got[:], 0); err != nil {
		return errors.Wrap(err, "blrouter: read binlog magic")
	}
	if got != binlogMagic {
		return errors.New("blrouter: not a binlog file")
	}
	return nil
}
