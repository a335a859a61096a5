// Package bookmark persists shipping progress as "<offset>:::<file>".
//
// The bookmark file is held under an exclusive flock while a Store is open,
// so two shippers pointed at the same buffer path never read the same file
// concurrently.
package bookmark

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/szibis/logship/internal/logging"
	"golang.org/x/sys/unix"
)

const separator = ":::"

// ErrLocked is returned by Open when another process holds the bookmark.
var ErrLocked = errors.New("bookmark is locked by another shipper")

// Bookmark means everything before Offset bytes of FileName was delivered.
type Bookmark struct {
	Offset   int64
	FileName string
}

func (b Bookmark) String() string {
	return strconv.FormatInt(b.Offset, 10) + separator + b.FileName
}

// Parse decodes the single-line encoding. Trailing whitespace is ignored.
func Parse(s string) (Bookmark, error) {
	s = strings.TrimRight(s, "\r\n\t ")
	offsetText, file, ok := strings.Cut(s, separator)
	if !ok {
		return Bookmark{}, fmt.Errorf("missing %q separator", separator)
	}
	offset, err := strconv.ParseInt(offsetText, 10, 64)
	if err != nil {
		return Bookmark{}, fmt.Errorf("invalid offset: %w", err)
	}
	if offset < 0 {
		return Bookmark{}, fmt.Errorf("negative offset %d", offset)
	}
	if file == "" {
		return Bookmark{}, errors.New("empty file name")
	}
	return Bookmark{Offset: offset, FileName: file}, nil
}

// Store is an open, locked bookmark file.
type Store struct {
	path string
	f    *os.File
}

// Open opens (creating if needed) and locks the bookmark at path.
func Open(path string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open bookmark %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("failed to lock bookmark %s: %w", path, err)
	}
	return &Store{path: path, f: f}, nil
}

// Path returns the bookmark file path.
func (s *Store) Path() string {
	return s.path
}

// TryRead returns the stored bookmark. Missing, empty and unparsable
// content all report false; corrupt content is logged.
func (s *Store) TryRead() (Bookmark, bool) {
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		logging.Warn("failed to seek bookmark", logging.F("path", s.path, "error", err.Error()))
		return Bookmark{}, false
	}
	data, err := io.ReadAll(s.f)
	if err != nil {
		logging.Warn("failed to read bookmark", logging.F("path", s.path, "error", err.Error()))
		return Bookmark{}, false
	}
	// Only the first line counts: Write leaves a stale tail behind until
	// its truncate lands.
	line, _, _ := strings.Cut(string(data), "\n")
	if len(strings.TrimSpace(line)) == 0 {
		return Bookmark{}, false
	}

	b, err := Parse(line)
	if err != nil {
		logging.Warn("ignoring corrupt bookmark, shipping restarts from the oldest buffer file", logging.F(
			"path", s.path,
			"error", err.Error(),
		))
		return Bookmark{}, false
	}
	return b, true
}

// Write replaces the stored bookmark and syncs it to disk. The new line is
// written over the old one before the file is cut to length, so a crash at
// any point leaves a readable bookmark.
func (s *Store) Write(b Bookmark) error {
	line := []byte(b.String() + "\n")
	if _, err := s.f.WriteAt(line, 0); err != nil {
		return fmt.Errorf("failed to write bookmark: %w", err)
	}
	if err := s.f.Truncate(int64(len(line))); err != nil {
		return fmt.Errorf("failed to truncate bookmark: %w", err)
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("failed to sync bookmark: %w", err)
	}
	return nil
}

// Close releases the lock.
func (s *Store) Close() error {
	if s.f == nil {
		return nil
	}
	_ = unix.Flock(int(s.f.Fd()), unix.LOCK_UN)
	err := s.f.Close()
	s.f = nil
	return err
}

// IsFileLocked reports whether another handle holds a flock on path. The
// spool writer keeps a shared lock on its active file, so a file that can be
// locked exclusively is no longer being written.
func IsFileLocked(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		if errors.Is(err, unix.EWOULDBLOCK) {
			return true, nil
		}
		return false, fmt.Errorf("failed to probe lock on %s: %w", path, err)
	}
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	return false, nil
}
