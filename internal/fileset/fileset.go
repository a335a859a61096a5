// Package fileset enumerates buffer files in the order they must be shipped.
//
// Two naming strategies exist. Time-rolled sets name files after the period
// they cover:
//
//	<base>-<yyyy[MM[dd[HH[mm]]]]>.txt    current extension
//	<base>-<yyyy[MM[dd[HH[mm]]]]>.json   legacy extension, drained first
//
// Size-rolled sets add a numeric sequence when a day's file fills up:
//
//	<base>-<yyyyMMdd>.txt
//	<base>-<yyyyMMdd>_<seq>.txt
//
// Both strategies keep their bookmark next to the buffer files at
// <base>.bookmark. Names that do not match exactly are ignored.
package fileset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	// CurrentExt is the extension written by the spool writer.
	CurrentExt = ".txt"
	// LegacyExt is the extension of files written by older writers.
	LegacyExt = ".json"

	bookmarkExt = ".bookmark"
)

// FileSet lists buffer file candidates.
type FileSet interface {
	// Candidates returns absolute paths in shipping order.
	Candidates() ([]string, error)
	// BookmarkPath returns where the checkpoint for this set is stored.
	BookmarkPath() string
}

// base splits a base path into its directory and file prefix.
type base struct {
	dir    string
	prefix string
}

func newBase(basePath string) base {
	abs, err := filepath.Abs(basePath)
	if err != nil {
		abs = filepath.Clean(basePath)
	}
	return base{dir: filepath.Dir(abs), prefix: filepath.Base(abs)}
}

func (b base) BookmarkPath() string {
	return filepath.Join(b.dir, b.prefix+bookmarkExt)
}

// Dir returns the directory holding the buffer files.
func (b base) Dir() string {
	return b.dir
}

// names lists regular file names in the set's directory. A directory that
// does not exist yet has no candidates.
func (b base) names() ([]string, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list buffer directory %s: %w", b.dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
