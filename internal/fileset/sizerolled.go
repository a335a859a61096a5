package fileset

import (
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "20060102"

// SizeRolled is a set of daily files that roll over to a new sequence
// number when they reach a size limit.
type SizeRolled struct {
	base
}

// NewSizeRolled returns a size-rolled set.
func NewSizeRolled(basePath string) *SizeRolled {
	return &SizeRolled{base: newBase(basePath)}
}

// Format returns the path for day t and sequence seq. Sequence 0 has no
// suffix.
func (s *SizeRolled) Format(t time.Time, seq int) string {
	name := s.prefix + "-" + t.Format(dateLayout)
	if seq > 0 {
		name += "_" + strconv.Itoa(seq)
	}
	return filepath.Join(s.dir, name+CurrentExt)
}

type sizeRolledFile struct {
	name string
	date string
	seq  uint64
}

// Candidates returns files ordered by date, then by numeric sequence.
func (s *SizeRolled) Candidates() ([]string, error) {
	names, err := s.names()
	if err != nil {
		return nil, err
	}

	var files []sizeRolledFile
	for _, name := range names {
		if f, ok := s.parse(name); ok {
			files = append(files, f)
		}
	}

	sort.Slice(files, func(i, j int) bool {
		a, b := files[i], files[j]
		if a.date != b.date {
			return a.date < b.date
		}
		if a.seq != b.seq {
			return a.seq < b.seq
		}
		return a.name < b.name
	})

	out := make([]string, len(files))
	for i, f := range files {
		out[i] = filepath.Join(s.dir, f.name)
	}
	return out, nil
}

// Sequence returns the sequence number encoded in a candidate path.
func (s *SizeRolled) Sequence(path string) (date string, seq int, ok bool) {
	f, ok := s.parse(filepath.Base(path))
	if !ok {
		return "", 0, false
	}
	return f.date, int(f.seq), true
}

func (s *SizeRolled) parse(name string) (sizeRolledFile, bool) {
	rest, ok := strings.CutPrefix(name, s.prefix+"-")
	if !ok {
		return sizeRolledFile{}, false
	}
	rest, ok = strings.CutSuffix(rest, CurrentExt)
	if !ok {
		return sizeRolledFile{}, false
	}

	date, seqText, hasSeq := strings.Cut(rest, "_")
	if len(date) != len(dateLayout) || !isDigits(date) {
		return sizeRolledFile{}, false
	}

	f := sizeRolledFile{name: name, date: date}
	if hasSeq {
		if !isDigits(seqText) {
			return sizeRolledFile{}, false
		}
		seq, err := strconv.ParseUint(seqText, 10, 32)
		if err != nil {
			return sizeRolledFile{}, false
		}
		f.seq = seq
	}
	return f, true
}
