package shipper

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/szibis/logship/internal/bookmark"
	"github.com/szibis/logship/internal/logging"
	"github.com/szibis/logship/internal/reader"
)

var lockedLog = logging.NewSampler(time.Minute)

func (s *Shipper) tickDurable() {
	for s.shipOnce() {
	}
}

// shipOnce runs one read-send-checkpoint cycle and reports whether another
// should follow immediately. The bookmark lock is held for the whole cycle,
// including the POST, so a second shipper on the same buffer path cannot
// read the same records.
func (s *Shipper) shipOnce() bool {
	candidates, err := s.files.Candidates()
	if err != nil {
		logging.Error("failed to list buffer files", logging.F("shipper", s.cfg.Name, "error", err.Error()))
		s.onFailure()
		return false
	}
	if len(candidates) == 0 {
		s.onSuccess()
		return false
	}

	store, err := bookmark.Open(s.files.BookmarkPath())
	if err != nil {
		if errors.Is(err, bookmark.ErrLocked) {
			if suppressed, ok := lockedLog.Allow(); ok {
				logging.Warn("bookmark is held by another shipper, skipping tick", logging.F(
					"shipper", s.cfg.Name,
					"bookmark", s.files.BookmarkPath(),
					"suppressed", suppressed,
				))
			}
		} else {
			logging.Error("failed to open bookmark", logging.F("shipper", s.cfg.Name, "error", err.Error()))
		}
		s.onFailure()
		return false
	}
	defer store.Close()

	mark, ok := store.TryRead()
	if !ok || !fileExists(mark.FileName) {
		if ok {
			logging.Info("bookmarked buffer file is gone, restarting from the oldest file", logging.F(
				"shipper", s.cfg.Name,
				"file", mark.FileName,
			))
		}
		mark = bookmark.Bookmark{Offset: 0, FileName: candidates[0]}
	} else if size, err := fileSize(mark.FileName); err == nil && mark.Offset > size {
		// The file was truncated or recreated under the same name.
		logging.Warn("bookmark offset is past the end of the buffer file, rereading it from the start", logging.F(
			"shipper", s.cfg.Name,
			"file", mark.FileName,
			"offset", mark.Offset,
			"size", size,
		))
		mark.Offset = 0
	}

	batch, next, err := reader.Read(mark.FileName, mark.Offset, s.cfg.limits())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Deleted between listing and reading; the next tick re-lists.
			logging.Debug("buffer file vanished before read", logging.F("shipper", s.cfg.Name, "file", mark.FileName))
			return false
		}
		logging.Error("failed to read buffer file", logging.F(
			"shipper", s.cfg.Name,
			"file", mark.FileName,
			"offset", mark.Offset,
			"error", err.Error(),
		))
		s.onFailure()
		return false
	}

	if batch.Empty() {
		s.onSuccess()
		if next != mark.Offset {
			// only skipped lines were consumed
			s.writeBookmark(store, bookmark.Bookmark{Offset: next, FileName: mark.FileName})
		}
		s.advance(store, mark.FileName, next, candidates)
		s.prune(candidates)
		return false
	}

	if err := s.send(batch); err != nil {
		s.onFailure()
		return false
	}
	s.onSuccess()
	if !s.writeBookmark(store, bookmark.Bookmark{Offset: next, FileName: mark.FileName}) {
		return false
	}
	return batch.HasReachedLimit
}

func (s *Shipper) writeBookmark(store *bookmark.Store, b bookmark.Bookmark) bool {
	if err := store.Write(b); err != nil {
		logging.Error("failed to write bookmark", logging.F(
			"shipper", s.cfg.Name,
			"bookmark", store.Path(),
			"error", err.Error(),
		))
		return false
	}
	return true
}

// advance moves the bookmark to the next file once the current one is fully
// shipped and no writer holds it.
func (s *Shipper) advance(store *bookmark.Store, current string, offset int64, candidates []string) {
	if len(candidates) < 2 || candidates[0] != current {
		return
	}
	info, err := os.Stat(current)
	if err != nil || info.Size() != offset {
		return
	}
	locked, err := bookmark.IsFileLocked(current)
	if err != nil || locked {
		return
	}
	if s.writeBookmark(store, bookmark.Bookmark{Offset: 0, FileName: candidates[1]}) {
		logging.Debug("advanced to next buffer file", logging.F(
			"shipper", s.cfg.Name,
			"from", current,
			"to", candidates[1],
		))
	}
}

// prune deletes the oldest buffer file once the backlog reaches the
// threshold, even if it could not be shipped completely.
func (s *Shipper) prune(candidates []string) {
	if len(candidates) < s.cfg.PruneThreshold {
		return
	}
	oldest := candidates[0]
	if err := os.Remove(oldest); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logging.Warn("failed to delete stale buffer file", logging.F(
				"shipper", s.cfg.Name,
				"file", oldest,
				"error", err.Error(),
			))
		}
		return
	}
	filesDeletedTotal.WithLabelValues(s.cfg.Name).Inc()
	logging.Info("deleted stale buffer file", logging.F(
		"shipper", s.cfg.Name,
		"file", oldest,
		"buffer_files", len(candidates),
	))
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
