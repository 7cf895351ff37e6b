package engine

import (
	"errors"
	"fmt"

	"github.com/MikhailWahib/minicask/internal/metrics"
	"github.com/MikhailWahib/minicask/internal/record"
	"github.com/MikhailWahib/minicask/internal/segment"
)

// replay rebuilds the index from every archived segment in id order, then the active one.
// Damaged records end a segment's scan; a failed read aborts replay.
func (e *Engine) replay() error {
	for _, s := range e.archived {
		if _, err := e.replaySegment(s); err != nil {
			return err
		}
	}

	validEnd, err := e.replaySegment(e.active)
	if err != nil {
		return err
	}
	if validEnd < e.active.Size() {
		e.logger.Warn("discarding damaged tail of active segment",
			"segment", e.active.ID(), "valid_bytes", validEnd, "discarded_bytes", e.active.Size()-validEnd)
		if err := e.active.Truncate(validEnd); err != nil {
			return fmt.Errorf("repair segment %d: %w", e.active.ID(), err)
		}
	}
	return nil
}

// replaySegment applies entries from offset 0 until the end of the segment or the first
// damaged record and returns the offset where valid data ends.
func (e *Engine) replaySegment(s *segment.Segment) (int64, error) {
	var offset int64
	for {
		entry, err := s.Read(offset)
		switch {
		case err == nil:
		case errors.Is(err, segment.ErrEndOfSegment):
			return offset, nil
		case segment.IsCorruption(err):
			e.logger.Warn("stopping replay at damaged record", "segment", s.ID(), "offset", offset, "error", err)
			metrics.ReplaySkipped.WithLabelValues("corrupt").Inc()
			return offset, nil
		default:
			return offset, fmt.Errorf("replay segment %d: %w", s.ID(), err)
		}

		offset += entry.Size()

		if !e.apply(entry) {
			e.logger.Debug("skipping invalid entry", "segment", s.ID(), "offset", offset-entry.Size(), "mark", entry.Mark)
			metrics.ReplaySkipped.WithLabelValues("invalid").Inc()
			continue
		}
		metrics.ReplayedEntries.Inc()
	}
}

// apply replays one entry into the index. It reports false for entries that fail
// validation, which leave the index untouched.
func (e *Engine) apply(entry record.Entry) bool {
	if entry.Mark == record.ClearMark {
		e.keydir.Clear()
		return true
	}

	key, value := string(entry.Key), string(entry.Value)
	if err := validate(key, value); err != nil {
		return false
	}

	switch entry.Mark {
	case record.SetMark:
		e.keydir.Set(key, value)
	case record.SetWithExpireMark:
		// Past deadlines are kept too; Get evicts the key lazily.
		e.keydir.Set(key, value)
		e.keydir.SetDeadline(key, entry.Timestamp)
	case record.DeleteMark:
		e.keydir.Delete(key)
	default:
		return false
	}
	return true
}
