// Package engine implements the append-only storage engine: segment discovery, replay,
// live operations and size-based segment rotation.
//
// An Engine is owned by a single goroutine and performs no locking of its own.
package engine

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/MikhailWahib/minicask/internal/config"
	"github.com/MikhailWahib/minicask/internal/diskmanager"
	"github.com/MikhailWahib/minicask/internal/keydir"
	"github.com/MikhailWahib/minicask/internal/metrics"
	"github.com/MikhailWahib/minicask/internal/record"
	"github.com/MikhailWahib/minicask/internal/segment"
	"github.com/hashicorp/go-hclog"
)

// Option customizes an Engine at open.
type Option func(*Engine)

// WithDiskManager replaces the file layer, mainly for tests.
func WithDiskManager(dm diskmanager.DiskManager) Option {
	return func(e *Engine) { e.dm = dm }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Stats describes the current segment layout and index size.
type Stats struct {
	ActiveSegmentID  uint64
	ArchivedSegments int
	ActiveSize       int64
	Keys             int
}

type Engine struct {
	dir         string
	maxFileSize int64
	dm          diskmanager.DiskManager
	logger      hclog.Logger
	now         func() time.Time

	keydir   *keydir.KeyDir
	active   *segment.Segment
	archived []*segment.Segment

	unlock func() error
	closed bool
}

// Open creates cfg.Dir if absent, discovers its segments and rebuilds the index by replay.
func Open(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	cfg.FillDefaults()

	e := &Engine{
		dir:         cfg.Dir,
		maxFileSize: cfg.MaxFileSize,
		dm:          diskmanager.NewDiskManager(),
		logger:      cfg.Logger.Named("engine"),
		now:         time.Now,
		keydir:      keydir.New(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := os.MkdirAll(e.dir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	unlock, err := diskmanager.LockDir(e.dir)
	if err != nil {
		return nil, err
	}
	e.unlock = unlock

	if err := e.openSegments(); err != nil {
		e.closeSegments()
		_ = e.unlock()
		return nil, err
	}

	if err := e.replay(); err != nil {
		e.closeSegments()
		_ = e.unlock()
		return nil, err
	}
	e.updateGauges()

	e.logger.Info("opened store", "dir", e.dir, "active_segment", e.active.ID(),
		"archived_segments", len(e.archived), "keys", e.keydir.Len())

	return e, nil
}

// discoverSegments returns the ids of the segment files in the data directory, ascending.
func (e *Engine) discoverSegments() ([]uint64, error) {
	names, err := e.dm.List(e.dir, segment.FileExt)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}

	var ids []uint64
	for _, name := range names {
		id, ok := segment.ParseFileName(name)
		if !ok {
			e.logger.Debug("ignoring file in data directory", "name", name)
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (e *Engine) openSegments() error {
	ids, err := e.discoverSegments()
	if err != nil {
		return err
	}

	if len(ids) == 0 {
		active, err := segment.Create(e.dm, e.dir, 1)
		if err != nil {
			return err
		}
		e.active = active
		return nil
	}

	last := len(ids) - 1
	for _, id := range ids[:last] {
		s, err := segment.OpenArchived(e.dm, e.dir, id)
		if err != nil {
			return err
		}
		e.archived = append(e.archived, s)
	}

	active, err := segment.Open(e.dm, e.dir, ids[last])
	if err != nil {
		return err
	}
	e.active = active
	return nil
}

// SegmentIDs lists archived ids followed by the active id.
func (e *Engine) SegmentIDs() []uint64 {
	ids := make([]uint64, 0, len(e.archived)+1)
	for _, s := range e.archived {
		ids = append(ids, s.ID())
	}
	return append(ids, e.active.ID())
}

// Stats reports the current layout.
func (e *Engine) Stats() Stats {
	return Stats{
		ActiveSegmentID:  e.active.ID(),
		ArchivedSegments: len(e.archived),
		ActiveSize:       e.active.Size(),
		Keys:             e.keydir.Len(),
	}
}

// Get returns the value of key. A key whose deadline has passed is evicted from the
// index and reported absent; no tombstone is written.
func (e *Engine) Get(key string) (string, bool) {
	if e.closed || validateKey(key) != nil {
		return "", false
	}

	if e.keydir.Expired(key, e.now()) {
		e.keydir.Delete(key)
		metrics.LiveKeys.Set(float64(e.keydir.Len()))
		return "", false
	}

	return e.keydir.Get(key)
}

// Set stores value under key. A deadline set earlier by SetWithExpire still applies.
func (e *Engine) Set(key, value string) error {
	if err := e.check(key, value); err != nil {
		return err
	}

	if err := e.storeEntry(record.NewEntry(record.SetMark, []byte(key), []byte(value), e.timestamp())); err != nil {
		return err
	}

	e.keydir.Set(key, value)
	e.updateGauges()
	return nil
}

// SetWithExpire stores value under key until deadline, which is kept at second precision.
func (e *Engine) SetWithExpire(key, value string, deadline time.Time) error {
	if err := e.check(key, value); err != nil {
		return err
	}

	ts := unixSeconds(deadline)
	if err := e.storeEntry(record.NewEntry(record.SetWithExpireMark, []byte(key), []byte(value), ts)); err != nil {
		return err
	}

	e.keydir.SetDeadline(key, ts)
	e.keydir.Set(key, value)
	e.updateGauges()
	return nil
}

// Delete removes key and its deadline.
func (e *Engine) Delete(key string) error {
	if err := e.check(key, ""); err != nil {
		return err
	}

	if err := e.storeEntry(record.NewEntry(record.DeleteMark, []byte(key), nil, e.timestamp())); err != nil {
		return err
	}

	e.keydir.Delete(key)
	e.updateGauges()
	return nil
}

// Clear removes every key.
func (e *Engine) Clear() error {
	if e.closed {
		return ErrClosed
	}

	if err := e.storeEntry(record.NewEntry(record.ClearMark, nil, nil, e.timestamp())); err != nil {
		return err
	}

	e.keydir.Clear()
	e.updateGauges()
	return nil
}

// Close syncs and closes every segment and releases the directory lock.
// The index is left intact but the engine must not be used afterwards.
func (e *Engine) Close() error {
	if e.closed {
		return ErrClosed
	}
	e.closed = true

	err := e.closeSegments()
	if unlockErr := e.unlock(); unlockErr != nil {
		err = errors.Join(err, fmt.Errorf("release directory lock: %w", unlockErr))
	}
	if err != nil {
		e.logger.Error("failed to close store cleanly", "error", err)
		return err
	}

	e.logger.Info("closed store", "dir", e.dir)
	return nil
}

func (e *Engine) closeSegments() error {
	var errs []error
	for _, s := range e.archived {
		if s.Closed() {
			continue
		}
		errs = append(errs, s.Close())
	}
	if e.active != nil && !e.active.Closed() {
		errs = append(errs, e.active.Close())
	}
	return errors.Join(errs...)
}

func (e *Engine) check(key, value string) error {
	if e.closed {
		return ErrClosed
	}
	return validate(key, value)
}

// storeEntry appends entry to the active segment, rotating first when the active
// segment has grown past the configured maximum.
func (e *Engine) storeEntry(entry record.Entry) error {
	if e.active.Size() > e.maxFileSize {
		if err := e.rotate(); err != nil {
			return err
		}
	}

	if err := e.active.Write(entry); err != nil {
		return fmt.Errorf("store %s entry: %w", entry.Mark, err)
	}
	return nil
}

// rotate archives the active segment and makes segment id+1 active. The outgoing segment
// is synced first; if that or creating the next segment fails, the current one stays active.
func (e *Engine) rotate() error {
	old := e.active
	nextID := old.ID() + 1

	if err := old.Sync(); err != nil {
		metrics.RotationFailures.Inc()
		return fmt.Errorf("sync segment %d before rotation: %w", old.ID(), err)
	}

	next, err := segment.Create(e.dm, e.dir, nextID)
	if err != nil {
		metrics.RotationFailures.Inc()
		return fmt.Errorf("rotate to segment %d: %w", nextID, err)
	}

	// From here the old segment is closed, so the layout switches even if closing fails.
	e.active = next
	closeErr := old.Close()

	archived, err := segment.OpenArchived(e.dm, e.dir, old.ID())
	if err != nil {
		e.logger.Error("failed to reopen rotated segment as archive", "segment", old.ID(), "error", err)
		archived = old
	}
	e.archived = append(e.archived, archived)

	if closeErr != nil {
		metrics.RotationFailures.Inc()
		return fmt.Errorf("close rotated segment %d: %w", old.ID(), closeErr)
	}

	metrics.SegmentRotations.Inc()
	e.logger.Info("rotated segment", "archived", old.ID(), "active", next.ID(),
		"archived_size", old.Size(), "path", next.Path())
	return nil
}

func (e *Engine) timestamp() uint64 {
	return unixSeconds(e.now())
}

func unixSeconds(t time.Time) uint64 {
	sec := t.Unix()
	if sec < 0 {
		return 0
	}
	return uint64(sec)
}

func (e *Engine) updateGauges() {
	metrics.ActiveSegmentBytes.Set(float64(e.active.Size()))
	metrics.ArchivedSegments.Set(float64(len(e.archived)))
	metrics.LiveKeys.Set(float64(e.keydir.Len()))
}
