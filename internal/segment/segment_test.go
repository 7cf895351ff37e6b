package segment_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/MikhailWahib/minicask/internal/diskmanager"
	"github.com/MikhailWahib/minicask/internal/diskmanager/mockdm"
	"github.com/MikhailWahib/minicask/internal/record"
	"github.com/MikhailWahib/minicask/internal/segment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (diskmanager.DiskManager, string) {
	t.Helper()
	return diskmanager.NewDiskManager(), t.TempDir()
}

func readAll(t *testing.T, s *segment.Segment) ([]record.Entry, error) {
	t.Helper()
	var entries []record.Entry
	var offset int64
	for {
		e, err := s.Read(offset)
		if err != nil {
			return entries, err
		}
		entries = append(entries, e)
		offset += e.Size()
	}
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "1.data", segment.FileName(1))
	assert.Equal(t, "42.data", segment.FileName(42))

	tests := []struct {
		name string
		id   uint64
		ok   bool
	}{
		{"1.data", 1, true},
		{"120.data", 120, true},
		{"0.data", 0, false},
		{"01.data", 0, false},
		{"a.data", 0, false},
		{"1.data.tmp", 0, false},
		{"LOCK", 0, false},
	}
	for _, tt := range tests {
		id, ok := segment.ParseFileName(tt.name)
		assert.Equal(t, tt.ok, ok, tt.name)
		assert.Equal(t, tt.id, id, tt.name)
	}
}

func TestSegment_OpenMissing(t *testing.T) {
	dm, dir := setup(t)

	_, err := segment.Open(dm, dir, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestSegment_WriteRead(t *testing.T) {
	dm, dir := setup(t)

	s, err := segment.Create(dm, dir, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), s.ID())
	assert.Zero(t, s.Size())

	written := []record.Entry{
		record.NewEntry(record.SetMark, []byte("key1"), []byte("value1"), 1),
		record.NewEntry(record.DeleteMark, []byte("key1"), nil, 2),
		record.NewEntry(record.ClearMark, nil, nil, 3),
		record.NewEntry(record.SetWithExpireMark, []byte("key2"), []byte("value2"), 4),
	}
	var size int64
	for _, e := range written {
		require.NoError(t, s.Write(e))
		size += e.Size()
		assert.Equal(t, size, s.Size())
	}

	entries, err := readAll(t, s)
	assert.ErrorIs(t, err, segment.ErrEndOfSegment)
	require.Len(t, entries, len(written))
	for i, e := range entries {
		assert.True(t, e.Valid)
		assert.Equal(t, written[i].Mark, e.Mark)
		assert.Equal(t, written[i].Timestamp, e.Timestamp)
		assert.Equal(t, string(written[i].Key), string(e.Key))
		assert.Equal(t, string(written[i].Value), string(e.Value))
	}

	require.NoError(t, s.Close())
}

func TestSegment_ReopenAppends(t *testing.T) {
	dm, dir := setup(t)

	s, err := segment.Create(dm, dir, 3)
	require.NoError(t, err)
	require.NoError(t, s.Write(record.NewEntry(record.SetMark, []byte("a"), []byte("1"), 1)))
	require.NoError(t, s.Close())

	s, err = segment.Open(dm, dir, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(record.HeaderSize+2), s.Size())
	require.NoError(t, s.Write(record.NewEntry(record.SetMark, []byte("b"), []byte("2"), 2)))
	require.NoError(t, s.Close())

	info, err := os.Stat(filepath.Join(dir, "3.data"))
	require.NoError(t, err)
	assert.Equal(t, int64(2*(record.HeaderSize+2)), info.Size())

	s, err = segment.OpenArchived(dm, dir, 3)
	require.NoError(t, err)
	entries, err := readAll(t, s)
	assert.ErrorIs(t, err, segment.ErrEndOfSegment)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", string(entries[1].Key))
	require.NoError(t, s.Close())
}

func TestSegment_ArchivedIsReadOnly(t *testing.T) {
	dm, dir := setup(t)

	s, err := segment.Create(dm, dir, 1)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = segment.OpenArchived(dm, dir, 1)
	require.NoError(t, err)
	err = s.Write(record.NewEntry(record.SetMark, []byte("a"), []byte("1"), 1))
	assert.ErrorIs(t, err, diskmanager.ErrReadOnly)
	assert.ErrorIs(t, s.Truncate(0), diskmanager.ErrReadOnly)
	require.NoError(t, s.Close())
}

func TestSegment_TruncatedTail(t *testing.T) {
	dm, dir := setup(t)

	s, err := segment.Create(dm, dir, 1)
	require.NoError(t, err)
	require.NoError(t, s.Write(record.NewEntry(record.SetMark, []byte("a"), []byte("1"), 1)))
	require.NoError(t, s.Write(record.NewEntry(record.SetMark, []byte("b"), []byte("2"), 2)))
	full := s.Size()
	require.NoError(t, s.Close())

	for _, cut := range []int64{1, 5, record.HeaderSize + 1} {
		path := filepath.Join(dir, "1.data")
		require.NoError(t, os.Truncate(path, full-cut))

		s, err = segment.Open(dm, dir, 1)
		require.NoError(t, err)

		entries, err := readAll(t, s)
		assert.ErrorIs(t, err, segment.ErrTruncated, "cut %d", cut)
		assert.True(t, segment.IsCorruption(err), "cut %d", cut)
		require.Len(t, entries, 1, "cut %d", cut)
		assert.Equal(t, "a", string(entries[0].Key))
		require.NoError(t, s.Close())
	}
}

func TestSegment_ChecksumMismatch(t *testing.T) {
	dm, dir := setup(t)

	s, err := segment.Create(dm, dir, 1)
	require.NoError(t, err)
	require.NoError(t, s.Write(record.NewEntry(record.SetMark, []byte("a"), []byte("1"), 1)))
	require.NoError(t, s.Write(record.NewEntry(record.SetMark, []byte("b"), []byte("2"), 2)))
	require.NoError(t, s.Close())

	path := filepath.Join(dir, "1.data")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0644))

	s, err = segment.Open(dm, dir, 1)
	require.NoError(t, err)
	entries, err := readAll(t, s)
	assert.ErrorIs(t, err, record.ErrChecksumMismatch)
	assert.True(t, segment.IsCorruption(err))
	assert.Len(t, entries, 1)
	require.NoError(t, s.Close())
}

func TestSegment_ReadFailureIsNotCorruption(t *testing.T) {
	dm := mockdm.NewMockDiskManager()

	s, err := segment.Create(dm, "/db", 1)
	require.NoError(t, err)
	require.NoError(t, s.Write(record.NewEntry(record.SetMark, []byte("a"), []byte("1"), 1)))
	require.NoError(t, s.Write(record.NewEntry(record.SetMark, []byte("b"), []byte("2"), 2)))

	dm.FailReads(1, mockdm.ErrInjected)
	entries, err := readAll(t, s)
	assert.ErrorIs(t, err, mockdm.ErrInjected)
	assert.False(t, segment.IsCorruption(err))
	assert.Len(t, entries, 1)
	assert.False(t, segment.IsCorruption(segment.ErrEndOfSegment))
}

func TestSegment_ReadPastEnd(t *testing.T) {
	dm, dir := setup(t)

	s, err := segment.Create(dm, dir, 1)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	_, err = s.Read(0)
	assert.ErrorIs(t, err, segment.ErrEndOfSegment)
	_, err = s.Read(100)
	assert.ErrorIs(t, err, segment.ErrEndOfSegment)
}

func TestSegment_InvalidEntry(t *testing.T) {
	dm, dir := setup(t)

	s, err := segment.Create(dm, dir, 1)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	e := record.NewEntry(record.SetMark, []byte("a"), []byte("1"), 1)
	e.Valid = false
	assert.ErrorIs(t, s.Write(e), record.ErrInvalidEntry)
	assert.Zero(t, s.Size())
}

func TestSegment_OperationsAfterClose(t *testing.T) {
	dm, dir := setup(t)

	s, err := segment.Create(dm, dir, 1)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.True(t, s.Closed())

	assert.ErrorIs(t, s.Write(record.NewEntry(record.SetMark, []byte("a"), []byte("1"), 1)), segment.ErrClosed)
	_, err = s.Read(0)
	assert.ErrorIs(t, err, segment.ErrClosed)
	assert.ErrorIs(t, s.Sync(), segment.ErrClosed)
	assert.ErrorIs(t, s.Close(), segment.ErrClosed)
}

func TestSegment_WriteFailureKeepsOffset(t *testing.T) {
	dm := mockdm.NewMockDiskManager()

	s, err := segment.Create(dm, "/db", 1)
	require.NoError(t, err)
	require.NoError(t, s.Write(record.NewEntry(record.SetMark, []byte("a"), []byte("1"), 1)))
	before := s.Size()

	dm.FailWrites(mockdm.ErrInjected)
	err = s.Write(record.NewEntry(record.SetMark, []byte("b"), []byte("2"), 2))
	assert.ErrorIs(t, err, mockdm.ErrInjected)
	assert.Equal(t, before, s.Size())

	dm.FailWrites(nil)
	require.NoError(t, s.Write(record.NewEntry(record.SetMark, []byte("c"), []byte("3"), 3)))

	entries, err := readAll(t, s)
	assert.ErrorIs(t, err, segment.ErrEndOfSegment)
	require.Len(t, entries, 2)
	assert.Equal(t, "c", string(entries[1].Key))
}

func TestSegment_CloseReportsSyncFailure(t *testing.T) {
	dm := mockdm.NewMockDiskManager()

	s, err := segment.Create(dm, "/db", 1)
	require.NoError(t, err)

	dm.FailSyncs(mockdm.ErrInjected)
	assert.ErrorIs(t, s.Close(), mockdm.ErrInjected)
	assert.True(t, s.Closed())
}

func TestSegment_Truncate(t *testing.T) {
	dm, dir := setup(t)

	s, err := segment.Create(dm, dir, 1)
	require.NoError(t, err)
	require.NoError(t, s.Write(record.NewEntry(record.SetMark, []byte("a"), []byte("1"), 1)))
	valid := s.Size()
	require.NoError(t, s.Write(record.NewEntry(record.SetMark, []byte("b"), []byte("2"), 2)))

	assert.Error(t, s.Truncate(s.Size()+1))
	require.NoError(t, s.Truncate(valid))
	assert.Equal(t, valid, s.Size())

	require.NoError(t, s.Write(record.NewEntry(record.SetMark, []byte("c"), []byte("3"), 3)))
	entries, err := readAll(t, s)
	assert.ErrorIs(t, err, segment.ErrEndOfSegment)
	require.Len(t, entries, 2)
	assert.Equal(t, "c", string(entries[1].Key))
	require.NoError(t, s.Close())

	info, err := os.Stat(filepath.Join(dir, "1.data"))
	require.NoError(t, err)
	assert.Equal(t, 2*valid, info.Size())
}
