package logstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(Config{Dir: t.TempDir(), MaxSegmentBytes: 4096})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestAllocateVersionStartsAtOne(t *testing.T) {
	l := openTestLog(t)
	assert.Equal(t, uint64(1), l.AllocateVersion())
	assert.Equal(t, uint64(2), l.AllocateVersion())
}

func TestAppendAndGetEntryRoundTrips(t *testing.T) {
	l := openTestLog(t)
	body := EncodeObject(ObjectEntry{Key: Key{TableId: 1, Bytes: []byte("k")}, Value: []byte("v"), Version: 1, Timestamp: 1})

	refs, err := l.Append(AppendEntry{Body: body})
	require.NoError(t, err)
	require.Len(t, refs, 1)

	kind, got, err := l.GetEntry(refs[0])
	require.NoError(t, err)
	assert.Equal(t, TypeObject, kind)
	assert.Equal(t, body[2:], got) // got is post-TLV-unwrap body
}

func TestAppendIsAtomicAcrossEntries(t *testing.T) {
	l := openTestLog(t)
	objBody := EncodeObject(ObjectEntry{Key: Key{TableId: 1, Bytes: []byte("k")}, Value: []byte("v"), Version: 2, Timestamp: 1})
	tombBody := EncodeTombstone(TombstoneEntry{Key: Key{TableId: 1, Bytes: []byte("k")}, ObjectVersion: 1, SegmentId: 1, Timestamp: 1})

	refs, err := l.Append(AppendEntry{Body: objBody}, AppendEntry{Body: tombBody})
	require.NoError(t, err)
	require.Len(t, refs, 2)

	_, _, err = l.GetEntry(refs[0])
	assert.NoError(t, err)
	_, _, err = l.GetEntry(refs[1])
	assert.NoError(t, err)
}

func TestRaiseSafeVersionMonotoneNonDecreasing(t *testing.T) {
	l := openTestLog(t)
	assert.True(t, l.RaiseSafeVersion(10))
	assert.Equal(t, uint64(10), l.SafeVersion())
	assert.False(t, l.RaiseSafeVersion(5), "must not move backward")
	assert.Equal(t, uint64(10), l.SafeVersion())
	assert.True(t, l.RaiseSafeVersion(20))
}

func TestRaiseSafeVersionBumpsNextVersion(t *testing.T) {
	l := openTestLog(t)
	l.RaiseSafeVersion(100)
	assert.Greater(t, l.AllocateVersion(), uint64(100), "freshly allocated versions must exceed SafeVersion")
}

func TestFreeMarksReferenceFreed(t *testing.T) {
	l := openTestLog(t)
	body := EncodeObject(ObjectEntry{Key: Key{TableId: 1, Bytes: []byte("k")}, Value: []byte("v"), Version: 1, Timestamp: 1})
	refs, err := l.Append(AppendEntry{Body: body})
	require.NoError(t, err)

	l.Free(refs[0])
	assert.True(t, l.isFreed(refs[0]))
}

func TestSegmentExistsReportsOnlyKnownSegments(t *testing.T) {
	l := openTestLog(t)
	body := EncodeObject(ObjectEntry{Key: Key{TableId: 1, Bytes: []byte("k")}, Value: []byte("v"), Version: 1, Timestamp: 1})
	refs, err := l.Append(AppendEntry{Body: body})
	require.NoError(t, err)

	assert.True(t, l.SegmentExists(refs[0].SegmentId()))
	assert.False(t, l.SegmentExists(refs[0].SegmentId()+999))
}

type fakeSink struct {
	relocatedObjects    int
	relocatedTombstones int
}

func (f *fakeSink) GetTimestamp(t EntryType, body []byte) uint32 { return 0 }
func (f *fakeSink) RelocateObject(oldRef Reference, oldBody []byte, r Relocator) {
	f.relocatedObjects++
	_, _ = r.Relocate(oldBody)
}
func (f *fakeSink) RelocateTombstone(oldRef Reference, oldBody []byte, r Relocator) {
	f.relocatedTombstones++
	_, _ = r.Relocate(oldBody)
}

func TestCleanOnceRelocatesLiveEntriesOutOfOldSegments(t *testing.T) {
	l := openTestLog(t)
	sink := &fakeSink{}
	l.SetCleanupSink(sink)

	// Fill the first segment past its size budget so a second Append rolls
	// a new segment, leaving the first closed and eligible for cleaning.
	big := make([]byte, 4096)
	body := EncodeObject(ObjectEntry{Key: Key{TableId: 1, Bytes: []byte("k1")}, Value: big, Version: 1, Timestamp: 1})
	refs, err := l.Append(AppendEntry{Body: body})
	require.NoError(t, err)
	firstSegment := refs[0].SegmentId()

	body2 := EncodeObject(ObjectEntry{Key: Key{TableId: 1, Bytes: []byte("k2")}, Value: []byte("v2"), Version: 1, Timestamp: 1})
	_, err = l.Append(AppendEntry{Body: body2})
	require.NoError(t, err)
	require.True(t, l.SegmentExists(firstSegment))

	cleaned := l.CleanOnce()
	assert.True(t, cleaned)
	assert.Equal(t, 1, sink.relocatedObjects)
	assert.False(t, l.SegmentExists(firstSegment), "cleaned segment must be reclaimed")
}
