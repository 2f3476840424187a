package objectmanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ramstore/logstore"
	"ramstore/tablet"
)

// installTombstone appends a tombstone for key and binds it in the
// index, the state replay leaves behind for a deleted key. Remove does
// not leave such a binding: it erases the key's index entry.
func installTombstone(t *testing.T, m *Manager, key logstore.Key) {
	t.Helper()
	body := logstore.EncodeTombstone(logstore.TombstoneEntry{Key: key, ObjectVersion: 1, SegmentId: 1, Timestamp: 1})
	refs, err := m.log.Append(logstore.AppendEntry{Body: body})
	require.NoError(t, err)

	lock := m.bucketLock(key)
	lock.Lock()
	m.replaceLocked(key, refs[0])
	lock.Unlock()
}

func TestOrphanSweep_Invariant6(t *testing.T) {
	m := newTestManager(t)
	addNormalTablet(m, 1)
	key := logstore.Key{TableId: 1, Bytes: []byte("k")}

	_, _ = m.Write(key, []byte("v"), RejectRules{})

	tb, ok := m.tablets.GetTablet(1, key.Bytes)
	require.True(t, ok)
	m.tablets.RemoveTablet(tb)

	m.RemoveOrphanedObjects()

	status, _, _ := m.Read(key, RejectRules{})
	// The tablet is gone so Read itself reports UnknownTablet, but the
	// point of the sweep is that the *binding* is gone too: re-adding
	// the tablet must not resurrect the orphaned write.
	assert.Equal(t, "UNKNOWN_TABLET", status.String())

	addNormalTablet(m, 1)
	status, _, _ = m.Read(key, RejectRules{})
	assert.Equal(t, "OBJECT_DOESNT_EXIST", status.String())
}

func TestOrphanSweepLeavesOwnedKeysAlone(t *testing.T) {
	m := newTestManager(t)
	addNormalTablet(m, 1)
	key := logstore.Key{TableId: 1, Bytes: []byte("k")}
	_, _ = m.Write(key, []byte("v"), RejectRules{})

	m.RemoveOrphanedObjects()

	status, value, _ := m.Read(key, RejectRules{})
	require.Equal(t, "OK", status.String())
	assert.Equal(t, "v", string(value))
}

func TestTombstoneSweepRemovesTombstonesForNormalTablets(t *testing.T) {
	m := newTestManager(t)
	addNormalTablet(m, 1)
	key := logstore.Key{TableId: 1, Bytes: []byte("k")}

	installTombstone(t, m, key)

	for b := 0; b < m.index.GetNumBuckets(); b++ {
		m.sweepTombstonesInBucket(b)
	}

	lock := m.bucketLock(key)
	lock.Lock()
	_, found := m.lookupLocked(key)
	lock.Unlock()
	assert.False(t, found, "tombstone for a NORMAL tablet's key must be swept")
}

func TestTombstoneSweepPreservesTombstonesDuringRecovery(t *testing.T) {
	m := newTestManager(t)
	addNormalTablet(m, 1)
	key := logstore.Key{TableId: 1, Bytes: []byte("k")}

	installTombstone(t, m, key)

	tb, ok := m.tablets.GetTablet(1, key.Bytes)
	require.True(t, ok)
	tb.SetState(tablet.StateRecovering)

	for b := 0; b < m.index.GetNumBuckets(); b++ {
		m.sweepTombstonesInBucket(b)
	}

	lock := m.bucketLock(key)
	lock.Lock()
	cur, found := m.lookupLocked(key)
	lock.Unlock()
	require.True(t, found, "tombstone must survive while its tablet is RECOVERING")
	assert.Equal(t, logstore.TypeTombstone, cur.kind)
}

func TestTombstonePollerTermination_Invariant7(t *testing.T) {
	// A full pass over every bucket, with at least one replay return
	// recorded, must eventually sweep a tombstone belonging to a NORMAL
	// tablet without the poller ever needing more invocations than there
	// are buckets (the quiescence/no-starvation property spec.md 4.F
	// describes as "every bucket is visited in bounded time").
	m := newTestManager(t)
	addNormalTablet(m, 1)
	key := logstore.Key{TableId: 1, Bytes: []byte("k")}

	installTombstone(t, m, key)

	m.replayReturnCount.Add(1) // simulate replay activity so pass 0 isn't skipped

	numBuckets := m.index.GetNumBuckets()
	for i := 0; i < numBuckets; i++ {
		m.pollOnce()
	}

	lock := m.bucketLock(key)
	lock.Lock()
	_, found := m.lookupLocked(key)
	lock.Unlock()
	assert.False(t, found, "a full pass across all buckets must have swept the tombstone")
}

func TestTombstonePollerSkipsPassWithoutReplayActivity(t *testing.T) {
	m := newTestManager(t)
	addNormalTablet(m, 1)
	key := logstore.Key{TableId: 1, Bytes: []byte("k")}

	installTombstone(t, m, key)

	// No replayReturnCount activity recorded: the pass starting at
	// bucket 0 must be skipped entirely, leaving the tombstone in place.
	m.pollOnce()

	lock := m.bucketLock(key)
	lock.Lock()
	cur, found := m.lookupLocked(key)
	lock.Unlock()
	require.True(t, found)
	assert.Equal(t, logstore.TypeTombstone, cur.kind)
}

func TestRunTombstonePollerStopsOnContextCancel(t *testing.T) {
	m := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	m.cfg.PollerInterval = 5 * time.Millisecond

	done := make(chan struct{})
	go func() {
		m.runTombstonePoller(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runTombstonePoller did not return after context cancellation")
	}
}
