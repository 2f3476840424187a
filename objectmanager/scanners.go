package objectmanager

import (
	"context"
	"time"

	"ramstore/logstore"
	"ramstore/metrics"
	"ramstore/tablet"
)

// RemoveOrphanedObjects is spec.md 4.F's foreground sweep: walk every
// index bucket and erase any binding whose key belongs to no tablet
// this server owns, freeing its log reference. Used after an aborted
// recovery to garbage-collect half-installed state.
func (m *Manager) RemoveOrphanedObjects() {
	for b := 0; b < m.index.GetNumBuckets(); b++ {
		m.sweepOrphansInBucket(b)
	}
}

func (m *Manager) sweepOrphansInBucket(bucketIndex int) {
	lock := m.index.Lock(bucketIndex)
	lock.Lock()
	defer lock.Unlock()

	var orphanKeys []logstore.Key
	var orphanRefs []logstore.Reference
	m.index.ForEachInBucket(bucketIndex, func(fingerprint uint64, ref logstore.Reference) bool {
		kind, body, err := m.log.GetEntry(ref)
		if err != nil {
			return true
		}
		key, err := logstore.EntryKey(kind, body)
		if err != nil {
			return true
		}
		if _, owned := m.tablets.GetTablet(key.TableId, key.Bytes); !owned {
			orphanKeys = append(orphanKeys, key)
			orphanRefs = append(orphanRefs, ref)
		}
		return true
	})

	for i, key := range orphanKeys {
		if m.removeLocked(key) {
			m.log.Free(orphanRefs[i])
			metrics.OrphansRemoved.Inc()
		}
	}
}

// tombstonePollerState is the background poller's cooperative state
// (spec.md 4.F): one bucket processed per invocation, a full-pass
// counter, and the replay-return count observed at the start of the
// current pass.
type tombstonePollerState struct {
	currentBucket          int
	pass                   uint64
	lastReplaySegmentCount uint64
}

// runTombstonePoller drives the background poller until ctx is
// cancelled (spec.md 4.G "the dispatch-owned poller deregisters
// itself" on stop).
func (m *Manager) runTombstonePoller(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.PollerInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.pollOnce()
		}
	}
}

// pollOnce runs a single poller invocation: one bucket, then advances
// state (spec.md 4.F).
func (m *Manager) pollOnce() {
	st := &m.pollerState

	if st.currentBucket == 0 {
		current := m.replayReturnCount.Load()
		if current == st.lastReplaySegmentCount {
			// No replay activity since this pass started; skip.
			return
		}
		st.lastReplaySegmentCount = current
	}

	m.sweepTombstonesInBucket(st.currentBucket)

	st.currentBucket++
	if st.currentBucket >= m.index.GetNumBuckets() {
		st.currentBucket = 0
		st.pass++
		metrics.PollerPasses.Inc()
	}
}

func (m *Manager) sweepTombstonesInBucket(bucketIndex int) {
	lock := m.index.Lock(bucketIndex)
	lock.Lock()
	defer lock.Unlock()

	var staleKeys []logstore.Key
	m.index.ForEachInBucket(bucketIndex, func(fingerprint uint64, ref logstore.Reference) bool {
		kind, body, err := m.log.GetEntry(ref)
		if err != nil || kind != logstore.TypeTombstone {
			return true
		}
		tomb, _, err := logstore.DecodeTombstone(body)
		if err != nil {
			return true
		}
		tb, owned := m.tablets.GetTablet(tomb.Key.TableId, tomb.Key.Bytes)
		if !owned || tb.State != tablet.StateRecovering {
			staleKeys = append(staleKeys, tomb.Key)
		}
		return true
	})

	for _, key := range staleKeys {
		m.removeLocked(key)
	}
}
