package objectmanager

import (
	"ramstore/logstore"
	"ramstore/metrics"
	"ramstore/wire"
)

// GetTimestamp implements logstore.CleanupSink: dispatch to the
// embedded timestamp field; other types carry none (spec.md 4.C).
func (m *Manager) GetTimestamp(t logstore.EntryType, wrappedBody []byte) uint32 {
	_, body, _ := wire.TakeAny(wrappedBody)
	switch t {
	case logstore.TypeObject:
		obj, _, err := logstore.DecodeObject(body)
		if err != nil {
			return 0
		}
		return obj.Timestamp
	case logstore.TypeTombstone:
		tomb, _, err := logstore.DecodeTombstone(body)
		if err != nil {
			return 0
		}
		return tomb.Timestamp
	default:
		return 0
	}
}

// RelocateObject implements logstore.CleanupSink (spec.md 4.C). oldRef
// is the Go value-semantics stand-in for the spec's byte-pointer
// identity check (see logstore.CleanupSink's doc comment).
func (m *Manager) RelocateObject(oldRef logstore.Reference, wrappedBody []byte, r logstore.Relocator) {
	_, body, _ := wire.TakeAny(wrappedBody)
	obj, _, err := logstore.DecodeObject(body)
	if err != nil {
		metrics.CleanerRelocations.WithLabelValues("object", "bad_entry").Inc()
		return
	}
	key := obj.Key

	lock := m.bucketLock(key)
	lock.Lock()
	defer lock.Unlock()

	if tb, ok := m.tablets.GetTablet(key.TableId, key.Bytes); !ok || tb == nil {
		m.removeLocked(key)
		metrics.CleanerRelocations.WithLabelValues("object", "orphaned").Inc()
		return
	}

	cur, ok := m.lookupLocked(key)
	if !ok || cur.kind != logstore.TypeObject || cur.ref != oldRef {
		// Binding moved on since cleaning began; nothing to do.
		metrics.CleanerRelocations.WithLabelValues("object", "stale").Inc()
		return
	}

	newRef, ok := r.Relocate(wrappedBody)
	if !ok {
		metrics.CleanerRelocations.WithLabelValues("object", "retry").Inc()
		return
	}
	m.replaceLocked(key, newRef)
	metrics.CleanerRelocations.WithLabelValues("object", "relocated").Inc()
}

// RelocateTombstone implements logstore.CleanupSink (spec.md 4.C). A
// tombstone is live iff its named segment still exists; tombstones are
// not tracked in the steady-state index so no binding update follows.
func (m *Manager) RelocateTombstone(oldRef logstore.Reference, wrappedBody []byte, r logstore.Relocator) {
	_, body, _ := wire.TakeAny(wrappedBody)
	tomb, _, err := logstore.DecodeTombstone(body)
	if err != nil {
		metrics.CleanerRelocations.WithLabelValues("tombstone", "bad_entry").Inc()
		return
	}
	if !m.log.SegmentExists(tomb.SegmentId) {
		metrics.CleanerRelocations.WithLabelValues("tombstone", "expired").Inc()
		return
	}
	if _, ok := r.Relocate(wrappedBody); !ok {
		metrics.CleanerRelocations.WithLabelValues("tombstone", "retry").Inc()
		return
	}
	metrics.CleanerRelocations.WithLabelValues("tombstone", "relocated").Inc()
}
