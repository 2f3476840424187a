package objectmanager

import (
	"ramstore/logstore"
	"ramstore/metrics"
	"ramstore/wire"
)

// SegmentIterator walks a recovery segment's raw TLV records in order
// (spec.md 4.E, GLOSSARY "Side-log"). wrappedBody is the literal
// on-disk record (the same framing Append stores and GetEntry strips);
// Next returns wire.ErrIncomplete once exhausted.
type SegmentIterator interface {
	Next() (entryType logstore.EntryType, wrappedBody []byte, err error)
}

// SideLog is the subset of the log's append surface replay writes
// through: a handle whose appends share the primary log's segment
// pool but stay metadata-isolated until commit (GLOSSARY "Side-log").
type SideLog interface {
	Append(entries ...logstore.AppendEntry) ([]logstore.Reference, error)
	RaiseSafeVersion(v uint64) bool
}

const prefetchTickBytes = 50 * 1024

// ReplaySegment consumes iter in order, reconciling each entry against
// the index and appending surviving entries into sideLog (spec.md
// 4.E). The covered tablet(s) must already be in RECOVERING state;
// that precondition is the caller's (recovery driver's) responsibility.
//
// Every return path — including early returns on iterator exhaustion
// or error — increments the process-wide replay-return counter the
// tombstone poller watches for quiescence (spec.md 4.F).
func (m *Manager) ReplaySegment(sideLog SideLog, iter SegmentIterator) error {
	defer func() {
		m.replayReturnCount.Add(1)
		metrics.ReplayReturns.Inc()
	}()

	var sinceTick int64
	for {
		entryType, wrappedBody, err := iter.Next()
		if err != nil {
			if err == wire.ErrIncomplete {
				return nil
			}
			return err
		}

		sinceTick += int64(len(wrappedBody))
		if sinceTick >= prefetchTickBytes {
			sinceTick = 0
			m.replicas.Tick()
		}

		switch entryType {
		case logstore.TypeObject:
			m.replayObject(sideLog, wrappedBody)
		case logstore.TypeTombstone:
			m.replayTombstone(sideLog, wrappedBody)
		case logstore.TypeSafeVersion:
			m.replaySafeVersion(sideLog, wrappedBody)
		}
	}
}

func (m *Manager) replayObject(sideLog SideLog, wrappedBody []byte) {
	_, body, _ := wire.TakeAny(wrappedBody)
	obj, checksumOK, err := logstore.DecodeObject(body)
	if err != nil {
		metrics.ReplayEntries.WithLabelValues("object", "bad_entry").Inc()
		return
	}
	if !checksumOK {
		m.logger.Warn("replay: object checksum mismatch, processing anyway", "key", string(obj.Key.Bytes))
	}

	lock := m.bucketLock(obj.Key)
	lock.Lock()
	defer lock.Unlock()

	cur, found := m.lookupLocked(obj.Key)
	minSuccessor := uint64(0)
	if found {
		minSuccessor = cur.version + 1
	}
	if obj.Version < minSuccessor {
		metrics.ReplayEntries.WithLabelValues("object", "stale").Inc()
		return
	}

	refs, err := sideLog.Append(logstore.AppendEntry{Body: wrappedBody})
	if err != nil {
		metrics.ReplayEntries.WithLabelValues("object", "retry").Inc()
		return
	}

	m.replaceLocked(obj.Key, refs[0])
	if found && cur.kind == logstore.TypeObject {
		m.log.Free(cur.ref)
	}
	metrics.ReplayEntries.WithLabelValues("object", "installed").Inc()
}

func (m *Manager) replayTombstone(sideLog SideLog, wrappedBody []byte) {
	_, body, _ := wire.TakeAny(wrappedBody)
	tomb, checksumOK, err := logstore.DecodeTombstone(body)
	if err != nil {
		metrics.ReplayEntries.WithLabelValues("tombstone", "bad_entry").Inc()
		return
	}
	if !checksumOK {
		m.logger.Warn("replay: tombstone checksum mismatch, processing anyway", "key", string(tomb.Key.Bytes))
	}

	lock := m.bucketLock(tomb.Key)
	lock.Lock()
	defer lock.Unlock()

	cur, found := m.lookupLocked(tomb.Key)
	minSuccessor := uint64(0)
	if found {
		switch cur.kind {
		case logstore.TypeObject:
			// A tombstone at the object's own version is its correct
			// delete marker (spec.md 4.E asymmetry).
			minSuccessor = cur.version
		case logstore.TypeTombstone:
			minSuccessor = cur.version + 1
		}
	}
	if tomb.ObjectVersion < minSuccessor {
		metrics.ReplayEntries.WithLabelValues("tombstone", "stale").Inc()
		return
	}

	refs, err := sideLog.Append(logstore.AppendEntry{Body: wrappedBody})
	if err != nil {
		metrics.ReplayEntries.WithLabelValues("tombstone", "retry").Inc()
		return
	}

	m.replaceLocked(tomb.Key, refs[0])
	if found && cur.kind == logstore.TypeObject {
		m.log.Free(cur.ref)
	}
	metrics.ReplayEntries.WithLabelValues("tombstone", "installed").Inc()
}

func (m *Manager) replaySafeVersion(sideLog SideLog, wrappedBody []byte) {
	_, body, _ := wire.TakeAny(wrappedBody)
	value, checksumOK, err := logstore.DecodeSafeVersion(body)
	if err != nil {
		metrics.ReplayEntries.WithLabelValues("safe_version", "bad_entry").Inc()
		return
	}
	if !checksumOK {
		m.logger.Warn("replay: safe-version checksum mismatch, processing anyway")
	}
	if _, err := sideLog.Append(logstore.AppendEntry{Body: wrappedBody}); err != nil {
		metrics.ReplayEntries.WithLabelValues("safe_version", "retry").Inc()
		return
	}
	advanced := sideLog.RaiseSafeVersion(value)
	result := "no_advance"
	if advanced {
		result = "advanced"
	}
	metrics.ReplayEntries.WithLabelValues("safe_version", result).Inc()
}
