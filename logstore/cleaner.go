package logstore

import (
	"encoding/binary"
	"time"

	"github.com/cockroachdb/pebble"

	"ramstore/wire"
)

// Relocator is handed to CleanupSink callbacks so they can copy a live
// entry to a new location without knowing how segments are organized
// (spec.md 4.C).
type Relocator interface {
	// Relocate writes body into the segment currently being built by
	// the cleaner and returns its new reference. ok is false on
	// transient out-of-space; the caller should give up for this pass
	// and let the cleaner retry later.
	Relocate(body []byte) (ref Reference, ok bool)
}

// CleanupSink is what the log's cleaner calls back into once per
// live-candidate entry it encounters while evacuating a segment
// (spec.md 2, 4.C). The object manager implements this interface.
//
// oldBody is the entry's full wrapped on-disk form (the same framing
// GetEntry strips and Relocate expects back) so relocation is a pure
// copy; callers that need the decoded fields must unwrap it first via
// wire.TakeAny, same as GetEntry does internally.
//
// spec.md 4.C identifies "still this object" by comparing the stored
// bytes pointer against oldBytes's start pointer — a raw-memory
// identity check that has no equivalent once entries are copied out of
// a Go-managed pebble store on every read. oldRef is the reference the
// cleaner resolved oldBody from; comparing the index's *current*
// reference for the key against oldRef is the value-semantics
// equivalent of the same invariant ("any replace since cleaning began
// would have changed the [reference]").
type CleanupSink interface {
	GetTimestamp(t EntryType, wrappedBody []byte) uint32
	RelocateObject(oldRef Reference, wrappedBody []byte, r Relocator)
	RelocateTombstone(oldRef Reference, wrappedBody []byte, r Relocator)
}

type logRelocator struct {
	l       *Log
	segment uint64
	failed  bool
}

// Relocate re-appends a wrapped entry record verbatim, matching the
// form Append always expects and GetEntry always returns from
// (spec.md 4.C "copy it to a new location").
func (lr *logRelocator) Relocate(wrappedBody []byte) (Reference, bool) {
	refs, err := lr.l.Append(AppendEntry{Body: wrappedBody})
	if err != nil {
		lr.failed = true
		return NoReference, false
	}
	return refs[0], true
}

// CleanOnce evacuates a single closed, non-active segment (the oldest
// closed one), dispatching every entry not yet freed to the CleanupSink
// and deleting the segment once it is fully drained. If any relocation
// fails, the segment is kept and a later call retries it. It is the
// unit of work the background cleaner loop repeats;
// exposing it directly lets tests drive cleaning deterministically.
func (l *Log) CleanOnce() (cleaned bool) {
	l.mu.Lock()
	var target *segment
	for id, seg := range l.segments {
		if seg == l.active || !seg.closed {
			continue
		}
		if target == nil || id < target.id {
			target = seg
		}
	}
	sink := l.sink
	l.mu.Unlock()
	if target == nil || sink == nil {
		return false
	}

	lo := segKey(target.id, 0)
	hi := segKey(target.id+1, 0)
	iter, err := l.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return false
	}
	defer iter.Close()

	relocator := &logRelocator{l: l}
	for iter.First(); iter.Valid(); iter.Next() {
		key := append([]byte(nil), iter.Key()...)
		ref := referenceFromKey(key)
		if l.isFreed(ref) {
			continue
		}
		val := append([]byte(nil), iter.Value()...)
		lit, _, _ := wire.TakeAny(val)
		switch EntryType(lit) {
		case TypeObject:
			sink.RelocateObject(ref, val, relocator)
		case TypeTombstone:
			sink.RelocateTombstone(ref, val, relocator)
		default:
			// SAFE_VERSION entries carry no identity to relocate onto;
			// they are re-appended verbatim to preserve the mark.
			_, _ = relocator.Relocate(val)
		}
	}

	if relocator.failed {
		return false
	}

	// Every entry in the segment's key range was either relocated,
	// skipped by the sink as dead, or already freed by the time the
	// iteration above completes, so the whole segment is now safe to
	// reclaim. liveCount is not consulted
	// here: it tracks supersession by ordinary writes/removes/replay,
	// not progress of this cleaning pass.
	l.mu.Lock()
	delete(l.segments, target.id)
	l.mu.Unlock()
	_ = l.db.DeleteRange(lo, hi, nil)
	return true
}

func referenceFromKey(key []byte) Reference {
	// key = keyPrefix(1) + segmentId(8) + offset(4), see segKey.
	segmentId := binary.BigEndian.Uint64(key[1:9])
	offset := binary.BigEndian.Uint32(key[9:13])
	return NewReference(segmentId, offset)
}

// EnableCleaner starts the background cleaner goroutine, which repeatedly
// calls CleanOnce on an interval (spec.md 4.G "enable the cleaner unless
// configuration disables it").
func (l *Log) EnableCleaner(interval time.Duration) {
	l.mu.Lock()
	if l.cleanerRunning {
		l.mu.Unlock()
		return
	}
	l.cleanerRunning = true
	l.cleanerStop = make(chan struct{})
	stop := l.cleanerStop
	l.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				l.CleanOnce()
			}
		}
	}()
}

// StopCleaner halts the background cleaner goroutine, if running.
func (l *Log) StopCleaner() {
	l.mu.Lock()
	if !l.cleanerRunning {
		l.mu.Unlock()
		return
	}
	l.cleanerRunning = false
	close(l.cleanerStop)
	l.mu.Unlock()
}
