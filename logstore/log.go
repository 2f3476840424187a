package logstore

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"ramstore/wire"
)

var (
	ErrLogFull       = errors.New("logstore: segment budget exhausted, retry")
	ErrNoSuchEntry   = errors.New("logstore: reference does not resolve to a live entry")
	ErrClosed        = errors.New("logstore: log is closed")
	ErrSegmentActive = errors.New("logstore: segment is still active, cannot be reclaimed")
)

// Config tunes the segment log. Durability and cleaning policy proper
// are external collaborators (spec.md 1); this only configures the
// stand-in this module ships so the object manager has something to
// drive.
type Config struct {
	Dir             string
	MaxSegmentBytes int64
}

// SetDefaults fills unset fields, following the teacher's Options.SetDefaults idiom.
func (c *Config) SetDefaults() {
	if c.MaxSegmentBytes == 0 {
		c.MaxSegmentBytes = 8 << 20
	}
}

type segment struct {
	id        uint64
	size      int64
	liveCount int64
	closed    bool
}

// Log is the append-only, checksummed, segment-structured store spec.md
// 2 calls "Log". It is backed by pebble for on-disk durability; each
// segment occupies its own key range inside a single pebble instance.
type Log struct {
	cfg Config
	db  *pebble.DB

	mu            sync.Mutex
	segments      map[uint64]*segment
	active        *segment
	nextSegmentId uint64
	freed         map[Reference]struct{}

	safeVersion atomic.Uint64
	nextVersion atomic.Uint64

	sink           CleanupSink
	cleanerStop    chan struct{}
	cleanerRunning bool

	collector *pebbleCollector
}

const keyPrefix = 'E'

func segKey(segmentId uint64, offset uint32) []byte {
	key := make([]byte, 0, 13)
	key = append(key, keyPrefix)
	key = binary.BigEndian.AppendUint64(key, segmentId)
	key = binary.BigEndian.AppendUint32(key, offset)
	return key
}

// Open creates or reopens a segment log rooted at cfg.Dir.
func Open(cfg Config) (*Log, error) {
	cfg.SetDefaults()
	opts := &pebble.Options{}
	db, err := pebble.Open(cfg.Dir, opts)
	if err != nil {
		return nil, errors.Wrap(err, "logstore: opening pebble store")
	}
	l := &Log{
		cfg:      cfg,
		db:       db,
		segments: make(map[uint64]*segment),
		freed:    make(map[Reference]struct{}),
	}
	l.nextSegmentId = 1
	l.collector = newPebbleCollector(db)
	return l, nil
}

// Collector returns a prometheus.Collector exposing the backing
// pebble store's compaction/memtable/WAL metrics. Callers register it
// against their own registry; Open does not register it globally so a
// server process can run more than one log without descriptor
// collisions.
func (l *Log) Collector() prometheus.Collector {
	return l.collector
}

// SetCleanupSink wires the object manager as the cleaner's callback
// target. The two are constructed separately and tied together after
// the fact because each owns a handle to the other (spec.md 9 "cyclic callback").
func (l *Log) SetCleanupSink(sink CleanupSink) {
	l.mu.Lock()
	l.sink = sink
	l.mu.Unlock()
}

func (l *Log) Close() error {
	l.StopCleaner()
	return l.db.Close()
}

// AppendEntry is one record of a vector append. Body must already be
// fully encoded via EncodeObject/EncodeTombstone/EncodeSafeVersion.
type AppendEntry struct {
	Body []byte
}

// Append submits entries as a single atomic vector append: they land
// in the same durable segment, or the call fails entirely (spec.md 4.D
// step 7). Returns one reference per entry, in order.
func (l *Log) Append(entries ...AppendEntry) ([]Reference, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	recs := make(wire.Records, len(entries))
	for i, e := range entries {
		recs[i] = e.Body
	}
	total := recs.TotalLen()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.active == nil || l.active.size+total > l.cfg.MaxSegmentBytes {
		l.rollSegmentLocked()
	}

	batch := l.db.NewBatch()
	refs := make([]Reference, 0, len(entries))
	offset := uint32(l.active.size)
	for _, e := range entries {
		if err := batch.Set(segKey(l.active.id, offset), e.Body, nil); err != nil {
			return nil, errors.Wrap(err, "logstore: staging append")
		}
		refs = append(refs, NewReference(l.active.id, offset))
		offset += uint32(len(e.Body))
	}
	if err := l.db.Apply(batch, &pebble.WriteOptions{Sync: false}); err != nil {
		return nil, ErrLogFull
	}
	l.active.size = int64(offset)
	l.active.liveCount += int64(len(entries))
	return refs, nil
}

// rollSegmentLocked closes the active segment (if any) and starts a fresh one.
// Caller must hold l.mu.
func (l *Log) rollSegmentLocked() {
	if l.active != nil {
		l.active.closed = true
	}
	seg := &segment{id: l.nextSegmentId}
	l.nextSegmentId++
	l.segments[seg.id] = seg
	l.active = seg
}

// Free releases a log reference. It does not synchronously reclaim
// segment storage, and GetEntry still resolves the reference until its
// segment is reclaimed; the cleaner skips freed entries when it
// evacuates a closed segment.
func (l *Log) Free(ref Reference) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, already := l.freed[ref]; already {
		return
	}
	l.freed[ref] = struct{}{}
	seg, ok := l.segments[ref.SegmentId()]
	if !ok {
		return
	}
	seg.liveCount--
}

// Sync is the explicit durability barrier: it forces the log's
// pending writes out to the backing store (spec.md 4.D "sync()").
func (l *Log) Sync() error {
	return l.db.LogData(nil, &pebble.WriteOptions{Sync: true})
}

// GetEntry dereferences a log reference into its stored type and body.
func (l *Log) GetEntry(ref Reference) (EntryType, []byte, error) {
	raw, closer, err := l.db.Get(segKey(ref.SegmentId(), ref.Offset()))
	if err != nil {
		return 0, nil, ErrNoSuchEntry
	}
	defer closer.Close()
	cp := make([]byte, len(raw))
	copy(cp, raw)
	lit, body, _ := wire.TakeAny(cp)
	return EntryType(lit), body, nil
}

// SegmentExists reports whether a segment is still present in the log
// (spec.md 4 invariant 4b: a tombstone is only retained while its
// segment still exists).
func (l *Log) SegmentExists(segmentId uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.segments[segmentId]
	return ok
}

func (l *Log) isFreed(ref Reference) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.freed[ref]
	return ok
}
