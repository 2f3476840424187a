// Package logstore implements the append-only, checksummed entry log
// consumed by the object manager (spec.md 2 "Log", 6 "From the log").
// Segment layout, backup replication, and cleaning policy are kept
// deliberately simple: the object manager's correctness never depends
// on their internals, only on this package's exported API.
package logstore

import (
	"encoding/binary"

	"github.com/cespare/xxhash"
)

// EntryType distinguishes the three persisted record kinds spec.md 3 names.
type EntryType byte

const (
	TypeObject      EntryType = 'O'
	TypeTombstone   EntryType = 'T'
	TypeSafeVersion EntryType = 'V'
)

func (t EntryType) String() string {
	switch t {
	case TypeObject:
		return "OBJECT"
	case TypeTombstone:
		return "TOMBSTONE"
	case TypeSafeVersion:
		return "SAFE_VERSION"
	default:
		return "UNKNOWN"
	}
}

// Key is the (tableId, keyBytes) pair spec.md 3 defines; equality is
// bytewise and a fingerprint is derived deterministically for bucket
// selection.
type Key struct {
	TableId uint64
	Bytes   []byte
}

// Equal compares two keys bytewise.
func (k Key) Equal(o Key) bool {
	if k.TableId != o.TableId || len(k.Bytes) != len(o.Bytes) {
		return false
	}
	for i := range k.Bytes {
		if k.Bytes[i] != o.Bytes[i] {
			return false
		}
	}
	return true
}

// Fingerprint derives the bucket selector for this key.
func (k Key) Fingerprint() uint64 {
	h := xxhash.New()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], k.TableId)
	_, _ = h.Write(buf[:])
	_, _ = h.Write(k.Bytes)
	return h.Sum64()
}

// VersionNone represents "no object currently exists for this key"
// when evaluating reject rules or reporting the out-version of a
// doesntExist rejection (spec.md 4.A, 4.D). Version 0 is never
// assigned to a real object since AllocateVersion starts from 1.
const VersionNone uint64 = 0

// ObjectEntry is the persisted object record (spec.md 3).
type ObjectEntry struct {
	Key       Key
	Value     []byte
	Version   uint64
	Timestamp uint32
}

// TombstoneEntry is the persisted delete-marker record (spec.md 3).
// SegmentId names the segment that held the object this tombstone
// obsoletes; the tombstone is only needed while that segment exists.
type TombstoneEntry struct {
	Key           Key
	ObjectVersion uint64
	SegmentId     uint64
	Timestamp     uint32
}
