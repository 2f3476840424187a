// Package tablet implements the tablet ownership table spec.md 2
// describes as an external collaborator: the authoritative record of
// which key ranges this process serves, and in what state.
package tablet

import (
	"bytes"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// State is a tablet's lifecycle state (spec.md 2, GLOSSARY).
type State byte

const (
	StateNormal State = iota
	StateRecovering
)

func (s State) String() string {
	switch s {
	case StateNormal:
		return "NORMAL"
	case StateRecovering:
		return "RECOVERING"
	default:
		return "UNKNOWN"
	}
}

// Tablet is a contiguous range of keys within a table, assigned to
// this server (GLOSSARY "Tablet").
type Tablet struct {
	TableId    uint64
	StartKey   []byte
	EndKey     []byte // exclusive; nil means "to the end of the keyspace"
	State      State
	readCount  atomic.Uint64
	writeCount atomic.Uint64
}

func (t *Tablet) contains(keyBytes []byte) bool {
	if bytes.Compare(keyBytes, t.StartKey) < 0 {
		return false
	}
	if t.EndKey != nil && bytes.Compare(keyBytes, t.EndKey) >= 0 {
		return false
	}
	return true
}

func (t *Tablet) ReadCount() uint64  { return t.readCount.Load() }
func (t *Tablet) WriteCount() uint64 { return t.writeCount.Load() }

// Table is the concurrent, per-process registry of owned tablets,
// keyed by table id. Each table id maps to a small slice of
// non-overlapping ranges, so lookups are a short linear scan once the
// table id's bucket is found.
type Table struct {
	byTableId *xsync.MapOf[uint64, []*Tablet]
}

func New() *Table {
	return &Table{byTableId: xsync.NewMapOf[uint64, []*Tablet]()}
}

// GetTablet returns the tablet owning (tableId, keyBytes), if any
// (spec.md 6 "getTablet(key) -> Tablet?").
func (t *Table) GetTablet(tableId uint64, keyBytes []byte) (*Tablet, bool) {
	tablets, ok := t.byTableId.Load(tableId)
	if !ok {
		return nil, false
	}
	for _, tb := range tablets {
		if tb.contains(keyBytes) {
			return tb, true
		}
	}
	return nil, false
}

// AddTablet registers ownership of a new range, e.g. at recovery start.
func (t *Table) AddTablet(tb *Tablet) {
	t.byTableId.Compute(tb.TableId, func(cur []*Tablet, loaded bool) ([]*Tablet, bool) {
		return append(cur, tb), false
	})
}

// RemoveTablet drops ownership of a range, e.g. after a failed recovery
// or a migration hand-off.
func (t *Table) RemoveTablet(tb *Tablet) {
	t.byTableId.Compute(tb.TableId, func(cur []*Tablet, loaded bool) ([]*Tablet, bool) {
		if !loaded {
			return cur, true
		}
		out := cur[:0]
		for _, c := range cur {
			if c != tb {
				out = append(out, c)
			}
		}
		return out, len(out) == 0
	})
}

// SetState transitions a tablet's state, e.g. RECOVERING -> NORMAL once
// replay completes.
func (t *Tablet) SetState(s State) {
	t.State = s
}

// IncrementReadCount and IncrementWriteCount track per-tablet op
// counts (spec.md 6 "incrementReadCount(key), incrementWriteCount(key)").
func (t *Table) IncrementReadCount(tableId uint64, keyBytes []byte) {
	if tb, ok := t.GetTablet(tableId, keyBytes); ok {
		tb.readCount.Add(1)
	}
}

func (t *Table) IncrementWriteCount(tableId uint64, keyBytes []byte) {
	if tb, ok := t.GetTablet(tableId, keyBytes); ok {
		tb.writeCount.Add(1)
	}
}

// ForEachTablet visits every tablet this table currently tracks,
// across all table ids. cb returning false stops iteration early.
func (t *Table) ForEachTablet(cb func(tb *Tablet) bool) {
	t.byTableId.Range(func(_ uint64, tablets []*Tablet) bool {
		for _, tb := range tablets {
			if !cb(tb) {
				return false
			}
		}
		return true
	})
}
