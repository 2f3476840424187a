package tablet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetTabletMatchesRange(t *testing.T) {
	table := New()
	tb := &Tablet{TableId: 1, StartKey: []byte("a"), EndKey: []byte("m"), State: StateNormal}
	table.AddTablet(tb)

	got, ok := table.GetTablet(1, []byte("f"))
	assert.True(t, ok)
	assert.Same(t, tb, got)

	_, ok = table.GetTablet(1, []byte("z"))
	assert.False(t, ok)

	_, ok = table.GetTablet(2, []byte("f"))
	assert.False(t, ok, "different table id must not match")
}

func TestOpenEndedTabletMatchesToEndOfKeyspace(t *testing.T) {
	table := New()
	tb := &Tablet{TableId: 1, StartKey: []byte("a"), EndKey: nil, State: StateNormal}
	table.AddTablet(tb)

	_, ok := table.GetTablet(1, []byte("zzzzzzzz"))
	assert.True(t, ok)
}

func TestRemoveTabletDropsOwnership(t *testing.T) {
	table := New()
	tb := &Tablet{TableId: 1, StartKey: []byte("a"), EndKey: []byte("z"), State: StateNormal}
	table.AddTablet(tb)
	table.RemoveTablet(tb)

	_, ok := table.GetTablet(1, []byte("c"))
	assert.False(t, ok)
}

func TestReadWriteCountsIncrement(t *testing.T) {
	table := New()
	tb := &Tablet{TableId: 1, StartKey: []byte("a"), EndKey: []byte("z"), State: StateNormal}
	table.AddTablet(tb)

	table.IncrementReadCount(1, []byte("b"))
	table.IncrementReadCount(1, []byte("b"))
	table.IncrementWriteCount(1, []byte("b"))

	assert.Equal(t, uint64(2), tb.ReadCount())
	assert.Equal(t, uint64(1), tb.WriteCount())
}

func TestSetStateTransitions(t *testing.T) {
	tb := &Tablet{TableId: 1, StartKey: []byte("a"), State: StateNormal}
	tb.SetState(StateRecovering)
	assert.Equal(t, StateRecovering, tb.State)
	assert.Equal(t, "RECOVERING", tb.State.String())
}

func TestForEachTabletVisitsAcrossTableIds(t *testing.T) {
	table := New()
	tb1 := &Tablet{TableId: 1, StartKey: []byte("a")}
	tb2 := &Tablet{TableId: 2, StartKey: []byte("a")}
	table.AddTablet(tb1)
	table.AddTablet(tb2)

	var seen []uint64
	table.ForEachTablet(func(tb *Tablet) bool {
		seen = append(seen, tb.TableId)
		return true
	})
	assert.ElementsMatch(t, []uint64{1, 2}, seen)
}
