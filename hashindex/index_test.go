package hashindex

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ramstore/logstore"
)

func TestInsertAndLookup(t *testing.T) {
	idx := New(4)
	fp := uint64(123)
	ref := logstore.NewReference(1, 10)
	idx.Insert(fp, ref)

	lock := idx.LockFor(fp)
	lock.Lock()
	defer lock.Unlock()

	cur := idx.Lookup(fp)
	assert.False(t, cur.IsDone())
	assert.Equal(t, ref, cur.GetReference())
	cur.Next()
	assert.True(t, cur.IsDone())
}

func TestSetReferenceRewritesInPlace(t *testing.T) {
	idx := New(4)
	fp := uint64(5)
	idx.Insert(fp, logstore.NewReference(1, 0))

	lock := idx.LockFor(fp)
	lock.Lock()
	cur := idx.Lookup(fp)
	newRef := logstore.NewReference(2, 0)
	cur.SetReference(newRef)
	lock.Unlock()

	lock.Lock()
	defer lock.Unlock()
	cur2 := idx.Lookup(fp)
	assert.Equal(t, newRef, cur2.GetReference())
}

func TestRemoveErasesCandidate(t *testing.T) {
	idx := New(4)
	fp := uint64(7)
	idx.Insert(fp, logstore.NewReference(1, 0))

	lock := idx.LockFor(fp)
	lock.Lock()
	cur := idx.Lookup(fp)
	cur.Remove()
	lock.Unlock()

	lock.Lock()
	defer lock.Unlock()
	assert.True(t, idx.Lookup(fp).IsDone())
}

func TestForEachInBucketVisitsEveryCandidate(t *testing.T) {
	idx := New(1) // single bucket forces collisions
	idx.Insert(1, logstore.NewReference(1, 0))
	idx.Insert(2, logstore.NewReference(1, 1))

	seen := map[uint64]bool{}
	idx.ForEachInBucket(0, func(fp uint64, ref logstore.Reference) bool {
		seen[fp] = true
		return true
	})
	assert.True(t, seen[1])
	assert.True(t, seen[2])
}
