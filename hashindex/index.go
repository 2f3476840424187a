// Package hashindex implements the bucket-keyed hash index spec.md 2
// describes: a mapping from key fingerprint to an opaque log reference,
// supporting candidate iteration, per-bucket locking, and per-bucket
// iteration (spec.md 6 "From the hash index (consumed)").
//
// The index itself never looks at keys — only fingerprints and
// references — mirroring spec.md 4.B: "Because the index stores only
// references (not keys), each primitive iterates index candidates in
// the bucket, dereferences each through the Log to recover the stored
// entry's key, and compares." That dereference-and-compare logic is
// the object manager's (spec.md component B), not this package's.
package hashindex

import (
	"sync"

	"ramstore/logstore"
)

// Index is a fixed-size array of buckets, each independently locked.
// Bucket count and the lock table are both fixed at construction time
// (spec.md 5: "striped by key fingerprint modulo a fixed table of locks").
type Index struct {
	buckets []bucket
	locks   []sync.Mutex
}

type candidate struct {
	fingerprint uint64
	ref         logstore.Reference
}

type bucket struct {
	candidates []candidate
}

// New builds an index with numBuckets buckets.
func New(numBuckets int) *Index {
	if numBuckets <= 0 {
		numBuckets = 1
	}
	return &Index{
		buckets: make([]bucket, numBuckets),
		locks:   make([]sync.Mutex, numBuckets),
	}
}

// GetNumBuckets reports the fixed bucket count.
func (idx *Index) GetNumBuckets() int {
	return len(idx.buckets)
}

// BucketIndex maps a fingerprint to its bucket.
func (idx *Index) BucketIndex(fingerprint uint64) int {
	return int(fingerprint % uint64(len(idx.buckets)))
}

// Lock returns the mutex guarding a bucket. Every operation that reads
// or mutates a binding in that bucket must hold this lock for the
// entire critical section (spec.md 5), including any Log append that
// installs the new reference — this package does not take the lock
// for the caller.
func (idx *Index) Lock(bucketIndex int) *sync.Mutex {
	return &idx.locks[bucketIndex]
}

// LockFor is a convenience wrapper returning the lock for a fingerprint's bucket.
func (idx *Index) LockFor(fingerprint uint64) *sync.Mutex {
	return idx.Lock(idx.BucketIndex(fingerprint))
}

// Cursor iterates the candidates of one bucket, matching spec.md 6's
// consumed hash-index shape ("isDone / getReference / setReference /
// remove / next"). Cursors are only valid while the bucket lock is held.
type Cursor struct {
	idx    *Index
	bucket int
	pos    int
}

// Lookup begins iterating candidates in fingerprint's bucket. Caller
// must already hold the bucket's lock.
func (idx *Index) Lookup(fingerprint uint64) Cursor {
	return Cursor{idx: idx, bucket: idx.BucketIndex(fingerprint), pos: 0}
}

func (c Cursor) IsDone() bool {
	return c.pos >= len(c.idx.buckets[c.bucket].candidates)
}

func (c Cursor) Fingerprint() uint64 {
	return c.idx.buckets[c.bucket].candidates[c.pos].fingerprint
}

func (c Cursor) GetReference() logstore.Reference {
	return c.idx.buckets[c.bucket].candidates[c.pos].ref
}

// SetReference rewrites the reference this cursor currently points at.
func (c Cursor) SetReference(ref logstore.Reference) {
	c.idx.buckets[c.bucket].candidates[c.pos].ref = ref
}

// Remove erases the candidate this cursor points at.
func (c Cursor) Remove() {
	b := &c.idx.buckets[c.bucket]
	b.candidates = append(b.candidates[:c.pos], b.candidates[c.pos+1:]...)
}

func (c *Cursor) Next() {
	c.pos++
}

// Insert adds a new binding without checking for an existing one
// (callers use Cursor.IsDone to decide between Insert and SetReference,
// matching spec.md 4.B's replace()'s "never creates duplicates").
func (idx *Index) Insert(fingerprint uint64, ref logstore.Reference) {
	b := idx.BucketIndex(fingerprint)
	idx.buckets[b].candidates = append(idx.buckets[b].candidates, candidate{fingerprint: fingerprint, ref: ref})
}

// ForEachInBucket visits every candidate in one bucket. Caller must
// hold that bucket's lock. cb returning false stops iteration early.
func (idx *Index) ForEachInBucket(bucketIndex int, cb func(fingerprint uint64, ref logstore.Reference) bool) {
	for _, c := range idx.buckets[bucketIndex].candidates {
		if !cb(c.fingerprint, c.ref) {
			return
		}
	}
}
