package objectmanager

import (
	"sync"

	"ramstore/logstore"
)

// binding is a resolved index candidate: the decoded type, body and
// version of whatever the index currently points at for a key, plus
// the reference itself.
type binding struct {
	kind    logstore.EntryType
	body    []byte
	version uint64
	ref     logstore.Reference
}

func versionOf(kind logstore.EntryType, body []byte) (uint64, error) {
	switch kind {
	case logstore.TypeObject:
		obj, _, err := logstore.DecodeObject(body)
		if err != nil {
			return 0, err
		}
		return obj.Version, nil
	case logstore.TypeTombstone:
		tomb, _, err := logstore.DecodeTombstone(body)
		if err != nil {
			return 0, err
		}
		return tomb.ObjectVersion, nil
	default:
		return 0, logstore.ErrWrongType
	}
}

// lookupLocked is spec.md 4.B's lookup(key): it requires the caller to
// already hold the bucket lock for key's fingerprint. Because the
// index stores only references, it iterates candidates in the bucket,
// dereferences each through the log to recover the stored entry's key,
// and compares.
func (m *Manager) lookupLocked(key logstore.Key) (binding, bool) {
	fp := key.Fingerprint()
	for cur := m.index.Lookup(fp); !cur.IsDone(); cur.Next() {
		ref := cur.GetReference()
		kind, body, err := m.log.GetEntry(ref)
		if err != nil {
			continue // entry already freed/relocated out from under us
		}
		entryKey, err := logstore.EntryKey(kind, body)
		if err != nil || !entryKey.Equal(key) {
			continue
		}
		version, err := versionOf(kind, body)
		if err != nil {
			continue
		}
		return binding{kind: kind, body: body, version: version, ref: ref}, true
	}
	return binding{}, false
}

// replaceLocked is spec.md 4.B's replace(key, newRef): rewrites the
// matching candidate's reference if one exists, otherwise inserts a
// new binding. Never creates duplicates. Returns whether a prior
// binding existed. Caller must hold the bucket lock.
func (m *Manager) replaceLocked(key logstore.Key, newRef logstore.Reference) bool {
	fp := key.Fingerprint()
	for cur := m.index.Lookup(fp); !cur.IsDone(); cur.Next() {
		ref := cur.GetReference()
		kind, body, err := m.log.GetEntry(ref)
		if err != nil {
			continue
		}
		entryKey, err := logstore.EntryKey(kind, body)
		if err != nil || !entryKey.Equal(key) {
			continue
		}
		cur.SetReference(newRef)
		return true
	}
	m.index.Insert(fp, newRef)
	return false
}

// removeLocked is spec.md 4.B's remove(key): erases a matching
// candidate. Caller must hold the bucket lock.
func (m *Manager) removeLocked(key logstore.Key) bool {
	fp := key.Fingerprint()
	for cur := m.index.Lookup(fp); !cur.IsDone(); cur.Next() {
		ref := cur.GetReference()
		kind, body, err := m.log.GetEntry(ref)
		if err != nil {
			continue
		}
		entryKey, err := logstore.EntryKey(kind, body)
		if err != nil || !entryKey.Equal(key) {
			continue
		}
		cur.Remove()
		return true
	}
	return false
}

func (m *Manager) bucketLock(key logstore.Key) *sync.Mutex {
	return m.index.LockFor(key.Fingerprint())
}
