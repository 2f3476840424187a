package objectmanager

import (
	"time"

	"ramstore/logstore"
	"ramstore/metrics"
	"ramstore/objstatus"
	"ramstore/tablet"
)

func nowSeconds() uint32 {
	return uint32(time.Now().Unix())
}

// Write implements spec.md 4.D's write(key, value, rejectRules?).
func (m *Manager) Write(key logstore.Key, value []byte, rules RejectRules) (objstatus.Status, uint64) {
	start := time.Now()
	defer func() { metrics.OperationDuration.WithLabelValues("write").Observe(time.Since(start).Seconds()) }()

	m.primeOnFirstWrite()

	lock := m.bucketLock(key)
	lock.Lock()
	defer lock.Unlock()

	tb, ok := m.tablets.GetTablet(key.TableId, key.Bytes)
	if !ok || tb == nil || tb.State != tablet.StateNormal {
		metrics.Operations.WithLabelValues("write", "unknown_tablet").Inc()
		return objstatus.UnknownTablet, logstore.VersionNone
	}

	cur, found := m.lookupLocked(key)
	currentVersion := logstore.VersionNone
	var currentRef logstore.Reference
	haveCurrentObject := false
	if found {
		switch cur.kind {
		case logstore.TypeTombstone:
			// Asynchronous purge: leave it for the scanners (F); treat
			// the key as absent for this write.
		case logstore.TypeObject:
			currentVersion = cur.version
			currentRef = cur.ref
			haveCurrentObject = true
		}
	}

	if status := rules.Evaluate(currentVersion); status != objstatus.OK {
		metrics.Operations.WithLabelValues("write", status.String()).Inc()
		return status, currentVersion
	}

	var newVersion uint64
	if haveCurrentObject {
		newVersion = currentVersion + 1
	} else {
		newVersion = m.log.AllocateVersion()
	}

	ts := nowSeconds()
	objBody := logstore.EncodeObject(logstore.ObjectEntry{Key: key, Value: value, Version: newVersion, Timestamp: ts})

	entries := []logstore.AppendEntry{{Body: objBody}}
	if haveCurrentObject {
		tombBody := logstore.EncodeTombstone(logstore.TombstoneEntry{
			Key:           key,
			ObjectVersion: currentVersion,
			SegmentId:     currentRef.SegmentId(),
			Timestamp:     ts,
		})
		entries = append(entries, logstore.AppendEntry{Body: tombBody})
	}

	refs, err := m.log.Append(entries...)
	if err != nil {
		metrics.Operations.WithLabelValues("write", "retry").Inc()
		return objstatus.Retry, currentVersion
	}
	newObjectRef := refs[0]

	m.replaceLocked(key, newObjectRef)
	if haveCurrentObject {
		m.log.Free(currentRef)
	}
	m.tablets.IncrementWriteCount(key.TableId, key.Bytes)

	metrics.Operations.WithLabelValues("write", "ok").Inc()
	return objstatus.OK, newVersion
}

// Read implements spec.md 4.D's read(key, rejectRules?).
func (m *Manager) Read(key logstore.Key, rules RejectRules) (objstatus.Status, []byte, uint64) {
	start := time.Now()
	defer func() { metrics.OperationDuration.WithLabelValues("read").Observe(time.Since(start).Seconds()) }()

	lock := m.bucketLock(key)
	lock.Lock()
	defer lock.Unlock()

	tb, ok := m.tablets.GetTablet(key.TableId, key.Bytes)
	if !ok || tb == nil || tb.State != tablet.StateNormal {
		metrics.Operations.WithLabelValues("read", "unknown_tablet").Inc()
		return objstatus.UnknownTablet, nil, logstore.VersionNone
	}

	cur, found := m.lookupLocked(key)
	if !found || cur.kind != logstore.TypeObject {
		metrics.Operations.WithLabelValues("read", "doesnt_exist").Inc()
		return objstatus.ObjectDoesntExist, nil, logstore.VersionNone
	}

	if status := rules.Evaluate(cur.version); status != objstatus.OK {
		metrics.Operations.WithLabelValues("read", status.String()).Inc()
		return status, nil, cur.version
	}

	obj, _, err := logstore.DecodeObject(cur.body)
	if err != nil {
		metrics.Operations.WithLabelValues("read", "bad_entry").Inc()
		return objstatus.ObjectDoesntExist, nil, logstore.VersionNone
	}

	m.tablets.IncrementReadCount(key.TableId, key.Bytes)
	metrics.Operations.WithLabelValues("read", "ok").Inc()
	return objstatus.OK, obj.Value, cur.version
}

// Remove implements spec.md 4.D's remove(key, rejectRules?): a
// durability barrier, unlike write.
func (m *Manager) Remove(key logstore.Key, rules RejectRules) (objstatus.Status, uint64) {
	start := time.Now()
	defer func() { metrics.OperationDuration.WithLabelValues("remove").Observe(time.Since(start).Seconds()) }()

	lock := m.bucketLock(key)
	lock.Lock()
	defer lock.Unlock()

	tb, ok := m.tablets.GetTablet(key.TableId, key.Bytes)
	if !ok || tb == nil || tb.State != tablet.StateNormal {
		metrics.Operations.WithLabelValues("remove", "unknown_tablet").Inc()
		return objstatus.UnknownTablet, logstore.VersionNone
	}

	cur, found := m.lookupLocked(key)
	if !found || cur.kind != logstore.TypeObject {
		status := rules.Evaluate(logstore.VersionNone)
		metrics.Operations.WithLabelValues("remove", status.String()).Inc()
		return status, logstore.VersionNone
	}

	if status := rules.Evaluate(cur.version); status != objstatus.OK {
		metrics.Operations.WithLabelValues("remove", status.String()).Inc()
		return status, cur.version
	}

	tombBody := logstore.EncodeTombstone(logstore.TombstoneEntry{
		Key:           key,
		ObjectVersion: cur.version,
		SegmentId:     cur.ref.SegmentId(),
		Timestamp:     nowSeconds(),
	})
	if _, err := m.log.Append(logstore.AppendEntry{Body: tombBody}); err != nil {
		metrics.Operations.WithLabelValues("remove", "retry").Inc()
		return objstatus.Retry, cur.version
	}

	if err := m.log.Sync(); err != nil {
		m.logger.Warn("remove: sync failed after tombstone append")
	}

	m.log.RaiseSafeVersion(cur.version + 1)
	m.log.Free(cur.ref)
	m.removeLocked(key)

	metrics.Operations.WithLabelValues("remove", "ok").Inc()
	return objstatus.OK, cur.version
}

// Sync implements spec.md 4.D's sync(): an explicit durability barrier.
func (m *Manager) Sync() error {
	return m.log.Sync()
}
