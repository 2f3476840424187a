package logstore

// AllocateVersion hands out a version number for a brand-new key,
// guaranteed to exceed SafeVersion (spec.md invariant 6). It is a
// simple atomic fetch-and-increment: the counter starts at zero when
// the log is opened, and RaiseSafeVersion pushes it past every new
// SafeVersion mark.
func (l *Log) AllocateVersion() uint64 {
	return l.nextVersion.Add(1)
}

// SafeVersion returns the current monotonic high-water mark (spec.md 3).
func (l *Log) SafeVersion() uint64 {
	return l.safeVersion.Load()
}

// RaiseSafeVersion attempts to advance SafeVersion to at least v,
// reporting whether it actually moved (spec.md 4.E SAFE_VERSION
// dispatch: "record whether it actually advanced"). SafeVersion is
// monotone non-decreasing (invariant 5).
func (l *Log) RaiseSafeVersion(v uint64) bool {
	for {
		cur := l.safeVersion.Load()
		if v <= cur {
			return false
		}
		if l.safeVersion.CompareAndSwap(cur, v) {
			l.bumpNextVersionPast(v)
			return true
		}
	}
}

// bumpNextVersionPast ensures newly allocated versions always exceed
// the (possibly just-raised) SafeVersion mark.
func (l *Log) bumpNextVersionPast(v uint64) {
	for {
		cur := l.nextVersion.Load()
		if cur > v {
			return
		}
		if l.nextVersion.CompareAndSwap(cur, v+1) {
			return
		}
	}
}
