// Package objectmanager implements the core of spec.md: the component
// that ties the log, hash index, and tablet table together to serve
// linearizable single-object reads, writes, and deletes, and to
// rebuild state from replayed log segments.
package objectmanager

import (
	"ramstore/logstore"
	"ramstore/objstatus"
)

// RejectRules is the reject-rule bundle spec.md 4.A describes: a pure
// precondition check evaluated against a key's current version.
type RejectRules struct {
	DoesntExist    bool
	Exists         bool
	VersionLeGiven bool
	VersionNeGiven bool
	GivenVersion   uint64
}

// Evaluate applies the reject rules against currentVersion
// (logstore.VersionNone if the key is currently absent), short-circuiting
// in the order spec.md 4.A lists: doesntExist, exists, versionLeGiven,
// versionNeGiven, else OK.
func (r RejectRules) Evaluate(currentVersion uint64) objstatus.Status {
	present := currentVersion != logstore.VersionNone
	switch {
	case !present && r.DoesntExist:
		return objstatus.ObjectDoesntExist
	case present && r.Exists:
		return objstatus.ObjectExists
	case present && r.VersionLeGiven && currentVersion <= r.GivenVersion:
		return objstatus.WrongVersion
	case present && r.VersionNeGiven && currentVersion != r.GivenVersion:
		return objstatus.WrongVersion
	default:
		return objstatus.OK
	}
}
