package objectmanager

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ramstore/logstore"
	"ramstore/objstatus"
)

func TestRejectRulesDoesntExist(t *testing.T) {
	r := RejectRules{DoesntExist: true}
	assert.Equal(t, objstatus.ObjectDoesntExist, r.Evaluate(logstore.VersionNone))
	assert.Equal(t, objstatus.OK, r.Evaluate(5))
}

func TestRejectRulesExists(t *testing.T) {
	r := RejectRules{Exists: true}
	assert.Equal(t, objstatus.ObjectExists, r.Evaluate(5))
	assert.Equal(t, objstatus.OK, r.Evaluate(logstore.VersionNone))
}

func TestRejectRulesVersionLeGiven(t *testing.T) {
	r := RejectRules{VersionLeGiven: true, GivenVersion: 10}
	assert.Equal(t, objstatus.WrongVersion, r.Evaluate(10))
	assert.Equal(t, objstatus.WrongVersion, r.Evaluate(5))
	assert.Equal(t, objstatus.OK, r.Evaluate(11))
	assert.Equal(t, objstatus.OK, r.Evaluate(logstore.VersionNone), "rule only applies when present")
}

func TestRejectRulesVersionNeGiven(t *testing.T) {
	r := RejectRules{VersionNeGiven: true, GivenVersion: 10}
	assert.Equal(t, objstatus.OK, r.Evaluate(10))
	assert.Equal(t, objstatus.WrongVersion, r.Evaluate(9))
	assert.Equal(t, objstatus.WrongVersion, r.Evaluate(11))
}

func TestRejectRulesShortCircuitOrder(t *testing.T) {
	// doesntExist is checked before exists; both set, absent case wins.
	r := RejectRules{DoesntExist: true, Exists: true}
	assert.Equal(t, objstatus.ObjectDoesntExist, r.Evaluate(logstore.VersionNone))
	assert.Equal(t, objstatus.ObjectExists, r.Evaluate(5))
}
