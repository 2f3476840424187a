package objectmanager

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"ramstore/hashindex"
	"ramstore/logstore"
	"ramstore/replicamgr"
	"ramstore/tablet"
	"ramstore/utils"
)

// newTestManager builds a fully wired Manager over a real (tempdir-backed)
// log, ready for single-key operations, without starting background
// lifecycle goroutines (tests drive the cleaner/replay explicitly).
func newTestManager(t *testing.T) *Manager {
	t.Helper()
	log, err := logstore.Open(logstore.Config{Dir: t.TempDir(), MaxSegmentBytes: 1 << 20})
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	index := hashindex.New(8)
	tablets := tablet.New()
	logger := utils.NewDefaultLogger(slog.LevelError)
	replicas := replicamgr.New(logger)

	m := New(log, index, tablets, replicas, logger, Config{DisableCleaner: true})
	return m
}

func addNormalTablet(m *Manager, tableId uint64) {
	m.AddTablet(&tablet.Tablet{TableId: tableId, StartKey: nil, EndKey: nil, State: tablet.StateNormal})
}
