package replicamgr

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ramstore/utils"
)

func newTestManager() *Manager {
	return New(utils.NewDefaultLogger(slog.LevelError))
}

func TestPrimeSessionsIsOnceOnly(t *testing.T) {
	m := newTestManager()
	m.PrimeSessions([]string{"backup-a:1", "backup-b:1"})

	count := 0
	m.sessions.Range(func(_ string, _ *Session) bool { count++; return true })
	assert.Equal(t, 2, count)

	// A second call (e.g. a racing second "first write") must not add
	// duplicate sessions or replace the existing ones.
	m.PrimeSessions([]string{"backup-a:1", "backup-c:1"})
	count = 0
	m.sessions.Range(func(_ string, _ *Session) bool { count++; return true })
	assert.Equal(t, 2, count)
}

func TestTickDoesNotPanicWithNoSessions(t *testing.T) {
	m := newTestManager()
	assert.NotPanics(t, func() { m.Tick() })
}

func TestTickWithPrimedSessionDoesNotPanic(t *testing.T) {
	m := newTestManager()
	m.PrimeSessions([]string{"backup-a:1"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	m.Enqueue(ctx, Records{[]byte("rec1")})

	assert.NotPanics(t, func() { m.Tick() })
}

func TestFailureMonitorStartStopIsIdempotent(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	m.StartFailureMonitor(ctx, 10*time.Millisecond)
	m.StartFailureMonitor(ctx, 10*time.Millisecond) // second call must be a no-op, not a second goroutine

	time.Sleep(30 * time.Millisecond)
	m.HaltFailureMonitor()
	m.HaltFailureMonitor() // idempotent on the other side too
}

func TestCloseTearsDownSessionsAndMonitor(t *testing.T) {
	m := newTestManager()
	m.PrimeSessions([]string{"backup-a:1"})
	m.StartFailureMonitor(context.Background(), 10*time.Millisecond)

	assert.NoError(t, m.Close())
	assert.NoError(t, m.Close()) // second Close must be a no-op

	count := 0
	m.sessions.Range(func(_ string, _ *Session) bool { count++; return true })
	assert.Equal(t, 0, count)
}
