package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stlalpha/xfer/internal/session"
)

type staticSource []session.Snapshot

func (s staticSource) ListActive() []session.Snapshot { return s }

func newTestScheduler(schedule string, src Source) (*Scheduler, *test.Hook) {
	logger, hook := test.NewNullLogger()
	return NewScheduler(schedule, src, logrus.NewEntry(logger)), hook
}

func TestReport(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	src := staticSource{
		{ID: "a", RemoteAddr: "10.0.0.1:5000", ConnectedAt: now.Add(-90 * time.Second), Mode: session.ModeNavigate, Path: "/srv"},
		{ID: "b", RemoteAddr: "10.0.0.2:5001", ConnectedAt: now, Mode: session.ModeTransferring, Path: "/srv", File: "/srv/notes.txt"},
	}
	s, hook := newTestScheduler("", src)
	s.Now = func() time.Time { return now }

	s.Report()

	entries := hook.AllEntries()
	require.Len(t, entries, 3)
	assert.Equal(t, "2 active session(s)", entries[0].Message)

	assert.Equal(t, "a", entries[1].Data["session"])
	assert.Equal(t, "navigate", entries[1].Data["mode"])
	assert.Equal(t, "1m30s", entries[1].Data["age"])
	assert.NotContains(t, entries[1].Data, "file")

	assert.Equal(t, "transferring", entries[2].Data["mode"])
	assert.Equal(t, "/srv/notes.txt", entries[2].Data["file"])
}

func TestReportNoSessions(t *testing.T) {
	s, hook := newTestScheduler("", staticSource{})
	s.Report()

	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, "0 active session(s)", hook.LastEntry().Message)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(""))
	assert.NoError(t, Validate("@every 5m"))
	assert.NoError(t, Validate("*/5 * * * *"))
	assert.NoError(t, Validate("0 */5 * * * *"))
	assert.Error(t, Validate("every five minutes"))
}

func TestStartDisabled(t *testing.T) {
	s, hook := newTestScheduler("", staticSource{})
	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, "Status reports disabled", hook.LastEntry().Message)
}

func TestStartInvalidSchedule(t *testing.T) {
	s, _ := newTestScheduler("bogus", staticSource{})
	assert.Error(t, s.Start(context.Background()))
}

func TestStartRunsReports(t *testing.T) {
	s, hook := newTestScheduler("@every 1s", staticSource{{ID: "a"}})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- s.Start(ctx) }()

	require.Eventually(t, func() bool {
		for _, e := range hook.AllEntries() {
			if e.Message == "1 active session(s)" {
				return true
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-stopped:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
