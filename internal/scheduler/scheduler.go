// Package scheduler logs periodic reports of connected sessions.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/stlalpha/xfer/internal/session"
)

// parser accepts 5-field, 6-field (leading seconds) and @descriptor specs.
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Source lists the sessions to report.
type Source interface {
	ListActive() []session.Snapshot
}

// Scheduler runs the status report on a cron schedule.
type Scheduler struct {
	schedule string
	source   Source
	log      *logrus.Entry
	cron     *cron.Cron
	running  atomic.Bool

	// Now is the clock used for session ages.
	Now func() time.Time
}

// NewScheduler creates a scheduler reporting source on schedule. An empty
// schedule disables reports.
func NewScheduler(schedule string, source Source, log *logrus.Entry) *Scheduler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Scheduler{
		schedule: schedule,
		source:   source,
		log:      log,
		Now:      time.Now,
	}
}

// Validate checks that the schedule parses.
func Validate(schedule string) error {
	if schedule == "" {
		return nil
	}
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid status schedule %q: %w", schedule, err)
	}
	return nil
}

// Start schedules the report and blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.schedule == "" {
		s.log.Info("Status reports disabled")
		return nil
	}

	s.cron = cron.New(cron.WithParser(parser))
	if _, err := s.cron.AddFunc(s.schedule, s.runReport); err != nil {
		return fmt.Errorf("invalid status schedule %q: %w", s.schedule, err)
	}

	s.cron.Start()
	s.log.Infof("Status reports scheduled: %s", s.schedule)

	<-ctx.Done()
	s.Stop()
	return nil
}

// Stop halts the schedule and waits for a running report to finish.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

func (s *Scheduler) runReport() {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Warn("Status report skipped: previous report still running")
		return
	}
	defer s.running.Store(false)
	s.Report()
}

// Report logs the session count followed by one line per session.
func (s *Scheduler) Report() {
	active := s.source.ListActive()
	s.log.Infof("%d active session(s)", len(active))

	now := s.Now()
	for _, snap := range active {
		fields := logrus.Fields{
			"session": snap.ID,
			"remote":  snap.RemoteAddr,
			"mode":    snap.Mode.String(),
			"path":    snap.Path,
			"age":     now.Sub(snap.ConnectedAt).Truncate(time.Second).String(),
		}
		if snap.File != "" {
			fields["file"] = snap.File
		}
		s.log.WithFields(fields).Info("Session status")
	}
}
