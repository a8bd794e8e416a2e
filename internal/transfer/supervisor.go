package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stlalpha/xfer/internal/metrics"
	"github.com/stlalpha/xfer/internal/xmodem"
)

// DefaultReportInterval limits progress reports to one per interval.
const DefaultReportInterval = 5 * time.Second

// ExitReadFailed is reported when the selected file cannot be read.
const ExitReadFailed = -1

// Stats tracks one transfer. Valid only while a transfer is running.
type Stats struct {
	TotalBlocks       int
	TransferredBlocks int
	StartedAt         time.Time
	LastReportedAt    time.Time
}

// Reset clears all counters and timestamps.
func (s *Stats) Reset() {
	*s = Stats{}
}

// Progress is a computed progress report.
type Progress struct {
	Transferred    int
	Total          int
	Remaining      int
	Elapsed        time.Duration
	ETA            time.Duration
	BytesPerSecond int
}

func (p Progress) String() string {
	secs := int(p.ETA.Round(time.Second) / time.Second)
	eta := fmt.Sprintf("%dsec", secs%60)
	if secs/60 > 0 {
		eta = fmt.Sprintf("%dmin %s", secs/60, eta)
	}
	return fmt.Sprintf("Transferred %d of %d blocks - %dB/sec - ETA: %s",
		p.Transferred, p.Total, p.BytesPerSecond, eta)
}

// computeProgress extrapolates remaining time from the average time per
// block so far.
func computeProgress(st *Stats, transferred, blockSize int, now time.Time) Progress {
	p := Progress{
		Transferred: transferred,
		Total:       st.TotalBlocks,
		Remaining:   st.TotalBlocks - transferred,
		Elapsed:     now.Sub(st.StartedAt),
	}
	if transferred > 0 {
		p.ETA = time.Duration(float64(p.Elapsed) / float64(transferred) * float64(p.Remaining))
	}
	if secs := p.Elapsed.Seconds(); secs > 0 {
		p.BytesPerSecond = int(float64(transferred*blockSize)/secs + 0.5)
	}
	return p
}

// Supervisor starts transfers on one connection and reports their
// progress to the operator log.
type Supervisor struct {
	rw             io.ReadWriter
	engine         Engine
	logger         *logrus.Entry
	ReportInterval time.Duration
	Now            func() time.Time
}

// NewSupervisor creates a supervisor for transfers over rw.
func NewSupervisor(rw io.ReadWriter, engine Engine, logger *logrus.Entry) *Supervisor {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Supervisor{
		rw:             rw,
		engine:         engine,
		logger:         logger,
		ReportInterval: DefaultReportInterval,
		Now:            time.Now,
	}
}

// Start reads filePath and runs the engine until it stops. done is called
// exactly once with the engine's stop code (0 on success). Failed transfers
// are never retried.
func (s *Supervisor) Start(ctx context.Context, stats *Stats, filePath string, done func(code int)) {
	stats.Reset()
	log := s.logger.WithField("file", filePath)

	data, err := os.ReadFile(filePath)
	if err != nil {
		log.WithError(err).Error("Failed to read file for transfer")
		metrics.RecordTransfer(false, 0)
		done(ExitReadFailed)
		return
	}

	t := &tracker{sup: s, stats: stats, log: log, size: len(data), done: done}
	sendErr := s.engine.Send(ctx, s.rw, Payload{Path: filePath, Data: data}, t)
	if sendErr != nil {
		log.WithError(sendErr).Debug("Engine returned error")
	}
	// Engines that return without stopping are treated as transport failures.
	t.Stopped(xmodem.ExitTransportError)
}

// tracker adapts engine events for one transfer.
type tracker struct {
	sup   *Supervisor
	stats *Stats
	log   *logrus.Entry
	size  int
	done  func(code int)
	once  sync.Once
}

func (t *tracker) Ready(totalBlocks int) {
	t.stats.TotalBlocks = totalBlocks
	t.log.WithField("blocks", totalBlocks).Info("Waiting for client to start XMODEM protocol...")
}

func (t *tracker) Started() {
	now := t.sup.Now()
	t.stats.StartedAt = now
	t.stats.LastReportedAt = now
	t.stats.TransferredBlocks = 0
	t.log.Info("Transfer started")
}

func (t *tracker) Status(st xmodem.Status) {
	now := t.sup.Now()
	if now.Sub(t.stats.LastReportedAt) < t.sup.ReportInterval {
		return
	}
	if st.Signal != xmodem.SignalSOH {
		return
	}

	p := computeProgress(t.stats, st.Block, t.sup.engine.BlockSize(), now)
	t.log.Info(p.String())

	t.stats.TransferredBlocks = st.Block
	t.stats.LastReportedAt = now
}

func (t *tracker) Stopped(code int) {
	t.once.Do(func() {
		metrics.RecordTransfer(code == 0, t.size)
		t.done(code)
	})
}
