package xmodem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Default timing, matching common receiver behaviour (NAK every 10s, 10 tries).
const (
	DefaultStartTimeout = 60 * time.Second
	DefaultAckTimeout   = 10 * time.Second
	DefaultMaxRetries   = 10
)

// deadliner is implemented by transports that support read timeouts.
type deadliner interface {
	SetReadDeadline(t time.Time) error
}

// Sender transmits a single payload to an XMODEM receiver.
type Sender struct {
	StartTimeout time.Duration
	AckTimeout   time.Duration
	MaxRetries   int
}

// NewSender returns a Sender with default timing.
func NewSender() *Sender {
	return &Sender{
		StartTimeout: DefaultStartTimeout,
		AckTimeout:   DefaultAckTimeout,
		MaxRetries:   DefaultMaxRetries,
	}
}

// BlockSize reports the engine's fixed block size.
func (s *Sender) BlockSize() int {
	return BlockSize
}

// Send transmits payload over rw. The observer is notified of every
// lifecycle event; the returned error matches the code passed to Stopped.
func (s *Sender) Send(ctx context.Context, rw io.ReadWriter, payload []byte, obs Observer) error {
	t := &transmission{Sender: s, ctx: ctx, rw: rw, obs: obs}
	if d, ok := rw.(deadliner); ok {
		t.deadline = d
		defer d.SetReadDeadline(time.Time{})
	}

	err := t.run(payload)
	if errors.Is(err, ErrTooManyRetries) || errors.Is(err, ErrStartTimeout) {
		t.abort()
	}
	obs.Stopped(exitCode(err))
	return err
}

// transmission holds the state of one Send call.
type transmission struct {
	*Sender
	ctx      context.Context
	rw       io.ReadWriter
	obs      Observer
	deadline deadliner
	useCRC   bool
	buf      [64]byte
	pending  []byte
}

func (t *transmission) run(payload []byte) error {
	total := BlockCount(len(payload))
	t.obs.Ready(total)

	if err := t.awaitStart(); err != nil {
		return err
	}
	t.obs.Started()
	logrus.Debugf("xmodem: receiver started (crc=%v), sending %d blocks", t.useCRC, total)

	for blk := 1; blk <= total; blk++ {
		if err := t.sendBlock(payload, blk); err != nil {
			return err
		}
	}
	return t.finish()
}

// awaitStart waits for the receiver's NAK or 'C'.
func (t *transmission) awaitStart() error {
	deadline := time.Now().Add(t.StartTimeout)
	for {
		if time.Now().After(deadline) {
			return ErrStartTimeout
		}
		b, err := t.readByte(time.Until(deadline))
		if err != nil {
			if isTimeout(err) {
				return ErrStartTimeout
			}
			return err
		}
		switch b {
		case NAK:
			t.useCRC = false
			return nil
		case CRC:
			t.useCRC = true
			return nil
		case CAN:
			return ErrCancelled
		}
	}
}

func (t *transmission) sendBlock(payload []byte, blk int) error {
	pkt := packet(payload, blk, t.useCRC)
	for attempt := 0; attempt <= t.MaxRetries; attempt++ {
		if _, err := t.rw.Write(pkt); err != nil {
			return fmt.Errorf("failed to write block %d: %w", blk, err)
		}
		t.obs.Status(Status{Signal: SignalSOH, Block: blk})

		reply, err := t.awaitReply()
		if err != nil {
			return err
		}
		switch reply {
		case ACK:
			t.obs.Status(Status{Signal: SignalACK, Block: blk})
			return nil
		case NAK:
			t.obs.Status(Status{Signal: SignalNAK, Block: blk})
		default:
			// Timed out; resend.
		}
	}
	return fmt.Errorf("block %d: %w", blk, ErrTooManyRetries)
}

func (t *transmission) finish() error {
	for attempt := 0; attempt <= t.MaxRetries; attempt++ {
		if _, err := t.rw.Write([]byte{EOT}); err != nil {
			return fmt.Errorf("failed to write EOT: %w", err)
		}
		t.obs.Status(Status{Signal: SignalEOT})

		reply, err := t.awaitReply()
		if err != nil {
			return err
		}
		if reply == ACK {
			return nil
		}
	}
	return fmt.Errorf("EOT: %w", ErrTooManyRetries)
}

// awaitReply returns ACK, NAK, or 0 on timeout. Stray bytes such as repeated
// start requests are skipped.
func (t *transmission) awaitReply() (byte, error) {
	deadline := time.Now().Add(t.AckTimeout)
	for time.Now().Before(deadline) {
		b, err := t.readByte(time.Until(deadline))
		if err != nil {
			if isTimeout(err) {
				return 0, nil
			}
			return 0, err
		}
		switch b {
		case ACK, NAK:
			return b, nil
		case CAN:
			t.obs.Status(Status{Signal: SignalCAN})
			return 0, ErrCancelled
		}
	}
	return 0, nil
}

func (t *transmission) readByte(timeout time.Duration) (byte, error) {
	if err := t.ctx.Err(); err != nil {
		return 0, err
	}
	if len(t.pending) > 0 {
		b := t.pending[0]
		t.pending = t.pending[1:]
		return b, nil
	}
	if t.deadline != nil {
		t.deadline.SetReadDeadline(time.Now().Add(timeout))
	}
	n, err := t.rw.Read(t.buf[:])
	if n > 0 {
		t.pending = t.buf[1:n]
		return t.buf[0], nil
	}
	if err == nil {
		err = io.ErrNoProgress
	}
	return 0, err
}

// abort tells the receiver to give up.
func (t *transmission) abort() {
	_, _ = t.rw.Write([]byte{CAN, CAN, CAN})
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
