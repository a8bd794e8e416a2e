package transfer

import (
	"context"
	"io"

	"github.com/stlalpha/xfer/internal/xmodem"
)

// Observer receives the engine's lifecycle events.
type Observer = xmodem.Observer

// Payload is the file handed to an engine.
type Payload struct {
	Path string // Absolute path of the source file
	Data []byte // Full contents, read before the engine is invoked
}

// Engine drives the wire-level block transfer over an open connection.
// Implementations must call obs.Stopped exactly once before Send returns.
type Engine interface {
	BlockSize() int
	Send(ctx context.Context, rw io.ReadWriter, p Payload, obs Observer) error
}

// BuiltinEngine is the in-process XMODEM sender.
type BuiltinEngine struct {
	Sender *xmodem.Sender
}

// NewBuiltinEngine returns the XMODEM engine with default timing.
func NewBuiltinEngine() *BuiltinEngine {
	return &BuiltinEngine{Sender: xmodem.NewSender()}
}

func (e *BuiltinEngine) BlockSize() int {
	return e.Sender.BlockSize()
}

func (e *BuiltinEngine) Send(ctx context.Context, rw io.ReadWriter, p Payload, obs Observer) error {
	return e.Sender.Send(ctx, rw, p.Data, obs)
}
