package session

import (
	"time"

	"github.com/stlalpha/xfer/internal/transfer"
)

// Mode governs how incoming input is interpreted.
type Mode int

const (
	ModeNavigate Mode = iota
	ModeConfirmTransfer
	ModeTransferring
)

func (m Mode) String() string {
	switch m {
	case ModeNavigate:
		return "navigate"
	case ModeConfirmTransfer:
		return "confirm"
	case ModeTransferring:
		return "transferring"
	default:
		return "unknown"
	}
}

// Session is the mutable state of one connection. It is owned by the
// connection's goroutine and discarded on disconnect.
type Session struct {
	ID          string
	RemoteAddr  string
	ConnectedAt time.Time

	Mode             Mode
	CurrentPath      string // Absolute directory being browsed
	PendingSelection string // File chosen for transfer; set only outside ModeNavigate

	Input    InputReader    // Digits typed but not yet submitted
	Transfer transfer.Stats // Valid only in ModeTransferring
}

// NewSession creates a session browsing root.
func NewSession(id, remoteAddr, root string) *Session {
	return &Session{
		ID:          id,
		RemoteAddr:  remoteAddr,
		ConnectedAt: time.Now(),
		Mode:        ModeNavigate,
		CurrentPath: root,
	}
}

// Snapshot is a copy of the session fields shown in operator reports.
type Snapshot struct {
	ID          string
	RemoteAddr  string
	ConnectedAt time.Time
	Mode        Mode
	Path        string
	File        string
}

// Snapshot copies the reportable state.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		ID:          s.ID,
		RemoteAddr:  s.RemoteAddr,
		ConnectedAt: s.ConnectedAt,
		Mode:        s.Mode,
		Path:        s.CurrentPath,
		File:        s.PendingSelection,
	}
}
