package session

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/stlalpha/xfer/internal/file"
	"github.com/stlalpha/xfer/internal/logging"
	"github.com/stlalpha/xfer/internal/metrics"
	"github.com/stlalpha/xfer/internal/transfer"
)

// lineEnding is newline then carriage return, the order legacy terminals expect.
const lineEnding = "\n\r"

// Transferer starts a transfer and reports its stop code through done.
type Transferer interface {
	Start(ctx context.Context, stats *transfer.Stats, filePath string, done func(code int))
}

// Machine drives one session through navigation, confirmation and transfer.
// All methods must be called from the connection's goroutine.
type Machine struct {
	ctx       context.Context
	sess      *Session
	out       io.Writer
	lister    *file.Lister
	transfers Transferer
	log       *logrus.Entry

	// OnChange, if set, receives a snapshot after every state change.
	OnChange func(Snapshot)

	closed bool
}

// NewMachine creates a machine for sess writing text to out.
func NewMachine(ctx context.Context, sess *Session, out io.Writer, lister *file.Lister, transfers Transferer, log *logrus.Entry) *Machine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Machine{
		ctx:       ctx,
		sess:      sess,
		out:       out,
		lister:    lister,
		transfers: transfers,
		log:       log,
	}
}

// Session returns the machine's session state.
func (m *Machine) Session() *Session {
	return m.sess
}

// Closed reports whether the user asked to disconnect.
func (m *Machine) Closed() bool {
	return m.closed
}

// Begin shows the initial listing.
func (m *Machine) Begin() {
	m.list()
}

// Feed handles one chunk of input and reports whether the connection
// should now be closed.
func (m *Machine) Feed(chunk []byte) bool {
	if m.closed || len(chunk) == 0 {
		return m.closed
	}

	switch m.sess.Mode {
	case ModeNavigate:
		m.navigate(chunk)
	case ModeConfirmTransfer:
		m.confirm(chunk)
	case ModeTransferring:
		logging.Debug("session %s: ignoring %d bytes during transfer", m.sess.ID, len(chunk))
	}
	return m.closed
}

func (m *Machine) navigate(chunk []byte) {
	ev := m.sess.Input.Feed(chunk, m.out)
	switch ev.Kind {
	case EventCommand:
		switch ev.Command {
		case CommandExit:
			m.writeln("Goodbye!")
			m.closed = true
		case CommandRefresh:
			m.writeln("Refreshing...")
			m.list()
		}
	case EventSubmission:
		m.writeln("")
		m.selectEntry(ev.Value)
	}
}

// selectEntry validates value against a listing recomputed now, not the one
// last drawn; an entry renamed in between silently selects whatever now
// holds that number.
func (m *Machine) selectEntry(value string) {
	listing, err := m.lister.List(m.sess.CurrentPath)
	if err != nil {
		m.listFailed(err)
		return
	}

	n, convErr := strconv.Atoi(value)
	entry, ok := listing.At(n)
	if convErr != nil || !ok {
		m.writeln(fmt.Sprintf("Invalid selection. Enter a number between 1-%d.", listing.Len()))
		m.list()
		return
	}

	if entry.IsDirectory {
		if entry.Name == file.ParentEntry {
			m.sess.CurrentPath = filepath.Dir(m.sess.CurrentPath)
		} else {
			m.sess.CurrentPath = filepath.Join(m.sess.CurrentPath, entry.Name)
		}
		m.log.WithField("path", m.sess.CurrentPath).Infof("Navigated to %s", m.sess.CurrentPath)
		metrics.RecordNavigation()
		m.list()
		return
	}

	m.sess.PendingSelection = filepath.Join(m.sess.CurrentPath, entry.Name)
	m.sess.Mode = ModeConfirmTransfer
	m.changed()
	m.write(fmt.Sprintf("Start transferring %s via XMODEM? [Y/n]: ", m.sess.PendingSelection))
}

func (m *Machine) confirm(chunk []byte) {
	answer := strings.ToLower(strings.TrimSpace(string(chunk)))
	if answer != "" && !strings.HasPrefix(answer, "y") {
		m.writeln("No")
		m.list()
		return
	}

	m.sess.Mode = ModeTransferring
	m.changed()
	path := m.sess.PendingSelection

	m.writeln("Yes")
	m.writeln("")
	m.writeln(fmt.Sprintf("Initiating XMODEM transfer for %s", path))
	m.writeln("Please start your XMODEM receiver NOW.")

	m.transfers.Start(m.ctx, &m.sess.Transfer, path, m.transferDone)
}

// transferDone returns to navigation once the engine stops.
func (m *Machine) transferDone(code int) {
	if m.sess.Mode != ModeTransferring {
		return
	}
	path := m.sess.PendingSelection

	m.writeln("")
	m.writeln("")
	var message string
	if code == 0 {
		message = fmt.Sprintf("Transfer of %s completed successfully", path)
		m.log.WithField("file", path).Info(message)
	} else {
		message = fmt.Sprintf("Transfer stopped with exit code %d", code)
		m.log.WithFields(logrus.Fields{"file": path, "code": code}).Warn(message)
	}
	m.writeln(message)

	m.sess.Transfer.Reset()
	m.list()
}

// list draws the current directory and returns the session to navigation.
func (m *Machine) list() {
	m.sess.Mode = ModeNavigate
	m.sess.PendingSelection = ""
	m.changed()

	m.writeln(fmt.Sprintf("----- %s -----", m.sess.CurrentPath))

	listing, err := m.lister.List(m.sess.CurrentPath)
	if err != nil {
		m.listFailed(err)
		return
	}

	for i, e := range listing.Entries {
		prefix := "..."
		if e.IsDirectory {
			prefix = "<D>"
		}
		m.writeln(fmt.Sprintf("%d %s %s", i+1, prefix, e.Name))
	}
	m.write(fmt.Sprintf("Enter 1-%d, R=refresh, X=exit: ", listing.Len()))
}

func (m *Machine) listFailed(err error) {
	m.log.WithError(err).WithField("path", m.sess.CurrentPath).Error("Failed to read directory")
	metrics.RecordListingError()
	m.writeln(fmt.Sprintf("Error reading directory %s", m.sess.CurrentPath))
}

func (m *Machine) changed() {
	if m.OnChange != nil {
		m.OnChange(m.sess.Snapshot())
	}
}

func (m *Machine) write(s string) {
	io.WriteString(m.out, s)
}

func (m *Machine) writeln(s string) {
	m.write(s + lineEnding)
}
