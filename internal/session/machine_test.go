package session

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stlalpha/xfer/internal/file"
	"github.com/stlalpha/xfer/internal/transfer"
)

// fakeTransfers records started transfers. When hold is false the transfer
// stops immediately with code.
type fakeTransfers struct {
	started []string
	code    int
	hold    bool
	done    func(int)
}

func (f *fakeTransfers) Start(_ context.Context, stats *transfer.Stats, path string, done func(int)) {
	f.started = append(f.started, path)
	stats.TotalBlocks = 1
	if f.hold {
		f.done = done
		return
	}
	done(f.code)
}

type machineFixture struct {
	root      string
	out       *bytes.Buffer
	transfers *fakeTransfers
	machine   *Machine
	snapshots []Snapshot
}

// newFixture serves a tree of games/ (holding doom.wad) and notes.txt.
func newFixture(t *testing.T, secure bool) *machineFixture {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "games"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "games", "doom.wad"), []byte("wad"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("hi"), 0644))

	logger, _ := test.NewNullLogger()
	f := &machineFixture{
		root:      root,
		out:       &bytes.Buffer{},
		transfers: &fakeTransfers{},
	}
	sess := NewSession("s1", "pipe", root)
	f.machine = NewMachine(context.Background(), sess, f.out, file.NewLister(secure), f.transfers, logrus.NewEntry(logger))
	f.machine.OnChange = func(s Snapshot) { f.snapshots = append(f.snapshots, s) }
	f.machine.Begin()
	return f
}

// send feeds s and returns what the machine wrote in response.
func (f *machineFixture) send(t *testing.T, s string) string {
	t.Helper()
	f.out.Reset()
	f.machine.Feed([]byte(s))
	f.checkPending(t)
	return f.out.String()
}

func (f *machineFixture) checkPending(t *testing.T) {
	t.Helper()
	sess := f.machine.Session()
	if sess.Mode == ModeNavigate {
		assert.Empty(t, sess.PendingSelection, "pending selection must be empty while navigating")
	} else {
		assert.NotEmpty(t, sess.PendingSelection, "pending selection must be set in %s", sess.Mode)
	}
}

func TestMachine_InitialListing(t *testing.T) {
	f := newFixture(t, false)

	want := "----- " + f.root + " -----\n\r" +
		"1 <D> ..\n\r" +
		"2 <D> games\n\r" +
		"3 ... notes.txt\n\r" +
		"Enter 1-3, R=refresh, X=exit: "
	assert.Equal(t, want, f.out.String())
	assert.Equal(t, ModeNavigate, f.machine.Session().Mode)
}

func TestMachine_SecureListingIsFlat(t *testing.T) {
	f := newFixture(t, true)

	out := f.out.String()
	assert.NotContains(t, out, "<D>")
	assert.Contains(t, out, "1 ... notes.txt\n\r")
	assert.True(t, strings.HasSuffix(out, "Enter 1-1, R=refresh, X=exit: "))
}

func TestMachine_NavigateIntoDirectoryAndBack(t *testing.T) {
	f := newFixture(t, false)
	games := filepath.Join(f.root, "games")

	out := f.send(t, "2\r\n")
	assert.True(t, strings.HasPrefix(out, "2\n\r----- "+games+" -----\n\r"), "got %q", out)
	assert.Contains(t, out, "2 ... doom.wad\n\r")
	assert.Equal(t, games, f.machine.Session().CurrentPath)

	out = f.send(t, "1\r")
	assert.Contains(t, out, "----- "+f.root+" -----")
	assert.Equal(t, f.root, f.machine.Session().CurrentPath)
}

func TestMachine_InvalidSelection(t *testing.T) {
	for _, input := range []string{"9\r\n", "0\r\n", "\r\n"} {
		f := newFixture(t, false)

		out := f.send(t, input)
		assert.Contains(t, out, "Invalid selection. Enter a number between 1-3.\n\r", "input %q", input)
		assert.Contains(t, out, "Enter 1-3, R=refresh, X=exit: ", "listing redrawn for %q", input)
		assert.Equal(t, ModeNavigate, f.machine.Session().Mode)
		assert.Equal(t, f.root, f.machine.Session().CurrentPath)
	}
}

func TestMachine_BackspaceCorrectsSelection(t *testing.T) {
	f := newFixture(t, false)

	out := f.send(t, "23\b")
	assert.Equal(t, "23\b \b", out)

	f.send(t, "\r\n")
	assert.Equal(t, filepath.Join(f.root, "games"), f.machine.Session().CurrentPath)
}

func TestMachine_SelectFilePromptsForConfirmation(t *testing.T) {
	f := newFixture(t, false)
	notes := filepath.Join(f.root, "notes.txt")

	out := f.send(t, "3\r\n")
	assert.Equal(t, "3\n\rStart transferring "+notes+" via XMODEM? [Y/n]: ", out)
	assert.Equal(t, ModeConfirmTransfer, f.machine.Session().Mode)
	assert.Equal(t, notes, f.machine.Session().PendingSelection)
	assert.Empty(t, f.transfers.started)
}

func TestMachine_ConfirmStartsTransfer(t *testing.T) {
	for _, answer := range []string{"\r\n", "y\r\n", "YES\r\n", " Yep "} {
		f := newFixture(t, false)
		notes := filepath.Join(f.root, "notes.txt")
		f.send(t, "3\r\n")

		out := f.send(t, answer)
		assert.True(t, strings.HasPrefix(out,
			"Yes\n\r\n\rInitiating XMODEM transfer for "+notes+"\n\rPlease start your XMODEM receiver NOW.\n\r"),
			"answer %q got %q", answer, out)
		assert.Contains(t, out, "\n\r\n\rTransfer of "+notes+" completed successfully\n\r")
		assert.Contains(t, out, "----- "+f.root+" -----")
		assert.Equal(t, []string{notes}, f.transfers.started)

		sess := f.machine.Session()
		assert.Equal(t, ModeNavigate, sess.Mode)
		assert.Empty(t, sess.PendingSelection)
		assert.Zero(t, sess.Transfer.TotalBlocks, "stats reset after transfer")
	}
}

func TestMachine_DeclineReturnsToListing(t *testing.T) {
	f := newFixture(t, false)
	f.send(t, "3\r\n")

	out := f.send(t, "n\r\n")
	assert.True(t, strings.HasPrefix(out, "No\n\r----- "+f.root+" -----\n\r"), "got %q", out)
	assert.Equal(t, ModeNavigate, f.machine.Session().Mode)
	assert.Empty(t, f.transfers.started)
}

func TestMachine_InputIgnoredWhileTransferring(t *testing.T) {
	f := newFixture(t, false)
	f.transfers.hold = true
	f.send(t, "3\r\n")
	f.send(t, "y\r\n")
	require.Equal(t, ModeTransferring, f.machine.Session().Mode)

	out := f.send(t, "x\r\n")
	assert.Empty(t, out)
	assert.False(t, f.machine.Closed(), "exit is not honoured mid-transfer")
	assert.Equal(t, ModeTransferring, f.machine.Session().Mode)

	f.out.Reset()
	f.transfers.done(2)
	out = f.out.String()
	assert.True(t, strings.HasPrefix(out, "\n\r\n\rTransfer stopped with exit code 2\n\r----- "), "got %q", out)
	assert.Equal(t, ModeNavigate, f.machine.Session().Mode)

	// A late second report is ignored.
	f.out.Reset()
	f.transfers.done(0)
	assert.Empty(t, f.out.String())
}

func TestMachine_RefreshIsIdempotent(t *testing.T) {
	f := newFixture(t, false)
	initial := f.out.String()

	first := f.send(t, "r\r\n")
	second := f.send(t, "R")
	assert.Equal(t, "Refreshing...\n\r"+initial, first)
	assert.Equal(t, first, second)
	assert.Equal(t, f.root, f.machine.Session().CurrentPath)
}

func TestMachine_ExitDiscardsTypedDigits(t *testing.T) {
	f := newFixture(t, false)
	f.send(t, "12")

	out := f.send(t, "x\r\n")
	assert.Equal(t, "Goodbye!\n\r", out)
	assert.True(t, f.machine.Closed())
	assert.Empty(t, f.machine.Session().Input.Pending())

	assert.True(t, f.machine.Feed([]byte("1\r\n")), "closed machine stays closed")
}

func TestMachine_ListingFailureShowsNoPrompt(t *testing.T) {
	f := newFixture(t, false)
	f.send(t, "2\r\n")
	require.NoError(t, os.RemoveAll(filepath.Join(f.root, "games")))

	out := f.send(t, "r\r\n")
	assert.Contains(t, out, "Error reading directory "+filepath.Join(f.root, "games")+"\n\r")
	assert.NotContains(t, out, "Enter 1-")
	assert.Equal(t, ModeNavigate, f.machine.Session().Mode)

	out = f.send(t, "1\r\n")
	assert.Contains(t, out, "Error reading directory")
}

func TestMachine_SelectionUsesFreshListing(t *testing.T) {
	f := newFixture(t, false)

	// Inserted after the listing was drawn; it now holds number 2.
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "alpha.txt"), []byte("a"), 0644))

	out := f.send(t, "2\r\n")
	assert.Contains(t, out, "Start transferring "+filepath.Join(f.root, "alpha.txt"))
}

func TestMachine_SnapshotsTrackMode(t *testing.T) {
	f := newFixture(t, false)
	f.transfers.hold = true
	f.send(t, "3\r\n")
	f.send(t, "y")

	require.NotEmpty(t, f.snapshots)
	last := f.snapshots[len(f.snapshots)-1]
	assert.Equal(t, ModeTransferring, last.Mode)
	assert.Equal(t, filepath.Join(f.root, "notes.txt"), last.File)
	assert.Equal(t, "s1", last.ID)
}
