package transfer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// readDeadliner is implemented by connections whose blocked reads can be
// interrupted.
type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// RunCommandWithPTY executes cmd on a PTY in raw mode and copies bytes
// between it and conn until the command exits.
func RunCommandWithPTY(conn io.ReadWriter, cmd *exec.Cmd) error {
	logrus.Debugf("Starting command '%s' with PTY", cmd.Path)
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return fmt.Errorf("failed to start pty for command '%s': %w", cmd.Path, err)
	}
	defer func() { _ = ptmx.Close() }()

	// Binary transfers need the line discipline out of the way.
	fd := int(ptmx.Fd())
	if state, err := term.MakeRaw(fd); err != nil {
		logrus.Warnf("Failed to put pty (fd: %d) into raw mode for '%s': %v", fd, cmd.Path, err)
	} else {
		defer func() { _ = term.Restore(fd, state) }()
	}

	var wg sync.WaitGroup
	wg.Add(2)

	// Connection -> PTY
	go func() {
		defer wg.Done()
		_, err := io.Copy(ptmx, conn)
		if err != nil && !isClosedErr(err) {
			logrus.Warnf("Error copying connection to PTY: %v", err)
		}
	}()

	// PTY -> Connection
	go func() {
		defer wg.Done()
		_, err := io.Copy(conn, ptmx)
		if err != nil && !isClosedErr(err) {
			logrus.Warnf("Error copying PTY to connection: %v", err)
		}
	}()

	waitErr := cmd.Wait()

	// Unblock the connection reader so the session gets its socket back.
	if d, ok := conn.(readDeadliner); ok {
		_ = d.SetReadDeadline(time.Now())
		_ = ptmx.Close()
		wg.Wait()
		_ = d.SetReadDeadline(time.Time{})
	} else {
		_ = ptmx.Close()
		wg.Wait()
	}
	return waitErr
}

func isClosedErr(err error) bool {
	return err == io.EOF ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, os.ErrDeadlineExceeded) ||
		errors.Is(err, syscall.EIO)
}
