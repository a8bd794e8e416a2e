package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/stlalpha/xfer/internal/xmodem"
)

// ExitCommandNotFound is reported when the external sender is missing.
const ExitCommandNotFound = 127

// ExecEngine delegates the transfer to an external sender such as lrzsz's
// sx, attached to the connection through a PTY.
//
// Argument placeholders:
//
//	{filePath}: expanded to the absolute path of the file being sent
//
// If {filePath} is absent from Args, the path is appended at the end.
type ExecEngine struct {
	Command string
	Args    []string
	Block   int // Block size used for progress estimates; 128 if zero
}

// NewExecEngine returns an engine running command with args.
func NewExecEngine(command string, args []string) *ExecEngine {
	return &ExecEngine{Command: command, Args: args, Block: xmodem.BlockSize}
}

func (e *ExecEngine) BlockSize() int {
	if e.Block <= 0 {
		return xmodem.BlockSize
	}
	return e.Block
}

// Send runs the external command. The command reports no per-block
// progress, so only Ready, Started and Stopped are emitted.
func (e *ExecEngine) Send(ctx context.Context, rw io.ReadWriter, p Payload, obs Observer) error {
	obs.Ready((len(p.Data) + e.BlockSize() - 1) / e.BlockSize())

	if !filepath.IsAbs(p.Path) {
		err := fmt.Errorf("send path must be absolute, got %q", p.Path)
		obs.Stopped(xmodem.ExitTransportError)
		return err
	}

	cmdPath, err := exec.LookPath(e.Command)
	if err != nil {
		logrus.Errorf("send command %q not found: %v", e.Command, err)
		obs.Stopped(ExitCommandNotFound)
		return fmt.Errorf("send command %q not found: %w", e.Command, err)
	}

	args := expandArgs(e.Args, p.Path)
	cmd := exec.CommandContext(ctx, cmdPath, args...)

	logrus.Infof("Exec send: %s %v", cmdPath, args)
	obs.Started()
	err = RunCommandWithPTY(rw, cmd)
	obs.Stopped(commandExitCode(err))
	return err
}

// commandExitCode maps a command error to a stop code.
func commandExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
		return exitErr.ExitCode()
	}
	return xmodem.ExitTransportError
}

// expandArgs substitutes {filePath} in an argument template.
//
// Rules:
//   - A standalone "{filePath}" arg is replaced by filePath.
//   - Inline occurrences (e.g. "file={filePath}") are replaced in place.
//   - If {filePath} never appears, filePath is appended at the end.
func expandArgs(template []string, filePath string) []string {
	var result []string
	used := false

	for _, arg := range template {
		if strings.Contains(arg, "{filePath}") {
			used = true
			result = append(result, strings.ReplaceAll(arg, "{filePath}", filePath))
			continue
		}
		result = append(result, arg)
	}

	if !used {
		result = append(result, filePath)
	}
	return result
}
