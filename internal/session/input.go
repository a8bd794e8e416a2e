package session

import (
	"io"
	"strings"
)

// eraseSequence moves back, blanks the cell and moves back again.
const eraseSequence = "\b \b"

// EventKind classifies the outcome of feeding one chunk.
type EventKind int

const (
	EventNoop EventKind = iota
	EventCommand
	EventSubmission
)

// Command is an immediate key command.
type Command int

const (
	CommandExit Command = iota + 1
	CommandRefresh
)

// Event is what a chunk of input amounted to.
type Event struct {
	Kind    EventKind
	Command Command // EventCommand only
	Value   string  // EventSubmission only: the accumulated digits
}

// InputReader turns raw chunks into submitted lines with destructive
// backspace editing. Only decimal digits are ever accumulated.
type InputReader struct {
	buf []byte
}

// Pending returns the digits typed so far.
func (r *InputReader) Pending() string {
	return string(r.buf)
}

// Reset discards typed digits.
func (r *InputReader) Reset() {
	r.buf = r.buf[:0]
}

// Feed processes one chunk, echoing accepted keys to echo. A chunk that
// starts with x or r (ignoring case and surrounding space) is a command.
// Otherwise the first CR or LF submits the accumulated digits and the rest
// of the chunk is dropped.
func (r *InputReader) Feed(chunk []byte, echo io.Writer) Event {
	trimmed := strings.ToLower(strings.TrimSpace(string(chunk)))
	switch {
	case strings.HasPrefix(trimmed, "x"):
		r.Reset()
		return Event{Kind: EventCommand, Command: CommandExit}
	case strings.HasPrefix(trimmed, "r"):
		r.Reset()
		return Event{Kind: EventCommand, Command: CommandRefresh}
	}

	for _, c := range chunk {
		switch {
		case c == '\r' || c == '\n':
			value := string(r.buf)
			r.Reset()
			return Event{Kind: EventSubmission, Value: value}
		case c == '\b' || c == 0x7f:
			if len(r.buf) == 0 {
				continue
			}
			r.buf = r.buf[:len(r.buf)-1]
			io.WriteString(echo, eraseSequence)
		case c >= '0' && c <= '9':
			r.buf = append(r.buf, c)
			echo.Write([]byte{c})
		}
	}
	return Event{Kind: EventNoop}
}
