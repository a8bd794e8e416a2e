package telnetserver

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stlalpha/xfer/internal/logging"
)

// Telnet protocol constants
const (
	IAC  byte = 255 // Interpret As Command
	DONT byte = 254
	DO   byte = 253
	WONT byte = 252
	WILL byte = 251
	SB   byte = 250 // Subnegotiation Begin
	SE   byte = 240 // Subnegotiation End

	OptBinary   byte = 0  // Binary Transmission (RFC 856)
	OptEcho     byte = 1  // Echo option
	OptSGA      byte = 3  // Suppress Go Ahead
	OptLinemode byte = 34 // Linemode
)

// maxSubnegotiation caps buffered subnegotiation data.
const maxSubnegotiation = 256

// telnetState tracks the IAC state machine
type telnetState int

const (
	stateData telnetState = iota
	stateIAC
	stateWill
	stateWont
	stateDo
	stateDont
	stateSB
	stateSBData
	stateSBIAC
)

// TelnetConn wraps a net.Conn with telnet protocol awareness.
// Read() strips IAC commands transparently; Write() escapes 0xFF bytes.
type TelnetConn struct {
	conn    net.Conn
	reader  *bufio.Reader
	writeMu sync.Mutex // protects writes to conn

	// IAC state machine (persists across Read calls)
	state    telnetState
	sbOption byte
	sbData   []byte

	closed int32 // atomic flag
}

// NewTelnetConn wraps an existing net.Conn with telnet protocol handling.
func NewTelnetConn(conn net.Conn) *TelnetConn {
	return &TelnetConn{
		conn:   conn,
		reader: bufio.NewReaderSize(conn, 1024),
		state:  stateData,
	}
}

// Negotiate announces server echo, suppressed go-ahead and binary mode in
// both directions, then drains the client's replies for up to wait.
func (tc *TelnetConn) Negotiate(wait time.Duration) error {
	negotiations := []byte{
		IAC, WILL, OptEcho,
		IAC, WILL, OptSGA,
		IAC, DO, OptSGA,
		IAC, WILL, OptBinary,
		IAC, DO, OptBinary,
		IAC, DONT, OptLinemode,
	}

	tc.writeMu.Lock()
	_, err := tc.conn.Write(negotiations)
	tc.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to send telnet negotiations: %w", err)
	}

	if wait > 0 {
		tc.conn.SetReadDeadline(time.Now().Add(wait))
		tc.drainNegotiations()
		tc.conn.SetReadDeadline(time.Time{})
	}
	return nil
}

// drainNegotiations consumes option replies that arrive before the session
// starts. Data bytes seen here are discarded.
func (tc *TelnetConn) drainNegotiations() {
	buf := make([]byte, 64)
	for {
		n, err := tc.reader.Read(buf)
		if n > 0 {
			tc.filter(buf[:n], nil)
		}
		if err != nil || tc.reader.Buffered() == 0 {
			return
		}
	}
}

// filter runs data through the IAC state machine, writing data bytes to
// dst (when non-nil) and returning the number written.
func (tc *TelnetConn) filter(data, dst []byte) int {
	written := 0
	emit := func(b byte) {
		if dst != nil {
			dst[written] = b
			written++
		}
	}

	for _, b := range data {
		switch tc.state {
		case stateData:
			if b == IAC {
				tc.state = stateIAC
			} else {
				emit(b)
			}

		case stateIAC:
			switch b {
			case IAC:
				emit(IAC) // Escaped 0xFF
				tc.state = stateData
			case WILL:
				tc.state = stateWill
			case WONT:
				tc.state = stateWont
			case DO:
				tc.state = stateDo
			case DONT:
				tc.state = stateDont
			case SB:
				tc.state = stateSB
			default:
				// Other IAC commands (BRK, IP, AYT, etc.) - consume
				tc.state = stateData
			}

		case stateWill, stateWont, stateDo, stateDont:
			logging.Debug("telnet negotiation from %s: cmd=%d option=%d", tc.conn.RemoteAddr(), tc.state, b)
			tc.state = stateData

		case stateSB:
			tc.sbOption = b
			tc.sbData = tc.sbData[:0]
			tc.state = stateSBData

		case stateSBData:
			if b == IAC {
				tc.state = stateSBIAC
			} else if len(tc.sbData) < maxSubnegotiation {
				tc.sbData = append(tc.sbData, b)
			}

		case stateSBIAC:
			switch b {
			case SE:
				logging.Debug("telnet subnegotiation option=%d (%d bytes) ignored", tc.sbOption, len(tc.sbData))
				tc.state = stateData
			case IAC:
				if len(tc.sbData) < maxSubnegotiation {
					tc.sbData = append(tc.sbData, IAC)
				}
				tc.state = stateSBData
			default:
				tc.state = stateData
			}
		}
	}
	return written
}

// Read reads data from the telnet connection, stripping IAC commands
// transparently. It blocks until at least one data byte or an error arrives.
func (tc *TelnetConn) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	buf := make([]byte, len(p))
	for {
		n, err := tc.reader.Read(buf)
		written := tc.filter(buf[:n], p)
		if written > 0 {
			return written, nil // Any error surfaces on the next call
		}
		if err != nil {
			return 0, err
		}
	}
}

// Write writes data to the telnet connection, escaping any 0xFF bytes as IAC IAC.
func (tc *TelnetConn) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	tc.writeMu.Lock()
	defer tc.writeMu.Unlock()

	if bytes.IndexByte(p, IAC) < 0 {
		return tc.conn.Write(p)
	}

	escaped := bytes.ReplaceAll(p, []byte{IAC}, []byte{IAC, IAC})
	if _, err := tc.conn.Write(escaped); err != nil {
		return 0, err
	}
	// Report the caller's byte count, not the escaped count
	return len(p), nil
}

// SetReadDeadline sets the deadline on the underlying connection.
func (tc *TelnetConn) SetReadDeadline(t time.Time) error {
	return tc.conn.SetReadDeadline(t)
}

// Close closes the telnet connection.
func (tc *TelnetConn) Close() error {
	if atomic.CompareAndSwapInt32(&tc.closed, 0, 1) {
		return tc.conn.Close()
	}
	return nil
}

// RemoteAddr returns the remote network address.
func (tc *TelnetConn) RemoteAddr() net.Addr {
	return tc.conn.RemoteAddr()
}

// LocalAddr returns the local network address.
func (tc *TelnetConn) LocalAddr() net.Addr {
	return tc.conn.LocalAddr()
}

func logFields(conn net.Conn) logrus.Fields {
	return logrus.Fields{"remote": conn.RemoteAddr().String()}
}
