package xmodem

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects observer events.
type recorder struct {
	mu     sync.Mutex
	events []string
	total  int
	codes  []int
}

func (r *recorder) Ready(total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total = total
	r.events = append(r.events, "ready")
}

func (r *recorder) Started() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "start")
}

func (r *recorder) Status(st Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, st.String())
}

func (r *recorder) Stopped(code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes = append(r.codes, code)
	r.events = append(r.events, fmt.Sprintf("stop %d", code))
}

// receiver plays the remote side. nakBlocks lists blocks to reject once;
// cancelAt cancels when that block arrives.
type receiver struct {
	start     byte
	nakBlocks map[int]bool
	cancelAt  int
}

func (rc receiver) run(conn net.Conn) ([]byte, error) {
	useCRC := rc.start == CRC
	if _, err := conn.Write([]byte{rc.start}); err != nil {
		return nil, err
	}

	var data []byte
	head := make([]byte, 1)
	for {
		if _, err := io.ReadFull(conn, head); err != nil {
			return nil, err
		}
		if head[0] == EOT {
			_, err := conn.Write([]byte{ACK})
			return data, err
		}
		if head[0] != SOH {
			return nil, fmt.Errorf("unexpected header byte %#x", head[0])
		}

		trailer := 1
		if useCRC {
			trailer = 2
		}
		body := make([]byte, 2+BlockSize+trailer)
		if _, err := io.ReadFull(conn, body); err != nil {
			return nil, err
		}
		blk, inv := body[0], body[1]
		if blk != ^inv {
			return nil, fmt.Errorf("bad block complement %d/%d", blk, inv)
		}
		block := body[2 : 2+BlockSize]
		if useCRC {
			got := uint16(body[2+BlockSize])<<8 | uint16(body[3+BlockSize])
			if got != crc16(block) {
				return nil, fmt.Errorf("bad crc on block %d", blk)
			}
		} else if body[2+BlockSize] != checksum(block) {
			return nil, fmt.Errorf("bad checksum on block %d", blk)
		}

		if int(blk) == rc.cancelAt {
			_, err := conn.Write([]byte{CAN, CAN})
			return data, err
		}
		if rc.nakBlocks[int(blk)] {
			delete(rc.nakBlocks, int(blk))
			if _, err := conn.Write([]byte{NAK}); err != nil {
				return nil, err
			}
			continue
		}
		data = append(data, block...)
		if _, err := conn.Write([]byte{ACK}); err != nil {
			return nil, err
		}
	}
}

func testSender() *Sender {
	return &Sender{StartTimeout: 2 * time.Second, AckTimeout: time.Second, MaxRetries: 3}
}

func padded(payload []byte) []byte {
	out := append([]byte(nil), payload...)
	for len(out)%BlockSize != 0 {
		out = append(out, SUB)
	}
	return out
}

func runTransfer(t *testing.T, s *Sender, rc receiver, payload []byte) ([]byte, *recorder, error) {
	t.Helper()
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := rc.run(client)
		done <- result{data, err}
	}()

	rec := &recorder{}
	sendErr := s.Send(context.Background(), server, payload, rec)

	select {
	case res := <-done:
		require.NoError(t, res.err)
		return res.data, rec, sendErr
	case <-time.After(5 * time.Second):
		t.Fatal("receiver did not finish")
	}
	return nil, rec, sendErr
}

func TestSend_CRCMode(t *testing.T) {
	payload := bytes.Repeat([]byte("READY.\r"), 50) // 350 bytes, 3 blocks

	got, rec, err := runTransfer(t, testSender(), receiver{start: CRC}, payload)
	require.NoError(t, err)

	assert.Equal(t, padded(payload), got)
	assert.Equal(t, 3, rec.total)
	assert.Equal(t, []int{ExitOK}, rec.codes)
	assert.Equal(t, []string{
		"ready", "start",
		"SOH #1", "ACK #1",
		"SOH #2", "ACK #2",
		"SOH #3", "ACK #3",
		"EOT", "stop 0",
	}, rec.events)
}

func TestSend_ChecksumMode(t *testing.T) {
	payload := []byte("10 PRINT \"HELLO\"\r20 GOTO 10\r")

	got, rec, err := runTransfer(t, testSender(), receiver{start: NAK}, payload)
	require.NoError(t, err)
	assert.Equal(t, padded(payload), got)
	assert.Equal(t, 1, rec.total)
}

func TestSend_RetransmitsOnNAK(t *testing.T) {
	payload := bytes.Repeat([]byte{0xFF, 0x00}, BlockSize) // 2 blocks

	got, rec, err := runTransfer(t, testSender(), receiver{start: CRC, nakBlocks: map[int]bool{2: true}}, payload)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Contains(t, rec.events, "NAK #2")
	assert.Equal(t, []int{ExitOK}, rec.codes)
}

func TestSend_ReceiverCancels(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 3*BlockSize)

	_, rec, err := runTransfer(t, testSender(), receiver{start: CRC, cancelAt: 2}, payload)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, []int{ExitCancelled}, rec.codes)
}

func TestSend_EmptyPayload(t *testing.T) {
	got, rec, err := runTransfer(t, testSender(), receiver{start: CRC}, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 0, rec.total)
	assert.Equal(t, []string{"ready", "start", "EOT", "stop 0"}, rec.events)
}

func TestSend_StartTimeout(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()
	go io.Copy(io.Discard, client)

	s := &Sender{StartTimeout: 50 * time.Millisecond, AckTimeout: 50 * time.Millisecond, MaxRetries: 1}
	rec := &recorder{}
	err := s.Send(context.Background(), server, []byte("data"), rec)

	assert.ErrorIs(t, err, ErrStartTimeout)
	assert.Equal(t, []int{ExitStartTimeout}, rec.codes)
	assert.Equal(t, []string{"ready", "stop 3"}, rec.events)
}

func TestSend_TransportClosed(t *testing.T) {
	server, client := net.Pipe()
	client.Close()

	rec := &recorder{}
	err := testSender().Send(context.Background(), server, []byte("data"), rec)

	assert.Error(t, err)
	assert.Equal(t, []int{ExitTransportError}, rec.codes)
}

func TestCRC16_KnownVector(t *testing.T) {
	assert.Equal(t, uint16(0x31C3), crc16([]byte("123456789")))
}

func TestBlockCount(t *testing.T) {
	assert.Equal(t, 0, BlockCount(0))
	assert.Equal(t, 1, BlockCount(1))
	assert.Equal(t, 1, BlockCount(BlockSize))
	assert.Equal(t, 2, BlockCount(BlockSize+1))
}
