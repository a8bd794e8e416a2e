// Package xmodem implements the sending half of the XMODEM block-transfer
// protocol (checksum and CRC-16 variants, 128-byte blocks).
package xmodem

import (
	"errors"
	"fmt"
)

// Protocol control bytes.
const (
	SOH byte = 0x01 // Start of 128-byte block
	EOT byte = 0x04 // End of transmission
	ACK byte = 0x06
	NAK byte = 0x15
	CAN byte = 0x18
	SUB byte = 0x1A // Padding for the final block
	CRC byte = 'C'  // Receiver request for CRC-16 mode
)

// BlockSize is the payload size of a single XMODEM block.
const BlockSize = 128

// Stop codes reported to Observer.Stopped.
const (
	ExitOK             = 0
	ExitCancelled      = 1
	ExitTooManyRetries = 2
	ExitStartTimeout   = 3
	ExitTransportError = 4
)

var (
	ErrCancelled      = errors.New("transfer cancelled by receiver")
	ErrTooManyRetries = errors.New("too many retries")
	ErrStartTimeout   = errors.New("receiver did not start")
)

// Signal names a protocol event reported through Observer.Status.
type Signal string

const (
	SignalSOH Signal = "SOH" // A data block was sent
	SignalACK Signal = "ACK"
	SignalNAK Signal = "NAK"
	SignalEOT Signal = "EOT"
	SignalCAN Signal = "CAN"
)

// Status is a single progress event.
type Status struct {
	Signal Signal
	Block  int // 1-based block number, 0 when not block related
}

// Observer receives lifecycle events in the order Ready, Started,
// zero or more Status, Stopped. Stopped is always delivered exactly once.
type Observer interface {
	Ready(totalBlocks int)
	Started()
	Status(st Status)
	Stopped(code int)
}

// BlockCount returns how many blocks a payload of n bytes occupies.
func BlockCount(n int) int {
	return (n + BlockSize - 1) / BlockSize
}

// exitCode maps a Send error to the code reported to Observer.Stopped.
func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrCancelled):
		return ExitCancelled
	case errors.Is(err, ErrTooManyRetries):
		return ExitTooManyRetries
	case errors.Is(err, ErrStartTimeout):
		return ExitStartTimeout
	default:
		return ExitTransportError
	}
}

// checksum is the original 8-bit arithmetic sum.
func checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}

// crc16 is CRC-16/XMODEM (poly 0x1021, init 0).
func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// packet frames block number blk (1-based) of payload.
func packet(payload []byte, blk int, useCRC bool) []byte {
	start := (blk - 1) * BlockSize
	end := start + BlockSize
	if end > len(payload) {
		end = len(payload)
	}

	data := make([]byte, BlockSize)
	n := copy(data, payload[start:end])
	for i := n; i < BlockSize; i++ {
		data[i] = SUB
	}

	num := byte(blk)
	pkt := make([]byte, 0, 3+BlockSize+2)
	pkt = append(pkt, SOH, num, ^num)
	pkt = append(pkt, data...)
	if useCRC {
		c := crc16(data)
		pkt = append(pkt, byte(c>>8), byte(c))
	} else {
		pkt = append(pkt, checksum(data))
	}
	return pkt
}

func (s Status) String() string {
	if s.Block > 0 {
		return fmt.Sprintf("%s #%d", s.Signal, s.Block)
	}
	return string(s.Signal)
}
