// Package frame delimits protocol messages on byte-stream transports. The
// message itself never carries its own length, so a stream needs this
// wrapper; datagram and message-oriented transports skip it.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	FixedHeaderLen        = 8
	Magic          uint32 = 0x50535931 // "PSY1"
	Version        uint16 = 1
)

var (
	ErrShortHeader        = errors.New("frame: short fixed header")
	ErrInvalidMagic       = errors.New("frame: invalid magic")
	ErrUnsupportedVersion = errors.New("frame: unsupported version")
	ErrPayloadTooLarge    = errors.New("frame: payload too large")
	ErrEmptyPayload       = errors.New("frame: empty payload")
)

// Header is the fixed wire header.
type Header struct {
	Magic      uint32
	Version    uint16
	PayloadLen uint16
}

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxPayloadBytes int
}

// DefaultLimits covers the largest protocol message (a 255-byte name plus a
// full transform) with headroom for long color strings.
func DefaultLimits() Limits {
	return Limits{
		MaxPayloadBytes: 4 * 1024,
	}
}

// ReadFrame reads one framed message and returns its payload.
func ReadFrame(r io.Reader, limits Limits) ([]byte, error) {
	var fixed [FixedHeaderLen]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrShortHeader
		}
		return nil, err
	}

	h, err := DecodeHeader(fixed[:])
	if err != nil {
		return nil, err
	}
	if h.Magic != Magic {
		return nil, ErrInvalidMagic
	}
	if h.Version != Version {
		return nil, ErrUnsupportedVersion
	}
	if h.PayloadLen == 0 {
		return nil, ErrEmptyPayload
	}
	if int(h.PayloadLen) > limits.MaxPayloadBytes {
		return nil, ErrPayloadTooLarge
	}

	payload := make([]byte, h.PayloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// WriteFrame writes payload as one frame in a single Write call.
func WriteFrame(w io.Writer, payload []byte, limits Limits) error {
	if len(payload) == 0 {
		return ErrEmptyPayload
	}
	if len(payload) > limits.MaxPayloadBytes || len(payload) > int(^uint16(0)) {
		return ErrPayloadTooLarge
	}
	buf := make([]byte, 0, FixedHeaderLen+len(payload))
	buf = append(buf, EncodeHeader(Header{
		Magic:      Magic,
		Version:    Version,
		PayloadLen: uint16(len(payload)),
	})...)
	buf = append(buf, payload...)
	_, err := w.Write(buf)
	return err
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, FixedHeaderLen)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	binary.BigEndian.PutUint16(buf[6:8], h.PayloadLen)
	return buf
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) != FixedHeaderLen {
		return Header{}, fmt.Errorf("frame: invalid fixed header length: %d", len(b))
	}
	return Header{
		Magic:      binary.BigEndian.Uint32(b[0:4]),
		Version:    binary.BigEndian.Uint16(b[4:6]),
		PayloadLen: binary.BigEndian.Uint16(b[6:8]),
	}, nil
}
