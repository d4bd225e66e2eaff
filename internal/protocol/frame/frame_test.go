package frame

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/danmuck/peersync/internal/protocol"
)

func TestReadWriteFrameRoundTrip(t *testing.T) {
	payload, err := protocol.Encode(protocol.SpawnObject{Name: "NetObj0"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var buf bytes.Buffer
	if err := WriteFrame(&buf, payload, DefaultLimits()); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if buf.Len() != FixedHeaderLen+len(payload) {
		t.Fatalf("unexpected frame size=%d", buf.Len())
	}
	out, err := ReadFrame(&buf, DefaultLimits())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if !bytes.Equal(out, payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestReadFramesBackToBack(t *testing.T) {
	var buf bytes.Buffer
	for _, p := range [][]byte{{1}, {3}, {0, 'r', 'e', 'd'}} {
		if err := WriteFrame(&buf, p, DefaultLimits()); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	for _, want := range [][]byte{{1}, {3}, {0, 'r', 'e', 'd'}} {
		got, err := ReadFrame(&buf, DefaultLimits())
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("got=%v want=%v", got, want)
		}
	}
	if _, err := ReadFrame(&buf, DefaultLimits()); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF at clean end of stream, got %v", err)
	}
}

func TestReadFrameMalformedHeaderIsDeterministic(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{1, 2, 3}), DefaultLimits())
	if !errors.Is(err, ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}
}

func TestReadFrameInvalidMagic(t *testing.T) {
	buf := EncodeHeader(Header{Magic: 1, Version: Version, PayloadLen: 1})
	_, err := ReadFrame(bytes.NewReader(append(buf, 1)), DefaultLimits())
	if !errors.Is(err, ErrInvalidMagic) {
		t.Fatalf("expected ErrInvalidMagic, got %v", err)
	}
}

func TestReadFrameRejectsOversizedPayload(t *testing.T) {
	buf := EncodeHeader(Header{Magic: Magic, Version: Version, PayloadLen: 64})
	_, err := ReadFrame(bytes.NewReader(buf), Limits{MaxPayloadBytes: 16})
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestWriteFrameRejectsEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, nil, DefaultLimits()); !errors.Is(err, ErrEmptyPayload) {
		t.Fatalf("expected ErrEmptyPayload, got %v", err)
	}
}
