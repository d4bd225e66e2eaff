package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/danmuck/peersync/internal/geom"
)

func appendFloat32(dst []byte, v float32) []byte {
	return binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
}

func appendVec3(dst []byte, v geom.Vec3) []byte {
	dst = appendFloat32(dst, v.X)
	dst = appendFloat32(dst, v.Y)
	return appendFloat32(dst, v.Z)
}

func appendQuat(dst []byte, q geom.Quat) []byte {
	dst = appendFloat32(dst, q.X)
	dst = appendFloat32(dst, q.Y)
	dst = appendFloat32(dst, q.Z)
	return appendFloat32(dst, q.W)
}

func appendName(dst []byte, name string) []byte {
	dst = append(dst, byte(len(name)))
	return append(dst, name...)
}

func checkName(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	if len(name) > MaxNameLen {
		return fmt.Errorf("%w: %d bytes", ErrNameTooLong, len(name))
	}
	return nil
}

// payloadReader walks a payload left to right. The first failure sticks so
// callers can read every field and check err once.
type payloadReader struct {
	kind Kind
	buf  []byte
	off  int
	err  error
}

func (r *payloadReader) fail(format string, args ...any) {
	if r.err != nil {
		return
	}
	r.err = fmt.Errorf("%w: %s: %s", ErrMalformedPayload, r.kind, fmt.Sprintf(format, args...))
}

func (r *payloadReader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if len(r.buf)-r.off < n {
		r.fail("need %d bytes at offset %d, have %d", n, r.off, len(r.buf)-r.off)
		return false
	}
	return true
}

func (r *payloadReader) float32() float32 {
	if !r.need(floatSize) {
		return 0
	}
	v := math.Float32frombits(binary.LittleEndian.Uint32(r.buf[r.off:]))
	r.off += floatSize
	return v
}

func (r *payloadReader) vec3() geom.Vec3 {
	return geom.Vec3{X: r.float32(), Y: r.float32(), Z: r.float32()}
}

func (r *payloadReader) quat() geom.Quat {
	return geom.Quat{X: r.float32(), Y: r.float32(), Z: r.float32(), W: r.float32()}
}

func (r *payloadReader) name() string {
	if !r.need(1) {
		return ""
	}
	n := int(r.buf[r.off])
	r.off++
	if n == 0 {
		r.fail("empty object name")
		return ""
	}
	if !r.need(n) {
		return ""
	}
	raw := r.buf[r.off : r.off+n]
	r.off += n
	if !utf8.Valid(raw) {
		r.fail("object name is not valid utf-8")
		return ""
	}
	return string(raw)
}

func (r *payloadReader) rest() []byte {
	if r.err != nil {
		return nil
	}
	out := make([]byte, len(r.buf)-r.off)
	copy(out, r.buf[r.off:])
	r.off = len(r.buf)
	return out
}

func (r *payloadReader) done() error {
	if r.err == nil && r.off != len(r.buf) {
		r.fail("%d trailing bytes", len(r.buf)-r.off)
	}
	return r.err
}
