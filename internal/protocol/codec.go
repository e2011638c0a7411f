package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// ParseError is returned for any malformed frame: truncated fields,
// unknown discriminants, or trailing bytes. A frame that fails to parse
// is rejected as a whole; no partially-decoded value is ever returned.
type ParseError struct {
	msg string
	err error
}

func (e *ParseError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *ParseError) Unwrap() error { return e.err }

func parseErrorf(format string, args ...any) *ParseError {
	return &ParseError{msg: fmt.Sprintf(format, args...)}
}

func parseErrorWrap(err error, format string, args ...any) *ParseError {
	return &ParseError{msg: fmt.Sprintf(format, args...), err: err}
}

func readU8(r *bytes.Reader, what string) (uint8, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, parseErrorWrap(err, "failed to read %s", what)
	}
	return b, nil
}

func readBool(r *bytes.Reader, what string) (bool, error) {
	b, err := readU8(r, what)
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, parseErrorf("invalid boolean value 0x%02X for %s", b, what)
	}
}

func readI32(r *bytes.Reader, what string) (int32, error) {
	var v int32
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return 0, parseErrorWrap(err, "failed to read %s", what)
	}
	return v, nil
}

func readU32(r *bytes.Reader, what string) (uint32, error) {
	var v uint32
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return 0, parseErrorWrap(err, "failed to read %s", what)
	}
	return v, nil
}

func readI64(r *bytes.Reader, what string) (int64, error) {
	var v int64
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return 0, parseErrorWrap(err, "failed to read %s", what)
	}
	return v, nil
}

func readU64(r *bytes.Reader, what string) (uint64, error) {
	var v uint64
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return 0, parseErrorWrap(err, "failed to read %s", what)
	}
	return v, nil
}

func readF32(r *bytes.Reader, what string) (float32, error) {
	v, err := readU32(r, what)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func readF64(r *bytes.Reader, what string) (float64, error) {
	v, err := readU64(r, what)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// readBlob reads an int32-length-prefixed byte array. The length is
// validated against the remaining bytes so a hostile prefix cannot force
// a huge allocation.
func readBlob(r *bytes.Reader, what string) ([]byte, error) {
	length, err := readI32(r, what+" length")
	if err != nil {
		return nil, err
	}
	if length < 0 {
		return nil, parseErrorf("negative length %d for %s", length, what)
	}
	if int(length) > r.Len() {
		return nil, parseErrorf("declared length %d for %s exceeds remaining %d bytes", length, what, r.Len())
	}
	if length == 0 {
		return nil, nil
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, parseErrorWrap(err, "failed to read %s", what)
	}
	return buf, nil
}

func readString(r *bytes.Reader, what string) (string, error) {
	buf, err := readBlob(r, what)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeU8(w *bytes.Buffer, v uint8) { w.WriteByte(v) }

func writeBool(w *bytes.Buffer, v bool) {
	if v {
		w.WriteByte(1)
	} else {
		w.WriteByte(0)
	}
}

func writeI32(w *bytes.Buffer, v int32) { binary.Write(w, binary.LittleEndian, v) }

func writeU32(w *bytes.Buffer, v uint32) { binary.Write(w, binary.LittleEndian, v) }

func writeI64(w *bytes.Buffer, v int64) { binary.Write(w, binary.LittleEndian, v) }

func writeU64(w *bytes.Buffer, v uint64) { binary.Write(w, binary.LittleEndian, v) }

func writeF32(w *bytes.Buffer, v float32) { writeU32(w, math.Float32bits(v)) }

func writeF64(w *bytes.Buffer, v float64) { writeU64(w, math.Float64bits(v)) }

func writeBlob(w *bytes.Buffer, b []byte) {
	writeI32(w, int32(len(b)))
	w.Write(b)
}

func writeString(w *bytes.Buffer, s string) {
	writeI32(w, int32(len(s)))
	w.WriteString(s)
}

// finish rejects any unconsumed bytes after a payload has been decoded.
func finish(r *bytes.Reader) error {
	if r.Len() != 0 {
		return parseErrorf("%d trailing bytes after payload", r.Len())
	}
	return nil
}
