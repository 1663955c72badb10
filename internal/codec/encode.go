package codec

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/nuodb/go-nuodb/internal/types"
)

// ErrOverflow is returned when a Value's magnitude exceeds what the wire
// tag family can carry (e.g. a decimal whose unscaled value needs more than
// 8 bytes). Callers in internal/protocol map this to the DataError kind.
var ErrOverflow = errors.New("codec: value does not fit the wire encoding")

// Encoder accumulates a sequence of encoded Values into one buffer,
// mirroring how a single wire message packs several tagged fields back to
// back.
type Encoder struct {
	buf []byte
}

func NewEncoder() *Encoder { return &Encoder{} }

func (e *Encoder) Bytes() []byte { return e.buf }

func (e *Encoder) Reset() { e.buf = e.buf[:0] }

// Value appends the shortest legal tagged encoding of v.
func (e *Encoder) Value(v types.Value) error {
	b, err := Encode(v)
	if err != nil {
		return err
	}
	e.buf = append(e.buf, b...)
	return nil
}

// Encode returns the tagged wire encoding of a single Value, always
// choosing the smallest-payload tag in its family.
func Encode(v types.Value) ([]byte, error) {
	switch v.Kind {
	case types.KindNull:
		return []byte{tagNull}, nil

	case types.KindBool:
		if v.Bool {
			return []byte{tagBoolTrue}, nil
		}
		return []byte{tagBoolFalse}, nil

	case types.KindInt:
		return encodeInt(v.Int), nil

	case types.KindDecimal:
		return encodeScaledInt(v.Decimal.Unscaled, v.Decimal.Scale, tagScaledIntBase)

	case types.KindDouble:
		return encodeDouble(v.Double), nil

	case types.KindString:
		return encodeStringLike([]byte(v.Str), tagStringInlineBase, tagStringLenBase, tagStringLenMax), nil

	case types.KindBytes:
		return encodeStringLike(v.Bytes, tagOpaqueInlineBase, tagOpaqueLenBase, tagOpaqueLenMax), nil

	case types.KindBlob:
		return encodeLOB(v.LOB, tagBlobBase)

	case types.KindClob:
		return encodeLOB(v.LOB, tagClobBase)

	case types.KindUUID:
		raw := v.UUID[:]
		hexBytes := make([]byte, hex.EncodedLen(len(raw)))
		hex.Encode(hexBytes, raw)
		return append([]byte{tagUUID}, hexBytes...), nil

	case types.KindDate:
		return encodeScaledTemporal(v.Date.Days, v.Date.Scale, tagScaledDateBase)

	case types.KindTime:
		return encodeScaledTemporal(v.Time.Units, v.Time.Scale, tagScaledTimeBase)

	case types.KindTimestamp:
		return encodeScaledTemporal(v.Timestamp.Units, v.Timestamp.Scale, tagScaledTimestampBase)

	case types.KindFixed:
		tag := v.FixedTag
		if tag != tagFixedLegacy && tag != tagFixedAlt {
			tag = tagFixedLegacy
		}
		if v.Decimal.Unscaled == nil || !v.Decimal.Unscaled.IsInt64() {
			return nil, fmt.Errorf("%w: fixed-point value exceeds 8-byte signed range", ErrOverflow)
		}
		out := make([]byte, 10)
		out[0] = tag
		out[1] = byte(v.Decimal.Scale)
		putSignedBE(out[2:10], v.Decimal.Unscaled.Int64())
		return out, nil

	default:
		return nil, fmt.Errorf("codec: unsupported value kind %v", v.Kind)
	}
}

func encodeInt(v int64) []byte {
	if v >= tagIntLoValue && v <= tagIntHiValue {
		return []byte{byte(int64(tagIntBase) + v)}
	}
	n := minSignedBytes(v)
	out := make([]byte, 1+n)
	out[0] = byte(tagSignedIntBase + n - 1)
	putSignedBE(out[1:], v)
	return out
}

// encodeScaledInt packs a 1-byte scale followed by the minimal-length
// signed big-endian encoding of unscaled, using tags [base, base+8].
func encodeScaledInt(unscaled *big.Int, scale int8, base int) ([]byte, error) {
	if unscaled == nil {
		unscaled = big.NewInt(0)
	}
	if !unscaled.IsInt64() {
		return nil, fmt.Errorf("%w: unscaled value exceeds 8-byte signed range", ErrOverflow)
	}
	iv := unscaled.Int64()
	n := minSignedBytes(iv)
	out := make([]byte, 2+n)
	out[0] = byte(base + n)
	out[1] = byte(scale)
	putSignedBE(out[2:], iv)
	return out, nil
}

// encodeScaledTemporal mirrors encodeScaledInt but the tag family only
// spans payload widths 0-7 (see tags.go); a value that genuinely needs the
// full 8 bytes cannot be represented and is rejected as an overflow.
func encodeScaledTemporal(units int64, scale int8, base int) ([]byte, error) {
	n := minSignedBytes(units)
	if n > 7 {
		return nil, fmt.Errorf("%w: temporal value needs 8 signed bytes, only 0-7 are representable", ErrOverflow)
	}
	out := make([]byte, 2+n)
	out[0] = byte(base + n)
	out[1] = byte(scale)
	putSignedBE(out[2:], units)
	return out, nil
}

// encodeDouble truncates trailing all-zero bytes from the IEEE 754
// big-endian representation of the double family: the decoder zero-pads
// a short payload back out to 8 bytes before reinterpreting it.
func encodeDouble(f float64) []byte {
	bits := math.Float64bits(f)
	var full [8]byte
	for i := 7; i >= 0; i-- {
		full[i] = byte(bits)
		bits >>= 8
	}
	n := 8
	for n > 0 && full[n-1] == 0 {
		n--
	}
	out := make([]byte, 1+n)
	out[0] = byte(tagDoubleBase + n)
	copy(out[1:], full[:n])
	return out
}

// encodeStringLike picks the inline tag when the payload fits in
// maxInlineLen bytes (no length prefix at all — the shortest possible
// encoding), otherwise a length-prefixed tag with the smallest length
// field that can hold len(data).
func encodeStringLike(data []byte, inlineBase, lenBase, lenMax int) []byte {
	if len(data) <= maxInlineLen {
		out := make([]byte, 1+len(data))
		out[0] = byte(inlineBase + len(data))
		copy(out[1:], data)
		return out
	}
	maxWidth := lenMax - lenBase + 1
	w, _ := minUnsignedBytes(uint64(len(data)), maxWidth)
	if w == 0 {
		w = maxWidth
	}
	out := make([]byte, 1+w+len(data))
	out[0] = byte(lenBase + w - 1)
	putUnsignedBE(out[1:1+w], uint64(len(data)))
	copy(out[1+w:], data)
	return out
}

// encodeLOB emits a length-prefixed tag; w=0 (tag == base) means an empty
// value with no length field or payload at all.
func encodeLOB(lob types.LOB, base int) ([]byte, error) {
	if lob.HasHandle {
		return nil, fmt.Errorf("codec: cannot inline-encode a server-side LOB handle %d; send it via the LOB streaming operations instead", lob.Handle)
	}
	data := lob.Inline
	if len(data) == 0 {
		return []byte{byte(base)}, nil
	}
	maxWidth := (base + 4) - base // 4
	w, ok := minUnsignedBytes(uint64(len(data)), maxWidth)
	if !ok {
		return nil, fmt.Errorf("%w: LOB payload too large for a 4-byte length field", ErrOverflow)
	}
	out := make([]byte, 1+w+len(data))
	out[0] = byte(base + w)
	putUnsignedBE(out[1:1+w], uint64(len(data)))
	copy(out[1+w:], data)
	return out, nil
}
