package codec

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/google/uuid"
	"github.com/nuodb/go-nuodb/internal/types"
)

// ErrTruncated is returned when a frame ends before a tag's declared
// payload has been fully consumed.
var ErrTruncated = errors.New("codec: truncated value")

// ErrInvalidTag is returned for a tag byte outside every known range.
var ErrInvalidTag = errors.New("codec: unrecognized tag byte")

// Decoder walks a byte slice, peeling off one tagged Value at a time.
type Decoder struct {
	data []byte
	pos int
}

func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

// Remaining reports how many bytes are left unconsumed.
func (d *Decoder) Remaining() []byte {
	return d.data[d.pos:]
}

func (d *Decoder) Done() bool {
	return d.pos >= len(d.data)
}

func (d *Decoder) take(n int) ([]byte, error) {
	if d.pos+n > len(d.data) {
		return nil, ErrTruncated
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

// Value decodes and returns the next tagged Value.
func (d *Decoder) Value() (types.Value, error) {
	tagBuf, err := d.take(1)
	if err != nil {
		return types.Value{}, err
	}
	return decodeTag(tagBuf[0], d)
}

// Decode decodes a single Value from the start of data and reports how
// many bytes it consumed, for callers that only need one value at a time.
func Decode(data []byte) (types.Value, int, error) {
	d := NewDecoder(data)
	v, err := d.Value()
	if err != nil {
		return types.Value{}, 0, err
	}
	return v, d.pos, nil
}

func decodeTag(tag byte, d *Decoder) (types.Value, error) {
	t := int(tag)
	switch {
	case t == tagNull:
		return types.Null(), nil
	case t == tagBoolTrue:
		return types.Bool(true), nil
	case t == tagBoolFalse:
		return types.Bool(false), nil

	case t >= tagIntMin && t <= tagIntMax:
		return types.Int(int64(t) - tagIntBase), nil

	case t >= tagSignedIntBase && t <= tagSignedIntMax:
		n := t - tagSignedIntBase + 1
		b, err := d.take(n)
		if err != nil {
			return types.Value{}, err
		}
		return types.Int(getSignedBE(b)), nil

	case t >= tagScaledIntBase && t <= tagScaledIntMax:
		n := t - tagScaledIntBase
		hdr, err := d.take(1 + n)
		if err != nil {
			return types.Value{}, err
		}
		scale := int8(hdr[0])
		iv := getSignedBE(hdr[1:])
		return types.DecimalValue(big.NewInt(iv), scale), nil

	case t >= tagStringLenBase && t <= tagStringLenMax:
		w := t - tagStringLenBase + 1
		s, err := decodeLenPrefixed(d, w)
		if err != nil {
			return types.Value{}, err
		}
		return types.Str(string(s)), nil

	case t >= tagOpaqueLenBase && t <= tagOpaqueLenMax:
		w := t - tagOpaqueLenBase + 1
		b, err := decodeLenPrefixed(d, w)
		if err != nil {
			return types.Value{}, err
		}
		return types.Bytes(b), nil

	case t >= tagDoubleBase && t <= tagDoubleMax:
		n := t - tagDoubleBase
		b, err := d.take(n)
		if err != nil {
			return types.Value{}, err
		}
		return types.Double(decodeDouble(b)), nil

	case t >= tagMillisEpochBase && t <= tagMillisEpochMax:
		n := t - tagMillisEpochBase
		b, err := d.take(n)
		if err != nil {
			return types.Value{}, err
		}
		return types.TimestampValue(getSignedBE(b), 3, nil), nil

	case t >= tagNanosEpochBase && t <= tagNanosEpochMax:
		n := t - tagNanosEpochBase
		b, err := d.take(n)
		if err != nil {
			return types.Value{}, err
		}
		return types.TimestampValue(getSignedBE(b), 9, nil), nil

	case t >= tagMillisMidnightBase && t <= tagMillisMidnightMax:
		n := t - tagMillisMidnightBase
		b, err := d.take(n)
		if err != nil {
			return types.Value{}, err
		}
		return types.TimeValue(getSignedBE(b), 3), nil

	case t >= tagStringInlineBase && t <= tagStringInlineMax:
		n := t - tagStringInlineBase
		b, err := d.take(n)
		if err != nil {
			return types.Value{}, err
		}
		return types.Str(string(b)), nil

	case t >= tagOpaqueInlineBase && t <= tagOpaqueInlineMax:
		n := t - tagOpaqueInlineBase
		b, err := d.take(n)
		if err != nil {
			return types.Value{}, err
		}
		out := make([]byte, n)
		copy(out, b)
		return types.Bytes(out), nil

	case t >= tagBlobBase && t <= tagBlobMax:
		b, err := decodeLOB(d, t-tagBlobBase)
		if err != nil {
			return types.Value{}, err
		}
		return types.BlobInline(b), nil

	case t >= tagClobBase && t <= tagClobMax:
		b, err := decodeLOB(d, t-tagClobBase)
		if err != nil {
			return types.Value{}, err
		}
		return types.ClobInline(string(b)), nil

	case t == tagFixedLegacy || t == tagFixedAlt:
		hdr, err := d.take(9)
		if err != nil {
			return types.Value{}, err
		}
		scale := int8(hdr[0])
		iv := getSignedBE(hdr[1:9])
		return types.Fixed(big.NewInt(iv), scale, byte(t)), nil

	case t == tagUUID:
		hexBytes, err := d.take(32)
		if err != nil {
			return types.Value{}, err
		}
		raw := make([]byte, 16)
		if _, err := hex.Decode(raw, hexBytes); err != nil {
			return types.Value{}, fmt.Errorf("codec: invalid UUID hex payload: %w", err)
		}
		u, err := uuid.FromBytes(raw)
		if err != nil {
			return types.Value{}, fmt.Errorf("codec: invalid UUID bytes: %w", err)
		}
		return types.UUIDValue(u), nil

	case t >= tagScaledDateBase && t <= tagScaledDateMax:
		units, scale, err := decodeScaledTemporal(d, t-tagScaledDateBase)
		if err != nil {
			return types.Value{}, err
		}
		return types.DateValue(units, scale), nil

	case t >= tagScaledTimeBase && t <= tagScaledTimeMax:
		units, scale, err := decodeScaledTemporal(d, t-tagScaledTimeBase)
		if err != nil {
			return types.Value{}, err
		}
		return types.TimeValue(units, scale), nil

	case t >= tagScaledTimestampBase && t <= tagScaledTimestampMax:
		units, scale, err := decodeScaledTemporal(d, t-tagScaledTimestampBase)
		if err != nil {
			return types.Value{}, err
		}
		return types.TimestampValue(units, scale, nil), nil

	default:
		return types.Value{}, fmt.Errorf("%w: 0x%02x", ErrInvalidTag, tag)
	}
}

func decodeLenPrefixed(d *Decoder, width int) ([]byte, error) {
	lenBytes, err := d.take(width)
	if err != nil {
		return nil, err
	}
	n := getUnsignedBE(lenBytes)
	return d.take(int(n))
}

func decodeLOB(d *Decoder, width int) ([]byte, error) {
	if width == 0 {
		return nil, nil
	}
	return decodeLenPrefixed(d, width)
}

func decodeScaledTemporal(d *Decoder, n int) (units int64, scale int8, err error) {
	hdr, err := d.take(1 + n)
	if err != nil {
		return 0, 0, err
	}
	return getSignedBE(hdr[1:]), int8(hdr[0]), nil
}

func decodeDouble(payload []byte) float64 {
	var full [8]byte
	copy(full[:], payload)
	var bits uint64
	for _, b := range full {
		bits = (bits << 8) | uint64(b)
	}
	return math.Float64frombits(bits)
}
