// Package types defines the driver-side representation of SQL values
// exchanged with a NuoDB Transaction Engine: a tagged union plus the
// scaled-decimal and temporal helper types it depends on. Nothing here
// knows about the wire encoding — that lives in internal/codec, which
// converts between Value and (tag, payload).
package types

import (
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Kind discriminates the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindDecimal
	KindDouble
	KindString
	KindBytes
	KindBlob
	KindClob
	KindUUID
	KindDate
	KindTime
	KindTimestamp
	KindFixed // legacy fixed-point, wire tags 199 and 225
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "NULL"
	case KindBool:
		return "BOOL"
	case KindInt:
		return "INT"
	case KindDecimal:
		return "DECIMAL"
	case KindDouble:
		return "DOUBLE"
	case KindString:
		return "STRING"
	case KindBytes:
		return "BYTES"
	case KindBlob:
		return "BLOB"
	case KindClob:
		return "CLOB"
	case KindUUID:
		return "UUID"
	case KindDate:
		return "DATE"
	case KindTime:
		return "TIME"
	case KindTimestamp:
		return "TIMESTAMP"
	case KindFixed:
		return "FIXED"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Decimal is an exact decimal value: Unscaled * 10^-Scale. The internal
// representation allows arbitrary precision (math/big), even though the
// wire encoding caps the unscaled magnitude at what fits in a signed
// 8-byte payload (see internal/codec).
type Decimal struct {
	Unscaled *big.Int
	Scale    int8
}

func NewDecimal(unscaled *big.Int, scale int8) Decimal {
	return Decimal{Unscaled: unscaled, Scale: scale}
}

func (d Decimal) String() string {
	if d.Unscaled == nil {
		return "<nil>"
	}
	s := new(big.Rat).SetFrac(d.Unscaled, pow10(d.Scale))
	return s.FloatString(int(maxInt8(d.Scale, 0)))
}

func (d Decimal) Equal(o Decimal) bool {
	if d.Scale != o.Scale {
		return false
	}
	if (d.Unscaled == nil) != (o.Unscaled == nil) {
		return false
	}
	if d.Unscaled == nil {
		return true
	}
	return d.Unscaled.Cmp(o.Unscaled) == 0
}

func pow10(scale int8) *big.Int {
	if scale < 0 {
		scale = 0
	}
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(scale)), nil)
}

func maxInt8(a, b int8) int8 {
	if a > b {
		return a
	}
	return b
}

// Date is days since the Unix epoch, with an optional sub-day scale
// (rare, but the wire format allows it).
type Date struct {
	Days  int64
	Scale int8
}

// Time is units of 10^-Scale seconds since midnight.
type Time struct {
	Units int64
	Scale int8
}

// Timestamp is units of 10^-Scale seconds since the Unix epoch. Loc is the
// client's session timezone used only for local-time formatting — the wire
// value itself is always epoch-relative and therefore timezone-independent.
type Timestamp struct {
	Units int64
	Scale int8
	Loc   *time.Location
}

func (ts Timestamp) Time() time.Time {
	loc := ts.Loc
	if loc == nil {
		loc = time.UTC
	}
	sec, nsec := splitUnits(ts.Units, ts.Scale)
	return time.Unix(sec, nsec).In(loc)
}

// splitUnits converts `units` at 10^-scale seconds resolution into
// (seconds, nanoseconds), rounding toward negative infinity so that
// pre-epoch timestamps decompose consistently.
func splitUnits(units int64, scale int8) (sec int64, nsec int64) {
	if scale <= 0 {
		return units, 0
	}
	unitsPerSecond := int64(1)
	for i := int8(0); i < scale; i++ {
		unitsPerSecond *= 10
	}
	sec = units / unitsPerSecond
	rem := units % unitsPerSecond
	if rem < 0 {
		rem += unitsPerSecond
		sec--
	}
	nsecPerUnit := int64(1)
	for i := scale; i < 9; i++ {
		nsecPerUnit *= 10
	}
	nsec = rem * nsecPerUnit
	return sec, nsec
}

// LOB represents a BLOB/CLOB value, either materialised inline (small
// values the server sent in full) or referenced by a server-side handle
// the caller must stream separately.
type LOB struct {
	HasHandle bool
	Handle    uint32
	Inline    []byte // raw bytes for BLOB, UTF-8 bytes for CLOB
}

// Value is the tagged union over every SQL value the wire protocol can
// carry.
type Value struct {
	Kind      Kind
	Bool      bool
	Int       int64
	Decimal   Decimal
	Double    float64
	Str       string
	Bytes     []byte
	LOB       LOB
	UUID      uuid.UUID
	Date      Date
	Time      Time
	Timestamp Timestamp

	// FixedTag distinguishes the two legacy fixed-point wire tags (199 vs
	// 225) that otherwise share an identical payload shape, so re-encoding
	// a decoded KindFixed value reproduces the exact original tag byte.
	FixedTag byte
}

func Null() Value                     { return Value{Kind: KindNull} }
func Bool(b bool) Value               { return Value{Kind: KindBool, Bool: b} }
func Int(i int64) Value               { return Value{Kind: KindInt, Int: i} }
func Double(f float64) Value          { return Value{Kind: KindDouble, Double: f} }
func Str(s string) Value              { return Value{Kind: KindString, Str: s} }
func Bytes(b []byte) Value            { return Value{Kind: KindBytes, Bytes: b} }
func UUIDValue(u uuid.UUID) Value     { return Value{Kind: KindUUID, UUID: u} }

func DecimalValue(unscaled *big.Int, scale int8) Value {
	return Value{Kind: KindDecimal, Decimal: NewDecimal(unscaled, scale)}
}

func Fixed(unscaled *big.Int, scale int8, tag byte) Value {
	return Value{Kind: KindFixed, Decimal: NewDecimal(unscaled, scale), FixedTag: tag}
}

func BlobInline(b []byte) Value {
	return Value{Kind: KindBlob, LOB: LOB{Inline: b}}
}

func BlobHandle(handle uint32) Value {
	return Value{Kind: KindBlob, LOB: LOB{HasHandle: true, Handle: handle}}
}

func ClobInline(s string) Value {
	return Value{Kind: KindClob, LOB: LOB{Inline: []byte(s)}}
}

func ClobHandle(handle uint32) Value {
	return Value{Kind: KindClob, LOB: LOB{HasHandle: true, Handle: handle}}
}

func DateValue(days int64, scale int8) Value {
	return Value{Kind: KindDate, Date: Date{Days: days, Scale: scale}}
}

func TimeValue(units int64, scale int8) Value {
	return Value{Kind: KindTime, Time: Time{Units: units, Scale: scale}}
}

func TimestampValue(units int64, scale int8, loc *time.Location) Value {
	return Value{Kind: KindTimestamp, Timestamp: Timestamp{Units: units, Scale: scale, Loc: loc}}
}

// IsNull reports whether v holds SQL NULL.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Equal compares two Values for the purposes of codec round-trip testing.
// It intentionally ignores Timestamp.Loc (a client-side display hint, not
// part of the wire value) and compares LOB inline payloads by content.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindBool:
		return v.Bool == o.Bool
	case KindInt:
		return v.Int == o.Int
	case KindDecimal:
		return v.Decimal.Equal(o.Decimal)
	case KindFixed:
		return v.Decimal.Equal(o.Decimal) && v.FixedTag == o.FixedTag
	case KindDouble:
		return v.Double == o.Double || (v.Double != v.Double && o.Double != o.Double) // NaN == NaN for round-trip purposes
	case KindString:
		return v.Str == o.Str
	case KindBytes:
		return bytesEqual(v.Bytes, o.Bytes)
	case KindBlob, KindClob:
		return v.LOB.HasHandle == o.LOB.HasHandle && v.LOB.Handle == o.LOB.Handle && bytesEqual(v.LOB.Inline, o.LOB.Inline)
	case KindUUID:
		return v.UUID == o.UUID
	case KindDate:
		return v.Date == o.Date
	case KindTime:
		return v.Time == o.Time
	case KindTimestamp:
		return v.Timestamp.Units == o.Timestamp.Units && v.Timestamp.Scale == o.Timestamp.Scale
	default:
		return false
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
