// Package codec implements the tagged binary encoding of Value on the
// wire: every value is a single tag byte, optionally followed by a
// payload whose length and shape the tag itself determines. The encoder
// always selects the shortest legal tag for a given value; the decoder
// dispatches purely on the tag byte, the same manual byte-packing style
// used throughout a hand-rolled wire protocol, generalized here into a
// table instead of a sequence of if-statements for each message.
package codec

// Tag byte ranges (authoritative tag table). A handful of the
// scaled-temporal ranges (date/time/timestamp, tags 201-224) are only wide
// enough in the table to cover signed payloads of 0-7 bytes even though
// every other family covers 0..8 bytes. DESIGN.md records the resolution:
// this codec treats 201-224 as covering payload widths 0-7 only, and
// returns a DataError from the encoder for any scaled temporal value whose
// minimal signed encoding would need the full 8 bytes (a case that does
// not arise for realistic date/time/timestamp magnitudes).
const (
	tagNull = 1

	// tagIntBase covers both the small-positive and small-negative integer
	// families with one formula: tag = value + 20 for
	// value in [-10, 31].
	tagIntBase = 20
	tagIntMin = 10
	tagIntMax = 51
	tagIntLoValue = -10
	tagIntHiValue = 31

	tagSignedIntBase = 52 // + (n-1), n = 1..8 bytes
	tagSignedIntMax = 59

	tagScaledIntBase = 60 // + n, n = 0..8 bytes
	tagScaledIntMax = 68

	tagStringLenBase = 69 // + (w-1), w = 1..4 byte length prefix
	tagStringLenMax = 72

	tagOpaqueLenBase = 73 // + (w-1), w = 1..4 byte length prefix
	tagOpaqueLenMax = 76

	tagDoubleBase = 77 // + n, n = 0..8 bytes, trailing zero bytes dropped
	tagDoubleMax = 85

	tagMillisEpochBase = 86 // + n, n = 0..8 bytes signed, legacy (decode-only)
	tagMillisEpochMax = 94

	tagNanosEpochBase = 95 // + n, n = 0..8 bytes signed, legacy (decode-only)
	tagNanosEpochMax = 103

	tagMillisMidnightBase = 104 // + n, n = 0..4 bytes signed, legacy (decode-only)
	tagMillisMidnightMax = 108

	tagStringInlineBase = 109 // + len, len = 0..39
	tagStringInlineMax = 148

	tagOpaqueInlineBase = 149 // + len, len = 0..39
	tagOpaqueInlineMax = 188

	tagBlobBase = 189 // + w, w = 0..4 byte length field (w=0 => empty)
	tagBlobMax = 193

	tagClobBase = 194 // + w, w = 0..4 byte length field (w=0 => empty)
	tagClobMax = 198

	tagFixedLegacy = 199 // 1-byte scale + 8-byte signed, fixed width

	tagUUID = 200 // 32 bytes: lowercase hex of the 16 raw UUID bytes

	tagScaledDateBase = 201 // + n, n = 0..7 bytes signed, 1-byte scale prefix
	tagScaledDateMax = 208

	tagScaledTimeBase = 209 // + n, n = 0..7 bytes signed, 1-byte scale prefix
	tagScaledTimeMax = 216

	tagScaledTimestampBase = 217 // + n, n = 0..7 bytes signed, 1-byte scale prefix
	tagScaledTimestampMax = 224

	tagFixedAlt = 225 // same shape as tagFixedLegacy, distinct tag identity

	tagBoolTrue = 2
	tagBoolFalse = 3
)

const maxInlineLen = 39 // tagStringInlineMax - tagStringInlineBase
