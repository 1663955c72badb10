package protocol

import (
	"github.com/nuodb/go-nuodb/internal/codec"
	"github.com/nuodb/go-nuodb/internal/types"
	"github.com/nuodb/go-nuodb/internal/wire"
)

// Writer appends a request's arguments to enc after the opcode has already
// been written. It must not call conn.WriteFrame itself.
type Writer func(enc *codec.Encoder) error

// Exchange issues one opcode against conn and returns a Decoder positioned
// at the start of the response payload: every request begins with a
// tagged opcode integer, and every response begins with a tagged status
// integer — zero for success, non-zero to introduce a standard error frame
// (message string, then SQLState string).
//
// On a DatabaseError the connection is left usable; every other error
// returned is already classified via Classify and its Kind reports whether
// the caller should give up on conn.
func Exchange(conn *wire.Conn, opcode Opcode, write Writer) (*codec.Decoder, error) {
	enc := codec.NewEncoder()
	if err := enc.Value(types.Int(int64(opcode))); err != nil {
		return nil, Classify(err)
	}
	if write != nil {
		if err := write(enc); err != nil {
			return nil, Classify(err)
		}
	}
	if err := conn.WriteFrame(enc.Bytes()); err != nil {
		return nil, Classify(err)
	}

	body, err := conn.ReadFrame()
	if err != nil {
		return nil, Classify(err)
	}
	dec := codec.NewDecoder(body)

	statusVal, err := dec.Value()
	if err != nil {
		return nil, Classify(err)
	}
	if statusVal.Kind != types.KindInt {
		return nil, NewProtocolError("response to %s did not begin with a status integer", opcode)
	}
	if statusVal.Int == 0 {
		return dec, nil
	}

	return nil, readDatabaseError(dec, opcode, statusVal.Int)
}

func readDatabaseError(dec *codec.Decoder, opcode Opcode, code int64) *Error {
	msgVal, err := dec.Value()
	if err != nil || msgVal.Kind != types.KindString {
		return NewProtocolError("%s returned status %d without an error message", opcode, code)
	}
	stateVal, err := dec.Value()
	if err != nil || stateVal.Kind != types.KindString {
		return NewProtocolError("%s returned status %d without a SQLState", opcode, code)
	}
	return NewDatabaseError(int(code), msgVal.Str, stateVal.Str)
}
