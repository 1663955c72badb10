package statement

import (
	"github.com/nuodb/go-nuodb/internal/codec"
	"github.com/nuodb/go-nuodb/internal/protocol"
	"github.com/nuodb/go-nuodb/internal/session"
	"github.com/nuodb/go-nuodb/internal/types"
)

// ColumnMeta is one column's metadata: catalog, schema, table, column
// name, label, collation, type name, type code, display size, precision,
// scale, flags, in that wire order.
type ColumnMeta struct {
	Catalog     string
	Schema      string
	Table       string
	Name        string
	Label       string
	Collation   string
	TypeName    string
	TypeCode    int
	DisplaySize int
	Precision   int
	Scale       int8
	Flags       int64
}

// ResultSet is a pull-based cursor over server-streamed rows: an explicit
// pull-based iterator with Next returning (row, ok) and an explicit
// Close; window refills are driven by the consumer.
type ResultSet struct {
	sess    *session.Session
	handle  uint32
	columns []ColumnMeta // nil until GetMetaData has been called once

	window    [][]types.Value
	pos       int
	exhausted bool
	closed    bool
}

func newResultSet(sess *session.Session, handle uint32) *ResultSet {
	return &ResultSet{sess: sess, handle: handle}
}

// Handle returns the server-allocated result-set handle.
func (rs *ResultSet) Handle() uint32 { return rs.handle }

// Columns returns the column metadata, fetching and caching it on first
// call.
func (rs *ResultSet) Columns() ([]ColumnMeta, error) {
	if rs.columns != nil {
		return rs.columns, nil
	}
	dec, err := rs.sess.Exchange(protocol.OpGetMetaData, func(enc *codec.Encoder) error {
		return enc.Value(types.Int(int64(rs.handle)))
	})
	if err != nil {
		return nil, err
	}
	countVal, err := dec.Value()
	if err != nil || countVal.Kind != types.KindInt {
		return nil, protocol.NewProtocolError("GetMetaData response missing a column count")
	}
	cols := make([]ColumnMeta, countVal.Int)
	for i := range cols {
		cm, err := decodeColumnMeta(dec)
		if err != nil {
			return nil, err
		}
		cols[i] = cm
	}
	rs.columns = cols
	return cols, nil
}

func decodeColumnMeta(dec *codec.Decoder) (ColumnMeta, error) {
	var cm ColumnMeta
	fields := []*string{
		&cm.Catalog, &cm.Schema, &cm.Table, &cm.Name, &cm.Label, &cm.Collation, &cm.TypeName,
	}
	for _, dst := range fields {
		v, err := dec.Value()
		if err != nil || v.Kind != types.KindString {
			return ColumnMeta{}, protocol.NewProtocolError("column metadata: expected a string field: %v", err)
		}
		*dst = v.Str
	}

	typeCodeVal, err := dec.Value()
	if err != nil || typeCodeVal.Kind != types.KindInt {
		return ColumnMeta{}, protocol.NewProtocolError("column metadata missing a type code")
	}
	cm.TypeCode = int(typeCodeVal.Int)

	displaySizeVal, err := dec.Value()
	if err != nil || displaySizeVal.Kind != types.KindInt {
		return ColumnMeta{}, protocol.NewProtocolError("column metadata missing a display size")
	}
	cm.DisplaySize = int(displaySizeVal.Int)

	precisionVal, err := dec.Value()
	if err != nil || precisionVal.Kind != types.KindInt {
		return ColumnMeta{}, protocol.NewProtocolError("column metadata missing a precision")
	}
	cm.Precision = int(precisionVal.Int)

	scaleVal, err := dec.Value()
	if err != nil || scaleVal.Kind != types.KindInt {
		return ColumnMeta{}, protocol.NewProtocolError("column metadata missing a scale")
	}
	cm.Scale = int8(scaleVal.Int)

	flagsVal, err := dec.Value()
	if err != nil || flagsVal.Kind != types.KindInt {
		return ColumnMeta{}, protocol.NewProtocolError("column metadata missing flags")
	}
	cm.Flags = flagsVal.Int

	return cm, nil
}

// Next returns the next row, or ok=false once the result set is
// exhausted. A row is fully materialised before the next one is
// requested from the wire; Next never hands back a partially decoded row.
func (rs *ResultSet) Next() (row []types.Value, ok bool, err error) {
	if rs.closed {
		return nil, false, protocol.NewInterfaceError("result set %d is closed", rs.handle)
	}
	for {
		if rs.pos < len(rs.window) {
			row = rs.window[rs.pos]
			rs.pos++
			return row, true, nil
		}
		if rs.exhausted {
			return nil, false, nil
		}
		if err := rs.fetchWindow(); err != nil {
			return nil, false, err
		}
	}
}

// fetchWindow issues one Next(handle) request and buffers the rows the
// server streams back. Rows are fetched by Next(handle); the server
// streams rows back-to-back, each preceded by a has-next flag. An
// intermediate window can legitimately come back empty (has-next=false
// immediately) without the set being exhausted; Next keeps calling
// fetchWindow until it either has a row to hand back or the server's
// trailing Bool "final" field marks the set exhausted. Reaching exhausted
// does not implicitly close the result set.
func (rs *ResultSet) fetchWindow() error {
	cols, err := rs.Columns()
	if err != nil {
		return err
	}

	dec, err := rs.sess.Exchange(protocol.OpNext, func(enc *codec.Encoder) error {
		return enc.Value(types.Int(int64(rs.handle)))
	})
	if err != nil {
		return err
	}

	rs.window = rs.window[:0]
	rs.pos = 0
	for {
		hasNextVal, err := dec.Value()
		if err != nil || hasNextVal.Kind != types.KindBool {
			return protocol.NewProtocolError("Next response missing a has-next flag")
		}
		if !hasNextVal.Bool {
			break
		}
		row := make([]types.Value, len(cols))
		for i := range row {
			v, err := dec.Value()
			if err != nil {
				return err
			}
			row[i] = v
		}
		rs.window = append(rs.window, row)
	}

	finalVal, err := dec.Value()
	if err == nil && finalVal.Kind == types.KindBool {
		rs.exhausted = finalVal.Bool
	}
	return nil
}

// Close sends CloseResultSet. Safe to call more than once.
func (rs *ResultSet) Close() error {
	if rs.closed {
		return nil
	}
	_, err := rs.sess.Exchange(protocol.OpCloseResultSet, func(enc *codec.Encoder) error {
		return enc.Value(types.Int(int64(rs.handle)))
	})
	rs.closed = true
	return err
}
