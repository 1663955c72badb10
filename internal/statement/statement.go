// Package statement implements the statement and result-set handle
// lifecycle: CreateStatement/PrepareStatement*, Execute variants, batch
// execution, and the result-set cursors they hand back.
//
// Every request below begins with the statement (or result-set) handle as
// a tagged int, the same shape internal/protocol's Exchange already uses
// for the opcode itself. The wire protocol documents the payload of each
// message but not this framing detail, so the handle-first convention
// here is this package's own choice, applied consistently across every
// opcode that targets an existing handle.
package statement

import (
	"github.com/nuodb/go-nuodb/internal/codec"
	"github.com/nuodb/go-nuodb/internal/protocol"
	"github.com/nuodb/go-nuodb/internal/session"
	"github.com/nuodb/go-nuodb/internal/types"
)

// KeyMode selects which PrepareStatement* opcode a prepare uses: none, by
// generated-key id, or by generated-key name.
type KeyMode int

const (
	KeyModeNone KeyMode = iota
	KeyModeByID
	KeyModeByName
)

// Statement is a server-allocated statement handle. ParamCount is zero for
// a plain (non-prepared) statement.
type Statement struct {
	sess       *session.Session
	handle     uint32
	paramCount int
	keyMode    KeyMode
	resultSet  *ResultSet // the one active cursor
	closed     bool
}

// Handle returns the server-allocated statement handle.
func (s *Statement) Handle() uint32 { return s.handle }

// ParamCount returns the number of bind parameters a prepared statement
// expects. Always zero for a statement created via Create.
func (s *Statement) ParamCount() int { return s.paramCount }

// Create opens a new, unprepared statement handle via CreateStatement.
func Create(sess *session.Session) (*Statement, error) {
	dec, err := sess.Exchange(protocol.OpCreateStatement, nil)
	if err != nil {
		return nil, err
	}
	handle, err := readHandle(dec)
	if err != nil {
		return nil, err
	}
	return &Statement{sess: sess, handle: handle}, nil
}

// Prepare opens a prepared statement handle for sql, optionally requesting
// that the next execute also materialise a generated-keys result set.
func Prepare(sess *session.Session, sql string, keyMode KeyMode, keys []string) (*Statement, error) {
	opcode := protocol.OpPrepareStatement
	switch keyMode {
	case KeyModeByID:
		opcode = protocol.OpPrepareStatementKeyIds
	case KeyModeByName:
		opcode = protocol.OpPrepareStatementKeyNames
	}

	dec, err := sess.Exchange(opcode, func(enc *codec.Encoder) error {
		if err := enc.Value(types.Str(sql)); err != nil {
			return err
		}
		if keyMode == KeyModeNone {
			return nil
		}
		if err := enc.Value(types.Int(int64(len(keys)))); err != nil {
			return err
		}
		for _, k := range keys {
			if err := enc.Value(types.Str(k)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	handle, err := readHandle(dec)
	if err != nil {
		return nil, err
	}
	paramCountVal, err := dec.Value()
	if err != nil || paramCountVal.Kind != types.KindInt {
		return nil, protocol.NewProtocolError("prepare response missing a parameter count")
	}
	return &Statement{sess: sess, handle: handle, paramCount: int(paramCountVal.Int), keyMode: keyMode}, nil
}

// Close sends CloseStatement. Closing a statement closes its result sets
// server-side; this only marks the local ResultSet closed to match, it
// does not additionally send CloseResultSet.
func (s *Statement) Close() error {
	if s.closed {
		return nil
	}
	_, err := s.sess.Exchange(protocol.OpCloseStatement, func(enc *codec.Encoder) error {
		return enc.Value(types.Int(int64(s.handle)))
	})
	s.closed = true
	if s.resultSet != nil {
		s.resultSet.closed = true
	}
	return err
}

// ExecuteResult is the decoded shape of an Execute/ExecuteQuery/
// ExecutePreparedStatement response: the field after the zero status
// indicates whether it carries a result set, an update count, or both.
// This package represents that as an always-present update count (-1
// when none applies) followed by an optional result-set handle.
type ExecuteResult struct {
	UpdateCount int64
	ResultSet   *ResultSet // nil if the execute produced no result set
}

// Execute runs sql directly (no prepare) via the Execute opcode.
func (s *Statement) Execute(sql string) (ExecuteResult, error) {
	return s.execute(protocol.OpExecute, func(enc *codec.Encoder) error {
		if err := enc.Value(types.Int(int64(s.handle))); err != nil {
			return err
		}
		return enc.Value(types.Str(sql))
	})
}

// ExecuteQuery runs sql and expects a result set back via ExecuteQuery.
func (s *Statement) ExecuteQuery(sql string) (*ResultSet, error) {
	res, err := s.execute(protocol.OpExecuteQuery, func(enc *codec.Encoder) error {
		if err := enc.Value(types.Int(int64(s.handle))); err != nil {
			return err
		}
		return enc.Value(types.Str(sql))
	})
	if err != nil {
		return nil, err
	}
	if res.ResultSet == nil {
		return nil, protocol.NewProtocolError("ExecuteQuery response carried no result set")
	}
	return res.ResultSet, nil
}

// ExecutePrepared runs a prepared statement with the given bind
// parameters via ExecutePreparedStatement, or ExecutePreparedQuery when
// expectResultSet is true.
func (s *Statement) ExecutePrepared(params []types.Value, expectResultSet bool) (ExecuteResult, error) {
	if len(params) != s.paramCount {
		return ExecuteResult{}, protocol.NewInterfaceError("statement expects %d parameters, got %d", s.paramCount, len(params))
	}
	opcode := protocol.OpExecutePreparedStatement
	if expectResultSet {
		opcode = protocol.OpExecutePreparedQuery
	}
	return s.execute(opcode, func(enc *codec.Encoder) error {
		if err := enc.Value(types.Int(int64(s.handle))); err != nil {
			return err
		}
		if err := enc.Value(types.Int(int64(len(params)))); err != nil {
			return err
		}
		for _, p := range params {
			if err := enc.Value(p); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Statement) execute(opcode protocol.Opcode, write protocol.Writer) (ExecuteResult, error) {
	dec, err := s.sess.Exchange(opcode, write)
	if err != nil {
		return ExecuteResult{}, err
	}

	updateVal, err := dec.Value()
	if err != nil || updateVal.Kind != types.KindInt {
		return ExecuteResult{}, protocol.NewProtocolError("execute response missing an update count")
	}
	hasRSVal, err := dec.Value()
	if err != nil || hasRSVal.Kind != types.KindBool {
		return ExecuteResult{}, protocol.NewProtocolError("execute response missing a result-set flag")
	}

	result := ExecuteResult{UpdateCount: updateVal.Int}
	if hasRSVal.Bool {
		handle, err := readHandle(dec)
		if err != nil {
			return ExecuteResult{}, err
		}
		rs := newResultSet(s.sess, handle)
		s.resultSet = rs
		result.ResultSet = rs
	}
	return result, nil
}

// BatchOutcome is one row's result from a batch execution. A -3 update
// count is surfaced as Failed with the per-row error preserved, rather
// than aborting the whole batch, so partial success stays observable.
type BatchOutcome struct {
	UpdateCount  int64
	Failed       bool
	ErrorCode    int
	ErrorMessage string
}

const batchRowFailed = -3

// ExecuteBatch ships N SQL strings via ExecuteBatchStatement and returns N
// outcomes.
func (s *Statement) ExecuteBatch(sqls []string) ([]BatchOutcome, error) {
	dec, err := s.sess.Exchange(protocol.OpExecuteBatchStatement, func(enc *codec.Encoder) error {
		if err := enc.Value(types.Int(int64(s.handle))); err != nil {
			return err
		}
		if err := enc.Value(types.Int(int64(len(sqls)))); err != nil {
			return err
		}
		for _, sql := range sqls {
			if err := enc.Value(types.Str(sql)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return readBatchOutcomes(dec)
}

// ExecuteBatchPrepared ships one parameter tuple per batch row via
// ExecuteBatchPreparedStatement.
func (s *Statement) ExecuteBatchPrepared(rows [][]types.Value) ([]BatchOutcome, error) {
	for i, row := range rows {
		if len(row) != s.paramCount {
			return nil, protocol.NewInterfaceError("batch row %d has %d parameters, statement expects %d", i, len(row), s.paramCount)
		}
	}
	dec, err := s.sess.Exchange(protocol.OpExecuteBatchPreparedStatement, func(enc *codec.Encoder) error {
		if err := enc.Value(types.Int(int64(s.handle))); err != nil {
			return err
		}
		if err := enc.Value(types.Int(int64(len(rows)))); err != nil {
			return err
		}
		for _, row := range rows {
			for _, p := range row {
				if err := enc.Value(p); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return readBatchOutcomes(dec)
}

func readBatchOutcomes(dec *codec.Decoder) ([]BatchOutcome, error) {
	countVal, err := dec.Value()
	if err != nil || countVal.Kind != types.KindInt {
		return nil, protocol.NewProtocolError("batch response missing a row count")
	}
	outcomes := make([]BatchOutcome, 0, countVal.Int)
	for i := int64(0); i < countVal.Int; i++ {
		ucVal, err := dec.Value()
		if err != nil || ucVal.Kind != types.KindInt {
			return nil, protocol.NewProtocolError("batch response missing row %d's update count", i)
		}
		if ucVal.Int != batchRowFailed {
			outcomes = append(outcomes, BatchOutcome{UpdateCount: ucVal.Int})
			continue
		}
		codeVal, err := dec.Value()
		if err != nil || codeVal.Kind != types.KindInt {
			return nil, protocol.NewProtocolError("failed batch row %d missing an error code", i)
		}
		msgVal, err := dec.Value()
		if err != nil || msgVal.Kind != types.KindString {
			return nil, protocol.NewProtocolError("failed batch row %d missing an error message", i)
		}
		outcomes = append(outcomes, BatchOutcome{
			UpdateCount:  batchRowFailed,
			Failed:       true,
			ErrorCode:    int(codeVal.Int),
			ErrorMessage: msgVal.Str,
		})
	}
	return outcomes, nil
}

// GetGeneratedKeys retrieves the generated-keys result set a prior execute
// produced, when the statement was prepared with KeyModeByID or
// KeyModeByName.
func (s *Statement) GetGeneratedKeys() (*ResultSet, error) {
	dec, err := s.sess.Exchange(protocol.OpGetGeneratedKeys, func(enc *codec.Encoder) error {
		return enc.Value(types.Int(int64(s.handle)))
	})
	if err != nil {
		return nil, err
	}
	handle, err := readHandle(dec)
	if err != nil {
		return nil, err
	}
	return newResultSet(s.sess, handle), nil
}

func readHandle(dec *codec.Decoder) (uint32, error) {
	v, err := dec.Value()
	if err != nil || v.Kind != types.KindInt {
		return 0, protocol.NewProtocolError("response missing a handle: %v", err)
	}
	if v.Int < 0 || v.Int > int64(^uint32(0)) {
		return 0, protocol.NewProtocolError("handle %d out of range", v.Int)
	}
	return uint32(v.Int), nil
}
