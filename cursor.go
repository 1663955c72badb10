package nuodb

import (
	"github.com/nuodb/go-nuodb/internal/protocol"
	"github.com/nuodb/go-nuodb/internal/statement"
	"github.com/nuodb/go-nuodb/internal/types"
)

// Cursor is the PEP-249-like per-statement facade: execute/executemany,
// fetchone/fetchmany/fetchall, arraysize, description, and rowcount,
// built on top of internal/statement's handle and result-set primitives.
type Cursor struct {
	conn *Connection

	stmt *statement.Statement
	rs   *statement.ResultSet

	arraySize int
	rowCount  int64
	closed    bool
}

func newCursor(conn *Connection) *Cursor {
	return &Cursor{conn: conn, arraySize: 1, rowCount: -1}
}

// ArraySize returns the number of rows FetchMany(0) fetches by default.
func (cur *Cursor) ArraySize() int { return cur.arraySize }

// SetArraySize changes FetchMany's default batch size. Values <= 0 are
// ignored, matching PEP-249's arraysize semantics.
func (cur *Cursor) SetArraySize(n int) {
	if n > 0 {
		cur.arraySize = n
	}
}

// RowCount returns the update count of the last Execute, or -1 if unknown
// (no execute has run yet, or the last execute produced a result set).
func (cur *Cursor) RowCount() int64 { return cur.rowCount }

// Description returns the column metadata of the cursor's current result
// set, or nil if the last execute produced none.
func (cur *Cursor) Description() ([]statement.ColumnMeta, error) {
	if cur.rs == nil {
		return nil, nil
	}
	return cur.rs.Columns()
}

func (cur *Cursor) checkOpen() error {
	if cur.closed {
		return protocol.NewInterfaceError("cursor is closed")
	}
	return nil
}

// Execute runs sql. A nil params runs it directly (CreateStatement +
// Execute); non-nil params prepares it first and binds params
// positionally.
func (cur *Cursor) Execute(sql string, params []types.Value) error {
	if err := cur.checkOpen(); err != nil {
		return err
	}
	cur.rs = nil
	cur.rowCount = -1

	if params == nil {
		stmt, err := cur.conn.createStatement()
		if err != nil {
			return err
		}
		cur.stmt = stmt
		result, err := stmt.Execute(sql)
		if err != nil {
			return err
		}
		cur.applyExecuteResult(result)
		cur.conn.markExecuted()
		return nil
	}

	stmt, err := cur.conn.prepareStatement(sql)
	if err != nil {
		return err
	}
	cur.stmt = stmt
	result, err := stmt.ExecutePrepared(params, false)
	if err != nil {
		return err
	}
	cur.applyExecuteResult(result)
	cur.conn.markExecuted()
	return nil
}

// ExecuteMany prepares sql once and runs it over each parameter row via a
// single batch opcode, then commits immediately if auto-commit is on.
func (cur *Cursor) ExecuteMany(sql string, paramRows [][]types.Value) error {
	if err := cur.checkOpen(); err != nil {
		return err
	}
	cur.rs = nil

	stmt, err := cur.conn.prepareStatement(sql)
	if err != nil {
		return err
	}
	cur.stmt = stmt

	outcomes, err := stmt.ExecuteBatchPrepared(paramRows)
	if err != nil {
		return err
	}
	var total int64
	for _, o := range outcomes {
		if !o.Failed {
			total += o.UpdateCount
		}
	}
	cur.rowCount = total

	return cur.conn.commitAfterBatch()
}

func (cur *Cursor) applyExecuteResult(result statement.ExecuteResult) {
	if cur.rs != nil && cur.conn.metrics != nil {
		cur.conn.metrics.ResultSetClosed()
	}
	cur.rs = result.ResultSet
	if result.ResultSet == nil {
		cur.rowCount = result.UpdateCount
		return
	}
	cur.rowCount = -1
	if cur.conn.metrics != nil {
		cur.conn.metrics.ResultSetOpened()
	}
}

// FetchOne returns the next row, or nil once the result set is exhausted.
func (cur *Cursor) FetchOne() ([]types.Value, error) {
	if err := cur.checkOpen(); err != nil {
		return nil, err
	}
	if cur.rs == nil {
		return nil, protocol.NewInterfaceError("no result set to fetch from")
	}
	row, ok, err := cur.rs.Next()
	if err != nil || !ok {
		return nil, err
	}
	return row, nil
}

// FetchMany returns up to n rows, or ArraySize rows when n <= 0.
func (cur *Cursor) FetchMany(n int) ([][]types.Value, error) {
	if n <= 0 {
		n = cur.arraySize
	}
	rows := make([][]types.Value, 0, n)
	for i := 0; i < n; i++ {
		row, err := cur.FetchOne()
		if err != nil {
			return rows, err
		}
		if row == nil {
			break
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// FetchAll drains the remainder of the current result set.
func (cur *Cursor) FetchAll() ([][]types.Value, error) {
	var rows [][]types.Value
	for {
		row, err := cur.FetchOne()
		if err != nil {
			return rows, err
		}
		if row == nil {
			return rows, nil
		}
		rows = append(rows, row)
	}
}

// Close closes the cursor's statement (and cascades to any open result
// set server-side). Safe to call more than once.
func (cur *Cursor) Close() error {
	if cur.closed {
		return nil
	}
	cur.closed = true
	if cur.rs != nil && cur.conn.metrics != nil {
		cur.conn.metrics.ResultSetClosed()
		cur.rs = nil
	}
	if cur.stmt == nil {
		return nil
	}
	err := cur.stmt.Close()
	cur.conn.untrackStatement(cur.stmt)
	return err
}
