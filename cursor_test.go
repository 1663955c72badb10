package nuodb

import (
	"testing"

	"github.com/nuodb/go-nuodb/internal/codec"
	"github.com/nuodb/go-nuodb/internal/types"
)

// TestCursorExecuteQueryFetchAll drives a no-params Execute that carries a
// result set through to FetchAll.
func TestCursorExecuteQueryFetchAll(t *testing.T) {
	conn, server := newPipeConnection(t)

	done := make(chan struct{})
	go func() {
		defer close(done)

		readOpcode(t, server) // CreateStatement
		writeOK(t, server, types.Int(1))

		readOpcode(t, server) // Execute(1, "select * from t")
		writeOK(t, server, types.Int(-1), types.Bool(true), types.Int(7))

		readOpcode(t, server) // GetMetaData(7)
		writeOK(t, server,
			types.Int(1),
			types.Str(""), types.Str(""), types.Str(""), types.Str("n"), types.Str("n"), types.Str(""), types.Str("INT"),
			types.Int(4), types.Int(10), types.Int(0), types.Int(0), types.Int(0),
		)

		readOpcode(t, server) // Next(7)
		enc := codec.NewEncoder()
		_ = enc.Value(types.Int(0))
		_ = enc.Value(types.Bool(true))
		_ = enc.Value(types.Int(1))
		_ = enc.Value(types.Bool(true))
		_ = enc.Value(types.Int(2))
		_ = enc.Value(types.Bool(false))
		_ = enc.Value(types.Bool(true))
		if err := server.WriteFrame(enc.Bytes()); err != nil {
			t.Fatalf("server: WriteFrame: %v", err)
		}
	}()

	cur := conn.Cursor()
	if err := cur.Execute("select * from t", nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	cols, err := cur.Description()
	if err != nil {
		t.Fatalf("Description: %v", err)
	}
	if len(cols) != 1 || cols[0].TypeName != "INT" {
		t.Fatalf("got columns %+v", cols)
	}

	rows, err := cur.FetchAll()
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(rows) != 2 || rows[0][0].Int != 1 || rows[1][0].Int != 2 {
		t.Fatalf("got rows %v", rows)
	}
	<-done
}

// TestCursorExecuteManyCommitsImmediately drives executemany end to end
// through the Cursor facade: executemany over a prepared 2-parameter
// insert, followed immediately by a commit since auto-commit defaults to
// on.
func TestCursorExecuteManyCommitsImmediately(t *testing.T) {
	conn, server := newPipeConnection(t)

	done := make(chan struct{})
	go func() {
		defer close(done)

		dec := readOpcode(t, server) // PrepareStatement
		sqlVal, _ := dec.Value()
		if sqlVal.Str != "insert into t values (?,?)" {
			t.Errorf("got sql %q", sqlVal.Str)
		}
		writeOK(t, server, types.Int(9), types.Int(2))

		readOpcode(t, server) // ExecuteBatchPreparedStatement
		writeOK(t, server, types.Int(2), types.Int(1), types.Int(1))

		readOpcode(t, server) // CommitTransaction, since auto-commit is on
		writeOK(t, server, types.Int(1), types.Int(0), types.Int(1))
	}()

	cur := conn.Cursor()
	err := cur.ExecuteMany("insert into t values (?,?)", [][]types.Value{
		{types.Int(1), types.Str("a")},
		{types.Int(2), types.Str("b")},
	})
	if err != nil {
		t.Fatalf("ExecuteMany: %v", err)
	}
	if cur.RowCount() != 2 {
		t.Fatalf("got row count %d want 2", cur.RowCount())
	}
	<-done

	if _, _, _, ok := conn.LastTransaction(); !ok {
		t.Fatal("ExecuteMany should have committed")
	}
}

// TestCursorExecuteManyNoCommitWhenAutoCommitOff checks the complementary
// case: with auto-commit off, executemany does not send a commit.
func TestCursorExecuteManyNoCommitWhenAutoCommitOff(t *testing.T) {
	conn, server := newPipeConnection(t)
	conn.autoCommit = false

	done := make(chan struct{})
	go func() {
		defer close(done)
		readOpcode(t, server) // PrepareStatement
		writeOK(t, server, types.Int(9), types.Int(1))

		dec := readOpcode(t, server) // ExecuteBatchPreparedStatement
		if dec.Done() {
			t.Errorf("expected batch arguments")
		}
		writeOK(t, server, types.Int(1), types.Int(1))
	}()

	cur := conn.Cursor()
	if err := cur.ExecuteMany("insert into t values (?)", [][]types.Value{{types.Int(1)}}); err != nil {
		t.Fatalf("ExecuteMany: %v", err)
	}
	<-done

	if _, _, _, ok := conn.LastTransaction(); ok {
		t.Fatal("auto-commit is off, ExecuteMany should not have committed")
	}
}

// TestCursorFetchOneWithoutExecuteIsInterfaceError checks that fetching
// before any execute fails fast rather than blocking on the wire.
func TestCursorFetchOneWithoutExecuteIsInterfaceError(t *testing.T) {
	conn, _ := newPipeConnection(t)
	cur := conn.Cursor()
	if _, err := cur.FetchOne(); err == nil {
		t.Fatal("expected an error fetching with no active result set")
	}
}

// TestCursorCloseClosesStatement checks Close cascades to the underlying
// statement and is idempotent.
func TestCursorCloseClosesStatement(t *testing.T) {
	conn, server := newPipeConnection(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		readOpcode(t, server) // CreateStatement
		writeOK(t, server, types.Int(1))

		readOpcode(t, server) // Execute
		writeOK(t, server, types.Int(0), types.Bool(false))

		readOpcode(t, server) // CloseStatement(1)
		writeOK(t, server)
	}()

	cur := conn.Cursor()
	if err := cur.Execute("delete from t", nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if err := cur.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := cur.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got %v", err)
	}
	<-done
}
