package statement

import (
	"net"
	"testing"

	"github.com/nuodb/go-nuodb/internal/codec"
	"github.com/nuodb/go-nuodb/internal/session"
	"github.com/nuodb/go-nuodb/internal/types"
	"github.com/nuodb/go-nuodb/internal/wire"
)

func newPipeSession(t *testing.T) (*session.Session, *wire.Conn) {
	t.Helper()
	clientRaw, serverRaw := net.Pipe()
	t.Cleanup(func() {
		clientRaw.Close()
		serverRaw.Close()
	})
	return session.New(wire.NewConn(clientRaw)), wire.NewConn(serverRaw)
}

func readOpcodeAndArgs(t *testing.T, server *wire.Conn) *codec.Decoder {
	t.Helper()
	body, err := server.ReadFrame()
	if err != nil {
		t.Fatalf("server: ReadFrame: %v", err)
	}
	dec := codec.NewDecoder(body)
	opVal, err := dec.Value() // opcode, discarded by value here
	if err != nil || opVal.Kind != types.KindInt {
		t.Fatalf("server: reading opcode: %v", err)
	}
	return dec
}

func writeResponse(t *testing.T, server *wire.Conn, values ...types.Value) {
	t.Helper()
	enc := codec.NewEncoder()
	_ = enc.Value(types.Int(0)) // status
	for _, v := range values {
		_ = enc.Value(v)
	}
	if err := server.WriteFrame(enc.Bytes()); err != nil {
		t.Fatalf("server: WriteFrame: %v", err)
	}
}

// TestCreateExecuteQueryFetchClose drives a full create/execute/fetch/close
// cycle: Execute "select 1" yields result-set handle 7 with one INT
// column, the first Next returns (1,), the next Next returns no row, and
// CloseResultSet(7) is sent on close.
func TestCreateExecuteQueryFetchClose(t *testing.T) {
	sess, server := newPipeSession(t)

	done := make(chan struct{})
	go func() {
		defer close(done)

		readOpcodeAndArgs(t, server) // CreateStatement
		writeResponse(t, server, types.Int(1))

		dec := readOpcodeAndArgs(t, server) // ExecuteQuery(handle, sql)
		handleVal, _ := dec.Value()
		if handleVal.Int != 1 {
			t.Errorf("got statement handle %v want 1", handleVal.Int)
		}
		sqlVal, _ := dec.Value()
		if sqlVal.Str != "select 1" {
			t.Errorf("got sql %q want %q", sqlVal.Str, "select 1")
		}
		writeResponse(t, server, types.Int(-1), types.Bool(true), types.Int(7))

		dec = readOpcodeAndArgs(t, server) // GetMetaData(7)
		rsHandleVal, _ := dec.Value()
		if rsHandleVal.Int != 7 {
			t.Errorf("got result-set handle %v want 7", rsHandleVal.Int)
		}
		writeResponse(t, server,
			types.Int(1), // one column
			types.Str("cat"), types.Str("schema"), types.Str("t"), types.Str("n"), types.Str("n"), types.Str("UTF8"), types.Str("INT"),
			types.Int(4), types.Int(10), types.Int(0), types.Int(0), types.Int(0),
		)

		dec = readOpcodeAndArgs(t, server) // Next(7), first window
		nextHandleVal, _ := dec.Value()
		if nextHandleVal.Int != 7 {
			t.Errorf("got Next handle %v want 7", nextHandleVal.Int)
		}
		enc := codec.NewEncoder()
		_ = enc.Value(types.Int(0))
		_ = enc.Value(types.Bool(true))
		_ = enc.Value(types.Int(1))
		_ = enc.Value(types.Bool(false))
		_ = enc.Value(types.Bool(true)) // final: result set exhausted
		if err := server.WriteFrame(enc.Bytes()); err != nil {
			t.Fatalf("server: WriteFrame: %v", err)
		}

		dec = readOpcodeAndArgs(t, server) // CloseResultSet(7)
		closeHandleVal, _ := dec.Value()
		if closeHandleVal.Int != 7 {
			t.Errorf("got CloseResultSet handle %v want 7", closeHandleVal.Int)
		}
		writeResponse(t, server)
	}()

	stmt, err := Create(sess)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	rs, err := stmt.ExecuteQuery("select 1")
	if err != nil {
		t.Fatalf("ExecuteQuery: %v", err)
	}
	if rs.Handle() != 7 {
		t.Fatalf("got result-set handle %d want 7", rs.Handle())
	}

	row, ok, err := rs.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !ok {
		t.Fatal("expected a row, got none")
	}
	if len(row) != 1 || row[0].Kind != types.KindInt || row[0].Int != 1 {
		t.Fatalf("got row %v want (1,)", row)
	}

	_, ok, err = rs.Next()
	if err != nil {
		t.Fatalf("second Next: %v", err)
	}
	if ok {
		t.Fatal("expected the result set to be exhausted")
	}

	if err := rs.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	<-done
}

// TestPrepareExecuteBatch drives a 2-parameter prepared insert executed
// over two rows, expecting one ExecuteBatchPreparedStatement with
// batch-count 2.
func TestPrepareExecuteBatch(t *testing.T) {
	sess, server := newPipeSession(t)

	done := make(chan struct{})
	go func() {
		defer close(done)

		dec := readOpcodeAndArgs(t, server) // PrepareStatement
		sqlVal, _ := dec.Value()
		if sqlVal.Str != "insert into t values (?,?)" {
			t.Errorf("got sql %q", sqlVal.Str)
		}
		writeResponse(t, server, types.Int(9), types.Int(2))

		dec = readOpcodeAndArgs(t, server) // ExecuteBatchPreparedStatement
		handleVal, _ := dec.Value()
		if handleVal.Int != 9 {
			t.Errorf("got handle %v want 9", handleVal.Int)
		}
		countVal, _ := dec.Value()
		if countVal.Int != 2 {
			t.Errorf("got batch count %v want 2", countVal.Int)
		}
		row1a, _ := dec.Value()
		row1b, _ := dec.Value()
		row2a, _ := dec.Value()
		row2b, _ := dec.Value()
		if row1a.Int != 1 || row1b.Str != "a" || row2a.Int != 2 || row2b.Str != "b" {
			t.Errorf("unexpected batch parameters: %v %v %v %v", row1a, row1b, row2a, row2b)
		}
		writeResponse(t, server, types.Int(2), types.Int(1), types.Int(1))
	}()

	stmt, err := Prepare(sess, "insert into t values (?,?)", KeyModeNone, nil)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if stmt.ParamCount() != 2 {
		t.Fatalf("got param count %d want 2", stmt.ParamCount())
	}

	outcomes, err := stmt.ExecuteBatchPrepared([][]types.Value{
		{types.Int(1), types.Str("a")},
		{types.Int(2), types.Str("b")},
	})
	if err != nil {
		t.Fatalf("ExecuteBatchPrepared: %v", err)
	}
	if len(outcomes) != 2 || outcomes[0].UpdateCount != 1 || outcomes[1].UpdateCount != 1 {
		t.Fatalf("got outcomes %+v", outcomes)
	}
	<-done
}

func TestExecuteBatchPreparedRejectsWrongParamCount(t *testing.T) {
	sess, server := newPipeSession(t)
	done := make(chan struct{})
	go func() {
		defer close(done)
		readOpcodeAndArgs(t, server)
		writeResponse(t, server, types.Int(1), types.Int(1))
	}()

	stmt, err := Prepare(sess, "insert into t values (?)", KeyModeNone, nil)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	<-done

	if _, err := stmt.ExecuteBatchPrepared([][]types.Value{{types.Int(1), types.Int(2)}}); err == nil {
		t.Fatal("expected a parameter-count mismatch error")
	}
}

func TestExecuteBatchSurfacesPerRowFailure(t *testing.T) {
	sess, server := newPipeSession(t)
	done := make(chan struct{})
	go func() {
		defer close(done)
		readOpcodeAndArgs(t, server) // CreateStatement
		writeResponse(t, server, types.Int(1))

		readOpcodeAndArgs(t, server) // ExecuteBatchStatement
		writeResponse(t, server,
			types.Int(2),
			types.Int(1),
			types.Int(-3), types.Int(23505), types.Str("duplicate key"),
		)
	}()

	stmt, err := Create(sess)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	outcomes, err := stmt.ExecuteBatch([]string{"insert into t values (1)", "insert into t values (1)"})
	if err != nil {
		t.Fatalf("ExecuteBatch: %v", err)
	}
	<-done

	if len(outcomes) != 2 {
		t.Fatalf("got %d outcomes want 2", len(outcomes))
	}
	if outcomes[0].Failed {
		t.Fatalf("row 0 should have succeeded: %+v", outcomes[0])
	}
	if !outcomes[1].Failed || outcomes[1].ErrorCode != 23505 || outcomes[1].ErrorMessage != "duplicate key" {
		t.Fatalf("got row 1 outcome %+v", outcomes[1])
	}
}
