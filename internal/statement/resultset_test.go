package statement

import (
	"testing"

	"github.com/nuodb/go-nuodb/internal/codec"
	"github.com/nuodb/go-nuodb/internal/types"
)

// TestResultSetStreamsMultipleWindows verifies that with a scripted server
// emitting N rows over M Next windows, fetching all rows returns exactly N
// rows in order and CloseResultSet is sent exactly once.
func TestResultSetStreamsMultipleWindows(t *testing.T) {
	sess, server := newPipeSession(t)

	const totalRows = 5
	closeCount := 0
	done := make(chan struct{})
	go func() {
		defer close(done)

		readOpcodeAndArgs(t, server) // CreateStatement
		writeResponse(t, server, types.Int(1))

		readOpcodeAndArgs(t, server) // ExecuteQuery
		writeResponse(t, server, types.Int(-1), types.Bool(true), types.Int(3))

		readOpcodeAndArgs(t, server) // GetMetaData
		writeResponse(t, server,
			types.Int(1),
			types.Str(""), types.Str(""), types.Str(""), types.Str("n"), types.Str("n"), types.Str(""), types.Str("INT"),
			types.Int(4), types.Int(10), types.Int(0), types.Int(0), types.Int(0),
		)

		// Window 1: rows 1-3, not yet final.
		readOpcodeAndArgs(t, server)
		writeWindow(t, server, []int64{1, 2, 3}, false)

		// Window 2: rows 4-5, final.
		readOpcodeAndArgs(t, server)
		writeWindow(t, server, []int64{4, 5}, true)

		readOpcodeAndArgs(t, server) // CloseResultSet
		closeCount++
		writeResponse(t, server)
	}()

	stmt, err := Create(sess)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	rs, err := stmt.ExecuteQuery("select * from t")
	if err != nil {
		t.Fatalf("ExecuteQuery: %v", err)
	}

	var got []int64
	for {
		row, ok, err := rs.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, row[0].Int)
	}

	if len(got) != totalRows {
		t.Fatalf("got %d rows want %d: %v", len(got), totalRows, got)
	}
	for i, v := range got {
		if v != int64(i+1) {
			t.Fatalf("got rows %v, want 1..5 in order", got)
		}
	}

	if err := rs.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := rs.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got %v", err)
	}
	<-done
	if closeCount != 1 {
		t.Fatalf("got %d CloseResultSet frames want 1", closeCount)
	}
}

func writeWindow(t *testing.T, server interface {
	WriteFrame([]byte) error
}, values []int64, final bool) {
	t.Helper()
	enc := codec.NewEncoder()
	_ = enc.Value(types.Int(0))
	for _, v := range values {
		_ = enc.Value(types.Bool(true))
		_ = enc.Value(types.Int(v))
	}
	_ = enc.Value(types.Bool(false))
	_ = enc.Value(types.Bool(final))
	if err := server.WriteFrame(enc.Bytes()); err != nil {
		t.Fatalf("server: WriteFrame: %v", err)
	}
}
