package session

import (
	"net"
	"testing"
	"time"

	"github.com/nuodb/go-nuodb/internal/codec"
	"github.com/nuodb/go-nuodb/internal/types"
	"github.com/nuodb/go-nuodb/internal/wire"
)

func TestWatchdogBreaksSessionAfterThreshold(t *testing.T) {
	clientRaw, serverRaw := net.Pipe()
	defer clientRaw.Close()
	defer serverRaw.Close()

	server := wire.NewConn(serverRaw)
	sess := New(wire.NewConn(clientRaw))

	const threshold = 3
	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		for i := 0; i < threshold; i++ {
			serverReadOpcode(t, server)
			enc := codec.NewEncoder()
			_ = enc.Value(types.Int(1))
			_ = enc.Value(types.Str("ping rejected"))
			_ = enc.Value(types.Str("08000"))
			if err := server.WriteFrame(enc.Bytes()); err != nil {
				t.Errorf("server: WriteFrame: %v", err)
				return
			}
		}
	}()

	wd := NewWatchdog(sess, 10*time.Millisecond, threshold)
	wd.Start()
	<-serverDone
	// Give the watchdog's own goroutine a moment to process the last
	// response and apply the threshold.
	deadline := time.Now().Add(time.Second)
	for sess.State() != StateBroken && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	wd.Stop()

	if sess.State() != StateBroken {
		t.Fatalf("got state %v want %v after %d consecutive failures", sess.State(), StateBroken, threshold)
	}
	if wd.LastError() == nil {
		t.Fatal("expected LastError to be set after a failing ping")
	}
}

func TestWatchdogResetsFailureCountOnSuccess(t *testing.T) {
	clientRaw, serverRaw := net.Pipe()
	defer clientRaw.Close()
	defer serverRaw.Close()

	server := wire.NewConn(serverRaw)
	sess := New(wire.NewConn(clientRaw))

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		// Failures and successes alternate, so with a threshold of 2 the
		// failure count never reaches the threshold.
		for i := 0; i < 4; i++ {
			serverReadOpcode(t, server)
			enc := codec.NewEncoder()
			if i%2 == 0 {
				_ = enc.Value(types.Int(1))
				_ = enc.Value(types.Str("ping rejected"))
				_ = enc.Value(types.Str("08000"))
			} else {
				_ = enc.Value(types.Int(0))
			}
			if err := server.WriteFrame(enc.Bytes()); err != nil {
				t.Errorf("server: WriteFrame: %v", err)
				return
			}
		}
	}()

	wd := NewWatchdog(sess, 10*time.Millisecond, 2)
	wd.Start()
	<-serverDone
	wd.Stop()

	if sess.State() != StateAuthenticated {
		t.Fatalf("got state %v want %v; a success between failures must reset the count", sess.State(), StateAuthenticated)
	}
	if wd.LastError() != nil {
		t.Fatalf("expected no LastError after a final successful ping, got %v", wd.LastError())
	}
}
