package wire

import (
	"bytes"
	"net"
	"testing"
	"time"

	nuocrypto "github.com/nuodb/go-nuodb/internal/crypto"
)

// TestFrameSymmetry checks that for any sequence of bytes produced by the
// encoder, reading the enciphered frame back through the peer's Conn
// reproduces the original bytes exactly.
func TestFrameSymmetry(t *testing.T) {
	clientNetConn, serverNetConn := net.Pipe()
	defer clientNetConn.Close()
	defer serverNetConn.Close()

	key := bytes.Repeat([]byte{0x5a}, 40)
	clientPair, err := nuocrypto.NewStreamPair(nuocrypto.AES256CTR, key, false)
	if err != nil {
		t.Fatalf("client StreamPair: %v", err)
	}
	serverPair, err := nuocrypto.NewStreamPair(nuocrypto.AES256CTR, key, true)
	if err != nil {
		t.Fatalf("server StreamPair: %v", err)
	}

	client := NewConn(clientNetConn)
	client.InstallCipher(clientPair)
	server := NewConn(serverNetConn)
	server.InstallCipher(serverPair)

	messages := [][]byte{
		[]byte("hello"),
		{},
		bytes.Repeat([]byte{0xff}, 5000),
		[]byte("CreateStatement"),
	}

	done := make(chan error, 1)
	go func() {
		for _, m := range messages {
			if err := client.WriteFrame(m); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	for _, want := range messages {
		got, err := server.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("frame mismatch: got %q want %q", got, want)
		}
	}

	if err := <-done; err != nil {
		t.Fatalf("writer goroutine: %v", err)
	}
}

func TestReadFrameOnClosedSocketIsConnectionLost(t *testing.T) {
	clientNetConn, serverNetConn := net.Pipe()
	server := NewConn(serverNetConn)

	clientNetConn.Close()

	_, err := server.ReadFrame()
	if err == nil {
		t.Fatal("expected an error reading from a closed peer")
	}
}

func TestWriteFrameRespectsDeadline(t *testing.T) {
	clientNetConn, serverNetConn := net.Pipe()
	defer clientNetConn.Close()
	defer serverNetConn.Close()

	client := NewConn(clientNetConn)
	if err := client.SetDeadline(time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("SetDeadline: %v", err)
	}

	if err := client.WriteFrame([]byte("too late")); err == nil {
		t.Fatal("expected a timeout error from an already-expired deadline")
	}
}

// TestOnEncryptOnDecryptHooksFire checks that the metrics byte-count
// callbacks see every frame, once per side.
func TestOnEncryptOnDecryptHooksFire(t *testing.T) {
	clientNetConn, serverNetConn := net.Pipe()
	defer clientNetConn.Close()
	defer serverNetConn.Close()

	client := NewConn(clientNetConn)
	server := NewConn(serverNetConn)

	var encrypted, decrypted int
	client.OnEncrypt = func(n int) { encrypted += n }
	server.OnDecrypt = func(n int) { decrypted += n }

	done := make(chan error, 1)
	go func() { done <- client.WriteFrame([]byte("payload")) }()

	if _, err := server.ReadFrame(); err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	if encrypted == 0 {
		t.Fatal("OnEncrypt was never called")
	}
	if decrypted == 0 {
		t.Fatal("OnDecrypt was never called")
	}
}
