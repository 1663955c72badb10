// Package wire implements the length-prefixed, enciphered duplex byte
// stream every NuoDB protocol message travels over. Once a
// session key is installed, every byte in both directions — including the
// 4-byte length prefix — passes through the active cipher.Stream.
package wire

import (
	"crypto/cipher"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	nuocrypto "github.com/nuodb/go-nuodb/internal/crypto"
)

// maxFrameLen guards against a corrupt or hostile length prefix causing an
// unbounded allocation; NuoDB frames carry at most one result-set window
// plus metadata and never approach this size in practice.
const maxFrameLen = 64 << 20 // 64 MiB

// ErrConnectionLost is returned when the socket closes or errors mid-frame.
var ErrConnectionLost = fmt.Errorf("wire: connection lost")

// Conn wraps a net.Conn with the cipher state for one direction pair. It is
// owned exclusively by a single Connection — no process-wide cipher state
// is ever shared.
type Conn struct {
	mu   sync.Mutex // serializes writers; reads are only ever issued by the single owning goroutine
	conn net.Conn
	enc  cipher.Stream
	dec  cipher.Stream

	// OnEncrypt/OnDecrypt, when set, are called with the number of bytes
	// (including the 4-byte length prefix) passed through the send/receive
	// cipher on each frame, for metrics instrumentation above this package.
	OnEncrypt func(n int)
	OnDecrypt func(n int)
}

// NewConn wraps conn with the identity cipher — the plaintext phase of the
// handshake.
func NewConn(conn net.Conn) *Conn {
	identity, _ := nuocrypto.NewStreamPair(nuocrypto.NoCipher, nil, false)
	return &Conn{conn: conn, enc: identity.Encrypt, dec: identity.Decrypt}
}

// InstallCipher swaps in the negotiated stream cipher for both directions.
// Called exactly once, immediately after the SRP session key is derived.
// Bytes written or read afterward are enciphered; nothing written before
// this call can be retroactively protected, which is why the handshake
// never sends secrets before this point.
func (c *Conn) InstallCipher(pair *nuocrypto.StreamPair) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enc = pair.Encrypt
	c.dec = pair.Decrypt
}

// WriteFrame enciphers and sends one message: a 4-byte big-endian length
// (itself enciphered) followed by body.
func (c *Conn) WriteFrame(body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(body) > maxFrameLen {
		return fmt.Errorf("wire: frame body too large (%d bytes)", len(body))
	}

	out := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(out[:4], uint32(len(body)))
	copy(out[4:], body)

	enciphered := make([]byte, len(out))
	c.enc.XORKeyStream(enciphered, out)

	if _, err := c.conn.Write(enciphered); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	if c.OnEncrypt != nil {
		c.OnEncrypt(len(enciphered))
	}
	return nil
}

// ReadFrame reads and deciphers exactly one message, looping on short reads
// until the declared length is fully drained.
func (c *Conn) ReadFrame() ([]byte, error) {
	lenBuf := make([]byte, 4)
	if err := c.readFull(lenBuf); err != nil {
		return nil, err
	}

	plainLen := make([]byte, 4)
	c.dec.XORKeyStream(plainLen, lenBuf)
	n := binary.BigEndian.Uint32(plainLen)
	if n > maxFrameLen {
		return nil, fmt.Errorf("wire: frame length %d exceeds maximum", n)
	}

	body := make([]byte, n)
	if err := c.readFull(body); err != nil {
		return nil, err
	}

	plain := make([]byte, len(body))
	c.dec.XORKeyStream(plain, body)
	if c.OnDecrypt != nil {
		c.OnDecrypt(len(lenBuf) + len(body))
	}
	return plain, nil
}

func (c *Conn) readFull(buf []byte) error {
	_, err := io.ReadFull(c.conn, buf)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return fmt.Errorf("%w: %v", ErrConnectionLost, err)
		}
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	return nil
}

// SetDeadline propagates an I/O deadline to the underlying socket.
func (c *Conn) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

// Raw returns the underlying net.Conn, e.g. for Close or deadline/timeout
// configuration from the owning Connection.
func (c *Conn) Raw() net.Conn {
	return c.conn
}

// Close closes the underlying socket. Safe to call from any goroutine to
// unblock a concurrent ReadFrame/WriteFrame with ErrConnectionLost.
func (c *Conn) Close() error {
	return c.conn.Close()
}
