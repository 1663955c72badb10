package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rc4"
	"fmt"
)

// Name identifies a negotiated stream cipher, as advertised in the
// OpenDatabase cipher list.
type Name string

const (
	RC4 Name = "RC4"
	AES256CTR Name = "AES-256-CTR"
	NoCipher Name = "None"
)

// StreamPair holds the independent read/write cipher.Stream instances for
// one direction pair of a connection. Each direction keeps its own
// counter, applied independently per direction.
type StreamPair struct {
	Encrypt cipher.Stream
	Decrypt cipher.Stream
}

// NewStreamPair builds the StreamPair for the negotiated cipher from the
// 40-byte SRP session key K. RC4 is keyed directly from K; AES-256-CTR uses
// the first 32 bytes of K as key and the first 16 bytes of the *second*
// SHA-1 block (i.e. K[20:36]) as IV.
//
// Both client and server derive identical encrypt/decrypt streams from the
// same K, but a client's "encrypt" stream is the server's "decrypt" stream
// — NewStreamPair always returns the pair oriented for the caller described by
// asServer: when false (client), Encrypt is used for client→server bytes;
// when true (server-side test doubles), the orientation is swapped so a
// mock server in tests can exchange bytes with a real client end to end.
func NewStreamPair(name Name, key []byte, asServer bool) (*StreamPair, error) {
	switch name {
	case RC4:
		return newRC4Pair(key, asServer)
	case AES256CTR:
		return newAESCTRPair(key, asServer)
	case NoCipher:
		return &StreamPair{Encrypt: identityStream{}, Decrypt: identityStream{}}, nil
	default:
		return nil, fmt.Errorf("crypto: unsupported cipher %q", name)
	}
}

func newRC4Pair(key []byte, asServer bool) (*StreamPair, error) {
	if len(key) < 1 {
		return nil, fmt.Errorf("crypto: RC4 requires a non-empty key")
	}
	enc, err := rc4.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: keying RC4: %w", err)
	}
	dec, err := rc4.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: keying RC4: %w", err)
	}
	// RC4 is a symmetric keystream — the same keystream decrypts what it
	// encrypts, so "encrypt" and "decrypt" only need independent byte
	// counters (independent *rc4.Cipher instances), not different keys.
	if asServer {
		return &StreamPair{Encrypt: dec, Decrypt: enc}, nil
	}
	return &StreamPair{Encrypt: enc, Decrypt: dec}, nil
}

func newAESCTRPair(key []byte, asServer bool) (*StreamPair, error) {
	// K is the 40-byte SRP session key (two concatenated SHA-1 blocks).
	// AES key = first 32 bytes of K, IV = first 16 bytes of the *second*
	// hash block (K[20:36]) — the two overlap in bytes 20-31 because 40
	// bytes isn't enough for a disjoint 48-byte schedule; this is the wire
	// format, not a choice.
	if len(key) < 36 {
		return nil, fmt.Errorf("crypto: AES-256-CTR requires a 36-byte session key, got %d", len(key))
	}
	aesKey := key[:32]
	iv := key[20:36]

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: building AES cipher: %w", err)
	}
	enc := cipher.NewCTR(block, iv)
	dec := cipher.NewCTR(block, iv)
	if asServer {
		return &StreamPair{Encrypt: dec, Decrypt: enc}, nil
	}
	return &StreamPair{Encrypt: enc, Decrypt: dec}, nil
}

// identityStream is the no-op cipher.Stream used before a session key
// exists, during the plaintext phase of the handshake.
type identityStream struct{}

func (identityStream) XORKeyStream(dst, src []byte) {
	copy(dst, src)
}
