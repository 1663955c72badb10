package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// pbkdf2Iterations is the work factor for the local credential-blob KDF.
// This has no wire-protocol meaning — it only protects a passphrase the
// caller chose to encrypt credentials at rest with — so it is free to
// change between driver releases without breaking server interop.
const pbkdf2Iterations = 100_000

// DecryptCredentialBlob decrypts a locally-stored, AES-256-CBC-encrypted
// credential blob (typically a username/password pair the caller persisted
// alongside a connection profile instead of a cleartext password) using a
// key derived from passphrase via PBKDF2-HMAC-SHA256.
//
// This is unrelated to the SRP-6a wire handshake: it runs entirely on the
// client, before the TCP connection is even opened, so there is no bit-exact
// interop constraint and PBKDF2 is a legitimate, idiomatic choice (unlike in
// SessionKey, where the key-derivation formula is fixed by the server).
//
// blob must be salt(16) || iv(16) || ciphertext, ciphertext a multiple of
// the AES block size (PKCS#7 padded).
func DecryptCredentialBlob(blob []byte, passphrase string) ([]byte, error) {
	if len(blob) < 32 {
		return nil, fmt.Errorf("crypto: credential blob too short (%d bytes)", len(blob))
	}
	salt := blob[:16]
	iv := blob[16:32]
	ciphertext := blob[32:]
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("crypto: credential blob ciphertext is not a multiple of the AES block size")
	}

	key := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, 32, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: building AES cipher for credential blob: %w", err)
	}

	plaintext := make([]byte, len(ciphertext))
	cbc := cipher.NewCBCDecrypter(block, iv)
	cbc.CryptBlocks(plaintext, ciphertext)

	return unpadPKCS7(plaintext)
}

// EncryptCredentialBlob is the inverse of DecryptCredentialBlob, provided so
// callers can produce blobs for DecryptCredentialBlob without hand-rolling
// PKCS#7 padding or a KDF call themselves.
func EncryptCredentialBlob(plaintext []byte, passphrase string, salt, iv [16]byte) ([]byte, error) {
	key := pbkdf2.Key([]byte(passphrase), salt[:], pbkdf2Iterations, 32, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: building AES cipher for credential blob: %w", err)
	}

	padded := padPKCS7(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cbc := cipher.NewCBCEncrypter(block, iv[:])
	cbc.CryptBlocks(ciphertext, padded)

	out := make([]byte, 0, 32+len(ciphertext))
	out = append(out, salt[:]...)
	out = append(out, iv[:]...)
	out = append(out, ciphertext...)
	return out, nil
}

func padPKCS7(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func unpadPKCS7(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("crypto: empty plaintext after decrypt")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) || padLen > aes.BlockSize {
		return nil, fmt.Errorf("crypto: invalid PKCS#7 padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("crypto: invalid PKCS#7 padding")
		}
	}
	return data[:len(data)-padLen], nil
}
