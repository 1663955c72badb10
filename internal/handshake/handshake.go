// Package handshake performs the plaintext-to-enciphered session bootstrap:
// the clear-text Connect/greeting exchange, the OpenDatabase SRP key
// agreement, cipher installation, and the Authentication "Success!"
// verification. It is the only package that drives internal/wire before a
// cipher is installed.
package handshake

import (
	"bufio"
	"errors"
	"fmt"
	"math/big"
	"net"

	"github.com/nuodb/go-nuodb/internal/codec"
	"github.com/nuodb/go-nuodb/internal/crypto"
	"github.com/nuodb/go-nuodb/internal/types"
	"github.com/nuodb/go-nuodb/internal/wire"
)

// ClientProtocolVersion is the highest protocol version this driver speaks.
const ClientProtocolVersion = 11

// authenticationMask is the vendor-defined integer sent with the
// Authentication request. It is currently always 1.
const authenticationMask = 1

const successPlaintext = "Success!"

// ErrProtocol signals a handshake message that violates the documented
// wire shape (bad XML, wrong field count, unexpected tag).
var ErrProtocol = errors.New("handshake: protocol violation")

// ErrAuthFailed signals that the session keys disagreed, or the server
// rejected the connection, or no cipher could be agreed.
var ErrAuthFailed = errors.New("handshake: authentication failed")

// Config carries everything the handshake needs from the caller-facing
// connect surface.
type Config struct {
	DatabaseName     string
	User             string
	Password         string
	Schema           string
	Timezone         string
	ClientInfo       string
	RemoteIP         string
	CipherPreference []crypto.Name // strongest-first; defaults to {AES-256-CTR, RC4} if empty
}

// Result is everything the rest of the driver needs after a successful
// handshake: a ready-to-use enciphered wire.Conn and the protocol version
// the server agreed to speak.
type Result struct {
	Conn                  *wire.Conn
	ServerProtocolVersion int
	Cipher                crypto.Name
}

func defaultCipherPreference() []crypto.Name {
	return []crypto.Name{crypto.AES256CTR, crypto.RC4}
}

// Perform runs the full handshake over a freshly dialed net.Conn and
// returns a Result ready for internal/protocol to issue requests on, or an
// error classified as ErrProtocol/ErrAuthFailed/wire.ErrConnectionLost.
func Perform(netConn net.Conn, cfg Config) (*Result, error) {
	prefs := cfg.CipherPreference
	if len(prefs) == 0 {
		prefs = defaultCipherPreference()
	}

	// Step 1-2: clear-text Connect line and greeting reply.
	if err := writeConnectLine(netConn, ClientProtocolVersion); err != nil {
		return nil, fmt.Errorf("%w: %v", wire.ErrConnectionLost, err)
	}
	br := bufio.NewReader(netConn)
	g, err := readGreeting(br)
	if err != nil {
		return nil, err
	}
	cipherName, err := selectCipher(g.Ciphers, prefs)
	if err != nil {
		return nil, err
	}

	// From here on every message is length-prefixed (still plaintext until
	// the cipher is installed below).
	conn := wire.NewConn(netConn)

	client, err := crypto.NewClientSecret(crypto.Group1024)
	if err != nil {
		return nil, fmt.Errorf("handshake: generating SRP secret: %v", err)
	}

	// Step 3: OpenDatabase request.
	if err := sendOpenDatabase(conn, cfg, cipherName, client); err != nil {
		return nil, err
	}

	// Step 4: OpenDatabase response (server protocol version, B, salt).
	serverVersion, serverB, salt, err := readOpenDatabaseResponse(conn)
	if err != nil {
		return nil, err
	}
	if serverVersion > ClientProtocolVersion {
		return nil, fmt.Errorf("%w: server protocol version %d exceeds client version %d", ErrProtocol, serverVersion, ClientProtocolVersion)
	}

	// Step 5: derive K, install the cipher in both directions.
	k, err := client.SessionKey(serverB, salt, cfg.User, cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	pair, err := crypto.NewStreamPair(cipherName, k, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	conn.InstallCipher(pair)

	// Step 6: Authentication(mask) / "Success!" verification.
	if err := verifyAuthentication(conn); err != nil {
		return nil, err
	}

	return &Result{Conn: conn, ServerProtocolVersion: serverVersion, Cipher: cipherName}, nil
}

func sendOpenDatabase(conn *wire.Conn, cfg Config, cipherName crypto.Name, client *crypto.ClientSecret) error {
	params := map[string]string{
		"user":        cfg.User,
		"cipher":      string(cipherName),
		"schema":      cfg.Schema,
		"timezone":    cfg.Timezone,
		"remote-ip":   cfg.RemoteIP,
		"client-info": cfg.ClientInfo,
	}

	enc := codec.NewEncoder()
	if err := enc.Value(types.Int(ClientProtocolVersion)); err != nil {
		return err
	}
	if err := enc.Value(types.Str(cfg.DatabaseName)); err != nil {
		return err
	}
	if err := enc.Value(types.Int(int64(len(params)))); err != nil {
		return err
	}
	for _, key := range []string{"user", "cipher", "schema", "timezone", "remote-ip", "client-info"} {
		if err := enc.Value(types.Str(key)); err != nil {
			return err
		}
		if err := enc.Value(types.Str(params[key])); err != nil {
			return err
		}
	}
	if err := enc.Value(types.Int(0)); err != nil { // transaction id: none
		return err
	}
	if err := enc.Value(types.Bytes(client.PublicBytes())); err != nil {
		return err
	}

	return conn.WriteFrame(enc.Bytes())
}

func readOpenDatabaseResponse(conn *wire.Conn) (serverVersion int, serverB *big.Int, salt []byte, err error) {
	body, err := conn.ReadFrame()
	if err != nil {
		return 0, nil, nil, err
	}
	dec := codec.NewDecoder(body)

	versionVal, err := dec.Value()
	if err != nil {
		return 0, nil, nil, fmt.Errorf("%w: reading server protocol version: %v", ErrProtocol, err)
	}
	if versionVal.Kind != types.KindInt {
		return 0, nil, nil, fmt.Errorf("%w: expected an integer protocol version", ErrProtocol)
	}

	bVal, err := dec.Value()
	if err != nil {
		return 0, nil, nil, fmt.Errorf("%w: reading server SRP public key: %v", ErrProtocol, err)
	}
	if bVal.Kind != types.KindBytes {
		return 0, nil, nil, fmt.Errorf("%w: expected an opaque SRP public key", ErrProtocol)
	}

	saltVal, err := dec.Value()
	if err != nil {
		return 0, nil, nil, fmt.Errorf("%w: reading SRP salt: %v", ErrProtocol, err)
	}
	if saltVal.Kind != types.KindBytes {
		return 0, nil, nil, fmt.Errorf("%w: expected an opaque salt", ErrProtocol)
	}

	return int(versionVal.Int), new(big.Int).SetBytes(bVal.Bytes), saltVal.Bytes, nil
}

func verifyAuthentication(conn *wire.Conn) error {
	enc := codec.NewEncoder()
	if err := enc.Value(types.Int(authenticationMask)); err != nil {
		return err
	}
	if err := conn.WriteFrame(enc.Bytes()); err != nil {
		return err
	}

	body, err := conn.ReadFrame()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	v, _, err := codec.Decode(body)
	if err != nil || v.Kind != types.KindString || v.Str != successPlaintext {
		return fmt.Errorf("%w: session keys disagree", ErrAuthFailed)
	}
	return nil
}
