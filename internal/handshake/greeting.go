package handshake

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"net"
	"strings"

	"github.com/nuodb/go-nuodb/internal/crypto"
)

// connectLine is the literal clear-text line sent to open a session. It
// predates the framed protocol entirely, so it is written and read as a
// single newline-terminated ASCII line rather than through the
// length-prefixed framing in internal/wire.
func connectLine(protocolVersion int) string {
	return fmt.Sprintf(`<Connect Service="SQL2"><connection_protocol="%d" Thread="0"/>`, protocolVersion)
}

// greeting is the server's plaintext reply naming its protocol id and the
// ciphers it is willing to negotiate. The exact element and attribute
// names are not independently verified against a live server; DESIGN.md
// records this as an invented-but-documented schema choice, modeled on
// the Connect line's own attribute style.
type greeting struct {
	XMLName    xml.Name `xml:"Greeting"`
	ProtocolId int      `xml:"ProtocolId,attr"`
	Ciphers    string   `xml:"Ciphers,attr"` // comma-separated, strongest-preferred-last per NuoDB convention
}

func writeConnectLine(conn net.Conn, protocolVersion int) error {
	_, err := conn.Write([]byte(connectLine(protocolVersion) + "\n"))
	return err
}

func readGreeting(r *bufio.Reader) (*greeting, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("handshake: reading greeting: %w", err)
	}
	var g greeting
	if err := xml.Unmarshal([]byte(strings.TrimSpace(line)), &g); err != nil {
		return nil, fmt.Errorf("%w: malformed greeting: %v", ErrProtocol, err)
	}
	return &g, nil
}

// selectCipher picks the strongest cipher present in both the server's
// advertised list and the client's preference order (client order wins the
// tie-break, strongest first).
func selectCipher(serverList string, clientPreference []crypto.Name) (crypto.Name, error) {
	offered := make(map[string]bool)
	for _, c := range strings.Split(serverList, ",") {
		c = strings.TrimSpace(c)
		if c != "" {
			offered[c] = true
		}
	}
	for _, pref := range clientPreference {
		if offered[string(pref)] {
			return pref, nil
		}
	}
	return "", fmt.Errorf("%w: no cipher in common (server offered %q)", ErrAuthFailed, serverList)
}
