package session

import (
	"time"

	"github.com/nuodb/go-nuodb/internal/codec"
	"github.com/nuodb/go-nuodb/internal/protocol"
	"github.com/nuodb/go-nuodb/internal/wire"
)

// Session is one authenticated connection to a TE. It wires
// internal/protocol's opcode dispatch to a Machine that refuses requests
// once the connection is no longer Authenticated.
type Session struct {
	conn    *wire.Conn
	machine *Machine
}

// New wraps a handshake.Result's Conn. The handshake has already completed
// key agreement and authentication by the time it returns successfully, so
// New moves a fresh Machine through KeyAgreed to Authenticated before
// returning the Session.
func New(conn *wire.Conn) *Session {
	m := NewMachine()
	_ = m.Transition(StateKeyAgreed)
	_ = m.Transition(StateAuthenticated)
	return &Session{conn: conn, machine: m}
}

// State reports the session's current bootstrap/lifetime state.
func (s *Session) State() State {
	return s.machine.State()
}

// Exchange dispatches one opcode via internal/protocol, refusing to do so
// once the session is no longer Authenticated, and moving the session to
// Broken when the result's Kind says the connection can no longer be
// trusted.
func (s *Session) Exchange(opcode protocol.Opcode, write protocol.Writer) (*codec.Decoder, error) {
	if st := s.machine.State(); st != StateAuthenticated {
		return nil, protocol.NewInterfaceError("session is %v, not usable", st)
	}
	dec, err := protocol.Exchange(s.conn, opcode, write)
	if err != nil {
		if perr, ok := err.(*protocol.Error); ok && perr.Kind.BreaksConnection() {
			s.machine.Break()
		}
		return nil, err
	}
	return dec, nil
}

// SetDeadline propagates an I/O deadline to the underlying socket, letting
// a caller enforce read/write timeouts without reaching past the Session
// for the raw wire.Conn.
func (s *Session) SetDeadline(t time.Time) error {
	return s.conn.SetDeadline(t)
}

// Close transitions the session to Closed and closes the underlying
// socket. Safe to call more than once; a repeat call's Transition fails
// silently since Close->Close is not a listed transition.
func (s *Session) Close() error {
	_ = s.machine.Transition(StateClosed)
	return s.conn.Close()
}
