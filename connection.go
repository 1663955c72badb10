// Package nuodb is a client-side driver for the NuoDB SQL wire protocol:
// dial, perform the SRP handshake, and drive statements and result sets
// over the resulting encrypted session. The surface mirrors PEP-249's
// connect/cursor shape rather than database/sql, since the protocol's
// generated-key and batch-outcome semantics don't map cleanly onto
// database/sql's driver interfaces.
package nuodb

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/nuodb/go-nuodb/internal/ciphersuite"
	"github.com/nuodb/go-nuodb/internal/codec"
	"github.com/nuodb/go-nuodb/internal/crypto"
	"github.com/nuodb/go-nuodb/internal/handshake"
	"github.com/nuodb/go-nuodb/internal/metrics"
	"github.com/nuodb/go-nuodb/internal/protocol"
	"github.com/nuodb/go-nuodb/internal/session"
	"github.com/nuodb/go-nuodb/internal/statement"
	"github.com/nuodb/go-nuodb/internal/types"
)

// DefaultPort is the default NuoDB Transaction Engine port.
const DefaultPort = 48004

// defaultCipherRegistry is the process-wide cipher preference list Connect
// advertises when an Options.Cipher override isn't given. CipherRegistry
// exposes it so a caller can Enable/Disable/Reload ciphers for every future
// connection without threading a preference list through each Connect call.
var defaultCipherRegistry = ciphersuite.New()

// CipherRegistry returns the process-wide ciphersuite.Registry Connect
// consults for its cipher preference when Options.Cipher is empty.
func CipherRegistry() *ciphersuite.Registry { return defaultCipherRegistry }

// Options carries the optional connect parameters: schema, timezone,
// clientInfo, cipher preference, and trustStore.
//
// TrustStore is accepted for interface fidelity but is not consulted:
// certificate verification has nowhere to plug in yet since
// internal/handshake only implements the SRP-and-cipher path. DESIGN.md
// records this as a known gap rather than a silent no-op.
type Options struct {
	Schema     string
	Timezone   string
	ClientInfo string
	Cipher     []crypto.Name
	TrustStore string

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// CredentialBlob and CredentialPassphrase let a caller keep a
	// username/password pair encrypted at rest (AES-256-CBC, PBKDF2-derived
	// key) instead of a cleartext Password argument. When CredentialBlob is
	// set, Connect decrypts it with CredentialPassphrase via
	// internal/crypto.DecryptCredentialBlob and uses the result in place of
	// the user/password arguments.
	CredentialBlob       []byte
	CredentialPassphrase string

	// KeepAlive, when non-zero, starts a session.Watchdog that pings the
	// connection on this interval and forces it Broken after
	// KeepAliveFailureThreshold consecutive failures (default 3 when
	// KeepAlive is set but this is 0).
	KeepAlive                 time.Duration
	KeepAliveFailureThreshold int

	// Metrics, when set, receives handshake/opcode/error instrumentation
	// for this connection. Nil disables metrics entirely.
	Metrics *metrics.Collector
}

type transactionID struct {
	valid     bool
	txID      int64
	nodeID    int64
	commitSeq int64
}

// Connection is one authenticated session to a NuoDB database, tracking
// negotiated protocol version, server identity, auto-commit/read-only/
// isolation settings, the last committed transaction id, and the
// statements it has opened.
type Connection struct {
	mu     sync.Mutex
	sess   *session.Session
	closed bool

	serverProtocolVersion int
	cipher                crypto.Name

	ioTimeout time.Duration
	metrics   *metrics.Collector

	autoCommit     bool
	readOnly       bool
	isolationLevel int
	pendingCommit  bool // an Execute has run since the last Commit/Rollback
	lastTx         transactionID

	statements map[uint32]*statement.Statement
	watchdog   *session.Watchdog
}

// Connect dials host:port (DefaultPort when port is 0), runs the
// handshake, and returns a ready-to-use Connection with auto-commit on.
func Connect(database, host, user, password string, port int, opts Options) (*Connection, error) {
	if port == 0 {
		port = DefaultPort
	}
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))

	if len(opts.CredentialBlob) > 0 {
		plaintext, err := crypto.DecryptCredentialBlob(opts.CredentialBlob, opts.CredentialPassphrase)
		if err != nil {
			return nil, fmt.Errorf("decrypting credential blob: %w", err)
		}
		user, password = splitCredential(plaintext, user)
	}

	prefs := opts.Cipher
	if len(prefs) == 0 {
		prefs = defaultCipherRegistry.Preference()
	}

	var (
		netConn net.Conn
		err     error
	)
	if opts.DialTimeout > 0 {
		netConn, err = net.DialTimeout("tcp", addr, opts.DialTimeout)
	} else {
		netConn, err = net.Dial("tcp", addr)
	}
	if err != nil {
		return nil, protocol.NewConnectionLost(err)
	}

	start := time.Now()
	result, err := handshake.Perform(netConn, handshake.Config{
		DatabaseName:     database,
		User:             user,
		Password:         password,
		Schema:           opts.Schema,
		Timezone:         opts.Timezone,
		ClientInfo:       opts.ClientInfo,
		CipherPreference: prefs,
	})
	if opts.Metrics != nil {
		opts.Metrics.HandshakeCompleted(time.Since(start), err == nil)
	}
	if err != nil {
		netConn.Close()
		if opts.Metrics != nil && errors.Is(err, handshake.ErrAuthFailed) {
			opts.Metrics.AuthFailure()
		}
		return nil, err
	}

	ioTimeout := opts.ReadTimeout
	if opts.WriteTimeout > ioTimeout {
		ioTimeout = opts.WriteTimeout
	}

	if opts.Metrics != nil {
		result.Conn.OnEncrypt = opts.Metrics.BytesEncrypted
		result.Conn.OnDecrypt = opts.Metrics.BytesDecrypted
	}

	sess := session.New(result.Conn)
	c := &Connection{
		sess:                  sess,
		serverProtocolVersion: result.ServerProtocolVersion,
		cipher:                result.Cipher,
		ioTimeout:             ioTimeout,
		metrics:               opts.Metrics,
		autoCommit:            true,
		isolationLevel:        -1,
		statements:            make(map[uint32]*statement.Statement),
	}

	if opts.KeepAlive > 0 {
		threshold := opts.KeepAliveFailureThreshold
		if threshold <= 0 {
			threshold = 3
		}
		c.watchdog = session.NewWatchdog(sess, opts.KeepAlive, threshold)
		c.watchdog.Start()
	}

	return c, nil
}

// splitCredential splits a decrypted credential blob's plaintext on the
// first colon into a user/password pair. A blob with no colon is treated as
// a bare password, keeping fallbackUser (the caller's original user
// argument) unchanged.
func splitCredential(plaintext []byte, fallbackUser string) (user, password string) {
	for i, b := range plaintext {
		if b == ':' {
			return string(plaintext[:i]), string(plaintext[i+1:])
		}
	}
	return fallbackUser, string(plaintext)
}

// ServerProtocolVersion returns the protocol version the server agreed to
// speak during the handshake.
func (c *Connection) ServerProtocolVersion() int { return c.serverProtocolVersion }

// Cipher returns the stream cipher negotiated during the handshake.
func (c *Connection) Cipher() crypto.Name { return c.cipher }

// exchange wraps session.Exchange with the connection's configured I/O
// deadline. Separate read and write timeouts are configurable, but a
// single net.Conn deadline covers both directions at once, so ioTimeout
// is the larger of the two configured values (documented in DESIGN.md).
// A ConnectionLost error that surfaces once that deadline has passed is
// reported as Timeout.
func (c *Connection) exchange(opcode protocol.Opcode, write protocol.Writer) (*codec.Decoder, error) {
	var deadline time.Time
	if c.ioTimeout > 0 {
		deadline = time.Now().Add(c.ioTimeout)
		_ = c.sess.SetDeadline(deadline)
	}
	start := time.Now()
	dec, err := c.sess.Exchange(opcode, write)
	if c.metrics != nil {
		c.metrics.OpcodeDispatched(opcode.String(), time.Since(start))
	}
	if err != nil {
		if perr, ok := err.(*protocol.Error); ok {
			if perr.Kind == protocol.KindConnectionLost && !deadline.IsZero() && !time.Now().Before(deadline) {
				err = protocol.NewTimeout(err)
				perr = err.(*protocol.Error)
			}
			if c.metrics != nil {
				c.metrics.ErrorObserved(perr.Kind.String())
			}
		}
	}
	return dec, err
}

// Cursor returns a new Cursor bound to this connection.
func (c *Connection) Cursor() *Cursor {
	return newCursor(c)
}

// Ping round-trips OpPing to confirm the session is still live, without
// touching any statement or transaction state. internal/session.Watchdog
// uses the same opcode for its idle keepalive; Ping exposes it for callers
// that want an on-demand liveness check instead.
func (c *Connection) Ping() error {
	_, err := c.exchange(protocol.OpPing, nil)
	return err
}

// IsClosed reports whether Close has already been called on this
// connection.
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// AutoCommit reports whether the connection commits implicitly after each
// statement.
func (c *Connection) AutoCommit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoCommit
}

// SetAutoCommit issues SetAutoCommit and updates the cached flag on
// success.
func (c *Connection) SetAutoCommit(on bool) error {
	_, err := c.exchange(protocol.OpSetAutoCommit, func(enc *codec.Encoder) error {
		return enc.Value(types.Bool(on))
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.autoCommit = on
	c.mu.Unlock()
	return nil
}

// ReadOnly reports the connection's cached read-only flag.
func (c *Connection) ReadOnly() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readOnly
}

// SetReadOnly issues SetReadOnly and updates the cached flag on success.
func (c *Connection) SetReadOnly(on bool) error {
	_, err := c.exchange(protocol.OpSetReadOnly, func(enc *codec.Encoder) error {
		return enc.Value(types.Bool(on))
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.readOnly = on
	c.mu.Unlock()
	return nil
}

// TransactionIsolation returns the cached isolation level, or -1 if it has
// never been set on this connection.
func (c *Connection) TransactionIsolation() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isolationLevel
}

// SetTransactionIsolation issues SetTransactionIsolation and updates the
// cached level on success.
func (c *Connection) SetTransactionIsolation(level int) error {
	_, err := c.exchange(protocol.OpSetTransactionIsolation, func(enc *codec.Encoder) error {
		return enc.Value(types.Int(int64(level)))
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.isolationLevel = level
	c.mu.Unlock()
	return nil
}

// SupportsTransactionIsolation reports whether the server can run at the
// given isolation level, via SupportTransactionIsolation.
func (c *Connection) SupportsTransactionIsolation(level int) (bool, error) {
	dec, err := c.exchange(protocol.OpSupportTransactionIsolation, func(enc *codec.Encoder) error {
		return enc.Value(types.Int(int64(level)))
	})
	if err != nil {
		return false, err
	}
	v, err := dec.Value()
	if err != nil || v.Kind != types.KindBool {
		return false, protocol.NewProtocolError("SupportTransactionIsolation response missing a boolean")
	}
	return v.Bool, nil
}

// Catalog retrieves the connection's current catalog via GetCatalog.
func (c *Connection) Catalog() (string, error) {
	return c.readString(protocol.OpGetCatalog)
}

// CurrentSchema retrieves the connection's current schema via
// GetCurrentSchema.
func (c *Connection) CurrentSchema() (string, error) {
	return c.readString(protocol.OpGetCurrentSchema)
}

func (c *Connection) readString(opcode protocol.Opcode) (string, error) {
	dec, err := c.exchange(opcode, nil)
	if err != nil {
		return "", err
	}
	v, err := dec.Value()
	if err != nil || v.Kind != types.KindString {
		return "", protocol.NewProtocolError("%s response missing a string", opcode)
	}
	return v.Str, nil
}

// SetSavepoint opens a new savepoint and returns its server-assigned id.
func (c *Connection) SetSavepoint() (int, error) {
	dec, err := c.exchange(protocol.OpSetSavePoint, nil)
	if err != nil {
		return 0, err
	}
	v, err := dec.Value()
	if err != nil || v.Kind != types.KindInt {
		return 0, protocol.NewProtocolError("SetSavePoint response missing an id")
	}
	return int(v.Int), nil
}

// ReleaseSavepoint releases a savepoint previously returned by
// SetSavepoint.
func (c *Connection) ReleaseSavepoint(id int) error {
	_, err := c.exchange(protocol.OpReleaseSavePoint, func(enc *codec.Encoder) error {
		return enc.Value(types.Int(int64(id)))
	})
	return err
}

// RollbackToSavepoint rolls the current transaction back to a savepoint
// previously returned by SetSavepoint.
func (c *Connection) RollbackToSavepoint(id int) error {
	_, err := c.exchange(protocol.OpRollbackToSavePoint, func(enc *codec.Encoder) error {
		return enc.Value(types.Int(int64(id)))
	})
	return err
}

// Commit issues CommitTransaction and caches the (tx_id, node_id,
// commit_seq) tuple the server returns.
func (c *Connection) Commit() error {
	dec, err := c.exchange(protocol.OpCommitTransaction, nil)
	if err != nil {
		return err
	}
	txVal, err1 := dec.Value()
	nodeVal, err2 := dec.Value()
	seqVal, err3 := dec.Value()
	if err1 != nil || err2 != nil || err3 != nil ||
		txVal.Kind != types.KindInt || nodeVal.Kind != types.KindInt || seqVal.Kind != types.KindInt {
		return protocol.NewProtocolError("CommitTransaction response missing tx_id/node_id/commit_seq")
	}
	c.mu.Lock()
	c.lastTx = transactionID{valid: true, txID: txVal.Int, nodeID: nodeVal.Int, commitSeq: seqVal.Int}
	c.pendingCommit = false
	c.mu.Unlock()
	return nil
}

// Rollback issues RollbackTransaction and discards the cached transaction
// id.
func (c *Connection) Rollback() error {
	_, err := c.exchange(protocol.OpRollbackTransaction, nil)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.lastTx = transactionID{}
	c.pendingCommit = false
	c.mu.Unlock()
	return nil
}

// LastTransaction returns the (tx_id, node_id, commit_seq) of the most
// recent commit, and false if no commit has happened yet on this
// connection.
func (c *Connection) LastTransaction() (txID, nodeID, commitSeq int64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.lastTx
	return t.txID, t.nodeID, t.commitSeq, t.valid
}

// createStatement opens a fresh statement handle, first applying the
// auto-commit barrier: auto-commit=true forces an implicit commit on
// CreateStatement, observable as a CommitTransaction opcode when an
// Execute ran since the last Commit/Rollback.
func (c *Connection) createStatement() (*statement.Statement, error) {
	if err := c.commitIfPending(); err != nil {
		return nil, err
	}
	stmt, err := statement.Create(c.sess)
	if err != nil {
		return nil, err
	}
	c.trackStatement(stmt)
	return stmt, nil
}

func (c *Connection) prepareStatement(sql string) (*statement.Statement, error) {
	stmt, err := statement.Prepare(c.sess, sql, statement.KeyModeNone, nil)
	if err != nil {
		return nil, err
	}
	c.trackStatement(stmt)
	return stmt, nil
}

func (c *Connection) commitIfPending() error {
	c.mu.Lock()
	shouldCommit := c.autoCommit && c.pendingCommit
	c.mu.Unlock()
	if shouldCommit {
		return c.Commit()
	}
	return nil
}

// markExecuted records that a statement was run outside of an explicit
// batch, arming the auto-commit barrier for the next CreateStatement.
func (c *Connection) markExecuted() {
	c.mu.Lock()
	c.pendingCommit = true
	c.mu.Unlock()
}

// commitAfterBatch commits immediately after an executemany batch over a
// prepared statement when auto-commit is on, rather than deferring to the
// next CreateStatement the way a single Execute does: the two triggers
// are deliberately kept separate rather than unified into one rule.
func (c *Connection) commitAfterBatch() error {
	c.mu.Lock()
	auto := c.autoCommit
	c.mu.Unlock()
	if auto {
		return c.Commit()
	}
	return nil
}

func (c *Connection) trackStatement(stmt *statement.Statement) {
	c.mu.Lock()
	c.statements[stmt.Handle()] = stmt
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.StatementOpened()
	}
}

func (c *Connection) untrackStatement(stmt *statement.Statement) {
	c.mu.Lock()
	delete(c.statements, stmt.Handle())
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.StatementClosed()
	}
}

// Close sends a best-effort CloseConnection and releases the session
// unconditionally.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.statements = nil
	watchdog := c.watchdog
	c.watchdog = nil
	c.mu.Unlock()

	if watchdog != nil {
		watchdog.Stop()
	}

	_, _ = c.sess.Exchange(protocol.OpCloseConnection, nil)
	return c.sess.Close()
}
