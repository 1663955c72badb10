// Command nuosql is a minimal command-line client over the package's
// connect/cursor surface: dial a database, run one statement, print the
// rows or the update count.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	nuodb "github.com/nuodb/go-nuodb"
	"github.com/nuodb/go-nuodb/internal/api"
	"github.com/nuodb/go-nuodb/internal/config"
	"github.com/nuodb/go-nuodb/internal/metrics"
	"github.com/nuodb/go-nuodb/internal/types"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML connection profile file (overrides -host/-port/-database/... when set)")
	profileName := flag.String("profile", "", "profile name to connect with, from -config")

	host := flag.String("host", "localhost", "database host")
	port := flag.Int("port", nuodb.DefaultPort, "database port")
	database := flag.String("database", "", "database name")
	user := flag.String("user", "", "database user")
	password := flag.String("password", "", "database password")
	schema := flag.String("schema", "", "schema to use")
	sql := flag.String("sql", "", "statement to execute")
	dialTimeout := flag.Duration("dial-timeout", 10*time.Second, "connection dial timeout")
	ioTimeout := flag.Duration("io-timeout", 30*time.Second, "per-request read/write timeout")
	debugPort := flag.Int("debug-port", 0, "serve /metrics and /healthz on this port (0 disables)")
	keepAlive := flag.Duration("keepalive", 0, "ping interval for a background liveness watchdog (0 disables)")
	credentialBlobPath := flag.String("credential-blob", "", "path to an encrypted credential blob, in place of -user/-password")
	credentialPassphrase := flag.String("credential-passphrase", "", "passphrase that decrypts -credential-blob")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)

	var profile config.Profile
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("loading config: %v", err)
		}
		if *profileName == "" {
			log.Fatalf("-profile is required when -config is set")
		}
		p, ok := cfg.Profiles[*profileName]
		if !ok {
			log.Fatalf("profile %q not found in %s", *profileName, *configPath)
		}
		profile = p
		log.Printf("loaded profile %q from %s: %+v", *profileName, *configPath, profile.Redacted())

		*host = profile.Host
		*port = profile.Port
		*database = profile.Database
		*user = profile.User
		*password = profile.Password
		*schema = profile.Schema
		*dialTimeout = profile.DialTimeout
		*ioTimeout = profile.ReadTimeout
		if *ioTimeout < profile.WriteTimeout {
			*ioTimeout = profile.WriteTimeout
		}
		if len(profile.CipherPreference()) > 0 {
			if err := nuodb.CipherRegistry().Reload(profile.CipherPreference()); err != nil {
				log.Fatalf("applying profile cipher preference: %v", err)
			}
		}
	}

	if *database == "" || *user == "" || *sql == "" {
		log.Fatalf("usage: nuosql -database=NAME -user=USER -sql=\"SELECT...\" [-password=PASS] [-host=H] [-port=P]")
	}

	var configWatcher *config.Watcher
	if *configPath != "" {
		w, err := config.NewWatcher(*configPath, func(cfg *config.Config) {
			p, ok := cfg.Profiles[*profileName]
			if !ok || len(p.CipherPreference()) == 0 {
				return
			}
			if err := nuodb.CipherRegistry().Reload(p.CipherPreference()); err != nil {
				log.Printf("[config] rejecting reloaded cipher preference: %v", err)
			}
		})
		if err != nil {
			log.Printf("warning: config hot-reload not available: %v", err)
		} else {
			configWatcher = w
		}
	}

	var credentialBlob []byte
	if *credentialBlobPath != "" {
		blob, err := os.ReadFile(*credentialBlobPath)
		if err != nil {
			log.Fatalf("reading credential blob: %v", err)
		}
		credentialBlob = blob
	}

	collector := metrics.New()

	log.Printf("connecting to %s:%d/%s", *host, *port, *database)
	conn, err := nuodb.Connect(*database, *host, *user, *password, *port, nuodb.Options{
		Schema:                    *schema,
		ClientInfo:                profile.ClientInfo,
		DialTimeout:               *dialTimeout,
		ReadTimeout:               *ioTimeout,
		WriteTimeout:              *ioTimeout,
		TrustStore:                profile.TrustStore,
		CredentialBlob:            credentialBlob,
		CredentialPassphrase:      *credentialPassphrase,
		KeepAlive:                 *keepAlive,
		KeepAliveFailureThreshold: 3,
		Metrics:                   collector,
	})
	if err != nil {
		if configWatcher != nil {
			configWatcher.Stop()
		}
		log.Fatalf("connect failed: %v", err)
	}

	if *debugPort != 0 {
		srv := api.NewServer(collector, conn.Ping)
		if err := srv.Start(*debugPort); err != nil {
			log.Fatalf("debug server failed: %v", err)
		}
		defer srv.Stop()
	}

	// Closing the socket is the only supported cancellation path (no
	// in-band cancel opcode); the first SIGINT or SIGTERM closes the
	// connection, so an in-flight request returns with an error.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Printf("interrupted, closing connection")
		conn.Close()
	}()

	runErr := run(conn, *sql)

	if configWatcher != nil {
		configWatcher.Stop()
	}
	if runErr != nil {
		conn.Close()
		log.Fatalf("%v", runErr)
	}

	if err := conn.Close(); err != nil {
		log.Fatalf("close failed: %v", err)
	}
}

func run(conn *nuodb.Connection, sql string) error {
	cur := conn.Cursor()
	defer cur.Close()

	if err := cur.Execute(sql, nil); err != nil {
		return fmt.Errorf("execute failed: %w", err)
	}

	cols, err := cur.Description()
	if err != nil {
		return fmt.Errorf("fetching column metadata failed: %w", err)
	}
	if cols == nil {
		fmt.Printf("update count: %d\n", cur.RowCount())
		return nil
	}

	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Label
	}
	fmt.Println(strings.Join(names, "\t"))

	rows, err := cur.FetchAll()
	if err != nil {
		return fmt.Errorf("fetching rows failed: %w", err)
	}
	for _, row := range rows {
		vals := make([]string, len(row))
		for i, v := range row {
			vals[i] = formatValue(v)
		}
		fmt.Println(strings.Join(vals, "\t"))
	}
	fmt.Printf("(%d rows)\n", len(rows))
	return nil
}

func formatValue(v types.Value) string {
	switch v.Kind {
	case types.KindNull:
		return "NULL"
	case types.KindBool:
		return fmt.Sprint(v.Bool)
	case types.KindInt:
		return fmt.Sprint(v.Int)
	case types.KindDecimal:
		return v.Decimal.String()
	case types.KindDouble:
		return fmt.Sprint(v.Double)
	case types.KindString:
		return v.Str
	case types.KindBytes:
		return fmt.Sprintf("%x", v.Bytes)
	case types.KindUUID:
		return v.UUID.String()
	case types.KindTimestamp:
		return v.Timestamp.Time().String()
	default:
		return fmt.Sprintf("<%s>", v.Kind)
	}
}
