// Package config loads named connection profiles from YAML, with
// ${VAR}-style environment substitution, and can hot-reload the
// trust-store path and cipher preference order for future connections.
package config

import (
	"fmt"
	"log"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/nuodb/go-nuodb/internal/crypto"
)

// Config is a named set of connection profiles, e.g. one per environment
// (dev/staging/prod) or per application.
type Config struct {
	Profiles map[string]Profile `yaml:"profiles"`
}

// Profile is everything a connect call needs, plus the handshake-level
// cipher preference and trust-store path from its connect options.
type Profile struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Database   string `yaml:"database"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Schema     string `yaml:"schema,omitempty"`
	Timezone   string `yaml:"timezone,omitempty"`
	ClientInfo string `yaml:"client_info,omitempty"`

	Ciphers    []string `yaml:"ciphers,omitempty"`
	TrustStore string   `yaml:"trust_store,omitempty"`

	DialTimeout  time.Duration `yaml:"dial_timeout,omitempty"`
	ReadTimeout  time.Duration `yaml:"read_timeout,omitempty"`
	WriteTimeout time.Duration `yaml:"write_timeout,omitempty"`
}

// CipherPreference converts the profile's configured cipher names into
// internal/crypto's type, in the order listed (strongest-first, per
// internal/handshake's convention).
func (p Profile) CipherPreference() []crypto.Name {
	if len(p.Ciphers) == 0 {
		return nil
	}
	names := make([]crypto.Name, len(p.Ciphers))
	for i, c := range p.Ciphers {
		names[i] = crypto.Name(c)
	}
	return names
}

// Redacted returns a copy of the profile with the password masked, for
// logging.
func (p Profile) Redacted() Profile {
	c := p
	if c.Password != "" {
		c.Password = "***REDACTED***"
	}
	return c
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// substituteEnvVars replaces ${VAR_NAME} patterns with environment variable values.
func substituteEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		if val, ok := os.LookupEnv(string(varName)); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a YAML profile file with env var substitution.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = substituteEnvVars(data)

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	for id, p := range cfg.Profiles {
		if p.Port == 0 {
			p.Port = 48004
		}
		if p.DialTimeout == 0 {
			p.DialTimeout = 10 * time.Second
		}
		if p.ReadTimeout == 0 {
			p.ReadTimeout = 30 * time.Second
		}
		if p.WriteTimeout == 0 {
			p.WriteTimeout = 30 * time.Second
		}
		cfg.Profiles[id] = p
	}
}

var validCiphers = map[string]bool{
	string(crypto.RC4):       true,
	string(crypto.AES256CTR): true,
	string(crypto.NoCipher):  true,
}

func validate(cfg *Config) error {
	for id, p := range cfg.Profiles {
		if p.Host == "" {
			return fmt.Errorf("profile %q: host is required", id)
		}
		if p.Database == "" {
			return fmt.Errorf("profile %q: database is required", id)
		}
		if p.User == "" {
			return fmt.Errorf("profile %q: user is required", id)
		}
		for _, c := range p.Ciphers {
			if !validCiphers[c] {
				return fmt.Errorf("profile %q: unsupported cipher %q", id, c)
			}
		}
	}
	return nil
}

// Watcher watches a profile file for changes and calls the callback with
// the new config, used to hot-reload the trust store and cipher
// preference for connections made after the reload; it does not affect
// connections already established.
type Watcher struct {
	path     string
	callback func(*Config)
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	stopCh   chan struct{}
}

// NewWatcher creates a new config file watcher.
func NewWatcher(path string, callback func(*Config)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching config file: %w", err)
	}

	cw := &Watcher{
		path:     path,
		callback: callback,
		watcher:  w,
		stopCh:   make(chan struct{}),
	}

	go cw.run()
	return cw, nil
}

func (cw *Watcher) run() {
	// Debounce timer to avoid rapid reloads
	var debounce *time.Timer
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, func() {
					cw.reload()
				})
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[config] watcher error: %v", err)
		case <-cw.stopCh:
			return
		}
	}
}

func (cw *Watcher) reload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cfg, err := Load(cw.path)
	if err != nil {
		log.Printf("[config] hot-reload failed: %v", err)
		return
	}

	log.Printf("[config] profiles reloaded from %s", cw.path)
	cw.callback(cfg)
}

// Stop stops the config watcher.
func (cw *Watcher) Stop() error {
	close(cw.stopCh)
	return cw.watcher.Close()
}
