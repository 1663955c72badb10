// Package ciphersuite holds the process-wide, hot-reloadable cipher
// preference list new connections negotiate from. A
// Registry is read on every dial's handshake and only rarely written, so
// reads are lock-free.
package ciphersuite

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nuodb/go-nuodb/internal/crypto"
)

// snapshot is an immutable point-in-time cipher preference list.
type snapshot struct {
	order   []crypto.Name
	enabled map[crypto.Name]bool
}

// Registry resolves the cipher preference a new handshake should advertise.
// Reads go through atomic.Value and never block; Enable/Disable/Reload
// serialize on a write mutex and swap in a new snapshot.
type Registry struct {
	snap atomic.Value // holds *snapshot
	wmu  sync.Mutex   // serializes mutations; reads never block on it
}

// defaultOrder is the strongest-first preference a Registry starts with if
// New is called with no explicit order.
func defaultOrder() []crypto.Name {
	return []crypto.Name{crypto.AES256CTR, crypto.RC4}
}

// New builds a Registry with every named cipher enabled, in the given
// preference order (strongest first). An empty order falls back to
// AES-256-CTR, then RC4.
func New(order ...crypto.Name) *Registry {
	if len(order) == 0 {
		order = defaultOrder()
	}
	enabled := make(map[crypto.Name]bool, len(order))
	for _, n := range order {
		enabled[n] = true
	}
	r := &Registry{}
	r.snap.Store(&snapshot{order: append([]crypto.Name(nil), order...), enabled: enabled})
	return r
}

func (r *Registry) load() *snapshot {
	return r.snap.Load().(*snapshot)
}

func (r *Registry) cloneSnap() *snapshot {
	cur := r.load()
	order := append([]crypto.Name(nil), cur.order...)
	enabled := make(map[crypto.Name]bool, len(cur.enabled))
	for n, v := range cur.enabled {
		enabled[n] = v
	}
	return &snapshot{order: order, enabled: enabled}
}

// Preference returns the ordered list of currently enabled ciphers, for a
// handshake.Config.CipherPreference. Lock-free.
func (r *Registry) Preference() []crypto.Name {
	snap := r.load()
	out := make([]crypto.Name, 0, len(snap.order))
	for _, n := range snap.order {
		if snap.enabled[n] {
			out = append(out, n)
		}
	}
	return out
}

// Disable removes a cipher from new handshakes without forgetting its
// position in the preference order, so Enable can restore it later.
func (r *Registry) Disable(name crypto.Name) {
	r.wmu.Lock()
	defer r.wmu.Unlock()
	s := r.cloneSnap()
	s.enabled[name] = false
	r.snap.Store(s)
}

// Enable re-admits a previously disabled cipher, or appends a new one to
// the end of the preference order (lowest priority) if it was never known.
func (r *Registry) Enable(name crypto.Name) {
	r.wmu.Lock()
	defer r.wmu.Unlock()
	s := r.cloneSnap()
	if _, known := s.enabled[name]; !known {
		s.order = append(s.order, name)
	}
	s.enabled[name] = true
	r.snap.Store(s)
}

// Reload replaces the entire preference order, e.g. from a config file
// watched by fsnotify. Every named cipher starts enabled.
func (r *Registry) Reload(order []crypto.Name) error {
	if len(order) == 0 {
		return fmt.Errorf("ciphersuite: reload requires at least one cipher")
	}
	r.wmu.Lock()
	defer r.wmu.Unlock()
	enabled := make(map[crypto.Name]bool, len(order))
	for _, n := range order {
		enabled[n] = true
	}
	r.snap.Store(&snapshot{order: append([]crypto.Name(nil), order...), enabled: enabled})
	return nil
}
