package session

import (
	"sync"
	"time"

	"github.com/nuodb/go-nuodb/internal/protocol"
)

// Watchdog periodically pings a Session and forces it Broken after a run
// of consecutive failures.
type Watchdog struct {
	session          *Session
	interval         time.Duration
	failureThreshold int

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu                  sync.Mutex
	consecutiveFailures int
	lastErr             error
}

// NewWatchdog builds a Watchdog that pings s every interval and forces it
// Broken once failureThreshold consecutive pings fail.
func NewWatchdog(s *Session, interval time.Duration, failureThreshold int) *Watchdog {
	return &Watchdog{
		session:          s,
		interval:         interval,
		failureThreshold: failureThreshold,
		stopCh:           make(chan struct{}),
	}
}

// Start begins the periodic ping loop in its own goroutine.
func (w *Watchdog) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run()
	}()
}

// Stop ends the ping loop and waits for it to exit. Safe to call more than
// once.
func (w *Watchdog) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

func (w *Watchdog) run() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.pingOnce()
		case <-w.stopCh:
			return
		}
	}
}

func (w *Watchdog) pingOnce() {
	if w.session.State() != StateAuthenticated {
		return
	}
	_, err := w.session.Exchange(protocol.OpPing, nil)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.consecutiveFailures++
		w.lastErr = err
		if w.consecutiveFailures >= w.failureThreshold {
			w.session.machine.Break()
		}
		return
	}
	w.consecutiveFailures = 0
	w.lastErr = nil
}

// LastError returns the most recent ping failure, or nil if the last ping
// succeeded or none has run yet.
func (w *Watchdog) LastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}
