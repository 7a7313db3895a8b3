package session

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sony/gobreaker"
)

// IsAlive reports whether pid refers to a running process, by sending the
// null signal and inspecting the result rather than reading /proc.
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	// EPERM still means the process exists, just owned by someone else.
	return err == syscall.EPERM
}

// Action is the supervisor's response to a session ending in a given
// outcome.
type Action string

const (
	ActionRetryFresh       Action = "retry_fresh"
	ActionRetryWithHandoff Action = "retry_with_handoff"
	ActionEscalateHuman    Action = "escalate_human"
	ActionNone             Action = "none"
)

// actionTable maps each non-success end state to the supervisor's
// default response. ContextExhausted always hands off rather than
// restarting blind, since the session itself authored a handoff before
// yielding.
var actionTable = map[State]Action{
	Crashed:          ActionRetryFresh,
	ContextExhausted: ActionRetryWithHandoff,
}

// NextAction returns the default action for an end state, given how
// many recovery attempts have already been made and the stage's retry
// budget (nil means unbounded).
func NextAction(state State, attempt int, maxRetries *int) Action {
	if maxRetries != nil && attempt >= *maxRetries {
		return ActionEscalateHuman
	}
	action, ok := actionTable[state]
	if !ok {
		return ActionNone
	}
	return action
}

// HeartbeatEvent is one line of the append-only hook event log.
type HeartbeatEvent struct {
	SessionID       string    `json:"session_id"`
	Tool            string    `json:"tool,omitempty"`
	ContextPercent  float64   `json:"context_percent,omitempty"`
	WaitingForInput bool      `json:"waiting_for_input,omitempty"`
	At              time.Time `json:"at"`
}

// HeartbeatTracker watches the hook event log and records the most recent
// event per session, so the supervisor can detect a hung session, a
// session nearing its context limit, or one blocked on user input. It
// re-reads on fsnotify events and, as a fallback, on a fixed timer.
type HeartbeatTracker struct {
	mu       sync.RWMutex
	last     map[string]HeartbeatEvent
	watcher  *fsnotify.Watcher
	path     string
	offset   int64
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewHeartbeatTracker starts watching path (the hook events log) for
// appended lines.
func NewHeartbeatTracker(path string) (*HeartbeatTracker, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("session: create watcher: %w", err)
	}
	dir := parentDir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("session: ensure dir %s: %w", dir, err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("session: watch %s: %w", dir, err)
	}
	ht := &HeartbeatTracker{
		last:    map[string]HeartbeatEvent{},
		watcher: watcher,
		path:    path,
		stopCh:  make(chan struct{}),
	}
	ht.consumeNewLines()
	go ht.loop()
	return ht, nil
}

func parentDir(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}

// fallbackPollInterval re-reads the hook event log on a timer in
// addition to the fsnotify watch, so a filesystem where inotify events
// don't fire (network mounts, some container overlays) still converges
// on new heartbeats, just less promptly.
const fallbackPollInterval = 2 * time.Second

func (ht *HeartbeatTracker) loop() {
	ticker := time.NewTicker(fallbackPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ht.stopCh:
			return
		case ev, ok := <-ht.watcher.Events:
			if !ok {
				return
			}
			if ev.Name == ht.path && (ev.Op&(fsnotify.Write|fsnotify.Create) != 0) {
				ht.consumeNewLines()
			}
		case <-ht.watcher.Errors:
			// Best-effort: a watcher error doesn't stop tracking, the
			// next successful event still triggers a re-read.
		case <-ticker.C:
			ht.consumeNewLines()
		}
	}
}

func (ht *HeartbeatTracker) consumeNewLines() {
	f, err := os.Open(ht.path)
	if err != nil {
		return
	}
	defer f.Close()

	ht.mu.Lock()
	offset := ht.offset
	ht.mu.Unlock()

	if _, err := f.Seek(offset, 0); err != nil {
		return
	}

	dec := json.NewDecoder(f)
	for {
		var ev HeartbeatEvent
		if err := dec.Decode(&ev); err != nil {
			break
		}
		if ev.SessionID != "" {
			ht.mu.Lock()
			ht.last[ev.SessionID] = ev
			ht.mu.Unlock()
		}
	}
	if n, err := f.Seek(0, 2); err == nil {
		ht.mu.Lock()
		ht.offset = n
		ht.mu.Unlock()
	}
}

// LastHeartbeat returns the most recently observed heartbeat time for a
// session, or the zero time if none has been seen.
func (ht *HeartbeatTracker) LastHeartbeat(sessionID string) time.Time {
	ht.mu.RLock()
	defer ht.mu.RUnlock()
	return ht.last[sessionID].At
}

// LastEvent returns the most recently observed heartbeat event for a
// session, and whether one has ever been seen.
func (ht *HeartbeatTracker) LastEvent(sessionID string) (HeartbeatEvent, bool) {
	ht.mu.RLock()
	defer ht.mu.RUnlock()
	ev, ok := ht.last[sessionID]
	return ev, ok
}

// Stale reports whether sessionID has gone silent for longer than after,
// counting since since if no heartbeat has ever been observed.
func (ht *HeartbeatTracker) Stale(sessionID string, since time.Time, after time.Duration) bool {
	last := ht.LastHeartbeat(sessionID)
	if last.IsZero() {
		last = since
	}
	return time.Since(last) > after
}

// Close stops watching.
func (ht *HeartbeatTracker) Close() error {
	ht.stopOnce.Do(func() { close(ht.stopCh) })
	return ht.watcher.Close()
}

// RetryBreaker bounds how many times a failed stage's session may be
// retried in a short window before recovery attempts are suspended and
// the stage is escalated to a human, per stage.
type RetryBreaker struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewRetryBreaker returns an empty per-stage breaker set.
func NewRetryBreaker() *RetryBreaker {
	return &RetryBreaker{breakers: map[string]*gobreaker.CircuitBreaker{}}
}

func (rb *RetryBreaker) breakerFor(stageID string) *gobreaker.CircuitBreaker {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if b, ok := rb.breakers[stageID]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        stageID,
		MaxRequests: 1,
		Interval:    10 * time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	rb.breakers[stageID] = b
	return b
}

// Allow reports whether another recovery attempt for stageID is
// permitted right now.
func (rb *RetryBreaker) Allow(stageID string) bool {
	b := rb.breakerFor(stageID)
	return b.State() != gobreaker.StateOpen
}

// RecordOutcome reports a recovery attempt's outcome to the breaker for
// stageID, tripping it after repeated consecutive failures.
func (rb *RetryBreaker) RecordOutcome(stageID string, succeeded bool) {
	b := rb.breakerFor(stageID)
	_, _ = b.Execute(func() (any, error) {
		if !succeeded {
			return nil, fmt.Errorf("recovery attempt failed")
		}
		return nil, nil
	})
}
