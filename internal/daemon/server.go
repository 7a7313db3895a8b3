package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Status reports the daemon's own lifecycle, independent of the
// orchestration run it observes.
type Status string

const (
	StatusStarting Status = "starting"
	StatusReady    Status = "ready"
	StatusDraining Status = "draining"
)

// SnapshotProvider returns the current status snapshot; the daemon calls
// it once per broadcast interval (one second by default), whether or not
// any status subscriber is connected. It must not mutate persisted state.
type SnapshotProvider func() Snapshot

// Settings configures a Server.
type Settings struct {
	SocketPath        string
	CompletePath      string
	BroadcastInterval time.Duration
}

func (s Settings) interval() time.Duration {
	if s.BroadcastInterval <= 0 {
		return time.Second
	}
	return s.BroadcastInterval
}

// Option customizes server construction.
type Option func(*Server)

// WithLogger overrides the default no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock allows tests to control broadcast timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// Server is the daemon's Unix-socket control surface.
type Server struct {
	settings Settings
	snapshot SnapshotProvider
	logger   *zap.Logger
	clock    func() time.Time

	mu           sync.RWMutex
	listener     net.Listener
	status       Status
	statusSubs   map[chan Response]struct{}
	logSubs      map[chan Response]struct{}
	completeSent bool
	wg           sync.WaitGroup
}

// NewServer prepares a daemon server backed by snapshot.
func NewServer(settings Settings, snapshot SnapshotProvider, opts ...Option) *Server {
	s := &Server{
		settings:   settings,
		snapshot:   snapshot,
		logger:     zap.NewNop(),
		clock:      time.Now,
		status:     StatusStarting,
		statusSubs: map[chan Response]struct{}{},
		logSubs:    map[chan Response]struct{}{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Start binds the Unix domain socket and begins accepting connections.
// It returns once the listener is bound; serving continues in the
// background until ctx is cancelled or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.listener != nil {
		s.mu.Unlock()
		return fmt.Errorf("daemon: server already started")
	}
	_ = os.Remove(s.settings.SocketPath)
	listener, err := net.Listen("unix", s.settings.SocketPath)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("daemon: listen %s: %w", s.settings.SocketPath, err)
	}
	s.listener = listener
	s.status = StatusReady
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(ctx)
	s.wg.Add(1)
	go s.broadcastLoop(ctx)
	return nil
}

// Shutdown closes the listener and all subscriber channels, then waits
// for background goroutines to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.listener == nil {
		s.mu.Unlock()
		return nil
	}
	s.status = StatusDraining
	listener := s.listener
	s.listener = nil
	s.mu.Unlock()

	_ = listener.Close()

	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		s.mu.RLock()
		listener := s.listener
		s.mu.RUnlock()
		if listener == nil {
			return
		}
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			select {
			case <-ctx.Done():
				return
			default:
				s.logger.Warn("daemon: accept error", zap.Error(err))
				continue
			}
		}
		s.wg.Add(1)
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	outbox := make(chan Response, 16)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for resp := range outbox {
			if err := WriteFrame(conn, resp); err != nil && isRealIOError(err) {
				return
			}
		}
	}()
	defer func() {
		close(outbox)
		<-writerDone
		s.unsubscribe(outbox)
	}()

	for {
		var req Request
		if err := ReadFrame(conn, &req); err != nil {
			if !errors.Is(err, io.EOF) && isRealIOError(err) {
				s.logger.Debug("daemon: client disconnected", zap.Error(err))
			}
			return
		}
		switch req.Kind {
		case RequestPing:
			outbox <- Response{Kind: ResponsePong}
		case RequestSubscribeStatus:
			s.subscribeStatus(outbox)
			outbox <- Response{Kind: ResponseOk}
		case RequestSubscribeLogs:
			s.subscribeLogs(outbox)
			outbox <- Response{Kind: ResponseOk}
		default:
			outbox <- Response{Kind: ResponseError, Message: fmt.Sprintf("unknown request kind %q", req.Kind)}
		}
	}
}

// isRealIOError distinguishes genuine connection failures (EOF, reset,
// broken pipe) from expected timeouts and non-blocking would-blocks,
// which must never cause a subscriber to be pruned.
func isRealIOError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return false
		}
	}
	return true
}

func (s *Server) subscribeStatus(ch chan Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusSubs[ch] = struct{}{}
}

func (s *Server) subscribeLogs(ch chan Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logSubs[ch] = struct{}{}
}

func (s *Server) unsubscribe(ch chan Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.statusSubs, ch)
	delete(s.logSubs, ch)
}

// PushLogLine delivers line to every connected log subscriber,
// non-blockingly: a slow subscriber drops lines rather than stalling
// the tailer.
func (s *Server) PushLogLine(line string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for ch := range s.logSubs {
		select {
		case ch <- Response{Kind: ResponseLogLine, Line: line}:
		default:
		}
	}
}

func (s *Server) broadcastLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.settings.interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.broadcastStatus()
			if s.checkComplete() {
				return
			}
		}
	}
}

func (s *Server) broadcastStatus() {
	if s.snapshot == nil {
		return
	}
	snap := s.snapshot()
	s.mu.RLock()
	defer s.mu.RUnlock()
	for ch := range s.statusSubs {
		select {
		case ch <- Response{Kind: ResponseStatusUpdate, Snapshot: &snap}:
		default:
		}
	}
}

// checkComplete reads the completion marker once; if present, it
// broadcasts a final OrchestrationComplete message and reports true so
// the caller stops the broadcast loop.
func (s *Server) checkComplete() bool {
	s.mu.Lock()
	if s.completeSent || s.settings.CompletePath == "" {
		s.mu.Unlock()
		return s.completeSent
	}
	if _, err := os.Stat(s.settings.CompletePath); err != nil {
		s.mu.Unlock()
		return false
	}
	s.completeSent = true
	subs := make([]chan Response, 0, len(s.statusSubs))
	for ch := range s.statusSubs {
		subs = append(subs, ch)
	}
	s.mu.Unlock()

	summary := Summary{}
	for _, ch := range subs {
		select {
		case ch <- Response{Kind: ResponseOrchestrationComplete, Summary: &summary}:
		default:
		}
	}
	return true
}

// Status reports the daemon's own lifecycle state.
func (s *Server) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}
