package runner

import (
	"context"
	"errors"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Log-Tools/status-ingest/internal/config"
	"github.com/Log-Tools/status-ingest/internal/events"
)

// StatusListener receives decoded statuses one at a time and forwards them onward.
// A returned error is retried according to the listener retry policy.
type StatusListener interface {
	OnStatus(ctx context.Context, status events.StatusEvent) error
}

// ListenerFunc adapts a function to StatusListener
type ListenerFunc func(ctx context.Context, status events.StatusEvent) error

// OnStatus calls f(ctx, status)
func (f ListenerFunc) OnStatus(ctx context.Context, status events.StatusEvent) error {
	return f(ctx, status)
}

// StreamRunner produces statuses in the background until stopped or a fatal error.
// Start returns once the loop is scheduled; it fails with a *Error when the runner
// cannot begin. A runner instance can be started only once.
type StreamRunner interface {
	Start(ctx context.Context) (*Handle, error)
}

// New selects the runner variant from cfg.EnableMockTweets.
// firehose is only used by the live variant and may be nil in mock mode.
func New(cfg *config.Config, listener StatusListener, firehose Firehose, logger *zap.Logger) (StreamRunner, error) {
	if cfg == nil {
		return nil, newError(KindSetup, nil, "configuration is required")
	}
	if err := cfg.ValidateRunner(); err != nil {
		return nil, newError(KindSetup, err, "invalid runner configuration")
	}
	if cfg.EnableMockTweets {
		return NewMockStreamRunner(cfg, listener, logger), nil
	}
	return NewLiveStreamRunner(cfg, firehose, listener, logger), nil
}

// Handle controls one started runner
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func newHandle(parent context.Context) (*Handle, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	return &Handle{
		cancel: cancel,
		done:   make(chan struct{}),
	}, ctx
}

// Stop asks the runner to stop. It is safe to call more than once.
func (h *Handle) Stop() {
	h.cancel()
}

// Done is closed once the runner loop has exited
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the runner loop exits and returns its terminal error
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}

func (h *Handle) finish(err error) {
	h.err = err
	h.cancel()
	close(h.done)
}

// IsInterrupted reports whether err only records a requested stop
func IsInterrupted(err error) bool {
	return errors.Is(err, ErrInterrupted)
}

const (
	stateNotStarted int32 = iota
	stateRunning
	stateStopped
)

// lifecycle guards the not started -> running -> stopped transitions
type lifecycle struct {
	state atomic.Int32
}

func (l *lifecycle) begin() error {
	if l.state.CompareAndSwap(stateNotStarted, stateRunning) {
		return nil
	}
	if l.state.Load() == stateStopped {
		return newError(KindAlreadyRunning, nil, "runner has already stopped")
	}
	return newError(KindAlreadyRunning, nil, "runner is already running")
}

func (l *lifecycle) end() {
	l.state.Store(stateStopped)
}
