package runner

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Log-Tools/status-ingest/internal/config"
	"github.com/Log-Tools/status-ingest/internal/events"
)

// Filler vocabulary for synthetic statuses
var words = [...]string{
	"Lorem", "ipsum", "dolor", "sit", "amet", "consectetuer",
	"adipiscing", "elit", "Maecenas", "porttitor", "congue", "massa",
	"Fusce", "posuere", "magna", "sed", "pulvinar", "ultricies",
	"purus", "lectus", "malesuada", "libero",
}

// MockOption customizes a MockStreamRunner
type MockOption func(*MockStreamRunner)

// WithRand replaces the runner's random source, e.g. with a fixed seed in tests
func WithRand(rng *rand.Rand) MockOption {
	return func(r *MockStreamRunner) {
		r.rng = rng
	}
}

// WithClock replaces the time source used for created_at
func WithClock(now func() time.Time) MockOption {
	return func(r *MockStreamRunner) {
		r.now = now
	}
}

// MockStreamRunner synthesizes keyword-seeded statuses at a fixed cadence
// for environments without access to the upstream firehose
type MockStreamRunner struct {
	config    *config.Config
	listener  StatusListener
	forwarder *forwarder
	logger    *zap.Logger
	rng       *rand.Rand
	now       func() time.Time
	lifecycle
}

// NewMockStreamRunner creates a synthetic status runner
func NewMockStreamRunner(cfg *config.Config, listener StatusListener, logger *zap.Logger, opts ...MockOption) *MockStreamRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &MockStreamRunner{
		config:   cfg,
		listener: listener,
		logger:   logger.Named("mock-runner"),
		now:      time.Now,
	}
	if cfg != nil {
		r.rng = newRand(cfg.Mock.Seed)
		r.forwarder = &forwarder{listener: listener, retry: cfg.Listener, logger: r.logger}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Start validates the configuration and launches the generation loop
func (r *MockStreamRunner) Start(ctx context.Context) (*Handle, error) {
	if r.config == nil {
		return nil, newError(KindSetup, nil, "configuration is required")
	}
	if err := r.config.ValidateMockRunner(); err != nil {
		return nil, newError(KindSetup, err, "invalid mock runner configuration")
	}
	if r.listener == nil {
		return nil, newError(KindSetup, nil, "status listener is required")
	}
	if err := r.begin(); err != nil {
		return nil, err
	}

	r.logger.Info("🚀 Starting mock filtering status stream",
		zap.Strings("keywords", r.config.Keywords),
		zap.Int("min_tweet_length", r.config.Mock.MinTweetLength),
		zap.Int("max_tweet_length", r.config.Mock.MaxTweetLength),
		zap.Duration("sleep", r.config.Mock.SleepDuration()))

	handle, runCtx := newHandle(ctx)
	go func() {
		err := r.run(runCtx)
		r.end()
		reportStop(r.logger, err)
		handle.finish(err)
	}()

	return handle, nil
}

// run is the generation loop: synthesize, decode, forward, sleep
func (r *MockStreamRunner) run(ctx context.Context) error {
	delay := r.config.Mock.SleepDuration()
	for {
		if err := ctx.Err(); err != nil {
			return newError(KindInterrupted, err, "mock stream stopped")
		}

		status, err := r.next()
		if err != nil {
			return err
		}

		if err := r.forwarder.forward(ctx, status); err != nil {
			return err
		}

		if err := sleepContext(ctx, delay); err != nil {
			return newError(KindInterrupted, err, "stopped while waiting for the next status")
		}
	}
}

// next synthesizes one status and parses it back through the envelope decoder
func (r *MockStreamRunner) next() (events.StatusEvent, error) {
	payload, err := events.EncodeEnvelope(r.synthesize())
	if err != nil {
		return events.StatusEvent{}, newError(KindGeneration, err, "failed to encode synthetic status")
	}

	status, err := events.DecodeEnvelope(payload)
	if err != nil {
		return events.StatusEvent{}, newError(KindGeneration, err, "failed to decode synthetic status %s", payload)
	}

	if err := r.validate(status); err != nil {
		return events.StatusEvent{}, newError(KindGeneration, err, "synthetic status %d is invalid", status.ID)
	}

	return status, nil
}

func (r *MockStreamRunner) synthesize() events.StatusEvent {
	return events.StatusEvent{
		CreatedAt: r.now(),
		ID:        r.randomID(),
		Text:      r.randomText(),
		UserID:    r.randomID(),
	}
}

// randomID draws from [0, 2^63-1)
func (r *MockStreamRunner) randomID() uint64 {
	return uint64(r.rng.Int64N(math.MaxInt64))
}

// randomText builds n words with a keyword at index n/2, n drawn uniformly
// from [max(min, 1), max]
func (r *MockStreamRunner) randomText() string {
	lower := max(r.config.Mock.MinTweetLength, 1)
	n := lower + r.rng.IntN(r.config.Mock.MaxTweetLength-lower+1)

	tokens := make([]string, n)
	for i := range tokens {
		tokens[i] = words[r.rng.IntN(len(words))]
	}
	tokens[n/2] = strings.TrimSpace(r.config.Keywords[r.rng.IntN(len(r.config.Keywords))])

	return strings.TrimSpace(strings.Join(tokens, " "))
}

func (r *MockStreamRunner) validate(status events.StatusEvent) error {
	fields := strings.Fields(status.Text)
	if len(fields) < r.config.Mock.MinTweetLength || len(fields) > r.config.Mock.MaxTweetLength {
		return fmt.Errorf("word count %d outside [%d, %d]",
			len(fields), r.config.Mock.MinTweetLength, r.config.Mock.MaxTweetLength)
	}
	if !containsKeyword(fields, r.config.Keywords) {
		return fmt.Errorf("text %q contains none of the keywords", status.Text)
	}
	return nil
}

func containsKeyword(fields, keywords []string) bool {
	for _, field := range fields {
		for _, keyword := range keywords {
			if field == strings.TrimSpace(keyword) {
				return true
			}
		}
	}
	return false
}

// reportStop logs the terminal error of a runner loop
func reportStop(logger *zap.Logger, err error) {
	if IsInterrupted(err) {
		logger.Info("🛑 Status stream stopped", zap.Error(err))
		return
	}
	logger.Error("❌ Status stream failed", zap.Error(err))
}
