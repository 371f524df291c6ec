package runner

import (
	"context"

	"go.uber.org/zap"

	"github.com/Log-Tools/status-ingest/internal/config"
	"github.com/Log-Tools/status-ingest/internal/events"
)

// Firehose opens keyword-filtered connections to the upstream status stream
type Firehose interface {
	Connect(ctx context.Context, keywords []string) (FirehoseStream, error)
}

// FirehoseStream yields raw status envelopes from one upstream connection.
// Next blocks until a payload arrives, the connection fails or ctx is done.
type FirehoseStream interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// LiveStreamRunner forwards statuses received from the upstream firehose.
// The next payload is not read until the listener has accepted the current one.
type LiveStreamRunner struct {
	config    *config.Config
	firehose  Firehose
	listener  StatusListener
	forwarder *forwarder
	logger    *zap.Logger
	lifecycle
}

// NewLiveStreamRunner creates a firehose-backed runner
func NewLiveStreamRunner(cfg *config.Config, firehose Firehose, listener StatusListener, logger *zap.Logger) *LiveStreamRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &LiveStreamRunner{
		config:   cfg,
		firehose: firehose,
		listener: listener,
		logger:   logger.Named("live-runner"),
	}
	if cfg != nil {
		r.forwarder = &forwarder{listener: listener, retry: cfg.Listener, logger: r.logger}
	}
	return r
}

// Start connects to the firehose and launches the forwarding loop. The first
// connection is made synchronously so an unreachable upstream fails Start.
func (r *LiveStreamRunner) Start(ctx context.Context) (*Handle, error) {
	if r.config == nil {
		return nil, newError(KindSetup, nil, "configuration is required")
	}
	if err := r.config.ValidateLiveRunner(); err != nil {
		return nil, newError(KindSetup, err, "invalid live runner configuration")
	}
	if r.firehose == nil {
		return nil, newError(KindSetup, nil, "firehose is required")
	}
	if r.listener == nil {
		return nil, newError(KindSetup, nil, "status listener is required")
	}
	if err := r.begin(); err != nil {
		return nil, err
	}

	r.logger.Info("🚀 Starting filtering status stream",
		zap.Strings("keywords", r.config.Keywords))

	handle, runCtx := newHandle(ctx)

	attempts := 0
	stream, err := r.connect(runCtx, &attempts, nil)
	if err != nil {
		r.end()
		reportStop(r.logger, err)
		handle.finish(err)
		return nil, err
	}

	go func() {
		err := r.run(runCtx, stream)
		r.end()
		reportStop(r.logger, err)
		handle.finish(err)
	}()

	return handle, nil
}

func (r *LiveStreamRunner) run(ctx context.Context, stream FirehoseStream) error {
	defer func() {
		if stream != nil {
			stream.Close()
		}
	}()

	// Connection attempts since the last successful read
	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return newError(KindInterrupted, err, "live stream stopped")
		}

		payload, err := stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return newError(KindInterrupted, ctx.Err(), "live stream stopped")
			}
			r.logger.Warn("⚠️ Firehose connection lost", zap.Error(err))
			stream.Close()
			stream = nil

			stream, err = r.connect(ctx, &attempts, err)
			if err != nil {
				return err
			}
			continue
		}
		attempts = 0

		status, err := events.ParseUpstreamEnvelope(payload)
		if err != nil {
			r.logger.Warn("⚠️ Skipping undecodable upstream status",
				zap.ByteString("payload", payload),
				zap.Error(err))
			continue
		}

		if err := r.forwarder.forward(ctx, status); err != nil {
			return err
		}
	}
}

// connect dials the firehose until it succeeds or attempts reaches the reconnect budget
func (r *LiveStreamRunner) connect(ctx context.Context, attempts *int, cause error) (FirehoseStream, error) {
	retry := r.config.Live.Reconnect
	lastErr := cause
	for {
		if *attempts >= retry.MaxAttempts {
			return nil, newError(KindUpstream, lastErr, "gave up connecting to firehose after %d attempt(s)", *attempts)
		}
		if *attempts > 0 {
			backoff := ComputeBackoff(*attempts-1, retry.BaseBackoff, retry.MaxBackoff)
			r.logger.Info("🔄 Reconnecting to firehose",
				zap.Int("attempt", *attempts+1),
				zap.Int("max_attempts", retry.MaxAttempts),
				zap.Duration("backoff", backoff))
			if err := sleepContext(ctx, backoff); err != nil {
				return nil, newError(KindInterrupted, err, "stopped while reconnecting to firehose")
			}
		}
		*attempts++

		stream, err := r.firehose.Connect(ctx, r.config.Keywords)
		if err == nil {
			r.logger.Info("✅ Connected to firehose", zap.Int("attempt", *attempts))
			return stream, nil
		}
		if ctx.Err() != nil {
			return nil, newError(KindInterrupted, ctx.Err(), "stopped while connecting to firehose")
		}
		lastErr = err
		r.logger.Warn("⚠️ Firehose connection failed",
			zap.Int("attempt", *attempts),
			zap.Error(err))
	}
}
