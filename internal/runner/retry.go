package runner

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/Log-Tools/status-ingest/internal/config"
	"github.com/Log-Tools/status-ingest/internal/events"
)

// ComputeBackoff doubles base once per retry, capped at max.
// max <= 0 means uncapped; the delay then saturates at the largest Duration.
func ComputeBackoff(retryCount int, base, max time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	limit := max
	if limit <= 0 {
		limit = time.Duration(math.MaxInt64)
	}

	delay := base
	for i := 0; i < retryCount && delay < limit; i++ {
		if delay > limit/2 {
			return limit
		}
		delay *= 2
	}
	if delay > limit {
		return limit
	}
	return delay
}

// sleepContext waits for d or until ctx is done, whichever comes first
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// forwarder hands statuses to the listener with bounded retries
type forwarder struct {
	listener StatusListener
	retry    config.RetryConfig
	logger   *zap.Logger
}

func (f *forwarder) forward(ctx context.Context, status events.StatusEvent) error {
	var lastErr error
	for attempt := 1; attempt <= f.retry.MaxAttempts; attempt++ {
		err := f.listener.OnStatus(ctx, status)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return newError(KindInterrupted, ctx.Err(), "stopped while forwarding status %d", status.ID)
		}
		lastErr = err

		if attempt == f.retry.MaxAttempts {
			break
		}
		backoff := ComputeBackoff(attempt-1, f.retry.BaseBackoff, f.retry.MaxBackoff)
		f.logger.Warn("⚠️ Listener failed, retrying",
			zap.Uint64("status_id", status.ID),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", f.retry.MaxAttempts),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		if err := sleepContext(ctx, backoff); err != nil {
			return newError(KindInterrupted, err, "stopped while retrying status %d", status.ID)
		}
	}
	return newError(KindListener, lastErr, "listener failed %d time(s) for status %d",
		f.retry.MaxAttempts, status.ID)
}
