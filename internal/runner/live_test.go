package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Log-Tools/status-ingest/internal/config"
	"github.com/Log-Tools/status-ingest/internal/events"
)

func createLiveConfig() *config.Config {
	return &config.Config{
		EnableMockTweets: false,
		Keywords:         []string{"golang", "event streaming"},
		Live: config.LiveConfig{
			StreamURL: "ws://firehose.test/stream",
			Reconnect: config.RetryConfig{MaxAttempts: 3},
		},
		Listener: config.RetryConfig{MaxAttempts: 2},
	}
}

// fakeStream serves payloads from a channel; a closed channel reads as a dropped connection
type fakeStream struct {
	payloads chan []byte
	nexts    atomic.Int32
	closed   atomic.Bool
}

func newFakeStream(payloads ...[]byte) *fakeStream {
	s := &fakeStream{payloads: make(chan []byte, len(payloads)+1)}
	for _, p := range payloads {
		s.payloads <- p
	}
	return s
}

func (s *fakeStream) Next(ctx context.Context) ([]byte, error) {
	s.nexts.Add(1)
	select {
	case p, ok := <-s.payloads:
		if !ok {
			return nil, errors.New("connection reset by upstream")
		}
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *fakeStream) Close() error {
	s.closed.Store(true)
	return nil
}

type fakeFirehose struct {
	mu       sync.Mutex
	connects int
	keywords []string
	connect  func(attempt int) (FirehoseStream, error)
}

func (f *fakeFirehose) Connect(ctx context.Context, keywords []string) (FirehoseStream, error) {
	f.mu.Lock()
	f.connects++
	attempt := f.connects
	f.keywords = keywords
	f.mu.Unlock()
	return f.connect(attempt)
}

func (f *fakeFirehose) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func envelope(t *testing.T, id uint64, text string) []byte {
	t.Helper()
	payload, err := events.EncodeEnvelope(events.StatusEvent{
		CreatedAt: time.Date(2024, time.March, 4, 15, 4, 5, 0, time.UTC),
		ID:        id,
		Text:      text,
		UserID:    id * 10,
	})
	require.NoError(t, err)
	return payload
}

func TestLiveStreamRunner_ForwardsInOrder(t *testing.T) {
	stream := newFakeStream(
		envelope(t, 1, "first golang status"),
		[]byte(`{"not":"an envelope"}`),
		envelope(t, 2, "second golang status"),
	)
	firehose := &fakeFirehose{connect: func(int) (FirehoseStream, error) { return stream, nil }}
	listener := newRecordingListener()

	r := NewLiveStreamRunner(createLiveConfig(), firehose, listener, nil)
	handle, err := r.Start(context.Background())
	require.NoError(t, err)

	listener.waitFor(t, 2)
	handle.Stop()
	assert.ErrorIs(t, handle.Wait(), ErrInterrupted)

	statuses, _ := listener.snapshot()
	require.Len(t, statuses, 2)
	assert.Equal(t, uint64(1), statuses[0].ID)
	assert.Equal(t, uint64(10), statuses[0].UserID)
	assert.Equal(t, uint64(2), statuses[1].ID)
	assert.Equal(t, []string{"golang", "event streaming"}, firehose.keywords)
	assert.True(t, stream.closed.Load())
}

func TestLiveStreamRunner_SkipsUndecodablePayloads(t *testing.T) {
	stream := newFakeStream(
		[]byte(`not json at all`),
		[]byte(`{"created_at":"Mon Mar 04 15:04:05 +0000 2024","id":"5","text":"extra fields golang","user":{"id":"50","screen_name":"gopher"},"lang":"en","entities":{"hashtags":[]}}`),
		[]byte(`{"created_at":"yesterday","id":"6","text":"bad date golang","user":{"id":"60"}}`),
		envelope(t, 7, "plain golang status"),
	)
	firehose := &fakeFirehose{connect: func(int) (FirehoseStream, error) { return stream, nil }}
	listener := newRecordingListener()

	r := NewLiveStreamRunner(createLiveConfig(), firehose, listener, nil)
	handle, err := r.Start(context.Background())
	require.NoError(t, err)

	listener.waitFor(t, 2)

	statuses, _ := listener.snapshot()
	require.Len(t, statuses, 2)
	assert.Equal(t, uint64(5), statuses[0].ID)
	assert.Equal(t, uint64(50), statuses[0].UserID)
	assert.Equal(t, "extra fields golang", statuses[0].Text)
	assert.Equal(t, uint64(7), statuses[1].ID)

	select {
	case <-handle.Done():
		t.Fatal("runner stopped on undecodable payloads")
	default:
	}
	assert.True(t, r.running())
	assert.Equal(t, 1, firehose.connectCount())

	handle.Stop()
	assert.ErrorIs(t, handle.Wait(), ErrInterrupted)
}

func TestLiveStreamRunner_ReconnectsAfterDrop(t *testing.T) {
	first := newFakeStream(envelope(t, 1, "before drop golang"))
	close(first.payloads)
	second := newFakeStream(envelope(t, 2, "after drop golang"))

	firehose := &fakeFirehose{connect: func(attempt int) (FirehoseStream, error) {
		if attempt == 1 {
			return first, nil
		}
		return second, nil
	}}
	listener := newRecordingListener()

	r := NewLiveStreamRunner(createLiveConfig(), firehose, listener, nil)
	handle, err := r.Start(context.Background())
	require.NoError(t, err)

	listener.waitFor(t, 2)
	handle.Stop()
	assert.ErrorIs(t, handle.Wait(), ErrInterrupted)

	statuses, _ := listener.snapshot()
	require.Len(t, statuses, 2)
	assert.Equal(t, uint64(1), statuses[0].ID)
	assert.Equal(t, uint64(2), statuses[1].ID)
	assert.Equal(t, 2, firehose.connectCount())
	assert.True(t, first.closed.Load())
}

func TestLiveStreamRunner_StartFailsWhenUpstreamUnreachable(t *testing.T) {
	cause := errors.New("401 unauthorized")
	firehose := &fakeFirehose{connect: func(int) (FirehoseStream, error) { return nil, cause }}
	listener := newRecordingListener()

	r := NewLiveStreamRunner(createLiveConfig(), firehose, listener, nil)
	handle, err := r.Start(context.Background())

	assert.Nil(t, handle)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 3, firehose.connectCount())
	assert.False(t, r.running())
}

func TestLiveStreamRunner_GivesUpAfterRepeatedDrops(t *testing.T) {
	firehose := &fakeFirehose{connect: func(int) (FirehoseStream, error) {
		s := newFakeStream()
		close(s.payloads)
		return s, nil
	}}

	r := NewLiveStreamRunner(createLiveConfig(), firehose, newRecordingListener(), nil)
	handle, err := r.Start(context.Background())
	require.NoError(t, err)

	select {
	case <-handle.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("runner kept reconnecting")
	}

	assert.ErrorIs(t, handle.Wait(), ErrUpstream)
	// initial connect plus the reconnect budget
	assert.Equal(t, 4, firehose.connectCount())
}

func TestLiveStreamRunner_BackPressure(t *testing.T) {
	stream := newFakeStream(envelope(t, 1, "one golang"), envelope(t, 2, "two golang"))
	firehose := &fakeFirehose{connect: func(int) (FirehoseStream, error) { return stream, nil }}

	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	listener := ListenerFunc(func(ctx context.Context, status events.StatusEvent) error {
		entered <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})

	r := NewLiveStreamRunner(createLiveConfig(), firehose, listener, nil)
	handle, err := r.Start(context.Background())
	require.NoError(t, err)

	<-entered
	// The listener is still busy with the first status
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), stream.nexts.Load())

	close(release)
	<-entered
	handle.Stop()
	assert.ErrorIs(t, handle.Wait(), ErrInterrupted)
}

func TestLiveStreamRunner_ListenerFailureIsFatal(t *testing.T) {
	stream := newFakeStream(envelope(t, 1, "one golang"))
	firehose := &fakeFirehose{connect: func(int) (FirehoseStream, error) { return stream, nil }}

	var calls atomic.Int32
	listener := ListenerFunc(func(ctx context.Context, status events.StatusEvent) error {
		calls.Add(1)
		return errors.New("message too large")
	})

	r := NewLiveStreamRunner(createLiveConfig(), firehose, listener, nil)
	handle, err := r.Start(context.Background())
	require.NoError(t, err)

	assert.ErrorIs(t, handle.Wait(), ErrListener)
	assert.Equal(t, int32(2), calls.Load())
}

func TestLiveStreamRunner_Start_Setup(t *testing.T) {
	firehose := &fakeFirehose{connect: func(int) (FirehoseStream, error) { return newFakeStream(), nil }}

	t.Run("mock flag set", func(t *testing.T) {
		cfg := createLiveConfig()
		cfg.EnableMockTweets = true
		handle, err := NewLiveStreamRunner(cfg, firehose, newRecordingListener(), nil).Start(context.Background())
		require.NoError(t, err)

		handle.Stop()
		assert.ErrorIs(t, handle.Wait(), ErrInterrupted)
	})

	t.Run("missing firehose", func(t *testing.T) {
		_, err := NewLiveStreamRunner(createLiveConfig(), nil, newRecordingListener(), nil).Start(context.Background())
		assert.ErrorIs(t, err, ErrSetup)
	})

	t.Run("missing stream url", func(t *testing.T) {
		cfg := createLiveConfig()
		cfg.Live.StreamURL = ""
		_, err := NewLiveStreamRunner(cfg, firehose, newRecordingListener(), nil).Start(context.Background())
		assert.ErrorIs(t, err, ErrSetup)
	})

	t.Run("second start", func(t *testing.T) {
		r := NewLiveStreamRunner(createLiveConfig(), firehose, newRecordingListener(), nil)
		handle, err := r.Start(context.Background())
		require.NoError(t, err)

		_, err = r.Start(context.Background())
		assert.ErrorIs(t, err, ErrAlreadyRunning)

		handle.Stop()
		assert.ErrorIs(t, handle.Wait(), ErrInterrupted)
	})

	assert.Equal(t, 2, firehose.connectCount())
}
