package notify

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu       sync.Mutex
	titles   []string
	messages []string
}

func (r *recordingSender) Send(ctx context.Context, title, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, title)
	r.messages = append(r.messages, message)
	return nil
}

func (r *recordingSender) Name() string { return "recording" }

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.titles)
}

type channelBus struct {
	ch chan []byte
}

func (b *channelBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.ch <- payload
	return nil
}

func (b *channelBus) Subscribe(ctx context.Context, channels ...string) (<-chan []byte, error) {
	return b.ch, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSettlementWatcherForwardsEvents(t *testing.T) {
	sender := &recordingSender{}
	notifier := NewNotifier([]Sender{sender}, []string{"market_settled"}, testLogger())
	bus := &channelBus{ch: make(chan []byte, 4)}
	watcher := NewSettlementWatcher(bus, notifier, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		watcher.Run(ctx)
		close(done)
	}()

	bus.ch <- []byte(`{"event":"market_settled","market_id":9,"token":"PEPE","outcome":"RUG","final_price":"1000"}`)
	bus.ch <- []byte(`{"event":"feed_refreshed","markets":3}`) // ignored
	bus.ch <- []byte(`not json`)                               // ignored

	require.Eventually(t, func() bool { return sender.count() == 1 }, time.Second, 10*time.Millisecond)

	sender.mu.Lock()
	assert.Equal(t, "Market 9 settled: RUG", sender.titles[0])
	assert.Contains(t, sender.messages[0], "PEPE")
	assert.Contains(t, sender.messages[0], "1000")
	sender.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop on cancel")
	}
}

func TestNotifierEventFilter(t *testing.T) {
	sender := &recordingSender{}
	notifier := NewNotifier([]Sender{sender}, []string{"market_settled"}, testLogger())

	require.NoError(t, notifier.Notify(context.Background(), "feed_refreshed", "t", "m"))
	assert.Equal(t, 0, sender.count())

	require.NoError(t, notifier.Notify(context.Background(), "market_settled", "t", "m"))
	assert.Equal(t, 1, sender.count())
}
