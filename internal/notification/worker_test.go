package notification

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anujtewari17/iaqualink-spa-control/internal/model"
)

// mockSender is a mock implementation of the Sender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// Send calls the mock SendFunc.
func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

type memStore struct {
	mu   sync.Mutex
	subs []model.PushSubscription
}

func (m *memStore) AppendSession(context.Context, model.UsageSession) error { return nil }
func (m *memStore) PruneSessions(context.Context, time.Time) (int64, error) { return 0, nil }
func (m *memStore) ListSessions(context.Context, time.Time) ([]model.UsageSession, error) {
	return nil, nil
}
func (m *memStore) UpsertSubscription(_ context.Context, sub model.PushSubscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, sub)
	return nil
}
func (m *memStore) DeleteSubscription(_ context.Context, endpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []model.PushSubscription
	for _, s := range m.subs {
		if s.Endpoint != endpoint {
			kept = append(kept, s)
		}
	}
	m.subs = kept
	return nil
}
func (m *memStore) ListSubscriptions(context.Context) ([]model.PushSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.PushSubscription, len(m.subs))
	copy(out, m.subs)
	return out, nil
}

func (m *memStore) endpoints() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, s := range m.subs {
		out = append(out, s.Endpoint)
	}
	return out
}

func TestWorkerPool_Dispatch(t *testing.T) {
	wp := NewWorkerPool(1, &memStore{}, &webpush.Options{})

	wp.Dispatch("spa running long")

	select {
	case job := <-wp.Jobs():
		assert.Equal(t, "spa running long", job)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for job to be dispatched")
	}
}

func TestWorkerPool_DispatchNeverBlocks(t *testing.T) {
	wp := NewWorkerPool(1, &memStore{}, &webpush.Options{})

	// Queue capacity equals the pool size; with no workers running the
	// second dispatch must drop instead of blocking.
	done := make(chan struct{})
	go func() {
		wp.Dispatch("first")
		wp.Dispatch("second")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("Dispatch blocked on a full queue")
	}
}

func TestWorkerPool_SendsToEverySubscription(t *testing.T) {
	s := &memStore{}
	require.NoError(t, s.UpsertSubscription(context.Background(), model.PushSubscription{
		Endpoint: "https://example.com/push/1", P256DH: "k1", Auth: "a1",
	}))
	require.NoError(t, s.UpsertSubscription(context.Background(), model.PushSubscription{
		Endpoint: "https://example.com/push/2", P256DH: "k2", Auth: "a2",
	}))

	wp := NewWorkerPool(1, s, &webpush.Options{})

	var wg sync.WaitGroup
	wg.Add(2)
	var mu sync.Mutex
	var sent []string
	wp.SetSender(&mockSender{
		SendFunc: func(payload []byte, sub *webpush.Subscription, _ *webpush.Options) (*http.Response, error) {
			mu.Lock()
			sent = append(sent, sub.Endpoint)
			mu.Unlock()
			assert.Equal(t, "the spa is still running", string(payload))
			wg.Done()
			return &http.Response{
				StatusCode: http.StatusCreated,
				Body:       io.NopCloser(bytes.NewBufferString("")),
			}, nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	wp.Dispatch("the spa is still running")
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"https://example.com/push/1", "https://example.com/push/2"}, sent)
}

func TestWorkerPool_DeletesExpiredSubscription(t *testing.T) {
	s := &memStore{}
	require.NoError(t, s.UpsertSubscription(context.Background(), model.PushSubscription{
		Endpoint: "https://example.com/push/expired", P256DH: "k", Auth: "a",
	}))

	wp := NewWorkerPool(1, s, &webpush.Options{})
	wp.SetSender(&mockSender{
		SendFunc: func([]byte, *webpush.Subscription, *webpush.Options) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusGone,
				Body:       io.NopCloser(bytes.NewBufferString("")),
			}, nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	wp.Dispatch("expiry check")

	assert.Eventually(t, func() bool {
		return len(s.endpoints()) == 0
	}, time.Second, 10*time.Millisecond, "410 Gone must remove the subscription")
}

func TestWorkerPool_NilOptionsLogsOnly(t *testing.T) {
	s := &memStore{}
	require.NoError(t, s.UpsertSubscription(context.Background(), model.PushSubscription{
		Endpoint: "https://example.com/push/1", P256DH: "k", Auth: "a",
	}))

	wp := NewWorkerPool(1, s, nil)
	wp.SetSender(&mockSender{
		SendFunc: func([]byte, *webpush.Subscription, *webpush.Options) (*http.Response, error) {
			t.Error("sender must not be called when push is disabled")
			return nil, nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	wp.Dispatch("push disabled")

	// Give the worker a moment; the sender asserts if invoked.
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, s.endpoints(), 1)
}
