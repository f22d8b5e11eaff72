package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"taskline/internal/config"
	"taskline/internal/domain"
	"taskline/internal/logger"
)

type memorySource struct {
	mu     sync.Mutex
	events []domain.Event
}

func (m *memorySource) add(evtType, entityID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, domain.Event{
		ID:         int64(len(m.events) + 1),
		TS:         "2026-01-02T03:04:05Z",
		Type:       evtType,
		EntityKind: "task",
		EntityID:   entityID,
		ActorID:    "u-1",
		Payload:    `{"title":"t"}`,
	})
}

func (m *memorySource) EventsAfter(_ context.Context, limit int, cursor int64) ([]domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Event
	for _, e := range m.events {
		if e.ID > cursor && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memorySource) LatestEventID(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.events)), nil
}

type delivery struct {
	event     string
	signature string
	body      webhookEvent
}

type recorder struct {
	mu     sync.Mutex
	got    []delivery
	status int
}

func (r *recorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	data, _ := io.ReadAll(req.Body)
	var evt webhookEvent
	_ = json.Unmarshal(data, &evt)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, delivery{
		event:     req.Header.Get("X-Taskline-Event"),
		signature: req.Header.Get("X-Taskline-Signature"),
		body:      evt,
	})
	if r.status != 0 {
		w.WriteHeader(r.status)
	}
}

func (r *recorder) deliveries() []delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]delivery(nil), r.got...)
}

func TestDispatchSkipsHistoryAndFilters(t *testing.T) {
	src := &memorySource{}
	src.add("task.created", "old")

	rec := &recorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	d := New(src, []config.WebhookConfig{{URL: srv.URL, Secret: "s3cret", Events: []string{"task.deleted"}}},
		WithClient(srv.Client()), WithLogger(logger.Discard()))
	ctx := context.Background()
	d.DispatchOnce(ctx)
	assert.Empty(t, rec.deliveries(), "events before start are not replayed")

	src.add("task.created", "t-1")
	src.add("task.deleted", "t-2")
	d.DispatchOnce(ctx)

	got := rec.deliveries()
	require.Len(t, got, 1)
	assert.Equal(t, "task.deleted", got[0].event)
	assert.Equal(t, "t-2", got[0].body.EntityID)
	assert.JSONEq(t, `{"title":"t"}`, string(got[0].body.Payload))
	assert.Regexp(t, `^sha256=[0-9a-f]{64}$`, got[0].signature)
	assert.Equal(t, int64(3), d.Cursor(0))
}

func TestDispatchRetriesAfterFailure(t *testing.T) {
	src := &memorySource{}
	rec := &recorder{status: http.StatusBadGateway}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	d := New(src, []config.WebhookConfig{{URL: srv.URL}}, WithClient(srv.Client()), WithLogger(logger.Discard()))
	ctx := context.Background()
	d.DispatchOnce(ctx)
	src.add("project.created", "p-1")

	d.DispatchOnce(ctx)
	assert.Equal(t, int64(0), d.Cursor(0), "cursor stays on failed delivery")

	rec.mu.Lock()
	rec.status = 0
	rec.mu.Unlock()
	d.DispatchOnce(ctx)
	assert.Equal(t, int64(1), d.Cursor(0))
	got := rec.deliveries()
	require.Len(t, got, 2)
	assert.Empty(t, got[1].signature)
}

func TestDisabledHookIsSkipped(t *testing.T) {
	off := false
	d := New(&memorySource{}, []config.WebhookConfig{{URL: "http://127.0.0.1:1", Enabled: &off}})
	assert.False(t, d.Enabled())
	d.DispatchOnce(context.Background())
	assert.Equal(t, int64(0), d.Cursor(0))
}

func TestSign(t *testing.T) {
	a := Sign("k", []byte(`{"id":1}`))
	assert.Equal(t, a, Sign("k", []byte(`{"id":1}`)))
	assert.NotEqual(t, a, Sign("other", []byte(`{"id":1}`)))
}

func TestRunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := &memorySource{}
	rec := &recorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	d := New(src, []config.WebhookConfig{{URL: srv.URL}},
		WithClient(srv.Client()), WithInterval(5*time.Millisecond), WithLogger(logger.Discard()))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		_, ok := d.cursors[0]
		return ok
	}, time.Second, 5*time.Millisecond)
	src.add("task.updated", "t-9")
	require.Eventually(t, func() bool { return len(rec.deliveries()) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
}
