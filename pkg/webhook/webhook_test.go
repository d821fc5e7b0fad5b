package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weightwave/taskcast/pkg/taskcast"
)

func TestBackoffMs(t *testing.T) {
	cases := []struct {
		strategy taskcast.BackoffStrategy
		attempt  int
		want     int64
	}{
		{taskcast.BackoffFixed, 1, 1000},
		{taskcast.BackoffFixed, 5, 1000},
		{taskcast.BackoffLinear, 1, 1000},
		{taskcast.BackoffLinear, 3, 3000},
		{taskcast.BackoffExponential, 1, 1000},
		{taskcast.BackoffExponential, 2, 2000},
		{taskcast.BackoffExponential, 3, 4000},
		{taskcast.BackoffExponential, 4, 8000},
		{taskcast.BackoffExponential, 5, 16000},
		{taskcast.BackoffExponential, 6, 30000}, // capped
		{taskcast.BackoffExponential, 10, 30000},
	}
	for _, c := range cases {
		got := BackoffMs(c.strategy, c.attempt, 1000, 30000)
		assert.Equal(t, c.want, got, "strategy=%s attempt=%d", c.strategy, c.attempt)
	}
}

func TestSign(t *testing.T) {
	sig := sign("s3cret", []byte(`{"a":1}`))
	assert.Regexp(t, `^sha256=[0-9a-f]{64}$`, sig)
}

func TestDeliver_FilterMismatchIsSilentNoOp(t *testing.T) {
	var called int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&called, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := New(srv.Client())
	wh := taskcast.WebhookConfig{
		URL:    srv.URL,
		Filter: &taskcast.SubscribeFilter{Types: []string{"other"}},
	}
	err := d.Deliver(context.Background(), wh, taskcast.TaskEvent{Type: "progress"})
	require.NoError(t, err)
	assert.EqualValues(t, 0, atomic.LoadInt32(&called))
}

func TestDeliver_SucceedsOn2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.Header.Get("X-Taskcast-Event"))
		assert.NotEmpty(t, r.Header.Get("X-Taskcast-Timestamp"))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	d := New(srv.Client())
	wh := taskcast.WebhookConfig{URL: srv.URL}
	err := d.Deliver(context.Background(), wh, taskcast.TaskEvent{ID: "e1", Type: "progress"})
	require.NoError(t, err)
}

func TestDeliver_SignsWhenSecretPresent(t *testing.T) {
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Taskcast-Signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := New(srv.Client())
	wh := taskcast.WebhookConfig{URL: srv.URL, Secret: "topsecret"}
	require.NoError(t, d.Deliver(context.Background(), wh, taskcast.TaskEvent{ID: "e1"}))
	assert.Regexp(t, `^sha256=[0-9a-f]{64}$`, gotSig)
}

func TestDeliver_RetriesThenFails(t *testing.T) {
	var called int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&called, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := New(srv.Client())
	wh := taskcast.WebhookConfig{
		URL: srv.URL,
		Retry: &taskcast.RetryConfig{
			Retries:        2,
			Backoff:        taskcast.BackoffFixed,
			InitialDelayMs: 1,
			MaxDelayMs:     10,
			TimeoutMs:      1000,
		},
	}
	err := d.Deliver(context.Background(), wh, taskcast.TaskEvent{ID: "e1"})
	require.Error(t, err)
	var dfe *DeliveryFailedError
	require.ErrorAs(t, err, &dfe)
	assert.Equal(t, 3, dfe.Attempts)
	assert.EqualValues(t, 3, atomic.LoadInt32(&called))
}

func TestDeliver_WrapsEnvelopeByDefault(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := New(srv.Client())
	wh := taskcast.WebhookConfig{URL: srv.URL}
	require.NoError(t, d.Deliver(context.Background(), wh, taskcast.TaskEvent{ID: "e1", TaskID: "t1", Type: "progress"}))
	assert.Equal(t, "e1", body["eventId"])
	assert.Equal(t, "t1", body["taskId"])
}
