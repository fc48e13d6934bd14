package collysource

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceFetch_ReturnsBody(t *testing.T) {
	t.Parallel()

	var gotUA atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.UserAgent())
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body>Informe parcela</body></html>"))
	}))
	t.Cleanup(srv.Close)

	src := New(Config{UserAgent: "parcel-report-pdf/test", Timeout: 5 * time.Second})
	body, err := src.Fetch(context.Background(), srv.URL+"/parcelas/07045A00200407/informeHTML")
	require.NoError(t, err)
	assert.Contains(t, body, "Informe parcela")
	assert.Equal(t, "parcel-report-pdf/test", gotUA.Load())
}

func TestSourceFetch_RevisitAllowed(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("<html/>"))
	}))
	t.Cleanup(srv.Close)

	src := New(Config{})
	for i := 0; i < 3; i++ {
		_, err := src.Fetch(context.Background(), srv.URL+"/same")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), hits.Load())
}

func TestSourceFetch_UpstreamError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no such parcel", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	src := New(Config{Timeout: 5 * time.Second})
	_, err := src.Fetch(context.Background(), srv.URL+"/missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestSourceFetch_EmptyBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	_, err := New(Config{}).Fetch(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrEmptyBody)
}

func TestSourceFetch_Unreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(Config{Timeout: 2 * time.Second}).Fetch(context.Background(), url)
	require.Error(t, err)
}

func TestSourceFetch_ContextCanceled(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		_, _ = w.Write([]byte("late"))
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := New(Config{}).Fetch(ctx, srv.URL)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSourceFetch_CancelAbortsUpstreamRequest(t *testing.T) {
	t.Parallel()

	aborted := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		close(aborted)
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := New(Config{}).Fetch(ctx, srv.URL)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case <-aborted:
	case <-time.After(2 * time.Second):
		t.Fatal("upstream request still in flight after Fetch returned")
	}
}

func TestSourceFetch_BodyOverLimit(t *testing.T) {
	t.Parallel()

	payload := strings.Repeat("x", 1026)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(payload))
	}))
	t.Cleanup(srv.Close)

	body, err := New(Config{MaxBodyBytes: 100}).Fetch(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrBodyTooLarge)
	assert.Empty(t, body)

	body, err = New(Config{MaxBodyBytes: len(payload)}).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, body, len(payload))
}

func TestSourceFetch_RateLimitRespectsContext(t *testing.T) {
	t.Parallel()

	src := New(Config{RatePerSecond: 0.001})
	require.NotNil(t, src.limiter)
	// Drain the single burst token.
	require.True(t, src.limiter.Allow())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := src.Fetch(ctx, "http://127.0.0.1:1/never")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit wait")
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	src := New(Config{})
	var (
		body     string
		fetchErr error
	)
	hooks := &stubHooks{}
	src.configureCollectorHooks(hooks, &body, &fetchErr)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	hooks.onResponse(&colly.Response{Body: []byte("<p>ok</p>")})
	assert.Equal(t, "<p>ok</p>", body)

	limited := New(Config{MaxBodyBytes: 4})
	var limitedBody string
	var limitedErr error
	limited.configureCollectorHooks(hooks, &limitedBody, &limitedErr)
	hooks.onResponse(&colly.Response{Body: []byte("<p>too long</p>")})
	require.ErrorIs(t, limitedErr, ErrBodyTooLarge)
	assert.Empty(t, limitedBody)

	hooks.onError(&colly.Response{StatusCode: http.StatusBadGateway}, errors.New("Bad Gateway"))
	require.Error(t, fetchErr)
	assert.Contains(t, fetchErr.Error(), "502")
}

type stubHooks struct {
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) { s.onResponse = cb }
func (s *stubHooks) OnError(cb colly.ErrorCallback)       { s.onError = cb }
