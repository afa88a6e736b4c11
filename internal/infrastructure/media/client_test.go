package media

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"livestream/pkg/circuitbreaker"
	"livestream/pkg/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(url string) *Client {
	return NewClient(Config{
		Host:     url,
		Username: "admin",
		Password: "secret",
		Timeout:  time.Second,
		Retry:    retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2},
	}, zap.NewNop().Sugar())
}

func TestClient_StopStream(t *testing.T) {
	var gotPath, gotMethod, gotUser, gotPass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).StopStream(context.Background(), "live", "x1", "s1")

	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/v2/servers/_defaultServer_/vhosts/_defaultVHost_/applications/live/instances/x1/incomingstreams/s1/actions/disconnectStream", gotPath)
	assert.Equal(t, "admin", gotUser)
	assert.Equal(t, "secret", gotPass)
}

func TestClient_StopStreamRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, newTestClient(srv.URL).StopStream(context.Background(), "live", "x1", "s1"))
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_StopStreamClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "no such stream", http.StatusNotFound)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).StopStream(context.Background(), "live", "x1", "s1")

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_StopStreamGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).StopStream(context.Background(), "live", "x1", "s1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "max attempts (3) exceeded")
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_StopStreamOpensBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Config{
		Host:    srv.URL,
		Timeout: time.Second,
		Retry:   retry.Config{MaxAttempts: 1},
		Breaker: circuitbreaker.Config{FailureThreshold: 2, Timeout: time.Minute},
	}, zap.NewNop().Sugar())

	require.Error(t, c.StopStream(context.Background(), "live", "x1", "s1"))
	require.Error(t, c.StopStream(context.Background(), "live", "x1", "s1"))

	err := c.StopStream(context.Background(), "live", "x1", "s1")
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_ClientErrorsDoNotOpenBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(Config{
		Host:    srv.URL,
		Timeout: time.Second,
		Retry:   retry.Config{MaxAttempts: 1},
		Breaker: circuitbreaker.Config{FailureThreshold: 1, Timeout: time.Minute},
	}, zap.NewNop().Sugar())

	for i := 0; i < 3; i++ {
		var statusErr *StatusError
		require.ErrorAs(t, c.StopStream(context.Background(), "live", "x1", "s1"), &statusErr)
	}
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, circuitbreaker.StateClosed, c.breaker.State())
}

func TestDisconnectPathEscapes(t *testing.T) {
	assert.Equal(t,
		"/v2/servers/_defaultServer_/vhosts/_defaultVHost_/applications/my%20app/instances/a%2Fb/incomingstreams/s1/actions/disconnectStream",
		disconnectPath("my app", "a/b", "s1"))
}
