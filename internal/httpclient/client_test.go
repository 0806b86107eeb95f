package httpclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/toolhive-sync-scheduler/internal/httpclient"
)

// newTestServer creates a new test server with keep-alives disabled.
// Closing a server with keep-alives enabled can affect parallel tests sharing the transport.
func newTestServer(handler http.Handler) *httptest.Server {
	server := httptest.NewServer(handler)
	server.Config.SetKeepAlivesEnabled(false)
	return server
}

func TestNewDefaultClient(t *testing.T) {
	t.Parallel()

	for _, timeout := range []time.Duration{0, 5 * time.Second, httpclient.NoTimeout} {
		require.NotNil(t, httpclient.NewDefaultClient(timeout))
	}
}

func TestDefaultClient_PostJSON_Success(t *testing.T) {
	t.Parallel()

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, httpclient.UserAgent, r.Header.Get("User-Agent"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "abc", r.Header.Get(httpclient.RequestIDHeader))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(3), body["count"])

		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := httpclient.NewDefaultClient(5 * time.Second)
	data, err := client.PostJSON(context.Background(), server.URL,
		map[string]int{"count": 3}, map[string]string{httpclient.RequestIDHeader: "abc"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(data))
}

func TestDefaultClient_PostJSON_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		status     int
		wantStatus int
	}{
		{name: "not found", status: http.StatusNotFound, wantStatus: 404},
		{name: "server error", status: http.StatusInternalServerError, wantStatus: 500},
		{name: "unauthorized", status: http.StatusUnauthorized, wantStatus: 401},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			_, err := httpclient.NewDefaultClient(5*time.Second).PostJSON(context.Background(), server.URL, struct{}{}, nil)
			require.Error(t, err)

			var httpErr *httpclient.HTTPError
			require.True(t, errors.As(err, &httpErr))
			assert.Equal(t, tt.wantStatus, httpErr.StatusCode)
		})
	}
}

func TestDefaultClient_PostJSON_NetworkErrors(t *testing.T) {
	t.Parallel()

	client := httpclient.NewDefaultClient(time.Second)

	_, err := client.PostJSON(context.Background(), "://invalid-url", struct{}{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create request")

	_, err = client.PostJSON(context.Background(), "http://127.0.0.1:1", struct{}{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to execute request")

	_, err = client.PostJSON(context.Background(), "http://127.0.0.1:1", func() {}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to encode request body")
}

func TestDefaultClient_PostJSON_ContextCancelled(t *testing.T) {
	t.Parallel()

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := httpclient.NewDefaultClient(httpclient.NoTimeout).PostJSON(ctx, server.URL, struct{}{}, nil)
	require.Error(t, err)
}
