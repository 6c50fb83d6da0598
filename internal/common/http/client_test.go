// internal/common/http/client_test.go
package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-workflows/internal/common/logger"
)

func newTestClient(t *testing.T, retries int) *Client {
	return NewClient(Options{
		Timeout:    5 * time.Second,
		MaxRetries: retries,
		BaseDelay:  time.Millisecond,
		Logger:     logger.NewTestLogger(t),
	})
}

func TestClient_DoJSON_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))

		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["body"]})
	}))
	defer srv.Close()

	var out map[string]string
	err := newTestClient(t, 0).DoJSON(context.Background(), http.MethodPost, srv.URL,
		http.Header{"Authorization": []string{"Bearer abc"}}, map[string]string{"body": "hi"}, &out)

	require.NoError(t, err)
	assert.Equal(t, "hi", out["echo"])
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"n":1}`, string(body), "body must be resent on every attempt")
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := newTestClient(t, 3).DoJSON(context.Background(), http.MethodPatch, srv.URL, nil, map[string]int{"n": 1}, nil)

	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_StatusErrors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		retries       int
		expectedCalls int32
	}{
		{"client error is not retried", http.StatusNotFound, 3, 1},
		{"rate limit is retried", http.StatusTooManyRequests, 2, 3},
		{"server error exhausts retries", http.StatusInternalServerError, 1, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("nope"))
			}))
			defer srv.Close()

			err := newTestClient(t, tt.retries).DoJSON(context.Background(), http.MethodGet, srv.URL, nil, nil, nil)

			var statusErr *StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, tt.status, statusErr.StatusCode)
			assert.Equal(t, "nope", statusErr.Body)
			assert.Equal(t, tt.expectedCalls, calls.Load())
		})
	}
}

func TestClient_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(Options{MaxRetries: 5, BaseDelay: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.DoJSON(ctx, http.MethodGet, srv.URL, nil, nil, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_StandardClientPassesFinalResponseThrough(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	resp, err := newTestClient(t, 2).StandardClient().Get(srv.URL)

	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "upstream down", string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestFields(t *testing.T) {
	assert.Nil(t, fields(nil))
	assert.Equal(t, map[string]interface{}{"method": "GET", "attempt": 2}, fields([]interface{}{"method", "GET", "attempt", 2, "dangling"}))
}
