package http_utils

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPostJSON tests that the payload, headers and response are passed through.
func TestPostJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-Token"))
		body, _ := io.ReadAll(r.Body)
		var got []string
		assert.NoError(t, json.Unmarshal(body, &got))
		assert.Equal(t, []string{"a", "b"}, got)
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))
	defer server.Close()

	status, body, err := PostJSON(context.Background(), server.Client(), server.URL, map[string]string{"X-Token": "secret"}, []string{"a", "b"})

	require.NoError(t, err)
	assert.Equal(t, http.StatusTeapot, status)
	assert.Equal(t, "short and stout", string(body))
}

// TestPostJSON_TransportError tests that an unreachable host is an error.
func TestPostJSON_TransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, _, err := PostJSON(context.Background(), http.DefaultClient, url, nil, []string{})

	assert.Error(t, err)
}
