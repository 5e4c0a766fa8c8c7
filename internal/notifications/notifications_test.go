package notifications

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withServer(t *testing.T, status int) (*[]map[string]string, func()) {
	t.Helper()
	var received []map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		received = append(received, body)
		w.WriteHeader(status)
	}))

	origURL := baseURL
	baseURL = srv.URL
	return &received, func() {
		srv.Close()
		baseURL = origURL
		initialized = false
		topic = ""
	}
}

func TestSend_NotInitialized(t *testing.T) {
	initialized = false
	assert.Error(t, Send("title", "message"))
}

func TestSend_PostsPayload(t *testing.T) {
	received, cleanup := withServer(t, http.StatusOK)
	defer cleanup()

	Init("home-heating")
	require.NoError(t, Send("Tado login required", "refresh token rejected"))

	require.Len(t, *received, 1)
	assert.Equal(t, "home-heating", (*received)[0]["topic"])
	assert.Equal(t, "Tado login required", (*received)[0]["title"])
}

func TestSend_ErrorStatus(t *testing.T) {
	_, cleanup := withServer(t, http.StatusTooManyRequests)
	defer cleanup()

	Init("home-heating")
	assert.Error(t, Send("title", "message"))
}
