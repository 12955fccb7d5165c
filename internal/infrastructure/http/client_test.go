package infrastructure

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yt_archiver/config"
)

func TestNewHTTPClient(t *testing.T) {
	cfg := config.Default()
	cfg.HTTPClientTimeout = 5 * time.Second
	cfg.MaxIdleConns = 7
	cfg.MaxConnsPerHost = 3

	client := NewHTTPClient(cfg)
	assert.Equal(t, 5*time.Second, client.GetClient().Timeout)

	transport, ok := client.GetClient().Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 7, transport.MaxIdleConns)
	assert.Equal(t, 3, transport.MaxConnsPerHost)
}

func TestHTTPClient_Do(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	client := NewHTTPClient(config.Default())
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
}
