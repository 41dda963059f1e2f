package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipe-gen/config"
)

func TestServerRunStopsOnCancel(t *testing.T) {
	srv, err := New(config.ServerConfig{Host: "127.0.0.1", Port: 0, ShutdownTimeout: time.Second}, newTestLoader(t, echoing(curry), nil), nil)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRenderMarkdown(t *testing.T) {
	out, err := renderMarkdown("[STEPS]\n1. Boil water.\n2. Add pasta.")
	require.NoError(t, err)
	assert.Contains(t, string(out), "<li>Boil water.</li>")

	out, err = renderMarkdown("line one\nline two")
	require.NoError(t, err)
	assert.Contains(t, string(out), "<br")

	out, err = renderMarkdown("<b>bold</b>")
	require.NoError(t, err)
	assert.NotContains(t, string(out), "<b>bold</b>")
	assert.Contains(t, string(out), "raw HTML omitted")
}
