package main

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupSentryDisabled(t *testing.T) {
	flush, err := setupSentry("", "test")
	require.NoError(t, err)
	require.NotNil(t, flush)

	flush()
}

func TestSetupSentryBadDSN(t *testing.T) {
	_, err := setupSentry("not a dsn", "test")
	assert.ErrorContains(t, err, "initializing sentry")
}

func TestSetupSentryFlushDeliversEvents(t *testing.T) {
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/api/1/") {
			received.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	t.Cleanup(func() { sentry.CurrentHub().BindClient(nil) })

	dsn := strings.Replace(srv.URL, "http://", "http://public@", 1) + "/1"
	flush, err := setupSentry(dsn, "test")
	require.NoError(t, err)

	sentry.CaptureException(errors.New("boom"))
	flush()

	assert.Positive(t, received.Load())
}
