package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_RecordsStatusAndRequestID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte("conflict"))
	})

	h := RequestID(Logger(logger)(next))

	r := httptest.NewRequest(http.MethodPost, "/basket/1-2-3-4-5-6", nil)
	r.Header.Set(RequestIDHeader, "req-1")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, int64(http.StatusConflict), fields["status"])
	assert.Equal(t, int64(len("conflict")), fields["size"])
	assert.Equal(t, "req-1", fields["requestID"])
	assert.Equal(t, "req-1", w.Header().Get(RequestIDHeader))
}

func TestRequestID_Generated(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestIDFromContext(r.Context())
	})

	w := httptest.NewRecorder()
	RequestID(next).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/basket", nil))

	_, err := uuid.Parse(seen)
	require.NoError(t, err)
	assert.Equal(t, seen, w.Header().Get(RequestIDHeader))
}
