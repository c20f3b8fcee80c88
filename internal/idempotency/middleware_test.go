package idempotency

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReplayServesCachedResponse(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = fmt.Fprintf(w, `{"call":%d}`, n)
	})
	replay := NewReplay(NewMemoryStore(), time.Minute, nil)
	h := replay.Middleware(handler)

	send := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/bets", strings.NewReader(`{}`))
		if key != "" {
			req.Header.Set(HeaderKey, key)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	first := send("k1")
	require.Equal(t, http.StatusAccepted, first.Code)
	require.Equal(t, `{"call":1}`, first.Body.String())

	again := send("k1")
	require.Equal(t, http.StatusAccepted, again.Code)
	require.Equal(t, `{"call":1}`, again.Body.String())
	require.Equal(t, "true", again.Header().Get(HeaderReplay))
	require.Equal(t, "application/json", again.Header().Get("Content-Type"))

	require.Equal(t, `{"call":2}`, send("k2").Body.String())
	require.Equal(t, `{"call":3}`, send("").Body.String())
	require.Equal(t, int32(3), calls.Load())
}

func TestReplaySkipsServerErrors(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "wallet rejected", http.StatusBadGateway)
	})
	h := NewReplay(NewMemoryStore(), time.Minute, nil).Middleware(handler)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers", nil)
		req.Header.Set(HeaderKey, "same")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadGateway, rec.Code)
	}
	require.Equal(t, int32(2), calls.Load())
}

func TestReplayRejectsConcurrentDuplicate(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		w.WriteHeader(http.StatusAccepted)
	})
	h := NewReplay(NewMemoryStore(), time.Minute, nil).Middleware(handler)

	done := make(chan int, 1)
	go func() {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/faucet", nil)
		req.Header.Set(HeaderKey, "dup")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		done <- rec.Code
	}()
	<-entered

	req := httptest.NewRequest(http.MethodPost, "/api/v1/faucet", nil)
	req.Header.Set(HeaderKey, "dup")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusConflict, rec.Code)

	close(release)
	require.Equal(t, http.StatusAccepted, <-done)
}

func TestReplaySkipsConflicts(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "surface busy", http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})
	h := NewReplay(NewMemoryStore(), time.Minute, nil).Middleware(handler)

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/bets", nil)
		req.Header.Set(HeaderKey, "retry-after-busy")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusConflict, send())
	require.Equal(t, http.StatusAccepted, send())
	require.Equal(t, http.StatusAccepted, send())
	require.Equal(t, int32(2), calls.Load())
}
