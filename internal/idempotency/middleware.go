package idempotency

import (
	"bytes"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	HeaderKey    = "X-Idempotency-Key"
	HeaderReplay = "X-Idempotent-Replay"
)

// Replay caches the first response for each idempotency key and serves it
// again for retries inside Window. Requests without the header pass through.
// Server errors are not cached so the client may retry them.
type Replay struct {
	Store  Store
	Window time.Duration
	Log    *zap.Logger
	Now    func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewReplay(store Store, window time.Duration, log *zap.Logger) *Replay {
	if log == nil {
		log = zap.NewNop()
	}
	return &Replay{
		Store:    store,
		Window:   window,
		Log:      log,
		Now:      time.Now,
		inFlight: make(map[string]struct{}),
	}
}

func (p *Replay) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idem := r.Header.Get(HeaderKey)
		if idem == "" || p.Store == nil {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Method + " " + r.URL.Path + " " + idem

		rec, err := p.Store.Get(r.Context(), key)
		if err != nil {
			p.Log.Error("idempotency lookup failed", zap.String("key", idem), zap.Error(err))
			http.Error(w, "idempotency store unavailable", http.StatusServiceUnavailable)
			return
		}
		if rec != nil {
			writeRecord(w, rec)
			return
		}

		if !p.claim(key) {
			http.Error(w, "a request with this idempotency key is in progress", http.StatusConflict)
			return
		}
		defer p.release(key)

		cw := &captureWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(cw, r)
		if !cacheable(cw.status) {
			return
		}

		now := p.Now()
		record := Record{
			StatusCode:  cw.status,
			ContentType: cw.Header().Get("Content-Type"),
			Response:    cw.body.Bytes(),
			CreatedAt:   now,
			ExpiresAt:   now.Add(p.Window),
		}
		if err := p.Store.Save(r.Context(), key, record); err != nil {
			p.Log.Warn("idempotency save failed", zap.String("key", idem), zap.Error(err))
		}
	})
}

// cacheable excludes outcomes a retry can legitimately change: server errors
// and conflicts with an in-flight submission.
func cacheable(status int) bool {
	return status < http.StatusInternalServerError && status != http.StatusConflict
}

func (p *Replay) claim(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inFlight == nil {
		p.inFlight = make(map[string]struct{})
	}
	if _, busy := p.inFlight[key]; busy {
		return false
	}
	p.inFlight[key] = struct{}{}
	return true
}

func (p *Replay) release(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inFlight, key)
}

func writeRecord(w http.ResponseWriter, rec *Record) {
	if rec.ContentType != "" {
		w.Header().Set("Content-Type", rec.ContentType)
	}
	w.Header().Set(HeaderReplay, "true")
	w.WriteHeader(rec.StatusCode)
	_, _ = w.Write(rec.Response)
}

type captureWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (c *captureWriter) WriteHeader(status int) {
	if !c.wroteHeader {
		c.status = status
		c.wroteHeader = true
	}
	c.ResponseWriter.WriteHeader(status)
}

func (c *captureWriter) Write(b []byte) (int, error) {
	c.wroteHeader = true
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}
