package notify

import (
	"sync"

	"go.uber.org/zap"
)

// Fanout delivers every notice to each sink in order.
type Fanout []Sink

func (f Fanout) Emit(n Notice) {
	for _, s := range f {
		s.Emit(n)
	}
}

// LogSink writes notices to a zap logger.
type LogSink struct {
	Log *zap.Logger
}

func (l LogSink) Emit(n Notice) {
	if l.Log == nil {
		return
	}
	fields := []zap.Field{
		zap.String("surface", n.Surface),
		zap.String("handle", string(n.Handle)),
		zap.String("kind", string(n.Kind)),
		zap.String("description", n.Description),
	}
	if n.Link != "" {
		fields = append(fields, zap.String("link", n.Link))
	}
	if n.Kind == KindError {
		l.Log.Warn(n.Title, fields...)
		return
	}
	l.Log.Info(n.Title, fields...)
}

// Recorder keeps the most recent notices plus lifetime counts per surface.
type Recorder struct {
	mu      sync.Mutex
	limit   int
	notices []Notice
	counts  map[string]map[Kind]int
}

func NewRecorder(limit int) *Recorder {
	if limit <= 0 {
		limit = 100
	}
	return &Recorder{
		limit:  limit,
		counts: make(map[string]map[Kind]int),
	}
}

func (r *Recorder) Emit(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.notices = append(r.notices, n)
	if len(r.notices) > r.limit {
		r.notices = append([]Notice(nil), r.notices[len(r.notices)-r.limit:]...)
	}
	if r.counts[n.Surface] == nil {
		r.counts[n.Surface] = make(map[Kind]int)
	}
	r.counts[n.Surface][n.Kind]++
}

// Notices returns a copy of the retained notices, oldest first.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notice, len(r.notices))
	copy(out, r.notices)
	return out
}

// Count sums the lifetime notices of the given kinds for surface.
func (r *Recorder) Count(surface string, kinds ...Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, k := range kinds {
		total += r.counts[surface][k]
	}
	return total
}
