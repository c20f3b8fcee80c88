// Package notify turns lifecycle transitions into user-facing notices and
// guarantees every loading notice is resolved exactly once.
package notify

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrAlreadyResolved = errors.New("notification already resolved")

// Handle identifies a displayed loading notice.
type Handle string

type Kind string

const (
	KindLoading Kind = "loading"
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Notice is one toast as delivered to sinks. Success and error notices carry
// the handle of the loading notice they replace.
type Notice struct {
	Handle      Handle    `json:"handle"`
	Surface     string    `json:"surface"`
	Kind        Kind      `json:"kind"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Link        string    `json:"link,omitempty"`
	At          time.Time `json:"at"`
}

// Sink receives notices in emission order. Emit must not block.
type Sink interface {
	Emit(Notice)
}

// Bridge hands out handles and refuses to resolve any handle twice.
type Bridge struct {
	mu   sync.Mutex
	sink Sink
	open map[Handle]string
	Now  func() time.Time
}

func NewBridge(sink Sink) *Bridge {
	return &Bridge{
		sink: sink,
		open: make(map[Handle]string),
		Now:  time.Now,
	}
}

// Loading emits a loading notice for surface and returns its handle.
func (b *Bridge) Loading(surface, title, description string) Handle {
	b.mu.Lock()
	defer b.mu.Unlock()

	h := Handle(uuid.NewString())
	b.open[h] = surface
	b.sink.Emit(Notice{
		Handle:      h,
		Surface:     surface,
		Kind:        KindLoading,
		Title:       title,
		Description: description,
		At:          b.Now(),
	})
	return h
}

// Succeed dismisses h and emits a success notice in its place.
func (b *Bridge) Succeed(h Handle, title, description, link string) error {
	return b.resolve(h, KindSuccess, title, description, link)
}

// Fail dismisses h and emits an error notice in its place.
func (b *Bridge) Fail(h Handle, title, description string) error {
	return b.resolve(h, KindError, title, description, "")
}

func (b *Bridge) resolve(h Handle, kind Kind, title, description, link string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	surface, ok := b.open[h]
	if !ok {
		return ErrAlreadyResolved
	}
	delete(b.open, h)
	b.sink.Emit(Notice{
		Handle:      h,
		Surface:     surface,
		Kind:        kind,
		Title:       title,
		Description: description,
		Link:        link,
		At:          b.Now(),
	})
	return nil
}

// Pending reports how many loading notices are still unresolved.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.open)
}
