package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"betrails/internal/erc20"
	"betrails/internal/notify"
	"betrails/internal/token"
	"betrails/internal/wallet"
)

const settledMemory = 256

// Metrics receives surface counters. The server backs it with prometheus.
type Metrics interface {
	Submission(surface, result string)
	Receipt(surface, status string)
}

type nopMetrics struct{}

func (nopMetrics) Submission(string, string) {}
func (nopMetrics) Receipt(string, string)    {}

type Config struct {
	Name      string
	Token     token.Token
	Submitter wallet.Submitter
	Watcher   wallet.ReceiptWatcher
	Bridge    *notify.Bridge
	Logger    *zap.Logger
	Metrics   Metrics
	// OnSettled runs after every terminal receipt, outside the surface lock.
	OnSettled func(Outcome)
}

// Surface is the state machine behind one submit button:
// idle -> validated -> submitted -> idle. The intent, hash and notice handle
// are set and cleared together.
type Surface struct {
	name      string
	tok       token.Token
	submitter wallet.Submitter
	watcher   wallet.ReceiptWatcher
	bridge    *notify.Bridge
	log       *zap.Logger
	metrics   Metrics
	onSettled func(Outcome)
	settled   *lru.Cache[common.Hash, wallet.Status]

	root   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	state  State
	gen    uint64
	intent *Intent
	hash   common.Hash
	handle notify.Handle
	stop   context.CancelFunc
}

func NewSurface(cfg Config) (*Surface, error) {
	if cfg.Name == "" {
		return nil, errors.New("surface name is required")
	}
	if cfg.Submitter == nil || cfg.Watcher == nil || cfg.Bridge == nil {
		return nil, fmt.Errorf("surface %s: submitter, watcher and bridge are required", cfg.Name)
	}
	settled, err := lru.New[common.Hash, wallet.Status](settledMemory)
	if err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}
	root, cancel := context.WithCancel(context.Background())
	return &Surface{
		name:      cfg.Name,
		tok:       cfg.Token,
		submitter: cfg.Submitter,
		watcher:   cfg.Watcher,
		bridge:    cfg.Bridge,
		log:       log.With(zap.String("surface", cfg.Name)),
		metrics:   metrics,
		onSettled: cfg.OnSettled,
		settled:   settled,
		root:      root,
		cancel:    cancel,
		state:     StateIdle,
	}, nil
}

func (s *Surface) Name() string {
	return s.name
}

// Submission is what an accepted Submit returns.
type Submission struct {
	Intent Intent        `json:"intent"`
	Hash   common.Hash   `json:"hash"`
	Handle notify.Handle `json:"handle"`
}

// Submit validates req, hands the encoded transfer to the wallet and starts
// watching for its receipt. Validation failures and ErrBusy leave no notice.
// A wallet rejection resolves the loading notice as an error and returns the
// surface to idle.
func (s *Surface) Submit(ctx context.Context, req Request) (Submission, error) {
	intent, err := validate(req, s.tok)
	if err != nil {
		s.metrics.Submission(s.name, "invalid")
		return Submission{}, err
	}
	call, err := erc20.EncodeTransfer(s.tok, intent.Recipient, intent.Amount.Units)
	if err != nil {
		s.metrics.Submission(s.name, "invalid")
		return Submission{}, err
	}

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		s.metrics.Submission(s.name, "busy")
		return Submission{}, ErrBusy
	}
	s.gen++
	gen := s.gen
	loading := loadingCopy(intent, s.tok.Symbol)
	handle := s.bridge.Loading(s.name, loading.title, loading.description)
	s.state = StateValidated
	s.intent = &intent
	s.handle = handle
	s.mu.Unlock()

	hash, err := s.submitter.Submit(ctx, call)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen {
		// Reset already resolved the notice while the wallet was signing.
		if err == nil {
			s.log.Warn("wallet accepted a cleared submission", zap.String("hash", hash.Hex()))
		}
		s.metrics.Submission(s.name, "cancelled")
		return Submission{}, ErrCancelled
	}

	if err != nil {
		text := rejectedCopy(intent)
		s.resolveLocked(func() error { return s.bridge.Fail(handle, text.title, text.description) })
		s.clearLocked()
		s.metrics.Submission(s.name, "rejected")
		s.log.Warn("submission rejected", zap.String("purpose", string(intent.Purpose)), zap.Error(err))
		if !errors.Is(err, wallet.ErrSubmissionRejected) {
			err = fmt.Errorf("%w: %v", wallet.ErrSubmissionRejected, err)
		}
		return Submission{}, err
	}

	watchCtx, stop := context.WithCancel(s.root)
	s.state = StateSubmitted
	s.hash = hash
	s.stop = stop
	events := s.watcher.Watch(watchCtx, hash)
	s.wg.Add(1)
	go s.watch(events)

	s.metrics.Submission(s.name, "submitted")
	s.log.Info("submission accepted",
		zap.String("purpose", string(intent.Purpose)),
		zap.String("amount", intent.Amount.Text),
		zap.String("recipient", intent.Recipient.Hex()),
		zap.String("hash", hash.Hex()),
	)
	return Submission{Intent: intent, Hash: hash, Handle: handle}, nil
}

func (s *Surface) watch(events <-chan wallet.ReceiptEvent) {
	defer s.wg.Done()
	for ev := range events {
		if s.HandleReceipt(ev) {
			return
		}
	}
}

// HandleReceipt applies a receipt event and reports whether it settled the
// in-flight submission. Pending events, stale hashes and repeated terminal
// events are ignored.
func (s *Surface) HandleReceipt(ev wallet.ReceiptEvent) bool {
	if !ev.Status.Terminal() {
		return false
	}

	s.mu.Lock()
	if s.state != StateSubmitted || ev.Hash != s.hash {
		s.mu.Unlock()
		if prev, ok := s.settled.Get(ev.Hash); ok {
			s.log.Debug("duplicate receipt ignored",
				zap.String("hash", ev.Hash.Hex()),
				zap.String("settled", string(prev)),
				zap.String("status", string(ev.Status)))
		} else {
			s.log.Warn("receipt for untracked hash ignored",
				zap.String("hash", ev.Hash.Hex()),
				zap.String("status", string(ev.Status)))
		}
		return false
	}

	intent := *s.intent
	handle := s.handle
	if ev.Status == wallet.StatusConfirmed {
		text := successCopy(intent, s.tok.Symbol)
		s.resolveLocked(func() error { return s.bridge.Succeed(handle, text.title, text.description, "") })
	} else {
		text := revertedCopy(intent, ev.Reason)
		s.resolveLocked(func() error { return s.bridge.Fail(handle, text.title, text.description) })
	}
	s.settled.Add(ev.Hash, ev.Status)
	if s.stop != nil {
		s.stop()
	}
	s.clearLocked()
	s.mu.Unlock()

	s.metrics.Receipt(s.name, string(ev.Status))
	s.log.Info("submission settled",
		zap.String("hash", ev.Hash.Hex()),
		zap.String("status", string(ev.Status)),
		zap.String("reason", ev.Reason))

	if s.onSettled != nil {
		s.onSettled(Outcome{
			Surface: s.name,
			Intent:  intent,
			Hash:    ev.Hash,
			Status:  string(ev.Status),
			Reason:  ev.Reason,
		})
	}
	return true
}

// Reset force-clears a stuck submission. The open notice is resolved as an
// error once; a later receipt for the cleared hash is ignored. It reports
// whether anything was cleared.
func (s *Surface) Reset(reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateIdle {
		return false
	}
	if reason == "" {
		reason = "Cleared before confirmation"
	}
	handle := s.handle
	s.resolveLocked(func() error { return s.bridge.Fail(handle, "Transaction cleared", reason) })
	if s.hash != (common.Hash{}) {
		s.settled.Add(s.hash, wallet.StatusFailed)
	}
	if s.stop != nil {
		s.stop()
	}
	s.log.Info("surface reset", zap.String("state", string(s.state)), zap.String("reason", reason))
	s.gen++
	s.clearLocked()
	s.metrics.Receipt(s.name, "reset")
	return true
}

func (s *Surface) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{Surface: s.name, State: s.state, Handle: string(s.handle)}
	if s.intent != nil {
		in := *s.intent
		snap.Intent = &in
	}
	if s.hash != (common.Hash{}) {
		snap.Hash = s.hash.Hex()
	}
	return snap
}

// Busy reports whether a submission is in flight.
func (s *Surface) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != StateIdle
}

// Close stops all receipt watchers and waits for them to exit. The open
// notice, if any, stays pending.
func (s *Surface) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Surface) resolveLocked(resolve func() error) {
	if err := resolve(); err != nil {
		s.log.Error("notice resolved twice", zap.String("handle", string(s.handle)), zap.Error(err))
	}
}

func (s *Surface) clearLocked() {
	s.state = StateIdle
	s.intent = nil
	s.hash = common.Hash{}
	s.handle = ""
	s.stop = nil
}
