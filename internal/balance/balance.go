// Package balance keeps the latest token balance of the connected account and
// publishes every refresh to subscribers.
package balance

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"betrails/internal/erc20"
)

// Reader queries a token balance.
type Reader interface {
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
}

// EthReader calls balanceOf on the token contract.
type EthReader struct {
	caller ethereum.ContractCaller
	token  common.Address
}

func NewEthReader(caller ethereum.ContractCaller, token common.Address) *EthReader {
	return &EthReader{caller: caller, token: token}
}

func (r *EthReader) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	data, err := erc20.EncodeBalanceOf(owner)
	if err != nil {
		return nil, err
	}
	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &r.token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call balanceOf: %w", err)
	}
	return erc20.DecodeBalance(out)
}

type Observation struct {
	Owner   common.Address
	Balance *big.Int
	At      time.Time
}

// Observer polls a Reader on an interval. The Run loop and direct Poll calls
// both store the latest observation; it is held atomically so readers never block.
type Observer struct {
	reader   Reader
	owner    common.Address
	interval time.Duration
	log      *zap.Logger

	latest  atomic.Pointer[Observation]
	refresh chan struct{}

	mu   sync.Mutex
	subs []chan Observation
}

func NewObserver(reader Reader, owner common.Address, interval time.Duration, log *zap.Logger) *Observer {
	if interval <= 0 {
		interval = time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Observer{
		reader:   reader,
		owner:    owner,
		interval: interval,
		log:      log,
		refresh:  make(chan struct{}, 1),
	}
}

// Latest returns the most recent successful observation.
func (o *Observer) Latest() (Observation, bool) {
	obs := o.latest.Load()
	if obs == nil {
		return Observation{}, false
	}
	return *obs, true
}

// Subscribe returns a channel that always holds the newest observation;
// a slow reader skips intermediate ones.
func (o *Observer) Subscribe() <-chan Observation {
	ch := make(chan Observation, 1)
	o.mu.Lock()
	o.subs = append(o.subs, ch)
	o.mu.Unlock()
	if obs, ok := o.Latest(); ok {
		ch <- obs
	}
	return ch
}

// Refresh asks the Run loop for an immediate poll.
func (o *Observer) Refresh() {
	select {
	case o.refresh <- struct{}{}:
	default:
	}
}

// Poll fetches the balance once and publishes it. Safe to call from any
// goroutine; a read that started before the stored one never replaces it.
func (o *Observer) Poll(ctx context.Context) (Observation, error) {
	started := time.Now()
	value, err := o.reader.BalanceOf(ctx, o.owner)
	if err != nil {
		return Observation{}, err
	}
	obs := Observation{Owner: o.owner, Balance: value, At: started}
	if o.store(&obs) {
		o.publish(obs)
	}
	return obs, nil
}

func (o *Observer) store(obs *Observation) bool {
	for {
		cur := o.latest.Load()
		if cur != nil && cur.At.After(obs.At) {
			return false
		}
		if o.latest.CompareAndSwap(cur, obs) {
			return true
		}
	}
}

func (o *Observer) publish(obs Observation) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, ch := range o.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- obs:
		default:
		}
	}
}

// Run polls until ctx is cancelled. Failed polls are logged and keep the
// previous observation.
func (o *Observer) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		if _, err := o.Poll(ctx); err != nil && ctx.Err() == nil {
			o.log.Warn("balance refresh failed", zap.String("owner", o.owner.Hex()), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			o.close()
			return nil
		case <-ticker.C:
		case <-o.refresh:
		}
	}
}

func (o *Observer) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, ch := range o.subs {
		close(ch)
	}
	o.subs = nil
}
