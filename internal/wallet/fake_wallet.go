package wallet

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"betrails/internal/erc20"
)

// FakeWallet stands in for a browser wallet and chain node. Hashes are derived
// from the sender, a nonce and the calldata; receipts are driven with Resolve,
// or automatically when AutoConfirm is set.
type FakeWallet struct {
	mu          sync.Mutex
	address     common.Address
	connected   bool
	rejectErr   error
	nonce       uint64
	balance     *big.Int
	calls       map[common.Hash]erc20.Call
	debited     map[common.Hash]bool
	order       []common.Hash
	watchers    map[common.Hash][]chan ReceiptEvent
	AutoConfirm time.Duration
}

func NewFakeWallet(address common.Address) *FakeWallet {
	return &FakeWallet{
		address:   address,
		connected: true,
		balance:   new(big.Int),
		calls:     make(map[common.Hash]erc20.Call),
		debited:   make(map[common.Hash]bool),
		watchers:  make(map[common.Hash][]chan ReceiptEvent),
	}
}

func (f *FakeWallet) Address() common.Address {
	return f.address
}

func (f *FakeWallet) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *FakeWallet) SetConnected(connected bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = connected
}

// Reject makes subsequent submissions fail with err; nil restores approval.
func (f *FakeWallet) Reject(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejectErr = err
}

func (f *FakeWallet) SetBalance(units *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balance = new(big.Int).Set(units)
}

// BalanceOf serves the balance observer in place of a balanceOf call.
func (f *FakeWallet) BalanceOf(_ context.Context, owner common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if owner != f.address {
		return new(big.Int), nil
	}
	return new(big.Int).Set(f.balance), nil
}

func (f *FakeWallet) Submit(_ context.Context, call erc20.Call) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.connected {
		return common.Hash{}, fmt.Errorf("%w: %w", ErrSubmissionRejected, ErrNotConnected)
	}
	if f.rejectErr != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", ErrSubmissionRejected, f.rejectErr)
	}

	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], f.nonce)
	f.nonce++

	hash := crypto.Keccak256Hash(f.address.Bytes(), nonce[:], call.To.Bytes(), call.Data)
	f.calls[hash] = call
	f.order = append(f.order, hash)
	return hash, nil
}

// Calls returns the submitted calls in submission order.
func (f *FakeWallet) Calls() []erc20.Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]erc20.Call, 0, len(f.order))
	for _, h := range f.order {
		out = append(out, f.calls[h])
	}
	return out
}

// LastHash returns the most recent accepted submission.
func (f *FakeWallet) LastHash() common.Hash {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.order) == 0 {
		return common.Hash{}
	}
	return f.order[len(f.order)-1]
}

func (f *FakeWallet) Watch(ctx context.Context, hash common.Hash) <-chan ReceiptEvent {
	ch := make(chan ReceiptEvent, 4)

	f.mu.Lock()
	f.watchers[hash] = append(f.watchers[hash], ch)
	auto := f.AutoConfirm
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.drop(hash, ch)
	}()
	if auto > 0 {
		go func() {
			select {
			case <-time.After(auto):
				f.Resolve(hash, StatusConfirmed, "")
			case <-ctx.Done():
			}
		}()
	}
	return ch
}

// Resolve delivers a receipt transition to every watcher of hash and reports
// how many received it. Terminal transitions close the watchers; a confirmed
// transfer also debits the fake balance.
func (f *FakeWallet) Resolve(hash common.Hash, status Status, reason string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	if status == StatusConfirmed {
		f.debit(hash)
	}

	delivered := 0
	for _, ch := range f.watchers[hash] {
		select {
		case ch <- ReceiptEvent{Hash: hash, Status: status, Reason: reason}:
			delivered++
		default:
		}
		if status.Terminal() {
			close(ch)
		}
	}
	if status.Terminal() {
		delete(f.watchers, hash)
	}
	return delivered
}

func (f *FakeWallet) debit(hash common.Hash) {
	call, ok := f.calls[hash]
	if !ok || f.debited[hash] {
		return
	}
	f.debited[hash] = true
	_, amount, err := erc20.DecodeTransfer(call.Data)
	if err != nil || f.balance.Cmp(amount) < 0 {
		return
	}
	f.balance.Sub(f.balance, amount)
}

func (f *FakeWallet) drop(hash common.Hash, ch chan ReceiptEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.watchers[hash]
	for i, c := range list {
		if c == ch {
			f.watchers[hash] = append(list[:i], list[i+1:]...)
			close(ch)
			break
		}
	}
	if len(f.watchers[hash]) == 0 {
		delete(f.watchers, hash)
	}
}
