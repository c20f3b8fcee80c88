// Package wallet is the boundary to the signing wallet and the chain node:
// it submits encoded calls and reports receipt transitions.
package wallet

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"betrails/internal/erc20"
)

var (
	ErrSubmissionRejected = errors.New("submission rejected")
	ErrNotConnected       = errors.New("wallet not connected")
)

// Account exposes the connected wallet.
type Account interface {
	Address() common.Address
	Connected() bool
}

// Submitter signs and broadcasts a call, returning the transaction hash once
// the wallet accepts it. Errors wrap ErrSubmissionRejected.
type Submitter interface {
	Submit(ctx context.Context, call erc20.Call) (common.Hash, error)
}

// ReceiptWatcher observes a broadcast transaction. The channel carries at most
// one terminal event and is closed afterwards or when ctx is cancelled.
type ReceiptWatcher interface {
	Watch(ctx context.Context, hash common.Hash) <-chan ReceiptEvent
}

// Wallet is everything a submission surface needs from the outside world.
type Wallet interface {
	Account
	Submitter
	ReceiptWatcher
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusReverted  Status = "reverted"
	StatusFailed    Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusReverted || s == StatusFailed
}

type ReceiptEvent struct {
	Hash        common.Hash
	Status      Status
	Reason      string
	BlockNumber uint64
}
