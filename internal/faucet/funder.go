package faucet

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"betrails/internal/notify"
	"betrails/internal/wallet"
)

const Surface = "faucet"

var (
	ErrIneligible = errors.New("not eligible for faucet")
	ErrBusy       = errors.New("funding request already in progress")
)

// Funder runs one funding request at a time for the connected account.
type Funder struct {
	account  wallet.Account
	gate     *Gate
	service  Service
	bridge   *notify.Bridge
	log      *zap.Logger
	OnFunded func(Funding)
	OnResult func(result string)

	mu   sync.Mutex
	busy bool
}

func NewFunder(account wallet.Account, gate *Gate, service Service, bridge *notify.Bridge, log *zap.Logger) *Funder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Funder{
		account: account,
		gate:    gate,
		service: service,
		bridge:  bridge,
		log:     log,
	}
}

// Busy reports whether a request is in flight.
func (f *Funder) Busy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.busy
}

// Fund requests tokens when the gate allows it. Ineligible accounts get an
// error and no notice; service failures resolve the loading notice as an error.
func (f *Funder) Fund(ctx context.Context) (Funding, error) {
	if f.account == nil || !f.account.Connected() {
		f.result("not_connected")
		return Funding{}, wallet.ErrNotConnected
	}
	if d := f.gate.Decision(); !d.Eligible {
		f.result("ineligible")
		return Funding{}, fmt.Errorf("%w: %s", ErrIneligible, d.Reason)
	}

	f.mu.Lock()
	if f.busy {
		f.mu.Unlock()
		return Funding{}, ErrBusy
	}
	f.busy = true
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.busy = false
		f.mu.Unlock()
	}()

	addr := f.account.Address()
	sym := f.gate.policy.Token.Symbol
	h := f.bridge.Loading(Surface, fmt.Sprintf("Requesting %s from faucet...", sym), "This may take a few moments")

	funding, err := f.service.RequestFunds(ctx, addr)
	if err != nil {
		msg := failureMessage(err)
		if rerr := f.bridge.Fail(h, "Failed to fund account", msg); rerr != nil {
			f.log.Error("faucet notice already resolved", zap.Error(rerr))
		}
		f.log.Warn("faucet request failed", zap.String("address", addr.Hex()), zap.Error(err))
		f.result("failed")
		if !errors.Is(err, ErrExternalService) {
			err = fmt.Errorf("%w: %v", ErrExternalService, err)
		}
		return Funding{}, err
	}

	if rerr := f.bridge.Succeed(h, "Account funded successfully!", fmt.Sprintf("%s has been sent to your wallet", sym), funding.ExplorerURL); rerr != nil {
		f.log.Error("faucet notice already resolved", zap.Error(rerr))
	}
	f.log.Info("account funded", zap.String("address", addr.Hex()), zap.String("explorer", funding.ExplorerURL))
	f.result("funded")
	if f.OnFunded != nil {
		f.OnFunded(funding)
	}
	return funding, nil
}

func (f *Funder) result(r string) {
	if f.OnResult != nil {
		f.OnResult(r)
	}
}

func failureMessage(err error) string {
	var svc *ServiceError
	if errors.As(err, &svc) && svc.Message != "" {
		return svc.Message
	}
	if err != nil && err.Error() != "" {
		return err.Error()
	}
	return "Please try again later"
}
