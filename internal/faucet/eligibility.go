// Package faucet gates and performs test-token funding of the connected account.
package faucet

import (
	"context"
	"fmt"
	"math/big"
	"sync/atomic"

	"betrails/internal/balance"
	"betrails/internal/token"
)

// Policy bounds the balances that may request funds. Floor is optional.
type Policy struct {
	Ceiling *big.Int
	Floor   *big.Int
	Token   token.Token
}

type Decision struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
}

// Decide is eligible iff balance < Ceiling and, when a floor is set, balance >= Floor.
func Decide(bal *big.Int, p Policy) Decision {
	if bal == nil {
		return Decision{Reason: "Balance not loaded yet"}
	}
	sym := p.Token.Symbol
	if p.Ceiling != nil && bal.Cmp(p.Ceiling) >= 0 {
		return Decision{Reason: fmt.Sprintf("Balance of %s %s is already at or above the %s %s faucet limit",
			p.Token.Format(bal), sym, p.Token.Format(p.Ceiling), sym)}
	}
	if p.Floor != nil && bal.Cmp(p.Floor) < 0 {
		return Decision{Reason: fmt.Sprintf("Balance of %s %s is below the %s %s faucet minimum",
			p.Token.Format(bal), sym, p.Token.Format(p.Floor), sym)}
	}
	return Decision{Eligible: true}
}

// Gate holds the decision for the latest balance observation.
type Gate struct {
	policy  Policy
	current atomic.Pointer[Decision]
}

func NewGate(p Policy) *Gate {
	g := &Gate{policy: p}
	d := Decide(nil, p)
	g.current.Store(&d)
	return g
}

func (g *Gate) Observe(bal *big.Int) Decision {
	d := Decide(bal, g.policy)
	g.current.Store(&d)
	return d
}

func (g *Gate) Decision() Decision {
	return *g.current.Load()
}

// Follow recomputes the decision on every observation until the channel closes
// or ctx is done.
func (g *Gate) Follow(ctx context.Context, updates <-chan balance.Observation) {
	for {
		select {
		case <-ctx.Done():
			return
		case obs, ok := <-updates:
			if !ok {
				return
			}
			g.Observe(obs.Balance)
		}
	}
}
