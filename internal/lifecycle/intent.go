// Package lifecycle tracks one submission at a time per surface: the intent
// the user expressed, the hash the wallet returned and the notice on screen.
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"betrails/internal/market"
	"betrails/internal/token"
)

var (
	ErrBusy          = errors.New("a submission is already in flight")
	ErrCancelled     = errors.New("submission cleared before the wallet answered")
	ErrUnknownMarket = market.ErrUnknownMarket
)

type Purpose string

const (
	PurposeTransfer Purpose = "transfer"
	PurposeBetYes   Purpose = "bet-yes"
	PurposeBetNo    Purpose = "bet-no"
)

func PurposeFor(side market.Side) Purpose {
	if side == market.SideNo {
		return PurposeBetNo
	}
	return PurposeBetYes
}

func (p Purpose) IsBet() bool {
	return p == PurposeBetYes || p == PurposeBetNo
}

// Side is the bet side for bet purposes and empty for transfers.
func (p Purpose) Side() market.Side {
	switch p {
	case PurposeBetYes:
		return market.SideYes
	case PurposeBetNo:
		return market.SideNo
	}
	return ""
}

type State string

const (
	StateIdle      State = "idle"
	StateValidated State = "validated"
	StateSubmitted State = "submitted"
)

// Request is unvalidated user input for one submission.
type Request struct {
	Purpose     Purpose
	Recipient   string
	Amount      string
	MarketID    string
	MarketTitle string
}

// TransferRequest builds a plain transfer request from dialog input.
func TransferRequest(recipient, amount string) Request {
	return Request{Purpose: PurposeTransfer, Recipient: recipient, Amount: amount}
}

// BetRequest resolves the market and side into the address that collects the stake.
func BetRequest(catalog *market.Catalog, marketID string, side market.Side, amount string) (Request, error) {
	m, err := catalog.Get(marketID)
	if err != nil {
		return Request{}, err
	}
	if side != market.SideYes && side != market.SideNo {
		return Request{}, fmt.Errorf("%w: %q", market.ErrUnknownSide, side)
	}
	return Request{
		Purpose:     PurposeFor(side),
		Recipient:   catalog.Recipient(side).Hex(),
		Amount:      amount,
		MarketID:    m.ID,
		MarketTitle: m.Title,
	}, nil
}

// Intent is a validated request: what the pending transaction is for.
type Intent struct {
	Purpose     Purpose        `json:"purpose"`
	Recipient   common.Address `json:"recipient"`
	Amount      token.Amount   `json:"amount"`
	MarketID    string         `json:"marketId,omitempty"`
	MarketTitle string         `json:"marketTitle,omitempty"`
}

func validate(req Request, tok token.Token) (Intent, error) {
	amount, err := tok.Parse(req.Amount)
	if err != nil {
		return Intent{}, err
	}
	recipient, err := token.ParseRecipient(req.Recipient)
	if err != nil {
		return Intent{}, err
	}
	purpose := req.Purpose
	if purpose == "" {
		purpose = PurposeTransfer
	}
	return Intent{
		Purpose:     purpose,
		Recipient:   recipient,
		Amount:      amount,
		MarketID:    req.MarketID,
		MarketTitle: req.MarketTitle,
	}, nil
}

// Outcome is what a surface reports once a submission settles.
type Outcome struct {
	Surface string
	Intent  Intent
	Hash    common.Hash
	Status  string
	Reason  string
}

// Snapshot is a point-in-time view of a surface.
type Snapshot struct {
	Surface string  `json:"surface"`
	State   State   `json:"state"`
	Intent  *Intent `json:"intent,omitempty"`
	Hash    string  `json:"hash,omitempty"`
	Handle  string  `json:"handle,omitempty"`
}
