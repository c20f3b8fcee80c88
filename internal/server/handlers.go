package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"betrails/internal/faucet"
	"betrails/internal/lifecycle"
	"betrails/internal/market"
	"betrails/internal/notify"
	"betrails/internal/token"
	"betrails/internal/wallet"
)

var errBadRequest = errors.New("bad request")

type betRequest struct {
	MarketID string `json:"marketId"`
	Side     string `json:"side"`
	Amount   string `json:"amount"`
}

type transferRequest struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

type resetRequest struct {
	Reason string `json:"reason"`
}

type submissionResponse struct {
	Surface string            `json:"surface"`
	Status  string            `json:"status"`
	Hash    string            `json:"hash"`
	Handle  string            `json:"handle"`
	Intent  *lifecycle.Intent `json:"intent"`
}

type preset struct {
	Percent int64  `json:"percent"`
	Amount  string `json:"amount"`
}

type accountResponse struct {
	Connected    bool            `json:"connected"`
	Address      string          `json:"address"`
	ShortAddress string          `json:"shortAddress"`
	SubAccount   string          `json:"subAccount,omitempty"`
	Token        string          `json:"token"`
	Symbol       string          `json:"symbol"`
	Balance      *string         `json:"balance"`
	BalanceUnits *string         `json:"balanceUnits"`
	ObservedAt   *time.Time      `json:"observedAt,omitempty"`
	Presets      []preset        `json:"presets"`
	Faucet       faucet.Decision `json:"faucet"`
	FaucetBusy   bool            `json:"faucetBusy"`
	Betting      bool            `json:"betting"`
	Transferring bool            `json:"transferring"`
}

func (s *Server) handleMarkets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		YesAddress  string          `json:"yesAddress"`
		NoAddress   string          `json:"noAddress"`
		QuickAmount string          `json:"quickAmount"`
		Markets     []market.Market `json:"markets"`
	}{
		YesAddress:  s.catalog.Recipient(market.SideYes).Hex(),
		NoAddress:   s.catalog.Recipient(market.SideNo).Hex(),
		QuickAmount: s.cfg.Betting.QuickAmount,
		Markets:     s.catalog.All(),
	})
}

func (s *Server) handleBet(w http.ResponseWriter, r *http.Request) {
	var payload betRequest
	if err := decodeJSON(r, &payload); err != nil {
		s.writeError(w, err)
		return
	}
	s.placeBet(w, r, payload.MarketID, payload.Side, payload.Amount)
}

func (s *Server) handleQuickBet(w http.ResponseWriter, r *http.Request) {
	var payload betRequest
	if err := decodeJSON(r, &payload); err != nil {
		s.writeError(w, err)
		return
	}
	s.placeBet(w, r, payload.MarketID, payload.Side, s.cfg.Betting.QuickAmount)
}

func (s *Server) placeBet(w http.ResponseWriter, r *http.Request, marketID, rawSide, amount string) {
	side, err := market.ParseSide(rawSide)
	if err != nil {
		s.writeError(w, err)
		return
	}
	req, err := lifecycle.BetRequest(s.catalog, marketID, side, amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.submit(w, r, SurfaceBets, req)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var payload transferRequest
	if err := decodeJSON(r, &payload); err != nil {
		s.writeError(w, err)
		return
	}
	s.submit(w, r, SurfaceTransfer, lifecycle.TransferRequest(payload.Recipient, payload.Amount))
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, name string, req lifecycle.Request) {
	if !s.wallet.Connected() {
		s.writeError(w, wallet.ErrNotConnected)
		return
	}
	sub, err := s.surfaces[name].Submit(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, submissionResponse{
		Surface: name,
		Status:  string(lifecycle.StateSubmitted),
		Hash:    sub.Hash.Hex(),
		Handle:  string(sub.Handle),
		Intent:  &sub.Intent,
	})
}

func (s *Server) handleSurface(w http.ResponseWriter, r *http.Request) {
	surface, ok := s.surfaces[r.PathValue("name")]
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "unknown surface"})
		return
	}
	writeJSON(w, http.StatusOK, surface.Snapshot())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	surface, ok := s.surfaces[r.PathValue("name")]
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "unknown surface"})
		return
	}
	var payload resetRequest
	if err := decodeJSON(r, &payload); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, err)
		return
	}
	cleared := surface.Reset(payload.Reason)
	writeJSON(w, http.StatusOK, struct {
		Cleared  bool               `json:"cleared"`
		Snapshot lifecycle.Snapshot `json:"snapshot"`
	}{cleared, surface.Snapshot()})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	addr := s.wallet.Address()
	resp := accountResponse{
		Connected:    s.wallet.Connected(),
		Address:      addr.Hex(),
		ShortAddress: token.Shorten(addr),
		Token:        s.cfg.Token.Address.Hex(),
		Symbol:       s.cfg.Token.Symbol,
		Presets:      []preset{},
		FaucetBusy:   s.funder.Busy(),
		Betting:      s.surfaces[SurfaceBets].Busy(),
		Transferring: s.surfaces[SurfaceTransfer].Busy(),
	}
	if sub, ok := s.subAccount(); ok {
		resp.SubAccount = sub.Hex()
	}
	if obs, ok := s.observe(r.Context()); ok {
		text := s.cfg.Token.Format(obs.Balance)
		units := obs.Balance.String()
		at := obs.At
		resp.Balance, resp.BalanceUnits, resp.ObservedAt = &text, &units, &at
		for _, pct := range s.cfg.Betting.Presets {
			resp.Presets = append(resp.Presets, preset{
				Percent: pct,
				Amount:  token.Share(obs.Balance, s.cfg.Token.Decimals, pct),
			})
		}
	}
	resp.Faucet = s.gate.Decision()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAccountQR(w http.ResponseWriter, r *http.Request) {
	png, err := qrcode.Encode(s.wallet.Address().Hex(), qrcode.Medium, 256)
	if err != nil {
		s.writeError(w, fmt.Errorf("encode qr: %w", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

func (s *Server) handleFaucet(w http.ResponseWriter, r *http.Request) {
	s.observe(r.Context())
	funding, err := s.funder.Fund(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, funding)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Pending int             `json:"pending"`
		Notices []notify.Notice `json:"notices"`
	}{s.bridge.Pending(), s.recorder.Notices()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overallHealthy := true

	rpcInfo := struct {
		Connected bool    `json:"connected"`
		LatencyMs float64 `json:"latency_ms"`
		Error     string  `json:"error,omitempty"`
	}{Connected: true}

	if s.rpcHealthFn != nil {
		start := time.Now()
		rpcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.rpcHealthFn(rpcCtx); err != nil {
			rpcInfo.Connected = false
			rpcInfo.Error = err.Error()
			overallHealthy = false
		} else {
			rpcInfo.LatencyMs = float64(time.Since(start).Microseconds()) / 1000.0
		}
	}

	storeInfo := struct {
		Connected bool   `json:"connected"`
		Error     string `json:"error,omitempty"`
	}{Connected: true}

	if s.storeHealthFn != nil {
		storeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.storeHealthFn(storeCtx); err != nil {
			storeInfo.Connected = false
			storeInfo.Error = err.Error()
			overallHealthy = false
		}
	}

	surfaces := make(map[string]lifecycle.State, len(s.surfaces))
	for name, surface := range s.surfaces {
		surfaces[name] = surface.Snapshot().State
	}

	status := "healthy"
	code := http.StatusOK
	if !overallHealthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, struct {
		Status         string                     `json:"status"`
		RPC            interface{}                `json:"rpc"`
		Store          interface{}                `json:"store"`
		Wallet         bool                       `json:"wallet_connected"`
		Surfaces       map[string]lifecycle.State `json:"surfaces"`
		PendingNotices int                        `json:"pending_notices"`
		Subscribers    int                        `json:"subscribers"`
	}{
		Status:         status,
		RPC:            rpcInfo,
		Store:          storeInfo,
		Wallet:         s.wallet.Connected(),
		Surfaces:       surfaces,
		PendingNotices: s.bridge.Pending(),
		Subscribers:    s.hub.Clients(),
	})
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps domain errors to HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, token.ErrInvalidAmount),
		errors.Is(err, token.ErrInvalidRecipient),
		errors.Is(err, market.ErrUnknownMarket),
		errors.Is(err, market.ErrUnknownSide):
		status = http.StatusBadRequest
	case errors.Is(err, lifecycle.ErrBusy),
		errors.Is(err, lifecycle.ErrCancelled),
		errors.Is(err, faucet.ErrBusy):
		status = http.StatusConflict
	case errors.Is(err, faucet.ErrIneligible):
		status = http.StatusForbidden
	case errors.Is(err, wallet.ErrNotConnected):
		status = http.StatusServiceUnavailable
	case errors.Is(err, wallet.ErrSubmissionRejected),
		errors.Is(err, faucet.ErrExternalService):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid json payload: %w", errBadRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
