package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"betrails/internal/balance"
	"betrails/internal/config"
	"betrails/internal/faucet"
	"betrails/internal/hmacauth"
	"betrails/internal/idempotency"
	"betrails/internal/lifecycle"
	"betrails/internal/market"
	"betrails/internal/notify"
	"betrails/internal/wallet"
)

const (
	SurfaceTransfer = "transfer"
	SurfaceBets     = "bets"

	noticeHistory = 200
)

// Deps are the collaborators the server is built from.
type Deps struct {
	Config   *config.AppConfig
	Wallet   wallet.Wallet
	Balances balance.Reader
	Faucet   faucet.Service
	Catalog  *market.Catalog
	Store    idempotency.Store
	Logger   *zap.Logger
}

type Server struct {
	cfg     *config.AppConfig
	log     *zap.Logger
	wallet  wallet.Wallet
	catalog *market.Catalog

	bridge   *notify.Bridge
	recorder *notify.Recorder
	hub      *notify.Hub
	surfaces map[string]*lifecycle.Surface
	observer *balance.Observer
	gate     *faucet.Gate
	funder   *faucet.Funder

	metrics    *metricsRegistry
	replay     *idempotency.Replay
	hmac       *hmacauth.Verifier
	httpServer *http.Server

	storeHealthFn func(context.Context) error
	rpcHealthFn   func(context.Context) error
}

func New(deps Deps) (*Server, error) {
	if deps.Config == nil || deps.Wallet == nil || deps.Balances == nil || deps.Catalog == nil {
		return nil, errors.New("server: config, wallet, balances and catalog are required")
	}
	cfg := deps.Config
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	service := deps.Faucet
	if service == nil {
		service = faucet.Unavailable
	}

	metrics := newMetricsRegistry()
	recorder := notify.NewRecorder(noticeHistory)
	hub := notify.NewHub(log.Named("hub"), cfg.Service.AllowedOrigins...)
	bridge := notify.NewBridge(notify.Fanout{
		recorder,
		hub,
		metrics,
		notify.LogSink{Log: log.Named("notice")},
	})

	s := &Server{
		cfg:      cfg,
		log:      log,
		wallet:   deps.Wallet,
		catalog:  deps.Catalog,
		bridge:   bridge,
		recorder: recorder,
		hub:      hub,
		surfaces: make(map[string]*lifecycle.Surface),
		metrics:  metrics,
		replay:   idempotency.NewReplay(deps.Store, cfg.Service.IdempotencyWindow, log.Named("idempotency")),
		hmac: &hmacauth.Verifier{
			Secret:  cfg.Service.HMACSecret,
			MaxSkew: cfg.Service.HMACClockSkew,
			Log:     log.Named("hmac"),
		},
	}

	s.observer = balance.NewObserver(deps.Balances, deps.Wallet.Address(), cfg.Chain.BalanceRefresh, log.Named("balance"))
	s.gate = faucet.NewGate(faucet.Policy{
		Ceiling: cfg.Faucet.Ceiling,
		Floor:   cfg.Faucet.Floor,
		Token:   cfg.Token,
	})
	s.funder = faucet.NewFunder(deps.Wallet, s.gate, service, bridge, log.Named("faucet"))
	s.funder.OnFunded = func(faucet.Funding) { s.observer.Refresh() }
	s.funder.OnResult = metrics.incFaucet

	for _, name := range []string{SurfaceTransfer, SurfaceBets} {
		surface, err := lifecycle.NewSurface(lifecycle.Config{
			Name:      name,
			Token:     cfg.Token,
			Submitter: deps.Wallet,
			Watcher:   deps.Wallet,
			Bridge:    bridge,
			Logger:    log.Named("lifecycle"),
			Metrics:   metrics,
			OnSettled: s.settled,
		})
		if err != nil {
			return nil, err
		}
		s.surfaces[name] = surface
	}

	if checker, ok := deps.Store.(idempotency.Pinger); ok {
		s.storeHealthFn = checker.Ping
	}
	if checker, ok := deps.Wallet.(interface{ Ping(context.Context) error }); ok {
		s.rpcHealthFn = checker.Ping
	}

	s.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Service.HTTPPort),
		Handler:           s.routes(),
		ReadHeaderTimeout: 15 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() http.Handler {
	mutating := func(h http.HandlerFunc) http.Handler {
		return s.hmac.Middleware(s.replay.Middleware(h))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/markets", s.handleMarkets)
	mux.Handle("POST /api/v1/bets", mutating(s.handleBet))
	mux.Handle("POST /api/v1/bets/quick", mutating(s.handleQuickBet))
	mux.Handle("POST /api/v1/transfers", mutating(s.handleTransfer))
	mux.HandleFunc("GET /api/v1/surfaces/{name}", s.handleSurface)
	mux.Handle("POST /api/v1/surfaces/{name}/reset", mutating(s.handleReset))
	mux.HandleFunc("GET /api/v1/account", s.handleAccount)
	mux.HandleFunc("GET /api/v1/account/qr", s.handleAccountQR)
	mux.Handle("POST /api/v1/faucet", mutating(s.handleFaucet))
	mux.HandleFunc("GET /api/v1/notifications", s.handleNotifications)
	mux.Handle("GET /api/v1/notifications/ws", s.hub)
	mux.Handle("GET /api/v1/metrics", s.metrics.handler())
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	return requestIDMiddleware(s.accessLog(mux))
}

// Handler exposes the routed API, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves HTTP and keeps the balance observation and faucet gate current
// until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	gateUpdates := s.observer.Subscribe()
	gaugeUpdates := s.observer.Subscribe()

	g.Go(func() error {
		return s.observer.Run(gctx)
	})
	g.Go(func() error {
		s.gate.Follow(gctx, gateUpdates)
		return nil
	})
	g.Go(func() error {
		for obs := range gaugeUpdates {
			s.metrics.setBalance(obs.Balance, s.cfg.Token.Decimals)
		}
		return nil
	})
	g.Go(func() error {
		s.log.Info("API listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := s.httpServer.Shutdown(shutdownCtx)
		s.Close()
		return err
	})
	return g.Wait()
}

// Close stops receipt watchers and disconnects websocket subscribers.
func (s *Server) Close() {
	for _, surface := range s.surfaces {
		surface.Close()
	}
	s.hub.Close()
}

// settled refreshes the balance as soon as a submission confirms.
func (s *Server) settled(o lifecycle.Outcome) {
	if o.Status == string(wallet.StatusConfirmed) {
		s.observer.Refresh()
	}
}

// observe polls the balance once and feeds the gate. Used when a handler needs
// a balance before the observer loop has produced one.
func (s *Server) observe(ctx context.Context) (balance.Observation, bool) {
	if obs, ok := s.observer.Latest(); ok {
		return obs, true
	}
	obs, err := s.observer.Poll(ctx)
	if err != nil {
		s.log.Warn("balance poll failed", zap.Error(err))
		return balance.Observation{}, false
	}
	s.gate.Observe(obs.Balance)
	s.metrics.setBalance(obs.Balance, s.cfg.Token.Decimals)
	return obs, true
}

func (s *Server) subAccount() (common.Address, bool) {
	if s.cfg.Chain.SubAccount == "" {
		return common.Address{}, false
	}
	return common.HexToAddress(s.cfg.Chain.SubAccount), true
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Request-Id") == "" {
			r.Header.Set("X-Request-Id", uuid.NewString())
		}
		w.Header().Set("X-Request-Id", r.Header.Get("X-Request-Id"))
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/notifications/ws" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", r.Header.Get("X-Request-Id")))
	})
}
