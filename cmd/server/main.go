package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"betrails/internal/balance"
	"betrails/internal/config"
	"betrails/internal/faucet"
	"betrails/internal/idempotency"
	"betrails/internal/logging"
	"betrails/internal/market"
	"betrails/internal/server"
	"betrails/internal/wallet"
)

// devAccount is the connected address when no private key is configured.
var devAccount = common.HexToAddress("0x00000000000000000000000000000000000dEaD1")

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.AppConfig, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	catalog, err := market.Load(cfg.Betting.MarketsPath)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("idempotency store: %w", err)
	}
	defer closeStore()

	deps := server.Deps{
		Config:  cfg,
		Catalog: catalog,
		Store:   store,
		Logger:  logger,
	}

	closeChain, err := attachChain(ctx, cfg, logger, &deps)
	if err != nil {
		return err
	}
	defer closeChain()

	srv, err := server.New(deps)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

// attachChain fills the wallet, balance reader and faucet. Without a private
// key it falls back to an in-memory wallet and a local faucet.
func attachChain(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger, deps *server.Deps) (func(), error) {
	closer := func() {}
	if cfg.Chain.PrivateKey != "" {
		ethWallet, err := wallet.NewEthWallet(ctx, wallet.EthConfig{
			RPCURL:        cfg.Chain.RPCURL,
			PrivateKeyHex: cfg.Chain.PrivateKey,
			PollInterval:  cfg.Chain.PollInterval,
		}, logger.Named("wallet"))
		if err != nil {
			return closer, fmt.Errorf("wallet: %w", err)
		}
		deps.Wallet = ethWallet
		deps.Balances = balance.NewEthReader(ethWallet.Caller(), cfg.Token.Address)
		closer = ethWallet.Close
	} else {
		logger.Warn("CHAIN_PRIVATE_KEY not set; using an in-memory wallet that confirms after two seconds",
			zap.String("address", devAccount.Hex()))
		fake := wallet.NewFakeWallet(devAccount)
		fake.AutoConfirm = 2 * time.Second
		deps.Wallet = fake
		deps.Balances = fake
		deps.Faucet = devFaucet(fake, cfg)
	}
	if cfg.Faucet.URL != "" {
		deps.Faucet = faucet.NewClient(cfg.Faucet.URL, cfg.Faucet.Timeout)
	}
	return closer, nil
}

func openStore(ctx context.Context, cfg *config.AppConfig) (idempotency.Store, func(), error) {
	nop := func() {}
	switch cfg.Service.IdempotencyStore {
	case "file":
		store, err := idempotency.NewFileStore(cfg.Service.IdempotencyStorePath)
		return store, nop, err
	case "postgres":
		pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		store, err := idempotency.NewPostgresStore(pgCtx, cfg.Service.PostgresDSN)
		if err != nil {
			return nil, nop, err
		}
		return store, store.Close, nil
	case "redis":
		redisCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		store, err := idempotency.NewRedisStore(redisCtx, cfg.Service.RedisAddr)
		if err != nil {
			return nil, nop, err
		}
		return store, func() { _ = store.Close() }, nil
	case "memory":
		return idempotency.NewMemoryStore(), nop, nil
	}
	return nil, nop, errors.New("unknown idempotency store " + cfg.Service.IdempotencyStore)
}

// devFaucet credits the in-memory wallet with the faucet ceiling.
func devFaucet(w *wallet.FakeWallet, cfg *config.AppConfig) faucet.Service {
	return faucet.ServiceFunc(func(ctx context.Context, addr common.Address) (faucet.Funding, error) {
		current, err := w.BalanceOf(ctx, addr)
		if err != nil {
			return faucet.Funding{}, err
		}
		w.SetBalance(new(big.Int).Add(current, cfg.Faucet.Ceiling))
		return faucet.Funding{ExplorerURL: "about:blank#dev-faucet/" + addr.Hex()}, nil
	})
}
