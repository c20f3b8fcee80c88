package main

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"betrails/internal/config"
	"betrails/internal/faucet"
	"betrails/internal/idempotency"
	"betrails/internal/server"
	"betrails/internal/wallet"
)

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	return &config.AppConfig{
		Service: config.ServiceConfig{
			IdempotencyStore:     "memory",
			IdempotencyStorePath: filepath.Join(t.TempDir(), "idem.json"),
		},
		Faucet: config.FaucetConfig{
			Ceiling: big.NewInt(10_000_000),
			Timeout: time.Second,
		},
	}
}

func TestOpenStoreMemory(t *testing.T) {
	cfg := testConfig(t)
	store, closeStore, err := openStore(context.Background(), cfg)
	require.NoError(t, err)
	defer closeStore()
	require.IsType(t, &idempotency.MemoryStore{}, store)
}

func TestOpenStoreFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Service.IdempotencyStore = "file"
	store, closeStore, err := openStore(context.Background(), cfg)
	require.NoError(t, err)
	defer closeStore()
	require.IsType(t, &idempotency.FileStore{}, store)

	ctx := context.Background()
	rec := idempotency.Record{StatusCode: 202, Response: []byte(`{}`), CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Minute)}
	require.NoError(t, store.Save(ctx, "POST /api/v1/transfers k", rec))
	got, err := store.Get(ctx, "POST /api/v1/transfers k")
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestOpenStoreUnknown(t *testing.T) {
	cfg := testConfig(t)
	cfg.Service.IdempotencyStore = "etcd"
	_, closeStore, err := openStore(context.Background(), cfg)
	require.ErrorContains(t, err, `unknown idempotency store etcd`)
	closeStore()
}

func TestDevFaucetCreditsCeiling(t *testing.T) {
	cfg := testConfig(t)
	fake := wallet.NewFakeWallet(devAccount)
	fake.SetBalance(big.NewInt(1_500_000))

	funding, err := devFaucet(fake, cfg).RequestFunds(context.Background(), devAccount)
	require.NoError(t, err)
	require.Contains(t, funding.ExplorerURL, devAccount.Hex())

	bal, err := fake.BalanceOf(context.Background(), devAccount)
	require.NoError(t, err)
	require.Equal(t, "11500000", bal.String())
}

func TestAttachChainFallsBackToDevWallet(t *testing.T) {
	cfg := testConfig(t)
	var deps server.Deps
	closeChain, err := attachChain(context.Background(), cfg, zap.NewNop(), &deps)
	require.NoError(t, err)
	defer closeChain()

	fake, ok := deps.Wallet.(*wallet.FakeWallet)
	require.True(t, ok, "expected in-memory wallet, got %T", deps.Wallet)
	require.Equal(t, devAccount, fake.Address())
	require.True(t, fake.Connected())
	require.Same(t, fake, deps.Balances)
	require.NotNil(t, deps.Faucet)

	_, err = deps.Faucet.RequestFunds(context.Background(), devAccount)
	require.NoError(t, err)
	bal, err := fake.BalanceOf(context.Background(), devAccount)
	require.NoError(t, err)
	require.Equal(t, "10000000", bal.String())
}

func TestAttachChainPrefersConfiguredFaucet(t *testing.T) {
	cfg := testConfig(t)
	cfg.Faucet.URL = "http://faucet.local/fund"
	var deps server.Deps
	closeChain, err := attachChain(context.Background(), cfg, zap.NewNop(), &deps)
	require.NoError(t, err)
	defer closeChain()
	require.IsType(t, &faucet.Client{}, deps.Faucet)
}
