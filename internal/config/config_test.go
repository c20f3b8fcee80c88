package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutSettingsFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SETTINGS_PATH", filepath.Join(t.TempDir(), "missing.json"))

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "USDC", cfg.Token.Symbol)
	require.Equal(t, uint8(6), cfg.Token.Decimals)
	require.Equal(t, "0.10", cfg.Betting.QuickAmount)
	require.Equal(t, []int64{10, 25, 50, 100}, cfg.Betting.Presets)
	require.Equal(t, "10000000", cfg.Faucet.Ceiling.String())
	require.Nil(t, cfg.Faucet.Floor)
	require.Equal(t, "memory", cfg.Service.IdempotencyStore)
	require.Equal(t, 3000, cfg.Service.HTTPPort)
	require.Equal(t, 2*time.Second, cfg.Chain.PollInterval)
}

func TestLoadSettingsAndEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "settings.json")
	raw := `{
  "chain": {"rpcUrl": "http://127.0.0.1:8545", "pollIntervalMs": 500},
  "token": {"address": "0x036CbD53842c5426634e7929541eC2318f3dCF7e", "symbol": "USDC", "decimals": 6},
  "faucet": {"url": "http://faucet.local/fund", "ceiling": "25", "floor": "0.5"},
  "betting": {"quickAmount": "0.25", "presets": [50, 100]},
  "timeouts": {"idempotencyWindowSeconds": 30}
}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))
	t.Setenv("SETTINGS_PATH", path)
	t.Setenv("API_HTTP_PORT", "8088")
	t.Setenv("IDEMPOTENCY_STORE", "Redis")
	t.Setenv("BALANCE_REFRESH_INTERVAL", "3s")
	t.Setenv("WS_ALLOWED_ORIGINS", " https://app.betrails.io, ,http://localhost:5173 ")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "http://127.0.0.1:8545", cfg.Chain.RPCURL)
	require.Equal(t, 500*time.Millisecond, cfg.Chain.PollInterval)
	require.Equal(t, 3*time.Second, cfg.Chain.BalanceRefresh)
	require.Equal(t, "25000000", cfg.Faucet.Ceiling.String())
	require.Equal(t, "500000", cfg.Faucet.Floor.String())
	require.Equal(t, "http://faucet.local/fund", cfg.Faucet.URL)
	require.Equal(t, "0.25", cfg.Betting.QuickAmount)
	require.Equal(t, []int64{50, 100}, cfg.Betting.Presets)
	require.Equal(t, 30*time.Second, cfg.Service.IdempotencyWindow)
	require.Equal(t, 8088, cfg.Service.HTTPPort)
	require.Equal(t, "redis", cfg.Service.IdempotencyStore)
	require.Equal(t, []string{"https://app.betrails.io", "http://localhost:5173"}, cfg.Service.AllowedOrigins)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]map[string]string{
		"floor above ceiling": {"FAUCET_CEILING": "1", "FAUCET_FLOOR": "2"},
		"bad quick amount":    {"QUICK_BET_AMOUNT": "abc"},
		"bad token address":   {"TOKEN_ADDRESS": "0x12"},
		"bad store":           {"IDEMPOTENCY_STORE": "etcd"},
		"bad sub account":     {"SUB_ACCOUNT_ADDRESS": "nope"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv("SETTINGS_PATH", filepath.Join(t.TempDir(), "missing.json"))
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TOKEN_SYMBOL=EURC\nAPI_HTTP_PORT=9000\n"), 0o600))
	t.Setenv("SETTINGS_PATH", filepath.Join(dir, "missing.json"))
	t.Setenv("API_HTTP_PORT", "7000")
	t.Cleanup(func() { os.Unsetenv("TOKEN_SYMBOL") })

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "EURC", cfg.Token.Symbol)
	require.Equal(t, 7000, cfg.Service.HTTPPort)
}
