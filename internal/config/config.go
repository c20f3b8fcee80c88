package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"betrails/internal/token"
)

// Settings models settings.json. Every field may be overridden from the environment.
type Settings struct {
	Chain struct {
		ChainID          int64  `json:"chainId"`
		RPCURL           string `json:"rpcUrl"`
		PollIntervalMs   int    `json:"pollIntervalMs"`
		BalanceRefreshMs int    `json:"balanceRefreshMs"`
	} `json:"chain"`
	Token struct {
		Address  string `json:"address"`
		Symbol   string `json:"symbol"`
		Decimals int    `json:"decimals"`
	} `json:"token"`
	Faucet struct {
		URL       string `json:"url"`
		Ceiling   string `json:"ceiling"`
		Floor     string `json:"floor"`
		TimeoutMs int    `json:"timeoutMs"`
	} `json:"faucet"`
	Betting struct {
		QuickAmount string  `json:"quickAmount"`
		MarketsPath string  `json:"marketsPath"`
		Presets     []int64 `json:"presets"`
	} `json:"betting"`
	Timeouts struct {
		IdempotencyWindowSecs int `json:"idempotencyWindowSeconds"`
	} `json:"timeouts"`
}

// AppConfig ties together settings, environment and derived values.
type AppConfig struct {
	Settings Settings
	Service  ServiceConfig
	Chain    ChainConfig
	Token    token.Token
	Faucet   FaucetConfig
	Betting  BettingConfig
	Log      LogConfig
}

type ServiceConfig struct {
	HTTPPort             int
	HMACSecret           string
	HMACClockSkew        time.Duration
	IdempotencyWindow    time.Duration
	IdempotencyStore     string
	IdempotencyStorePath string
	PostgresDSN          string
	RedisAddr            string
	// AllowedOrigins lists extra websocket origins; same-origin is always allowed.
	AllowedOrigins       []string
}

type ChainConfig struct {
	RPCURL         string
	PrivateKey     string
	SubAccount     string
	PollInterval   time.Duration
	BalanceRefresh time.Duration
}

type FaucetConfig struct {
	URL     string
	Timeout time.Duration
	Ceiling *big.Int
	// Floor is nil when no minimum balance is required.
	Floor *big.Int
}

type BettingConfig struct {
	QuickAmount string
	MarketsPath string
	Presets     []int64
}

type LogConfig struct {
	Level  string
	Format string
}

const (
	defaultSettingsPath = "settings.json"
	defaultTokenAddress = "0x036CbD53842c5426634e7929541eC2318f3dCF7e"
	defaultRPCURL       = "https://sepolia.base.org"
)

// Load reads .env (never overriding the real environment), then settings.json
// when present, then applies environment overrides.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	settingsPath := envOr("SETTINGS_PATH", defaultSettingsPath)
	settings, err := loadSettings(settingsPath)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return fromSettings(settings)
}

func fromSettings(s *Settings) (*AppConfig, error) {
	decimals := envOrInt("TOKEN_DECIMALS", orInt(s.Token.Decimals, 6))
	if decimals < 0 || decimals > 77 {
		return nil, fmt.Errorf("token decimals %d out of range", decimals)
	}
	address := envOr("TOKEN_ADDRESS", orString(s.Token.Address, defaultTokenAddress))
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("token address %q is not a hex address", address)
	}
	tok := token.Token{
		Address:  common.HexToAddress(address),
		Decimals: uint8(decimals),
		Symbol:   envOr("TOKEN_SYMBOL", orString(s.Token.Symbol, "USDC")),
	}

	ceiling, err := tok.Parse(envOr("FAUCET_CEILING", orString(s.Faucet.Ceiling, "10")))
	if err != nil {
		return nil, fmt.Errorf("faucet ceiling: %w", err)
	}
	faucetCfg := FaucetConfig{
		URL:     envOr("FAUCET_URL", s.Faucet.URL),
		Timeout: envOrDuration("FAUCET_TIMEOUT", millis(s.Faucet.TimeoutMs, 15*time.Second)),
		Ceiling: ceiling.Units,
	}
	if raw := envOr("FAUCET_FLOOR", s.Faucet.Floor); raw != "" {
		floor, err := tok.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("faucet floor: %w", err)
		}
		if floor.Units.Cmp(ceiling.Units) >= 0 {
			return nil, fmt.Errorf("faucet floor %s must be below ceiling %s", floor.Text, ceiling.Text)
		}
		faucetCfg.Floor = floor.Units
	}

	quick := envOr("QUICK_BET_AMOUNT", orString(s.Betting.QuickAmount, "0.10"))
	if _, err := tok.Parse(quick); err != nil {
		return nil, fmt.Errorf("quick bet amount: %w", err)
	}
	presets := s.Betting.Presets
	if len(presets) == 0 {
		presets = []int64{10, 25, 50, 100}
	}

	windowSecs := orInt(s.Timeouts.IdempotencyWindowSecs, 600)
	serviceCfg := ServiceConfig{
		HTTPPort:             envOrInt("API_HTTP_PORT", 3000),
		HMACSecret:           envOr("HMAC_SECRET", ""),
		HMACClockSkew:        time.Duration(envOrInt("HMAC_CLOCK_SKEW_SECONDS", 60)) * time.Second,
		IdempotencyWindow:    time.Duration(envOrInt("IDEMPOTENCY_WINDOW_SECONDS", windowSecs)) * time.Second,
		IdempotencyStore:     strings.ToLower(envOr("IDEMPOTENCY_STORE", "memory")),
		IdempotencyStorePath: envOr("IDEMPOTENCY_STORE_PATH", filepath.Join(os.TempDir(), "betrails-idem.json")),
		PostgresDSN:          envOr("POSTGRES_DSN", ""),
		RedisAddr:            envOr("REDIS_ADDR", ""),
		AllowedOrigins:       splitList(envOr("WS_ALLOWED_ORIGINS", "")),
	}
	switch serviceCfg.IdempotencyStore {
	case "memory", "file", "postgres", "redis":
	default:
		return nil, fmt.Errorf("unknown idempotency store %q", serviceCfg.IdempotencyStore)
	}

	chainCfg := ChainConfig{
		RPCURL:         envOr("CHAIN_RPC_URL", orString(s.Chain.RPCURL, defaultRPCURL)),
		PrivateKey:     envOr("CHAIN_PRIVATE_KEY", ""),
		SubAccount:     envOr("SUB_ACCOUNT_ADDRESS", ""),
		PollInterval:   envOrDuration("RECEIPT_POLL_INTERVAL", millis(s.Chain.PollIntervalMs, 2*time.Second)),
		BalanceRefresh: envOrDuration("BALANCE_REFRESH_INTERVAL", millis(s.Chain.BalanceRefreshMs, 10*time.Second)),
	}
	if chainCfg.SubAccount != "" && !common.IsHexAddress(chainCfg.SubAccount) {
		return nil, fmt.Errorf("sub account %q is not a hex address", chainCfg.SubAccount)
	}

	return &AppConfig{
		Settings: *s,
		Service:  serviceCfg,
		Chain:    chainCfg,
		Token:    tok,
		Faucet:   faucetCfg,
		Betting: BettingConfig{
			QuickAmount: quick,
			MarketsPath: envOr("MARKETS_PATH", s.Betting.MarketsPath),
			Presets:     presets,
		},
		Log: LogConfig{
			Level:  envOr("LOG_LEVEL", "info"),
			Format: envOr("LOG_FORMAT", "json"),
		},
	}, nil
}

// loadSettings treats a missing file as empty settings.
func loadSettings(path string) (*Settings, error) {
	var cfg Settings
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envOr(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
	}
	return fallback
}

func envOrDuration(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func orString(val, fallback string) string {
	if val != "" {
		return val
	}
	return fallback
}

func orInt(val, fallback int) int {
	if val != 0 {
		return val
	}
	return fallback
}

func millis(ms int, fallback time.Duration) time.Duration {
	if ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}
