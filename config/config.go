package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"

	"github.com/sand/storefront/backend/internal/core/ports"
)

// Supported settlement networks.
const (
	NetworkTron   = "tron"
	NetworkBSC    = "bsc"
	NetworkSolana = "solana"
)

type (
	Config struct {
		App        `json:"app"        toml:"app"`
		Blockchain `json:"blockchain" toml:"blockchain"`
		Recharge   `json:"recharge"   toml:"recharge"`
		Store      `json:"store"      toml:"store"`
		Workers    `json:"workers"    toml:"workers"`
		Delivery   `json:"delivery"   toml:"delivery"`
		HTTP       `json:"http"       toml:"http"`
		DB         `json:"db"         toml:"db"`
		Redis      `json:"redis"      toml:"redis"`
		Log        `json:"logger"     toml:"logger"`
	}

	App struct {
		Name        string `json:"name"        toml:"name"        env:"APP_NAME"`
		Environment string `json:"environment" toml:"environment" env:"ENV_NAME" env-default:"dev"`
		Debug       bool   `json:"debug"       toml:"debug"       env:"DEBUG"    env-default:"false"`
		// Storage selects "postgres" or "memory" (local runs without a database).
		Storage string `json:"storage" toml:"storage" env:"APP_STORAGE" env-default:"postgres"`
	}

	Blockchain struct {
		Network            string   `json:"network"             toml:"network"             env:"CHAIN_NETWORK"        env-default:"tron"`
		ReceivingAddress   string   `json:"receiving_address"   toml:"receiving_address"   env:"AGENT_USDT_ADDRESS"`
		TokenSymbol        string   `json:"token_symbol"        toml:"token_symbol"        env:"TOKEN_SYMBOL"         env-default:"USDT"`
		TokenContract      string   `json:"token_contract"      toml:"token_contract"      env:"USDT_TRON_CONTRACT"   env-default:"TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"`
		TronGridAPIBase    string   `json:"trongrid_api_base"   toml:"trongrid_api_base"   env:"TRONGRID_API_BASE"    env-default:"https://api.trongrid.io"`
		TronAPIKeys        []string `json:"tron_api_keys"       toml:"tron_api_keys"       env:"TRON_API_KEYS"        env-separator:","`
		TronAPIKeyHeader   string   `json:"tron_api_key_header" toml:"tron_api_key_header" env:"TRON_API_KEY_HEADER"  env-default:"TRON-PRO-API-KEY"`
		TronScanEndpoints  []string `json:"tronscan_endpoints"  toml:"tronscan_endpoints"  env:"TRONSCAN_TRX20_API"   env-separator:"," env-default:"https://apilist.tronscanapi.com/api/token_trc20/transfers,https://apilist.tronscan.org/api/token_trc20/transfers"`
		EVMRPCURLs         []string `json:"evm_rpc_urls"        toml:"evm_rpc_urls"        env:"EVM_RPC_URLS"         env-separator:"," env-default:"https://bsc-dataseed.binance.org/"`
		EVMLookbackBlocks  uint64   `json:"evm_lookback_blocks" toml:"evm_lookback_blocks" env:"EVM_LOOKBACK_BLOCKS"  env-default:"2000"`
		SolanaRPCURLs      []string `json:"solana_rpc_urls"     toml:"solana_rpc_urls"     env:"SOLANA_RPC_URLS"      env-separator:"," env-default:"https://api.mainnet-beta.solana.com"`
		FetchLimit         int      `json:"fetch_limit"         toml:"fetch_limit"         env:"LEDGER_FETCH_LIMIT"   env-default:"100"`
		RequestTimeoutSecs int      `json:"request_timeout"     toml:"request_timeout"     env:"LEDGER_TIMEOUT"       env-default:"10"`
		CacheTTLSeconds    int      `json:"cache_ttl"           toml:"cache_ttl"           env:"LEDGER_CACHE_TTL"     env-default:"3"`
	}

	Recharge struct {
		MinAmount           string `json:"min_amount"             toml:"min_amount"             env:"RECHARGE_MIN_USDT"              env-default:"10"`
		ExpireMinutes       int    `json:"expire_minutes"         toml:"expire_minutes"         env:"RECHARGE_EXPIRE_MINUTES"        env-default:"10"`
		PollIntervalSeconds int    `json:"poll_interval_seconds"  toml:"poll_interval_seconds"  env:"RECHARGE_POLL_INTERVAL_SECONDS" env-default:"8"`
		BatchSize           int    `json:"batch_size"             toml:"batch_size"             env:"RECHARGE_BATCH_SIZE"            env-default:"80"`
		GraceMinutes        int    `json:"grace_minutes"          toml:"grace_minutes"          env:"RECHARGE_GRACE_MINUTES"         env-default:"5"`
		CodeWidth           int    `json:"code_width"             toml:"code_width"             env:"RECHARGE_CODE_WIDTH"            env-default:"4"`
		MaxAttempts         int    `json:"max_attempts"           toml:"max_attempts"           env:"RECHARGE_MAX_ATTEMPTS"          env-default:"5"`
		LateMatchLookbackH  int    `json:"late_match_lookback_h"  toml:"late_match_lookback_h"  env:"RECHARGE_LATE_LOOKBACK_HOURS"   env-default:"24"`
	}

	Store struct {
		DefaultMarkup string `json:"default_markup" toml:"default_markup" env:"AGENT_DEFAULT_MARKUP" env-default:"0.2"`
	}

	Workers struct {
		ExpirySweepSeconds int `json:"expiry_sweep_seconds" toml:"expiry_sweep_seconds" env:"EXPIRY_SWEEP_SECONDS" env-default:"60"`
	}

	Delivery struct {
		BaseDir         string `json:"base_dir"          toml:"base_dir"          env:"FILE_BASE_PATH"      env-default:"./files"`
		OutDir          string `json:"out_dir"           toml:"out_dir"           env:"DELIVERY_OUT_DIR"    env-default:"./files/deliveries"`
		MaxArchiveBytes int64  `json:"max_archive_bytes" toml:"max_archive_bytes" env:"DELIVERY_MAX_BYTES"  env-default:"52428800"`
	}

	HTTP struct {
		Port string `json:"port" toml:"port" env:"HTTP_PORT" env-default:"8080"`
	}

	DB struct {
		DatabaseURL       string `json:"database_url"        toml:"database_url"        env:"DATABASE_URL"`
		PoolMax           int32  `json:"pool_max"            toml:"pool_max"            env:"PG_POOL_MAX"          env-default:"10"`
		ConnectTimeout    int    `json:"connect_timeout"     toml:"connect_timeout"     env:"PG_POOL_CONN_TIMEOUT" env-default:"5"`
		HealthCheckPeriod int    `json:"health_check_period" toml:"health_check_period" env:"PG_POOL_HEALTHCHECK"  env-default:"1"`
		MigrationsPath    string `json:"migrations_path"     toml:"migrations_path"     env:"MIGRATIONS_PATH"      env-default:"./migrations"`
	}

	Redis struct {
		Addr     string `json:"addr"     toml:"addr"     env:"REDIS_ADDR"`
		Password string `json:"password" toml:"password" env:"REDIS_PASSWORD"`
		DB       int    `json:"db"       toml:"db"       env:"REDIS_DB" env-default:"0"`
	}

	Log struct {
		Level slog.Level `json:"level" toml:"level" env:"LOG_LEVEL"`
	}
)

func LoadConfig() (*Config, error) {
	if err := loadEnvFile(os.Args[1:]); err != nil {
		return nil, err
	}

	cfg := &Config{}

	_, b, _, _ := runtime.Caller(0)
	basePath := filepath.Dir(b)

	configTomlPath := filepath.Join(basePath, "config.toml")
	err := cleanenv.ReadConfig(configTomlPath, cfg)
	if err != nil {
		configJsonPath := filepath.Join(basePath, "config.json")
		err = cleanenv.ReadConfig(configJsonPath, cfg)
		if err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
	}

	err = cleanenv.ReadEnv(cfg)
	if err != nil {
		return nil, fmt.Errorf("env read error: %w", err)
	}

	cfg.Normalize()
	if err = cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEnvFile loads "--env <file>" (or ENV_FILE) into the process environment before cleanenv reads it.
func loadEnvFile(args []string) error {
	path := os.Getenv("ENV_FILE")
	for i, arg := range args {
		if arg == "--env" && i+1 < len(args) {
			path = args[i+1]
		} else if strings.HasPrefix(arg, "--env=") {
			path = strings.TrimPrefix(arg, "--env=")
		}
	}
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Normalize clamps values that would break the workers or the fingerprint scheme.
func (c *Config) Normalize() {
	c.Network = strings.ToLower(strings.TrimSpace(c.Network))
	c.TronGridAPIBase = strings.TrimRight(c.TronGridAPIBase, "/")
	c.TronAPIKeys = compact(c.TronAPIKeys)
	c.TronScanEndpoints = compact(c.TronScanEndpoints)
	c.EVMRPCURLs = compact(c.EVMRPCURLs)
	c.SolanaRPCURLs = compact(c.SolanaRPCURLs)

	if c.ExpireMinutes <= 0 {
		c.ExpireMinutes = int(ports.DefaultOrderTTL / time.Minute)
	}
	if time.Duration(c.PollIntervalSeconds)*time.Second < ports.MinPollInterval {
		c.PollIntervalSeconds = int(ports.MinPollInterval / time.Second)
	}
	if c.BatchSize <= 0 {
		c.BatchSize = ports.DefaultSweepBatchSize
	}
	if c.GraceMinutes < 0 {
		c.GraceMinutes = int(ports.DefaultGraceWindow / time.Minute)
	}
	// суммы хранятся и сравниваются с 4 знаками, другая ширина кода ломает сопоставление
	if c.CodeWidth != ports.DefaultCodeWidth {
		c.CodeWidth = ports.DefaultCodeWidth
	}
	if c.CacheTTLSeconds <= 0 {
		c.CacheTTLSeconds = int(ports.DefaultLedgerCacheTTL / time.Second)
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = ports.DefaultFingerprintRetries
	}
	if c.FetchLimit <= 0 || c.FetchLimit > ports.MaxLedgerPageSize {
		c.FetchLimit = ports.DefaultLedgerFetchLimit
	}
	if c.RequestTimeoutSecs <= 0 {
		c.RequestTimeoutSecs = 10
	}
	if c.ExpirySweepSeconds <= 0 {
		c.ExpirySweepSeconds = 60
	}
	if c.LateMatchLookbackH <= 0 {
		c.LateMatchLookbackH = int(ports.DefaultLateMatchLookback / time.Hour)
	}
}

// Validate rejects a configuration the storefront cannot run with.
func (c *Config) Validate() error {
	if c.ReceivingAddress == "" {
		return fmt.Errorf("config error: receiving address (AGENT_USDT_ADDRESS) is not set")
	}
	if err := ValidateAddress(c.Network, c.ReceivingAddress); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if _, err := c.MinRechargeAmount(); err != nil {
		return fmt.Errorf("config error: recharge min amount: %w", err)
	}
	if _, err := c.DefaultMarkupAmount(); err != nil {
		return fmt.Errorf("config error: default markup: %w", err)
	}
	return nil
}

// ValidateAddress checks that address is well formed for network.
func ValidateAddress(network, address string) error {
	switch network {
	case NetworkTron:
		if len(address) != 34 || address[0] != 'T' {
			return fmt.Errorf("malformed tron address %q", address)
		}
		// 0x41 prefix + 20 byte account + 4 byte checksum
		raw, err := base58.Decode(address)
		if err != nil || len(raw) != 25 || raw[0] != 0x41 {
			return fmt.Errorf("malformed tron address %q", address)
		}
		return nil
	case NetworkBSC:
		if !common.IsHexAddress(address) {
			return fmt.Errorf("malformed evm address %q", address)
		}
		return nil
	case NetworkSolana:
		if _, err := solana.PublicKeyFromBase58(address); err != nil {
			return fmt.Errorf("malformed solana address %q: %w", address, err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported network %q", network)
	}
}

func (c *Config) MinRechargeAmount() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.MinAmount)
	if err != nil {
		return decimal.Zero, err
	}
	return d.Truncate(2), nil
}

func (c *Config) DefaultMarkupAmount() (decimal.Decimal, error) {
	return decimal.NewFromString(c.DefaultMarkup)
}

func (c *Config) OrderTTL() time.Duration {
	return time.Duration(c.ExpireMinutes) * time.Minute
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c *Config) GraceWindow() time.Duration {
	return time.Duration(c.GraceMinutes) * time.Minute
}

func (c *Config) LateMatchLookback() time.Duration {
	return time.Duration(c.LateMatchLookbackH) * time.Hour
}

func (c *Config) ExpirySweepInterval() time.Duration {
	return time.Duration(c.ExpirySweepSeconds) * time.Second
}

func (c *Config) LedgerCacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSecs) * time.Second
}

func compact(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
