package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the runtime configuration of feeshared.
type Config struct {
	Service     string    `toml:"Service"`
	Environment string    `toml:"Environment"`
	Storage     Storage   `toml:"Storage"`
	Journal     Journal   `toml:"Journal"`
	Server      Server    `toml:"Server"`
	Keeper      Keeper    `toml:"Keeper"`
	Logging     Logging   `toml:"Logging"`
	Telemetry   Telemetry `toml:"Telemetry"`
	Staking     Staking   `toml:"Staking"`
	Tokens      []Token   `toml:"Tokens"`
	Pools       []Pool    `toml:"Pools"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration written on first start: an in-process
// development network with a single USDC/RWD pool.
func Default() *Config {
	cfg := &Config{
		Environment: "dev",
		Storage:     Storage{Backend: "leveldb", Path: "./feeshare-data/state"},
		Journal:     Journal{Driver: "sqlite", DSN: "./feeshare-data/journal.db"},
		Keeper:      Keeper{Enabled: true},
		Staking:     Staking{StakeToken: "FSH", RewardToken: "RWD"},
		Tokens: []Token{
			{Symbol: "FSH", Decimals: 18},
			{Symbol: "RWD", Decimals: 18},
			{Symbol: "USDC", Decimals: 6},
		},
		Pools: []Pool{{
			TokenA:            "USDC",
			TokenB:            "RWD",
			Fee:               3_000,
			LiquidityA:        "1000000000000",
			LiquidityB:        "1000000000000000000000000",
			ConfigureFeeShare: true,
		}},
	}
	applyDefaults(cfg)
	return cfg
}

func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Service) == "" {
		cfg.Service = "feeshared"
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "dev"
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "leveldb"
	}
	if cfg.Storage.Path == "" && cfg.Storage.Backend == "leveldb" {
		cfg.Storage.Path = "./feeshare-data/state"
	}
	if cfg.Journal.Driver == "" {
		cfg.Journal.Driver = "sqlite"
	}
	if cfg.Journal.DSN == "" && cfg.Journal.Driver == "sqlite" {
		cfg.Journal.DSN = "file::memory:?cache=shared"
	}
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = ":8480"
	}
	if cfg.Server.JWTSecretEnv == "" {
		cfg.Server.JWTSecretEnv = "FEESHARE_JWT_SECRET"
	}
	if cfg.Server.RateLimitPerSecond <= 0 {
		cfg.Server.RateLimitPerSecond = 20
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 40
	}
	if cfg.Server.ReadTimeout.Duration == 0 {
		cfg.Server.ReadTimeout.Duration = 10 * time.Second
	}
	if cfg.Server.WriteTimeout.Duration == 0 {
		cfg.Server.WriteTimeout.Duration = 15 * time.Second
	}
	if cfg.Server.ShutdownTimeout.Duration == 0 {
		cfg.Server.ShutdownTimeout.Duration = 10 * time.Second
	}
	if cfg.Keeper.Interval.Duration == 0 {
		cfg.Keeper.Interval.Duration = time.Minute
	}
	if cfg.Keeper.Caller == "" {
		cfg.Keeper.Caller = "feeshare/keeper"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.MaxSizeMB <= 0 {
		cfg.Logging.MaxSizeMB = 100
	}
	if cfg.Logging.MaxBackups <= 0 {
		cfg.Logging.MaxBackups = 5
	}
	if cfg.Logging.MaxAgeDays <= 0 {
		cfg.Logging.MaxAgeDays = 28
	}
	if cfg.Telemetry.MetricsInterval.Duration == 0 {
		cfg.Telemetry.MetricsInterval.Duration = 15 * time.Second
	}
	if cfg.Tokens == nil {
		cfg.Tokens = []Token{}
	}
	if cfg.Pools == nil {
		cfg.Pools = []Pool{}
	}
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
