package config

import (
	"fmt"
	"time"
)

// Duration wraps time.Duration to support TOML text values such as "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText parses human readable duration strings.
func (d *Duration) UnmarshalText(text []byte) error {
	raw := string(text)
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText renders the duration in Go syntax.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Storage selects the state backend.
type Storage struct {
	// Backend is "leveldb" or "memory".
	Backend string `toml:"Backend"`
	Path    string `toml:"Path"`
}

// Journal configures the event journal database.
type Journal struct {
	// Driver is "sqlite" or "postgres".
	Driver string `toml:"Driver"`
	DSN    string `toml:"DSN"`
}

// Server configures the HTTP API.
type Server struct {
	ListenAddress string `toml:"ListenAddress"`
	// JWTSecretEnv names the environment variable holding the HMAC secret
	// used to verify bearer tokens.
	JWTSecretEnv string `toml:"JWTSecretEnv"`
	JWTIssuer    string `toml:"JWTIssuer"`
	// AuthDisabled accepts the caller from the X-Caller header instead of a
	// bearer token. Only for local development.
	AuthDisabled       bool     `toml:"AuthDisabled"`
	RateLimitPerSecond float64  `toml:"RateLimitPerSecond"`
	RateLimitBurst     int      `toml:"RateLimitBurst"`
	ReadTimeout        Duration `toml:"ReadTimeout"`
	WriteTimeout       Duration `toml:"WriteTimeout"`
	ShutdownTimeout    Duration `toml:"ShutdownTimeout"`
	CORSOrigins        []string `toml:"CORSOrigins"`
}

// Keeper configures the periodic harvester.
type Keeper struct {
	Enabled  bool     `toml:"Enabled"`
	Interval Duration `toml:"Interval"`
	// Caller is the address recorded as the initiator of keeper operations.
	Caller string `toml:"Caller"`
}

// Logging configures the structured logger.
type Logging struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// Telemetry configures OTLP export.
type Telemetry struct {
	Endpoint        string   `toml:"Endpoint"`
	Insecure        bool     `toml:"Insecure"`
	Metrics         bool     `toml:"Metrics"`
	Traces          bool     `toml:"Traces"`
	MetricsInterval Duration `toml:"MetricsInterval"`
	// SampleRatio is the fraction of root traces kept. Zero keeps all.
	SampleRatio float64 `toml:"SampleRatio"`
}

// Staking names the stake and reward tokens by symbol.
type Staking struct {
	StakeToken  string `toml:"StakeToken"`
	RewardToken string `toml:"RewardToken"`
}

// Allocation is a genesis balance.
type Allocation struct {
	Address string `toml:"Address"`
	Amount  string `toml:"Amount"`
}

// Token registers a token at genesis.
type Token struct {
	Symbol      string       `toml:"Symbol"`
	Decimals    uint8        `toml:"Decimals"`
	Allocations []Allocation `toml:"Allocations"`
}

// Pool creates an exchange pool at genesis. Liquidity is minted to the
// liquidity provider account and deposited in the same step.
type Pool struct {
	TokenA            string `toml:"TokenA"`
	TokenB            string `toml:"TokenB"`
	Fee               uint32 `toml:"Fee"`
	LiquidityA        string `toml:"LiquidityA"`
	LiquidityB        string `toml:"LiquidityB"`
	ConfigureFeeShare bool   `toml:"ConfigureFeeShare"`
}
