package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleConfig = `
Service = "feeshared-test"
Environment = "staging"

[Storage]
Backend = "memory"

[Journal]
Driver = "sqlite"
DSN = "file::memory:"

[Server]
ListenAddress = "127.0.0.1:9000"
ReadTimeout = "3s"

[Keeper]
Enabled = true
Interval = "45s"

[Staking]
StakeToken = "fsh"
RewardToken = "RWD"

[[Tokens]]
Symbol = "FSH"
Decimals = 18

  [[Tokens.Allocations]]
  Address = "0x00000000000000000000000000000000000000aa"
  Amount = "1000"

[[Tokens]]
Symbol = "RWD"
Decimals = 18

[[Tokens]]
Symbol = "USDC"
Decimals = 6

[[Pools]]
TokenA = "USDC"
TokenB = "RWD"
Fee = 500
LiquidityA = "100"
LiquidityB = "100"
ConfigureFeeShare = true
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadParsesSections(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	require.Equal(t, "feeshared-test", cfg.Service)
	require.Equal(t, "memory", cfg.Storage.Backend)
	require.Equal(t, "127.0.0.1:9000", cfg.Server.ListenAddress)
	require.Equal(t, 3*time.Second, cfg.Server.ReadTimeout.Duration)
	require.Equal(t, 15*time.Second, cfg.Server.WriteTimeout.Duration)
	require.Equal(t, 45*time.Second, cfg.Keeper.Interval.Duration)
	require.Len(t, cfg.Tokens, 3)
	require.Len(t, cfg.Tokens[0].Allocations, 1)
	require.Len(t, cfg.Pools, 1)
	require.Equal(t, uint32(500), cfg.Pools[0].Fee)
	require.True(t, cfg.Pools[0].ConfigureFeeShare)
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.FileExists(t, path)
	require.NoError(t, Validate(cfg))

	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Staking, again.Staking)
	require.Equal(t, cfg.Keeper.Interval, again.Keeper.Interval)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, sampleConfig+"\nBogus = 1\n"))
	require.ErrorContains(t, err, "unknown keys")
}

func TestValidateRejectsBadSettings(t *testing.T) {
	cases := map[string]func(*Config){
		"backend":         func(c *Config) { c.Storage.Backend = "bolt" },
		"journal driver":  func(c *Config) { c.Journal.Driver = "mysql" },
		"unknown stake":   func(c *Config) { c.Staking.StakeToken = "NOPE" },
		"duplicate token": func(c *Config) { c.Tokens = append(c.Tokens, Token{Symbol: "rwd"}) },
		"fee tier":        func(c *Config) { c.Pools[0].Fee = 1 },
		"same pair":       func(c *Config) { c.Pools[0].TokenB = c.Pools[0].TokenA },
		"liquidity":       func(c *Config) { c.Pools[0].LiquidityA = "0" },
		"sample ratio":    func(c *Config) { c.Telemetry.SampleRatio = 1.5 },
		"allocation": func(c *Config) {
			c.Tokens[0].Allocations = []Allocation{{Address: "garbage", Amount: "1"}}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			require.Error(t, Validate(cfg))
		})
	}
}

func TestParseAmount(t *testing.T) {
	v, err := ParseAmount(" 42 ")
	require.NoError(t, err)
	require.Equal(t, int64(42), v.Int64())
	_, err = ParseAmount("-1")
	require.Error(t, err)
	_, err = ParseAmount("1.5")
	require.Error(t, err)
}
