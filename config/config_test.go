package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/config/netmode"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/place-ratings/aggregate"
	"github.com/nspcc-dev/place-ratings/replay"
	"github.com/nspcc-dev/place-ratings/submit"
	"github.com/stretchr/testify/require"
)

const sample = `
rpc:
  endpoint: http://localhost:30333
  request_timeout: 5s
contract:
  address: 0x0102030405060708090a0b0c0d0e0f1011121314
  network: 860833102
submission:
  mode: direct
  window: 2m
wallet:
  path: wallet.json
concurrency: 8
average_ttl: 10s
`

func TestDecode(t *testing.T) {
	cfg := Default()
	require.NoError(t, Decode(strings.NewReader(sample), &cfg))

	require.Equal(t, "http://localhost:30333", cfg.RPC.Endpoint)
	require.Equal(t, 5*time.Second, cfg.RPC.RequestTimeout)
	require.Equal(t, 15*time.Second, cfg.RPC.DialTimeout)
	require.EqualValues(t, netmode.MainNet, cfg.Contract.Network)
	require.Equal(t, "PlaceRatings", cfg.Contract.Name)
	require.Equal(t, 2*time.Minute, cfg.Submission.Window)
	require.Equal(t, submit.ModeDirect, cfg.Mode())
	require.Equal(t, 8, cfg.Concurrency)
	require.Equal(t, 10*time.Second, cfg.AverageTTL)
	require.NoError(t, cfg.Validate())

	t.Run("empty", func(t *testing.T) {
		cfg := Default()
		require.NoError(t, Decode(strings.NewReader(""), &cfg))
		require.Equal(t, Default(), cfg)
	})

	t.Run("unknown field", func(t *testing.T) {
		cfg := Default()
		require.Error(t, Decode(strings.NewReader("rcp:\n  endpoint: x\n"), &cfg))
	})
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"PLACERATE_RPC_ENDPOINT":   "http://node:30333",
		"PLACERATE_NETWORK":        "0x2a",
		"PLACERATE_WINDOW":         "30s",
		"PLACERATE_MODE":           " direct ",
		"PLACERATE_DEBUG":          "true",
		"PLACERATE_CONCURRENCY":    "2",
		"PLACERATE_RELAYER_WALLET": "relayer.json",
		"PLACERATE_AVERAGE_TTL":    "5s",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(lookup))
	require.Equal(t, "http://node:30333", cfg.RPC.Endpoint)
	require.EqualValues(t, 42, cfg.Contract.Network)
	require.Equal(t, 30*time.Second, cfg.Submission.Window)
	require.Equal(t, "direct", cfg.Submission.Mode)
	require.True(t, cfg.Debug)
	require.Equal(t, 2, cfg.Concurrency)
	require.Equal(t, "relayer.json", cfg.Relayer.Path)
	require.Equal(t, 5*time.Second, cfg.AverageTTL)

	for k, v := range map[string]string{
		"PLACERATE_WINDOW":      "soon",
		"PLACERATE_NETWORK":     "-1",
		"PLACERATE_CONCURRENCY": "many",
		"PLACERATE_DEBUG":       "sure",
		"PLACERATE_AVERAGE_TTL": "1",
	} {
		cfg := Default()
		err := cfg.ApplyEnv(func(key string) (string, bool) {
			if key == k {
				return v, true
			}
			return "", false
		})
		require.ErrorContains(t, err, k)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	p := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(p, []byte(sample), 0o600))

	t.Setenv("PLACERATE_CONCURRENCY", "3")

	cfg, err := Load(p)
	require.NoError(t, err)
	require.Equal(t, "http://localhost:30333", cfg.RPC.Endpoint)
	require.Equal(t, 3, cfg.Concurrency)

	_, err = Load(filepath.Join(dir, "missing.yml"))
	require.Error(t, err)

	cfg, err = Load("")
	require.NoError(t, err)
	require.Empty(t, cfg.RPC.Endpoint)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.RPC.Endpoint = "http://localhost:30333"
		return cfg
	}

	require.NoError(t, valid().Validate())
	require.Equal(t, replay.DefaultWindow, valid().Submission.Window)
	require.Equal(t, aggregate.DefaultTTL, valid().AverageTTL)

	for name, mutate := range map[string]func(*Config){
		"no endpoint":      func(c *Config) { c.RPC.Endpoint = "" },
		"zero timeout":     func(c *Config) { c.RPC.DialTimeout = 0 },
		"no contract":      func(c *Config) { c.Contract.Address = "" },
		"bad nns":          func(c *Config) { c.Contract.NNS = "nns" },
		"no domain name":   func(c *Config) { c.Contract.Name = "" },
		"unknown mode":     func(c *Config) { c.Submission.Mode = "teleport" },
		"zero window":      func(c *Config) { c.Submission.Window = 0 },
		"bad account":      func(c *Config) { c.Wallet.Account = "someone" },
		"bad relayer":      func(c *Config) { c.Relayer.Account = "0x01" },
		"zero concurrency": func(c *Config) { c.Concurrency = 0 },
		"zero average ttl": func(c *Config) { c.AverageTTL = 0 },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestDomain(t *testing.T) {
	cfg := Default()
	require.Zero(t, cfg.Contract.Network)

	cfg.Contract.Network = uint32(netmode.MainNet)
	d := cfg.Domain(util.Uint160{1})
	require.Equal(t, "PlaceRatings", d.Name)
	require.Equal(t, "1", d.Version)
	require.Equal(t, netmode.MainNet, d.Network)
	require.Equal(t, util.Uint160{1}, d.VerifyingContract)
}
