/*
Package config provides configuration of the place ratings service.

Configuration is read from an optional YAML file, then environment variables
prefixed with PLACERATE_ override it. Variables may be put into the .env file
of the working directory.
*/
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/nspcc-dev/neo-go/pkg/config/netmode"
	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/place-ratings/aggregate"
	"github.com/nspcc-dev/place-ratings/replay"
	"github.com/nspcc-dev/place-ratings/rpc/nns"
	"github.com/nspcc-dev/place-ratings/submit"
	"github.com/nspcc-dev/place-ratings/typeddata"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes all environment variables.
const EnvPrefix = "PLACERATE_"

// RPC configures connection to the Neo RPC node.
type RPC struct {
	Endpoint       string        `yaml:"endpoint"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Contract configures the ratings contract and the signature domain.
type Contract struct {
	// Address is either contract address, hash in LE hex or NNS domain.
	Address string `yaml:"address"`
	// NNS is hash of the NNS contract. Inferred if empty.
	NNS string `yaml:"nns"`
	// Network is a magic of the network, taken from the RPC node if zero.
	Network uint32 `yaml:"network"`
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// Submission configures submission of ratings.
type Submission struct {
	Mode   string        `yaml:"mode"`
	Window time.Duration `yaml:"window"`
}

// Wallet is a NEP-6 wallet file with an account.
type Wallet struct {
	Path     string `yaml:"path"`
	Password string `yaml:"password"`
	// Account is an address of the account, default one if empty.
	Account string `yaml:"account"`
}

// HTTP configures the HTTP gateway.
type HTTP struct {
	Listen          string        `yaml:"listen"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// ReadyURL is notified with POST request once the gateway is serving.
	ReadyURL string `yaml:"ready_url"`
}

// Config is a complete service configuration.
type Config struct {
	RPC        RPC        `yaml:"rpc"`
	Contract   Contract   `yaml:"contract"`
	Submission Submission `yaml:"submission"`
	// Wallet holds rating identities.
	Wallet Wallet `yaml:"wallet"`
	// Relayer pays for relayed submissions.
	Relayer     Wallet `yaml:"relayer"`
	HTTP        HTTP   `yaml:"http"`
	Concurrency int    `yaml:"concurrency"`
	// AverageTTL is a lifetime of cached place averages.
	AverageTTL time.Duration `yaml:"average_ttl"`
	// Catalog is a YAML file with places, built-in catalog is used if empty.
	Catalog string `yaml:"catalog"`
	Debug   bool   `yaml:"debug"`
}

// Default returns configuration with defaults.
func Default() Config {
	return Config{
		RPC: RPC{
			DialTimeout:    15 * time.Second,
			RequestTimeout: 15 * time.Second,
		},
		Contract: Contract{
			Address: nns.DefaultName,
			Name:    "PlaceRatings",
			Version: "1",
		},
		Submission: Submission{
			Mode:   submit.ModeRelayed.String(),
			Window: replay.DefaultWindow,
		},
		HTTP: HTTP{
			Listen:          ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Concurrency: 4,
		AverageTTL:  aggregate.DefaultTTL,
	}
}

// Load reads configuration from the YAML file (if path is not empty) and the
// environment. Missing .env file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()

		err = Decode(f, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("read config '%s': %w", path, err)
		}
	}

	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	err = cfg.ApplyEnv(os.LookupEnv)
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Decode reads YAML configuration over cfg. Unknown fields are rejected.
func Decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	err := dec.Decode(cfg)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

type envVar struct {
	name string
	set  func(string) error
}

func str(dst *string) func(string) error {
	return func(s string) error { *dst = s; return nil }
}

func dur(dst *time.Duration) func(string) error {
	return func(s string) (err error) { *dst, err = time.ParseDuration(s); return }
}

func (c *Config) env() []envVar {
	return []envVar{
		{"RPC_ENDPOINT", str(&c.RPC.Endpoint)},
		{"RPC_DIAL_TIMEOUT", dur(&c.RPC.DialTimeout)},
		{"RPC_REQUEST_TIMEOUT", dur(&c.RPC.RequestTimeout)},
		{"CONTRACT", str(&c.Contract.Address)},
		{"NNS", str(&c.Contract.NNS)},
		{"NETWORK", func(s string) error {
			n, err := strconv.ParseUint(s, 0, 32)
			c.Contract.Network = uint32(n)
			return err
		}},
		{"DOMAIN_NAME", str(&c.Contract.Name)},
		{"DOMAIN_VERSION", str(&c.Contract.Version)},
		{"MODE", str(&c.Submission.Mode)},
		{"WINDOW", dur(&c.Submission.Window)},
		{"WALLET", str(&c.Wallet.Path)},
		{"WALLET_PASSWORD", str(&c.Wallet.Password)},
		{"WALLET_ACCOUNT", str(&c.Wallet.Account)},
		{"RELAYER_WALLET", str(&c.Relayer.Path)},
		{"RELAYER_PASSWORD", str(&c.Relayer.Password)},
		{"RELAYER_ACCOUNT", str(&c.Relayer.Account)},
		{"LISTEN", str(&c.HTTP.Listen)},
		{"SHUTDOWN_TIMEOUT", dur(&c.HTTP.ShutdownTimeout)},
		{"READY_URL", str(&c.HTTP.ReadyURL)},
		{"CONCURRENCY", func(s string) (err error) { c.Concurrency, err = strconv.Atoi(s); return }},
		{"AVERAGE_TTL", dur(&c.AverageTTL)},
		{"CATALOG", str(&c.Catalog)},
		{"DEBUG", func(s string) (err error) { c.Debug, err = strconv.ParseBool(s); return }},
	}
}

// ApplyEnv overrides configuration with the variables returned by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	for _, v := range c.env() {
		s, ok := lookup(EnvPrefix + v.name)
		if !ok {
			continue
		}

		if err := v.set(strings.TrimSpace(s)); err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, v.name, err)
		}
	}
	return nil
}

// Validate checks configuration consistency.
func (c Config) Validate() error {
	var errs []error

	if c.RPC.Endpoint == "" {
		errs = append(errs, errors.New("missing RPC endpoint"))
	}
	if c.RPC.DialTimeout <= 0 || c.RPC.RequestTimeout <= 0 {
		errs = append(errs, errors.New("non-positive RPC timeout"))
	}

	if c.Contract.Address == "" {
		errs = append(errs, errors.New("missing contract address"))
	}
	if c.Contract.NNS != "" {
		if _, err := nns.ParseHash(c.Contract.NNS); err != nil {
			errs = append(errs, fmt.Errorf("invalid NNS contract hash: %w", err))
		}
	}
	if c.Contract.Name == "" || c.Contract.Version == "" {
		errs = append(errs, errors.New("missing domain name or version"))
	}

	if _, err := submit.ParseMode(c.Submission.Mode); err != nil {
		errs = append(errs, err)
	}
	if c.Submission.Window <= 0 {
		errs = append(errs, errors.New("non-positive deadline window"))
	}

	for _, w := range []Wallet{c.Wallet, c.Relayer} {
		if w.Account == "" {
			continue
		}
		if _, err := address.StringToUint160(w.Account); err != nil {
			errs = append(errs, fmt.Errorf("invalid account address '%s': %w", w.Account, err))
		}
	}

	if c.HTTP.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("negative shutdown timeout"))
	}
	if c.Concurrency <= 0 {
		errs = append(errs, errors.New("non-positive concurrency"))
	}
	if c.AverageTTL <= 0 {
		errs = append(errs, errors.New("non-positive average TTL"))
	}

	return errors.Join(errs...)
}

// Mode returns submission mode. Config must be valid.
func (c Config) Mode() submit.Mode {
	m, _ := submit.ParseMode(c.Submission.Mode)
	return m
}

// Domain returns signature domain bound to the given contract.
func (c Config) Domain(contract util.Uint160) typeddata.Domain {
	return typeddata.Domain{
		Name:              c.Contract.Name,
		Version:           c.Contract.Version,
		Network:           netmode.Magic(c.Contract.Network),
		VerifyingContract: contract,
	}
}
