package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nspcc-dev/place-ratings/config"
	"github.com/nspcc-dev/place-ratings/submit"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "placerate",
		Usage: "Rate places with signed messages stored in the Neo ratings contract",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML configuration file",
				EnvVars: []string{config.EnvPrefix + "CONFIG"},
			},
			&cli.StringFlag{
				Name:    "rpc",
				Aliases: []string{"r"},
				Usage:   "Network address of the Neo RPC server",
			},
			&cli.StringFlag{
				Name:  "contract",
				Usage: "Ratings contract address, hash or NNS domain",
			},
			&cli.StringFlag{
				Name:  "mode",
				Usage: "Submission mode: relayed or direct",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			averageCommand(),
			mineCommand(),
			rateCommand(),
		},
	}
}

// loadConfig reads configuration and applies global flags over it.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return config.Config{}, err
	}

	if c.IsSet("rpc") {
		cfg.RPC.Endpoint = c.String("rpc")
	}
	if c.IsSet("contract") {
		cfg.Contract.Address = c.String("contract")
	}
	if c.IsSet("mode") {
		cfg.Submission.Mode = c.String("mode")
	}
	if c.Bool("debug") {
		cfg.Debug = true
	}

	err = cfg.Validate()
	if err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// setup loads configuration and dials the blockchain. Returned deps must be
// closed.
func setup(c *cli.Context) (*deps, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	log, err := newLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	d, err := newDeps(c.Context, log, cfg)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}

	return d, nil
}

func observer(log *zap.Logger) submit.Observer {
	return func(t submit.Transition) {
		log.Debug("submission state changed",
			zap.Stringer("attempt", t.Attempt),
			zap.Stringer("from", t.From),
			zap.Stringer("to", t.To),
			zap.Error(t.Err))
	}
}
