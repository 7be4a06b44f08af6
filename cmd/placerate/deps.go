package main

import (
	"context"
	"fmt"

	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/wallet"
	"github.com/nspcc-dev/place-ratings/aggregate"
	"github.com/nspcc-dev/place-ratings/app"
	"github.com/nspcc-dev/place-ratings/catalog"
	"github.com/nspcc-dev/place-ratings/compat"
	"github.com/nspcc-dev/place-ratings/config"
	"github.com/nspcc-dev/place-ratings/relay"
	"github.com/nspcc-dev/place-ratings/replay"
	"github.com/nspcc-dev/place-ratings/rpc/ratings"
	"github.com/nspcc-dev/place-ratings/signer"
	"github.com/nspcc-dev/place-ratings/submit"
	"github.com/nspcc-dev/place-ratings/typeddata"
	"go.uber.org/zap"
)

// deps holds components shared by the commands.
type deps struct {
	log   *zap.Logger
	cfg   config.Config
	chain *remoteBlockchain

	contract util.Uint160
	domain   typeddata.Domain

	reader  *compat.Reader
	cache   *aggregate.Cache
	catalog *catalog.Catalog
}

func newDeps(ctx context.Context, log *zap.Logger, cfg config.Config) (*deps, error) {
	cat, err := loadCatalog(cfg.Catalog)
	if err != nil {
		return nil, err
	}

	chain, err := newRemoteBlockchain(ctx, cfg.RPC)
	if err != nil {
		return nil, fmt.Errorf("init remote blockchain: %w", err)
	}

	contract, err := chain.resolveContract(cfg.Contract)
	if err != nil {
		chain.close()
		return nil, fmt.Errorf("resolve ratings contract '%s': %w", cfg.Contract.Address, err)
	}

	if cfg.Contract.Network == 0 {
		cfg.Contract.Network = uint32(chain.network)
	} else if cfg.Contract.Network != uint32(chain.network) {
		chain.close()
		return nil, fmt.Errorf("configured network %d differs from the node's one %d", cfg.Contract.Network, chain.network)
	}

	reader := compat.NewReader(chain.inv, contract, compat.Prm{
		Logger:      log,
		Concurrency: cfg.Concurrency,
	})

	log.Info("ratings contract resolved",
		zap.String("name", cfg.Contract.Address),
		zap.Stringer("hash", contract),
		zap.Uint32("network", cfg.Contract.Network))

	return &deps{
		log:      log,
		cfg:      cfg,
		chain:    chain,
		contract: contract,
		domain:   cfg.Domain(contract),
		reader:   reader,
		cache:    aggregate.New(reader, aggregate.Prm{TTL: cfg.AverageTTL}),
		catalog:  cat,
	}, nil
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Builtin()
	}

	cat, err := catalog.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return cat, nil
}

func (d *deps) close() {
	d.chain.close()
}

// walletSigner opens identity wallet. Wallet is optional for relayed mode,
// then the signer holds no identities and accepts externally signed ratings
// only.
func (d *deps) walletSigner(confirm func(context.Context, typeddata.Message) error, required bool) (*signer.Wallet, error) {
	var accs []*wallet.Account

	if d.cfg.Wallet.Path != "" || required {
		var err error
		accs, err = openAccounts(d.cfg.Wallet)
		if err != nil {
			return nil, fmt.Errorf("identity wallet: %w", err)
		}
	}

	return signer.NewWallet(signer.WalletPrm{
		Logger:   d.log,
		Accounts: accs,
		NewSender: func(acc *wallet.Account) (signer.Sender, error) {
			return d.chain.actor(acc)
		},
		Confirm: confirm,
	}), nil
}

// coordinator builds submission coordinator in the configured mode.
func (d *deps) coordinator(s signer.Signer) (*submit.Coordinator, error) {
	prm := submit.Prm{
		Logger:    d.log,
		Mode:      d.cfg.Mode(),
		Signer:    s,
		Refresher: d.cache,
		Observer:  observer(d.log),
	}

	switch prm.Mode {
	case submit.ModeDirect:
		prm.Direct = relay.NewDirect(s, d.contract)
	default:
		accs, err := openAccounts(d.cfg.Relayer)
		if err != nil {
			return nil, fmt.Errorf("relayer wallet: %w", err)
		}

		act, err := d.chain.actor(accs[0])
		if err != nil {
			return nil, err
		}

		prm.Guard = replay.NewGuard(ratings.NewReader(d.chain.inv, d.contract), d.cfg.Submission.Window)
		prm.Builder = typeddata.NewBuilder(d.domain)
		prm.Relay = relay.NewRelayer(d.log, act, d.domain)

		d.log.Info("relayer account", zap.String("address", accs[0].Address))
	}

	return submit.New(prm)
}

func (d *deps) service(coord *submit.Coordinator) (*app.Service, error) {
	return app.New(app.Prm{
		Logger:      d.log,
		Catalog:     d.catalog,
		Cache:       d.cache,
		Reader:      d.reader,
		Coordinator: coord,
		Concurrency: d.cfg.Concurrency,
	})
}
