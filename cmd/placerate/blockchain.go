package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/nspcc-dev/neo-go/pkg/config/netmode"
	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/rpcclient"
	"github.com/nspcc-dev/neo-go/pkg/rpcclient/actor"
	"github.com/nspcc-dev/neo-go/pkg/rpcclient/invoker"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/wallet"
	"github.com/nspcc-dev/place-ratings/config"
	"github.com/nspcc-dev/place-ratings/rpc/nns"
)

// wrapper over Neo RPC providing blockchain services needed by the commands.
type remoteBlockchain struct {
	rpc *rpcclient.Client
	inv *invoker.Invoker

	network netmode.Magic
}

// newRemoteBlockchain dials Neo RPC server. Connection and all requests are
// limited by the configured timeouts.
func newRemoteBlockchain(ctx context.Context, cfg config.RPC) (*remoteBlockchain, error) {
	c, err := rpcclient.New(ctx, cfg.Endpoint, rpcclient.Options{
		DialTimeout:    cfg.DialTimeout,
		RequestTimeout: cfg.RequestTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("RPC client dial: %w", err)
	}

	err = c.Init()
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("RPC client init: %w", err)
	}

	v, err := c.GetVersion()
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("get node version: %w", err)
	}

	return &remoteBlockchain{
		rpc:     c,
		inv:     invoker.New(c, nil),
		network: v.Protocol.Network,
	}, nil
}

func (x *remoteBlockchain) close() {
	x.rpc.Close()
}

// resolveContract returns hash of the ratings contract given either directly
// or as NNS domain.
func (x *remoteBlockchain) resolveContract(cfg config.Contract) (util.Uint160, error) {
	if !nns.IsName(cfg.Address) {
		return nns.ParseHash(cfg.Address)
	}

	var (
		nnsHash util.Uint160
		err     error
	)
	if cfg.NNS != "" {
		nnsHash, err = nns.ParseHash(cfg.NNS)
	} else {
		nnsHash, err = nns.InferHash(x.rpc)
	}
	if err != nil {
		return util.Uint160{}, fmt.Errorf("NNS contract hash: %w", err)
	}

	return nns.NewReader(x.inv, nnsHash).ResolveContract(cfg.Address)
}

// actor returns actor sending transactions from the account.
func (x *remoteBlockchain) actor(acc *wallet.Account) (*actor.Actor, error) {
	act, err := actor.NewSimple(x.rpc, acc)
	if err != nil {
		return nil, fmt.Errorf("init actor: %w", err)
	}
	return act, nil
}

// openAccounts reads NEP-6 wallet and decrypts its accounts. Only the
// configured account is returned if set.
func openAccounts(cfg config.Wallet) ([]*wallet.Account, error) {
	if cfg.Path == "" {
		return nil, errors.New("wallet is not configured")
	}

	w, err := wallet.NewWalletFromFile(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open wallet: %w", err)
	}

	accs := w.Accounts
	if cfg.Account != "" {
		h, err := address.StringToUint160(cfg.Account)
		if err != nil {
			return nil, fmt.Errorf("invalid account address: %w", err)
		}

		acc := w.GetAccount(h)
		if acc == nil {
			return nil, fmt.Errorf("account %s is not in the wallet", cfg.Account)
		}
		accs = []*wallet.Account{acc}
	}

	res := make([]*wallet.Account, 0, len(accs))
	for _, acc := range accs {
		if acc.Contract != nil && len(acc.Contract.Parameters) != 1 {
			// multisig and contract accounts can't sign ratings alone
			continue
		}

		err = acc.Decrypt(cfg.Password, w.Scrypt)
		if err != nil {
			return nil, fmt.Errorf("decrypt account %s: %w", acc.Address, err)
		}
		res = append(res, acc)
	}

	if len(res) == 0 {
		return nil, errors.New("no usable accounts in the wallet")
	}

	return res, nil
}
