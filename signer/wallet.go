package signer

import (
	"context"
	"fmt"
	"sync"

	"github.com/nspcc-dev/neo-go/pkg/core/state"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/wallet"
	"github.com/nspcc-dev/place-ratings/typeddata"
	"go.uber.org/zap"
)

// Sender sends transactions on behalf of a single account and waits for
// their execution. [actor.Actor] satisfies it.
type Sender interface {
	SendCall(contract util.Uint160, method string, params ...any) (util.Uint256, uint32, error)
	WaitAny(ctx context.Context, vub uint32, hashes ...util.Uint256) (*state.AppExecResult, error)
}

// WalletPrm groups parameters of the [Wallet].
type WalletPrm struct {
	// Logger, nop if nil.
	Logger *zap.Logger

	// Accounts with decrypted private keys.
	Accounts []*wallet.Account

	// NewSender constructs Sender for the account. Called once per account
	// on its first action. Required for SendAction.
	NewSender func(*wallet.Account) (Sender, error)

	// Confirm is called before every signature. Non-nil error declines the
	// request. Optional.
	Confirm func(ctx context.Context, msg typeddata.Message) error
}

// Wallet is a [Signer] over local wallet accounts.
type Wallet struct {
	prm WalletPrm
	log *zap.Logger

	mtx     sync.Mutex
	senders map[util.Uint160]Sender
}

// NewWallet returns Wallet over the given accounts.
func NewWallet(prm WalletPrm) *Wallet {
	w := &Wallet{
		prm:     prm,
		log:     prm.Logger,
		senders: make(map[util.Uint160]Sender),
	}
	if w.log == nil {
		w.log = zap.NewNop()
	}
	return w
}

// RequestAccounts implements [Signer].
func (w *Wallet) RequestAccounts(context.Context) ([]util.Uint160, error) {
	if len(w.prm.Accounts) == 0 {
		return nil, ErrNotConnected
	}

	res := make([]util.Uint160, len(w.prm.Accounts))
	for i := range w.prm.Accounts {
		res[i] = w.prm.Accounts[i].ScriptHash()
	}

	return res, nil
}

func (w *Wallet) account(identity util.Uint160) (*wallet.Account, error) {
	for _, acc := range w.prm.Accounts {
		if acc.ScriptHash().Equals(identity) {
			return acc, nil
		}
	}
	return nil, fmt.Errorf("%w: no account %s", ErrNotConnected, identity.StringLE())
}

// SignTypedData implements [Signer]. Message must be addressed to the
// identity.
func (w *Wallet) SignTypedData(ctx context.Context, identity util.Uint160, msg typeddata.Message) (Signature, error) {
	acc, err := w.account(identity)
	if err != nil {
		return Signature{}, err
	}

	if !msg.Rating.Identity.Equals(identity) {
		return Signature{}, fmt.Errorf("message is addressed to %s, not %s", msg.Rating.Identity.StringLE(), identity.StringLE())
	}

	key := acc.PrivateKey()
	if key == nil {
		return Signature{}, fmt.Errorf("account %s is locked", acc.Address)
	}

	if w.prm.Confirm != nil {
		if err = w.prm.Confirm(ctx, msg); err != nil {
			return Signature{}, fmt.Errorf("%w: %w", ErrDeclined, err)
		}
	}

	w.log.Debug("signing rating message",
		zap.String("account", acc.Address), zap.String("message", msg.ID()))

	return Signature{
		PublicKey: key.PublicKey(),
		Value:     msg.Sign(key),
	}, nil
}

func (w *Wallet) sender(acc *wallet.Account) (Sender, error) {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	h := acc.ScriptHash()
	if s, ok := w.senders[h]; ok {
		return s, nil
	}

	if w.prm.NewSender == nil {
		return nil, fmt.Errorf("%w: sending is not supported", ErrNotConnected)
	}

	s, err := w.prm.NewSender(acc)
	if err != nil {
		return nil, fmt.Errorf("init sender for %s: %w", acc.Address, err)
	}

	w.senders[h] = s

	return s, nil
}

// SendAction implements [Signer]. Transaction faults are reported in the
// receipt, not as errors.
func (w *Wallet) SendAction(ctx context.Context, from util.Uint160, contract util.Uint160, method string, args ...any) (Receipt, error) {
	acc, err := w.account(from)
	if err != nil {
		return Receipt{}, err
	}

	s, err := w.sender(acc)
	if err != nil {
		return Receipt{}, err
	}

	h, vub, err := s.SendCall(contract, method, args...)
	if err != nil {
		return Receipt{}, fmt.Errorf("send '%s' transaction: %w", method, err)
	}

	w.log.Info("transaction sent, waiting for execution",
		zap.String("account", acc.Address), zap.String("method", method),
		zap.Stringer("tx", h), zap.Uint32("vub", vub))

	res, err := s.WaitAny(ctx, vub, h)
	if err != nil {
		return Receipt{}, fmt.Errorf("wait for transaction %s: %w", h.StringLE(), err)
	}

	return NewReceipt(res), nil
}
