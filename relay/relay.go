/*
Package relay delivers ratings to the ratings contract.

[Relayer] submits ratings signed by their identities in transactions paid by
the relayer account (rateWithSig). [Direct] makes the identity send the
rating itself (ratePlace). A deployment uses exactly one of them.
*/
package relay

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/nspcc-dev/neo-go/pkg/core/state"
	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/nspcc-dev/neo-go/pkg/neorpc/result"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/place-ratings/rpc/ratings"
	"github.com/nspcc-dev/place-ratings/signer"
	"github.com/nspcc-dev/place-ratings/typeddata"
	"go.uber.org/zap"
)

var (
	// ErrInvalidSignature is returned for actions which would be rejected by
	// the contract because of the signature.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrFault is returned when the transaction is executed with FAULT.
	ErrFault = errors.New("transaction faulted")
	// ErrUnconfirmed is returned when the transaction has been sent but its
	// execution could not be awaited. The transaction may still be accepted.
	ErrUnconfirmed = errors.New("transaction unconfirmed")
)

// SignedAction is a rating signed by its identity.
type SignedAction struct {
	PublicKey *keys.PublicKey
	Rating    typeddata.Rating
	Signature []byte
}

// Identity returns rating identity.
func (a SignedAction) Identity() util.Uint160 {
	return a.Rating.Identity
}

// Actor sends transactions and waits for their execution. [actor.Actor]
// satisfies it.
type Actor interface {
	ratings.Actor
	WaitAny(ctx context.Context, vub uint32, hashes ...util.Uint256) (*state.AppExecResult, error)
}

// Relayer sends signed ratings to the contract on behalf of their identities.
type Relayer struct {
	log      *zap.Logger
	domain   typeddata.Domain
	act      Actor
	contract *ratings.Contract
}

// NewRelayer returns Relayer sending transactions through act to the domain's
// verifying contract. Nil log means nop.
func NewRelayer(log *zap.Logger, act Actor, domain typeddata.Domain) *Relayer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Relayer{
		log:      log,
		domain:   domain,
		act:      act,
		contract: ratings.New(act, domain.VerifyingContract),
	}
}

// Domain returns domain accepted signatures are bound to.
func (r *Relayer) Domain() typeddata.Domain {
	return r.domain
}

// Relay checks action signature and sends it to the contract. Relay blocks
// until the transaction is executed. Transactions executed with FAULT return
// [ErrFault], ones whose execution could not be awaited return
// [ErrUnconfirmed]. Transactions rejected at sending return neither.
func (r *Relayer) Relay(ctx context.Context, a SignedAction) (signer.Receipt, error) {
	msg := typeddata.Message{Domain: r.domain, Rating: a.Rating}

	if err := typeddata.ValidateRating(a.Rating.SubjectID, a.Rating.Score); err != nil {
		return signer.Receipt{}, err
	}

	if !msg.Verify(a.PublicKey, a.Signature) {
		return signer.Receipt{}, ErrInvalidSignature
	}

	h, vub, err := r.contract.RateWithSig(a.PublicKey,
		new(big.Int).SetUint64(a.Rating.SubjectID),
		big.NewInt(int64(a.Rating.Score)),
		new(big.Int).SetUint64(a.Rating.Nonce),
		new(big.Int).SetUint64(a.Rating.Deadline),
		a.Signature,
	)
	if err != nil {
		return signer.Receipt{}, fmt.Errorf("send '%s' transaction: %w", ratings.MethodRateWithSig, err)
	}

	r.log.Info("signed rating sent, waiting for execution",
		zap.String("message", msg.ID()), zap.Stringer("tx", h), zap.Uint32("vub", vub))

	res, err := r.act.WaitAny(ctx, vub, h)
	if err != nil {
		return signer.Receipt{Hash: h}, fmt.Errorf("%w: wait for transaction %s: %w", ErrUnconfirmed, h.StringLE(), err)
	}

	rcpt := signer.NewReceipt(res)
	if !rcpt.Accepted() {
		return rcpt, fmt.Errorf("%w: %s", ErrFault, rcpt.FaultException)
	}

	return rcpt, nil
}

// Direct makes identities send their ratings themselves.
type Direct struct {
	signer   signer.Signer
	contract util.Uint160
}

// NewDirect returns Direct sending ratings through s to the contract.
func NewDirect(s signer.Signer, contract util.Uint160) *Direct {
	return &Direct{signer: s, contract: contract}
}

// Rate sends the rating from the identity account and waits for its
// execution.
func (d *Direct) Rate(ctx context.Context, identity util.Uint160, subject uint64, score uint8) (signer.Receipt, error) {
	rcpt, err := d.signer.SendAction(ctx, identity, d.contract, ratings.MethodRatePlace,
		new(big.Int).SetUint64(subject), big.NewInt(int64(score)))
	if err != nil {
		return rcpt, err
	}

	if !rcpt.Accepted() {
		return rcpt, fmt.Errorf("%w: %s", ErrFault, rcpt.FaultException)
	}

	return rcpt, nil
}

// Events decodes rating events from the receipt.
func Events(r signer.Receipt) ([]*ratings.PlaceRatedEvent, error) {
	return ratings.PlaceRatedEventsFromApplicationLog(&result.ApplicationLog{
		Container:  r.Hash,
		Executions: []state.Execution{{VMState: r.VMState, Events: r.Events}},
	})
}
