/*
Package submit coordinates rating submissions.

A relayed submission goes through the following steps, each one gating the
next:

 1. input and identity validation;
 2. fetching the nonce the contract currently expects;
 3. calculating the deadline;
 4. building the typed message;
 5. requesting the identity's signature;
 6. relaying the signed rating to the contract;
 7. refreshing the cached place average.

A direct submission validates the input and makes the identity send the
rating itself. Nothing is retried automatically: every retry is a new
[Coordinator.Submit] call fetching fresh nonce and deadline.

Submissions for the same identity and place never run concurrently, the
second one fails with [ErrAlreadyInFlight].
*/
package submit

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/place-ratings/relay"
	"github.com/nspcc-dev/place-ratings/replay"
	"github.com/nspcc-dev/place-ratings/rpc/ratings"
	"github.com/nspcc-dev/place-ratings/score"
	"github.com/nspcc-dev/place-ratings/signer"
	"github.com/nspcc-dev/place-ratings/typeddata"
	"go.uber.org/zap"
)

// Submission error kinds. Check with [errors.Is].
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNoIdentity         = errors.New("no identity")
	ErrNonceUnavailable   = replay.ErrNonceUnavailable
	ErrSigningFailed      = errors.New("signing failed")
	ErrSubmissionRejected = errors.New("submission rejected")
	ErrAlreadyInFlight    = errors.New("submission already in flight")
)

// NonceGuard provides replay protection data. [replay.Guard] satisfies it.
type NonceGuard interface {
	NextNonce(ctx context.Context, identity util.Uint160, subject uint64) (uint64, error)
	Deadline(now time.Time) uint64
}

// Relay sends signed ratings to the contract. [relay.Relayer] satisfies it.
type Relay interface {
	Relay(ctx context.Context, a relay.SignedAction) (signer.Receipt, error)
}

// DirectSender makes identities send ratings themselves. [relay.Direct]
// satisfies it.
type DirectSender interface {
	Rate(ctx context.Context, identity util.Uint160, subject uint64, score uint8) (signer.Receipt, error)
}

// Refresher keeps cached place averages up to date. [aggregate.Cache]
// satisfies it.
type Refresher interface {
	// Store caches the latest known average of the place.
	Store(subject uint64, avg score.Average)
	// Refresh re-reads average of the place.
	Refresh(ctx context.Context, subject uint64) score.Average
}

// Prm groups parameters of the [Coordinator].
type Prm struct {
	// Logger, nop if nil.
	Logger *zap.Logger

	Mode Mode

	// Signer of the identities. Required.
	Signer signer.Signer

	// Guard, Builder and Relay are required in ModeRelayed.
	Guard   NonceGuard
	Builder *typeddata.Builder
	Relay   Relay

	// Direct is required in ModeDirect.
	Direct DirectSender

	// Refresher is updated once after every accepted submission: average
	// from the contract event is stored, it is re-read if the event has
	// none. Optional.
	Refresher Refresher

	// Observer of state transitions. Optional.
	Observer Observer

	// Clock, [time.Now] if nil.
	Clock func() time.Time
}

// Outcome is a result of the accepted submission.
type Outcome struct {
	Attempt uuid.UUID
	Mode    Mode

	// Message is the signed message, nil in ModeDirect.
	Message *typeddata.Message

	Receipt signer.Receipt

	// Event is the rating event emitted by the contract, nil if it could not
	// be decoded.
	Event *ratings.PlaceRatedEvent

	// Average is the refreshed place average. It may not reflect the
	// submission yet.
	Average score.Average
}

type inFlightKey struct {
	identity util.Uint160
	subject  uint64
}

// Coordinator submits ratings. Coordinator is safe for concurrent use.
type Coordinator struct {
	prm Prm
	log *zap.Logger

	mtx      sync.Mutex
	inFlight map[inFlightKey]struct{}
}

// New checks parameters and returns Coordinator.
func New(prm Prm) (*Coordinator, error) {
	if prm.Signer == nil {
		return nil, errors.New("missing signer")
	}

	switch prm.Mode {
	case ModeRelayed:
		switch {
		case prm.Guard == nil:
			return nil, errors.New("missing nonce guard")
		case prm.Builder == nil:
			return nil, errors.New("missing message builder")
		case prm.Relay == nil:
			return nil, errors.New("missing relay")
		}
	case ModeDirect:
		if prm.Direct == nil {
			return nil, errors.New("missing direct sender")
		}
	default:
		return nil, fmt.Errorf("unsupported mode %s", prm.Mode)
	}

	if prm.Clock == nil {
		prm.Clock = time.Now
	}

	c := &Coordinator{
		prm:      prm,
		log:      prm.Logger,
		inFlight: make(map[inFlightKey]struct{}),
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}

	return c, nil
}

// Mode returns submission mode.
func (c *Coordinator) Mode() Mode {
	return c.prm.Mode
}

// attempt tracks state of the single submission.
type attempt struct {
	c        *Coordinator
	id       uuid.UUID
	identity util.Uint160
	subject  uint64
	state    State
	log      *zap.Logger
	// silent attempts are not reported to the observer
	silent bool
}

func (c *Coordinator) newAttempt(identity util.Uint160, subject uint64) *attempt {
	id := uuid.New()
	return &attempt{
		c:        c,
		id:       id,
		identity: identity,
		subject:  subject,
		state:    Idle,
		log: c.log.With(
			zap.Stringer("attempt", id),
			zap.Stringer("identity", identity),
			zap.Uint64("place", subject)),
	}
}

func (a *attempt) to(s State) {
	a.notify(s, nil)
}

// fail moves attempt to Failed and returns err wrapped into kind.
func (a *attempt) fail(kind error, err error) error {
	if err == nil {
		err = kind
	} else if !errors.Is(err, kind) {
		err = fmt.Errorf("%w: %w", kind, err)
	}
	a.notify(Failed, err)
	return err
}

func (a *attempt) notify(s State, err error) {
	from := a.state
	a.state = s

	if err != nil {
		a.log.Info("rating submission failed", zap.Stringer("stage", from), zap.Error(err))
	} else {
		a.log.Debug("rating submission state changed", zap.Stringer("from", from), zap.Stringer("to", s))
	}

	if a.c.prm.Observer != nil && !a.silent {
		a.c.prm.Observer(Transition{
			Attempt:  a.id,
			Identity: a.identity,
			Subject:  a.subject,
			From:     from,
			To:       s,
			Err:      err,
		})
	}
}

func (c *Coordinator) acquire(identity util.Uint160, subject uint64) (func(), error) {
	k := inFlightKey{identity, subject}

	c.mtx.Lock()
	defer c.mtx.Unlock()

	if _, ok := c.inFlight[k]; ok {
		return nil, fmt.Errorf("%w: %s rating place #%d", ErrAlreadyInFlight, identity.StringLE(), subject)
	}

	c.inFlight[k] = struct{}{}

	return func() {
		c.mtx.Lock()
		delete(c.inFlight, k)
		c.mtx.Unlock()
	}, nil
}

// checkIdentity makes sure the signer holds the identity.
func (c *Coordinator) checkIdentity(ctx context.Context, identity util.Uint160) error {
	if identity.Equals(util.Uint160{}) {
		return fmt.Errorf("%w: %w: empty identity", ErrInvalidInput, ErrNoIdentity)
	}

	ids, err := c.prm.Signer.RequestAccounts(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNoIdentity, err)
	}

	if !slices.Contains(ids, identity) {
		return fmt.Errorf("%w: signer does not hold %s", ErrNoIdentity, identity.StringLE())
	}

	return nil
}

func validateInput(subject uint64, score uint8) error {
	if err := typeddata.ValidateRating(subject, score); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return nil
}

// Submit rates the place on behalf of the identity. Returned errors match
// one of the package error kinds.
func (c *Coordinator) Submit(ctx context.Context, identity util.Uint160, subject uint64, score uint8) (Outcome, error) {
	if err := validateInput(subject, score); err != nil {
		return Outcome{}, err
	}

	if err := c.checkIdentity(ctx, identity); err != nil {
		return Outcome{}, err
	}

	release, err := c.acquire(identity, subject)
	if err != nil {
		return Outcome{}, err
	}
	defer release()

	a := c.newAttempt(identity, subject)

	if c.prm.Mode == ModeDirect {
		return c.submitDirect(ctx, a, score)
	}

	msg, err := c.prepare(ctx, a, score)
	if err != nil {
		return Outcome{}, err
	}

	a.to(AwaitingSignature)

	sig, err := c.prm.Signer.SignTypedData(ctx, identity, msg)
	if err != nil {
		return Outcome{}, a.fail(ErrSigningFailed, err)
	}

	return c.relay(ctx, a, relay.SignedAction{
		PublicKey: sig.PublicKey,
		Rating:    msg.Rating,
		Signature: sig.Value,
	})
}

// prepare runs steps from nonce fetching to message building.
func (c *Coordinator) prepare(ctx context.Context, a *attempt, score uint8) (typeddata.Message, error) {
	a.to(FetchingNonce)

	nonce, err := c.prm.Guard.NextNonce(ctx, a.identity, a.subject)
	if err != nil {
		return typeddata.Message{}, a.fail(ErrNonceUnavailable, err)
	}

	deadline := c.prm.Guard.Deadline(c.prm.Clock())

	a.to(BuildingMessage)

	msg, err := c.prm.Builder.Build(a.identity, a.subject, score, nonce, deadline)
	if err != nil {
		return typeddata.Message{}, a.fail(ErrInvalidInput, err)
	}

	return msg, nil
}

// Prepare builds the message the identity should sign to rate the place
// through [Coordinator.SubmitSigned]. Prepare is available in ModeRelayed
// only. Prepared message expires at its deadline and becomes stale after any
// other accepted rating of the identity for the place.
//
// Unlike [Coordinator.Submit], Prepare does not hold the (identity, place)
// key: only SubmitSigned does. Concurrent Prepare calls return messages with
// the same nonce, the contract accepts at most one of them and the others
// fail with [ErrSubmissionRejected].
func (c *Coordinator) Prepare(ctx context.Context, identity util.Uint160, subject uint64, score uint8) (typeddata.Message, error) {
	if c.prm.Mode != ModeRelayed {
		return typeddata.Message{}, fmt.Errorf("%w: signed ratings are not accepted in %s mode", ErrInvalidInput, c.prm.Mode)
	}

	if err := validateInput(subject, score); err != nil {
		return typeddata.Message{}, err
	}

	if identity.Equals(util.Uint160{}) {
		return typeddata.Message{}, fmt.Errorf("%w: %w: empty identity", ErrInvalidInput, ErrNoIdentity)
	}

	a := c.newAttempt(identity, subject)
	a.silent = true

	return c.prepare(ctx, a, score)
}

// SubmitSigned relays the rating signed outside of the coordinator.
// Available in ModeRelayed only.
func (c *Coordinator) SubmitSigned(ctx context.Context, sa relay.SignedAction) (Outcome, error) {
	if c.prm.Mode != ModeRelayed {
		return Outcome{}, fmt.Errorf("%w: signed ratings are not accepted in %s mode", ErrInvalidInput, c.prm.Mode)
	}

	if err := validateInput(sa.Rating.SubjectID, sa.Rating.Score); err != nil {
		return Outcome{}, err
	}

	if sa.PublicKey == nil || len(sa.Signature) == 0 {
		return Outcome{}, fmt.Errorf("%w: missing public key or signature", ErrInvalidInput)
	}

	if !sa.PublicKey.GetScriptHash().Equals(sa.Identity()) {
		return Outcome{}, fmt.Errorf("%w: public key does not belong to %s", ErrInvalidInput, sa.Identity().StringLE())
	}

	release, err := c.acquire(sa.Identity(), sa.Rating.SubjectID)
	if err != nil {
		return Outcome{}, err
	}
	defer release()

	return c.relay(ctx, c.newAttempt(sa.Identity(), sa.Rating.SubjectID), sa)
}

func (c *Coordinator) relay(ctx context.Context, a *attempt, sa relay.SignedAction) (Outcome, error) {
	a.to(Submitting)

	rcpt, err := c.prm.Relay.Relay(ctx, sa)
	if err != nil {
		return Outcome{}, a.fail(ErrSubmissionRejected, err)
	}

	msg := typeddata.Message{Domain: c.prm.Builder.Domain(), Rating: sa.Rating}

	a.log.Info("signed rating accepted",
		zap.String("message", msg.ID()), zap.Stringer("tx", rcpt.Hash))

	res := c.succeed(ctx, a, rcpt)
	res.Message = &msg

	return res, nil
}

func (c *Coordinator) submitDirect(ctx context.Context, a *attempt, score uint8) (Outcome, error) {
	a.to(Submitting)

	rcpt, err := c.prm.Direct.Rate(ctx, a.identity, a.subject, score)
	if err != nil {
		return Outcome{}, a.fail(ErrSubmissionRejected, err)
	}

	a.log.Info("rating accepted", zap.Stringer("tx", rcpt.Hash))

	return c.succeed(ctx, a, rcpt), nil
}

func (c *Coordinator) succeed(ctx context.Context, a *attempt, rcpt signer.Receipt) Outcome {
	a.to(Succeeded)

	res := Outcome{
		Attempt: a.id,
		Mode:    c.prm.Mode,
		Receipt: rcpt,
		Average: score.Unavailable(),
	}

	evs, err := relay.Events(rcpt)
	if err != nil {
		a.log.Warn("failed to decode rating events", zap.Error(err))
	} else {
		for i := range evs {
			if evs[i].User.Equals(a.identity) && evs[i].PlaceID.IsUint64() && evs[i].PlaceID.Uint64() == a.subject {
				res.Event = evs[i]
				break
			}
		}
	}

	if avg := eventAverage(res.Event); avg.Valid() {
		res.Average = avg
		if c.prm.Refresher != nil {
			c.prm.Refresher.Store(a.subject, avg)
		}
	} else if c.prm.Refresher != nil {
		res.Average = c.prm.Refresher.Refresh(ctx, a.subject)
	}

	return res
}

// eventAverage returns the place average reported by the rating event.
func eventAverage(ev *ratings.PlaceRatedEvent) score.Average {
	if ev == nil || ev.AverageX100 == nil || !ev.AverageX100.IsInt64() {
		return score.Unavailable()
	}
	raw := ev.AverageX100.Int64()
	if raw < 0 || raw > score.MaxRaw {
		return score.Unavailable()
	}
	return score.FromRaw(raw)
}
