/*
Package ratingtest provides an in-memory ratings contract for tests. It
serves safe methods through [Contract.Call] (neo-go invoker surface) and
state-changing ones through [Actor] (neo-go actor surface), verifying
signatures, nonces and deadlines the way the deployed contract does.
*/
package ratingtest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/core/state"
	"github.com/nspcc-dev/neo-go/pkg/core/transaction"
	"github.com/nspcc-dev/neo-go/pkg/crypto/hash"
	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/nspcc-dev/neo-go/pkg/neorpc/result"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
	"github.com/nspcc-dev/neo-go/pkg/vm/vmstate"
	"github.com/nspcc-dev/place-ratings/rpc/ratings"
	"github.com/nspcc-dev/place-ratings/typeddata"
)

type ratingKey struct {
	user  util.Uint160
	place uint64
}

type userRating struct {
	stars     int64
	updatedAt int64
}

type placeTotal struct {
	sum, count int64
}

// Contract is an in-memory ratings contract. All methods are safe for
// concurrent use.
type Contract struct {
	mu sync.Mutex

	domain typeddata.Domain
	now    func() time.Time

	ratings map[ratingKey]userRating
	totals  map[uint64]placeTotal
	nonces  map[ratingKey]uint64

	disabled   map[string]bool
	readErrs   map[string]error
	overrides  map[string]stackitem.Item
	sendErr    error
	calls      []string
	txCounter  uint64
	executions map[util.Uint256]*state.AppExecResult
}

// New returns empty Contract verifying signatures against the given domain.
// Domain's verifying contract is the contract hash.
func New(domain typeddata.Domain) *Contract {
	return &Contract{
		domain:     domain,
		now:        time.Now,
		ratings:    make(map[ratingKey]userRating),
		totals:     make(map[uint64]placeTotal),
		nonces:     make(map[ratingKey]uint64),
		disabled:   make(map[string]bool),
		readErrs:   make(map[string]error),
		overrides:  make(map[string]stackitem.Item),
		executions: make(map[util.Uint256]*state.AppExecResult),
	}
}

// Hash returns contract hash.
func (c *Contract) Hash() util.Uint160 {
	return c.domain.VerifyingContract
}

// SetClock overrides current time source used for deadline checks.
func (c *Contract) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// Disable makes calls to the named methods fault as if the deployed version
// did not have them.
func (c *Contract) Disable(methods ...string) {
	c.mu.Lock()
	for i := range methods {
		c.disabled[methods[i]] = true
	}
	c.mu.Unlock()
}

// SetReadError makes calls to the named safe method fail with transport
// error. Nil err resets the failure.
func (c *Contract) SetReadError(method string, err error) {
	c.mu.Lock()
	if err == nil {
		delete(c.readErrs, method)
	} else {
		c.readErrs[method] = err
	}
	c.mu.Unlock()
}

// Override makes the named safe method return the given item.
func (c *Contract) Override(method string, item stackitem.Item) {
	c.mu.Lock()
	c.overrides[method] = item
	c.mu.Unlock()
}

// SetSendError makes all subsequent transactions fail to be sent. Nil err
// resets the failure.
func (c *Contract) SetSendError(err error) {
	c.mu.Lock()
	c.sendErr = err
	c.mu.Unlock()
}

// Calls returns names of all methods called so far in order.
func (c *Contract) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// ResetCalls clears call trace.
func (c *Contract) ResetCalls() {
	c.mu.Lock()
	c.calls = nil
	c.mu.Unlock()
}

// Nonce returns current expected nonce.
func (c *Contract) Nonce(user util.Uint160, place uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nonces[ratingKey{user, place}]
}

// Rating returns stars given by the user to the place, zero if none.
func (c *Contract) Rating(user util.Uint160, place uint64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ratings[ratingKey{user, place}].stars
}

// AverageX100 returns current x100 fixed point average of the place.
func (c *Contract) AverageX100(place uint64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.averageX100(place)
}

// Put stores rating bypassing any checks.
func (c *Contract) Put(user util.Uint160, place uint64, stars int64) {
	c.mu.Lock()
	c.apply(user, place, stars)
	c.mu.Unlock()
}

func (c *Contract) averageX100(place uint64) int64 {
	t := c.totals[place]
	if t.count == 0 {
		return 0
	}
	// round(sum/count*100), half up
	return (t.sum*200 + t.count) / (2 * t.count)
}

func (c *Contract) apply(user util.Uint160, place uint64, stars int64) {
	k := ratingKey{user, place}
	t := c.totals[place]
	if prev, ok := c.ratings[k]; ok {
		t.sum -= prev.stars
	} else {
		t.count++
	}
	t.sum += stars
	c.totals[place] = t
	c.ratings[k] = userRating{stars: stars, updatedAt: c.now().Unix()}
}

// Call implements ratings.Invoker.
func (c *Contract) Call(contract util.Uint160, operation string, params ...any) (*result.Invoke, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, operation)

	if err := c.readErrs[operation]; err != nil {
		return nil, err
	}

	if !contract.Equals(c.domain.VerifyingContract) {
		return fault(errors.New("contract not found")), nil
	}

	if c.disabled[operation] {
		return fault(fmt.Errorf("method not found: %s/%d", operation, len(params))), nil
	}

	if item, ok := c.overrides[operation]; ok {
		return halt(item), nil
	}

	item, err := c.read(operation, params)
	if err != nil {
		return fault(err), nil
	}

	return halt(item), nil
}

func (c *Contract) read(operation string, params []any) (stackitem.Item, error) {
	switch operation {
	case ratings.MethodVersion:
		return stackitem.Make(1), nil
	case ratings.MethodGetAverageX100:
		if len(params) != 1 {
			return nil, errors.New("wrong number of params")
		}
		place, err := toUint64(params[0])
		if err != nil {
			return nil, err
		}
		return stackitem.Make(c.averageX100(place)), nil
	case ratings.MethodGetNonce, ratings.MethodGetUserRating, ratings.MethodRatingOf, ratings.MethodUserRatings:
		k, err := toKey(params)
		if err != nil {
			return nil, err
		}
		switch operation {
		case ratings.MethodGetNonce:
			return stackitem.Make(new(big.Int).SetUint64(c.nonces[k])), nil
		case ratings.MethodUserRatings:
			r := c.ratings[k]
			return stackitem.NewStruct([]stackitem.Item{stackitem.Make(r.stars), stackitem.Make(r.updatedAt)}), nil
		default:
			return stackitem.Make(c.ratings[k].stars), nil
		}
	default:
		return nil, fmt.Errorf("method not found: %s/%d", operation, len(params))
	}
}

// execute runs state-changing method on behalf of the sender.
func (c *Contract) execute(sender util.Uint160, method string, params []any) (*stackitem.Array, error) {
	switch method {
	case ratings.MethodRatePlace:
		if len(params) != 2 {
			return nil, errors.New("wrong number of params")
		}
		place, stars, err := placeAndStars(params[0], params[1])
		if err != nil {
			return nil, err
		}
		c.apply(sender, place, stars)
		return c.event(sender, place, stars), nil
	case ratings.MethodRateWithSig:
		if len(params) != 6 {
			return nil, errors.New("wrong number of params")
		}
		pub, ok := params[0].(*keys.PublicKey)
		if !ok {
			return nil, errors.New("invalid public key")
		}
		place, stars, err := placeAndStars(params[1], params[2])
		if err != nil {
			return nil, err
		}
		nonce, err := toUint64(params[3])
		if err != nil {
			return nil, err
		}
		deadline, err := toUint64(params[4])
		if err != nil {
			return nil, err
		}
		sig, ok := params[5].([]byte)
		if !ok {
			return nil, errors.New("invalid signature type")
		}

		if uint64(c.now().Unix()) > deadline {
			return nil, errors.New(ratings.ErrorExpired)
		}

		user := pub.GetScriptHash()
		k := ratingKey{user, place}
		if c.nonces[k] != nonce {
			return nil, errors.New(ratings.ErrorInvalidNonce)
		}

		msg := typeddata.Message{
			Domain: c.domain,
			Rating: typeddata.Rating{
				Identity:  user,
				SubjectID: place,
				Score:     uint8(stars),
				Nonce:     nonce,
				Deadline:  deadline,
			},
		}
		if !msg.Verify(pub, sig) {
			return nil, errors.New(ratings.ErrorInvalidSignature)
		}

		c.nonces[k]++
		c.apply(user, place, stars)
		return c.event(user, place, stars), nil
	default:
		return nil, fmt.Errorf("method not found: %s/%d", method, len(params))
	}
}

func (c *Contract) event(user util.Uint160, place uint64, stars int64) *stackitem.Array {
	return stackitem.NewArray([]stackitem.Item{
		stackitem.NewByteArray(user.BytesBE()),
		stackitem.Make(new(big.Int).SetUint64(place)),
		stackitem.Make(stars),
		stackitem.Make(c.averageX100(place)),
	})
}

// send executes the transaction and records its result. Faulted
// invocations are rejected before sending like neo-go actor does.
func (c *Contract) send(sender util.Uint160, contract util.Uint160, method string, params []any) (util.Uint256, uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, method)

	if c.sendErr != nil {
		return util.Uint256{}, 0, c.sendErr
	}

	if !contract.Equals(c.domain.VerifyingContract) {
		return util.Uint256{}, 0, errors.New("contract not found")
	}

	ev, err := c.execute(sender, method, params)
	if err != nil {
		return util.Uint256{}, 0, fmt.Errorf("script failed (FAULT state) due to an error: at instruction 0 (THROW): unhandled exception: \"%s\"", err)
	}

	c.txCounter++
	h := hash.Sha256(new(big.Int).SetUint64(c.txCounter).Bytes())

	c.executions[h] = &state.AppExecResult{
		Container: h,
		Execution: state.Execution{
			VMState: vmstate.Halt,
			Stack:   []stackitem.Item{stackitem.Null{}},
			Events: []state.NotificationEvent{{
				ScriptHash: contract,
				Name:       ratings.EventPlaceRated,
				Item:       ev,
			}},
		},
	}

	return h, uint32(c.txCounter) + 100, nil
}

// Actor returns actor sending transactions from the given account.
func (c *Contract) Actor(sender util.Uint160) *Actor {
	return &Actor{c: c, sender: sender}
}

// Actor implements ratings.Actor and neo-go waiter surface over the
// in-memory Contract.
type Actor struct {
	c      *Contract
	sender util.Uint160
}

// Sender returns account transactions are sent from.
func (a *Actor) Sender() util.Uint160 {
	return a.sender
}

// Call implements ratings.Invoker.
func (a *Actor) Call(contract util.Uint160, operation string, params ...any) (*result.Invoke, error) {
	return a.c.Call(contract, operation, params...)
}

// MakeCall is not supported.
func (a *Actor) MakeCall(util.Uint160, string, ...any) (*transaction.Transaction, error) {
	return nil, errors.ErrUnsupported
}

// MakeUnsignedCall is not supported.
func (a *Actor) MakeUnsignedCall(util.Uint160, string, []transaction.Attribute, ...any) (*transaction.Transaction, error) {
	return nil, errors.ErrUnsupported
}

// SendCall executes the method and returns transaction hash and
// ValidUntilBlock.
func (a *Actor) SendCall(contract util.Uint160, method string, params ...any) (util.Uint256, uint32, error) {
	return a.c.send(a.sender, contract, method, params)
}

// WaitAny returns execution result of the first known transaction.
func (a *Actor) WaitAny(ctx context.Context, _ uint32, hashes ...util.Uint256) (*state.AppExecResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.c.mu.Lock()
	defer a.c.mu.Unlock()

	for i := range hashes {
		if res, ok := a.c.executions[hashes[i]]; ok {
			return res, nil
		}
	}

	return nil, errors.New("transaction not found")
}

func halt(item stackitem.Item) *result.Invoke {
	return &result.Invoke{State: vmstate.Halt.String(), Stack: []stackitem.Item{item}}
}

func fault(err error) *result.Invoke {
	return &result.Invoke{State: vmstate.Fault.String(), FaultException: err.Error()}
}

func toKey(params []any) (ratingKey, error) {
	if len(params) != 2 {
		return ratingKey{}, errors.New("wrong number of params")
	}
	user, ok := params[0].(util.Uint160)
	if !ok {
		return ratingKey{}, fmt.Errorf("invalid user type %T", params[0])
	}
	place, err := toUint64(params[1])
	if err != nil {
		return ratingKey{}, err
	}
	return ratingKey{user, place}, nil
}

func placeAndStars(p, s any) (uint64, int64, error) {
	place, err := toUint64(p)
	if err != nil {
		return 0, 0, err
	}
	if place == 0 {
		return 0, 0, errors.New(ratings.ErrorInvalidPlace)
	}
	stars, err := toUint64(s)
	if err != nil {
		return 0, 0, err
	}
	if stars < typeddata.MinScore || stars > typeddata.MaxScore {
		return 0, 0, errors.New(ratings.ErrorInvalidStars)
	}
	return place, int64(stars), nil
}

func toUint64(v any) (uint64, error) {
	switch x := v.(type) {
	case *big.Int:
		if x.Sign() < 0 || !x.IsUint64() {
			return 0, errors.New("integer out of range")
		}
		return x.Uint64(), nil
	case int64:
		if x < 0 {
			return 0, errors.New("integer out of range")
		}
		return uint64(x), nil
	case int:
		if x < 0 {
			return 0, errors.New("integer out of range")
		}
		return uint64(x), nil
	case uint64:
		return x, nil
	default:
		return 0, fmt.Errorf("invalid integer type %T", v)
	}
}
