// Package ratings contains RPC wrappers for the place ratings contract.
package ratings

import (
	"errors"
	"fmt"
	"github.com/nspcc-dev/neo-go/pkg/core/transaction"
	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/nspcc-dev/neo-go/pkg/neorpc/result"
	"github.com/nspcc-dev/neo-go/pkg/rpcclient/unwrap"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
	"math/big"
)

// RatingsUserRating is a contract-specific ratings.UserRating type returned by
// the legacy `userRatings` method.
type RatingsUserRating struct {
	Stars *big.Int
	UpdatedAt *big.Int
}

// PlaceRatedEvent represents "PlaceRated" event emitted by the contract.
type PlaceRatedEvent struct {
	User util.Uint160
	PlaceID *big.Int
	Stars *big.Int
	AverageX100 *big.Int
}

// Invoker is used by ContractReader to call various safe methods.
type Invoker interface {
	Call(contract util.Uint160, operation string, params ...any) (*result.Invoke, error)
}

// Actor is used by Contract to call state-changing methods.
type Actor interface {
	Invoker

	MakeCall(contract util.Uint160, method string, params ...any) (*transaction.Transaction, error)
	MakeUnsignedCall(contract util.Uint160, method string, attrs []transaction.Attribute, params ...any) (*transaction.Transaction, error)
	SendCall(contract util.Uint160, method string, params ...any) (util.Uint256, uint32, error)
}

// ContractReader implements safe contract methods.
type ContractReader struct {
	invoker Invoker
	hash util.Uint160
}

// Contract implements all contract methods.
type Contract struct {
	ContractReader
	actor Actor
	hash util.Uint160
}

// NewReader creates an instance of ContractReader using provided contract hash and the given Invoker.
func NewReader(invoker Invoker, hash util.Uint160) *ContractReader {
	return &ContractReader{invoker, hash}
}

// New creates an instance of Contract using provided contract hash and the given Actor.
func New(actor Actor, hash util.Uint160) *Contract {
	return &Contract{ContractReader{actor, hash}, actor, hash}
}

// Hash returns contract hash the reader is bound to.
func (c *ContractReader) Hash() util.Uint160 {
	return c.hash
}

// GetAverageX100 invokes `getAverageX100` method of contract.
func (c *ContractReader) GetAverageX100(placeID *big.Int) (*big.Int, error) {
	return unwrap.BigInt(c.invoker.Call(c.hash, MethodGetAverageX100, placeID))
}

// GetNonce invokes `getNonce` method of contract.
func (c *ContractReader) GetNonce(user util.Uint160, placeID *big.Int) (*big.Int, error) {
	return unwrap.BigInt(c.invoker.Call(c.hash, MethodGetNonce, user, placeID))
}

// GetUserRating invokes `getUserRating` method of contract.
func (c *ContractReader) GetUserRating(user util.Uint160, placeID *big.Int) (*big.Int, error) {
	return unwrap.BigInt(c.invoker.Call(c.hash, MethodGetUserRating, user, placeID))
}

// RatingOf invokes legacy `ratingOf` method of contract.
func (c *ContractReader) RatingOf(user util.Uint160, placeID *big.Int) (*big.Int, error) {
	return unwrap.BigInt(c.invoker.Call(c.hash, MethodRatingOf, user, placeID))
}

// UserRatings invokes legacy `userRatings` method of contract.
func (c *ContractReader) UserRatings(user util.Uint160, placeID *big.Int) (*RatingsUserRating, error) {
	return itemToRatingsUserRating(unwrap.Item(c.invoker.Call(c.hash, MethodUserRatings, user, placeID)))
}

// Version invokes `version` method of contract.
func (c *ContractReader) Version() (*big.Int, error) {
	return unwrap.BigInt(c.invoker.Call(c.hash, MethodVersion))
}

// RatePlace creates a transaction invoking `ratePlace` method of the contract.
// This transaction is signed and immediately sent to the network.
// The values returned are its hash, ValidUntilBlock value and error if any.
func (c *Contract) RatePlace(placeID *big.Int, stars *big.Int) (util.Uint256, uint32, error) {
	return c.actor.SendCall(c.hash, MethodRatePlace, placeID, stars)
}

// RatePlaceTransaction creates a transaction invoking `ratePlace` method of the contract.
// This transaction is signed, but not sent to the network, instead it's
// returned to the caller.
func (c *Contract) RatePlaceTransaction(placeID *big.Int, stars *big.Int) (*transaction.Transaction, error) {
	return c.actor.MakeCall(c.hash, MethodRatePlace, placeID, stars)
}

// RatePlaceUnsigned creates a transaction invoking `ratePlace` method of the contract.
// This transaction is not signed, it's simply returned to the caller.
// Any fields of it that do not affect fees can be changed (ValidUntilBlock,
// Nonce), fee values (NetworkFee, SystemFee) can be increased as well.
func (c *Contract) RatePlaceUnsigned(placeID *big.Int, stars *big.Int) (*transaction.Transaction, error) {
	return c.actor.MakeUnsignedCall(c.hash, MethodRatePlace, nil, placeID, stars)
}

// RateWithSig creates a transaction invoking `rateWithSig` method of the contract.
// This transaction is signed and immediately sent to the network.
// The values returned are its hash, ValidUntilBlock value and error if any.
func (c *Contract) RateWithSig(publicKey *keys.PublicKey, placeID *big.Int, stars *big.Int, nonce *big.Int, deadline *big.Int, signature []byte) (util.Uint256, uint32, error) {
	return c.actor.SendCall(c.hash, MethodRateWithSig, publicKey, placeID, stars, nonce, deadline, signature)
}

// RateWithSigTransaction creates a transaction invoking `rateWithSig` method of the contract.
// This transaction is signed, but not sent to the network, instead it's
// returned to the caller.
func (c *Contract) RateWithSigTransaction(publicKey *keys.PublicKey, placeID *big.Int, stars *big.Int, nonce *big.Int, deadline *big.Int, signature []byte) (*transaction.Transaction, error) {
	return c.actor.MakeCall(c.hash, MethodRateWithSig, publicKey, placeID, stars, nonce, deadline, signature)
}

// RateWithSigUnsigned creates a transaction invoking `rateWithSig` method of the contract.
// This transaction is not signed, it's simply returned to the caller.
// Any fields of it that do not affect fees can be changed (ValidUntilBlock,
// Nonce), fee values (NetworkFee, SystemFee) can be increased as well.
func (c *Contract) RateWithSigUnsigned(publicKey *keys.PublicKey, placeID *big.Int, stars *big.Int, nonce *big.Int, deadline *big.Int, signature []byte) (*transaction.Transaction, error) {
	return c.actor.MakeUnsignedCall(c.hash, MethodRateWithSig, nil, publicKey, placeID, stars, nonce, deadline, signature)
}

// itemToRatingsUserRating converts stack item into *RatingsUserRating.
func itemToRatingsUserRating(item stackitem.Item, err error) (*RatingsUserRating, error) {
	if err != nil {
		return nil, err
	}
	var res = new(RatingsUserRating)
	err = res.FromStackItem(item)
	return res, err
}

// FromStackItem retrieves fields of RatingsUserRating from the given
// [stackitem.Item] or returns an error if it's not possible to do to so.
func (res *RatingsUserRating) FromStackItem(item stackitem.Item) error {
	arr, ok := item.Value().([]stackitem.Item)
	if !ok {
		return errors.New("not an array")
	}
	if len(arr) != 2 {
		return errors.New("wrong number of structure elements")
	}

	var (
		index = -1
		err error
	)
	index++
	res.Stars, err = arr[index].TryInteger()
	if err != nil {
		return fmt.Errorf("field Stars: %w", err)
	}

	index++
	res.UpdatedAt, err = arr[index].TryInteger()
	if err != nil {
		return fmt.Errorf("field UpdatedAt: %w", err)
	}

	return nil
}

// PlaceRatedEventsFromApplicationLog retrieves a set of all emitted events
// with "PlaceRated" name from the provided [result.ApplicationLog].
func PlaceRatedEventsFromApplicationLog(log *result.ApplicationLog) ([]*PlaceRatedEvent, error) {
	if log == nil {
		return nil, errors.New("nil application log")
	}

	var res []*PlaceRatedEvent
	for i, ex := range log.Executions {
		for j, e := range ex.Events {
			if e.Name != EventPlaceRated {
				continue
			}
			event := new(PlaceRatedEvent)
			err := event.FromStackItem(e.Item)
			if err != nil {
				return nil, fmt.Errorf("failed to deserialize PlaceRatedEvent from stackitem (execution #%d, event #%d): %w", i, j, err)
			}
			res = append(res, event)
		}
	}

	return res, nil
}

// FromStackItem converts provided [stackitem.Array] to PlaceRatedEvent or
// returns an error if it's not possible to do to so.
func (e *PlaceRatedEvent) FromStackItem(item *stackitem.Array) error {
	if item == nil {
		return errors.New("nil item")
	}
	arr, ok := item.Value().([]stackitem.Item)
	if !ok {
		return errors.New("not an array")
	}
	if len(arr) != 4 {
		return errors.New("wrong number of structure elements")
	}

	var (
		index = -1
		err error
	)
	index++
	e.User, err = func (item stackitem.Item) (util.Uint160, error) {
		b, err := item.TryBytes()
		if err != nil {
			return util.Uint160{}, err
		}
		u, err := util.Uint160DecodeBytesBE(b)
		if err != nil {
			return util.Uint160{}, err
		}
		return u, nil
	} (arr[index])
	if err != nil {
		return fmt.Errorf("field User: %w", err)
	}

	index++
	e.PlaceID, err = arr[index].TryInteger()
	if err != nil {
		return fmt.Errorf("field PlaceID: %w", err)
	}

	index++
	e.Stars, err = arr[index].TryInteger()
	if err != nil {
		return fmt.Errorf("field Stars: %w", err)
	}

	index++
	e.AverageX100, err = arr[index].TryInteger()
	if err != nil {
		return fmt.Errorf("field AverageX100: %w", err)
	}

	return nil
}
