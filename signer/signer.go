// Package signer defines the interface of the rating identity's wallet and
// provides its implementation over local Neo wallet accounts.
package signer

import (
	"context"
	"errors"

	"github.com/nspcc-dev/neo-go/pkg/core/state"
	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/vmstate"
	"github.com/nspcc-dev/place-ratings/typeddata"
)

var (
	// ErrNotConnected is returned when there is no wallet or no account for
	// the requested identity.
	ErrNotConnected = errors.New("signer not connected")
	// ErrDeclined is returned when signing request is declined by the wallet
	// owner.
	ErrDeclined = errors.New("signing declined")
)

// Signature is a signature of the typed message along with the key it can be
// verified with.
type Signature struct {
	PublicKey *keys.PublicKey
	Value     []byte
}

// Receipt describes the result of the sent action.
type Receipt struct {
	Hash           util.Uint256
	VMState        vmstate.State
	FaultException string
	Events         []state.NotificationEvent
}

// Accepted checks whether action was successfully executed.
func (r Receipt) Accepted() bool {
	return r.VMState == vmstate.Halt
}

// NewReceipt makes Receipt from the transaction execution result.
func NewReceipt(res *state.AppExecResult) Receipt {
	return Receipt{
		Hash:           res.Container,
		VMState:        res.VMState,
		FaultException: res.FaultException,
		Events:         res.Events,
	}
}

// Signer is a wallet of rating identities.
type Signer interface {
	// RequestAccounts returns identities available for signing. Returns
	// ErrNotConnected if there are none.
	RequestAccounts(ctx context.Context) ([]util.Uint160, error)

	// SignTypedData signs message digest on behalf of the identity.
	SignTypedData(ctx context.Context, identity util.Uint160, msg typeddata.Message) (Signature, error)

	// SendAction invokes contract method in a transaction sent by the
	// identity and waits for it to be executed.
	SendAction(ctx context.Context, from util.Uint160, contract util.Uint160, method string, args ...any) (Receipt, error)
}
