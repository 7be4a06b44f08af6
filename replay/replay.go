// Package replay provides per-identity, per-place replay protection data for
// signed ratings: the nonce the ratings contract currently expects and the
// signature deadline.
package replay

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/util"
)

// DefaultWindow is a default lifetime of the signed rating.
const DefaultWindow = 300 * time.Second

// ErrNonceUnavailable is returned when current nonce can not be read from the
// contract.
var ErrNonceUnavailable = errors.New("nonce unavailable")

// NonceReader reads nonces from the ratings contract.
// [ratings.ContractReader] satisfies it.
type NonceReader interface {
	GetNonce(user util.Uint160, placeID *big.Int) (*big.Int, error)
}

// Guard fetches nonces and calculates deadlines. Guard does not store any
// state, every nonce is read from the contract.
type Guard struct {
	reader NonceReader
	window time.Duration
}

// NewGuard returns Guard reading nonces through r. Non-positive window means
// [DefaultWindow].
func NewGuard(r NonceReader, window time.Duration) *Guard {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Guard{reader: r, window: window}
}

// Window returns signature lifetime.
func (g *Guard) Window() time.Duration {
	return g.window
}

// NextNonce returns nonce the contract expects in the next signed rating of
// the identity for the place. Any failure is wrapped into
// [ErrNonceUnavailable].
func (g *Guard) NextNonce(ctx context.Context, identity util.Uint160, subject uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrNonceUnavailable, err)
	}

	n, err := g.reader.GetNonce(identity, new(big.Int).SetUint64(subject))
	if err != nil {
		return 0, fmt.Errorf("%w: read nonce of %s for place #%d: %w", ErrNonceUnavailable, identity.StringLE(), subject, err)
	}

	if n == nil || n.Sign() < 0 || !n.IsUint64() {
		return 0, fmt.Errorf("%w: invalid nonce value %v", ErrNonceUnavailable, n)
	}

	return n.Uint64(), nil
}

// Deadline returns Unix timestamp (seconds) the signed rating expires at.
func (g *Guard) Deadline(now time.Time) uint64 {
	return uint64(now.Add(g.window).Unix())
}
