package replay

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/stretchr/testify/require"
)

type testReader struct {
	calls int
	n     *big.Int
	err   error
}

func (r *testReader) GetNonce(util.Uint160, *big.Int) (*big.Int, error) {
	r.calls++
	return r.n, r.err
}

func TestNextNonce(t *testing.T) {
	r := &testReader{n: big.NewInt(3)}
	g := NewGuard(r, 0)
	ctx := context.Background()

	n, err := g.NextNonce(ctx, util.Uint160{1}, 7)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)

	r.n = big.NewInt(4)
	n, err = g.NextNonce(ctx, util.Uint160{1}, 7)
	require.NoError(t, err)
	require.EqualValues(t, 4, n)
	require.Equal(t, 2, r.calls, "nonce must never be cached")

	t.Run("read failure", func(t *testing.T) {
		r.err = errors.New("connection refused")
		_, err := g.NextNonce(ctx, util.Uint160{1}, 7)
		require.ErrorIs(t, err, ErrNonceUnavailable)
		require.ErrorContains(t, err, "connection refused")
		r.err = nil
	})

	t.Run("invalid value", func(t *testing.T) {
		for _, v := range []*big.Int{nil, big.NewInt(-1), new(big.Int).Lsh(big.NewInt(1), 64)} {
			r.n = v
			_, err := g.NextNonce(ctx, util.Uint160{1}, 7)
			require.ErrorIs(t, err, ErrNonceUnavailable)
		}
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(ctx)
		cancel()
		calls := r.calls
		_, err := g.NextNonce(ctx, util.Uint160{1}, 7)
		require.ErrorIs(t, err, ErrNonceUnavailable)
		require.ErrorIs(t, err, context.Canceled)
		require.Equal(t, calls, r.calls)
	})
}

func TestDeadline(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	g := NewGuard(nil, 0)
	require.Equal(t, DefaultWindow, g.Window())
	require.EqualValues(t, 1_700_000_300, g.Deadline(now))

	g = NewGuard(nil, time.Minute)
	require.EqualValues(t, 1_700_000_060, g.Deadline(now))
	require.Equal(t, g.Deadline(now), g.Deadline(now))
}
