package compat

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/config/netmode"
	"github.com/nspcc-dev/neo-go/pkg/neorpc/result"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
	"github.com/nspcc-dev/place-ratings/ratingtest"
	"github.com/nspcc-dev/place-ratings/rpc/ratings"
	"github.com/nspcc-dev/place-ratings/typeddata"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var domain = typeddata.Domain{
	Name:              "PlaceRatings",
	Version:           "1",
	Network:           netmode.UnitTestNet,
	VerifyingContract: util.Uint160{0xaa},
}

func newReader(t *testing.T, c *ratingtest.Contract) *Reader {
	return NewReader(c, c.Hash(), Prm{Logger: zaptest.NewLogger(t)})
}

func TestCoerce(t *testing.T) {
	for _, item := range []stackitem.Item{
		stackitem.Make(4),
		stackitem.NewArray([]stackitem.Item{stackitem.Make(4), stackitem.Make("x")}),
		stackitem.NewStruct([]stackitem.Item{stackitem.Make(4), stackitem.Make(1700000000)}),
	} {
		v, err := Coerce(item)
		require.NoError(t, err, item.Type())
		require.EqualValues(t, 4, v.Int64())
	}

	for _, item := range []stackitem.Item{
		stackitem.Null{},
		stackitem.Make("4"),
		stackitem.Make(true),
		stackitem.NewArray(nil),
		stackitem.NewStruct([]stackitem.Item{stackitem.Make([]byte{4})}),
		stackitem.NewMap(),
	} {
		_, err := Coerce(item)
		require.Error(t, err, item.Type())
	}
}

func TestReadAverage(t *testing.T) {
	ctx := context.Background()
	c := ratingtest.New(domain)
	r := newReader(t, c)
	require.Equal(t, domain.VerifyingContract, r.Contract())

	t.Run("no ratings", func(t *testing.T) {
		avg := r.ReadAverage(ctx, 7)
		require.False(t, avg.Rated())
		require.Equal(t, "—", avg.String())
	})

	t.Run("rated", func(t *testing.T) {
		c.Put(util.Uint160{1}, 7, 4)
		avg := r.ReadAverage(ctx, 7)
		require.True(t, avg.Rated())
		require.EqualValues(t, 400, avg.Raw())
		require.Equal(t, "⭐⭐⭐⭐ (4.0)", avg.String())
	})

	t.Run("transport failure", func(t *testing.T) {
		c.SetReadError(ratings.MethodGetAverageX100, errors.New("connection refused"))
		defer c.SetReadError(ratings.MethodGetAverageX100, nil)
		avg := r.ReadAverage(ctx, 7)
		require.False(t, avg.Valid())
		require.Equal(t, "—", avg.String())
	})

	t.Run("out of range", func(t *testing.T) {
		c.Override(ratings.MethodGetAverageX100, stackitem.Make(501))
		require.False(t, r.ReadAverage(ctx, 7).Valid())
		c.Override(ratings.MethodGetAverageX100, stackitem.Make(-1))
		require.False(t, r.ReadAverage(ctx, 7).Valid())
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(ctx)
		cancel()
		require.False(t, r.ReadAverage(ctx, 7).Valid())
	})
}

func TestReadAverages(t *testing.T) {
	c := ratingtest.New(domain)
	c.Put(util.Uint160{1}, 1, 5)
	c.Put(util.Uint160{1}, 2, 3)

	r := newReader(t, c)
	res := r.ReadAverages(context.Background(), []uint64{1, 2, 3})
	require.Len(t, res, 3)
	require.EqualValues(t, 500, res[1].Raw())
	require.EqualValues(t, 300, res[2].Raw())
	require.False(t, res[3].Rated())
}

type slowInv struct {
	cur, max atomic.Int32
}

func (s *slowInv) Call(util.Uint160, string, ...any) (*result.Invoke, error) {
	n := s.cur.Add(1)
	defer s.cur.Add(-1)
	for {
		m := s.max.Load()
		if n <= m || s.max.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return &result.Invoke{State: "HALT", Stack: []stackitem.Item{stackitem.Make(100)}}, nil
}

func TestReadAveragesConcurrencyLimit(t *testing.T) {
	inv := new(slowInv)
	r := NewReader(inv, util.Uint160{1}, Prm{Concurrency: 2})

	subjects := make([]uint64, 10)
	for i := range subjects {
		subjects[i] = uint64(i + 1)
	}

	res := r.ReadAverages(context.Background(), subjects)
	require.Len(t, res, 10)
	require.LessOrEqual(t, inv.max.Load(), int32(2))
}

func TestReadIdentityScore(t *testing.T) {
	ctx := context.Background()
	user := util.Uint160{1, 2, 3}

	t.Run("primary", func(t *testing.T) {
		c := ratingtest.New(domain)
		c.Put(user, 7, 4)
		r := newReader(t, c)

		v, ok := r.ReadIdentityScore(ctx, user, 7)
		require.True(t, ok)
		require.EqualValues(t, 4, v)
		require.Equal(t, []string{ratings.MethodGetUserRating}, c.Calls())
	})

	t.Run("not rated", func(t *testing.T) {
		c := ratingtest.New(domain)
		r := newReader(t, c)

		v, ok := r.ReadIdentityScore(ctx, user, 7)
		require.True(t, ok)
		require.Zero(t, v)
	})

	t.Run("second candidate", func(t *testing.T) {
		c := ratingtest.New(domain)
		c.Put(user, 7, 3)
		c.Disable(ratings.MethodGetUserRating)
		r := newReader(t, c)

		v, ok := r.ReadIdentityScore(ctx, user, 7)
		require.True(t, ok)
		require.EqualValues(t, 3, v)
		require.Equal(t, []string{ratings.MethodGetUserRating, ratings.MethodRatingOf}, c.Calls())
	})

	t.Run("legacy tuple", func(t *testing.T) {
		c := ratingtest.New(domain)
		c.Put(user, 7, 5)
		c.Disable(ratings.MethodGetUserRating)
		c.SetReadError(ratings.MethodRatingOf, errors.New("timeout"))
		r := newReader(t, c)

		v, ok := r.ReadIdentityScore(ctx, user, 7)
		require.True(t, ok)
		require.EqualValues(t, 5, v)
		require.Equal(t, []string{
			ratings.MethodGetUserRating,
			ratings.MethodRatingOf,
			ratings.MethodUserRatings,
		}, c.Calls())
	})

	t.Run("uncoercible result", func(t *testing.T) {
		c := ratingtest.New(domain)
		c.Put(user, 7, 2)
		c.Override(ratings.MethodGetUserRating, stackitem.Make("two"))
		r := newReader(t, c)

		v, ok := r.ReadIdentityScore(ctx, user, 7)
		require.True(t, ok)
		require.EqualValues(t, 2, v)
		require.Equal(t, []string{ratings.MethodGetUserRating, ratings.MethodRatingOf}, c.Calls())
	})

	t.Run("none", func(t *testing.T) {
		c := ratingtest.New(domain)
		c.Disable(ratings.MethodGetUserRating, ratings.MethodRatingOf)
		c.Override(ratings.MethodUserRatings, stackitem.Make(42))
		r := newReader(t, c)

		_, ok := r.ReadIdentityScore(ctx, user, 7)
		require.False(t, ok)
		require.Len(t, c.Calls(), 3)
	})

	t.Run("custom candidates", func(t *testing.T) {
		c := ratingtest.New(domain)
		c.Put(user, 7, 1)
		r := NewReader(c, c.Hash(), Prm{IdentityCandidates: []Candidate{
			{Method: ratings.MethodUserRatings, Args: identityArgs, Decode: Coerce},
		}})

		v, ok := r.ReadIdentityScore(ctx, user, 7)
		require.True(t, ok)
		require.EqualValues(t, 1, v)
		require.Equal(t, []string{ratings.MethodUserRatings}, c.Calls())
	})
}

func TestReadIdentityScoreSequential(t *testing.T) {
	var (
		mtx     sync.Mutex
		active  int
		overlap bool
	)

	decode := func(stackitem.Item) (*big.Int, error) {
		mtx.Lock()
		active++
		if active > 1 {
			overlap = true
		}
		mtx.Unlock()

		time.Sleep(time.Millisecond)

		mtx.Lock()
		active--
		mtx.Unlock()
		return nil, errors.New("no")
	}

	c := ratingtest.New(domain)
	candidates := make([]Candidate, 3)
	for i, m := range []string{ratings.MethodGetUserRating, ratings.MethodRatingOf, ratings.MethodUserRatings} {
		candidates[i] = Candidate{Method: m, Args: identityArgs, Decode: decode}
	}

	r := NewReader(c, c.Hash(), Prm{IdentityCandidates: candidates})
	_, ok := r.ReadIdentityScore(context.Background(), util.Uint160{1}, 7)
	require.False(t, ok)
	require.False(t, overlap)
	require.Len(t, c.Calls(), 3)
}
