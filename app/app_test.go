package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/config/netmode"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/wallet"
	"github.com/nspcc-dev/place-ratings/aggregate"
	"github.com/nspcc-dev/place-ratings/catalog"
	"github.com/nspcc-dev/place-ratings/compat"
	"github.com/nspcc-dev/place-ratings/ratingtest"
	"github.com/nspcc-dev/place-ratings/relay"
	"github.com/nspcc-dev/place-ratings/replay"
	"github.com/nspcc-dev/place-ratings/rpc/ratings"
	"github.com/nspcc-dev/place-ratings/score"
	"github.com/nspcc-dev/place-ratings/signer"
	"github.com/nspcc-dev/place-ratings/submit"
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

func newService(t *testing.T, withCoordinator bool) (*Service, *ratingtest.Contract, *wallet.Account) {
	c := ratingtest.New(domain)

	cat, err := catalog.Builtin()
	require.NoError(t, err)

	acc, err := wallet.NewAccount()
	require.NoError(t, err)

	reader := compat.NewReader(c, c.Hash(), compat.Prm{Logger: zaptest.NewLogger(t)})
	cache := aggregate.New(reader, aggregate.Prm{})

	prm := Prm{
		Logger:  zaptest.NewLogger(t),
		Catalog: cat,
		Cache:   cache,
		Reader:  reader,
	}

	if withCoordinator {
		prm.Coordinator, err = submit.New(submit.Prm{
			Logger:    zaptest.NewLogger(t),
			Signer:    signer.NewWallet(signer.WalletPrm{Accounts: []*wallet.Account{acc}}),
			Guard:     replay.NewGuard(ratings.NewReader(c, c.Hash()), 0),
			Builder:   typeddata.NewBuilder(domain),
			Relay:     relay.NewRelayer(zaptest.NewLogger(t), c.Actor(util.Uint160{0xfe}), domain),
			Refresher: cache,
		})
		require.NoError(t, err)
	}

	s, err := New(prm)
	require.NoError(t, err)

	return s, c, acc
}

func TestNew(t *testing.T) {
	cat, err := catalog.Builtin()
	require.NoError(t, err)
	c := ratingtest.New(domain)
	r := compat.NewReader(c, c.Hash(), compat.Prm{})

	_, err = New(Prm{Cache: aggregate.New(r, aggregate.Prm{}), Reader: r})
	require.Error(t, err)
	_, err = New(Prm{Catalog: cat, Reader: r})
	require.Error(t, err)
	_, err = New(Prm{Catalog: cat, Cache: aggregate.New(r, aggregate.Prm{})})
	require.Error(t, err)
}

func TestPlaces(t *testing.T) {
	ctx := context.Background()
	s, c, _ := newService(t, false)

	c.Put(util.Uint160{1}, 1, 4)
	c.Put(util.Uint160{2}, 1, 5)

	views := s.Places(ctx)
	require.Len(t, views, 12)
	require.EqualValues(t, 1, views[0].ID)
	require.Equal(t, "⭐⭐⭐⭐✰ (4.5)", views[0].Rating())
	require.Equal(t, score.Placeholder, views[1].Rating())

	v, err := s.Place(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "Sagrada Família", v.Title)
	require.EqualValues(t, 450, v.Average.Raw())

	_, err = s.Place(ctx, 100)
	require.ErrorIs(t, err, ErrPlaceNotFound)
}

func TestAverageExpiry(t *testing.T) {
	ctx := context.Background()
	c := ratingtest.New(domain)

	cat, err := catalog.Builtin()
	require.NoError(t, err)

	clock := time.Unix(1_700_000_000, 0)
	reader := compat.NewReader(c, c.Hash(), compat.Prm{Logger: zaptest.NewLogger(t)})
	s, err := New(Prm{
		Logger:  zaptest.NewLogger(t),
		Catalog: cat,
		Cache:   aggregate.New(reader, aggregate.Prm{TTL: time.Minute, Clock: func() time.Time { return clock }}),
		Reader:  reader,
	})
	require.NoError(t, err)

	v, err := s.Place(ctx, 2)
	require.NoError(t, err)
	require.EqualValues(t, 0, v.Average.Raw())

	// rated by another client of the contract
	c.Put(util.Uint160{1}, 2, 4)
	c.Put(util.Uint160{2}, 2, 5)

	clock = clock.Add(time.Minute)

	v, err = s.Place(ctx, 2)
	require.NoError(t, err)
	require.EqualValues(t, 450, v.Average.Raw())

	views := s.Places(ctx)
	require.EqualValues(t, 2, views[1].ID)
	require.EqualValues(t, 450, views[1].Average.Raw())
}

func TestRate(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		s, _, acc := newService(t, false)
		_, err := s.Rate(ctx, acc.ScriptHash(), 1, 4)
		require.ErrorIs(t, err, ErrSubmissionDisabled)
		require.NotErrorIs(t, err, submit.ErrNoIdentity)
		_, err = s.PrepareRating(ctx, acc.ScriptHash(), 1, 4)
		require.ErrorIs(t, err, ErrSubmissionDisabled)
		_, err = s.SubmitSigned(ctx, relay.SignedAction{})
		require.ErrorIs(t, err, ErrSubmissionDisabled)
	})

	s, c, acc := newService(t, true)

	_, err := s.Rate(ctx, acc.ScriptHash(), 100, 4)
	require.ErrorIs(t, err, submit.ErrInvalidInput)
	require.ErrorIs(t, err, ErrPlaceNotFound)
	require.Empty(t, c.Calls())

	out, err := s.Rate(ctx, acc.ScriptHash(), 1, 4)
	require.NoError(t, err)
	require.EqualValues(t, 400, out.Average.Raw())

	v, err := s.Place(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "⭐⭐⭐⭐ (4.0)", v.Rating())

	msg, err := s.PrepareRating(ctx, acc.ScriptHash(), 2, 5)
	require.NoError(t, err)
	require.EqualValues(t, 0, msg.Rating.Nonce)

	_, err = s.PrepareRating(ctx, acc.ScriptHash(), 200, 5)
	require.ErrorIs(t, err, ErrPlaceNotFound)

	k := acc.PrivateKey()
	out, err = s.SubmitSigned(ctx, relay.SignedAction{PublicKey: k.PublicKey(), Rating: msg.Rating, Signature: msg.Sign(k)})
	require.NoError(t, err)
	require.EqualValues(t, 500, out.Average.Raw())

	_, err = s.SubmitSigned(ctx, relay.SignedAction{Rating: typeddata.Rating{SubjectID: 200, Score: 5}})
	require.ErrorIs(t, err, ErrPlaceNotFound)
}

func TestMyRatings(t *testing.T) {
	ctx := context.Background()
	s, c, _ := newService(t, false)
	me := util.Uint160{1, 2, 3}

	c.Put(me, 1, 5)
	c.Put(util.Uint160{9}, 1, 3) // avg 4.0, up
	c.Put(me, 2, 3)
	c.Put(util.Uint160{9}, 2, 5) // avg 4.0, down
	c.Put(me, 4, 4)              // avg 4.0, flat
	c.Put(me, 8, 5)              // beyond first page

	res := s.MyRatings(ctx, MyRatingsQuery{Identity: me})
	require.Equal(t, PageSize, res.Checked)
	require.True(t, res.More)
	require.Len(t, res.Entries, 3)

	require.EqualValues(t, 1, res.Entries[0].Place.ID)
	require.EqualValues(t, 5, res.Entries[0].Stars)
	require.Equal(t, TrendUp, res.Entries[0].Trend)
	require.EqualValues(t, 4, res.Entries[1].Place.ID)
	require.Equal(t, TrendFlat, res.Entries[1].Trend)
	require.EqualValues(t, 2, res.Entries[2].Place.ID)
	require.Equal(t, TrendDown, res.Entries[2].Trend)
	require.EqualValues(t, 400, res.Entries[2].Average.Raw())

	res = s.MyRatings(ctx, MyRatingsQuery{Identity: me, Sort: SortAsc})
	require.EqualValues(t, 2, res.Entries[0].Place.ID)
	require.EqualValues(t, 1, res.Entries[2].Place.ID)

	res = s.MyRatings(ctx, MyRatingsQuery{Identity: me, Filter: FilterFourPlus})
	require.Len(t, res.Entries, 2)

	res = s.MyRatings(ctx, MyRatingsQuery{Identity: me, Filter: FilterFive, Limit: 2 * PageSize})
	require.Len(t, res.Entries, 2)
	require.Equal(t, 12, res.Checked)
	require.False(t, res.More)

	t.Run("reads unavailable", func(t *testing.T) {
		c.Disable(ratings.MethodGetUserRating, ratings.MethodRatingOf, ratings.MethodUserRatings)
		res := s.MyRatings(ctx, MyRatingsQuery{Identity: me})
		require.Empty(t, res.Entries)
		require.Equal(t, PageSize, res.Checked)
	})
}

func TestTrend(t *testing.T) {
	require.Equal(t, TrendNone, TrendOf(5, score.Unavailable()))
	require.Equal(t, TrendUp, TrendOf(5, score.FromRaw(474)))
	require.Equal(t, TrendFlat, TrendOf(5, score.FromRaw(475)))
	require.Equal(t, TrendFlat, TrendOf(3, score.FromRaw(325)))
	require.Equal(t, TrendDown, TrendOf(3, score.FromRaw(326)))
	require.Equal(t, "", TrendNone.String())
	require.Equal(t, "up", TrendUp.String())
}

func TestParse(t *testing.T) {
	for s, f := range map[string]Filter{"": FilterAll, "all": FilterAll, "4plus": FilterFourPlus, "5": FilterFive} {
		res, err := ParseFilter(s)
		require.NoError(t, err)
		require.Equal(t, f, res)
	}
	_, err := ParseFilter("3")
	require.Error(t, err)
	require.Equal(t, "4plus", FilterFourPlus.String())

	for s, o := range map[string]SortOrder{"": SortDesc, "desc": SortDesc, "ASC": SortAsc} {
		res, err := ParseSortOrder(s)
		require.NoError(t, err)
		require.Equal(t, o, res)
	}
	_, err = ParseSortOrder("random")
	require.Error(t, err)
	require.Equal(t, "asc", SortAsc.String())
}

func TestStart(t *testing.T) {
	log := zaptest.NewLogger(t)
	ctx := context.Background()

	Start(ctx, log, nil)

	var calls int
	Start(ctx, log, HostFunc(func(context.Context) error {
		calls++
		return errors.New("host is gone")
	}))
	require.Equal(t, 1, calls)

	Start(ctx, log, HostFunc(func(ctx context.Context) error {
		calls++
		_, ok := ctx.Deadline()
		require.False(t, ok)
		return nil
	}))
	require.Equal(t, 2, calls)
}
