/*
Package compat reads place ratings from the ratings contract tolerating
differences between deployed contract versions.

Averages are read with a single fixed method. Identity scores are read by
trying an ordered list of [Candidate]s: method names which have been used by
different contract versions for the same logical value. Candidates are tried
sequentially until one of them succeeds.

Read failures are never returned to the caller, they degrade to
[score.Unavailable] averages and absent identity scores.
*/
package compat

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/nspcc-dev/neo-go/pkg/rpcclient/unwrap"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
	"github.com/nspcc-dev/place-ratings/rpc/ratings"
	"github.com/nspcc-dev/place-ratings/score"
	"github.com/nspcc-dev/place-ratings/typeddata"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is a default limit of simultaneous calls in batch reads.
const DefaultConcurrency = 4

// Candidate is a candidate read of the identity score.
type Candidate struct {
	// Method is a name of the contract method.
	Method string
	// Args returns method arguments.
	Args func(identity util.Uint160, subject uint64) []any
	// Decode extracts score from the resulting stack item.
	Decode func(stackitem.Item) (*big.Int, error)
}

func identityArgs(identity util.Uint160, subject uint64) []any {
	return []any{identity, new(big.Int).SetUint64(subject)}
}

// DefaultIdentityCandidates returns candidates for all known contract versions,
// the current one first.
func DefaultIdentityCandidates() []Candidate {
	return []Candidate{
		{Method: ratings.MethodGetUserRating, Args: identityArgs, Decode: Coerce},
		{Method: ratings.MethodRatingOf, Args: identityArgs, Decode: Coerce},
		{Method: ratings.MethodUserRatings, Args: identityArgs, Decode: Coerce},
	}
}

// Coerce returns integer value of the item. Integers are returned as is,
// arrays and structures are coerced by their first element.
func Coerce(item stackitem.Item) (*big.Int, error) {
	switch item.Type() {
	case stackitem.IntegerT:
		return item.TryInteger()
	case stackitem.ArrayT, stackitem.StructT:
		arr, ok := item.Value().([]stackitem.Item)
		if !ok || len(arr) == 0 {
			return nil, errors.New("empty array")
		}
		if arr[0].Type() != stackitem.IntegerT {
			return nil, fmt.Errorf("first element is %s, not integer", arr[0].Type())
		}
		return arr[0].TryInteger()
	default:
		return nil, fmt.Errorf("unexpected item type %s", item.Type())
	}
}

// Prm groups optional parameters of the [Reader].
type Prm struct {
	// Logger, nop if nil.
	Logger *zap.Logger
	// IdentityCandidates overrides [DefaultIdentityCandidates] if non-empty.
	IdentityCandidates []Candidate
	// Concurrency limits batch reads, [DefaultConcurrency] if non-positive.
	Concurrency int
}

// Reader reads ratings from the contract. Reader is safe for concurrent use.
type Reader struct {
	inv         ratings.Invoker
	contract    util.Uint160
	log         *zap.Logger
	candidates  []Candidate
	concurrency int
}

// NewReader returns Reader calling contract methods through inv.
func NewReader(inv ratings.Invoker, contract util.Uint160, prm Prm) *Reader {
	r := &Reader{
		inv:         inv,
		contract:    contract,
		log:         prm.Logger,
		candidates:  prm.IdentityCandidates,
		concurrency: prm.Concurrency,
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	if len(r.candidates) == 0 {
		r.candidates = DefaultIdentityCandidates()
	}
	if r.concurrency <= 0 {
		r.concurrency = DefaultConcurrency
	}
	return r
}

// Contract returns ratings contract address.
func (r *Reader) Contract() util.Uint160 {
	return r.contract
}

// ReadAverage reads average rating of the place. Any failure results in
// [score.Unavailable].
func (r *Reader) ReadAverage(ctx context.Context, subject uint64) score.Average {
	if ctx.Err() != nil {
		return score.Unavailable()
	}

	raw, err := unwrap.BigInt(r.inv.Call(r.contract, ratings.MethodGetAverageX100, new(big.Int).SetUint64(subject)))
	if err != nil {
		r.log.Warn("failed to read place average",
			zap.Uint64("place", subject), zap.Error(err))
		return score.Unavailable()
	}

	if raw.Sign() < 0 || raw.Cmp(big.NewInt(score.MaxRaw)) > 0 {
		r.log.Warn("contract returned average out of range",
			zap.Uint64("place", subject), zap.Stringer("value", raw))
		return score.Unavailable()
	}

	return score.FromRaw(raw.Int64())
}

// ReadAverages reads averages of all given places with bounded concurrency.
// Resulting map has entry for each place.
func (r *Reader) ReadAverages(ctx context.Context, subjects []uint64) map[uint64]score.Average {
	var (
		mtx sync.Mutex
		res = make(map[uint64]score.Average, len(subjects))
		eg  errgroup.Group
	)

	eg.SetLimit(r.concurrency)

	for _, s := range subjects {
		s := s
		eg.Go(func() error {
			avg := r.ReadAverage(ctx, s)
			mtx.Lock()
			res[s] = avg
			mtx.Unlock()
			return nil
		})
	}

	_ = eg.Wait()

	return res
}

// ReadIdentityScore reads score given to the place by the identity. Candidates
// are tried in order, the first one which succeeds and returns a value
// within [0, typeddata.MaxScore] wins. Zero score means the identity has not
// rated the place yet. False is returned if no candidate succeeds, it must not be
// reported as an error.
func (r *Reader) ReadIdentityScore(ctx context.Context, identity util.Uint160, subject uint64) (uint8, bool) {
	for i := range r.candidates {
		if ctx.Err() != nil {
			return 0, false
		}

		p := r.candidates[i]

		v, err := r.try(p, identity, subject)
		if err != nil {
			r.log.Debug("identity score read failed",
				zap.String("method", p.Method),
				zap.Stringer("identity", identity),
				zap.Uint64("place", subject),
				zap.Error(err))
			continue
		}

		return v, true
	}

	return 0, false
}

func (r *Reader) try(p Candidate, identity util.Uint160, subject uint64) (uint8, error) {
	item, err := unwrap.Item(r.inv.Call(r.contract, p.Method, p.Args(identity, subject)...))
	if err != nil {
		return 0, err
	}

	v, err := p.Decode(item)
	if err != nil {
		return 0, fmt.Errorf("decode result: %w", err)
	}

	if v.Sign() < 0 || v.Cmp(big.NewInt(typeddata.MaxScore)) > 0 {
		return 0, fmt.Errorf("score %s out of range", v)
	}

	return uint8(v.Uint64()), nil
}
