package app

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/place-ratings/catalog"
	"github.com/nspcc-dev/place-ratings/score"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PageSize is a default number of places checked for personal ratings, the
// limit grows by PageSize on every "show more".
const PageSize = 6

// trendThreshold is a minimal difference between own score and the average
// considered a trend.
var trendThreshold = decimal.New(25, -2)

// Filter selects personal ratings by score.
type Filter uint8

const (
	FilterAll Filter = iota
	FilterFourPlus
	FilterFive
)

// String implements [fmt.Stringer].
func (f Filter) String() string {
	switch f {
	case FilterFourPlus:
		return "4plus"
	case FilterFive:
		return "5"
	default:
		return "all"
	}
}

// ParseFilter parses filter name. Empty string means FilterAll.
func ParseFilter(s string) (Filter, error) {
	switch s {
	case "", "all":
		return FilterAll, nil
	case "4plus":
		return FilterFourPlus, nil
	case "5":
		return FilterFive, nil
	default:
		return 0, fmt.Errorf("unknown filter '%s'", s)
	}
}

func (f Filter) match(stars uint8) bool {
	switch f {
	case FilterFourPlus:
		return stars >= 4
	case FilterFive:
		return stars == 5
	default:
		return true
	}
}

// SortOrder orders personal ratings by own score.
type SortOrder uint8

const (
	SortDesc SortOrder = iota
	SortAsc
)

// String implements [fmt.Stringer].
func (o SortOrder) String() string {
	if o == SortAsc {
		return "asc"
	}
	return "desc"
}

// ParseSortOrder parses sort order. Empty string means SortDesc.
func ParseSortOrder(s string) (SortOrder, error) {
	switch strings.ToLower(s) {
	case "", "desc":
		return SortDesc, nil
	case "asc":
		return SortAsc, nil
	default:
		return 0, fmt.Errorf("unknown sort order '%s'", s)
	}
}

// Trend compares own score with the place average.
type Trend uint8

const (
	// TrendNone is set when the average is unavailable.
	TrendNone Trend = iota
	TrendUp
	TrendDown
	TrendFlat
)

// String implements [fmt.Stringer].
func (t Trend) String() string {
	switch t {
	case TrendUp:
		return "up"
	case TrendDown:
		return "down"
	case TrendFlat:
		return "flat"
	default:
		return ""
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (t Trend) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (t *Trend) UnmarshalText(b []byte) error {
	switch s := string(b); s {
	case "":
		*t = TrendNone
	case "up":
		*t = TrendUp
	case "down":
		*t = TrendDown
	case "flat":
		*t = TrendFlat
	default:
		return fmt.Errorf("unknown trend '%s'", s)
	}
	return nil
}

// TrendOf returns trend of own score against the average.
func TrendOf(own uint8, avg score.Average) Trend {
	a, ok := avg.Decimal()
	if !ok {
		return TrendNone
	}

	diff := decimal.NewFromInt(int64(own)).Sub(a)

	switch {
	case diff.GreaterThan(trendThreshold):
		return TrendUp
	case diff.LessThan(trendThreshold.Neg()):
		return TrendDown
	default:
		return TrendFlat
	}
}

// MyRatingsQuery selects personal ratings.
type MyRatingsQuery struct {
	Identity util.Uint160
	// Limit is a number of first catalog places checked, PageSize if
	// non-positive.
	Limit  int
	Filter Filter
	Sort   SortOrder
}

// Entry is a personal rating of the place.
type Entry struct {
	Place   catalog.Place
	Stars   uint8
	Average score.Average
	Trend   Trend
}

// MyRatings is a list of personal ratings.
type MyRatings struct {
	Entries []Entry
	// Checked is a number of places checked.
	Checked int
	// More is set if there are unchecked places left.
	More bool
}

// MyRatings returns places rated by the identity among first q.Limit places
// of the catalog. Places scores of which can not be read are skipped.
func (s *Service) MyRatings(ctx context.Context, q MyRatingsQuery) MyRatings {
	if q.Limit <= 0 {
		q.Limit = PageSize
	}

	places := s.catalog.First(q.Limit)

	var (
		mtx     sync.Mutex
		entries = make([]Entry, 0, len(places))
		eg      errgroup.Group
	)

	eg.SetLimit(s.concurrency)

	for _, p := range places {
		p := p
		eg.Go(func() error {
			stars, ok := s.reader.ReadIdentityScore(ctx, q.Identity, p.ID)
			if !ok {
				s.log.Debug("identity score is unavailable",
					zap.Stringer("identity", q.Identity), zap.Uint64("place", p.ID))
				return nil
			}

			if stars == 0 || !q.Filter.match(stars) {
				return nil
			}

			avg := s.cache.Get(ctx, p.ID)

			mtx.Lock()
			entries = append(entries, Entry{
				Place:   p,
				Stars:   stars,
				Average: avg,
				Trend:   TrendOf(stars, avg),
			})
			mtx.Unlock()

			return nil
		})
	}

	_ = eg.Wait()

	// catalog order first for stable results
	order := make(map[uint64]int, len(places))
	for i := range places {
		order[places[i].ID] = i
	}

	slices.SortFunc(entries, func(a, b Entry) int {
		d := int(a.Stars) - int(b.Stars)
		if q.Sort == SortDesc {
			d = -d
		}
		if d != 0 {
			return d
		}
		return order[a.Place.ID] - order[b.Place.ID]
	})

	return MyRatings{
		Entries: entries,
		Checked: len(places),
		More:    s.catalog.Len() > len(places),
	}
}
