/*
Package app implements place rating use cases on top of the ratings contract:
place views with averages, personal rating lists and rating submission.
*/
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/place-ratings/aggregate"
	"github.com/nspcc-dev/place-ratings/catalog"
	"github.com/nspcc-dev/place-ratings/relay"
	"github.com/nspcc-dev/place-ratings/score"
	"github.com/nspcc-dev/place-ratings/submit"
	"github.com/nspcc-dev/place-ratings/typeddata"
	"go.uber.org/zap"
)

// ErrPlaceNotFound is returned for places missing in the catalog.
var ErrPlaceNotFound = errors.New("place not found")

// ErrSubmissionDisabled is returned by rating operations of the Service
// built without a coordinator.
var ErrSubmissionDisabled = errors.New("rating submission is disabled")

// IdentityReader reads scores given by identities. [compat.Reader]
// satisfies it.
type IdentityReader interface {
	ReadIdentityScore(ctx context.Context, identity util.Uint160, subject uint64) (uint8, bool)
}

// Prm groups parameters of the [Service].
type Prm struct {
	// Logger, nop if nil.
	Logger *zap.Logger

	Catalog *catalog.Catalog
	Cache   *aggregate.Cache
	Reader  IdentityReader

	// Coordinator is required for rating submission only.
	Coordinator *submit.Coordinator

	// Concurrency limits reads of the personal rating list,
	// DefaultConcurrency if non-positive.
	Concurrency int
}

// DefaultConcurrency is a default limit of simultaneous reads.
const DefaultConcurrency = 4

// Service serves place rating use cases.
type Service struct {
	log         *zap.Logger
	catalog     *catalog.Catalog
	cache       *aggregate.Cache
	reader      IdentityReader
	coord       *submit.Coordinator
	concurrency int
}

// New returns Service.
func New(prm Prm) (*Service, error) {
	switch {
	case prm.Catalog == nil:
		return nil, errors.New("missing catalog")
	case prm.Cache == nil:
		return nil, errors.New("missing average cache")
	case prm.Reader == nil:
		return nil, errors.New("missing identity score reader")
	}

	s := &Service{
		log:         prm.Logger,
		catalog:     prm.Catalog,
		cache:       prm.Cache,
		reader:      prm.Reader,
		coord:       prm.Coordinator,
		concurrency: prm.Concurrency,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.concurrency <= 0 {
		s.concurrency = DefaultConcurrency
	}

	return s, nil
}

// PlaceView is a place with its current average.
type PlaceView struct {
	catalog.Place
	Average score.Average
}

// Rating renders the average, e.g. "⭐⭐⭐⭐ (4.0)".
func (v PlaceView) Rating() string {
	return v.Average.String()
}

// Places returns all places of the catalog with their averages.
func (s *Service) Places(ctx context.Context) []PlaceView {
	places := s.catalog.All()
	avgs := s.cache.GetAll(ctx, catalog.IDs(places))

	res := make([]PlaceView, len(places))
	for i := range places {
		res[i] = PlaceView{Place: places[i], Average: avgs[places[i].ID]}
	}

	return res
}

// Place returns the place with its average.
func (s *Service) Place(ctx context.Context, id uint64) (PlaceView, error) {
	p, ok := s.catalog.Get(id)
	if !ok {
		return PlaceView{}, fmt.Errorf("%w: %d", ErrPlaceNotFound, id)
	}

	return PlaceView{Place: p, Average: s.cache.Get(ctx, id)}, nil
}

func (s *Service) submitter() (*submit.Coordinator, error) {
	if s.coord == nil {
		return nil, ErrSubmissionDisabled
	}
	return s.coord, nil
}

func (s *Service) checkPlace(id uint64) error {
	if _, ok := s.catalog.Get(id); !ok {
		return fmt.Errorf("%w: %w: %d", submit.ErrInvalidInput, ErrPlaceNotFound, id)
	}
	return nil
}

// Rate rates the place on behalf of the identity.
func (s *Service) Rate(ctx context.Context, identity util.Uint160, place uint64, stars uint8) (submit.Outcome, error) {
	c, err := s.submitter()
	if err != nil {
		return submit.Outcome{}, err
	}

	if err = s.checkPlace(place); err != nil {
		return submit.Outcome{}, err
	}

	return c.Submit(ctx, identity, place, stars)
}

// PrepareRating returns message to be signed by the identity to rate the
// place through [Service.SubmitSigned].
func (s *Service) PrepareRating(ctx context.Context, identity util.Uint160, place uint64, stars uint8) (typeddata.Message, error) {
	c, err := s.submitter()
	if err != nil {
		return typeddata.Message{}, err
	}

	if err = s.checkPlace(place); err != nil {
		return typeddata.Message{}, err
	}

	return c.Prepare(ctx, identity, place, stars)
}

// SubmitSigned relays the signed rating.
func (s *Service) SubmitSigned(ctx context.Context, a relay.SignedAction) (submit.Outcome, error) {
	c, err := s.submitter()
	if err != nil {
		return submit.Outcome{}, err
	}

	if err = s.checkPlace(a.Rating.SubjectID); err != nil {
		return submit.Outcome{}, err
	}

	return c.SubmitSigned(ctx, a)
}
