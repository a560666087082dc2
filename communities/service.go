package communities

import (
	"context"
	"net/url"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/campuslink/go-campus-client/api"
	"github.com/campuslink/go-campus-client/mutate"
	"github.com/campuslink/go-campus-client/state"
)

// membershipPageLimit bounds the page size used when walking the full
// community list for memberships; large enough to cover realistic
// membership counts in a few pages.
const (
	membershipPageLimit = 100
	membershipMaxPages  = 10
)

// Service exposes community listing and membership operations. The
// Communities store is the UI-visible snapshot state mutations act on.
type Service struct {
	client *api.Client
	coord  *mutate.Coordinator
	log    zerolog.Logger

	Communities *state.Store[Community]
}

func NewService(client *api.Client, coord *mutate.Coordinator, log zerolog.Logger) *Service {
	return &Service{
		client:      client,
		coord:       coord,
		log:         log,
		Communities: state.NewStore[Community](),
	}
}

// ListOption adjusts a community listing.
type ListOption func(url.Values)

// WithSearch filters the listing server-side by a search query.
func WithSearch(query string) ListOption {
	return func(q url.Values) {
		q.Set("searchQuery", query)
	}
}

// List fetches one page of communities and seeds the store.
func (s *Service) List(ctx context.Context, page, limit int, opts ...ListOption) (api.Page[Community], error) {
	q := url.Values{}
	for _, opt := range opts {
		opt(q)
	}

	result, err := api.FetchPage[Community](ctx, s.client, "/communities", page, limit, q)
	if err != nil {
		return result, pkgerrors.Wrapf(err, "[Service.List] page %d", page)
	}
	if err := result.Validate(limit); err != nil {
		s.log.Warn().Err(err).Msg("inconsistent page bookkeeping")
	}

	for _, c := range result.Items {
		s.Communities.Put(c.ID, c)
	}
	return result, nil
}

// Memberships walks the community list in ascending page order and returns
// the communities the user has joined. The walk is bounded, not unbounded:
// a pathological server cannot make the client loop forever.
func (s *Service) Memberships(ctx context.Context) ([]Community, error) {
	all, err := api.FetchAllPages[Community](ctx, s.client, "/communities", membershipPageLimit, membershipMaxPages, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Service.Memberships] list communities")
	}

	joined := make([]Community, 0)
	for _, c := range all {
		s.Communities.Put(c.ID, c)
		if c.IsMember {
			joined = append(joined, c)
		}
	}
	return joined, nil
}

// Join makes the user a member. The membership flag and the member count
// move together optimistically, and the server's community snapshot wins
// when the response carries one.
func (s *Service) Join(ctx context.Context, communityID string) error {
	return s.membership(ctx, communityID, "/join", Community.Joined)
}

// Leave is the inverse of Join.
func (s *Service) Leave(ctx context.Context, communityID string) error {
	return s.membership(ctx, communityID, "/leave", Community.Left)
}

func (s *Service) membership(ctx context.Context, communityID, action string, stage func(Community) Community) error {
	return mutate.Run(ctx, s.coord, communityID, mutate.Mutation[Community]{
		Capture: func() (Community, bool) { return s.Communities.Get(communityID) },
		Stage:   stage,
		Commit:  func(predicted Community) { s.Communities.Replace(communityID, predicted) },
		Send: func(ctx context.Context) (*Community, error) {
			env, err := s.client.Dispatch(ctx, "POST", "/communities/"+communityID+action, nil)
			if err != nil {
				return nil, err
			}
			if !env.HasData() {
				return nil, nil // bare success, keep the prediction
			}
			var confirmed Community
			if err := env.Decode(&confirmed); err != nil {
				return nil, pkgerrors.Wrap(err, "[Service.membership] decode community")
			}
			if confirmed.ID == "" {
				return nil, nil // message-only envelope
			}
			return &confirmed, nil
		},
		Confirm: func(authoritative *Community) {
			if authoritative != nil {
				s.Communities.Replace(communityID, *authoritative)
			}
		},
		Revert: func(prev Community) { s.Communities.Replace(communityID, prev) },
	})
}
