// Package feed builds the combined "communities I follow" feed by fanning
// out one bounded post fetch per followed community and merging the results
// into a single recency-ordered, deduplicated list. The server exposes no
// combined endpoint; this is where the client compensates.
package feed

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/campuslink/go-campus-client/communities"
	"github.com/campuslink/go-campus-client/posts"
)

// ErrNoFollowedContent is the distinct empty state: the user follows no
// communities, or every followed source failed. It is not a generic error.
var ErrNoFollowedContent = errors.New("no followed content")

const (
	defaultPostsPerSource = 10
	defaultDisplayCap     = 50
	defaultFanOutLimit    = 4
)

// Aggregator assembles the home feed.
type Aggregator struct {
	communities *communities.Service
	posts       *posts.Service
	log         zerolog.Logger

	postsPerSource int
	displayCap     int
	fanOutLimit    int
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithPostsPerSource bounds the number of posts fetched per community.
func WithPostsPerSource(n int) AggregatorOption {
	return func(a *Aggregator) {
		a.postsPerSource = n
	}
}

// WithDisplayCap bounds the size of the merged feed.
func WithDisplayCap(n int) AggregatorOption {
	return func(a *Aggregator) {
		a.displayCap = n
	}
}

// WithFanOutLimit bounds how many per-community fetches run concurrently.
func WithFanOutLimit(n int) AggregatorOption {
	return func(a *Aggregator) {
		a.fanOutLimit = n
	}
}

func NewAggregator(cs *communities.Service, ps *posts.Service, log zerolog.Logger, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		communities:    cs,
		posts:          ps,
		log:            log,
		postsPerSource: defaultPostsPerSource,
		displayCap:     defaultDisplayCap,
		fanOutLimit:    defaultFanOutLimit,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Home returns the merged feed of the user's followed communities.
//
// Each per-community fetch is independently fault-tolerant: a failing
// source is logged and contributes nothing, it never aborts the aggregate.
// Only the complete absence of followed content surfaces as
// ErrNoFollowedContent.
func (a *Aggregator) Home(ctx context.Context) ([]posts.Post, error) {
	followed, err := a.communities.Memberships(ctx)
	if err != nil {
		return nil, err
	}
	if len(followed) == 0 {
		return nil, ErrNoFollowedContent
	}

	perSource := make([][]posts.Post, len(followed))
	var failures atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.fanOutLimit)
	for i, community := range followed {
		i, community := i, community
		g.Go(func() error {
			page, err := a.posts.ListByCommunity(ctx, community.ID, 1, a.postsPerSource, posts.SortNew)
			if err != nil {
				a.log.Warn().Err(err).Str("community_id", community.ID).Msg("feed source failed")
				failures.Add(1)
				return nil // per-source failures degrade, never abort
			}
			perSource[i] = page.Items
			return nil
		})
	}
	_ = g.Wait() // goroutines only ever return nil

	if failures.Load() == int64(len(followed)) {
		return nil, ErrNoFollowedContent
	}

	return mergeFeed(perSource, a.displayCap), nil
}

// mergeFeed concatenates the per-source slices, drops duplicate post
// identities, sorts by creation time descending, and truncates to the
// display cap. Deduplication happens before truncation so a duplicate can
// never push a unique post off the end.
func mergeFeed(perSource [][]posts.Post, limit int) []posts.Post {
	seen := make(map[string]struct{})
	merged := make([]posts.Post, 0)
	for _, items := range perSource {
		for _, p := range items {
			if _, dup := seen[p.ID]; dup {
				continue
			}
			seen[p.ID] = struct{}{}
			merged = append(merged, p)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.After(merged[j].CreatedAt)
	})

	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}
