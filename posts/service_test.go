package posts_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/campuslink/go-campus-client/api"
	"github.com/campuslink/go-campus-client/mutate"
	"github.com/campuslink/go-campus-client/posts"
	"github.com/campuslink/go-campus-client/users"
)

type staticCreds struct{}

func (staticCreds) AccessCredential(context.Context) (string, error) { return "test-access", nil }
func (staticCreds) Refresh(context.Context) error                    { return nil }
func (staticCreds) Invalidate(context.Context)                       {}

type staticIdentity struct{ user *users.User }

func (s staticIdentity) User() *users.User { return s.user }

var signedIn = &users.User{ID: "user-1", Username: "jane"}

func newService(t *testing.T, handler http.HandlerFunc) *posts.Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := api.New(srv.URL)
	client.SetCredentials(staticCreds{})
	coord := mutate.NewCoordinator(zerolog.Nop())
	return posts.NewService(client, coord, staticIdentity{user: signedIn}, zerolog.Nop())
}

func seedPost(s *posts.Service, id string, tally posts.Tally) posts.Post {
	p := posts.Post{
		ID:          id,
		CommunityID: "comm-1",
		Author:      posts.Author{ID: "author-1", Username: "someone"},
		Title:       "title " + id,
		Tally:       tally,
		CreatedAt:   time.Now().UTC(),
	}
	s.Posts.Put(id, p)
	return p
}

func writeEnvelope(w http.ResponseWriter, data any) {
	payload, _ := json.Marshal(map[string]any{"status": "success", "data": data})
	w.Write(payload)
}

func TestVotePostOptimisticThenConfirmed(t *testing.T) {
	var svc *posts.Service
	svc = newService(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/posts/p1/vote", r.URL.Path)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "up", req["direction"], "the resolved direction goes over the wire")

		// While the request is in flight the prediction is already visible.
		inFlight, ok := svc.Posts.Get("p1")
		require.True(t, ok)
		require.Equal(t, 6, inFlight.Upvotes)
		require.Equal(t, posts.VoteUp, inFlight.UserVote)

		writeEnvelope(w, map[string]any{"upvotes": 6, "downvotes": 1, "userVote": "up"})
	})
	seedPost(svc, "p1", posts.Tally{Upvotes: 5, Downvotes: 1, UserVote: posts.VoteNone})

	require.NoError(t, svc.VotePost(context.Background(), "p1", posts.VoteUp))

	got, _ := svc.Posts.Get("p1")
	require.Equal(t, posts.Tally{Upvotes: 6, Downvotes: 1, UserVote: posts.VoteUp}, got.Tally)
}

func TestVotePostServerCountsWinOverPrediction(t *testing.T) {
	// The server rejects the vote semantically but answers 200 with its own
	// authoritative counts.
	svc := newService(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, map[string]any{"upvotes": 5, "downvotes": 1, "userVote": "none"})
	})
	seedPost(svc, "p1", posts.Tally{Upvotes: 5, Downvotes: 1, UserVote: posts.VoteNone})

	require.NoError(t, svc.VotePost(context.Background(), "p1", posts.VoteUp))

	got, _ := svc.Posts.Get("p1")
	require.Equal(t, posts.Tally{Upvotes: 5, Downvotes: 1, UserVote: posts.VoteNone}, got.Tally)
}

func TestVotePostFailureRollsBackExactly(t *testing.T) {
	svc := newService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status":"error","message":"vote rejected"}`))
	})
	before := seedPost(svc, "p1", posts.Tally{Upvotes: 5, Downvotes: 1, UserVote: posts.VoteNone})

	err := svc.VotePost(context.Background(), "p1", posts.VoteUp)
	require.Error(t, err)
	require.Equal(t, api.KindValidation, api.Kind(err))

	got, _ := svc.Posts.Get("p1")
	require.Equal(t, before, got, "exact snapshot equality after rollback")
}

func TestVoteTogglingActiveDirectionSendsNone(t *testing.T) {
	svc := newService(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "none", req["direction"])
		writeEnvelope(w, map[string]any{"upvotes": 5, "downvotes": 1, "userVote": "none"})
	})
	seedPost(svc, "p1", posts.Tally{Upvotes: 6, Downvotes: 1, UserVote: posts.VoteUp})

	require.NoError(t, svc.VotePost(context.Background(), "p1", posts.VoteUp))

	got, _ := svc.Posts.Get("p1")
	require.Equal(t, posts.Tally{Upvotes: 5, Downvotes: 1, UserVote: posts.VoteNone}, got.Tally)
}

func TestVoteCommentRollsBackOnFailure(t *testing.T) {
	svc := newService(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/comments/c1/vote", r.URL.Path)
		w.WriteHeader(http.StatusInternalServerError)
	})
	before := posts.Comment{ID: "c1", PostID: "p1", Tally: posts.Tally{Upvotes: 2, UserVote: posts.VoteNone}}
	svc.Comments.Put("c1", before)

	err := svc.VoteComment(context.Background(), "c1", posts.VoteDown)
	require.Error(t, err)

	got, _ := svc.Comments.Get("c1")
	require.Equal(t, before, got)
}

func TestDeletePostReinsertsAtPriorPositionOnFailure(t *testing.T) {
	var svc *posts.Service
	svc = newService(t, func(w http.ResponseWriter, r *http.Request) {
		// The optimistic removal is visible before the response lands.
		_, present := svc.Posts.Get("p2")
		require.False(t, present)
		w.WriteHeader(http.StatusInternalServerError)
	})
	seedPost(svc, "p1", posts.Tally{})
	mine := seedPost(svc, "p2", posts.Tally{})
	mine.Author = posts.Author{ID: signedIn.ID, Username: signedIn.Username}
	svc.Posts.Put("p2", mine)
	seedPost(svc, "p3", posts.Tally{})

	err := svc.DeletePost(context.Background(), "p2")
	require.Error(t, err)

	list := svc.Posts.List()
	require.Len(t, list, 3)
	require.Equal(t, "p2", list[1].ID, "reinserted at its prior position")
}

func TestDeletePostRequiresOwnership(t *testing.T) {
	var hits int
	svc := newService(t, func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusNoContent)
	})
	seedPost(svc, "p1", posts.Tally{}) // authored by someone else

	err := svc.DeletePost(context.Background(), "p1")
	require.ErrorIs(t, err, posts.ErrNotOwner)
	require.Zero(t, hits, "no request for an entity the user does not own")

	_, still := svc.Posts.Get("p1")
	require.True(t, still)
}

func TestDeleteCommentRemovesOptimistically(t *testing.T) {
	svc := newService(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/comments/c1", r.URL.Path)
		require.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	})
	svc.Comments.Put("c1", posts.Comment{ID: "c1", Author: posts.Author{ID: signedIn.ID}})

	require.NoError(t, svc.DeleteComment(context.Background(), "c1"))
	_, ok := svc.Comments.Get("c1")
	require.False(t, ok)
}

func TestCreateCommentProvisionalThenServerIdentity(t *testing.T) {
	var svc *posts.Service
	svc = newService(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/posts/p1/comments", r.URL.Path)

		// The provisional comment is already visible, authored by the
		// signed-in user.
		require.Equal(t, 1, svc.Comments.Len())
		provisional := svc.Comments.List()[0]
		require.Equal(t, signedIn.ID, provisional.Author.ID)
		require.Equal(t, "hello", provisional.Body)

		writeEnvelope(w, posts.Comment{
			ID:     "comment-42",
			PostID: "p1",
			Author: posts.Author{ID: signedIn.ID, Username: signedIn.Username},
			Body:   "hello",
		})
	})

	created, err := svc.CreateComment(context.Background(), "p1", "hello")
	require.NoError(t, err)
	require.Equal(t, "comment-42", created.ID)

	require.Equal(t, 1, svc.Comments.Len(), "provisional entity replaced, not duplicated")
	_, ok := svc.Comments.Get("comment-42")
	require.True(t, ok)
}

func TestCreatePostRemovedOnFailure(t *testing.T) {
	svc := newService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status":"error","message":"title required"}`))
	})

	_, err := svc.CreatePost(context.Background(), "comm-1", "", "body")
	require.Error(t, err)
	require.Zero(t, svc.Posts.Len(), "failed creation leaves no provisional entity behind")
}

func TestSecondMutationOnSameEntityRejected(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var svc *posts.Service
	svc = newService(t, func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		writeEnvelope(w, map[string]any{"upvotes": 6, "downvotes": 1, "userVote": "up"})
	})
	seedPost(svc, "p1", posts.Tally{Upvotes: 5, Downvotes: 1, UserVote: posts.VoteNone})

	done := make(chan error, 1)
	go func() { done <- svc.VotePost(context.Background(), "p1", posts.VoteUp) }()

	<-entered
	err := svc.VotePost(context.Background(), "p1", posts.VoteDown)
	require.ErrorIs(t, err, mutate.ErrMutationInFlight)

	close(release)
	require.NoError(t, <-done)
}

func TestListByCommunitySeedsStore(t *testing.T) {
	svc := newService(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/communities/comm-1/posts", r.URL.Path)
		require.Equal(t, "new", r.URL.Query().Get("sortBy"))
		writeEnvelope(w, map[string]any{
			"items": []posts.Post{
				{ID: "p1", Title: "first"},
				{ID: "p2", Title: "second"},
			},
			"page": 1, "totalPages": 1, "totalCount": 2,
		})
	})

	page, err := svc.ListByCommunity(context.Background(), "comm-1", 1, 10, posts.SortNew)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.Equal(t, 2, svc.Posts.Len())
}
