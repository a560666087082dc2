package communities_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/campuslink/go-campus-client/api"
	"github.com/campuslink/go-campus-client/communities"
	"github.com/campuslink/go-campus-client/mutate"
)

type staticCreds struct{}

func (staticCreds) AccessCredential(context.Context) (string, error) { return "test-access", nil }
func (staticCreds) Refresh(context.Context) error                    { return nil }
func (staticCreds) Invalidate(context.Context)                       {}

func newService(t *testing.T, handler http.HandlerFunc) *communities.Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := api.New(srv.URL)
	client.SetCredentials(staticCreds{})
	return communities.NewService(client, mutate.NewCoordinator(zerolog.Nop()), zerolog.Nop())
}

func writeEnvelope(w http.ResponseWriter, data any) {
	payload, _ := json.Marshal(map[string]any{"status": "success", "data": data})
	w.Write(payload)
}

func TestMembershipArithmetic(t *testing.T) {
	c := communities.Community{ID: "comm-1", MemberCount: 10, IsMember: false}

	joined := c.Joined()
	require.True(t, joined.IsMember)
	require.Equal(t, 11, joined.MemberCount, "flag and count move together, by exactly one")

	require.Equal(t, joined, joined.Joined(), "joining twice is a no-op")

	left := joined.Left()
	require.False(t, left.IsMember)
	require.Equal(t, 10, left.MemberCount)
	require.Equal(t, left, left.Left())
}

func TestJoinOptimisticThenBareSuccess(t *testing.T) {
	var svc *communities.Service
	svc = newService(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/communities/comm-1/join", r.URL.Path)

		// Prediction already visible during the round-trip.
		cur, ok := svc.Communities.Get("comm-1")
		require.True(t, ok)
		require.True(t, cur.IsMember)
		require.Equal(t, 11, cur.MemberCount)

		w.Write([]byte(`{"status":"success","message":"joined"}`))
	})
	svc.Communities.Put("comm-1", communities.Community{ID: "comm-1", MemberCount: 10})

	require.NoError(t, svc.Join(context.Background(), "comm-1"))

	got, _ := svc.Communities.Get("comm-1")
	require.True(t, got.IsMember)
	require.Equal(t, 11, got.MemberCount)
}

func TestJoinServerSnapshotWins(t *testing.T) {
	svc := newService(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, communities.Community{ID: "comm-1", MemberCount: 14, IsMember: true})
	})
	svc.Communities.Put("comm-1", communities.Community{ID: "comm-1", MemberCount: 10})

	require.NoError(t, svc.Join(context.Background(), "comm-1"))

	got, _ := svc.Communities.Get("comm-1")
	require.Equal(t, 14, got.MemberCount, "authoritative count replaces the prediction")
}

func TestLeaveFailureRollsBack(t *testing.T) {
	svc := newService(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/communities/comm-1/leave", r.URL.Path)
		w.WriteHeader(http.StatusInternalServerError)
	})
	before := communities.Community{ID: "comm-1", MemberCount: 10, IsMember: true}
	svc.Communities.Put("comm-1", before)

	err := svc.Leave(context.Background(), "comm-1")
	require.Error(t, err)

	got, _ := svc.Communities.Get("comm-1")
	require.Equal(t, before, got, "exact snapshot restored")
}

func TestListAppliesSearchQuery(t *testing.T) {
	svc := newService(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "chess", r.URL.Query().Get("searchQuery"))
		writeEnvelope(w, map[string]any{
			"items":      []communities.Community{{ID: "comm-1", Name: "Chess Club"}},
			"page":       1,
			"totalPages": 1,
			"totalCount": 1,
		})
	})

	page, err := svc.List(context.Background(), 1, 20, communities.WithSearch("chess"))
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, 1, svc.Communities.Len())
}

func TestMembershipsFiltersJoined(t *testing.T) {
	svc := newService(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, map[string]any{
			"items": []communities.Community{
				{ID: "comm-1", IsMember: true},
				{ID: "comm-2", IsMember: false},
				{ID: "comm-3", IsMember: true},
			},
			"page": 1, "totalPages": 1, "totalCount": 3,
		})
	})

	joined, err := svc.Memberships(context.Background())
	require.NoError(t, err)
	require.Len(t, joined, 2)
	require.Equal(t, 3, svc.Communities.Len(), "all fetched communities are seeded into the store")
}
