package api_test

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/campuslink/go-campus-client/api"
)

func TestPageValidate(t *testing.T) {
	tests := []struct {
		name       string
		totalCount int
		pageSize   int
		totalPages int
		wantErr    bool
	}{
		{"exact multiple", 100, 10, 10, false},
		{"remainder rounds up", 101, 10, 11, false},
		{"empty collection", 0, 10, 0, false},
		{"single item", 1, 10, 1, false},
		{"wrong page count", 100, 10, 9, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := api.Page[string]{TotalCount: tc.totalCount, TotalPages: tc.totalPages}
			err := p.Validate(tc.pageSize)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestFetchAllPagesWalksAscending(t *testing.T) {
	const totalPages = 3
	var requested []int

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		page, err := strconv.Atoi(r.URL.Query().Get("page"))
		require.NoError(t, err)
		require.Equal(t, "2", r.URL.Query().Get("limit"))
		requested = append(requested, page)

		fmt.Fprintf(w, `{"status":"success","data":{
			"items":["p%d-a","p%d-b"],
			"page":%d,"totalPages":%d,"totalCount":6}}`, page, page, page, totalPages)
	}, newFakeCreds("tok"))

	items, err := api.FetchAllPages[string](context.Background(), client, "/communities", 2, 10, nil)
	require.NoError(t, err)
	require.Len(t, items, 6)
	require.Equal(t, []int{1, 2, 3}, requested, "pages requested in ascending order, none skipped")
}

func TestFetchAllPagesHonorsMaxPages(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		fmt.Fprintf(w, `{"status":"success","data":{"items":["item-%s"],"page":%s,"totalPages":100,"totalCount":100}}`, page, page)
	}, newFakeCreds("tok"))

	items, err := api.FetchAllPages[string](context.Background(), client, "/communities", 1, 3, nil)
	require.NoError(t, err)
	require.Len(t, items, 3)
}

func TestFetchPageFallsBackToEnvelopeResults(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","results":7,"data":{"items":["a"],"page":1,"totalPages":1}}`))
	}, newFakeCreds("tok"))

	page, err := api.FetchPage[string](context.Background(), client, "/communities", 1, 10, nil)
	require.NoError(t, err)
	require.Equal(t, 7, page.TotalCount)
}
