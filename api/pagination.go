package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/campuslink/go-campus-client/internal/utils"
)

// Page is one page of a paginated collection as returned by the server.
type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	TotalPages int `json:"totalPages"`
	TotalCount int `json:"totalCount"`
}

// Validate checks the page bookkeeping against the requested page size:
// totalPages must equal ceil(totalCount / pageSize).
func (p Page[T]) Validate(pageSize int) error {
	if pageSize <= 0 {
		return fmt.Errorf("[Page.Validate] invalid page size %d", pageSize)
	}
	want := (p.TotalCount + pageSize - 1) / pageSize
	if p.TotalPages != want {
		return fmt.Errorf("[Page.Validate] totalPages %d, want %d for %d items at page size %d",
			p.TotalPages, want, p.TotalCount, pageSize)
	}
	return nil
}

// FetchPage issues a GET for one page of path, merging page and limit into
// any extra query values.
func FetchPage[T any](ctx context.Context, c *Client, path string, page, limit int, extra url.Values) (Page[T], error) {
	q := url.Values{}
	for k, vs := range extra {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	var result Page[T]
	env, err := c.Dispatch(ctx, "GET", path, nil, WithQuery(q))
	if err != nil {
		return result, err
	}
	if err := env.Decode(&result); err != nil {
		return result, err
	}
	// Some endpoints report the collection size in the envelope's results
	// field rather than the page payload.
	if result.TotalCount == 0 && env.Results != nil {
		result.TotalCount = utils.Value(env.Results)
	}
	return result, nil
}

// FetchAllPages walks path in ascending page order until the server's
// totalPages is exhausted or maxPages have been fetched. Pages are requested
// strictly sequentially so the monotonic page-order invariant holds per
// source.
func FetchAllPages[T any](ctx context.Context, c *Client, path string, limit, maxPages int, extra url.Values) ([]T, error) {
	var items []T
	for page := 1; maxPages <= 0 || page <= maxPages; page++ {
		result, err := FetchPage[T](ctx, c, path, page, limit, extra)
		if err != nil {
			return nil, err
		}
		items = append(items, result.Items...)
		if page >= result.TotalPages {
			break
		}
	}
	return items, nil
}
