package posts

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/campuslink/go-campus-client/api"
	"github.com/campuslink/go-campus-client/mutate"
	"github.com/campuslink/go-campus-client/state"
	"github.com/campuslink/go-campus-client/users"
)

var (
	ErrNotSignedIn = errors.New("not signed in")
	ErrNotOwner    = errors.New("entity belongs to another user")
)

// SortOrder selects the server-side ordering of a post listing.
type SortOrder string

const (
	SortNew SortOrder = "new"
	SortTop SortOrder = "top"
)

// Identity exposes the signed-in user to ownership checks and provisional
// authorship. Satisfied by the session manager.
type Identity interface {
	User() *users.User
}

// Service exposes post and comment operations. Fetched entities are seeded
// into the snapshot stores so mutations have a rollback target; the stores
// are the UI-visible state.
type Service struct {
	client   *api.Client
	coord    *mutate.Coordinator
	identity Identity
	log      zerolog.Logger

	Posts    *state.Store[Post]
	Comments *state.Store[Comment]
}

func NewService(client *api.Client, coord *mutate.Coordinator, identity Identity, log zerolog.Logger) *Service {
	return &Service{
		client:   client,
		coord:    coord,
		identity: identity,
		log:      log,
		Posts:    state.NewStore[Post](),
		Comments: state.NewStore[Comment](),
	}
}

// ListByCommunity fetches one page of a community's posts and seeds the
// post store with the result.
func (s *Service) ListByCommunity(ctx context.Context, communityID string, page, limit int, sort SortOrder) (api.Page[Post], error) {
	q := url.Values{}
	if sort != "" {
		q.Set("sortBy", string(sort))
	}

	path := fmt.Sprintf("/communities/%s/posts", communityID)
	result, err := api.FetchPage[Post](ctx, s.client, path, page, limit, q)
	if err != nil {
		return result, pkgerrors.Wrapf(err, "[Service.ListByCommunity] community %s page %d", communityID, page)
	}
	if err := result.Validate(limit); err != nil {
		s.log.Warn().Err(err).Str("community_id", communityID).Msg("inconsistent page bookkeeping")
	}

	for _, p := range result.Items {
		s.Posts.Put(p.ID, p)
	}
	return result, nil
}

// ListComments fetches one page of a post's comments and seeds the comment
// store.
func (s *Service) ListComments(ctx context.Context, postID string, page, limit int) (api.Page[Comment], error) {
	path := fmt.Sprintf("/posts/%s/comments", postID)
	result, err := api.FetchPage[Comment](ctx, s.client, path, page, limit, nil)
	if err != nil {
		return result, pkgerrors.Wrapf(err, "[Service.ListComments] post %s page %d", postID, page)
	}

	for _, c := range result.Items {
		s.Comments.Put(c.ID, c)
	}
	return result, nil
}

type voteRequest struct {
	Direction VoteDirection `json:"direction"`
}

type voteResult struct {
	Upvotes   int           `json:"upvotes"`
	Downvotes int           `json:"downvotes"`
	UserVote  VoteDirection `json:"userVote"`
}

// VotePost applies one vote click to a post. The tally moves optimistically
// by the toggle arithmetic, the resulting direction is sent to the server,
// and the server's counts replace the prediction when they arrive.
func (s *Service) VotePost(ctx context.Context, postID string, clicked VoteDirection) error {
	var resolved VoteDirection
	return mutate.Run(ctx, s.coord, postID, mutate.Mutation[Post]{
		Capture: func() (Post, bool) { return s.Posts.Get(postID) },
		Stage: func(prev Post) Post {
			prev.Tally = prev.Tally.Toggle(clicked)
			resolved = prev.UserVote
			return prev
		},
		Commit: func(predicted Post) { s.Posts.Replace(postID, predicted) },
		Send: func(ctx context.Context) (*Post, error) {
			res, err := s.sendVote(ctx, "/posts/"+postID+"/vote", resolved)
			if err != nil || res == nil {
				return nil, err
			}
			cur, ok := s.Posts.Get(postID)
			if !ok {
				return nil, nil // target gone, discard the result
			}
			cur.Tally = Tally{Upvotes: res.Upvotes, Downvotes: res.Downvotes, UserVote: res.UserVote}
			return &cur, nil
		},
		Confirm: func(authoritative *Post) {
			if authoritative != nil {
				s.Posts.Replace(postID, *authoritative)
			}
		},
		Revert: func(prev Post) { s.Posts.Replace(postID, prev) },
	})
}

// VoteComment is VotePost for comments.
func (s *Service) VoteComment(ctx context.Context, commentID string, clicked VoteDirection) error {
	var resolved VoteDirection
	return mutate.Run(ctx, s.coord, commentID, mutate.Mutation[Comment]{
		Capture: func() (Comment, bool) { return s.Comments.Get(commentID) },
		Stage: func(prev Comment) Comment {
			prev.Tally = prev.Tally.Toggle(clicked)
			resolved = prev.UserVote
			return prev
		},
		Commit: func(predicted Comment) { s.Comments.Replace(commentID, predicted) },
		Send: func(ctx context.Context) (*Comment, error) {
			res, err := s.sendVote(ctx, "/comments/"+commentID+"/vote", resolved)
			if err != nil || res == nil {
				return nil, err
			}
			cur, ok := s.Comments.Get(commentID)
			if !ok {
				return nil, nil
			}
			cur.Tally = Tally{Upvotes: res.Upvotes, Downvotes: res.Downvotes, UserVote: res.UserVote}
			return &cur, nil
		},
		Confirm: func(authoritative *Comment) {
			if authoritative != nil {
				s.Comments.Replace(commentID, *authoritative)
			}
		},
		Revert: func(prev Comment) { s.Comments.Replace(commentID, prev) },
	})
}

func (s *Service) sendVote(ctx context.Context, path string, direction VoteDirection) (*voteResult, error) {
	env, err := s.client.Dispatch(ctx, "POST", path, voteRequest{Direction: direction})
	if err != nil {
		return nil, err
	}
	if !env.HasData() {
		return nil, nil
	}
	var res voteResult
	if err := env.Decode(&res); err != nil {
		return nil, pkgerrors.Wrap(err, "[Service.sendVote] decode vote result")
	}
	return &res, nil
}

type createPostRequest struct {
	Title string `json:"title"`
	Body  string `json:"body,omitempty"`
}

// CreatePost publishes a post to a community. A provisional post appears in
// the store immediately under a client-generated ID, which is rebound to
// the server-assigned ID on success and removed on failure.
func (s *Service) CreatePost(ctx context.Context, communityID, title, body string) (*Post, error) {
	author, err := s.author()
	if err != nil {
		return nil, err
	}

	provisionalID := uuid.New().String()
	finalID := provisionalID
	m := mutate.Mutation[Post]{
		Capture: func() (Post, bool) { return Post{}, true }, // previous state is absence
		Stage: func(Post) Post {
			return Post{
				ID:          provisionalID,
				CommunityID: communityID,
				Author:      author,
				Title:       title,
				Body:        body,
				Tally:       Tally{UserVote: VoteNone},
				CreatedAt:   time.Now().UTC(),
			}
		},
		Commit: func(predicted Post) { s.Posts.Put(provisionalID, predicted) },
		Send: func(ctx context.Context) (*Post, error) {
			path := fmt.Sprintf("/communities/%s/posts", communityID)
			env, err := s.client.Dispatch(ctx, "POST", path, createPostRequest{Title: title, Body: body})
			if err != nil {
				return nil, err
			}
			var created Post
			if err := env.Decode(&created); err != nil {
				return nil, pkgerrors.Wrap(err, "[Service.CreatePost] decode post")
			}
			return &created, nil
		},
		Confirm: func(authoritative *Post) {
			if authoritative != nil && authoritative.ID != "" {
				finalID = authoritative.ID
				s.Posts.Rename(provisionalID, finalID, *authoritative)
			}
		},
		Revert: func(Post) { s.Posts.Remove(provisionalID) },
	}
	if err := mutate.Run(ctx, s.coord, provisionalID, m); err != nil {
		return nil, err
	}

	created, _ := s.Posts.Get(finalID)
	return &created, nil
}

type createCommentRequest struct {
	Body string `json:"body"`
}

// CreateComment replies to a post with the same provisional-entity protocol
// as CreatePost.
func (s *Service) CreateComment(ctx context.Context, postID, body string) (*Comment, error) {
	author, err := s.author()
	if err != nil {
		return nil, err
	}

	provisionalID := uuid.New().String()
	finalID := provisionalID
	m := mutate.Mutation[Comment]{
		Capture: func() (Comment, bool) { return Comment{}, true },
		Stage: func(Comment) Comment {
			return Comment{
				ID:        provisionalID,
				PostID:    postID,
				Author:    author,
				Body:      body,
				Tally:     Tally{UserVote: VoteNone},
				CreatedAt: time.Now().UTC(),
			}
		},
		Commit: func(predicted Comment) { s.Comments.Put(provisionalID, predicted) },
		Send: func(ctx context.Context) (*Comment, error) {
			env, err := s.client.Dispatch(ctx, "POST", "/posts/"+postID+"/comments", createCommentRequest{Body: body})
			if err != nil {
				return nil, err
			}
			var created Comment
			if err := env.Decode(&created); err != nil {
				return nil, pkgerrors.Wrap(err, "[Service.CreateComment] decode comment")
			}
			return &created, nil
		},
		Confirm: func(authoritative *Comment) {
			if authoritative != nil && authoritative.ID != "" {
				finalID = authoritative.ID
				s.Comments.Rename(provisionalID, finalID, *authoritative)
			}
		},
		Revert: func(Comment) { s.Comments.Remove(provisionalID) },
	}
	if err := mutate.Run(ctx, s.coord, provisionalID, m); err != nil {
		return nil, err
	}

	created, _ := s.Comments.Get(finalID)
	return &created, nil
}

// DeletePost removes the user's own post. The post disappears from the
// store immediately; a failed delete reinserts it at its prior position.
func (s *Service) DeletePost(ctx context.Context, postID string) error {
	post, ok := s.Posts.Get(postID)
	if !ok {
		return mutate.ErrUnknownEntity
	}
	if !post.OwnedBy(s.currentUserID()) {
		return ErrNotOwner
	}

	var position int
	return mutate.Run(ctx, s.coord, postID, mutate.Mutation[Post]{
		Capture: func() (Post, bool) { return s.Posts.Get(postID) },
		Stage:   func(prev Post) Post { return prev },
		Commit: func(Post) {
			_, position, _ = s.Posts.Remove(postID)
		},
		Send: func(ctx context.Context) (*Post, error) {
			_, err := s.client.Dispatch(ctx, "DELETE", "/posts/"+postID, nil)
			return nil, err
		},
		Revert: func(prev Post) { s.Posts.Insert(postID, prev, position) },
	})
}

// DeleteComment removes the user's own comment, with the same reinsertion
// guarantee as DeletePost.
func (s *Service) DeleteComment(ctx context.Context, commentID string) error {
	comment, ok := s.Comments.Get(commentID)
	if !ok {
		return mutate.ErrUnknownEntity
	}
	if !comment.OwnedBy(s.currentUserID()) {
		return ErrNotOwner
	}

	var position int
	return mutate.Run(ctx, s.coord, commentID, mutate.Mutation[Comment]{
		Capture: func() (Comment, bool) { return s.Comments.Get(commentID) },
		Stage:   func(prev Comment) Comment { return prev },
		Commit: func(Comment) {
			_, position, _ = s.Comments.Remove(commentID)
		},
		Send: func(ctx context.Context) (*Comment, error) {
			_, err := s.client.Dispatch(ctx, "DELETE", "/comments/"+commentID, nil)
			return nil, err
		},
		Revert: func(prev Comment) { s.Comments.Insert(commentID, prev, position) },
	})
}

func (s *Service) author() (Author, error) {
	u := s.identity.User()
	if u == nil {
		return Author{}, ErrNotSignedIn
	}
	return Author{ID: u.ID, Username: u.Username, AvatarURL: u.AvatarURL}, nil
}

func (s *Service) currentUserID() string {
	if u := s.identity.User(); u != nil {
		return u.ID
	}
	return ""
}
