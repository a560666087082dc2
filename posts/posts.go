// Package posts holds the post and comment models, the vote arithmetic,
// and the mutation operations that act on them.
package posts

import "time"

// Author identifies who wrote a post or comment.
type Author struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Post is a community post as presented to the UI.
type Post struct {
	ID           string    `json:"id"`
	CommunityID  string    `json:"communityId"`
	Author       Author    `json:"author"`
	Title        string    `json:"title"`
	Body         string    `json:"body,omitempty"`
	Tally                  // upvotes, downvotes, userVote
	CommentCount int       `json:"commentCount"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Comment is a reply to a post.
type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"postId"`
	Author    Author    `json:"author"`
	Body      string    `json:"body"`
	Tally     // upvotes, downvotes, userVote
	CreatedAt time.Time `json:"createdAt"`
}

// OwnedBy reports whether the post was written by the given user.
func (p Post) OwnedBy(userID string) bool {
	return userID != "" && p.Author.ID == userID
}

// OwnedBy reports whether the comment was written by the given user.
func (c Comment) OwnedBy(userID string) bool {
	return userID != "" && c.Author.ID == userID
}
