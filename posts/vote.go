package posts

// VoteDirection is the signed-in user's net vote on a post or comment.
type VoteDirection string

const (
	VoteUp   VoteDirection = "up"
	VoteDown VoteDirection = "down"
	VoteNone VoteDirection = "none"
)

// Tally carries the vote counts and the current user's direction. It is
// embedded in Post and Comment so both share one set of arithmetic.
//
// Invariant: UserVote reflects at most one net vote unit contributed by the
// current user. Toggle preserves it for every click sequence.
type Tally struct {
	Upvotes   int           `json:"upvotes"`
	Downvotes int           `json:"downvotes"`
	UserVote  VoteDirection `json:"userVote"`
}

// Toggle applies one click of the given direction and returns the resulting
// tally. Clicking the active direction clears the vote; clicking the
// opposite direction moves exactly one unit off the old side and one onto
// the new side, in a single step. This is the same arithmetic the server
// applies, so the result doubles as the optimistic prediction.
func (t Tally) Toggle(clicked VoteDirection) Tally {
	current := t.UserVote
	if current == "" {
		current = VoteNone
	}
	if clicked == current {
		clicked = VoteNone
	}

	next := t
	switch current {
	case VoteUp:
		next.Upvotes--
	case VoteDown:
		next.Downvotes--
	}
	switch clicked {
	case VoteUp:
		next.Upvotes++
	case VoteDown:
		next.Downvotes++
	}
	next.UserVote = clicked
	return next
}
