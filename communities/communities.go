// Package communities holds the community model, the membership
// arithmetic, and the join/leave mutations.
package communities

import "time"

// Community is a campus community as presented to the UI.
type Community struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	MemberCount int       `json:"memberCount"`
	IsMember    bool      `json:"isMember"`
	PostCount   int       `json:"postCount"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
}

// Joined returns the community after the user joins it. IsMember and
// MemberCount always move together: joining an already-joined community is
// a no-op, otherwise the count moves by exactly one.
func (c Community) Joined() Community {
	if c.IsMember {
		return c
	}
	c.IsMember = true
	c.MemberCount++
	return c
}

// Left returns the community after the user leaves it, the inverse of
// Joined.
func (c Community) Left() Community {
	if !c.IsMember {
		return c
	}
	c.IsMember = false
	c.MemberCount--
	return c
}
