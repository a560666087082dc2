// Package users holds the authenticated user model and profile operations.
package users

import "time"

// User is the per-session snapshot of the signed-in student's profile. It
// is immutable for the lifetime of a session and replaced wholesale when
// re-fetched.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Username      string    `json:"username"`
	FirstName     string    `json:"firstName,omitempty"`
	LastName      string    `json:"lastName,omitempty"`
	StudentNumber string    `json:"studentNumber,omitempty"`
	AvatarURL     string    `json:"avatarUrl,omitempty"`
	CreatedAt     time.Time `json:"createdAt,omitempty"`
}

// DisplayName prefers the real name and falls back to the username.
func (u User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Username
	}
}
