// Package credstore persists the two session credential strings. Nothing
// else about the session is durable: the user snapshot is re-fetched on
// every bootstrap.
package credstore

import "errors"

var (
	ErrNotFound = errors.New("no persisted credentials")

	// ErrPartialPair guards the invariant that an access credential is
	// never stored without its refresh credential.
	ErrPartialPair = errors.New("refusing to persist partial credential pair")
)

// Credentials is the persisted pair.
type Credentials struct {
	Access  string `json:"access_credential"`
	Refresh string `json:"refresh_credential"`
}

// Store is the durable home of exactly one credential pair.
type Store interface {
	Load() (*Credentials, error)
	Save(creds Credentials) error
	Clear() error
}
