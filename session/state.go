package session

// State is the session lifecycle state. Transitions:
//
//	Unauthenticated -> Authenticating -> Authenticated -> Refreshing -> Authenticated
//	                                                   -> Refreshing -> Unauthenticated
//	Authenticated   -> Unauthenticated (logout, unrecoverable refresh failure)
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticating  State = "authenticating"
	StateAuthenticated   State = "authenticated"
	StateRefreshing      State = "refreshing"
)

// busy reports whether an auth transition is already in progress, which
// blocks a new login attempt.
func (s State) busy() bool {
	return s == StateAuthenticating || s == StateRefreshing
}
