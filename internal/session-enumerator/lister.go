package session_enumerator

import "context"

// SessionLister returns the raw lines of the local session table listing.
type SessionLister interface {
	ListSessions(ctx context.Context) ([]string, error)
}

// SessionListerFunc adapts a function to SessionLister.
type SessionListerFunc func(ctx context.Context) ([]string, error)

func (f SessionListerFunc) ListSessions(ctx context.Context) ([]string, error) {
	return f(ctx)
}
