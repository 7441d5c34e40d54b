// Package identity resolves connection handshakes to authenticated users.
package identity

import "net/http"

type User struct {
	ID       int64
	Username string
}

// Provider resolves the identity attached to an incoming request. The
// second return value is false when the request carries no valid identity.
type Provider interface {
	Resolve(r *http.Request) (User, bool)
}
