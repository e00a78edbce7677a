package interfaces

import (
	"net/http"

	"classbridge/pkg/types"
)

// Authenticator turns a connection handshake into an identity.
// ARCHITECTURAL DISCOVERY: token verification is owned by the auth layer;
// the realtime core only ever sees the resulting identity
type Authenticator interface {
	Authenticate(r *http.Request) (types.Identity, error)
}
