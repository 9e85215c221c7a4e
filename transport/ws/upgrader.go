// Package ws holds the websocket transports. Subpackages carry one
// implementation each so a binary links only the library it uses.
package ws

import (
	"net/http"

	"github.com/vipnode/asyncrpc/transport"
)

// Upgrader takes an HTTP request, upgrades it to a websocket server and
// returns the connection. This allows switching between different websocket
// implementations.
type Upgrader interface {
	Upgrade(*http.Request, http.ResponseWriter, http.Header) (transport.Conn, error)
}
