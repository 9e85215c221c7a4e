package fakepeer

import (
	"net/http"

	"github.com/vipnode/asyncrpc/transport/ws"
)

// Server serves a new Peer on every websocket connection.
type Server struct {
	Upgrader ws.Upgrader
	// Setup configures each peer before it starts serving.
	Setup func(*Peer)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet || r.Header.Get("Upgrade") == "" {
		http.Error(w, "websocket upgrade required", http.StatusBadRequest)
		return
	}
	conn, err := s.Upgrader.Upgrade(r, w, nil)
	if err != nil {
		// The upgrader already replied.
		return
	}
	p := New(conn)
	if s.Setup != nil {
		s.Setup(p)
	}
	defer p.Close()
	p.Serve()
}
