package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/agentdeck/agentdeck/internal/logging"
	"github.com/agentdeck/agentdeck/internal/transport"
)

// serveWS upgrades the connection and hands it to the multiplexer. The
// origin allow-list and the optional auth token are checked before the
// upgrade so rejected clients get a plain HTTP status, not a dead socket.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	if !s.originAllowed(r) {
		logging.Warn().Str("origin", r.Header.Get("Origin")).Msg("websocket origin rejected")
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(*http.Request) bool { return true }, // checked above
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := transport.NewWSConn(ws)
	s.mux.Add(conn)
	go conn.ReadLoop(s.mux)
}

// originAllowed checks the Origin header against the allow-list. Requests
// without an Origin header (non-browser clients) are always allowed; an
// empty allow-list admits same-host origins only.
func (s *Server) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if len(s.config.AllowedOrigins) == 0 {
		return u.Host == r.Host
	}
	for _, allowed := range s.config.AllowedOrigins {
		if allowed == "*" || allowed == origin || allowed == u.Host {
			return true
		}
	}
	return false
}

// authorized checks the configured token against the Authorization header or
// the token query parameter. An empty configured token disables the check.
func (s *Server) authorized(r *http.Request) bool {
	if s.config.AuthToken == "" {
		return true
	}
	header := r.Header.Get("Authorization")
	if strings.TrimPrefix(header, "Bearer ") == s.config.AuthToken {
		return true
	}
	return r.URL.Query().Get("token") == s.config.AuthToken
}
