package server

import (
	"net/http"

	"multitrack/core/progress"
	"multitrack/logger"
)

// handleProgress upgrades to a WebSocket that streams the caller's publish
// progress. Browsers cannot set headers on WebSocket requests, so the token
// comes in the query string.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	claims, err := s.deps.Issuer.Parse(r.URL.Query().Get("token"))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid token")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("[Server] WebSocket 升级失败", logger.ErrorField(err))
		return
	}

	client := progress.NewClient(s.deps.Hub, conn, claims.Owner)
	s.deps.Hub.Register(client)
	go client.WritePump()
	client.ReadPump(r.Context())
}
