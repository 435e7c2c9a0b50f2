package websocket

import (
	"net/http"

	ws "github.com/coder/websocket"
)

// Handler upgrades requests and serves them as hub clients. originPatterns
// lists extra hosts allowed to connect; same-origin is always allowed.
func Handler(hub *Hub, originPatterns ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, &ws.AcceptOptions{OriginPatterns: originPatterns})
		if err != nil {
			hub.logger.Warn("websocket accept failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		defer conn.CloseNow()

		NewClient(hub, conn).Run(r.Context())
	}
}
