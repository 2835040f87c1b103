package roster

import (
	"net/http"

	"github.com/gorilla/websocket"
)

// Handler upgrades GET /ws/nodes and hands the socket to the hub. The server
// never reads client frames; the read pump exists only to notice the close.
func Handler(hub *Hub, allowedOrigins []string) http.HandlerFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// Non-browser clients send no Origin header.
			return origin == "" || allowed[origin] || allowed["*"]
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.log.Debug().Err(err).Msg("websocket upgrade failed")
			return
		}

		hub.Subscribe(conn)

		go func() {
			defer hub.Unsubscribe(conn)
			for {
				// Discard anything the client sends; an error means
				// the socket is gone.
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}
