package ws

import (
	"net/http"
	"slices"

	"github.com/gorilla/websocket"
)

// NewUpgrader accepts any origin when allowed contains "*".
func NewUpgrader(allowed []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if slices.Contains(allowed, "*") {
				return true
			}
			origin := r.Header.Get("Origin")
			// запросы не из браузера приходят без Origin
			return origin == "" || slices.Contains(allowed, origin)
		},
	}
}
