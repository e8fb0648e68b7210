package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tush00nka/teledrive/internal/pkg/httputils"
	"tush00nka/teledrive/internal/ws"
)

type NoticeHandler struct {
	hub      *ws.Hub
	upgrader *websocket.Upgrader
	log      *zap.SugaredLogger
}

func NewNoticeHandler(hub *ws.Hub, allowedOrigins []string, log *zap.SugaredLogger) *NoticeHandler {
	return &NoticeHandler{
		hub:      hub,
		upgrader: ws.NewUpgrader(allowedOrigins),
		log:      log,
	}
}

func (h *NoticeHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/notices", h.drain).Methods("GET", "OPTIONS")
	router.HandleFunc("/notices/ws", h.stream).Methods("GET")
}

// @Summary Notices
// @Description Drain the notices raised since the last call
// @ID notices
// @Tags notices
// @Produce json
// @Success 200 {array} model.Notice
// @Router /notices [get]
func (h *NoticeHandler) drain(w http.ResponseWriter, r *http.Request) {
	s, ok := mustSession(w, r)
	if !ok {
		return
	}
	httputils.ResponseJSON(w, http.StatusOK, s.Controller.Notices())
}

// @Summary Notice stream
// @Description Websocket stream of notices as they are raised
// @ID notices-ws
// @Tags notices
// @Router /notices/ws [get]
func (h *NoticeHandler) stream(w http.ResponseWriter, r *http.Request) {
	s, ok := mustSession(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade уже ответил клиенту
		h.log.Debugw("websocket upgrade failed", "error", err)
		return
	}

	h.hub.Serve(r.Context(), conn, s.ID())
}
