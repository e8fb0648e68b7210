package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"tush00nka/teledrive/internal/model"
	"tush00nka/teledrive/internal/pkg/httputils"
	"tush00nka/teledrive/internal/service"
)

// StreamDropper closes the live notice streams of a session.
type StreamDropper interface {
	Drop(sessionID string)
}

type AuthHandler struct {
	sessions service.GallerySessions
	streams  StreamDropper
}

func NewAuthHandler(sessions service.GallerySessions, streams StreamDropper) *AuthHandler {
	return &AuthHandler{sessions: sessions, streams: streams}
}

func (h *AuthHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/send_code", h.sendCode).Methods("POST", "OPTIONS")
	router.HandleFunc("/auth/sign_in", h.signIn).Methods("POST", "OPTIONS")
	router.HandleFunc("/auth/status", h.status).Methods("GET", "OPTIONS")
	router.HandleFunc("/auth/logout", h.logout).Methods("POST", "OPTIONS")
}

type SendCodeRequest struct {
	PhoneNumber string `json:"phone_number"`
}

type SignInRequest struct {
	Code string `json:"code"`
}

type SignInResponse struct {
	Message string      `json:"message"`
	User    *model.User `json:"user,omitempty"`
}

// @Summary Send code
// @Description Ask Telegram to send a login code to the phone number
// @ID send-code
// @Tags auth
// @Accept json
// @Produce json
// @Param request body SendCodeRequest true "Phone number"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} httputils.ErrorResponse
// @Failure 429 {object} httputils.ErrorResponse
// @Failure 502 {object} httputils.ErrorResponse
// @Failure 503 {object} httputils.ErrorResponse
// @Router /auth/send_code [post]
func (h *AuthHandler) sendCode(w http.ResponseWriter, r *http.Request) {
	s, ok := mustSession(w, r)
	if !ok {
		return
	}

	var request SendCodeRequest
	if err := httputils.DecodeJSON(r, &request); err != nil {
		httputils.ResponseError(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	msg, err := h.sessions.StartLogin(r.Context(), s, request.PhoneNumber)
	if err != nil {
		writeError(w, err)
		return
	}

	httputils.ResponseJSON(w, http.StatusOK, MessageResponse{Message: msg})
}

// @Summary Sign in
// @Description Verify the login code sent to Telegram
// @ID sign-in
// @Tags auth
// @Accept json
// @Produce json
// @Param request body SignInRequest true "Login code"
// @Success 200 {object} SignInResponse
// @Failure 400 {object} httputils.ErrorResponse
// @Failure 401 {object} httputils.ErrorResponse
// @Failure 502 {object} httputils.ErrorResponse
// @Router /auth/sign_in [post]
func (h *AuthHandler) signIn(w http.ResponseWriter, r *http.Request) {
	s, ok := mustSession(w, r)
	if !ok {
		return
	}

	var request SignInRequest
	if err := httputils.DecodeJSON(r, &request); err != nil {
		httputils.ResponseError(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	user, msg, err := h.sessions.VerifyLogin(r.Context(), s, request.Code)
	if err != nil {
		writeError(w, err)
		return
	}

	httputils.ResponseJSON(w, http.StatusOK, SignInResponse{Message: msg, User: user})
}

// @Summary Auth status
// @Description Whether the session is logged in to Telegram
// @ID auth-status
// @Tags auth
// @Produce json
// @Success 200 {object} model.AuthStatus
// @Failure 502 {object} httputils.ErrorResponse
// @Failure 503 {object} httputils.ErrorResponse
// @Router /auth/status [get]
func (h *AuthHandler) status(w http.ResponseWriter, r *http.Request) {
	s, ok := mustSession(w, r)
	if !ok {
		return
	}

	status, err := h.sessions.Status(r.Context(), s)
	if err != nil {
		writeError(w, err)
		return
	}

	httputils.ResponseJSON(w, http.StatusOK, status)
}

// @Summary Logout
// @Description Log out of Telegram and clear the gallery
// @ID logout
// @Tags auth
// @Produce json
// @Success 200 {object} MessageResponse
// @Failure 502 {object} httputils.ErrorResponse
// @Router /auth/logout [post]
func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	s, ok := mustSession(w, r)
	if !ok {
		return
	}

	err := h.sessions.Logout(r.Context(), s)
	if h.streams != nil {
		h.streams.Drop(s.ID())
	}
	if err != nil {
		writeError(w, err)
		return
	}

	httputils.ResponseJSON(w, http.StatusOK, MessageResponse{Message: "Logged out successfully"})
}
