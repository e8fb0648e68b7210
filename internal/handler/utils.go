package handler

import (
	"errors"
	"net/http"

	"tush00nka/teledrive/internal/backend"
	"tush00nka/teledrive/internal/gallery"
	"tush00nka/teledrive/internal/pkg/httputils"
	"tush00nka/teledrive/internal/service"
)

type PongResponse struct {
	Message string `json:"message"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// Ping
// @Summary Пингануть сервер
// @Description Проверка, что сервер жив
// @Tags system
// @Produce json
// @Success 200 {object} PongResponse
// @Router /ping [get]
func Ping(w http.ResponseWriter, r *http.Request) {
	httputils.ResponseJSON(w, http.StatusOK, PongResponse{Message: "Pong"})
}

// writeError maps service errors onto HTTP statuses. The body always carries
// a message that is safe to show to the user.
func writeError(w http.ResponseWriter, err error) {
	var validation *gallery.ValidationError
	if errors.As(err, &validation) {
		httputils.ResponseFieldError(w, http.StatusBadRequest, validation.Field, validation.Message)
		return
	}

	if errors.Is(err, service.ErrRateLimited) {
		httputils.ResponseError(w, http.StatusTooManyRequests, "Too many attempts. Please wait a minute and try again.")
		return
	}

	status := http.StatusInternalServerError
	message := "An unexpected error occurred."

	var remote *backend.RemoteError
	var network *backend.NetworkError
	switch {
	case errors.As(err, &remote):
		status = http.StatusBadGateway
		if remote.Unauthorized() {
			status = http.StatusUnauthorized
		}
		message = remote.Message
	case errors.As(err, &network):
		status = http.StatusServiceUnavailable
		message = "Could not reach the TeleDrive server. Please try again."
	}

	// у ошибки загрузки своё сообщение для пользователя
	var upload *gallery.UploadError
	if errors.As(err, &upload) && upload.Message != "" {
		message = upload.Message
	}

	httputils.ResponseError(w, status, message)
}
