package service

import (
	"context"

	"tush00nka/teledrive/internal/gallery"
	"tush00nka/teledrive/internal/model"
)

// GallerySessions is what the HTTP layer needs from the session service.
type GallerySessions interface {
	Open(ctx context.Context, token string) (*Session, string, error)
	StartLogin(ctx context.Context, s *Session, phone string) (string, error)
	VerifyLogin(ctx context.Context, s *Session, code string) (*model.User, string, error)
	Status(ctx context.Context, s *Session) (model.AuthStatus, error)
	Logout(ctx context.Context, s *Session) error
	Mount(ctx context.Context, s *Session) gallery.AuthState
	Upload(ctx context.Context, s *Session, req gallery.UploadRequest) (gallery.UploadResult, error)
}

// PreviewStore stages upload bytes for transient previews.
type PreviewStore interface {
	gallery.PreviewStager
	HealthCheck(ctx context.Context) error
}
