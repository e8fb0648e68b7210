package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"tush00nka/teledrive/internal/model"
)

// UploadRepository is the upload journal.
type UploadRepository interface {
	Begin(ctx context.Context, rec *model.UploadRecord) error
	Finish(ctx context.Context, localID string, status model.UploadStatus, remoteID, message string) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]model.UploadRecord, error)
}

type uploadRepository struct {
	db *gorm.DB
}

func NewUploadRepository(db *gorm.DB) UploadRepository {
	return &uploadRepository{db: db}
}

func (r *uploadRepository) Begin(ctx context.Context, rec *model.UploadRecord) error {
	if rec.ProvisionalID == "" {
		return fmt.Errorf("upload record without local id")
	}
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *uploadRepository) Finish(ctx context.Context, localID string, status model.UploadStatus, remoteID, message string) error {
	res := r.db.WithContext(ctx).
		Model(&model.UploadRecord{}).
		Where("provisional_id = ?", localID).
		Updates(map[string]any{
			"status":    status,
			"remote_id": remoteID,
			"message":   message,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("upload %s: %w", localID, gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *uploadRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]model.UploadRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var recs []model.UploadRecord
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at desc").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}
