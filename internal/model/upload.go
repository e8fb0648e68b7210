package model

import "gorm.io/gorm"

type UploadStatus string

const (
	UploadPending     UploadStatus = "pending"
	UploadConfirmed   UploadStatus = "confirmed"
	UploadProvisional UploadStatus = "provisional"
	UploadFailed      UploadStatus = "failed"
)

// UploadRecord is one row of the upload journal.
type UploadRecord struct {
	gorm.Model
	ProvisionalID string       `gorm:"uniqueIndex;size:64" json:"provisional_id"`
	RemoteID      string       `gorm:"index;size:128" json:"remote_id"`
	SessionID     string       `gorm:"index;size:64" json:"session_id"`
	FileName      string       `gorm:"size:100" json:"file_name"`
	ContentType   string       `json:"content_type"`
	SizeBytes     int64        `json:"size_bytes"`
	Status        UploadStatus `gorm:"size:16" json:"status"`
	Message       string       `json:"message"`
}
