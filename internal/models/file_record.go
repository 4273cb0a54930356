package models

import "time"

// StorageKind tells how a record's StorageRef is interpreted.
type StorageKind string

const (
	StoragePlatformFile StorageKind = "platform_file"
	StorageURL          StorageKind = "url"
	StorageLocal        StorageKind = "local"
)

// FileRecord maps an access code to a stored file reference.
type FileRecord struct {
	AccessCode  string         `json:"access_code"`
	StorageKind StorageKind    `json:"storage_kind"`
	StorageRef  string         `json:"storage_ref"`
	Platform    Platform       `json:"platform"`
	Kind        AttachmentKind `json:"kind"`
	DisplayName string         `json:"display_name"`
	ContentType string         `json:"content_type"`
	SizeBytes   int64          `json:"size_bytes"`
	UploadedBy  string         `json:"uploaded_by"`
	CreatedAt   time.Time      `json:"created_at"`
}
