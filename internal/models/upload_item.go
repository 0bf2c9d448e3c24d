package models

import "time"

// ItemStatus represents the lifecycle state of an upload item.
type ItemStatus string

const (
	ItemStatusUploading  ItemStatus = "uploading"
	ItemStatusProcessing ItemStatus = "processing"
	ItemStatusCompleted  ItemStatus = "completed"
	ItemStatusError      ItemStatus = "error"
)

// Terminal reports whether the status is a terminal state.
func (s ItemStatus) Terminal() bool {
	return s == ItemStatusCompleted || s == ItemStatusError
}

// UploadItem tracks one video through the upload/analysis pipeline.
// The ID is generated when the validator accepts the file and never changes.
// Exactly one of Result/Error is set once the item leaves the processing
// state; Progress is only meaningful while uploading.
type UploadItem struct {
	ID          string          `json:"id"`
	FileName    string          `json:"fileName"`
	Size        int64           `json:"size"`
	MimeType    string          `json:"mimeType"`
	Status      ItemStatus      `json:"status"`
	Progress    float64         `json:"progress"` // 0-100
	Result      *AnalysisResult `json:"analysisResult,omitempty"`
	Error       string          `json:"error,omitempty"`
	FileID      string          `json:"fileId,omitempty"` // storage ID; empty for URL submissions
	VideoURL    string          `json:"videoUrl,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

// NewUploadItem creates an item in the uploading state.
func NewUploadItem(id, fileName string, size int64, mimeType string) *UploadItem {
	return &UploadItem{
		ID:        id,
		FileName:  fileName,
		Size:      size,
		MimeType:  mimeType,
		Status:    ItemStatusUploading,
		Progress:  0,
		CreatedAt: time.Now(),
	}
}
