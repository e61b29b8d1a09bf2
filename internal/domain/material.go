package domain

import (
	"time"
)

type OwnerType string

const (
	OwnerCourseMaterial     OwnerType = "courseMaterial"
	OwnerSubmissionMaterial OwnerType = "submissionMaterial"
)

type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusDone       ProcessingStatus = "done"
	StatusError      ProcessingStatus = "error"
)

// Material is a single uploaded document. ChunkCount and ExtractedTextLength
// are authoritative only once ProcessingStatus is done.
type Material struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CourseID     string    `gorm:"type:text;index" json:"courseId,omitempty"`
	SubmissionID string    `gorm:"type:text;index" json:"submissionId,omitempty"`
	OwnerType    OwnerType `gorm:"type:text;not null;default:'courseMaterial'" json:"ownerType"`
	Title        string    `gorm:"type:text;not null;default:'untitled'" json:"title"`
	SourceURL    string    `gorm:"column:source_url;type:text" json:"sourceUrl"`
	SourceKey    string    `gorm:"column:source_key;type:text" json:"sourceKey,omitempty"`
	FileType     string    `gorm:"type:text;not null;default:'application/octet-stream'" json:"fileType"`

	ProcessingStatus    ProcessingStatus `gorm:"type:text;not null;default:'pending';check:processing_status IN ('pending','processing','done','error')" json:"processingStatus"`
	ChunkCount          int              `gorm:"not null;default:0" json:"chunkCount"`
	ExtractedTextLength int              `gorm:"not null;default:0" json:"extractedTextLength"`

	UploadedAt time.Time `gorm:"not null;autoCreateTime" json:"uploadedAt"`
}

func (Material) TableName() string { return "materials" }

// Namespace maps a material's owner type to the vector index partition that
// holds its chunk vectors. Namespaces never share vector ids.
func (m *Material) Namespace() Namespace {
	if m.OwnerType == OwnerSubmissionMaterial {
		return NamespaceSubmission
	}
	return NamespaceCourse
}

type Namespace string

const (
	NamespaceCourse     Namespace = "course"
	NamespaceSubmission Namespace = "submission"
)

func ParseNamespace(s string) (Namespace, bool) {
	switch Namespace(s) {
	case NamespaceCourse, NamespaceSubmission:
		return Namespace(s), true
	}
	return "", false
}
