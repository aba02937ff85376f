package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mtuci/autonotes-backend/pkg/enums"
)

// Note is the lecture note aggregate root. DeletedAt marks a soft delete:
// while it is NULL the row is live; repository live reads filter on it.
type Note struct {
	ID             uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerID        uuid.UUID        `gorm:"column:owner_id;type:uuid;not null;index"`
	Title          string           `gorm:"column:title;not null"`
	Status         enums.NoteStatus `gorm:"column:status;type:note_status;not null"`
	RecognizedText *string          `gorm:"column:recognized_text"`
	SummaryText    *string          `gorm:"column:summary_text"`
	Images         []NoteImage      `gorm:"foreignKey:NoteID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time        `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt      *time.Time       `gorm:"column:deleted_at"`
}

// NoteImage is an owned child of Note. Images are appended at creation and
// never reordered afterwards.
type NoteImage struct {
	ID               uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	NoteID           uuid.UUID `gorm:"column:note_id;type:uuid;not null;index"`
	StoragePath      string    `gorm:"column:storage_path;not null;unique"`
	OriginalFileName string    `gorm:"column:original_file_name;not null"`
	OrderIndex       int       `gorm:"column:order_index;not null"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
}
