package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/mtuci/autonotes-backend/pkg/enums"
)

// OutboxEvent is a pending domain event written in the same transaction as
// its aggregate. Rows are owned by the publisher once fetched and are
// deleted after a durable hand-off to the broker (or immediately when the
// payload is poison).
type OutboxEvent struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AggregateID uuid.UUID             `gorm:"column:aggregate_id;type:uuid;not null"`
	EventType   enums.OutboxEventType `gorm:"column:event_type;not null"`
	Payload     json.RawMessage       `gorm:"column:payload;type:jsonb;not null"`
	CreatedAt   time.Time             `gorm:"column:created_at;autoCreateTime"`
}
