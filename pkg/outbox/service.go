package outbox

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mtuci/autonotes-backend/pkg/db/models"
	"github.com/mtuci/autonotes-backend/pkg/enums"
)

type eventInserter interface {
	InsertTx(tx *gorm.DB, event *models.OutboxEvent) error
}

// Service writes domain events into the outbox table. Callers pass their own
// transaction so the event commits or rolls back with the aggregate.
type Service struct {
	repo eventInserter
}

type ServiceParams struct {
	Repo eventInserter
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("outbox repository is required")
	}
	return &Service{repo: params.Repo}, nil
}

// Emit serializes payload and appends it to the outbox inside tx.
func (s *Service) Emit(tx *gorm.DB, aggregateID uuid.UUID, eventType enums.OutboxEventType, payload any) error {
	if !eventType.IsValid() {
		return fmt.Errorf("invalid outbox event type: %s", eventType)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling outbox payload: %w", err)
	}

	event := &models.OutboxEvent{
		AggregateID: aggregateID,
		EventType:   eventType,
		Payload:     body,
	}
	return s.repo.InsertTx(tx, event)
}
