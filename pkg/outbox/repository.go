package outbox

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mtuci/autonotes-backend/pkg/db/models"
)

// Repository owns persistence for outbox rows. All operations run on a
// caller-provided transaction so event writes can share the aggregate's tx.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// InsertTx appends an event row inside the caller's transaction.
func (r *Repository) InsertTx(tx *gorm.DB, event *models.OutboxEvent) error {
	if tx == nil {
		return errors.New("tx is required")
	}
	if event == nil {
		return errors.New("event is required")
	}
	if err := tx.Create(event).Error; err != nil {
		return fmt.Errorf("inserting outbox event: %w", err)
	}
	return nil
}

// FetchBatchTx claims up to limit of the oldest pending events. SKIP LOCKED
// lets concurrent publisher replicas drain disjoint batches without blocking
// each other; the creation-order sort keeps per-aggregate FIFO within a batch.
func (r *Repository) FetchBatchTx(tx *gorm.DB, limit int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errors.New("tx is required")
	}
	if limit <= 0 {
		return nil, nil
	}

	var events []models.OutboxEvent
	err := tx.
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("fetching outbox batch: %w", err)
	}
	return events, nil
}

// DeleteBatchTx removes published (or poison) rows in one statement.
func (r *Repository) DeleteBatchTx(tx *gorm.DB, ids []uuid.UUID) error {
	if tx == nil {
		return errors.New("tx is required")
	}
	if len(ids) == 0 {
		return nil
	}
	if err := tx.Where("id IN ?", ids).Delete(&models.OutboxEvent{}).Error; err != nil {
		return fmt.Errorf("deleting outbox batch: %w", err)
	}
	return nil
}
