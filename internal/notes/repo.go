package notes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mtuci/autonotes-backend/pkg/db"
	"github.com/mtuci/autonotes-backend/pkg/db/models"
	"github.com/mtuci/autonotes-backend/pkg/enums"
)

// ErrNoteNotFound is returned for reads that match no live note.
var ErrNoteNotFound = errors.New("note not found")

// Repository owns note persistence. Reads exclude soft-deleted rows unless
// the method name says otherwise; the purger is the only consumer of the
// soft-deleted set.
type Repository struct {
	client *db.Client
}

type RepositoryParams struct {
	Client *db.Client
}

func NewRepository(params RepositoryParams) (*Repository, error) {
	if params.Client == nil {
		return nil, errors.New("db client is required")
	}
	return &Repository{client: params.Client}, nil
}

func live(conn *gorm.DB) *gorm.DB {
	return conn.Where("deleted_at IS NULL")
}

// CreateWithImagesTx persists a note together with its images inside the
// caller's transaction.
func (r *Repository) CreateWithImagesTx(tx *gorm.DB, note *models.Note) error {
	if tx == nil {
		return errors.New("tx is required")
	}
	if err := tx.Create(note).Error; err != nil {
		return fmt.Errorf("creating note: %w", err)
	}
	return nil
}

// FindByIDAndOwner loads a live note with its images, scoped to the owner.
func (r *Repository) FindByIDAndOwner(ctx context.Context, id, ownerID uuid.UUID) (*models.Note, error) {
	var note models.Note
	err := live(r.client.DB().WithContext(ctx)).
		Preload("Images", func(q *gorm.DB) *gorm.DB { return q.Order("order_index ASC") }).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding note: %w", err)
	}
	return &note, nil
}

// ListByOwner returns the owner's live notes, newest first.
func (r *Repository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Note, error) {
	var result []models.Note
	err := live(r.client.DB().WithContext(ctx)).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&result).Error
	if err != nil {
		return nil, fmt.Errorf("listing notes: %w", err)
	}
	return result, nil
}

// FindLiveForUpdateTx locks a live note row for the rest of the transaction.
// Used by the result consumer so the status guard and the update are atomic.
func (r *Repository) FindLiveForUpdateTx(tx *gorm.DB, id uuid.UUID) (*models.Note, error) {
	if tx == nil {
		return nil, errors.New("tx is required")
	}
	var note models.Note
	err := live(tx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("locking note: %w", err)
	}
	return &note, nil
}

// UpdateResultTx writes the terminal status and result texts for a note.
func (r *Repository) UpdateResultTx(tx *gorm.DB, id uuid.UUID, status enums.NoteStatus, recognized, summary *string) error {
	if tx == nil {
		return errors.New("tx is required")
	}
	updates := map[string]any{
		"status":          status,
		"recognized_text": recognized,
		"summary_text":    summary,
		"updated_at":      time.Now().UTC(),
	}
	if err := tx.Model(&models.Note{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("updating note result: %w", err)
	}
	return nil
}

// SoftDelete hides a live note from reads. Idempotent: deleting an already
// soft-deleted note reports not found, matching the read surface.
func (r *Repository) SoftDelete(ctx context.Context, id, ownerID uuid.UUID) error {
	result := live(r.client.DB().WithContext(ctx)).
		Model(&models.Note{}).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Update("deleted_at", time.Now().UTC())
	if result.Error != nil {
		return fmt.Errorf("soft deleting note: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNoteNotFound
	}
	return nil
}

// FindStuckBeforeTx claims a page of notes still PROCESSING past the cutoff.
// SKIP LOCKED keeps concurrent reaper replicas off each other's pages.
func (r *Repository) FindStuckBeforeTx(tx *gorm.DB, cutoff time.Time, limit int) ([]models.Note, error) {
	if tx == nil {
		return nil, errors.New("tx is required")
	}
	var result []models.Note
	err := live(tx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ? AND updated_at < ?", enums.NoteStatusProcessing, cutoff).
		Limit(limit).
		Find(&result).Error
	if err != nil {
		return nil, fmt.Errorf("finding stuck notes: %w", err)
	}
	return result, nil
}

// FindSoftDeletedBefore returns a page of notes soft-deleted before the
// cutoff, images preloaded so the purger can clear storage first.
func (r *Repository) FindSoftDeletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Note, error) {
	var result []models.Note
	err := r.client.DB().WithContext(ctx).
		Preload("Images").
		Where("deleted_at IS NOT NULL AND deleted_at < ?", cutoff).
		Order("deleted_at ASC").
		Limit(limit).
		Find(&result).Error
	if err != nil {
		return nil, fmt.Errorf("finding soft-deleted notes: %w", err)
	}
	return result, nil
}

// HardDeleteTx removes a note row permanently. Images cascade in the schema.
func (r *Repository) HardDeleteTx(tx *gorm.DB, id uuid.UUID) error {
	if tx == nil {
		return errors.New("tx is required")
	}
	if err := tx.Unscoped().Where("id = ?", id).Delete(&models.Note{}).Error; err != nil {
		return fmt.Errorf("hard deleting note: %w", err)
	}
	return nil
}

// FilterExistingPaths returns which of the candidate storage paths are still
// referenced by any image row, soft-deleted notes included. The storage GC
// must not collect blobs the purger has yet to visit.
func (r *Repository) FilterExistingPaths(ctx context.Context, paths []string) (map[string]struct{}, error) {
	if len(paths) == 0 {
		return map[string]struct{}{}, nil
	}
	var existing []string
	err := r.client.DB().WithContext(ctx).
		Model(&models.NoteImage{}).
		Where("storage_path IN ?", paths).
		Pluck("storage_path", &existing).Error
	if err != nil {
		return nil, fmt.Errorf("checking referenced paths: %w", err)
	}
	set := make(map[string]struct{}, len(existing))
	for _, p := range existing {
		set[p] = struct{}{}
	}
	return set, nil
}
