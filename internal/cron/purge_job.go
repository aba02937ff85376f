package cron

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/mtuci/autonotes-backend/pkg/db/models"
	"github.com/mtuci/autonotes-backend/pkg/logger"
)

const (
	purgeJobName = "soft-delete-purger"
	purgePage    = 50
)

type purgeRepository interface {
	FindSoftDeletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Note, error)
	HardDeleteTx(tx *gorm.DB, id uuid.UUID) error
}

type blobDeleter interface {
	DeleteObject(ctx context.Context, path string) error
}

// PurgeJob hard-deletes notes whose soft-delete retention has lapsed. Storage
// goes first: the DB row is only removed once every blob is gone, so a failed
// blob delete leaves the note for the next sweep instead of orphaning data.
type PurgeJob struct {
	tx        txRunner
	repo      purgeRepository
	storage   blobDeleter
	retention time.Duration
	logg      *logger.Logger
}

type PurgeJobParams struct {
	Tx        txRunner
	Repo      purgeRepository
	Storage   blobDeleter
	Retention time.Duration
	Logger    *logger.Logger
}

func NewPurgeJob(params PurgeJobParams) (*PurgeJob, error) {
	if params.Tx == nil {
		return nil, errors.New("tx runner is required")
	}
	if params.Repo == nil {
		return nil, errors.New("note repository is required")
	}
	if params.Storage == nil {
		return nil, errors.New("blob store is required")
	}
	if params.Retention <= 0 {
		return nil, errors.New("retention must be positive")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &PurgeJob{
		tx:        params.Tx,
		repo:      params.Repo,
		storage:   params.Storage,
		retention: params.Retention,
		logg:      params.Logger,
	}, nil
}

func (j *PurgeJob) Name() string {
	return purgeJobName
}

func (j *PurgeJob) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-j.retention)
	purged, skipped := 0, 0

	for {
		page, err := j.repo.FindSoftDeletedBefore(ctx, cutoff, purgePage)
		if err != nil {
			return err
		}

		pagePurged := 0
		for _, note := range page {
			if err := j.purgeNote(ctx, note); err != nil {
				skipped++
				j.logg.Warn(j.logg.WithNoteID(ctx, note.ID.String()),
					"leaving note for next purge sweep: "+err.Error())
				continue
			}
			pagePurged++
		}
		purged += pagePurged

		// skipped notes stay in the window, so re-querying after a page
		// that shrank nothing would return the same stragglers forever
		if len(page) < purgePage || pagePurged == 0 {
			break
		}
	}

	if purged > 0 || skipped > 0 {
		ctx = j.logg.WithFields(ctx, map[string]any{"purged": purged, "skipped": skipped})
		j.logg.Info(ctx, "purged expired soft-deleted notes")
	}
	return nil
}

func (j *PurgeJob) purgeNote(ctx context.Context, note models.Note) error {
	var blobErr error
	for _, image := range note.Images {
		if err := j.storage.DeleteObject(ctx, image.StoragePath); err != nil {
			blobErr = multierr.Append(blobErr, err)
		}
	}
	if blobErr != nil {
		return blobErr
	}

	return j.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return j.repo.HardDeleteTx(tx, note.ID)
	})
}
