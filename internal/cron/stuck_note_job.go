package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mtuci/autonotes-backend/pkg/db/models"
	"github.com/mtuci/autonotes-backend/pkg/enums"
	"github.com/mtuci/autonotes-backend/pkg/logger"
)

const (
	stuckNoteJobName = "stuck-note-reaper"
	stuckNotePage    = 100

	timeoutSummary = "Processing timed out. The server took too long to respond."
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type stuckNoteRepository interface {
	FindStuckBeforeTx(tx *gorm.DB, cutoff time.Time, limit int) ([]models.Note, error)
	UpdateResultTx(tx *gorm.DB, id uuid.UUID, status enums.NoteStatus, recognized, summary *string) error
}

// StuckNoteJob fails notes whose result never arrived. A lost result message
// would otherwise leave the note in PROCESSING forever.
type StuckNoteJob struct {
	tx      txRunner
	repo    stuckNoteRepository
	timeout time.Duration
	logg    *logger.Logger
}

type StuckNoteJobParams struct {
	Tx      txRunner
	Repo    stuckNoteRepository
	Timeout time.Duration
	Logger  *logger.Logger
}

func NewStuckNoteJob(params StuckNoteJobParams) (*StuckNoteJob, error) {
	if params.Tx == nil {
		return nil, errors.New("tx runner is required")
	}
	if params.Repo == nil {
		return nil, errors.New("note repository is required")
	}
	if params.Timeout <= 0 {
		return nil, errors.New("timeout must be positive")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &StuckNoteJob{
		tx:      params.Tx,
		repo:    params.Repo,
		timeout: params.Timeout,
		logg:    params.Logger,
	}, nil
}

func (j *StuckNoteJob) Name() string {
	return stuckNoteJobName
}

// Run sweeps in pages, each page in its own short transaction so a large
// backlog never holds row locks for long.
func (j *StuckNoteJob) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-j.timeout)
	total := 0

	for {
		reaped := 0
		err := j.tx.WithTx(ctx, func(tx *gorm.DB) error {
			stuck, err := j.repo.FindStuckBeforeTx(tx, cutoff, stuckNotePage)
			if err != nil {
				return err
			}
			for _, note := range stuck {
				summary := timeoutSummary
				if err := j.repo.UpdateResultTx(tx, note.ID, enums.NoteStatusFailed, nil, &summary); err != nil {
					return fmt.Errorf("failing note %s: %w", note.ID, err)
				}
			}
			reaped = len(stuck)
			return nil
		})
		if err != nil {
			return err
		}

		total += reaped
		if reaped < stuckNotePage {
			break
		}
	}

	if total > 0 {
		j.logg.Info(j.logg.WithField(ctx, "count", total), "failed timed-out notes")
	}
	return nil
}
