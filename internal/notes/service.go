package notes

import (
	"context"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/mtuci/autonotes-backend/pkg/config"
	"github.com/mtuci/autonotes-backend/pkg/db/models"
	"github.com/mtuci/autonotes-backend/pkg/enums"
	pkgerrors "github.com/mtuci/autonotes-backend/pkg/errors"
	"github.com/mtuci/autonotes-backend/pkg/logger"
)

const failedSummaryPrefix = "Processing failed: "
const unknownWorkerError = "Unknown ML Error"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type noteRepository interface {
	CreateWithImagesTx(tx *gorm.DB, note *models.Note) error
	FindByIDAndOwner(ctx context.Context, id, ownerID uuid.UUID) (*models.Note, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Note, error)
	FindLiveForUpdateTx(tx *gorm.DB, id uuid.UUID) (*models.Note, error)
	UpdateResultTx(tx *gorm.DB, id uuid.UUID, status enums.NoteStatus, recognized, summary *string) error
	SoftDelete(ctx context.Context, id, ownerID uuid.UUID) error
}

type eventEmitter interface {
	Emit(tx *gorm.DB, aggregateID uuid.UUID, eventType enums.OutboxEventType, payload any) error
}

type blobStore interface {
	UploadObject(ctx context.Context, path string, contentType string, data []byte) error
	DeleteObject(ctx context.Context, path string) error
}

// UploadFile is one image submitted with a note.
type UploadFile struct {
	Name string
	Data []byte
}

// Service implements note ingestion and the idempotent result handler.
type Service struct {
	tx      txRunner
	repo    noteRepository
	outbox  eventEmitter
	storage blobStore
	bucket  string
	cfg     config.NotesConfig
	logg    *logger.Logger
}

type ServiceParams struct {
	Tx      txRunner
	Repo    noteRepository
	Outbox  eventEmitter
	Storage blobStore
	Bucket  string
	Config  config.NotesConfig
	Logger  *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner is required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("note repository is required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service is required")
	}
	if params.Storage == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if params.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Service{
		tx:      params.Tx,
		repo:    params.Repo,
		outbox:  params.Outbox,
		storage: params.Storage,
		bucket:  params.Bucket,
		cfg:     params.Config,
		logg:    params.Logger,
	}, nil
}

// Create uploads the images, then commits the note, its image rows and the
// NOTE_CREATED outbox event in one transaction. Uploads that precede a
// failure are compensated with best-effort deletes; a leaked blob is caught
// later by the storage sweep.
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, title string, files []UploadFile) (*models.Note, error) {
	if strings.TrimSpace(title) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if len(files) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one image is required")
	}

	maxBytes := int64(s.cfg.MaxUploadMB) << 20
	images := make([]models.NoteImage, 0, len(files))
	uploaded := make([]string, 0, len(files))

	for i, file := range files {
		if len(file.Data) == 0 {
			s.compensateUploads(ctx, uploaded)
			return nil, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("file %q is empty", file.Name))
		}
		if maxBytes > 0 && int64(len(file.Data)) > maxBytes {
			s.compensateUploads(ctx, uploaded)
			return nil, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("file %q exceeds the %dMB limit", file.Name, s.cfg.MaxUploadMB))
		}

		mtype := mimetype.Detect(file.Data)
		if !strings.HasPrefix(mtype.String(), "image/") {
			s.compensateUploads(ctx, uploaded)
			return nil, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("file %q is not an image", file.Name))
		}

		path := fmt.Sprintf("%s/%s%s", ownerID, uuid.New(), mtype.Extension())
		if err := s.storage.UploadObject(ctx, path, mtype.String(), file.Data); err != nil {
			s.compensateUploads(ctx, uploaded)
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "uploading image")
		}
		uploaded = append(uploaded, path)

		images = append(images, models.NoteImage{
			StoragePath:      path,
			OriginalFileName: file.Name,
			OrderIndex:       i,
		})
	}

	note := &models.Note{
		ID:      uuid.New(),
		OwnerID: ownerID,
		Title:   strings.TrimSpace(title),
		Status:  enums.NoteStatusProcessing,
		Images:  images,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.CreateWithImagesTx(tx, note); err != nil {
			return err
		}
		event := NoteProcessingEvent{
			NoteID: note.ID,
			Bucket: s.bucket,
			Paths:  uploaded,
		}
		return s.outbox.Emit(tx, note.ID, enums.EventNoteCreated, event)
	})
	if err != nil {
		s.compensateUploads(ctx, uploaded)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persisting note")
	}

	return note, nil
}

func (s *Service) compensateUploads(ctx context.Context, paths []string) {
	var combined error
	for _, path := range paths {
		if err := s.storage.DeleteObject(ctx, path); err != nil {
			combined = multierr.Append(combined, fmt.Errorf("deleting %s: %w", path, err))
		}
	}
	if combined != nil {
		s.logg.Warn(s.logg.WithField(ctx, "paths", paths), "failed to compensate uploads: "+combined.Error())
	}
}

// Get returns one of the owner's live notes with its images.
func (s *Service) Get(ctx context.Context, id, ownerID uuid.UUID) (*models.Note, error) {
	note, err := s.repo.FindByIDAndOwner(ctx, id, ownerID)
	if err == ErrNoteNotFound {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "note not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading note")
	}
	return note, nil
}

// List returns the owner's live notes, newest first.
func (s *Service) List(ctx context.Context, ownerID uuid.UUID) ([]models.Note, error) {
	result, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing notes")
	}
	return result, nil
}

// Delete soft-deletes a note. Blobs and the row itself are removed later by
// the retention sweep.
func (s *Service) Delete(ctx context.Context, id, ownerID uuid.UUID) error {
	err := s.repo.SoftDelete(ctx, id, ownerID)
	if err == ErrNoteNotFound {
		return pkgerrors.New(pkgerrors.CodeNotFound, "note not found")
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deleting note")
	}
	return nil
}

// ApplyResult records a worker verdict. Only a note still in PROCESSING is
// touched; redeliveries, late results for reaped notes and results for
// deleted notes all fall through as no-ops.
func (s *Service) ApplyResult(ctx context.Context, event *NoteResultEvent) error {
	ctx = s.logg.WithNoteID(ctx, event.NoteID.String())

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		note, err := s.repo.FindLiveForUpdateTx(tx, event.NoteID)
		if err == ErrNoteNotFound {
			s.logg.Info(ctx, "result for unknown or deleted note, skipping")
			return nil
		}
		if err != nil {
			return err
		}
		if note.Status != enums.NoteStatusProcessing {
			s.logg.Info(ctx, "note already finalized, skipping duplicate result")
			return nil
		}

		status := event.ResultStatus()
		if status == enums.NoteStatusFailed {
			message := unknownWorkerError
			if event.ErrorMessage != nil && *event.ErrorMessage != "" {
				message = *event.ErrorMessage
			}
			summary := failedSummaryPrefix + message
			return s.repo.UpdateResultTx(tx, note.ID, enums.NoteStatusFailed, nil, &summary)
		}

		return s.repo.UpdateResultTx(tx, note.ID, enums.NoteStatusCompleted, event.RecognizedText, event.SummaryText)
	})
}
