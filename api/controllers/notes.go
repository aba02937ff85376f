package controllers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mtuci/autonotes-backend/api/responses"
	"github.com/mtuci/autonotes-backend/api/validators"
	"github.com/mtuci/autonotes-backend/internal/notes"
	"github.com/mtuci/autonotes-backend/pkg/db/models"
	pkgerrors "github.com/mtuci/autonotes-backend/pkg/errors"
	"github.com/mtuci/autonotes-backend/pkg/logger"
)

const userIDHeader = "X-User-Id"

// NoteService is the surface the note controllers need.
type NoteService interface {
	Create(ctx context.Context, ownerID uuid.UUID, title string, files []notes.UploadFile) (*models.Note, error)
	Get(ctx context.Context, id, ownerID uuid.UUID) (*models.Note, error)
	List(ctx context.Context, ownerID uuid.UUID) ([]models.Note, error)
	Delete(ctx context.Context, id, ownerID uuid.UUID) error
}

type createNoteRequest struct {
	Title string `json:"title" validate:"required,max=255"`
}

type noteImageView struct {
	StoragePath      string `json:"storagePath"`
	OriginalFileName string `json:"originalFileName"`
	OrderIndex       int    `json:"orderIndex"`
}

type noteView struct {
	ID             uuid.UUID       `json:"id"`
	Title          string          `json:"title"`
	Status         string          `json:"status"`
	RecognizedText *string         `json:"recognizedText,omitempty"`
	SummaryText    *string         `json:"summaryText,omitempty"`
	Images         []noteImageView `json:"images,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

func toNoteView(note *models.Note) noteView {
	view := noteView{
		ID:             note.ID,
		Title:          note.Title,
		Status:         string(note.Status),
		RecognizedText: note.RecognizedText,
		SummaryText:    note.SummaryText,
		CreatedAt:      note.CreatedAt,
		UpdatedAt:      note.UpdatedAt,
	}
	for _, image := range note.Images {
		view.Images = append(view.Images, noteImageView{
			StoragePath:      image.StoragePath,
			OriginalFileName: image.OriginalFileName,
			OrderIndex:       image.OrderIndex,
		})
	}
	return view
}

// CreateNote accepts a multipart form: a title field plus one or more files
// under "images".
func CreateNote(svc NoteService, maxUploadMB int, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, err := ownerFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		maxBytes := int64(maxUploadMB) << 20
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes*8)
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart form"))
			return
		}

		body := createNoteRequest{Title: r.FormValue("title")}
		if err := validators.ValidateStruct(&body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var files []notes.UploadFile
		if r.MultipartForm != nil {
			for _, header := range r.MultipartForm.File["images"] {
				file, err := header.Open()
				if err != nil {
					responses.WriteError(r.Context(), logg, w,
						pkgerrors.Wrap(pkgerrors.CodeValidation, err, "reading uploaded file"))
					return
				}
				data, err := io.ReadAll(file)
				_ = file.Close()
				if err != nil {
					responses.WriteError(r.Context(), logg, w,
						pkgerrors.Wrap(pkgerrors.CodeValidation, err, "reading uploaded file"))
					return
				}
				files = append(files, notes.UploadFile{Name: header.Filename, Data: data})
			}
		}

		note, err := svc.Create(r.Context(), ownerID, body.Title, files)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, toNoteView(note))
	}
}

func GetNote(svc NoteService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, err := ownerFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		noteID, err := uuid.Parse(chi.URLParam(r, "noteID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "invalid note id"))
			return
		}

		note, err := svc.Get(r.Context(), noteID, ownerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, toNoteView(note))
	}
}

func ListNotes(svc NoteService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, err := ownerFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), ownerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		views := make([]noteView, 0, len(result))
		for i := range result {
			views = append(views, toNoteView(&result[i]))
		}
		responses.WriteSuccess(w, views)
	}
}

func DeleteNote(svc NoteService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, err := ownerFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		noteID, err := uuid.Parse(chi.URLParam(r, "noteID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "invalid note id"))
			return
		}

		if err := svc.Delete(r.Context(), noteID, ownerID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

// ownerFromRequest reads the caller identity the gateway injects.
func ownerFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := r.Header.Get(userIDHeader)
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, userIDHeader+" header is required")
	}
	ownerID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, userIDHeader+" header must be a UUID")
	}
	return ownerID, nil
}
