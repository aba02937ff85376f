package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mtuci/autonotes-backend/api/controllers"
	"github.com/mtuci/autonotes-backend/api/middleware"
	"github.com/mtuci/autonotes-backend/pkg/config"
	"github.com/mtuci/autonotes-backend/pkg/db"
	"github.com/mtuci/autonotes-backend/pkg/logger"
	"github.com/mtuci/autonotes-backend/pkg/storage/gcs"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	gcsP gcs.Pinger,
	noteService controllers.NoteService,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readyDeps(dbP, gcsP)))
	})

	r.Route("/api/v1/notes", func(r chi.Router) {
		r.Post("/", controllers.CreateNote(noteService, cfg.Notes.MaxUploadMB, logg))
		r.Get("/", controllers.ListNotes(noteService, logg))
		r.Get("/{noteID}", controllers.GetNote(noteService, logg))
		r.Delete("/{noteID}", controllers.DeleteNote(noteService, logg))
	})

	return r
}

func readyDeps(dbP db.Pinger, gcsP gcs.Pinger) map[string]controllers.Pinger {
	deps := map[string]controllers.Pinger{}
	if dbP != nil {
		deps["database"] = dbP
	}
	if gcsP != nil {
		deps["storage"] = gcsP
	}
	return deps
}
