package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mtuci/autonotes-backend/pkg/db/models"
)

type fakePurgeRepo struct {
	pages       [][]models.Note
	repeatLast  bool
	call        int
	hardDeleted []uuid.UUID
}

func (f *fakePurgeRepo) FindSoftDeletedBefore(_ context.Context, _ time.Time, _ int) ([]models.Note, error) {
	f.call++
	if f.call > len(f.pages) {
		if f.repeatLast && len(f.pages) > 0 {
			return f.pages[len(f.pages)-1], nil
		}
		return nil, nil
	}
	return f.pages[f.call-1], nil
}

func (f *fakePurgeRepo) HardDeleteTx(_ *gorm.DB, id uuid.UUID) error {
	f.hardDeleted = append(f.hardDeleted, id)
	return nil
}

type fakeBlobDeleter struct {
	deleted []string
	failOn  map[string]error
}

func (f *fakeBlobDeleter) DeleteObject(_ context.Context, path string) error {
	if err, ok := f.failOn[path]; ok {
		return err
	}
	f.deleted = append(f.deleted, path)
	return nil
}

func softDeletedNote(paths ...string) models.Note {
	note := models.Note{ID: uuid.New()}
	for i, p := range paths {
		note.Images = append(note.Images, models.NoteImage{NoteID: note.ID, StoragePath: p, OrderIndex: i})
	}
	return note
}

func newPurgeJob(t *testing.T, repo *fakePurgeRepo, storage *fakeBlobDeleter) *PurgeJob {
	t.Helper()
	job, err := NewPurgeJob(PurgeJobParams{
		Tx:        &fakeTxRunner{},
		Repo:      repo,
		Storage:   storage,
		Retention: 30 * 24 * time.Hour,
		Logger:    testLogger(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return job
}

func TestPurgeJobDeletesBlobsThenRow(t *testing.T) {
	note := softDeletedNote("u/a.png", "u/b.png")
	repo := &fakePurgeRepo{pages: [][]models.Note{{note}}}
	storage := &fakeBlobDeleter{}

	job := newPurgeJob(t, repo, storage)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(storage.deleted) != 2 {
		t.Errorf("expected 2 blob deletes, got %v", storage.deleted)
	}
	if len(repo.hardDeleted) != 1 || repo.hardDeleted[0] != note.ID {
		t.Errorf("expected note row hard-deleted, got %v", repo.hardDeleted)
	}
}

func TestPurgeJobKeepsRowWhenBlobDeleteFails(t *testing.T) {
	note := softDeletedNote("u/a.png", "u/b.png")
	repo := &fakePurgeRepo{pages: [][]models.Note{{note}}}
	storage := &fakeBlobDeleter{failOn: map[string]error{"u/b.png": errors.New("gcs unavailable")}}

	job := newPurgeJob(t, repo, storage)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("sweep should tolerate per-note failures, got %v", err)
	}

	if len(repo.hardDeleted) != 0 {
		t.Errorf("row must survive until all blobs are gone, got %v", repo.hardDeleted)
	}
}

func TestPurgeJobStopsWhenPageMakesNoProgress(t *testing.T) {
	// a full page of stragglers must not loop forever
	page := make([]models.Note, purgePage)
	failOn := map[string]error{}
	for i := range page {
		path := uuid.NewString() + ".png"
		page[i] = softDeletedNote(path)
		failOn[path] = errors.New("gcs unavailable")
	}
	repo := &fakePurgeRepo{pages: [][]models.Note{page}, repeatLast: true}
	storage := &fakeBlobDeleter{failOn: failOn}

	job := newPurgeJob(t, repo, storage)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if repo.call != 1 {
		t.Errorf("expected a single page fetch, got %d", repo.call)
	}
}

func TestPurgeJobStopsWhenOnlyStragglersRemain(t *testing.T) {
	// an earlier successful purge must not keep the loop alive once the
	// window is down to full pages of undeletable notes
	failOn := map[string]error{}
	straggler := func() models.Note {
		path := uuid.NewString() + ".png"
		failOn[path] = errors.New("gcs unavailable")
		return softDeletedNote(path)
	}

	good := softDeletedNote("u/good.png")
	first := []models.Note{good}
	for len(first) < purgePage {
		first = append(first, straggler())
	}
	stuck := make([]models.Note, 0, purgePage)
	for len(stuck) < purgePage {
		stuck = append(stuck, straggler())
	}

	repo := &fakePurgeRepo{pages: [][]models.Note{first, stuck}, repeatLast: true}
	storage := &fakeBlobDeleter{failOn: failOn}

	job := newPurgeJob(t, repo, storage)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if repo.call != 2 {
		t.Errorf("expected the sweep to stop after the straggler page, got %d fetches", repo.call)
	}
	if len(repo.hardDeleted) != 1 || repo.hardDeleted[0] != good.ID {
		t.Errorf("expected only the purgeable note hard-deleted, got %v", repo.hardDeleted)
	}
}
