package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mtuci/autonotes-backend/pkg/db/models"
	"github.com/mtuci/autonotes-backend/pkg/enums"
	"github.com/mtuci/autonotes-backend/pkg/logger"
)

type fakeTxRunner struct {
	err   error
	calls int
}

func (f *fakeTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

type fakeStuckRepo struct {
	pages   [][]models.Note
	call    int
	updated []uuid.UUID
	summary string
	status  enums.NoteStatus
}

func (f *fakeStuckRepo) FindStuckBeforeTx(_ *gorm.DB, _ time.Time, _ int) ([]models.Note, error) {
	if f.call >= len(f.pages) {
		return nil, nil
	}
	page := f.pages[f.call]
	f.call++
	return page, nil
}

func (f *fakeStuckRepo) UpdateResultTx(_ *gorm.DB, id uuid.UUID, status enums.NoteStatus, _, summary *string) error {
	f.updated = append(f.updated, id)
	f.status = status
	if summary != nil {
		f.summary = *summary
	}
	return nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func notesPage(n int) []models.Note {
	page := make([]models.Note, n)
	for i := range page {
		page[i] = models.Note{ID: uuid.New(), Status: enums.NoteStatusProcessing}
	}
	return page
}

func TestStuckNoteJobFailsTimedOutNotes(t *testing.T) {
	repo := &fakeStuckRepo{pages: [][]models.Note{notesPage(2)}}
	job, err := NewStuckNoteJob(StuckNoteJobParams{
		Tx:      &fakeTxRunner{},
		Repo:    repo,
		Timeout: 10 * time.Minute,
		Logger:  testLogger(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(repo.updated) != 2 {
		t.Fatalf("expected 2 notes reaped, got %d", len(repo.updated))
	}
	if repo.status != enums.NoteStatusFailed {
		t.Errorf("expected FAILED, got %s", repo.status)
	}
	if repo.summary != "Processing timed out. The server took too long to respond." {
		t.Errorf("unexpected summary: %q", repo.summary)
	}
}

func TestStuckNoteJobPagesUntilDrained(t *testing.T) {
	repo := &fakeStuckRepo{pages: [][]models.Note{notesPage(stuckNotePage), notesPage(3)}}
	tx := &fakeTxRunner{}
	job, err := NewStuckNoteJob(StuckNoteJobParams{
		Tx:      tx,
		Repo:    repo,
		Timeout: time.Minute,
		Logger:  testLogger(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(repo.updated) != stuckNotePage+3 {
		t.Errorf("expected %d reaped, got %d", stuckNotePage+3, len(repo.updated))
	}
	// one tx per page keeps lock hold times short
	if tx.calls != 2 {
		t.Errorf("expected 2 transactions, got %d", tx.calls)
	}
}

func TestStuckNoteJobPropagatesTxError(t *testing.T) {
	job, err := NewStuckNoteJob(StuckNoteJobParams{
		Tx:      &fakeTxRunner{err: errors.New("connection reset")},
		Repo:    &fakeStuckRepo{},
		Timeout: time.Minute,
		Logger:  testLogger(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
