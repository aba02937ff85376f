package cron

import (
	"context"
	"testing"
	"time"

	"github.com/mtuci/autonotes-backend/pkg/storage/gcs"
)

type fakeObjectStore struct {
	pages   []*gcs.ObjectPage
	call    int
	deleted []string
}

func (f *fakeObjectStore) ListObjects(_ context.Context, _ string, _ int) (*gcs.ObjectPage, error) {
	if f.call >= len(f.pages) {
		return &gcs.ObjectPage{}, nil
	}
	page := f.pages[f.call]
	f.call++
	return page, nil
}

func (f *fakeObjectStore) DeleteObject(_ context.Context, path string) error {
	f.deleted = append(f.deleted, path)
	return nil
}

type fakePathChecker struct {
	referenced map[string]struct{}
	checked    []string
}

func (f *fakePathChecker) FilterExistingPaths(_ context.Context, paths []string) (map[string]struct{}, error) {
	f.checked = append(f.checked, paths...)
	return f.referenced, nil
}

func TestStorageGCDeletesOnlyOldUnreferencedObjects(t *testing.T) {
	old := time.Now().Add(-48 * time.Hour)
	fresh := time.Now()

	storage := &fakeObjectStore{pages: []*gcs.ObjectPage{{
		Objects: []gcs.Object{
			{Name: "u/orphan.png", Updated: old},
			{Name: "u/referenced.png", Updated: old},
			{Name: "u/in-flight.png", Updated: fresh},
			{Name: "u/", Updated: old},
		},
	}}}
	repo := &fakePathChecker{referenced: map[string]struct{}{"u/referenced.png": {}}}

	job, err := NewStorageGCJob(StorageGCJobParams{
		Storage:   storage,
		Repo:      repo,
		Retention: 24 * time.Hour,
		Logger:    testLogger(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(storage.deleted) != 1 || storage.deleted[0] != "u/orphan.png" {
		t.Errorf("expected only the orphan deleted, got %v", storage.deleted)
	}
	// fresh and folder objects never reach the DB check
	for _, path := range repo.checked {
		if path == "u/in-flight.png" || path == "u/" {
			t.Errorf("path %q should have been filtered before the DB check", path)
		}
	}
}

func TestStorageGCWalksAllPages(t *testing.T) {
	old := time.Now().Add(-48 * time.Hour)
	storage := &fakeObjectStore{pages: []*gcs.ObjectPage{
		{Objects: []gcs.Object{{Name: "u/one.png", Updated: old}}, NextPageToken: "next"},
		{Objects: []gcs.Object{{Name: "u/two.png", Updated: old}}},
	}}
	repo := &fakePathChecker{referenced: map[string]struct{}{}}

	job, err := NewStorageGCJob(StorageGCJobParams{
		Storage:   storage,
		Repo:      repo,
		Retention: 24 * time.Hour,
		Logger:    testLogger(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(storage.deleted) != 2 {
		t.Errorf("expected both pages swept, got %v", storage.deleted)
	}
}
