package gcs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := &Client{
		httpClient:    server.Client(),
		defaultBucket: "autonotes-test",
		apiBase:       server.URL,
		uploadBase:    server.URL + "/upload",
		tokenSource: &tokenSource{
			fetch: func(context.Context) (string, time.Time, error) {
				return "test-token", time.Now().Add(time.Hour), nil
			},
		},
	}
	return client, server
}

func TestUploadObject(t *testing.T) {
	var gotPath, gotContentType, gotAuth string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Query().Get("name")
		gotContentType = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"name":"user/abc.png"}`))
	}))

	err := client.UploadObject(context.Background(), "user/abc.png", "image/png", []byte("data"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "user/abc.png" {
		t.Errorf("expected object name user/abc.png, got %q", gotPath)
	}
	if gotContentType != "image/png" {
		t.Errorf("expected content type image/png, got %q", gotContentType)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("expected bearer token, got %q", gotAuth)
	}
}

func TestUploadObjectFailure(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	if err := client.UploadObject(context.Background(), "user/abc.png", "image/png", nil); err == nil {
		t.Fatal("expected error on 403")
	}
}

func TestDeleteObjectToleratesMissing(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	if err := client.DeleteObject(context.Background(), "user/gone.png"); err != nil {
		t.Fatalf("expected 404 to be tolerated, got %v", err)
	}
}

func TestDeleteObjectFailure(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	if err := client.DeleteObject(context.Background(), "user/x.png"); err == nil {
		t.Fatal("expected error on 500")
	}
}

func TestListObjectsPaging(t *testing.T) {
	var gotToken string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.URL.Query().Get("pageToken")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"items": [
				{"name": "user/a.png", "size": "123", "updated": "2026-08-01T10:00:00Z"},
				{"name": "user/b.png", "size": "456", "updated": "2026-08-02T10:00:00Z"}
			],
			"nextPageToken": "token-2"
		}`))
	}))

	page, err := client.ListObjects(context.Background(), "token-1", 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotToken != "token-1" {
		t.Errorf("expected pageToken token-1, got %q", gotToken)
	}
	if len(page.Objects) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(page.Objects))
	}
	if page.Objects[0].Name != "user/a.png" || page.Objects[0].Size != 123 {
		t.Errorf("unexpected first object: %+v", page.Objects[0])
	}
	if page.NextPageToken != "token-2" {
		t.Errorf("expected next token token-2, got %q", page.NextPageToken)
	}
}

func TestStatObjectNotFound(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := client.StatObject(context.Background(), "user/missing.png")
	if !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestStatObject(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name": "user/a.png", "size": "789", "updated": "2026-08-01T10:00:00Z"}`))
	}))

	obj, err := client.StatObject(context.Background(), "user/a.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obj.Name != "user/a.png" || obj.Size != 789 {
		t.Errorf("unexpected object: %+v", obj)
	}
}
