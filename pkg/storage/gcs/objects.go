package gcs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrObjectNotFound is returned by StatObject when the object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// Object is the subset of GCS object metadata the sweepers care about.
type Object struct {
	Name    string
	Size    int64
	Updated time.Time
}

// ObjectPage is one page of a bucket listing.
type ObjectPage struct {
	Objects       []Object
	NextPageToken string
}

// ObjectStore is the storage surface the note service and sweepers depend on.
type ObjectStore interface {
	UploadObject(ctx context.Context, path string, contentType string, data []byte) error
	DeleteObject(ctx context.Context, path string) error
	ListObjects(ctx context.Context, pageToken string, maxResults int) (*ObjectPage, error)
	StatObject(ctx context.Context, path string) (*Object, error)
}

// UploadObject writes data to the default bucket under the given path. The
// upload is a single media request, which is atomic on the GCS side.
func (c *Client) UploadObject(ctx context.Context, path string, contentType string, data []byte) error {
	if path == "" {
		return errors.New("object path is required")
	}

	u := fmt.Sprintf(
		"%s/b/%s/o?uploadType=media&name=%s",
		c.uploadBase,
		url.PathEscape(c.defaultBucket),
		url.QueryEscape(path),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return apiError("uploading object", resp)
	}
	return nil
}

// DeleteObject removes an object from the default bucket. A missing object is
// not an error so deletes stay safe to retry.
func (c *Client) DeleteObject(ctx context.Context, path string) error {
	if path == "" {
		return errors.New("object path is required")
	}

	u := fmt.Sprintf(
		"%s/b/%s/o/%s",
		c.apiBase,
		url.PathEscape(c.defaultBucket),
		url.PathEscape(path),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return err
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK, http.StatusNotFound:
		return nil
	default:
		return apiError("deleting object", resp)
	}
}

// ListObjects returns one page of the default bucket's objects. Pass the
// returned NextPageToken back in to continue; an empty token ends the walk.
func (c *Client) ListObjects(ctx context.Context, pageToken string, maxResults int) (*ObjectPage, error) {
	if maxResults <= 0 {
		maxResults = 1000
	}

	q := url.Values{}
	q.Set("maxResults", strconv.Itoa(maxResults))
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}

	u := fmt.Sprintf(
		"%s/b/%s/o?%s",
		c.apiBase,
		url.PathEscape(c.defaultBucket),
		q.Encode(),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError("listing objects", resp)
	}

	var payload struct {
		Items []struct {
			Name    string    `json:"name"`
			Size    string    `json:"size"`
			Updated time.Time `json:"updated"`
		} `json:"items"`
		NextPageToken string `json:"nextPageToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding object listing: %w", err)
	}

	page := &ObjectPage{NextPageToken: payload.NextPageToken}
	for _, item := range payload.Items {
		size, _ := strconv.ParseInt(item.Size, 10, 64)
		page.Objects = append(page.Objects, Object{
			Name:    item.Name,
			Size:    size,
			Updated: item.Updated,
		})
	}
	return page, nil
}

// StatObject fetches metadata for a single object. Returns ErrObjectNotFound
// when the object is gone.
func (c *Client) StatObject(ctx context.Context, path string) (*Object, error) {
	if path == "" {
		return nil, errors.New("object path is required")
	}

	u := fmt.Sprintf(
		"%s/b/%s/o/%s",
		c.apiBase,
		url.PathEscape(c.defaultBucket),
		url.PathEscape(path),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrObjectNotFound
	default:
		return nil, apiError("fetching object metadata", resp)
	}

	var item struct {
		Name    string    `json:"name"`
		Size    string    `json:"size"`
		Updated time.Time `json:"updated"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, fmt.Errorf("decoding object metadata: %w", err)
	}

	size, _ := strconv.ParseInt(item.Size, 10, 64)
	return &Object{Name: item.Name, Size: size, Updated: item.Updated}, nil
}

func (c *Client) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	token, err := c.tokenSource.Token(ctx)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	return c.httpClient.Do(req)
}

func apiError(op string, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if len(b) > 0 {
		return fmt.Errorf("%s: %s: %s", op, resp.Status, strings.TrimSpace(string(b)))
	}
	return fmt.Errorf("%s: %s", op, resp.Status)
}
