package cron

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mtuci/autonotes-backend/pkg/logger"
	"github.com/mtuci/autonotes-backend/pkg/storage/gcs"
)

const (
	storageGCJobName = "storage-gc"
	storageGCPage    = 1000
)

type objectLister interface {
	ListObjects(ctx context.Context, pageToken string, maxResults int) (*gcs.ObjectPage, error)
	DeleteObject(ctx context.Context, path string) error
}

type pathChecker interface {
	FilterExistingPaths(ctx context.Context, paths []string) (map[string]struct{}, error)
}

// StorageGCJob removes bucket objects no image row references. Compensation
// after a failed create is best-effort, so leaked blobs accumulate without
// this sweep. The age threshold keeps in-flight uploads, whose DB rows are
// not committed yet, out of reach.
type StorageGCJob struct {
	storage   objectLister
	repo      pathChecker
	retention time.Duration
	logg      *logger.Logger
}

type StorageGCJobParams struct {
	Storage   objectLister
	Repo      pathChecker
	Retention time.Duration
	Logger    *logger.Logger
}

func NewStorageGCJob(params StorageGCJobParams) (*StorageGCJob, error) {
	if params.Storage == nil {
		return nil, errors.New("object store is required")
	}
	if params.Repo == nil {
		return nil, errors.New("note repository is required")
	}
	if params.Retention <= 0 {
		return nil, errors.New("retention must be positive")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &StorageGCJob{
		storage:   params.Storage,
		repo:      params.Repo,
		retention: params.Retention,
		logg:      params.Logger,
	}, nil
}

func (j *StorageGCJob) Name() string {
	return storageGCJobName
}

func (j *StorageGCJob) Run(ctx context.Context) error {
	threshold := time.Now().UTC().Add(-j.retention)
	deleted := 0

	token := ""
	for {
		page, err := j.storage.ListObjects(ctx, token, storageGCPage)
		if err != nil {
			return err
		}

		candidates := make([]string, 0, len(page.Objects))
		for _, obj := range page.Objects {
			// folder placeholders are not image blobs
			if strings.HasSuffix(obj.Name, "/") {
				continue
			}
			if obj.Updated.After(threshold) {
				continue
			}
			candidates = append(candidates, obj.Name)
		}

		if len(candidates) > 0 {
			referenced, err := j.repo.FilterExistingPaths(ctx, candidates)
			if err != nil {
				return err
			}
			for _, path := range candidates {
				if _, ok := referenced[path]; ok {
					continue
				}
				if err := j.storage.DeleteObject(ctx, path); err != nil {
					j.logg.Warn(j.logg.WithField(ctx, "path", path),
						"failed to delete orphaned object: "+err.Error())
					continue
				}
				deleted++
			}
		}

		token = page.NextPageToken
		if token == "" {
			break
		}
	}

	if deleted > 0 {
		j.logg.Info(j.logg.WithField(ctx, "count", deleted), "deleted orphaned storage objects")
	}
	return nil
}
