package cron

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mtuci/autonotes-backend/pkg/logger"
	"github.com/mtuci/autonotes-backend/pkg/metrics"
)

type jobLock interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name string)
}

// Service runs every registered job on its own timer. Each tick takes a
// per-job distributed lock so only one replica sweeps at a time.
type Service struct {
	registry *Registry
	lock     jobLock
	metrics  *metrics.CronJobMetrics
	logg     *logger.Logger
}

type ServiceParams struct {
	Registry *Registry
	Lock     jobLock
	Metrics  *metrics.CronJobMetrics
	Logger   *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if params.Lock == nil {
		return nil, errors.New("lock is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{
		registry: params.Registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}, nil
}

// Run blocks until ctx is cancelled. Every job fires once on startup and then
// on its interval.
func (s *Service) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, entry := range s.registry.Entries() {
		wg.Add(1)
		go func(entry Entry) {
			defer wg.Done()
			s.runLoop(ctx, entry)
		}(entry)
	}
	wg.Wait()
	return ctx.Err()
}

func (s *Service) runLoop(ctx context.Context, entry Entry) {
	ticker := time.NewTicker(entry.Interval)
	defer ticker.Stop()

	s.runOnce(ctx, entry)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, entry)
		}
	}
}

func (s *Service) runOnce(ctx context.Context, entry Entry) {
	name := entry.Job.Name()
	ctx = s.logg.WithField(ctx, "job", name)

	// lock TTL outlives one interval so a crashed holder cannot wedge the job
	ttl := entry.Interval + time.Minute
	acquired, err := s.lock.Acquire(ctx, name, ttl)
	if err != nil {
		s.logg.Error(ctx, "failed to acquire job lock", err)
		return
	}
	if !acquired {
		return
	}
	defer s.lock.Release(ctx, name)

	start := time.Now()
	err = entry.Job.Run(ctx)
	s.metrics.ObserveDuration(name, time.Since(start))

	if err != nil {
		s.metrics.IncFailure(name)
		s.logg.Error(ctx, "job run failed", err)
		return
	}
	s.metrics.IncSuccess(name)
}
