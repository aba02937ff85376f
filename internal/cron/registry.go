package cron

import (
	"context"
	"errors"
	"time"
)

// Job is a unit of scheduled background work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Entry pairs a job with its own cadence.
type Entry struct {
	Job      Job
	Interval time.Duration
}

// Registry collects the jobs a worker instance schedules.
type Registry struct {
	entries []Entry
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a job. Jobs run independently on their own timers.
func (r *Registry) Register(job Job, interval time.Duration) error {
	if job == nil {
		return errors.New("job is required")
	}
	if job.Name() == "" {
		return errors.New("job name is required")
	}
	if interval <= 0 {
		return errors.New("interval must be positive")
	}
	r.entries = append(r.entries, Entry{Job: job, Interval: interval})
	return nil
}

func (r *Registry) Entries() []Entry {
	return r.entries
}
