package conversion

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	domain "hls2mp4/internal/domain/conversion"
)

type pathReserver interface {
	ReservePath(jobID string) string
}

// Registry is the in-memory source of truth for conversion jobs.
type Registry struct {
	paths pathReserver
	now   func() time.Time

	mu   sync.RWMutex
	jobs map[string]*domain.Job
}

// NewRegistry creates an empty registry reserving output paths through paths.
func NewRegistry(paths pathReserver) *Registry {
	return &Registry{
		paths: paths,
		now:   time.Now,
		jobs:  make(map[string]*domain.Job),
	}
}

// Create allocates a fresh job in processing status.
func (r *Registry) Create() domain.Job {
	id := uuid.NewString()
	job := &domain.Job{
		ID:         id,
		Status:     domain.StatusProcessing,
		OutputPath: r.paths.ReservePath(id),
		CreatedAt:  r.now(),
	}

	r.mu.Lock()
	r.jobs[id] = job
	r.mu.Unlock()

	return *job
}

// Get returns a snapshot of the job.
func (r *Registry) Get(id string) (domain.Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return domain.Job{}, false
	}
	return *job, true
}

// SetStatus moves a job to status. Terminal jobs never change again.
func (r *Registry) SetStatus(id string, status domain.Status, cause error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	if job.Status.Terminal() {
		if job.Status == status {
			return nil
		}
		return fmt.Errorf("%w: %s is %s", domain.ErrTerminalStatus, id, job.Status)
	}

	job.Status = status
	switch status {
	case domain.StatusComplete:
		job.Progress = 100
	case domain.StatusError:
		if cause != nil {
			job.Error = cause.Error()
		}
	}
	return nil
}

// SetProgress records the last reported percentage of a running job.
func (r *Registry) SetProgress(id string, percent int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || job.Status.Terminal() {
		return
	}
	job.Progress = percent
}
