package conversion

import (
	"fmt"
	"log/slog"
	"os"

	domain "hls2mp4/internal/domain/conversion"
)

// Service handles conversion use cases for the HTTP layer.
type Service struct {
	store        ArtifactStore
	jobs         *Registry
	orchestrator *Orchestrator
	logger       *slog.Logger
}

// NewService wires the registry and orchestrator around the injected ports.
func NewService(store ArtifactStore, engine Engine, publisher Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	jobs := NewRegistry(store)
	return &Service{
		store:        store,
		jobs:         jobs,
		orchestrator: NewOrchestrator(jobs, engine, publisher, logger),
		logger:       logger,
	}
}

// StartConversion registers a job for rawURL and starts converting it without waiting.
// Invalid sources are rejected before a job exists.
func (s *Service) StartConversion(rawURL string) (domain.Job, error) {
	source, err := domain.NormalizeSourceURL(rawURL)
	if err != nil {
		return domain.Job{}, err
	}

	job := s.jobs.Create()
	if err := s.orchestrator.Start(source, job.ID, job.OutputPath); err != nil {
		_ = s.jobs.SetStatus(job.ID, domain.StatusError, err)
		return domain.Job{}, err
	}
	return job, nil
}

// Job returns the current state of a job.
func (s *Service) Job(id string) (domain.Job, error) {
	job, ok := s.jobs.Get(id)
	if !ok {
		return domain.Job{}, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	return job, nil
}

// OpenArtifact resolves a completed job through the registry and opens its file.
// The caller owns the returned file.
func (s *Service) OpenArtifact(id string) (domain.Job, *os.File, error) {
	job, err := s.Job(id)
	if err != nil {
		return domain.Job{}, nil, err
	}

	switch job.Status {
	case domain.StatusError:
		return job, nil, fmt.Errorf("%w: %s", domain.ErrConversionFailed, id)
	case domain.StatusProcessing:
		return job, nil, fmt.Errorf("%w: %s", domain.ErrNotReady, id)
	}

	file, err := s.store.Open(job.OutputPath)
	if err != nil {
		return job, nil, err
	}
	return job, file, nil
}
