package conversion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	domain "hls2mp4/internal/domain/conversion"
)

type stubStore struct {
	dir string

	mu        sync.Mutex
	artifacts []domain.Artifact
	deleteErr map[string]error
	deleted   []string
}

func newStubStore(t *testing.T) *stubStore {
	t.Helper()
	return &stubStore{dir: t.TempDir(), deleteErr: map[string]error{}}
}

func (s *stubStore) ReservePath(jobID string) string {
	return filepath.Join(s.dir, jobID+domain.ArtifactExt)
}

func (s *stubStore) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (s *stubStore) Open(path string) (*os.File, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, domain.ErrArtifactNotFound
	}
	return file, err
}

func (s *stubStore) List() ([]domain.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Artifact(nil), s.artifacts...), nil
}

func (s *stubStore) DeleteIfOlderThan(path string, threshold time.Duration, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.deleteErr[path]; err != nil {
		return false, err
	}
	for _, a := range s.artifacts {
		if a.Path == path && a.Expired(threshold, now) {
			s.deleted = append(s.deleted, path)
			return true, nil
		}
	}
	return false, nil
}

type stubEngine struct {
	progress []float64
	err      error
	panicMsg string
	output   []byte

	mu       sync.Mutex
	calls    int
	reported time.Duration
}

func (e *stubEngine) Remux(_ context.Context, _ string, outputPath string, onProgress func(float64)) error {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	started := time.Now()
	for _, p := range e.progress {
		onProgress(p)
	}
	e.mu.Lock()
	e.reported = time.Since(started)
	e.mu.Unlock()

	if e.panicMsg != "" {
		panic(e.panicMsg)
	}
	if e.err != nil {
		return e.err
	}
	if e.output != nil {
		return os.WriteFile(outputPath, e.output, 0o644)
	}
	return nil
}

// Reported is how long the engine spent handing its progress reports over.
func (e *stubEngine) Reported() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reported
}

func (e *stubEngine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type publishedEvent struct {
	channel string
	event   string
	payload string
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(channel, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(fmt.Sprintf("marshal error: %v", err))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{channel: channel, event: event, payload: string(data)})
}

func (p *recordingPublisher) Payloads() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.payload)
	}
	return out
}

type slowPublisher struct {
	recordingPublisher
	delay time.Duration
}

func (p *slowPublisher) Publish(channel, event string, payload any) {
	time.Sleep(p.delay)
	p.recordingPublisher.Publish(channel, event, payload)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestService returns a service whose finished jobs are reported on the returned channel.
func newTestService(t *testing.T, store *stubStore, engine Engine, publisher Publisher) (*Service, <-chan string) {
	t.Helper()
	svc := NewService(store, engine, publisher, discardLogger())
	done := make(chan string, 16)
	svc.orchestrator.done = func(jobID string) { done <- jobID }
	return svc, done
}

func waitDone(t *testing.T, done <-chan string) string {
	t.Helper()
	select {
	case id := <-done:
		return id
	case <-time.After(5 * time.Second):
		t.Fatalf("conversion did not finish")
		return ""
	}
}
