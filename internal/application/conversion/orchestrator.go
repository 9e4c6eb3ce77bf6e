package conversion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	domain "hls2mp4/internal/domain/conversion"
)

// engineEventBacklog bounds the events waiting for the job loop. Past it, a new
// progress report replaces the newest pending one instead of growing the queue.
const engineEventBacklog = 64

type engineEventKind int

const (
	eventProgress engineEventKind = iota
	eventCompleted
	eventFailed
)

type engineEvent struct {
	kind    engineEventKind
	percent float64
	err     error
}

// Orchestrator runs the engine for a job and turns its signals into progress events.
type Orchestrator struct {
	jobs      *Registry
	engine    Engine
	publisher Publisher
	logger    *slog.Logger

	// done is called after a job reaches a terminal state; tests use it to synchronize.
	done func(jobID string)
}

// NewOrchestrator creates an orchestrator with injected ports.
func NewOrchestrator(jobs *Registry, engine Engine, publisher Publisher, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		jobs:      jobs,
		engine:    engine,
		publisher: publisher,
		logger:    logger,
	}
}

// Start validates sourceURL and launches the conversion in the background.
// There is no way to cancel a started conversion.
func (o *Orchestrator) Start(sourceURL, jobID, outputPath string) error {
	source, err := domain.NormalizeSourceURL(sourceURL)
	if err != nil {
		return err
	}
	if jobID == "" || outputPath == "" {
		return errors.New("job id and output path are required")
	}

	o.logger.Info("conversion started", "job_id", jobID, "path", outputPath)
	go o.run(source, jobID, outputPath)
	return nil
}

func (o *Orchestrator) run(source, jobID, outputPath string) {
	tracker := &progressTracker{last: -1}
	queue := newEventQueue()
	defer func() {
		if r := recover(); r != nil {
			o.fail(jobID, tracker, fmt.Errorf("conversion handler panic: %v", r))
		}
		if o.done != nil {
			o.done(jobID)
		}
	}()

	go o.invokeEngine(source, outputPath, queue)

	for range queue.ready {
		batch, closed := queue.take()
		for _, event := range batch {
			switch event.kind {
			case eventProgress:
				o.progress(jobID, tracker, event.percent)
			case eventCompleted:
				o.complete(jobID, tracker)
			case eventFailed:
				o.fail(jobID, tracker, event.err)
			}
		}
		if closed {
			return
		}
	}
}

// invokeEngine is the only producer on queue and always ends with exactly one terminal event.
func (o *Orchestrator) invokeEngine(source, outputPath string, queue *eventQueue) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("engine panic: %v", r)
			}
		}()
		return o.engine.Remux(context.Background(), source, outputPath, func(percent float64) {
			queue.push(engineEvent{kind: eventProgress, percent: percent})
		})
	}()

	if err != nil {
		queue.push(engineEvent{kind: eventFailed, err: err})
		return
	}
	queue.push(engineEvent{kind: eventCompleted})
}

// eventQueue carries engine events to the job loop in order. push never blocks,
// so a slow publisher cannot stall the engine.
type eventQueue struct {
	mu     sync.Mutex
	items  []engineEvent
	closed bool
	ready  chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{ready: make(chan struct{}, 1)}
}

func (q *eventQueue) push(event engineEvent) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	n := len(q.items)
	if event.kind == eventProgress && n >= engineEventBacklog && q.items[n-1].kind == eventProgress {
		q.items[n-1] = event
	} else {
		q.items = append(q.items, event)
	}
	if event.kind != eventProgress {
		q.closed = true
	}
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// take returns the pending events and whether the terminal event has been queued.
func (q *eventQueue) take() ([]engineEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items, q.closed
}

type progressTracker struct {
	last     int
	terminal bool
}

// progress forwards every report. A report of 100 is only recorded: the job is
// still processing, so 100 goes out with completion, when the file can be downloaded.
func (o *Orchestrator) progress(jobID string, tracker *progressTracker, raw float64) {
	if tracker.terminal {
		return
	}
	percent := floorPercent(raw)
	if percent < tracker.last {
		o.logger.Debug("engine progress went backwards", "job_id", jobID, "from", tracker.last, "to", percent)
	}
	tracker.last = percent
	o.jobs.SetProgress(jobID, percent)
	if percent == 100 {
		return
	}
	o.publish(domain.ProgressEvent{JobID: jobID, Percent: percent})
}

func (o *Orchestrator) complete(jobID string, tracker *progressTracker) {
	if tracker.terminal {
		return
	}
	tracker.terminal = true
	if err := o.jobs.SetStatus(jobID, domain.StatusComplete, nil); err != nil {
		o.logger.Warn("mark job complete", "job_id", jobID, "error", err)
	}
	o.logger.Info("conversion finished", "job_id", jobID)
	o.publish(domain.ProgressEvent{JobID: jobID, Percent: 100})
}

func (o *Orchestrator) fail(jobID string, tracker *progressTracker, cause error) {
	if tracker.terminal {
		return
	}
	tracker.terminal = true
	if err := o.jobs.SetStatus(jobID, domain.StatusError, cause); err != nil {
		o.logger.Warn("mark job failed", "job_id", jobID, "error", err)
	}
	o.logger.Error("conversion failed", "job_id", jobID, "error", cause)
	o.publish(domain.ProgressEvent{JobID: jobID, Failed: true})
}

func (o *Orchestrator) publish(event domain.ProgressEvent) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("progress publish panic", "job_id", event.JobID, "error", r)
		}
	}()
	o.publisher.Publish(domain.ChannelName(event.JobID), domain.ProgressEventName, event.Payload())
}

func floorPercent(raw float64) int {
	if math.IsNaN(raw) || raw < 0 {
		return 0
	}
	if raw > 100 {
		return 100
	}
	return int(math.Floor(raw))
}
