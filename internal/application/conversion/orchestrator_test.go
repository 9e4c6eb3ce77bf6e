package conversion

import (
	"errors"
	"reflect"
	"testing"
	"time"

	domain "hls2mp4/internal/domain/conversion"
)

func TestOrchestrator_PublishesProgressThenCompletes(t *testing.T) {
	store := newStubStore(t)
	pub := &recordingPublisher{}
	engine := &stubEngine{progress: []float64{10.4, 35.9, 100}}
	svc, done := newTestService(t, store, engine, pub)

	job, err := svc.StartConversion("https://cdn.example.com/a/index.m3u8")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, done)

	want := []string{`{"progress":10}`, `{"progress":35}`, `{"progress":100}`}
	if got := pub.Payloads(); !reflect.DeepEqual(got, want) {
		t.Fatalf("payloads = %v, want %v", got, want)
	}
	for _, e := range pub.events {
		if e.channel != "file-conversion-"+job.ID || e.event != "progress" {
			t.Fatalf("unexpected channel/event %s/%s", e.channel, e.event)
		}
	}

	got, _ := svc.Job(job.ID)
	if got.Status != domain.StatusComplete {
		t.Fatalf("expected complete, got %s", got.Status)
	}
}

func TestOrchestrator_CompletionPublishesHundredWhenEngineStopsShort(t *testing.T) {
	pub := &recordingPublisher{}
	svc, done := newTestService(t, newStubStore(t), &stubEngine{progress: []float64{50}}, pub)

	if _, err := svc.StartConversion("https://cdn.example.com/a/index.m3u8"); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, done)

	want := []string{`{"progress":50}`, `{"progress":100}`}
	if got := pub.Payloads(); !reflect.DeepEqual(got, want) {
		t.Fatalf("payloads = %v, want %v", got, want)
	}
}

func TestOrchestrator_FailurePublishesSingleSentinel(t *testing.T) {
	pub := &recordingPublisher{}
	engine := &stubEngine{progress: []float64{5, 20, 61}, err: errors.New("ffmpeg failed: exit status 1")}
	svc, done := newTestService(t, newStubStore(t), engine, pub)

	job, err := svc.StartConversion("https://cdn.example.com/a/index.m3u8")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, done)

	sentinels := 0
	for _, p := range pub.Payloads() {
		if p == `{"progress":"error"}` {
			sentinels++
		}
	}
	if sentinels != 1 {
		t.Fatalf("expected exactly one error payload, got %d in %v", sentinels, pub.Payloads())
	}
	if last := pub.Payloads()[len(pub.Payloads())-1]; last != `{"progress":"error"}` {
		t.Fatalf("expected error payload last, got %s", last)
	}

	got, _ := svc.Job(job.ID)
	if got.Status != domain.StatusError {
		t.Fatalf("expected error status, got %s", got.Status)
	}
	if engine.Calls() != 1 {
		t.Fatalf("failed conversion must not be retried, engine calls = %d", engine.Calls())
	}
}

func TestOrchestrator_EnginePanicBecomesError(t *testing.T) {
	pub := &recordingPublisher{}
	svc, done := newTestService(t, newStubStore(t), &stubEngine{progress: []float64{3}, panicMsg: "boom"}, pub)

	job, err := svc.StartConversion("https://cdn.example.com/a/index.m3u8")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, done)

	want := []string{`{"progress":3}`, `{"progress":"error"}`}
	if got := pub.Payloads(); !reflect.DeepEqual(got, want) {
		t.Fatalf("payloads = %v, want %v", got, want)
	}
	got, _ := svc.Job(job.ID)
	if got.Status != domain.StatusError || got.Error == "" {
		t.Fatalf("expected error status with cause, got %+v", got)
	}
}

func TestOrchestrator_ForwardsBackwardJumpsAndRepeats(t *testing.T) {
	pub := &recordingPublisher{}
	engine := &stubEngine{progress: []float64{20, 20.7, 15, 40, -3, 250}}
	svc, done := newTestService(t, newStubStore(t), engine, pub)

	if _, err := svc.StartConversion("https://cdn.example.com/a/index.m3u8"); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, done)

	want := []string{
		`{"progress":20}`,
		`{"progress":20}`,
		`{"progress":15}`,
		`{"progress":40}`,
		`{"progress":0}`,
		`{"progress":100}`,
	}
	if got := pub.Payloads(); !reflect.DeepEqual(got, want) {
		t.Fatalf("payloads = %v, want %v", got, want)
	}
}

func TestOrchestrator_HundredWaitsForCompletion(t *testing.T) {
	pub := &recordingPublisher{}
	engine := &stubEngine{progress: []float64{60, 100}, err: errors.New("moov atom not written")}
	svc, done := newTestService(t, newStubStore(t), engine, pub)

	job, err := svc.StartConversion("https://cdn.example.com/a/index.m3u8")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, done)

	want := []string{`{"progress":60}`, `{"progress":"error"}`}
	if got := pub.Payloads(); !reflect.DeepEqual(got, want) {
		t.Fatalf("payloads = %v, want %v", got, want)
	}
	if got, _ := svc.Job(job.ID); got.Progress != 100 || got.Status != domain.StatusError {
		t.Fatalf("expected recorded progress 100 with error status, got %+v", got)
	}
}

func TestOrchestrator_SlowPublisherDoesNotStallEngine(t *testing.T) {
	pub := &slowPublisher{delay: 20 * time.Millisecond}
	progress := make([]float64, 0, 101)
	for p := 0; p <= 100; p++ {
		progress = append(progress, float64(p))
	}
	engine := &stubEngine{progress: progress}
	svc, done := newTestService(t, newStubStore(t), engine, pub)

	job, err := svc.StartConversion("https://cdn.example.com/a/index.m3u8")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, done)

	if reported := engine.Reported(); reported > 250*time.Millisecond {
		t.Fatalf("engine progress reports blocked for %s", reported)
	}

	payloads := pub.Payloads()
	if len(payloads) == 0 || payloads[len(payloads)-1] != `{"progress":100}` {
		t.Fatalf("expected completion to be published last, got %v", payloads)
	}
	for i := 1; i < len(payloads); i++ {
		if payloads[i] == payloads[i-1] {
			t.Fatalf("unexpected repeat or reordering in %v", payloads)
		}
	}
	if got, _ := svc.Job(job.ID); got.Status != domain.StatusComplete {
		t.Fatalf("expected complete, got %s", got.Status)
	}
}

func TestEventQueue_CoalescesProgressPastBacklog(t *testing.T) {
	queue := newEventQueue()
	for i := 0; i < engineEventBacklog+10; i++ {
		queue.push(engineEvent{kind: eventProgress, percent: float64(i)})
	}
	queue.push(engineEvent{kind: eventCompleted})
	queue.push(engineEvent{kind: eventProgress, percent: 99})

	batch, closed := queue.take()
	if !closed {
		t.Fatalf("expected queue to be closed after the terminal event")
	}
	if len(batch) != engineEventBacklog+1 {
		t.Fatalf("expected %d events, got %d", engineEventBacklog+1, len(batch))
	}
	if newest := batch[len(batch)-2]; newest.percent != float64(engineEventBacklog+9) {
		t.Fatalf("expected newest progress to be kept, got %v", newest.percent)
	}
	if batch[len(batch)-1].kind != eventCompleted {
		t.Fatalf("expected terminal event last")
	}
}

func TestOrchestratorStart_RejectsInvalidSourceSynchronously(t *testing.T) {
	engine := &stubEngine{}
	orch := NewOrchestrator(NewRegistry(newStubStore(t)), engine, &recordingPublisher{}, discardLogger())

	for _, raw := range []string{"", "not-a-url", "file:///etc/passwd"} {
		if err := orch.Start(raw, "job", "/tmp/job.mp4"); !errors.Is(err, domain.ErrInvalidSource) {
			t.Fatalf("expected ErrInvalidSource for %q, got %v", raw, err)
		}
	}
	if engine.Calls() != 0 {
		t.Fatalf("engine must not be invoked for invalid sources")
	}
}

func TestFloorPercent(t *testing.T) {
	cases := map[float64]int{0: 0, 9.99: 9, 99.999: 99, 100: 100, 130: 100, -1: 0}
	for raw, want := range cases {
		if got := floorPercent(raw); got != want {
			t.Fatalf("floorPercent(%v) = %d, want %d", raw, got, want)
		}
	}
}
