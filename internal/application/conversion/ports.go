package conversion

import (
	"context"
	"os"
	"time"

	domain "hls2mp4/internal/domain/conversion"
)

// ArtifactStore is an application port for the managed output directory.
type ArtifactStore interface {
	ReservePath(jobID string) string
	Exists(path string) bool
	Open(path string) (*os.File, error)
	List() ([]domain.Artifact, error)
	DeleteIfOlderThan(path string, threshold time.Duration, now time.Time) (bool, error)
}

// Engine is an application port for the external transcoding process.
// onProgress receives raw percentages in the order the engine reports them.
type Engine interface {
	Remux(ctx context.Context, sourceURL, outputPath string, onProgress func(percent float64)) error
}

// Publisher pushes named events to a real-time channel. Delivery is best-effort.
type Publisher interface {
	Publish(channel, event string, payload any)
}
