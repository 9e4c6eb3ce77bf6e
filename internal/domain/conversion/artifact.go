package conversion

import "time"

// ArtifactExt is the extension of every converted file.
const ArtifactExt = ".mp4"

// Artifact represents a converted file in the managed directory.
type Artifact struct {
	Name       string
	Path       string
	Size       int64
	ModifiedAt time.Time
}

// Expired reports whether the artifact outlived the retention window at now.
func (a Artifact) Expired(retention time.Duration, now time.Time) bool {
	return now.Sub(a.ModifiedAt) > retention
}
