package operation

import (
	"time"

	"github.com/k11v/genbuild/internal/build"
)

// Recorder receives build metrics.
type Recorder interface {
	IncBuildsCreated()
	ObserveBuildRun(status build.Status, d time.Duration)
	IncDownloads(result string)
}

// Download results passed to Recorder.IncDownloads.
const (
	DownloadResultOK          = "ok"
	DownloadResultNotFound    = "not_found"
	DownloadResultNotComplete = "not_complete"
	DownloadResultNoArtifact  = "no_artifact"
	DownloadResultError       = "error"
)

// NoopRecorder drops every metric.
type NoopRecorder struct{}

func (NoopRecorder) IncBuildsCreated()                           {}
func (NoopRecorder) ObserveBuildRun(build.Status, time.Duration) {}
func (NoopRecorder) IncDownloads(string)                         {}
