package support

import "time"

// Recorder receives workflow telemetry. Implementations must be safe for
// concurrent use; the metrics package provides the Prometheus one.
type Recorder interface {
	ObserveAttempt(kind AttemptKind, outcome State, stage Stage, d time.Duration)
	ObserveCollection(result CollectionResult)
}

type nopRecorder struct{}

func (nopRecorder) ObserveAttempt(AttemptKind, State, Stage, time.Duration) {}
func (nopRecorder) ObserveCollection(CollectionResult)                      {}
