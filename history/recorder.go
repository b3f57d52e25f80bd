package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/petal-labs/ghcid-mcp/probe"
)

const recordTimeout = 5 * time.Second

// Appender is the write side of a history store.
type Appender interface {
	Append(ctx context.Context, record Record) (Record, error)
}

// Recorder turns probe observations into history records. Write failures are
// logged and otherwise ignored so they never change a probe outcome.
type Recorder struct {
	store  Appender
	logger *slog.Logger
}

// NewRecorder creates a Recorder writing to store.
func NewRecorder(store Appender, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger}
}

// ObserveLocate records a manifest lookup.
func (r *Recorder) ObserveLocate(observation probe.LocateObservation) {
	message := ""
	if observation.Success {
		message = "manifest found"
	}
	r.append(Record{
		Kind:         KindManifest,
		Path:         observation.Path,
		ManifestPath: observation.ManifestPath,
		Success:      observation.Success,
		Message:      message,
		ErrorCode:    observation.ErrorCode,
		DurationMS:   observation.DurationMS,
		StartedAt:    observation.StartedAt,
	})
}

// ObserveCheck records a compilation check.
func (r *Recorder) ObserveCheck(observation probe.CheckObservation) {
	r.append(Record{
		Kind:           KindCompile,
		Path:           observation.Path,
		ManifestPath:   observation.ManifestPath,
		Success:        observation.Success,
		Message:        observation.Message,
		ErrorCode:      observation.ErrorCode,
		ExitCode:       observation.ExitCode,
		TimeoutSeconds: observation.TimeoutSeconds,
		DurationMS:     observation.DurationMS,
		StartedAt:      observation.StartedAt,
	})
}

func (r *Recorder) append(record Record) {
	if r == nil || r.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if _, err := r.store.Append(ctx, record); err != nil {
		r.logger.Warn("probe history write failed", "kind", record.Kind, "path", record.Path, "error", err)
	}
}

var _ probe.Observer = (*Recorder)(nil)
