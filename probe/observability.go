package probe

import (
	"sync"
	"time"
)

// LocateObservation captures one locator outcome.
type LocateObservation struct {
	Path         string
	ManifestPath string
	Candidates   int
	DurationMS   int64
	Success      bool
	ErrorCode    string
	StartedAt    time.Time
}

// CheckObservation captures one compilation probe outcome.
type CheckObservation struct {
	Path           string
	ManifestPath   string
	Command        string
	TimeoutSeconds int
	ExitCode       *int
	DurationMS     int64
	Success        bool
	Message        string
	ErrorCode      string
	StartedAt      time.Time
}

// Observer receives probe-level observability events.
type Observer interface {
	ObserveLocate(observation LocateObservation)
	ObserveCheck(observation CheckObservation)
}

type noopObserver struct{}

func (noopObserver) ObserveLocate(LocateObservation) {}
func (noopObserver) ObserveCheck(CheckObservation)   {}

// MultiObserver fans one observation out to several observers in order.
type MultiObserver []Observer

// ObserveLocate forwards to every non-nil observer.
func (m MultiObserver) ObserveLocate(observation LocateObservation) {
	for _, observer := range m {
		if observer != nil {
			observer.ObserveLocate(observation)
		}
	}
}

// ObserveCheck forwards to every non-nil observer.
func (m MultiObserver) ObserveCheck(observation CheckObservation) {
	for _, observer := range m {
		if observer != nil {
			observer.ObserveCheck(observation)
		}
	}
}

var (
	observerMu     sync.RWMutex
	activeObserver Observer = noopObserver{}
)

// SetObserver sets the process-wide probe observer.
func SetObserver(observer Observer) {
	observerMu.Lock()
	defer observerMu.Unlock()
	if observer == nil {
		activeObserver = noopObserver{}
		return
	}
	activeObserver = observer
}

func emitLocateObservation(observation LocateObservation) {
	observerMu.RLock()
	observer := activeObserver
	observerMu.RUnlock()
	observer.ObserveLocate(observation)
}

func emitCheckObservation(observation CheckObservation) {
	observerMu.RLock()
	observer := activeObserver
	observerMu.RUnlock()
	observer.ObserveCheck(observation)
}

func elapsedMS(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}

var _ Observer = MultiObserver(nil)
