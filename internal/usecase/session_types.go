package usecase

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"voicelink/internal/domain"
	"voicelink/internal/ports"
)

// activeSession owns the resources of one connect attempt. Fields other than
// level are guarded by the controller mutex until the loops start.
type activeSession struct {
	generation uint64
	id         string
	config     domain.SessionConfig
	startedAt  time.Time

	ctx    context.Context
	cancel context.CancelFunc

	capture   ports.CaptureHandle
	transport ports.TransportSession

	level atomic.Uint64

	// Turn bookkeeping, guarded by the controller mutex.
	openTurns map[domain.Speaker]string
	hints     map[string]string
	closedIn  map[domain.Speaker]bool

	eventsDone chan struct{}
	audioDone  chan struct{}
	levelDone  chan struct{}

	releaseOnce sync.Once
}

func newActiveSession(generation uint64, cfg domain.SessionConfig) *activeSession {
	ctx, cancel := context.WithCancel(context.Background())
	return &activeSession{
		generation: generation,
		config:     cfg,
		ctx:        ctx,
		cancel:     cancel,
		openTurns:  make(map[domain.Speaker]string),
		hints:      make(map[string]string),
		closedIn:   make(map[domain.Speaker]bool),
	}
}

// release cancels the session and frees the transport then the capture device.
// Only the first call does anything.
func (s *activeSession) release() (transportErr, captureErr error) {
	s.releaseOnce.Do(func() {
		s.cancel()
		if s.transport != nil {
			transportErr = s.transport.Close()
		}
		if s.capture != nil {
			captureErr = s.capture.Release()
		}
		s.storeLevel(0)
	})
	return transportErr, captureErr
}

// wait blocks until every started loop except skip has returned.
func (s *activeSession) wait(skip chan struct{}) {
	for _, done := range []chan struct{}{s.eventsDone, s.audioDone, s.levelDone} {
		if done == nil || done == skip {
			continue
		}
		<-done
	}
}

func (s *activeSession) storeLevel(level float64) {
	s.level.Store(math.Float64bits(level))
}

func (s *activeSession) loadLevel() float64 {
	return math.Float64frombits(s.level.Load())
}

// closeEntry drops every reference to a closed transcript entry.
func (s *activeSession) closeEntry(speaker domain.Speaker, id string) {
	if s.openTurns[speaker] == id {
		delete(s.openTurns, speaker)
	}
	for hint, entryID := range s.hints {
		if entryID == id {
			delete(s.hints, hint)
		}
	}
}

func (s *activeSession) resetTurns() {
	clear(s.openTurns)
	clear(s.hints)
	clear(s.closedIn)
}
