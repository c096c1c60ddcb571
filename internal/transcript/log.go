// Package transcript keeps the ordered record of speech turns for a controller.
package transcript

import (
	"errors"
	"iter"
	"sync"
	"time"

	"github.com/google/uuid"

	"voicelink/internal/domain"
)

var (
	ErrTurnInProgress = errors.New("speaker turn already in progress")
	ErrAlreadyFinal   = errors.New("transcript entry is already final")
	ErrNotFound       = errors.New("transcript entry not found")
)

// Log is an append-only, ordered set of transcript entries.
// Entries close when they become final or are interrupted; closed entries
// never change text or finality again.
type Log struct {
	mu      sync.RWMutex
	entries []domain.TranscriptEntry
	index   map[string]int
	seq     uint64
	now     func() time.Time
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{index: make(map[string]int), now: time.Now}
}

// Append starts a new entry for speaker. It fails with ErrTurnInProgress while
// the speaker's last entry is still open; use Update for that entry instead.
func (l *Log) Append(speaker domain.Speaker, text string, isFinal bool) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if last, ok := l.lastLocked(speaker); ok && !closed(last) {
		return last.ID, ErrTurnInProgress
	}

	l.seq++
	entry := domain.TranscriptEntry{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Seq:       l.seq,
		Speaker:   speaker,
		Text:      text,
		CreatedAt: l.now(),
		IsFinal:   isFinal,
	}
	l.index[entry.ID] = len(l.entries)
	l.entries = append(l.entries, entry)
	return entry.ID, nil
}

// Update replaces the text of an open entry and optionally finalizes it.
func (l *Log) Update(id string, text string, isFinal bool) (domain.TranscriptEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.index[id]
	if !ok {
		return domain.TranscriptEntry{}, ErrNotFound
	}
	entry := &l.entries[pos]
	if closed(*entry) {
		return *entry, ErrAlreadyFinal
	}
	entry.Text = text
	entry.IsFinal = isFinal
	return *entry, nil
}

// MarkInterrupted flags an entry as cut short. An open entry is aborted and
// stays non-final forever.
func (l *Log) MarkInterrupted(id string) (domain.TranscriptEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.index[id]
	if !ok {
		return domain.TranscriptEntry{}, ErrNotFound
	}
	l.entries[pos].IsInterrupted = true
	return l.entries[pos], nil
}

// Get returns a copy of one entry.
func (l *Log) Get(id string) (domain.TranscriptEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	pos, ok := l.index[id]
	if !ok {
		return domain.TranscriptEntry{}, false
	}
	return l.entries[pos], true
}

// Last returns the most recent entry for speaker.
func (l *Log) Last(speaker domain.Speaker) (domain.TranscriptEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastLocked(speaker)
}

// Snapshot returns a point-in-time copy in append order.
func (l *Log) Snapshot() []domain.TranscriptEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.TranscriptEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// All iterates a fresh snapshot each time it is ranged over.
func (l *Log) All() iter.Seq[domain.TranscriptEntry] {
	return func(yield func(domain.TranscriptEntry) bool) {
		for _, entry := range l.Snapshot() {
			if !yield(entry) {
				return
			}
		}
	}
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Clear discards every entry.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	l.index = make(map[string]int)
}

func (l *Log) lastLocked(speaker domain.Speaker) (domain.TranscriptEntry, bool) {
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].Speaker == speaker {
			return l.entries[i], true
		}
	}
	return domain.TranscriptEntry{}, false
}

func closed(entry domain.TranscriptEntry) bool {
	return entry.IsFinal || entry.IsInterrupted
}
