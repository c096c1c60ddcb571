package transcript

import (
	"errors"
	"sync"
	"testing"

	"voicelink/internal/domain"
)

func TestLogAppendUpdateFinalize(t *testing.T) {
	t.Parallel()

	log := NewLog()
	id, err := log.Append(domain.SpeakerAgent, "Hello", false)
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}

	if _, err := log.Update(id, "Hello there!", true); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	entries := log.Snapshot()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	if entries[0].Text != "Hello there!" || !entries[0].IsFinal {
		t.Fatalf("unexpected entry: %+v", entries[0])
	}
	if entries[0].Seq != 1 || entries[0].CreatedAt.IsZero() {
		t.Fatalf("expected seq and timestamp: %+v", entries[0])
	}
}

func TestLogAppendRejectsOpenTurn(t *testing.T) {
	t.Parallel()

	log := NewLog()
	id, err := log.Append(domain.SpeakerUser, "hi", false)
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}

	gotID, err := log.Append(domain.SpeakerUser, "again", false)
	if !errors.Is(err, ErrTurnInProgress) {
		t.Fatalf("expected ErrTurnInProgress, got %v", err)
	}
	if gotID != id {
		t.Fatalf("expected open entry id %q, got %q", id, gotID)
	}

	if _, err := log.Append(domain.SpeakerAgent, "other speaker", false); err != nil {
		t.Fatalf("other speaker should append: %v", err)
	}
}

func TestLogUpdateFinalEntryFails(t *testing.T) {
	t.Parallel()

	log := NewLog()
	id, _ := log.Append(domain.SpeakerUser, "done", true)

	if _, err := log.Update(id, "changed", true); !errors.Is(err, ErrAlreadyFinal) {
		t.Fatalf("expected ErrAlreadyFinal, got %v", err)
	}
	if _, err := log.Update("missing", "x", false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLogInterruptedEntryNeverFinalizes(t *testing.T) {
	t.Parallel()

	log := NewLog()
	id, _ := log.Append(domain.SpeakerAgent, "I was say", false)

	entry, err := log.MarkInterrupted(id)
	if err != nil {
		t.Fatalf("mark interrupted failed: %v", err)
	}
	if !entry.IsInterrupted || entry.IsFinal {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	if _, err := log.Update(id, "I was saying", true); !errors.Is(err, ErrAlreadyFinal) {
		t.Fatalf("expected interrupted entry to reject updates, got %v", err)
	}
	got, _ := log.Get(id)
	if got.IsFinal {
		t.Fatalf("interrupted entry must not become final")
	}

	if _, err := log.Append(domain.SpeakerAgent, "next turn", false); err != nil {
		t.Fatalf("aborted turn should allow a new append: %v", err)
	}
	if _, err := log.MarkInterrupted("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLogMarkInterruptedAfterFinal(t *testing.T) {
	t.Parallel()

	log := NewLog()
	id, _ := log.Append(domain.SpeakerAgent, "complete", true)
	entry, err := log.MarkInterrupted(id)
	if err != nil {
		t.Fatalf("mark interrupted failed: %v", err)
	}
	if !entry.IsFinal || !entry.IsInterrupted {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestLogSnapshotIsCopy(t *testing.T) {
	t.Parallel()

	log := NewLog()
	id, _ := log.Append(domain.SpeakerUser, "one", false)
	snap := log.Snapshot()

	if _, err := log.Update(id, "two", false); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if snap[0].Text != "one" {
		t.Fatalf("snapshot changed after mutation: %q", snap[0].Text)
	}
}

func TestLogAllIsRestartable(t *testing.T) {
	t.Parallel()

	log := NewLog()
	log.Append(domain.SpeakerUser, "a", true)
	seq := log.All()

	count := 0
	for range seq {
		count++
	}
	if count != 1 {
		t.Fatalf("expected 1 entry, got %d", count)
	}

	log.Append(domain.SpeakerAgent, "b", true)
	count = 0
	for range seq {
		count++
	}
	if count != 2 {
		t.Fatalf("expected restarted iteration to see 2 entries, got %d", count)
	}
}

func TestLogOrderAndClear(t *testing.T) {
	t.Parallel()

	log := NewLog()
	first, _ := log.Append(domain.SpeakerUser, "q", true)
	second, _ := log.Append(domain.SpeakerAgent, "a", true)

	entries := log.Snapshot()
	if entries[0].ID != first || entries[1].ID != second {
		t.Fatalf("entries out of order: %+v", entries)
	}
	if entries[0].ID >= entries[1].ID {
		t.Fatalf("expected time-ordered ids, got %q then %q", entries[0].ID, entries[1].ID)
	}

	log.Clear()
	if log.Len() != 0 {
		t.Fatalf("expected empty log after clear")
	}
	if _, ok := log.Last(domain.SpeakerUser); ok {
		t.Fatalf("expected no last entry after clear")
	}
}

func TestLogConcurrentSnapshot(t *testing.T) {
	t.Parallel()

	log := NewLog()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			log.Append(domain.SpeakerUser, "x", true)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = log.Snapshot()
		}
	}()
	wg.Wait()

	if log.Len() != 200 {
		t.Fatalf("expected 200 entries, got %d", log.Len())
	}
}
