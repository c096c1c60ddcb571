package commands

import (
	"fmt"
	"io"
	"sync"

	"voicelink/internal/domain"
)

// consoleSink prints controller events to a terminal. Interim text is
// skipped so each turn prints once.
type consoleSink struct {
	mu     sync.Mutex
	out    io.Writer
	styles Styles
}

func newConsoleSink(out io.Writer) *consoleSink {
	return &consoleSink{out: out, styles: styles}
}

func (s *consoleSink) SessionStateChanged(state domain.ConnectionState, reason domain.StateReason) {
	line := s.styles.State.Render("● "+string(state)) + " " + s.styles.Help.Render(string(reason))
	s.println(line)
}

func (s *consoleSink) TranscriptUpdated(entry domain.TranscriptEntry) {
	if !entry.IsFinal && !entry.IsInterrupted {
		return
	}
	s.println(entryLine(s.styles, entry))
}

func (s *consoleSink) TranscriptCleared() {
	s.println(s.styles.Help.Render("transcript cleared"))
}

func (s *consoleSink) SessionError(code domain.ErrorCode, detail string) {
	s.println(s.styles.Error.Render("error "+string(code)) + " " + detail)
}

func (s *consoleSink) println(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.out, line)
}
