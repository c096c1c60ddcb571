package usecase

import (
	"errors"
	"strings"

	"voicelink/internal/domain"
	"voicelink/internal/transcript"
)

// consumeTransportEvents applies transport events in delivery order until the
// event stream closes.
func (c *Controller) consumeTransportEvents(active *activeSession) {
	defer close(active.eventsDone)

	for event := range active.transport.Events() {
		if failure, ok := event.(domain.TransportFailure); ok {
			err := &domain.TransportError{Reason: failure.Reason}
			c.failSession(active, active.eventsDone, domain.ErrorCodeTransport, domain.ReasonRemoteError, err)
			return
		}
		c.applyEvent(active, event)
	}

	if active.ctx.Err() == nil {
		err := &domain.TransportError{Reason: "connection closed unexpectedly"}
		c.failSession(active, active.eventsDone, domain.ErrorCodeTransport, domain.ReasonTransportFailed, err)
	}
}

func (c *Controller) applyEvent(active *activeSession, event domain.TransportEvent) {
	var closed []domain.TranscriptEntry

	c.mu.Lock()
	if c.current != active {
		c.mu.Unlock()
		return
	}
	switch ev := event.(type) {
	case domain.TurnStarted:
		c.setActivityLocked(ev.Speaker, true)
		active.closedIn[ev.Speaker] = false

	case domain.TurnText:
		if entry, ok := c.applyTextLocked(active, ev); ok && entry.IsFinal {
			closed = append(closed, entry)
		}

	case domain.TurnEnded:
		if entry, ok := c.endTurnLocked(active, ev); ok {
			closed = append(closed, entry)
		}
		c.setActivityLocked(ev.Speaker, false)
		active.closedIn[ev.Speaker] = false

	case domain.Interrupted:
		c.interruptLocked(active, ev.Speaker)
		c.setActivityLocked(ev.Speaker, false)
		active.closedIn[ev.Speaker] = false
	}
	c.mu.Unlock()

	for _, entry := range closed {
		c.deliver(active, entry)
	}
}

func (c *Controller) applyTextLocked(active *activeSession, ev domain.TurnText) (domain.TranscriptEntry, bool) {
	text := ev.Text
	if ev.IsFinal {
		text = c.transformLocked(ev.Speaker, text)
	}

	id, ok := "", false
	if ev.EntryHint != "" {
		id, ok = active.hints[ev.EntryHint]
	}
	if !ok {
		id, ok = active.openTurns[ev.Speaker]
	}

	var entry domain.TranscriptEntry
	var err error
	if ok {
		entry, err = c.transcript.Update(id, text, ev.IsFinal)
	} else {
		id, err = c.transcript.Append(ev.Speaker, text, ev.IsFinal)
		switch {
		case errors.Is(err, transcript.ErrTurnInProgress):
			entry, err = c.transcript.Update(id, text, ev.IsFinal)
		case err == nil:
			entry, _ = c.transcript.Get(id)
		}
	}
	if err != nil {
		c.log.Warn().Err(err).Str("speaker", string(ev.Speaker)).Msg("transcript update ignored")
		return domain.TranscriptEntry{}, false
	}

	if ev.IsFinal {
		active.closeEntry(ev.Speaker, id)
		active.closedIn[ev.Speaker] = true
	} else {
		active.openTurns[ev.Speaker] = id
		if ev.EntryHint != "" {
			active.hints[ev.EntryHint] = id
		}
	}
	c.recordEntryLocked(entry)
	return entry, true
}

// endTurnLocked closes whatever the turn left open. A turn that produced no
// final text gets one entry built from the full text.
func (c *Controller) endTurnLocked(active *activeSession, ev domain.TurnEnded) (domain.TranscriptEntry, bool) {
	if id, ok := active.openTurns[ev.Speaker]; ok {
		text := ev.FullText
		if strings.TrimSpace(text) == "" {
			if open, found := c.transcript.Get(id); found {
				text = open.Text
			}
		}
		entry, err := c.transcript.Update(id, c.transformLocked(ev.Speaker, text), true)
		active.closeEntry(ev.Speaker, id)
		if err != nil {
			c.log.Warn().Err(err).Str("speaker", string(ev.Speaker)).Msg("turn end ignored")
			return domain.TranscriptEntry{}, false
		}
		c.recordEntryLocked(entry)
		return entry, true
	}

	if active.closedIn[ev.Speaker] || strings.TrimSpace(ev.FullText) == "" {
		return domain.TranscriptEntry{}, false
	}
	id, err := c.transcript.Append(ev.Speaker, c.transformLocked(ev.Speaker, ev.FullText), true)
	if err != nil {
		c.log.Warn().Err(err).Str("speaker", string(ev.Speaker)).Msg("turn end ignored")
		return domain.TranscriptEntry{}, false
	}
	entry, _ := c.transcript.Get(id)
	c.recordEntryLocked(entry)
	return entry, true
}

// interruptLocked marks the speaker's open entry, or failing that the entry
// the current turn already closed, as cut short.
func (c *Controller) interruptLocked(active *activeSession, speaker domain.Speaker) {
	id, ok := active.openTurns[speaker]
	if !ok {
		if !active.closedIn[speaker] {
			return
		}
		last, found := c.transcript.Last(speaker)
		if !found || last.IsInterrupted {
			return
		}
		id = last.ID
	}
	active.closeEntry(speaker, id)

	entry, err := c.transcript.MarkInterrupted(id)
	if err != nil {
		c.log.Warn().Err(err).Str("speaker", string(speaker)).Msg("interruption ignored")
		return
	}
	c.recordEntryLocked(entry)
}

// abandonTurnsLocked interrupts entries the session leaves open so the next
// session starts with closed turns.
func (c *Controller) abandonTurnsLocked(active *activeSession) {
	for speaker, id := range active.openTurns {
		active.closeEntry(speaker, id)
		if entry, err := c.transcript.MarkInterrupted(id); err == nil {
			c.recordEntryLocked(entry)
		}
	}
}

func (c *Controller) transformLocked(speaker domain.Speaker, text string) string {
	transformed, err := c.finalizer.Transform(speaker, text)
	if err != nil {
		c.log.Warn().Err(err).Str("speaker", string(speaker)).Msg("transcript rules failed, keeping raw text")
		c.reportErrorLocked(domain.ErrorCodeRules, err)
	}
	return transformed
}

func (c *Controller) recordEntryLocked(entry domain.TranscriptEntry) {
	result := "interim"
	switch {
	case entry.IsInterrupted:
		result = "interrupted"
	case entry.IsFinal:
		result = "final"
	}
	c.metrics.RecordTranscriptEntry(string(entry.Speaker), result)
	c.events.TranscriptUpdated(entry)
}

func (c *Controller) setActivityLocked(speaker domain.Speaker, active bool) {
	switch speaker {
	case domain.SpeakerUser:
		c.listening = active
	case domain.SpeakerAgent:
		c.speaking = active
	}
}

// deliver hands a closed entry to the sink. Sink failures are reported but
// never end the session.
func (c *Controller) deliver(active *activeSession, entry domain.TranscriptEntry) {
	if err := c.finalizer.Deliver(active.id, entry); err != nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.current == active {
			c.reportErrorLocked(domain.ErrorCodeSink, err)
		}
	}
}
