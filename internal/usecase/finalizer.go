package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"voicelink/internal/domain"
	"voicelink/internal/ports"
)

// entryFinalizer applies text rules to final turns and hands closed entries
// to the transcript sink. Both collaborators are optional.
type entryFinalizer struct {
	rules   ports.RulesEngine
	sink    ports.TranscriptSink
	timeout time.Duration
	log     zerolog.Logger
}

func newEntryFinalizer(rules ports.RulesEngine, sink ports.TranscriptSink, timeout time.Duration, log zerolog.Logger) entryFinalizer {
	return entryFinalizer{rules: rules, sink: sink, timeout: timeout, log: log}
}

// Transform returns the rewritten text. On a rules failure the raw text is
// kept and the error is returned for reporting.
func (f entryFinalizer) Transform(speaker domain.Speaker, raw string) (string, error) {
	if f.rules == nil {
		return raw, nil
	}
	transformed, err := f.rules.Apply(speaker, raw)
	if err != nil {
		return raw, err
	}
	return transformed, nil
}

// Deliver publishes a closed entry, bounded by the sink timeout.
func (f entryFinalizer) Deliver(sessionID string, entry domain.TranscriptEntry) error {
	if f.sink == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	if err := f.sink.PublishTranscript(ctx, sessionID, entry); err != nil {
		f.log.Warn().Err(err).Str("sessionId", sessionID).Str("entryId", entry.ID).Msg("transcript sink rejected entry")
		return err
	}
	return nil
}
