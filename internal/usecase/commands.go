package usecase

import (
	"strings"

	"voicelink/internal/domain"
)

// ToggleMute flips the mute state and returns the new value. The capture
// track is always disabled first; transport mute follows when available.
func (c *Controller) ToggleMute() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	active := c.current
	if c.state != domain.StateConnected || active == nil {
		return c.muted, domain.ErrNotConnected
	}
	if c.cfg.StrictMute && !c.caps.NativeMute {
		return c.muted, domain.ErrMuteUnsupported
	}

	muted := !c.muted
	active.capture.SetEnabled(!muted)
	c.muted = muted
	if muted {
		active.storeLevel(0)
	}
	if c.caps.NativeMute {
		if err := active.transport.SetMuted(muted); err != nil {
			c.log.Warn().Err(err).Bool("muted", muted).Msg("transport mute failed, local capture mute applied")
			c.reportErrorLocked(domain.ErrorCodeMute, err)
		}
	}
	c.log.Info().Str("sessionId", active.id).Bool("muted", muted).Msg("mute toggled")
	return muted, nil
}

// Muted reports the current mute state.
func (c *Controller) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

// SendMessage records text as a final user turn and forwards it to the agent.
// The entry is kept even if forwarding fails. Blank text is ignored.
func (c *Controller) SendMessage(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	c.mu.Lock()
	active := c.current
	if c.state != domain.StateConnected || active == nil {
		c.mu.Unlock()
		return domain.ErrNotConnected
	}

	// A typed message ends any spoken turn still in progress.
	if id, ok := active.openTurns[domain.SpeakerUser]; ok {
		active.closeEntry(domain.SpeakerUser, id)
		if entry, err := c.transcript.MarkInterrupted(id); err == nil {
			c.recordEntryLocked(entry)
		}
	}
	id, err := c.transcript.Append(domain.SpeakerUser, text, true)
	if err != nil {
		c.mu.Unlock()
		c.log.Warn().Err(err).Msg("typed message not recorded")
		return err
	}
	entry, _ := c.transcript.Get(id)
	c.recordEntryLocked(entry)
	canSend := c.caps.UserText
	c.mu.Unlock()

	c.deliver(active, entry)

	if !canSend {
		err = domain.ErrTextUnsupported
	} else {
		err = active.transport.SendUserText(text)
	}
	if err != nil {
		c.log.Warn().Err(err).Str("sessionId", active.id).Msg("typed message not forwarded")
		c.mu.Lock()
		if c.current == active {
			c.reportErrorLocked(domain.ErrorCodeMessage, err)
		}
		c.mu.Unlock()
		return err
	}
	return nil
}

// ClearTranscript discards every entry. Turns in progress start fresh
// entries on their next update.
func (c *Controller) ClearTranscript() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.transcript.Clear()
	if c.current != nil {
		c.current.resetTurns()
	}
	c.events.TranscriptCleared()
}
