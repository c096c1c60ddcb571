package usecase

import (
	"errors"
	"io"
	"time"

	"voicelink/internal/domain"
)

// pumpAudio forwards capture chunks to the transport until the session ends.
// Chunks read while the capture track is disabled are dropped.
func (c *Controller) pumpAudio(active *activeSession) {
	defer close(active.audioDone)

	log := c.log.With().Str("sessionId", active.id).Logger()
	buf := make([]byte, c.cfg.ChunkSize)
	for {
		n, err := active.capture.Read(buf)
		if n > 0 {
			if !active.capture.Enabled() {
				c.metrics.RecordAudioDropped()
			} else if sendErr := active.transport.SendAudio(buf[:n]); sendErr != nil {
				if active.ctx.Err() == nil {
					log.Debug().Err(sendErr).Msg("audio send stopped")
				}
				return
			} else {
				c.metrics.RecordAudioSent(n)
			}
		}
		if err != nil {
			if active.ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				err = &domain.CaptureError{Kind: domain.ErrDeviceUnavailable, Detail: "capture stream ended"}
			}
			c.failSession(active, active.audioDone, domain.ErrorCodeCapture, domain.ReasonCaptureInterrupted, err)
			return
		}
	}
}

// sampleLevel publishes the capture level at the configured rate.
func (c *Controller) sampleLevel(active *activeSession) {
	defer close(active.levelDone)

	ticker := time.NewTicker(c.cfg.LevelInterval)
	defer ticker.Stop()
	for {
		select {
		case <-active.ctx.Done():
			active.storeLevel(0)
			return
		case <-ticker.C:
			if active.capture.Enabled() {
				active.storeLevel(active.capture.Level())
			} else {
				active.storeLevel(0)
			}
		}
	}
}
