package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"voicelink/internal/domain"
	"voicelink/internal/ports"
)

// DefaultSampleRate is the capture rate expected by the realtime transport.
const DefaultSampleRate = 24000

// startupProbe is how long ffmpeg must survive before capture counts as acquired.
const startupProbe = 250 * time.Millisecond

// FFMPEGCapture captures microphone PCM audio through an ffmpeg child process.
type FFMPEGCapture struct {
	command string
}

func NewFFMPEGCapture(command string) *FFMPEGCapture {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFMPEGCapture{command: command}
}

// Acquire starts ffmpeg against the configured input device. ctx bounds the
// startup only; the returned handle owns the process until Release.
func (c *FFMPEGCapture) Acquire(ctx context.Context, cfg ports.AudioConfig) (ports.CaptureHandle, error) {
	cmd := exec.Command(c.command, buildArgs(cfg)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &domain.CaptureError{Kind: domain.ErrDeviceUnavailable, Detail: err.Error()}
	}
	if err := cmd.Start(); err != nil {
		return nil, classifyStartErr(err, "")
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		return nil, classifyStartErr(err, trimSpace(stderr.String()))
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-waitErr
		return nil, ctx.Err()
	case <-time.After(startupProbe):
	}

	h := &ffmpegHandle{
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
	}
	h.enabled.Store(true)
	return h, nil
}

func buildArgs(cfg ports.AudioConfig) []string {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}
	device := cfg.InputDevice
	if cfg.EchoCancellation && cfg.EchoCancelDevice != "" {
		device = cfg.EchoCancelDevice
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", device,
	}

	var filters []string
	if cfg.NoiseSuppression {
		filters = append(filters, "afftdn")
	}
	if cfg.AutoGain {
		filters = append(filters, "dynaudnorm")
	}
	if len(filters) > 0 {
		args = append(args, "-af", strings.Join(filters, ","))
	}

	return append(args,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	)
}

type ffmpegHandle struct {
	stdout io.ReadCloser
	stderr *bytes.Buffer

	process *os.Process
	waitErr <-chan error

	meter    levelMeter
	enabled  atomic.Bool
	released atomic.Bool

	releaseOnce sync.Once
	releaseErr  error
}

func (h *ffmpegHandle) Read(p []byte) (int, error) {
	n, err := h.stdout.Read(p)
	if n > 0 && !h.released.Load() {
		h.meter.Observe(p[:n])
	}
	if err != nil && h.released.Load() {
		return n, io.EOF
	}
	return n, err
}

func (h *ffmpegHandle) Level() float64 {
	if h.released.Load() {
		return 0
	}
	return h.meter.Level()
}

func (h *ffmpegHandle) SetEnabled(enabled bool) { h.enabled.Store(enabled) }

func (h *ffmpegHandle) Enabled() bool { return h.enabled.Load() }

func (h *ffmpegHandle) Release() error {
	h.releaseOnce.Do(func() {
		h.released.Store(true)
		h.meter.Reset()

		if h.process != nil {
			_ = h.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-h.waitErr:
			if ok {
				h.releaseErr = normalizeStopErr(err)
			}
		case <-time.After(1200 * time.Millisecond):
			if h.process != nil {
				_ = h.process.Kill()
			}
			err, ok := <-h.waitErr
			if ok {
				h.releaseErr = normalizeStopErr(err)
			}
		}

		if closeErr := h.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			if h.releaseErr == nil {
				h.releaseErr = closeErr
			}
		}

		if h.releaseErr != nil && h.stderr != nil && h.stderr.Len() > 0 {
			h.releaseErr = fmt.Errorf("%w: %s", h.releaseErr, trimSpace(h.stderr.String()))
		}
	})

	return h.releaseErr
}

var permissionMarkers = []string{
	"permission denied",
	"access denied",
	"operation not permitted",
	"not authorized",
}

// classifyStartErr maps an early ffmpeg failure onto the capture taxonomy.
func classifyStartErr(err error, stderr string) error {
	detail := stderr
	if detail == "" && err != nil {
		detail = err.Error()
	}
	if detail == "" {
		detail = "capture process exited before capture started"
	}

	lower := strings.ToLower(detail)
	if errors.Is(err, os.ErrPermission) {
		return &domain.CaptureError{Kind: domain.ErrPermissionDenied, Detail: detail}
	}
	for _, marker := range permissionMarkers {
		if strings.Contains(lower, marker) {
			return &domain.CaptureError{Kind: domain.ErrPermissionDenied, Detail: detail}
		}
	}
	return &domain.CaptureError{Kind: domain.ErrDeviceUnavailable, Detail: detail}
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func trimSpace(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}
