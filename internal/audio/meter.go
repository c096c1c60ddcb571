package audio

import (
	"encoding/binary"
	"math"
	"sync/atomic"
)

// levelSmoothing matches a typical analyser smoothing time constant.
const levelSmoothing = 0.8

// levelMeter keeps a smoothed RMS loudness of s16le PCM chunks.
// Only the latest value is kept.
type levelMeter struct {
	bits atomic.Uint64
}

func (m *levelMeter) Observe(pcm []byte) {
	samples := len(pcm) / 2
	if samples == 0 {
		return
	}

	var sum float64
	for i := 0; i < samples; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[2*i:]))) / 32768.0
		sum += v * v
	}
	current := clampUnit(math.Sqrt(sum/float64(samples)) * math.Sqrt2)

	for {
		oldBits := m.bits.Load()
		prev := math.Float64frombits(oldBits)
		next := clampUnit(levelSmoothing*prev + (1-levelSmoothing)*current)
		if m.bits.CompareAndSwap(oldBits, math.Float64bits(next)) {
			return
		}
	}
}

func (m *levelMeter) Level() float64 {
	return math.Float64frombits(m.bits.Load())
}

func (m *levelMeter) Reset() {
	m.bits.Store(0)
}

func clampUnit(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
