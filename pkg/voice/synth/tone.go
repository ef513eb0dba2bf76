package synth

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

const toneGain = 0.4

// Tone renders a sine tone as pcm_s16le mono samples. A short linear ramp
// at both edges avoids clicks. Non-positive frequency or duration renders
// nothing.
func Tone(frequencyHz float64, duration time.Duration, sampleRate int) []byte {
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}
	n := int(float64(sampleRate) * duration.Seconds())
	if n <= 0 || frequencyHz <= 0 {
		return nil
	}

	ramp := sampleRate / 100 // 10ms
	if ramp*2 > n {
		ramp = n / 2
	}

	out := make([]byte, n*2)
	step := 2 * math.Pi * frequencyHz / float64(sampleRate)
	for i := 0; i < n; i++ {
		gain := toneGain
		if ramp > 0 {
			if i < ramp {
				gain *= float64(i) / float64(ramp)
			}
			if n-i <= ramp {
				gain *= float64(n-i) / float64(ramp)
			}
		}
		sample := int16(math.Sin(step*float64(i)) * gain * math.MaxInt16)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(sample))
	}
	return out
}

// TonePlayer implements voice.SoundCue by rendering the tone and handing
// it to a PCM sink.
type TonePlayer struct {
	// SampleRate of the rendered audio. 0 means 24000.
	SampleRate int
	// Sink receives the rendered samples.
	Sink func(pcm []byte) error
}

// PlayTone renders and plays one acknowledgement tone.
func (p *TonePlayer) PlayTone(ctx context.Context, frequencyHz float64, duration time.Duration) error {
	if p.Sink == nil {
		return fmt.Errorf("synth: tone player has no sink")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	pcm := Tone(frequencyHz, duration, p.SampleRate)
	if len(pcm) == 0 {
		return nil
	}
	return p.Sink(pcm)
}
