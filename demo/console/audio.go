package main

import (
	"log"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/gen2brain/malgo"
)

const (
	micSampleRate     = 16000
	speakerSampleRate = 24000
	channels          = 1
)

// initAudio sets up the microphone and speaker devices. The microphone
// runs at the transcription sample rate, the speaker at the synthesis
// rate; both carry pcm_s16le mono.
func initAudio() (*micReader, *speakerWriter, func()) {
	malgoConfig := malgo.ContextConfig{}
	malgoConfig.ThreadPriority = malgo.ThreadPriorityRealtime

	malgoCtx, err := malgo.InitContext(nil, malgoConfig, nil)
	if err != nil {
		log.Fatalf("init audio context: %v", err)
	}

	mic := newMicReader(malgoCtx.Context, micSampleRate, channels)

	// A small device buffer keeps the wake tone and speech latency low
	// at the cost of glitch headroom.
	otoOpts := &oto.NewContextOptions{
		SampleRate:   speakerSampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   100 * time.Millisecond,
	}
	otoCtx, ready, err := oto.NewContext(otoOpts)
	if err != nil {
		log.Fatalf("init speaker: %v", err)
	}
	<-ready

	speaker := newSpeakerWriter(otoCtx)

	cleanup := func() {
		mic.Close()
		speaker.Close()
		malgoCtx.Uninit()
	}
	return mic, speaker, cleanup
}

// micReader captures pcm_s16le audio from the default microphone.
type micReader struct {
	device *malgo.Device

	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool
}

func newMicReader(ctx malgo.Context, sampleRate, channels int) *micReader {
	m := &micReader{
		buf: make([]byte, 0, sampleRate*2), // 1 second
	}
	m.cond = sync.NewCond(&m.mu)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(channels)
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, samples []byte, _ uint32) {
			m.mu.Lock()
			if !m.closed {
				m.buf = append(m.buf, samples...)
			}
			m.mu.Unlock()
			m.cond.Signal()
		},
	}

	device, err := malgo.InitDevice(ctx, deviceConfig, callbacks)
	if err != nil {
		log.Fatalf("init microphone: %v", err)
	}
	m.device = device

	if err := device.Start(); err != nil {
		log.Fatalf("start microphone: %v", err)
	}
	return m
}

// Read blocks until microphone data is available. It returns 0 once the
// reader is closed.
func (m *micReader) Read(p []byte) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	for len(m.buf) == 0 && !m.closed {
		m.cond.Wait()
	}
	if m.closed {
		return 0
	}
	n := copy(p, m.buf)
	m.buf = m.buf[n:]
	return n
}

func (m *micReader) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cond.Broadcast()

	if m.device != nil {
		m.device.Stop()
		m.device.Uninit()
	}
}

// speakerWriter plays pcm_s16le audio through the speaker. Synthesis
// chunks and rendered wake tones share the one device.
type speakerWriter struct {
	otoCtx *oto.Context

	mu      sync.Mutex
	cond    *sync.Cond
	player  *oto.Player
	buf     []byte
	playing bool
	closed  bool
}

func newSpeakerWriter(ctx *oto.Context) *speakerWriter {
	s := &speakerWriter{
		otoCtx: ctx,
		buf:    make([]byte, 0, speakerSampleRate*4), // 2 seconds
	}
	s.cond = sync.NewCond(&s.mu)
	// The player is created lazily on the first write so an idle demo
	// never holds the output device open.
	return s
}

func (s *speakerWriter) Write(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf = append(s.buf, data...)

	if !s.playing && !s.closed {
		s.playing = true
		s.player = s.otoCtx.NewPlayer(s)
		s.player.Play()
	}

	s.cond.Signal()
}

// Read implements io.Reader for oto.Player; oto pulls audio through it.
func (s *speakerWriter) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.buf) == 0 && !s.closed {
		s.cond.Wait()
	}

	if s.closed && len(s.buf) == 0 {
		// Feed silence so oto drains gracefully.
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

func (s *speakerWriter) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()

	if s.player != nil {
		s.player.Close()
	}
}

// Flush discards buffered audio and stops playback. Interrupting an
// utterance calls this so stale audio never overlaps the next one.
func (s *speakerWriter) Flush() {
	s.mu.Lock()
	s.buf = s.buf[:0]

	if s.player != nil && s.playing {
		s.playing = false
		player := s.player
		s.player = nil
		s.mu.Unlock()

		// Pause stops the sound immediately; Reset clears oto's own
		// internal buffer before the player goes away.
		player.Pause()
		player.Reset()
		player.Close()
		return
	}
	s.mu.Unlock()
}
