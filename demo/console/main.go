// Command console is an interactive terminal demo of the voice
// interaction controller wired to local audio devices: a malgo
// microphone feeds the streaming transcription client, and an oto
// speaker plays synthesized speech and the wake acknowledgement tone.
//
// Environment variables (a .env file is honored):
//
//	VOICEKIT_STT_URL         websocket transcription endpoint
//	VOICEKIT_STT_API_KEY     transcription API key (optional)
//	VOICEKIT_TTS_URL         websocket synthesis endpoint
//	VOICEKIT_TTS_VOICES_URL  voices listing endpoint (optional)
//	VOICEKIT_TTS_API_KEY     synthesis API key (optional)
//	VOICEKIT_SETTINGS_PATH   badger directory for durable settings (optional)
//
// Unset endpoints degrade gracefully: the matching capability reports
// unsupported and the controller carries on without it.
//
// Keys:
//
//	m  toggle the microphone (push-to-talk session)
//	w  toggle wake phrase detection
//	r  replay the last spoken utterance
//	s  toggle auto-send after listening
//	q  quit
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/veerhq/voicekit/pkg/voice/bus"
	"github.com/veerhq/voicekit/pkg/voice/capture"
	"github.com/veerhq/voicekit/pkg/voice/listen"
	"github.com/veerhq/voicekit/pkg/voice/settings"
	"github.com/veerhq/voicekit/pkg/voice/speak"
	"github.com/veerhq/voicekit/pkg/voice/synth"
	"github.com/veerhq/voicekit/pkg/voice/wake"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	sttURL := os.Getenv("VOICEKIT_STT_URL")
	ttsURL := os.Getenv("VOICEKIT_TTS_URL")
	if sttURL == "" {
		fmt.Println("[WARN] VOICEKIT_STT_URL not set: speech capture disabled")
	}
	if ttsURL == "" {
		fmt.Println("[WARN] VOICEKIT_TTS_URL not set: speech output disabled")
	}

	fmt.Println("╔════════════════════════════════════════════════════════╗")
	fmt.Println("║                 voicekit console demo                  ║")
	fmt.Println("╠════════════════════════════════════════════════════════╣")
	fmt.Println("║  m  toggle microphone (push-to-talk)                   ║")
	fmt.Println("║  w  toggle wake phrase detection                       ║")
	fmt.Println("║  r  replay last spoken utterance                       ║")
	fmt.Println("║  s  toggle auto-send after listening                   ║")
	fmt.Println("║  q  quit                                               ║")
	fmt.Println("╚════════════════════════════════════════════════════════╝")
	fmt.Println()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nshutting down...")
		cancel()
	}()
	go func() {
		// Closing stdin unblocks the key loop so the deferred
		// teardown runs.
		<-ctx.Done()
		os.Stdin.Close()
	}()

	var store settings.Store
	if dir := os.Getenv("VOICEKIT_SETTINGS_PATH"); dir != "" {
		bs, err := settings.OpenBadger(settings.BadgerOptions{Dir: dir})
		if err != nil {
			log.Fatalf("open settings store: %v", err)
		}
		store = bs
	} else {
		store = settings.NewMemory()
	}

	b := bus.New()
	st := settings.New(store, b)
	defer st.Close()

	mic, speaker, cleanupAudio := initAudio()
	defer cleanupAudio()

	wakeCapture := capture.New(capture.Options{
		URL:        sttURL,
		APIKey:     os.Getenv("VOICEKIT_STT_API_KEY"),
		SampleRate: micSampleRate,
		Logger:     logger,
	})
	dictCapture := capture.New(capture.Options{
		URL:        sttURL,
		APIKey:     os.Getenv("VOICEKIT_STT_API_KEY"),
		SampleRate: micSampleRate,
		Logger:     logger,
	})

	// One mic pump feeds both capture slots; whichever has a live
	// session consumes the frames, the other rejects them.
	go func() {
		frame := make([]byte, micSampleRate*2/50) // 20ms
		for {
			n := mic.Read(frame)
			if n == 0 {
				return
			}
			_ = wakeCapture.WriteAudio(frame[:n])
			_ = dictCapture.WriteAudio(frame[:n])
		}
	}()

	synthClient := synth.New(synth.Options{
		URL:        ttsURL,
		VoicesURL:  os.Getenv("VOICEKIT_TTS_VOICES_URL"),
		APIKey:     os.Getenv("VOICEKIT_TTS_API_KEY"),
		SampleRate: speakerSampleRate,
		Sink: func(pcm []byte) error {
			speaker.Write(pcm)
			return nil
		},
		Logger: logger,
	})
	output := &flushingOutput{Client: synthClient, speaker: speaker}

	speaker2, err := speak.New(output, st, logger)
	if err != nil {
		log.Fatalf("init speaker controller: %v", err)
	}

	tone := &synth.TonePlayer{
		SampleRate: speakerSampleRate,
		Sink: func(pcm []byte) error {
			speaker.Write(pcm)
			return nil
		},
	}

	printer := newStatePrinter()
	ctrl, err := listen.New(listen.Dependencies{
		Capture:  dictCapture,
		Detector: wake.New(wakeCapture, logger),
		Settings: st,
		Bus:      b,
		Speaker:  speaker2,
		Cue:      tone,
		Commit: func(text string) {
			fmt.Printf("[SEND] %s\n", text)
		},
		Logger:      logger,
		Config:      listen.DefaultConfig(),
		OnState:     printer.state,
		OnPrompt:    printer.prompt,
		OnWakeFlash: printer.wakeFlash,
		OnSessionEnd: func(reason string) {
			fmt.Printf("[SESSION] ended (%s)\n", reason)
		},
	})
	if err != nil {
		log.Fatalf("init controller: %v", err)
	}
	ctrl.Start()
	defer ctrl.Close()

	fmt.Println("ready. press a key and enter.")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "":
			continue

		case "m":
			if !ctrl.ToggleListening() {
				fmt.Println("[INFO] could not start capture")
			}

		case "w":
			enabled := !st.WakeConfig().Enabled
			if err := st.SetWakeEnabled(enabled); err != nil {
				fmt.Printf("[INFO] wake toggle failed: %v\n", err)
				continue
			}
			fmt.Printf("[INFO] wake detection %s\n", onOff(enabled))

		case "r":
			// ReplayLast blocks for the whole utterance; keep the key
			// loop responsive.
			go func() {
				if !speaker2.ReplayLast() {
					fmt.Println("[INFO] nothing to replay")
				}
			}()

		case "s":
			enabled := !st.AutoSend()
			if err := st.SetAutoSend(enabled); err != nil {
				fmt.Printf("[INFO] auto-send toggle failed: %v\n", err)
				continue
			}
			fmt.Printf("[INFO] auto-send %s\n", onOff(enabled))

		case "q":
			return

		default:
			fmt.Println("[INFO] keys: m (mic), w (wake), r (replay), s (auto-send), q (quit)")
		}
	}
}

func onOff(enabled bool) string {
	if enabled {
		return "on"
	}
	return "off"
}

// flushingOutput couples the synthesis client to the local speaker so
// interrupting an utterance also drops its buffered audio.
type flushingOutput struct {
	*synth.Client
	speaker *speakerWriter
}

func (f *flushingOutput) Stop() {
	f.Client.Stop()
	f.speaker.Flush()
}

// statePrinter serializes the observation hook output. Hooks fire on
// whichever goroutine triggered the change, so prints go through one
// mutex to stay legible.
type statePrinter struct {
	mu        sync.Mutex
	lastPhase listen.Phase
	lastHeard string
	started   bool
}

func newStatePrinter() *statePrinter {
	return &statePrinter{}
}

func (p *statePrinter) state(st listen.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started || st.Phase != p.lastPhase {
		p.started = true
		p.lastPhase = st.Phase
		fmt.Printf("[STATE] %s\n", st.Phase)
	}
	if st.Transcript != "" && st.Transcript != p.lastHeard {
		p.lastHeard = st.Transcript
		fmt.Printf("[HEARD] %s\n", st.Transcript)
	}
	if st.Transcript == "" {
		p.lastHeard = ""
	}
}

func (p *statePrinter) prompt(text string) {
	if text == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Printf("[PROMPT] %s\n", text)
}

func (p *statePrinter) wakeFlash(active bool) {
	if !active {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Println("[WAKE] phrase detected")
}
