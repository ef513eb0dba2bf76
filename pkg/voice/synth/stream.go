// Package synth implements the speech output capability over a streaming
// synthesis websocket, plus the wake acknowledgement tone.
package synth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/veerhq/voicekit/pkg/voice"
)

const defaultSampleRate = 24000

// Options configure the synthesis endpoints.
type Options struct {
	// URL is the websocket synthesis endpoint. Empty means the capability
	// is unavailable.
	URL string
	// VoicesURL is the HTTP endpoint listing available voices. Optional.
	VoicesURL string
	APIKey    string

	// SampleRate of the pcm_s16le audio delivered to Sink. 0 means 24000.
	SampleRate int

	// Sink receives decoded audio chunks in order. Playback pacing is the
	// sink's job; Speak returns after the final chunk is delivered.
	Sink func(pcm []byte) error

	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	Logger     *slog.Logger
}

// Client implements voice.SpeechOutput. Each Speak call opens its own
// stream; cancelling the context tears the stream down mid-utterance.
type Client struct {
	opts Options
	log  *slog.Logger

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

// New creates a synthesis client.
func New(opts Options) *Client {
	if opts.SampleRate <= 0 {
		opts.SampleRate = defaultSampleRate
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Client{opts: opts, log: log}
}

// Supported reports whether a synthesis endpoint is configured.
func (c *Client) Supported() bool {
	return c.opts.URL != ""
}

// speakRequest opens a synthesis stream.
type speakRequest struct {
	Text       string  `json:"text"`
	Voice      string  `json:"voice,omitempty"`
	Lang       string  `json:"lang,omitempty"`
	Rate       float64 `json:"rate,omitempty"`
	Pitch      float64 `json:"pitch,omitempty"`
	Encoding   string  `json:"encoding"`
	SampleRate int     `json:"sample_rate"`
}

// streamMessage is one synthesis frame from the server.
type streamMessage struct {
	Type  string `json:"type"` // "chunk", "done", "error"
	Data  string `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// Speak synthesizes text and blocks until the stream finishes, ctx is
// cancelled, or the server reports an error.
func (c *Client) Speak(ctx context.Context, text string, opts voice.SpeakOptions) error {
	if !c.Supported() {
		return fmt.Errorf("synth: no endpoint configured")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.cancel = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.gen == gen {
			c.cancel = nil
		}
		c.mu.Unlock()
	}()

	dialer := c.opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	header := http.Header{}
	if c.opts.APIKey != "" {
		header.Set("X-API-Key", c.opts.APIKey)
	}

	conn, resp, err := dialer.DialContext(ctx, c.opts.URL, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("synthesis connect (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("synthesis connect: %w", err)
	}
	defer conn.Close()

	// Unblock the read loop when the context goes away.
	watch := make(chan struct{})
	defer close(watch)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-watch:
		}
	}()

	req := speakRequest{
		Text:       text,
		Voice:      opts.VoiceName,
		Lang:       opts.Lang,
		Rate:       opts.Rate,
		Pitch:      opts.Pitch,
		Encoding:   "pcm_s16le",
		SampleRate: c.opts.SampleRate,
	}
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("send synthesis request: %w", err)
	}

	for {
		var msg streamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("synthesis stream: %w", err)
		}

		switch msg.Type {
		case "chunk":
			pcm, err := base64.StdEncoding.DecodeString(msg.Data)
			if err != nil {
				return fmt.Errorf("decode audio chunk: %w", err)
			}
			if c.opts.Sink != nil {
				if err := c.opts.Sink(pcm); err != nil {
					return fmt.Errorf("audio sink: %w", err)
				}
			}

		case "done":
			return nil

		case "error":
			return fmt.Errorf("synthesis: %s", msg.Error)
		}
	}
}

// Stop interrupts the in-flight utterance, if any.
func (c *Client) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Voices lists the synthesis voices from the voices endpoint.
func (c *Client) Voices(ctx context.Context) ([]voice.VoiceDescriptor, error) {
	if c.opts.VoicesURL == "" {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.VoicesURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create voices request: %w", err)
	}
	if c.opts.APIKey != "" {
		req.Header.Set("X-API-Key", c.opts.APIKey)
	}

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voices request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("voices error %d: %s", resp.StatusCode, string(body))
	}

	var voices []voice.VoiceDescriptor
	if err := json.NewDecoder(resp.Body).Decode(&voices); err != nil {
		return nil, fmt.Errorf("parse voices: %w", err)
	}
	return voices, nil
}
