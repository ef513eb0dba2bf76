// Package capture implements the speech capture capability over a
// streaming transcription websocket. Audio is pushed in as binary
// pcm_s16le frames; transcript messages flow back and are translated into
// the capture callbacks.
package capture

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/veerhq/voicekit/pkg/voice"
)

const defaultSampleRate = 16000

// Options configure the transcription endpoint.
type Options struct {
	// URL is the websocket transcription endpoint. Empty means the
	// capability is unavailable and Supported reports false.
	URL    string
	APIKey string

	// SampleRate of the audio pushed via WriteAudio. 0 means 16000.
	SampleRate int

	// Dialer overrides the default websocket dialer.
	Dialer *websocket.Dialer
	Logger *slog.Logger
}

// Client implements voice.SpeechCapture with one websocket session at a
// time. The owner pushes microphone audio through WriteAudio for the
// duration of a session.
type Client struct {
	opts Options
	log  *slog.Logger

	mu   sync.Mutex
	sess *session
}

// New creates a capture client. The capability reports unsupported when
// opts.URL is empty.
func New(opts Options) *Client {
	if opts.SampleRate <= 0 {
		opts.SampleRate = defaultSampleRate
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Client{opts: opts, log: log}
}

// Supported reports whether a transcription endpoint is configured.
func (c *Client) Supported() bool {
	return c.opts.URL != ""
}

// Start dials the endpoint and begins a capture session. It returns false
// when the endpoint is unconfigured or the dial fails; no callbacks fire
// in that case.
func (c *Client) Start(opts voice.CaptureOptions) bool {
	if !c.Supported() {
		return false
	}

	target, err := sessionURL(c.opts.URL, c.opts.SampleRate, opts)
	if err != nil {
		c.log.Warn("bad transcription endpoint", "error", err)
		return false
	}

	dialer := c.opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	header := http.Header{}
	if c.opts.APIKey != "" {
		header.Set("X-API-Key", c.opts.APIKey)
	}

	conn, resp, err := dialer.Dial(target, header)
	if err != nil {
		if resp != nil {
			c.log.Warn("transcription connect failed", "status", resp.StatusCode, "error", err)
		} else {
			c.log.Warn("transcription connect failed", "error", err)
		}
		return false
	}

	s := &session{conn: conn, opts: opts, log: c.log}

	c.mu.Lock()
	old := c.sess
	c.sess = s
	c.mu.Unlock()
	if old != nil {
		old.shutdown()
	}

	go s.readLoop()
	return true
}

// Stop ends the current session. Idempotent.
func (c *Client) Stop() {
	c.mu.Lock()
	s := c.sess
	c.sess = nil
	c.mu.Unlock()

	if s != nil {
		s.shutdown()
	}
}

// WriteAudio sends one frame of pcm_s16le audio into the live session.
func (c *Client) WriteAudio(data []byte) error {
	c.mu.Lock()
	s := c.sess
	c.mu.Unlock()

	if s == nil || s.closed.Load() {
		return fmt.Errorf("capture: no active session")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, data)
}

// Finalize asks the server to flush the current utterance without ending
// the session.
func (c *Client) Finalize() error {
	c.mu.Lock()
	s := c.sess
	c.mu.Unlock()

	if s == nil || s.closed.Load() {
		return fmt.Errorf("capture: no active session")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, []byte("finalize"))
}

// sessionURL builds the per-session endpoint URL.
func sessionURL(base string, sampleRate int, opts voice.CaptureOptions) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	lang := opts.Lang
	if lang == "" {
		lang = "en-US"
	}
	q.Set("language", lang)
	q.Set("encoding", "pcm_s16le")
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("continuous", strconv.FormatBool(opts.Continuous))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// serverMessage is one transcription frame from the server.
type serverMessage struct {
	Type    string `json:"type"` // "transcript", "done", "error"
	Text    string `json:"text,omitempty"`
	IsFinal bool   `json:"is_final,omitempty"`
	Error   string `json:"error,omitempty"`
}

type session struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	closed  atomic.Bool
	opts    voice.CaptureOptions
	log     *slog.Logger
}

func (s *session) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.closed.Swap(true) {
				return
			}
			s.conn.Close()
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				if s.opts.OnEnd != nil {
					s.opts.OnEnd()
				}
				return
			}
			if s.opts.OnError != nil {
				s.opts.OnError(fmt.Errorf("transcription stream: %w", err))
			}
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if s.closed.Load() {
			return
		}

		switch msg.Type {
		case "transcript":
			if msg.Text != "" && s.opts.OnInterim != nil {
				s.opts.OnInterim(msg.Text)
			}
			if msg.IsFinal {
				if s.opts.OnEnd != nil {
					s.opts.OnEnd()
				}
				if !s.opts.Continuous {
					s.shutdown()
					return
				}
			}

		case "done":
			s.closed.Store(true)
			s.conn.Close()
			if s.opts.OnEnd != nil {
				s.opts.OnEnd()
			}
			return

		case "error":
			s.closed.Store(true)
			s.conn.Close()
			if s.opts.OnError != nil {
				s.opts.OnError(fmt.Errorf("transcription: %s", msg.Error))
			}
			return
		}
	}
}

// shutdown closes the session without firing callbacks.
func (s *session) shutdown() {
	if s.closed.Swap(true) {
		return
	}
	s.writeMu.Lock()
	s.conn.WriteMessage(websocket.TextMessage, []byte("done"))
	s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()
	s.conn.Close()
}
