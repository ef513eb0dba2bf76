package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/veerhq/voicekit/pkg/gateway/apierror"
	"github.com/veerhq/voicekit/pkg/gateway/config"
	"github.com/veerhq/voicekit/pkg/gateway/metrics"
	"github.com/veerhq/voicekit/pkg/gateway/mw"
	"github.com/veerhq/voicekit/pkg/gateway/protocol"
	"github.com/veerhq/voicekit/pkg/gateway/sessions"
	"github.com/veerhq/voicekit/pkg/voice"
	"github.com/veerhq/voicekit/pkg/voice/bus"
	"github.com/veerhq/voicekit/pkg/voice/listen"
	"github.com/veerhq/voicekit/pkg/voice/settings"
	"github.com/veerhq/voicekit/pkg/voice/speak"
	"github.com/veerhq/voicekit/pkg/voice/wake"
)

// LiveHandler handles /v1/live websocket connections. The client owns the
// platform speech capabilities; the daemon drives them over typed frames
// and runs the interaction state machine per connection. Settings and the
// event bus are shared across connections.
type LiveHandler struct {
	Config   config.Config
	Logger   *slog.Logger
	Settings *settings.Settings
	Bus      *bus.Bus
	Metrics  *metrics.Metrics
	Sessions *sessions.Tracker
}

func (h LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		reqID, _ := mw.RequestIDFrom(r.Context())
		writeErrorJSON(w, http.StatusMethodNotAllowed, apierror.MethodNotAllowed(reqID))
		return
	}
	if !h.originAllowed(r) {
		reqID, _ := mw.RequestIDFrom(r.Context())
		writeErrorJSON(w, http.StatusForbidden, apierror.Forbidden("origin is not allowed", "Origin", reqID))
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if h.Config.LiveMaxMessageBytes > 0 {
		conn.SetReadLimit(h.Config.LiveMaxMessageBytes)
	}

	handshakeTimeout := h.Config.LiveHandshakeTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = 5 * time.Second
	}
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	messageType, firstFrame, err := conn.ReadMessage()
	if err != nil {
		h.writeWSError(conn, "session", "bad_request", "failed to read hello", true)
		return
	}
	if messageType != websocket.TextMessage {
		h.writeWSError(conn, "session", "bad_request", "first frame must be hello", true)
		return
	}

	decoded, err := protocol.DecodeClientMessage(firstFrame)
	if err != nil {
		h.writeWSError(conn, "session", "bad_request", "invalid hello frame", true)
		return
	}
	hello, ok := decoded.(protocol.ClientHello)
	if !ok {
		h.writeWSError(conn, "session", "bad_request", "first frame must be hello", true)
		return
	}
	if strings.TrimSpace(hello.ProtocolVersion) != protocol.ProtocolVersion1 {
		h.writeWSError(conn, "session", "unsupported_version", "unsupported protocol_version", true)
		return
	}

	sessionID := "s_" + randHex(8)
	lc := newLiveConn(conn, h.Config, h.Logger, h.Metrics)

	ack := protocol.ServerHelloAck{
		Type:            "hello_ack",
		ProtocolVersion: protocol.ProtocolVersion1,
		SessionID:       sessionID,
		Settings:        settingsSnapshot(h.Settings),
		State:           protocol.State{Phase: listen.PhaseIdle.String()},
		Limits: &protocol.HelloAckLimits{
			MaxMessageBytes: h.Config.LiveMaxMessageBytes,
			PingIntervalMS:  int(lc.pingInterval / time.Millisecond),
		},
	}
	if err := conn.WriteJSON(ack); err != nil {
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	go lc.writeLoop()
	defer lc.close()

	dictation := &remoteCapture{lc: lc, supported: hello.Capabilities.Capture, prefix: "mic"}
	wakeCapture := &remoteCapture{lc: lc, supported: hello.Capabilities.Capture, prefix: "wake"}
	output := &remoteSpeech{lc: lc, supported: hello.Capabilities.Synthesis}

	detector := wake.New(wakeCapture, h.Logger)
	speaker, err := speak.New(output, h.Settings, h.Logger)
	if err != nil {
		h.writeWSError(conn, "session", "internal", "failed to initialize session", true)
		return
	}

	var cue voice.SoundCue
	if hello.Capabilities.Tone {
		cue = &remoteCue{lc: lc}
	}

	ctrl, err := listen.New(listen.Dependencies{
		Capture:  dictation,
		Detector: detector,
		Settings: h.Settings,
		Bus:      h.Bus,
		Speaker:  speaker,
		Cue:      cue,
		Commit: func(text string) {
			if h.Metrics != nil {
				h.Metrics.RecordAutoSend()
			}
			lc.send(protocol.ServerCommit{Type: "commit", Text: text})
		},
		Logger: h.Logger,
		Config: listen.Config{
			AutoSendDelay: h.Config.AutoSendDelay,
			PromptTTL:     h.Config.PromptTTL,
			WakeFlashTTL:  h.Config.WakeFlashTTL,
		},
		OnState: func(st listen.State) {
			lc.trackSession(st.Phase)
			lc.send(protocol.ServerState{Type: "state", State: wireState(st)})
		},
		OnPrompt: func(text string) {
			lc.send(protocol.ServerPrompt{Type: "prompt", Text: text})
		},
		OnWakeFlash: func(active bool) {
			if active && h.Metrics != nil {
				h.Metrics.RecordWakeDetection(true)
			}
			lc.send(protocol.ServerWakeFlash{Type: "wake_flash", Active: active})
		},
		OnDetectionDropped: func() {
			if h.Metrics != nil {
				h.Metrics.RecordWakeDetection(false)
			}
		},
		OnSessionEnd: lc.noteSessionEnd,
	})
	if err != nil {
		h.writeWSError(conn, "session", "internal", "failed to initialize session", true)
		return
	}

	if h.Metrics != nil {
		h.Metrics.RecordConnectionOpen()
	}
	defer func() {
		lc.noteSessionEnd("disconnect")
		if h.Metrics != nil {
			h.Metrics.RecordConnectionClose()
		}
	}()

	unsubscribe := h.subscribeBus(lc)
	defer unsubscribe()

	unregister := func() {}
	if h.Sessions != nil {
		handle := sessions.Handle{Cancel: lc.close}
		if hello.Capabilities.Synthesis {
			handle.Voices = lc.requestVoices
		}
		unregister = h.Sessions.Register(sessionID, handle)
	}
	defer unregister()

	ctrl.Start()
	defer ctrl.Close()

	if h.Logger != nil {
		h.Logger.Info("live client connected", "session_id", sessionID,
			"client", hello.Client.Name, "platform", hello.Client.Platform,
			"capture", hello.Capabilities.Capture, "synthesis", hello.Capabilities.Synthesis)
	}

	h.readLoop(lc, ctrl, speaker)

	if h.Logger != nil {
		h.Logger.Info("live client disconnected", "session_id", sessionID)
	}
}

// readLoop processes inbound frames until the connection dies. Capability
// callbacks are routed by id; everything else maps onto a controller or
// settings call. Blocking calls never run on this goroutine, a frame that
// waits for a client reply would deadlock against its own reader.
func (h LiveHandler) readLoop(lc *liveConn, ctrl *listen.Controller, speaker *speak.Controller) {
	for {
		messageType, data, err := lc.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			lc.send(protocol.ServerError{Type: "error", Scope: "request", Code: "bad_request", Message: "frames must be text"})
			continue
		}

		decoded, err := protocol.DecodeClientMessage(data)
		if err != nil {
			code, message := "bad_request", "invalid frame"
			var decErr *protocol.DecodeError
			if errors.As(err, &decErr) {
				code, message = decErr.Code, decErr.Message
			}
			lc.send(protocol.ServerError{Type: "error", Scope: "request", Code: code, Message: message})
			continue
		}

		switch msg := decoded.(type) {
		case protocol.ClientHello:
			lc.send(protocol.ServerError{Type: "error", Scope: "request", Code: "bad_request", Message: "unexpected hello"})
		case protocol.ClientToggleMic:
			if !ctrl.ToggleListening() {
				lc.send(protocol.ServerError{Type: "error", Scope: "capture", Code: "start_failed", Message: "listening could not start"})
			}
		case protocol.ClientToggleWake:
			if msg.Enabled == nil {
				continue
			}
			if err := h.Settings.SetWakeEnabled(*msg.Enabled); err != nil {
				lc.send(protocol.ServerError{Type: "error", Scope: "settings", Code: "internal", Message: "failed to update wake setting"})
			}
		case protocol.ClientReplay:
			go speaker.ReplayLast()
		case protocol.ClientSetSettings:
			if err := applySettingsPatch(h.Settings, msg.Settings); err != nil {
				lc.send(protocol.ServerError{Type: "error", Scope: "settings", Code: "internal", Message: "failed to update settings"})
				continue
			}
			lc.send(protocol.ServerSettings{Type: "settings", Settings: settingsSnapshot(h.Settings)})
		case protocol.ClientCaptureInterim:
			lc.dispatchCaptureInterim(msg.StreamID, msg.Text)
		case protocol.ClientCaptureEnd:
			lc.dispatchCaptureEnd(msg.StreamID)
		case protocol.ClientCaptureError:
			lc.dispatchCaptureError(msg.StreamID, msg.Message)
		case protocol.ClientSpeakDone:
			lc.completeSpeak(msg.UtteranceID, nil)
		case protocol.ClientSpeakError:
			lc.completeSpeak(msg.UtteranceID, errors.New(msg.Message))
		case protocol.ClientVoices:
			lc.completeVoices(msg)
		}
	}
}

// subscribeBus forwards shared settings events to this client. Another
// surface may flip a setting at any time; these frames keep every
// connected UI in sync.
func (h LiveHandler) subscribeBus(lc *liveConn) func() {
	if h.Bus == nil {
		return func() {}
	}

	snapshot := func(bus.Event) {
		lc.send(protocol.ServerSettings{Type: "settings", Settings: settingsSnapshot(h.Settings)})
	}
	unsubs := []func(){
		h.Bus.Subscribe(bus.TopicWakeStatus, func(ev bus.Event) {
			status, ok := ev.Payload.(bus.WakeStatus)
			if !ok {
				return
			}
			lc.send(protocol.ServerWakeStatus{Type: "wake_status", Active: status.Active})
		}),
		h.Bus.Subscribe(bus.TopicWakeChange, snapshot),
		h.Bus.Subscribe(bus.TopicWakeSoundChange, snapshot),
		h.Bus.Subscribe(bus.TopicWakePromptChange, snapshot),
		h.Bus.Subscribe(bus.TopicWakeSoundParams, snapshot),
		h.Bus.Subscribe(bus.TopicLanguageChange, snapshot),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

func (h LiveHandler) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	if len(h.Config.CORSAllowedOrigins) == 0 {
		return false
	}
	_, ok := h.Config.CORSAllowedOrigins[origin]
	return ok
}

func (h LiveHandler) writeWSError(conn *websocket.Conn, scope, code, message string, close bool) {
	_ = conn.WriteJSON(protocol.ServerError{Type: "error", Scope: scope, Code: code, Message: message, Close: close})
	if close {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message), time.Now().Add(2*time.Second))
	}
}

func wireState(st listen.State) protocol.State {
	return protocol.State{Phase: st.Phase.String(), Transcript: st.Transcript, AutoSendPending: st.AutoSendPending}
}

var errConnClosed = errors.New("live connection closed")

type voicesReply struct {
	voices []voice.VoiceDescriptor
	err    error
}

// liveConn owns the websocket for one client: a single writer goroutine
// drains the outbound queue, and routing tables map stream, utterance and
// request ids back to the capability adapter that issued them.
type liveConn struct {
	conn    *websocket.Conn
	log     *slog.Logger
	metrics *metrics.Metrics

	pingInterval time.Duration
	writeTimeout time.Duration

	outbound chan []byte
	closed   atomic.Bool
	done     chan struct{}

	mu       sync.Mutex
	captures map[string]*remoteCapture
	speaks   map[string]chan error
	voices   map[string]chan voicesReply

	sessionOn    bool
	sessionStart time.Time
}

func newLiveConn(conn *websocket.Conn, cfg config.Config, log *slog.Logger, m *metrics.Metrics) *liveConn {
	queue := cfg.LiveOutboundQueue
	if queue <= 0 {
		queue = 64
	}
	pingInterval := cfg.LiveWSPingInterval
	if pingInterval <= 0 {
		pingInterval = 20 * time.Second
	}
	writeTimeout := cfg.LiveWSWriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &liveConn{
		conn:         conn,
		log:          log,
		metrics:      m,
		pingInterval: pingInterval,
		writeTimeout: writeTimeout,
		outbound:     make(chan []byte, queue),
		done:         make(chan struct{}),
		captures:     make(map[string]*remoteCapture),
		speaks:       make(map[string]chan error),
		voices:       make(map[string]chan voicesReply),
	}
}

func (lc *liveConn) writeLoop() {
	ping := time.NewTicker(lc.pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-lc.done:
			deadline := time.Now().Add(lc.writeTimeout)
			_ = lc.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return
		case data := <-lc.outbound:
			_ = lc.conn.SetWriteDeadline(time.Now().Add(lc.writeTimeout))
			if err := lc.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				lc.close()
				return
			}
		case <-ping.C:
			if err := lc.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(lc.writeTimeout)); err != nil {
				lc.close()
				return
			}
		}
	}
}

// send queues one frame for the writer. A full queue means the client
// stopped reading; the connection is torn down rather than blocking a
// controller goroutine on it.
func (lc *liveConn) send(v any) bool {
	if lc.closed.Load() {
		return false
	}
	data, err := json.Marshal(v)
	if err != nil {
		if lc.log != nil {
			lc.log.Error("live frame marshal failed", "error", err)
		}
		return false
	}
	select {
	case lc.outbound <- data:
		return true
	case <-lc.done:
		return false
	default:
		if lc.log != nil {
			lc.log.Warn("live outbound queue full, closing connection")
		}
		lc.close()
		return false
	}
}

// close is idempotent. It stops the writer, closes the socket and fails
// every caller still waiting on a client reply.
func (lc *liveConn) close() {
	if !lc.closed.CompareAndSwap(false, true) {
		return
	}
	close(lc.done)
	_ = lc.conn.Close()

	lc.mu.Lock()
	speaks := lc.speaks
	voices := lc.voices
	lc.speaks = nil
	lc.voices = nil
	lc.captures = nil
	lc.mu.Unlock()

	for _, ch := range speaks {
		ch <- errConnClosed
	}
	for _, ch := range voices {
		ch <- voicesReply{err: errConnClosed}
	}
}

func (lc *liveConn) registerCapture(id string, r *remoteCapture) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if lc.captures != nil {
		lc.captures[id] = r
	}
}

func (lc *liveConn) unregisterCapture(id string) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if lc.captures != nil {
		delete(lc.captures, id)
	}
}

func (lc *liveConn) captureByID(id string) *remoteCapture {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.captures[id]
}

func (lc *liveConn) dispatchCaptureInterim(id, text string) {
	if r := lc.captureByID(id); r != nil {
		r.deliverInterim(id, text)
	}
}

func (lc *liveConn) dispatchCaptureEnd(id string) {
	if r := lc.captureByID(id); r != nil {
		r.deliverEnd(id)
	}
}

func (lc *liveConn) dispatchCaptureError(id, message string) {
	if r := lc.captureByID(id); r != nil {
		r.deliverError(id, message)
	}
}

func (lc *liveConn) registerSpeak(id string) chan error {
	ch := make(chan error, 1)
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if lc.speaks == nil {
		ch <- errConnClosed
		return ch
	}
	lc.speaks[id] = ch
	return ch
}

func (lc *liveConn) abandonSpeak(id string) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if lc.speaks != nil {
		delete(lc.speaks, id)
	}
}

func (lc *liveConn) completeSpeak(id string, err error) {
	lc.mu.Lock()
	ch, ok := lc.speaks[id]
	if ok {
		delete(lc.speaks, id)
	}
	lc.mu.Unlock()
	if !ok {
		return
	}
	if lc.metrics != nil {
		lc.metrics.RecordSpeak(err == nil)
	}
	ch <- err
}

func (lc *liveConn) completeVoices(msg protocol.ClientVoices) {
	lc.mu.Lock()
	ch, ok := lc.voices[msg.RequestID]
	if ok {
		delete(lc.voices, msg.RequestID)
	}
	lc.mu.Unlock()
	if !ok {
		return
	}
	if strings.TrimSpace(msg.Error) != "" {
		ch <- voicesReply{err: errors.New(msg.Error)}
		return
	}
	ch <- voicesReply{voices: msg.Voices}
}

// requestVoices asks the client to enumerate its synthesis voices and
// waits for the reply.
func (lc *liveConn) requestVoices(ctx context.Context) ([]voice.VoiceDescriptor, error) {
	id := "vq_" + randHex(6)
	ch := make(chan voicesReply, 1)

	lc.mu.Lock()
	if lc.voices == nil {
		lc.mu.Unlock()
		return nil, voice.NewSynthesisError("voices", errConnClosed)
	}
	lc.voices[id] = ch
	lc.mu.Unlock()

	if !lc.send(protocol.ServerListVoices{Type: "list_voices", RequestID: id}) {
		lc.abandonVoices(id)
		return nil, voice.NewSynthesisError("voices", errConnClosed)
	}

	select {
	case reply := <-ch:
		if reply.err != nil {
			return nil, voice.NewSynthesisError("voices", reply.err)
		}
		return reply.voices, nil
	case <-ctx.Done():
		lc.abandonVoices(id)
		return nil, ctx.Err()
	}
}

func (lc *liveConn) abandonVoices(id string) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if lc.voices != nil {
		delete(lc.voices, id)
	}
}

// trackSession starts the session clock when the machine enters
// ActiveListening. The end side is driven by the controller's session-end
// hook, with a disconnect fallback at teardown.
func (lc *liveConn) trackSession(phase listen.Phase) {
	lc.mu.Lock()
	started := false
	if phase == listen.PhaseActiveListening && !lc.sessionOn {
		lc.sessionOn = true
		lc.sessionStart = time.Now()
		started = true
	}
	lc.mu.Unlock()
	if started && lc.metrics != nil {
		lc.metrics.RecordSessionStart()
	}
}

func (lc *liveConn) noteSessionEnd(reason string) {
	lc.mu.Lock()
	on := lc.sessionOn
	start := lc.sessionStart
	lc.sessionOn = false
	lc.mu.Unlock()
	if !on {
		return
	}
	if lc.metrics != nil {
		lc.metrics.RecordSessionEnd(reason, time.Since(start))
	}
}

// remoteCapture drives the client's platform recognition over the wire.
// Every Start issues a fresh stream id; client callbacks are routed back
// by that id, so frames from a stream that was already stopped fall on
// the floor.
type remoteCapture struct {
	lc        *liveConn
	supported bool
	prefix    string

	mu       sync.Mutex
	streamID string
	opts     voice.CaptureOptions
}

func (r *remoteCapture) Supported() bool {
	return r.supported
}

func (r *remoteCapture) Start(opts voice.CaptureOptions) bool {
	if !r.supported || r.lc.closed.Load() {
		return false
	}
	id := r.prefix + "_" + randHex(6)

	r.mu.Lock()
	prev := r.streamID
	r.streamID = id
	r.opts = opts
	r.mu.Unlock()

	if prev != "" {
		r.lc.unregisterCapture(prev)
	}
	r.lc.registerCapture(id, r)

	if !r.lc.send(protocol.ServerCaptureStart{Type: "capture_start", StreamID: id, Lang: opts.Lang, Continuous: opts.Continuous}) {
		r.lc.unregisterCapture(id)
		r.mu.Lock()
		if r.streamID == id {
			r.streamID = ""
			r.opts = voice.CaptureOptions{}
		}
		r.mu.Unlock()
		return false
	}
	return true
}

func (r *remoteCapture) Stop() {
	r.mu.Lock()
	id := r.streamID
	r.streamID = ""
	r.opts = voice.CaptureOptions{}
	r.mu.Unlock()

	if id == "" {
		return
	}
	r.lc.unregisterCapture(id)
	r.lc.send(protocol.ServerCaptureStop{Type: "capture_stop", StreamID: id})
}

func (r *remoteCapture) deliverInterim(id, text string) {
	r.mu.Lock()
	if r.streamID != id {
		r.mu.Unlock()
		return
	}
	fn := r.opts.OnInterim
	r.mu.Unlock()
	if fn != nil {
		fn(text)
	}
}

// deliverEnd handles the client reporting the end of an utterance. A
// one-shot stream is finished at that point and its id retires; a
// continuous stream stays registered for the next utterance.
func (r *remoteCapture) deliverEnd(id string) {
	r.mu.Lock()
	if r.streamID != id {
		r.mu.Unlock()
		return
	}
	opts := r.opts
	if !opts.Continuous {
		r.streamID = ""
		r.opts = voice.CaptureOptions{}
	}
	r.mu.Unlock()

	if !opts.Continuous {
		r.lc.unregisterCapture(id)
	}
	if opts.OnEnd != nil {
		opts.OnEnd()
	}
}

func (r *remoteCapture) deliverError(id, message string) {
	r.mu.Lock()
	if r.streamID != id {
		r.mu.Unlock()
		return
	}
	opts := r.opts
	r.streamID = ""
	r.opts = voice.CaptureOptions{}
	r.mu.Unlock()

	r.lc.unregisterCapture(id)
	if opts.OnError != nil {
		if strings.TrimSpace(message) == "" {
			message = "capture error"
		}
		opts.OnError(voice.NewListenerError("capture", errors.New(message)))
	}
}

// remoteSpeech runs synthesis on the client. Speak blocks until the
// client reports the utterance done or failed, the context is cancelled,
// or the connection dies.
type remoteSpeech struct {
	lc        *liveConn
	supported bool

	mu      sync.Mutex
	current string
}

func (r *remoteSpeech) Supported() bool {
	return r.supported
}

func (r *remoteSpeech) Voices(ctx context.Context) ([]voice.VoiceDescriptor, error) {
	if !r.supported {
		return nil, voice.NewUnsupportedError("voices")
	}
	return r.lc.requestVoices(ctx)
}

func (r *remoteSpeech) Speak(ctx context.Context, text string, opts voice.SpeakOptions) error {
	if !r.supported {
		return voice.NewUnsupportedError("speak")
	}

	id := "u_" + randHex(6)
	ch := r.lc.registerSpeak(id)

	r.mu.Lock()
	r.current = id
	r.mu.Unlock()

	frame := protocol.ServerSpeak{
		Type:        "speak",
		UtteranceID: id,
		Text:        text,
		VoiceName:   opts.VoiceName,
		Lang:        opts.Lang,
		Rate:        opts.Rate,
		Pitch:       opts.Pitch,
	}
	if !r.lc.send(frame) {
		r.lc.abandonSpeak(id)
		r.clearCurrent(id)
		return errConnClosed
	}

	select {
	case err := <-ch:
		r.clearCurrent(id)
		return err
	case <-ctx.Done():
		r.lc.abandonSpeak(id)
		r.clearCurrent(id)
		r.lc.send(protocol.ServerSpeakStop{Type: "speak_stop", UtteranceID: id})
		return ctx.Err()
	}
}

func (r *remoteSpeech) Stop() {
	r.mu.Lock()
	id := r.current
	r.current = ""
	r.mu.Unlock()

	if id == "" {
		return
	}
	r.lc.send(protocol.ServerSpeakStop{Type: "speak_stop", UtteranceID: id})
}

func (r *remoteSpeech) clearCurrent(id string) {
	r.mu.Lock()
	if r.current == id {
		r.current = ""
	}
	r.mu.Unlock()
}

// remoteCue plays the acknowledgement tone on the client. Fire and
// forget; the client renders it or not.
type remoteCue struct {
	lc *liveConn
}

func (r *remoteCue) PlayTone(_ context.Context, frequencyHz float64, duration time.Duration) error {
	if !r.lc.send(protocol.ServerPlayTone{Type: "play_tone", FrequencyHz: frequencyHz, DurationMS: int(duration / time.Millisecond)}) {
		return errConnClosed
	}
	return nil
}
