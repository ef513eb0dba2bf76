package listen

import (
	"sync"
	"time"
)

// Prompt is the single-slot ephemeral prompt. Show replaces whatever is
// currently displayed and re-arms the expiry from scratch, so only the most
// recently armed timer can ever hide the prompt.
type Prompt struct {
	ttl      time.Duration
	onChange func(text string)

	mu      sync.Mutex
	gen     uint64
	timer   *time.Timer
	text    string
	onDebug func(category, message string)
}

// NewPrompt creates a prompt slot with the given lifetime. onChange fires
// with the prompt text on Show and with "" when the prompt hides; it may be
// nil.
func NewPrompt(ttl time.Duration, onChange func(text string)) *Prompt {
	return &Prompt{ttl: ttl, onChange: onChange}
}

// SetDebug installs a debug trace callback. It runs on its own goroutine
// and must not be assumed ordered against the change callbacks.
func (p *Prompt) SetDebug(fn func(category, message string)) {
	p.mu.Lock()
	p.onDebug = fn
	p.mu.Unlock()
}

// Show displays text and arms a fresh expiry, cancelling any previous one.
func (p *Prompt) Show(text string) {
	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
	}
	p.gen++
	gen := p.gen
	p.text = text
	p.timer = time.AfterFunc(p.ttl, func() { p.expire(gen) })
	p.debugLocked("armed for " + p.ttl.String())
	cb := p.onChange
	p.mu.Unlock()

	if cb != nil {
		cb(text)
	}
}

// Clear hides the prompt and cancels the armed expiry. No-op when hidden.
func (p *Prompt) Clear() {
	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.gen++
	had := p.text != ""
	p.text = ""
	if had {
		p.debugLocked("cleared")
	}
	cb := p.onChange
	p.mu.Unlock()

	if had && cb != nil {
		cb("")
	}
}

// Active reports whether a prompt is currently visible.
func (p *Prompt) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.text != ""
}

// Text returns the visible prompt text, "" when hidden.
func (p *Prompt) Text() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.text
}

func (p *Prompt) expire(gen uint64) {
	p.mu.Lock()
	if gen != p.gen {
		// A later Show or Clear replaced this timer.
		p.mu.Unlock()
		return
	}
	p.timer = nil
	p.text = ""
	p.debugLocked("expired")
	cb := p.onChange
	p.mu.Unlock()

	if cb != nil {
		cb("")
	}
}

// debugLocked emits a trace line off the caller's goroutine. mu held.
func (p *Prompt) debugLocked(message string) {
	if p.onDebug != nil {
		go p.onDebug("PROMPT", message)
	}
}
