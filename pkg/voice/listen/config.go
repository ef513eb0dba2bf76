package listen

import "time"

// Config holds the controller timings.
type Config struct {
	// AutoSendDelay is the pause between session exit and the commit
	// callback. A new session started inside the window cancels the send.
	AutoSendDelay time.Duration

	// PromptTTL is how long the wake acknowledgement prompt stays visible
	// before it auto-expires.
	PromptTTL time.Duration

	// WakeFlashTTL is how long the wake indicator flashes after a
	// detection.
	WakeFlashTTL time.Duration
}

// DefaultConfig returns the stock timings.
func DefaultConfig() Config {
	return Config{
		AutoSendDelay: 100 * time.Millisecond,
		PromptTTL:     3 * time.Second,
		WakeFlashTTL:  1500 * time.Millisecond,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.AutoSendDelay <= 0 {
		c.AutoSendDelay = d.AutoSendDelay
	}
	if c.PromptTTL <= 0 {
		c.PromptTTL = d.PromptTTL
	}
	if c.WakeFlashTTL <= 0 {
		c.WakeFlashTTL = d.WakeFlashTTL
	}
	return c
}
