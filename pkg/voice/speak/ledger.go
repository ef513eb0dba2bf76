package speak

import "sync"

// Ledger records which assistant message ids have already been auto-spoken
// in the current conversation. Ids are added the moment a speak attempt is
// decided, before its outcome is known, so a failed utterance is never
// retried.
type Ledger struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{seen: make(map[string]struct{})}
}

// MarkSpoken adds id and reports whether it was newly added.
func (l *Ledger) MarkSpoken(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.seen[id]; ok {
		return false
	}
	l.seen[id] = struct{}{}
	return true
}

// Spoken reports whether id has been recorded.
func (l *Ledger) Spoken(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.seen[id]
	return ok
}

// Len returns the number of recorded ids.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}

// Reset clears the ledger. Called when a new conversation begins.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen = make(map[string]struct{})
}
