package access

import "sync"

// Config is a point-in-time view of the force-join policy.
type Config struct {
	Active   bool     `json:"active"`
	Channels []string `json:"channels"`
}

// Enforced reports whether the gate must query membership at all.
func (c Config) Enforced() bool { return c.Active && len(c.Channels) > 0 }

// ForceJoin is the mutable channel set shared by the command handlers and
// the gate. Channels keep insertion order and never repeat.
type ForceJoin struct {
	mu       sync.RWMutex
	active   bool
	channels []string
}

// NewForceJoin restores a saved policy. Duplicates are dropped and an
// empty set is never active.
func NewForceJoin(cfg Config) *ForceJoin {
	f := &ForceJoin{}
	for _, ch := range cfg.Channels {
		if ch != "" && !f.hasLocked(ch) {
			f.channels = append(f.channels, ch)
		}
	}
	f.active = cfg.Active && len(f.channels) > 0
	return f
}

func (f *ForceJoin) Snapshot() Config {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return Config{Active: f.active, Channels: append([]string(nil), f.channels...)}
}

// Add appends channels not yet present and activates the policy when the
// set is non-empty.
func (f *ForceJoin) Add(channels ...string) (added, present []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range channels {
		if ch == "" {
			continue
		}
		if f.hasLocked(ch) {
			present = append(present, ch)
			continue
		}
		f.channels = append(f.channels, ch)
		added = append(added, ch)
	}
	if len(f.channels) > 0 {
		f.active = true
	}
	return added, present
}

// Remove deletes the given channels. The policy turns inactive once the
// set is empty.
func (f *ForceJoin) Remove(channels ...string) (removed, notFound []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range channels {
		idx := f.indexLocked(ch)
		if idx < 0 {
			notFound = append(notFound, ch)
			continue
		}
		f.channels = append(f.channels[:idx], f.channels[idx+1:]...)
		removed = append(removed, ch)
	}
	if len(f.channels) == 0 {
		f.active = false
	}
	return removed, notFound
}

// Clear empties the set and deactivates the policy.
func (f *ForceJoin) Clear() {
	f.mu.Lock()
	f.channels = nil
	f.active = false
	f.mu.Unlock()
}

func (f *ForceJoin) hasLocked(ch string) bool { return f.indexLocked(ch) >= 0 }

func (f *ForceJoin) indexLocked(ch string) int {
	for i, c := range f.channels {
		if c == ch {
			return i
		}
	}
	return -1
}
