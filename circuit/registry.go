package circuit

import (
	"net/url"
	"strings"
	"sync"
	"time"
)

// Config configures the breakers created by a Registry.
type Config struct {
	Enabled   bool          `yaml:"enabled"`
	Threshold int           `yaml:"threshold"`
	Cooldown  time.Duration `yaml:"cooldown"`
}

// KeyFunc maps a request target to the key its breaker is shared under.
type KeyFunc func(target string) string

// HostKey keys breakers by scheme and host, so every path and query of one
// upstream shares a breaker. Targets that are not absolute URLs are used as is.
func HostKey(target string) string {
	target = strings.TrimSpace(target)
	u, err := url.Parse(target)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return target
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}

// Registry lazily creates one breaker per upstream, keyed by HostKey unless
// SetKeyFunc says otherwise.
type Registry struct {
	cfg   Config
	clock func() time.Time
	key   KeyFunc

	mu       sync.RWMutex
	breakers map[string]Breaker
}

// NewRegistry returns a registry creating breakers from cfg.
func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg, breakers: make(map[string]Breaker)}
}

// SetKeyFunc replaces HostKey. It affects lookups made after the call.
func (r *Registry) SetKeyFunc(f KeyFunc) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.key = f
	r.mu.Unlock()
}

// Len returns the number of breakers created so far.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.breakers)
}

// SetClock overrides the clock of breakers created after the call.
func (r *Registry) SetClock(f func() time.Time) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.clock = f
	r.mu.Unlock()
}

// Get returns the breaker shared by target's key, creating it on first use.
// It returns nil when the registry is nil or disabled.
func (r *Registry) Get(target string) Breaker {
	if r == nil || !r.cfg.Enabled {
		return nil
	}
	r.mu.RLock()
	keyFn := r.key
	r.mu.RUnlock()
	if keyFn == nil {
		keyFn = HostKey
	}
	key := keyFn(target)

	r.mu.RLock()
	cb, ok := r.breakers[key]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[key]; ok {
		return cb
	}
	if r.breakers == nil {
		r.breakers = make(map[string]Breaker)
	}
	b := NewConsecutiveFailureBreaker(r.cfg.Threshold, r.cfg.Cooldown)
	if r.clock != nil {
		b.nowFn = r.clock
	}
	r.breakers[key] = b
	return b
}
