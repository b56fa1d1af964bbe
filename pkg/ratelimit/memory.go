package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

type window struct {
	count   int
	resetAt time.Time
}

// Memory is an in-process fixed-window limiter. Counters are lost on
// restart and not shared between instances.
type Memory struct {
	cfg    Config
	logger hclog.Logger
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

// MemoryOption configures a Memory limiter.
type MemoryOption func(*Memory)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) MemoryOption {
	return func(m *Memory) {
		m.logger = logger
	}
}

// NewMemory creates an in-process limiter.
func NewMemory(cfg Config, opts ...MemoryOption) (*Memory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Memory{
		cfg:     cfg,
		logger:  hclog.NewNullLogger(),
		now:     time.Now,
		windows: make(map[string]*window),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.Named("ratelimit")
	return m, nil
}

// Allow implements Limiter. It never returns an error.
func (m *Memory) Allow(_ context.Context, key string) (Decision, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(m.cfg.Window)}
		m.windows[key] = w
	}
	w.count++

	return decide(m.cfg, w.count, w.resetAt), nil
}

// Sweep drops windows that have ended and returns how many were removed.
func (m *Memory) Sweep() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, w := range m.windows {
		if !now.Before(w.resetAt) {
			delete(m.windows, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *Memory) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = m.cfg.Window
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Trace("swept expired rate limit windows", "removed", n)
			}
		}
	}
}
