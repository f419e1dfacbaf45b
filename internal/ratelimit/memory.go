package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	start time.Time
	count int
}

// Memory is a fixed-window limiter local to one process. Expired windows
// are swept on access, so the map only holds keys seen within one window.
type Memory struct {
	mu        sync.Mutex
	config    Config
	windows   map[string]*window
	now       func() time.Time
	lastSweep time.Time
}

func NewMemory(config Config) *Memory {
	return &Memory{
		config:  config,
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

func (l *Memory) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	if l.config.Limit <= 0 {
		return true, 0, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.config.Window {
		w = &window{start: now}
		l.windows[key] = w
	}
	if w.count >= l.config.Limit {
		return false, w.start.Add(l.config.Window).Sub(now), nil
	}
	w.count++
	return true, 0, nil
}

func (l *Memory) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
	return nil
}

func (l *Memory) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.config.Window {
		return
	}
	l.lastSweep = now
	for key, w := range l.windows {
		if now.Sub(w.start) >= l.config.Window {
			delete(l.windows, key)
		}
	}
}
