// Package cache holds small in-process caches shared across analysis runs.
package cache

import (
	"log/slog"
	"sync"
	"time"

	"ricorrenti/internal/log"
)

// Cache is a keyed store of T values.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Size() int
}

// Cleaner is implemented by caches whose entries expire.
type Cleaner interface {
	CleanExpired() int
}

// Manager periodically evicts expired entries from its registered caches.
type Manager struct {
	mu       sync.Mutex
	caches   []Cleaner
	logger   *slog.Logger
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger: logger.With(log.FieldComponent, log.ComponentCache),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (m *Manager) Register(c Cleaner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caches = append(m.caches, c)
}

// StartCleanup runs Sweep every interval until Stop is called.
func (m *Manager) StartCleanup(interval time.Duration) {
	go m.loop(interval)
}

func (m *Manager) loop(interval time.Duration) {
	defer close(m.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-m.stop:
			return
		}
	}
}

// Sweep evicts expired entries from every registered cache and returns how
// many were removed.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	caches := append([]Cleaner(nil), m.caches...)
	m.mu.Unlock()

	removed := 0
	for _, c := range caches {
		removed += c.CleanExpired()
	}
	if removed > 0 {
		m.logger.Debug("Evicted expired cache entries", log.FieldCount, removed)
	}
	return removed
}

// Stop ends the cleanup loop started by StartCleanup. It is safe to call more
// than once, and a no-op when the loop was never started.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
}

// Wait blocks until the cleanup loop has exited.
func (m *Manager) Wait() {
	<-m.done
}
