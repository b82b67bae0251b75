package shutdown

import (
	"context"
	"sync"

	"github.com/betbot/traderelay/pkg/logger"
)

// Handler releases one resource. It must return once ctx is done.
type Handler func(ctx context.Context)

// Manager runs registered shutdown callbacks concurrently under one deadline.
type Manager struct {
	callbacks []namedHandler
	mu        sync.Mutex
}

type namedHandler struct {
	name string
	fn   Handler
}

func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown registers a callback; name only appears in logs.
func (m *Manager) OnShutdown(name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, namedHandler{name: name, fn: handler})
}

// Shutdown runs every callback and blocks until they finish or ctx expires.
// It reports whether all callbacks finished in time.
func (m *Manager) Shutdown(ctx context.Context) bool {
	m.mu.Lock()
	callbacks := m.callbacks
	m.mu.Unlock()

	if len(callbacks) == 0 {
		return true
	}

	logger.Infof("shutting down, %d callbacks", len(callbacks))

	var wg sync.WaitGroup
	wg.Add(len(callbacks))
	for _, cb := range callbacks {
		go func(h namedHandler) {
			defer wg.Done()
			h.fn(ctx)
			logger.Debugf("shutdown: %s done", h.name)
		}(cb)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
		return true
	case <-ctx.Done():
		logger.Warnf("shutdown timed out: %v", ctx.Err())
		return false
	}
}
