package shutdown

import (
	"context"
	"sync"

	"github.com/tradewatch/cryptobot/pkg/logger"
)

// Handler is one shutdown callback.
type Handler func(ctx context.Context)

// Manager runs registered callbacks on graceful shutdown. Workers
// register a handler that finishes (or abandons) the current
// lease-protected unit of work before returning.
type Manager struct {
	callbacks []Handler
	mu        sync.Mutex
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown registers a callback.
func (m *Manager) OnShutdown(handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, handler)
}

// Shutdown runs all callbacks concurrently and blocks until they finish
// or ctx expires. ctx should carry a timeout.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	callbacks := m.callbacks
	m.mu.Unlock()

	if len(callbacks) == 0 {
		return
	}
	logger.Infof("shutting down, %d callbacks", len(callbacks))

	var wg sync.WaitGroup
	wg.Add(len(callbacks))
	for _, cb := range callbacks {
		go func(handler Handler) {
			defer wg.Done()
			handler(ctx)
		}(cb)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Infof("shutdown complete")
	case <-ctx.Done():
		logger.Warnf("shutdown timed out: %v", ctx.Err())
	}
}
