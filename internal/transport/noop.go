package transport

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// NoopBackend satisfies Backend without any hardware. Every operation
// succeeds; notifications are counted and discarded. It is the fallback
// when no host stack is available and the default in tests.
type NoopBackend struct {
	logger *logrus.Logger

	mu        sync.RWMutex
	callbacks Callbacks
	advName   string

	initialized atomic.Bool
	running     atomic.Bool
	notified    atomic.Int64
}

// NewNoop creates a no-op backend.
func NewNoop(cfg Config, logger *logrus.Logger) *NoopBackend {
	if logger == nil {
		logger = logrus.New()
	}
	b := &NoopBackend{logger: logger, advName: cfg.DeviceName}
	b.callbacks = Callbacks{}.withDefaults()
	return b
}

func (b *NoopBackend) Initialize() bool {
	b.initialized.Store(true)
	return true
}

func (b *NoopBackend) Start() bool {
	b.running.Store(true)
	b.logger.Debug("Noop transport started")
	return true
}

func (b *NoopBackend) Stop() {
	b.running.Store(false)
}

func (b *NoopBackend) SetCallbacks(cb Callbacks) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callbacks = cb.withDefaults()
}

func (b *NoopBackend) Notify(characteristic string, devices []string) error {
	b.notified.Add(1)
	return nil
}

func (b *NoopBackend) UpdateAdvertisingName(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advName = name
}

func (b *NoopBackend) Status() map[string]interface{} {
	b.mu.RLock()
	name := b.advName
	b.mu.RUnlock()
	return map[string]interface{}{
		"backend":          "noop",
		"running":          b.running.Load(),
		"advertising_name": name,
		"notifications":    b.notified.Load(),
	}
}

// Notifications reports how many notifications were discarded.
func (b *NoopBackend) Notifications() int64 {
	return b.notified.Load()
}
