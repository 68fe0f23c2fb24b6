package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/mycobotics/chamberlink/internal/groutine"
)

// subscriberSet tracks the live notifiers for one characteristic, keyed by
// device address.
type subscriberSet struct {
	mu        sync.RWMutex
	notifiers map[string]ble.Notifier
}

func newSubscriberSet() *subscriberSet {
	return &subscriberSet{notifiers: make(map[string]ble.Notifier)}
}

func (s *subscriberSet) add(addr string, n ble.Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifiers[addr] = n
}

func (s *subscriberSet) remove(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.notifiers, addr)
}

// snapshot returns the notifiers for the given devices, or all subscribers
// when devices is empty.
func (s *subscriberSet) snapshot(devices []string) map[string]ble.Notifier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]ble.Notifier)
	if len(devices) == 0 {
		for addr, n := range s.notifiers {
			out[addr] = n
		}
		return out
	}
	for _, addr := range devices {
		if n, ok := s.notifiers[addr]; ok {
			out[addr] = n
		}
	}
	return out
}

func (s *subscriberSet) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.notifiers)
}

// LoopBackend serves a GATT peripheral over the host Bluetooth stack. All
// stack interaction runs on a dedicated event loop; callers wait on handles
// with their own timeouts. If the host stack cannot be opened at Start, the
// backend degrades to status-only reporting instead of failing the process.
type LoopBackend struct {
	cfg    Config
	logger *logrus.Logger
	loop   *Loop

	mu        sync.RWMutex
	callbacks Callbacks
	advName   string
	advCancel context.CancelFunc

	dev         ble.Device
	subscribers *hashmap.Map[string, *subscriberSet]

	initialized atomic.Bool
	running     atomic.Bool
	degraded    atomic.Bool
	notified    atomic.Int64
}

// NewLoopBackend creates an unstarted live backend.
func NewLoopBackend(cfg Config, logger *logrus.Logger) *LoopBackend {
	if logger == nil {
		logger = logrus.New()
	}
	b := &LoopBackend{
		cfg:         cfg,
		logger:      logger,
		loop:        NewLoop(logger),
		advName:     cfg.DeviceName,
		subscribers: hashmap.New[string, *subscriberSet](),
	}
	b.callbacks = Callbacks{}.withDefaults()
	return b
}

// Initialize prepares in-process state. It never touches the host stack.
func (b *LoopBackend) Initialize() bool {
	if !b.initialized.CompareAndSwap(false, true) {
		return true
	}
	for _, def := range b.cfg.Characteristics {
		if def.Notifiable {
			b.subscribers.Set(def.ID, newSubscriberSet())
		}
	}
	return true
}

// Start launches the event loop and attempts one bounded open of the host
// stack. A stack failure leaves the backend running in degraded mode.
func (b *LoopBackend) Start() bool {
	if !b.running.CompareAndSwap(false, true) {
		return true
	}
	if err := b.loop.Start(b.cfg.StartTimeout); err != nil {
		b.logger.WithError(err).Error("Event loop failed to start")
		b.degraded.Store(true)
		return true
	}

	err := b.loop.Run("open-host-stack", b.cfg.StartTimeout, b.openStack)
	if err != nil {
		b.logger.WithError(err).Warn("Host stack unavailable, serving status only")
		b.degraded.Store(true)
	}
	return true
}

// openStack runs on the loop goroutine.
func (b *LoopBackend) openStack() error {
	dev, err := DeviceFactory()
	if err != nil {
		return fmt.Errorf("open host stack: %w", err)
	}

	svc, err := b.buildService()
	if err != nil {
		_ = dev.Stop()
		return err
	}
	if err := dev.AddService(svc); err != nil {
		_ = dev.Stop()
		return fmt.Errorf("register service: %w", err)
	}

	b.mu.Lock()
	b.dev = dev
	name := b.advName
	b.mu.Unlock()

	b.startAdvertising(name)
	b.logger.WithFields(logrus.Fields{
		"service":         b.cfg.ServiceUUID,
		"characteristics": len(b.cfg.Characteristics),
		"name":            name,
	}).Info("GATT peripheral online")
	return nil
}

func (b *LoopBackend) buildService() (*ble.Service, error) {
	svcUUID, err := ble.Parse(b.cfg.ServiceUUID)
	if err != nil {
		return nil, fmt.Errorf("parse service uuid %q: %w", b.cfg.ServiceUUID, err)
	}
	svc := ble.NewService(svcUUID)

	for _, def := range b.cfg.Characteristics {
		uuid, err := ble.Parse(def.UUID)
		if err != nil {
			return nil, fmt.Errorf("parse characteristic uuid %q: %w", def.UUID, err)
		}
		c := svc.NewCharacteristic(uuid)
		id := def.ID

		if def.Readable {
			c.HandleRead(ble.ReadHandlerFunc(func(req ble.Request, rsp ble.ResponseWriter) {
				b.mu.RLock()
				read := b.callbacks.ReadCharacteristic
				b.mu.RUnlock()
				if _, err := rsp.Write(read(id)); err != nil {
					b.logger.WithError(err).WithField("characteristic", id).Debug("Read response failed")
				}
			}))
		}
		if def.Writable {
			c.HandleWrite(ble.WriteHandlerFunc(func(req ble.Request, rsp ble.ResponseWriter) {
				addr := req.Conn().RemoteAddr().String()
				data := append([]byte(nil), req.Data()...)
				b.mu.RLock()
				write := b.callbacks.WriteCharacteristic
				b.mu.RUnlock()
				if err := write(id, data, addr); err != nil {
					b.logger.WithError(err).WithFields(logrus.Fields{
						"characteristic": id,
						"device":         addr,
					}).Warn("Inbound write rejected")
				}
			}))
		}
		if def.Notifiable {
			c.HandleNotify(ble.NotifyHandlerFunc(func(req ble.Request, n ble.Notifier) {
				b.handleSubscription(id, req, n)
			}))
		}
	}
	return svc, nil
}

// handleSubscription runs for the lifetime of one subscription; go-ble
// invokes it on its own goroutine and the subscription ends when it returns.
func (b *LoopBackend) handleSubscription(id string, req ble.Request, n ble.Notifier) {
	addr := req.Conn().RemoteAddr().String()
	set, ok := b.subscribers.Get(id)
	if !ok {
		return
	}
	set.add(addr, n)

	b.mu.RLock()
	connected := b.callbacks.DeviceConnected
	disconnected := b.callbacks.DeviceDisconnected
	b.mu.RUnlock()

	b.logger.WithFields(logrus.Fields{
		"characteristic": id,
		"device":         addr,
	}).Info("Device subscribed")
	connected(addr)

	<-n.Context().Done()

	set.remove(addr)
	b.logger.WithFields(logrus.Fields{
		"characteristic": id,
		"device":         addr,
	}).Info("Device unsubscribed")
	disconnected(addr)
}

// Stop tears down advertising and the host stack, then joins the loop.
// Idempotent.
func (b *LoopBackend) Stop() {
	if !b.running.CompareAndSwap(true, false) {
		return
	}
	_ = b.loop.Run("close-host-stack", b.cfg.OpTimeout, func() error {
		b.mu.Lock()
		cancel := b.advCancel
		dev := b.dev
		b.advCancel = nil
		b.dev = nil
		b.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if dev != nil {
			if err := dev.Stop(); err != nil {
				b.logger.WithError(err).Warn("Host stack shutdown reported error")
			}
		}
		return nil
	})
	b.loop.Stop(b.cfg.ShutdownTimeout)
}

func (b *LoopBackend) SetCallbacks(cb Callbacks) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callbacks = cb.withDefaults()
}

// Notify pushes the current value of a characteristic to subscribed
// devices. The value is re-read at delivery time so subscribers always get
// the freshest encoding. An empty device list fans out to all subscribers.
func (b *LoopBackend) Notify(characteristic string, devices []string) error {
	if b.degraded.Load() {
		return nil
	}
	set, ok := b.subscribers.Get(characteristic)
	if !ok {
		return fmt.Errorf("characteristic %q is not notifiable", characteristic)
	}

	b.mu.RLock()
	read := b.callbacks.ReadCharacteristic
	b.mu.RUnlock()
	value := read(characteristic)

	return b.loop.Run("notify-"+characteristic, b.cfg.OpTimeout, func() error {
		var lastErr error
		for addr, n := range set.snapshot(devices) {
			payload := value
			if limit := n.Cap(); limit > 0 && len(payload) > limit {
				payload = payload[:limit]
			}
			if _, err := n.Write(payload); err != nil {
				b.logger.WithError(err).WithFields(logrus.Fields{
					"characteristic": characteristic,
					"device":         addr,
				}).Debug("Notification write failed")
				lastErr = err
				continue
			}
			b.notified.Add(1)
		}
		return lastErr
	})
}

// UpdateAdvertisingName restarts advertising under a new name. In degraded
// mode only the reported name changes.
func (b *LoopBackend) UpdateAdvertisingName(name string) {
	b.mu.Lock()
	b.advName = name
	b.mu.Unlock()

	if b.degraded.Load() || !b.running.Load() {
		return
	}
	err := b.loop.Run("restart-advertising", b.cfg.OpTimeout, func() error {
		b.mu.Lock()
		cancel := b.advCancel
		b.advCancel = nil
		b.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		b.startAdvertising(name)
		return nil
	})
	if err != nil {
		b.logger.WithError(err).Warn("Failed to restart advertising")
	}
}

// startAdvertising runs on the loop goroutine.
func (b *LoopBackend) startAdvertising(name string) {
	b.mu.Lock()
	dev := b.dev
	if dev == nil {
		b.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.advCancel = cancel
	b.mu.Unlock()

	svcUUID := ble.MustParse(b.cfg.ServiceUUID)
	groutine.Go(ctx, "ble-advertise", func(ctx context.Context) {
		err := dev.AdvertiseNameAndServices(ctx, name, svcUUID)
		if err != nil && ctx.Err() == nil {
			b.logger.WithError(err).Warn("Advertising stopped unexpectedly")
		}
	})
}

func (b *LoopBackend) Status() map[string]interface{} {
	b.mu.RLock()
	name := b.advName
	b.mu.RUnlock()

	subs := make(map[string]int)
	b.subscribers.Range(func(id string, set *subscriberSet) bool {
		subs[id] = set.count()
		return true
	})

	return map[string]interface{}{
		"backend":          "live",
		"running":          b.running.Load(),
		"degraded":         b.degraded.Load(),
		"advertising_name": name,
		"notifications":    b.notified.Load(),
		"subscribers":      subs,
	}
}
