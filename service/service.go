// Package service wires the codecs, the notification pipeline, the sync
// session and a transport backend into the running chamber GATT service.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mycobotics/chamberlink/internal/codec"
	"github.com/mycobotics/chamberlink/internal/config"
	"github.com/mycobotics/chamberlink/internal/configstore"
	"github.com/mycobotics/chamberlink/internal/groutine"
	"github.com/mycobotics/chamberlink/internal/notify"
	"github.com/mycobotics/chamberlink/internal/syncproto"
	"github.com/mycobotics/chamberlink/internal/transport"
)

// Options configures a Service. Config is required; the rest defaults.
type Options struct {
	Config    *config.Config
	Backend   transport.Backend // nil selects per Config.Transport
	Store     *configstore.Store
	Callbacks Callbacks
	Logger    *logrus.Logger
}

// Service owns the characteristic registry, the notification pipeline, the
// document sync session and the transport backend.
type Service struct {
	cfg       *config.Config
	logger    *logrus.Logger
	backend   transport.Backend
	store     *configstore.Store
	session   *syncproto.Session
	pipeline  *notify.Pipeline
	reg       *registry
	callbacks Callbacks

	mu      sync.Mutex
	advName string
	running bool

	pumpDone <-chan struct{}
}

// New assembles an unstarted service.
func New(opts Options) (*Service, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("service: config is required")
	}
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}

	store := opts.Store
	if store == nil {
		store = configstore.New(cfg.DocumentPath, cfg.Sync.MaxDocumentSize, logger)
	}

	session := syncproto.NewSession(store, syncproto.Config{
		ChunkSize:         cfg.Sync.ChunkSize,
		MTU:               cfg.Sync.MTU,
		WriteInterval:     cfg.Sync.WriteInterval,
		WriteToken:        cfg.WriteToken,
		StagingDir:        filepath.Dir(store.Path()),
		TransferIdleLimit: cfg.Sync.TransferIdleLimit,
	}, logger)

	backend := opts.Backend
	if backend == nil {
		backend = transport.New(cfg.Transport, transport.Config{
			ServiceUUID:     ServiceUUID,
			Characteristics: TransportDefs(),
			DeviceName:      cfg.AdvertisingPrefix,
			StartTimeout:    cfg.Backend.StartTimeout,
			ShutdownTimeout: cfg.Backend.ShutdownTimeout,
			OpTimeout:       cfg.Backend.OpTimeout,
		}, logger)
	}

	policy, err := notify.ParsePolicy(cfg.Queue.Policy)
	if err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}

	s := &Service{
		cfg:       cfg,
		logger:    logger,
		backend:   backend,
		store:     store,
		session:   session,
		reg:       newRegistry(),
		callbacks: opts.Callbacks.withDefaults(),
		advName:   cfg.AdvertisingPrefix,
	}
	s.pipeline = notify.New(notify.Config{
		Capacity:             cfg.Queue.Capacity,
		EnqueueTimeout:       cfg.Queue.EnqueueTimeout,
		Policy:               policy,
		SlowPublishThreshold: cfg.Queue.SlowPublishThreshold,
	}, backend.Notify, logger)

	return s, nil
}

// Initialize prepares the backend and wires callbacks. Must be called
// before Start.
func (s *Service) Initialize() error {
	if !s.backend.Initialize() {
		return fmt.Errorf("service: backend initialization failed")
	}
	s.backend.SetCallbacks(transport.Callbacks{
		ReadCharacteristic:  s.readCharacteristic,
		WriteCharacteristic: s.writeCharacteristic,
		DeviceConnected: func(device string) {
			s.logger.WithField("device", device).Info("Device connected")
		},
		DeviceDisconnected: func(device string) {
			s.logger.WithField("device", device).Info("Device disconnected")
		},
	})
	s.session.SetVersionChangeHandler(s.onDocumentChange)
	return nil
}

// Start brings the service online: backend, pipeline, response pump.
func (s *Service) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	if !s.backend.Start() {
		return fmt.Errorf("service: backend failed to start")
	}
	s.pipeline.Start()
	s.pumpDone = groutine.GoDone(context.Background(), "sync-response-pump", s.pumpResponses)

	s.refreshAdvertisingFromDocument()
	s.logger.WithField("service", ServiceUUID).Info("Chamber service started")
	return nil
}

// Stop shuts the service down: intake off, consumer joined, backend torn
// down, each step bounded.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	timeout := s.cfg.Backend.ShutdownTimeout
	s.pipeline.Stop(timeout)
	s.session.Close()
	if s.pumpDone != nil {
		select {
		case <-s.pumpDone:
		case <-time.After(timeout):
			s.logger.Error("Response pump did not stop in time")
		}
	}
	s.backend.Stop()
	s.logger.Info("Chamber service stopped")
}

// PushSnapshot encodes the tick's values and enqueues notifications for
// the characteristics whose encodings changed. Called once per control
// loop tick by the owning collaborator.
func (s *Service) PushSnapshot(snap Snapshot) {
	s.publish(KindEnvironmental, snap.Environmental.Encode())
	s.publish(KindControlTargets, snap.Targets.Encode())
	s.publish(KindStageState, snap.Stage.Encode())
	s.publish(KindOverrideBits, snap.Overrides.Encode())
	s.publish(KindStatusFlags, snap.Status.Encode())
	s.publish(KindActuatorStatus, snap.Actuators.Encode())

	if snap.Species != "" || snap.StageName != "" {
		s.updateAdvertisingName(snap.Species, snap.StageName)
	}
}

// Status reports a structured view for diagnostics.
func (s *Service) Status() map[string]interface{} {
	metrics := s.pipeline.Metrics()
	out := map[string]interface{}{
		"backend":        s.backend.Status(),
		"queue_depth":    s.pipeline.QueueLen(),
		"published":      metrics.TotalPublished(),
		"dropped":        metrics.TotalDropped(),
		"slow_publishes": metrics.SlowPublishes,
		"critical_drops": metrics.CriticalDrops,
		"sync_receiving": s.session.Receiving(),
	}
	if v, err := s.store.Version(); err == nil {
		out["document"] = map[string]interface{}{
			"hash":     v.ContentHash,
			"size":     v.SizeBytes,
			"modified": v.LastModified,
		}
	}
	return out
}

// Metrics exposes the pipeline counters.
func (s *Service) Metrics() notify.Snapshot {
	return s.pipeline.Metrics()
}

func (s *Service) publish(kind Kind, data []byte) {
	if !s.reg.update(kind, data) {
		return
	}
	s.pipeline.Enqueue(kind.ID(), kind.Priority(), nil)
}

func (s *Service) readCharacteristic(id string) []byte {
	def, ok := kindByID[id]
	if !ok || !def.readable {
		return nil
	}
	return s.reg.value(def.kind)
}

func (s *Service) writeCharacteristic(id string, data []byte, device string) error {
	def, ok := kindByID[id]
	if !ok {
		return fmt.Errorf("unknown characteristic %q", id)
	}
	if !def.writable {
		return fmt.Errorf("characteristic %q is read-only", id)
	}

	switch def.kind {
	case KindControlTargets:
		targets, err := codec.DecodeControlTargets(data)
		if err != nil {
			return err
		}
		if err := s.callbacks.SetTargets(targets); err != nil {
			return err
		}
		s.publish(KindControlTargets, targets.Encode())

	case KindOverrideBits:
		overrides, err := codec.DecodeOverrideBits(data)
		if err != nil {
			return err
		}
		if overrides.EmergencyStop() {
			s.logger.WithField("device", device).Warn("Emergency stop requested")
		}
		if err := s.callbacks.SetOverrides(overrides); err != nil {
			return err
		}
		s.publish(KindOverrideBits, overrides.Encode())

	case KindStageState:
		stage, err := codec.DecodeStageState(data)
		if err != nil {
			return err
		}
		if err := s.callbacks.SetStage(stage); err != nil {
			return err
		}
		s.publish(KindStageState, stage.Encode())

	case KindConfigControl:
		s.session.HandleControl(data)

	case KindConfigData:
		s.session.HandleChunk(data)

	default:
		return fmt.Errorf("characteristic %q does not accept writes", id)
	}
	return nil
}

// pumpResponses drains the session's push channel into the response
// characteristic. Exits when the session closes its channel.
func (s *Service) pumpResponses(ctx context.Context) {
	for frame := range s.session.Responses() {
		data, err := json.Marshal(frame)
		if err != nil {
			s.logger.WithError(err).Error("Failed to encode response frame")
			continue
		}
		s.reg.update(KindConfigResponse, data)
		s.pipeline.Enqueue(KindConfigResponse.ID(), KindConfigResponse.Priority(), nil)
	}
}

// onDocumentChange runs after a committed transfer replaced the document.
func (s *Service) onDocumentChange(v configstore.Version) {
	s.logger.WithFields(logrus.Fields{
		"hash": v.ContentHash,
		"size": v.SizeBytes,
	}).Info("Configuration document updated")
	s.refreshAdvertisingFromDocument()
}

// refreshAdvertisingFromDocument derives the advertising identity from the
// persisted document, if one exists.
func (s *Service) refreshAdvertisingFromDocument() {
	doc, _, err := s.store.Read()
	if err != nil || doc == nil {
		return
	}
	species, _ := doc["species"].(string)
	stage, _ := doc["stage"].(string)
	if species == "" && stage == "" {
		return
	}
	s.updateAdvertisingName(species, stage)
}

// updateAdvertisingName pushes "<prefix>-<species><stage>" to the backend
// when it changes. Names are lowercased with spaces removed so they fit
// the advertising payload.
func (s *Service) updateAdvertisingName(species, stage string) {
	name := fmt.Sprintf("%s-%s%s", s.cfg.AdvertisingPrefix, compactName(species), compactName(stage))

	s.mu.Lock()
	changed := name != s.advName
	if changed {
		s.advName = name
	}
	s.mu.Unlock()

	if changed {
		s.logger.WithField("name", name).Debug("Advertising name changed")
		s.backend.UpdateAdvertisingName(name)
	}
}

func compactName(v string) string {
	return strings.ToLower(strings.ReplaceAll(v, " ", ""))
}
