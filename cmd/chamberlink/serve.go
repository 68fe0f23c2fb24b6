package main

import (
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mycobotics/chamberlink/internal/codec"
	"github.com/mycobotics/chamberlink/internal/config"
	"github.com/mycobotics/chamberlink/service"
)

// serveCmd runs the chamber service until interrupted.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chamber connectivity service",
	Long: `Run the chamber BLE service: advertise the chamber, publish telemetry
notifications, accept control writes, and serve configuration document sync.

Without a sensor source wired in, telemetry is simulated so companion apps
can be developed against a software-only chamber.`,
	RunE: runServe,
}

var (
	serveTransport string
	serveDocument  string
	serveTick      time.Duration
)

func init() {
	serveCmd.Flags().StringVarP(&serveTransport, "transport", "t", "", "Transport backend (auto, noop, live)")
	serveCmd.Flags().StringVarP(&serveDocument, "document", "D", "", "Path to the configuration document")
	serveCmd.Flags().DurationVar(&serveTick, "tick", 2*time.Second, "Telemetry snapshot interval")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if serveTransport != "" {
		cfg.Transport = serveTransport
	}
	if serveDocument != "" {
		cfg.DocumentPath = serveDocument
	}

	logger, err := configureLogger(cmd, cfg.LogLevel)
	if err != nil {
		return err
	}

	svc, err := service.New(service.Options{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}
	if err := svc.Initialize(); err != nil {
		return err
	}
	if err := svc.Start(); err != nil {
		return err
	}
	defer svc.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	logger.WithFields(logrus.Fields{
		"transport": cfg.Transport,
		"document":  cfg.DocumentPath,
		"tick":      serveTick,
	}).Info("Serving; press Ctrl+C to stop")

	ticker := time.NewTicker(serveTick)
	defer ticker.Stop()

	sim := newSimulator()
	for {
		select {
		case <-ticker.C:
			svc.PushSnapshot(sim.next())
		case <-sigCh:
			logger.Info("Shutdown signal received")
			return nil
		}
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// simulator produces slowly drifting telemetry so notifications exercise
// the changed-value detection instead of firing every tick.
type simulator struct {
	start time.Time
	tick  int
}

func newSimulator() *simulator {
	return &simulator{start: time.Now()}
}

func (s *simulator) next() service.Snapshot {
	s.tick++
	phase := float64(s.tick) / 20.0

	return service.Snapshot{
		Environmental: codec.Environmental{
			CO2PPM:   600 + int(200*math.Sin(phase)),
			TempX10:  220 + int(10*math.Sin(phase/3)),
			RHX10:    850 + int(40*math.Cos(phase/2)),
			LightRaw: 300 + s.tick%8,
			UptimeMS: time.Since(s.start).Milliseconds(),
		},
		Targets: codec.ControlTargets{
			TempMinX10: 180,
			TempMaxX10: 240,
			RHMinX10:   850,
			CO2Max:     800,
			LightMode:  codec.LightCycle,
			OnMin:      720,
			OffMin:     720,
		},
		Stage: codec.StageState{
			Mode:         codec.ModeFull,
			SpeciesID:    1,
			StageID:      1,
			StartTS:      s.start.Unix(),
			ExpectedDays: 14,
		},
		Status:    codec.StatusFlags{Flags: codec.StatusStageReady | codec.StatusSimulation},
		Actuators: codec.ActuatorStatus{Bits: codec.ActuatorFan},
	}
}
