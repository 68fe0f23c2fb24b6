package transport

import (
	"runtime"

	"github.com/sirupsen/logrus"
)

// Kinds accepted by New. KindAuto picks the live backend where a host stack
// can plausibly exist and falls back to noop elsewhere.
const (
	KindAuto = "auto"
	KindNoop = "noop"
	KindLive = "live"
)

// New selects and constructs a backend. Selection happens exactly once;
// callers hold the returned Backend and never branch on hardware again.
func New(kind string, cfg Config, logger *logrus.Logger) Backend {
	if logger == nil {
		logger = logrus.New()
	}
	resolved := kind
	if resolved == "" || resolved == KindAuto {
		if runtime.GOOS == "linux" {
			resolved = KindLive
		} else {
			resolved = KindNoop
		}
	}

	logger.WithFields(logrus.Fields{
		"requested": kind,
		"selected":  resolved,
	}).Debug("Transport backend selected")

	if resolved == KindLive {
		return NewLoopBackend(cfg, logger)
	}
	return NewNoop(cfg, logger)
}
