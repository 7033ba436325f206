// Package telemetry provides the structured logging and metrics surfaces shared by
// every slimgo subsystem. It upgrades the teacher's bare log.Printf
// (federation/federation_server.go) to zap, matching the structured-logging
// dependency already present in the reference corpus (nmxmxh-inos_v1/go.mod).
package telemetry

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu  sync.RWMutex
	log *zap.Logger = zap.NewNop()
)

// Configure installs the process-wide logger. Called once from cmd/slimgo.
func Configure(development bool) (*zap.Logger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	mu.Lock()
	log = l
	mu.Unlock()
	return l, nil
}

// L returns the process-wide logger, safe for concurrent use before or after
// Configure (defaults to a no-op logger so packages can log unconditionally).
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// Named returns a child logger scoped to a subsystem, mirroring the teacher's
// per-component prefixing convention (federation_server.go's "Federation server
// listening on ..." style messages, promoted to a structured field).
func Named(component string) *zap.Logger {
	return L().Named(component)
}
