package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/srg/bleprint/internal/device"
	goble "github.com/srg/bleprint/internal/device/go-ble"
	"github.com/srg/bleprint/internal/events"
	"github.com/srg/bleprint/internal/session"
	"github.com/srg/bleprint/internal/store"
	"github.com/srg/bleprint/pkg/config"
)

// newPlatform creates the host BLE platform (can be overridden in tests).
var newPlatform = func(logger *logrus.Logger) device.Platform {
	return goble.NewPlatform(nil, logger)
}

// newStore opens the persistent record store (can be overridden in tests).
var newStore = func(cfg *config.Config, logger *logrus.Logger) store.KV {
	return store.NewFileKV(cfg.ResolvedStorePath(), logger)
}

func newSession(cfg *config.Config, logger *logrus.Logger) *session.Session {
	last := store.NewLastDevice(newStore(cfg, logger))
	return session.New(newPlatform(logger), last, events.NewHub(logger), cfg.SessionOptions(), logger)
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext(parent context.Context, onSignal func()) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			if onSignal != nil {
				onSignal()
			}
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

func shutdown(s *session.Session, logger *logrus.Logger) {
	if err := s.Shutdown(); err != nil {
		logger.WithField("error", err).Warn("Shutdown failed")
	}
}

func describe(d device.DeviceInfo) string {
	if name := d.DisplayName(); name != d.DeviceID {
		return fmt.Sprintf("%s (%s)", name, d.DeviceID)
	}
	return d.DeviceID
}
