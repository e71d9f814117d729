// Package service assembles the daemon: one controller on one device, the
// event bus, metrics, the NATS transport and config hot-reload.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/smazurov/mkctl/internal/config"
	"github.com/smazurov/mkctl/internal/controller"
	"github.com/smazurov/mkctl/internal/device"
	_ "github.com/smazurov/mkctl/internal/device/memory" // registers the "memory" driver
	"github.com/smazurov/mkctl/internal/events"
	"github.com/smazurov/mkctl/internal/led"
	"github.com/smazurov/mkctl/internal/logging"
	"github.com/smazurov/mkctl/internal/metrics"
	"github.com/smazurov/mkctl/internal/metrics/collectors"
	"github.com/smazurov/mkctl/internal/metrics/exporters"
	"github.com/smazurov/mkctl/internal/nats"
	"github.com/smazurov/mkctl/internal/systemd"
	"github.com/smazurov/mkctl/internal/version"
)

// ErrStopTimedOut is returned by Stop when the worker outlives the join
// timeout. The device is left open.
var ErrStopTimedOut = errors.New("controller did not stop within the join timeout")

// Service owns every long-lived component of the daemon.
type Service struct {
	opts   Options
	logger *slog.Logger

	bus       *events.Bus
	ctrl      *controller.Controller
	collector *collectors.ControllerCollector
	statusLED *led.Manager
	metrics   *exporters.Server
	natsSrv   *nats.Server
	bridge    *nats.Bridge
	watcher   *config.Watcher[Options]
	notifier  *systemd.Notifier

	mu       sync.Mutex
	started  bool
	cancelWD context.CancelFunc
	wdDone   chan struct{}
}

// New validates opts, initializes logging and opens the device. Nothing is
// started until Start.
func New(opts Options) (*Service, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	logging.Initialize(opts.LoggingConfig())
	logger := logging.GetLogger("service")

	id, _ := device.ParseIdentifier(opts.Device)
	model, _ := device.ParseModel(opts.DeviceModel)

	bus := events.New()
	ctrlOpts := &controller.Options{
		Logger:       logging.GetLogger("controller").With("controller", opts.ControllerName),
		IdleInterval: opts.ControllerIdle,
	}
	events.ControllerHooks(bus, opts.ControllerName, ctrlOpts)

	ctrl, err := controller.Create(id, model, ctrlOpts)
	if err != nil {
		return nil, err
	}

	s := &Service{
		opts:     opts,
		logger:   logger,
		bus:      bus,
		ctrl:     ctrl,
		notifier: systemd.NewNotifier(logging.GetLogger("systemd")),
	}

	ledLogger := logging.GetLogger("led")
	s.statusLED = led.NewManager(led.New(opts.StatusLED, ledLogger), bus, opts.ControllerName, ledLogger)

	if opts.MetricsEnabled {
		s.collector = collectors.NewControllerCollector(bus, logging.GetLogger("metrics"))
		s.metrics = exporters.NewServer(opts.MetricsAddr, logging.GetLogger("metrics"))
	}

	if opts.NATSEnabled && opts.NATSEmbedded {
		s.natsSrv = nats.NewServer(nats.ServerOptions{
			Host:   opts.NATSHost,
			Port:   opts.NATSPort,
			Name:   "mkctl-" + opts.ControllerName,
			Logger: logging.GetLogger("nats"),
		})
	}

	if opts.Config != "" {
		s.watcher = config.NewConfigWatcher(opts.Config, loadOptions, logging.GetLogger("config"),
			config.WithErrorHandler[Options](func(err error) {
				logger.Warn("Config reload failed, keeping previous settings", "error", err)
			}),
		)
		s.watcher.OnReload(s.applyReload)
	}

	logger.Info("Service created",
		"version", version.Version,
		"device", id.String(),
		"model", string(model),
		"controller", opts.ControllerName)
	return s, nil
}

// loadOptions reloads options from the file and environment. Flags are not
// re-read; they only matter at startup.
func loadOptions(path string) (Options, error) {
	opts := DefaultOptions()
	opts.Config = path
	if err := config.LoadConfig(&opts, nil); err != nil {
		return Options{}, err
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// applyReload applies the settings that can change at runtime. Only logging
// is live; everything else is reported and needs a restart.
func (s *Service) applyReload(next Options) {
	logging.Initialize(next.LoggingConfig())
	s.logger.Info("Logging configuration reloaded", "level", next.LoggingLevel, "format", next.LoggingFormat)

	s.mu.Lock()
	prev := s.opts
	s.opts.LoggingLevel = next.LoggingLevel
	s.opts.LoggingFormat = next.LoggingFormat
	s.opts.LoggingModules = next.LoggingModules
	s.mu.Unlock()

	if next.Device != prev.Device || next.DeviceModel != prev.DeviceModel ||
		next.ControllerName != prev.ControllerName || next.ControllerIdle != prev.ControllerIdle ||
		next.NATSEnabled != prev.NATSEnabled || next.NATSURL != prev.NATSURL ||
		next.MetricsEnabled != prev.MetricsEnabled || next.MetricsAddr != prev.MetricsAddr {
		s.logger.Warn("Configuration changed outside [logging], restart to apply")
	}
}

// Start brings up metrics, NATS and the config watcher, and starts the
// controller when auto-start is set. ctx bounds the systemd watchdog.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.New("service already started")
	}

	if s.collector != nil {
		s.collector.Start()
	}
	s.statusLED.Start()
	if s.metrics != nil {
		if err := s.metrics.Start(); err != nil {
			s.teardown(context.Background())
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	if s.opts.NATSEnabled {
		url := s.opts.NATSURL
		if s.natsSrv != nil {
			if err := s.natsSrv.Start(); err != nil {
				s.teardown(context.Background())
				return err
			}
			url = s.natsSrv.ClientURL()
		}
		s.bridge = nats.NewBridge(url, s.opts.ControllerName, s.ctrl, s.bus, logging.GetLogger("nats"))
		if err := s.bridge.Start(); err != nil {
			s.teardown(context.Background())
			return fmt.Errorf("failed to start NATS bridge: %w", err)
		}
	}

	if s.opts.ControllerAutoStart {
		if err := s.ctrl.Start(); err != nil {
			s.teardown(context.Background())
			return err
		}
	}

	if s.watcher != nil {
		if err := s.watcher.Start(); err != nil {
			s.logger.Warn("Failed to start config watcher, hot-reload disabled", "error", err)
		}
	}

	wdCtx, cancel := context.WithCancel(ctx)
	s.cancelWD = cancel
	s.wdDone = make(chan struct{})
	go func() {
		defer close(s.wdDone)
		s.notifier.RunWatchdog(wdCtx, func() bool { return s.ctrl.Err() == nil })
	}()

	s.started = true
	s.notifier.Ready()
	s.notifier.Status("controller %s %s", s.opts.ControllerName, s.ctrl.State())
	s.logger.Info("Service started", "nats", s.NATSURL(), "metrics", s.MetricsAddr())
	return nil
}

// Stop stops the controller, waits for its worker, releases the device and
// shuts the transports down. It returns ErrStopTimedOut if the worker did not
// exit within the join timeout.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notifier.Stopping()
	s.logger.Info("Stopping service")

	err := s.teardown(ctx)
	s.started = false
	return err
}

// teardown stops whatever was started, in reverse order. Caller holds mu.
func (s *Service) teardown(ctx context.Context) error {
	var errs []error

	if s.cancelWD != nil {
		s.cancelWD()
		<-s.wdDone
		s.cancelWD = nil
	}

	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			s.logger.Warn("Failed to stop config watcher", "error", err)
		}
	}

	// Remote producers go first so nothing new arrives while draining.
	if s.bridge != nil {
		s.bridge.Stop()
		s.bridge = nil
	}

	s.ctrl.Stop()
	switch state := s.ctrl.Join(s.opts.ControllerJoin); state {
	case controller.StateJoinTimedOut:
		s.logger.Error("Controller worker did not stop", "timeout", s.opts.ControllerJoin)
		errs = append(errs, ErrStopTimedOut)
	default:
		if latched := s.ctrl.Err(); latched != nil {
			s.logger.Warn("Controller stopped with error", "error", latched, "code", controller.Code(latched))
		}
		if err := s.ctrl.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	s.statusLED.Stop()

	if s.natsSrv != nil {
		s.natsSrv.Stop()
	}
	if s.metrics != nil {
		if err := s.metrics.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop metrics server: %w", err))
		}
	}
	if s.collector != nil {
		s.collector.Stop()
		metrics.DeleteControllerMetrics(s.opts.ControllerName)
	}

	return errors.Join(errs...)
}

// Controller returns the controller the service drives.
func (s *Service) Controller() *controller.Controller {
	return s.ctrl
}

// Bus returns the event bus controller activity is published on.
func (s *Service) Bus() *events.Bus {
	return s.bus
}

// NATSURL returns the URL of the NATS server in use, or "" when NATS is disabled.
func (s *Service) NATSURL() string {
	switch {
	case !s.opts.NATSEnabled:
		return ""
	case s.natsSrv != nil:
		return s.natsSrv.ClientURL()
	default:
		return s.opts.NATSURL
	}
}

// MetricsAddr returns the metrics listen address, or "" when metrics are disabled.
func (s *Service) MetricsAddr() string {
	if s.metrics == nil {
		return ""
	}
	return s.metrics.Addr()
}
