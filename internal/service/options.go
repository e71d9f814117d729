package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smazurov/mkctl/internal/device"
	"github.com/smazurov/mkctl/internal/logging"
)

// Options for the daemon - flat structure with toml mapping.
type Options struct {
	Config string `flag:"config"`

	// Device settings
	Device      string `toml:"device.id" env:"DEVICE"`
	DeviceModel string `toml:"device.model" env:"DEVICE_MODEL"`

	// Controller settings
	ControllerName      string        `toml:"controller.name" env:"CONTROLLER_NAME"`
	ControllerIdle      time.Duration `toml:"controller.idle_interval" env:"CONTROLLER_IDLE_INTERVAL"`
	ControllerJoin      time.Duration `toml:"controller.join_timeout" env:"CONTROLLER_JOIN_TIMEOUT"`
	ControllerAutoStart bool          `toml:"controller.auto_start" env:"CONTROLLER_AUTO_START"`

	// Host status LED (sysfs name under /sys/class/leds, empty disables)
	StatusLED string `toml:"status.led" env:"STATUS_LED"`

	// NATS settings
	NATSEnabled  bool   `toml:"nats.enabled" env:"NATS_ENABLED"`
	NATSEmbedded bool   `toml:"nats.embedded" env:"NATS_EMBEDDED"`
	NATSURL      string `toml:"nats.url" env:"NATS_URL"`
	NATSHost     string `toml:"nats.host" env:"NATS_HOST"`
	NATSPort     int    `toml:"nats.port" env:"NATS_PORT"`

	// Metrics settings
	MetricsEnabled bool   `toml:"metrics.enabled" env:"METRICS_ENABLED"`
	MetricsAddr    string `toml:"metrics.listen" env:"METRICS_LISTEN"`

	// Logging settings
	LoggingLevel   string            `toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string            `toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingModules map[string]string `toml:"logging.modules" env:"LOGGING_MODULES"`
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Config:         "/etc/mkctl/config.toml",
		Device:         "noop",
		DeviceModel:    string(device.ModelAny),
		ControllerName: "kbd",
		ControllerJoin: 5 * time.Second,
		NATSEnabled:    true,
		NATSEmbedded:   true,
		NATSHost:       "127.0.0.1",
		NATSPort:       4222,
		MetricsEnabled: true,
		MetricsAddr:    "127.0.0.1:9750",
		LoggingLevel:   "info",
		LoggingFormat:  "text",
	}
}

// Validate checks the options for values the service cannot run with.
func (o *Options) Validate() error {
	var errs []error

	if _, err := device.ParseIdentifier(o.Device); err != nil {
		errs = append(errs, err)
	}
	if _, err := device.ParseModel(o.DeviceModel); err != nil {
		errs = append(errs, err)
	}
	if o.ControllerName == "" || strings.ContainsAny(o.ControllerName, ".*> \t") {
		errs = append(errs, fmt.Errorf("controller name %q is not a valid NATS subject token", o.ControllerName))
	}
	if o.ControllerIdle < 0 {
		errs = append(errs, errors.New("controller idle interval must not be negative"))
	}
	if o.ControllerJoin <= 0 {
		errs = append(errs, errors.New("controller join timeout must be positive"))
	}
	if o.NATSEnabled && !o.NATSEmbedded && o.NATSURL == "" {
		errs = append(errs, errors.New("nats.url is required when the embedded server is disabled"))
	}
	if o.NATSEnabled && o.NATSEmbedded && (o.NATSPort < -1 || o.NATSPort > 65535) {
		errs = append(errs, fmt.Errorf("invalid NATS port %d", o.NATSPort))
	}
	if o.MetricsEnabled && o.MetricsAddr == "" {
		errs = append(errs, errors.New("metrics.listen is required when metrics are enabled"))
	}
	if o.LoggingLevel != "" && !logging.ValidLevel(o.LoggingLevel) {
		errs = append(errs, fmt.Errorf("invalid logging level %q", o.LoggingLevel))
	}
	for module, level := range o.LoggingModules {
		if !logging.ValidLevel(level) {
			errs = append(errs, fmt.Errorf("invalid logging level %q for module %s", level, module))
		}
	}
	switch o.LoggingFormat {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid logging format %q", o.LoggingFormat))
	}

	return errors.Join(errs...)
}

// LoggingConfig returns the logging section as a logging.Config.
func (o *Options) LoggingConfig() logging.Config {
	return logging.Config{
		Level:   o.LoggingLevel,
		Format:  o.LoggingFormat,
		Modules: o.LoggingModules,
	}
}
