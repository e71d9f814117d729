// Package logging provides structured logging with per-module log levels.
//
// Output goes to stdout when a terminal, pipe or file is attached and to the
// systemd journal when journald is running; both when both are present.
//
// Initialize once at startup, and again whenever the configuration changes:
//
//	logging.Initialize(logging.Config{
//		Level:  "info", // debug, info, warn, error
//		Format: "text", // text or json
//		Modules: map[string]string{
//			"controller": "debug",
//			"nats":       "warn",
//		},
//	})
//
// Loggers are cached per module and keep following level changes:
//
//	logger := logging.GetLogger("controller")
//	logger.Info("Controller started", "controller", name)
//
// Journal entries carry SYSLOG_IDENTIFIER=mkctl and upper-cased attributes:
//
//	journalctl -t mkctl -f
//	journalctl -t mkctl MODULE=controller
//	journalctl -t mkctl CONTROLLER=kbd -p err
//
// TOML form:
//
//	[logging]
//	level = "info"
//	format = "text"
//
//	[logging.modules]
//	controller = "debug"
package logging
