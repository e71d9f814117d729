package led

import "log/slog"

// noop implements Indicator for hosts without a usable status LED.
type noop struct {
	logger *slog.Logger
}

func newNoop(logger *slog.Logger) *noop {
	return &noop{logger: logger}
}

// Set logs the request but performs no actual LED control.
func (n *noop) Set(p Pattern) error {
	n.logger.Debug("Status LED not available (no-op)", "pattern", string(p))
	return nil
}
