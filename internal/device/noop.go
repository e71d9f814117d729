package device

import "log/slog"

// noop implements Handle for systems without a supported keyboard.
type noop struct {
	logger *slog.Logger
	layout Layout
}

func openNoop(_ string, model Model, logger *slog.Logger) (Handle, error) {
	return newNoop(model, logger), nil
}

func newNoop(model Model, logger *slog.Logger) *noop {
	return &noop{
		logger: logger,
		layout: model.Layout(),
	}
}

func (n *noop) EnableControl() error {
	n.logger.Debug("Enable control (no-op)")
	return nil
}

func (n *noop) DisableControl() error {
	n.logger.Debug("Disable control (no-op)")
	return nil
}

func (n *noop) SendIdle() error {
	return nil
}

// SetAllUniform logs the request but drives no hardware
func (n *noop) SetAllUniform(c RGB) error {
	n.logger.Debug("Set all LEDs (no-op)", "color", c.String())
	return nil
}

func (n *noop) SetAllGrid(g Grid) error {
	n.logger.Debug("Set LED grid (no-op)", "rows", len(g))
	return nil
}

func (n *noop) Layout() Layout {
	return n.layout
}

func (n *noop) Close() error {
	return nil
}
