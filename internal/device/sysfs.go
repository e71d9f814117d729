package device

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const sysfsLEDPath = "/sys/class/leds"

var errClosed = errors.New("device handle closed")

// sysfs implements Handle using the Linux multicolor LED class interface.
// Keyboards exposed this way have a single zone, so per-key grids are reduced
// to their average color.
type sysfs struct {
	path          string
	layout        Layout
	order         [3]int // channel index of R, G, B in multi_intensity
	maxBrightness int
	savedTrigger  string
	closed        bool
	logger        *slog.Logger
}

func openSysfs(path string, model Model, logger *slog.Logger) (Handle, error) {
	return newSysfs(path, model, logger)
}

// newSysfs opens a multicolor LED by name (under /sys/class/leds) or absolute path.
func newSysfs(path string, model Model, logger *slog.Logger) (*sysfs, error) {
	if path == "" {
		return nil, fmt.Errorf("sysfs driver needs an LED name or path")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(sysfsLEDPath, path)
	}

	if _, err := os.Stat(filepath.Join(path, "multi_intensity")); err != nil {
		return nil, fmt.Errorf("LED %s is not a multicolor LED: %w", path, err)
	}

	s := &sysfs{
		path:          path,
		layout:        model.Layout(),
		order:         [3]int{0, 1, 2},
		maxBrightness: 255,
		logger:        logger.With("led_path", path),
	}

	if data, err := os.ReadFile(filepath.Join(path, "multi_index")); err == nil {
		order, parseErr := parseMultiIndex(string(data))
		if parseErr != nil {
			return nil, parseErr
		}
		s.order = order
	}

	if data, err := os.ReadFile(filepath.Join(path, "max_brightness")); err == nil {
		if v, convErr := strconv.Atoi(strings.TrimSpace(string(data))); convErr == nil && v > 0 {
			s.maxBrightness = v
		}
	}

	return s, nil
}

// parseMultiIndex maps "red green blue" style channel lists to R, G, B positions.
func parseMultiIndex(s string) ([3]int, error) {
	order := [3]int{-1, -1, -1}
	for i, name := range strings.Fields(s) {
		switch name {
		case "red":
			order[0] = i
		case "green":
			order[1] = i
		case "blue":
			order[2] = i
		}
	}
	for _, idx := range order {
		if idx < 0 {
			return order, fmt.Errorf("multi_index %q lacks red, green or blue", strings.TrimSpace(s))
		}
	}
	return order, nil
}

// EnableControl remembers the active trigger and switches to manual control.
func (s *sysfs) EnableControl() error {
	if s.closed {
		return errClosed
	}
	data, err := os.ReadFile(filepath.Join(s.path, "trigger"))
	if err != nil {
		return fmt.Errorf("failed to read LED trigger: %w", err)
	}
	s.savedTrigger = activeTrigger(string(data))

	if err := s.write("trigger", "none"); err != nil {
		return fmt.Errorf("failed to set LED trigger to none: %w", err)
	}
	s.logger.Debug("LED trigger switched to manual", "previous", s.savedTrigger)
	return nil
}

// DisableControl restores the trigger that was active before EnableControl.
func (s *sysfs) DisableControl() error {
	if s.closed {
		return errClosed
	}
	if s.savedTrigger == "" || s.savedTrigger == "none" {
		return nil
	}
	if err := s.write("trigger", s.savedTrigger); err != nil {
		return fmt.Errorf("failed to restore LED trigger: %w", err)
	}
	return nil
}

// SendIdle checks that the LED is still present.
func (s *sysfs) SendIdle() error {
	if s.closed {
		return errClosed
	}
	if _, err := os.ReadFile(filepath.Join(s.path, "brightness")); err != nil {
		return fmt.Errorf("LED brightness unreadable: %w", err)
	}
	return nil
}

func (s *sysfs) SetAllUniform(c RGB) error {
	if s.closed {
		return errClosed
	}
	var channels [3]uint8
	channels[s.order[0]] = c.R
	channels[s.order[1]] = c.G
	channels[s.order[2]] = c.B

	intensity := fmt.Sprintf("%d %d %d", channels[0], channels[1], channels[2])
	if err := s.write("multi_intensity", intensity); err != nil {
		return fmt.Errorf("failed to set LED intensity: %w", err)
	}
	if err := s.write("brightness", strconv.Itoa(s.maxBrightness)); err != nil {
		return fmt.Errorf("failed to set LED brightness: %w", err)
	}
	return nil
}

func (s *sysfs) SetAllGrid(g Grid) error {
	if err := g.Validate(s.layout); err != nil {
		return err
	}
	return s.SetAllUniform(g.Average())
}

func (s *sysfs) Layout() Layout {
	return s.layout
}

func (s *sysfs) Close() error {
	s.closed = true
	return nil
}

func (s *sysfs) write(name, value string) error {
	return os.WriteFile(filepath.Join(s.path, name), []byte(value), 0644)
}

// activeTrigger extracts the bracketed entry from a sysfs trigger listing.
func activeTrigger(listing string) string {
	for _, field := range strings.Fields(listing) {
		if strings.HasPrefix(field, "[") && strings.HasSuffix(field, "]") {
			return strings.Trim(field, "[]")
		}
	}
	return ""
}
