package device

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Opener creates a Handle for a device path and model.
type Opener func(path string, model Model, logger *slog.Logger) (Handle, error)

var (
	openers   = make(map[string]Opener)
	openersMu sync.RWMutex
)

func init() {
	Register("noop", openNoop)
	Register("sysfs", openSysfs)
}

// Register makes a driver available to Open. Registering a name twice replaces
// the previous opener.
func Register(driver string, opener Opener) {
	openersMu.Lock()
	defer openersMu.Unlock()
	openers[driver] = opener
}

// Drivers returns the registered driver names, sorted.
func Drivers() []string {
	openersMu.RLock()
	defer openersMu.RUnlock()

	names := make([]string, 0, len(openers))
	for name := range openers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open creates a Handle using the driver named by id.
func Open(id Identifier, model Model, logger *slog.Logger) (Handle, error) {
	if logger == nil {
		logger = slog.Default()
	}

	openersMu.RLock()
	opener, ok := openers[id.Driver]
	openersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownDriver, id.Driver)
	}

	logger.Info("Opening device", "device", id.String(), "model", string(model))
	h, err := opener(id.Path, model, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", id, err)
	}
	return h, nil
}
