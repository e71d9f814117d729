package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	moduleLoggers   = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	globalConfig    Config
	globalLevelVar  = &slog.LevelVar{}
	isInitialized   bool
	mutex           sync.RWMutex

	// stdout is where console output goes; tests swap it out.
	stdout io.Writer = os.Stdout
)

// Config represents logging configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

// Initialize sets up the logging system. It may be called again at runtime;
// loggers handed out earlier pick up the new levels.
func Initialize(config Config) {
	mutex.Lock()
	defer mutex.Unlock()

	formatChanged := !isInitialized || config.Format != globalConfig.Format
	globalConfig = config
	isInitialized = true

	globalLevelVar.Set(levelOrDefault(config.Level, slog.LevelInfo))

	for module, levelVar := range moduleLevelVars {
		levelVar.Set(moduleLevel(module))

		// Loggers created before Initialize use the text fallback handler.
		if formatChanged {
			moduleLoggers[module] = newModuleLogger(module, levelVar)
		}
	}

	slog.SetDefault(slog.New(createHandler(config.Format, globalLevelVar)))
}

// Current returns the configuration last passed to Initialize.
func Current() Config {
	mutex.RLock()
	defer mutex.RUnlock()
	return globalConfig
}

// GetLogger returns a logger for the specified module, creating it if needed.
func GetLogger(module string) *slog.Logger {
	mutex.RLock()
	if logger, exists := moduleLoggers[module]; exists {
		mutex.RUnlock()
		return logger
	}
	mutex.RUnlock()

	mutex.Lock()
	defer mutex.Unlock()

	// Double-check in case another goroutine created it
	if logger, exists := moduleLoggers[module]; exists {
		return logger
	}

	levelVar := &slog.LevelVar{}
	levelVar.Set(moduleLevel(module))

	logger := newModuleLogger(module, levelVar)
	moduleLoggers[module] = logger
	moduleLevelVars[module] = levelVar
	return logger
}

// moduleLevel resolves the level for module (must hold lock).
func moduleLevel(module string) slog.Level {
	if !isInitialized {
		return slog.LevelInfo
	}
	level := levelOrDefault(globalConfig.Level, slog.LevelInfo)
	if override, ok := globalConfig.Modules[module]; ok {
		level = levelOrDefault(override, level)
	}
	return level
}

// newModuleLogger builds a logger for module (must hold lock).
func newModuleLogger(module string, level slog.Leveler) *slog.Logger {
	format := "text"
	if isInitialized {
		format = globalConfig.Format
	}
	return slog.New(createHandler(format, level)).With("module", module)
}

// createHandler creates a slog handler with the specified format and level.
// Logs to stdout and to the journal when each is available.
func createHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var stdoutHandler slog.Handler
	if format == "json" {
		stdoutHandler = slog.NewJSONHandler(stdout, opts)
	} else {
		stdoutHandler = slog.NewTextHandler(stdout, opts)
	}

	var handlers []slog.Handler
	if isStdoutAvailable() {
		handlers = append(handlers, stdoutHandler)
	}
	if IsJournalAvailable() {
		handlers = append(handlers, NewJournalHandler(level))
	}

	switch len(handlers) {
	case 0:
		return stdoutHandler // Fallback
	case 1:
		return handlers[0]
	default:
		return NewMultiHandler(handlers...)
	}
}

// isStdoutAvailable checks if stdout is connected to a terminal, pipe, socket, or file.
func isStdoutAvailable() bool {
	f, ok := stdout.(*os.File)
	if !ok {
		return stdout != nil
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return (mode&os.ModeCharDevice) != 0 || (mode&os.ModeNamedPipe) != 0 || (mode&os.ModeSocket) != 0 || mode.IsRegular()
}

// parseLevel converts a level name to slog.Level.
func parseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return 0, false
	}
}

func levelOrDefault(level string, def slog.Level) slog.Level {
	if l, ok := parseLevel(level); ok {
		return l
	}
	return def
}

// ValidLevel reports whether level names a known log level.
func ValidLevel(level string) bool {
	_, ok := parseLevel(level)
	return ok
}
