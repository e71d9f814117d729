package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

// resetLogging clears package state and captures stdout into a buffer.
func resetLogging(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer

	mutex.Lock()
	prevStdout := stdout
	stdout = &buf
	moduleLoggers = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	isInitialized = false
	globalConfig = Config{}
	mutex.Unlock()

	prevDefault := slog.Default()
	t.Cleanup(func() {
		mutex.Lock()
		stdout = prevStdout
		mutex.Unlock()
		slog.SetDefault(prevDefault)
	})
	return &buf
}

func TestModuleLevelOverride(t *testing.T) {
	resetLogging(t)

	Initialize(Config{
		Level:  "info",
		Format: "text",
		Modules: map[string]string{
			"controller": "debug",
			"nats":       "warn",
			"bogus":      "loud",
		},
	})

	tests := []struct {
		module    string
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{"controller", true, true, true},
		{"nats", false, false, true},
		{"other", false, true, true},
		{"bogus", false, true, true}, // invalid override falls back to global
	}

	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			handler := GetLogger(tt.module).Handler()
			ctx := context.Background()

			if got := handler.Enabled(ctx, slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("Debug enabled = %v, want %v", got, tt.wantDebug)
			}
			if got := handler.Enabled(ctx, slog.LevelInfo); got != tt.wantInfo {
				t.Errorf("Info enabled = %v, want %v", got, tt.wantInfo)
			}
			if got := handler.Enabled(ctx, slog.LevelWarn); got != tt.wantWarn {
				t.Errorf("Warn enabled = %v, want %v", got, tt.wantWarn)
			}
		})
	}
}

func TestOutputCarriesModule(t *testing.T) {
	buf := resetLogging(t)
	Initialize(Config{Level: "debug", Format: "text"})

	GetLogger("device").Debug("opened", "driver", "memory")

	output := buf.String()
	if !strings.Contains(output, "module=device") {
		t.Errorf("module attribute missing. Output: %s", output)
	}
	if !strings.Contains(output, "driver=memory") || !strings.Contains(output, "level=DEBUG") {
		t.Errorf("unexpected output: %s", output)
	}
}

func TestJSONFormat(t *testing.T) {
	buf := resetLogging(t)
	Initialize(Config{Level: "info", Format: "json"})

	GetLogger("controller").Info("Controller started", "controller", "kbd")

	output := buf.String()
	if !strings.Contains(output, `"module":"controller"`) || !strings.Contains(output, `"controller":"kbd"`) {
		t.Errorf("expected JSON output, got: %s", output)
	}
}

func TestMultiHandlerDebugOutput(t *testing.T) {
	var buf bytes.Buffer

	debugHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	infoHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})

	multi := NewMultiHandler(debugHandler, infoHandler)
	logger := slog.New(multi).With("module", "test")

	logger.Debug("debug only message")
	logger.Info("info message")

	output := buf.String()
	if count := strings.Count(output, "debug only message"); count != 1 {
		t.Errorf("Expected 1 debug message, got %d. Output: %s", count, output)
	}
	if count := strings.Count(output, "info message"); count != 2 {
		t.Errorf("Expected 2 info messages, got %d. Output: %s", count, output)
	}
	if multi.Enabled(context.Background(), slog.LevelDebug-4) {
		t.Error("MultiHandler enabled below every child level")
	}
}

type failingHandler struct {
	slog.Handler
	err error
}

func (h failingHandler) Handle(context.Context, slog.Record) error { return h.err }

func (h failingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func TestMultiHandlerKeepsWritingPastFailure(t *testing.T) {
	var buf bytes.Buffer
	journalDown := errors.New("journal unavailable")

	failing := failingHandler{Handler: slog.NewTextHandler(&buf, nil), err: journalDown}
	stdoutHandler := slog.NewTextHandler(&buf, nil)

	multi := NewMultiHandler(failing, nil, stdoutHandler)
	r := slog.NewRecord(time.Now(), slog.LevelInfo, "controller started", 0)

	err := multi.Handle(context.Background(), r)
	if !errors.Is(err, journalDown) {
		t.Errorf("Handle() error = %v, want journal error", err)
	}
	if !strings.Contains(buf.String(), "controller started") {
		t.Errorf("record not written after a failing handler: %q", buf.String())
	}

	withAttrs := multi.WithAttrs([]slog.Attr{slog.String("module", "controller")})
	buf.Reset()
	if err := withAttrs.Handle(context.Background(), r); !errors.Is(err, journalDown) {
		t.Errorf("WithAttrs handler error = %v, want journal error", err)
	}
	if !strings.Contains(buf.String(), "module=controller") {
		t.Errorf("attrs missing from output: %q", buf.String())
	}

	if err := NewMultiHandler(stdoutHandler).Handle(context.Background(), r); err != nil {
		t.Errorf("Handle() with healthy handlers = %v, want nil", err)
	}
}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	resetLogging(t)

	loggerBefore := GetLogger("nats")
	handlerBefore := loggerBefore.Handler()

	if handlerBefore.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Logger created before Initialize should NOT have debug enabled")
	}

	Initialize(Config{
		Level:   "info",
		Format:  "text",
		Modules: map[string]string{"nats": "debug"},
	})

	if !GetLogger("nats").Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("logger should have debug enabled after Initialize")
	}
}

func TestReinitializeUpdatesCachedLogger(t *testing.T) {
	resetLogging(t)
	Initialize(Config{Level: "info", Format: "text"})

	logger := GetLogger("config")
	if logger.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("debug should start disabled")
	}

	Initialize(Config{Level: "debug", Format: "text"})

	if GetLogger("config") != logger {
		t.Error("same format should keep the cached logger")
	}
	if !logger.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("cached logger should follow the new level")
	}
	if Current().Level != "debug" {
		t.Errorf("Current().Level = %q, want debug", Current().Level)
	}
}

func TestParseLevelValues(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
		ok    bool
	}{
		{"debug", slog.LevelDebug, true},
		{"DEBUG", slog.LevelDebug, true},
		{"info", slog.LevelInfo, true},
		{"warn", slog.LevelWarn, true},
		{"warning", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"invalid", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := parseLevel(tt.input)
			if ok != tt.ok || got != tt.want {
				t.Errorf("parseLevel(%q) = %v, %v; want %v, %v", tt.input, got, ok, tt.want, tt.ok)
			}
			if ValidLevel(tt.input) != tt.ok {
				t.Errorf("ValidLevel(%q) = %v", tt.input, !tt.ok)
			}
		})
	}
}

func TestAddField(t *testing.T) {
	fields := make(map[string]string)

	addField(fields, "", slog.String("controller", "kbd"))
	addField(fields, "", slog.Int("queue_depth", 3))
	addField(fields, "", slog.Bool("active", true))
	addField(fields, "REQ_", slog.Uint64("id", 7))
	addField(fields, "", slog.Group("device", slog.String("driver", "sysfs")))
	addField(fields, "", slog.Attr{})

	want := map[string]string{
		"CONTROLLER":    "kbd",
		"QUEUE_DEPTH":   "3",
		"ACTIVE":        "true",
		"REQ_ID":        "7",
		"DEVICE_DRIVER": "sysfs",
	}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("fields[%s] = %q, want %q", k, fields[k], v)
		}
	}
	if len(fields) != len(want) {
		t.Errorf("got %d fields, want %d: %v", len(fields), len(want), fields)
	}
}

func TestJournalHandlerLevel(t *testing.T) {
	levelVar := &slog.LevelVar{}
	levelVar.Set(slog.LevelWarn)
	h := NewJournalHandler(levelVar)

	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be disabled at warn level")
	}
	levelVar.Set(slog.LevelDebug)
	if !h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("handler should follow LevelVar changes")
	}

	grouped := h.WithGroup("req").WithAttrs([]slog.Attr{slog.String("id", "1")}).(*JournalHandler)
	if grouped.prefix != "REQ_" || len(grouped.attrs) != 1 {
		t.Errorf("unexpected derived handler %+v", grouped)
	}
	if len(h.attrs) != 0 {
		t.Error("WithAttrs modified the parent handler")
	}
}
