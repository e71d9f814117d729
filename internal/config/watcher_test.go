package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type testConfig struct {
	Name  string `toml:"name"`
	Value int    `toml:"value"`
}

func loadTestConfig(path string) (testConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return testConfig{}, err
	}
	var cfg testConfig
	err = toml.Unmarshal(data, &cfg)
	return cfg, err
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeConfig writes content to a config file in a fresh temp dir.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mkctl.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func startWatcher(t *testing.T, w *Watcher[testConfig]) {
	t.Helper()
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := w.Stop(); err != nil {
			t.Errorf("watcher.Stop failed: %v", err)
		}
	})
	// Let the watch loop settle
	time.Sleep(50 * time.Millisecond)
}

func TestConfigWatcher_BasicReload(t *testing.T) {
	path := writeConfig(t, "name = \"initial\"\nvalue = 1\n")

	received := make(chan testConfig, 1)
	w := NewConfigWatcher(path, loadTestConfig, newTestLogger(), WithDebounce[testConfig](50*time.Millisecond))
	w.OnReload(func(cfg testConfig) { received <- cfg })
	startWatcher(t, w)

	if err := os.WriteFile(path, []byte("name = \"updated\"\nvalue = 42\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-received:
		if cfg.Name != "updated" || cfg.Value != 42 {
			t.Errorf("got %+v, want name=updated, value=42", cfg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for config reload")
	}
}

func TestConfigWatcher_AtomicReplace(t *testing.T) {
	path := writeConfig(t, "value = 1\n")

	received := make(chan testConfig, 4)
	w := NewConfigWatcher(path, loadTestConfig, newTestLogger(), WithDebounce[testConfig](50*time.Millisecond))
	w.OnReload(func(cfg testConfig) { received <- cfg })
	startWatcher(t, w)

	tmp := filepath.Join(filepath.Dir(path), ".mkctl.toml.swp")
	if err := os.WriteFile(tmp, []byte("value = 7\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-received:
		if cfg.Value != 7 {
			t.Errorf("got value %d, want 7", cfg.Value)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reload after rename")
	}
}

func TestConfigWatcher_IgnoresSiblings(t *testing.T) {
	path := writeConfig(t, "value = 1\n")

	var count atomic.Int32
	w := NewConfigWatcher(path, loadTestConfig, newTestLogger(), WithDebounce[testConfig](20*time.Millisecond))
	w.OnReload(func(testConfig) { count.Add(1) })
	startWatcher(t, w)

	other := filepath.Join(filepath.Dir(path), "other.toml")
	if err := os.WriteFile(other, []byte("value = 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(150 * time.Millisecond)

	if got := count.Load(); got != 0 {
		t.Errorf("expected no reload for sibling file, got %d", got)
	}
}

func TestConfigWatcher_MultipleHandlers(t *testing.T) {
	path := writeConfig(t, "name = \"test\"\nvalue = 1\n")

	var mu sync.Mutex
	var configs []testConfig

	w := NewConfigWatcher(path, loadTestConfig, newTestLogger(), WithDebounce[testConfig](50*time.Millisecond))
	for range 3 {
		w.OnReload(func(cfg testConfig) {
			mu.Lock()
			configs = append(configs, cfg)
			mu.Unlock()
		})
	}
	startWatcher(t, w)

	if err := os.WriteFile(path, []byte("name = \"new\"\nvalue = 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(250 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(configs) != 3 {
		t.Fatalf("expected 3 handler calls, got %d", len(configs))
	}
	for i, cfg := range configs {
		if cfg.Name != "new" || cfg.Value != 2 {
			t.Errorf("handler %d got wrong config: %+v", i, cfg)
		}
	}
}

func TestConfigWatcher_Unsubscribe(t *testing.T) {
	path := writeConfig(t, "value = 1\n")

	var count1, count2 atomic.Int32
	w := NewConfigWatcher(path, loadTestConfig, newTestLogger(), WithDebounce[testConfig](50*time.Millisecond))
	w.OnReload(func(testConfig) { count1.Add(1) })
	unsub2 := w.OnReload(func(testConfig) { count2.Add(1) })
	startWatcher(t, w)

	if err := os.WriteFile(path, []byte("value = 10\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(250 * time.Millisecond)

	unsub2()
	unsub2() // idempotent

	if err := os.WriteFile(path, []byte("value = 20\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(250 * time.Millisecond)

	if got := count1.Load(); got != 2 {
		t.Errorf("handler1: expected 2 calls, got %d", got)
	}
	if got := count2.Load(); got != 1 {
		t.Errorf("handler2: expected 1 call, got %d", got)
	}
}

func TestConfigWatcher_ErrorHandler(t *testing.T) {
	path := writeConfig(t, "name = \"valid\"\nvalue = 1\n")

	errorReceived := make(chan error, 1)
	configReceived := make(chan testConfig, 1)

	w := NewConfigWatcher(
		path,
		loadTestConfig,
		newTestLogger(),
		WithDebounce[testConfig](50*time.Millisecond),
		WithErrorHandler[testConfig](func(err error) { errorReceived <- err }),
	)
	w.OnReload(func(cfg testConfig) { configReceived <- cfg })
	startWatcher(t, w)

	if err := os.WriteFile(path, []byte("invalid toml [[["), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-errorReceived:
	case <-configReceived:
		t.Fatal("config handler should not be called on error")
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for error handler")
	}
}

func TestConfigWatcher_Debounce(t *testing.T) {
	path := writeConfig(t, "value = 0\n")

	var count, lastValue atomic.Int32
	w := NewConfigWatcher(path, loadTestConfig, newTestLogger(), WithDebounce[testConfig](200*time.Millisecond))
	w.OnReload(func(cfg testConfig) {
		count.Add(1)
		lastValue.Store(int32(cfg.Value))
	})
	startWatcher(t, w)

	for i := 1; i <= 5; i++ {
		if err := os.WriteFile(path, fmt.Appendf(nil, "value = %d\n", i), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(30 * time.Millisecond)
	}
	time.Sleep(500 * time.Millisecond)

	if got := count.Load(); got != 1 {
		t.Errorf("expected 1 debounced call, got %d", got)
	}
	if got := lastValue.Load(); got != 5 {
		t.Errorf("expected final value 5, got %d", got)
	}
}

func TestConfigWatcher_Stop(t *testing.T) {
	path := writeConfig(t, "value = 1\n")

	var count atomic.Int32
	w := NewConfigWatcher(path, loadTestConfig, newTestLogger(), WithDebounce[testConfig](50*time.Millisecond))
	w.OnReload(func(testConfig) { count.Add(1) })

	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	if err := w.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("second Stop() = %v", err)
	}

	if err := os.WriteFile(path, []byte("value = 99\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)

	if got := count.Load(); got != 0 {
		t.Errorf("expected 0 calls after stop, got %d", got)
	}
}

func TestConfigWatcher_StopWithoutStart(t *testing.T) {
	w := NewConfigWatcher("/nonexistent/mkctl.toml", loadTestConfig, nil)
	if err := w.Stop(); err != nil {
		t.Errorf("Stop() without Start = %v", err)
	}
}

func TestConfigWatcher_StartMissingDir(t *testing.T) {
	w := NewConfigWatcher(filepath.Join(t.TempDir(), "missing", "mkctl.toml"), loadTestConfig, newTestLogger())
	if err := w.Start(); err == nil {
		w.Stop()
		t.Error("Start() should fail when the directory does not exist")
	}
}
