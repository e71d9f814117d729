package nats

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/smazurov/mkctl/internal/controller"
	"github.com/smazurov/mkctl/internal/device"
	"github.com/smazurov/mkctl/internal/device/memory"
	"github.com/smazurov/mkctl/internal/events"
)

var testLayout = device.Layout{Rows: 2, Cols: 3}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startServer(t *testing.T) *Server {
	t.Helper()
	server := NewServer(ServerOptions{Port: -1, Name: "test-server", Logger: testLogger()})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(server.Stop)
	return server
}

type fixture struct {
	ctrl   *controller.Controller
	device *memory.Handle
	client *Client
}

// newFixture wires a controller on a memory device behind a bridge, and a
// connected client for it.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	server := startServer(t)

	bus := events.New()
	opts := &controller.Options{Logger: testLogger()}
	events.ControllerHooks(bus, "kbd", opts)

	h := memory.New(testLayout)
	ctrl := controller.New(h, opts)
	t.Cleanup(func() {
		ctrl.Stop()
		ctrl.Join(2 * time.Second)
	})

	bridge := NewBridge(server.ClientURL(), "kbd", ctrl, bus, testLogger())
	if err := bridge.Start(); err != nil {
		t.Fatalf("Failed to start bridge: %v", err)
	}
	t.Cleanup(bridge.Stop)

	client := NewClient(server.ClientURL(), "kbd", testLogger())
	if err := client.Connect(); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(client.Close)

	return &fixture{ctrl: ctrl, device: h, client: client}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(ServerOptions{Port: -1, Name: "test-server", Logger: testLogger()})

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}

	if !server.IsRunning() {
		t.Error("Server should be running after Start()")
	}
	if err := server.Start(); err == nil {
		t.Error("second Start() should fail")
	}

	if url := server.ClientURL(); url == "" {
		t.Error("ClientURL should not be empty")
	}

	server.Stop()

	if server.IsRunning() {
		t.Error("Server should not be running after Stop()")
	}
	if server.NumClients() != 0 {
		t.Error("NumClients should be 0 after Stop()")
	}
}

func TestClientNotConnected(t *testing.T) {
	client := NewClient("nats://127.0.0.1:59999", "kbd", testLogger())

	if err := client.Connect(); err == nil {
		t.Error("Connect should fail with non-existent server")
	}
	if client.IsConnected() {
		t.Error("Client should not be connected")
	}

	ctx := testContext(t)
	if _, err := client.Schedule(ctx, controller.Uniform{Color: device.RGB{R: 1}}, 0); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Schedule() error = %v, want ErrNotConnected", err)
	}
	if err := client.SubscribeEvents(func(StateMessage) {}, nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SubscribeEvents() error = %v, want ErrNotConnected", err)
	}

	client.Close()
}

func TestRemoteScheduleAndExecute(t *testing.T) {
	f := newFixture(t)
	ctx := testContext(t)

	red := device.RGB{R: 255}
	id1, err := f.client.Schedule(ctx, controller.Uniform{Color: red}, 0)
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	grid := device.NewGrid(testLayout, device.RGB{B: 9})
	id2, err := f.client.Schedule(ctx, controller.Grid{Colors: grid}, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if id1 != 1 || id2 != 2 {
		t.Errorf("ids = %d, %d, want 1, 2", id1, id2)
	}

	if err := f.client.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for f.ctrl.Len() > 0 || f.device.Count(memory.OpGrid) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("instructions were not executed")
		}
		time.Sleep(time.Millisecond)
	}
	if f.device.Count(memory.OpUniform) != 1 {
		t.Errorf("uniform calls = %d, want 1", f.device.Count(memory.OpUniform))
	}

	st, err := f.client.State(ctx)
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if st.State != controller.StateActive || st.Err != nil {
		t.Errorf("State() = %+v, want active without error", st)
	}

	if err := f.client.Start(ctx); !errors.Is(err, controller.ErrAlreadyActive) {
		t.Errorf("second Start() error = %v, want ErrAlreadyActive", err)
	}

	if err := f.client.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if state := f.ctrl.Join(2 * time.Second); state != controller.StateInactive {
		t.Errorf("Join() = %s, want inactive", state)
	}
}

func TestRemoteCancel(t *testing.T) {
	f := newFixture(t)
	ctx := testContext(t)

	id, err := f.client.Schedule(ctx, controller.Uniform{Color: device.RGB{G: 1}}, 0)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		id   uint32
		want bool
	}{
		{"queued", id, true},
		{"already cancelled", id, false},
		{"unknown", 42, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.client.Cancel(ctx, tt.id)
			if err != nil {
				t.Fatalf("Cancel() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Cancel(%d) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}

	if f.ctrl.Len() != 0 {
		t.Errorf("Len() = %d, want 0", f.ctrl.Len())
	}
}

func TestRemoteScheduleRejected(t *testing.T) {
	f := newFixture(t)
	ctx := testContext(t)

	wrongShape := device.NewGrid(device.Layout{Rows: 1, Cols: 1}, device.RGB{})
	_, err := f.client.Schedule(ctx, controller.Grid{Colors: wrongShape}, 0)
	if !errors.Is(err, controller.ErrInvalidInstruction) {
		t.Errorf("Schedule() error = %v, want ErrInvalidInstruction", err)
	}

	_, err = f.client.Schedule(ctx, nil, 0)
	if controller.Code(err) != controller.ErrCodeInvalidInstruction {
		t.Errorf("Schedule(nil) code = %q", controller.Code(err))
	}

	if f.ctrl.Len() != 0 {
		t.Errorf("rejected instructions were queued: %v", f.ctrl.Pending())
	}
}

func TestRemoteStartFailureAndLatchedError(t *testing.T) {
	f := newFixture(t)
	ctx := testContext(t)

	f.device.FailOn(memory.OpEnable, memory.ErrInjected)
	err := f.client.Start(ctx)
	if controller.Code(err) != controller.ErrCodeControlEnable {
		t.Fatalf("Start() code = %q, want %s", controller.Code(err), controller.ErrCodeControlEnable)
	}

	f.device.Heal(memory.OpEnable)
	f.device.FailOn(memory.OpUniform, memory.ErrInjected)
	if _, err := f.client.Schedule(ctx, controller.Uniform{Color: device.RGB{R: 3}}, 0); err != nil {
		t.Fatal(err)
	}
	if err := f.client.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	f.ctrl.Join(2 * time.Second)

	st, err := f.client.State(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.State != controller.StateInactive {
		t.Errorf("State = %s, want inactive", st.State)
	}
	if controller.Code(st.Err) != controller.ErrCodeExecution {
		t.Errorf("latched code = %q, want %s", controller.Code(st.Err), controller.ErrCodeExecution)
	}
}

func TestBridgeForwardsEvents(t *testing.T) {
	f := newFixture(t)
	ctx := testContext(t)

	states := make(chan StateMessage, 8)
	instructions := make(chan InstructionMessage, 8)
	err := f.client.SubscribeEvents(
		func(m StateMessage) { states <- m },
		func(m InstructionMessage) { instructions <- m },
	)
	if err != nil {
		t.Fatalf("SubscribeEvents() error = %v", err)
	}

	id, err := f.client.Schedule(ctx, controller.Uniform{Color: device.RGB{R: 1}}, 0)
	if err != nil {
		t.Fatal(err)
	}

	select {
	case m := <-instructions:
		if m.Event != "scheduled" || m.ID != id || m.Controller != "kbd" || m.Payload != "uniform" {
			t.Errorf("instruction message = %+v", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no instruction message")
	}

	if err := f.client.Start(ctx); err != nil {
		t.Fatal(err)
	}

	select {
	case m := <-states:
		if m.NewState != "active" || m.OldState != "inactive" {
			t.Errorf("state message = %+v", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no state message")
	}
}

func TestBridgeIsConnected(t *testing.T) {
	server := startServer(t)
	h := memory.New(testLayout)
	ctrl := controller.New(h, &controller.Options{Logger: testLogger()})

	bridge := NewBridge(server.ClientURL(), "kbd", ctrl, nil, testLogger())
	if bridge.IsConnected() {
		t.Error("bridge connected before Start()")
	}
	if err := bridge.Start(); err != nil {
		t.Fatal(err)
	}
	if err := bridge.Start(); err == nil {
		t.Error("second Start() should fail")
	}
	if !bridge.IsConnected() {
		t.Error("bridge not connected after Start()")
	}
	bridge.Stop()
	if bridge.IsConnected() {
		t.Error("bridge connected after Stop()")
	}
	bridge.Stop()
}

func TestScheduleRequestInstruction(t *testing.T) {
	red := device.RGB{R: 255}
	tests := []struct {
		name     string
		req      ScheduleRequest
		wantKind string
		wantErr  bool
	}{
		{"uniform", ScheduleRequest{Payload: PayloadUniform, Color: &red, DurationMS: 250}, "uniform", false},
		{"grid", ScheduleRequest{Payload: PayloadGrid, Grid: device.NewGrid(testLayout, red)}, "grid", false},
		{"uniform without color", ScheduleRequest{Payload: PayloadUniform}, "", true},
		{"grid without grid", ScheduleRequest{Payload: PayloadGrid}, "", true},
		{"unknown payload", ScheduleRequest{Payload: "rainbow"}, "", true},
		{"negative duration", ScheduleRequest{Payload: PayloadUniform, Color: &red, DurationMS: -1}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := tt.req.Instruction()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Instruction() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if in.Kind() != tt.wantKind {
				t.Errorf("Kind() = %q, want %q", in.Kind(), tt.wantKind)
			}
			if in.Duration != time.Duration(tt.req.DurationMS)*time.Millisecond {
				t.Errorf("Duration = %v", in.Duration)
			}
		})
	}
}

func TestReplyErr(t *testing.T) {
	if err := (Reply{OK: true, Error: "ignored"}).Err(); err != nil {
		t.Errorf("OK reply Err() = %v", err)
	}

	err := errorReply(controller.ErrClosed).Err()
	if !errors.Is(err, controller.ErrClosed) {
		t.Errorf("Err() = %v, want ErrClosed", err)
	}
	if err.Error() != controller.ErrClosed.Error() {
		t.Errorf("Err() message = %q, want %q", err.Error(), controller.ErrClosed.Error())
	}

	plain := Reply{Error: "boom"}.Err()
	if plain == nil || plain.Error() != "boom" || controller.Code(plain) != "" {
		t.Errorf("uncoded Err() = %v", plain)
	}
}

func TestSubjectFunctions(t *testing.T) {
	tests := []struct {
		got      string
		expected string
	}{
		{SubjectControl("kbd", ActionSchedule), "mkctl.control.kbd.schedule"},
		{SubjectControl("kbd", ActionCancel), "mkctl.control.kbd.cancel"},
		{SubjectControl("kbd", ActionState), "mkctl.control.kbd.state"},
		{SubjectEventState("kbd"), "mkctl.events.kbd.state"},
		{SubjectEventInstruction("kbd"), "mkctl.events.kbd.instruction"},
	}

	for _, tt := range tests {
		if tt.got != tt.expected {
			t.Errorf("Got %s, want %s", tt.got, tt.expected)
		}
	}
}
