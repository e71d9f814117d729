// Package nats exposes a controller to remote producers over NATS.
//
// # Architecture
//
//   - Server: optional embedded NATS server running in the daemon
//   - Bridge: answers control requests for one controller and republishes its events
//   - Client: producer-side request/reply client for a bridged controller
//
// # Subject Hierarchy
//
//	mkctl.control.{name}.schedule      # queue an instruction (request/reply)
//	mkctl.control.{name}.cancel        # drop a queued instruction (request/reply)
//	mkctl.control.{name}.start         # start the worker (request/reply)
//	mkctl.control.{name}.stop          # request the worker to exit (request/reply)
//	mkctl.control.{name}.state         # query state and latched error (request/reply)
//	mkctl.events.{name}.state          # state changes (bridge → subscribers)
//	mkctl.events.{name}.instruction    # instruction activity (bridge → subscribers)
//
// Core NATS only, no JetStream. Events are best effort: a slow bridge drops
// them rather than stalling the controller.
//
// # Debugging with nats CLI
//
// Queue a red frame for two seconds and start the worker:
//
//	nats req mkctl.control.kbd.schedule '{"payload":"uniform","color":{"r":255,"g":0,"b":0},"duration_ms":2000}'
//	nats req mkctl.control.kbd.start ''
//
// Watch everything the controller reports:
//
//	nats sub "mkctl.events.kbd.>"
//
// # Message Formats
//
// Reply (every control request):
//
//	{
//	  "ok": false,
//	  "id": 3,
//	  "state": "active",
//	  "error": "controller is already active",
//	  "code": "ALREADY_ACTIVE"
//	}
//
// InstructionMessage (mkctl.events.{name}.instruction):
//
//	{
//	  "controller": "kbd",
//	  "timestamp": "2026-01-01T12:00:00Z",
//	  "event": "executed",
//	  "id": 3,
//	  "payload": "uniform",
//	  "queue_depth": 0
//	}
package nats
