package nats

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smazurov/mkctl/internal/controller"
	"github.com/smazurov/mkctl/internal/device"
)

// Subject prefixes for NATS topics.
const (
	SubjectControlPrefix = "mkctl.control"
	SubjectEventsPrefix  = "mkctl.events"
)

// Control actions, the last token of a control subject.
const (
	ActionSchedule = "schedule"
	ActionCancel   = "cancel"
	ActionStart    = "start"
	ActionStop     = "stop"
	ActionState    = "state"
)

// SubjectControl returns the request subject for an action on a controller.
func SubjectControl(name, action string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectControlPrefix, name, action)
}

// SubjectEventState returns the subject controller state changes are published on.
func SubjectEventState(name string) string {
	return fmt.Sprintf("%s.%s.state", SubjectEventsPrefix, name)
}

// SubjectEventInstruction returns the subject instruction activity is published on.
func SubjectEventInstruction(name string) string {
	return fmt.Sprintf("%s.%s.instruction", SubjectEventsPrefix, name)
}

// Payload kinds carried by ScheduleRequest.
const (
	PayloadUniform = "uniform"
	PayloadGrid    = "grid"
)

// ScheduleRequest asks the controller to queue one instruction.
type ScheduleRequest struct {
	Payload    string      `json:"payload"` // uniform, grid
	Color      *device.RGB `json:"color,omitempty"`
	Grid       device.Grid `json:"grid,omitempty"`
	DurationMS int64       `json:"duration_ms,omitempty"`
}

// Marshal serializes the message to JSON.
func (m ScheduleRequest) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// Instruction converts the request into a controller instruction.
func (m ScheduleRequest) Instruction() (*controller.Instruction, error) {
	var in *controller.Instruction
	switch m.Payload {
	case PayloadUniform:
		if m.Color == nil {
			return nil, errors.New("uniform payload without color")
		}
		in = controller.NewUniform(*m.Color)
	case PayloadGrid:
		if m.Grid == nil {
			return nil, errors.New("grid payload without grid")
		}
		in = controller.NewGrid(m.Grid)
	default:
		return nil, fmt.Errorf("unknown payload %q", m.Payload)
	}
	if m.DurationMS < 0 {
		return nil, errors.New("negative duration")
	}
	in.Duration = time.Duration(m.DurationMS) * time.Millisecond
	return in, nil
}

// CancelRequest asks the controller to drop a queued instruction.
type CancelRequest struct {
	ID uint32 `json:"id"`
}

// Marshal serializes the message to JSON.
func (m CancelRequest) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// Reply answers every control request.
type Reply struct {
	OK        bool   `json:"ok"`
	ID        uint32 `json:"id,omitempty"`
	Cancelled bool   `json:"cancelled,omitempty"`
	State     string `json:"state,omitempty"`
	Error     string `json:"error,omitempty"`
	Code      string `json:"code,omitempty"`
}

// Marshal serializes the message to JSON.
func (m Reply) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// errorReply builds a failed reply carrying the controller error code of err.
func errorReply(err error) Reply {
	r := Reply{Error: err.Error(), Code: controller.Code(err)}
	var ce *controller.Error
	if errors.As(err, &ce) && ce.Cause == nil {
		r.Error = ce.Message
	}
	return r
}

// Err reconstructs the error a failed reply carries. Replies with a code
// yield a *controller.Error so errors.Is works against the controller
// sentinels.
func (m Reply) Err() error {
	if m.OK {
		return nil
	}
	msg := m.Error
	if msg == "" {
		msg = "request failed"
	}
	if m.Code == "" {
		return errors.New(msg)
	}
	return &controller.Error{Code: m.Code, Message: strings.TrimPrefix(msg, m.Code+": ")}
}

// StateMessage mirrors a controller state change.
type StateMessage struct {
	Controller string `json:"controller"`
	Timestamp  string `json:"timestamp"`
	OldState   string `json:"old_state"`
	NewState   string `json:"new_state"`
	Error      string `json:"error,omitempty"`
	Code       string `json:"code,omitempty"`
}

// Marshal serializes the message to JSON.
func (m StateMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// InstructionMessage mirrors instruction activity: scheduled, executed,
// cancelled, failed or idle.
type InstructionMessage struct {
	Controller string `json:"controller"`
	Timestamp  string `json:"timestamp"`
	Event      string `json:"event"`
	ID         uint32 `json:"id,omitempty"`
	Payload    string `json:"payload,omitempty"`
	QueueDepth int    `json:"queue_depth"`
	Error      string `json:"error,omitempty"`
}

// Marshal serializes the message to JSON.
func (m InstructionMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalSchedule deserializes a ScheduleRequest from JSON.
func UnmarshalSchedule(data []byte) (ScheduleRequest, error) {
	var m ScheduleRequest
	err := json.Unmarshal(data, &m)
	return m, err
}

// UnmarshalCancel deserializes a CancelRequest from JSON.
func UnmarshalCancel(data []byte) (CancelRequest, error) {
	var m CancelRequest
	err := json.Unmarshal(data, &m)
	return m, err
}

// UnmarshalReply deserializes a Reply from JSON.
func UnmarshalReply(data []byte) (Reply, error) {
	var m Reply
	err := json.Unmarshal(data, &m)
	return m, err
}

// UnmarshalState deserializes a StateMessage from JSON.
func UnmarshalState(data []byte) (StateMessage, error) {
	var m StateMessage
	err := json.Unmarshal(data, &m)
	return m, err
}

// UnmarshalInstruction deserializes an InstructionMessage from JSON.
func UnmarshalInstruction(data []byte) (InstructionMessage, error) {
	var m InstructionMessage
	err := json.Unmarshal(data, &m)
	return m, err
}
