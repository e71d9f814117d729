package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/smazurov/mkctl/internal/controller"
)

// ErrNotConnected is returned by Client requests made before Connect or
// after Close.
var ErrNotConnected = errors.New("not connected to NATS")

// Client drives a remote controller through its Bridge.
type Client struct {
	url    string
	name   string
	conn   *nats.Conn
	subs   []*nats.Subscription
	logger *slog.Logger
	mu     sync.RWMutex
}

// NewClient creates a client for the controller served under name.
func NewClient(url, name string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		url:    url,
		name:   name,
		logger: logger.With("component", "nats-client", "controller", name),
	}
}

// Connect establishes a connection to the NATS server.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	conn, err := nats.Connect(c.url,
		nats.Name("mkctl-client-"+c.name),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(5),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				c.logger.Warn("NATS disconnected", "error", err)
			}
		}),
	)
	if err != nil {
		return err
	}

	c.conn = conn
	c.logger.Debug("Connected to NATS", "url", c.url)
	return nil
}

// Schedule queues payload on the remote controller and returns its ID.
// payload is a controller.Uniform or controller.Grid.
func (c *Client) Schedule(ctx context.Context, payload controller.Payload, d time.Duration) (uint32, error) {
	req := ScheduleRequest{DurationMS: d.Milliseconds()}
	switch p := payload.(type) {
	case controller.Uniform:
		color := p.Color
		req.Payload = PayloadUniform
		req.Color = &color
	case controller.Grid:
		req.Payload = PayloadGrid
		req.Grid = p.Colors
	default:
		return 0, &controller.Error{Code: controller.ErrCodeInvalidInstruction, Message: fmt.Sprintf("unsupported payload %T", payload)}
	}

	reply, err := c.request(ctx, ActionSchedule, req)
	if err != nil {
		return 0, err
	}
	if err := reply.Err(); err != nil {
		return 0, err
	}
	return reply.ID, nil
}

// Cancel removes a queued instruction on the remote controller. It reports
// whether anything was removed.
func (c *Client) Cancel(ctx context.Context, id uint32) (bool, error) {
	reply, err := c.request(ctx, ActionCancel, CancelRequest{ID: id})
	if err != nil {
		return false, err
	}
	if err := reply.Err(); err != nil {
		return false, err
	}
	return reply.Cancelled, nil
}

// Start starts the remote controller's worker.
func (c *Client) Start(ctx context.Context) error {
	reply, err := c.request(ctx, ActionStart, nil)
	if err != nil {
		return err
	}
	return reply.Err()
}

// Stop asks the remote worker to exit. It does not wait for it.
func (c *Client) Stop(ctx context.Context) error {
	reply, err := c.request(ctx, ActionStop, nil)
	if err != nil {
		return err
	}
	return reply.Err()
}

// Status is a remote controller's state and its latched worker error.
type Status struct {
	State controller.State
	Err   error
}

// State queries the remote controller's status.
func (c *Client) State(ctx context.Context) (Status, error) {
	reply, err := c.request(ctx, ActionState, nil)
	if err != nil {
		return Status{}, err
	}

	st := Status{State: controller.State(reply.State)}
	if reply.Code != "" || reply.Error != "" {
		st.Err = Reply{Error: reply.Error, Code: reply.Code}.Err()
	}
	return st, nil
}

// SubscribeEvents delivers the remote controller's published events. Either
// callback may be nil.
func (c *Client) SubscribeEvents(onState func(StateMessage), onInstruction func(InstructionMessage)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}

	if onState != nil {
		sub, err := c.conn.Subscribe(SubjectEventState(c.name), func(msg *nats.Msg) {
			m, err := UnmarshalState(msg.Data)
			if err != nil {
				c.logger.Warn("Failed to unmarshal state", "error", err)
				return
			}
			onState(m)
		})
		if err != nil {
			return err
		}
		c.subs = append(c.subs, sub)
	}

	if onInstruction != nil {
		sub, err := c.conn.Subscribe(SubjectEventInstruction(c.name), func(msg *nats.Msg) {
			m, err := UnmarshalInstruction(msg.Data)
			if err != nil {
				c.logger.Warn("Failed to unmarshal instruction", "error", err)
				return
			}
			onInstruction(m)
		})
		if err != nil {
			return err
		}
		c.subs = append(c.subs, sub)
	}

	// Make sure the server knows about the subscriptions before returning.
	return c.conn.Flush()
}

func (c *Client) request(ctx context.Context, action string, body interface{ Marshal() ([]byte, error) }) (Reply, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return Reply{}, ErrNotConnected
	}

	var data []byte
	if body != nil {
		var err error
		if data, err = body.Marshal(); err != nil {
			return Reply{}, err
		}
	}

	msg, err := conn.RequestWithContext(ctx, SubjectControl(c.name, action), data)
	if err != nil {
		return Reply{}, fmt.Errorf("%s request: %w", action, err)
	}

	reply, err := UnmarshalReply(msg.Data)
	if err != nil {
		return Reply{}, fmt.Errorf("%s reply: %w", action, err)
	}
	return reply, nil
}

// IsConnected returns true if connected to NATS.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// Close closes the NATS connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.subs = nil

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.logger.Debug("NATS client closed")
}
