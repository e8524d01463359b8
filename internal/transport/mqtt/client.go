package mqtt

import (
	"context"
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Handlers holds the callbacks a client owner registers before connecting.
// All callbacks are invoked from paho's internal goroutines; owners are
// expected to hand the events off to their own processing loop.
type Handlers struct {
	// OnConnect fires on the initial connection and on every reconnect.
	OnConnect func()

	// OnConnectionLost fires when an established connection drops.
	// Paho keeps reconnecting in the background; OnConnect fires again
	// once the broker is reachable.
	OnConnectionLost func(err error)

	// OnMessage fires for every inbound message on a subscribed topic.
	OnMessage func(topic string, payload []byte)
}

// Client wraps paho.mqtt.golang for a single device connection.
//
// Unlike a shared broker client, a Client carries no subscription
// bookkeeping: which topics must be live is domain state owned by the
// device actor, which re-issues Subscribe calls from its OnConnect
// callback. The client only moves bytes.
type Client struct {
	client pahomqtt.Client
	params Params
	h      Handlers
}

// New creates an unconnected client for the given broker parameters.
func New(params Params, h Handlers) *Client {
	c := &Client{params: params, h: h}

	opts := buildClientOptions(params)
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		if h.OnConnect != nil {
			h.OnConnect()
		}
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		if h.OnConnectionLost != nil {
			h.OnConnectionLost(err)
		}
	})
	opts.SetDefaultPublishHandler(func(_ pahomqtt.Client, msg pahomqtt.Message) {
		if h.OnMessage != nil {
			h.OnMessage(msg.Topic(), msg.Payload())
		}
	})

	c.client = pahomqtt.NewClient(opts)
	return c
}

// Connect attempts the initial connection to the broker.
//
// On timeout or refusal an error is returned, but paho keeps retrying in
// the background (connect-retry is enabled); OnConnect fires when a later
// attempt succeeds. Callers treat the error as informational.
func (c *Client) Connect(ctx context.Context) error {
	token := c.client.Connect()
	if !token.WaitTimeout(c.params.ConnectTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, c.params.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	return nil
}

// Disconnect closes the connection and stops any background reconnect loop.
// Safe to call on a client that never connected.
func (c *Client) Disconnect(quiesce uint) {
	c.client.Disconnect(quiesce)
}

// IsConnected reports the transport-level connection state.
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// Publish sends a message and waits for the token up to the operation timeout.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if !c.client.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(c.params.OperationTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, c.params.OperationTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Subscribe registers a broker subscription. Messages arrive via
// Handlers.OnMessage regardless of which topic they were subscribed under.
func (c *Client) Subscribe(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if !c.client.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Subscribe(topic, qos, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		if c.h.OnMessage != nil {
			c.h.OnMessage(msg.Topic(), msg.Payload())
		}
	})
	if !token.WaitTimeout(c.params.OperationTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, c.params.OperationTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

// Unsubscribe removes broker subscriptions. Best effort: a timeout or
// broker error is returned but the caller's local bookkeeping should not
// depend on it succeeding.
func (c *Client) Unsubscribe(topics ...string) error {
	if len(topics) == 0 {
		return nil
	}
	if !c.client.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Unsubscribe(topics...)
	if !token.WaitTimeout(c.params.OperationTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrUnsubscribeFailed, c.params.OperationTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}
	return nil
}
