package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Connection constants.
const (
	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// Params holds everything needed to reach one broker.
// Host, credentials and client ID come from the device configuration;
// the timeouts and backoff come from process-wide defaults.
type Params struct {
	Host     string
	Port     int
	TLS      bool
	ClientID string
	Username string
	Password string

	ConnectTimeout   time.Duration
	OperationTimeout time.Duration

	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
}

// buildClientOptions creates paho options from connection parameters.
//
// Reconnection is delegated to paho: auto-reconnect with backoff up to
// ReconnectMaxDelay, plus connect-retry so an initially unreachable broker
// is retried without the caller polling. No Last Will is configured; the
// device core is a guest on externally owned brokers and must not plant
// status messages on them.
func buildClientOptions(p Params) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if p.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, p.Host, p.Port))

	opts.SetClientID(p.ClientID)

	if p.Username != "" {
		opts.SetUsername(p.Username)
		opts.SetPassword(p.Password)
	}

	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(p.ReconnectInitialDelay)
	opts.SetMaxReconnectInterval(p.ReconnectMaxDelay)

	opts.SetConnectTimeout(p.ConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if p.TLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
		})
	}

	return opts
}
