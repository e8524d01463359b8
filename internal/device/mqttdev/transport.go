package mqttdev

import (
	"time"

	"github.com/hmiforge/hmicore/internal/device"
	transportmqtt "github.com/hmiforge/hmicore/internal/transport/mqtt"
)

// TransportDefaults are the process-wide connection settings applied to
// every device transport; broker address and credentials come from the
// device config itself.
type TransportDefaults struct {
	ConnectTimeout        time.Duration
	OperationTimeout      time.Duration
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
}

// PahoTransport returns the production TransportFactory, backed by
// transport/mqtt (paho).
func PahoTransport(defaults TransportDefaults) TransportFactory {
	return func(cfg device.Config, hooks TransportHooks) Transport {
		params := transportmqtt.Params{
			ConnectTimeout:        defaults.ConnectTimeout,
			OperationTimeout:      defaults.OperationTimeout,
			ReconnectInitialDelay: defaults.ReconnectInitialDelay,
			ReconnectMaxDelay:     defaults.ReconnectMaxDelay,
		}
		if cfg.MQTT != nil {
			params.Host = cfg.MQTT.Host
			params.Port = cfg.MQTT.Port
			params.TLS = cfg.MQTT.TLS
			params.ClientID = cfg.MQTT.ClientID
			params.Username = cfg.MQTT.Username
			params.Password = cfg.MQTT.Password
		}
		if params.ClientID == "" {
			params.ClientID = "hmicore-" + cfg.ID
		}

		return transportmqtt.New(params, transportmqtt.Handlers{
			OnConnect:        hooks.OnConnect,
			OnConnectionLost: hooks.OnConnectionLost,
			OnMessage:        hooks.OnMessage,
		})
	}
}
