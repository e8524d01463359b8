package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteVariableSample records one resolved variable value for trend display.
//
// Only numeric-representable values reach this method; the gateway converts
// booleans to 0/1 and skips strings and objects. The write is non-blocking;
// data is batched and sent asynchronously.
func (c *Client) WriteVariableSample(deviceID, variable string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"variable_values",
		map[string]string{
			"device_id": deviceID,
			"variable":  variable,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteDeviceStatus records a connection state transition.
// Lets trend views correlate value gaps with broker outages.
func (c *Client) WriteDeviceStatus(deviceID string, connected bool) {
	if !c.IsConnected() {
		return
	}

	state := 0.0
	if connected {
		state = 1.0
	}

	point := write.NewPoint(
		"device_status",
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"connected": state,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
