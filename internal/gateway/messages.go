package gateway

import (
	"encoding/json"

	"github.com/hmiforge/hmicore/internal/device"
)

// Inbound message types (session -> gateway).
const (
	MsgAddDevice            = "add_device"
	MsgEditDevice           = "edit_device"
	MsgDeleteDevice         = "delete_device"
	MsgRequestDeviceData    = "request_device_data"
	MsgWriteToDevice        = "write_to_device"
	MsgTempSubscribeRequest = "client_temp_subscribe_request"
	MsgTempUnsubscribeReq   = "client_temp_unsubscribe_request"
)

// Outbound message types (gateway -> session(s)).
const (
	MsgInitialDeviceList    = "initial_device_list"
	MsgDeviceAdded          = "device_added"
	MsgDeviceUpdated        = "device_updated"
	MsgDeviceDeleted        = "device_deleted"
	MsgDeviceStatusUpdate   = "device_status_update"
	MsgDeviceStatuses       = "device_statuses"
	MsgDeviceVariableUpdate = "device_variable_update"
	MsgServerTempMessage    = "server_temp_message"
	MsgDeviceData           = "device_data"
	MsgOperationError       = "operation_error"
)

// Envelope is the wire frame for every gateway message in both
// directions: a type tag plus a type-specific payload.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// encode marshals a typed message into its wire form.
func encode(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}

// deviceRef addresses a single device in delete and data requests.
type deviceRef struct {
	DeviceID string `json:"deviceId"`
}

// writeRequest carries a write_to_device payload. VariableName selects
// the variable write path; Address is the legacy raw-address fallback.
type writeRequest struct {
	DeviceID     string `json:"deviceId"`
	VariableName string `json:"variableName,omitempty"`
	Address      string `json:"address,omitempty"`
	Value        any    `json:"value"`
}

// tempRequest carries a temporary subscribe/unsubscribe payload.
type tempRequest struct {
	DeviceID string `json:"deviceId"`
	Topic    string `json:"topic"`
}

// DeviceSnapshot is a device config joined with its live connection
// state, as sent in the initial list and in add/update broadcasts.
type DeviceSnapshot struct {
	device.Config
	Connected bool `json:"connected"`
}

// deviceData is the reply to request_device_data: the device's full
// value cache so a newly bound component can render immediately.
type deviceData struct {
	DeviceID string         `json:"deviceId"`
	Values   map[string]any `json:"values"`
}

// tempMessage is the server_temp_message payload.
type tempMessage struct {
	DeviceID string `json:"deviceId"`
	Topic    string `json:"topic"`
	Payload  string `json:"payloadString"`
}

// OperationError is the structured failure reply sent only to the
// requesting session.
type OperationError struct {
	Message  string `json:"message"`
	DeviceID string `json:"deviceId,omitempty"`
	Details  string `json:"details,omitempty"`
}

// snapshot joins a device's config with its connection state.
func snapshot(d device.Device) DeviceSnapshot {
	return DeviceSnapshot{Config: d.Config(), Connected: d.Connected()}
}
