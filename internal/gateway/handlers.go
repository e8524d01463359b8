package gateway

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/hmiforge/hmicore/internal/device"
)

// handleMessage dispatches one inbound session request.
//
// Failures reply only to the requester as operation_error; successful
// mutations broadcast to every session. No handler blocks beyond the
// request timeout.
func (g *Gateway) handleMessage(s *Session, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		g.sendError(s, "", "invalid JSON message", err)
		return
	}

	switch env.Type {
	case MsgAddDevice:
		g.handleAddDevice(s, env.Payload)
	case MsgEditDevice:
		g.handleEditDevice(s, env.Payload)
	case MsgDeleteDevice:
		g.handleDeleteDevice(s, env.Payload)
	case MsgRequestDeviceData:
		g.handleRequestDeviceData(s, env.Payload)
	case MsgWriteToDevice:
		g.handleWriteToDevice(s, env.Payload)
	case MsgTempSubscribeRequest:
		g.handleTempSubscribe(s, env.Payload)
	case MsgTempUnsubscribeReq:
		g.handleTempUnsubscribe(s, env.Payload)
	default:
		g.sendError(s, "", "unknown message type: "+env.Type, nil)
	}
}

func (g *Gateway) handleAddDevice(s *Session, payload json.RawMessage) {
	var cfg device.Config
	if err := json.Unmarshal(payload, &cfg); err != nil {
		g.sendError(s, "", "invalid device config", err)
		return
	}

	ctx, cancel := g.requestContext()
	defer cancel()

	dev, created, err := g.registry.Add(ctx, cfg)
	if err != nil {
		g.sendError(s, cfg.ID, "adding device failed", err)
		return
	}
	if !created {
		g.sendError(s, cfg.ID, "device already exists", device.ErrDeviceExists)
		return
	}

	g.broadcast(MsgDeviceAdded, snapshot(dev))
}

func (g *Gateway) handleEditDevice(s *Session, payload json.RawMessage) {
	var cfg device.Config
	if err := json.Unmarshal(payload, &cfg); err != nil {
		g.sendError(s, "", "invalid device config", err)
		return
	}

	ctx, cancel := g.requestContext()
	defer cancel()

	dev, err := g.registry.Edit(ctx, cfg)
	if err != nil {
		g.sendError(s, cfg.ID, "editing device failed", err)
		return
	}

	g.broadcast(MsgDeviceUpdated, snapshot(dev))
}

func (g *Gateway) handleDeleteDevice(s *Session, payload json.RawMessage) {
	var ref deviceRef
	if err := json.Unmarshal(payload, &ref); err != nil {
		g.sendError(s, "", "invalid delete request", err)
		return
	}

	ctx, cancel := g.requestContext()
	defer cancel()

	if err := g.registry.Remove(ctx, ref.DeviceID); err != nil {
		g.sendError(s, ref.DeviceID, "deleting device failed", err)
		return
	}

	g.broadcast(MsgDeviceDeleted, ref)
}

// handleRequestDeviceData replies with the device's full value cache so
// a freshly bound component renders without waiting for broker traffic.
func (g *Gateway) handleRequestDeviceData(s *Session, payload json.RawMessage) {
	var ref deviceRef
	if err := json.Unmarshal(payload, &ref); err != nil {
		g.sendError(s, "", "invalid data request", err)
		return
	}

	dev, ok := g.registry.Get(ref.DeviceID)
	if !ok {
		g.sendError(s, ref.DeviceID, "device not found", device.ErrDeviceNotFound)
		return
	}

	values := make(map[string]any)
	for _, v := range dev.Config().Variables {
		if value, ok := dev.VariableValue(v.Name); ok {
			values[v.Name] = value
		}
	}

	g.sendTo(s, MsgDeviceData, deviceData{DeviceID: ref.DeviceID, Values: values})
}

// handleWriteToDevice routes a write to the variable path when a
// variable name is given, else to the legacy address path.
func (g *Gateway) handleWriteToDevice(s *Session, payload json.RawMessage) {
	var req writeRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		g.sendError(s, "", "invalid write request", err)
		return
	}

	dev, ok := g.registry.Get(req.DeviceID)
	if !ok {
		g.sendError(s, req.DeviceID, "device not found", device.ErrDeviceNotFound)
		return
	}

	ctx, cancel := g.requestContext()
	defer cancel()

	var err error
	switch {
	case req.VariableName != "":
		err = dev.WriteVariable(ctx, req.VariableName, req.Value)
	case req.Address != "":
		err = dev.WriteData(ctx, req.Address, req.Value)
	default:
		g.sendError(s, req.DeviceID, "write requires a variableName or address", nil)
		return
	}

	if err != nil {
		g.sendError(s, req.DeviceID, "write failed", err)
	}
	// No success reply: the round-trip through the broker produces a
	// device_variable_update when the device echoes the value.
}

func (g *Gateway) handleTempSubscribe(s *Session, payload json.RawMessage) {
	var req tempRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		g.sendError(s, "", "invalid subscribe request", err)
		return
	}

	dev, ok := g.registry.Get(req.DeviceID)
	if !ok {
		g.sendError(s, req.DeviceID, "device not found", device.ErrDeviceNotFound)
		return
	}

	ctx, cancel := g.requestContext()
	defer cancel()

	if err := dev.TempSubscribe(ctx, s.id, req.Topic); err != nil {
		g.sendError(s, req.DeviceID, "temporary subscribe failed", err)
	}
}

// handleTempUnsubscribe tolerates unknown devices and topics silently:
// a redundant unsubscribe is never an error.
func (g *Gateway) handleTempUnsubscribe(s *Session, payload json.RawMessage) {
	var req tempRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		g.sendError(s, "", "invalid unsubscribe request", err)
		return
	}

	dev, ok := g.registry.Get(req.DeviceID)
	if !ok {
		return
	}

	ctx, cancel := g.requestContext()
	defer cancel()

	if err := dev.TempUnsubscribe(ctx, s.id, req.Topic); err != nil && !errors.Is(err, device.ErrUnsupported) {
		g.logger.Warn("temporary unsubscribe",
			"session_id", s.id, "device_id", req.DeviceID, "topic", req.Topic, "error", err)
	}
}

func (g *Gateway) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}
