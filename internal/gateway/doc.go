// Package gateway multiplexes designer and runtime UI sessions onto the
// device layer over WebSocket.
//
// Each connected session gets a unique ID, a bounded outbound buffer,
// and a periodic device-status heartbeat. Session requests (device
// CRUD, writes, temporary subscriptions) dispatch through a JSON
// {type, payload} protocol; device events fan back out through the hub.
// Mutation failures reply only to the requester as operation_error,
// successful mutations broadcast to every session.
//
// A small read-only HTTP API rides alongside the WebSocket endpoint for
// health checks and device inspection.
package gateway
