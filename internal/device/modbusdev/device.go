// Package modbusdev provides the Modbus device implementation.
//
// Only the connection lifecycle is wired: Connect opens the TCP or RTU
// handler and Disconnect closes it, with status events on each change.
// Register polling and decoding are not implemented yet, so the data
// operations report unsupported.
package modbusdev

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	mb "github.com/goburrow/modbus"

	"github.com/hmiforge/hmicore/internal/device"
)

// handlerConn is the lifecycle surface shared by goburrow's TCP and RTU
// client handlers.
type handlerConn interface {
	mb.ClientHandler
	Connect() error
	Close() error
}

// handlerFactory builds a protocol handler from a device config.
// Replaceable in tests.
type handlerFactory func(cfg device.Config, timeout time.Duration) (handlerConn, string, error)

// Options tune a Modbus device.
type Options struct {
	// Timeout bounds each handler operation. Zero means 5s.
	Timeout time.Duration
}

// Device is a Modbus field device.
type Device struct {
	device.Unsupported

	cb     device.Callbacks
	logger device.Logger
	opts   Options

	newHandler handlerFactory

	mu        sync.Mutex
	cfg       device.Config
	handler   handlerConn
	addr      string
	connected bool
	closed    bool
}

// New builds a Modbus device from its config. The handler is not opened
// until Connect.
func New(cfg device.Config, cb device.Callbacks, logger device.Logger, opts Options) (*Device, error) {
	if cfg.Modbus == nil {
		return nil, fmt.Errorf("%w: missing modbus parameters", device.ErrInvalidDevice)
	}
	return &Device{
		cb:         cb,
		logger:     logger,
		opts:       opts,
		cfg:        cfg.Clone(),
		newHandler: buildHandler,
	}, nil
}

func (d *Device) ID() string { return d.cfg.ID }

func (d *Device) Config() device.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg.Clone()
}

func (d *Device) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// Connect opens the protocol handler. Idempotent.
func (d *Device) Connect(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return device.ErrClosed
	}
	if d.connected {
		return nil
	}

	if d.handler == nil {
		timeout := d.opts.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		h, addr, err := d.newHandler(d.cfg, timeout)
		if err != nil {
			return err
		}
		d.handler = h
		d.addr = addr
	}

	if err := d.handler.Connect(); err != nil {
		return fmt.Errorf("connect %s: %w", d.addr, err)
	}

	d.logger.Info("modbus handler connected", "device_id", d.cfg.ID, "address", d.addr)
	d.setConnectedLocked(true)
	return nil
}

// Disconnect closes the protocol handler. Idempotent.
func (d *Device) Disconnect(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disconnectLocked()
}

func (d *Device) disconnectLocked() error {
	if !d.connected {
		return nil
	}
	if d.handler != nil {
		if err := d.handler.Close(); err != nil {
			d.logger.Warn("closing modbus handler",
				"device_id", d.cfg.ID, "address", d.addr, "error", err)
		}
	}
	d.setConnectedLocked(false)
	return nil
}

// ApplyConfig replaces the stored config. Connection parameter changes
// go through a full rebuild at the registry, so only the descriptive
// fields matter here.
func (d *Device) ApplyConfig(_ context.Context, cfg device.Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return device.ErrClosed
	}
	d.cfg = cfg.Clone()
	return nil
}

// Close disconnects and rejects all further operations.
func (d *Device) Close(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.disconnectLocked()
	d.closed = true
	d.handler = nil
	return err
}

func (d *Device) setConnectedLocked(connected bool) {
	d.connected = connected
	d.cb.EmitStatus(device.StatusEvent{
		DeviceID:  d.cfg.ID,
		Name:      d.cfg.Name,
		Type:      d.cfg.Type,
		Connected: connected,
		Timestamp: time.Now().UTC(),
	})
}

// buildHandler constructs a goburrow handler for the device's protocol
// variant and returns it with a loggable address.
func buildHandler(cfg device.Config, timeout time.Duration) (handlerConn, string, error) {
	p := cfg.Modbus
	switch cfg.Type {
	case device.TypeModbusTCP:
		address := fmt.Sprintf("%s:%d", p.Host, p.Port)
		h := mb.NewTCPClientHandler(address)
		h.Timeout = timeout
		h.SlaveId = p.SlaveID
		return h, address, nil
	case device.TypeModbusRTU:
		if strings.TrimSpace(p.SerialPort) == "" {
			return nil, "", fmt.Errorf("%w: serial port required for modbus-rtu", device.ErrInvalidDevice)
		}
		h := mb.NewRTUClientHandler(p.SerialPort)
		if p.BaudRate > 0 {
			h.BaudRate = p.BaudRate
		}
		if p.DataBits > 0 {
			h.DataBits = p.DataBits
		}
		if p.StopBits > 0 {
			h.StopBits = p.StopBits
		}
		if parity := strings.ToUpper(strings.TrimSpace(p.Parity)); parity != "" {
			h.Parity = parity
		}
		h.Timeout = timeout
		h.SlaveId = p.SlaveID
		return h, p.SerialPort, nil
	default:
		return nil, "", fmt.Errorf("%w: %s", device.ErrInvalidType, cfg.Type)
	}
}
