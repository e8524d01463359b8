// HMI Core - device integration layer for the HMI designer.
//
// The process hosts the device registry (MQTT and Modbus field devices),
// the WebSocket gateway for designer/runtime UI sessions, and an
// optional InfluxDB sink for variable history.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hmiforge/hmicore/internal/device"
	"github.com/hmiforge/hmicore/internal/device/modbusdev"
	"github.com/hmiforge/hmicore/internal/device/mqttdev"
	"github.com/hmiforge/hmicore/internal/gateway"
	"github.com/hmiforge/hmicore/internal/infrastructure/config"
	"github.com/hmiforge/hmicore/internal/infrastructure/influxdb"
	"github.com/hmiforge/hmicore/internal/infrastructure/logging"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// shutdownTimeout bounds device teardown on exit.
const shutdownTimeout = 15 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting HMI Core", "version", version, "commit", commit)

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised", "level", cfg.Logging.Level, "format", cfg.Logging.Format)

	// Connect to InfluxDB (optional)
	var history gateway.HistoryWriter
	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled, variable history off")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		history = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	// Gateway first: the registry is built with its event callbacks.
	gw := gateway.New(cfg.WebSocket, cfg.GetHeartbeatInterval(), history, log)

	registry := device.NewRegistry(deviceFactory(cfg), gw.DeviceCallbacks())
	registry.SetLogger(log)
	gw.AttachRegistry(registry)
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer closeCancel()
		log.Info("closing devices", "count", registry.Count())
		registry.CloseAll(closeCtx)
	}()

	server, err := gateway.NewServer(gateway.Deps{
		Config:   cfg,
		Logger:   log,
		Gateway:  gw,
		Registry: registry,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating gateway server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting gateway server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing gateway server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal",
		"address", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		"ws_path", cfg.WebSocket.Path,
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// loadConfig loads the YAML config, falling back to built-in defaults
// when no file is present (first run, containerised deployments driven
// purely by HMICORE_* env vars).
func loadConfig(log *logging.Logger) (*config.Config, error) {
	path := getConfigPath()
	cfg, err := config.Load(path)
	if err == nil {
		log.Info("configuration loaded", "path", path)
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		log.Info("no config file, using defaults", "path", path)
		return config.Default(), nil
	}
	return nil, fmt.Errorf("loading config: %w", err)
}

// getConfigPath returns the configuration file path.
// Uses HMICORE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HMICORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// deviceFactory builds the per-type device constructor, dispatching on
// the config's type tag exactly once per device.
func deviceFactory(cfg *config.Config) device.Factory {
	transportFactory := mqttdev.PahoTransport(mqttdev.TransportDefaults{
		ConnectTimeout:        time.Duration(cfg.MQTT.ConnectTimeout) * time.Second,
		OperationTimeout:      time.Duration(cfg.MQTT.OperationTimeout) * time.Second,
		ReconnectInitialDelay: time.Duration(cfg.MQTT.Reconnect.InitialDelay) * time.Second,
		ReconnectMaxDelay:     time.Duration(cfg.MQTT.Reconnect.MaxDelay) * time.Second,
	})
	mqttOpts := mqttdev.Options{
		//nolint:gosec // config validation keeps this non-negative
		DisconnectQuiesce: uint(cfg.MQTT.DisconnectQuiesce),
	}

	return func(dc device.Config, cb device.Callbacks, logger device.Logger) (device.Device, error) {
		switch dc.Type {
		case device.TypeMQTT:
			return mqttdev.New(dc, cb, logger, transportFactory, mqttOpts), nil
		case device.TypeModbusRTU, device.TypeModbusTCP:
			return modbusdev.New(dc, cb, logger, modbusdev.Options{})
		default:
			return nil, fmt.Errorf("%w: %s", device.ErrInvalidType, dc.Type)
		}
	}
}
