package device

import (
	"fmt"
	"strings"
)

// Validation limits.
const (
	maxIDLength   = 64
	maxNameLength = 128
	maxQoS        = 2
)

// ValidateConfig checks a device configuration before construction.
// Violations are ConfigErrors: they reach the requesting session as an
// operation_error and are never fatal to the process.
func ValidateConfig(cfg Config) error {
	var errs []string

	if strings.TrimSpace(cfg.ID) == "" {
		errs = append(errs, "id is required")
	} else if len(cfg.ID) > maxIDLength {
		errs = append(errs, fmt.Sprintf("id exceeds %d characters", maxIDLength))
	}

	if strings.TrimSpace(cfg.Name) == "" {
		errs = append(errs, "name is required")
	} else if len(cfg.Name) > maxNameLength {
		errs = append(errs, fmt.Sprintf("name exceeds %d characters", maxNameLength))
	}

	if !cfg.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidType, cfg.Type)
	}

	switch cfg.Type {
	case TypeMQTT:
		errs = append(errs, validateMQTTParams(cfg.MQTT)...)
	case TypeModbusTCP:
		if cfg.Modbus == nil || cfg.Modbus.Host == "" || cfg.Modbus.Port == 0 {
			errs = append(errs, "modbus-tcp requires modbus.host and modbus.port")
		}
	case TypeModbusRTU:
		if cfg.Modbus == nil || cfg.Modbus.SerialPort == "" {
			errs = append(errs, "modbus-rtu requires modbus.serialPort")
		}
	}

	errs = append(errs, validateVariables(cfg.Variables)...)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidDevice, strings.Join(errs, "; "))
	}
	return nil
}

func validateMQTTParams(p *MQTTParams) []string {
	if p == nil {
		return []string{"mqtt connection parameters are required"}
	}

	var errs []string
	if p.Host == "" {
		errs = append(errs, "mqtt.host is required")
	}
	if p.Port < 1 || p.Port > 65535 {
		errs = append(errs, "mqtt.port must be between 1 and 65535")
	}
	return errs
}

func validateVariables(vars []Variable) []string {
	var errs []string

	seen := make(map[string]struct{}, len(vars))
	for i, v := range vars {
		if strings.TrimSpace(v.Name) == "" {
			errs = append(errs, fmt.Sprintf("variable %d: name is required", i))
			continue
		}
		if _, dup := seen[v.Name]; dup {
			errs = append(errs, fmt.Sprintf("variable %q: duplicate name", v.Name))
		}
		seen[v.Name] = struct{}{}

		if v.EnableSubscribe && v.SubscribeTopic == "" {
			errs = append(errs, fmt.Sprintf("variable %q: subscribe enabled without a topic", v.Name))
		}
		if v.EnablePublish && v.PublishTopic == "" {
			errs = append(errs, fmt.Sprintf("variable %q: publish enabled without a topic", v.Name))
		}
		if v.QoSSubscribe > maxQoS || v.QoSPublish > maxQoS {
			errs = append(errs, fmt.Sprintf("variable %q: qos must be 0, 1, or 2", v.Name))
		}
	}

	return errs
}
