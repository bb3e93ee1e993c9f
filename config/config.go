// Package config loads a port's static configuration from a hierarchical
// property bag (§4.2, C2). The concrete encoding is JSON, following the
// shape of devicecode-go's services/hal/config package: plain struct tags,
// with the PDO word arrays decoded by encoding/json straight into []uint32.
package config

import (
	"encoding/json"
	"errors"
	"fmt"

	tpm "github.com/typec-tpm/tpm"
	"github.com/typec-tpm/tpm/pdmsg"
	"github.com/typec-tpm/tpm/policy"
)

// ErrInvalidConfig is returned, possibly wrapped, for any malformed or
// incomplete configuration.
var ErrInvalidConfig = errors.New("config: invalid port configuration")

// raw is the on-the-wire property bag shape, keyed exactly as §4.2 names
// the properties.
type raw struct {
	PowerRole      string   `json:"power-role"`
	SourcePDOs     []uint32 `json:"source-pdos,omitempty"`
	SinkPDOs       []uint32 `json:"sink-pdos,omitempty"`
	TryPowerRole   string   `json:"try-power-role,omitempty"`
	OpSinkMicrowatt uint32  `json:"op-sink-microwatt,omitempty"`
	SelfPowered    bool     `json:"self-powered,omitempty"`
}

// PortConfig is the validated, immutable-after-init configuration of a
// port (§3 "Configured capabilities").
type PortConfig struct {
	TypeCType     tpm.PortType
	TryRole       tpm.PowerRole
	SourcePDO     []pdmsg.PDO
	SinkPDO       []pdmsg.PDO
	OperatingSinkMW uint32
	SelfPowered   bool
}

const maxPDOs = 7

// Load parses and validates a JSON-encoded property bag per §4.2, including
// the PDO ordering checks of §4.3 (C3) on whichever PDO arrays are present.
func Load(b []byte) (PortConfig, error) {
	var r raw
	if err := json.Unmarshal(b, &r); err != nil {
		return PortConfig{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return fromRaw(r)
}

func fromRaw(r raw) (PortConfig, error) {
	var cfg PortConfig

	switch r.PowerRole {
	case "dual":
		cfg.TypeCType = tpm.PortTypeDRP
	case "source":
		cfg.TypeCType = tpm.PortTypeSource
	case "sink":
		cfg.TypeCType = tpm.PortTypeSink
	default:
		return PortConfig{}, fmt.Errorf("%w: unrecognized power-role %q", ErrInvalidConfig, r.PowerRole)
	}

	needSource := cfg.TypeCType != tpm.PortTypeSink
	needSink := cfg.TypeCType != tpm.PortTypeSource

	if needSource {
		if len(r.SourcePDOs) == 0 {
			return PortConfig{}, fmt.Errorf("%w: source-pdos is required", ErrInvalidConfig)
		}
		cfg.SourcePDO = toPDOs(r.SourcePDOs)
		if err := policy.ValidateCapabilities(cfg.SourcePDO); err != nil {
			return PortConfig{}, fmt.Errorf("%w: source-pdos: %v", ErrInvalidConfig, err)
		}
	}
	if needSink {
		if len(r.SinkPDOs) == 0 {
			return PortConfig{}, fmt.Errorf("%w: sink-pdos is required", ErrInvalidConfig)
		}
		cfg.SinkPDO = toPDOs(r.SinkPDOs)
		if err := policy.ValidateCapabilities(cfg.SinkPDO); err != nil {
			return PortConfig{}, fmt.Errorf("%w: sink-pdos: %v", ErrInvalidConfig, err)
		}
		if r.OpSinkMicrowatt == 0 {
			return PortConfig{}, fmt.Errorf("%w: op-sink-microwatt is required for a sink-capable port", ErrInvalidConfig)
		}
		cfg.OperatingSinkMW = r.OpSinkMicrowatt / 1000
	}

	if cfg.TypeCType == tpm.PortTypeDRP {
		switch r.TryPowerRole {
		case "source":
			cfg.TryRole = tpm.RoleSource
		case "sink":
			cfg.TryRole = tpm.RoleSink
		default:
			return PortConfig{}, fmt.Errorf("%w: try-power-role is required for a dual-role port", ErrInvalidConfig)
		}
	}

	cfg.SelfPowered = r.SelfPowered
	return cfg, nil
}

// toPDOs truncates to at most maxPDOs entries, per §4.2.
func toPDOs(words []uint32) []pdmsg.PDO {
	if len(words) > maxPDOs {
		words = words[:maxPDOs]
	}
	out := make([]pdmsg.PDO, len(words))
	for i, w := range words {
		out[i] = pdmsg.PDO(w)
	}
	return out
}
