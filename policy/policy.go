// Package policy implements the capability validator and the PDO/RDO
// selector used by the policy engine when negotiating a USB-PD contract.
//
// It follows the shape of the teacher's tcdpm.Policy: a small set of pure
// functions operating on pdmsg.PDO slices, kept free of any I/O so they can
// be exercised directly from tests and from the state machine alike.
package policy

import (
	"errors"
	"fmt"

	"github.com/typec-tpm/tpm/pdmsg"
)

// Capability validator errors, in the order §4.3 checks them.
var (
	// ErrNoVsafe5V is returned when the PDO array is empty.
	ErrNoVsafe5V = errors.New("policy: source capabilities must contain at least one PDO")

	// ErrVsafe5VNotFirst is returned when the first PDO is not a fixed 5V
	// supply.
	ErrVsafe5VNotFirst = errors.New("policy: first PDO must be a fixed 5000mV supply")

	// ErrTypeNotInOrder is returned when PDO types do not appear in
	// non-decreasing FIXED < BATT < VAR < APDO order.
	ErrTypeNotInOrder = errors.New("policy: PDO types must be grouped in FIXED, BATT, VAR, APDO order")

	// ErrVoltageNotAscending is returned when same-type entries violate the
	// strictly-ascending (FIXED) or non-decreasing-and-distinct (BATT/VAR/PPS)
	// ordering rules within a type run.
	ErrVoltageNotAscending = errors.New("policy: PDO entries of the same type must be strictly ordered and distinct")
)

// pdoOrderClass maps a PDOType onto the ordering class used by the
// FIXED < BATT < VAR < APDO comparison. PPS and EPRAVS are both APDO.
func pdoOrderClass(t pdmsg.PDOType) int {
	switch t {
	case pdmsg.PDOTypeFixedSupply:
		return 0
	case pdmsg.PDOTypeBattery:
		return 1
	case pdmsg.PDOTypeVariableSupply:
		return 2
	default:
		return 3 // APDO (PPS, EPRAVS)
	}
}

// ValidateCapabilities checks that pdos conforms to the PDO ordering rules
// of §4.3. It returns the first violation found.
func ValidateCapabilities(pdos []pdmsg.PDO) error {
	if len(pdos) == 0 {
		return ErrNoVsafe5V
	}
	first := pdmsg.FixedSupplyPDO(pdos[0])
	if pdos[0].Type() != pdmsg.PDOTypeFixedSupply || first.Voltage() != 5000 {
		return ErrVsafe5VNotFirst
	}

	prevClass := -1
	var prevMin, prevMax, prevMaxCurrent uint16
	for i, p := range pdos {
		class := pdoOrderClass(p.Type())
		if class < prevClass {
			return ErrTypeNotInOrder
		}
		newRun := class != prevClass
		prevClass = class

		switch p.Type() {
		case pdmsg.PDOTypeFixedSupply:
			v := pdmsg.FixedSupplyPDO(p).Voltage()
			if !newRun && v <= prevMax {
				return ErrVoltageNotAscending
			}
			prevMax = v

		case pdmsg.PDOTypeBattery:
			min, max := pdmsg.BatteryPDO(p).MinVoltage(), pdmsg.BatteryPDO(p).MaxVoltage()
			if !newRun {
				if min < prevMin {
					return ErrVoltageNotAscending
				}
				if min == prevMin && max == prevMax {
					return ErrVoltageNotAscending
				}
			}
			prevMin, prevMax = min, max

		case pdmsg.PDOTypeVariableSupply:
			min, max := pdmsg.VariableSupplyPDO(p).MinVoltage(), pdmsg.VariableSupplyPDO(p).MaxVoltage()
			if !newRun {
				if min < prevMin {
					return ErrVoltageNotAscending
				}
				if min == prevMin && max == prevMax {
					return ErrVoltageNotAscending
				}
			}
			prevMin, prevMax = min, max

		case pdmsg.PDOTypePPS:
			pps := pdmsg.PPSPDO(p)
			max := pps.MaxVoltage()
			if !newRun {
				if max < prevMax {
					return ErrVoltageNotAscending
				}
				if pps.MinVoltage() == prevMin && max == prevMax && pps.MaxCurrent() == prevMaxCurrent {
					return ErrVoltageNotAscending
				}
			}
			prevMin, prevMax, prevMaxCurrent = pps.MinVoltage(), max, pps.MaxCurrent()

		default:
			// EPRAVS and any other APDO flavor: ordering rules are not
			// specified by this spec beyond the type-run check above.
		}
		_ = i
	}
	return nil
}

// ErrNoMatch is returned by Select when no source PDO can satisfy any local
// sink PDO.
var ErrNoMatch = errors.New("policy: no source PDO matches a local sink PDO")

// Selection describes the result of matching source capabilities against
// local sink capabilities.
type Selection struct {
	SourceIndex int // index into the source PDO array (0-based)
	SinkIndex   int
	RDO         pdmsg.RequestDO
}

// Select picks the best source PDO against the local sink PDOs per §4.4 and
// builds the corresponding request data object. operatingSinkMW is the
// sink's configured operating power; when the best candidate provides less,
// the capability-mismatch flag is set and the request is raised to the
// sink's own maximum.
func Select(sourcePDOs, sinkPDOs []pdmsg.PDO, operatingSinkMW uint32) (Selection, error) {
	bestPower := -1
	bestMinMV := -1
	best := Selection{SourceIndex: -1, SinkIndex: -1}

	for si, s := range sourcePDOs {
		if isAPDO(s.Type()) {
			continue
		}
		for ki, k := range sinkPDOs {
			if isAPDO(k.Type()) {
				continue
			}
			if s.MaxMillivolts() > k.MaxMillivolts() || s.MinMillivolts() < k.MinMillivolts() {
				continue
			}
			power := int(sourcePowerMW(s))
			minMV := int(s.MinMillivolts())
			if power > bestPower || (power == bestPower && minMV > bestMinMV) {
				bestPower = power
				bestMinMV = minMV
				best = Selection{SourceIndex: si, SinkIndex: ki}
			}
		}
	}

	if best.SourceIndex < 0 {
		return Selection{}, ErrNoMatch
	}

	rdo, err := buildRequest(sourcePDOs[best.SourceIndex], sinkPDOs[best.SinkIndex], best.SourceIndex, operatingSinkMW)
	if err != nil {
		return Selection{}, err
	}
	best.RDO = rdo
	return best, nil
}

func isAPDO(t pdmsg.PDOType) bool {
	return t == pdmsg.PDOTypePPS || t == pdmsg.PDOTypeEPRAVS
}

// sourcePowerMW returns the advertised source power in milliwatts used to
// rank candidates, independent of PDO flavor.
func sourcePowerMW(s pdmsg.PDO) uint32 {
	switch s.Type() {
	case pdmsg.PDOTypeFixedSupply:
		fs := pdmsg.FixedSupplyPDO(s)
		return uint32(fs.Voltage()) * uint32(fs.MaxCurrent()) / 1000
	case pdmsg.PDOTypeVariableSupply:
		vs := pdmsg.VariableSupplyPDO(s)
		return uint32(vs.MinVoltage()) * uint32(vs.MaxCurrent()) / 1000
	case pdmsg.PDOTypeBattery:
		return uint32(pdmsg.BatteryPDO(s).MaxPower())
	default:
		return 0
	}
}

// buildRequest constructs the RDO for a chosen (source, sink) pair, per
// §4.4's request construction rules.
func buildRequest(s, k pdmsg.PDO, srcIndex int, operatingSinkMW uint32) (pdmsg.RequestDO, error) {
	var rdo pdmsg.RequestDO
	rdo.SetSelectedObjectPosition(uint8(srcIndex) + 1)
	rdo.SetUSBCommunicationsCapable(true)
	rdo.SetNoSuspend(true)

	switch s.Type() {
	case pdmsg.PDOTypeFixedSupply, pdmsg.PDOTypeVariableSupply:
		sMaxCur := fixedOrVariableMaxCurrent(s)
		kMaxCur := fixedOrVariableMaxCurrent(k)
		ma := sMaxCur
		if kMaxCur < ma {
			ma = kMaxCur
		}
		mw := uint32(ma) * uint32(s.MinMillivolts()) / 1000
		if mw < operatingSinkMW {
			rdo.SetCapabilityMismatch(true)
			ma = fixedOrVariableMaxCurrent(k)
		}
		rdo.SetFixedOperatingCurrent(ma)
		rdo.SetFixedMaxOperatingCurrent(ma)

	case pdmsg.PDOTypeBattery:
		sMaxPW := pdmsg.BatteryPDO(s).MaxPower()
		kMaxPW := pdmsg.BatteryPDO(k).MaxPower()
		mw := sMaxPW
		if kMaxPW < mw {
			mw = kMaxPW
		}
		if uint32(mw) < operatingSinkMW {
			rdo.SetCapabilityMismatch(true)
			mw = kMaxPW
		}
		rdo.SetBatteryOperatingPower(mw)
		rdo.SetBatteryMaxOperatingPower(mw)

	default:
		return 0, fmt.Errorf("policy: unsupported source PDO type %v", s.Type())
	}

	return rdo, nil
}

func fixedOrVariableMaxCurrent(p pdmsg.PDO) uint16 {
	if p.Type() == pdmsg.PDOTypeVariableSupply {
		return pdmsg.VariableSupplyPDO(p).MaxCurrent()
	}
	return pdmsg.FixedSupplyPDO(p).MaxCurrent()
}

// ErrInvalidRequest is returned by CheckRequest when the RDO does not
// reference a valid source PDO or asks for more than that PDO advertises.
var ErrInvalidRequest = errors.New("policy: request does not match any offered source PDO")

// CheckRequest validates an inbound RDO (as a source) against the local
// source PDOs that were advertised, implementing the "inverse" of Select
// used by SRC_NEGOTIATE_CAPABILITIES.
func CheckRequest(sourcePDOs []pdmsg.PDO, rdo pdmsg.RequestDO) error {
	pos := int(rdo.SelectedObjectPosition())
	if pos < 1 || pos > len(sourcePDOs) {
		return ErrInvalidRequest
	}
	s := sourcePDOs[pos-1]
	switch s.Type() {
	case pdmsg.PDOTypeFixedSupply, pdmsg.PDOTypeVariableSupply:
		if rdo.FixedMaxOperatingCurrent() > fixedOrVariableMaxCurrent(s) {
			return ErrInvalidRequest
		}
	case pdmsg.PDOTypeBattery:
		if rdo.BatteryMaxOperatingPower() > pdmsg.BatteryPDO(s).MaxPower() {
			return ErrInvalidRequest
		}
	default:
		return ErrInvalidRequest
	}
	return nil
}
