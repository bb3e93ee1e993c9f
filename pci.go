package tpm

import (
	"errors"

	"github.com/typec-tpm/tpm/pdmsg"
)

// PortController is the capability table a Type-C Port Controller (TPC)
// driver must implement (§4.1, C1). It mirrors the original's tcpc_dev
// struct of function pointers, modeled here as an interface whose eleven
// methods cover the nine mandatory operations plus Init and PollEvent; Go's
// compiler already rejects any concrete type
// missing one of them, which stands in for the "missing member" runtime
// check the C struct-of-pointers needed (see DESIGN.md).
//
// Calls are expected to be synchronous and non-blocking, except PDTransmit,
// which the caller waits on by polling TxComplete via PollEvent.
type PortController interface {
	// Init initializes the controller to a known working state. It is
	// called once, by tcpm.Init; PORT_RESET / ERROR_RECOVERY do not call it
	// again.
	Init() error

	// VBUSPresent reports whether VBUS is above vSafe5V minimum.
	VBUSPresent() (bool, error)

	// SetCC drives the local CC termination.
	SetCC(cc CCStatus) error

	// CC samples both CC lines.
	CC() (cc1, cc2 CCStatus, err error)

	// SetPolarity selects which CC line carries the active connection.
	SetPolarity(p Polarity) error

	// SetVCONN enables or disables VCONN sourcing.
	SetVCONN(on bool) error

	// SetVBUS enables or disables VBUS; charge requests sinking from the
	// partner's VBUS instead of sourcing our own.
	SetVBUS(on, charge bool) error

	// SetPDRx enables or disables reception of PD messages.
	SetPDRx(on bool) error

	// SetRoles informs the PHY of the currently attached state and active
	// power/data roles.
	SetRoles(attached bool, role PowerRole, data pdmsg.DataRole) error

	// PDTransmit sends a PD message (or a hard reset, per typ) at the given
	// negotiated revision. The call itself only enqueues the frame; actual
	// completion is reported asynchronously via a TxComplete event surfaced
	// from PollEvent.
	PDTransmit(typ pdmsg.TransmitType, msg pdmsg.Message, rev pdmsg.Revision) error

	// PollEvent processes any pending hardware interrupts and returns the
	// events observed, which may include any combination of EventCCChange,
	// EventVBUSChange, EventRx, EventHardReset and EventTxComplete.
	PollEvent() (Event, error)
}

// Toggler is implemented by controllers capable of hardware-driven DRP
// toggling. It is optional (§4.1); callers probe for it with a type
// assertion instead of a nil-function check.
type Toggler interface {
	// StartToggling begins hardware CC toggling for the given port type,
	// starting from initialCC. Toggling stops automatically once a
	// connection is established.
	StartToggling(pt PortType, initialCC CCStatus) error
}

// LowPowerController is implemented by controllers that support an explicit
// low-power idle mode. Optional, probed the same way as Toggler.
type LowPowerController interface {
	EnterLowPowerMode(attached, pdCapable bool) error
}

// ErrInvalidPCI is returned by Init when the supplied PortController is nil.
// Go's type system already guarantees that any non-nil value satisfying the
// PortController interface implements all nine mandatory operations, so
// unlike the original C tcpc_dev table, there is nothing further to probe.
var ErrInvalidPCI = errors.New("tpm: invalid port controller")

// Event is a bitmask of hardware-observed events a PortController reports
// from PollEvent, in priority order highest-to-lowest (§4.8 facade).
type Event uint16

const (
	EventHardReset Event = 1 << iota
	EventCCChange
	EventVBUSChange
	EventRx
	EventTxComplete
)

// Pop returns and clears the highest priority pending event, or 0 when none
// is pending.
func (e *Event) Pop() Event {
	if *e == 0 {
		return 0
	}
	for r := Event(1); r != 0; r <<= 1 {
		if *e&r != 0 {
			*e &^= r
			return r
		}
	}
	return 0
}

// Add adds v to the event set.
func (e *Event) Add(v Event) {
	*e |= v
}
