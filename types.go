// Package tpm implements a Type-C Port Manager: the policy engine and
// protocol state machine that negotiates attachment, data/power roles and
// an explicit USB Power Delivery contract with a port partner, on top of a
// low-level Type-C Port Controller.
package tpm

// CCStatus is the resistance/termination a CC line is observed to present.
type CCStatus uint8

const (
	CCOpen CCStatus = iota
	CCRa
	CCRd
	CCRpDefault
	CCRp1A5
	CCRp3A0
)

func (c CCStatus) String() string {
	switch c {
	case CCOpen:
		return "open"
	case CCRa:
		return "Ra"
	case CCRd:
		return "Rd"
	case CCRpDefault:
		return "Rp-default"
	case CCRp1A5:
		return "Rp-1.5A"
	case CCRp3A0:
		return "Rp-3.0A"
	default:
		return "invalid"
	}
}

// IsRp reports whether c is one of the three Rp advertisement levels.
func (c CCStatus) IsRp() bool {
	return c == CCRpDefault || c == CCRp1A5 || c == CCRp3A0
}

// Polarity identifies which CC line is the active one once attached.
type Polarity uint8

const (
	PolarityCC1 Polarity = iota
	PolarityCC2
)

// PortType is the configured power role capability of the local port.
type PortType uint8

const (
	PortTypeSource PortType = iota
	PortTypeSink
	PortTypeDRP
)

func (p PortType) String() string {
	switch p {
	case PortTypeSource:
		return "source"
	case PortTypeSink:
		return "sink"
	case PortTypeDRP:
		return "drp"
	default:
		return "invalid"
	}
}

// PowerRole is the currently active power role of the port.
type PowerRole uint8

const (
	RoleSource PowerRole = iota
	RoleSink
)

func (r PowerRole) String() string {
	if r == RoleSource {
		return "source"
	}
	return "sink"
}

// QueuedMessage identifies the single pending outbound control/data message
// an inbound-message handler may leave for the drain step to send (§4.7, "The
// queued_message drain").
type QueuedMessage uint8

const (
	QueuedNone QueuedMessage = iota
	QueuedReject
	QueuedWait
	QueuedNotSupported
	QueuedSinkCap
	QueuedSourceCap
)
