package tcpm

import (
	"errors"
	"fmt"
	"sync"

	tpm "github.com/typec-tpm/tpm"
	"github.com/typec-tpm/tpm/config"
	"github.com/typec-tpm/tpm/pdmsg"
	"github.com/typec-tpm/tpm/policy"
)

// ErrInvalidPCI is returned by Init when the supplied PortController is nil.
var ErrInvalidPCI = tpm.ErrInvalidPCI

// ErrUnsupported is returned by SetCurrentLimit: the port always records the
// requested limit in Port fields (see DESIGN.md's resolution of the
// tcpm_set_current_limit open question) but physical enforcement is the
// PCI's responsibility, not the policy engine's.
var ErrUnsupported = errors.New("tcpm: unsupported")

// Port is the single long-lived entity described in §3: one per physical
// USB-C receptacle. All of its fields are mutated from a single logical
// thread (§5); Mu exists only so embedders can assert non-reentrance in
// debug builds, not because the FSM itself needs locking.
type Port struct {
	Mu sync.Mutex

	// Logger receives one line per state transition, inbound/outbound
	// message and hard-reset escalation. Defaults to a no-op. Follows the
	// teacher's tcdpm.Logger shape, collapsed into a plain callback.
	Logger func(format string, args ...any)

	pc tpm.PortController

	// Configured capabilities, immutable after Init.
	typeCType     tpm.PortType
	tryRole       tpm.PowerRole
	srcPDO        []pdmsg.PDO
	snkPDO        []pdmsg.PDO
	operatingMW   uint32
	selfPowered   bool

	// Line state.
	cc1, cc2     tpm.CCStatus
	polarity     tpm.Polarity
	vbusPresent  bool
	vbusVSafe0V  bool
	vbusNeverLow bool
	vbusSource   bool
	vbusCharge   bool

	// Role state.
	pwrRole   tpm.PowerRole
	dataRole  pdmsg.DataRole
	vconnRole tpm.PowerRole
	attached  bool
	connected bool

	// Contract state.
	negotiatedRev    pdmsg.Revision
	explicitContract bool
	pdCapable        bool
	messageID        uint8
	rxMsgID          int8 // -1 == sentinel, no message accepted yet
	capsCount        int
	hardResetCount   int
	sourceCaps       []pdmsg.PDO // partner's caps, as sink
	sinkCaps         []pdmsg.PDO // partner's caps, as source (their sink caps, rarely used)
	sinkRequest      pdmsg.RequestDO
	pendingSelection policy.Selection // as sink: the candidate our last REQUEST was built from

	// Contract result.
	reqCurrentLimit  uint16
	reqSupplyVoltage uint16
	currentLimit     uint16
	supplyVoltage    uint16

	// FSM control.
	state               State
	prevState           State
	enterState          State
	delayedState        State
	timer               timerWheel
	stateMachineRunning bool
	queuedMessage       tpm.QueuedMessage
	txComplete          bool
	txStatus            pdmsg.TransmitStatus
	pollEventCnt        int
	waitDRSwapMessage   bool
	rerunRequested      bool

	advance func(ms int) // test-only manual clock advance, nil on real ports
}

// Init validates cfg, wires pc as the port's hardware collaborator and
// brings the port up in its default unattached state (§4.7
// tcpm_default_state). It returns ErrInvalidPCI if pc is nil, and an error
// wrapping config.ErrInvalidConfig if a PDO list the port type needs fails
// policy.ValidateCapabilities.
func Init(cfg config.PortConfig, pc tpm.PortController) (*Port, error) {
	if pc == nil {
		return nil, ErrInvalidPCI
	}
	if cfg.TypeCType != tpm.PortTypeSink {
		if err := policy.ValidateCapabilities(cfg.SourcePDO); err != nil {
			return nil, fmt.Errorf("%w: source pdos: %v", config.ErrInvalidConfig, err)
		}
	}
	if cfg.TypeCType != tpm.PortTypeSource {
		if err := policy.ValidateCapabilities(cfg.SinkPDO); err != nil {
			return nil, fmt.Errorf("%w: sink pdos: %v", config.ErrInvalidConfig, err)
		}
	}
	p := &Port{
		pc:          pc,
		typeCType:   cfg.TypeCType,
		tryRole:     cfg.TryRole,
		srcPDO:      cfg.SourcePDO,
		snkPDO:      cfg.SinkPDO,
		operatingMW: cfg.OperatingSinkMW,
		selfPowered: cfg.SelfPowered,
		rxMsgID:     -1,
		timer:       newTimerWheel(),
	}
	p.resetContract()
	p.state = defaultState(p)
	p.enterState = p.state
	if err := pc.Init(); err != nil {
		return nil, fmt.Errorf("tcpm: pci init: %w", err)
	}
	p.log("init: default state %s", p.state)
	p.stateMachine()
	return p, nil
}

// NewForTest builds a Port with a manual clock so scenario tests can express
// delayed transitions via AdvanceTime instead of sleeping on the wall clock.
func NewForTest(cfg config.PortConfig, pc tpm.PortController) (*Port, error) {
	p, err := Init(cfg, pc)
	if err != nil {
		return nil, err
	}
	now, advance := newManualClock()
	p.timer.now = now
	p.advance = advance
	return p, nil
}

// defaultState implements tcpm_default_state: DRP honors try_role, pure
// roles go straight to their one possible unattached state.
func defaultState(p *Port) State {
	switch p.typeCType {
	case tpm.PortTypeSource:
		return SrcUnattached
	case tpm.PortTypeSink:
		return SnkUnattached
	default: // DRP
		if p.tryRole == tpm.RoleSource {
			return SrcUnattached
		}
		return SnkUnattached
	}
}

func (p *Port) log(format string, args ...any) {
	if p.Logger != nil {
		p.Logger(format, args...)
	}
}

// State returns the port's current FSM state.
func (p *Port) State() State { return p.state }

// StateName returns the PD-spec-style name of the current state (§6
// get_state_name).
func (p *Port) StateName() string { return p.state.String() }

// GetVoltage returns the granted contract voltage in millivolts, or 0 if
// there is no explicit contract (§7 "voltage/current are 0 until an
// explicit contract exists").
func (p *Port) GetVoltage() uint16 {
	if !p.explicitContract {
		return 0
	}
	return p.supplyVoltage
}

// GetCurrent returns the granted contract current in milliamps, or 0 if
// there is no explicit contract. Named distinctly from GetVoltage, unlike
// the symbol-swapped original (see spec.md's Open Questions).
func (p *Port) GetCurrent() uint16 {
	if !p.explicitContract {
		return 0
	}
	return p.currentLimit
}

// ExplicitContract reports whether the port currently holds a negotiated
// PD contract (invariant 6).
func (p *Port) ExplicitContract() bool { return p.explicitContract }

// Attached reports whether the port is attached to a partner.
func (p *Port) Attached() bool { return p.attached }

// SetCurrentLimit records the caller's requested operating point but does
// not itself enforce it; see ErrUnsupported.
func (p *Port) SetCurrentLimit(ma, mv uint16) error {
	p.reqCurrentLimit = ma
	p.reqSupplyVoltage = mv
	return ErrUnsupported
}

// resetContract clears every field the spec requires to be reset on
// PORT_RESET / ERROR_RECOVERY / hard reset (but not line state, which the
// CC/VBUS facade owns).
func (p *Port) resetContract() {
	p.explicitContract = false
	p.pdCapable = false
	p.messageID = 0
	p.rxMsgID = -1
	p.capsCount = 0
	p.sourceCaps = nil
	p.sinkCaps = nil
	p.sinkRequest = 0
	p.reqCurrentLimit = 0
	p.reqSupplyVoltage = 0
	p.currentLimit = 0
	p.supplyVoltage = 0
	p.negotiatedRev = pdmsg.Revision30
	p.queuedMessage = tpm.QueuedNone
	p.waitDRSwapMessage = false
	p.pendingSelection = policy.Selection{SourceIndex: -1, SinkIndex: -1}
}
