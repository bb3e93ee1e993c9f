// Package tcpm implements the ~40-state USB-PD policy engine that drives a
// single Type-C port (§4.6 Timer Wheel, §4.7 State Machine, §4.8 Event
// Facade). It owns the Port entity (§3) and is the sole mutator of its
// fields once attached (§5 concurrency model).
//
// Each state is a single "do<Name>" method on *Port (see states_*.go);
// runStateMachine (machine.go) dispatches to one with a plain switch on the
// current State. There is no descriptor table: handlers mutate Port
// directly and call setState/setStateCond themselves, the way the
// teacher's tcpe package keeps one small method per transition rather than
// a generic table-driven engine.
package tcpm

// State identifies one node of the policy engine's state machine (§4.7).
type State int

// InvalidState is the zero State and also doubles as "no delayed
// transition pending" per invariant 4 in §3.
const InvalidState State = 0

const (
	_ State = iota // InvalidState

	Toggling

	SrcUnattached
	SrcAttachWait
	SrcAttached
	SrcStartup
	SrcSendCapabilities
	SrcSendCapabilitiesTimeout
	SrcNegotiateCapabilities
	SrcTransitionSupply
	SrcReady
	SrcWaitNewCapabilities

	SnkUnattached
	SnkAttachWait
	SnkDebounced
	SnkAttached
	SnkStartup
	SnkDiscovery
	SnkDiscoveryDebounce
	SnkDiscoveryDebounceDone
	SnkWaitCapabilities
	SnkNegotiateCapabilities
	SnkTransitionSink
	SnkTransitionSinkVBUS
	SnkReady

	HardResetSend
	HardResetStart
	SrcHardResetVBUSOff
	SrcHardResetVBUSOn
	SnkHardResetSinkOff
	SnkHardResetWaitVBUS
	SnkHardResetSinkOn

	SoftReset
	SoftResetSend
	DRSwapAccept
	DRSwapChangeDR
	ErrorRecovery
	PortReset
	PortResetWaitOff
)

var stateNames = map[State]string{
	InvalidState:               "INVALID_STATE",
	Toggling:                   "TOGGLING",
	SrcUnattached:              "SRC_UNATTACHED",
	SrcAttachWait:              "SRC_ATTACH_WAIT",
	SrcAttached:                "SRC_ATTACHED",
	SrcStartup:                 "SRC_STARTUP",
	SrcSendCapabilities:        "SRC_SEND_CAPABILITIES",
	SrcSendCapabilitiesTimeout: "SRC_SEND_CAPABILITIES_TIMEOUT",
	SrcNegotiateCapabilities:   "SRC_NEGOTIATE_CAPABILITIES",
	SrcTransitionSupply:        "SRC_TRANSITION_SUPPLY",
	SrcReady:                   "SRC_READY",
	SrcWaitNewCapabilities:     "SRC_WAIT_NEW_CAPABILITIES",
	SnkUnattached:              "SNK_UNATTACHED",
	SnkAttachWait:              "SNK_ATTACH_WAIT",
	SnkDebounced:               "SNK_DEBOUNCED",
	SnkAttached:                "SNK_ATTACHED",
	SnkStartup:                 "SNK_STARTUP",
	SnkDiscovery:               "SNK_DISCOVERY",
	SnkDiscoveryDebounce:       "SNK_DISCOVERY_DEBOUNCE",
	SnkDiscoveryDebounceDone:   "SNK_DISCOVERY_DEBOUNCE_DONE",
	SnkWaitCapabilities:        "SNK_WAIT_CAPABILITIES",
	SnkNegotiateCapabilities:   "SNK_NEGOTIATE_CAPABILITIES",
	SnkTransitionSink:          "SNK_TRANSITION_SINK",
	SnkTransitionSinkVBUS:      "SNK_TRANSITION_SINK_VBUS",
	SnkReady:                   "SNK_READY",
	HardResetSend:              "HARD_RESET_SEND",
	HardResetStart:             "HARD_RESET_START",
	SrcHardResetVBUSOff:        "SRC_HARD_RESET_VBUS_OFF",
	SrcHardResetVBUSOn:         "SRC_HARD_RESET_VBUS_ON",
	SnkHardResetSinkOff:        "SNK_HARD_RESET_SINK_OFF",
	SnkHardResetWaitVBUS:       "SNK_HARD_RESET_WAIT_VBUS",
	SnkHardResetSinkOn:         "SNK_HARD_RESET_SINK_ON",
	SoftReset:                  "SOFT_RESET",
	SoftResetSend:              "SOFT_RESET_SEND",
	DRSwapAccept:               "DR_SWAP_ACCEPT",
	DRSwapChangeDR:             "DR_SWAP_CHANGE_DR",
	ErrorRecovery:              "ERROR_RECOVERY",
	PortReset:                  "PORT_RESET",
	PortResetWaitOff:           "PORT_RESET_WAIT_OFF",
}

// String returns the PD-spec-style name of the state, used verbatim by
// Port.StateName (the downstream get_state_name surface).
func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "UNKNOWN_STATE"
}

// isReady reports whether s is one of the two quiescent contract states
// (invariant 6, and the poll() loop exit condition in §4.8).
func (s State) isReady() bool {
	return s == SrcReady || s == SnkReady
}
