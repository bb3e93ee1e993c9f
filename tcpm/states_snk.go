package tcpm

import (
	tpm "github.com/typec-tpm/tpm"
	"github.com/typec-tpm/tpm/pdmsg"
	"github.com/typec-tpm/tpm/policy"
)

// doSnkAttachWait arms the CC debounce, mirroring doSrcAttachWait. It also
// latches vbus_never_low: if VBUS already reads present the moment CC
// attach is first observed, the port is resuming onto an already-powered
// line rather than watching VBUS rise from a cold plug (§4.7
// SNK_WAIT_CAPABILITIES "we came up already-contracted").
func (p *Port) doSnkAttachWait() {
	p.vbusNeverLow = p.vbusPresent
	p.setState(SnkDebounced, tCCDebounce)
}

// doSnkDebounced implements §4.7's "SNK_DEBOUNCED -> SNK_ATTACHED when
// vbus_present; otherwise -> PORT_RESET after PD_T_PS_SOURCE_ON". If VBUS
// comes up later instead, the vbus_change facade routes here to
// SNK_ATTACHED directly, which cancels this pending PORT_RESET escalation.
func (p *Port) doSnkDebounced() {
	if p.vbusPresent {
		p.setState(SnkAttached, 0)
		return
	}
	p.setState(PortReset, tPSSourceOn)
}

func (p *Port) doSnkAttached() {
	p.pc.SetPolarity(p.polarity) //nolint:errcheck
	p.pwrRole = tpm.RoleSink
	p.dataRole = pdmsg.DataRoleUFP
	p.pc.SetRoles(true, p.pwrRole, p.dataRole) //nolint:errcheck
	p.pc.SetVBUS(false, true)                  //nolint:errcheck
	p.vbusCharge = true
	p.attached = true
	p.connected = true
	p.hardResetCount = 0
	p.setState(SnkStartup, 0)
}

// doSnkStartup is reached both from a fresh attach (SNK_ATTACHED, which has
// already cleared hard_reset_count) and from hard-reset recovery
// (SNK_HARD_RESET_SINK_ON, which must not have it cleared here).
func (p *Port) doSnkStartup() {
	p.resetContract()
	p.setState(SnkDiscovery, 0)
}

// doSnkDiscovery / doSnkDiscoveryDebounce / doSnkDiscoveryDebounceDone give
// the line a short settle window before the port starts listening for PD
// traffic, absorbing any CC glitch that would otherwise be mistaken for a
// protocol failure in SNK_WAIT_CAPABILITIES.
func (p *Port) doSnkDiscovery() {
	p.setState(SnkDiscoveryDebounce, tPDDebounce)
}

func (p *Port) doSnkDiscoveryDebounce() {
	p.setState(SnkDiscoveryDebounceDone, 0)
}

func (p *Port) doSnkDiscoveryDebounceDone() {
	p.setState(SnkWaitCapabilities, 0)
}

// doSnkWaitCapabilities enables PD reception and either starts a
// SOFT_RESET handshake (VBUS never dropped across this attach, so a stale
// contract may still be in effect on the partner's side) or arms the
// hard-reset escalation that fires if SOURCE_CAP never arrives.
func (p *Port) doSnkWaitCapabilities() {
	if err := p.pc.SetPDRx(true); err != nil {
		p.setState(SnkReady, 0)
		return
	}
	if p.vbusNeverLow {
		p.setState(SoftResetSend, 0)
		return
	}
	p.setState(p.hardResetState(), tSinkWaitCap)
}

// defaultRequestDO is the fallback RDO sent when the selector finds no
// acceptable match: vSafe5V at the default USB current, mirroring the
// teacher's tcpe default-profile fallback.
var defaultRequestDO = func() pdmsg.RequestDO {
	var rdo pdmsg.RequestDO
	rdo.SetSelectedObjectPosition(1)
	rdo.SetFixedOperatingCurrent(100)
	rdo.SetFixedMaxOperatingCurrent(100)
	return rdo
}()

// doSnkNegotiateCapabilities builds a REQUEST from the best (source, sink)
// PDO match and waits for ACCEPT/REJECT/WAIT; a non-response within
// PD_T_SENDER_RESPONSE escalates via hard reset (§4.4, §8 scenario 3).
func (p *Port) doSnkNegotiateCapabilities() {
	sel, err := policy.Select(p.sourceCaps, p.snkPDO, p.operatingMW)
	rdo := defaultRequestDO
	if err == nil {
		rdo = sel.RDO
		p.pendingSelection = sel
	} else {
		p.pendingSelection = policy.Selection{SourceIndex: -1, SinkIndex: -1}
	}
	if err := p.sendData(pdmsg.TypeRequest, []pdmsg.PDO{pdmsg.PDO(rdo)}); err != nil {
		p.setState(p.hardResetState(), 0)
		return
	}
	p.setState(p.hardResetState(), tSenderResponse)
}

// doSnkTransitionSink waits for PS_RDY; onPSReady (dispatch.go) supersedes
// this pending escalation once it arrives.
func (p *Port) doSnkTransitionSink() {
	p.setState(p.hardResetState(), tPSTransition)
}

// doSnkTransitionSinkVBUS is reached when PS_RDY arrived before VBUS did;
// the vbus_change facade finishes the job by routing to SNK_READY. A
// fallback escalation guards against VBUS never reappearing at all.
func (p *Port) doSnkTransitionSinkVBUS() {
	p.setState(p.hardResetState(), tPSTransition)
}

// doSnkReady is the quiescent state; further progress is event-driven
// (a spontaneous SOURCE_CAP recap, DR_SWAP, disconnect).
func (p *Port) doSnkReady() {}
