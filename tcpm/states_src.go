package tcpm

import (
	tpm "github.com/typec-tpm/tpm"
	"github.com/typec-tpm/tpm/pdmsg"
	"github.com/typec-tpm/tpm/policy"
)

// doSrcAttachWait arms the CC debounce; the cc_change facade has already
// verified exactly one CC line reads RD before entering this state. If CC
// changes again before the timer fires, cc_change will set_state elsewhere
// with delay=0, which cancels this pending transition (§9).
func (p *Port) doSrcAttachWait() {
	p.setState(SrcAttached, tCCDebounce)
}

// doSrcAttached applies power to the line and waits for vbus_change to
// report it actually came up before moving on to SRC_STARTUP (§4.8).
func (p *Port) doSrcAttached() {
	p.pc.SetPolarity(p.polarity) //nolint:errcheck
	p.pwrRole = tpm.RoleSource
	p.dataRole = pdmsg.DataRoleDFP
	p.vconnRole = tpm.RoleSource
	p.pc.SetVCONN(true)                             //nolint:errcheck
	p.pc.SetRoles(true, p.pwrRole, p.dataRole)       //nolint:errcheck
	p.pc.SetVBUS(true, false)                       //nolint:errcheck
	p.vbusSource = true
	p.attached = true
	p.connected = true
}

// doSrcStartup is reached both from a fresh attach (SRC_ATTACHED, which has
// already cleared hard_reset_count) and from hard-reset recovery
// (SRC_HARD_RESET_VBUS_ON, which must not have it cleared here or the
// budget in hardResetState/doSrcSendCapabilitiesTimeout could never
// exhaust).
func (p *Port) doSrcStartup() {
	p.resetContract()
	p.setState(SrcSendCapabilities, 0)
}

// doSrcSendCapabilities implements the retry loop bounded by
// PD_N_CAPS_COUNT (§4.7): give up on PD entirely (but keep the port
// attached and powered) once the partner never answers.
func (p *Port) doSrcSendCapabilities() {
	p.capsCount++
	if p.capsCount > nCapsCount {
		p.setState(SrcReady, 0)
		return
	}
	if err := p.sendData(pdmsg.TypeSourceCap, p.srcPDO); err != nil {
		p.setState(SrcSendCapabilities, tSendSourceCap)
		return
	}
	p.pdCapable = true
	p.setState(SrcSendCapabilitiesTimeout, tSendSourceCap)
}

// doSrcSendCapabilitiesTimeout fires when no REQUEST arrived in time. It
// escalates through a hard reset budget, then a revision step-down, before
// finally accepting a downgrade to ERROR_RECOVERY/unattached.
func (p *Port) doSrcSendCapabilitiesTimeout() {
	if p.hardResetCount < nHardResetCount {
		p.setState(HardResetSend, 0)
		return
	}
	if p.negotiatedRev > pdmsg.Revision20 {
		p.negotiatedRev--
		p.hardResetCount = 0
		p.setState(SrcSendCapabilities, 0)
		return
	}
	p.setState(p.hardResetState(), 0)
}

// doSrcNegotiateCapabilities validates the partner's REQUEST against our own
// advertised source PDOs (the inverse of the selector used as a sink) and
// either rejects it outright or moves into the supply transition.
func (p *Port) doSrcNegotiateCapabilities() {
	if err := policy.CheckRequest(p.srcPDO, p.sinkRequest); err != nil {
		p.sendControl(pdmsg.TypeReject) //nolint:errcheck
		if p.explicitContract {
			p.setState(SrcReady, 0)
		} else {
			p.setState(SrcSendCapabilities, 0)
		}
		return
	}
	p.sendControl(pdmsg.TypeAccept) //nolint:errcheck
	p.setState(SrcTransitionSupply, tSrcTransition)
}

// doSrcTransitionSupply records the granted contract's voltage/current in
// the port and announces it; a failed PS_RDY send forces a hard reset since
// the partner may now be expecting power it isn't getting.
func (p *Port) doSrcTransitionSupply() {
	p.applySourceContract()
	if err := p.sendControl(pdmsg.TypePSReady); err != nil {
		p.setState(p.hardResetState(), 0)
		return
	}
	p.explicitContract = true
	p.setState(SrcReady, 0)
}

// applySourceContract fills in the voltage/current the source has granted,
// read back off the REQUEST against the PDO it referenced.
func (p *Port) applySourceContract() {
	pos := int(p.sinkRequest.SelectedObjectPosition())
	if pos < 1 || pos > len(p.srcPDO) {
		return
	}
	s := p.srcPDO[pos-1]
	p.supplyVoltage = s.MinMillivolts()
	switch s.Type() {
	case pdmsg.PDOTypeFixedSupply, pdmsg.PDOTypeVariableSupply:
		p.currentLimit = p.sinkRequest.FixedMaxOperatingCurrent()
	case pdmsg.PDOTypeBattery:
		if p.supplyVoltage > 0 {
			p.currentLimit = uint16(uint32(p.sinkRequest.BatteryMaxOperatingPower()) * 1000 / uint32(p.supplyVoltage))
		}
	}
}

// doSrcReady is the quiescent state; all further progress is event-driven
// (inbound REQUEST/DR_SWAP, cc_change on disconnect, an operator-triggered
// RenegotiateSourceCapabilities).
func (p *Port) doSrcReady() {}

// doSrcWaitNewCapabilities is reached from RenegotiateSourceCapabilities
// (not part of any automatic transition): give the partner a brief window
// to notice the port going briefly silent before re-sending SOURCE_CAP.
func (p *Port) doSrcWaitNewCapabilities() {
	p.setState(SrcSendCapabilities, tNewSourceCapWait)
}

// RenegotiateSourceCapabilities lets an embedder (e.g. a config reload)
// ask a SRC_READY port to re-advertise its source_pdo. It is a no-op
// outside SRC_READY.
func (p *Port) RenegotiateSourceCapabilities() {
	if p.state != SrcReady {
		return
	}
	p.setState(SrcWaitNewCapabilities, 0)
	p.stateMachine()
}
