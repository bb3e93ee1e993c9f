package tcpm

import (
	tpm "github.com/typec-tpm/tpm"
	"github.com/typec-tpm/tpm/pdmsg"
)

// doHardResetSend puts a hard-reset signal on the wire and counts the
// attempt against PD_N_HARD_RESET_COUNT (§4.7).
func (p *Port) doHardResetSend() {
	p.hardResetCount++
	p.sendHardReset() //nolint:errcheck // HARD_RESET_START proceeds regardless
	p.setState(HardResetStart, 0)
}

// doHardResetStart clears the contract and branches by power role, since
// only the source actually controls VBUS.
func (p *Port) doHardResetStart() {
	p.resetContract()
	if p.pwrRole == tpm.RoleSource {
		p.setState(SrcHardResetVBUSOff, 0)
	} else {
		p.setState(SnkHardResetSinkOff, 0)
	}
}

func (p *Port) doSrcHardResetVBUSOff() {
	p.pc.SetPDRx(false) //nolint:errcheck
	p.pc.SetVBUS(false, false) //nolint:errcheck
	p.vbusSource = false
	p.setState(SrcHardResetVBUSOn, tSrcRecover)
}

func (p *Port) doSrcHardResetVBUSOn() {
	p.pc.SetVBUS(true, false) //nolint:errcheck
	p.vbusSource = true
	p.pc.SetPDRx(true) //nolint:errcheck
	p.setState(SrcStartup, 0)
}

// doSnkHardResetSinkOff drops VCONN/charging and arms a PD_T_PS_HARD_RESET
// fallback in case VBUS never actually drops (a misbehaving source); the
// vbus_change(off) facade ordinarily supersedes this with SNK_HARD_RESET_WAIT_VBUS
// as soon as it's observed (spec §8 scenario 3).
func (p *Port) doSnkHardResetSinkOff() {
	p.pc.SetVCONN(false) //nolint:errcheck
	p.vbusCharge = false
	p.setState(p.hardResetState(), tPSHardReset)
}

// doSnkHardResetWaitVBUS arms the PD_T_SRC_RECOVER_MAX + PD_T_SRC_TURN_ON
// fallback escalation; vbus_change(on) supersedes it with
// SNK_HARD_RESET_SINK_ON once VBUS actually reappears.
func (p *Port) doSnkHardResetWaitVBUS() {
	p.setState(p.hardResetState(), tSrcRecoverMax+tSrcTurnOn)
}

func (p *Port) doSnkHardResetSinkOn() {
	p.pc.SetVBUS(false, true) //nolint:errcheck
	p.vbusCharge = true
	p.setState(SnkStartup, 0)
}

// doSoftReset handles an inbound SOFT_RESET: accept it and restart
// capability exchange without dropping the physical connection.
func (p *Port) doSoftReset() {
	p.resetContract()
	p.sendControl(pdmsg.TypeAccept) //nolint:errcheck
	if p.pwrRole == tpm.RoleSource {
		p.setState(SrcSendCapabilities, 0)
	} else {
		p.setState(SnkWaitCapabilities, 0)
	}
}

// doSoftResetSend is reached only from SNK_WAIT_CAPABILITIES when VBUS
// never dropped across this attach (§4.7): a stale contract may still be
// live on the partner's side, so ask it to clear state before we wait for
// a fresh SOURCE_CAP. SOFT_RESET always carries MessageID 0 (invariant 3's
// one exemption).
func (p *Port) doSoftResetSend() {
	p.messageID = 0
	if err := p.sendControl(pdmsg.TypeSoftReset); err != nil {
		p.setState(p.hardResetState(), 0)
		return
	}
	p.setState(p.hardResetState(), tSenderResponse)
}

// doDRSwapAccept sends ACCEPT for an already-validated DR_SWAP request
// (onDRSwapRequest in dispatch.go only reaches this state when the port is
// a DRP currently in SRC_READY or SNK_READY).
func (p *Port) doDRSwapAccept() {
	p.sendControl(pdmsg.TypeAccept) //nolint:errcheck
	p.setState(DRSwapChangeDR, 0)
}

func (p *Port) doDRSwapChangeDR() {
	if p.dataRole == pdmsg.DataRoleDFP {
		p.dataRole = pdmsg.DataRoleUFP
	} else {
		p.dataRole = pdmsg.DataRoleDFP
	}
	p.pc.SetRoles(p.attached, p.pwrRole, p.dataRole) //nolint:errcheck
	p.waitDRSwapMessage = false
	p.setState(p.readyState(), 0)
}

// doErrorRecovery is the escalation target once the hard-reset budget is
// exhausted on a port that has spoken PD before (§4.7's hardResetState);
// it folds straight into the same teardown PORT_RESET performs.
func (p *Port) doErrorRecovery() {
	p.setState(PortReset, 0)
}

// doPortReset implements §4.7's PORT_RESET: stop timers, clear the
// contract, force CC back to its quiescent termination, then dwell in
// PORT_RESET_WAIT_OFF for PD_T_ERROR_RECOVERY before coming back up.
func (p *Port) doPortReset() {
	p.timer.disarm()
	p.resetContract()
	p.attached = false
	p.connected = false
	p.vbusSource = false
	p.vbusCharge = false
	if p.selfPowered {
		p.pc.SetCC(tpm.CCOpen) //nolint:errcheck
	} else {
		p.pc.SetCC(p.defaultTermination()) //nolint:errcheck
	}
	p.setState(PortResetWaitOff, tErrorRecovery)
}

func (p *Port) doPortResetWaitOff() {
	p.hardResetCount = 0
	p.setState(defaultState(p), 0)
}
