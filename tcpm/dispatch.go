package tcpm

import (
	tpm "github.com/typec-tpm/tpm"
	"github.com/typec-tpm/tpm/pdmsg"
)

// PDReceive is the pd_receive entry point of the event facade (§4.8, C8).
// It applies duplicate suppression and the data-role sanity check before
// handing the message to the per-type dispatcher (§4.7).
func (p *Port) PDReceive(m pdmsg.Message) {
	p.pollEventCnt = 0

	isSoftReset := !m.IsData() && m.Type() == pdmsg.TypeSoftReset
	if !isSoftReset && int8(m.ID()) == p.rxMsgID {
		p.log("rx: duplicate id=%d, dropped", m.ID())
		return
	}

	// Data-role sanity (§4.7): two DFPs (or two UFPs) on the wire is never
	// valid; treat it as a hard protocol fault.
	if m.DataRole() == p.dataRole {
		p.log("rx: data role collision, error recovery")
		p.setState(ErrorRecovery, 0)
		p.stateMachine()
		return
	}

	if isSoftReset {
		p.rxMsgID = 0
	} else {
		p.rxMsgID = int8(m.ID())
	}

	p.log("rx: %v id=%d", m.Type(), m.ID())
	p.adaptRevision(m)
	p.dispatch(m)
	p.stateMachine()
}

// adaptRevision implements the codec's revision-negotiation rule (§4.5):
// a SOURCE_CAP or REQUEST carrying a lower (but still >= REV20) revision
// than ours causes us to adopt it for subsequent outbound messages. REV10
// senders of either message are left to the per-type handler (tolerated
// for SOURCE_CAP, rejected for REQUEST).
func (p *Port) adaptRevision(m pdmsg.Message) {
	if !m.IsData() {
		return
	}
	t := m.Type()
	if t != pdmsg.TypeSourceCap && t != pdmsg.TypeRequest {
		return
	}
	r := m.Revision()
	if r >= pdmsg.Revision20 && r < p.negotiatedRev {
		p.negotiatedRev = r
	}
}

// dispatch routes an accepted inbound message by type (§4.7 "Inbound
// message dispatch").
func (p *Port) dispatch(m pdmsg.Message) {
	if m.IsData() {
		p.dispatchData(m)
		return
	}
	p.dispatchControl(m)
}

func (p *Port) dispatchData(m pdmsg.Message) {
	switch m.Type() {
	case pdmsg.TypeSourceCap:
		if p.pwrRole != tpm.RoleSink {
			return
		}
		p.handleSourceCap(m)

	case pdmsg.TypeRequest:
		if p.pwrRole != tpm.RoleSource {
			return
		}
		if m.Revision() == pdmsg.Revision10 {
			p.queue(tpm.QueuedReject)
			return
		}
		p.sinkRequest = pdmsg.RequestDO(m.Data[0])
		p.setState(SrcNegotiateCapabilities, 0)

	case pdmsg.TypeSinkCap:
		l := m.DataObjectCount()
		caps := make([]pdmsg.PDO, l)
		for i := range caps {
			caps[i] = pdmsg.PDO(m.Data[i])
		}
		p.sinkCaps = caps
	}
}

// handleSourceCap implements the PD_DATA_SOURCE_CAP case: store caps,
// detect a dual-role-capable partner via the first PDO's flags, and move
// to SNK_NEGOTIATE_CAPABILITIES regardless of which state we received it
// in (initial negotiation or a spontaneous recap while SNK_READY).
func (p *Port) handleSourceCap(m pdmsg.Message) {
	l := m.DataObjectCount()
	caps := make([]pdmsg.PDO, l)
	for i := range caps {
		caps[i] = pdmsg.PDO(m.Data[i])
	}
	p.sourceCaps = caps
	p.capsCount = 0
	p.pdCapable = true
	if l > 0 {
		first := pdmsg.FixedSupplyPDO(caps[0])
		if first.DualRoleCapable() && first.DataSwapCapable() {
			p.waitDRSwapMessage = true
		}
	}
	p.setState(SnkNegotiateCapabilities, 0)
}

func (p *Port) dispatchControl(m pdmsg.Message) {
	switch m.Type() {
	case pdmsg.TypeGoodCRC, pdmsg.TypePing:
		// GoodCRC is PHY-level and should already be filtered by the PCI;
		// Ping carries no action.

	case pdmsg.TypeAccept:
		p.onAccept()

	case pdmsg.TypeReject, pdmsg.TypeWait, pdmsg.TypeNotSupported:
		p.onRejectWaitNotSupported()

	case pdmsg.TypePSReady:
		p.onPSReady()

	case pdmsg.TypeSoftReset:
		p.setState(SoftReset, 0)

	case pdmsg.TypeDRSwap:
		p.onDRSwapRequest()

	case pdmsg.TypeGetSourceCap:
		if len(p.srcPDO) > 0 {
			p.queue(tpm.QueuedSourceCap)
		} else {
			p.queue(tpm.QueuedNotSupported)
		}

	case pdmsg.TypeGetSinkCap:
		if len(p.snkPDO) > 0 {
			p.queue(tpm.QueuedSinkCap)
		} else {
			p.queue(tpm.QueuedNotSupported)
		}

	case pdmsg.TypePRSwap, pdmsg.TypeVCONNSwap, pdmsg.TypeGetStatus,
		pdmsg.TypeGetPPSStatus, pdmsg.TypeFRSwap, pdmsg.TypeGetCountryCodes,
		pdmsg.TypeGetSourceCapExt:
		p.queue(tpm.QueuedNotSupported)

	case pdmsg.TypeGotoMin:
		// GiveBack is never requested by the selector (§4.4); ignore.
	}
}

func (p *Port) onAccept() {
	switch p.state {
	case SnkNegotiateCapabilities:
		p.setState(SnkTransitionSink, 0)
	case SoftResetSend:
		p.messageID = 0
		p.rxMsgID = -1
		p.hardResetCount = 0
		if p.pwrRole == tpm.RoleSource {
			p.setState(SrcSendCapabilities, 0)
		} else {
			p.setState(SnkWaitCapabilities, 0)
		}
	case SrcNegotiateCapabilities:
		// Our own REQUEST was accepted by a partner acting as source while we
		// also act as source is not a reachable combination; nothing to do.
	}
}

func (p *Port) onRejectWaitNotSupported() {
	switch p.state {
	case SnkNegotiateCapabilities:
		if p.explicitContract {
			p.setState(SnkReady, 0)
		} else {
			p.setState(SnkWaitCapabilities, 0)
		}
	}
}

func (p *Port) onPSReady() {
	switch p.state {
	case SnkTransitionSink:
		if p.vbusPresent {
			p.applyGrantedContract()
			p.explicitContract = true
			p.setState(SnkReady, 0)
		} else {
			p.setState(SnkTransitionSinkVBUS, 0)
		}
	}
}

// onDRSwapRequest implements the DR_SWAP control rule: only a DRP in one of
// the *_READY states honors it; everyone else queues WAIT (not currently
// ready) or REJECT (not a DRP at all).
func (p *Port) onDRSwapRequest() {
	if p.typeCType != tpm.PortTypeDRP {
		p.queue(tpm.QueuedReject)
		return
	}
	if p.state != SrcReady && p.state != SnkReady {
		p.queue(tpm.QueuedWait)
		return
	}
	p.setState(DRSwapAccept, 0)
}

// applyGrantedContract fills in the granted voltage/current from the RDO
// the selector built and the source PDO it was built against.
func (p *Port) applyGrantedContract() {
	sel := p.pendingSelection
	if sel.SourceIndex < 0 || sel.SourceIndex >= len(p.sourceCaps) {
		return
	}
	s := p.sourceCaps[sel.SourceIndex]
	p.supplyVoltage = s.MinMillivolts()
	switch s.Type() {
	case pdmsg.PDOTypeFixedSupply, pdmsg.PDOTypeVariableSupply:
		p.currentLimit = sel.RDO.FixedMaxOperatingCurrent()
	case pdmsg.PDOTypeBattery:
		if p.supplyVoltage > 0 {
			p.currentLimit = uint16(uint32(sel.RDO.BatteryMaxOperatingPower()) * 1000 / uint32(p.supplyVoltage))
		}
	}
}
