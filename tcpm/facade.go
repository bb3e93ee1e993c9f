package tcpm

import (
	"time"

	tpm "github.com/typec-tpm/tpm"
	"github.com/typec-tpm/tpm/pdmsg"
)

// This file implements the Event Facade (§4.8, C8): the handful of methods
// the outer poll loop (or a PortController driver's own interrupt handler)
// calls to feed hardware-observed events into the state machine. Each
// method re-samples the relevant line state itself rather than trusting
// stale fields, then lets the state_machine loop run to quiescence before
// returning.

// CCChange implements cc_change(): re-sample both CC lines and either route
// a fresh attach out of TOGGLING/*_UNATTACHED, or notice a disconnect from
// any attached state.
func (p *Port) CCChange() {
	p.pollEventCnt = 0
	cc1, cc2, err := p.pc.CC()
	if err != nil {
		return
	}
	p.cc1, p.cc2 = cc1, cc2

	switch p.state {
	case Toggling, SrcUnattached, SnkUnattached:
		p.routeAttach(cc1, cc2)
	case SrcReady:
		if !ccSourceAttached(cc1, cc2) {
			p.setState(defaultState(p), 0)
		}
	case SnkReady:
		if !ccSinkAttached(cc1, cc2) {
			p.setState(defaultState(p), 0)
		}
	default:
		if p.attached && !ccAttached(cc1, cc2) {
			p.setState(PortReset, 0)
		}
	}
	p.stateMachine()
}

// routeAttach implements "TOGGLING -> SRC_ATTACH_WAIT on cc_change when
// exactly one CC reads RD; -> SNK_ATTACH_WAIT when a CC reads an Rp level"
// (§4.7), gated by which power roles the port is actually configured for.
func (p *Port) routeAttach(cc1, cc2 tpm.CCStatus) {
	canSource := p.typeCType != tpm.PortTypeSink
	canSink := p.typeCType != tpm.PortTypeSource

	if canSource {
		if cc1 == tpm.CCRd && cc2 != tpm.CCRd {
			p.polarity = tpm.PolarityCC1
			p.setState(SrcAttachWait, 0)
			return
		}
		if cc2 == tpm.CCRd && cc1 != tpm.CCRd {
			p.polarity = tpm.PolarityCC2
			p.setState(SrcAttachWait, 0)
			return
		}
	}
	if canSink {
		if cc1.IsRp() && !cc2.IsRp() {
			p.polarity = tpm.PolarityCC1
			p.setState(SnkAttachWait, 0)
			return
		}
		if cc2.IsRp() && !cc1.IsRp() {
			p.polarity = tpm.PolarityCC2
			p.setState(SnkAttachWait, 0)
			return
		}
	}
}

func ccSourceAttached(cc1, cc2 tpm.CCStatus) bool {
	return cc1 == tpm.CCRd || cc2 == tpm.CCRd
}

func ccSinkAttached(cc1, cc2 tpm.CCStatus) bool {
	return cc1.IsRp() || cc2.IsRp()
}

func ccAttached(cc1, cc2 tpm.CCStatus) bool {
	return ccSourceAttached(cc1, cc2) || ccSinkAttached(cc1, cc2)
}

// VBUSChange implements vbus_change(): re-sample VBUS and route to the
// per-state vbus-on/off handler (§4.8).
func (p *Port) VBUSChange() {
	p.pollEventCnt = 0
	on, err := p.pc.VBUSPresent()
	if err != nil {
		return
	}
	p.vbusPresent = on
	if on {
		p.onVBUSOn()
	} else {
		p.onVBUSOff()
	}
	p.stateMachine()
}

func (p *Port) onVBUSOn() {
	switch p.state {
	case SrcAttached:
		p.hardResetCount = 0
		p.setState(SrcStartup, 0)
	case SnkDebounced:
		p.setState(SnkAttached, 0)
	case SnkTransitionSinkVBUS:
		p.applyGrantedContract()
		p.explicitContract = true
		p.setState(SnkReady, 0)
	case SnkHardResetWaitVBUS:
		p.setState(SnkHardResetSinkOn, 0)
	}
}

func (p *Port) onVBUSOff() {
	switch p.state {
	case SnkHardResetSinkOff:
		p.setState(SnkHardResetWaitVBUS, 0)
	default:
		if p.attached && p.pwrRole == tpm.RoleSink {
			p.setState(SnkUnattached, 0)
		}
	}
	p.vbusNeverLow = false
}

// PDHardReset implements pd_hard_reset(): a hard reset signal observed on
// the wire is ignored while the port is already mid-PORT_RESET, and
// otherwise escalates from wherever it's attached.
func (p *Port) PDHardReset() {
	p.pollEventCnt = 0
	if p.state == PortReset || p.state == PortResetWaitOff {
		return
	}
	if p.attached {
		p.setState(HardResetStart, 0)
	} else {
		p.setState(ErrorRecovery, 0)
	}
	p.stateMachine()
}

// TxComplete implements tx_complete(): it only unblocks transmit's spin-poll
// wait loop and never itself drives the state machine, since it is always
// observed from inside a call to transmit (§5's suspension points).
func (p *Port) TxComplete(status pdmsg.TransmitStatus) {
	p.txStatus = status
	p.txComplete = true
}

// Poll implements the outer poll() loop of §4.8: repeatedly call the PCI's
// PollEvent, dispatch whatever events it reports in priority order, and let
// the timer wheel fire any deadline that has passed, until the port settles
// into a *_READY state (and is not mid-DR-swap) or pollEventCnt exceeds
// PD_T_POLL_EVENT_TIMEOUT slices.
func (p *Port) Poll() {
	for p.pollEventCnt < pollEventTimeout {
		if p.state.isReady() && !p.waitDRSwapMessage {
			break
		}
		ev, err := p.pc.PollEvent()
		if err != nil {
			p.pollEventCnt++
			continue
		}
		p.pollEventCnt++
		p.handleEvents(ev)
		p.checkTimer()
		if p.advance == nil {
			time.Sleep(time.Millisecond)
		}
	}
	if lp, ok := p.pc.(tpm.LowPowerController); ok {
		lp.EnterLowPowerMode(p.attached, p.pdCapable) //nolint:errcheck
	}
}

// handleEvents drains ev in the priority order defined by tpm.Event.Pop.
// EventRx is not acted on here, since PollEvent's return value carries no
// room for the message payload: the decoded frame reaches PDReceive only
// when the driver or the embedder calls PDReceive with it (the FUSB302
// driver queues frames for its caller to drain with Receive). The bit
// still flows through for logging.
func (p *Port) handleEvents(ev tpm.Event) {
	for {
		e := ev.Pop()
		if e == 0 {
			return
		}
		switch e {
		case tpm.EventHardReset:
			p.PDHardReset()
		case tpm.EventCCChange:
			p.CCChange()
		case tpm.EventVBUSChange:
			p.VBUSChange()
		case tpm.EventRx:
			p.log("event: rx (expecting a direct PDReceive callback)")
		case tpm.EventTxComplete:
			// transmit()'s own spin-poll already consumes this for ordinary
			// messages; this path only matters for sendHardReset, which
			// doesn't wait, so record it here too in case anything still
			// cares about p.txComplete/p.txStatus.
			p.TxComplete(pdmsg.TransmitSuccess)
		}
	}
}
