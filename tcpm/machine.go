package tcpm

import tpm "github.com/typec-tpm/tpm"

// This file implements the transition engine described in §4.7: set_state /
// set_state_cond, run_state_machine and the state_machine driver loop, plus
// the queued_message drain and the single re-entrance guard described in
// §5. No field here is ever touched from more than one goroutine; Port.Mu
// exists only for embedders that want to assert that in debug builds.

// setState applies an unconditional transition. delayMS == 0 takes effect
// immediately and supersedes any pending delayed transition (§9 "a state
// change with delay=0 supersedes any pending delayed transition"); delayMS
// > 0 arms the timer wheel instead of transitioning now.
func (p *Port) setState(target State, delayMS int) {
	if delayMS == 0 {
		p.prevState = p.state
		p.state = target
		p.delayedState = InvalidState
		p.timer.disarm()
		p.log("state: %s -> %s", p.prevState, p.state)
		return
	}
	p.delayedState = target
	p.timer.arm(delayMS)
	p.log("state: %s -> %s (in %dms)", p.state, target, delayMS)
}

// setStateCond is setState guarded by "the state identity captured on entry
// to the current run_state_machine invocation is unchanged" (§9's
// set_state_cond semantics). It exists so a state handler's own decision
// doesn't clobber one already made by a reentrant event handler.
func (p *Port) setStateCond(target State, delayMS int) {
	if p.state != p.enterState {
		return
	}
	p.setState(target, delayMS)
}

// delayPending reports whether a delayed transition is currently armed
// (invariant 4 in §3).
func (p *Port) delayPending() bool {
	return p.timer.armed() && p.delayedState != InvalidState
}

// checkTimer fires the pending delayed transition if its deadline has
// passed, then drives the state machine. Called from the outer poll loop,
// from AdvanceTime in tests, and from the pd_transmit wait loop (§5
// "suspension points").
func (p *Port) checkTimer() {
	if !p.timer.expired() {
		return
	}
	p.timer.disarm()
	if p.delayedState != InvalidState {
		p.prevState = p.state
		p.state = p.delayedState
		p.delayedState = InvalidState
		p.log("state: %s -> %s (timer)", p.prevState, p.state)
	}
	p.stateMachine()
}

// stateMachine is the loop described in §4.7: drain queuedMessage, then call
// runStateMachine repeatedly while state keeps changing and no new delayed
// transition is pending. A delayed transition that just fired has already
// been applied by checkTimer before it calls here. A nested call (reached via a PCI callback invoked synchronously
// from within a handler already on the stack) sets rerunRequested and
// returns immediately instead of recursing, per §5's re-entrance guard.
func (p *Port) stateMachine() {
	if p.stateMachineRunning {
		p.rerunRequested = true
		return
	}
	p.stateMachineRunning = true
	defer func() { p.stateMachineRunning = false }()

	for {
		p.drainQueuedMessage()
		for {
			prev := p.state
			p.enterState = prev
			p.runStateMachine()
			if p.state == prev {
				break
			}
			if p.delayPending() {
				break
			}
		}
		if p.rerunRequested {
			p.rerunRequested = false
			continue
		}
		return
	}
}

// runStateMachine executes the handler for the current state exactly once
// (§4.7). Each handler is a plain method that mutates Port state and calls
// setState/setStateCond as needed; it never returns a value, matching the
// teacher's preference for small, eagerly-dispatched transition functions.
func (p *Port) runStateMachine() {
	switch p.state {
	case InvalidState, Toggling:
		p.doToggling()

	case SrcUnattached:
		p.doSrcUnattached()
	case SrcAttachWait:
		p.doSrcAttachWait()
	case SrcAttached:
		p.doSrcAttached()
	case SrcStartup:
		p.doSrcStartup()
	case SrcSendCapabilities:
		p.doSrcSendCapabilities()
	case SrcSendCapabilitiesTimeout:
		p.doSrcSendCapabilitiesTimeout()
	case SrcNegotiateCapabilities:
		p.doSrcNegotiateCapabilities()
	case SrcTransitionSupply:
		p.doSrcTransitionSupply()
	case SrcReady:
		p.doSrcReady()
	case SrcWaitNewCapabilities:
		p.doSrcWaitNewCapabilities()

	case SnkUnattached:
		p.doSnkUnattached()
	case SnkAttachWait:
		p.doSnkAttachWait()
	case SnkDebounced:
		p.doSnkDebounced()
	case SnkAttached:
		p.doSnkAttached()
	case SnkStartup:
		p.doSnkStartup()
	case SnkDiscovery:
		p.doSnkDiscovery()
	case SnkDiscoveryDebounce:
		p.doSnkDiscoveryDebounce()
	case SnkDiscoveryDebounceDone:
		p.doSnkDiscoveryDebounceDone()
	case SnkWaitCapabilities:
		p.doSnkWaitCapabilities()
	case SnkNegotiateCapabilities:
		p.doSnkNegotiateCapabilities()
	case SnkTransitionSink:
		p.doSnkTransitionSink()
	case SnkTransitionSinkVBUS:
		p.doSnkTransitionSinkVBUS()
	case SnkReady:
		p.doSnkReady()

	case HardResetSend:
		p.doHardResetSend()
	case HardResetStart:
		p.doHardResetStart()
	case SrcHardResetVBUSOff:
		p.doSrcHardResetVBUSOff()
	case SrcHardResetVBUSOn:
		p.doSrcHardResetVBUSOn()
	case SnkHardResetSinkOff:
		p.doSnkHardResetSinkOff()
	case SnkHardResetWaitVBUS:
		p.doSnkHardResetWaitVBUS()
	case SnkHardResetSinkOn:
		p.doSnkHardResetSinkOn()

	case SoftReset:
		p.doSoftReset()
	case SoftResetSend:
		p.doSoftResetSend()
	case DRSwapAccept:
		p.doDRSwapAccept()
	case DRSwapChangeDR:
		p.doDRSwapChangeDR()
	case ErrorRecovery:
		p.doErrorRecovery()
	case PortReset:
		p.doPortReset()
	case PortResetWaitOff:
		p.doPortResetWaitOff()
	}
}

// hardResetState implements the escalation rule used throughout §4.7:
// retry via HARD_RESET_SEND while under the hard-reset budget, otherwise
// fail over to ERROR_RECOVERY (if the port ever spoke PD) or straight back
// to the role-appropriate unattached state.
func (p *Port) hardResetState() State {
	if p.hardResetCount < nHardResetCount {
		return HardResetSend
	}
	if p.pdCapable {
		return ErrorRecovery
	}
	if p.pwrRole == tpm.RoleSource {
		return SrcUnattached
	}
	return SnkUnattached
}

// readyState returns the quiescent *_READY state for the port's current
// power role, used after DR swaps.
func (p *Port) readyState() State {
	if p.pwrRole == tpm.RoleSource {
		return SrcReady
	}
	return SnkReady
}
