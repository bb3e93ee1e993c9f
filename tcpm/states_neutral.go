package tcpm

import tpm "github.com/typec-tpm/tpm"

// doToggling implements the TOGGLING state (§4.7): if the PCI exposes
// hardware-driven CC toggling, kick it off once with the port's preferred
// starting role. Progress out of this state is entirely event-driven: the
// cc_change facade (§4.8) reads the first real CC sample off the wire and
// routes to SRC_ATTACH_WAIT or SNK_ATTACH_WAIT.
func (p *Port) doToggling() {
	t, ok := p.pc.(tpm.Toggler)
	if !ok {
		return
	}
	initial := tpm.CCRd
	pt := tpm.PortTypeSink
	if p.typeCType == tpm.PortTypeSource || (p.typeCType == tpm.PortTypeDRP && p.tryRole == tpm.RoleSource) {
		initial = tpm.CCRpDefault
		pt = tpm.PortTypeSource
	}
	t.StartToggling(pt, initial) //nolint:errcheck // a failed toggle just leaves CC at its last setting
}

// doSrcUnattached and doSnkUnattached are idempotent: they only ensure the
// local CC termination matches the role, since cc_change (not
// run_state_machine) drives the transition out.
func (p *Port) doSrcUnattached() {
	p.attached = false
	p.connected = false
	p.pc.SetCC(tpm.CCRpDefault) //nolint:errcheck // surfaced to the caller via the next PollEvent
}

func (p *Port) doSnkUnattached() {
	p.attached = false
	p.connected = false
	p.pc.SetCC(tpm.CCRd) //nolint:errcheck // surfaced to the caller via the next PollEvent
}

// defaultTermination is the CC value PORT_RESET restores a self-powered-false
// port to: Rp at the default level for a pure source, Rd for sink and
// dual-role ports.
func (p *Port) defaultTermination() tpm.CCStatus {
	if p.typeCType == tpm.PortTypeSource {
		return tpm.CCRpDefault
	}
	return tpm.CCRd
}
