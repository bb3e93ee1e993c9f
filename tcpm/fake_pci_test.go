package tcpm

import (
	tpm "github.com/typec-tpm/tpm"
	"github.com/typec-tpm/tpm/pdmsg"
)

// fakePCI is a minimal, in-memory PortController used to drive Port through
// scenario tests without real hardware. Outbound sends always complete on
// the next PollEvent call (no collision/retry modeling); tests simulate
// inbound traffic by calling Port.PDReceive directly, the way a real
// driver's interrupt handler would after decoding a frame off EventRx.
type fakePCI struct {
	cc1, cc2 tpm.CCStatus
	vbus     bool
	polarity tpm.Polarity
	vconn    bool
	pdRx     bool

	roleAttached bool
	role         tpm.PowerRole
	dataRole     pdmsg.DataRole

	sent      []pdmsg.Message
	sentType  []pdmsg.TransmitType
	txPending bool

	lowPowerCalls int
	togglingCalls int

	initErr error
}

func newFakePCI() *fakePCI {
	return &fakePCI{cc1: tpm.CCOpen, cc2: tpm.CCOpen}
}

func (f *fakePCI) Init() error { return f.initErr }

func (f *fakePCI) VBUSPresent() (bool, error) { return f.vbus, nil }

func (f *fakePCI) SetCC(cc tpm.CCStatus) error { return nil }

func (f *fakePCI) CC() (tpm.CCStatus, tpm.CCStatus, error) { return f.cc1, f.cc2, nil }

func (f *fakePCI) SetPolarity(p tpm.Polarity) error {
	f.polarity = p
	return nil
}

func (f *fakePCI) SetVCONN(on bool) error {
	f.vconn = on
	return nil
}

// SetVBUS only actually moves the simulated rail when the port is sourcing
// it (charge == false); a sink's SetVBUS(false, true) just starts drawing
// off whatever the (simulated) partner is driving, which the test controls
// directly via f.vbus.
func (f *fakePCI) SetVBUS(on, charge bool) error {
	if charge {
		return nil
	}
	f.vbus = on
	return nil
}

func (f *fakePCI) SetPDRx(on bool) error {
	f.pdRx = on
	return nil
}

func (f *fakePCI) SetRoles(attached bool, role tpm.PowerRole, data pdmsg.DataRole) error {
	f.roleAttached = attached
	f.role = role
	f.dataRole = data
	return nil
}

func (f *fakePCI) PDTransmit(typ pdmsg.TransmitType, msg pdmsg.Message, rev pdmsg.Revision) error {
	f.sent = append(f.sent, msg)
	f.sentType = append(f.sentType, typ)
	f.txPending = true
	return nil
}

func (f *fakePCI) PollEvent() (tpm.Event, error) {
	var ev tpm.Event
	if f.txPending {
		f.txPending = false
		ev.Add(tpm.EventTxComplete)
	}
	return ev, nil
}

func (f *fakePCI) StartToggling(pt tpm.PortType, initialCC tpm.CCStatus) error {
	f.togglingCalls++
	return nil
}

func (f *fakePCI) EnterLowPowerMode(attached, pdCapable bool) error {
	f.lowPowerCalls++
	return nil
}
