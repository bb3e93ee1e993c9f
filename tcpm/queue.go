package tcpm

import (
	tpm "github.com/typec-tpm/tpm"
	"github.com/typec-tpm/tpm/pdmsg"
)

// drainQueuedMessage sends the single pending outbound control/data message
// left by an inbound handler (§4.7 "Outbound queued messages"). It exists
// so REJECT/WAIT/NOT_SUPP/duplicate-cap replies can be decided from inside
// pd_receive without reentering the transmit path mid-transition; the drain
// happens at the top of every state_machine() pass, before any new
// transition runs.
func (p *Port) drainQueuedMessage() {
	q := p.queuedMessage
	if q == tpm.QueuedNone {
		return
	}
	p.queuedMessage = tpm.QueuedNone
	switch q {
	case tpm.QueuedReject:
		p.sendControl(pdmsg.TypeReject)
	case tpm.QueuedWait:
		p.sendControl(pdmsg.TypeWait)
	case tpm.QueuedNotSupported:
		p.sendControl(pdmsg.TypeNotSupported)
	case tpm.QueuedSinkCap:
		p.sendData(pdmsg.TypeSinkCap, p.snkPDO)
	case tpm.QueuedSourceCap:
		p.sendData(pdmsg.TypeSourceCap, p.srcPDO)
	}
}

// queue records a response for the next drain, overwriting anything
// already pending (the spec's "at-most-one-queued" invariant: a second
// queue request before the drain simply replaces the first).
func (p *Port) queue(q tpm.QueuedMessage) {
	p.queuedMessage = q
}
