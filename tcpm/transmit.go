package tcpm

import (
	"errors"
	"time"

	tpm "github.com/typec-tpm/tpm"
	"github.com/typec-tpm/tpm/pdmsg"
)

// ErrTimeout is returned by transmit when no TxComplete arrives within
// PD_T_TCPC_TX_TIMEOUT (§5 "suspension points").
var ErrTimeout = errors.New("tcpm: transmit timeout")

// tTCPCTxTimeoutSlices bounds how long transmit spins waiting for TxComplete, in
// 1ms slices (§5).
const tTCPCTxTimeoutSlices = 50

// newMessageTemplate builds a header pre-populated with the port's current
// roles and negotiated revision, the way every outbound message is built
// (mirrors tcpe.PolicyEngine.msgTpl).
func (p *Port) newMessageTemplate() pdmsg.Message {
	var m pdmsg.Message
	m.SetPowerRole(pdmsg.PowerRole(boolToBit(p.pwrRole == tpm.RoleSource)))
	m.SetDataRole(p.dataRole)
	m.SetRevision(p.negotiatedRev)
	m.SetExtended(false)
	return m
}

func boolToBit(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// sendControl transmits a control message of the given type using the next
// MessageID and blocks (via the spin-poll loop) for completion. On success
// it advances messageID, per invariant 3 ("observable only after the
// transmit completes successfully").
func (p *Port) sendControl(t pdmsg.Type) error {
	m := p.newMessageTemplate()
	m.SetType(t)
	m.SetDataObjectCount(0)
	return p.transmit(m)
}

// sendData transmits a data message (SOURCE_CAP, SINK_CAP, REQUEST) with
// the given payload objects.
func (p *Port) sendData(t pdmsg.Type, objs []pdmsg.PDO) error {
	m := p.newMessageTemplate()
	m.SetType(t)
	m.SetDataObjectCount(uint8(len(objs)))
	for i, o := range objs {
		m.Data[i] = uint32(o)
	}
	return p.transmit(m)
}

// transmit puts a framed SOP message on the wire and waits for the PCI to
// report completion, retrying poll_event/check_timer each 1ms slice so
// delayed transitions keep firing while the caller blocks (§5).
func (p *Port) transmit(m pdmsg.Message) error {
	m.SetID(p.messageID)
	p.txComplete = false
	if err := p.pc.PDTransmit(pdmsg.TransmitSOP, m, p.negotiatedRev); err != nil {
		return err
	}
	for i := 0; i < tTCPCTxTimeoutSlices; i++ {
		if p.txComplete {
			break
		}
		ev, err := p.pc.PollEvent()
		if err == nil {
			for {
				e := ev.Pop()
				if e == 0 {
					break
				}
				if e == tpm.EventTxComplete {
					p.TxComplete(pdmsg.TransmitSuccess)
				}
			}
		}
		// A delayed transition (e.g. a hard-reset escalation armed before
		// this send started) must still fire while we wait for GoodCRC
		// (§5's suspension-point rule); checkTimer's call into
		// stateMachine is caught by the re-entrance guard and replayed
		// once this handler returns.
		p.checkTimer()
		if p.advance == nil {
			time.Sleep(time.Millisecond)
		}
	}
	if !p.txComplete {
		return ErrTimeout
	}
	switch p.txStatus {
	case pdmsg.TransmitSuccess:
		p.messageID = (p.messageID + 1) % 8
		p.log("tx: %v id=%d ok", m.Type(), m.ID())
		return nil
	case pdmsg.TransmitDiscarded:
		return errTransient
	default:
		return ErrTimeout
	}
}

// errTransient marks a transmit failure the caller should retry rather than
// escalate (§7 "Transient").
var errTransient = errors.New("tcpm: transient transmit failure")

// sendHardReset asks the PCI to put a hard-reset signal on the wire. Unlike
// ordinary messages this does not wait for a GoodCRC; completion is still
// reported via TxComplete but failures here fall straight through since the
// caller is already deep in hard-reset handling.
func (p *Port) sendHardReset() error {
	return p.pc.PDTransmit(pdmsg.TransmitHardReset, pdmsg.Message{}, p.negotiatedRev)
}
