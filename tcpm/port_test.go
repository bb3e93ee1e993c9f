package tcpm

import (
	"testing"

	tpm "github.com/typec-tpm/tpm"
	"github.com/typec-tpm/tpm/config"
	"github.com/typec-tpm/tpm/pdmsg"
)

func fixedPDO(mv, ma uint16) pdmsg.PDO {
	var o pdmsg.FixedSupplyPDO
	o.SetVoltage(mv)
	o.SetMaxCurrent(ma)
	return pdmsg.PDO(o)
}

func ctrlMsg(t pdmsg.Type, dr pdmsg.DataRole, rev pdmsg.Revision, id uint8) pdmsg.Message {
	var m pdmsg.Message
	m.SetType(t)
	m.SetDataObjectCount(0)
	m.SetDataRole(dr)
	m.SetRevision(rev)
	m.SetID(id)
	return m
}

func dataMsg(t pdmsg.Type, dr pdmsg.DataRole, rev pdmsg.Revision, id uint8, objs []pdmsg.PDO) pdmsg.Message {
	var m pdmsg.Message
	m.SetType(t)
	m.SetDataObjectCount(uint8(len(objs)))
	m.SetDataRole(dr)
	m.SetRevision(rev)
	m.SetID(id)
	for i, o := range objs {
		m.Data[i] = uint32(o)
	}
	return m
}

func sourceOnlyConfig() config.PortConfig {
	return config.PortConfig{
		TypeCType: tpm.PortTypeSource,
		SourcePDO: []pdmsg.PDO{fixedPDO(5000, 3000)},
	}
}

func sinkOnlyConfig() config.PortConfig {
	return config.PortConfig{
		TypeCType:       tpm.PortTypeSink,
		SinkPDO:         []pdmsg.PDO{fixedPDO(5000, 2000)},
		OperatingSinkMW: 10000,
	}
}

// TestSourceOnlyAttachAndNegotiate drives a source-only port from
// SRC_UNATTACHED through an RD attach, SOURCE_CAP advertisement, an inbound REQUEST, and
// into SRC_READY holding an explicit contract (spec §8 scenario 1).
func TestSourceOnlyAttachAndNegotiate(t *testing.T) {
	pc := newFakePCI()
	p, err := NewForTest(sourceOnlyConfig(), pc)
	if err != nil {
		t.Fatalf("NewForTest: %v", err)
	}
	if p.State() != SrcUnattached {
		t.Fatalf("initial state = %s, want SRC_UNATTACHED", p.StateName())
	}

	pc.cc1, pc.cc2 = tpm.CCRd, tpm.CCOpen
	p.CCChange()
	if p.State() != SrcAttachWait {
		t.Fatalf("after cc_change: state = %s, want SRC_ATTACH_WAIT", p.StateName())
	}

	p.AdvanceTime(tCCDebounce)
	if p.State() != SrcAttached {
		t.Fatalf("after debounce: state = %s, want SRC_ATTACHED", p.StateName())
	}
	if !pc.vbus {
		t.Fatal("expected VBUS to be driven on by SRC_ATTACHED")
	}

	p.VBUSChange()
	if p.State() != SrcSendCapabilities {
		t.Fatalf("after vbus_change: state = %s, want SRC_SEND_CAPABILITIES", p.StateName())
	}
	if len(pc.sent) != 1 || pc.sent[0].Type() != pdmsg.TypeSourceCap {
		t.Fatalf("expected one SOURCE_CAP sent, got %d messages", len(pc.sent))
	}

	var rdo pdmsg.RequestDO
	rdo.SetSelectedObjectPosition(1)
	rdo.SetFixedOperatingCurrent(1500)
	rdo.SetFixedMaxOperatingCurrent(1500)
	req := dataMsg(pdmsg.TypeRequest, pdmsg.DataRoleUFP, pdmsg.Revision30, 0, []pdmsg.PDO{pdmsg.PDO(rdo)})
	p.PDReceive(req)
	// ACCEPT was sent but the move to SRC_TRANSITION_SUPPLY is delayed by
	// PD_T_SRC_TRANSITION (§4.7); the port rests in NEGOTIATE until the
	// timer fires.
	if p.State() != SrcNegotiateCapabilities {
		t.Fatalf("after REQUEST: state = %s, want SRC_NEGOTIATE_CAPABILITIES", p.StateName())
	}

	p.AdvanceTime(tSrcTransition)
	if p.State() != SrcReady {
		t.Fatalf("final state = %s, want SRC_READY", p.StateName())
	}
	if !p.ExplicitContract() {
		t.Fatal("expected an explicit contract in SRC_READY")
	}
	if v := p.GetVoltage(); v != 5000 {
		t.Fatalf("GetVoltage() = %d, want 5000", v)
	}
	if c := p.GetCurrent(); c != 1500 {
		t.Fatalf("GetCurrent() = %d, want 1500", c)
	}
}

// TestSinkAttachAndNegotiate drives a sink-only port from an Rp attach
// through VBUS coming up mid-debounce, SOURCE_CAP/REQUEST/ACCEPT/PS_RDY,
// into SNK_READY (spec §8 scenario 2).
func TestSinkAttachAndNegotiate(t *testing.T) {
	pc := newFakePCI()
	p, err := NewForTest(sinkOnlyConfig(), pc)
	if err != nil {
		t.Fatalf("NewForTest: %v", err)
	}

	pc.cc1, pc.cc2 = tpm.CCRpDefault, tpm.CCOpen
	p.CCChange()
	if p.State() != SnkAttachWait {
		t.Fatalf("state = %s, want SNK_ATTACH_WAIT", p.StateName())
	}

	p.AdvanceTime(tCCDebounce)
	if p.State() != SnkDebounced {
		t.Fatalf("state = %s, want SNK_DEBOUNCED", p.StateName())
	}

	// VBUS comes up while still debouncing, ahead of the PORT_RESET fallback.
	pc.vbus = true
	p.VBUSChange()
	if p.State() != SnkDiscovery {
		t.Fatalf("state = %s, want SNK_DISCOVERY", p.StateName())
	}

	p.AdvanceTime(tPDDebounce)
	if p.State() != SnkWaitCapabilities {
		t.Fatalf("state = %s, want SNK_WAIT_CAPABILITIES", p.StateName())
	}
	if !pc.pdRx {
		t.Fatal("expected PD RX to be enabled in SNK_WAIT_CAPABILITIES")
	}

	srcCap := dataMsg(pdmsg.TypeSourceCap, pdmsg.DataRoleDFP, pdmsg.Revision30, 0,
		[]pdmsg.PDO{fixedPDO(5000, 3000)})
	p.PDReceive(srcCap)
	if p.State() != SnkNegotiateCapabilities {
		t.Fatalf("state = %s, want SNK_NEGOTIATE_CAPABILITIES", p.StateName())
	}
	if len(pc.sent) != 1 || pc.sent[0].Type() != pdmsg.TypeRequest {
		t.Fatalf("expected one REQUEST sent, got %d", len(pc.sent))
	}

	accept := ctrlMsg(pdmsg.TypeAccept, pdmsg.DataRoleDFP, pdmsg.Revision30, 1)
	p.PDReceive(accept)
	if p.State() != SnkTransitionSink {
		t.Fatalf("state = %s, want SNK_TRANSITION_SINK", p.StateName())
	}

	psReady := ctrlMsg(pdmsg.TypePSReady, pdmsg.DataRoleDFP, pdmsg.Revision30, 2)
	p.PDReceive(psReady)
	if p.State() != SnkReady {
		t.Fatalf("final state = %s, want SNK_READY", p.StateName())
	}
	if !p.ExplicitContract() {
		t.Fatal("expected an explicit contract in SNK_READY")
	}
	if v := p.GetVoltage(); v != 5000 {
		t.Fatalf("GetVoltage() = %d, want 5000", v)
	}
	if c := p.GetCurrent(); c != 2000 {
		t.Fatalf("GetCurrent() = %d, want 2000 (sink-limited)", c)
	}
}

// TestHardResetRecovery drives an already-contracted source through a
// hard reset and back to a fresh capability exchange, without the port
// ever reporting disconnected (spec §8 scenario 3).
func TestHardResetRecovery(t *testing.T) {
	pc := newFakePCI()
	p, err := NewForTest(sourceOnlyConfig(), pc)
	if err != nil {
		t.Fatalf("NewForTest: %v", err)
	}
	attachAndContractAsSource(t, p, pc)

	p.PDHardReset()
	if p.State() != SrcHardResetVBUSOff {
		t.Fatalf("state = %s, want SRC_HARD_RESET_VBUS_OFF", p.StateName())
	}
	if pc.vbus {
		t.Fatal("expected VBUS dropped during hard reset")
	}
	if !p.Attached() {
		t.Fatal("hard reset must not disconnect the port")
	}

	p.AdvanceTime(tSrcRecover)
	if p.State() != SrcSendCapabilities {
		t.Fatalf("state = %s, want SRC_SEND_CAPABILITIES after recovery", p.StateName())
	}
	if !pc.vbus {
		t.Fatal("expected VBUS restored after hard-reset recovery")
	}
	if p.ExplicitContract() {
		t.Fatal("expected the contract to be cleared across a hard reset")
	}

	var rdo pdmsg.RequestDO
	rdo.SetSelectedObjectPosition(1)
	rdo.SetFixedOperatingCurrent(1500)
	rdo.SetFixedMaxOperatingCurrent(1500)
	req := dataMsg(pdmsg.TypeRequest, pdmsg.DataRoleUFP, pdmsg.Revision30, 5, []pdmsg.PDO{pdmsg.PDO(rdo)})
	p.PDReceive(req)
	p.AdvanceTime(tSrcTransition)
	if p.State() != SrcReady || !p.ExplicitContract() {
		t.Fatalf("expected a fresh contract after recovery, got state=%s explicit=%v", p.StateName(), p.ExplicitContract())
	}
}

// TestSinkHardResetOnRequestTimeout drives a sink whose REQUEST never gets
// an ACCEPT within PD_T_SENDER_RESPONSE into the hard-reset cascade
// (HARD_RESET_SEND -> SNK_HARD_RESET_SINK_OFF -> SNK_HARD_RESET_WAIT_VBUS ->
// SNK_HARD_RESET_SINK_ON), confirming that vbus_change supersedes each
// pending fallback as it arrives (spec §8 scenario 3's sink path).
func TestSinkHardResetOnRequestTimeout(t *testing.T) {
	pc := newFakePCI()
	p, err := NewForTest(sinkOnlyConfig(), pc)
	if err != nil {
		t.Fatalf("NewForTest: %v", err)
	}

	pc.cc1, pc.cc2 = tpm.CCRpDefault, tpm.CCOpen
	p.CCChange()
	p.AdvanceTime(tCCDebounce)
	pc.vbus = true
	p.VBUSChange()
	p.AdvanceTime(tPDDebounce)
	if p.State() != SnkWaitCapabilities {
		t.Fatalf("state = %s, want SNK_WAIT_CAPABILITIES", p.StateName())
	}

	srcCap := dataMsg(pdmsg.TypeSourceCap, pdmsg.DataRoleDFP, pdmsg.Revision30, 0,
		[]pdmsg.PDO{fixedPDO(5000, 3000)})
	p.PDReceive(srcCap)
	if p.State() != SnkNegotiateCapabilities {
		t.Fatalf("state = %s, want SNK_NEGOTIATE_CAPABILITIES", p.StateName())
	}

	// No ACCEPT arrives; PD_T_SENDER_RESPONSE fires the hard-reset
	// escalation, which immediately cascades to the sink's off-dwell.
	p.AdvanceTime(tSenderResponse)
	if p.State() != SnkHardResetSinkOff {
		t.Fatalf("state = %s, want SNK_HARD_RESET_SINK_OFF", p.StateName())
	}
	if p.ExplicitContract() {
		t.Fatal("expected the contract to be cleared across the hard reset")
	}

	// VBUS actually drops before PD_T_PS_HARD_RESET would have fired,
	// superseding the fallback with SNK_HARD_RESET_WAIT_VBUS.
	pc.vbus = false
	p.VBUSChange()
	if p.State() != SnkHardResetWaitVBUS {
		t.Fatalf("state = %s, want SNK_HARD_RESET_WAIT_VBUS", p.StateName())
	}

	// VBUS reappears; the port charges again and restarts discovery.
	pc.vbus = true
	p.VBUSChange()
	if p.State() != SnkDiscovery {
		t.Fatalf("state = %s, want SNK_DISCOVERY after hard-reset recovery", p.StateName())
	}
	if p.ExplicitContract() {
		t.Fatal("expected no contract immediately after hard-reset recovery")
	}
}

// TestRevisionStepDownOnRepeatedTimeout exhausts the hard-reset budget via
// repeated SOURCE_CAP timeouts and checks the engine steps negotiatedRev
// down from REV30 to REV20 rather than giving up (spec §8 scenario 4).
func TestRevisionStepDownOnRepeatedTimeout(t *testing.T) {
	pc := newFakePCI()
	p, err := NewForTest(sourceOnlyConfig(), pc)
	if err != nil {
		t.Fatalf("NewForTest: %v", err)
	}
	pc.cc1, pc.cc2 = tpm.CCRd, tpm.CCOpen
	p.CCChange()
	p.AdvanceTime(tCCDebounce)
	p.VBUSChange()
	if p.State() != SrcSendCapabilities {
		t.Fatalf("state = %s, want SRC_SEND_CAPABILITIES", p.StateName())
	}
	if p.negotiatedRev != pdmsg.Revision30 {
		t.Fatalf("negotiatedRev = %v, want REV30 before any timeout", p.negotiatedRev)
	}

	for i := 0; i < nHardResetCount; i++ {
		p.AdvanceTime(tSendSourceCap) // SOURCE_CAP times out -> HARD_RESET_SEND cascade
		if p.State() != SrcHardResetVBUSOff {
			t.Fatalf("round %d: state = %s, want SRC_HARD_RESET_VBUS_OFF", i, p.StateName())
		}
		p.AdvanceTime(tSrcRecover) // recovers back to SRC_SEND_CAPABILITIES
		if p.State() != SrcSendCapabilities {
			t.Fatalf("round %d: state = %s, want SRC_SEND_CAPABILITIES", i, p.StateName())
		}
	}
	if p.hardResetCount != nHardResetCount {
		t.Fatalf("hardResetCount = %d, want %d after %d recoveries", p.hardResetCount, nHardResetCount, nHardResetCount)
	}

	p.AdvanceTime(tSendSourceCap) // budget exhausted: step the revision down instead
	if p.negotiatedRev != pdmsg.Revision20 {
		t.Fatalf("negotiatedRev = %v, want REV20", p.negotiatedRev)
	}
	if p.hardResetCount != 0 {
		t.Fatalf("hardResetCount = %d, want 0 (budget reset after stepping down)", p.hardResetCount)
	}
	if p.State() != SrcSendCapabilities {
		t.Fatalf("state = %s, want SRC_SEND_CAPABILITIES", p.StateName())
	}
	last := pc.sent[len(pc.sent)-1]
	if last.Revision() != pdmsg.Revision20 {
		t.Fatalf("last SOURCE_CAP revision = %v, want REV20", last.Revision())
	}
}

// TestDuplicateMessageSuppressed checks that a retransmitted frame carrying
// the same MessageID as the last accepted one is dropped rather than
// re-dispatched (spec §8 scenario 5, invariant: "observed in temporal
// order, duplicates suppressed").
func TestDuplicateMessageSuppressed(t *testing.T) {
	pc := newFakePCI()
	p, err := NewForTest(sinkOnlyConfig(), pc)
	if err != nil {
		t.Fatalf("NewForTest: %v", err)
	}
	pc.cc1, pc.cc2 = tpm.CCRpDefault, tpm.CCOpen
	p.CCChange()
	p.AdvanceTime(tCCDebounce)
	pc.vbus = true
	p.VBUSChange()
	p.AdvanceTime(tPDDebounce)
	if p.State() != SnkWaitCapabilities {
		t.Fatalf("state = %s, want SNK_WAIT_CAPABILITIES", p.StateName())
	}

	srcCap := dataMsg(pdmsg.TypeSourceCap, pdmsg.DataRoleDFP, pdmsg.Revision30, 7,
		[]pdmsg.PDO{fixedPDO(5000, 3000)})
	p.PDReceive(srcCap)
	if p.State() != SnkNegotiateCapabilities {
		t.Fatalf("state = %s, want SNK_NEGOTIATE_CAPABILITIES", p.StateName())
	}
	sentAfterFirst := len(pc.sent)
	stateAfterFirst := p.State()

	p.PDReceive(srcCap) // identical frame, same MessageID 7: must be dropped
	if len(pc.sent) != sentAfterFirst {
		t.Fatalf("duplicate SOURCE_CAP triggered a send: sent went from %d to %d", sentAfterFirst, len(pc.sent))
	}
	if p.State() != stateAfterFirst {
		t.Fatalf("duplicate SOURCE_CAP changed state from %s to %s", stateAfterFirst, p.State())
	}
}

// TestDRSwapAsDRP exercises a DRP port accepting an inbound DR_SWAP while
// SRC_READY, flipping its data role without losing the power contract
// (spec §8 scenario 6).
func TestDRSwapAsDRP(t *testing.T) {
	pc := newFakePCI()
	cfg := config.PortConfig{
		TypeCType: tpm.PortTypeDRP,
		TryRole:   tpm.RoleSource,
		SourcePDO: []pdmsg.PDO{fixedPDO(5000, 3000)},
		SinkPDO:   []pdmsg.PDO{fixedPDO(5000, 2000)},
		OperatingSinkMW: 2500,
	}
	p, err := NewForTest(cfg, pc)
	if err != nil {
		t.Fatalf("NewForTest: %v", err)
	}
	attachAndContractAsSource(t, p, pc)
	if p.dataRole != pdmsg.DataRoleDFP {
		t.Fatalf("dataRole = %v, want DFP before swap", p.dataRole)
	}

	swap := ctrlMsg(pdmsg.TypeDRSwap, pdmsg.DataRoleUFP, pdmsg.Revision30, 1)
	p.PDReceive(swap)
	if p.State() != SrcReady {
		t.Fatalf("state = %s, want SRC_READY to be preserved across a DR swap", p.StateName())
	}
	if p.dataRole != pdmsg.DataRoleUFP {
		t.Fatalf("dataRole = %v, want UFP after swap", p.dataRole)
	}
	if !p.ExplicitContract() {
		t.Fatal("DR swap must not disturb the power contract")
	}
}

// TestGetVoltageCurrentZeroWithoutContract checks the invariant that
// GetVoltage/GetCurrent read 0 until an explicit contract exists, even once
// the port is attached and mid-negotiation.
func TestGetVoltageCurrentZeroWithoutContract(t *testing.T) {
	pc := newFakePCI()
	p, err := NewForTest(sourceOnlyConfig(), pc)
	if err != nil {
		t.Fatalf("NewForTest: %v", err)
	}
	pc.cc1, pc.cc2 = tpm.CCRd, tpm.CCOpen
	p.CCChange()
	p.AdvanceTime(tCCDebounce)
	p.VBUSChange()
	if p.ExplicitContract() {
		t.Fatal("did not expect an explicit contract yet")
	}
	if v, c := p.GetVoltage(), p.GetCurrent(); v != 0 || c != 0 {
		t.Fatalf("GetVoltage/GetCurrent = %d/%d, want 0/0 before a contract", v, c)
	}
}

// TestSetStateZeroDelaySupersedesPendingDelayedTransition checks §5's
// cancellation rule directly against the timer wheel.
func TestSetStateZeroDelaySupersedesPendingDelayedTransition(t *testing.T) {
	pc := newFakePCI()
	p, err := NewForTest(sourceOnlyConfig(), pc)
	if err != nil {
		t.Fatalf("NewForTest: %v", err)
	}
	p.setState(SrcAttachWait, 100)
	if !p.delayPending() {
		t.Fatal("expected a delayed transition to be armed")
	}
	p.setState(SrcUnattached, 0)
	if p.delayPending() {
		t.Fatal("delay=0 transition should have disarmed the pending one")
	}
	if p.State() != SrcUnattached {
		t.Fatalf("state = %s, want SRC_UNATTACHED", p.StateName())
	}
}

// TestHardResetStateEscalationPath exercises hardResetState's three
// branches directly: retry budget, then ERROR_RECOVERY vs a plain
// unattached fallback depending on whether the port ever spoke PD.
func TestHardResetStateEscalationPath(t *testing.T) {
	pc := newFakePCI()
	p, err := NewForTest(sourceOnlyConfig(), pc)
	if err != nil {
		t.Fatalf("NewForTest: %v", err)
	}
	p.hardResetCount = 0
	if got := p.hardResetState(); got != HardResetSend {
		t.Fatalf("hardResetState() = %s, want HARD_RESET_SEND under budget", got)
	}
	p.hardResetCount = nHardResetCount
	p.pdCapable = false
	if got := p.hardResetState(); got != SrcUnattached {
		t.Fatalf("hardResetState() = %s, want SRC_UNATTACHED (never spoke PD)", got)
	}
	p.pdCapable = true
	if got := p.hardResetState(); got != ErrorRecovery {
		t.Fatalf("hardResetState() = %s, want ERROR_RECOVERY (budget exhausted, was PD capable)", got)
	}
}

// TestCCDisconnectFromReady checks that a disconnect observed from a
// *_READY state routes back to the role-appropriate unattached state.
func TestCCDisconnectFromReady(t *testing.T) {
	pc := newFakePCI()
	p, err := NewForTest(sourceOnlyConfig(), pc)
	if err != nil {
		t.Fatalf("NewForTest: %v", err)
	}
	attachAndContractAsSource(t, p, pc)

	pc.cc1, pc.cc2 = tpm.CCOpen, tpm.CCOpen
	p.CCChange()
	if p.State() != SrcUnattached {
		t.Fatalf("state = %s, want SRC_UNATTACHED after disconnect", p.StateName())
	}
	if p.Attached() {
		t.Fatal("expected Attached() to clear on disconnect")
	}
}

// attachAndContractAsSource drives p (configured with sourceOnlyConfig's
// PDO, or a DRP with an equivalent source_pdo) all the way to SRC_READY
// with an explicit contract, for tests that only care about what happens
// next.
func attachAndContractAsSource(t *testing.T, p *Port, pc *fakePCI) {
	t.Helper()
	pc.cc1, pc.cc2 = tpm.CCRd, tpm.CCOpen
	p.CCChange()
	p.AdvanceTime(tCCDebounce)
	p.VBUSChange()
	if p.State() != SrcSendCapabilities {
		t.Fatalf("attachAndContractAsSource: state = %s, want SRC_SEND_CAPABILITIES", p.StateName())
	}
	var rdo pdmsg.RequestDO
	rdo.SetSelectedObjectPosition(1)
	rdo.SetFixedOperatingCurrent(1500)
	rdo.SetFixedMaxOperatingCurrent(1500)
	req := dataMsg(pdmsg.TypeRequest, pdmsg.DataRoleUFP, pdmsg.Revision30, 0, []pdmsg.PDO{pdmsg.PDO(rdo)})
	p.PDReceive(req)
	p.AdvanceTime(tSrcTransition)
	if p.State() != SrcReady || !p.ExplicitContract() {
		t.Fatalf("attachAndContractAsSource: state=%s explicit=%v, want SRC_READY with a contract", p.StateName(), p.ExplicitContract())
	}
}
