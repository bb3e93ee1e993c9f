package pdmsg

import "testing"

func TestHeaderRoundTrip(t *testing.T) {
	var m Message
	m.SetType(TypeRequest)
	m.SetDataRole(DataRoleDFP)
	m.SetRevision(Revision30)
	m.SetPowerRole(PowerRoleSource)
	m.SetID(5)
	m.SetDataObjectCount(1)
	m.Data[0] = 0xdeadbeef

	if got := m.Type(); got != TypeRequest {
		t.Fatalf("Type() = %v, want %v", got, TypeRequest)
	}
	if got := m.DataRole(); got != DataRoleDFP {
		t.Fatalf("DataRole() = %v, want %v", got, DataRoleDFP)
	}
	if got := m.Revision(); got != Revision30 {
		t.Fatalf("Revision() = %v, want %v", got, Revision30)
	}
	if got := m.PowerRole(); got != PowerRoleSource {
		t.Fatalf("PowerRole() = %v, want %v", got, PowerRoleSource)
	}
	if got := m.ID(); got != 5 {
		t.Fatalf("ID() = %v, want 5", got)
	}
	if got := m.DataObjectCount(); got != 1 {
		t.Fatalf("DataObjectCount() = %v, want 1", got)
	}
	if !m.IsData() {
		t.Fatal("IsData() = false, want true")
	}
}

func TestToBytesFromBytesRoundTrip(t *testing.T) {
	var m Message
	m.SetType(TypeSourceCap)
	m.SetDataObjectCount(2)
	m.Data[0] = 0x11223344
	m.Data[1] = 0xaabbccdd

	var buf [MaxMessageBytes]byte
	n := m.ToBytes(buf[:])
	if n != 2+2*4 {
		t.Fatalf("ToBytes returned %d bytes, want %d", n, 2+2*4)
	}

	got, err := FromBytes(buf[:n])
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if got != m {
		t.Fatalf("FromBytes(ToBytes(m)) = %+v, want %+v", got, m)
	}
}

func TestFromBytesShortBuffer(t *testing.T) {
	if _, err := FromBytes(nil); err != ErrShortBuffer {
		t.Fatalf("FromBytes(nil) err = %v, want ErrShortBuffer", err)
	}
	var m Message
	m.SetDataObjectCount(3)
	var buf [2]byte
	buf[0] = byte(m.Header)
	buf[1] = byte(m.Header >> 8)
	if _, err := FromBytes(buf[:]); err != ErrShortBuffer {
		t.Fatalf("FromBytes(short) err = %v, want ErrShortBuffer", err)
	}
}

func TestFixedSupplyPDORoundTrip(t *testing.T) {
	p := NewFixedSupplyPDO()
	p.SetVoltage(5000)
	p.SetMaxCurrent(3000)
	p.SetDualRoleCapable(true)
	p.SetDataSwapCapable(true)

	if v := p.Voltage(); v != 5000 {
		t.Fatalf("Voltage() = %d, want 5000", v)
	}
	if c := p.MaxCurrent(); c != 3000 {
		t.Fatalf("MaxCurrent() = %d, want 3000", c)
	}
	if !p.DualRoleCapable() || !p.DataSwapCapable() {
		t.Fatal("expected dual-role and data-swap flags set")
	}

	generic := PDO(p)
	if generic.Type() != PDOTypeFixedSupply {
		t.Fatalf("Type() = %v, want PDOTypeFixedSupply", generic.Type())
	}
	if generic.MinMillivolts() != 5000 || generic.MaxMillivolts() != 5000 {
		t.Fatalf("Min/MaxMillivolts = %d/%d, want 5000/5000", generic.MinMillivolts(), generic.MaxMillivolts())
	}
}

func TestPPSPDOType(t *testing.T) {
	p := NewPPSPDO()
	p.SetMinVoltage(3300)
	p.SetMaxVoltage(11000)
	p.SetMaxCurrent(3000)

	generic := PDO(p)
	if generic.Type() != PDOTypePPS {
		t.Fatalf("Type() = %v, want PDOTypePPS", generic.Type())
	}
	if generic.MinMillivolts() != 3300 || generic.MaxMillivolts() != 11000 {
		t.Fatalf("Min/MaxMillivolts = %d/%d, want 3300/11000", generic.MinMillivolts(), generic.MaxMillivolts())
	}
}

func TestRequestDORoundTrip(t *testing.T) {
	var rdo RequestDO
	rdo.SetSelectedObjectPosition(2)
	rdo.SetFixedOperatingCurrent(1500)
	rdo.SetFixedMaxOperatingCurrent(1500)
	rdo.SetCapabilityMismatch(true)
	rdo.SetUSBCommunicationsCapable(true)
	rdo.SetNoSuspend(true)

	if p := rdo.SelectedObjectPosition(); p != 2 {
		t.Fatalf("SelectedObjectPosition() = %d, want 2", p)
	}
	if c := rdo.FixedOperatingCurrent(); c != 1500 {
		t.Fatalf("FixedOperatingCurrent() = %d, want 1500", c)
	}
	if !rdo.CapabilityMismatch() {
		t.Fatal("expected CapabilityMismatch flag set")
	}
}
