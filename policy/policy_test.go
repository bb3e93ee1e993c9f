package policy

import (
	"testing"

	"github.com/typec-tpm/tpm/pdmsg"
)

func fixed(mv, ma uint16) pdmsg.PDO {
	p := pdmsg.NewFixedSupplyPDO()
	p.SetVoltage(mv)
	p.SetMaxCurrent(ma)
	return pdmsg.PDO(p)
}

func TestValidateCapabilities(t *testing.T) {
	cases := []struct {
		name string
		pdos []pdmsg.PDO
		want error
	}{
		{"empty", nil, ErrNoVsafe5V},
		{"first not 5v fixed", []pdmsg.PDO{fixed(9000, 3000)}, ErrVsafe5VNotFirst},
		{"single valid", []pdmsg.PDO{fixed(5000, 3000)}, nil},
		{"ascending fixed ok", []pdmsg.PDO{fixed(5000, 3000), fixed(9000, 2000), fixed(15000, 1000)}, nil},
		{"non-ascending fixed", []pdmsg.PDO{fixed(5000, 3000), fixed(9000, 2000), fixed(9000, 1000)}, ErrVoltageNotAscending},
		{"descending fixed", []pdmsg.PDO{fixed(5000, 3000), fixed(15000, 1000), fixed(9000, 2000)}, ErrVoltageNotAscending},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := ValidateCapabilities(c.pdos); got != c.want {
				t.Fatalf("ValidateCapabilities() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestValidateCapabilitiesTypeOrder(t *testing.T) {
	var batt pdmsg.BatteryPDO
	batt.SetMinVoltage(5000)
	batt.SetMaxVoltage(5000)
	batt.SetMaxPower(5000)
	battPDO := pdmsg.PDO(uint32(batt) | (uint32(pdmsg.PDOTypeBattery) << 30))

	pdos := []pdmsg.PDO{fixed(5000, 3000), battPDO, fixed(9000, 2000)}
	if err := ValidateCapabilities(pdos); err != ErrTypeNotInOrder {
		t.Fatalf("ValidateCapabilities() = %v, want ErrTypeNotInOrder", err)
	}
}

func TestSelectBestPower(t *testing.T) {
	source := []pdmsg.PDO{fixed(5000, 3000), fixed(9000, 2000), fixed(15000, 1000)}
	sink := []pdmsg.PDO{fixed(5000, 2000), fixed(9000, 2000)}

	sel, err := Select(source, sink, 10000)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	// 9V@2A = 18W beats 5V@3A = 15W; 15V source PDO has no matching sink PDO.
	if sel.SourceIndex != 1 {
		t.Fatalf("SourceIndex = %d, want 1", sel.SourceIndex)
	}
	if ma := sel.RDO.FixedMaxOperatingCurrent(); ma != 2000 {
		t.Fatalf("FixedMaxOperatingCurrent() = %d, want 2000", ma)
	}
	if ma := sel.RDO.FixedOperatingCurrent(); ma != 2000 {
		t.Fatalf("FixedOperatingCurrent() = %d, want 2000", ma)
	}
	if sel.RDO.CapabilityMismatch() {
		t.Fatal("unexpected capability mismatch")
	}
	if pos := sel.RDO.SelectedObjectPosition(); pos != 2 {
		t.Fatalf("SelectedObjectPosition() = %d, want 2", pos)
	}
}

func TestSelectCapabilityMismatch(t *testing.T) {
	source := []pdmsg.PDO{fixed(5000, 1000)}
	sink := []pdmsg.PDO{fixed(5000, 2000)}

	sel, err := Select(source, sink, 10000) // 10W operating power, best only gives 5W
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if !sel.RDO.CapabilityMismatch() {
		t.Fatal("expected capability mismatch flag")
	}
	if ma := sel.RDO.FixedOperatingCurrent(); ma != 2000 {
		t.Fatalf("FixedOperatingCurrent() = %d, want sink max 2000", ma)
	}
}

func TestSelectNoMatch(t *testing.T) {
	source := []pdmsg.PDO{fixed(20000, 1000)}
	sink := []pdmsg.PDO{fixed(5000, 3000)}
	if _, err := Select(source, sink, 0); err != ErrNoMatch {
		t.Fatalf("Select() err = %v, want ErrNoMatch", err)
	}
}

func TestCheckRequestRoundTrip(t *testing.T) {
	source := []pdmsg.PDO{fixed(5000, 3000), fixed(9000, 2000)}
	sink := []pdmsg.PDO{fixed(5000, 1500), fixed(9000, 1500)}

	sel, err := Select(source, sink, 0)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if err := CheckRequest(source, sel.RDO); err != nil {
		t.Fatalf("CheckRequest: %v", err)
	}
}

func TestCheckRequestRejectsOverCurrent(t *testing.T) {
	source := []pdmsg.PDO{fixed(5000, 1000)}
	var rdo pdmsg.RequestDO
	rdo.SetSelectedObjectPosition(1)
	rdo.SetFixedOperatingCurrent(2000)
	rdo.SetFixedMaxOperatingCurrent(2000)
	if err := CheckRequest(source, rdo); err != ErrInvalidRequest {
		t.Fatalf("CheckRequest() = %v, want ErrInvalidRequest", err)
	}
}

func TestCheckRequestRejectsBadPosition(t *testing.T) {
	source := []pdmsg.PDO{fixed(5000, 1000)}
	var rdo pdmsg.RequestDO
	rdo.SetSelectedObjectPosition(5)
	if err := CheckRequest(source, rdo); err != ErrInvalidRequest {
		t.Fatalf("CheckRequest() = %v, want ErrInvalidRequest", err)
	}
}
