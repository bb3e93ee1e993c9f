package config

import (
	"encoding/json"
	"testing"

	tpm "github.com/typec-tpm/tpm"
)

func TestLoadSourceOnly(t *testing.T) {
	cfg, err := Load(mustJSON(t, map[string]any{
		"power-role":  "source",
		"source-pdos": []uint32{fixedPDOWord(5000, 3000)},
	}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TypeCType != tpm.PortTypeSource {
		t.Fatalf("TypeCType = %v, want source", cfg.TypeCType)
	}
	if len(cfg.SourcePDO) != 1 {
		t.Fatalf("len(SourcePDO) = %d, want 1", len(cfg.SourcePDO))
	}
}

func TestLoadSinkRequiresOperatingPower(t *testing.T) {
	_, err := Load(mustJSON(t, map[string]any{
		"power-role": "sink",
		"sink-pdos":  []uint32{fixedPDOWord(5000, 3000)},
	}))
	if err == nil {
		t.Fatal("expected error for missing op-sink-microwatt")
	}
}

func TestLoadDRPRequiresTryRole(t *testing.T) {
	_, err := Load(mustJSON(t, map[string]any{
		"power-role":        "dual",
		"source-pdos":       []uint32{fixedPDOWord(5000, 3000)},
		"sink-pdos":         []uint32{fixedPDOWord(5000, 2000)},
		"op-sink-microwatt": 10_000_000,
	}))
	if err == nil {
		t.Fatal("expected error for missing try-power-role on a DRP port")
	}
}

func TestLoadTruncatesExcessPDOs(t *testing.T) {
	words := make([]uint32, 10)
	for i := range words {
		words[i] = fixedPDOWord(uint16(5000+i*1000), 1000)
	}
	cfg, err := Load(mustJSON(t, map[string]any{
		"power-role":  "source",
		"source-pdos": words,
	}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.SourcePDO) != maxPDOs {
		t.Fatalf("len(SourcePDO) = %d, want %d", len(cfg.SourcePDO), maxPDOs)
	}
}

func TestLoadRejectsBadRole(t *testing.T) {
	_, err := Load(mustJSON(t, map[string]any{"power-role": "bogus"}))
	if err == nil {
		t.Fatal("expected error for unrecognized power-role")
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

// fixedPDOWord builds the raw uint32 for a fixed-supply PDO without pulling
// in the pdmsg package's setters twice over, to keep config tests focused
// on the loader rather than the codec.
func fixedPDOWord(mv, ma uint16) uint32 {
	return (uint32(mv/50) << 10) | uint32(ma/10)
}
