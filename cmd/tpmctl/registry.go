package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/typec-tpm/tpm/config"
)

// portsDir holds one JSON file per configured port, named <name>.json. The
// file carries the same property bag §4.2/config.Load expects plus two
// extra keys this CLI needs to find the hardware: i2c-bus (a periph bus
// name, "" selects the default) and i2c-address (the FUSB302's 7-bit
// address in hex, e.g. "0x22").
const defaultPortsDir = "ports"

// currentFile records the name selected by the last "tpmctl dev <name>",
// so a bare "tpmctl info" knows which port to report on.
const currentFile = ".tpmctl-current"

type portFile struct {
	I2CBus     string `json:"i2c-bus"`
	I2CAddress string `json:"i2c-address"`
}

func portsDir() string {
	if d := os.Getenv("TPMCTL_PORTS_DIR"); d != "" {
		return d
	}
	return defaultPortsDir
}

// listPorts returns the configured port names, sorted, derived from the
// .json files under portsDir().
func listPorts() ([]string, error) {
	entries, err := os.ReadDir(portsDir())
	if err != nil {
		return nil, fmt.Errorf("tpmctl: list ports: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(names)
	return names, nil
}

// loadPort reads and validates the config plus bus info for a named port.
func loadPort(name string) (config.PortConfig, portFile, error) {
	path := filepath.Join(portsDir(), name+".json")
	b, err := os.ReadFile(path)
	if err != nil {
		return config.PortConfig{}, portFile{}, fmt.Errorf("tpmctl: %s: %w", name, err)
	}
	cfg, err := config.Load(b)
	if err != nil {
		return config.PortConfig{}, portFile{}, fmt.Errorf("tpmctl: %s: %w", name, err)
	}
	var pf portFile
	if err := json.Unmarshal(b, &pf); err != nil {
		return config.PortConfig{}, portFile{}, fmt.Errorf("tpmctl: %s: %w", name, err)
	}
	return cfg, pf, nil
}

func setCurrent(name string) error {
	return os.WriteFile(filepath.Join(portsDir(), currentFile), []byte(name), 0o644)
}

func getCurrent() (string, error) {
	b, err := os.ReadFile(filepath.Join(portsDir(), currentFile))
	if err != nil {
		return "", fmt.Errorf("tpmctl: no current port selected; run `tpmctl dev <name>` first: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}
