// Command tpmctl is the operator CLI collaborator of §6: list configured
// ports, select one as current, and dump its state name / voltage / current.
// It never touches the policy engine's internals directly — only
// (*tcpm.Port).StateName/GetVoltage/GetCurrent, per §6's "consumes only
// get_voltage, get_current, get_state_name".
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/typec-tpm/tpm/pci/fusb302"
	"github.com/typec-tpm/tpm/tcpm"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return exitUsage
	}
	switch args[0] {
	case "list":
		return runList(args[1:])
	case "dev":
		return runDev(args[1:])
	case "info":
		return runInfo(args[1:])
	case "-h", "--help", "help":
		usage()
		return exitOK
	default:
		fmt.Fprintf(os.Stderr, "tpmctl: unknown command %q\n", args[0])
		usage()
		return exitUsage
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: tpmctl <list|dev [name]|info [-port name]>")
}

func runList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	names, err := listPorts()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitError
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return exitOK
}

func runDev(args []string) int {
	fs := flag.NewFlagSet("dev", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() == 0 {
		cur, err := getCurrent()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitError
		}
		fmt.Println(cur)
		return exitOK
	}
	name := fs.Arg(0)
	names, err := listPorts()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitError
	}
	found := false
	for _, n := range names {
		if n == name {
			found = true
			break
		}
	}
	if !found {
		fmt.Fprintf(os.Stderr, "tpmctl: no such port %q\n", name)
		return exitError
	}
	if err := setCurrent(name); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitError
	}
	fmt.Println(name)
	return exitOK
}

func runInfo(args []string) int {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	portFlag := fs.String("port", "", "port name (default: the one selected by `tpmctl dev`)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	name := *portFlag
	if name == "" {
		var err error
		name, err = getCurrent()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitError
		}
	}

	cfg, pf, err := loadPort(name)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitError
	}

	if _, err := host.Init(); err != nil {
		fmt.Fprintln(os.Stderr, fmt.Errorf("tpmctl: host init: %w", err))
		return exitError
	}
	bus, err := i2creg.Open(pf.I2CBus)
	if err != nil {
		fmt.Fprintln(os.Stderr, fmt.Errorf("tpmctl: open i2c bus %q: %w", pf.I2CBus, err))
		return exitError
	}
	defer bus.Close()

	addr, err := strconv.ParseUint(pf.I2CAddress, 0, 8)
	if err != nil {
		fmt.Fprintln(os.Stderr, fmt.Errorf("tpmctl: %s: invalid i2c-address %q: %w", name, pf.I2CAddress, err))
		return exitError
	}

	pc := fusb302.New(bus, fusb302.MPN(addr))
	port, err := tcpm.Init(cfg, pc)
	if err != nil {
		fmt.Fprintln(os.Stderr, fmt.Errorf("tpmctl: %s: %w", name, err))
		return exitError
	}

	fmt.Printf("state:   %s\n", port.StateName())
	fmt.Printf("voltage: %dmV\n", port.GetVoltage())
	fmt.Printf("current: %dmA\n", port.GetCurrent())
	return exitOK
}
