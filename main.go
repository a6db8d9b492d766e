package main

import (
	"fmt"
	"os"

	"github.com/lookbusy1344/arm-monitor/config"
	"github.com/lookbusy1344/arm-monitor/monitor"
	"github.com/lookbusy1344/arm-monitor/vm"
)

// Version information - can be overridden at build time with:
// go build -ldflags "-X main.Version=v1.2.3"
var (
	Version = "dev"
	Commit  = "unknown"
)

// main is the core's entire CLI surface (spec.md §6.5): no flags, no
// subcommands. It loads tunables, builds a VM in the reset state, and
// drives the monitor protocol on stdin/stdout until the peer closes the
// command pipe (§6.6).
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "arm-monitor %s (%s): config load failed: %v\n", Version, Commit, err)
		os.Exit(1)
	}

	v := vm.NewVMWithOptions(vm.Options{
		MemBytes:       cfg.Memory.Bytes,
		NumBreakpoints: cfg.Traps.Breakpoints,
		NumWatchpoints: cfg.Traps.Watchpoints,
		TubeAddress:    cfg.Memory.TubeAddress,
	})

	srv := monitor.NewServer(v, os.Stdin, os.Stdout)
	if err := srv.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "arm-monitor: %v\n", err)
		os.Exit(1)
	}
}
