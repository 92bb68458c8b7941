// Command netmon is the privileged host-network sidecar: it runs outside the agent's own container (so it can reach
// netlink and the hotplug device tree without extra capabilities granted
// to the agent itself) and exposes host interface discovery, serial
// hotplug, and DHCP supervision to the agent over a Unix socket.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/edgefleet/orchestrator-agent/internal/dhcp"
	"github.com/edgefleet/orchestrator-agent/internal/minilog"
	"github.com/edgefleet/orchestrator-agent/internal/serial"
)

var (
	fSocket  = flag.String("sock", "/var/orchestrator/netmon.sock", "unix socket path to listen on")
	fLevel   = flag.String("level", "info", "log level: debug, info, warn, error")
	fLogfile = flag.String("logfile", "", "optional file to additionally log to")
)

func usage() {
	fmt.Println("netmon: host network/serial/DHCP sidecar for the orchestrator agent")
	fmt.Println("usage: netmon [option]...")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if err := minilog.Init(*fLevel, *fLogfile); err != nil {
		fmt.Fprintln(os.Stderr, "netmon: invalid log level:", err)
		os.Exit(1)
	}

	netw := newNetWatcher()
	serialw := serial.New()
	serialw.Enumerate()

	srv := newServer(*fSocket, netw, serialw, nil)
	dhcpMgr := dhcp.New(srv.emitDHCPUpdate)
	srv.dhcpMgr = dhcpMgr

	stop := make(chan struct{})

	dhcpMgr.Start()

	go func() {
		if err := netw.Watch(stop, srv.emitNetworkChange); err != nil {
			minilog.Error("netmon: network watch failed: %v", err)
		}
	}()
	go func() {
		if err := serialw.Run(stop, srv.emitDeviceChange); err != nil {
			minilog.Error("netmon: serial watch failed: %v", err)
		}
	}()

	go func() {
		if err := srv.Run(stop); err != nil {
			minilog.Fatal("netmon: server failed: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	minilog.Warn("netmon: shutting down")
	close(stop)
	dhcpMgr.Stop()
}
