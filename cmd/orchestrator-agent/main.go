// Command orchestrator-agent is the edge orchestrator agent: it
// supervises a fleet of PLC runtime containers, bridges them to the
// remote cloud controller over a control channel, and reconciles
// network/MAC drift against the netmon sidecar's observed state.
// Package-level flag vars, log.Init() first, and a SIGTERM/SIGINT
// wait loop with an explicit teardown.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/edgefleet/orchestrator-agent/internal/container"
	"github.com/edgefleet/orchestrator-agent/internal/controlchannel"
	"github.com/edgefleet/orchestrator-agent/internal/dispatch"
	"github.com/edgefleet/orchestrator-agent/internal/ifcache"
	"github.com/edgefleet/orchestrator-agent/internal/macenforcer"
	"github.com/edgefleet/orchestrator-agent/internal/minilog"
	"github.com/edgefleet/orchestrator-agent/internal/netmonclient"
	"github.com/edgefleet/orchestrator-agent/internal/netmonproto"
	"github.com/edgefleet/orchestrator-agent/internal/opstate"
	"github.com/edgefleet/orchestrator-agent/internal/reconciler"
	"github.com/edgefleet/orchestrator-agent/internal/runtime"
	"github.com/edgefleet/orchestrator-agent/internal/selfid"
	"github.com/edgefleet/orchestrator-agent/internal/serialsync"
	"github.com/edgefleet/orchestrator-agent/internal/store"
	"github.com/edgefleet/orchestrator-agent/internal/usage"
)

var (
	fLevel   = flag.String("level", "INFO", "log level: DEBUG, INFO, WARNING, ERROR, CRITICAL")
	fDataDir = flag.String("data-dir", "/var/orchestrator/data", "directory for persisted vnic/serial/client state")
	fSock    = flag.String("sock", "/var/orchestrator/netmon.sock", "netmon sidecar unix socket path")

	fControlFamily = flag.String("control-family", "tcp", "[tcp,unix] family to dial the control channel on")
	fControlAddr   = flag.String("control-addr", "127.0.0.1:9443", "control channel address (host:port for tcp, path for unix)")

	fSampleInterval = flag.Duration("sample-interval", 5*time.Second, "host CPU/memory sampling interval")
)

const banner = `orchestrator-agent: edge runtime lifecycle and network-attachment engine`

func printUsage() {
	fmt.Println(banner)
	fmt.Println("usage: orchestrator-agent [option]...")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if err := minilog.Init(normalizeLevel(*fLevel), ""); err != nil {
		fmt.Fprintln(os.Stderr, "orchestrator-agent: invalid log level:", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(*fDataDir, 0o755); err != nil {
		minilog.Fatal("orchestrator-agent: could not create data dir %s: %v", *fDataDir, err)
	}

	driver, err := container.New()
	if err != nil {
		minilog.Fatal("orchestrator-agent: could not connect to container daemon: %v", err)
	}

	vnics := store.NewVNICStore(filepath.Join(*fDataDir, "vnics.json"))
	serialStore := store.NewSerialStore(filepath.Join(*fDataDir, "serial_configs.json"))
	clients := store.NewClientsStore(clientsFilePath(*fDataDir))
	ops := opstate.New()
	ifaces := ifcache.New()
	usageMgr := usage.NewManager()
	devices := netmonclient.NewDeviceCache()
	selfName := selfid.New(driver)

	recon := reconciler.New(driver, vnics)
	serialSync := serialsync.New(serialStore)
	sidecar := netmonclient.New(*fSock, ifaces, devices, dhcpUpdateHandler(vnics))
	sidecar.OnNetworkChange(func(ch netmonproto.NetworkChange) {
		recon.HandleChange(context.Background(), ch)
	})
	sidecar.OnDeviceChange(serialSync.HandleChange)
	sidecar.OnDeviceDiscovery(serialSync.SeedFromDiscovery)

	mgr := runtime.NewManager(vnics, serialStore, clients, ops, driver, ifaces, usageMgr, sidecar, selfName)

	d := dispatch.New()
	dispatch.RegisterAll(d, dispatch.Deps{
		Runtime: mgr,
		SelfDestruct: &dispatch.SelfDestructer{
			Runtime: mgr,
			Driver:  driver,
		},
	})

	cc := controlchannel.New(controlchannel.Config{Family: *fControlFamily, Addr: *fControlAddr}, d)

	enforcer := macenforcer.New(driver, vnics)
	sampler := usage.NewSampler(usageMgr, *fSampleInterval)
	hb := &dispatch.Heartbeat{Send: cc.SendTopic}

	agentID := selfDeviceID(selfName)
	usageMgr.AddDevice(agentID)

	stop := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())

	go sidecar.Run(stop)
	go enforcer.Run(ctx)
	go sampler.Run(agentID, stop)
	go hb.Run(stop)
	go cc.Run(ctx, stop)

	minilog.Info("orchestrator-agent: started, dialing control channel at %s", *fControlAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	minilog.Warn("orchestrator-agent: shutting down")
	cancel()
	close(stop)
}

// dhcpUpdateHandler persists each lease acquisition onto the matching
// persisted vNIC so subsequent get_device_status reads see the current
// DHCP-assigned address. The network-name overlay
// (exact docker_network_name match, else macvlan_{parent} prefix
// fallback) is applied at read time; this handler only needs to persist
// ip/gateway keyed by vnic name.
func dhcpUpdateHandler(vnics *store.VNICStore) func(netmonproto.DHCPUpdate) {
	return func(upd netmonproto.DHCPUpdate) {
		minilog.Info("orchestrator-agent: dhcp_update for %s:%s -> %s", upd.ContainerName, upd.VNICName, upd.IP)

		err := vnics.UpdateVNICs(upd.ContainerName, func(vs []store.VNIC) []store.VNIC {
			for i := range vs {
				if vs[i].Name != upd.VNICName {
					continue
				}
				vs[i].DHCPIP = upd.IP
				vs[i].DHCPGateway = upd.Gateway
			}
			return vs
		})
		if err != nil {
			minilog.Warn("orchestrator-agent: failed to persist dhcp_update for %s:%s: %v", upd.ContainerName, upd.VNICName, err)
		}
	}
}

// clientsFilePath honors the CLIENTS_FILE environment variable,
// falling back to a file under the data directory.
func clientsFilePath(dataDir string) string {
	if v := os.Getenv("CLIENTS_FILE"); v != "" {
		return v
	}
	return filepath.Join(dataDir, "clients.json")
}

// selfDeviceID resolves the agent's own id for usage sampling, falling
// back to a fixed sentinel when self-detection hasn't succeeded yet
// (get_consumption_orchestrator does the same fallback independently).
func selfDeviceID(selfName func() (string, bool)) string {
	if name, ok := selfName(); ok {
		return name
	}
	return "orchestrator-agent"
}

// normalizeLevel maps the CLI vocabulary {DEBUG, INFO, WARNING,
// ERROR, CRITICAL} onto minilog's own {DEBUG, INFO, WARN, ERROR, FATAL}
// level names.
func normalizeLevel(level string) string {
	switch level {
	case "WARNING":
		return "WARN"
	case "CRITICAL":
		return "FATAL"
	default:
		return level
	}
}
