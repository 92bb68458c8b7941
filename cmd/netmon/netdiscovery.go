package main

import (
	"sync"
	"time"

	"github.com/vishvananda/netlink"

	"github.com/edgefleet/orchestrator-agent/internal/minilog"
	"github.com/edgefleet/orchestrator-agent/internal/netmonproto"
)

// debounceWindow coalesces bursts of netlink link/address updates into a
// single network_change event per interface, matching the 3s debounce
// netmonproto.NetworkChange's doc comment describes.
const debounceWindow = 3 * time.Second

// netWatcher enumerates host interfaces over netlink and watches for
// address changes, then feeds the debounced per-interface change
// stream to the socket server.
type netWatcher struct {
	mu      sync.Mutex
	pending map[string]*time.Timer
}

func newNetWatcher() *netWatcher {
	return &netWatcher{pending: make(map[string]*time.Timer)}
}

// Enumerate lists every non-loopback interface with at least one IPv4
// address, for the once-per-connect network_discovery push.
func (w *netWatcher) Enumerate() []netmonproto.InterfaceInfo {
	links, err := netlink.LinkList()
	if err != nil {
		minilog.Error("netmon: netlink.LinkList failed: %v", err)
		return nil
	}

	var out []netmonproto.InterfaceInfo
	for _, link := range links {
		info, ok := describeLink(link)
		if !ok {
			continue
		}
		out = append(out, info)
	}
	return out
}

func describeLink(link netlink.Link) (netmonproto.InterfaceInfo, bool) {
	attrs := link.Attrs()
	if attrs == nil || attrs.Name == "lo" {
		return netmonproto.InterfaceInfo{}, false
	}

	addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
	if err != nil || len(addrs) == 0 {
		return netmonproto.InterfaceInfo{}, false
	}

	info := netmonproto.InterfaceInfo{
		Interface: attrs.Name,
		OperState: attrs.OperState.String(),
		Timestamp: float64(time.Now().Unix()),
	}
	for _, a := range addrs {
		info.IPv4Addresses = append(info.IPv4Addresses, toIPv4Address(a))
	}
	info.Gateway = gatewayFor(link)
	return info, true
}

func toIPv4Address(a netlink.Addr) netmonproto.IPv4Address {
	ones, _ := a.IPNet.Mask.Size()
	network := a.IPNet.IP.Mask(a.IPNet.Mask)
	return netmonproto.IPv4Address{
		Address:        a.IP.String(),
		PrefixLen:      ones,
		Subnet:         a.IPNet.String(),
		NetworkAddress: network.String(),
	}
}

// gatewayFor returns the first default route's gateway for link, or ""
// if none is configured.
func gatewayFor(link netlink.Link) string {
	routes, err := netlink.RouteList(link, netlink.FAMILY_V4)
	if err != nil {
		return ""
	}
	for _, r := range routes {
		if r.Dst == nil && r.Gw != nil {
			return r.Gw.String()
		}
	}
	return ""
}

// Watch subscribes to netlink address updates and emits a debounced
// network_change event per interface once updates settle, until stop is
// closed.
func (w *netWatcher) Watch(stop <-chan struct{}, onChange func(netmonproto.NetworkChange)) error {
	updates := make(chan netlink.AddrUpdate)
	done := make(chan struct{})
	if err := netlink.AddrSubscribe(updates, done); err != nil {
		return err
	}
	defer close(done)

	for {
		select {
		case <-stop:
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			w.scheduleEmit(upd.LinkIndex, stop, onChange)
		}
	}
}

func (w *netWatcher) scheduleEmit(linkIndex int, stop <-chan struct{}, onChange func(netmonproto.NetworkChange)) {
	link, err := netlink.LinkByIndex(linkIndex)
	if err != nil {
		return
	}
	name := link.Attrs().Name
	if name == "lo" {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[name]; ok {
		t.Stop()
	}
	w.pending[name] = time.AfterFunc(debounceWindow, func() {
		w.mu.Lock()
		delete(w.pending, name)
		w.mu.Unlock()

		select {
		case <-stop:
			return
		default:
		}

		current, err := netlink.LinkByName(name)
		if err != nil {
			onChange(netmonproto.NetworkChange{Interface: name})
			return
		}
		info, ok := describeLink(current)
		if !ok {
			onChange(netmonproto.NetworkChange{Interface: name})
			return
		}
		onChange(netmonproto.NetworkChange{
			Interface:     info.Interface,
			IPv4Addresses: info.IPv4Addresses,
			Gateway:       info.Gateway,
		})
	})
}
