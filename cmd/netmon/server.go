package main

import (
	"bufio"
	"encoding/json"
	"net"
	"os"
	"sync"

	"github.com/edgefleet/orchestrator-agent/internal/dhcp"
	"github.com/edgefleet/orchestrator-agent/internal/minilog"
	"github.com/edgefleet/orchestrator-agent/internal/netmonproto"
	"github.com/edgefleet/orchestrator-agent/internal/serial"
)

// server accepts the agent's Unix socket connection and speaks the
// LF-delimited JSON protocol internal/netmonproto defines: push
// discovery/change events, answer commands.
type server struct {
	socketPath string
	netw       *netWatcher
	serialw    *serial.Watcher
	dhcpMgr    *dhcp.Manager

	mu   sync.Mutex
	conn net.Conn
}

func newServer(socketPath string, netw *netWatcher, serialw *serial.Watcher, dhcpMgr *dhcp.Manager) *server {
	return &server{socketPath: socketPath, netw: netw, serialw: serialw, dhcpMgr: dhcpMgr}
}

// Run listens on the Unix socket, one client connection at a time, until
// stop is closed. The agent reconnects every ReconnectInterval, so a
// dropped connection just waits for the next Accept.
func (s *server) Run(stop <-chan struct{}) error {
	if err := os.RemoveAll(s.socketPath); err != nil {
		minilog.Warn("netmon: could not remove stale socket %s: %v", s.socketPath, err)
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return err
	}
	defer ln.Close()

	if err := os.Chmod(s.socketPath, 0o666); err != nil {
		minilog.Warn("netmon: could not chmod socket %s: %v", s.socketPath, err)
	}

	minilog.Info("netmon: listening on %s", s.socketPath)

	go func() {
		<-stop
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-stop:
				return nil
			default:
				minilog.Warn("netmon: accept error: %v", err)
				continue
			}
		}
		s.serveConn(conn, stop)
	}
}

func (s *server) serveConn(conn net.Conn, stop <-chan struct{}) {
	minilog.Info("netmon: agent connected")

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	defer func() {
		conn.Close()
		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.mu.Unlock()
		minilog.Warn("netmon: agent disconnected")
	}()

	s.pushDiscovery()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-stop:
			return
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		s.handleCommand(line)
	}
}

func (s *server) pushDiscovery() {
	s.emitEnvelope(netmonproto.TypeNetworkDiscovery, netmonproto.NetworkDiscovery{
		Interfaces: s.netw.Enumerate(),
	})
	s.emitEnvelope(netmonproto.TypeDeviceDiscovery, netmonproto.DeviceDiscovery{
		Devices: s.serialw.Enumerate(),
	})
}

func (s *server) emitEnvelope(typ string, data interface{}) {
	raw, err := json.Marshal(data)
	if err != nil {
		minilog.Error("netmon: failed to encode %s event: %v", typ, err)
		return
	}
	s.write(netmonproto.Envelope{Type: typ, Data: raw})
}

func (s *server) emitDHCPUpdate(upd netmonproto.DHCPUpdate) {
	s.emitEnvelope(netmonproto.TypeDHCPUpdate, upd)
}

func (s *server) emitNetworkChange(ch netmonproto.NetworkChange) {
	s.emitEnvelope(netmonproto.TypeNetworkChange, ch)
}

func (s *server) emitDeviceChange(ch netmonproto.DeviceChange) {
	s.emitEnvelope(netmonproto.TypeDeviceChange, ch)
}

func (s *server) write(v interface{}) {
	line, err := json.Marshal(v)
	if err != nil {
		minilog.Error("netmon: failed to encode outgoing message: %v", err)
		return
	}
	line = append(line, '\n')

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return
	}
	if _, err := conn.Write(line); err != nil {
		minilog.Warn("netmon: write failed: %v", err)
	}
}

func (s *server) handleCommand(line []byte) {
	var cmd netmonproto.Command
	if err := json.Unmarshal(line, &cmd); err != nil {
		minilog.Warn("netmon: could not decode command: %v", err)
		return
	}

	result, err := s.dispatchCommand(cmd)
	resp := netmonproto.CommandResponse{ID: cmd.ID, OK: err == nil}
	if err != nil {
		resp.Error = err.Error()
	} else if result != nil {
		raw, encodeErr := json.Marshal(result)
		if encodeErr != nil {
			resp.OK = false
			resp.Error = encodeErr.Error()
		} else {
			resp.Result = raw
		}
	}
	s.write(resp)
}

func (s *server) dispatchCommand(cmd netmonproto.Command) (interface{}, error) {
	switch cmd.Command {
	case netmonproto.CmdStartDHCP:
		var p netmonproto.StartDHCPParams
		if err := json.Unmarshal(cmd.Params, &p); err != nil {
			return nil, err
		}
		return nil, s.dhcpMgr.StartDHCP(p.ContainerName, p.VNICName, p.MACAddress, p.ContainerPID)

	case netmonproto.CmdStopDHCP:
		var p netmonproto.StopDHCPParams
		if err := json.Unmarshal(cmd.Params, &p); err != nil {
			return nil, err
		}
		key := p.ContainerName + ":" + p.VNICName
		return nil, s.dhcpMgr.StopDHCP(key)

	case netmonproto.CmdGetDHCPStatus:
		return s.dhcpMgr.GetStatus(), nil

	case netmonproto.CmdGetDeviceStatus:
		return s.serialw.Snapshot(), nil

	case netmonproto.CmdDiscoverDevices:
		return s.serialw.Enumerate(), nil

	default:
		return nil, errUnknownCommand(cmd.Command)
	}
}

type errUnknownCommand string

func (e errUnknownCommand) Error() string { return "unknown command: " + string(e) }
