package store

import (
	"encoding/json"
	"strings"

	"github.com/edgefleet/orchestrator-agent/internal/minilog"
)

// VNICStore wraps the keyed vnics.json file: save/load/load_all/delete
// plus a cross-runtime MAC index used to reject conflicts at create
// time.
type VNICStore struct {
	file *File
}

func NewVNICStore(path string) *VNICStore {
	return &VNICStore{file: NewFile(path)}
}

func (s *VNICStore) Save(runtimeName string, vnics []VNIC) error {
	if err := s.file.Save(runtimeName, vnics); err != nil {
		minilog.Error("store: failed to save vnic configs for %s: %v", runtimeName, err)
		return err
	}
	return nil
}

func (s *VNICStore) Load(runtimeName string) ([]VNIC, error) {
	var vnics []VNIC
	ok, err := s.file.Load(runtimeName, &vnics)
	if err != nil {
		minilog.Error("store: failed to load vnic configs for %s: %v", runtimeName, err)
		return nil, err
	}
	if !ok {
		return []VNIC{}, nil
	}
	return vnics, nil
}

func (s *VNICStore) LoadAll() (map[string][]VNIC, error) {
	out := map[string][]VNIC{}
	err := s.file.LoadAll(func(key string, raw json.RawMessage) error {
		var vnics []VNIC
		if err := json.Unmarshal(raw, &vnics); err != nil {
			return err
		}
		out[key] = vnics
		return nil
	})
	if err != nil {
		minilog.Error("store: failed to load all vnic configs: %v", err)
		return nil, err
	}
	return out, nil
}

func (s *VNICStore) Delete(runtimeName string) error {
	return s.file.Delete(runtimeName)
}

// UpdateVNICs performs an atomic backfill of an already-persisted vNIC
// list: the MAC enforcer fills in docker_network_name, and the agent's
// dhcp_update handler records dhcp_ip/dhcp_gateway. Reads are snapshots,
// writes go through this same lock, and these backfills are the only
// writes made to a vNIC list after create.
func (s *VNICStore) UpdateVNICs(runtimeName string, mutate func([]VNIC) []VNIC) error {
	return s.file.Update(runtimeName, func(existing json.RawMessage) (interface{}, bool, error) {
		var vnics []VNIC
		if existing != nil {
			if err := json.Unmarshal(existing, &vnics); err != nil {
				return nil, false, err
			}
		}
		next := mutate(vnics)
		return next, true, nil
	})
}

// AllMACAddresses returns every persisted MAC address, lowercased, across
// every runtime.
func (s *VNICStore) AllMACAddresses() ([]string, error) {
	all, err := s.LoadAll()
	if err != nil {
		return nil, err
	}
	var macs []string
	for _, vnics := range all {
		for _, v := range vnics {
			if v.MACAddress != "" {
				macs = append(macs, strings.ToLower(v.MACAddress))
			}
		}
	}
	return macs, nil
}

// CheckMACConflict reports whether any of the candidate vNICs' MACs are
// already in use by a persisted runtime.
func (s *VNICStore) CheckMACConflict(candidates []VNIC) (conflict bool, mac string, err error) {
	existing, err := s.AllMACAddresses()
	if err != nil {
		return false, "", err
	}
	inUse := make(map[string]bool, len(existing))
	for _, m := range existing {
		inUse[m] = true
	}
	for _, v := range candidates {
		if v.MACAddress == "" {
			continue
		}
		lower := strings.ToLower(v.MACAddress)
		if inUse[lower] {
			return true, v.MACAddress, nil
		}
	}
	return false, "", nil
}
