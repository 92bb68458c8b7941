package runtime

import (
	"github.com/edgefleet/orchestrator-agent/internal/orcherr"
	"github.com/edgefleet/orchestrator-agent/internal/store"
	"github.com/edgefleet/orchestrator-agent/internal/subnet"
)

// validateCreateRequest rejects a create request before any operation
// state is touched: empty name, empty vnic_configs, any two vNICs
// resolving to the same (parent_interface, subnet_cidr) key, or any
// already-persisted MAC conflict.
func validateCreateRequest(runtimeName string, vnics []VNICConfig, existing *store.VNICStore) error {
	if runtimeName == "" {
		return orcherr.NewValidation("runtime name must not be empty")
	}
	if len(vnics) == 0 {
		return orcherr.NewValidation("vnic_configs must not be empty")
	}

	seen := map[string]string{}
	candidates := make([]store.VNIC, 0, len(vnics))
	for _, v := range vnics {
		name := v.Name
		if name == "" {
			name = "unnamed_vnic"
		}

		// A vNIC without an explicit subnet auto-detects it from the
		// sidecar's interface cache at create time, so the
		// duplicate-L2 key it would resolve to isn't known yet here;
		// two auto-detect vNICs on the same parent interface would
		// still collide once resolved, so key on the interface alone.
		var key string
		if v.Subnet == "" {
			key = v.ParentInterface + "|auto"
		} else {
			resolved, err := subnet.NetworkKey(v.ParentInterface, v.Subnet, v.Gateway)
			if err != nil {
				return orcherr.NewValidation("vNIC %q: %v", name, err)
			}
			key = resolved
		}
		if conflicting, dup := seen[key]; dup {
			return orcherr.NewValidation(
				"vNICs %q and %q would connect to the same MACVLAN network (%s); "+
					"Docker only allows one endpoint per container per network",
				conflicting, name, key)
		}
		seen[key] = name

		candidates = append(candidates, store.VNIC{
			Name:       name,
			MACAddress: v.MACAddress,
		})
	}

	conflict, mac, err := existing.CheckMACConflict(candidates)
	if err != nil {
		return err
	}
	if conflict {
		return orcherr.NewValidation("MAC address %s is already in use by another runtime", mac)
	}

	return nil
}
