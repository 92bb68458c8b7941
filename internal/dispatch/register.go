package dispatch

import (
	"context"

	"github.com/edgefleet/orchestrator-agent/internal/contract"
	"github.com/edgefleet/orchestrator-agent/internal/runtime"
)

// selfDestructer is satisfied by *SelfDestructer; kept as an interface so
// tests can substitute a fake without touching a real container driver.
type selfDestructer interface {
	Run(ctx context.Context) error
}

// Deps bundles everything a topic handler factory needs. It is built
// once in cmd/orchestrator-agent and threaded through RegisterAll.
type Deps struct {
	Runtime      *runtime.Manager
	SelfDestruct selfDestructer
	OnConnect    func()
}

var vnicConfigSchema = contract.Schema{
	"name":             contract.String,
	"parent_interface": contract.String,
	"network_mode":     contract.String,
	"ip":               contract.Optional(contract.String),
	"subnet":           contract.Optional(contract.String),
	"gateway":          contract.Optional(contract.String),
	"mac":              contract.Optional(contract.String),
}

var serialConfigSchema = contract.Schema{
	"name":           contract.String,
	"device_id":      contract.String,
	"container_path": contract.String,
	"baud_rate":      contract.Optional(contract.Number),
}

var deviceSchema = contract.Merge(contract.BaseMessage, contract.Schema{
	"device_id": contract.String,
})

var periodSchema = contract.Schema{
	"cpuPeriod":    contract.Optional(contract.String),
	"memoryPeriod": contract.Optional(contract.String),
}

// RegisterAll builds the full topic table on d: one Register call per
// topic, each carrying its own contract and handler.
func RegisterAll(d *Dispatcher, deps Deps) {
	d.Register(Topic{
		Name:     "connect",
		Contract: nil,
		Handler:  connectHandler(deps),
		Reply:    false,
	})
	d.Register(Topic{
		Name:     "disconnect",
		Contract: nil,
		Handler:  disconnectHandler(),
		Reply:    false,
	})
	d.Register(Topic{
		Name:     "connection_info",
		Contract: nil,
		Handler:  connectionInfoHandler(),
		Reply:    false,
	})

	d.Register(Topic{
		Name: "create_new_runtime",
		Contract: contract.Merge(contract.BaseMessage, contract.Schema{
			"container_name": contract.String,
			"vnic_configs":   contract.List(vnicConfigSchema),
			"serial_ports":   contract.Optional(contract.List(serialConfigSchema)),
		}),
		Handler: createNewRuntimeHandler(deps),
		Reply:   true,
	})
	d.Register(Topic{
		Name:     "delete_device",
		Contract: deviceSchema,
		Handler:  deleteDeviceHandler(deps),
		Reply:    true,
	})
	d.Register(Topic{
		Name:     "delete_orchestrator",
		Contract: contract.BaseMessage,
		Handler:  deleteOrchestratorHandler(deps),
		Reply:    true,
	})

	d.Register(Topic{
		Name:     "start_device",
		Contract: deviceSchema,
		Handler:  passthroughAck("start_device"),
		Reply:    true,
	})
	d.Register(Topic{
		Name:     "stop_device",
		Contract: deviceSchema,
		Handler:  passthroughAck("stop_device"),
		Reply:    true,
	})
	d.Register(Topic{
		Name:     "restart_device",
		Contract: deviceSchema,
		Handler:  passthroughAck("restart_device"),
		Reply:    true,
	})

	d.Register(Topic{
		Name:     "get_device_status",
		Contract: deviceSchema,
		Handler:  getDeviceStatusHandler(deps),
		Reply:    true,
	})
	d.Register(Topic{
		Name:     "get_host_interfaces",
		Contract: contract.BaseMessage,
		Handler:  getHostInterfacesHandler(deps),
		Reply:    true,
	})
	d.Register(Topic{
		Name:     "get_serial_devices",
		Contract: contract.BaseMessage,
		Handler:  getSerialDevicesHandler(deps),
		Reply:    true,
	})

	d.Register(Topic{
		Name:     "get_consumption_orchestrator",
		Contract: contract.Merge(contract.BaseMessage, periodSchema),
		Handler:  getConsumptionOrchestratorHandler(deps),
		Reply:    true,
	})
	d.Register(Topic{
		Name:     "get_consumption_device",
		Contract: contract.Merge(deviceSchema, periodSchema),
		Handler:  getConsumptionDeviceHandler(deps),
		Reply:    true,
	})

	d.Register(Topic{
		Name: "run_command",
		Contract: contract.Merge(deviceSchema, contract.Schema{
			"method": contract.String,
			"api":    contract.String,
			"port":   contract.Optional(contract.Number),
		}),
		Handler: runCommandHandler(deps),
		Reply:   true,
	})
}
