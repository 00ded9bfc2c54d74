package topology

import (
	"strings"

	"github.com/cuemby/cephdeploy/pkg/types"
)

// DeviceAllocation binds one storage daemon to the raw device it will consume
type DeviceAllocation struct {
	Role   types.Role
	Host   string
	Device string
}

// ShortDevice is the device argument passed to the orchestrator. Logical
// volumes are passed as "vg/lv" rather than a /dev path.
func (d DeviceAllocation) ShortDevice() string {
	if strings.Contains(d.Device, "lv") && strings.Contains(d.Device, "vg") {
		return strings.TrimPrefix(d.Device, "/dev/")
	}
	return d.Device
}

// AllocateDevices assigns one device per storage daemon in increasing id
// order, taking the last available device of each host. The pool is not
// modified. A host that runs out of devices is a fatal AllocationError.
func AllocateDevices(assignments []types.RoleAssignment, pool map[string][]string) ([]DeviceAllocation, error) {
	osds, err := OSDOrder(assignments)
	if err != nil {
		return nil, err
	}

	free := make(map[string][]string, len(pool))
	for host, devs := range pool {
		free[host] = append([]string(nil), devs...)
	}

	allocs := make([]DeviceAllocation, 0, len(osds))
	for _, a := range osds {
		devs := free[a.Host]
		if len(devs) == 0 {
			return nil, allocationErrorf("host %s has no free device left for %s", a.Host, a.Role)
		}
		dev := devs[len(devs)-1]
		free[a.Host] = devs[:len(devs)-1]
		allocs = append(allocs, DeviceAllocation{Role: a.Role, Host: a.Host, Device: dev})
	}
	return allocs, nil
}
