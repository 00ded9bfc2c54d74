package topology

import (
	"fmt"

	"github.com/cuemby/cephdeploy/pkg/config"
)

// TopologyError reports a declared topology the cluster cannot be built from
type TopologyError struct {
	Reason string
}

func (e *TopologyError) Error() string {
	return "topology error: " + e.Reason
}

// Unwrap classifies topology errors as configuration errors
func (e *TopologyError) Unwrap() error {
	return config.ErrConfiguration
}

// AllocationError reports a broken instance-id or device rule
type AllocationError struct {
	Reason string
}

func (e *AllocationError) Error() string {
	return "allocation error: " + e.Reason
}

func topologyErrorf(format string, args ...interface{}) error {
	return &TopologyError{Reason: fmt.Sprintf(format, args...)}
}

func allocationErrorf(format string, args ...interface{}) error {
	return &AllocationError{Reason: fmt.Sprintf(format, args...)}
}
