package topology

import (
	"strconv"
	"strings"

	"github.com/cuemby/cephdeploy/pkg/types"
)

// Placement builds the positional "<count>;<entry>;<entry>..." argument the
// orchestrator parses. Entries keep insertion order.
type Placement struct {
	entries []string
}

// Add appends a "<host>=<id>" entry
func (p *Placement) Add(host, id string) {
	p.entries = append(p.entries, host+"="+id)
}

// AddAddressed appends a "<host>:<addr>=<id>" entry
func (p *Placement) AddAddressed(host, addr, id string) {
	p.entries = append(p.entries, host+":"+addr+"="+id)
}

// Len returns the number of entries
func (p *Placement) Len() int {
	return len(p.entries)
}

// String renders the placement argument
func (p *Placement) String() string {
	return strconv.Itoa(len(p.entries)) + ";" + strings.Join(p.entries, ";")
}

// PlacementFor builds a host=id placement for assignments in order
func PlacementFor(assignments []types.RoleAssignment) *Placement {
	p := &Placement{}
	for _, a := range assignments {
		p.Add(a.Host, a.Role.ID)
	}
	return p
}

// DaemonAddTarget renders the "<host>:<addr>=<id>" argument of a single daemon add
func DaemonAddTarget(host, addr, id string) string {
	return host + ":" + addr + "=" + id
}
