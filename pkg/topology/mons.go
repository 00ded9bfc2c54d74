package topology

import (
	"fmt"
	"net"
	"strings"

	"github.com/cuemby/cephdeploy/pkg/types"
)

const (
	monV1Port = 6789
	monV2Port = 3300
)

// monEndpoints assigns a bind address to every monitor, in host order and
// then declaration order. Monitors sharing a host get consecutive ports.
func monEndpoints(hosts []types.Host, assignments []types.RoleAssignment, addrs AddressResolver, opts Options) ([]types.MonEndpoint, error) {
	v1Ports := make(map[string]int)
	v2Ports := make(map[string]int)

	var endpoints []types.MonEndpoint
	for _, h := range hosts {
		var mons []types.RoleAssignment
		for _, a := range assignments {
			if a.Host == h.Name && a.Role.Type == types.ServiceMon {
				mons = append(mons, a)
			}
		}
		if len(mons) == 0 {
			continue
		}

		ip, err := addrs.PeerAddress(h.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve address of %s: %w", h.Name, err)
		}

		for _, m := range mons {
			if _, ok := v1Ports[ip]; !ok {
				v1Ports[ip] = monV1Port
			} else {
				v1Ports[ip]++
			}

			var addr string
			switch {
			case opts.Msgr2:
				if _, ok := v2Ports[ip]; !ok {
					v2Ports[ip] = monV2Port
					addr = ip
				} else {
					if !opts.Addrvec {
						return nil, topologyErrorf("host %s runs more than one monitor, which needs addrvec addressing with msgr2", h.Name)
					}
					v2Ports[ip]++
					addr = fmt.Sprintf("[v2:%s,v1:%s]", hostPort(ip, v2Ports[ip]), hostPort(ip, v1Ports[ip]))
				}
			case opts.Addrvec:
				addr = fmt.Sprintf("[v1:%s]", hostPort(ip, v1Ports[ip]))
			default:
				addr = hostPort(ip, v1Ports[ip])
			}

			endpoints = append(endpoints, types.MonEndpoint{Role: m.Role, Host: h.Name, Addr: addr})
		}
	}
	return endpoints, nil
}

func hostPort(ip string, port int) string {
	return net.JoinHostPort(ip, fmt.Sprint(port))
}

// IsAddrvec reports whether a monitor address uses the vector format
func IsAddrvec(addr string) bool {
	return strings.HasPrefix(addr, "[")
}
