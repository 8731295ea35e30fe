package builder

import (
	"fmt"
	"net/netip"
)

// NetworkPlanner hands out IPv4 addresses from the project subnet. The first
// two host addresses are reserved for the container runtime gateway and DNS,
// so dynamic allocation starts at the third host. Static addresses are
// registered first so dynamic allocation skips them.
type NetworkPlanner struct {
	prefix    netip.Prefix
	broadcast netip.Addr
	used      map[netip.Addr]string
	next      netip.Addr
}

// NewNetworkPlanner parses the subnet and prepares the allocator.
func NewNetworkPlanner(cidr string) (*NetworkPlanner, error) {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return nil, NewConfigError("invalid subnet "+cidr, err)
	}
	prefix = prefix.Masked()
	if !prefix.Addr().Is4() {
		return nil, NewConfigError("subnet must be IPv4: "+cidr, nil)
	}
	if prefix.Bits() > 29 {
		return nil, NewConfigError(fmt.Sprintf("subnet %s has too few usable hosts", cidr), nil)
	}

	p := &NetworkPlanner{
		prefix:    prefix,
		broadcast: broadcastOf(prefix),
		used:      make(map[netip.Addr]string),
	}
	// Network address, then two reserved hosts.
	p.next = prefix.Addr().Next().Next().Next()
	return p, nil
}

// Subnet returns the normalized subnet in CIDR form.
func (p *NetworkPlanner) Subnet() string {
	return p.prefix.String()
}

// Reserve registers a statically configured address for a service.
func (p *NetworkPlanner) Reserve(service, address string) error {
	addr, err := netip.ParseAddr(address)
	if err != nil {
		return NewConfigError("invalid address "+address, err).WithService(service)
	}
	if !p.prefix.Contains(addr) {
		return NewConfigError(fmt.Sprintf("address %s is outside subnet %s", address, p.prefix), nil).WithService(service)
	}
	if addr == p.prefix.Addr() || addr == p.broadcast {
		return NewConfigError(fmt.Sprintf("address %s is not a usable host in %s", address, p.prefix), nil).WithService(service)
	}
	if owner, taken := p.used[addr]; taken {
		return NewConfigError(fmt.Sprintf("address %s already assigned to %s", address, owner), nil).WithService(service)
	}
	p.used[addr] = service
	return nil
}

// Allocate returns the next free dynamic address for a service.
func (p *NetworkPlanner) Allocate(service string) (string, error) {
	for addr := p.next; p.prefix.Contains(addr) && addr.Less(p.broadcast); addr = addr.Next() {
		if _, taken := p.used[addr]; taken {
			continue
		}
		p.used[addr] = service
		p.next = addr.Next()
		return addr.String(), nil
	}
	return "", NewConfigError(fmt.Sprintf("subnet %s exhausted while allocating %s", p.prefix, service), nil).WithService(service)
}

// broadcastOf computes the highest address of an IPv4 prefix.
func broadcastOf(prefix netip.Prefix) netip.Addr {
	a := prefix.Addr().As4()
	hostBits := 32 - prefix.Bits()
	v := uint32(a[0])<<24 | uint32(a[1])<<16 | uint32(a[2])<<8 | uint32(a[3])
	v |= (1 << hostBits) - 1
	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}
