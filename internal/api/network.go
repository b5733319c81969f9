package api

import (
	"errors"
	"net"
)

// ErrNoLANAddress is returned when no interface has a usable IPv4 address
var ErrNoLANAddress = errors.New("no non-loopback IPv4 address found")

// LANAddress returns the first non-loopback IPv4 address of an interface
// that is up
func LANAddress() (net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		if ip := firstIPv4(addrs); ip != nil {
			return ip, nil
		}
	}
	return nil, ErrNoLANAddress
}

func firstIPv4(addrs []net.Addr) net.IP {
	for _, addr := range addrs {
		var ip net.IP
		switch v := addr.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip == nil || ip.IsLoopback() {
			continue
		}
		if ip4 := ip.To4(); ip4 != nil {
			return ip4
		}
	}
	return nil
}
