// Package netinfo reports the controller's network identity and scans for
// nearby access points.
package netinfo

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/railyard/railyard/pkg/types"
)

// Link status codes, as reported by the CYW43 driver the mobile apps were
// written against.
const (
	LinkDown = 0
	LinkUp   = 3
)

// Reporter builds NetworkInfo for one interface.
type Reporter struct {
	Interface string
	Version   string

	// lookup is replaced in tests.
	lookup func(name string) (iface, error)
}

type iface struct {
	mac   net.HardwareAddr
	up    bool
	addrs []net.Addr
}

// NewReporter reports on the named interface.
func NewReporter(name, version string) *Reporter {
	return &Reporter{Interface: name, Version: version, lookup: systemLookup}
}

func systemLookup(name string) (iface, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return iface{}, err
	}
	addrs, err := ifi.Addrs()
	if err != nil {
		return iface{}, err
	}
	return iface{mac: ifi.HardwareAddr, up: ifi.Flags&net.FlagUp != 0, addrs: addrs}, nil
}

// Info returns the current network identity.
func (r *Reporter) Info() (types.NetworkInfo, error) {
	ifi, err := r.lookup(r.Interface)
	if err != nil {
		return types.NetworkInfo{}, fmt.Errorf("netinfo: %s: %w", r.Interface, err)
	}
	ip := firstIPv4(ifi.addrs)
	connected := ifi.up && ip != ""
	status := LinkDown
	if connected {
		status = LinkUp
	}
	if ip == "" {
		ip = "0.0.0.0"
	}
	mac := strings.ToLower(ifi.mac.String())
	return types.NetworkInfo{
		Hostname:  Hostname(mac),
		IP:        ip,
		MAC:       mac,
		Connected: pyBool(connected),
		Status:    strconv.Itoa(status),
		Version:   r.Version,
	}, nil
}

// Hostname derives the advertised host name from the last six hex digits of mac.
func Hostname(mac string) string {
	hex := strings.ReplaceAll(mac, ":", "")
	if len(hex) > 6 {
		hex = hex[len(hex)-6:]
	}
	return "Railyard" + hex
}

func firstIPv4(addrs []net.Addr) string {
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip4 := ip.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return ""
}

// pyBool keeps the "True"/"False" spelling existing app builds compare against.
func pyBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
