package capture

import (
	"fmt"
	"net"
	"strings"

	"github.com/google/gopacket/pcap"
)

// InterfaceInfo represents a capture-capable network interface.
type InterfaceInfo struct {
	Name        string   // System interface name (e.g., "en0", "eth0", "\Device\NPF_{GUID}")
	DisplayName string   // Human-readable name
	Description string
	Addresses   []string
	IsLoopback  bool
}

// ListInterfaces returns all interfaces libpcap can open.
func ListInterfaces() ([]InterfaceInfo, error) {
	devices, err := pcap.FindAllDevs()
	if err != nil {
		return nil, fmt.Errorf("find network devices: %w", err)
	}

	var interfaces []InterfaceInfo
	for _, device := range devices {
		info := InterfaceInfo{
			Name:        device.Name,
			DisplayName: device.Name,
			Description: device.Description,
		}
		for _, addr := range device.Addresses {
			if addr.IP == nil {
				continue
			}
			info.Addresses = append(info.Addresses, addr.IP.String())
			if addr.IP.IsLoopback() {
				info.IsLoopback = true
			}
		}
		if info.Description != "" && isGUIDName(info.Name) {
			info.DisplayName = info.Description
		}
		interfaces = append(interfaces, info)
	}
	return interfaces, nil
}

// isGUIDName checks if a name looks like a Windows GUID-style interface name.
func isGUIDName(name string) bool {
	return len(name) > 20 && (strings.Contains(name, "{") || strings.HasPrefix(name, "\\Device\\"))
}

// DetectInterfaceForTarget returns the interface whose address the kernel
// would use as the source when talking to host.
func DetectInterfaceForTarget(host string) (string, error) {
	ip, err := resolveIP(host)
	if err != nil {
		return "", err
	}

	interfaces, err := ListInterfaces()
	if err != nil {
		return "", err
	}
	if ip.IsLoopback() {
		return pickLoopback(interfaces)
	}

	local, err := sourceAddrFor(ip)
	if err != nil {
		return "", err
	}
	if name := matchAddress(interfaces, local); name != "" {
		return name, nil
	}
	return "", fmt.Errorf("no capture interface found with address %s", local)
}

func resolveIP(host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return ip, nil
	}
	addrs, err := net.LookupIP(host)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("resolve %s: no addresses", host)
	}
	return addrs[0], nil
}

// sourceAddrFor asks the routing table for the local address via a
// connected UDP socket. No packet is sent.
func sourceAddrFor(ip net.IP) (string, error) {
	conn, err := net.Dial("udp", net.JoinHostPort(ip.String(), "9"))
	if err != nil {
		return "", fmt.Errorf("route lookup for %s: %w", ip, err)
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}

func matchAddress(interfaces []InterfaceInfo, addr string) string {
	for _, iface := range interfaces {
		for _, a := range iface.Addresses {
			if a == addr {
				return iface.Name
			}
		}
	}
	return ""
}

func pickLoopback(interfaces []InterfaceInfo) (string, error) {
	for _, iface := range interfaces {
		if iface.IsLoopback {
			return iface.Name, nil
		}
	}
	commonNames := []string{"lo0", "lo", "Loopback Pseudo-Interface 1"}
	for _, name := range commonNames {
		for _, iface := range interfaces {
			if iface.Name == name {
				return name, nil
			}
		}
	}
	return "", fmt.Errorf("no loopback interface found")
}
