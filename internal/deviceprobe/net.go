package deviceprobe

import "net"

// interfacesHardwareAddrs returns the non-empty MAC addresses of the host's
// network interfaces, used as the last fallback tier before a random UUID.
func interfacesHardwareAddrs() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var addrs []string
	for _, iface := range ifaces {
		if addr := iface.HardwareAddr.String(); addr != "" {
			addrs = append(addrs, addr)
		}
	}
	return addrs, nil
}
