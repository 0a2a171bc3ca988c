package wifi

import (
	"fmt"
	"net"
)

// apPrefix is the provisioning access point name prefix.
const apPrefix = "Terelina"

// APName derives the provisioning access point name from the interface's
// hardware address, so co-located unconfigured devices never collide.
// Example: Terelina-3FA2.
func APName(iface string) string {
	ifi, err := net.InterfaceByName(iface)
	if err == nil && len(ifi.HardwareAddr) >= 2 {
		mac := ifi.HardwareAddr
		return fmt.Sprintf("%s-%02X%02X", apPrefix, mac[len(mac)-2], mac[len(mac)-1])
	}

	// No usable hardware address (containers, early boot). Fall back to
	// any interface that has one rather than colliding on a fixed name.
	ifis, err := net.Interfaces()
	if err == nil {
		for _, ifi := range ifis {
			if len(ifi.HardwareAddr) >= 2 && ifi.Flags&net.FlagLoopback == 0 {
				mac := ifi.HardwareAddr
				return fmt.Sprintf("%s-%02X%02X", apPrefix, mac[len(mac)-2], mac[len(mac)-1])
			}
		}
	}
	return apPrefix + "-0000"
}
