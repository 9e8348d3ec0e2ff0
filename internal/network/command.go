package network

import "github.com/shazow/wifi-connect/wifi"

// CommandKind tags a Command.
type CommandKind int

const (
	// ActivatePortal is sent when a client loads the portal UI.
	ActivatePortal CommandKind = iota
	// Timeout is sent once when the activity timeout elapses.
	Timeout
	// Exit is sent when an exit signal was trapped.
	Exit
	// WiFiConnect asks the handler to join SSID.
	WiFiConnect
	// RestartApp drops the portal and brings up a fresh one.
	RestartApp
	// CheckConnectivity is synthesized by the handler when the queue is empty.
	CheckConnectivity
)

func (k CommandKind) String() string {
	switch k {
	case ActivatePortal:
		return "ActivatePortal"
	case Timeout:
		return "Timeout"
	case Exit:
		return "Exit"
	case WiFiConnect:
		return "WiFiConnect"
	case RestartApp:
		return "RestartApp"
	case CheckConnectivity:
		return "CheckConnectivity"
	default:
		return "Unknown"
	}
}

// Command is a request consumed by the Handler. SSID, Identity and
// Passphrase are only set for WiFiConnect.
type Command struct {
	Kind       CommandKind
	SSID       string
	Identity   string
	Passphrase string
}

// Network is one entry of the list shown by the portal UI.
type Network struct {
	SSID     string `json:"ssid"`
	Security string `json:"security"`
}

// Response is sent by the Handler to the UI server.
type Response struct {
	Networks []Network
}

// Networks converts access points into the UI network list.
func Networks(aps []wifi.AccessPoint) []Network {
	networks := make([]Network, 0, len(aps))
	for _, ap := range aps {
		networks = append(networks, Network{SSID: ap.SSID, Security: ap.Security.Label()})
	}
	return networks
}
