// Package wifi keeps the device associated to a wireless network. It owns
// the connection state machine: last-known-credentials join, captive
// provisioning portal, optional fallback credentials, and reconnection after
// link loss.
package wifi

// Credentials identifies a wireless network.
type Credentials struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
}

// Empty reports whether the credentials are unusable.
func (c Credentials) Empty() bool {
	return c.SSID == ""
}

// Link abstracts the wireless adapter. All methods must return promptly:
// association runs in the background and completion is observed through Up,
// so the caller's control loop never blocks on the network.
type Link interface {
	// BeginConnect starts an association attempt with the given
	// credentials. It does not wait for the attempt to finish.
	BeginConnect(creds Credentials)

	// Up reports whether the interface is currently associated.
	Up() bool

	// LastKnown returns the stored credentials from the previous
	// successful provisioning, if any.
	LastKnown() (Credentials, bool)

	// Remember persists credentials as the last-known network.
	Remember(creds Credentials) error

	// StartHotspot brings up an open access point with the given name so
	// the provisioning portal is reachable.
	StartHotspot(name string) error

	// StopHotspot tears the access point down.
	StopHotspot() error
}

// Portal is the provisioning surface the supervisor drives while in the
// Provisioning state.
type Portal interface {
	// Open starts serving the credentials form.
	Open() error

	// Close stops serving.
	Close() error

	// Submitted returns operator-supplied credentials once, if any were
	// posted since the last call.
	Submitted() (Credentials, bool)

	// Err reports an abnormal server exit while the portal was open.
	Err() error
}
