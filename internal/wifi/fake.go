package wifi

// FakeLink is a test double for the wireless adapter. Tests flip UpNow to
// simulate association results and link loss.
type FakeLink struct {
	// UpNow controls the return value of Up.
	UpNow bool

	// Last is returned by LastKnown when HasLast is true.
	Last    Credentials
	HasLast bool

	// ConnectCalls records every BeginConnect in order.
	ConnectCalls []Credentials

	// Remembered records every Remember call.
	Remembered []Credentials

	// RememberError, if set, is returned by Remember.
	RememberError error

	// HotspotStarts and HotspotStops count hotspot lifecycle calls.
	HotspotStarts []string
	HotspotStops  int

	// HotspotError, if set, is returned by StartHotspot.
	HotspotError error
}

// BeginConnect records the attempt. The test decides its outcome via UpNow.
func (f *FakeLink) BeginConnect(creds Credentials) {
	f.ConnectCalls = append(f.ConnectCalls, creds)
}

// Up returns the scripted link state.
func (f *FakeLink) Up() bool { return f.UpNow }

// LastKnown returns the scripted stored credentials.
func (f *FakeLink) LastKnown() (Credentials, bool) {
	if !f.HasLast {
		return Credentials{}, false
	}
	return f.Last, true
}

// Remember records the credentials and marks them as last-known.
func (f *FakeLink) Remember(creds Credentials) error {
	if f.RememberError != nil {
		return f.RememberError
	}
	f.Remembered = append(f.Remembered, creds)
	f.Last = creds
	f.HasLast = true
	return nil
}

// StartHotspot records the access point name.
func (f *FakeLink) StartHotspot(name string) error {
	if f.HotspotError != nil {
		return f.HotspotError
	}
	f.HotspotStarts = append(f.HotspotStarts, name)
	return nil
}

// StopHotspot counts the teardown.
func (f *FakeLink) StopHotspot() error {
	f.HotspotStops++
	return nil
}
