package wifi

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNMLinkCredentialsStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store", "wifi.json")
	link := NewNMLink("wlan0", path)

	if _, ok := link.LastKnown(); ok {
		t.Fatal("fresh store should have no credentials")
	}

	creds := Credentials{SSID: "garage", Password: "pw"}
	if err := link.Remember(creds); err != nil {
		t.Fatalf("Remember: %v", err)
	}

	got, ok := link.LastKnown()
	if !ok {
		t.Fatal("expected stored credentials")
	}
	if got != creds {
		t.Errorf("LastKnown = %+v, want %+v", got, creds)
	}

	// The store survives a new link instance (a reboot).
	again := NewNMLink("wlan0", path)
	if got, ok := again.LastKnown(); !ok || got != creds {
		t.Errorf("reloaded = %+v ok=%v, want %+v", got, ok, creds)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat store: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("store permissions = %o, want 600 (contains a password)", perm)
	}
}

func TestNMLinkIgnoresCorruptStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wifi.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	link := NewNMLink("wlan0", path)
	if _, ok := link.LastKnown(); ok {
		t.Error("corrupt store must not yield credentials")
	}
}
