package wifi

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// probeInterval rate-limits the nmcli status probe so a tight scheduler loop
// does not fork a process every few milliseconds.
const probeInterval = 2 * time.Second

// nmcliTimeout bounds every nmcli invocation.
const nmcliTimeout = 30 * time.Second

// NMLink drives the wireless adapter through the NetworkManager CLI.
// Association attempts run in a background goroutine; the supervisor only
// ever observes their outcome through Up.
type NMLink struct {
	iface     string
	credsPath string

	mu          sync.Mutex
	connecting  bool
	lastProbe   time.Time
	lastUp      bool
	hotspotName string
}

// NewNMLink creates a link for the given wireless interface. credsPath is
// where the last-known credentials are persisted across restarts.
func NewNMLink(iface, credsPath string) *NMLink {
	return &NMLink{iface: iface, credsPath: credsPath}
}

// BeginConnect starts an association attempt. A second call while one is in
// flight is ignored; the supervisor's deadline decides when to give up.
func (l *NMLink) BeginConnect(creds Credentials) {
	l.mu.Lock()
	if l.connecting {
		l.mu.Unlock()
		return
	}
	l.connecting = true
	l.mu.Unlock()

	go func() {
		args := []string{"device", "wifi", "connect", creds.SSID, "ifname", l.iface}
		if creds.Password != "" {
			args = append(args, "password", creds.Password)
		}
		if err := l.run(args...); err != nil {
			log.Warnf("wifi: nmcli connect %q: %v", creds.SSID, err)
		}

		l.mu.Lock()
		l.connecting = false
		l.lastProbe = time.Time{} // force a fresh probe
		l.mu.Unlock()
	}()
}

// Up reports whether the interface is associated. The probe result is cached
// briefly so the poll cadence stays cheap.
func (l *NMLink) Up() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if time.Since(l.lastProbe) < probeInterval {
		return l.lastUp
	}

	out, err := l.output("-t", "-f", "DEVICE,STATE", "device", "status")
	l.lastProbe = time.Now()
	l.lastUp = false
	if err != nil {
		log.Warnf("wifi: nmcli status probe: %v", err)
		return false
	}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		fields := strings.SplitN(line, ":", 2)
		if len(fields) == 2 && fields[0] == l.iface && fields[1] == "connected" {
			l.lastUp = true
			break
		}
	}
	return l.lastUp
}

// LastKnown returns the persisted credentials, if any.
func (l *NMLink) LastKnown() (Credentials, bool) {
	data, err := os.ReadFile(l.credsPath)
	if err != nil {
		return Credentials{}, false
	}
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil || creds.Empty() {
		return Credentials{}, false
	}
	return creds, true
}

// Remember persists the credentials for the next boot.
func (l *NMLink) Remember(creds Credentials) error {
	if err := os.MkdirAll(filepath.Dir(l.credsPath), 0o755); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}
	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if err := os.WriteFile(l.credsPath, data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

// StartHotspot brings up an open access point carrying the portal.
func (l *NMLink) StartHotspot(name string) error {
	l.mu.Lock()
	l.hotspotName = name
	l.mu.Unlock()

	// An open AP with shared IPv4 so portal clients get an address.
	if err := l.run("connection", "add", "type", "wifi", "ifname", l.iface,
		"con-name", name, "autoconnect", "no", "ssid", name,
		"802-11-wireless.mode", "ap", "ipv4.method", "shared"); err != nil {
		return fmt.Errorf("add hotspot connection: %w", err)
	}
	if err := l.run("connection", "up", name); err != nil {
		return fmt.Errorf("bring hotspot up: %w", err)
	}
	return nil
}

// StopHotspot tears the access point down and removes its profile.
func (l *NMLink) StopHotspot() error {
	l.mu.Lock()
	name := l.hotspotName
	l.mu.Unlock()
	if name == "" {
		return nil
	}

	if err := l.run("connection", "down", name); err != nil {
		log.Warnf("wifi: hotspot down: %v", err)
	}
	if err := l.run("connection", "delete", name); err != nil {
		return fmt.Errorf("delete hotspot connection: %w", err)
	}
	return nil
}

func (l *NMLink) run(args ...string) error {
	_, err := l.output(args...)
	return err
}

func (l *NMLink) output(args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), nmcliTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "nmcli", args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("nmcli %s: %w (%s)", args[0], err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}
