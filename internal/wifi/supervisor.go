package wifi

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// ConnState is the connectivity state machine's current state.
type ConnState string

const (
	StateDisconnected ConnState = "DISCONNECTED"
	StateProvisioning ConnState = "PROVISIONING"
	StateFallback     ConnState = "FALLBACK_ATTEMPT"
	StateConnected    ConnState = "CONNECTED"
)

// Options configures the Supervisor. Zero timeouts are replaced by the
// shipped firmware defaults.
type Options struct {
	// APName is the provisioning access point / portal name.
	APName string

	// JoinTimeout bounds a single association attempt.
	JoinTimeout time.Duration

	// PortalTimeout bounds the first provisioning window before the
	// fallback credentials are tried.
	PortalTimeout time.Duration

	// Fallback is the optional compiled-in/environment network. Empty
	// SSID disables the fallback attempt.
	Fallback Credentials

	// FallbackTimeout bounds the fallback association attempt.
	FallbackTimeout time.Duration

	// ReconnectAttempts is how many consecutive bounded rejoins are tried
	// after link loss before escalating to a fresh provisioning cycle.
	ReconnectAttempts int
}

func (o *Options) applyDefaults() {
	if o.JoinTimeout <= 0 {
		o.JoinTimeout = 15 * time.Second
	}
	if o.PortalTimeout <= 0 {
		o.PortalTimeout = 180 * time.Second
	}
	if o.FallbackTimeout <= 0 {
		o.FallbackTimeout = 20 * time.Second
	}
	if o.ReconnectAttempts <= 0 {
		o.ReconnectAttempts = 5
	}
}

// Supervisor drives the connectivity state machine. It is stepped by the
// scheduler loop and never blocks: every network operation runs behind the
// Link and is bounded by an explicit deadline, except the unbounded portal
// wait, which is the deliberate terminal-avoidance state (wait for a human,
// never reboot-loop).
//
// Not safe for concurrent use; Step and IsConnected are called from the
// single scheduler loop.
type Supervisor struct {
	link   Link
	portal Portal
	opts   Options

	state ConnState

	// deadline bounds the in-flight attempt or portal window. Zero means
	// unbounded (only ever in Provisioning).
	deadline time.Time

	joining   bool
	joinCreds Credentials

	// validating is set in Provisioning after an operator submitted
	// credentials: the join in flight decides whether they validate.
	validating bool

	portalOpen      bool
	portalUnbounded bool

	// rejoinBudget counts remaining bounded join attempts before the
	// portal flow is (re)entered. 1 at boot, ReconnectAttempts after a
	// link loss.
	rejoinBudget int
}

// NewSupervisor creates a supervisor in the Disconnected state.
func NewSupervisor(link Link, portal Portal, opts Options) *Supervisor {
	opts.applyDefaults()
	return &Supervisor{
		link:         link,
		portal:       portal,
		opts:         opts,
		state:        StateDisconnected,
		rejoinBudget: 1,
	}
}

// State returns the current connectivity state.
func (s *Supervisor) State() ConnState {
	return s.state
}

// IsConnected reports current association state only; no reachability check
// beyond link status.
func (s *Supervisor) IsConnected() bool {
	return s.state == StateConnected && s.link.Up()
}

// Step advances the state machine. It must be called every scheduler cycle.
// The returned error is fatal: it only occurs when the provisioning portal
// fails while waiting unbounded, the one situation with no recovery path
// other than a restart.
func (s *Supervisor) Step(now time.Time) error {
	switch s.state {
	case StateDisconnected:
		s.stepDisconnected(now)
	case StateProvisioning:
		return s.stepProvisioning(now)
	case StateFallback:
		s.stepFallback(now)
	case StateConnected:
		s.stepConnected()
	}
	return nil
}

func (s *Supervisor) stepDisconnected(now time.Time) {
	if s.link.Up() {
		s.becomeConnected("association established")
		return
	}

	if !s.joining {
		creds, ok := s.link.LastKnown()
		if !ok || s.rejoinBudget <= 0 {
			s.openPortal(now, false)
			return
		}
		s.rejoinBudget--
		log.Infof("wifi: joining last-known network %q (attempts left %d)", creds.SSID, s.rejoinBudget)
		s.beginJoin(creds, now, s.opts.JoinTimeout)
		return
	}

	if now.After(s.deadline) {
		s.joining = false
		log.Warnf("wifi: join attempt for %q timed out", s.joinCreds.SSID)
		if s.rejoinBudget <= 0 {
			s.openPortal(now, false)
		}
	}
}

func (s *Supervisor) stepProvisioning(now time.Time) error {
	if err := s.portal.Err(); err != nil && s.portalUnbounded {
		// The portal was our last resort. Nothing left but a restart.
		return fmt.Errorf("provisioning portal failed: %w", err)
	}

	if s.validating {
		if s.link.Up() {
			s.closePortal()
			s.becomeConnected("provisioned credentials validated")
			return nil
		}
		if now.After(s.deadline) {
			// Credentials did not validate. Back to the operator.
			log.Warnf("wifi: provisioned credentials for %q failed to validate", s.joinCreds.SSID)
			s.validating = false
			s.joining = false
			s.reopenPortalWindow(now)
		}
		return nil
	}

	if creds, ok := s.portal.Submitted(); ok {
		if err := s.link.Remember(creds); err != nil {
			log.Errorf("wifi: persist credentials: %v", err)
		}
		log.Infof("wifi: credentials received for %q, validating", creds.SSID)
		// The hotspot must be down before the adapter can associate.
		s.closePortal()
		s.validating = true
		s.beginJoin(creds, now, s.opts.JoinTimeout)
		return nil
	}

	if s.link.Up() {
		// Automatic reconnection won while the portal was open.
		s.closePortal()
		s.becomeConnected("association recovered during provisioning")
		return nil
	}

	if !s.portalUnbounded && now.After(s.deadline) {
		log.Warnf("wifi: portal window elapsed without configuration")
		s.closePortal()
		s.enterFallback(now)
	}
	return nil
}

func (s *Supervisor) stepFallback(now time.Time) {
	if s.link.Up() {
		if err := s.link.Remember(s.opts.Fallback); err != nil {
			log.Errorf("wifi: persist fallback credentials: %v", err)
		}
		s.becomeConnected("fallback network joined")
		return
	}

	if now.After(s.deadline) {
		log.Warnf("wifi: fallback attempt for %q timed out, re-opening portal", s.opts.Fallback.SSID)
		s.joining = false
		s.openPortal(now, true)
	}
}

func (s *Supervisor) stepConnected() {
	if s.link.Up() {
		return
	}
	// Lean on rejoining the last-known network before re-deriving a
	// portal; the budget bounds how long we insist.
	log.Warnf("wifi: link lost, attempting automatic reconnection")
	s.state = StateDisconnected
	s.joining = false
	s.rejoinBudget = s.opts.ReconnectAttempts
}

func (s *Supervisor) becomeConnected(reason string) {
	if s.portalOpen {
		s.closePortal()
	}
	s.state = StateConnected
	s.joining = false
	s.validating = false
	s.rejoinBudget = 1
	log.Infof("wifi: connected (%s)", reason)
}

func (s *Supervisor) beginJoin(creds Credentials, now time.Time, timeout time.Duration) {
	s.joinCreds = creds
	s.joining = true
	s.deadline = now.Add(timeout)
	s.link.BeginConnect(creds)
}

func (s *Supervisor) enterFallback(now time.Time) {
	if s.opts.Fallback.Empty() {
		log.Infof("wifi: no fallback credentials configured, re-opening portal")
		s.openPortal(now, true)
		return
	}
	log.Infof("wifi: attempting fallback network %q", s.opts.Fallback.SSID)
	s.state = StateFallback
	s.beginJoin(s.opts.Fallback, now, s.opts.FallbackTimeout)
}

// openPortal starts the access point and portal server and moves to
// Provisioning. unbounded marks the terminal-avoidance window that waits
// indefinitely for an operator instead of rebooting.
func (s *Supervisor) openPortal(now time.Time, unbounded bool) {
	s.state = StateProvisioning
	s.joining = false
	s.validating = false
	s.portalUnbounded = unbounded
	if unbounded {
		s.deadline = time.Time{}
	} else {
		s.deadline = now.Add(s.opts.PortalTimeout)
	}

	if s.portalOpen {
		return
	}
	if err := s.link.StartHotspot(s.opts.APName); err != nil {
		log.Errorf("wifi: start hotspot %q: %v", s.opts.APName, err)
	}
	if err := s.portal.Open(); err != nil {
		log.Errorf("wifi: open portal: %v", err)
		if !unbounded {
			// Skip the doomed window and try the fallback now. The
			// hotspot has to come down first or it blocks association.
			if err := s.link.StopHotspot(); err != nil {
				log.Errorf("wifi: stop hotspot: %v", err)
			}
			s.enterFallback(now)
			return
		}
		// Unbounded portal that cannot open is caught by portal.Err on
		// the next step.
	}
	s.portalOpen = true
	log.Infof("wifi: provisioning portal %q open (timeout %v, unbounded=%v)",
		s.opts.APName, s.opts.PortalTimeout, unbounded)
}

// reopenPortalWindow restarts the current provisioning window after failed
// validation without tearing the portal down.
func (s *Supervisor) reopenPortalWindow(now time.Time) {
	if !s.portalOpen {
		s.openPortal(now, s.portalUnbounded)
		return
	}
	if !s.portalUnbounded {
		s.deadline = now.Add(s.opts.PortalTimeout)
	}
}

func (s *Supervisor) closePortal() {
	if !s.portalOpen {
		return
	}
	if err := s.portal.Close(); err != nil {
		log.Errorf("wifi: close portal: %v", err)
	}
	if err := s.link.StopHotspot(); err != nil {
		log.Errorf("wifi: stop hotspot: %v", err)
	}
	s.portalOpen = false
}
