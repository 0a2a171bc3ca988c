// Package portal serves the captive provisioning portal: a small HTTP form
// where an operator supplies wireless credentials to an unconfigured device.
package portal

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/terelina/barrier-sensor/internal/wifi"
)

// Server implements wifi.Portal. It is opened and closed by the connectivity
// supervisor; credentials posted by the operator are handed over through
// Submitted.
type Server struct {
	addr   string
	apName string

	mu        sync.Mutex
	httpSrv   *http.Server
	submitted *wifi.Credentials
	serveErr  error
}

// New creates a portal server. apName is shown on the form so the operator
// can tell co-located devices apart.
func New(addr, apName string) *Server {
	return &Server{addr: addr, apName: apName}
}

func (s *Server) router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/save", s.handleSave).Methods(http.MethodPost)
	// Captive-portal behavior: every probe URL lands on the form.
	r.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/", http.StatusFound)
	})
	return r
}

// Open starts listening. Bind errors are returned synchronously; later serve
// errors are reported through Err.
func (s *Server) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.httpSrv != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.serveErr = err
		return err
	}

	srv := &http.Server{Handler: s.router()}
	s.httpSrv = srv
	s.serveErr = nil

	go func() {
		err := srv.Serve(ln)
		if err != nil && err != http.ErrServerClosed {
			s.mu.Lock()
			s.serveErr = err
			s.mu.Unlock()
		}
	}()
	return nil
}

// Close stops the server.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.httpSrv
	s.httpSrv = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// Submitted returns operator credentials once. Subsequent calls return false
// until a new form is posted.
func (s *Server) Submitted() (wifi.Credentials, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.submitted == nil {
		return wifi.Credentials{}, false
	}
	creds := *s.submitted
	s.submitted = nil
	return creds, true
}

// Err reports an abnormal server exit while the portal was open.
func (s *Server) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serveErr
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderForm(w, s.apName, "")
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	ssid := r.PostFormValue("ssid")
	password := r.PostFormValue("password")
	if ssid == "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		renderForm(w, s.apName, "Network name is required.")
		return
	}

	s.mu.Lock()
	s.submitted = &wifi.Credentials{SSID: ssid, Password: password}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderSaved(w, s.apName, ssid)
}
