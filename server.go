package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// logTailBytes bounds how much of the event log /api/logs returns.
const logTailBytes = 16 * 1024

// Server wires the three controllers together and exposes the remote
// trigger over HTTP. The LED, servo and radio handles each belong to exactly
// one controller; the server never touches them directly.
type Server struct {
	cfgMgr    *ConfigManager
	sessions  *SessionManager
	conn      *ConnectivityManager
	indicator *Indicator
	actuator  *Actuator
	logger    *EventLogger
	started   time.Time
}

// NewServer constructs the controllers around the supplied peripherals.
func NewServer(cfgMgr *ConfigManager, hw Peripherals) (*Server, error) {
	cfg := cfgMgr.Get()
	logger := NewEventLogger(cfg.LogFile)
	conn, err := NewConnectivityManager(hw.Radio, cfg.WiFi, logger)
	if err != nil {
		return nil, err
	}
	return &Server{
		cfgMgr:    cfgMgr,
		sessions:  NewSessionManager(),
		conn:      conn,
		indicator: NewIndicator(hw.LED, logger),
		actuator:  NewActuator(hw.Servo, cfg.Servo, logger),
		logger:    logger,
	}, nil
}

// Start homes the servo, brings up WiFi and the indicator loop, and serves
// the HTTP API until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.cfgMgr.Get()

	if err := s.actuator.Home(); err != nil {
		// §7: no recovery path for actuator faults; run degraded.
		s.logger.Log("servo homing failed: %v", err)
	}
	if err := s.conn.Start(ctx); err != nil {
		return err
	}
	go s.indicator.Run(ctx, s.conn.Updates())
	s.started = time.Now()

	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := &http.Server{
		Addr:    addr,
		Handler: s.handler(),
		TLSConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	var err error
	if cfg.CertFile != "" && cfg.KeyFile != "" {
		log.Printf("Listening on https://0.0.0.0%s\n", addr)
		err = srv.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
	} else {
		// The device the daemon replaces served plain HTTP; TLS is opt-in.
		log.Printf("Listening on http://0.0.0.0%s\n", addr)
		err = srv.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		s.actuator.Wait()
		s.conn.Stop()
		return nil
	}
	return err
}

// handler builds the route table. Split out so tests can drive the API
// without binding a real port.
func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/login", s.handleLogin)
	mux.HandleFunc("/api/logout", s.handleLogout)
	mux.HandleFunc("/api/status", s.withAuth(s.handleStatus))
	mux.HandleFunc("/api/strike", s.withAuth(s.handleStrike))
	mux.HandleFunc("/api/servo", s.withAuth(s.handleServo))
	mux.HandleFunc("/api/logs", s.withAuth(s.handleLogs))
	return mux
}

// withAuth wraps handlers that require a valid session. If the request
// contains a valid "session" cookie, it calls the underlying handler with
// the user; otherwise it responds with 401.
func (s *Server) withAuth(handler func(http.ResponseWriter, *http.Request, User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("session")
		if err != nil {
			http.Error(w, "unauthenticated", http.StatusUnauthorized)
			return
		}
		sess, ok := s.sessions.Get(cookie.Value)
		if !ok {
			http.Error(w, "session expired", http.StatusUnauthorized)
			return
		}
		user, _ := s.cfgMgr.FindUser(sess.Username)
		if user.Username == "" {
			http.Error(w, "unknown user", http.StatusUnauthorized)
			return
		}
		handler(w, r, user)
	}
}

// handleLogin authenticates a user and sets a session cookie. Expected JSON:
// {"username":"...","password":"..."}
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	user, err := s.cfgMgr.Authenticate(creds.Username, creds.Password)
	if err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	// Create session valid for 24h
	sessID, _, err := s.sessions.Create(user.Username, 24*time.Hour)
	if err != nil {
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "session",
		Value:    sessID,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Now().Add(24 * time.Hour),
	})
	s.logger.Log("login %s", user.Username)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleLogout deletes the session cookie.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	cookie, err := r.Cookie("session")
	if err == nil {
		s.sessions.Delete(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "session",
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		Expires:  time.Unix(0, 0),
	})
	s.logger.Log("logout")
	w.WriteHeader(http.StatusNoContent)
}

// handleStatus reports the connection and actuator state.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, user User) {
	type status struct {
		Connection string `json:"connection"`
		Actuator   string `json:"actuator"`
		StrikeMs   int64  `json:"strike_ms"` // full sweep+return duration
		UptimeSec  int64  `json:"uptime_sec"`
	}
	resp := status{
		Connection: s.conn.State().String(),
		Actuator:   s.actuator.State().String(),
		StrikeMs:   s.actuator.pattern.Duration().Milliseconds(),
		UptimeSec:  int64(time.Since(s.started).Seconds()),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// handleStrike is the remote trigger. One accepted trigger means one full
// strike motion; a trigger during a motion is dropped, which is not an
// error, so both outcomes answer 202.
func (s *Server) handleStrike(w http.ResponseWriter, r *http.Request, user User) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	result := "dropped"
	if s.actuator.Strike() {
		result = "striking"
	}
	s.logger.Log("strike by %s: %s", user.Username, result)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"result": result})
}

// handleServo plays a raw motion sequence. The body is a CSV list
// "angle,delay,angle,delay,...,angle" with angles in degrees and delays
// in milliseconds.
func (s *Server) handleServo(w http.ResponseWriter, r *http.Request, user User) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1024))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	pattern, err := parsePattern(string(body))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !s.actuator.Play(pattern) {
		http.Error(w, "motion in flight", http.StatusConflict)
		return
	}
	s.logger.Log("servo sequence by %s (%d steps)", user.Username, len(pattern.Steps))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"result": "playing"})
}

// handleLogs returns the tail of the event log as plain text.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request, user User) {
	tail, err := s.logger.Tail(logTailBytes)
	if err != nil {
		http.Error(w, "read log", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(tail))
}

// parsePattern decodes the comma-separated angle/delay sequence: the first
// value is an angle applied immediately, then alternating delay/angle pairs.
func parsePattern(body string) (StrikePattern, error) {
	fields := strings.Split(strings.TrimSpace(body), ",")
	if len(fields)%2 != 1 {
		return StrikePattern{}, fmt.Errorf("want angle,delay,...,angle; got %d values", len(fields))
	}
	values := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return StrikePattern{}, fmt.Errorf("value %d: %w", i, err)
		}
		values[i] = v
	}
	var p StrikePattern
	for i := 0; i < len(values); i += 2 {
		angle := values[i]
		if angle < 0 || angle > 180 {
			return StrikePattern{}, fmt.Errorf("angle %d out of range 0-180", angle)
		}
		hold := time.Duration(0)
		if i+1 < len(values) {
			if values[i+1] < 0 {
				return StrikePattern{}, fmt.Errorf("negative delay %d", values[i+1])
			}
			hold = time.Duration(values[i+1]) * time.Millisecond
		}
		p.Steps = append(p.Steps, StrikeStep{Angle: angle, Hold: hold})
	}
	return p, nil
}
