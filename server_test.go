package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// newTestServer spins up the API on fake hardware. The returned fake servo
// can be gated to hold a motion in flight.
func newTestServer(t *testing.T) (*httptest.Server, *Server, *fakeServo) {
	t.Helper()
	dir := t.TempDir()
	cm := &ConfigManager{Path: filepath.Join(dir, "config.json")}
	if err := cm.Load(); err != nil {
		t.Fatalf("load config: %v", err)
	}
	err := cm.Update(func(c *Config) error {
		c.LogFile = filepath.Join(dir, "events.log")
		c.Servo.SweepMs = 10
		c.Servo.SettleMs = 10
		return nil
	})
	if err != nil {
		t.Fatalf("update config: %v", err)
	}

	servo := &fakeServo{}
	srv, err := NewServer(cm, Peripherals{
		LED:   &fakeLED{},
		Servo: servo,
		Radio: newFakeRadio(),
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.handler())
	t.Cleanup(ts.Close)
	return ts, srv, servo
}

// login authenticates as the default admin and returns the session cookie.
func login(t *testing.T, ts *httptest.Server) *http.Cookie {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "admin"})
	resp, err := http.Post(ts.URL+"/api/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	for _, c := range resp.Cookies() {
		if c.Name == "session" {
			return c
		}
	}
	t.Fatal("no session cookie in login response")
	return nil
}

func doRequest(t *testing.T, ts *httptest.Server, method, path string, cookie *http.Cookie, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeResult(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out["result"]
}

func TestStrikeRequiresAuth(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp := doRequest(t, ts, http.MethodPost, "/api/strike", nil, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	ts, _, _ := newTestServer(t)
	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "nope"})
	resp, err := http.Post(ts.URL+"/api/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestStrikeTrigger(t *testing.T) {
	ts, srv, servo := newTestServer(t)
	cookie := login(t, ts)

	resp := doRequest(t, ts, http.MethodPost, "/api/strike", cookie, "")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if got := decodeResult(t, resp); got != "striking" {
		t.Fatalf("result = %q, want striking", got)
	}

	srv.actuator.Wait()
	angles := servo.recorded()
	want := []int{110, 20} // impact, then back to rest
	if len(angles) != len(want) {
		t.Fatalf("servo angles %v, want %v", angles, want)
	}
	for i := range want {
		if angles[i] != want[i] {
			t.Errorf("angle[%d] = %d, want %d", i, angles[i], want[i])
		}
	}
}

func TestStrikeDroppedWhileMotionInFlight(t *testing.T) {
	ts, srv, servo := newTestServer(t)
	cookie := login(t, ts)

	// Park the motion on the servo gate so the second request provably
	// overlaps the first.
	gate := make(chan struct{})
	servo.setGate(gate)

	resp := doRequest(t, ts, http.MethodPost, "/api/strike", cookie, "")
	if got := decodeResult(t, resp); got != "striking" {
		t.Fatalf("first result = %q, want striking", got)
	}
	resp = doRequest(t, ts, http.MethodPost, "/api/strike", cookie, "")
	if got := decodeResult(t, resp); got != "dropped" {
		t.Errorf("overlapping result = %q, want dropped", got)
	}

	close(gate)
	srv.actuator.Wait()
	if got := len(servo.recorded()); got != 2 {
		t.Errorf("servo writes = %d, want 2 (dropped trigger must not queue)", got)
	}
}

func TestServoSequence(t *testing.T) {
	ts, srv, servo := newTestServer(t)
	cookie := login(t, ts)

	resp := doRequest(t, ts, http.MethodPost, "/api/servo", cookie, "90,20,45,20,20")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if got := decodeResult(t, resp); got != "playing" {
		t.Fatalf("result = %q, want playing", got)
	}

	srv.actuator.Wait()
	want := []int{90, 45, 20}
	got := servo.recorded()
	if len(got) != len(want) {
		t.Fatalf("servo angles %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("angle[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestServoSequenceRejectsBadBody(t *testing.T) {
	ts, _, _ := newTestServer(t)
	cookie := login(t, ts)

	for _, body := range []string{"", "90,20", "abc", "200", "90,-5,20"} {
		resp := doRequest(t, ts, http.MethodPost, "/api/servo", cookie, body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, resp.StatusCode)
		}
	}
}

func TestServoSequenceConflictsWhileStriking(t *testing.T) {
	ts, srv, servo := newTestServer(t)
	cookie := login(t, ts)

	gate := make(chan struct{})
	servo.setGate(gate)
	resp := doRequest(t, ts, http.MethodPost, "/api/strike", cookie, "")
	resp.Body.Close()

	resp = doRequest(t, ts, http.MethodPost, "/api/servo", cookie, "90")
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}

	close(gate)
	srv.actuator.Wait()
}

func TestStatus(t *testing.T) {
	ts, _, _ := newTestServer(t)
	cookie := login(t, ts)

	resp := doRequest(t, ts, http.MethodGet, "/api/status", cookie, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var st struct {
		Connection string `json:"connection"`
		Actuator   string `json:"actuator"`
		StrikeMs   int64  `json:"strike_ms"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.Connection != "disconnected" {
		t.Errorf("connection = %q, want disconnected (manager not started)", st.Connection)
	}
	if st.Actuator != "idle" {
		t.Errorf("actuator = %q, want idle", st.Actuator)
	}
	if st.StrikeMs != 20 {
		t.Errorf("strike_ms = %d, want 20", st.StrikeMs)
	}
}

func TestParsePattern(t *testing.T) {
	tests := []struct {
		in      string
		want    []StrikeStep
		wantErr bool
	}{
		{in: "90", want: []StrikeStep{{Angle: 90}}},
		{
			in: "110,250,20",
			want: []StrikeStep{
				{Angle: 110, Hold: 250 * time.Millisecond},
				{Angle: 20},
			},
		},
		{in: " 10 , 5 , 20 ", want: []StrikeStep{
			{Angle: 10, Hold: 5 * time.Millisecond},
			{Angle: 20},
		}},
		{in: "90,250", wantErr: true}, // trailing delay with no angle
		{in: "181", wantErr: true},    // angle out of range
		{in: "90,-1,20", wantErr: true},
		{in: "bong", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		p, err := parsePattern(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parsePattern(%q): expected error, got %+v", tt.in, p)
			}
			continue
		}
		if err != nil {
			t.Errorf("parsePattern(%q): %v", tt.in, err)
			continue
		}
		if len(p.Steps) != len(tt.want) {
			t.Errorf("parsePattern(%q) = %+v, want %+v", tt.in, p.Steps, tt.want)
			continue
		}
		for i := range tt.want {
			if p.Steps[i] != tt.want[i] {
				t.Errorf("parsePattern(%q) step %d = %+v, want %+v", tt.in, i, p.Steps[i], tt.want[i])
			}
		}
	}
}
