package main

import "time"

// ConnectionState tracks the WiFi link. Owned by the ConnectivityManager;
// everyone else only reads it. Reset to Disconnected on restart.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// ActuatorState tracks the servo. Owned by the Actuator; transitions to
// Striking on an accepted trigger and back to Idle when the motion completes.
type ActuatorState int32

const (
	ActuatorIdle ActuatorState = iota
	ActuatorStriking
)

func (s ActuatorState) String() string {
	if s == ActuatorStriking {
		return "striking"
	}
	return "idle"
}

// Color is one RGB pixel value for the status LED.
type Color struct {
	R, G, B byte
}

// StrikeStep sets the servo to Angle (degrees, 0-180) and holds for Hold
// before the next step.
type StrikeStep struct {
	Angle int
	Hold  time.Duration
}

// StrikePattern is one bounded motion sequence. The last step should return
// the servo to its rest angle; the actuator does not enforce this.
type StrikePattern struct {
	Steps []StrikeStep
}

// Duration returns the total playback time of the pattern.
func (p StrikePattern) Duration() time.Duration {
	var d time.Duration
	for _, s := range p.Steps {
		d += s.Hold
	}
	return d
}

// StatusLED is an addressable status LED.
type StatusLED interface {
	Write(c Color) error
	Close() error
}

// ServoDriver positions the gong servo. Implementations exist for a hobby
// servo on a PWM pin and for a Feetech serial-bus servo.
type ServoDriver interface {
	SetAngle(deg int) error
	Close() error
}

// RadioEvent is a link state report from a WifiRadio backend.
type RadioEvent int

const (
	// RadioLinkUp means association completed and an address was obtained.
	RadioLinkUp RadioEvent = iota
	// RadioLinkDown means the link dropped or association gave up.
	RadioLinkDown
)

// Peripherals bundles the hardware handles opened at startup. Each handle is
// exclusively owned by its controller after NewServer; nothing shares them.
type Peripherals struct {
	LED   StatusLED
	Servo ServoDriver
	Radio WifiRadio
}

// Close releases all peripheral handles.
func (p Peripherals) Close() {
	if p.LED != nil {
		p.LED.Close()
	}
	if p.Servo != nil {
		p.Servo.Close()
	}
	if p.Radio != nil {
		p.Radio.Close()
	}
}

// User represents an account that can log in to the HTTP API.
// Passwords are stored as bcrypt hashes.
type User struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
	Admin        bool   `json:"admin"`
}

// WiFiConfig holds the credentials and radio settings for association.
// SSID and PSK may be overridden at startup by the GONG_WIFI_SSID and
// GONG_WIFI_PSK environment variables.
type WiFiConfig struct {
	Interface       string `json:"interface"` // e.g. "wlan0"
	SSID            string `json:"ssid"`
	PSK             string `json:"psk"`
	AssocTimeoutSec int    `json:"assoc_timeout_sec"` // give up on one association attempt after this long
}

// LEDConfig selects the SPI port driving the WS2812 status pixel.
type LEDConfig struct {
	SPIPort string `json:"spi_port"` // e.g. "SPI0.0"
}

// FeetechConfig configures the serial-bus servo backend. RawMin/RawMax are
// the raw positions corresponding to 0 and 180 degrees.
type FeetechConfig struct {
	Port     string `json:"port"` // e.g. "/dev/ttyUSB0"
	BaudRate int    `json:"baud_rate"`
	ID       int    `json:"id"`
	RawMin   int    `json:"raw_min"`
	RawMax   int    `json:"raw_max"`
}

// ServoConfig describes the actuator and its strike motion. Timings are
// fixed configuration, never computed.
type ServoConfig struct {
	Driver      string        `json:"driver"` // "pwm" or "feetech"
	Pin         string        `json:"pin"`    // PWM driver: GPIO pin name, e.g. "GPIO18"
	RestAngle   int           `json:"rest_angle"`
	ImpactAngle int           `json:"impact_angle"`
	SweepMs     int           `json:"sweep_ms"`  // rest -> impact travel + dwell at impact
	SettleMs    int           `json:"settle_ms"` // impact -> rest travel + settle
	Feetech     FeetechConfig `json:"feetech,omitempty"`
}

// strikePattern builds the fixed strike motion: sweep to the impact angle,
// then return to rest.
func (c ServoConfig) strikePattern() StrikePattern {
	return StrikePattern{Steps: []StrikeStep{
		{Angle: c.ImpactAngle, Hold: time.Duration(c.SweepMs) * time.Millisecond},
		{Angle: c.RestAngle, Hold: time.Duration(c.SettleMs) * time.Millisecond},
	}}
}

// Config is the top-level structure serialized to config.json. It contains
// all persisted state; nothing else survives a restart.
type Config struct {
	HTTPPort int         `json:"http_port"`
	CertFile string      `json:"cert_file,omitempty"` // if set together with KeyFile, serve TLS
	KeyFile  string      `json:"key_file,omitempty"`
	LogFile  string      `json:"log_file"`
	WiFi     WiFiConfig  `json:"wifi"`
	LED      LEDConfig   `json:"led"`
	Servo    ServoConfig `json:"servo"`
	Users    []User      `json:"users"`
}
