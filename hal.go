//go:build !linux || nogpio

package main

// This file provides the stub hardware abstraction so the daemon can run and
// be tested on a desktop machine without a WS2812, a servo or wpa_supplicant.
// The real peripherals live in hal_linux.go behind the inverse build tag.

import "log"

// stubLED remembers the last color written and does nothing else.
type stubLED struct {
	last Color
}

func (l *stubLED) Write(c Color) error {
	l.last = c
	return nil
}

func (l *stubLED) Close() error { return nil }

// stubServo logs angle writes so a desktop run still shows the motion.
type stubServo struct{}

func (stubServo) SetAngle(deg int) error {
	log.Printf("servo (stub): %d degrees", deg)
	return nil
}

func (stubServo) Close() error { return nil }

// stubRadio associates instantly so the indicator walks the full
// connecting -> connected sequence on a desktop run.
type stubRadio struct {
	events chan RadioEvent
}

func newStubRadio() *stubRadio {
	return &stubRadio{events: make(chan RadioEvent, 4)}
}

func (r *stubRadio) Associate(ssid, psk string) error {
	r.events <- RadioLinkUp
	return nil
}

func (r *stubRadio) Events() <-chan RadioEvent { return r.events }

func (r *stubRadio) Close() error { return nil }

// openPeripherals returns stub hardware, except for the Feetech servo driver
// which talks plain serial and works from any host.
func openPeripherals(cfg Config) (Peripherals, error) {
	var servo ServoDriver = stubServo{}
	if cfg.Servo.Driver == "feetech" {
		fs, err := newFeetechServo(cfg.Servo.Feetech)
		if err != nil {
			return Peripherals{}, err
		}
		servo = fs
	}
	return Peripherals{
		LED:   &stubLED{},
		Servo: servo,
		Radio: newStubRadio(),
	}, nil
}
