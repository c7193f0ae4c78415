package main

// Hobby servo on a 50 Hz PWM pin. A standard servo maps pulse widths of
// roughly 0.5ms..2.5ms onto 0..180 degrees; at a 20ms period that is 1/40 and
// 1/8 of full duty.

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

const servoFreq = 50 * physic.Hertz

const (
	servoMinDuty = gpio.DutyMax / 40 // 0.5ms pulse, 0 degrees
	servoMaxDuty = gpio.DutyMax / 8  // 2.5ms pulse, 180 degrees
)

// servoDuty interpolates an angle in degrees onto the servo's duty range.
func servoDuty(deg int) gpio.Duty {
	return gpio.Duty(deg)*(servoMaxDuty-servoMinDuty)/180 + servoMinDuty
}

// pwmServo owns one PWM-capable pin.
type pwmServo struct {
	pin gpio.PinOut
}

func (s *pwmServo) SetAngle(deg int) error {
	if deg < 0 || deg > 180 {
		return fmt.Errorf("angle %d out of range 0-180", deg)
	}
	return s.pin.PWM(servoDuty(deg), servoFreq)
}

// Close stops the pulse train; the servo goes limp rather than holding
// position, which is what a gong mallet at rest should do.
func (s *pwmServo) Close() error {
	return s.pin.Halt()
}
