//go:build linux && !nogpio

package main

// Real peripherals for the deployment target (a Raspberry Pi class board).
// Build with -tags nogpio to get the desktop stubs from hal.go instead.

import (
	"fmt"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// openPeripherals initialises periph host state and opens the LED, the servo
// and the WiFi radio. Each returned handle is owned by exactly one
// controller from here on.
func openPeripherals(cfg Config) (Peripherals, error) {
	// host.Init can safely be called multiple times; subsequent calls are
	// no-ops.
	if _, err := host.Init(); err != nil {
		return Peripherals{}, fmt.Errorf("periph init: %w", err)
	}

	led, err := openLED(cfg.LED)
	if err != nil {
		return Peripherals{}, err
	}

	servo, err := openServo(cfg.Servo)
	if err != nil {
		led.Close()
		return Peripherals{}, err
	}

	radio, err := newWPARadio(cfg.WiFi.Interface)
	if err != nil {
		led.Close()
		servo.Close()
		return Peripherals{}, err
	}

	return Peripherals{LED: led, Servo: servo, Radio: radio}, nil
}

// openLED connects the WS2812 pixel over SPI. The port must be clocked at
// the rate the frame encoder assumes; see ws2812.go.
func openLED(cfg LEDConfig) (StatusLED, error) {
	port, err := spireg.Open(cfg.SPIPort)
	if err != nil {
		return nil, fmt.Errorf("open SPI %s: %w", cfg.SPIPort, err)
	}
	conn, err := port.Connect(ws2812Baud, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("configure SPI %s: %w", cfg.SPIPort, err)
	}
	return &ws2812LED{port: port, conn: conn}, nil
}

// openServo picks the actuator backend from configuration. Pins are
// addressed by their BCM names (e.g. "GPIO18", the Pi's hardware PWM pin).
func openServo(cfg ServoConfig) (ServoDriver, error) {
	switch cfg.Driver {
	case "", "pwm":
		pin := gpioreg.ByName(cfg.Pin)
		if pin == nil {
			return nil, fmt.Errorf("unknown GPIO pin %q", cfg.Pin)
		}
		return &pwmServo{pin: pin}, nil
	case "feetech":
		return newFeetechServo(cfg.Feetech)
	default:
		return nil, fmt.Errorf("unknown servo driver %q", cfg.Driver)
	}
}
