package main

import "context"

// Status colors. The values come straight from the device: the yellow and
// green the gong has always shown while connecting and connected.
var (
	colorOff    = Color{}
	colorYellow = Color{R: 120, G: 120}
	colorGreen  = Color{G: 120, B: 50}
)

// colorFor maps a connection state to its indicator color. Disconnected is
// shown as off.
func colorFor(s ConnectionState) Color {
	switch s {
	case StateConnecting:
		return colorYellow
	case StateConnected:
		return colorGreen
	default:
		return colorOff
	}
}

// Indicator owns the status LED and keeps it matching the most recently
// observed connection state. Not safe for concurrent use; it is driven by a
// single update loop.
type Indicator struct {
	led    StatusLED
	logger *EventLogger

	last Color
	lit  bool // false until the first successful write
}

func NewIndicator(led StatusLED, logger *EventLogger) *Indicator {
	return &Indicator{led: led, logger: logger}
}

// SetState writes the color for the given state. Repeating the same state is
// a no-op, so at-least-once delivery from the connectivity stream is fine.
// A failed write is logged and retried on the next call because the applied
// color is only recorded on success.
func (ind *Indicator) SetState(s ConnectionState) {
	c := colorFor(s)
	if ind.lit && c == ind.last {
		return
	}
	if err := ind.led.Write(c); err != nil {
		ind.logger.Log("indicator write failed: %v", err)
		return
	}
	ind.last = c
	ind.lit = true
}

// Run consumes connection state updates until the context is cancelled,
// then blanks the LED.
func (ind *Indicator) Run(ctx context.Context, updates <-chan ConnectionState) {
	for {
		select {
		case <-ctx.Done():
			if err := ind.led.Write(colorOff); err != nil {
				ind.logger.Log("indicator write failed: %v", err)
			}
			return
		case s := <-updates:
			ind.SetState(s)
		}
	}
}
