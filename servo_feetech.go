package main

// Feetech serial-bus servo backend. These servos take absolute raw positions
// instead of a PWM pulse; the configured raw range is mapped linearly onto
// 0..180 degrees.

import (
	"context"
	"fmt"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
)

const feetechWriteTimeout = time.Second

type feetechServo struct {
	bus   *feetech.Bus
	group *feetech.ServoGroup
	cfg   FeetechConfig
}

func newFeetechServo(cfg FeetechConfig) (*feetechServo, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 1_000_000
	}
	if cfg.RawMax <= cfg.RawMin {
		return nil, fmt.Errorf("feetech raw range [%d, %d] is empty", cfg.RawMin, cfg.RawMax)
	}
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     cfg.Port,
		BaudRate: cfg.BaudRate,
		Protocol: feetech.ProtocolSTS,
	})
	if err != nil {
		return nil, fmt.Errorf("open servo bus: %w", err)
	}
	group := feetech.NewServoGroupByIDs(bus, cfg.ID)

	ctx, cancel := context.WithTimeout(context.Background(), feetechWriteTimeout)
	defer cancel()
	if err := group.EnableAll(ctx); err != nil {
		bus.Close()
		return nil, fmt.Errorf("enable torque: %w", err)
	}
	return &feetechServo{bus: bus, group: group, cfg: cfg}, nil
}

// rawPosition maps degrees onto the calibrated raw range.
func (s *feetechServo) rawPosition(deg int) int {
	return s.cfg.RawMin + deg*(s.cfg.RawMax-s.cfg.RawMin)/180
}

func (s *feetechServo) SetAngle(deg int) error {
	if deg < 0 || deg > 180 {
		return fmt.Errorf("angle %d out of range 0-180", deg)
	}
	ctx, cancel := context.WithTimeout(context.Background(), feetechWriteTimeout)
	defer cancel()
	if err := s.group.SetPositions(ctx, feetech.PositionMap{s.cfg.ID: s.rawPosition(deg)}); err != nil {
		return fmt.Errorf("write position: %w", err)
	}
	return nil
}

func (s *feetechServo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), feetechWriteTimeout)
	defer cancel()
	// Drop torque so the mallet can be moved by hand.
	if err := s.group.DisableAll(ctx); err != nil {
		s.bus.Close()
		return err
	}
	return s.bus.Close()
}
