package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeLED records every pixel write.
type fakeLED struct {
	mu     sync.Mutex
	writes []Color
	fail   bool
}

func (f *fakeLED) Write(c Color) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("write failed")
	}
	f.writes = append(f.writes, c)
	return nil
}

func (f *fakeLED) Close() error { return nil }

func (f *fakeLED) recorded() []Color {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Color, len(f.writes))
	copy(out, f.writes)
	return out
}

// Disconnected renders as off; that choice is pinned here.
func TestColorMapping(t *testing.T) {
	tests := []struct {
		state ConnectionState
		want  Color
	}{
		{StateDisconnected, colorOff},
		{StateConnecting, colorYellow},
		{StateConnected, colorGreen},
	}
	for _, tt := range tests {
		if got := colorFor(tt.state); got != tt.want {
			t.Errorf("colorFor(%s) = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestIndicatorTracksLatestState(t *testing.T) {
	led := &fakeLED{}
	ind := NewIndicator(led, newTestLogger(t))

	seq := []ConnectionState{
		StateDisconnected, StateConnecting, StateConnected,
		StateDisconnected, StateConnecting,
	}
	for _, s := range seq {
		ind.SetState(s)
		w := led.recorded()
		if len(w) == 0 || w[len(w)-1] != colorFor(s) {
			t.Fatalf("after SetState(%s): displayed %v, want %v", s, w, colorFor(s))
		}
	}
}

func TestIndicatorIdempotent(t *testing.T) {
	led := &fakeLED{}
	ind := NewIndicator(led, newTestLogger(t))

	ind.SetState(StateConnecting)
	ind.SetState(StateConnecting)
	ind.SetState(StateConnecting)

	if got := len(led.recorded()); got != 1 {
		t.Errorf("%d LED writes for repeated identical state, want 1", got)
	}
}

// Power-on scenario: disconnected shows off, association shows yellow,
// address obtained shows green.
func TestIndicatorPowerOnSequence(t *testing.T) {
	led := &fakeLED{}
	ind := NewIndicator(led, newTestLogger(t))

	ind.SetState(StateDisconnected)
	ind.SetState(StateConnecting)
	ind.SetState(StateConnected)

	want := []Color{colorOff, colorYellow, colorGreen}
	got := led.recorded()
	if len(got) != len(want) {
		t.Fatalf("writes %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("write[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestIndicatorRetriesAfterWriteFailure(t *testing.T) {
	led := &fakeLED{fail: true}
	ind := NewIndicator(led, newTestLogger(t))

	ind.SetState(StateConnecting)
	if got := len(led.recorded()); got != 0 {
		t.Fatalf("failed write recorded a color: %v", led.recorded())
	}

	led.mu.Lock()
	led.fail = false
	led.mu.Unlock()

	// The failed color was never marked applied, so the same state writes.
	ind.SetState(StateConnecting)
	w := led.recorded()
	if len(w) != 1 || w[0] != colorYellow {
		t.Errorf("writes after recovery = %v, want [%v]", w, colorYellow)
	}
}

func TestIndicatorRunBlanksOnShutdown(t *testing.T) {
	led := &fakeLED{}
	ind := NewIndicator(led, newTestLogger(t))

	updates := make(chan ConnectionState, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ind.Run(ctx, updates)
		close(done)
	}()

	updates <- StateConnected
	waitFor(t, time.Second, func() bool {
		w := led.recorded()
		return len(w) == 1 && w[0] == colorGreen
	})

	cancel()
	<-done
	w := led.recorded()
	if w[len(w)-1] != colorOff {
		t.Errorf("final write = %v, want off", w[len(w)-1])
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
