package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/librescoot/librefsm"
)

// WifiRadio is the association backend. The production implementation talks
// to wpa_supplicant over D-Bus (wpa.go); tests and desktop builds use fakes.
type WifiRadio interface {
	// Associate kicks off one association attempt. It returns once the
	// attempt is underway; completion or loss is reported via Events.
	Associate(ssid, psk string) error
	// Events delivers link state reports until Close.
	Events() <-chan RadioEvent
	Close() error
}

// Connectivity machine states and events.
const (
	connDisconnected librefsm.StateID = "disconnected"
	connConnecting   librefsm.StateID = "connecting"
	connConnected    librefsm.StateID = "connected"
)

const (
	evRetry       librefsm.EventID = "retry"
	evLinkUp      librefsm.EventID = "link_up"
	evLinkDown    librefsm.EventID = "link_down"
	evAssocFailed librefsm.EventID = "assoc_failed"
)

const retryTimer = "retry"

const (
	defaultAssocTimeout = 30 * time.Second
	initialRetryBackoff = time.Second
	maxRetryBackoff     = time.Minute
)

// ConnectivityManager owns the radio and the ConnectionState. It drives a
// small state machine: disconnected -> connecting on a (backed off) retry
// timer, connecting -> connected when the radio reports the link up, and
// back to disconnected on association failure, timeout or link loss.
// Association failure is indistinguishable from remaining non-connected;
// there is no separate error channel.
type ConnectivityManager struct {
	radio   WifiRadio
	cfg     WiFiConfig
	logger  *EventLogger
	machine *librefsm.Machine

	// updates is a capacity-1 latest-value channel. Bursts of transitions
	// coalesce; the receiver always converges to the newest state.
	updates chan ConnectionState

	// backoff is the delay before the next association attempt. Zero means
	// retry immediately (first attempt after startup). Only touched from
	// machine callbacks, which never run concurrently.
	backoff    time.Duration
	minBackoff time.Duration
	maxBackoff time.Duration
}

// NewConnectivityManager builds the manager around an exclusively owned
// radio handle. Call Start to begin associating.
func NewConnectivityManager(radio WifiRadio, cfg WiFiConfig, logger *EventLogger) (*ConnectivityManager, error) {
	assocTimeout := defaultAssocTimeout
	if cfg.AssocTimeoutSec > 0 {
		assocTimeout = time.Duration(cfg.AssocTimeoutSec) * time.Second
	}
	cm := &ConnectivityManager{
		radio:      radio,
		cfg:        cfg,
		logger:     logger,
		updates:    make(chan ConnectionState, 1),
		minBackoff: initialRetryBackoff,
		maxBackoff: maxRetryBackoff,
	}

	def := librefsm.NewDefinition().
		State(connDisconnected,
			librefsm.WithOnEnter(cm.enterDisconnected),
		).
		State(connConnecting,
			librefsm.WithOnEnter(cm.enterConnecting),
			librefsm.WithTimeout(assocTimeout, evAssocFailed),
		).
		State(connConnected,
			librefsm.WithOnEnter(cm.enterConnected),
		).
		Transition(connDisconnected, evRetry, connConnecting).
		Transition(connConnecting, evLinkUp, connConnected).
		Transition(connConnecting, evAssocFailed, connDisconnected).
		Transition(connConnecting, evLinkDown, connDisconnected).
		Transition(connConnected, evLinkDown, connDisconnected).
		Initial(connDisconnected)

	m, err := def.Build(librefsm.WithLogger(slog.Default()))
	if err != nil {
		return nil, fmt.Errorf("build connectivity machine: %w", err)
	}
	m.OnStateChange(cm.stateChanged)
	cm.machine = m
	return cm, nil
}

// Start publishes the initial Disconnected state, enters the machine and
// begins pumping radio events. The context bounds the machine's lifetime.
func (cm *ConnectivityManager) Start(ctx context.Context) error {
	cm.publish(StateDisconnected)
	if err := cm.machine.Start(ctx); err != nil {
		return err
	}
	go cm.pumpRadioEvents(ctx)
	return nil
}

// Stop shuts the machine down. The radio handle is closed by whoever opened
// the peripherals.
func (cm *ConnectivityManager) Stop() error {
	return cm.machine.Stop()
}

// Updates returns the state notification channel consumed by the indicator.
func (cm *ConnectivityManager) Updates() <-chan ConnectionState {
	return cm.updates
}

// State returns the current connection state.
func (cm *ConnectivityManager) State() ConnectionState {
	return stateOf(cm.machine.CurrentState())
}

func stateOf(id librefsm.StateID) ConnectionState {
	switch id {
	case connConnecting:
		return StateConnecting
	case connConnected:
		return StateConnected
	default:
		return StateDisconnected
	}
}

func (cm *ConnectivityManager) stateChanged(from, to librefsm.StateID) {
	cm.logger.Log("wifi %s -> %s", from, to)
	cm.publish(stateOf(to))
}

// publish replaces whatever is pending in the latest-value channel.
func (cm *ConnectivityManager) publish(s ConnectionState) {
	select {
	case <-cm.updates:
	default:
	}
	cm.updates <- s
}

// enterDisconnected arms the retry timer and grows the backoff for the next
// round. The timer is state-scoped, so a link-up racing in through another
// path would cancel it cleanly.
func (cm *ConnectivityManager) enterDisconnected(c *librefsm.Context) error {
	c.StartTimer(retryTimer, cm.nextRetryDelay(), librefsm.Event{ID: evRetry})
	return nil
}

// nextRetryDelay returns the delay before the next association attempt and
// doubles the backoff, bounded by maxBackoff.
func (cm *ConnectivityManager) nextRetryDelay() time.Duration {
	delay := cm.backoff
	if cm.backoff < cm.minBackoff {
		cm.backoff = cm.minBackoff
	} else {
		cm.backoff *= 2
		if cm.backoff > cm.maxBackoff {
			cm.backoff = cm.maxBackoff
		}
	}
	return delay
}

// enterConnecting starts one association attempt. The radio call can block
// on the bus, so it runs off the machine's event loop.
func (cm *ConnectivityManager) enterConnecting(c *librefsm.Context) error {
	go func() {
		if err := cm.radio.Associate(cm.cfg.SSID, cm.cfg.PSK); err != nil {
			cm.logger.Log("wifi association failed: %v", err)
			cm.machine.Send(librefsm.Event{ID: evAssocFailed})
		}
	}()
	return nil
}

func (cm *ConnectivityManager) enterConnected(c *librefsm.Context) error {
	cm.backoff = 0
	return nil
}

// pumpRadioEvents translates radio link reports into machine events.
func (cm *ConnectivityManager) pumpRadioEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-cm.radio.Events():
			if !ok {
				return
			}
			switch ev {
			case RadioLinkUp:
				cm.machine.Send(librefsm.Event{ID: evLinkUp})
			case RadioLinkDown:
				cm.machine.Send(librefsm.Event{ID: evLinkDown})
			}
		}
	}
}
