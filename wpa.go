package main

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	wpaBusName    = "fi.w1.wpa_supplicant1"
	wpaRootPath   = dbus.ObjectPath("/fi/w1/wpa_supplicant1")
	wpaRootIface  = "fi.w1.wpa_supplicant1"
	wpaIfaceIface = "fi.w1.wpa_supplicant1.Interface"
)

// wpaRadio drives association through wpa_supplicant on the system D-Bus.
// Link state comes from the Interface object's PropertiesChanged signal:
// "completed" means associated with an address, anything that falls back to
// "disconnected"/"inactive" means the link is down.
type wpaRadio struct {
	conn    *dbus.Conn
	iface   dbus.ObjectPath // the fi.w1.wpa_supplicant1.Interface object
	signals chan *dbus.Signal
	events  chan RadioEvent
}

// newWPARadio resolves the named network interface (e.g. "wlan0") to its
// wpa_supplicant object and subscribes to its state changes.
func newWPARadio(ifname string) (*wpaRadio, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}

	var ifacePath dbus.ObjectPath
	root := conn.Object(wpaBusName, wpaRootPath)
	if err := root.Call(wpaRootIface+".GetInterface", 0, ifname).Store(&ifacePath); err != nil {
		conn.Close()
		return nil, fmt.Errorf("interface %s not managed by wpa_supplicant: %w", ifname, err)
	}

	if err := conn.BusObject().Call(
		"org.freedesktop.DBus.AddMatch", 0,
		"type='signal',interface='"+wpaIfaceIface+"',member='PropertiesChanged',path='"+string(ifacePath)+"'",
	).Err; err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe to wpa_supplicant signals: %w", err)
	}

	r := &wpaRadio{
		conn:    conn,
		iface:   ifacePath,
		signals: make(chan *dbus.Signal, 16),
		events:  make(chan RadioEvent, 4),
	}
	conn.Signal(r.signals)
	go r.watchSignals()
	return r, nil
}

// watchSignals maps wpa_supplicant state strings onto RadioEvents.
func (r *wpaRadio) watchSignals() {
	defer close(r.events)
	for sig := range r.signals {
		if sig.Name != wpaIfaceIface+".PropertiesChanged" || sig.Path != r.iface {
			continue
		}
		if len(sig.Body) < 1 {
			continue
		}
		props, ok := sig.Body[0].(map[string]dbus.Variant)
		if !ok {
			continue
		}
		stateVar, ok := props["State"]
		if !ok {
			continue
		}
		state, ok := stateVar.Value().(string)
		if !ok {
			continue
		}
		switch state {
		case "completed":
			r.emit(RadioLinkUp)
		case "disconnected", "inactive", "interface_disabled":
			r.emit(RadioLinkDown)
		}
		// Intermediate states (scanning, associating, 4way_handshake, ...)
		// are all still "connecting" from the daemon's point of view.
	}
}

// emit never blocks: if the consumer lags, stale link reports are dropped in
// favour of newer ones.
func (r *wpaRadio) emit(ev RadioEvent) {
	select {
	case r.events <- ev:
	default:
		select {
		case <-r.events:
		default:
		}
		r.events <- ev
	}
}

// Associate replaces any configured network with the given credentials and
// selects it, which makes wpa_supplicant start the association procedure.
func (r *wpaRadio) Associate(ssid, psk string) error {
	obj := r.conn.Object(wpaBusName, r.iface)

	if err := obj.Call(wpaIfaceIface+".RemoveAllNetworks", 0).Err; err != nil {
		return fmt.Errorf("remove stale networks: %w", err)
	}

	args := map[string]interface{}{
		"ssid":     ssid,
		"psk":      psk,
		"key_mgmt": "WPA-PSK",
	}
	var network dbus.ObjectPath
	if err := obj.Call(wpaIfaceIface+".AddNetwork", 0, args).Store(&network); err != nil {
		return fmt.Errorf("add network: %w", err)
	}
	if err := obj.Call(wpaIfaceIface+".SelectNetwork", 0, network).Err; err != nil {
		return fmt.Errorf("select network: %w", err)
	}
	return nil
}

func (r *wpaRadio) Events() <-chan RadioEvent {
	return r.events
}

func (r *wpaRadio) Close() error {
	r.conn.RemoveSignal(r.signals)
	close(r.signals)
	return r.conn.Close()
}
