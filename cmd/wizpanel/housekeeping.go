package main

import (
	"log/slog"
	"net"
	"time"
)

// interfaceLookup reports whether a named interface is up with an address.
type interfaceLookup func(name string) (bool, error)

// netInterfaceUp is the production lookup.
func netInterfaceUp(name string) (bool, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return false, err
	}
	if ifi.Flags&net.FlagUp == 0 {
		return false, nil
	}
	addrs, err := ifi.Addrs()
	if err != nil {
		return false, err
	}
	return len(addrs) > 0, nil
}

// netMonitor checks the network interface at a fixed interval from the poll
// loop and logs transitions. Reconnecting is left to the OS.
type netMonitor struct {
	iface    string
	interval time.Duration
	lookup   interfaceLookup
	logger   *slog.Logger

	nextCheck time.Time
	checked   bool
	up        bool
}

func newNetMonitor(iface string, interval time.Duration, lookup interfaceLookup, logger *slog.Logger) *netMonitor {
	return &netMonitor{iface: iface, interval: interval, lookup: lookup, logger: logger}
}

// Check runs the lookup when due. It returns true when a check ran.
func (m *netMonitor) Check(now time.Time) bool {
	if m == nil || m.iface == "" {
		return false
	}
	if m.checked && now.Before(m.nextCheck) {
		return false
	}
	m.nextCheck = now.Add(m.interval)

	up, err := m.lookup(m.iface)
	if err != nil {
		m.logger.Debug("network interface lookup failed", "interface", m.iface, "error", err)
		up = false
	}

	switch {
	case !m.checked && up:
		m.logger.Info("network interface up", "interface", m.iface)
	case !m.checked && !up:
		m.logger.Warn("network interface down; commands will fail until it returns", "interface", m.iface)
	case m.up && !up:
		m.logger.Warn("network interface went down", "interface", m.iface)
	case !m.up && up:
		m.logger.Info("network interface is back up", "interface", m.iface)
	}

	m.checked = true
	m.up = up
	return true
}

// Up reports the result of the last check.
func (m *netMonitor) Up() bool { return m != nil && m.up }
