//go:build linux

package main

import (
	"fmt"
	"net"

	"github.com/nan80211/nand/internal/config"
	"github.com/nan80211/nand/internal/radio"
)

// openRadioLinks opens the monitor-mode WLAN socket and the host-side
// TAP device the configuration names, returning the ifindex of the
// WLAN interface for the neighbor-table observer.
func openRadioLinks(cfg config.RadioConfig) (radio.WlanLink, radio.HostLink, int, error) {
	iface, err := net.InterfaceByName(cfg.Interface)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("lookup interface %s: %w", cfg.Interface, err)
	}

	wlan, err := radio.OpenMonitorSocket(cfg.Interface, cfg.Channel, cfg.SkipChannelSet, cfg.SkipLinkUpDown)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("open monitor socket: %w", err)
	}

	host, err := radio.OpenTAP(cfg.HostInterface, cfg.SkipLinkUpDown)
	if err != nil {
		_ = wlan.Close()
		return nil, nil, 0, fmt.Errorf("open TAP device: %w", err)
	}

	return wlan, host, iface.Index, nil
}
