//go:build !linux

package main

import (
	"errors"

	"github.com/nan80211/nand/internal/config"
	"github.com/nan80211/nand/internal/radio"
)

// errUnsupportedPlatform is returned by openRadioLinks on any platform
// other than Linux: monitor-mode sockets and TAP devices are Linux
// kernel facilities (internal/radio's //go:build linux file).
var errUnsupportedPlatform = errors.New("nand: radio I/O requires linux")

func openRadioLinks(config.RadioConfig) (radio.WlanLink, radio.HostLink, int, error) {
	return nil, nil, 0, errUnsupportedPlatform
}
