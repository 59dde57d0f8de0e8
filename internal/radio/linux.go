//go:build linux

package radio

import (
	"fmt"
	"net"
	"sync"

	"golang.org/x/sys/unix"
)

// -------------------------------------------------------------------------
// MonitorSocket — AF_PACKET monitor-mode WlanLink
// -------------------------------------------------------------------------

// MonitorSocket implements WlanLink over an AF_PACKET SOCK_RAW socket
// bound to a monitor-mode interface: a thin struct around a kernel fd
// plus the mutex/closed bookkeeping needed to make Close idempotent.
type MonitorSocket struct {
	fd      int
	ifindex int
	mu      sync.Mutex
	closed  bool
}

// OpenMonitorSocket binds an AF_PACKET/SOCK_RAW/ETH_P_ALL socket to
// ifName, the interface spec.md §6 requires to already be
// monitor-capable. Unless skipLinkUpDown, it brings the interface
// administratively up first. Unless skipChannelSet, it also tunes the
// interface to channel via the wireless-extensions SIOCSIWFREQ ioctl.
func OpenMonitorSocket(ifName string, channel int, skipChannelSet, skipLinkUpDown bool) (*MonitorSocket, error) {
	if !skipLinkUpDown {
		if err := setLinkUp(ifName, true); err != nil {
			return nil, fmt.Errorf("bring up %s: %w", ifName, err)
		}
	}

	if !skipChannelSet {
		if err := setChannel(ifName, channel); err != nil {
			return nil, fmt.Errorf("set channel %d on %s: %w", channel, ifName, err)
		}
	}

	iface, err := net.InterfaceByName(ifName)
	if err != nil {
		return nil, fmt.Errorf("lookup interface %s: %w", ifName, err)
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(unix.ETH_P_ALL)))
	if err != nil {
		return nil, fmt.Errorf("open AF_PACKET socket: %w", err)
	}

	addr := &unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  iface.Index,
	}
	if err := unix.Bind(fd, addr); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("bind AF_PACKET socket to %s: %w", ifName, err)
	}

	return &MonitorSocket{fd: fd, ifindex: iface.Index}, nil
}

// Send implements WlanLink by injecting frame as-is; the caller
// supplies the radiotap header describing the desired PHY rate/flags.
func (m *MonitorSocket) Send(frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	addr := &unix.SockaddrLinklayer{Protocol: htons(unix.ETH_P_ALL), Ifindex: m.ifindex}
	if err := unix.Sendto(m.fd, frame, 0, addr); err != nil {
		return fmt.Errorf("sendto: %w", err)
	}
	return nil
}

// Receive implements WlanLink by reading one captured frame, radiotap
// header intact.
func (m *MonitorSocket) Receive() ([]byte, error) {
	buf := make([]byte, 65535)
	n, _, err := unix.Recvfrom(m.fd, buf, 0)
	if err != nil {
		return nil, fmt.Errorf("recvfrom: %w", err)
	}
	return buf[:n], nil
}

// Close implements WlanLink.
func (m *MonitorSocket) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if err := unix.Close(m.fd); err != nil {
		return fmt.Errorf("close AF_PACKET socket: %w", err)
	}
	return nil
}

// -------------------------------------------------------------------------
// TAPDevice — host-side HostLink
// -------------------------------------------------------------------------

// TAPDevice implements HostLink over a Linux TAP character device.
// OpenTAP does not set the interface MAC: it keeps the address the
// kernel assigns, not the daemon's self address.
type TAPDevice struct {
	fd     int
	name   string
	mu     sync.Mutex
	closed bool
}

const tapMTU = 1450

// OpenTAP creates (or attaches to) the named TAP interface, sets its
// MTU to 1450, and brings it up unless skipLinkUpDown.
func OpenTAP(name string, skipLinkUpDown bool) (*TAPDevice, error) {
	fd, err := unix.Open("/dev/net/tun", unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/net/tun: %w", err)
	}

	req, err := unix.NewIfreq(name)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("build ifreq for %s: %w", name, err)
	}
	req.SetUint16(unix.IFF_TAP | unix.IFF_NO_PI)
	if err := unix.IoctlIfreq(fd, unix.TUNSETIFF, req); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("TUNSETIFF %s: %w", name, err)
	}

	if err := setMTU(name, tapMTU); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("set MTU on %s: %w", name, err)
	}

	if !skipLinkUpDown {
		if err := setLinkUp(name, true); err != nil {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("bring up %s: %w", name, err)
		}
	}

	return &TAPDevice{fd: fd, name: name}, nil
}

// Send implements HostLink.
func (t *TAPDevice) Send(frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if _, err := unix.Write(t.fd, frame); err != nil {
		return fmt.Errorf("write TAP frame: %w", err)
	}
	return nil
}

// Receive implements HostLink.
func (t *TAPDevice) Receive() ([]byte, error) {
	buf := make([]byte, tapMTU+18) // + Ethernet header and VLAN tag headroom
	n, err := unix.Read(t.fd, buf)
	if err != nil {
		return nil, fmt.Errorf("read TAP frame: %w", err)
	}
	return buf[:n], nil
}

// Close implements HostLink.
func (t *TAPDevice) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if err := unix.Close(t.fd); err != nil {
		return fmt.Errorf("close TAP device: %w", err)
	}
	return nil
}

// -------------------------------------------------------------------------
// ioctl helpers
// -------------------------------------------------------------------------

func htons(v uint32) uint16 {
	return uint16(v>>8) | uint16(v<<8)
}

// setLinkUp toggles IFF_UP via SIOCGIFFLAGS/SIOCSIFFLAGS.
func setLinkUp(name string, up bool) error {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return err
	}
	defer unix.Close(fd)

	req, err := unix.NewIfreq(name)
	if err != nil {
		return err
	}
	if err := unix.IoctlIfreq(fd, unix.SIOCGIFFLAGS, req); err != nil {
		return err
	}

	flags := req.Uint16()
	if up {
		flags |= unix.IFF_UP
	} else {
		flags &^= unix.IFF_UP
	}
	req.SetUint16(flags)

	return unix.IoctlIfreq(fd, unix.SIOCSIFFLAGS, req)
}

// setMTU sets the interface MTU via SIOCSIFMTU.
func setMTU(name string, mtu int) error {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return err
	}
	defer unix.Close(fd)

	req, err := unix.NewIfreq(name)
	if err != nil {
		return err
	}
	req.SetUint32(uint32(mtu))
	return unix.IoctlIfreq(fd, unix.SIOCSIFMTU, req)
}

// setChannel tunes the monitor-mode interface to channel via the
// wireless-extensions SIOCSIWFREQ ioctl. Modern mac80211 drivers favor
// nl80211, but SIOCSIWFREQ remains supported for monitor-mode channel
// switches and keeps this path free of an additional netlink
// dependency.
func setChannel(name string, channel int) error {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return err
	}
	defer unix.Close(fd)

	freq := channelFrequencyMHz(channel)
	if freq == 0 {
		return fmt.Errorf("unsupported channel %d", channel)
	}

	req, err := unix.NewIfreq(name)
	if err != nil {
		return err
	}
	// SIOCSIWFREQ's iw_freq is mantissa m plus exponent e; with e=0 the
	// kernel reads m as a channel number. freq above only validates it.
	req.SetUint32(uint32(channel))
	return unix.IoctlIfreq(fd, unix.SIOCSIWFREQ, req)
}

// channelFrequencyMHz maps the accepted NAN channel set (spec.md §6:
// 6, 44, 149) to its 802.11 center frequency.
func channelFrequencyMHz(channel int) int {
	switch channel {
	case 6:
		return 2437
	case 44:
		return 5220
	case 149:
		return 5745
	default:
		return 0
	}
}
