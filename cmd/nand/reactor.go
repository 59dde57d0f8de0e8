package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nan80211/nand/internal/console"
	"github.com/nan80211/nand/internal/metrics"
	"github.com/nan80211/nand/internal/nan"
	"github.com/nan80211/nand/internal/radio"
	"github.com/nan80211/nand/internal/wire"
)

// runReactor is the single-threaded select-loop spec.md §5 mandates: the
// only goroutine that ever touches dev/sched/rx state. Every other
// goroutine (radio capture, TAP capture, stdin scanning) only ever
// hands this loop data over a channel: ctx.Done, a receive channel, and
// a set of *time.Timer channels reset after each fire.
func runReactor(
	ctx context.Context,
	dev *nan.Device,
	sched *nan.Scheduler,
	rx *nan.RX,
	collector *metrics.Collector,
	wlanIn <-chan []byte,
	hostIn <-chan []byte,
	cmds <-chan console.Command,
	logLevel *slog.LevelVar,
	logger *slog.Logger,
) error {
	now := time.Now()
	discoveryTimer := time.NewTimer(sched.NextDiscoveryBeaconDelay(now))
	defer discoveryTimer.Stop()
	dwStartTimer := time.NewTimer(sched.NextDWStartDelay(now))
	defer dwStartTimer.Stop()
	dwEndTimer := time.NewTimer(sched.NextDWEndDelay(now))
	defer dwEndTimer.Stop()
	cleanupTimer := time.NewTimer(sched.DefaultCleanupDelay())
	defer cleanupTimer.Stop()

	lastRole := dev.Election.Role
	updateGauges(dev, collector)

	for {
		select {
		case <-ctx.Done():
			return nil

		case frame, ok := <-wlanIn:
			if !ok {
				wlanIn = nil
				continue
			}
			err := rx.Receive(frame, time.Now())
			collector.IncRXFrames(nan.OutcomeReason(err))
			if err != nil && !isIgnorableRXError(err) {
				logger.Debug("rx frame dropped", slog.String("reason", nan.OutcomeReason(err)))
			}

		case frame, ok := <-hostIn:
			if !ok {
				hostIn = nil
				continue
			}
			routeHostFrame(dev, frame, logger)

		case cmd, ok := <-cmds:
			if !ok {
				cmds = nil
				continue
			}
			if err := console.Execute(dev, logLevel, time.Now(), cmd, os.Stdout); err != nil {
				logger.Debug("console command failed",
					slog.String("verb", cmd.Verb),
					slog.String("error", err.Error()))
			}

		case t := <-discoveryTimer.C:
			sched.OnDiscoveryBeaconTick(t)
			discoveryTimer.Reset(sched.NextDiscoveryBeaconDelay(t))

		case t := <-dwStartTimer.C:
			sched.OnDWStart(t)
			dwStartTimer.Reset(sched.NextDWStartDelay(t))
			dwEndTimer.Reset(sched.NextDWEndDelay(t))

		case t := <-dwEndTimer.C:
			sched.OnDWEnd(t)
			if dev.Election.Role != lastRole {
				collector.RecordElectionTransition(uint8(dev.Election.Role))
				lastRole = dev.Election.Role
			}

		case t := <-cleanupTimer.C:
			sched.OnCleanupTick(t)
			cleanupTimer.Reset(sched.DefaultCleanupDelay())
		}

		updateGauges(dev, collector)
	}
}

// isIgnorableRXError reports whether err is one of the expected,
// non-noteworthy drop reasons (§7 "Ignorable") that don't warrant a log
// line on every occurrence.
func isIgnorableRXError(err error) bool {
	return errors.Is(err, nan.ErrIgnoreFromSelf) ||
		errors.Is(err, nan.ErrIgnoreOUI) ||
		errors.Is(err, nan.ErrIgnoreFailedCRC) ||
		errors.Is(err, nan.ErrIgnoreSyncOutsideDW)
}

// updateGauges refreshes every Prometheus gauge from current device
// state. Called once per reactor iteration; cheap relative to a
// channel wakeup.
func updateGauges(dev *nan.Device, collector *metrics.Collector) {
	collector.SetPeerCount(dev.Peers.Len())
	collector.SetRole(uint8(dev.Election.Role))
	collector.SetOutboundBufferOccupancy(dev.Buffer.Len())

	published, subscribed := 0, 0
	dev.Services.Each(func(s *nan.Service) {
		if s.Published {
			published++
		} else {
			subscribed++
		}
	})
	collector.SetServiceCounts(published, subscribed)
}

// routeHostFrame implements the host-TAP side of spec.md §6: it is
// consulted only to route to known peers, no frame is injected on this
// path in the present core.
func routeHostFrame(dev *nan.Device, frame []byte, logger *slog.Logger) {
	if len(frame) < 6 {
		return
	}
	var dst wire.EtherAddr
	copy(dst[:], frame[:6])

	if dev.Peers.Get(dst) != nil {
		logger.Debug("host frame addressed to known peer", slog.String("peer", dst.String()))
		return
	}
	logger.Debug("host frame addressed to unknown peer", slog.String("peer", dst.String()))
}

// pumpWlan reads captured frames from link and forwards them to out
// until ctx is cancelled or the link closes.
func pumpWlan(ctx context.Context, link radio.WlanLink, out chan<- []byte) error {
	for {
		frame, err := link.Receive()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, radio.ErrClosed) {
				return nil
			}
			return fmt.Errorf("wlan receive: %w", err)
		}
		select {
		case out <- frame:
		case <-ctx.Done():
			return nil
		}
	}
}

// pumpHost reads frames from the host TAP link and forwards them to
// out until ctx is cancelled or the link closes.
func pumpHost(ctx context.Context, link radio.HostLink, out chan<- []byte) error {
	for {
		frame, err := link.Receive()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, radio.ErrClosed) {
				return nil
			}
			return fmt.Errorf("host receive: %w", err)
		}
		select {
		case out <- frame:
		case <-ctx.Done():
			return nil
		}
	}
}
