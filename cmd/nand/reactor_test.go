package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/goleak"

	"github.com/nan80211/nand/internal/console"
	"github.com/nan80211/nand/internal/metrics"
	"github.com/nan80211/nand/internal/nan"
	"github.com/nan80211/nand/internal/radio"
	"github.com/nan80211/nand/internal/wire"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testAddr(last byte) wire.EtherAddr {
	return wire.EtherAddr{0x02, 0, 0, 0, 0, last}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestRunReactorStopsOnCancel confirms the select loop returns promptly
// and without leaking goroutines once its context is cancelled, the
// same property the teacher's Session.runLoop is tested for.
func TestRunReactorStopsOnCancel(t *testing.T) {
	dev := nan.NewDevice(testAddr(0x01), nan.NopObserver{}, time.Now())
	wlan, peer := radio.NewLoopbackPair(4)
	defer func() { _ = wlan.Close(); _ = peer.Close() }()
	sched := nan.NewScheduler(dev, wlan, discardLogger())
	rx := nan.NewRX(dev, discardLogger())
	collector := metrics.NewCollector(prometheus.NewRegistry())
	logLevel := new(slog.LevelVar)

	ctx, cancel := context.WithCancel(context.Background())
	wlanIn := make(chan []byte)
	hostIn := make(chan []byte)
	cmds := make(chan console.Command)

	done := make(chan error, 1)
	go func() {
		done <- runReactor(ctx, dev, sched, rx, collector, wlanIn, hostIn, cmds, logLevel, discardLogger())
	}()

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runReactor returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("runReactor did not stop after context cancellation")
	}
}

// TestRunReactorProcessesWlanFrame feeds a real discovery beacon through
// the wlanIn channel and confirms it reaches the RX pipeline and is
// reflected in the peer table, exercising the reactor's wiring of
// rx.Receive and the metrics collector end to end.
func TestRunReactorProcessesWlanFrame(t *testing.T) {
	dev := nan.NewDevice(testAddr(0x01), nan.NopObserver{}, time.Now())
	wlan, _ := radio.NewLoopbackPair(4)
	defer func() { _ = wlan.Close() }()
	sched := nan.NewScheduler(dev, wlan, discardLogger())
	rx := nan.NewRX(dev, discardLogger())
	collector := metrics.NewCollector(prometheus.NewRegistry())
	logLevel := new(slog.LevelVar)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wlanIn := make(chan []byte, 1)
	hostIn := make(chan []byte)
	cmds := make(chan console.Command)

	done := make(chan error, 1)
	go func() {
		done <- runReactor(ctx, dev, sched, rx, collector, wlanIn, hostIn, cmds, logLevel, discardLogger())
	}()

	peerDev := nan.NewDevice(testAddr(0x02), nan.NopObserver{}, time.Now())
	frame := peerDev.BuildDiscoveryBeacon(time.Now())

	select {
	case wlanIn <- frame:
	case <-time.After(time.Second):
		t.Fatal("timed out sending frame to reactor")
	}

	deadline := time.Now().Add(2 * time.Second)
	for dev.Peers.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if dev.Peers.Len() == 0 {
		t.Fatal("expected discovery beacon to register a peer")
	}
	if dev.Peers.Get(testAddr(0x02)) == nil {
		t.Fatal("expected peer 0x02 to be known after discovery beacon")
	}

	cancel()
	<-done
}

// TestRunReactorProcessesConsoleCommand confirms a parsed console
// command reaches console.Execute without blocking the reactor.
func TestRunReactorProcessesConsoleCommand(t *testing.T) {
	dev := nan.NewDevice(testAddr(0x01), nan.NopObserver{}, time.Now())
	wlan, _ := radio.NewLoopbackPair(4)
	defer func() { _ = wlan.Close() }()
	sched := nan.NewScheduler(dev, wlan, discardLogger())
	rx := nan.NewRX(dev, discardLogger())
	collector := metrics.NewCollector(prometheus.NewRegistry())
	logLevel := new(slog.LevelVar)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wlanIn := make(chan []byte)
	hostIn := make(chan []byte)
	cmds := make(chan console.Command, 1)

	done := make(chan error, 1)
	go func() {
		done <- runReactor(ctx, dev, sched, rx, collector, wlanIn, hostIn, cmds, logLevel, discardLogger())
	}()

	select {
	case cmds <- console.ParseLine("device"):
	case <-time.After(time.Second):
		t.Fatal("timed out sending command to reactor")
	}

	// Give the reactor a moment to dispatch before tearing down; there is
	// no observable side effect from "device" beyond its stdout print, so
	// this only confirms the command path doesn't deadlock or panic.
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done
}

func TestUpdateGaugesReflectsDeviceState(t *testing.T) {
	dev := nan.NewDevice(testAddr(0x01), nan.NopObserver{}, time.Now())
	collector := metrics.NewCollector(prometheus.NewRegistry())

	if _, err := dev.Services.Publish("chat", nan.PublishUnsolicited, -1, nil); err != nil {
		t.Fatalf("publish: %v", err)
	}

	updateGauges(dev, collector)

	m := &dto.Metric{}
	if err := collector.Services.WithLabelValues("published").Write(m); err != nil {
		t.Fatalf("read services gauge: %v", err)
	}
	if got := m.GetGauge().GetValue(); got != 1 {
		t.Errorf("services{published} = %v, want 1", got)
	}
	m = &dto.Metric{}
	if err := collector.Peers.Write(m); err != nil {
		t.Fatalf("read peers gauge: %v", err)
	}
	if got := m.GetGauge().GetValue(); got != 0 {
		t.Errorf("peers = %v, want 0", got)
	}
}

func TestRouteHostFrame(t *testing.T) {
	dev := nan.NewDevice(testAddr(0x01), nan.NopObserver{}, time.Now())
	logger := discardLogger()

	// Too short to carry a destination address: must not panic.
	routeHostFrame(dev, []byte{0x01, 0x02}, logger)

	dst := testAddr(0x02)
	frame := append(dst[:], make([]byte, 8)...)
	routeHostFrame(dev, frame, logger)
}
