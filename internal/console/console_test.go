package console_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/nan80211/nand/internal/console"
	"github.com/nan80211/nand/internal/nan"
	"github.com/nan80211/nand/internal/wire"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func addr(last byte) wire.EtherAddr {
	return wire.EtherAddr{0x02, 0, 0, 0, 0, last}
}

func newDevice() *nan.Device {
	return nan.NewDevice(addr(0x01), nan.NopObserver{}, time.Unix(1000, 0))
}

func TestParseLine(t *testing.T) {
	cases := []struct {
		line string
		verb string
		args []string
	}{
		{"", "", nil},
		{"help", "help", nil},
		{"  peers  ", "peers", nil},
		{"peer 02:00 set timer 10", "peer", []string{"02:00", "set", "timer", "10"}},
	}
	for _, c := range cases {
		cmd := console.ParseLine(c.line)
		if cmd.Verb != c.verb {
			t.Errorf("ParseLine(%q).Verb = %q, want %q", c.line, cmd.Verb, c.verb)
		}
		if len(cmd.Args) != len(c.args) {
			t.Errorf("ParseLine(%q).Args = %v, want %v", c.line, cmd.Args, c.args)
			continue
		}
		for i := range c.args {
			if cmd.Args[i] != c.args[i] {
				t.Errorf("ParseLine(%q).Args[%d] = %q, want %q", c.line, i, cmd.Args[i], c.args[i])
			}
		}
	}
}

func TestConsoleRunDeliversCommands(t *testing.T) {
	r := strings.NewReader("device\npeers\n")
	c := console.New(r)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	var got []string
	for cmd := range c.Commands() {
		got = append(got, cmd.Verb)
	}
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if len(got) != 2 || got[0] != "device" || got[1] != "peers" {
		t.Fatalf("got commands %v, want [device peers]", got)
	}
}

func TestConsoleBlankLineRepeatsLastReadOnly(t *testing.T) {
	r := strings.NewReader("peers\n\n")
	c := console.New(r)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	var got []string
	for cmd := range c.Commands() {
		got = append(got, cmd.Verb)
	}
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if len(got) != 2 || got[0] != "peers" || got[1] != "peers" {
		t.Fatalf("got commands %v, want [peers peers]", got)
	}
}

func TestConsoleBlankLineIgnoredBeforeAnyReadOnlyCommand(t *testing.T) {
	r := strings.NewReader("\npeers\n")
	c := console.New(r)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	var got []string
	for cmd := range c.Commands() {
		got = append(got, cmd.Verb)
	}
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if len(got) != 1 || got[0] != "peers" {
		t.Fatalf("got commands %v, want [peers]", got)
	}
}

func TestExecuteHelp(t *testing.T) {
	dev := newDevice()
	var buf bytes.Buffer
	cmd := console.ParseLine("help")
	if err := console.Execute(dev, nil, time.Unix(1000, 0), cmd, &buf); err != nil {
		t.Fatalf("Execute(help) returned %v", err)
	}
	if !strings.Contains(buf.String(), "Available commands") {
		t.Fatalf("help output missing header: %q", buf.String())
	}
}

func TestExecutePublishSubscribe(t *testing.T) {
	dev := newDevice()
	var buf bytes.Buffer

	if err := console.Execute(dev, nil, time.Unix(1000, 0), console.ParseLine("publish foo bar baz"), &buf); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if dev.Services.AnnounceCandidates() == nil {
		t.Fatalf("expected a publish candidate after publishing")
	}

	buf.Reset()
	if err := console.Execute(dev, nil, time.Unix(1000, 0), console.ParseLine("subscribe foo"), &buf); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if !strings.Contains(buf.String(), "subscribed") {
		t.Fatalf("subscribe output = %q", buf.String())
	}
}

func TestExecuteSetMasterPreference(t *testing.T) {
	dev := newDevice()
	var buf bytes.Buffer
	if err := console.Execute(dev, nil, time.Unix(1000, 0), console.ParseLine("set mp 200"), &buf); err != nil {
		t.Fatalf("set mp: %v", err)
	}
	if dev.Election.MasterPreference != 200 {
		t.Fatalf("MasterPreference = %d, want 200", dev.Election.MasterPreference)
	}
}

func TestExecuteSetUnknownFieldFails(t *testing.T) {
	dev := newDevice()
	var buf bytes.Buffer
	err := console.Execute(dev, nil, time.Unix(1000, 0), console.ParseLine("set bogus 1"), &buf)
	if err != console.ErrUnknownField {
		t.Fatalf("err = %v, want ErrUnknownField", err)
	}
}

func TestExecutePeerSetTimerShiftsBase(t *testing.T) {
	dev := newDevice()
	now := time.Unix(1000, 0)
	p, _ := dev.Peers.AddOrUpdate(addr(0x02), dev.ClusterID, now)
	p.Timer = nan.NewTimer(now)
	before := p.Timer.BaseUsec()

	var buf bytes.Buffer
	cmd := console.ParseLine("peer 02:00:00:00:00:02 set timer 5")
	if err := console.Execute(dev, nil, now, cmd, &buf); err != nil {
		t.Fatalf("peer set timer: %v", err)
	}
	if p.Timer.BaseUsec() == before {
		t.Fatalf("expected base to shift, stayed at %d", before)
	}
	if p.OldTimer == nil {
		t.Fatalf("expected OldTimer to be snapshotted")
	}
}

func TestExecutePeerSetCounterIsUnknownTarget(t *testing.T) {
	dev := newDevice()
	now := time.Unix(1000, 0)
	dev.Peers.AddOrUpdate(addr(0x02), dev.ClusterID, now)

	var buf bytes.Buffer
	cmd := console.ParseLine("peer 02:00:00:00:00:02 set counter 3")
	err := console.Execute(dev, nil, now, cmd, &buf)
	if err != console.ErrUnknownField {
		t.Fatalf("err = %v, want ErrUnknownField", err)
	}
}

func TestExecutePeerForwardModify(t *testing.T) {
	dev := newDevice()
	now := time.Unix(1000, 0)
	p, _ := dev.Peers.AddOrUpdate(addr(0x02), dev.ClusterID, now)

	var buf bytes.Buffer
	if err := console.Execute(dev, nil, now, console.ParseLine("peer 02:00:00:00:00:02 forward true"), &buf); err != nil {
		t.Fatalf("forward: %v", err)
	}
	if !p.Forward {
		t.Fatalf("expected Forward = true")
	}

	buf.Reset()
	if err := console.Execute(dev, nil, now, console.ParseLine("peer 02:00:00:00:00:02 modify true"), &buf); err != nil {
		t.Fatalf("modify: %v", err)
	}
	if !p.Modify {
		t.Fatalf("expected Modify = true")
	}
}

func TestExecutePeerRemove(t *testing.T) {
	dev := newDevice()
	now := time.Unix(1000, 0)
	dev.Peers.AddOrUpdate(addr(0x02), dev.ClusterID, now)

	var buf bytes.Buffer
	if err := console.Execute(dev, nil, now, console.ParseLine("peer 02:00:00:00:00:02 rm"), &buf); err != nil {
		t.Fatalf("rm: %v", err)
	}
	if dev.Peers.Len() != 0 {
		t.Fatalf("expected peer removed, Len() = %d", dev.Peers.Len())
	}
}

func TestExecuteUnknownPeerFails(t *testing.T) {
	dev := newDevice()
	var buf bytes.Buffer
	err := console.Execute(dev, nil, time.Unix(1000, 0), console.ParseLine("peer ff:ff:ff:ff:ff:ff rm"), &buf)
	if err != console.ErrUnknownPeer {
		t.Fatalf("err = %v, want ErrUnknownPeer", err)
	}
}

func TestExecuteVerbosity(t *testing.T) {
	dev := newDevice()
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	var buf bytes.Buffer
	if err := console.Execute(dev, level, time.Unix(1000, 0), console.ParseLine("v+"), &buf); err != nil {
		t.Fatalf("v+: %v", err)
	}
	if level.Level() != slog.LevelDebug {
		t.Fatalf("level = %v, want Debug", level.Level())
	}

	if err := console.Execute(dev, level, time.Unix(1000, 0), console.ParseLine("v-"), &buf); err != nil {
		t.Fatalf("v-: %v", err)
	}
	if level.Level() != slog.LevelInfo {
		t.Fatalf("level = %v, want Info", level.Level())
	}
}

func TestExecuteUnknownVerb(t *testing.T) {
	dev := newDevice()
	var buf bytes.Buffer
	err := console.Execute(dev, nil, time.Unix(1000, 0), console.ParseLine("frobnicate"), &buf)
	if err != console.ErrUnknownVerb {
		t.Fatalf("err = %v, want ErrUnknownVerb", err)
	}
}
