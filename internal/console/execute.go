package console

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/nan80211/nand/internal/nan"
)

// ErrUnknownVerb is returned for a line whose verb isn't recognized.
var ErrUnknownVerb = errors.New("console: unknown command")

// ErrUnknownPeer is returned when a peer command's address argument
// matches no known peer.
var ErrUnknownPeer = errors.New("console: no peer matches address")

// ErrUnknownField is returned for a recognized verb whose field
// argument isn't one this build implements.
var ErrUnknownField = errors.New("console: unknown field")

// Execute applies cmd to dev, writing any operator-facing output to
// out. now is the wall-clock time to stamp any state changes with.
// level is the reloadable log verbosity slog.LevelVar that "v+"/"v-"
// adjust. Execute must only be called from the single goroutine that
// owns dev's state (spec.md §5).
func Execute(dev *nan.Device, level *slog.LevelVar, now time.Time, cmd Command, out io.Writer) error {
	switch cmd.Verb {
	case "help":
		printHelp(out)
	case "device":
		printDevice(dev, out)
	case "sync":
		printSync(dev, now, out)
	case "peers":
		printPeers(dev, now, out)
	case "services":
		filter := ""
		if len(cmd.Args) > 0 {
			filter = cmd.Args[0]
		}
		printServices(dev, filter, out)
	case "publish":
		return execPublish(dev, cmd.Args, out)
	case "subscribe":
		return execSubscribe(dev, cmd.Args, out)
	case "set":
		return execSet(dev, cmd.Args, out)
	case "peer":
		return execPeer(dev, now, cmd.Args, out)
	case "v+":
		adjustVerbosity(level, -1)
	case "v-":
		adjustVerbosity(level, 1)
	case "":
		return nil
	default:
		fmt.Fprintf(out, "unknown command: %s\n", cmd.Verb)
		return ErrUnknownVerb
	}
	return nil
}

// -------------------------------------------------------------------------
// Info commands
// -------------------------------------------------------------------------

func printHelp(out io.Writer) {
	fmt.Fprintln(out, "Available commands")
	fmt.Fprintln(out, strings.Repeat("-", 60))
	fmt.Fprintln(out, " help                                Print this message")
	fmt.Fprintln(out)
	fmt.Fprintln(out, " device                              Print current device state")
	fmt.Fprintln(out, " sync                                Print current sync state")
	fmt.Fprintln(out, " peers                               Print list of known peers")
	fmt.Fprintln(out, " services [pub|sub]                  Print published and/or subscribed services")
	fmt.Fprintln(out)
	fmt.Fprintln(out, " publish NAME [INFO]                 Publish a service")
	fmt.Fprintln(out, " subscribe NAME                      Subscribe to a service")
	fmt.Fprintln(out, " set {mp|rf|desync} VALUE            Set master preference / random factor / desync mode")
	fmt.Fprintln(out)
	fmt.Fprintln(out, " peer ADDR set timer TU              Shift a peer's timer value")
	fmt.Fprintln(out, " peer ADDR set counter N             Not supported (rejected)")
	fmt.Fprintln(out, " peer ADDR rm                        Remove peer")
	fmt.Fprintln(out, " peer ADDR ping [MSG]                Publish a reachability probe")
	fmt.Fprintln(out, " peer ADDR forward 0|1               Enable/disable desync relay through peer")
	fmt.Fprintln(out, " peer ADDR modify 0|1                Enable/disable desync relay rewriting")
	fmt.Fprintln(out)
	fmt.Fprintln(out, " v+ / v-                             Increase/decrease log verbosity")
	fmt.Fprintln(out, strings.Repeat("-", 60))
	fmt.Fprintln(out, "Submit an empty line to redo the last read-only command")
}

func printDevice(dev *nan.Device, out io.Writer) {
	fmt.Fprintln(out, "Device")
	fmt.Fprintln(out, strings.Repeat("-", 45))
	fmt.Fprintf(out, "Interface address    %s\n", dev.InterfaceAddress)
	fmt.Fprintf(out, "Cluster ID           %s\n", dev.ClusterID)
}

func printSync(dev *nan.Device, now time.Time, out io.Writer) {
	el := dev.Election
	fmt.Fprintln(out, "Sync")
	fmt.Fprintln(out, strings.Repeat("-", 45))
	fmt.Fprintf(out, "Synced time (usec)   %d\n", dev.Timer.SyncedTimeUsec(now))
	fmt.Fprintf(out, "Synced time (tu)     %d\n", dev.Timer.SyncedTimeTU(now))
	fmt.Fprintf(out, "Next DW (usec)       %d\n", dev.Timer.NextDWUsec(now))
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Role                 %s\n", el.Role)
	fmt.Fprintf(out, "Master rank          %d\n", el.MasterRank())
	fmt.Fprintf(out, "Master preference    %d\n", el.MasterPreference)
	fmt.Fprintf(out, "Random factor        %d\n", el.RandomFactor)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Anchor master rank   %d\n", el.AnchorMasterRank)
	fmt.Fprintf(out, "AMBTT                %d\n", el.AMBTT)
	fmt.Fprintf(out, "Hop count            %d\n", el.HopCount)
}

func printPeers(dev *nan.Device, now time.Time, out io.Writer) {
	fmt.Fprintln(out, "Peers")
	fmt.Fprintln(out, strings.Repeat("-", 45))
	if dev.Peers.Len() == 0 {
		fmt.Fprintln(out, "No peer(s) known.")
		return
	}
	dev.Peers.Each(func(p *nan.Peer) {
		fmt.Fprintf(out, "Address              %s\n", p.Addr)
		fmt.Fprintf(out, "Cluster ID           %s\n", p.ClusterID)
		fmt.Fprintf(out, "RSSI average         %.1f\n", p.RSSIAverage())
		fmt.Fprintf(out, "Last update          %s ago\n", now.Sub(p.LastUpdate))
		fmt.Fprintf(out, "Master candidate?    %v\n", p.MasterCandidate)
		fmt.Fprintf(out, "Master rank          %d\n", p.MasterRank())
		fmt.Fprintf(out, "Anchor master rank   %d\n", p.AnchorMasterRank)
		fmt.Fprintf(out, "Hop count to AM      %d\n", p.HopCount)
		fmt.Fprintln(out)
	})
}

func printServices(dev *nan.Device, filter string, out io.Writer) {
	printPublished := filter != "sub"
	printSubscribed := filter != "pub"

	fmt.Fprintln(out, "Services")
	fmt.Fprintln(out, strings.Repeat("-", 45))
	dev.Services.Each(func(s *nan.Service) {
		if s.Published && !printPublished {
			return
		}
		if !s.Published && !printSubscribed {
			return
		}
		kind := "SUB"
		if s.Published {
			kind = "PUB"
		}
		fmt.Fprintf(out, "%s  instance=%d  name=%q  service_id=%s\n", kind, s.Instance, s.Name, s.ServiceID)
	})
}

// -------------------------------------------------------------------------
// Action commands
// -------------------------------------------------------------------------

func execPublish(dev *nan.Device, args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprintln(out, "usage: publish NAME [INFO]")
		return ErrUnknownField
	}
	name := args[0]
	var info []byte
	if len(args) > 1 {
		info = []byte(strings.Join(args[1:], " "))
	}
	id, err := dev.Services.Publish(name, nan.PublishUnsolicited, -1, info)
	if err != nil {
		fmt.Fprintf(out, "publish %s: %v\n", name, err)
		return err
	}
	fmt.Fprintf(out, "published %q as instance %d\n", name, id)
	return nil
}

func execSubscribe(dev *nan.Device, args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprintln(out, "usage: subscribe NAME")
		return ErrUnknownField
	}
	name := args[0]
	id, err := dev.Services.Subscribe(name, nan.SubscribePassive, -1, nil)
	if err != nil {
		fmt.Fprintf(out, "subscribe %s: %v\n", name, err)
		return err
	}
	fmt.Fprintf(out, "subscribed %q as instance %d\n", name, id)
	return nil
}

func execSet(dev *nan.Device, args []string, out io.Writer) error {
	if len(args) < 2 {
		fmt.Fprintln(out, "usage: set {mp|rf|desync} VALUE")
		return ErrUnknownField
	}
	field, value := args[0], args[1]

	switch field {
	case "mp":
		n, err := strconv.ParseUint(value, 10, 8)
		if err != nil {
			fmt.Fprintf(out, "set mp: %v\n", err)
			return err
		}
		dev.Election.SetMasterPreference(uint8(n))
	case "rf":
		n, err := strconv.ParseUint(value, 10, 8)
		if err != nil {
			fmt.Fprintf(out, "set rf: %v\n", err)
			return err
		}
		dev.Election.SetRandomFactor(uint8(n))
	case "desync":
		enable, err := strconv.ParseBool(value)
		if err != nil {
			fmt.Fprintf(out, "set desync: %v\n", err)
			return err
		}
		if dev.Desync == nil {
			dev.Desync = nan.NewDesyncState()
		}
		if enable {
			dev.Desync.Enable(dev.Desync.ShiftUsec)
		} else {
			dev.Desync.Disable()
		}
	default:
		fmt.Fprintf(out, "unknown target for 'set' command: %s\n", field)
		return ErrUnknownField
	}

	fmt.Fprintf(out, "set %s to %s\n", field, value)
	return nil
}

func execPeer(dev *nan.Device, now time.Time, args []string, out io.Writer) error {
	if len(args) < 2 {
		fmt.Fprintln(out, "usage: peer ADDR {set ... | rm | ping [MSG] | forward 0|1 | modify 0|1}")
		return ErrUnknownField
	}
	addrArg, verb, rest := args[0], args[1], args[2:]

	peer := findPeer(dev, addrArg)
	if peer == nil {
		fmt.Fprintf(out, "no peer matching %q\n", addrArg)
		return ErrUnknownPeer
	}

	switch verb {
	case "set":
		return execPeerSet(peer, now, rest, out)
	case "rm":
		dev.Peers.Remove(peer.Addr)
		fmt.Fprintf(out, "removed peer %s\n", peer.Addr)
	case "ping":
		message := "#0000ff"
		if len(rest) > 0 {
			message = strings.Join(rest, " ")
		}
		if _, err := dev.Services.Publish("servicename", nan.PublishUnsolicited, -1, []byte(message)); err != nil {
			fmt.Fprintf(out, "ping %s: %v\n", peer.Addr, err)
			return err
		}
		fmt.Fprintf(out, "ping peer %s\n", peer.Addr)
	case "forward":
		enable, err := strconv.ParseBool(boolArg(rest))
		if err != nil {
			fmt.Fprintf(out, "forward: %v\n", err)
			return err
		}
		peer.Forward = enable
		fmt.Fprintf(out, "%s forward for peer %s\n", onOff(enable), peer.Addr)
	case "modify":
		enable, err := strconv.ParseBool(boolArg(rest))
		if err != nil {
			fmt.Fprintf(out, "modify: %v\n", err)
			return err
		}
		peer.Modify = enable
		fmt.Fprintf(out, "%s modify for peer %s\n", onOff(enable), peer.Addr)
	default:
		fmt.Fprintf(out, "unknown peer command: %s\n", verb)
		return ErrUnknownField
	}
	return nil
}

func execPeerSet(peer *nan.Peer, now time.Time, args []string, out io.Writer) error {
	if len(args) < 2 {
		fmt.Fprintln(out, "usage: peer ADDR set {timer|counter} VALUE")
		return ErrUnknownField
	}
	field, value := args[0], args[1]

	switch field {
	case "timer":
		offset, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			fmt.Fprintf(out, "set timer: %v\n", err)
			return err
		}
		if peer.Timer == nil {
			peer.Timer = nan.NewTimer(now)
		}
		peer.OldTimer = nan.NewTimerAt(peer.Timer.BaseUsec(), now)
		peer.Timer.ShiftBase(offset)
		fmt.Fprintf(out, "shifted timer of peer %s by %d tu\n", peer.Addr, offset)
	default:
		// "counter" is documented in spec.md §6 but, per the reference
		// implementation this protocol is grounded on, was never wired
		// to a real field either — it is accepted syntactically and
		// rejected at dispatch time.
		fmt.Fprintf(out, "unknown target for 'peer set' command: %s\n", field)
		return ErrUnknownField
	}
	return nil
}

func findPeer(dev *nan.Device, substr string) *nan.Peer {
	var found *nan.Peer
	dev.Peers.Each(func(p *nan.Peer) {
		if found != nil {
			return
		}
		if strings.Contains(p.Addr.String(), substr) {
			found = p
		}
	})
	return found
}

func boolArg(args []string) string {
	if len(args) == 0 {
		return "false"
	}
	return args[0]
}

func onOff(enabled bool) string {
	if enabled {
		return "Enabled"
	}
	return "Disabled"
}

func adjustVerbosity(level *slog.LevelVar, delta int) {
	if level == nil {
		return
	}
	// slog levels step in units of 4 (Debug=-4, Info=0, Warn=4, Error=8).
	level.Set(level.Level() + slog.Level(delta*4))
}
