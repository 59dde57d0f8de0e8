package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/nan80211/nand/internal/config"
	"github.com/nan80211/nand/internal/console"
	"github.com/nan80211/nand/internal/metrics"
	"github.com/nan80211/nand/internal/nan"
	"github.com/nan80211/nand/internal/radio"
	"github.com/nan80211/nand/internal/wire"
	appversion "github.com/nan80211/nand/internal/version"
)

// shutdownTimeout bounds how long the metrics HTTP server gets to drain
// in-flight requests during graceful shutdown.
const shutdownTimeout = 10 * time.Second

// inboundQueueDepth bounds how many not-yet-processed frames each
// capture goroutine may queue ahead of the reactor, mirroring the
// bounded outbound buffers of §5.
const inboundQueueDepth = 64

func runDaemon(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()))
		return err
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("nand starting",
		slog.String("version", appversion.Version),
		slog.String("interface", cfg.Radio.Interface),
		slog.Int("channel", cfg.Radio.Channel),
		slog.String("metrics_addr", cfg.Metrics.Addr),
	)

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	wlan, host, ifindex, err := openRadioLinks(cfg.Radio)
	if err != nil {
		return fmt.Errorf("open radio links: %w", err)
	}
	defer closeLink(wlan, "wlan", logger)
	defer closeLink(host, "host", logger)

	self, err := selfAddress(cfg.Radio.Interface)
	if err != nil {
		return fmt.Errorf("resolve self address: %w", err)
	}

	observer := radio.NewNeighborObserver(radio.NopNeighborTable{}, ifindex, logger)

	now := time.Now()
	dev := nan.NewDevice(self, observer, now)
	if cfg.Desync.Enabled {
		dev.Desync = nan.NewDesyncState()
		dev.Desync.Enable(cfg.Desync.ShiftUsec)
	}
	sched := nan.NewScheduler(dev, wlan, logger)
	sched.SetDropHook(collector.IncOutboundBufferDrops)
	rx := nan.NewRX(dev, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	wlanIn := make(chan []byte, inboundQueueDepth)
	g.Go(func() error { return pumpWlan(gCtx, wlan, wlanIn) })

	hostIn := make(chan []byte, inboundQueueDepth)
	g.Go(func() error { return pumpHost(gCtx, host, hostIn) })

	con := console.New(os.Stdin)
	g.Go(func() error { return con.Run(gCtx) })

	metricsSrv := newMetricsServer(cfg.Metrics, reg)
	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr),
			slog.String("path", cfg.Metrics.Path))
		return listenAndServe(gCtx, metricsSrv, cfg.Metrics.Addr)
	})

	g.Go(func() error { return runWatchdog(gCtx, logger) })

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		handleSIGHUP(gCtx, sigHUP, configPath, logLevel, logger)
		return nil
	})

	notifyReady(logger)

	g.Go(func() error {
		return runReactor(gCtx, dev, sched, rx, collector, wlanIn, hostIn, con.Commands(), logLevel, logger)
	})

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, logger, metricsSrv)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run daemon: %w", err)
	}

	logger.Info("nand stopped")
	return nil
}

// closer is the common Close() error shape of radio.WlanLink and
// radio.HostLink.
type closer interface{ Close() error }

func closeLink(c closer, name string, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Warn("failed to close link", slog.String("link", name), slog.String("error", err.Error()))
	}
}

// selfAddress resolves the device's NAN identity from the hardware
// address of its monitor-mode WLAN interface.
func selfAddress(ifName string) (wire.EtherAddr, error) {
	iface, err := net.InterfaceByName(ifName)
	if err != nil {
		return wire.EtherAddr{}, fmt.Errorf("lookup interface %s: %w", ifName, err)
	}
	if len(iface.HardwareAddr) != 6 {
		return wire.EtherAddr{}, fmt.Errorf("interface %s: unexpected hardware address length %d", ifName, len(iface.HardwareAddr))
	}
	var addr wire.EtherAddr
	copy(addr[:], iface.HardwareAddr)
	return addr, nil
}

// loadConfig loads configuration from a file path or returns defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

// newLoggerWithLevel creates a structured logger using a shared
// LevelVar for dynamic log level changes via SIGHUP reload.
func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// newMetricsServer creates an HTTP server for the Prometheus metrics
// endpoint.
func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func listenAndServe(ctx context.Context, srv *http.Server, addr string) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

// -------------------------------------------------------------------------
// Systemd Integration — sd_notify + watchdog
// -------------------------------------------------------------------------

func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

// runWatchdog sends periodic watchdog keepalives to systemd at half the
// configured watchdog interval. If the watchdog isn't configured, the
// goroutine exits immediately.
func runWatchdog(ctx context.Context, logger *slog.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("failed to check systemd watchdog", slog.String("error", err.Error()))
		return nil
	}
	if interval == 0 {
		logger.Debug("systemd watchdog not configured, skipping keepalive")
		return nil
	}

	tickInterval := interval / 2
	logger.Info("systemd watchdog enabled",
		slog.Duration("watchdog_sec", interval),
		slog.Duration("keepalive_interval", tickInterval))

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, wdErr := daemon.SdNotify(false, daemon.SdNotifyWatchdog); wdErr != nil {
				logger.Warn("failed to send watchdog keepalive", slog.String("error", wdErr.Error()))
			}
		}
	}
}

// -------------------------------------------------------------------------
// SIGHUP Reload — log level only; there is no declarative session set
// to reconcile in this daemon
// -------------------------------------------------------------------------

func handleSIGHUP(ctx context.Context, sigHUP <-chan os.Signal, configPath string, logLevel *slog.LevelVar, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigHUP:
			logger.Info("received SIGHUP, reloading configuration")
			reloadConfig(configPath, logLevel, logger)
		}
	}
}

func reloadConfig(configPath string, logLevel *slog.LevelVar, logger *slog.Logger) {
	newCfg, err := loadConfig(configPath)
	if err != nil {
		logger.Error("failed to reload configuration, keeping current settings", slog.String("error", err.Error()))
		return
	}

	oldLevel := logLevel.Level()
	newLevel := config.ParseLogLevel(newCfg.Log.Level)
	logLevel.Set(newLevel)

	logger.Info("configuration reloaded",
		slog.String("old_log_level", oldLevel.String()),
		slog.String("new_log_level", newLevel.String()))
}

// -------------------------------------------------------------------------
// Graceful Shutdown
// -------------------------------------------------------------------------

func gracefulShutdown(ctx context.Context, logger *slog.Logger, servers ...*http.Server) error {
	logger.Info("initiating graceful shutdown")
	notifyStopping(logger)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return shutdownErr
}
