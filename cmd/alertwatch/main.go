// Command alertwatch prints inventory expiry alerts for a logged-in admin.
// The session is restored from a stored token; users who may not open the
// admin inventory page are turned away before anything is fetched.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/vetcore/platform/internal/auth"
	"github.com/vetcore/platform/internal/client"
	"github.com/vetcore/platform/internal/inventory"
	"github.com/vetcore/platform/internal/shared/config"
	"github.com/vetcore/platform/internal/shared/events"
	"github.com/vetcore/platform/internal/shared/logging"
	"github.com/vetcore/platform/internal/shared/resilience"
)

const inventoryRoute = "/admin/inventory"

func main() {
	configPath := flag.String("config", "", "path to a YAML watcher config")
	once := flag.Bool("once", false, "refresh a single time and exit")
	flag.Parse()

	if err := run(*configPath, *once); err != nil {
		fmt.Fprintf(os.Stderr, "alertwatch: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, once bool) error {
	cfg, err := config.LoadWatcher(configPath)
	if err != nil {
		return err
	}

	logger := logging.NewWithWriter(os.Stderr, "vetcore-alertwatch", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	creds := auth.NewFileCredentials(cfg.TokenFile)
	api := client.New(cfg.APIURL, creds, cfg.RequestTimeout, resilience.NewExecutor(resilience.FromSettings(cfg.Retry), logger))

	restorer := auth.NewRestorer(api, creds, logger)
	if err := restorer.Restore(ctx); err != nil {
		return err
	}

	decision := restorer.Navigate(inventoryRoute)
	switch decision.Kind {
	case auth.DecisionAllow:
	case auth.DecisionRedirectToLogin:
		return fmt.Errorf("not logged in: store a token in %s", cfg.TokenFile)
	default:
		return fmt.Errorf("role %s may not view %s (home is %s)",
			restorer.State().Session.Role, inventoryRoute, decision.Target)
	}

	sink := &printSink{w: os.Stdout}
	monitor := inventory.NewMonitor(api, sink, logger, inventory.WithSummarySource(api))

	if once {
		snap, err := monitor.Refresh(ctx)
		if err != nil {
			return err
		}
		printSummary(os.Stdout, snap)
		return nil
	}

	bus, err := events.NewEventBus(cfg.Events, cfg.KurrentDBSettings(), logger)
	if err != nil {
		logger.Warn("event bus not available, relying on interval refresh", "error", err)
	} else if bus != nil {
		defer bus.Close()
		err := bus.Subscribe(ctx, "inventory.*", "", func(ctx context.Context, event events.Event) error {
			monitor.Invalidate()
			_, err := monitor.Refresh(ctx)
			return err
		})
		if err != nil {
			logger.Warn("failed to subscribe to inventory events", "error", err)
		}
	}

	logger.Info("watching inventory", "api", cfg.APIURL, "interval", cfg.RefreshInterval)
	monitor.Run(ctx, cfg.RefreshInterval)
	return nil
}

// printSink writes each surfaced alert as one line.
type printSink struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *printSink) Notify(ctx context.Context, event inventory.NotificationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintf(p.w, "%s [%s] %s\n", time.Now().Format(time.DateTime), event.Level, event.Message())
	return err
}

func printSummary(w io.Writer, snap inventory.Snapshot) {
	fmt.Fprintf(w, "%s: %d alert(s), verified=%v\n", snap.Date, snap.Summary.TotalAlerts, snap.Verified)
	for _, level := range []inventory.AlertLevel{inventory.LevelExpired, inventory.LevelCritical, inventory.LevelWarning, inventory.LevelUpcoming} {
		for _, item := range snap.Summary.Bucket(level) {
			fmt.Fprintf(w, "  %-8s %-30s %s (%d days)\n", level, item.Name, item.ExpiryDate, item.DaysUntilExpiry)
		}
	}
}
