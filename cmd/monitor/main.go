package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/browser"
	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/config"
	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/health"
	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/metrics"
	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/outputs"
	"github.com/nickborgers/monorepo/scrapyard-vitals/internal/visitloop"
)

const version = browser.Version

var (
	configFile string
	once       bool
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:     "monitor",
	Short:   "Field performance monitor for the scrapyard website",
	Version: version,
	Long: `Monitor visits each page of the scrapyard website in a headless browser,
collects the five user-centric performance signals (TTFB, FCP, LCP, CLS, INP)
and ships every reading to the configured outputs.

Readings come from the web-vitals library when it loads, and from built-in
performance observers when it does not.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVar(&configFile, "config", os.Getenv("CONFIG_FILE"), "Path to a YAML configuration file (default $CONFIG_FILE)")
	rootCmd.Flags().BoolVar(&once, "once", false, "Visit every page once and exit, non-zero if any visit failed")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "Enable collector debug logging")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// closer is any component shut down at exit
type closer interface {
	io.Closer
	Name() string
}

func run(parent context.Context) error {
	printBanner()

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if debug {
		cfg.Vitals.Debug = true
		cfg.Logging.Level = config.LogLevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: outputs.ParseLogLevel(cfg.Logging.Level),
	}))
	slog.SetDefault(logger)

	log.Printf("Loaded configuration: %d pages under %s", len(cfg.Site.Pages), cfg.Site.BaseURL)
	log.Printf("  Inter-visit delay: %v", cfg.General.InterVisitDelay)
	log.Printf("  Dwell time: %v", cfg.Vitals.DwellTime)
	if cfg.Vitals.DisableLibrary {
		log.Println("  Library: disabled, built-in observers only")
	} else {
		log.Printf("  Library: %s", cfg.Vitals.LibraryURL)
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	browserCtrl, err := browser.NewController(&cfg.Browser, &cfg.Vitals, logger)
	if err != nil {
		return fmt.Errorf("failed to create browser controller: %w", err)
	}
	defer browserCtrl.Close()
	log.Println("✓ Browser controller initialized")

	dispatcher := metrics.NewDispatcher(logger)
	var toClose []closer

	// Always enable the stdout logger
	stdout, err := outputs.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	dispatcher.RegisterOutput(stdout)
	log.Printf("✓ Stdout logger enabled (%s)", cfg.Logging.Format)

	esOutput, err := outputs.NewElasticsearchOutput(&cfg.Elasticsearch)
	if err != nil {
		return fmt.Errorf("failed to create Elasticsearch output: %w", err)
	}
	if esOutput != nil {
		dispatcher.RegisterOutput(esOutput)
		toClose = append(toClose, esOutput)
		log.Println("✓ Elasticsearch output enabled")
	}

	promOutput, err := outputs.NewPrometheusOutput(&cfg.Prometheus)
	if err != nil {
		return fmt.Errorf("failed to create Prometheus output: %w", err)
	}
	if promOutput != nil {
		dispatcher.RegisterOutput(promOutput)
		toClose = append(toClose, promOutput)
		log.Println("✓ Prometheus exporter enabled")
	}

	snmpOutput, err := outputs.NewSNMPOutput(&cfg.SNMP, metrics.NewEventCache(cfg.General.CacheSize))
	if err != nil {
		return fmt.Errorf("failed to create SNMP output: %w", err)
	}
	if snmpOutput != nil {
		dispatcher.RegisterOutput(snmpOutput)
		toClose = append(toClose, snmpOutput)
		log.Println("✓ SNMP agent enabled")
	}

	healthServer, err := health.NewHealthServer(&health.Config{
		Enabled:       cfg.Advanced.HealthCheckEnabled,
		Port:          cfg.Advanced.HealthCheckPort,
		Path:          cfg.Advanced.HealthCheckPath,
		ListenAddress: cfg.Advanced.HealthCheckListenAddress,
	})
	if err != nil {
		return fmt.Errorf("failed to create health check server: %w", err)
	}
	if healthServer != nil {
		log.Println("✓ Health check endpoint enabled")
	}
	defer closeAll(toClose, healthServer)

	loop, err := visitloop.NewVisitLoop(cfg, browserCtrl, dispatcher, healthServer, logger)
	if err != nil {
		return fmt.Errorf("failed to create visit loop: %w", err)
	}
	log.Printf("✓ Visit loop initialized (outputs: %v)", dispatcher.Names())

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if once {
		go func() {
			select {
			case <-sigChan:
				cancel()
			case <-ctx.Done():
			}
		}()

		failed, err := loop.RunOnce(ctx)
		if err != nil {
			return err
		}
		log.Printf("Visited %d pages, %d failed", len(cfg.Site.Pages), failed)
		if failed > 0 {
			return fmt.Errorf("%d of %d visits failed", failed, len(cfg.Site.Pages))
		}
		return nil
	}

	loopDone := make(chan error, 1)
	go func() {
		loopDone <- loop.Run(ctx)
	}()

	log.Println("Scrapyard vitals monitor started. Press Ctrl+C to stop.")
	log.Println()

	select {
	case <-sigChan:
		log.Println("\nReceived shutdown signal...")
	case err := <-loopDone:
		if err != nil {
			log.Printf("Visit loop exited with error: %v", err)
		}
	}

	log.Println("Shutting down gracefully...")

	// Cancel context to stop the visit in flight
	cancel()

	select {
	case <-loopDone:
		log.Println("✓ Visit loop stopped")
	case <-time.After(cfg.Advanced.ShutdownTimeout):
		log.Println("⚠ Shutdown timeout exceeded")
	}

	return nil
}

// closeAll shuts outputs down after the loop so queued events are flushed
func closeAll(toClose []closer, healthServer *health.HealthServer) {
	for _, c := range toClose {
		if err := c.Close(); err != nil {
			log.Printf("Error closing %s output: %v", c.Name(), err)
		} else {
			log.Printf("✓ %s output closed", c.Name())
		}
	}

	stats := healthServer.GetStats()
	if stats.VisitCount > 0 {
		log.Printf("Visits: %d (%d failed), readings: %d (%d poor)",
			stats.VisitCount, stats.FailureCount, stats.ReadingCount, stats.PoorCount)
	}

	if err := healthServer.Close(); err != nil {
		log.Printf("Error closing health check server: %v", err)
	} else if healthServer != nil {
		log.Println("✓ Health check server closed")
	}

	log.Println("Shutdown complete")
}

func printBanner() {
	fmt.Println("╔════════════════════════════════════════════════════════════════╗")
	fmt.Println("║  Scrapyard Vitals Monitor                                      ║")
	fmt.Printf("║  Version: %-52s ║\n", version)
	fmt.Println("║  Field performance signals from a real browser                 ║")
	fmt.Println("╚════════════════════════════════════════════════════════════════╝")
	fmt.Println()
}
