package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/boptrack/api"
	"github.com/banshee-data/boptrack/db"
	"github.com/banshee-data/boptrack/internal/bop"
	"github.com/banshee-data/boptrack/internal/config"
	"github.com/banshee-data/boptrack/internal/monitoring"
	"github.com/banshee-data/boptrack/internal/timeutil"
	"github.com/banshee-data/boptrack/internal/units"
	"github.com/banshee-data/boptrack/internal/version"
	"github.com/banshee-data/boptrack/samplemux"
)

var (
	devMode       = flag.Bool("dev", false, "Run in dev mode with a synthetic bobbing feed")
	listen        = flag.String("listen", ":8080", "Listen address")
	serialPort    = flag.String("serial-port", "", "Serial port to read tracker samples from")
	serialBaud    = flag.Int("baud", 115200, "Baud rate for the serial port")
	natsURL       = flag.String("nats", "", "NATS server URL to read tracker samples from")
	natsSubject   = flag.String("nats-subject", "boptrack.samples", "NATS subject carrying tracker sample lines")
	dbFile        = flag.String("db", "boptrack.db", "Path to the SQLite database")
	tuningFile    = flag.String("tuning", "", "Path to a tuning config JSON file (built-in defaults when empty)")
	unitsFlag     = flag.String("units", units.BPM, "Default tempo units for /bpm responses")
	sessionLabel  = flag.String("session-label", "", "Label recorded against this tracking session")
	migrateCmd    = flag.String("migrate", "", "Run a database migration command and exit (up, down, status, version, force, help)")
	migrationsDir = flag.String("migrations-dir", "db/migrations", "Path to migration files")
	debugMode     = flag.Bool("debug", false, "Enable debug logging")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

// loadTuning resolves the tuning configuration: an explicit path must load,
// the default path is used when present, and the built-in defaults cover a
// deployment without a config file.
func loadTuning(path string) (*config.TuningConfig, error) {
	if path != "" {
		return config.LoadTuningConfig(path)
	}
	if cfg, err := config.LoadTuningConfig(config.DefaultConfigPath); err == nil {
		return cfg, nil
	}
	return config.EmptyTuningConfig(), nil
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("boptrack %s\n", version.String())
		return
	}

	if *migrateCmd != "" {
		db.RunMigrateCommand(append([]string{*migrateCmd}, flag.Args()...), *dbFile, *migrationsDir)
		return
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if !units.IsValid(*unitsFlag) {
		log.Fatalf("Invalid units %q, valid units are: %s", *unitsFlag, units.GetValidUnitsString())
	}

	monitoring.SetDebug(*debugMode)

	tuning, err := loadTuning(*tuningFile)
	if err != nil {
		log.Fatalf("Failed to load tuning config: %v", err)
	}

	// pick the sample feed: synthetic in dev mode, then NATS, then serial,
	// falling back to a disabled feed that only serves the API
	var feed samplemux.MuxInterface
	source := "disabled"
	switch {
	case *devMode:
		synth := bop.NewSynth(bop.DefaultSynthConfig())
		feed = samplemux.NewMockMux(func() string {
			t, p := synth.Next()
			return samplemux.FormatSample(samplemux.Sample{T: t, X: p.X, Y: p.Y})
		}, time.Second/30)
		source = "synth"
	case *natsURL != "":
		feed, err = samplemux.NewNATSMux(*natsURL, *natsSubject)
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}
		source = "nats:" + *natsSubject
	case *serialPort != "":
		feed, err = samplemux.NewRealMux(*serialPort, samplemux.PortOptions{BaudRate: *serialBaud})
		if err != nil {
			log.Fatalf("failed to open tracker port: %v", err)
		}
		source = "serial:" + *serialPort
	default:
		log.Printf("no sample feed configured, starting with feed disabled")
		feed = samplemux.NewDisabledMux()
	}
	defer feed.Close()

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// dev mode skips the migration check so a throwaway database works
	// without running migrations first
	if !*devMode {
		if needsExit, err := database.CheckAndPromptMigrations(*migrationsDir); needsExit {
			log.Fatalf("Migration check failed: %v", err)
		} else if err != nil {
			log.Printf("Migration check skipped: %v", err)
		}
	}

	session, err := NewTrackSession(database, tuning.EstimatorConfig(), *sessionLabel, source)
	if err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}
	log.Printf("started session %s (source %s)", session.ID(), source)

	// Create a wait group for the HTTP server, feed monitor, estimate loop,
	// and line handler routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the sample feed
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := feed.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("failed to monitor sample feed: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	// subscribe to the feed lines and pass them to the session
	wg.Add(1)
	go func() {
		defer wg.Done()
		id, c := feed.Subscribe()
		defer feed.Unsubscribe(id)
		for {
			select {
			case line := <-c:
				if err := session.HandleLine(line); err != nil {
					log.Printf("error handling feed line: %v", err)
				}
			case <-ctx.Done():
				log.Printf("subscribe routine terminated")
				return
			}
		}
	}()

	// re-estimate the tempo on a fixed interval
	wg.Add(1)
	go func() {
		defer wg.Done()
		session.RunEstimateLoop(ctx, timeutil.RealClock{}, tuning.GetEstimateInterval())
		log.Printf("estimate routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		// create a new API server instance using the session and database
		// and mount the API handlers
		mux := api.NewServer(session, database, *unitsFlag).ServeMux()

		// mount the admin debugging routes
		feed.AttachAdminRoutes(mux)
		database.AttachAdminRoutes(mux)

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		// Create a shutdown context with a shorter timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			// Force close the server if graceful shutdown fails
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
