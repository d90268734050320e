// Command queue-report samples a location's occupancy, detects queue
// episodes and serves reports over HTTP.
//
// Usage:
//
//	queue-report [flags] [serve]
//	queue-report [flags] migrate <up|down|status|version|force|help>
//	queue-report [flags] rebuild
//	queue-report version
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/queue.report/internal/api"
	"github.com/banshee-data/queue.report/internal/broadcast"
	"github.com/banshee-data/queue.report/internal/config"
	"github.com/banshee-data/queue.report/internal/db"
	"github.com/banshee-data/queue.report/internal/poller"
	"github.com/banshee-data/queue.report/internal/queue"
	"github.com/banshee-data/queue.report/internal/report"
	"github.com/banshee-data/queue.report/internal/timeutil"
	"github.com/banshee-data/queue.report/internal/version"
)

var (
	configPath = flag.String("config", config.DefaultConfigPath, "Path to the JSON config file")
	envFile    = flag.String("env-file", ".env", "Optional .env file loaded before QUEUE_* overrides")
	listen     = flag.String("listen", "", "Listen address (overrides config)")
	dbPathFlag = flag.String("db-path", "", "Path to the SQLite database (overrides config)")
	apiURL     = flag.String("api-url", "", "Occupancy API URL; polling is disabled when empty (overrides config)")
	devMode    = flag.Bool("dev", false, "Read migrations from disk instead of the embedded copy")
	skipCheck  = flag.Bool("skip-migration-check", false, "Start even when migrations are pending")
)

func main() {
	flag.Parse()

	cmd := "serve"
	args := flag.Args()
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}
	if cmd == "version" {
		fmt.Println(version.String())
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	db.DevMode = *devMode

	switch cmd {
	case "serve":
		serve(cfg)
	case "migrate":
		db.RunMigrateCommand(args, cfg.GetDBPath())
	case "rebuild":
		rebuild(cfg)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		flag.Usage()
		os.Exit(2)
	}
}

// loadConfig layers the JSON file, the .env file, QUEUE_* variables and
// finally command-line flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		return nil, err
	}
	if err := config.LoadDotEnv(*envFile); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	applyFlags(cfg)
	return cfg, cfg.Validate()
}

func applyFlags(cfg *config.Config) {
	if *listen != "" {
		cfg.Listen = listen
	}
	if *dbPathFlag != "" {
		cfg.DBPath = dbPathFlag
	}
	if *apiURL != "" {
		cfg.APIURL = apiURL
	}
}

func rebuild(cfg *config.Config) {
	database, err := db.NewDBWithMigrationCheck(cfg.GetDBPath(), !*skipCheck)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	res, err := queue.Rebuild(context.Background(), database, database, cfg.GetLocationID(), cfg.Thresholds())
	if err != nil {
		log.Fatalf("Rebuild failed: %v", err)
	}
	log.Printf("rebuilt %s: %d samples (%d rejected), %d events", cfg.GetLocationID(), res.Samples, res.Rejected, res.Events)
	if res.Open != nil {
		log.Printf("trailing episode from %s is still open and was not stored", res.Open.Start.Format(time.RFC3339))
	}
}

// statusPublisher forwards committed status changes to SSE subscribers.
func statusPublisher(hub *broadcast.Hub) func(queue.StatusChange) {
	return func(c queue.StatusChange) {
		hub.Publish(broadcast.Message{Type: broadcast.TypeStatusChange, Data: c, Timestamp: c.Time})
	}
}

func serve(cfg *config.Config) {
	database, err := db.NewDBWithMigrationCheck(cfg.GetDBPath(), !*skipCheck)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	locationID := cfg.GetLocationID()
	res, err := queue.Recover(ctx, database, locationID, cfg.GetOrphanPolicy(), database.LastSampleAt)
	if err != nil {
		log.Fatalf("Failed to recover open episodes: %v", err)
	}
	if res.Deleted+res.Closed > 0 {
		log.Printf("recovered orphaned episodes for %s: policy=%s deleted=%d closed=%d",
			locationID, cfg.GetOrphanPolicy(), res.Deleted, res.Closed)
	}

	hub := broadcast.NewHub()
	defer hub.Close()

	registry := queue.NewRegistry(cfg.Thresholds(), database, statusPublisher(hub))
	last, err := database.LatestSample(ctx, locationID)
	if err != nil {
		log.Fatalf("Failed to load latest sample: %v", err)
	}
	if last != nil {
		registry.Monitor(locationID).Prime(*last)
	}

	var wg sync.WaitGroup

	if url := cfg.GetAPIURL(); url != "" {
		p := poller.New(url, locationID, &poller.Ingestor{Registry: registry, Samples: database})
		p.CameraID = cfg.GetCameraID()
		p.Interval = cfg.GetPollInterval()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Run(ctx); err != nil && err != context.Canceled {
				log.Printf("poller stopped: %v", err)
			}
			log.Print("poller routine terminated")
		}()
	} else {
		log.Print("no api_url configured, polling disabled")
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		reports := &report.Service{
			Store:      database,
			LocationID: locationID,
			Location:   cfg.Location(),
			Thresholds: cfg.Thresholds(),
			Clock:      timeutil.RealClock{},
		}
		srv := api.NewServer(reports, &broadcast.SSEHandler{Hub: hub, Heartbeat: cfg.GetHeartbeat()})
		mux := srv.ServeMux()
		srv.AttachDebugCharts(mux)
		if err := database.AttachAdminRoutes(mux); err != nil {
			log.Printf("admin routes unavailable: %v", err)
		}

		server := &http.Server{
			Addr:    cfg.GetListen(),
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("listening on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		// SSE streams stay open until their clients go, so keep this short
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
