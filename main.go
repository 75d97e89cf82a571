package main

import (
	"bufio"
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/smartretail/scanpos/internal/api"
	"github.com/smartretail/scanpos/internal/catalog"
	"github.com/smartretail/scanpos/internal/config"
	"github.com/smartretail/scanpos/internal/detect"
	"github.com/smartretail/scanpos/internal/dispatch"
	"github.com/smartretail/scanpos/internal/httputil"
	"github.com/smartretail/scanpos/internal/hud"
	"github.com/smartretail/scanpos/internal/pipeline"
	"github.com/smartretail/scanpos/internal/scanmux"
	"github.com/smartretail/scanpos/internal/stats"
	"github.com/smartretail/scanpos/internal/timeutil"
	"github.com/smartretail/scanpos/internal/version"
	"github.com/smartretail/scanpos/internal/vision"
)

var (
	devMode     = flag.Bool("dev", false, "Run with fixture frames and a mock scanner instead of hardware")
	fixturesDir = flag.String("fixtures", "fixtures", "Directory of JPEG frames used in dev mode")
	cameraURL   = flag.String("camera", "http://127.0.0.1:8081/video", "MJPEG camera stream URL")
	listen      = flag.String("listen", ":8090", "Status server listen address")
	configPath  = flag.String("config", "", "Tuning config file (JSON); built-in defaults apply when empty")
	scannerPort = flag.String("scanner-port", "", "Serial port of a handheld scanner (empty disables)")
	dbFile      = flag.String("db", "catalog.db", "Catalog snapshot database file (empty disables snapshots)")
)

func main() {
	// a .env next to the binary can set SCANPOS_* endpoint overrides
	if err := godotenv.Load(); err == nil {
		log.Printf("loaded environment overrides from .env")
	}

	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config %s: %v", *configPath, err)
		}
	}

	log.Printf("scanpos %s (%s) starting", version.Version, version.GitSHA)

	clock := timeutil.RealClock{}
	client := httputil.NewStandardClient(&http.Client{Timeout: 10 * time.Second})

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// catalog: cache, optional sqlite snapshot, backend syncer
	cache := catalog.NewCache()
	var store *catalog.Store
	if *dbFile != "" {
		var err error
		store, err = catalog.NewStore(*dbFile)
		if err != nil {
			log.Fatalf("failed to open catalog store %s: %v", *dbFile, err)
		}
		defer store.Close()
	}
	syncer := catalog.NewSyncer(cfg.GetSyncURL(), cfg.GetClassURL(), client, cache, store)
	if err := syncer.Restore(); err != nil {
		log.Printf("no catalog snapshot restored: %v", err)
	}
	if err := syncer.Sync(ctx); err != nil {
		log.Printf("startup catalog sync failed, continuing with %d cached entries: %v", cache.Len(), err)
	}

	// detectors
	decoder := detect.NewZXingDecoder()
	var classifier detect.Classifier = detect.DisabledClassifier{}
	if url := cfg.GetInferURL(); url != "" {
		classifier = detect.NewRemoteClassifier(ctx, url, cfg.GetConfidenceDisplay(), client, cache)
	}

	// frame source
	var source vision.Source
	if *devMode {
		source = vision.NewFileSource(*fixturesDir, cfg.GetProcessInterval(), clock)
	} else {
		// the stream client has no whole-request timeout; the shared 10s
		// client would cut the open MJPEG stream every 10 seconds
		source = vision.NewCamera(*cameraURL, httputil.NewStreamClient(), clock)
	}
	if err := source.Start(ctx); err != nil {
		log.Fatalf("failed to start frame source: %v", err)
	}
	defer source.Stop()

	// optional handheld scanner
	var scanner scanmux.Muxer
	switch {
	case *devMode && *scannerPort != "":
		scanner = scanmux.NewMock("8998866200318", 5*time.Second)
	case *scannerPort != "":
		var err error
		scanner, err = scanmux.NewReal(*scannerPort, scanmux.PortOptions{})
		if err != nil {
			log.Fatalf("failed to open scanner port %s: %v", *scannerPort, err)
		}
	default:
		scanner = scanmux.NewDisabled()
	}
	defer scanner.Close()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := scanner.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("failed to monitor scanner port: %v", err)
		}
		log.Print("scanner monitor routine terminated")
	}()
	scanID, scans := scanner.Subscribe()
	defer scanner.Unsubscribe(scanID)

	// telemetry and operator surfaces
	registry := prometheus.NewRegistry()
	tracker := stats.NewTracker(cfg.GetFPSWindow(), registry)
	overlay := hud.NewOverlay(clock, cfg.GetMessageDuration())
	overlay.SetBell(os.Stdout)
	dispatcher := dispatch.NewDispatcher(cfg.GetAPIURL(), client, cfg.GetDispatchTimeout())
	defer dispatcher.Wait()

	// the decision core
	loop := pipeline.NewLoop(pipeline.LoopConfig{
		Source:     source,
		Decoder:    decoder,
		Classifier: classifier,
		Policy:     pipeline.NewPolicy(cfg.GetConfidenceAutoAccept(), cfg.GetConfidenceSuggestion(), cache),
		Gate:       pipeline.NewGate(cfg.GetCooldownSameItem(), cfg.GetCooldownDifferentItem(), clock),
		Sender:     dispatcher,
		Stats:      tracker,
		Display:    overlay,
		Syncer:     syncer,
		Clock:      clock,
		Interval:   cfg.GetProcessInterval(),
		Scans:      scans,
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		loop.Run(ctx)
	}()

	// periodic status line for headless runs
	renderer := hud.NewLogRenderer(overlay, tracker, clock, 2*time.Second)
	wg.Add(1)
	go func() {
		defer wg.Done()
		renderer.Run(ctx)
	}()

	// operator keys on stdin: q quit, r reload model, s sync catalog,
	// c clear cooldown
	go func() {
		scan := bufio.NewScanner(os.Stdin)
		for scan.Scan() {
			switch scan.Text() {
			case "q":
				log.Print("quit requested")
				stop()
				return
			case "r":
				loop.Submit(pipeline.CommandReload)
			case "s":
				loop.Submit(pipeline.CommandSync)
			case "c":
				loop.Submit(pipeline.CommandResetGate)
			}
		}
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		srv := api.NewServer(loop, tracker, overlay, cache, classifier, cfg, registry)
		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(srv.ServeMux()),
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start status server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down status server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("status server shutdown error: %v", err)
		}
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
