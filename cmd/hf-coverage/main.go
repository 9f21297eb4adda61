// hf-coverage - Area coverage scan
//
// Predicts every circuit from one transmitter to a grid of receive points
// around it and writes the flattened records to a file or ClickHouse.
// Exposes Prometheus metrics while the scan runs when -metrics is set.
//
// Build: CGO_ENABLED=0 go build -ldflags="-s -w" -o build/hf-coverage ./cmd/hf-coverage

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/KI7MT/ki7mt-hf-predict/internal/antenna"
	"github.com/KI7MT/ki7mt-hf-predict/internal/bands"
	"github.com/KI7MT/ki7mt-hf-predict/internal/common"
	"github.com/KI7MT/ki7mt-hf-predict/internal/export"
	"github.com/KI7MT/ki7mt-hf-predict/internal/geo"
	"github.com/KI7MT/ki7mt-hf-predict/internal/metrics"
	"github.com/KI7MT/ki7mt-hf-predict/internal/predict"
	"github.com/KI7MT/ki7mt-hf-predict/internal/scan"
	"github.com/KI7MT/ki7mt-hf-predict/internal/store"
)

// Version can be overridden at build time via -ldflags
var Version = "1.0.0"

var (
	configPath  = flag.String("config", "", "Config file (YAML/JSON/TOML); HFP_* env vars override")
	txFlag      = flag.String("tx", "", "Transmitter: lat,lon or Maidenhead grid (required)")
	bandFlag    = flag.String("bands", "20m", "Comma-separated band names")
	timeFlag    = flag.String("time", "", "UTC time (RFC3339); default now")
	ssnFlag     = flag.Float64("ssn", 100, "Sunspot number")
	radiusFlag  = flag.Float64("radius", 4000, "Scan radius in km")
	stepFlag    = flag.Float64("step", 2, "Grid step in degrees")
	txAnt       = flag.String("tx-ant", "isotropic", "Transmit antenna")
	rxAnt       = flag.String("rx-ant", "isotropic", "Receive antenna")
	workersFlag = flag.Int("workers", 0, "Concurrent targets (default: all CPUs)")
	outFlag     = flag.String("out", "", "Write records to file (.csv, .csv.gz, .parquet)")
	chTable     = flag.String("ch-table", "", "Insert records into this ClickHouse table (db.table)")
	metricsAddr = flag.String("metrics", "", "Serve Prometheus metrics on this address (e.g. :9105)")
	noProgress  = flag.Bool("no-progress", false, "Disable the progress bar")
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "hf-coverage v%s - HF Coverage Scan\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] -tx <site> (-out <file> | -ch-table <table>)\n\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -tx DN31 -bands 20m -radius 3000 -out coverage.parquet\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -tx 47.6,-122.3 -bands 40m,20m -ch-table propagation.coverage -metrics :9105\n", os.Args[0])
	}

	flag.Parse()

	if *txFlag == "" || (*outFlag == "" && *chTable == "") {
		fmt.Fprintf(os.Stderr, "Error: -tx and one of -out or -ch-table are required\n")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Config: %v", err)
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}

	tmpl, grid, err := buildScan(cfg)
	if err != nil {
		log.Fatalf("Scan: %v", err)
	}
	points, err := grid.Points()
	if err != nil {
		log.Fatalf("Grid: %v", err)
	}

	workers := *workersFlag
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	log.Println("=========================================================")
	log.Printf("HF Coverage v%s", Version)
	log.Println("=========================================================")
	log.Printf("Tx:          %s (%s)", tmpl.Tx, geo.Grid(tmpl.Tx))
	log.Printf("Time:        %s  SSN: %.0f", tmpl.Time.Format(time.RFC3339), tmpl.SSN)
	log.Printf("Grid:        %.0f km radius, %.1f deg step, %d targets", grid.RadiusKm, grid.StepDeg, len(points))
	log.Printf("Frequencies: %d", len(tmpl.Frequencies))
	log.Printf("Workers:     %d", workers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("\nShutdown requested...")
		cancel()
	}()

	collector, err := metrics.NewCollector(nil)
	if err != nil {
		log.Fatalf("Metrics: %v", err)
	}
	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: collector.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("Metrics server: %v", err)
			}
		}()
		defer srv.Close()
		log.Printf("Metrics:     http://%s/metrics", cfg.MetricsAddr)
	}

	// Engine parallelism is per frequency; the scan already fans out per
	// target.
	cfg.Workers = 1
	engine, err := cfg.NewEngine()
	if err != nil {
		log.Fatalf("Engine: %v", err)
	}

	stats := common.NewStats()
	opts := scan.Options{Workers: workers, Stats: stats, Metrics: collector}
	if *noProgress {
		stats.StartReporter()
	} else {
		bar := progressbar.Default(int64(len(points)), "Targets")
		opts.Progress = func() { bar.Add(1) }
	}

	startTime := time.Now()
	targets, err := scan.Run(ctx, engine, tmpl, points, opts)
	if *noProgress {
		stats.StopReporter()
	}
	if err != nil {
		log.Fatalf("Scan aborted: %v", err)
	}
	scanElapsed := time.Since(startTime)

	records := scan.Records(tmpl, targets)

	if *outFlag != "" {
		if err := export.WriteFile(*outFlag, records); err != nil {
			log.Fatalf("Export: %v", err)
		}
		log.Printf("Wrote %d records to %s", len(records), *outFlag)
	}
	if *chTable != "" {
		if err := insertRecords(ctx, cfg, *chTable, records); err != nil {
			log.Fatalf("ClickHouse: %v", err)
		}
	}

	elapsed := time.Since(startTime)

	log.Println("=========================================================")
	log.Println("Final Statistics")
	log.Println("=========================================================")
	log.Printf("Targets:     %d (%d failed)", stats.GetTotalTargets(), stats.GetFailedTargets())
	log.Printf("Predictions: %d", stats.GetTotalPredictions())
	log.Printf("Records:     %d", len(records))
	log.Printf("Scan:        %v", scanElapsed.Round(time.Millisecond))
	log.Printf("Elapsed:     %v", elapsed.Round(time.Millisecond))
	log.Printf("Rate:        %.1f targets/sec", float64(len(points))/scanElapsed.Seconds())
}

func buildScan(cfg *common.Config) (predict.Request, scan.Grid, error) {
	var req predict.Request
	tx, err := geo.ParsePoint(*txFlag)
	if err != nil {
		return req, scan.Grid{}, fmt.Errorf("tx: %w", err)
	}
	grid := scan.Grid{Center: tx, RadiusKm: *radiusFlag, StepDeg: *stepFlag}
	if err := grid.Validate(); err != nil {
		return req, grid, err
	}

	freqs, missing := bands.ParseList(strings.Split(*bandFlag, ","))
	if len(missing) > 0 {
		return req, grid, fmt.Errorf("unknown bands: %s", strings.Join(missing, ", "))
	}

	req.Tx = tx
	req.Frequencies = freqs
	req.SSN = *ssnFlag
	req.TxPower = cfg.TxPowerWatts
	req.Time = time.Now().UTC()
	if *timeFlag != "" {
		if req.Time, err = time.Parse(time.RFC3339, *timeFlag); err != nil {
			return req, grid, fmt.Errorf("time: %w", err)
		}
		req.Time = req.Time.UTC()
	}
	if req.Environment, err = cfg.Environment(); err != nil {
		return req, grid, err
	}
	if req.TxAntenna, err = antenna.Parse(*txAnt); err != nil {
		return req, grid, fmt.Errorf("tx-ant: %w", err)
	}
	if req.RxAntenna, err = antenna.Parse(*rxAnt); err != nil {
		return req, grid, fmt.Errorf("rx-ant: %w", err)
	}
	return req, grid, nil
}

// insertRecords writes records through the batched writer; large scans are
// flushed every store.DefaultBatchLimit rows.
func insertRecords(ctx context.Context, cfg *common.Config, table string, records []predict.FlatRecord) error {
	log.Printf("Connecting to ClickHouse at %s...", cfg.ClickHouseAddr())
	conn, err := store.Dial(ctx, cfg.ClickHouseAddr(), cfg.ClickHouseDatabase, cfg.ClickHouseUser, cfg.ClickHousePassword)
	if err != nil {
		return err
	}
	defer conn.Close()

	w := store.NewWriter(conn, table)
	if err := w.CreateTable(ctx); err != nil {
		return err
	}
	if err := w.Write(ctx, records...); err != nil {
		return err
	}
	if err := w.Flush(ctx); err != nil {
		return err
	}
	log.Printf("Inserted %d rows into %s (run %s)", w.Inserted(), table, w.RunID())
	return nil
}
