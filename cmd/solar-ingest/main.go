// solar-ingest - Load solar indices for SSN lookup
//
// Loads SIDC daily sunspot numbers and NOAA monthly flux indices into the
// raw indices table that hf-predict and wspr-validate query when -ssn is
// not given.
//
// Supported formats:
//   - SIDC CSV (sidc_YYYY.csv): Daily sunspot numbers from SILSO
//   - SFI JSON (*flux*.txt, *.json): NOAA monthly solar indices
//
// Build: CGO_ENABLED=0 go build -ldflags="-s -w" -o build/solar-ingest ./cmd/solar-ingest

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ClickHouse/ch-go"

	"github.com/KI7MT/ki7mt-hf-predict/internal/common"
	"github.com/KI7MT/ki7mt-hf-predict/internal/solar"
	"github.com/KI7MT/ki7mt-hf-predict/internal/store"
)

// Version can be overridden at build time via -ldflags
var Version = "1.0.0"

var (
	configPath = flag.String("config", "", "Config file (YAML/JSON/TOML); HFP_* env vars override")
	chTable    = flag.String("ch-table", solar.DefaultTable, "ClickHouse table")
	sourceDir  = flag.String("source-dir", "", "Solar data source directory (default: <data_dir>/solar)")
	truncate   = flag.Bool("truncate", false, "Truncate table before insert")
	create     = flag.Bool("create", true, "Create the table if it does not exist")
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "solar-ingest v%s - Solar Index Loader\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] [files...]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Loads solar indices from NOAA/SIDC sources into ClickHouse.\n\n")
		fmt.Fprintf(os.Stderr, "Supported formats:\n")
		fmt.Fprintf(os.Stderr, "  - SIDC CSV (sidc_YYYY.csv): Daily sunspot numbers\n")
		fmt.Fprintf(os.Stderr, "  - SFI JSON (sfi_daily_flux.txt): NOAA solar flux indices\n\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Config: %v", err)
	}
	if *sourceDir == "" {
		*sourceDir = filepath.Join(cfg.DataDir, "solar")
	}

	log.Println("=========================================================")
	log.Printf("Solar Ingest v%s", Version)
	log.Println("=========================================================")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("\nShutdown requested...")
		cancel()
	}()

	files := flag.Args()
	if len(files) == 0 {
		entries, err := os.ReadDir(*sourceDir)
		if err != nil {
			log.Fatalf("Cannot read source directory: %v", err)
		}
		for _, e := range entries {
			if !e.IsDir() {
				files = append(files, filepath.Join(*sourceDir, e.Name()))
			}
		}
	}
	if len(files) == 0 {
		log.Fatal("No files to process")
	}
	log.Printf("Found %d file(s)", len(files))

	log.Printf("Connecting to ClickHouse at %s...", cfg.ClickHouseAddr())
	conn, err := store.Dial(ctx, cfg.ClickHouseAddr(), cfg.ClickHouseDatabase, cfg.ClickHouseUser, cfg.ClickHousePassword)
	if err != nil {
		log.Fatalf("ClickHouse connection failed: %v", err)
	}
	defer conn.Close()

	log.Printf("Table: %s", *chTable)
	if *create {
		if err := conn.Do(ctx, ch.Query{Body: solar.CreateTableSQL(*chTable)}); err != nil {
			log.Fatalf("Create table: %v", err)
		}
	}
	if *truncate {
		log.Printf("Truncating table %s...", *chTable)
		if err := conn.Do(ctx, ch.Query{Body: fmt.Sprintf("TRUNCATE TABLE %s", *chTable)}); err != nil {
			log.Printf("Truncate warning: %v", err)
		}
	}

	startTime := time.Now()
	totalRecords := 0
	batch := solar.NewIndexBatch()

	for _, path := range files {
		if ctx.Err() != nil {
			break
		}
		name := filepath.Base(path)

		rows, format, err := parseFile(path)
		if err != nil {
			log.Printf("[%s] %v", name, err)
			continue
		}
		batch.Add(rows...)
		log.Printf("[%s] Parsed %d records (%s format)", name, len(rows), format)
		totalRecords += len(rows)
	}

	if err := solar.Flush(ctx, conn, *chTable, batch); err != nil {
		log.Fatalf("Insert error: %v", err)
	}
	log.Printf("Inserted %d records", totalRecords)

	elapsed := time.Since(startTime)

	log.Println()
	log.Println("=========================================================")
	log.Println("Final Statistics")
	log.Println("=========================================================")
	log.Printf("Total Records: %d", totalRecords)
	log.Printf("Elapsed:       %v", elapsed.Round(time.Millisecond))
	log.Printf("Rate:          %.0f records/sec", float64(totalRecords)/elapsed.Seconds())
	log.Println("=========================================================")
}

// parseFile detects the format from the name and first bytes, then parses.
func parseFile(path string) ([]solar.Daily, solar.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, solar.FormatUnknown, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	head, _ := r.Peek(64)
	format := solar.DetectFormat(path, head)
	if format == solar.FormatUnknown {
		return nil, format, fmt.Errorf("skipping (unknown format)")
	}
	rows, err := solar.Parse(format, r, filepath.Base(path))
	if err != nil {
		return nil, format, fmt.Errorf("parse error: %w", err)
	}
	return rows, format, nil
}
