// wspr-validate - Compare predictions against WSPRnet spots
//
// Streams a WSPRnet archive (CSV or CSV.gz), predicts every spot with the
// spot's own power, frequency and endpoints, and reports the signal-level
// error and the fraction of spots the engine considered decodable.
//
// Build: CGO_ENABLED=0 go build -ldflags="-s -w" -o build/wspr-validate ./cmd/wspr-validate

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/KI7MT/ki7mt-hf-predict/internal/antenna"
	"github.com/KI7MT/ki7mt-hf-predict/internal/common"
	"github.com/KI7MT/ki7mt-hf-predict/internal/solar"
	"github.com/KI7MT/ki7mt-hf-predict/internal/wspr"
)

// Version can be overridden at build time via -ldflags
var Version = "1.0.0"

var (
	configPath  = flag.String("config", "", "Config file (YAML/JSON/TOML); HFP_* env vars override")
	ssnFlag     = flag.Float64("ssn", -1, "Sunspot number; negative looks it up in ClickHouse for the first spot")
	solarTable  = flag.String("solar-table", solar.DefaultTable, "ClickHouse table holding solar indices")
	noiseFlag   = flag.String("noise", "quiet-rural", "Receiver noise environment")
	antFlag     = flag.String("ant", "dipole@10m", "Antenna assumed at both ends")
	batchSize   = flag.Int("batch", 10000, "Spots per batch")
	maxSpots    = flag.Int("max", 0, "Stop after this many spots (0 = all)")
	workersFlag = flag.Int("workers", 0, "Number of workers (default: all CPUs)")
	outFlag     = flag.String("out", "", "Write per-spot comparisons to this CSV file")
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "wspr-validate v%s - WSPR Prediction Calibration\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] <wsprspots-YYYY-MM.csv[.gz]>\n\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -ssn 110 wsprspots-2024-03.csv.gz\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -max 100000 -out residuals.csv wsprspots-2024-03.csv.gz\n", os.Args[0])
	}

	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	path := flag.Arg(0)

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Config: %v", err)
	}
	cfg.NoiseEnvironment = *noiseFlag
	env, err := cfg.Environment()
	if err != nil {
		log.Fatalf("Noise: %v", err)
	}
	ant, err := antenna.Parse(*antFlag)
	if err != nil {
		log.Fatalf("Antenna: %v", err)
	}

	workers := *workersFlag
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	log.Println("=========================================================")
	log.Printf("WSPR Validate v%s", Version)
	log.Println("=========================================================")
	log.Printf("Input:   %s", path)
	log.Printf("Noise:   %s  Antenna: %s", env, ant.Name())
	log.Printf("Workers: %d  Batch: %d", workers, *batchSize)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("\nShutdown requested...")
		cancel()
	}()

	cfg.Workers = 1
	engine, err := cfg.NewEngine()
	if err != nil {
		log.Fatalf("Engine: %v", err)
	}

	v := wspr.NewValidator(engine, *ssnFlag, workers)
	v.Environment = env
	v.TxAntenna = ant
	v.RxAntenna = ant

	var out *wspr.ComparisonWriter
	if *outFlag != "" {
		f, err := os.Create(*outFlag)
		if err != nil {
			log.Fatalf("Create %s: %v", *outFlag, err)
		}
		defer f.Close()
		out = wspr.NewComparisonWriter(f)
	}

	reader, err := wspr.OpenFile(path)
	if err != nil {
		log.Fatalf("Open %s: %v", path, err)
	}
	defer reader.Close()

	var stats wspr.ParseStats
	var cal wspr.Calibration
	processed := 0
	startTime := time.Now()

	process := func(b *wspr.Batch) error {
		if b.Count == 0 {
			return nil
		}
		if v.SSN < 0 {
			ssn, err := lookupSSN(ctx, cfg, b.Spots[0].Timestamp)
			if err != nil {
				return fmt.Errorf("SSN lookup: %w (pass -ssn to skip)", err)
			}
			v.SSN = ssn
		}
		batchStart := time.Now()
		cmps := v.ProcessBatch(ctx, b)
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, c := range cmps {
			cal.Add(c)
		}
		if out != nil {
			if err := out.Write(cmps); err != nil {
				return err
			}
		}
		processed += b.Count
		elapsed := time.Since(batchStart)
		log.Printf("  %d spots (%.0f spots/sec)", processed, float64(b.Count)/elapsed.Seconds())
		return nil
	}

	final, err := wspr.ParseStream(reader, wspr.NewBatch(*batchSize), &stats, func(b *wspr.Batch) (*wspr.Batch, error) {
		if err := process(b); err != nil {
			return nil, err
		}
		if *maxSpots > 0 && processed >= *maxSpots {
			return nil, nil
		}
		b.Reset()
		return b, nil
	})
	if err != nil {
		log.Fatalf("Validation failed: %v", err)
	}
	if final != nil {
		if err := process(final); err != nil {
			log.Fatalf("Validation failed: %v", err)
		}
	}
	if out != nil {
		if err := out.Flush(); err != nil {
			log.Fatalf("Write %s: %v", *outFlag, err)
		}
	}

	elapsed := time.Since(startTime)
	s := cal.Summary()

	log.Println("=========================================================")
	log.Println("Final Statistics")
	log.Println("=========================================================")
	log.Printf("Rows read:      %d (%d failed, %d cleaned callsigns)", stats.TotalRowsRead, stats.FailedRows, stats.CleanedCallsigns)
	log.Printf("SSN:            %.0f", v.SSN)
	log.Printf("Predicted:      %d", s.Spots)
	log.Printf("Skipped:        %d", s.Skipped)
	log.Printf("No mode:        %d", s.NoMode)
	log.Printf("Decodable:      %.1f%%", 100*s.DecodableFraction)
	log.Printf("Mean error:     %+.1f dB", s.MeanError)
	log.Printf("Median error:   %+.1f dB", s.MedianError)
	log.Printf("Std dev:        %.1f dB", s.StdDev)
	log.Printf("RMS error:      %.1f dB", s.RMSError)
	log.Printf("Elapsed:        %v", elapsed.Round(time.Millisecond))
	log.Printf("Rate:           %.0f spots/sec", float64(processed)/elapsed.Seconds())
}

func lookupSSN(ctx context.Context, cfg *common.Config, t time.Time) (float64, error) {
	conn, err := solar.Open(cfg.ClickHouseAddr(), cfg.ClickHouseDatabase, cfg.ClickHouseUser, cfg.ClickHousePassword)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	ssn, err := solar.NewIndexStore(conn, *solarTable).SSNFor(ctx, t)
	if err != nil {
		return 0, err
	}
	log.Printf("SSN %.0f for %s from %s", ssn, t.Format("2006-01"), *solarTable)
	return ssn, nil
}
