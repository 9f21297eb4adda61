// hf-predict - Point-to-point HF propagation prediction
//
// Predicts MUF, modes, signal level and circuit reliability for one
// transmitter/receiver pair at one instant, or hourly over a UTC day.
// Output goes to a table on stdout, a CSV/CSV.gz/Parquet file, or a
// ClickHouse table.
//
// Build: CGO_ENABLED=0 go build -ldflags="-s -w" -o build/hf-predict ./cmd/hf-predict

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/KI7MT/ki7mt-hf-predict/internal/antenna"
	"github.com/KI7MT/ki7mt-hf-predict/internal/bands"
	"github.com/KI7MT/ki7mt-hf-predict/internal/common"
	"github.com/KI7MT/ki7mt-hf-predict/internal/export"
	"github.com/KI7MT/ki7mt-hf-predict/internal/geo"
	"github.com/KI7MT/ki7mt-hf-predict/internal/predict"
	"github.com/KI7MT/ki7mt-hf-predict/internal/solar"
	"github.com/KI7MT/ki7mt-hf-predict/internal/store"
)

// Version can be overridden at build time via -ldflags
var Version = "1.0.0"

var (
	configPath = flag.String("config", "", "Config file (YAML/JSON/TOML); HFP_* env vars override")
	txFlag     = flag.String("tx", "", "Transmitter: lat,lon or Maidenhead grid (required)")
	rxFlag     = flag.String("rx", "", "Receiver: lat,lon or Maidenhead grid (required)")
	freqFlag   = flag.String("freq", "", "Comma-separated frequencies in MHz")
	bandFlag   = flag.String("bands", "", "Comma-separated band names (e.g. 40m,20m); default all WSPR bands")
	timeFlag   = flag.String("time", "", "UTC time (RFC3339 or 2006-01-02T15:04); default now")
	ssnFlag    = flag.Float64("ssn", -1, "Sunspot number; negative looks it up in ClickHouse")
	monthFlag  = flag.Int("month", 0, "Month override (1-12); default month of -time")
	powerFlag  = flag.Float64("power", 0, "Transmit power in watts (default from config)")
	txAnt      = flag.String("tx-ant", "isotropic", "Transmit antenna: isotropic, vertical, dipole@<height>m")
	rxAnt      = flag.String("rx-ant", "isotropic", "Receive antenna")
	noiseFlag  = flag.String("noise", "", "Noise environment: city, residential, rural, quiet-rural, noisy")
	dayFlag    = flag.Bool("day", false, "Predict each UTC hour of the day")
	outFlag    = flag.String("out", "", "Write records to file (.csv, .csv.gz, .parquet)")
	chTable    = flag.String("ch-table", "", "Insert records into this ClickHouse table (db.table)")
	solarTable = flag.String("solar-table", solar.DefaultTable, "ClickHouse table holding solar indices")
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "hf-predict v%s - HF Propagation Predictor\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] -tx <site> -rx <site>\n\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -tx 40,-100 -rx 45.4,-100 -time 2024-03-15T18:40 -ssn 100 -freq 10\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -tx DN31 -rx FN42 -bands 40m,20m,15m -ssn 120 -day -out day.parquet\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -tx EN00 -rx JO62 -ch-table propagation.predictions\n", os.Args[0])
	}

	flag.Parse()

	if *txFlag == "" || *rxFlag == "" {
		fmt.Fprintf(os.Stderr, "Error: -tx and -rx are required\n")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Config: %v", err)
	}

	req, err := buildRequest(cfg)
	if err != nil {
		log.Fatalf("Request: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Shutdown requested...")
		cancel()
	}()

	if *ssnFlag < 0 {
		req.SSN, err = lookupSSN(ctx, cfg, req.Time)
		if err != nil {
			log.Fatalf("SSN lookup: %v (pass -ssn to skip)", err)
		}
	} else {
		req.SSN = *ssnFlag
	}

	log.Println("=========================================================")
	log.Printf("HF Predict v%s", Version)
	log.Println("=========================================================")
	log.Printf("Tx: %s (%s)  Rx: %s (%s)", req.Tx, geo.Grid(req.Tx), req.Rx, geo.Grid(req.Rx))
	log.Printf("Time: %s  SSN: %.0f  Power: %.0f W", req.Time.Format(time.RFC3339), req.SSN, req.TxPower)
	log.Printf("Frequencies: %d", len(req.Frequencies))

	engine, err := cfg.NewEngine()
	if err != nil {
		log.Fatalf("Engine: %v", err)
	}

	startTime := time.Now()

	var results []*predict.Result
	if *dayFlag {
		results, err = engine.PredictDay(ctx, req)
	} else {
		var res *predict.Result
		res, err = engine.Predict(ctx, req)
		results = []*predict.Result{res}
	}
	if err != nil {
		log.Fatalf("Prediction failed: %v", err)
	}

	records := predict.DayRecords(results)

	if *outFlag == "" && *chTable == "" {
		printTable(os.Stdout, results)
	}
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
	log.Println("Complete")
	log.Println("=========================================================")
	log.Printf("Predictions: %d", len(records))
	log.Printf("Elapsed:     %v", elapsed.Round(time.Millisecond))
	log.Printf("Rate:        %.0f pred/sec", float64(len(records))/elapsed.Seconds())
}

// buildRequest turns the flags and config into an engine request.
func buildRequest(cfg *common.Config) (predict.Request, error) {
	var req predict.Request
	var err error

	if req.Tx, err = geo.ParsePoint(*txFlag); err != nil {
		return req, fmt.Errorf("tx: %w", err)
	}
	if req.Rx, err = geo.ParsePoint(*rxFlag); err != nil {
		return req, fmt.Errorf("rx: %w", err)
	}
	if req.Frequencies, err = frequencies(*freqFlag, *bandFlag); err != nil {
		return req, err
	}
	if req.Time, err = parseTime(*timeFlag); err != nil {
		return req, err
	}
	req.Month = *monthFlag

	req.TxPower = cfg.TxPowerWatts
	if *powerFlag > 0 {
		req.TxPower = *powerFlag
	}
	if *noiseFlag != "" {
		cfg.NoiseEnvironment = *noiseFlag
	}
	if req.Environment, err = cfg.Environment(); err != nil {
		return req, err
	}
	if req.TxAntenna, err = antenna.Parse(*txAnt); err != nil {
		return req, fmt.Errorf("tx-ant: %w", err)
	}
	if req.RxAntenna, err = antenna.Parse(*rxAnt); err != nil {
		return req, fmt.Errorf("rx-ant: %w", err)
	}
	return req, nil
}

func frequencies(freqs, bandNames string) ([]float64, error) {
	if freqs != "" {
		var out []float64
		for _, s := range strings.Split(freqs, ",") {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, fmt.Errorf("frequency %q: %w", s, err)
			}
			out = append(out, f)
		}
		return out, nil
	}
	if bandNames == "" {
		return bands.DefaultFrequencies(), nil
	}
	out, missing := bands.ParseList(strings.Split(bandNames, ","))
	if len(missing) > 0 {
		return nil, fmt.Errorf("unknown bands: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
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
	log.Printf("SSN %.0f from %s", ssn, *solarTable)
	return ssn, nil
}

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

// printTable writes one block per result: the circuit MUF then one line per
// frequency.
func printTable(out io.Writer, results []*predict.Result) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	for _, res := range results {
		info := res.Path
		fmt.Fprintf(tw, "\n%s UTC  %.0f km  az %.0f  SSN %.0f\n",
			info.Time.Format("2006-01-02 15:04"), info.DistanceKm, info.Azimuth, info.SSN)
		if res.Muf.Feasible {
			fmt.Fprintf(tw, "MUF %.1f MHz (%s, %d hop)  FOT %.1f  HPF %.1f\n",
				res.Muf.Muf, res.Muf.Layer, res.Muf.Hops, res.Muf.Fot, res.Muf.Hpf)
		} else {
			fmt.Fprintf(tw, "MUF: no layer supports this path\n")
		}
		for _, cp := range info.ControlPoints {
			if cp.Err != nil {
				fmt.Fprintf(tw, "  control point %.0f km: %v\n", cp.DistanceKm, cp.Err)
			}
		}

		fmt.Fprintf(tw, "FREQ\tBAND\tMODE\tELEV\tLOSS\tSNR\tREL\tSERVICE\n")
		for _, p := range res.Predictions {
			if p.Err != nil {
				fmt.Fprintf(tw, "%.4f\t%s\t%v\n", p.Frequency, p.Band, p.Err)
				continue
			}
			if !p.HasMode {
				fmt.Fprintf(tw, "%.4f\t%s\t-\t-\t-\t-\t%.2f\t%.2f\n", p.Frequency, p.Band, p.Reliability, p.ServiceProbability)
				continue
			}
			mode := fmt.Sprintf("%d%s", p.Mode.Hops, p.Mode.Layer)
			if p.Mode.OverMuf {
				mode += "*"
			}
			fmt.Fprintf(tw, "%.4f\t%s\t%s\t%.1f\t%.1f\t%.1f\t%.2f\t%.2f\n",
				p.Frequency, p.Band, mode, p.Mode.ElevationDeg(), p.Loss.Total,
				p.SNR.Median, p.Reliability, p.ServiceProbability)
		}
	}
}
