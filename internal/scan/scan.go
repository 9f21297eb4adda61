// Package scan runs area coverage predictions: one transmitter against a grid
// of receive points.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/KI7MT/ki7mt-hf-predict/internal/bands"
	"github.com/KI7MT/ki7mt-hf-predict/internal/common"
	"github.com/KI7MT/ki7mt-hf-predict/internal/geo"
	"github.com/KI7MT/ki7mt-hf-predict/internal/metrics"
	"github.com/KI7MT/ki7mt-hf-predict/internal/predict"
)

const tracerName = "github.com/KI7MT/ki7mt-hf-predict/internal/scan"

// MaxErrorsToLog caps per-target failure logging.
const MaxErrorsToLog = 10

// minSeparationKm keeps the transmitter's own site out of the grid.
const minSeparationKm = 1.0

var ErrInvalidGrid = errors.New("invalid scan grid")

// =============================================================================
// Grid
// =============================================================================

// Grid is a regular lat/lon lattice around Center, cut to a great-circle
// radius.
type Grid struct {
	Center   geo.Point
	RadiusKm float64
	StepDeg  float64
}

// Validate checks the grid parameters.
func (g Grid) Validate() error {
	if err := g.Center.Validate(); err != nil {
		return err
	}
	if !(g.StepDeg > 0) || g.StepDeg > 90 {
		return fmt.Errorf("%w: step %g deg", ErrInvalidGrid, g.StepDeg)
	}
	if !(g.RadiusKm > 0) {
		return fmt.Errorf("%w: radius %g km", ErrInvalidGrid, g.RadiusKm)
	}
	return nil
}

// Points returns the lattice points within RadiusKm of Center, excluding
// Center itself. Latitude rows run south to north.
func (g Grid) Points() ([]geo.Point, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	kmPerDeg := geo.EarthRadiusKm * math.Pi / 180
	rows := int(math.Floor(g.RadiusKm / kmPerDeg / g.StepDeg))
	cols := int(math.Floor(360 / g.StepDeg))

	var out []geo.Point
	for j := -rows; j <= rows; j++ {
		lat := g.Center.Lat + float64(j)*g.StepDeg
		if lat <= -90 || lat >= 90 {
			continue
		}
		for k := 0; k < cols; k++ {
			p := geo.Point{Lat: lat, Lon: wrapLon(g.Center.Lon + float64(k)*g.StepDeg)}
			d := geo.Distance(g.Center, p)
			if d < minSeparationKm || d > g.RadiusKm {
				continue
			}
			out = append(out, p)
		}
	}
	return out, nil
}

func wrapLon(lon float64) float64 {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}

// =============================================================================
// Run
// =============================================================================

// Predictor is the part of predict.Engine a scan needs.
type Predictor interface {
	Predict(ctx context.Context, req predict.Request) (*predict.Result, error)
}

// Options controls a scan. Every field is optional.
type Options struct {
	Workers  int
	Stats    *common.Stats
	Metrics  *metrics.Collector
	Progress func() // called once per finished target
}

// Target is the outcome for one receive point.
type Target struct {
	Rx     geo.Point
	Result *predict.Result
	Err    error
}

// Run predicts tmpl for every receive point. tmpl.Rx is replaced per target.
// A failing target is recorded on its Target and never stops the scan; only
// cancellation of ctx returns an error.
func Run(ctx context.Context, p Predictor, tmpl predict.Request, points []geo.Point, opts Options) ([]Target, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "scan.Run", trace.WithAttributes(
		attribute.String("scan.tx", tmpl.Tx.String()),
		attribute.Int("scan.targets", len(points)),
		attribute.Int("scan.frequencies", len(tmpl.Frequencies)),
	))
	defer span.End()

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	out := make([]Target, len(points))
	var errorCount atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, rx := range points {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = runTarget(gctx, p, tmpl, rx, opts)
			if out[i].Err != nil {
				if errors.Is(out[i].Err, context.Canceled) || errors.Is(out[i].Err, context.DeadlineExceeded) {
					return out[i].Err
				}
				if n := errorCount.Add(1); n <= MaxErrorsToLog {
					log.Printf("[scan] target %s: %v", rx, out[i].Err)
				}
			}
			if opts.Progress != nil {
				opts.Progress()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	failed := errorCount.Load()
	if failed > MaxErrorsToLog {
		log.Printf("[scan] ... and %d more target errors (suppressed)", failed-MaxErrorsToLog)
	}
	span.SetAttributes(attribute.Int64("scan.failed", failed))
	return out, nil
}

func runTarget(ctx context.Context, p Predictor, tmpl predict.Request, rx geo.Point, opts Options) Target {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "scan.target",
		trace.WithAttributes(attribute.String("scan.rx_grid", geo.Grid(rx))))
	defer span.End()

	opts.Metrics.TargetStarted()
	defer opts.Metrics.TargetDone()

	req := tmpl
	req.Rx = rx
	start := time.Now()
	res, err := p.Predict(ctx, req)
	elapsed := time.Since(start)

	failed := err != nil
	opts.Metrics.ObserveTarget(failed, elapsed)
	if opts.Stats != nil {
		opts.Stats.AddTarget(failed)
		opts.Stats.SetBatchLatency(uint64(elapsed.Nanoseconds()))
	}
	if failed {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Target{Rx: rx, Err: err}
	}

	if opts.Stats != nil {
		opts.Stats.AddPredictions(uint64(len(res.Predictions)))
	}
	for _, pr := range res.Predictions {
		layer := ""
		if pr.HasMode {
			layer = pr.Mode.Layer.String()
		}
		opts.Metrics.ObservePrediction(layer)
	}
	return Target{Rx: rx, Result: res}
}

// Records flattens a scan. A failed target yields one row per requested
// frequency carrying the error, so the gap is visible downstream.
func Records(tmpl predict.Request, targets []Target) []predict.FlatRecord {
	var out []predict.FlatRecord
	for _, t := range targets {
		if t.Err == nil && t.Result != nil {
			out = append(out, t.Result.Records()...)
			continue
		}
		ts := tmpl.Time.UTC()
		month := tmpl.Month
		if month == 0 {
			month = int(ts.Month())
		}
		for _, f := range tmpl.Frequencies {
			out = append(out, predict.FlatRecord{
				Timestamp: ts.Unix(),
				Month:     int32(month),
				Hour:      int32(ts.Hour()),
				SSN:       float32(tmpl.SSN),
				TxGrid:    geo.Grid(tmpl.Tx),
				RxGrid:    geo.Grid(t.Rx),
				TxLat:     float32(tmpl.Tx.Lat),
				TxLon:     float32(tmpl.Tx.Lon),
				RxLat:     float32(t.Rx.Lat),
				RxLon:     float32(t.Rx.Lon),
				Frequency: f,
				Band:      bands.Label(f),
				Error:     errString(t.Err),
			})
		}
	}
	return out
}

func errString(err error) string {
	if err == nil {
		return "no result"
	}
	return err.Error()
}
