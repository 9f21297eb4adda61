// Package predict runs the full prediction pipeline for a circuit: map
// evaluation, profile building, MUF and mode search, and signal and
// reliability estimates for each requested frequency.
package predict

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/KI7MT/ki7mt-hf-predict/internal/antenna"
	"github.com/KI7MT/ki7mt-hf-predict/internal/bands"
	"github.com/KI7MT/ki7mt-hf-predict/internal/geo"
	"github.com/KI7MT/ki7mt-hf-predict/internal/ionmap"
	"github.com/KI7MT/ki7mt-hf-predict/internal/ionosphere"
	"github.com/KI7MT/ki7mt-hf-predict/internal/noise"
	"github.com/KI7MT/ki7mt-hf-predict/internal/raytrace"
	"github.com/KI7MT/ki7mt-hf-predict/internal/signal"
	"github.com/KI7MT/ki7mt-hf-predict/internal/sun"
)

// =============================================================================
// Errors and limits
// =============================================================================

var (
	ErrInvalidFrequency = errors.New("frequency outside prediction range")
	ErrUnsupportedSSN   = errors.New("solar activity outside supported range")
	ErrInvalidPower     = errors.New("transmit power must be positive")
	ErrNoFrequencies    = errors.New("no frequencies requested")
	ErrSameLocation     = errors.New("transmitter and receiver are co-located")
)

// MinPathKm is the shortest accepted circuit. Shorter paths are served by
// the vertical-incidence modes down to this distance.
const MinPathKm = 0.1

// MaxSSN is the highest accepted sunspot number. Values between the top map
// level and MaxSSN are extrapolated.
const MaxSSN = 300.0

// MaxWarningsToLog throttles library warnings, matching the parser's error cap.
const MaxWarningsToLog = 10

var extrapolationWarnings atomic.Int64

// =============================================================================
// Configuration
// =============================================================================

// Config holds the engine-wide defaults.
type Config struct {
	MinElevation         float64 // radians
	MaxHops              int
	RequiredSNR          float64 // dB-Hz
	EquipmentReliability float64
	MinCriticalFrequency float64 // MHz
	Ground               signal.Ground
	Workers              int // frequencies evaluated in parallel
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		MinElevation:         raytrace.DefaultMinElevation,
		MaxHops:              raytrace.DefaultMaxHops,
		RequiredSNR:          signal.DefaultRequiredSNR,
		EquipmentReliability: signal.DefaultEquipmentReliability,
		MinCriticalFrequency: ionosphere.DefaultMinCriticalFrequency,
		Ground:               signal.AverageGround,
		Workers:              runtime.NumCPU(),
	}
}

// =============================================================================
// Request and result
// =============================================================================

// Request is one circuit at one instant.
type Request struct {
	Tx          geo.Point
	Rx          geo.Point
	Frequencies []float64 // MHz
	Time        time.Time // UTC
	SSN         float64
	Month       int     // 1-12; zero takes the month of Time
	TxPower     float64 // watts
	TxAntenna   antenna.Antenna
	RxAntenna   antenna.Antenna
	Environment noise.Environment
	RequiredSNR float64 // dB-Hz; zero takes the engine default
}

func (r Request) month() int {
	if r.Month == 0 {
		return int(r.Time.UTC().Month())
	}
	return r.Month
}

// ControlPointResult is one sampled control point and its profile, or the
// reason it could not produce one.
type ControlPointResult struct {
	DistanceKm   float64
	ControlPoint ionosphere.ControlPoint
	Profile      *ionosphere.Profile
	Err          error
}

// PathInfo describes the circuit geometry and its ionospheric samples.
type PathInfo struct {
	geo.Path
	Time          time.Time
	Month         int
	SSN           float64
	ControlPoints []ControlPointResult
	Extrapolated  bool
}

// Prediction is the outcome at one frequency: the best mode and every mode
// found. Err is set when the frequency itself was rejected.
type Prediction struct {
	signal.Prediction
	Band  string
	Modes []signal.Prediction
	Err   error
}

// HopCount returns the best mode's hop count, zero for no mode.
func (p Prediction) HopCount() int {
	if !p.HasMode {
		return 0
	}
	return p.Mode.Hops
}

// Result is the engine output for one request.
type Result struct {
	Path        PathInfo
	Muf         raytrace.CircuitMuf
	Predictions []Prediction
}

// =============================================================================
// Engine
// =============================================================================

// Engine is safe for concurrent use; every call owns its working state.
type Engine struct {
	builder *ionosphere.Builder
	cfg     Config
}

// NewEngine returns an engine reading m. A nil map uses the process-wide
// coefficient cache.
func NewEngine(m *ionmap.Map, cfg Config) *Engine {
	if m == nil {
		m = ionmap.Default()
	}
	b := ionosphere.NewBuilder(m)
	if cfg.MinCriticalFrequency > 0 {
		b.MinCriticalFrequency = cfg.MinCriticalFrequency
	}
	if cfg.MaxHops <= 0 {
		cfg.MaxHops = raytrace.DefaultMaxHops
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RequiredSNR == 0 {
		cfg.RequiredSNR = signal.DefaultRequiredSNR
	}
	if cfg.EquipmentReliability == 0 {
		cfg.EquipmentReliability = signal.DefaultEquipmentReliability
	}
	if cfg.Ground == (signal.Ground{}) {
		cfg.Ground = signal.AverageGround
	}
	return &Engine{builder: b, cfg: cfg}
}

// Config returns the engine configuration after defaults were applied.
func (e *Engine) Config() Config { return e.cfg }

// ValidateFrequency checks that f lies inside the prediction range.
func ValidateFrequency(f float64) error {
	if math.IsNaN(f) || !bands.InRange(f) {
		return fmt.Errorf("%w: %g MHz", ErrInvalidFrequency, f)
	}
	return nil
}

func (e *Engine) validate(req Request) (geo.Path, error) {
	path, err := geo.NewPath(req.Tx, req.Rx)
	if err != nil {
		return geo.Path{}, err
	}
	if path.DistanceKm < MinPathKm {
		return geo.Path{}, fmt.Errorf("%w: %.3f km apart", ErrSameLocation, path.DistanceKm)
	}
	if math.IsNaN(req.SSN) || req.SSN < 0 || req.SSN > MaxSSN {
		return geo.Path{}, fmt.Errorf("%w: %g", ErrUnsupportedSSN, req.SSN)
	}
	if m := req.month(); m < 1 || m > 12 {
		return geo.Path{}, fmt.Errorf("%w: %d", ionmap.ErrInvalidMonth, m)
	}
	if !(req.TxPower > 0) {
		return geo.Path{}, fmt.Errorf("%w: %g W", ErrInvalidPower, req.TxPower)
	}
	if len(req.Frequencies) == 0 {
		return geo.Path{}, ErrNoFrequencies
	}
	return path, nil
}

// Predict runs the pipeline for req. Request-level problems are returned as
// errors before any work is done; a rejected frequency is reported on its
// own Prediction and does not affect the others.
func (e *Engine) Predict(ctx context.Context, req Request) (*Result, error) {
	path, err := e.validate(req)
	if err != nil {
		return nil, err
	}

	info, err := e.controlPoints(ctx, path, req)
	if err != nil {
		return nil, err
	}
	if info.Extrapolated && extrapolationWarnings.Add(1) <= MaxWarningsToLog {
		log.Printf("[predict] SSN %.0f outside map levels, extrapolating", req.SSN)
	}

	var profiles []*ionosphere.Profile
	for _, cp := range info.ControlPoints {
		if cp.Profile != nil {
			profiles = append(profiles, cp.Profile)
		}
	}

	res := &Result{
		Path:        info,
		Muf:         raytrace.ComputeCircuitMuf(profiles, path.DistanceKm, e.cfg.MinElevation),
		Predictions: make([]Prediction, len(req.Frequencies)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i, f := range req.Frequencies {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res.Predictions[i] = e.predictFrequency(res, profiles, req, f)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

// PredictDay evaluates req at each whole UTC hour of the day containing
// req.Time.
func (e *Engine) PredictDay(ctx context.Context, req Request) ([]*Result, error) {
	t := req.Time.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)

	out := make([]*Result, 0, 24)
	for h := 0; h < 24; h++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r := req
		r.Time = day.Add(time.Duration(h) * time.Hour)
		res, err := e.Predict(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("hour %02d: %w", h, err)
		}
		out = append(out, res)
	}
	return out, nil
}

// controlPoints samples and builds every control point of the path in
// parallel. A control point with no usable layer is recorded, not fatal.
func (e *Engine) controlPoints(ctx context.Context, path geo.Path, req Request) (PathInfo, error) {
	dists := path.ControlPointDistances()
	info := PathInfo{
		Path:          path,
		Time:          req.Time.UTC(),
		Month:         req.month(),
		SSN:           req.SSN,
		ControlPoints: make([]ControlPointResult, len(dists)),
	}

	g, _ := errgroup.WithContext(ctx)
	for i, d := range dists {
		g.Go(func() error {
			cp, err := e.builder.ControlPoint(path.PointAt(d), req.Time, info.Month, req.SSN)
			if err != nil {
				return fmt.Errorf("control point at %.0f km: %w", d, err)
			}
			r := ControlPointResult{DistanceKm: d, ControlPoint: cp}
			r.Profile, r.Err = e.builder.Build(cp)
			info.ControlPoints[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return PathInfo{}, err
	}
	for _, cp := range info.ControlPoints {
		info.Extrapolated = info.Extrapolated || cp.ControlPoint.Extrapolated
	}
	return info, nil
}

// =============================================================================
// Per-frequency evaluation
// =============================================================================

func (e *Engine) baseParams(res *Result, req Request, f float64) signal.Params {
	p := signal.Params{
		TxPower:              10 * math.Log10(req.TxPower),
		RequiredSNR:          e.cfg.RequiredSNR,
		EquipmentReliability: e.cfg.EquipmentReliability,
		Ground:               e.cfg.Ground,
		Absorption:           pathAbsorption(res.Path),
		Noise:                noise.Power(receiverSite(res.Path, req), f),
		Muf:                  res.Muf.MufInfo,
	}
	if req.RequiredSNR != 0 {
		p.RequiredSNR = req.RequiredSNR
	}
	return p
}

// pathAbsorption averages the absorption inputs over the control points.
func pathAbsorption(info PathInfo) signal.Absorption {
	var a signal.Absorption
	n := 0
	for _, r := range info.ControlPoints {
		cp := r.ControlPoint
		a.Index += signal.AbsorptionIndex(cp.ZenithAngle, cp.SSN)
		a.Gyro += cp.Field.Longitudinal()
		n++
	}
	if n > 0 {
		a.Index /= float64(n)
		a.Gyro /= float64(n)
	}
	return a
}

// receiverSite places the noise model at the receiver, screened by the
// F2 layer of the control point nearest to it.
func receiverSite(info PathInfo, req Request) noise.Site {
	s := noise.Site{
		Environment: req.Environment,
		Latitude:    info.Rx.Lat,
		LocalTime:   sun.LocalTimeFraction(info.Rx.Lon, info.Time),
	}
	if n := len(info.ControlPoints); n > 0 {
		s.FoF2 = info.ControlPoints[n-1].ControlPoint.FoF2.Median
	}
	return s
}

func gain(a antenna.Antenna, f, elevation float64) float64 {
	if a == nil {
		return 0
	}
	return a.Gain(f, elevation)
}

func (e *Engine) predictFrequency(res *Result, profiles []*ionosphere.Profile, req Request, f float64) Prediction {
	out := Prediction{Band: bands.Label(f)}
	if err := ValidateFrequency(f); err != nil {
		out.Prediction = signal.Prediction{Frequency: f}
		out.Err = err
		return out
	}

	base := e.baseParams(res, req, f)
	modes := e.findModes(res, profiles, f)

	best := signal.NoMode(f, base)
	for _, m := range modes {
		p := base
		p.Muf = res.Muf.Layers[m.Layer]
		p.TxGain = gain(req.TxAntenna, f, m.Elevation)
		p.RxGain = gain(req.RxAntenna, f, m.Elevation)
		if i := res.Muf.Controlling[m.Layer]; i >= 0 {
			if seg, ok := profiles[i].Segment(m.Layer); ok {
				p.CriticalFrequency = seg.CriticalFrequency
			}
		}
		pr := signal.Predict(m, f, p)
		out.Modes = append(out.Modes, pr)
		if signal.Better(pr, best) {
			best = pr
		}
	}
	out.Prediction = best
	return out
}

// findModes traces each feasible layer on the profile that controls its MUF
// and adds an over-the-MUF mode for layers that have none at f.
func (e *Engine) findModes(res *Result, profiles []*ionosphere.Profile, f float64) []raytrace.Mode {
	cm := res.Muf
	distance := res.Path.DistanceKm

	var modes []raytrace.Mode
	found := [ionosphere.NumLayers]bool{}
	traced := map[int][]raytrace.Reflectrix{}
	for _, l := range ionosphere.Layers {
		i := cm.Controlling[l]
		if i < 0 || !cm.Layers[l].Feasible {
			continue
		}
		rs, ok := traced[i]
		if !ok {
			rs = raytrace.ComputeReflectrix(profiles[i], f, e.cfg.MinElevation)
			traced[i] = rs
		}
		var mine []raytrace.Reflectrix
		for _, r := range rs {
			if r.Layer == l {
				mine = append(mine, r)
			}
		}
		for _, m := range raytrace.FindModes(mine, distance, e.cfg.MaxHops) {
			if m.Layer != l {
				continue
			}
			modes = append(modes, m)
			found[l] = true
		}
	}

	for _, l := range ionosphere.Layers {
		info := cm.Layers[l]
		if found[l] || !info.Feasible || f <= info.Muf {
			continue
		}
		modes = append(modes, overMufMode(info, distance, f))
	}
	return modes
}

// overMufMode places the layer's MUF geometry at f and marks it as beyond
// the MUF.
func overMufMode(info raytrace.MufInfo, distance, f float64) raytrace.Mode {
	hop := distance / float64(info.Hops)
	return raytrace.Mode{
		Layer:            info.Layer,
		Hops:             info.Hops,
		Elevation:        info.Elevation,
		VirtualHeight:    info.VirtualHeight,
		ReflectionHeight: info.VirtualHeight,
		GroundDistance:   hop,
		GroupPath:        raytrace.MirrorGroupPath(hop, info.VirtualHeight),
		Kind:             raytrace.Normal,
		OverMuf:          true,
		Frequency:        f,
	}
}
