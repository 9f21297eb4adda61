package wspr

import (
	"context"
	"errors"
	"math"
	"runtime"
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/KI7MT/ki7mt-hf-predict/internal/antenna"
	"github.com/KI7MT/ki7mt-hf-predict/internal/noise"
	"github.com/KI7MT/ki7mt-hf-predict/internal/predict"
)

// DecodableReliability is the predicted reliability at which a spot counts
// as expected.
const DecodableReliability = 0.5

var ErrNoPrediction = errors.New("engine returned no prediction")

// Predictor is the part of predict.Engine the validator needs.
type Predictor interface {
	Predict(ctx context.Context, req predict.Request) (*predict.Result, error)
}

// Comparison pairs one spot with its prediction. Err is set when the spot
// could not be predicted.
type Comparison struct {
	Spot        Spot
	Observed    float64 // dB-Hz
	Predicted   float64 // dB-Hz, best mode median
	Reliability float64
	HasMode     bool
	Err         error
}

// Residual returns predicted minus observed SNR.
func (c Comparison) Residual() float64 {
	return c.Predicted - c.Observed
}

// =============================================================================
// Validator
// =============================================================================

// Validator predicts batches of spots in parallel.
type Validator struct {
	predictor  Predictor
	numWorkers int

	SSN         float64
	Environment noise.Environment
	TxAntenna   antenna.Antenna
	RxAntenna   antenna.Antenna
}

// NewValidator creates a validator. numWorkers of 0 uses every CPU.
func NewValidator(p Predictor, ssn float64, numWorkers int) *Validator {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	return &Validator{
		predictor:   p,
		numWorkers:  numWorkers,
		SSN:         ssn,
		Environment: noise.QuietRural,
	}
}

// Request builds the engine request for one spot. The required SNR is the
// WSPR decode threshold so reliability reads as decode probability.
func (v *Validator) Request(s Spot) (predict.Request, error) {
	if err := s.Predictable(); err != nil {
		return predict.Request{}, err
	}
	tx, rx, _ := s.Endpoints()
	return predict.Request{
		Tx:          tx,
		Rx:          rx,
		Frequencies: []float64{s.FrequencyMHz()},
		Time:        s.Timestamp,
		SSN:         v.SSN,
		TxPower:     s.PowerWatts(),
		TxAntenna:   v.TxAntenna,
		RxAntenna:   v.RxAntenna,
		Environment: v.Environment,
		RequiredSNR: DecodeThreshold + BandwidthCorrection,
	}, nil
}

// Compare predicts a single spot.
func (v *Validator) Compare(ctx context.Context, s Spot) Comparison {
	c := Comparison{Spot: s, Observed: s.SNRDBHz()}
	req, err := v.Request(s)
	if err != nil {
		c.Err = err
		return c
	}
	res, err := v.predictor.Predict(ctx, req)
	if err != nil {
		c.Err = err
		return c
	}
	if len(res.Predictions) == 0 {
		c.Err = ErrNoPrediction
		return c
	}
	p := res.Predictions[0]
	if p.Err != nil {
		c.Err = p.Err
		return c
	}
	c.HasMode = p.HasMode
	c.Reliability = p.Reliability
	if p.HasMode {
		c.Predicted = p.SNR.Median
	}
	return c
}

// ProcessBatch compares every spot in batch. Small batches run
// sequentially; larger ones are split into one chunk per worker.
func (v *Validator) ProcessBatch(ctx context.Context, batch *Batch) []Comparison {
	if batch == nil || batch.Count == 0 {
		return nil
	}
	out := make([]Comparison, batch.Count)

	if batch.Count < 2*v.numWorkers || v.numWorkers <= 1 {
		v.processChunk(ctx, batch, out, 0, batch.Count)
		return out
	}

	chunkSize := (batch.Count + v.numWorkers - 1) / v.numWorkers

	var wg sync.WaitGroup
	for workerID := 0; workerID < v.numWorkers; workerID++ {
		start := workerID * chunkSize
		end := min(start+chunkSize, batch.Count)
		if start >= batch.Count {
			break
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			v.processChunk(ctx, batch, out, start, end)
		}(start, end)
	}
	wg.Wait()
	return out
}

func (v *Validator) processChunk(ctx context.Context, batch *Batch, out []Comparison, start, end int) {
	for i := start; i < end; i++ {
		if err := ctx.Err(); err != nil {
			out[i] = Comparison{Spot: batch.Spots[i], Err: err}
			continue
		}
		out[i] = v.Compare(ctx, batch.Spots[i])
	}
}

// =============================================================================
// Calibration
// =============================================================================

// Calibration accumulates comparisons.
type Calibration struct {
	Spots     int // predicted spots
	Skipped   int // spots that could not be predicted
	NoMode    int // predicted spots with no propagating mode
	Decodable int // predicted spots with reliability >= DecodableReliability

	residuals []float64
}

// Add folds one comparison in.
func (c *Calibration) Add(cmp Comparison) {
	if cmp.Err != nil {
		c.Skipped++
		return
	}
	c.Spots++
	if cmp.Reliability >= DecodableReliability {
		c.Decodable++
	}
	if !cmp.HasMode {
		c.NoMode++
		return
	}
	c.residuals = append(c.residuals, cmp.Residual())
}

// Summary is the calibration report.
type Summary struct {
	Spots             int
	Skipped           int
	NoMode            int
	MeanError         float64 // dB, predicted minus observed
	MedianError       float64
	StdDev            float64
	RMSError          float64
	DecodableFraction float64
}

// Summary computes the report. Error statistics cover spots with a mode.
func (c *Calibration) Summary() Summary {
	s := Summary{Spots: c.Spots, Skipped: c.Skipped, NoMode: c.NoMode}
	if c.Spots > 0 {
		s.DecodableFraction = float64(c.Decodable) / float64(c.Spots)
	}
	if len(c.residuals) == 0 {
		return s
	}
	r := append([]float64(nil), c.residuals...)
	sort.Float64s(r)
	s.MeanError = stat.Mean(r, nil)
	s.MedianError = stat.Quantile(0.5, stat.Empirical, r, nil)
	if len(r) > 1 {
		s.StdDev = stat.StdDev(r, nil)
	}
	var sq float64
	for _, x := range r {
		sq += x * x
	}
	s.RMSError = math.Sqrt(sq / float64(len(r)))
	return s
}
