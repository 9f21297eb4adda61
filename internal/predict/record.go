package predict

import (
	"math"

	"github.com/KI7MT/ki7mt-hf-predict/internal/geo"
)

// FlatRecord is one prediction flattened to a row: one per frequency, hour
// and receive region. The same struct feeds CSV, Parquet and ClickHouse.
type FlatRecord struct {
	Timestamp   int64   `csv:"timestamp" parquet:"timestamp"` // Unix seconds UTC
	Month       int32   `csv:"month" parquet:"month"`
	Hour        int32   `csv:"hour" parquet:"hour"`
	SSN         float32 `csv:"ssn" parquet:"ssn"`
	TxGrid      string  `csv:"tx_grid" parquet:"tx_grid"`
	RxGrid      string  `csv:"rx_grid" parquet:"rx_grid"`
	TxLat       float32 `csv:"tx_lat" parquet:"tx_lat"`
	TxLon       float32 `csv:"tx_lon" parquet:"tx_lon"`
	RxLat       float32 `csv:"rx_lat" parquet:"rx_lat"`
	RxLon       float32 `csv:"rx_lon" parquet:"rx_lon"`
	DistanceKm  float32 `csv:"distance_km" parquet:"distance_km"`
	Azimuth     float32 `csv:"azimuth" parquet:"azimuth"`
	Frequency   float64 `csv:"frequency" parquet:"frequency"` // MHz
	Band        string  `csv:"band" parquet:"band"`
	Muf         float32 `csv:"muf" parquet:"muf"`
	Fot         float32 `csv:"fot" parquet:"fot"`
	Hpf         float32 `csv:"hpf" parquet:"hpf"`
	MufLayer    string  `csv:"muf_layer" parquet:"muf_layer"`
	HasMode     bool    `csv:"has_mode" parquet:"has_mode"`
	Layer       string  `csv:"layer" parquet:"layer"`
	Hops        int32   `csv:"hops" parquet:"hops"`
	Elevation   float32 `csv:"elevation" parquet:"elevation"` // degrees
	RayKind     string  `csv:"ray_kind" parquet:"ray_kind"`
	OverMuf     bool    `csv:"over_muf" parquet:"over_muf"`
	Loss        float32 `csv:"loss_db" parquet:"loss_db"`
	Signal      float32 `csv:"signal_dbw" parquet:"signal_dbw"`
	Noise       float32 `csv:"noise_dbw_hz" parquet:"noise_dbw_hz"`
	SNR         float32 `csv:"snr_db_hz" parquet:"snr_db_hz"`
	RequiredSNR float32 `csv:"required_snr" parquet:"required_snr"`
	Reliability float32 `csv:"reliability" parquet:"reliability"`
	ServiceProb float32 `csv:"service_probability" parquet:"service_probability"`
	Error       string  `csv:"error,omitempty" parquet:"error"`
}

// finite maps the no-mode sentinels to a value every sink accepts.
func finite(v float64) float32 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0
	}
	return float32(v)
}

// Records flattens r into one row per frequency.
func (r *Result) Records() []FlatRecord {
	info := r.Path
	base := FlatRecord{
		Timestamp:  info.Time.Unix(),
		Month:      int32(info.Month),
		Hour:       int32(info.Time.Hour()),
		SSN:        float32(info.SSN),
		TxGrid:     geo.Grid(info.Tx),
		RxGrid:     geo.Grid(info.Rx),
		TxLat:      float32(info.Tx.Lat),
		TxLon:      float32(info.Tx.Lon),
		RxLat:      float32(info.Rx.Lat),
		RxLon:      float32(info.Rx.Lon),
		DistanceKm: float32(info.DistanceKm),
		Azimuth:    float32(info.Azimuth),
	}
	if r.Muf.Feasible {
		base.Muf = float32(r.Muf.Muf)
		base.Fot = float32(r.Muf.Fot)
		base.Hpf = float32(r.Muf.Hpf)
		base.MufLayer = r.Muf.Layer.String()
	}

	out := make([]FlatRecord, 0, len(r.Predictions))
	for _, p := range r.Predictions {
		rec := base
		rec.Frequency = p.Frequency
		rec.Band = p.Band
		if p.Err != nil {
			rec.Error = p.Err.Error()
			out = append(out, rec)
			continue
		}
		rec.HasMode = p.HasMode
		rec.RequiredSNR = float32(p.RequiredSNR)
		rec.Noise = finite(p.Noise.Median)
		rec.Reliability = float32(p.Reliability)
		rec.ServiceProb = float32(p.ServiceProbability)
		if p.HasMode {
			rec.Layer = p.Mode.Layer.String()
			rec.Hops = int32(p.Mode.Hops)
			rec.Elevation = float32(p.Mode.ElevationDeg())
			rec.RayKind = p.Mode.Kind.String()
			rec.OverMuf = p.Mode.OverMuf
			rec.Loss = float32(p.Loss.Total)
			rec.Signal = finite(p.Signal.Median)
			rec.SNR = finite(p.SNR.Median)
		}
		out = append(out, rec)
	}
	return out
}

// DayRecords flattens a day of hourly results.
func DayRecords(results []*Result) []FlatRecord {
	var out []FlatRecord
	for _, r := range results {
		out = append(out, r.Records()...)
	}
	return out
}
