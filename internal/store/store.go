// Package store writes flat prediction records to ClickHouse over the native
// protocol with columnar batches.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/ch-go"
	"github.com/ClickHouse/ch-go/proto"
	"github.com/google/uuid"

	"github.com/KI7MT/ki7mt-hf-predict/internal/predict"
)

// DefaultBatchLimit flushes every 50k rows.
const DefaultBatchLimit = 50000

// =============================================================================
// Columnar batch
// =============================================================================

// PredictionBatch holds columnar data for native ClickHouse insert.
// Matches CreateTableSQL.
type PredictionBatch struct {
	RunID       *proto.ColUUID
	Time        *proto.ColDateTime
	Month       *proto.ColUInt8
	Hour        *proto.ColUInt8
	SSN         *proto.ColFloat32
	TxGrid      *proto.ColStr
	RxGrid      *proto.ColStr
	TxLat       *proto.ColFloat32
	TxLon       *proto.ColFloat32
	RxLat       *proto.ColFloat32
	RxLon       *proto.ColFloat32
	DistanceKm  *proto.ColFloat32
	Azimuth     *proto.ColFloat32
	Frequency   *proto.ColFloat64
	Band        *proto.ColStr
	Muf         *proto.ColFloat32
	Fot         *proto.ColFloat32
	Hpf         *proto.ColFloat32
	MufLayer    *proto.ColStr
	HasMode     *proto.ColBool
	Layer       *proto.ColStr
	Hops        *proto.ColUInt8
	Elevation   *proto.ColFloat32
	RayKind     *proto.ColStr
	OverMuf     *proto.ColBool
	Loss        *proto.ColFloat32
	Signal      *proto.ColFloat32
	Noise       *proto.ColFloat32
	SNR         *proto.ColFloat32
	Reliability *proto.ColFloat32
	ServiceProb *proto.ColFloat32
}

func NewPredictionBatch() *PredictionBatch {
	return &PredictionBatch{
		RunID:       new(proto.ColUUID),
		Time:        new(proto.ColDateTime),
		Month:       new(proto.ColUInt8),
		Hour:        new(proto.ColUInt8),
		SSN:         new(proto.ColFloat32),
		TxGrid:      new(proto.ColStr),
		RxGrid:      new(proto.ColStr),
		TxLat:       new(proto.ColFloat32),
		TxLon:       new(proto.ColFloat32),
		RxLat:       new(proto.ColFloat32),
		RxLon:       new(proto.ColFloat32),
		DistanceKm:  new(proto.ColFloat32),
		Azimuth:     new(proto.ColFloat32),
		Frequency:   new(proto.ColFloat64),
		Band:        new(proto.ColStr),
		Muf:         new(proto.ColFloat32),
		Fot:         new(proto.ColFloat32),
		Hpf:         new(proto.ColFloat32),
		MufLayer:    new(proto.ColStr),
		HasMode:     new(proto.ColBool),
		Layer:       new(proto.ColStr),
		Hops:        new(proto.ColUInt8),
		Elevation:   new(proto.ColFloat32),
		RayKind:     new(proto.ColStr),
		OverMuf:     new(proto.ColBool),
		Loss:        new(proto.ColFloat32),
		Signal:      new(proto.ColFloat32),
		Noise:       new(proto.ColFloat32),
		SNR:         new(proto.ColFloat32),
		Reliability: new(proto.ColFloat32),
		ServiceProb: new(proto.ColFloat32),
	}
}

func (b *PredictionBatch) Reset() {
	for _, c := range b.Input() {
		c.Data.(interface{ Reset() }).Reset()
	}
}

func (b *PredictionBatch) Len() int {
	return b.Time.Rows()
}

func (b *PredictionBatch) Input() proto.Input {
	return proto.Input{
		{Name: "run_id", Data: b.RunID},
		{Name: "time", Data: b.Time},
		{Name: "month", Data: b.Month},
		{Name: "hour", Data: b.Hour},
		{Name: "ssn", Data: b.SSN},
		{Name: "tx_grid", Data: b.TxGrid},
		{Name: "rx_grid", Data: b.RxGrid},
		{Name: "tx_lat", Data: b.TxLat},
		{Name: "tx_lon", Data: b.TxLon},
		{Name: "rx_lat", Data: b.RxLat},
		{Name: "rx_lon", Data: b.RxLon},
		{Name: "distance_km", Data: b.DistanceKm},
		{Name: "azimuth", Data: b.Azimuth},
		{Name: "frequency", Data: b.Frequency},
		{Name: "band", Data: b.Band},
		{Name: "muf", Data: b.Muf},
		{Name: "fot", Data: b.Fot},
		{Name: "hpf", Data: b.Hpf},
		{Name: "muf_layer", Data: b.MufLayer},
		{Name: "has_mode", Data: b.HasMode},
		{Name: "layer", Data: b.Layer},
		{Name: "hops", Data: b.Hops},
		{Name: "elevation", Data: b.Elevation},
		{Name: "ray_kind", Data: b.RayKind},
		{Name: "over_muf", Data: b.OverMuf},
		{Name: "loss_db", Data: b.Loss},
		{Name: "signal_dbw", Data: b.Signal},
		{Name: "noise_dbw_hz", Data: b.Noise},
		{Name: "snr_db_hz", Data: b.SNR},
		{Name: "reliability", Data: b.Reliability},
		{Name: "service_probability", Data: b.ServiceProb},
	}
}

// AddRecord appends one record. Rejected frequencies carry no prediction
// and are not stored.
func (b *PredictionBatch) AddRecord(run uuid.UUID, r predict.FlatRecord) bool {
	if r.Error != "" {
		return false
	}
	b.RunID.Append(run)
	b.Time.Append(time.Unix(r.Timestamp, 0).UTC())
	b.Month.Append(uint8(r.Month))
	b.Hour.Append(uint8(r.Hour))
	b.SSN.Append(r.SSN)
	b.TxGrid.Append(r.TxGrid)
	b.RxGrid.Append(r.RxGrid)
	b.TxLat.Append(r.TxLat)
	b.TxLon.Append(r.TxLon)
	b.RxLat.Append(r.RxLat)
	b.RxLon.Append(r.RxLon)
	b.DistanceKm.Append(r.DistanceKm)
	b.Azimuth.Append(r.Azimuth)
	b.Frequency.Append(r.Frequency)
	b.Band.Append(r.Band)
	b.Muf.Append(r.Muf)
	b.Fot.Append(r.Fot)
	b.Hpf.Append(r.Hpf)
	b.MufLayer.Append(r.MufLayer)
	b.HasMode.Append(r.HasMode)
	b.Layer.Append(r.Layer)
	b.Hops.Append(uint8(r.Hops))
	b.Elevation.Append(r.Elevation)
	b.RayKind.Append(r.RayKind)
	b.OverMuf.Append(r.OverMuf)
	b.Loss.Append(r.Loss)
	b.Signal.Append(r.Signal)
	b.Noise.Append(r.Noise)
	b.SNR.Append(r.SNR)
	b.Reliability.Append(r.Reliability)
	b.ServiceProb.Append(r.ServiceProb)
	return true
}

// columnList returns the comma-separated column names in Input order.
func (b *PredictionBatch) columnList() string {
	in := b.Input()
	names := make([]string, len(in))
	for i, c := range in {
		names[i] = c.Name
	}
	return strings.Join(names, ", ")
}

// InsertQuery returns the INSERT statement for table.
func (b *PredictionBatch) InsertQuery(table string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES", table, b.columnList())
}

// =============================================================================
// Schema
// =============================================================================

// CreateTableSQL returns the DDL for the prediction table.
func CreateTableSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    run_id UUID,
    time DateTime,
    month UInt8,
    hour UInt8,
    ssn Float32,
    tx_grid String,
    rx_grid String,
    tx_lat Float32,
    tx_lon Float32,
    rx_lat Float32,
    rx_lon Float32,
    distance_km Float32,
    azimuth Float32,
    frequency Float64,
    band String,
    muf Float32,
    fot Float32,
    hpf Float32,
    muf_layer String,
    has_mode Bool,
    layer String,
    hops UInt8,
    elevation Float32,
    ray_kind String,
    over_muf Bool,
    loss_db Float32,
    signal_dbw Float32,
    noise_dbw_hz Float32,
    snr_db_hz Float32,
    reliability Float32,
    service_probability Float32
) ENGINE = MergeTree
PARTITION BY toYYYYMM(time)
ORDER BY (tx_grid, rx_grid, frequency, time)`, table)
}

// =============================================================================
// Writer
// =============================================================================

// doer is the subset of *ch.Client the writer needs.
type doer interface {
	Do(ctx context.Context, q ch.Query) error
}

// Writer buffers records and flushes them in batches of Limit rows.
type Writer struct {
	conn     doer
	table    string
	run      uuid.UUID
	batch    *PredictionBatch
	Limit    int
	inserted int
}

// Dial connects to ClickHouse the way the ingest tools do.
func Dial(ctx context.Context, addr, database, user, password string) (*ch.Client, error) {
	conn, err := ch.Dial(ctx, ch.Options{
		Address:     addr,
		Database:    database,
		User:        user,
		Password:    password,
		Compression: ch.CompressionLZ4,
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse dial %s: %w", addr, err)
	}
	return conn, nil
}

// NewWriter returns a writer tagging every row with a fresh run ID.
func NewWriter(conn *ch.Client, table string) *Writer {
	return newWriter(conn, table)
}

func newWriter(conn doer, table string) *Writer {
	return &Writer{
		conn:  conn,
		table: table,
		run:   uuid.New(),
		batch: NewPredictionBatch(),
		Limit: DefaultBatchLimit,
	}
}

// RunID returns the identifier written with every row.
func (w *Writer) RunID() uuid.UUID { return w.run }

// Inserted returns the number of rows flushed so far.
func (w *Writer) Inserted() int { return w.inserted }

// CreateTable issues CreateTableSQL for the writer's table.
func (w *Writer) CreateTable(ctx context.Context) error {
	if err := w.conn.Do(ctx, ch.Query{Body: CreateTableSQL(w.table)}); err != nil {
		return fmt.Errorf("create table %s: %w", w.table, err)
	}
	return nil
}

// Write buffers records, flushing whenever the batch reaches Limit.
func (w *Writer) Write(ctx context.Context, recs ...predict.FlatRecord) error {
	for _, r := range recs {
		w.batch.AddRecord(w.run, r)
		if w.batch.Len() >= w.Limit {
			if err := w.Flush(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// Flush inserts any buffered rows.
func (w *Writer) Flush(ctx context.Context) error {
	n := w.batch.Len()
	if n == 0 {
		return nil
	}
	err := w.conn.Do(ctx, ch.Query{
		Body:  w.batch.InsertQuery(w.table),
		Input: w.batch.Input(),
	})
	if err != nil {
		return fmt.Errorf("insert %d rows into %s: %w", n, w.table, err)
	}
	w.inserted += n
	w.batch.Reset()
	return nil
}
