package solar

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// DefaultTable holds the raw indices written by the ingest tools.
const DefaultTable = "solar.indices_raw"

// selecter is the subset of clickhouse.Conn the store needs.
type selecter interface {
	Select(ctx context.Context, dest any, query string, args ...any) error
}

// monthRow is scanned by Select; column names match the query aliases.
type monthRow struct {
	Month time.Time `ch:"month"`
	SSN   float64   `ch:"ssn"`
	SFI   float64   `ch:"sfi"`
}

// IndexStore reads monthly solar indices from ClickHouse.
type IndexStore struct {
	conn  selecter
	table string
}

// NewIndexStore wraps an open connection. An empty table uses DefaultTable.
func NewIndexStore(conn clickhouse.Conn, table string) *IndexStore {
	return newIndexStore(conn, table)
}

func newIndexStore(conn selecter, table string) *IndexStore {
	if table == "" {
		table = DefaultTable
	}
	return &IndexStore{conn: conn, table: table}
}

// Open dials ClickHouse the way the ingest tools do.
func Open(addr, database, user, password string) (clickhouse.Conn, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: user,
			Password: password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	return conn, nil
}

// Monthly returns the monthly mean SSN and SFI for [from, to], ascending.
func (s *IndexStore) Monthly(ctx context.Context, from, to time.Time) ([]Monthly, error) {
	query := fmt.Sprintf(`SELECT
	toDateTime(toStartOfMonth(date)) AS month,
	toFloat64(avgIf(ssn, ssn > 0)) AS ssn,
	toFloat64(avgIf(observed_flux, observed_flux > 0)) AS sfi
FROM %s
WHERE date >= ? AND date <= ?
GROUP BY month
ORDER BY month`, s.table)

	var rows []monthRow
	if err := s.conn.Select(ctx, &rows, query, from.UTC(), to.UTC()); err != nil {
		return nil, fmt.Errorf("select monthly indices: %w", err)
	}
	out := make([]Monthly, 0, len(rows))
	for _, r := range rows {
		out = append(out, Monthly{Month: r.Month.UTC(), SSN: r.SSN, SFI: r.SFI})
	}
	return out, nil
}

// SSNFor returns the SSN to use for the month containing t: the smoothed
// sunspot number when a full window is stored, the monthly mean otherwise,
// and the flux-derived value when the month has no sunspot count.
func (s *IndexStore) SSNFor(ctx context.Context, t time.Time) (float64, error) {
	t = t.UTC()
	month := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	months, err := s.Monthly(ctx, month.AddDate(0, -6, 0), month.AddDate(0, 7, -1))
	if err != nil {
		return 0, err
	}
	for i, m := range months {
		if !m.Month.Equal(month) {
			continue
		}
		if m.SSN <= 0 && m.SFI > 0 {
			return SSNFromFlux(m.SFI), nil
		}
		return Effective(months, i), nil
	}
	return 0, fmt.Errorf("%w for %s", ErrNoData, month.Format("2006-01"))
}
