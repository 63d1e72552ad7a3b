package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"barreplay/internal/indicator"
	"barreplay/internal/model"
)

// Reader provides read-only access to the candle store for replay input.
type Reader struct {
	db *sql.DB
}

var _ model.CandleSource = (*Reader)(nil)

// NewReader opens a SQLite connection for reading. The schema is created if
// missing so a reader on a fresh file sees empty results rather than errors.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	slog.Info("sqlite reader opened", "path", dbPath)
	return &Reader{db: db}, nil
}

// ReadCandles returns candles with from <= open time <= to, oldest first.
// A zero to means no upper bound.
func (r *Reader) ReadCandles(ctx context.Context, symbol string, tf model.Timeframe, from, to time.Time) ([]model.Candle, error) {
	upper := int64(math.MaxInt64)
	if !to.IsZero() {
		upper = to.Unix()
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND tf = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC
	`, symbol, int(tf), from.Unix(), upper)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		var (
			ts            int64
			o, h, l, c, v string
		)
		if err := rows.Scan(&ts, &o, &h, &l, &c, &v); err != nil {
			return nil, fmt.Errorf("sqlite scan candles: %w", err)
		}
		candle, err := model.CandleFromStrings(time.Unix(ts, 0).UTC(), o, h, l, c, v)
		if err != nil {
			return nil, fmt.Errorf("sqlite candle at %d: %w", ts, err)
		}
		candles = append(candles, candle)
	}
	return candles, rows.Err()
}

// SeriesInfo summarises one stored (symbol, timeframe) series.
type SeriesInfo struct {
	Symbol    string          `json:"symbol"`
	Timeframe model.Timeframe `json:"tf"`
	Count     int             `json:"count"`
	First     time.Time       `json:"first"`
	Last      time.Time       `json:"last"`
}

// ListSeries returns every stored series ordered by symbol then timeframe.
func (r *Reader) ListSeries(ctx context.Context) ([]SeriesInfo, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT symbol, tf, COUNT(*), MIN(ts), MAX(ts)
		FROM candles
		GROUP BY symbol, tf
		ORDER BY symbol, tf
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite list series: %w", err)
	}
	defer rows.Close()

	var out []SeriesInfo
	for rows.Next() {
		var (
			info        SeriesInfo
			tf          int
			first, last int64
		)
		if err := rows.Scan(&info.Symbol, &tf, &info.Count, &first, &last); err != nil {
			return nil, fmt.Errorf("sqlite scan series: %w", err)
		}
		info.Timeframe = model.Timeframe(tf)
		info.First = time.Unix(first, 0).UTC()
		info.Last = time.Unix(last, 0).UTC()
		out = append(out, info)
	}
	return out, rows.Err()
}

// ReadLatestSnapshot loads the newest indicator snapshot for a series.
// It returns ok=false when none was saved.
func (r *Reader) ReadLatestSnapshot(ctx context.Context, symbol string, tf model.Timeframe) (indicator.Snapshot, bool, error) {
	var data string
	err := r.db.QueryRowContext(ctx, `
		SELECT data FROM indicator_snapshots
		WHERE symbol = ? AND tf = ?
		ORDER BY id DESC
		LIMIT 1
	`, symbol, int(tf)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return indicator.Snapshot{}, false, nil
	}
	if err != nil {
		return indicator.Snapshot{}, false, fmt.Errorf("sqlite read snapshot: %w", err)
	}

	var snap indicator.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return indicator.Snapshot{}, false, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap, true, nil
}

// DB returns the underlying sql.DB for health checks.
func (r *Reader) DB() *sql.DB { return r.db }

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
