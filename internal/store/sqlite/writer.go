package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"barreplay/internal/indicator"
	"barreplay/internal/model"
)

const (
	defaultBatchSize  = 500
	defaultFlushDelay = 200 * time.Millisecond
	keepSnapshots     = 10
)

// dsn adds the pragmas both sides use: WAL so readers never block the
// single writer.
func dsn(path string) string {
	return path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
}

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath    string // path to SQLite database file, e.g. "data/candles.db"
	BatchSize int    // rows per transaction, default 500
}

// Writer is a single-connection SQLite writer with transaction batching.
type Writer struct {
	db        *sql.DB
	batchSize int
}

var _ model.CandleSink = (*Writer)(nil)

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New opens (creating if needed) the database at cfg.DBPath with WAL mode
// and the candle schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", dsn(cfg.DBPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}

	slog.Info("sqlite writer opened", "path", cfg.DBPath)
	return &Writer{db: db, batchSize: cfg.BatchSize}, nil
}

// Prices and volumes are stored as decimal text so they round-trip exactly.
func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			symbol  TEXT    NOT NULL,
			tf      INTEGER NOT NULL,
			ts      INTEGER NOT NULL,
			open    TEXT    NOT NULL,
			high    TEXT    NOT NULL,
			low     TEXT    NOT NULL,
			close   TEXT    NOT NULL,
			volume  TEXT    NOT NULL,
			PRIMARY KEY (symbol, tf, ts)
		);

		CREATE TABLE IF NOT EXISTS indicator_snapshots (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol     TEXT    NOT NULL,
			tf         INTEGER NOT NULL,
			data       TEXT    NOT NULL,
			created_at INTEGER NOT NULL
		);
	`)
	return err
}

// WriteCandles upserts candles keyed by (symbol, tf, open time), committing
// every batchSize rows.
func (w *Writer) WriteCandles(ctx context.Context, symbol string, tf model.Timeframe, candles []model.Candle) error {
	start := time.Now()
	for len(candles) > 0 {
		n := min(len(candles), w.batchSize)
		if err := w.insertBatch(ctx, symbol, tf, candles[:n]); err != nil {
			return fmt.Errorf("sqlite write %s %s: %w", symbol, tf, err)
		}
		candles = candles[n:]
	}
	slog.Debug("sqlite committed candles", "symbol", symbol, "tf", tf.Label(), "took", time.Since(start))
	return nil
}

// insertBatch inserts a batch of candles in a single transaction.
func (w *Writer) insertBatch(ctx context.Context, symbol string, tf model.Timeframe, candles []model.Candle) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles (symbol, tf, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		_, err := stmt.ExecContext(ctx, symbol, int(tf), c.OpenTime.Unix(),
			c.Open.String(), c.High.String(), c.Low.String(), c.Close.String(), c.Volume.String())
		if err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Run drains batches from in and writes each, flushing whatever has
// accumulated every flush delay. Blocks until ctx is cancelled or in is
// closed; write errors are logged.
func (w *Writer) Run(ctx context.Context, symbol string, tf model.Timeframe, in <-chan model.Candle) {
	batch := make([]model.Candle, 0, w.batchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// a cancelled ctx must not abort the final flush
		if err := w.WriteCandles(context.WithoutCancel(ctx), symbol, tf, batch); err != nil {
			slog.Error("sqlite batch insert failed", "error", err, "rows", len(batch))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case c, ok := <-in:
			if !ok {
				flush()
				return
			}
			batch = append(batch, c)
			if len(batch) >= w.batchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}
		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// LastTimestamp returns the open time of the newest stored candle, or the
// zero time when none exist.
func (w *Writer) LastTimestamp(ctx context.Context, symbol string, tf model.Timeframe) (time.Time, error) {
	var ts sql.NullInt64
	err := w.db.QueryRowContext(ctx,
		`SELECT MAX(ts) FROM candles WHERE symbol = ? AND tf = ?`,
		symbol, int(tf),
	).Scan(&ts)
	if err != nil {
		return time.Time{}, err
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return time.Unix(ts.Int64, 0).UTC(), nil
}

// SaveSnapshot stores an indicator snapshot, keeping the newest few per
// symbol and timeframe.
func (w *Writer) SaveSnapshot(ctx context.Context, snap indicator.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = w.db.ExecContext(ctx,
		`INSERT INTO indicator_snapshots (symbol, tf, data, created_at) VALUES (?, ?, ?, ?)`,
		snap.Symbol, int(snap.TF), string(data), time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("sqlite insert snapshot: %w", err)
	}

	_, err = w.db.ExecContext(ctx, `
		DELETE FROM indicator_snapshots
		WHERE symbol = ? AND tf = ? AND id NOT IN (
			SELECT id FROM indicator_snapshots WHERE symbol = ? AND tf = ?
			ORDER BY id DESC LIMIT ?
		)`, snap.Symbol, int(snap.TF), snap.Symbol, int(snap.TF), keepSnapshots)
	if err != nil {
		slog.Warn("sqlite prune snapshots failed", "error", err)
	}
	return nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
