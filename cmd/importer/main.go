// cmd/importer loads historical candles from CSV into the SQLite candle
// store read by replayd and cmd/replay.
//
// The CSV has the columns t,o,h,l,c,v. t is an RFC3339 time or a unix
// timestamp in seconds or milliseconds. A header row is skipped.
//
// Usage:
//
//	go run ./cmd/importer --symbol=NIFTY --tf=1m --file=nifty_1m.csv
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"barreplay/internal/logger"
	"barreplay/internal/model"
	"barreplay/internal/session"
	sqlitestore "barreplay/internal/store/sqlite"
)

func main() {
	symbol := flag.String("symbol", "", "Symbol the candles belong to")
	tfStr := flag.String("tf", "1m", "Timeframe of the candles")
	file := flag.String("file", "", "CSV file to import (- for stdin)")
	db := flag.String("db", "data/candles.db", "Path to SQLite database")
	batch := flag.Int("batch", 500, "Rows per transaction")
	flag.Parse()

	logger.Init("importer", slog.LevelInfo)

	tf, err := model.ParseTimeframe(*tfStr)
	if err != nil || *symbol == "" || *file == "" {
		fmt.Fprintln(os.Stderr, "importer: --symbol, --file and a valid --tf are required")
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *db, *symbol, tf, *file, *batch); err != nil {
		slog.Error("import failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, dbPath, symbol string, tf model.Timeframe, file string, batch int) error {
	in := io.Reader(os.Stdin)
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	writer, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: dbPath, BatchSize: batch})
	if err != nil {
		return err
	}
	defer writer.Close()

	before, err := writer.LastTimestamp(ctx, symbol, tf)
	if err != nil {
		return err
	}

	ch := make(chan model.Candle, batch)
	done := make(chan struct{})
	go func() {
		writer.Run(ctx, symbol, tf, ch)
		close(done)
	}()

	start := time.Now()
	n, readErr := readCandles(ctx, in, tf, ch)
	close(ch)
	<-done
	if readErr != nil {
		return fmt.Errorf("after %d rows: %w", n, readErr)
	}

	last, err := writer.LastTimestamp(ctx, symbol, tf)
	if err != nil {
		return err
	}
	slog.Info("import complete",
		"symbol", symbol, "tf", tf.Label(), "rows", n,
		"previous_last", before, "last", last, "took", time.Since(start))
	return nil
}

// readCandles parses CSV rows from r and sends them to out. It returns the
// number of candles sent.
func readCandles(ctx context.Context, r io.Reader, tf model.Timeframe, out chan<- model.Candle) (int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 6
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	n := 0
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if line == 1 && isHeader(rec[0]) {
			continue
		}
		ts, err := parseTimestamp(rec[0])
		if err != nil {
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		if tf < model.TF1d && !(session.Aligned{TF: tf}).BucketStart(ts).Equal(ts) {
			return n, fmt.Errorf("line %d: %s is not aligned to %s", line, ts.Format(time.RFC3339), tf)
		}
		c, err := model.CandleFromStrings(ts, rec[1], rec[2], rec[3], rec[4], rec[5])
		if err != nil {
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		select {
		case out <- c:
			n++
		case <-ctx.Done():
			return n, ctx.Err()
		}
	}
}

func isHeader(field string) bool {
	_, err := parseTimestamp(field)
	return err != nil && strings.ContainsAny(strings.ToLower(field), "abcdefghijklmnopqrstuvwxyz")
}

// parseTimestamp accepts RFC3339 or unix seconds or milliseconds.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q: want RFC3339 or unix seconds/milliseconds", s)
	}
	return t.UTC(), nil
}
