// cmd/replay replays historical candles from SQLite without a server: it
// advances the bar replay, prints indicator values, and optionally exports
// the replayed series and saves indicator snapshots.
//
// Usage:
//
//	go run ./cmd/replay --symbol=NIFTY --tf=1m --initial=200 --bars=375 --mode=ohlc \
//	    --resample=5m,15m --indicators=EMA:9,RSI:14,VWAP --export=out --format=parquet
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"barreplay/config"
	"barreplay/internal/export"
	"barreplay/internal/indicator"
	"barreplay/internal/logger"
	"barreplay/internal/model"
	"barreplay/internal/replay"
	"barreplay/internal/service"
	sqlitestore "barreplay/internal/store/sqlite"
)

func main() {
	cfgPath := flag.String("config", "", "Optional YAML config file")
	symbol := flag.String("symbol", "", "Symbol to replay")
	tfStr := flag.String("tf", "", "Base timeframe, e.g. 1m")
	from := flag.String("from", "", "Start date or RFC3339 time")
	to := flag.String("to", "", "End date or RFC3339 time")
	initial := flag.Int("initial", -1, "Bars visible before the first advance")
	mode := flag.String("mode", "", "fullbar or ohlc")
	resample := flag.String("resample", "", "Comma-separated higher timeframes")
	indSpecs := flag.String("indicators", "", "Indicator specs TYPE[:PERIOD],... (default EMA:9,EMA:21,RSI:14,VWAP)")
	bars := flag.Int("bars", 0, "Advances to run (0 = until the input is exhausted)")
	every := flag.Int("print-every", 50, "Print indicators every N advances (0 = never)")
	interval := flag.Duration("interval", 0, "Wall-clock gap between advances")
	exportDir := flag.String("export", "", "Directory to export the replayed series into")
	format := flag.String("format", "parquet", "Export format: parquet or json")
	save := flag.Bool("save-snapshots", false, "Save final indicator snapshots to SQLite")
	resume := flag.Bool("resume", false, "Start after the newest saved snapshot")
	db := flag.String("db", "", "Path to SQLite database")
	flag.Parse()

	var flagErr error
	cfg, err := config.LoadWith(*cfgPath, func(c *config.Config) {
		c.Service = "replay"
		setString(&c.Replay.Symbol, *symbol)
		setString(&c.Replay.Mode, *mode)
		setString(&c.SQLitePath, *db)
		if *initial >= 0 {
			c.Replay.InitialBars = *initial
		}
		if *resume {
			c.Replay.Resume = true
		}
		if *tfStr != "" {
			tf, err := model.ParseTimeframe(*tfStr)
			flagErr = errors.Join(flagErr, err)
			c.Replay.Timeframe = tf
		}
		if *from != "" {
			t, err := config.ParseTime(*from)
			flagErr = errors.Join(flagErr, err)
			c.Replay.From = t
		}
		if *to != "" {
			t, err := config.ParseTime(*to)
			flagErr = errors.Join(flagErr, err)
			c.Replay.To = t
		}
		if *resample != "" {
			tfs, err := config.ParseTimeframes(*resample)
			flagErr = errors.Join(flagErr, err)
			c.Replay.Resample = tfs
		}
		if *indSpecs != "" || len(c.Indicators) == 0 {
			base := c.Replay.Timeframe
			if base == 0 {
				base = model.TF1m
			}
			specs, err := parseIndicatorSpecs(*indSpecs)
			flagErr = errors.Join(flagErr, err)
			c.Indicators = nil
			for _, tf := range append([]model.Timeframe{base}, c.Replay.Resample...) {
				c.Indicators = append(c.Indicators, indicator.TFConfig{TF: tf, Indicators: specs})
			}
		}
	})
	if err == nil {
		err = flagErr
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(2)
	}
	level, _ := logger.ParseLevel(cfg.LogLevel)
	logger.Init(cfg.Service, level)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, options{
		bars:      *bars,
		every:     *every,
		interval:  *interval,
		exportDir: *exportDir,
		format:    *format,
		save:      *save,
	}); err != nil {
		slog.Error("replay failed", "error", err)
		os.Exit(1)
	}
}

type options struct {
	bars      int
	every     int
	interval  time.Duration
	exportDir string
	format    string
	save      bool
}

func run(ctx context.Context, cfg *config.Config, opt options) error {
	rc := cfg.Replay
	saver := export.NewSaver(opt.format)
	if opt.exportDir != "" && saver == nil {
		return fmt.Errorf("unsupported export format %q", opt.format)
	}

	reader, err := sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer reader.Close()

	candles, err := service.LoadCandles(ctx, reader, rc.Symbol, rc.Timeframe, rc.From, rc.To, nil)
	if err != nil {
		return err
	}
	initial := rc.InitialBars
	if rc.Resume {
		if initial, err = service.ResumeIndex(ctx, reader, rc.Symbol, rc.Timeframe, candles, initial); err != nil {
			return err
		}
	}
	m, err := replay.ParseMode(rc.Mode)
	if err != nil {
		return err
	}
	cal, err := service.CalendarFor(rc.Calendar)
	if err != nil {
		return err
	}
	engine, err := indicator.NewEngine(cfg.Indicators, cal)
	if err != nil {
		return err
	}
	ctrl, err := service.NewController(candles, rc.Timeframe, engine, service.Options{
		Symbol:      rc.Symbol,
		Mode:        m,
		InitialBars: initial,
		MaxCandles:  rc.MaxCandles,
		Calendar:    cal,
		Resample:    rc.Resample,
	}, nil)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	advances, printed := 0, 0
	ctrl.OnSnapshot = func(snap indicator.Snapshot) {
		if opt.every <= 0 || advances%opt.every != 0 {
			return
		}
		printed++
		fmt.Printf("  [%s] %-4s %s\n", snap.TS.Format("2006-01-02 15:04"), snap.TF.Label(), formatValues(snap))
	}

	player := replay.NewPlayer(func() error {
		if opt.bars > 0 && advances >= opt.bars {
			return replay.ErrInputExhausted
		}
		advances++
		return ctrl.Step()
	}, opt.interval)
	if err := player.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	st := ctrl.State()

	if opt.exportDir != "" {
		if err := os.MkdirAll(opt.exportDir, 0o755); err != nil {
			return err
		}
		for _, tf := range st.Timeframes {
			rows, err := ctrl.Rows(tf)
			if err != nil {
				return err
			}
			path := filepath.Join(opt.exportDir, fmt.Sprintf("%s_%s.%s", rc.Symbol, tf.Label(), saver.Extension()))
			if err := saver.Save(rows, path); err != nil {
				return err
			}
			slog.Info("series exported", "tf", tf.Label(), "rows", len(rows), "path", path)
		}
	}

	if opt.save {
		writer, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
		if err != nil {
			return err
		}
		defer writer.Close()
		snaps := ctrl.Checkpoint()
		if len(snaps) == 0 {
			slog.Warn("replay stopped mid-bar, no snapshot saved", "state", st.State)
		}
		for _, snap := range snaps {
			if err := writer.SaveSnapshot(ctx, snap); err != nil {
				return err
			}
		}
	}

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║          REPLAY COMPLETE             ║")
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  Symbol:            %-16s ║\n", st.Symbol)
	fmt.Printf("║  Advances:          %-16d ║\n", player.Steps())
	fmt.Printf("║  Offset / state:    %-16s ║\n", strconv.Itoa(st.Offset)+" "+st.State)
	fmt.Printf("║  Remaining bars:    %-16d ║\n", st.Remaining)
	fmt.Printf("║  Lines printed:     %-16d ║\n", printed)
	fmt.Println("╚══════════════════════════════════════╝")
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func formatValues(snap indicator.Snapshot) string {
	parts := make([]string, 0, len(snap.Values))
	for _, name := range snap.Names() {
		parts = append(parts, name+"="+snap.Values[name].StringFixed(4))
	}
	return strings.Join(parts, " ")
}

// parseIndicatorSpecs parses "EMA:9,RSI:14,VWAP".
func parseIndicatorSpecs(s string) ([]indicator.Config, error) {
	if s == "" {
		return []indicator.Config{
			{Type: "EMA", Period: 9},
			{Type: "EMA", Period: 21},
			{Type: "RSI", Period: 14},
			{Type: "VWAP"},
		}, nil
	}
	var configs []indicator.Config
	for _, part := range strings.Split(s, ",") {
		typ, periodStr, hasPeriod := strings.Cut(strings.TrimSpace(part), ":")
		if typ == "" {
			continue
		}
		cfg := indicator.Config{Type: strings.ToUpper(typ)}
		if hasPeriod {
			p, err := strconv.Atoi(strings.TrimSpace(periodStr))
			if err != nil || p <= 0 {
				return nil, fmt.Errorf("indicator %q: period must be a positive integer", part)
			}
			cfg.Period = p
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}
