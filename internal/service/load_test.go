package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barreplay/internal/indicator"
	"barreplay/internal/metrics"
	"barreplay/internal/model"
	"barreplay/internal/series/seriestest"
	"barreplay/internal/session"
)

type fakeSource struct {
	candles []model.Candle
	err     error
}

func (f fakeSource) ReadCandles(_ context.Context, _ string, _ model.Timeframe, from, to time.Time) ([]model.Candle, error) {
	var out []model.Candle
	for _, c := range f.candles {
		if c.OpenTime.Before(from) || (!to.IsZero() && c.OpenTime.After(to)) {
			continue
		}
		out = append(out, c)
	}
	return out, f.err
}

func (fakeSource) Close() error { return nil }

type fakeSnapshots struct {
	snap indicator.Snapshot
	ok   bool
}

func (f fakeSnapshots) ReadLatestSnapshot(context.Context, string, model.Timeframe) (indicator.Snapshot, bool, error) {
	return f.snap, f.ok, nil
}

func TestLoadCandles(t *testing.T) {
	src := fakeSource{candles: seriestest.Candles(30, model.TF1m)}
	prom := metrics.NewMetrics()

	got, err := LoadCandles(context.Background(), src, "NIFTY", model.TF1m,
		seriestest.At(10, model.TF1m), seriestest.At(19, model.TF1m), prom)
	require.NoError(t, err)
	assert.Len(t, got, 10)

	_, err = LoadCandles(context.Background(), src, "NIFTY", model.TF1m,
		seriestest.At(40, model.TF1m), time.Time{}, nil)
	assert.ErrorContains(t, err, "no candles")

	boom := errors.New("disk gone")
	_, err = LoadCandles(context.Background(), fakeSource{err: boom}, "NIFTY", model.TF1m, time.Time{}, time.Time{}, nil)
	assert.ErrorIs(t, err, boom)
}

func TestResumeIndex(t *testing.T) {
	candles := seriestest.Candles(30, model.TF1m)
	ctx := context.Background()

	idx, err := ResumeIndex(ctx, fakeSnapshots{}, "NIFTY", model.TF1m, candles, 20)
	require.NoError(t, err)
	assert.Equal(t, 20, idx)

	snap := indicator.Snapshot{TS: candles[24].OpenTime}
	idx, err = ResumeIndex(ctx, fakeSnapshots{snap: snap, ok: true}, "NIFTY", model.TF1m, candles, 20)
	require.NoError(t, err)
	assert.Equal(t, 25, idx)

	snap.TS = candles[29].OpenTime.Add(time.Hour)
	idx, err = ResumeIndex(ctx, fakeSnapshots{snap: snap, ok: true}, "NIFTY", model.TF1m, candles, 20)
	require.NoError(t, err)
	assert.Equal(t, 30, idx)
}

func TestCalendarFor(t *testing.T) {
	cal, err := CalendarFor("")
	require.NoError(t, err)
	assert.IsType(t, session.UTCCalendar{}, cal)

	cal, err = CalendarFor("NSE")
	require.NoError(t, err)
	assert.IsType(t, session.ExchangeCalendar{}, cal)

	_, err = CalendarFor("lse")
	assert.Error(t, err)
}
