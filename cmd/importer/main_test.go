package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barreplay/internal/model"
	sqlitestore "barreplay/internal/store/sqlite"
)

const sample = `t,o,h,l,c,v
2024-01-01T09:15:00Z,100,101.5,99.75,101,1200
1704100560,101,102,100.5,101.25,900
1704100620000,101.25,101.5,100,100.5,1500
`

func TestReadCandles(t *testing.T) {
	out := make(chan model.Candle, 8)
	n, err := readCandles(context.Background(), strings.NewReader(sample), model.TF1m, out)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	close(out)

	var got []model.Candle
	for c := range out {
		got = append(got, c)
	}
	assert.Equal(t, time.Date(2024, 1, 1, 9, 15, 0, 0, time.UTC), got[0].OpenTime)
	assert.Equal(t, time.Date(2024, 1, 1, 9, 16, 0, 0, time.UTC), got[1].OpenTime)
	assert.Equal(t, time.Date(2024, 1, 1, 9, 17, 0, 0, time.UTC), got[2].OpenTime)
	assert.Equal(t, "99.75", got[0].Low.String())
}

func TestReadCandles_Errors(t *testing.T) {
	tests := []struct {
		name, body, want string
	}{
		{"misaligned", "2024-01-01T09:15:30Z,1,1,1,1,1\n", "not aligned"},
		{"bad price", "2024-01-01T09:15:00Z,1,x,1,1,1\n", "line 1"},
		{"bad time", "60,1,1,1,1,1\nyesterday,1,1,1,1,1\n", "timestamp"},
		{"short row", "2024-01-01T09:15:00Z,1,1,1\n", "wrong number of fields"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := make(chan model.Candle, 8)
			_, err := readCandles(context.Background(), strings.NewReader(tt.body), model.TF1m, out)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestRun_WritesStore(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "in.csv")
	require.NoError(t, writeString(csvPath, sample))
	dbPath := filepath.Join(dir, "candles.db")

	require.NoError(t, run(context.Background(), dbPath, "NIFTY", model.TF1m, csvPath, 2))

	r, err := sqlitestore.NewReader(dbPath)
	require.NoError(t, err)
	defer r.Close()
	got, err := r.ReadCandles(context.Background(), "NIFTY", model.TF1m, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "100.5", got[2].Close.String())
}

func writeString(path, body string) error {
	return os.WriteFile(path, []byte(body), 0o600)
}
