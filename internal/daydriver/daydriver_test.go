package daydriver

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz/lzma"
	"go.uber.org/zap"

	"fxhistorian/internal/codec"
	"fxhistorian/internal/fetch"
	"fxhistorian/internal/model"
)

func compressLZMA(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := lzma.NewWriter(&buf)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func testFetcher() *fetch.Fetcher {
	cfg := fetch.DefaultConfig()
	cfg.MaxAttempts = 2
	cfg.BaseDelay = time.Millisecond
	cfg.MaxDelay = 5 * time.Millisecond
	cfg.RequestTimeout = 2 * time.Second
	return fetch.New(cfg, zap.NewNop(), nil)
}

func TestFetchDay_MergesAndSortsHours(t *testing.T) {
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case bytesHasSuffix(r.URL.Path, "/03h_ticks.bi5"):
			hourStart := time.Date(2024, 3, 1, 3, 0, 0, 0, time.UTC)
			tick := model.Tick{TS: hourStart.Add(30 * time.Minute), Ask: decimal.RequireFromString("1.1"), Bid: decimal.RequireFromString("1.0998"), AskVol: 1, BidVol: 1}
			w.Write(compressLZMA(t, codec.EncodeTick(tick, "eurusd", hourStart)))
		case bytesHasSuffix(r.URL.Path, "/01h_ticks.bi5"):
			hourStart := time.Date(2024, 3, 1, 1, 0, 0, 0, time.UTC)
			tick := model.Tick{TS: hourStart.Add(time.Minute), Ask: decimal.RequireFromString("1.05"), Bid: decimal.RequireFromString("1.0498"), AskVol: 1, BidVol: 1}
			w.Write(compressLZMA(t, codec.EncodeTick(tick, "eurusd", hourStart)))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	defer fetch.SetArchiveBaseForTest(srv.URL)()

	d := New(Config{Concurrency: 4, RequestDelay: time.Millisecond}, testFetcher(), zap.NewNop())
	ticks, err := d.FetchDay(context.Background(), "eurusd", date)
	require.NoError(t, err)
	require.Len(t, ticks, 2)
	assert.True(t, ticks[0].TS.Before(ticks[1].TS))
	assert.Equal(t, 1, ticks[0].TS.Hour())
	assert.Equal(t, 3, ticks[1].TS.Hour())
}

func TestFetchDay_PersistentThrottlingPropagates(t *testing.T) {
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	defer fetch.SetArchiveBaseForTest(srv.URL)()

	d := New(Config{Concurrency: 4, RequestDelay: time.Millisecond}, testFetcher(), zap.NewNop())
	_, err := d.FetchDay(context.Background(), "eurusd", date)
	require.Error(t, err)
	assert.ErrorIs(t, err, fetch.ErrPersistentThrottling)
}

func TestFetchDay_AllHoursEmpty(t *testing.T) {
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()
	defer fetch.SetArchiveBaseForTest(srv.URL)()

	d := New(Config{Concurrency: 4, RequestDelay: time.Millisecond}, testFetcher(), zap.NewNop())
	ticks, err := d.FetchDay(context.Background(), "eurusd", date)
	require.NoError(t, err)
	assert.Empty(t, ticks)
}

func bytesHasSuffix(s, suffix string) bool {
	if len(s) < len(suffix) {
		return false
	}
	return s[len(s)-len(suffix):] == suffix
}
