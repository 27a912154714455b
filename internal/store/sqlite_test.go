package store

import (
	"context"
	"testing"
	"time"

	"github.com/gregrebin/cihat-bot/internal/config"
	"github.com/gregrebin/cihat-bot/internal/market"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewSQLite(config.DatabaseConfig{InMemory: true, MaxOpenConns: 1, MaxIdleConns: 1})
	if err != nil {
		t.Fatalf("NewSQLite returned error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testInfo() market.ChartInfo {
	return market.ChartInfo{
		Exchange: "Binance",
		Symbol:   "BTCUSDT",
		Interval: market.Interval{Quantity: 1, TimeFrame: market.TimeFrameMinute},
	}
}

func candleAt(ts int64, close float64) market.Candle {
	return market.Candle{
		Time:   time.Unix(ts, 0).UTC(),
		Open:   close - 1,
		High:   close + 1,
		Low:    close - 2,
		Close:  close,
		Volume: 10,
	}
}

func TestStore_SaveAndLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	info := testInfo()

	candles := []market.Candle{candleAt(60, 100), candleAt(120, 101), candleAt(180, 102)}
	if err := s.SaveCandles(ctx, info, candles); err != nil {
		t.Fatalf("SaveCandles returned error: %v", err)
	}

	got, err := s.LoadCandles(ctx, info, 10)
	if err != nil {
		t.Fatalf("LoadCandles returned error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 candles, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if !got[i].Time.After(got[i-1].Time) {
			t.Errorf("candles must be ascending, got %v then %v", got[i-1].Time, got[i].Time)
		}
	}
	if got[2].Close != 102 {
		t.Errorf("unexpected last close: %v", got[2].Close)
	}
}

func TestStore_LimitReturnsLatest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	info := testInfo()

	for i := int64(1); i <= 5; i++ {
		if err := s.SaveCandles(ctx, info, []market.Candle{candleAt(i*60, float64(100+i))}); err != nil {
			t.Fatalf("SaveCandles returned error: %v", err)
		}
	}

	got, err := s.LoadCandles(ctx, info, 2)
	if err != nil {
		t.Fatalf("LoadCandles returned error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(got))
	}
	if got[0].Close != 104 || got[1].Close != 105 {
		t.Errorf("expected the two most recent candles ascending, got %v %v", got[0].Close, got[1].Close)
	}
}

func TestStore_UpsertReplacesSameTimestamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	info := testInfo()

	if err := s.SaveCandles(ctx, info, []market.Candle{candleAt(60, 100)}); err != nil {
		t.Fatalf("SaveCandles returned error: %v", err)
	}
	if err := s.SaveCandles(ctx, info, []market.Candle{candleAt(60, 111)}); err != nil {
		t.Fatalf("SaveCandles returned error: %v", err)
	}

	got, err := s.LoadCandles(ctx, info, 10)
	if err != nil {
		t.Fatalf("LoadCandles returned error: %v", err)
	}
	if len(got) != 1 || got[0].Close != 111 {
		t.Errorf("expected single replaced candle, got %+v", got)
	}
}

func TestStore_SeparateSeries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := testInfo()
	second := testInfo()
	second.Interval = market.Interval{Quantity: 4, TimeFrame: market.TimeFrameHour}

	if err := s.SaveCandles(ctx, first, []market.Candle{candleAt(60, 100)}); err != nil {
		t.Fatalf("SaveCandles returned error: %v", err)
	}
	if err := s.SaveCandles(ctx, second, []market.Candle{candleAt(60, 200), candleAt(120, 201)}); err != nil {
		t.Fatalf("SaveCandles returned error: %v", err)
	}

	got, err := s.LoadCandles(ctx, first, 10)
	if err != nil {
		t.Fatalf("LoadCandles returned error: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("series must not leak across intervals, got %d candles", len(got))
	}
}
