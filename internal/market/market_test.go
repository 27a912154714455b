package market

import (
	"testing"
	"time"
)

func ts(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func TestAddCandle_NewChart(t *testing.T) {
	m := Market{}
	m = m.AddCandle("Binance", "BTCUSDT", Interval{1, TimeFrameHour}, Candle{Time: ts(100), Close: 5})

	if len(m.Charts) != 1 {
		t.Fatalf("expected 1 chart, got %d", len(m.Charts))
	}

	candles := m.Candles(ChartInfo{"Binance", "BTCUSDT", Interval{1, TimeFrameHour}})
	if len(candles) != 1 || candles[0].Close != 5 {
		t.Fatalf("unexpected candles: %v", candles)
	}
}

func TestAddCandle_SeparateSeries(t *testing.T) {
	m := Market{}
	m = m.AddCandle("Binance", "BTCUSDT", Interval{1, TimeFrameHour}, Candle{Time: ts(100)})
	m = m.AddCandle("Binance", "BTCUSDT", Interval{4, TimeFrameHour}, Candle{Time: ts(100)})
	m = m.AddCandle("Kraken", "BTCUSDT", Interval{1, TimeFrameHour}, Candle{Time: ts(100)})

	if len(m.Charts) != 3 {
		t.Fatalf("expected 3 charts, got %d", len(m.Charts))
	}
}

func TestAddCandle_ReplaceSameTimestamp(t *testing.T) {
	info := ChartInfo{"Binance", "BTCUSDT", Interval{1, TimeFrameMinute}}

	m := Market{}
	m = m.AddCandle(info.Exchange, info.Symbol, info.Interval, Candle{Time: ts(60), Close: 1})
	m = m.AddCandle(info.Exchange, info.Symbol, info.Interval, Candle{Time: ts(60), Close: 2})
	m = m.AddCandle(info.Exchange, info.Symbol, info.Interval, Candle{Time: ts(120), Close: 3})
	m = m.AddCandle(info.Exchange, info.Symbol, info.Interval, Candle{Time: ts(60), Close: 9})

	candles := m.Candles(info)
	if len(candles) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(candles))
	}
	if candles[0].Close != 2 {
		t.Errorf("open bar should have been replaced, got close=%v", candles[0].Close)
	}
	if candles[1].Close != 3 {
		t.Errorf("stale candle should be ignored, got close=%v", candles[1].Close)
	}
}

func TestAddCandle_DoesNotMutateOriginal(t *testing.T) {
	info := ChartInfo{"Binance", "BTCUSDT", Interval{1, TimeFrameMinute}}

	before := Market{}.AddCandle(info.Exchange, info.Symbol, info.Interval, Candle{Time: ts(60), Close: 1})
	after := before.AddCandle(info.Exchange, info.Symbol, info.Interval, Candle{Time: ts(120), Close: 2})

	if len(before.Candles(info)) != 1 {
		t.Errorf("original snapshot changed: %v", before.Candles(info))
	}
	if len(after.Candles(info)) != 2 {
		t.Errorf("new snapshot missing candle: %v", after.Candles(info))
	}
}

func TestAddTrade_LastPrice(t *testing.T) {
	m := Market{}
	m = m.AddTrade("Binance", "BTCUSDT", 20000, 0.5, ts(100))
	m = m.AddTrade("Binance", "BTCUSDT", 20100, 0.1, ts(101))

	if len(m.Tickers) != 1 {
		t.Fatalf("expected single ticker, got %d", len(m.Tickers))
	}
	price, ok := m.LastPrice("Binance", "BTCUSDT")
	if !ok || price != 20100 {
		t.Errorf("unexpected last price: %v ok=%v", price, ok)
	}
}

func TestLastPrice_FallsBackToClose(t *testing.T) {
	m := Market{}.AddCandle("Binance", "BTCUSDT", DefaultInterval(), Candle{Time: ts(60), Close: 42})

	price, ok := m.LastPrice("Binance", "BTCUSDT")
	if !ok || price != 42 {
		t.Errorf("expected fallback to close, got %v ok=%v", price, ok)
	}
	if _, ok := m.LastPrice("Binance", "ETHUSDT"); ok {
		t.Errorf("expected no price for unknown symbol")
	}
}

func TestIntervalDuration(t *testing.T) {
	if d := (Interval{4, TimeFrameHour}).Duration(); d != 4*time.Hour {
		t.Errorf("unexpected duration: %v", d)
	}
	if d := (Interval{}).Duration(); d != time.Minute {
		t.Errorf("zero interval should default to one minute, got %v", d)
	}
	if s := (Interval{15, TimeFrameMinute}).String(); s != "15m" {
		t.Errorf("unexpected rendering: %s", s)
	}
}
