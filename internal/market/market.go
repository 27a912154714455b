package market

import (
	"fmt"
	"time"
)

// TimeFrame 表示K线周期单位，取值与订单语言中的字母一致。
type TimeFrame string

const (
	TimeFrameMinute TimeFrame = "m"
	TimeFrameHour   TimeFrame = "h"
	TimeFrameDay    TimeFrame = "d"
	TimeFrameWeek   TimeFrame = "w"
	TimeFrameMonth  TimeFrame = "M"
)

// Valid 判断周期单位是否合法。
func (tf TimeFrame) Valid() bool {
	switch tf {
	case TimeFrameMinute, TimeFrameHour, TimeFrameDay, TimeFrameWeek, TimeFrameMonth:
		return true
	}
	return false
}

// Duration 返回单个周期对应的时长，月按 30 天估算。
func (tf TimeFrame) Duration() time.Duration {
	switch tf {
	case TimeFrameMinute:
		return time.Minute
	case TimeFrameHour:
		return time.Hour
	case TimeFrameDay:
		return 24 * time.Hour
	case TimeFrameWeek:
		return 7 * 24 * time.Hour
	case TimeFrameMonth:
		return 30 * 24 * time.Hour
	}
	return time.Minute
}

// Interval 表示带数量的K线周期，例如 4h、15m。
type Interval struct {
	Quantity  int
	TimeFrame TimeFrame
}

// DefaultInterval 是订单语言中省略周期时的默认值。
func DefaultInterval() Interval {
	return Interval{Quantity: 1, TimeFrame: TimeFrameMinute}
}

// Duration 返回周期总时长。
func (i Interval) Duration() time.Duration {
	quantity := i.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	return time.Duration(quantity) * i.TimeFrame.Duration()
}

func (i Interval) String() string {
	return fmt.Sprintf("%d%s", i.Quantity, string(i.TimeFrame))
}

// Candle 是一根K线。
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// ChartInfo 唯一标识一条行情序列。
type ChartInfo struct {
	Exchange string
	Symbol   string
	Interval Interval
}

// Chart 是一条按时间升序排列的K线序列。所有修改操作返回新值，
// 未变化的部分与旧值共享底层数据。
type Chart struct {
	Info    ChartInfo
	Candles []Candle
}

// AddCandle 合并一根K线：时间相同则替换（未收盘的K线会被更新），
// 更新的追加在末尾，早于最后一根的忽略。
func (c Chart) AddCandle(candle Candle) Chart {
	if len(c.Candles) == 0 {
		return Chart{Info: c.Info, Candles: []Candle{candle}}
	}

	last := c.Candles[len(c.Candles)-1]
	switch {
	case candle.Time.Equal(last.Time):
		candles := make([]Candle, len(c.Candles))
		copy(candles, c.Candles)
		candles[len(candles)-1] = candle
		return Chart{Info: c.Info, Candles: candles}
	case candle.Time.After(last.Time):
		candles := make([]Candle, len(c.Candles), len(c.Candles)+1)
		copy(candles, c.Candles)
		candles = append(candles, candle)
		return Chart{Info: c.Info, Candles: candles}
	default:
		return c
	}
}

// Ticker 保存某个交易对最近一次成交。
type Ticker struct {
	Exchange string
	Symbol   string
	Price    float64
	Quantity float64
	Time     time.Time
}

// Market 是一份不可变的行情快照。组件之间只传递快照，
// 永远不会在读取方背后修改它。
type Market struct {
	Charts  []Chart
	Tickers []Ticker
}

// AddCandle 返回合并了新K线的行情快照。
func (m Market) AddCandle(exchange, symbol string, interval Interval, candle Candle) Market {
	info := ChartInfo{Exchange: exchange, Symbol: symbol, Interval: interval}

	for i, chart := range m.Charts {
		if chart.Info != info {
			continue
		}
		charts := make([]Chart, len(m.Charts))
		copy(charts, m.Charts)
		charts[i] = chart.AddCandle(candle)
		return Market{Charts: charts, Tickers: m.Tickers}
	}

	charts := make([]Chart, len(m.Charts), len(m.Charts)+1)
	copy(charts, m.Charts)
	charts = append(charts, Chart{Info: info}.AddCandle(candle))
	return Market{Charts: charts, Tickers: m.Tickers}
}

// AddTrade 返回更新了最近成交的行情快照。
func (m Market) AddTrade(exchange, symbol string, price, quantity float64, at time.Time) Market {
	ticker := Ticker{Exchange: exchange, Symbol: symbol, Price: price, Quantity: quantity, Time: at}

	for i, t := range m.Tickers {
		if t.Exchange != exchange || t.Symbol != symbol {
			continue
		}
		tickers := make([]Ticker, len(m.Tickers))
		copy(tickers, m.Tickers)
		tickers[i] = ticker
		return Market{Charts: m.Charts, Tickers: tickers}
	}

	tickers := make([]Ticker, len(m.Tickers), len(m.Tickers)+1)
	copy(tickers, m.Tickers)
	tickers = append(tickers, ticker)
	return Market{Charts: m.Charts, Tickers: tickers}
}

// Chart 按标识查找行情序列。
func (m Market) Chart(info ChartInfo) (Chart, bool) {
	for _, chart := range m.Charts {
		if chart.Info == info {
			return chart, true
		}
	}
	return Chart{}, false
}

// Candles 返回指定序列的K线，不存在时返回空切片。
func (m Market) Candles(info ChartInfo) []Candle {
	chart, ok := m.Chart(info)
	if !ok {
		return nil
	}
	return chart.Candles
}

// LastPrice 返回最近成交价；没有成交记录时回退到最新收盘价。
func (m Market) LastPrice(exchange, symbol string) (float64, bool) {
	for _, t := range m.Tickers {
		if t.Exchange == exchange && t.Symbol == symbol {
			return t.Price, true
		}
	}
	for _, chart := range m.Charts {
		if chart.Info.Exchange == exchange && chart.Info.Symbol == symbol && len(chart.Candles) > 0 {
			return chart.Candles[len(chart.Candles)-1].Close, true
		}
	}
	return 0, false
}
