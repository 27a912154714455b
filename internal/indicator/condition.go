package indicator

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	talib "github.com/markcheno/go-talib"

	"github.com/gregrebin/cihat-bot/internal/market"
)

// Condition 是订单提交前必须满足的技术指标条件：
// 指定指标在指定周期上的最新值必须落在 [Min, Max] 闭区间内。
// 多输出指标（如 macd）通过 Line 选择子序列。
type Condition struct {
	Name     string
	Interval market.Interval
	Settings map[string]float64
	Line     string
	Min      float64
	Max      float64
}

type entry struct {
	lines   []string
	minBars func(settings map[string]float64) int
	compute func(series Series, settings map[string]float64, line string) []float64
}

// registry 列出受支持的指标。未注册的名字在构造条件时即被拒绝，
// 这样语法分析阶段就能发现拼写错误。
var registry = map[string]entry{
	"price": {
		minBars: func(map[string]float64) int { return 1 },
		compute: func(s Series, _ map[string]float64, _ string) []float64 { return s.Close },
	},
	"volume": {
		minBars: func(map[string]float64) int { return 1 },
		compute: func(s Series, _ map[string]float64, _ string) []float64 { return s.Volume },
	},
	"sma": {
		minBars: func(settings map[string]float64) int { return period(settings, 20) },
		compute: func(s Series, settings map[string]float64, _ string) []float64 {
			return talib.Sma(s.Close, period(settings, 20))
		},
	},
	"ema": {
		minBars: func(settings map[string]float64) int { return period(settings, 20) },
		compute: func(s Series, settings map[string]float64, _ string) []float64 {
			return talib.Ema(s.Close, period(settings, 20))
		},
	},
	"rsi": {
		minBars: func(settings map[string]float64) int { return period(settings, 14) + 1 },
		compute: func(s Series, settings map[string]float64, _ string) []float64 {
			return talib.Rsi(s.Close, period(settings, 14))
		},
	},
	"atr": {
		minBars: func(settings map[string]float64) int { return period(settings, 14) + 1 },
		compute: func(s Series, settings map[string]float64, _ string) []float64 {
			return talib.Atr(s.High, s.Low, s.Close, period(settings, 14))
		},
	},
	"adx": {
		minBars: func(settings map[string]float64) int { return 2 * period(settings, 14) },
		compute: func(s Series, settings map[string]float64, _ string) []float64 {
			return talib.Adx(s.High, s.Low, s.Close, period(settings, 14))
		},
	},
	"macd": {
		lines: []string{"macd", "signal", "histogram"},
		minBars: func(settings map[string]float64) int {
			return setting(settings, "slow", 26) + setting(settings, "signal", 9)
		},
		compute: func(s Series, settings map[string]float64, line string) []float64 {
			macd, signal, hist := talib.Macd(s.Close,
				setting(settings, "fast", 12),
				setting(settings, "slow", 26),
				setting(settings, "signal", 9),
			)
			switch line {
			case "signal":
				return signal
			case "histogram":
				return hist
			default:
				return macd
			}
		},
	},
	"bbands": {
		lines: []string{"upper", "middle", "lower"},
		minBars: func(settings map[string]float64) int { return period(settings, 20) },
		compute: func(s Series, settings map[string]float64, line string) []float64 {
			dev := settings["dev"]
			if dev <= 0 {
				dev = 2
			}
			upper, middle, lower := talib.BBands(s.Close, period(settings, 20), dev, dev, talib.EMA)
			switch line {
			case "upper":
				return upper
			case "lower":
				return lower
			default:
				return middle
			}
		},
	},
}

func period(settings map[string]float64, def int) int {
	return setting(settings, "period", def)
}

func setting(settings map[string]float64, key string, def int) int {
	if v, ok := settings[key]; ok && v > 0 {
		return int(v)
	}
	return def
}

// NewCondition 构造并校验一个指标条件。
func NewCondition(name string, interval market.Interval, settings map[string]float64, line string, min, max float64) (Condition, error) {
	ent, ok := registry[name]
	if !ok {
		return Condition{}, fmt.Errorf("未知的指标名 %q", name)
	}
	if line != "" {
		found := false
		for _, l := range ent.lines {
			if l == line {
				found = true
				break
			}
		}
		if !found {
			return Condition{}, fmt.Errorf("指标 %s 没有子序列 %q", name, line)
		}
	}
	if min > max {
		return Condition{}, fmt.Errorf("指标 %s 区间无效: min=%v max=%v", name, min, max)
	}
	if interval.Quantity <= 0 {
		interval = market.DefaultInterval()
	}
	return Condition{
		Name:     name,
		Interval: interval,
		Settings: settings,
		Line:     line,
		Min:      min,
		Max:      max,
	}, nil
}

// Names 返回全部受支持的指标名，按字典序排列。
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check 判断条件在给定K线序列上是否成立。
// 历史数据不足或计算结果无效时返回 false，订单会静默保持待提交状态，
// 直到积累了足够的数据。
func (c Condition) Check(candles []market.Candle) bool {
	ent, ok := registry[c.Name]
	if !ok {
		return false
	}
	if len(candles) < ent.minBars(c.Settings) {
		return false
	}

	value := Last(ent.compute(NewSeries(candles), c.Settings, c.Line))
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return false
	}

	return c.Min <= value && value <= c.Max
}

// String 按订单语言的语法渲染条件，保证可以重新解析。
func (c Condition) String() string {
	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteString("@")
	b.WriteString(c.Interval.String())

	if len(c.Settings) > 0 {
		keys := make([]string, 0, len(c.Settings))
		for key := range c.Settings {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		b.WriteString("(")
		for i, key := range keys {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(key)
			b.WriteString(":")
			b.WriteString(formatDecimal(c.Settings[key]))
		}
		b.WriteString(")")
	}

	if c.Line != "" {
		b.WriteString(" ")
		b.WriteString(c.Line)
	}

	b.WriteString("=")
	b.WriteString(formatDecimal(c.Min))
	if c.Max != c.Min {
		b.WriteString("/")
		b.WriteString(formatDecimal(c.Max))
	}

	return b.String()
}

func formatDecimal(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
