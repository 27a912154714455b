package order

import (
	"testing"
)

func parse(t *testing.T, input string) Order {
	t.Helper()
	ord, err := Parse(input)
	if err != nil {
		t.Fatalf("Parse(%q) returned error: %v", input, err)
	}
	return ord
}

func TestParse_Empty(t *testing.T) {
	if _, ok := parse(t, "empty").(Empty); !ok {
		t.Errorf("expected Empty order")
	}
}

func TestParse_SingleWithQuote(t *testing.T) {
	ord := parse(t, "buy 5 BTCUSDT in Binance at 20000")

	s, ok := ord.(Single)
	if !ok {
		t.Fatalf("expected Single, got %T", ord)
	}
	if s.Command != CommandBuy || s.Symbol != "BTCUSDT" || s.Exchange != "Binance" {
		t.Errorf("unexpected fields: %+v", s)
	}
	if s.Quote != 5 || s.Price != 20000 || s.Base != 100000 {
		t.Errorf("unexpected amounts: quote=%v price=%v base=%v", s.Quote, s.Price, s.Base)
	}
}

func TestParse_SingleWithBase(t *testing.T) {
	ord := parse(t, "sell BTCUSDT in Binance at 20000 for 1000")

	s := ord.(Single)
	if s.Command != CommandSell || s.Base != 1000 {
		t.Errorf("unexpected fields: %+v", s)
	}
	if s.Quote != 0.05 {
		t.Errorf("expected derived quote=0.05, got %v", s.Quote)
	}
}

func TestParse_Conditions(t *testing.T) {
	ord := parse(t, "buy 5 BTCUSDT in Binance at 20000 if rsi@4h(period:14)=0/30 and macd@1d(fast:8,slow:21) histogram=0/100 and price=19000/21000")

	s := ord.(Single)
	if len(s.Conditions) != 3 {
		t.Fatalf("expected 3 conditions, got %d", len(s.Conditions))
	}

	rsi := s.Conditions[0]
	if rsi.Name != "rsi" || rsi.Interval.String() != "4h" || rsi.Settings["period"] != 14 {
		t.Errorf("unexpected rsi condition: %+v", rsi)
	}
	if rsi.Min != 0 || rsi.Max != 30 {
		t.Errorf("unexpected rsi range: %v/%v", rsi.Min, rsi.Max)
	}

	macd := s.Conditions[1]
	if macd.Line != "histogram" || macd.Settings["slow"] != 21 {
		t.Errorf("unexpected macd condition: %+v", macd)
	}

	price := s.Conditions[2]
	if price.Interval.String() != "1m" {
		t.Errorf("expected default interval, got %s", price.Interval)
	}
}

func TestParse_BareValueIsExactRange(t *testing.T) {
	s := parse(t, "buy 5 BTCUSDT in Binance at 20000 if price=20000").(Single)

	cond := s.Conditions[0]
	if cond.Min != 20000 || cond.Max != 20000 {
		t.Errorf("bare value must become exact-match range, got %v/%v", cond.Min, cond.Max)
	}
}

func TestParse_Multiple(t *testing.T) {
	ord := parse(t, "[parallel buy 5 BTCUSDT in Binance at 20000; sell ETHUSDT in Coinbase at 2000 for 1000]")

	m, ok := ord.(Multiple)
	if !ok || m.Mode != ModeParallel {
		t.Fatalf("expected parallel multiple, got %s", ord)
	}
	if len(m.Orders) != 2 {
		t.Fatalf("expected 2 children, got %d", len(m.Orders))
	}
}

func TestParse_NestedMultipleNotFlattened(t *testing.T) {
	ord := parse(t, "[parallel buy 5 A in X at 1; [parallel buy 5 B in X at 1; buy 5 C in X at 1]]")

	m := ord.(Multiple)
	// 同模式的相邻组不由解析器展开，展开属于 Add 操作。
	if len(m.Orders) != 2 {
		t.Fatalf("parser must not flatten, got %d children", len(m.Orders))
	}
	if inner, ok := m.Orders[1].(Multiple); !ok || len(inner.Orders) != 2 {
		t.Errorf("expected nested group, got %s", m.Orders[1])
	}
}

func TestParse_Errors(t *testing.T) {
	cases := []string{
		"",
		"hold 5 BTCUSDT in Binance at 20000",
		"buy 5 BTCUSDT in Binance",
		"buy 5 BTCUSDT Binance at 20000",
		"buy BTCUSDT in Binance at 20000",
		"buy 5 BTCUSDT in Binance at 20000 for 1000",
		"[parallel buy 5 BTCUSDT in Binance at 20000",
		"[sideways buy 5 BTCUSDT in Binance at 20000]",
		"buy 5 BTCUSDT in Binance at 20000 if unknown_indicator=1",
		"buy 5 BTCUSDT in Binance at 20000 if rsi=50/10",
		"buy 5 BTCUSDT in Binance at 20000 extra",
	}

	for _, input := range cases {
		if _, err := Parse(input); err == nil {
			t.Errorf("expected parse error for %q", input)
		}
	}
}

func TestParse_RoundTrip(t *testing.T) {
	cases := []string{
		"buy 5 BTCUSDT in Binance at 20000",
		"buy BTCUSDT in Binance at 20000 for 1000",
		"sell 0.5 ETHUSDT in Coinbase at 2000 if rsi@4h(period:14)=0/30",
		"[parallel buy 5 BTCUSDT in Binance at 20000; buy 5 BTCUSDT in Binance at 20000]",
		"[sequent buy 5 BTCUSDT in Binance at 20000; [parallel sell 1 ETHUSDT in Binance at 2000; empty]]",
	}

	for _, input := range cases {
		first := parse(t, input)
		second := parse(t, first.String())

		if first.String() != second.String() {
			t.Errorf("round trip diverged for %q:\n%s\n%s", input, first.String(), second.String())
			continue
		}

		a, b := first.Get(false), second.Get(false)
		if len(a) != len(b) {
			t.Errorf("leaf count diverged for %q: %d vs %d", input, len(a), len(b))
			continue
		}
		for i := range a {
			if a[i].Command != b[i].Command || a[i].Symbol != b[i].Symbol ||
				a[i].Exchange != b[i].Exchange || a[i].Price != b[i].Price ||
				a[i].Quote != b[i].Quote || a[i].Base != b[i].Base {
				t.Errorf("leaf %d diverged for %q: %+v vs %+v", i, input, a[i], b[i])
			}
		}
	}
}
