package order

import (
	"testing"

	"github.com/gregrebin/cihat-bot/internal/market"
)

func kinds(tokens []Token) []TokenType {
	out := make([]TokenType, len(tokens))
	for i, token := range tokens {
		out[i] = token.Type
	}
	return out
}

func TestTokenize_Single(t *testing.T) {
	tokens, err := Tokenize("buy 5 BTCUSDT in Binance at 20000")
	if err != nil {
		t.Fatalf("Tokenize returned error: %v", err)
	}

	want := []TokenType{TokenCommand, TokenDecimal, TokenString, TokenIn, TokenString, TokenAt, TokenDecimal, TokenEOF}
	got := kinds(tokens)
	if len(got) != len(want) {
		t.Fatalf("unexpected token count: got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d: got %s want %s", i, got[i], want[i])
		}
	}

	if tokens[0].Command != CommandBuy {
		t.Errorf("command payload missing: %+v", tokens[0])
	}
	if tokens[1].Decimal != 5 {
		t.Errorf("decimal payload missing: %+v", tokens[1])
	}
	if tokens[6].Decimal != 20000 {
		t.Errorf("decimal payload missing: %+v", tokens[6])
	}
}

func TestTokenize_IntervalPayload(t *testing.T) {
	tokens, err := Tokenize("rsi@4h")
	if err != nil {
		t.Fatalf("Tokenize returned error: %v", err)
	}

	if tokens[1].Type != TokenInterval {
		t.Fatalf("expected interval token, got %s", tokens[1].Type)
	}
	if tokens[1].Interval != (market.Interval{Quantity: 4, TimeFrame: market.TimeFrameHour}) {
		t.Errorf("unexpected interval payload: %+v", tokens[1].Interval)
	}
}

func TestTokenize_ModeAndPunctuation(t *testing.T) {
	tokens, err := Tokenize("[parallel empty; empty]")
	if err != nil {
		t.Fatalf("Tokenize returned error: %v", err)
	}

	want := []TokenType{TokenLBracket, TokenMode, TokenEmpty, TokenSemicolon, TokenEmpty, TokenRBracket, TokenEOF}
	got := kinds(tokens)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d: got %s want %s", i, got[i], want[i])
		}
	}
	if tokens[1].Mode != ModeParallel {
		t.Errorf("mode payload missing: %+v", tokens[1])
	}
}

func TestTokenize_DecimalFraction(t *testing.T) {
	tokens, err := Tokenize("0.5")
	if err != nil {
		t.Fatalf("Tokenize returned error: %v", err)
	}
	if tokens[0].Decimal != 0.5 {
		t.Errorf("expected 0.5, got %v", tokens[0].Decimal)
	}
}

func TestTokenize_Errors(t *testing.T) {
	cases := []string{
		"buy 5 BTCUSDT # in Binance",
		"rsi@h",
		"rsi@4x",
		"rsi@4",
	}
	for _, input := range cases {
		if _, err := Tokenize(input); err == nil {
			t.Errorf("expected lexer error for %q", input)
		}
	}
}
