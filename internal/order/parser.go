package order

// 订单语言文法（非正式 EBNF）：
//
//	order      := "empty" | single | multiple
//	single     := command quote? symbol "in" exchange "at" price ("for" base)? conditions?
//	command    := "buy" | "sell"
//	multiple   := "[" mode order (";" order)* "]"
//	mode       := "parallel" | "sequent"
//	conditions := "if" indicator ("and" indicator)*
//	indicator  := name interval? ("(" setting ("," setting)* ")")? line? "=" value
//	setting    := name ":" decimal
//	value      := decimal | decimal "/" decimal
//	interval   := "@" integer timeframe-unit
//
// quote 与 for base 必须二选一；value 只给一个数字时视为精确匹配区间。

import (
	"fmt"

	"github.com/gregrebin/cihat-bot/internal/indicator"
	"github.com/gregrebin/cihat-bot/internal/market"
)

// Parse 把一行订单描述编译为订单树。
// 任何词法或语法问题都会中止整行编译并返回错误，绝不产出部分树。
func Parse(input string) (Order, error) {
	tokens, err := Tokenize(input)
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens}
	parsed, err := p.parseOrder()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenEOF); err != nil {
		return nil, err
	}

	return parsed, nil
}

type parser struct {
	tokens []Token
	pos    int
}

func (p *parser) peek() Token {
	return p.tokens[p.pos]
}

func (p *parser) next() Token {
	token := p.tokens[p.pos]
	if token.Type != TokenEOF {
		p.pos++
	}
	return token
}

func (p *parser) accept(kind TokenType) (Token, bool) {
	if p.peek().Type != kind {
		return Token{}, false
	}
	return p.next(), true
}

func (p *parser) expect(kind TokenType) (Token, error) {
	token := p.peek()
	if token.Type != kind {
		return Token{}, fmt.Errorf("解析错误: 位置 %d 期望 %s, 实际为 %s %q", token.Pos, kind, token.Type, token.Text)
	}
	return p.next(), nil
}

func (p *parser) parseOrder() (Order, error) {
	switch p.peek().Type {
	case TokenEmpty:
		p.next()
		return Empty{}, nil
	case TokenLBracket:
		return p.parseMultiple()
	case TokenCommand:
		return p.parseSingle()
	default:
		token := p.peek()
		return nil, fmt.Errorf("解析错误: 位置 %d 期望订单起始, 实际为 %s %q", token.Pos, token.Type, token.Text)
	}
}

func (p *parser) parseMultiple() (Order, error) {
	if _, err := p.expect(TokenLBracket); err != nil {
		return nil, err
	}
	mode, err := p.expect(TokenMode)
	if err != nil {
		return nil, err
	}

	var orders []Order
	for {
		child, err := p.parseOrder()
		if err != nil {
			return nil, err
		}
		orders = append(orders, child)

		if _, ok := p.accept(TokenSemicolon); !ok {
			break
		}
	}

	if _, err := p.expect(TokenRBracket); err != nil {
		return nil, err
	}

	// 解析阶段不做同模式展开，展开是 Add 操作的职责。
	return Multiple{Mode: mode.Mode, Orders: orders}, nil
}

func (p *parser) parseSingle() (Order, error) {
	command, err := p.expect(TokenCommand)
	if err != nil {
		return nil, err
	}

	var quote float64
	hasQuote := false
	if token, ok := p.accept(TokenDecimal); ok {
		quote = token.Decimal
		hasQuote = true
	}

	symbol, err := p.expect(TokenString)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenIn); err != nil {
		return nil, err
	}
	exchange, err := p.expect(TokenString)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenAt); err != nil {
		return nil, err
	}
	price, err := p.expect(TokenDecimal)
	if err != nil {
		return nil, err
	}

	var base float64
	hasBase := false
	if _, ok := p.accept(TokenFor); ok {
		token, err := p.expect(TokenDecimal)
		if err != nil {
			return nil, err
		}
		base = token.Decimal
		hasBase = true
	}

	if hasQuote && hasBase {
		return nil, fmt.Errorf("解析错误: 位置 %d 数量与总额只能给其中一个", command.Pos)
	}
	if !hasQuote && !hasBase {
		return nil, fmt.Errorf("解析错误: 位置 %d 缺少数量或总额", command.Pos)
	}

	conditions, err := p.parseConditions()
	if err != nil {
		return nil, err
	}

	return NewSingle(Draft{
		Command:    command.Command,
		Exchange:   exchange.Text,
		Symbol:     symbol.Text,
		Quote:      quote,
		Base:       base,
		Price:      price.Decimal,
		Conditions: conditions,
	}), nil
}

func (p *parser) parseConditions() ([]indicator.Condition, error) {
	if _, ok := p.accept(TokenIf); !ok {
		return nil, nil
	}

	var conditions []indicator.Condition
	for {
		condition, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, condition)

		if _, ok := p.accept(TokenAnd); !ok {
			break
		}
	}

	return conditions, nil
}

func (p *parser) parseCondition() (indicator.Condition, error) {
	name, err := p.expect(TokenString)
	if err != nil {
		return indicator.Condition{}, err
	}

	interval := market.DefaultInterval()
	if token, ok := p.accept(TokenInterval); ok {
		interval = token.Interval
	}

	var settings map[string]float64
	if _, ok := p.accept(TokenLParen); ok {
		settings = make(map[string]float64)
		for {
			key, err := p.expect(TokenString)
			if err != nil {
				return indicator.Condition{}, err
			}
			if _, err := p.expect(TokenColon); err != nil {
				return indicator.Condition{}, err
			}
			value, err := p.expect(TokenDecimal)
			if err != nil {
				return indicator.Condition{}, err
			}
			settings[key.Text] = value.Decimal

			if _, ok := p.accept(TokenComma); !ok {
				break
			}
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return indicator.Condition{}, err
		}
	}

	line := ""
	if token, ok := p.accept(TokenString); ok {
		line = token.Text
	}

	if _, err := p.expect(TokenEqual); err != nil {
		return indicator.Condition{}, err
	}

	min, err := p.expect(TokenDecimal)
	if err != nil {
		return indicator.Condition{}, err
	}
	max := min
	if _, ok := p.accept(TokenSlash); ok {
		max, err = p.expect(TokenDecimal)
		if err != nil {
			return indicator.Condition{}, err
		}
	}

	condition, err := indicator.NewCondition(name.Text, interval, settings, line, min.Decimal, max.Decimal)
	if err != nil {
		return indicator.Condition{}, fmt.Errorf("解析错误: 位置 %d 条件无效: %w", name.Pos, err)
	}
	return condition, nil
}
