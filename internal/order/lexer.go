package order

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/gregrebin/cihat-bot/internal/market"
)

// TokenType 枚举订单语言的全部词法单元。
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenEmpty
	TokenCommand
	TokenMode
	TokenIn
	TokenAt
	TokenFor
	TokenIf
	TokenAnd
	TokenSemicolon
	TokenLBracket
	TokenRBracket
	TokenLParen
	TokenRParen
	TokenEqual
	TokenComma
	TokenColon
	TokenSlash
	TokenInterval
	TokenDecimal
	TokenString
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenEmpty:
		return "EMPTY"
	case TokenCommand:
		return "COMMAND"
	case TokenMode:
		return "MODE"
	case TokenIn:
		return "IN"
	case TokenAt:
		return "AT"
	case TokenFor:
		return "FOR"
	case TokenIf:
		return "IF"
	case TokenAnd:
		return "AND"
	case TokenSemicolon:
		return "';'"
	case TokenLBracket:
		return "'['"
	case TokenRBracket:
		return "']'"
	case TokenLParen:
		return "'('"
	case TokenRParen:
		return "')'"
	case TokenEqual:
		return "'='"
	case TokenComma:
		return "','"
	case TokenColon:
		return "':'"
	case TokenSlash:
		return "'/'"
	case TokenInterval:
		return "INTERVAL"
	case TokenDecimal:
		return "DECIMAL"
	case TokenString:
		return "STRING"
	}
	return "UNKNOWN"
}

// Token 携带词法单元的类型与已解析的载荷：
// 保留字、小数和周期都在词法阶段完成取值，语法分析不再接触原始子串。
type Token struct {
	Type     TokenType
	Pos      int
	Text     string
	Decimal  float64
	Command  Command
	Mode     Mode
	Interval market.Interval
}

var punctuation = map[byte]TokenType{
	';': TokenSemicolon,
	'[': TokenLBracket,
	']': TokenRBracket,
	'(': TokenLParen,
	')': TokenRParen,
	'=': TokenEqual,
	',': TokenComma,
	':': TokenColon,
	'/': TokenSlash,
}

// Tokenize 单趟扫描输入并产出词法单元序列，遇到无法识别的字符立即报错。
func Tokenize(input string) ([]Token, error) {
	var tokens []Token

	pos := 0
	for pos < len(input) {
		ch := input[pos]

		if ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' {
			pos++
			continue
		}

		if kind, ok := punctuation[ch]; ok {
			tokens = append(tokens, Token{Type: kind, Pos: pos, Text: string(ch)})
			pos++
			continue
		}

		if ch == '@' {
			token, next, err := scanInterval(input, pos)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token)
			pos = next
			continue
		}

		if isDigit(ch) {
			token, next, err := scanDecimal(input, pos)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token)
			pos = next
			continue
		}

		if isWordStart(rune(ch)) {
			token, next := scanWord(input, pos)
			tokens = append(tokens, token)
			pos = next
			continue
		}

		return nil, fmt.Errorf("词法错误: 位置 %d 出现无法识别的字符 %q", pos, string(ch))
	}

	tokens = append(tokens, Token{Type: TokenEOF, Pos: len(input)})
	return tokens, nil
}

// scanInterval 解析形如 @4h 的周期字面量。
func scanInterval(input string, start int) (Token, int, error) {
	pos := start + 1
	digits := pos
	for pos < len(input) && isDigit(input[pos]) {
		pos++
	}
	if pos == digits {
		return Token{}, 0, fmt.Errorf("词法错误: 位置 %d 的周期缺少数字", start)
	}
	if pos >= len(input) {
		return Token{}, 0, fmt.Errorf("词法错误: 位置 %d 的周期缺少单位", start)
	}

	unit := market.TimeFrame(input[pos])
	if !unit.Valid() {
		return Token{}, 0, fmt.Errorf("词法错误: 位置 %d 的周期单位 %q 无效", start, string(input[pos]))
	}

	quantity, err := strconv.Atoi(input[digits:pos])
	if err != nil {
		return Token{}, 0, fmt.Errorf("词法错误: 位置 %d 的周期数量无效: %w", start, err)
	}
	pos++

	return Token{
		Type:     TokenInterval,
		Pos:      start,
		Text:     input[start:pos],
		Interval: market.Interval{Quantity: quantity, TimeFrame: unit},
	}, pos, nil
}

// scanDecimal 解析十进制小数，例如 20000 或 0.5。
func scanDecimal(input string, start int) (Token, int, error) {
	pos := start
	for pos < len(input) && isDigit(input[pos]) {
		pos++
	}
	if pos < len(input) && input[pos] == '.' {
		pos++
		for pos < len(input) && isDigit(input[pos]) {
			pos++
		}
	}

	text := input[start:pos]
	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return Token{}, 0, fmt.Errorf("词法错误: 位置 %d 的数字 %q 无效: %w", start, text, err)
	}

	return Token{Type: TokenDecimal, Pos: start, Text: text, Decimal: value}, pos, nil
}

// scanWord 解析保留字或裸标识符。
func scanWord(input string, start int) (Token, int) {
	pos := start
	for pos < len(input) && isWordPart(rune(input[pos])) {
		pos++
	}
	text := input[start:pos]

	token := Token{Pos: start, Text: text}
	switch strings.ToLower(text) {
	case "empty":
		token.Type = TokenEmpty
	case string(CommandBuy):
		token.Type = TokenCommand
		token.Command = CommandBuy
	case string(CommandSell):
		token.Type = TokenCommand
		token.Command = CommandSell
	case string(ModeParallel):
		token.Type = TokenMode
		token.Mode = ModeParallel
	case string(ModeSequent):
		token.Type = TokenMode
		token.Mode = ModeSequent
	case "in":
		token.Type = TokenIn
	case "at":
		token.Type = TokenAt
	case "for":
		token.Type = TokenFor
	case "if":
		token.Type = TokenIf
	case "and":
		token.Type = TokenAnd
	default:
		token.Type = TokenString
	}

	return token, pos
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isWordStart(ch rune) bool {
	return unicode.IsLetter(ch) || ch == '_'
}

func isWordPart(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_'
}
