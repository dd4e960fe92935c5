package geometry

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

type operandKind int

const (
	kindNumber operandKind = iota
	kindName
	kindString
	kindArray
	kindDict
	kindOther
)

// operand is a parsed content stream operand. Only the fields relevant to
// its kind are set.
type operand struct {
	kind  operandKind
	num   float64
	name  string
	str   []byte
	items []operand
}

// operation is one operator with its operands and the exact source bytes
type operation struct {
	op       string
	operands []operand
	raw      []byte
}

type lexer struct {
	src []byte
	pos int
}

func isWhite(c byte) bool {
	return c == 0 || c == '\t' || c == '\n' || c == '\f' || c == '\r' || c == ' '
}

func isDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

// parseContent splits a decoded content stream into operations. Operands
// left over at the end of the stream are discarded.
func parseContent(src []byte) ([]operation, error) {
	l := &lexer{src: src}
	var (
		ops      []operation
		operands []operand
		start    = -1
	)
	for {
		l.skipSpace()
		tokStart := l.pos
		opnd, opName, err := l.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if start < 0 {
			start = tokStart
		}
		if opName == "" {
			operands = append(operands, opnd)
			continue
		}
		if opName == "BI" {
			if err := l.inlineImage(); err != nil {
				return nil, err
			}
		}
		ops = append(ops, operation{op: opName, operands: operands, raw: src[start:l.pos]})
		operands = nil
		start = -1
	}
	return ops, nil
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if isWhite(c) {
			l.pos++
			continue
		}
		if c == '%' {
			for l.pos < len(l.src) && l.src[l.pos] != '\n' && l.src[l.pos] != '\r' {
				l.pos++
			}
			continue
		}
		return
	}
}

func (l *lexer) peek(offset int) byte {
	if l.pos+offset < len(l.src) {
		return l.src[l.pos+offset]
	}
	return 0
}

// next reads one operand, or an operator when the returned name is non-empty
func (l *lexer) next() (operand, string, error) {
	l.skipSpace()
	if l.pos >= len(l.src) {
		return operand{}, "", io.EOF
	}

	switch c := l.src[l.pos]; c {
	case '(':
		s, err := l.literalString()
		return operand{kind: kindString, str: s}, "", err
	case '<':
		if l.peek(1) == '<' {
			l.pos += 2
			d, err := l.dict()
			return d, "", err
		}
		s, err := l.hexString()
		return operand{kind: kindString, str: s}, "", err
	case '[':
		l.pos++
		a, err := l.array()
		return a, "", err
	case '/':
		return operand{kind: kindName, name: l.name()}, "", nil
	case ')', '>', ']', '{', '}':
		// stray delimiters are passed through as single-character operators
		l.pos++
		return operand{}, string(c), nil
	}

	tok := l.regular()
	if tok == "" {
		return operand{}, "", fmt.Errorf("unexpected byte 0x%02x at offset %d", l.src[l.pos], l.pos)
	}
	if n, ok := parseNumber(tok); ok {
		return operand{kind: kindNumber, num: n}, "", nil
	}
	switch tok {
	case "true", "false", "null":
		return operand{kind: kindOther, name: tok}, "", nil
	}
	return operand{}, tok, nil
}

func (l *lexer) regular() string {
	start := l.pos
	for l.pos < len(l.src) && !isWhite(l.src[l.pos]) && !isDelim(l.src[l.pos]) {
		l.pos++
	}
	return string(l.src[start:l.pos])
}

func parseNumber(tok string) (float64, bool) {
	switch c := tok[0]; {
	case c >= '0' && c <= '9', c == '+', c == '-', c == '.':
	default:
		return 0, false
	}
	n, err := strconv.ParseFloat(tok, 64)
	if err != nil || math.IsInf(n, 0) || math.IsNaN(n) {
		return 0, false
	}
	return n, true
}

func (l *lexer) name() string {
	l.pos++ // '/'
	raw := l.regular()
	if !strings.Contains(raw, "#") {
		return raw
	}
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] == '#' && i+2 < len(raw) {
			if v, err := strconv.ParseUint(raw[i+1:i+3], 16, 8); err == nil {
				sb.WriteByte(byte(v))
				i += 2
				continue
			}
		}
		sb.WriteByte(raw[i])
	}
	return sb.String()
}

func (l *lexer) literalString() ([]byte, error) {
	l.pos++ // '('
	var out []byte
	depth := 1
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		l.pos++
		switch c {
		case '\\':
			if l.pos >= len(l.src) {
				return nil, errors.New("unterminated string escape")
			}
			e := l.src[l.pos]
			l.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r':
				if l.peek(0) == '\n' {
					l.pos++
				}
			case '\n':
			case '0', '1', '2', '3', '4', '5', '6', '7':
				v := int(e - '0')
				for i := 0; i < 2 && l.pos < len(l.src) && l.src[l.pos] >= '0' && l.src[l.pos] <= '7'; i++ {
					v = v*8 + int(l.src[l.pos]-'0')
					l.pos++
				}
				out = append(out, byte(v))
			default:
				out = append(out, e)
			}
		case '(':
			depth++
			out = append(out, c)
		case ')':
			depth--
			if depth == 0 {
				return out, nil
			}
			out = append(out, c)
		default:
			out = append(out, c)
		}
	}
	return nil, errors.New("unterminated literal string")
}

func (l *lexer) hexString() ([]byte, error) {
	l.pos++ // '<'
	var digits []byte
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		l.pos++
		if c == '>' {
			if len(digits)%2 == 1 {
				digits = append(digits, '0')
			}
			out := make([]byte, len(digits)/2)
			for i := range out {
				out[i] = unhex(digits[2*i])<<4 | unhex(digits[2*i+1])
			}
			return out, nil
		}
		if isWhite(c) {
			continue
		}
		if unhex(c) == 0xff {
			return nil, fmt.Errorf("invalid hex digit %q in string", c)
		}
		digits = append(digits, c)
	}
	return nil, errors.New("unterminated hex string")
}

func unhex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	}
	return 0xff
}

func (l *lexer) array() (operand, error) {
	arr := operand{kind: kindArray}
	for {
		l.skipSpace()
		if l.pos >= len(l.src) {
			return arr, errors.New("unterminated array")
		}
		if l.src[l.pos] == ']' {
			l.pos++
			return arr, nil
		}
		item, op, err := l.next()
		if err != nil {
			return arr, err
		}
		if op != "" {
			item = operand{kind: kindOther, name: op}
		}
		arr.items = append(arr.items, item)
	}
}

// dict reads key/value pairs after "<<" into a flat item list
func (l *lexer) dict() (operand, error) {
	d := operand{kind: kindDict}
	for {
		l.skipSpace()
		if l.pos >= len(l.src) {
			return d, errors.New("unterminated dictionary")
		}
		if l.src[l.pos] == '>' && l.peek(1) == '>' {
			l.pos += 2
			return d, nil
		}
		item, op, err := l.next()
		if err != nil {
			return d, err
		}
		if op != "" {
			item = operand{kind: kindOther, name: op}
		}
		d.items = append(d.items, item)
	}
}

// inlineImage skips an inline image body. The lexer is positioned after BI.
func (l *lexer) inlineImage() error {
	for {
		_, op, err := l.next()
		if err != nil {
			return fmt.Errorf("unterminated inline image: %w", err)
		}
		if op == "ID" {
			break
		}
	}
	if l.pos < len(l.src) && isWhite(l.src[l.pos]) {
		l.pos++
	}
	for i := l.pos; i+1 < len(l.src); i++ {
		if l.src[i] != 'E' || l.src[i+1] != 'I' {
			continue
		}
		before := i == l.pos || isWhite(l.src[i-1])
		after := i+2 == len(l.src) || isWhite(l.src[i+2]) || isDelim(l.src[i+2])
		if before && after {
			l.pos = i + 2
			return nil
		}
	}
	return errors.New("inline image without EI")
}

// formatNumber renders a number compactly with at most four decimals
func formatNumber(f float64) string {
	f = math.Round(f*10000) / 10000
	if f == 0 {
		return "0"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
