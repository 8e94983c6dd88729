package tools

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"unicode"
)

// Evaluator limits.
const (
	maxExprLen  = 1000
	maxDepth    = 64
	maxIntBits  = 1 << 14
	maxFuncArgs = 32
)

// Calculate evaluates an arithmetic expression and renders the result
// the way a Python interpreter would print it. Any failure is returned
// as "Error: <message>".
//
// The grammar is closed: numeric literals, + - * / // % **, unary
// signs, parentheses and the functions abs, round, min, max and pow.
// There is no name lookup beyond those functions.
func Calculate(expr string) string {
	v, err := Evaluate(expr)
	if err != nil {
		return "Error: " + err.Error()
	}
	return v.String()
}

// Evaluate parses and evaluates expr.
func Evaluate(expr string) (Number, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Number{}, errors.New("invalid syntax")
	}
	if len(expr) > maxExprLen {
		return Number{}, errors.New("expression too long")
	}
	toks, err := tokenize(expr)
	if err != nil {
		return Number{}, err
	}
	p := &parser{toks: toks}
	v, err := p.expr()
	if err != nil {
		return Number{}, err
	}
	if p.peek().kind != tokEOF {
		return Number{}, errors.New("invalid syntax")
	}
	return v, nil
}

// Number is either an arbitrary-precision integer or a float64.
type Number struct {
	i *big.Int
	f float64
}

func intNum(i *big.Int) Number { return Number{i: i} }
func floatNum(f float64) Number { return Number{f: f} }

// IsInt reports whether n holds an integer.
func (n Number) IsInt() bool { return n.i != nil }

// Float returns n as a float64.
func (n Number) Float() (float64, error) {
	if n.i == nil {
		return n.f, nil
	}
	f, acc := new(big.Float).SetInt(n.i).Float64()
	if math.IsInf(f, 0) && acc != big.Exact {
		return 0, errors.New("int too large to convert to float")
	}
	return f, nil
}

// String formats integers in full and floats in shortest round-trip
// form, always with a decimal point or exponent.
func (n Number) String() string {
	if n.i != nil {
		return n.i.String()
	}
	return formatFloat(n.f)
}

func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	e := strconv.FormatFloat(f, 'e', -1, 64)
	exp, _ := strconv.Atoi(e[strings.IndexByte(e, 'e')+1:])
	if exp < -4 || exp >= 16 {
		return e
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}

// tokens

type tokKind int

const (
	tokEOF tokKind = iota
	tokNum
	tokIdent
	tokOp
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokKind
	text string
}

func tokenize(s string) ([]token, error) {
	var toks []token
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case isDigit(c) || (c == '.' && i+1 < len(s) && isDigit(s[i+1])):
			j := scanNumber(s, i)
			toks = append(toks, token{tokNum, s[i:j]})
			i = j
		case c == '_' || c < 0x80 && unicode.IsLetter(rune(c)):
			j := i
			for j < len(s) && (s[j] == '_' || isDigit(s[j]) || s[j] < 0x80 && unicode.IsLetter(rune(s[j]))) {
				j++
			}
			toks = append(toks, token{tokIdent, s[i:j]})
			i = j
		case c == '*' || c == '/':
			if i+1 < len(s) && s[i+1] == c {
				toks = append(toks, token{tokOp, s[i : i+2]})
				i += 2
			} else {
				toks = append(toks, token{tokOp, s[i : i+1]})
				i++
			}
		case c == '+' || c == '-' || c == '%':
			toks = append(toks, token{tokOp, s[i : i+1]})
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "("})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")"})
			i++
		case c == ',':
			toks = append(toks, token{kind: tokComma, text: ","})
			i++
		default:
			return nil, errors.New("invalid syntax")
		}
	}
	return append(toks, token{kind: tokEOF}), nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// scanNumber returns the end of the numeric literal starting at i.
// Underscores between digits are accepted as in Python literals.
func scanNumber(s string, i int) int {
	j := i
	digits := func() {
		for j < len(s) && (isDigit(s[j]) || s[j] == '_' && j > i && isDigit(s[j-1]) && j+1 < len(s) && isDigit(s[j+1])) {
			j++
		}
	}
	digits()
	if j < len(s) && s[j] == '.' {
		j++
		digits()
	}
	if j < len(s) && (s[j] == 'e' || s[j] == 'E') {
		k := j + 1
		if k < len(s) && (s[k] == '+' || s[k] == '-') {
			k++
		}
		if k < len(s) && isDigit(s[k]) {
			j = k
			digits()
		}
	}
	return j
}

func parseLiteral(text string) (Number, error) {
	clean := strings.ReplaceAll(text, "_", "")
	if !strings.ContainsAny(clean, ".eE") {
		if len(clean) > 1 && clean[0] == '0' && strings.Trim(clean, "0") != "" {
			return Number{}, errors.New("leading zeros in decimal integer literals are not permitted")
		}
		i, ok := new(big.Int).SetString(clean, 10)
		if !ok {
			return Number{}, errors.New("invalid syntax")
		}
		if i.BitLen() > maxIntBits {
			return Number{}, errors.New("integer literal too large")
		}
		return intNum(i), nil
	}
	f, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			// Python reads overflowing literals as inf.
			return floatNum(f), nil
		}
		return Number{}, errors.New("invalid syntax")
	}
	return floatNum(f), nil
}

// parser

type parser struct {
	toks  []token
	pos   int
	depth int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) enter() error {
	p.depth++
	if p.depth > maxDepth {
		return errors.New("expression too deeply nested")
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

// expr := term (('+' | '-') term)*
func (p *parser) expr() (Number, error) {
	if err := p.enter(); err != nil {
		return Number{}, err
	}
	defer p.leave()

	left, err := p.term()
	if err != nil {
		return Number{}, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp || (t.text != "+" && t.text != "-") {
			return left, nil
		}
		p.next()
		right, err := p.term()
		if err != nil {
			return Number{}, err
		}
		if left, err = binary(t.text, left, right); err != nil {
			return Number{}, err
		}
	}
}

// term := unary (('*' | '/' | '//' | '%') unary)*
func (p *parser) term() (Number, error) {
	left, err := p.unary()
	if err != nil {
		return Number{}, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp || (t.text != "*" && t.text != "/" && t.text != "//" && t.text != "%") {
			return left, nil
		}
		p.next()
		right, err := p.unary()
		if err != nil {
			return Number{}, err
		}
		if left, err = binary(t.text, left, right); err != nil {
			return Number{}, err
		}
	}
}

// unary := ('+' | '-') unary | power
func (p *parser) unary() (Number, error) {
	t := p.peek()
	if t.kind == tokOp && (t.text == "+" || t.text == "-") {
		if err := p.enter(); err != nil {
			return Number{}, err
		}
		defer p.leave()
		p.next()
		v, err := p.unary()
		if err != nil {
			return Number{}, err
		}
		if t.text == "-" {
			return negate(v), nil
		}
		return v, nil
	}
	return p.power()
}

// power := atom ('**' unary)?
func (p *parser) power() (Number, error) {
	base, err := p.atom()
	if err != nil {
		return Number{}, err
	}
	t := p.peek()
	if t.kind != tokOp || t.text != "**" {
		return base, nil
	}
	p.next()
	exp, err := p.unary()
	if err != nil {
		return Number{}, err
	}
	return pow(base, exp)
}

// atom := number | name '(' args ')' | '(' expr ')'
func (p *parser) atom() (Number, error) {
	t := p.next()
	switch t.kind {
	case tokNum:
		return parseLiteral(t.text)
	case tokLParen:
		v, err := p.expr()
		if err != nil {
			return Number{}, err
		}
		if p.next().kind != tokRParen {
			return Number{}, errors.New("'(' was never closed")
		}
		return v, nil
	case tokIdent:
		fn, ok := functions[t.text]
		if !ok {
			return Number{}, fmt.Errorf("name '%s' is not defined", t.text)
		}
		if p.peek().kind != tokLParen {
			return Number{}, fmt.Errorf("function '%s' must be called", t.text)
		}
		p.next()
		args, err := p.args()
		if err != nil {
			return Number{}, err
		}
		return fn(args)
	default:
		return Number{}, errors.New("invalid syntax")
	}
}

func (p *parser) args() ([]Number, error) {
	var args []Number
	if p.peek().kind == tokRParen {
		p.next()
		return args, nil
	}
	for {
		v, err := p.expr()
		if err != nil {
			return nil, err
		}
		args = append(args, v)
		if len(args) > maxFuncArgs {
			return nil, errors.New("too many arguments")
		}
		switch p.next().kind {
		case tokComma:
			if p.peek().kind == tokRParen {
				p.next()
				return args, nil
			}
		case tokRParen:
			return args, nil
		default:
			return nil, errors.New("invalid syntax")
		}
	}
}

// arithmetic

func negate(v Number) Number {
	if v.IsInt() {
		return intNum(new(big.Int).Neg(v.i))
	}
	return floatNum(-v.f)
}

func checkInt(i *big.Int) (Number, error) {
	if i.BitLen() > maxIntBits {
		return Number{}, errors.New("result too large")
	}
	return intNum(i), nil
}

func checkFloat(f float64, inputs ...float64) (Number, error) {
	if math.IsInf(f, 0) {
		for _, in := range inputs {
			if math.IsInf(in, 0) {
				return floatNum(f), nil
			}
		}
		return Number{}, errors.New("numerical result out of range")
	}
	return floatNum(f), nil
}

func binary(op string, a, b Number) (Number, error) {
	if a.IsInt() && b.IsInt() && op != "/" {
		x, y := a.i, b.i
		switch op {
		case "+":
			return checkInt(new(big.Int).Add(x, y))
		case "-":
			return checkInt(new(big.Int).Sub(x, y))
		case "*":
			if x.BitLen()+y.BitLen() > maxIntBits+1 {
				return Number{}, errors.New("result too large")
			}
			return checkInt(new(big.Int).Mul(x, y))
		case "//":
			if y.Sign() == 0 {
				return Number{}, errors.New("integer division or modulo by zero")
			}
			q, _ := floorDivMod(x, y)
			return intNum(q), nil
		case "%":
			if y.Sign() == 0 {
				return Number{}, errors.New("integer modulo by zero")
			}
			_, m := floorDivMod(x, y)
			return intNum(m), nil
		}
	}

	x, err := a.Float()
	if err != nil {
		return Number{}, err
	}
	y, err := b.Float()
	if err != nil {
		return Number{}, err
	}
	switch op {
	case "+":
		return checkFloat(x+y, x, y)
	case "-":
		return checkFloat(x-y, x, y)
	case "*":
		return checkFloat(x*y, x, y)
	case "/":
		if y == 0 {
			return Number{}, errors.New("division by zero")
		}
		return checkFloat(x/y, x, y)
	case "//":
		if y == 0 {
			return Number{}, errors.New("float floor division by zero")
		}
		return floatNum(math.Floor(x / y)), nil
	case "%":
		if y == 0 {
			return Number{}, errors.New("float modulo by zero")
		}
		m := math.Mod(x, y)
		if m != 0 && (m < 0) != (y < 0) {
			m += y
		}
		return floatNum(m), nil
	}
	return Number{}, errors.New("invalid syntax")
}

// floorDivMod divides rounding toward negative infinity, so the
// remainder takes the sign of the divisor.
func floorDivMod(x, y *big.Int) (*big.Int, *big.Int) {
	q, m := new(big.Int).QuoRem(x, y, new(big.Int))
	if m.Sign() != 0 && m.Sign() != y.Sign() {
		q.Sub(q, big.NewInt(1))
		m.Add(m, y)
	}
	return q, m
}

func pow(a, b Number) (Number, error) {
	if a.IsInt() && b.IsInt() && b.i.Sign() >= 0 {
		x := a.i
		// 0, 1 and -1 stay small for any exponent.
		if x.CmpAbs(big.NewInt(1)) <= 0 {
			return intNum(new(big.Int).Exp(x, b.i, nil)), nil
		}
		if !b.i.IsInt64() || b.i.Int64() > maxIntBits || int64(x.BitLen()-1)*b.i.Int64() > maxIntBits {
			return Number{}, errors.New("result too large")
		}
		return checkInt(new(big.Int).Exp(x, b.i, nil))
	}

	x, err := a.Float()
	if err != nil {
		return Number{}, err
	}
	y, err := b.Float()
	if err != nil {
		return Number{}, err
	}
	if x == 0 && y < 0 {
		return Number{}, errors.New("0.0 cannot be raised to a negative power")
	}
	if x < 0 && y != math.Trunc(y) {
		return Number{}, errors.New("complex results are not supported")
	}
	return checkFloat(math.Pow(x, y), x, y)
}

// functions

var functions = map[string]func([]Number) (Number, error){
	"abs":   fnAbs,
	"round": fnRound,
	"min":   func(args []Number) (Number, error) { return extreme("min", args, -1) },
	"max":   func(args []Number) (Number, error) { return extreme("max", args, 1) },
	"pow":   fnPow,
}

func fnAbs(args []Number) (Number, error) {
	if len(args) != 1 {
		return Number{}, fmt.Errorf("abs() takes exactly one argument (%d given)", len(args))
	}
	v := args[0]
	if v.IsInt() {
		return intNum(new(big.Int).Abs(v.i)), nil
	}
	return floatNum(math.Abs(v.f)), nil
}

func fnPow(args []Number) (Number, error) {
	if len(args) != 2 {
		return Number{}, fmt.Errorf("pow expected 2 arguments, got %d", len(args))
	}
	return pow(args[0], args[1])
}

func fnRound(args []Number) (Number, error) {
	switch len(args) {
	case 1:
		v := args[0]
		if v.IsInt() {
			return v, nil
		}
		if math.IsInf(v.f, 0) {
			return Number{}, errors.New("cannot convert float infinity to integer")
		}
		if math.IsNaN(v.f) {
			return Number{}, errors.New("cannot convert float NaN to integer")
		}
		i, _ := big.NewFloat(math.RoundToEven(v.f)).Int(nil)
		return intNum(i), nil
	case 2:
		if !args[1].IsInt() {
			return Number{}, errors.New("'float' object cannot be interpreted as an integer")
		}
		if !args[1].i.IsInt64() {
			return Number{}, errors.New("ndigits too large")
		}
		return roundDigits(args[0], args[1].i.Int64())
	default:
		return Number{}, fmt.Errorf("round() takes at most 2 arguments (%d given)", len(args))
	}
}

func roundDigits(v Number, n int64) (Number, error) {
	if v.IsInt() {
		if n >= 0 {
			return v, nil
		}
		if -n > 4*maxIntBits {
			return intNum(new(big.Int)), nil
		}
		// Round half to even at 10^-n.
		unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(-n), nil)
		q, m := floorDivMod(v.i, unit)
		twice := new(big.Int).Lsh(m, 1)
		if c := twice.Cmp(unit); c > 0 || (c == 0 && q.Bit(0) == 1) {
			q.Add(q, big.NewInt(1))
		}
		return intNum(q.Mul(q, unit)), nil
	}

	f := v.f
	if math.IsInf(f, 0) || math.IsNaN(f) || f == 0 {
		return v, nil
	}
	switch {
	case n > 323:
		return v, nil
	case n >= 0:
		// FormatFloat rounds the exact binary value half to even.
		r, err := strconv.ParseFloat(strconv.FormatFloat(f, 'f', int(n), 64), 64)
		if err != nil {
			return Number{}, err
		}
		return floatNum(r), nil
	case n < -308:
		return floatNum(math.Copysign(0, f)), nil
	default:
		unit := math.Pow10(int(-n))
		return floatNum(math.RoundToEven(f/unit) * unit), nil
	}
}

func extreme(name string, args []Number, sign int) (Number, error) {
	if len(args) == 0 {
		return Number{}, fmt.Errorf("%s expected at least 1 argument, got 0", name)
	}
	if len(args) == 1 {
		kind := "float"
		if args[0].IsInt() {
			kind = "int"
		}
		return Number{}, fmt.Errorf("'%s' object is not iterable", kind)
	}
	best := args[0]
	for _, v := range args[1:] {
		c, err := compare(v, best)
		if err != nil {
			return Number{}, err
		}
		if c*sign > 0 {
			best = v
		}
	}
	return best, nil
}

func compare(a, b Number) (int, error) {
	if a.IsInt() && b.IsInt() {
		return a.i.Cmp(b.i), nil
	}
	x, err := a.Float()
	if err != nil {
		return 0, err
	}
	y, err := b.Float()
	if err != nil {
		return 0, err
	}
	switch {
	case x < y:
		return -1, nil
	case x > y:
		return 1, nil
	default:
		return 0, nil
	}
}
