package regexir

import "fmt"

// Parse compiles a regex pattern in a small documented flavor — literals,
// `.` (any byte), character classes (`[abc]`, `[a-z]`, `[^a-z]`), the
// quantifiers `*`, `+`, `?`, `{n}`, `{n,}`, `{n,m}`, grouping `(...)`, and
// alternation `|` — into a regexir tree, returning the Builder that owns it
// and the root Id.
//
// This parser handles the `regex` grammar surface only. Lark and
// JSON-Schema *text* grammars stay out of scope (see spec.md §1): a host
// that wants those surfaces is expected to hand this package an
// already-compiled CFG (internal/grammar.CFG) instead of source text.
func Parse(pattern string) (*Builder, Id, error) {
	p := &parser{src: pattern, b: NewBuilder()}
	root, err := p.parseAlt()
	if err != nil {
		return nil, 0, err
	}
	if p.pos != len(p.src) {
		return nil, 0, fmt.Errorf("regexir: unexpected %q at offset %d", p.src[p.pos], p.pos)
	}
	return p.b, root, nil
}

type parser struct {
	src string
	pos int
	b   *Builder
}

func (p *parser) peek() (byte, bool) {
	if p.pos >= len(p.src) {
		return 0, false
	}
	return p.src[p.pos], true
}

func (p *parser) eat(b byte) bool {
	if c, ok := p.peek(); ok && c == b {
		p.pos++
		return true
	}
	return false
}

// parseAlt := concat ('|' concat)*
func (p *parser) parseAlt() (Id, error) {
	first, err := p.parseConcat()
	if err != nil {
		return 0, err
	}
	opts := []Id{first}
	for p.eat('|') {
		next, err := p.parseConcat()
		if err != nil {
			return 0, err
		}
		opts = append(opts, next)
	}
	return p.b.Or(opts), nil
}

// parseConcat := repeat*
func (p *parser) parseConcat() (Id, error) {
	var parts []Id
	for {
		c, ok := p.peek()
		if !ok || c == '|' || c == ')' {
			break
		}
		part, err := p.parseRepeat()
		if err != nil {
			return 0, err
		}
		parts = append(parts, part)
	}
	return p.b.Concat(parts), nil
}

// parseRepeat := atom ('*' | '+' | '?' | '{' n (',' m?)? '}')?
func (p *parser) parseRepeat() (Id, error) {
	atom, err := p.parseAtom()
	if err != nil {
		return 0, err
	}
	c, ok := p.peek()
	if !ok {
		return atom, nil
	}
	switch c {
	case '*':
		p.pos++
		return p.b.Star(atom), nil
	case '+':
		p.pos++
		return p.b.Concat([]Id{atom, p.b.Star(atom)}), nil
	case '?':
		p.pos++
		return p.b.Or([]Id{atom, p.b.Empty()}), nil
	case '{':
		return p.parseBraceRepeat(atom)
	}
	return atom, nil
}

func (p *parser) parseBraceRepeat(atom Id) (Id, error) {
	start := p.pos
	p.pos++ // consume '{'
	n, ok := p.parseInt()
	if !ok {
		p.pos = start
		return atom, nil
	}
	m := n
	unbounded := false
	if p.eat(',') {
		if m2, ok := p.parseInt(); ok {
			m = m2
		} else {
			unbounded = true
		}
	}
	if !p.eat('}') {
		return 0, fmt.Errorf("regexir: unterminated {%d,...} repeat", n)
	}

	var parts []Id
	for i := 0; i < n; i++ {
		parts = append(parts, atom)
	}
	if unbounded {
		parts = append(parts, p.b.Star(atom))
	} else {
		for i := n; i < m; i++ {
			parts = append(parts, p.b.Or([]Id{atom, p.b.Empty()}))
		}
	}
	return p.b.Concat(parts), nil
}

func (p *parser) parseInt() (int, bool) {
	start := p.pos
	for {
		c, ok := p.peek()
		if !ok || c < '0' || c > '9' {
			break
		}
		p.pos++
	}
	if p.pos == start {
		return 0, false
	}
	n := 0
	for _, c := range []byte(p.src[start:p.pos]) {
		n = n*10 + int(c-'0')
	}
	return n, true
}

// parseAtom := '(' alt ')' | '[' class ']' | '.' | escape | literal-byte
func (p *parser) parseAtom() (Id, error) {
	c, ok := p.peek()
	if !ok {
		return 0, fmt.Errorf("regexir: unexpected end of pattern")
	}
	switch c {
	case '(':
		p.pos++
		inner, err := p.parseAlt()
		if err != nil {
			return 0, err
		}
		if !p.eat(')') {
			return 0, fmt.Errorf("regexir: unterminated group")
		}
		return inner, nil
	case '[':
		return p.parseClass()
	case '.':
		p.pos++
		return p.b.ByteRange(0, 0xff), nil
	case '\\':
		p.pos++
		return p.parseEscape()
	default:
		p.pos++
		return p.b.Literal(string(c)), nil
	}
}

func (p *parser) parseEscape() (Id, error) {
	c, ok := p.peek()
	if !ok {
		return 0, fmt.Errorf("regexir: dangling escape at end of pattern")
	}
	p.pos++
	switch c {
	case 'd':
		return p.b.ByteRange('0', '9'), nil
	case 's':
		return p.b.Or([]Id{p.b.ByteRange(' ', ' '), p.b.ByteRange('\t', '\t'), p.b.ByteRange('\n', '\n'), p.b.ByteRange('\r', '\r')}), nil
	case 'w':
		return p.b.Or([]Id{p.b.ByteRange('a', 'z'), p.b.ByteRange('A', 'Z'), p.b.ByteRange('0', '9'), p.b.Literal("_")}), nil
	default:
		return p.b.Literal(string(c)), nil
	}
}

// parseClass := '[' '^'? classItem+ ']'
func (p *parser) parseClass() (Id, error) {
	p.pos++ // consume '['
	negate := p.eat('^')

	var ranges []Id
	for {
		c, ok := p.peek()
		if !ok {
			return 0, fmt.Errorf("regexir: unterminated character class")
		}
		if c == ']' {
			p.pos++
			break
		}
		lo := c
		p.pos++
		if lo == '\\' {
			e, ok := p.peek()
			if !ok {
				return 0, fmt.Errorf("regexir: dangling escape in class")
			}
			lo = e
			p.pos++
		}
		hi := lo
		if c2, ok := p.peek(); ok && c2 == '-' {
			// lookahead for a real range vs. a literal trailing '-'
			if p.pos+1 < len(p.src) && p.src[p.pos+1] != ']' {
				p.pos++ // consume '-'
				hi = p.src[p.pos]
				p.pos++
			}
		}
		ranges = append(ranges, p.b.ByteRange(lo, hi))
	}

	if !negate {
		return p.b.Or(ranges), nil
	}
	return p.negateRanges(ranges), nil
}

// negateRanges builds a class matching any byte not covered by ranges, by
// walking 0..255 and emitting ByteRange spans for the gaps. Good enough for
// the byte alphabet's small size (256 possibilities).
func (p *parser) negateRanges(ranges []Id) Id {
	covered := make([]bool, 256)
	for _, r := range ranges {
		n := p.b.Node(r)
		for v := int(n.Lo); v <= int(n.Hi); v++ {
			covered[v] = true
		}
	}
	var out []Id
	start := -1
	for v := 0; v < 256; v++ {
		if !covered[v] {
			if start == -1 {
				start = v
			}
		} else if start != -1 {
			out = append(out, p.b.ByteRange(byte(start), byte(v-1)))
			start = -1
		}
	}
	if start != -1 {
		out = append(out, p.b.ByteRange(byte(start), 255))
	}
	if len(out) == 0 {
		// negated class with no remaining bytes: matches nothing
		return p.b.Or(nil)
	}
	return p.b.Or(out)
}
