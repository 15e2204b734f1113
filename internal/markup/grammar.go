package markup

import (
	"strings"
	"unicode/utf8"
)

const (
	lineBreak      = "<br />"
	paragraphBreak = "</p><p>"
)

var htmlEntities = map[byte]string{
	'<':  "&lt;",
	'>':  "&gt;",
	'&':  "&amp;",
	'\'': "&apos;",
	'"':  "&quot;",
}

// match is the outcome of applying one grammar rule at an offset.
type match struct {
	out string
	end int
	ok  bool
}

var noMatch = match{}

// parser is an ordered-choice recursive-descent parser over the blog
// grammar. Rules are tried in order and a failed rule consumes nothing.
// Repetitions are greedy and never give characters back. Decoration results
// are memoised per offset, which bounds the work to O(n^2) for any input.
// A plain parser skips decorations and greentext and runs in linear time.
type parser struct {
	src       string
	safe      bool
	greentext bool
	plain     bool
	decos     map[int]match
}

func newParser(src string, opts Options) *parser {
	return &parser{
		src:       src,
		safe:      opts.Safe,
		greentext: opts.Greentext,
		plain:     opts.MaxInput > 0 && len(src) > opts.MaxInput,
		decos:     make(map[int]match),
	}
}

// paragraphs = (entities | anything)*, wrapped in one outer <p>.
func (p *parser) paragraphs() string {
	var sb strings.Builder
	sb.Grow(len(p.src) + 16)
	sb.WriteString("<p>")
	for pos := 0; pos < len(p.src); {
		m := p.entity(pos)
		if !m.ok {
			m = p.anything(pos)
		}
		sb.WriteString(m.out)
		pos = m.end
	}
	sb.WriteString("</p>")
	return sb.String()
}

// entity = greentext | crlfs | decoration
func (p *parser) entity(pos int) match {
	if p.plain {
		return p.crlfs(pos)
	}
	if p.greentext {
		if m := p.quote(pos); m.ok {
			return m
		}
	}
	if m := p.crlfs(pos); m.ok {
		return m
	}
	return p.decoration(pos)
}

// anything consumes one character, escaping it in safe mode.
func (p *parser) anything(pos int) match {
	if pos >= len(p.src) {
		return noMatch
	}
	if p.safe {
		if esc, ok := htmlEntities[p.src[pos]]; ok {
			return match{out: esc, end: pos + 1, ok: true}
		}
	}
	_, size := utf8.DecodeRuneInString(p.src[pos:])
	return match{out: p.src[pos : pos+size], end: pos + size, ok: true}
}

func (p *parser) crlf(pos int) match {
	if strings.HasPrefix(p.src[pos:], "\r\n") {
		return match{out: lineBreak, end: pos + 2, ok: true}
	}
	return noMatch
}

// crlfs = doublecrlf | crlf
func (p *parser) crlfs(pos int) match {
	first := p.crlf(pos)
	if !first.ok {
		return noMatch
	}
	if second := p.crlf(first.end); second.ok {
		return match{out: paragraphBreak, end: second.end, ok: true}
	}
	return first
}

func (p *parser) notCRLF(pos int) match {
	if p.crlf(pos).ok {
		return noMatch
	}
	return p.anything(pos)
}

// nested = decoration | not_crlf
func (p *parser) nested(pos int) match {
	if m := p.decoration(pos); m.ok {
		return m
	}
	return p.notCRLF(pos)
}

// delimiter reports the offset just past a delimiter at pos, or -1.
type delimiter func(src string, pos int) int

func doubleStar(src string, pos int) int {
	if strings.HasPrefix(src[pos:], "**") {
		return pos + 2
	}
	return -1
}

func singleStar(src string, pos int) int {
	if pos < len(src) && src[pos] == '*' && (pos+1 >= len(src) || src[pos+1] != '*') {
		return pos + 1
	}
	return -1
}

func underscore(src string, pos int) int {
	if pos < len(src) && src[pos] == '_' {
		return pos + 1
	}
	return -1
}

// decoration = bold | italics | underline
func (p *parser) decoration(pos int) match {
	if m, ok := p.decos[pos]; ok {
		return m
	}
	m := p.span(pos, doubleStar, "b")
	if !m.ok {
		m = p.span(pos, singleStar, "i")
	}
	if !m.ok {
		m = p.span(pos, underscore, "u")
	}
	p.decos[pos] = m
	return m
}

// span = delim (~delim nested)+ delim
func (p *parser) span(pos int, delim delimiter, tag string) match {
	start := delim(p.src, pos)
	if start < 0 {
		return noMatch
	}

	var body strings.Builder
	cur := start
	for delim(p.src, cur) < 0 {
		m := p.nested(cur)
		if !m.ok {
			break
		}
		body.WriteString(m.out)
		cur = m.end
	}
	if cur == start {
		return noMatch
	}

	end := delim(p.src, cur)
	if end < 0 {
		return noMatch
	}
	return match{
		out: "<" + tag + ">" + body.String() + "</" + tag + ">",
		end: end,
		ok:  true,
	}
}

// quote = crlfs '>' nested+ crlfs
//
// A greentext line needs a line break on both sides; the leading '>' is
// always rendered as an entity.
func (p *parser) quote(pos int) match {
	head := p.crlfs(pos)
	if !head.ok || head.end >= len(p.src) || p.src[head.end] != '>' {
		return noMatch
	}

	var body strings.Builder
	cur := head.end + 1
	for {
		m := p.nested(cur)
		if !m.ok {
			break
		}
		body.WriteString(m.out)
		cur = m.end
	}
	if cur == head.end+1 {
		return noMatch
	}

	tail := p.crlfs(cur)
	if !tail.ok {
		return noMatch
	}
	return match{
		out: head.out + `<span class="quote">&gt;` + body.String() + "</span>" + tail.out,
		end: tail.end,
		ok:  true,
	}
}
