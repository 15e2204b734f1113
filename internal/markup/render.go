// Package markup renders the small blog markup used for comic commentary,
// descriptions, and news posts into HTML.
//
// The markup knows bold (**x**), italics (*x*), underline (_x_), line breaks
// (CRLF), paragraph breaks (CRLF CRLF), and greentext quote lines. Anything
// that cannot be completed as markup is emitted literally; rendering never
// fails. Safe mode additionally escapes < > & ' " everywhere and is the only
// mode suitable for untrusted input.
package markup

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// Options controls a Renderer.
type Options struct {
	// Safe escapes HTML metacharacters in the input.
	Safe bool
	// Greentext turns lines starting with '>' into quote spans.
	Greentext bool
	// Sanitize filters trusted output through the markup's tag whitelist.
	// Safe output never needs it.
	Sanitize bool
	// MaxInput is the longest input, in bytes, that gets bold, italics,
	// underline, and greentext. Longer input still gets line and paragraph
	// breaks and escaping, in linear time. Zero means no limit.
	MaxInput int
}

// DefaultMaxInput bounds decoration parsing of untrusted text. Decoration
// parsing is quadratic in the worst case.
const DefaultMaxInput = 64 << 10

// Renderer converts markup to HTML. It holds no per-call state and is safe
// for concurrent use.
type Renderer struct {
	opts   Options
	policy *bluemonday.Policy
}

// New creates a Renderer with the given options.
func New(opts Options) *Renderer {
	r := &Renderer{opts: opts}
	if opts.Sanitize && !opts.Safe {
		r.policy = Policy()
	}
	return r
}

// Options returns the renderer's configuration.
func (r *Renderer) Options() Options {
	return r.opts
}

// Render converts text to an HTML fragment wrapped in a single <p>.
func (r *Renderer) Render(text string) string {
	out := newParser(text, r.opts).paragraphs()
	if r.policy != nil {
		out = r.policy.Sanitize(out)
	}
	return out
}

var (
	trusted = New(Options{Greentext: true})
	safe    = New(Options{Safe: true, MaxInput: DefaultMaxInput})
)

// Render is the two-mode entry point used by page handlers. Greentext is
// enabled for trusted text only.
func Render(text string, safeMode bool) string {
	if safeMode {
		return safe.Render(text)
	}
	return trusted.Render(text)
}

// Paragraphs renders trusted text; HTML in the input passes through.
func Paragraphs(text string) string {
	return trusted.Render(text)
}

// SafeParagraphs renders untrusted text with HTML metacharacters escaped.
func SafeParagraphs(text string) string {
	return safe.Render(text)
}

// Policy returns a bluemonday policy admitting exactly the elements the
// renderer produces.
func Policy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("p", "br", "b", "i", "u")
	p.AllowAttrs("class").Matching(regexp.MustCompile(`^quote$`)).OnElements("span")
	return p
}

// Excerpt returns the first paragraph of text as a single line, cut to at
// most n runes. Markup characters are left as written.
func Excerpt(text string, n int) string {
	first, _, _ := strings.Cut(text, "\r\n\r\n")
	first = strings.Join(strings.Fields(first), " ")
	if n <= 0 || utf8.RuneCountInString(first) <= n {
		return first
	}
	runes := []rune(first)
	if n == 1 {
		return "…"
	}
	return strings.TrimSpace(string(runes[:n-1])) + "…"
}
