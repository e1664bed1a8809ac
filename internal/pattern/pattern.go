// Package pattern matches path fragments against capturing URL templates.
//
// A template mixes literal text with placeholders:
//
//	<year:\d{4}>   named capture with an explicit regular expression
//	<slug>         named capture matching one path segment
//	:slug          same as <slug>
//	<:\d+>         anonymous capture, matched but not reported
//
// For example "<year:\d+>/<slug:\w+>" matches "2021/hello" and captures
// {year: "2021", slug: "hello"}.
package pattern

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultExpr is used by placeholders that do not carry an expression.
const defaultExpr = `[^/]+`

var (
	// ErrMissingVariable is returned by Format when a placeholder has no value.
	ErrMissingVariable = errors.New("missing pattern variable")
	// ErrInvalidPattern is returned when a template cannot be compiled.
	ErrInvalidPattern = errors.New("invalid pattern")
)

// placeholderRe strips placeholders when counting static segments.
var placeholderRe = regexp.MustCompile(`<[^>]+>`)

type token struct {
	literal string
	name    string // empty for anonymous captures
	expr    string
	capture bool
}

type compiled struct {
	tokens []token
	re     *regexp.Regexp
	groups []string // regexp group name -> variable name, by capture order
}

// DefaultCacheSize bounds the compiled templates a Matcher keeps.
const DefaultCacheSize = 1024

// Matcher compiles templates on first use and keeps the most recently
// used ones. It is safe for concurrent use.
type Matcher struct {
	compiled *lru.Cache[string, *compiled]
}

// Default is the matcher used when callers do not supply one.
var Default = New()

// New returns an empty Matcher with DefaultCacheSize.
func New() *Matcher {
	return NewSize(DefaultCacheSize)
}

// NewSize returns an empty Matcher keeping at most size compiled
// templates. A size below 1 uses DefaultCacheSize.
func NewSize(size int) *Matcher {
	if size < 1 {
		size = DefaultCacheSize
	}
	c, _ := lru.New[string, *compiled](size) // only fails on size < 1
	return &Matcher{compiled: c}
}

// IsPattern reports whether s contains at least one placeholder.
func IsPattern(s string) bool {
	for _, t := range tokenize(s) {
		if t.capture {
			return true
		}
	}
	return false
}

// SegmentCount returns the number of path segments a template consumes:
// the slashes left once placeholders are stripped, plus one.
func (m *Matcher) SegmentCount(tmpl string) int {
	return strings.Count(placeholderRe.ReplaceAllString(tmpl, ""), "/") + 1
}

// Match tests literal against tmpl. On success the named captures are
// returned; anonymous captures are dropped.
func (m *Matcher) Match(tmpl, literal string) (map[string]string, bool, error) {
	c, err := m.compile(tmpl)
	if err != nil {
		return nil, false, err
	}
	sub := c.re.FindStringSubmatch(literal)
	if sub == nil {
		return nil, false, nil
	}
	vars := make(map[string]string, len(c.groups))
	for i, name := range c.groups {
		if name == "" {
			continue
		}
		vars[name] = sub[c.re.SubexpIndex(groupName(i))]
	}
	return vars, true, nil
}

// Format renders tmpl with vars substituted for its placeholders.
func (m *Matcher) Format(tmpl string, vars map[string]string) (string, error) {
	c, err := m.compile(tmpl)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, t := range c.tokens {
		if !t.capture {
			b.WriteString(t.literal)
			continue
		}
		v, ok := vars[t.name]
		if t.name == "" || !ok {
			return "", fmt.Errorf("%w: %q in %q", ErrMissingVariable, t.name, tmpl)
		}
		b.WriteString(v)
	}
	return b.String(), nil
}

func (m *Matcher) compile(tmpl string) (*compiled, error) {
	if c, ok := m.compiled.Get(tmpl); ok {
		return c, nil
	}

	c := &compiled{tokens: tokenize(tmpl)}
	var b strings.Builder
	b.WriteString("^")
	for _, t := range c.tokens {
		if !t.capture {
			b.WriteString(regexp.QuoteMeta(t.literal))
			continue
		}
		// Generated group names keep indices stable even when the
		// user expression carries its own groups.
		fmt.Fprintf(&b, "(?P<%s>%s)", groupName(len(c.groups)), t.expr)
		c.groups = append(c.groups, t.name)
	}
	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidPattern, tmpl, err)
	}
	c.re = re

	m.compiled.Add(tmpl, c)
	return c, nil
}

func groupName(i int) string {
	return fmt.Sprintf("p%d", i)
}

func tokenize(tmpl string) []token {
	var tokens []token
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			tokens = append(tokens, token{literal: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(tmpl); i++ {
		switch c := tmpl[i]; {
		case c == '<':
			end := strings.IndexByte(tmpl[i:], '>')
			if end < 0 {
				lit.WriteString(tmpl[i:])
				i = len(tmpl)
				continue
			}
			flush()
			body := tmpl[i+1 : i+end]
			t := token{capture: true, expr: defaultExpr}
			if name, expr, ok := strings.Cut(body, ":"); ok {
				t.name = name
				if expr != "" {
					t.expr = expr
				}
			} else {
				t.name = body
			}
			tokens = append(tokens, t)
			i += end
		case c == ':' && i+1 < len(tmpl) && isIdentStart(tmpl[i+1]):
			flush()
			j := i + 1
			for j < len(tmpl) && isIdent(tmpl[j]) {
				j++
			}
			tokens = append(tokens, token{capture: true, name: tmpl[i+1 : j], expr: defaultExpr})
			i = j - 1
		default:
			lit.WriteByte(c)
		}
	}
	flush()
	return tokens
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdent(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
