package highlight

import (
	"math"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Region is an axis-aligned box in PDF user space (origin bottom-left).
type Region struct {
	X0, Y0, X1, Y1 float64
}

func (r Region) union(o Region) Region {
	return Region{
		X0: math.Min(r.X0, o.X0),
		Y0: math.Min(r.Y0, o.Y0),
		X1: math.Max(r.X1, o.X1),
		Y1: math.Max(r.Y1, o.Y1),
	}
}

// quad returns the region in QuadPoints order: upper-left, upper-right, lower-left, lower-right.
func (r Region) quad() types.QuadLiteral {
	return types.QuadLiteral{
		P1: types.Point{X: r.X0, Y: r.Y1},
		P2: types.Point{X: r.X1, Y: r.Y1},
		P3: types.Point{X: r.X0, Y: r.Y0},
		P4: types.Point{X: r.X1, Y: r.Y0},
	}
}

// Match is one occurrence of a searched text, one region per text line it spans.
type Match []Region

func (m Match) bounds() Region {
	b := m[0]
	for _, r := range m[1:] {
		b = b.union(r)
	}
	return b
}

const (
	descent = 0.22
	ascent  = 0.8
)

type glyph struct {
	s      string
	x0, x1 float64
	y      float64
	size   float64
	line   int
}

// pageText is the searchable text of a page. Every rune keeps the index of
// the glyph that produced it, or -1 for separators inferred from layout.
type pageText struct {
	glyphs []glyph
	runes  []rune
	owner  []int
}

func (pt *pageText) push(r rune, g int) {
	pt.runes = append(pt.runes, r)
	pt.owner = append(pt.owner, g)
}

// advance estimates the width of s in a font without /Widths, in units of size.
func advance(s string, size float64) float64 {
	var w float64
	for _, r := range s {
		switch {
		case strings.ContainsRune(" .,:;'!|iljfIt()[]", r):
			w += 0.28
		case strings.ContainsRune("mwMW", r):
			w += 0.83
		case unicode.IsUpper(r):
			w += 0.67
		case unicode.IsDigit(r):
			w += 0.556
		default:
			w += 0.5
		}
	}
	return w * size
}

// layoutGlyphs turns content-stream text runs into positioned glyphs. When a
// font carries no widths the reader reports every glyph of a string at the
// same origin, so those positions are spread out using estimated advances.
func layoutGlyphs(texts []pdf.Text) []glyph {
	var out []glyph
	var prev pdf.Text
	for _, t := range texts {
		if t.S == "" || t.S == "\n" {
			continue
		}
		size := math.Abs(t.FontSize)
		if size == 0 {
			size = 1
		}
		x := t.X
		if len(out) > 0 {
			last := out[len(out)-1]
			dx := t.X - prev.X
			if prev.W == 0 && math.Abs(t.Y-prev.Y) < 0.01 && dx > -0.01 && dx < 0.2*size {
				x = last.x0 + advance(last.s, last.size) + dx
			}
		}
		w := t.W
		if w <= 0 {
			w = advance(t.S, size)
		}
		out = append(out, glyph{s: t.S, x0: x, x1: x + w, y: t.Y, size: size})
		prev = t
	}
	return out
}

func newPageText(glyphs []glyph) *pageText {
	pt := &pageText{glyphs: glyphs}
	line := 0
	for i := range pt.glyphs {
		g := &pt.glyphs[i]
		if i > 0 {
			prev := pt.glyphs[i-1]
			tol := 0.3 * math.Max(g.size, prev.size)
			switch {
			case math.Abs(g.y-prev.y) > tol, g.x0 < prev.x0-0.01*g.size:
				line++
				pt.push('\n', -1)
			case g.x0-prev.x1 > 0.2*g.size && !endsSpace(prev.s) && !startsSpace(g.s):
				pt.push(' ', -1)
			}
		}
		g.line = line
		for _, r := range g.s {
			pt.push(r, i)
		}
	}
	return pt
}

// readPageText extracts a page's glyphs. Pages with composite fonts are read
// by contentText, which keeps two-byte codes whole when mapping them through
// ToUnicode.
func readPageText(p pdf.Page) *pageText {
	if hasCompositeFont(p) {
		return newPageText(layoutGlyphs(contentText(p)))
	}
	return newPageText(layoutGlyphs(p.Content().Text))
}

// collapsed returns the page text with whitespace runs folded into one space.
func (pt *pageText) collapsed() ([]rune, []int) {
	runes := make([]rune, 0, len(pt.runes))
	owner := make([]int, 0, len(pt.owner))
	space := false
	for i, r := range pt.runes {
		if unicode.IsSpace(r) {
			if !space {
				runes = append(runes, ' ')
				owner = append(owner, pt.owner[i])
			}
			space = true
			continue
		}
		space = false
		runes = append(runes, r)
		owner = append(owner, pt.owner[i])
	}
	return runes, owner
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// locate finds every occurrence of text on the page. The exact text is
// tried first; only when it has no hit is the whitespace-collapsed form used.
func (pt *pageText) locate(text string) []Match {
	if hits := pt.find([]rune(text), pt.runes, pt.owner); len(hits) > 0 {
		return hits
	}
	folded := collapseSpace(text)
	if folded == "" {
		return nil
	}
	runes, owner := pt.collapsed()
	return pt.find([]rune(folded), runes, owner)
}

func (pt *pageText) find(needle, hay []rune, owner []int) []Match {
	if len(needle) == 0 {
		return nil
	}
	var out []Match
	for i := 0; i+len(needle) <= len(hay); {
		if !equalRunes(hay[i:i+len(needle)], needle) {
			i++
			continue
		}
		if m := pt.regions(owner[i : i+len(needle)]); len(m) > 0 {
			out = append(out, m)
		}
		i += len(needle)
	}
	return out
}

// regions groups the glyphs behind a hit by line and boxes each group.
func (pt *pageText) regions(owner []int) Match {
	var m Match
	line := -1
	for _, gi := range owner {
		if gi < 0 {
			continue
		}
		g := pt.glyphs[gi]
		box := Region{
			X0: g.x0,
			Y0: g.y - descent*g.size,
			X1: g.x1,
			Y1: g.y + ascent*g.size,
		}
		if g.line == line && len(m) > 0 {
			m[len(m)-1] = m[len(m)-1].union(box)
			continue
		}
		line = g.line
		m = append(m, box)
	}
	return m
}

func equalRunes(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func endsSpace(s string) bool {
	return strings.TrimRightFunc(s, unicode.IsSpace) != s
}

func startsSpace(s string) bool {
	return strings.TrimLeftFunc(s, unicode.IsSpace) != s
}
