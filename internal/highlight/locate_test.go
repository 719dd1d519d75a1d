package highlight

import (
	"testing"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runs of single-character texts as a reader reports them for a font
// without widths: every glyph of a string shares the string's origin
func textRun(s string, x, y, size float64) []pdf.Text {
	var out []pdf.Text
	for _, r := range s {
		out = append(out, pdf.Text{FontSize: size, X: x, Y: y, S: string(r)})
	}
	return out
}

func TestLayoutGlyphs_SpreadsZeroWidthGlyphs(t *testing.T) {
	glyphs := layoutGlyphs(textRun("Hi!", 10, 700, 10))
	require.Len(t, glyphs, 3)
	assert.InDelta(t, 10, glyphs[0].x0, 0.001)
	assert.InDelta(t, 10+6.7, glyphs[1].x0, 0.001)
	assert.InDelta(t, 10+6.7+2.8, glyphs[2].x0, 0.001)
	assert.Greater(t, glyphs[2].x1, glyphs[2].x0)
}

func TestLayoutGlyphs_KeepsMeasuredPositions(t *testing.T) {
	glyphs := layoutGlyphs([]pdf.Text{
		{FontSize: 10, X: 10, Y: 700, W: 5, S: "a"},
		{FontSize: 10, X: 15, Y: 700, W: 5, S: "b"},
		{FontSize: 10, X: 15, Y: 700, W: 0, S: "\n"},
	})
	require.Len(t, glyphs, 2)
	assert.InDelta(t, 15, glyphs[1].x0, 0.001)
	assert.InDelta(t, 20, glyphs[1].x1, 0.001)
}

func TestPageText_Separators(t *testing.T) {
	var texts []pdf.Text
	texts = append(texts, textRun("Skills", 72, 700, 12)...)
	texts = append(texts, textRun("Go", 200, 700, 12)...)
	texts = append(texts, textRun("SQL", 72, 680, 12)...)

	pt := newPageText(layoutGlyphs(texts))
	assert.Equal(t, "Skills Go\nSQL", string(pt.runes))
	assert.Equal(t, -1, pt.owner[6])
	assert.Equal(t, 0, pt.glyphs[0].line)
	assert.Equal(t, 1, pt.glyphs[len(pt.glyphs)-1].line)
}

func TestLocate(t *testing.T) {
	var texts []pdf.Text
	texts = append(texts, textRun("led a team of five", 72, 700, 10)...)
	texts = append(texts, textRun("engineers; led a team", 72, 688, 10)...)
	pt := newPageText(layoutGlyphs(texts))

	t.Run("every occurrence", func(t *testing.T) {
		matches := pt.locate("led a team")
		require.Len(t, matches, 2)
		assert.Len(t, matches[0], 1)
		assert.Greater(t, matches[0][0].Y0, matches[1][0].Y0)
	})

	t.Run("exact before collapsed", func(t *testing.T) {
		matches := pt.locate("five\nengineers")
		require.Len(t, matches, 1)
		assert.Len(t, matches[0], 2)
	})

	t.Run("collapsed fallback", func(t *testing.T) {
		matches := pt.locate("five   engineers")
		require.Len(t, matches, 1)
		assert.Len(t, matches[0], 2)
	})

	t.Run("no match", func(t *testing.T) {
		assert.Empty(t, pt.locate("Kubernetes"))
		assert.Empty(t, pt.locate("   "))
	})
}

func TestMatchBoundsAndQuad(t *testing.T) {
	m := Match{{X0: 10, Y0: 20, X1: 50, Y1: 30}, {X0: 5, Y0: 8, X1: 40, Y1: 18}}
	assert.Equal(t, Region{X0: 5, Y0: 8, X1: 50, Y1: 30}, m.bounds())
	assert.Equal(t, types.NewNumberArray(10, 30, 50, 30, 10, 20, 50, 20), m[0].quad().Array())
}
