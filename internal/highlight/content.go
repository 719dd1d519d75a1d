package highlight

import (
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

type matrix [3][3]float64

var identity = matrix{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

func (m matrix) mul(n matrix) matrix {
	var out matrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				out[i][j] += m[i][k] * n[k][j]
			}
		}
	}
	return out
}

func translate(tx, ty float64) matrix {
	return matrix{{1, 0, 0}, {0, 1, 0}, {tx, ty, 1}}
}

// textFont decodes the codes a font shows. Composite fonts use two-byte
// codes; everything else one byte per code.
type textFont struct {
	name      string
	codeLen   int
	toUnicode *unicodeMap
	enc       pdf.TextEncoding
	font      pdf.Font
	widths    map[uint32]float64
	dw        float64
}

func loadTextFont(p pdf.Page, key string) *textFont {
	f := p.Font(key)
	tf := &textFont{name: f.BaseFont(), codeLen: 1, font: f}
	if i := strings.Index(tf.name, "+"); i >= 0 {
		tf.name = tf.name[i+1:]
	}
	if tu := f.V.Key("ToUnicode"); tu.Kind() == pdf.Stream {
		if data, err := readStream(tu); err == nil {
			tf.toUnicode = parseUnicodeMap(data)
		}
	}
	if f.V.Key("Subtype").Name() == "Type0" {
		tf.codeLen = 2
		tf.widths, tf.dw = cidWidths(f.V.Key("DescendantFonts").Index(0))
		return tf
	}
	tf.enc = f.Encoder()
	return tf
}

func readStream(v pdf.Value) ([]byte, error) {
	rc := v.Reader()
	defer rc.Close()
	return io.ReadAll(rc)
}

// cidWidths reads a CIDFont's /W array, in both the "c [w1 w2 ...]" and the
// "c1 c2 w" forms, and its /DW default.
func cidWidths(cid pdf.Value) (map[uint32]float64, float64) {
	dw := 1000.0
	if v := cid.Key("DW"); v.Kind() == pdf.Integer || v.Kind() == pdf.Real {
		dw = v.Float64()
	}
	widths := map[uint32]float64{}
	w := cid.Key("W")
	for i := 0; i < w.Len(); {
		first := w.Index(i)
		if i+1 >= w.Len() {
			break
		}
		next := w.Index(i + 1)
		if next.Kind() == pdf.Array {
			c := uint32(first.Int64())
			for j := 0; j < next.Len(); j++ {
				widths[c+uint32(j)] = next.Index(j).Float64()
			}
			i += 2
			continue
		}
		if i+2 >= w.Len() {
			break
		}
		lo, hi, width := uint32(first.Int64()), uint32(next.Int64()), w.Index(i+2).Float64()
		for c := lo; c <= hi && c-lo < 0x10000; c++ {
			widths[c] = width
		}
		i += 3
	}
	return widths, dw
}

func (f *textFont) width(code uint32) float64 {
	if f.codeLen == 1 {
		return f.font.Width(int(code))
	}
	if w, ok := f.widths[code]; ok {
		return w
	}
	return f.dw
}

func (f *textFont) decode(raw []byte) string {
	code := codeValue(raw)
	if f.toUnicode != nil {
		if s, ok := f.toUnicode.lookup(len(raw), code); ok {
			return s
		}
	}
	if f.codeLen == 1 && f.enc != nil {
		return f.enc.Decode(string(raw))
	}
	return "\uFFFD"
}

type textState struct {
	ctm, tm, tlm               matrix
	font                       *textFont
	size, tc, tw, th, tl, rise float64
}

// contentText walks a page's content stream and reports one text run per
// shown code. Fonts are decoded through their ToUnicode CMap, so multi-byte
// codes of composite fonts keep their full value.
func contentText(p pdf.Page) []pdf.Text {
	strm := p.V.Key("Contents")
	if strm.Kind() == pdf.Null {
		return nil
	}
	fonts := map[string]*textFont{}
	g := textState{ctm: identity, tm: identity, tlm: identity, th: 1}
	var stack []textState
	var out []pdf.Text

	show := func(raw string) {
		if g.font == nil {
			return
		}
		n := g.font.codeLen
		for i := 0; i+n <= len(raw); i += n {
			code := []byte(raw[i : i+n])
			w0 := g.font.width(codeValue(code))
			trm := matrix{{g.size * g.th, 0, 0}, {0, g.size, 0}, {0, g.rise, 1}}.mul(g.tm).mul(g.ctm)
			out = append(out, pdf.Text{
				Font:     g.font.name,
				FontSize: trm[0][0],
				X:        trm[2][0],
				Y:        trm[2][1],
				W:        w0 / 1000 * trm[0][0],
				S:        g.font.decode(code),
			})
			tx := w0/1000*g.size + g.tc
			if n == 1 && code[0] == ' ' {
				tx += g.tw
			}
			g.tm = translate(tx*g.th, 0).mul(g.tm)
		}
	}
	nextLine := func() {
		g.tlm = translate(0, -g.tl).mul(g.tlm)
		g.tm = g.tlm
	}

	pdf.Interpret(strm, func(stk *pdf.Stack, op string) {
		args := make([]pdf.Value, stk.Len())
		for i := len(args) - 1; i >= 0; i-- {
			args[i] = stk.Pop()
		}
		num := func(i int) float64 {
			if i < len(args) {
				return args[i].Float64()
			}
			return 0
		}
		switch op {
		case "q":
			stack = append(stack, g)
		case "Q":
			if n := len(stack); n > 0 {
				g, stack = stack[n-1], stack[:n-1]
			}
		case "cm":
			if len(args) == 6 {
				m := matrix{{num(0), num(1), 0}, {num(2), num(3), 0}, {num(4), num(5), 1}}
				g.ctm = m.mul(g.ctm)
			}
		case "BT":
			g.tm, g.tlm = identity, identity
		case "Td", "TD":
			if op == "TD" {
				g.tl = -num(1)
			}
			g.tlm = translate(num(0), num(1)).mul(g.tlm)
			g.tm = g.tlm
		case "Tm":
			if len(args) == 6 {
				g.tlm = matrix{{num(0), num(1), 0}, {num(2), num(3), 0}, {num(4), num(5), 1}}
				g.tm = g.tlm
			}
		case "T*":
			nextLine()
		case "TL":
			g.tl = num(0)
		case "Tc":
			g.tc = num(0)
		case "Tw":
			g.tw = num(0)
		case "Tz":
			g.th = num(0) / 100
		case "Ts":
			g.rise = num(0)
		case "Tf":
			if len(args) != 2 {
				return
			}
			key := args[0].Name()
			f, ok := fonts[key]
			if !ok {
				f = loadTextFont(p, key)
				fonts[key] = f
			}
			g.font, g.size = f, num(1)
		case "Tj":
			if len(args) == 1 {
				show(args[0].RawString())
			}
		case "'":
			if len(args) == 1 {
				nextLine()
				show(args[0].RawString())
			}
		case "\"":
			if len(args) == 3 {
				g.tw, g.tc = num(0), num(1)
				nextLine()
				show(args[2].RawString())
			}
		case "TJ":
			if len(args) != 1 {
				return
			}
			v := args[0]
			for i := 0; i < v.Len(); i++ {
				x := v.Index(i)
				if x.Kind() == pdf.String {
					show(x.RawString())
					continue
				}
				tx := -x.Float64() / 1000 * g.size * g.th
				g.tm = translate(tx, 0).mul(g.tm)
			}
		}
	})
	return out
}

// hasCompositeFont reports whether any font on the page uses multi-byte codes.
func hasCompositeFont(p pdf.Page) bool {
	fonts := p.Resources().Key("Font")
	for _, k := range fonts.Keys() {
		if fonts.Key(k).Key("Subtype").Name() == "Type0" {
			return true
		}
	}
	return false
}
