package highlight

import (
	"bytes"
	"encoding/hex"
	"unicode/utf16"
)

// unicodeMap is a parsed ToUnicode CMap. Range destinations are offset as a
// whole UTF-16 unit, so a range like <0000> <FFFF> <0000> maps every
// two-byte code to the code point of the same value.
type unicodeMap struct {
	chars  [4]map[uint32]string
	ranges [4][]bfRange
}

type bfRange struct {
	lo, hi uint32
	base   []byte   // UTF-16BE destination of lo
	each   []string // array form, one destination per code
}

// lookup returns the text of a code n bytes long.
func (m *unicodeMap) lookup(n int, code uint32) (string, bool) {
	if n < 1 || n > 4 {
		return "", false
	}
	if s, ok := m.chars[n-1][code]; ok {
		return s, true
	}
	for _, r := range m.ranges[n-1] {
		if code < r.lo || code > r.hi {
			continue
		}
		off := code - r.lo
		if r.each != nil {
			if int(off) < len(r.each) {
				return r.each[off], true
			}
			return "", false
		}
		return utf16Text(offsetUnit(r.base, off)), true
	}
	return "", false
}

// offsetUnit adds off to the last UTF-16 unit of a big-endian destination.
func offsetUnit(base []byte, off uint32) []byte {
	b := append([]byte(nil), base...)
	switch n := len(b); {
	case n >= 2:
		u := uint32(b[n-2])<<8 | uint32(b[n-1])
		u += off
		b[n-2], b[n-1] = byte(u>>8), byte(u)
	case n == 1:
		b[0] += byte(off)
	}
	return b
}

func utf16Text(b []byte) string {
	if len(b)%2 == 1 {
		b = append([]byte{0}, b...)
	}
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
	}
	return string(utf16.Decode(units))
}

func codeValue(b []byte) uint32 {
	var v uint32
	for _, c := range b {
		v = v<<8 | uint32(c)
	}
	return v
}

type cmapTokenKind int

const (
	cmapString cmapTokenKind = iota
	cmapArray
	cmapWord
)

type cmapToken struct {
	kind  cmapTokenKind
	data  []byte
	elems [][]byte
	word  string
}

// parseUnicodeMap reads the bfchar and bfrange sections of a CMap program.
// Anything it does not understand is skipped.
func parseUnicodeMap(data []byte) *unicodeMap {
	m := &unicodeMap{}
	for i := range m.chars {
		m.chars[i] = map[uint32]string{}
	}
	var section string
	var args []cmapToken
	for _, t := range scanCMap(data) {
		if t.kind != cmapWord {
			if section != "" {
				args = append(args, t)
			}
			continue
		}
		switch t.word {
		case "beginbfchar", "beginbfrange":
			section, args = t.word, args[:0]
		case "endbfchar":
			for i := 0; i+1 < len(args); i += 2 {
				src, dst := args[i], args[i+1]
				if n := len(src.data); src.kind == cmapString && dst.kind == cmapString && n >= 1 && n <= 4 {
					m.chars[n-1][codeValue(src.data)] = utf16Text(dst.data)
				}
			}
			section = ""
		case "endbfrange":
			for i := 0; i+2 < len(args); i += 3 {
				lo, hi, dst := args[i], args[i+1], args[i+2]
				n := len(lo.data)
				if lo.kind != cmapString || hi.kind != cmapString || n < 1 || n > 4 || len(hi.data) != n {
					continue
				}
				r := bfRange{lo: codeValue(lo.data), hi: codeValue(hi.data)}
				if r.hi < r.lo {
					continue
				}
				switch dst.kind {
				case cmapString:
					r.base = dst.data
				case cmapArray:
					r.each = make([]string, len(dst.elems))
					for j, e := range dst.elems {
						r.each[j] = utf16Text(e)
					}
				default:
					continue
				}
				m.ranges[n-1] = append(m.ranges[n-1], r)
			}
			section = ""
		}
	}
	return m
}

// scanCMap splits a CMap program into strings, arrays of strings and bare
// words. Dictionary delimiters and comments are dropped.
func scanCMap(data []byte) []cmapToken {
	var toks []cmapToken
	var array *cmapToken
	emit := func(t cmapToken) {
		if array != nil && t.kind == cmapString {
			array.elems = append(array.elems, t.data)
			return
		}
		toks = append(toks, t)
	}
	for i := 0; i < len(data); {
		c := data[i]
		switch {
		case isWhite(c):
			i++
		case c == '%':
			for i < len(data) && data[i] != '\n' && data[i] != '\r' {
				i++
			}
		case c == '<' && i+1 < len(data) && data[i+1] == '<', c == '>':
			i++
			if c == '<' {
				i++
			}
		case c == '<':
			end := bytes.IndexByte(data[i:], '>')
			if end < 0 {
				return toks
			}
			emit(cmapToken{kind: cmapString, data: decodeHex(data[i+1 : i+end])})
			i += end + 1
		case c == '(':
			s, n := readLiteral(data[i:])
			emit(cmapToken{kind: cmapString, data: s})
			i += n
		case c == '[':
			array = &cmapToken{kind: cmapArray}
			i++
		case c == ']':
			if array != nil {
				toks = append(toks, *array)
				array = nil
			}
			i++
		default:
			j := i
			for j < len(data) && !isWhite(data[j]) && !isDelimiter(data[j]) {
				j++
			}
			if j == i {
				j++
			}
			if array == nil {
				toks = append(toks, cmapToken{kind: cmapWord, word: string(data[i:j])})
			}
			i = j
		}
	}
	return toks
}

func decodeHex(b []byte) []byte {
	digits := make([]byte, 0, len(b)+1)
	for _, c := range b {
		if !isWhite(c) {
			digits = append(digits, c)
		}
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, len(digits)/2)
	if _, err := hex.Decode(out, digits); err != nil {
		return nil
	}
	return out
}

// readLiteral decodes a parenthesized string starting at b[0] and returns it
// with the number of bytes consumed.
func readLiteral(b []byte) ([]byte, int) {
	var out []byte
	depth := 0
	for i := 0; i < len(b); i++ {
		c := b[i]
		switch c {
		case '(':
			depth++
			if depth == 1 {
				continue
			}
		case ')':
			depth--
			if depth == 0 {
				return out, i + 1
			}
		case '\\':
			if i+1 >= len(b) {
				return out, len(b)
			}
			i++
			switch e := b[i]; e {
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
			case '\r', '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for k := 0; k < 2 && i+1 < len(b) && b[i+1] >= '0' && b[i+1] <= '7'; k++ {
						i++
						v = v*8 + int(b[i]-'0')
					}
					out = append(out, byte(v))
					continue
				}
				out = append(out, e)
			}
			continue
		}
		out = append(out, c)
	}
	return out, len(b)
}

func isWhite(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f' || c == 0
}

func isDelimiter(c byte) bool {
	return bytes.IndexByte([]byte("()<>[]{}/%"), c) >= 0
}
