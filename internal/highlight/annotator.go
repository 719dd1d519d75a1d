// Package highlight marks passages of a PDF with colored Highlight
// annotations. Text is located from the glyph geometry of each page and the
// annotations are appended to the file as an incremental update.
package highlight

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/color"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/pkg/errors"
)

// MinTextLen is the shortest passage, in runes, that is searched for.
const MinTextLen = 3

var (
	ErrEncrypted = errors.New("encrypted documents are not annotated")
	ErrNoPages   = errors.New("document has no pages")
)

// Mark is a passage to highlight together with the note attached to it.
type Mark struct {
	Text     string
	Reason   string
	Severity string
}

// Color is an RGB color with components in [0, 1].
type Color struct {
	R, G, B float64
}

var (
	Red   = Color{1, 0.2, 0.2}
	Amber = Color{1, 0.8, 0}
	Blue  = Color{0.2, 0.6, 1}
)

// SeverityColor maps critical to red, warning to amber and everything else to blue.
func SeverityColor(severity string) Color {
	switch strings.ToLower(strings.TrimSpace(severity)) {
	case "critical":
		return Red
	case "warning":
		return Amber
	default:
		return Blue
	}
}

// Report summarizes one Annotate call.
type Report struct {
	Highlights int
	Skipped    int
	Unmatched  int
	Failures   []string
}

type Annotator interface {
	// Annotate returns the annotated document. On error the returned bytes
	// are the input, unchanged.
	Annotate(ctx context.Context, doc []byte, marks []Mark) ([]byte, Report, error)
}

// NopAnnotator is used when annotation is disabled.
type NopAnnotator struct{}

func (NopAnnotator) Annotate(_ context.Context, doc []byte, _ []Mark) ([]byte, Report, error) {
	return doc, Report{}, nil
}

type PDFAnnotator struct {
	// Author is written as the /T entry of every annotation.
	Author string
	// Now stamps /ModDate.
	Now func() time.Time
}

func NewPDFAnnotator(author string) *PDFAnnotator {
	return &PDFAnnotator{Author: author, Now: time.Now}
}

type hit struct {
	page  int
	match Match
}

func (a *PDFAnnotator) Annotate(ctx context.Context, doc []byte, marks []Mark) (out []byte, rep Report, err error) {
	if len(marks) == 0 {
		return doc, rep, nil
	}
	defer func() {
		if r := recover(); r != nil {
			out, err = doc, errors.Errorf("annotate: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(doc), int64(len(doc)))
	if err != nil {
		return doc, rep, errors.Wrap(err, "open pdf")
	}
	if !r.Trailer().Key("Encrypt").IsNull() {
		return doc, rep, ErrEncrypted
	}
	numPages := r.NumPage()
	if numPages == 0 {
		return doc, rep, ErrNoPages
	}

	texts := make([]*pageText, numPages)
	for i := range texts {
		pt, err := safePageText(r.Page(i + 1))
		if err != nil {
			rep.Failures = append(rep.Failures, fmt.Sprintf("page %d: %v", i+1, err))
			continue
		}
		texts[i] = pt
	}

	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	stamp := types.DateString(now())
	byPage := map[int][]model.AnnotationRenderer{}

	for _, m := range marks {
		if err := ctx.Err(); err != nil {
			return doc, rep, errors.WithStack(err)
		}
		text := strings.TrimSpace(m.Text)
		if utf8.RuneCountInString(text) < MinTextLen {
			rep.Skipped++
			continue
		}
		hits, err := locateAll(texts, text)
		if err != nil {
			rep.Failures = append(rep.Failures, fmt.Sprintf("%q: %v", clip(text), err))
			continue
		}
		if len(hits) == 0 {
			rep.Unmatched++
			continue
		}
		c := SeverityColor(m.Severity)
		for _, h := range hits {
			page := h.page + 1
			byPage[page] = append(byPage[page], a.annotation(h.match, c, m.Reason, stamp))
			rep.Highlights++
		}
	}
	if rep.Highlights == 0 {
		return doc, rep, nil
	}

	out, err = appendAnnotations(doc, byPage)
	if err != nil {
		return doc, rep, err
	}
	return out, rep, nil
}

func safePageText(p pdf.Page) (pt *pageText, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("read page text: %v", r)
		}
	}()
	return readPageText(p), nil
}

func locateAll(texts []*pageText, text string) (hits []hit, err error) {
	defer func() {
		if r := recover(); r != nil {
			hits, err = nil, errors.Errorf("locate: %v", r)
		}
	}()
	for i, pt := range texts {
		if pt == nil {
			continue
		}
		for _, m := range pt.locate(text) {
			hits = append(hits, hit{page: i, match: m})
		}
	}
	return hits, nil
}

// annotation builds a printable Highlight with one quad per line of the match.
func (a *PDFAnnotator) annotation(m Match, c Color, reason, stamp string) model.AnnotationRenderer {
	b := m.bounds()
	var quads types.QuadPoints
	for _, r := range m {
		quads.AddQuadLiteral(r.quad())
	}
	return model.NewHighlightAnnotation(
		*types.NewRectangle(b.X0, b.Y0, b.X1, b.Y1),
		strings.TrimSpace(reason),
		uuid.NewString(),
		stamp,
		model.AnnPrint,
		&color.SimpleColor{R: float32(c.R), G: float32(c.G), B: float32(c.B)},
		0, 0, 0,
		a.Author,
		nil,
		nil,
		"", "",
		quads,
	)
}

func clip(s string) string {
	if utf8.RuneCountInString(s) > 40 {
		return string([]rune(s)[:40]) + "..."
	}
	return s
}
