package convert

import (
	"bytes"
	"context"
	_ "embed"
	"html"
	"path/filepath"
	"regexp"
	"strings"

	"codeberg.org/go-pdf/fpdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/pkg/errors"
)

// DejaVu Sans Condensed covers Latin Extended and the Vietnamese
// precomposed letters.
//
//go:embed fonts/DejaVuSansCondensed.ttf
var defaultFont []byte

var (
	xmlTag   = regexp.MustCompile(`<[^>]*>`)
	tabTag   = regexp.MustCompile(`<w:tab/>`)
	breakTag = regexp.MustCompile(`<w:(br|cr)(\s[^>]*)?/>`)
)

// DocxParagraphs returns the plain text of each body paragraph.
func DocxParagraphs(data []byte) ([]string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.Wrap(err, "parse docx")
	}
	defer doc.Close()

	content := doc.Editable().GetContent()
	if i := strings.Index(content, "<w:body"); i >= 0 {
		content = content[i:]
	}
	chunks := strings.Split(content, "</w:p>")
	paras := make([]string, 0, len(chunks))
	for _, chunk := range chunks[:len(chunks)-1] {
		chunk = tabTag.ReplaceAllString(chunk, "\t")
		chunk = breakTag.ReplaceAllString(chunk, "\n")
		text := html.UnescapeString(xmlTag.ReplaceAllString(chunk, ""))
		paras = append(paras, strings.TrimRight(text, " \t"))
	}
	return paras, nil
}

// DocxConverter lays out DOCX paragraphs as plain PDF text. It ignores
// styling and cannot read legacy DOC files.
type DocxConverter struct {
	// FontPath is a TrueType font to render with. Without it the embedded
	// DejaVu Sans Condensed is used.
	FontPath string
}

func (c *DocxConverter) Name() string { return "docx" }

func (c *DocxConverter) ToPDF(ctx context.Context, data []byte, mime string) ([]byte, error) {
	if mime != MimeDOCX {
		return nil, errors.Wrapf(ErrUnsupported, "docx renderer cannot read %s", mime)
	}
	paras, err := DocxParagraphs(data)
	if err != nil {
		return nil, err
	}

	fontDir := ""
	if c.FontPath != "" {
		fontDir = filepath.Dir(c.FontPath)
	}
	pdf := fpdf.New("P", "pt", "A4", fontDir)
	pdf.SetMargins(56, 56, 56)
	pdf.SetAutoPageBreak(true, 56)
	if c.FontPath != "" {
		pdf.AddUTF8Font("body", "", filepath.Base(c.FontPath))
	} else {
		pdf.AddUTF8FontFromBytes("body", "", defaultFont)
	}
	pdf.SetFont("body", "", 11)
	pdf.AddPage()

	for _, p := range paras {
		if err := ctx.Err(); err != nil {
			return nil, errors.WithStack(err)
		}
		if strings.TrimSpace(p) == "" {
			pdf.Ln(8)
			continue
		}
		pdf.MultiCell(0, 14, strings.ReplaceAll(p, "\t", "    "), "", "L", false)
	}
	if pdf.Err() {
		return nil, errors.Wrap(pdf.Error(), "render pdf")
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, errors.Wrap(err, "write pdf")
	}
	return buf.Bytes(), nil
}
