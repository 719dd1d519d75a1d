// Package convert turns word-processing uploads into PDF so they can be
// searched and highlighted.
package convert

import (
	"context"
	"mime"
	"strings"

	"github.com/pkg/errors"
)

const (
	MimePDF  = "application/pdf"
	MimeDOC  = "application/msword"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

var (
	// ErrUnavailable means no converter is configured or installed.
	ErrUnavailable = errors.New("document converter unavailable")
	// ErrUnsupported means the converter cannot read the given format.
	ErrUnsupported = errors.New("format not supported by converter")
)

// Converter renders a document as PDF.
type Converter interface {
	Name() string
	ToPDF(ctx context.Context, data []byte, mime string) ([]byte, error)
}

// CanonicalMIME lowercases a media type and drops its parameters.
func CanonicalMIME(s string) string {
	s = strings.TrimSpace(s)
	if mt, _, err := mime.ParseMediaType(s); err == nil {
		return mt
	}
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = s[:i]
	}
	return strings.ToLower(strings.TrimSpace(s))
}

// IsWord reports whether mime names a DOC or DOCX document.
func IsWord(mime string) bool {
	switch CanonicalMIME(mime) {
	case MimeDOC, MimeDOCX:
		return true
	}
	return false
}

// Normalizer decides which uploads need converting. It holds a converter
// resolved once at startup.
type Normalizer struct {
	conv Converter
}

func NewNormalizer(conv Converter) *Normalizer {
	if conv == nil {
		conv = None{}
	}
	return &Normalizer{conv: conv}
}

// Converter returns the converter in use.
func (n *Normalizer) Converter() Converter { return n.conv }

// Normalize returns PDF bytes for data when it can. PDFs and unknown formats
// come back unchanged with a nil error. When a word document cannot be
// converted, the original bytes come back together with the reason, which
// callers treat as a warning.
func (n *Normalizer) Normalize(ctx context.Context, data []byte, mime string) ([]byte, error) {
	if !IsWord(mime) {
		return data, nil
	}
	out, err := n.conv.ToPDF(ctx, data, CanonicalMIME(mime))
	if err != nil {
		return data, errors.Wrapf(err, "convert with %s", n.conv.Name())
	}
	if len(out) == 0 {
		return data, errors.Errorf("convert with %s: empty output", n.conv.Name())
	}
	return out, nil
}

// None is the converter used when conversion is disabled.
type None struct{}

func (None) Name() string { return "none" }

func (None) ToPDF(context.Context, []byte, string) ([]byte, error) {
	return nil, ErrUnavailable
}

// Chain tries each converter in turn and returns the first success. A
// converter that reports ErrUnsupported is skipped.
type Chain []Converter

func (c Chain) Name() string {
	names := make([]string, 0, len(c))
	for _, conv := range c {
		names = append(names, conv.Name())
	}
	return strings.Join(names, "+")
}

func (c Chain) ToPDF(ctx context.Context, data []byte, mime string) ([]byte, error) {
	err := ErrUnavailable
	for _, conv := range c {
		var out []byte
		out, err = conv.ToPDF(ctx, data, mime)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return nil, errors.WithStack(ctx.Err())
		}
	}
	return nil, err
}

// Options selects and configures a converter.
type Options struct {
	// Kind is one of auto, soffice, docx or none.
	Kind        string
	SofficePath string
	FontPath    string
}

// New resolves the converter named by opts. With auto, an installed office
// suite is preferred and the built-in DOCX renderer backs it up.
func New(opts Options) (Converter, error) {
	docx := &DocxConverter{FontPath: opts.FontPath}
	switch opts.Kind {
	case "", "auto":
		path, err := FindSoffice(opts.SofficePath)
		if err != nil {
			return docx, nil
		}
		return Chain{&SofficeConverter{Path: path}, docx}, nil
	case "soffice":
		path, err := FindSoffice(opts.SofficePath)
		if err != nil {
			return nil, err
		}
		return &SofficeConverter{Path: path}, nil
	case "docx":
		return docx, nil
	case "none":
		return None{}, nil
	}
	return nil, errors.Errorf("unknown converter %q", opts.Kind)
}
