package convert

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// FindSoffice returns hint when it is executable, otherwise the first of
// soffice or libreoffice found on PATH.
func FindSoffice(hint string) (string, error) {
	candidates := []string{"soffice", "libreoffice"}
	if hint != "" {
		candidates = []string{hint}
	}
	for _, c := range candidates {
		if path, err := exec.LookPath(c); err == nil {
			return path, nil
		}
	}
	return "", errors.Wrapf(ErrUnavailable, "office suite not found (tried %s)", strings.Join(candidates, ", "))
}

// SofficeConverter runs a headless LibreOffice in a private temp directory.
type SofficeConverter struct {
	Path string
}

func (c *SofficeConverter) Name() string { return "soffice" }

func (c *SofficeConverter) ToPDF(ctx context.Context, data []byte, mime string) ([]byte, error) {
	ext := ".docx"
	if mime == MimeDOC {
		ext = ".doc"
	}
	dir, err := os.MkdirTemp("", "cvreview-*")
	if err != nil {
		return nil, errors.Wrap(err, "create temp dir")
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "input"+ext)
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, errors.Wrap(err, "write input")
	}
	// A private profile keeps concurrent instances from locking each other out.
	profile := "file://" + filepath.ToSlash(filepath.Join(dir, "profile"))
	cmd := exec.CommandContext(ctx, c.Path,
		"-env:UserInstallation="+profile,
		"--headless", "--norestore", "--nologo",
		"--convert-to", "pdf",
		"--outdir", dir,
		in,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return nil, errors.WithStack(ctx.Err())
		}
		return nil, errors.Wrapf(err, "soffice: %s", strings.TrimSpace(string(out)))
	}
	pdf, err := os.ReadFile(filepath.Join(dir, "input.pdf"))
	if err != nil {
		return nil, errors.Wrap(err, "soffice produced no pdf")
	}
	return pdf, nil
}
