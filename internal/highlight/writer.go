package highlight

import (
	"bytes"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pkg/errors"
)

var disableConfigDir sync.Once

// pdfcpuConfig returns a configuration that never touches the user's config
// directory.
func pdfcpuConfig() *model.Configuration {
	disableConfigDir.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	conf.Cmd = model.ADDANNOTATIONS
	return conf
}

// appendAnnotations adds the annotations, keyed by 1-based page number, as
// an incremental update written after the original bytes.
func appendAnnotations(doc []byte, byPage map[int][]model.AnnotationRenderer) ([]byte, error) {
	ctx, err := api.ReadAndValidate(bytes.NewReader(doc), pdfcpuConfig())
	if err != nil {
		return nil, errors.Wrap(err, "read pdf")
	}
	// A reader follows /Prev only into the same kind of cross-reference
	// section, so the update mirrors the file it extends.
	ctx.WriteXRefStream = ctx.Read.UsingXRefStreams

	ok, err := pdfcpu.AddAnnotationsMap(ctx, byPage, true)
	if err != nil {
		return nil, errors.Wrap(err, "add annotations")
	}
	if !ok {
		return doc, nil
	}

	out := make([]byte, len(doc), len(doc)+4096)
	copy(out, doc)
	if len(out) > 0 && out[len(out)-1] != '\n' && out[len(out)-1] != '\r' {
		out = append(out, '\n')
		ctx.Write.Offset++
	}
	var inc bytes.Buffer
	if err := api.WriteIncrement(ctx, &inc); err != nil {
		return nil, errors.Wrap(err, "write update")
	}
	return append(out, inc.Bytes()...), nil
}
