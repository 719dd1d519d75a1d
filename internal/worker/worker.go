// Package worker runs the review pipeline for each request: score the
// document, normalize it to PDF, highlight the flagged passages and respond.
package worker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/muhammadolammi/cvreviewworker/internal/convert"
	"github.com/muhammadolammi/cvreviewworker/internal/highlight"
	"github.com/muhammadolammi/cvreviewworker/internal/logger"
	"github.com/muhammadolammi/cvreviewworker/internal/scoring"
)

// ObjectFetcher loads a document by key from object storage.
type ObjectFetcher interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// Config holds the collaborators a Worker needs. Oracle is required; the
// rest fall back to no-op implementations.
type Config struct {
	Oracle     scoring.Oracle
	Normalizer *convert.Normalizer
	Annotator  highlight.Annotator
	Fetcher    ObjectFetcher
	Store      EvaluationStore
	// Timeout bounds each request. Zero means no limit.
	Timeout time.Duration
	Logger  *zerolog.Logger
}

// Worker is built once at startup and handles requests one at a time.
type Worker struct {
	oracle     scoring.Oracle
	normalizer *convert.Normalizer
	annotator  highlight.Annotator
	fetcher    ObjectFetcher
	store      EvaluationStore
	timeout    time.Duration
	log        zerolog.Logger
}

func New(cfg Config) (*Worker, error) {
	if cfg.Oracle == nil {
		return nil, errors.New("worker: oracle is required")
	}
	w := &Worker{
		oracle:     cfg.Oracle,
		normalizer: cfg.Normalizer,
		annotator:  cfg.Annotator,
		fetcher:    cfg.Fetcher,
		store:      cfg.Store,
		timeout:    cfg.Timeout,
		log:        logger.Logger,
	}
	if w.normalizer == nil {
		w.normalizer = convert.NewNormalizer(nil)
	}
	if w.annotator == nil {
		w.annotator = highlight.NopAnnotator{}
	}
	if cfg.Logger != nil {
		w.log = *cfg.Logger
	}
	return w, nil
}

// Serve reads requests from in, one per line, and writes one response line
// to out for each non-blank line. It returns nil at end of input. A canceled
// ctx is noticed between requests.
func (w *Worker) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	r := bufio.NewReader(in)
	bw := bufio.NewWriter(out)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, readErr := r.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			if err := WriteResponse(bw, w.Handle(ctx, line)); err != nil {
				return err
			}
			if err := bw.Flush(); err != nil {
				return errors.Wrap(err, "flush response")
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return errors.Wrap(readErr, "read request")
		}
	}
}

// Handle runs one request line through the pipeline. It always returns a
// response; errors and panics become failure responses.
func (w *Worker) Handle(ctx context.Context, line []byte) (resp *Response) {
	corrID := uuid.New()
	log := w.log.With().Str("correlation_id", corrID.String()).Logger()
	ctx = logger.WithContext(ctx, log)
	started := time.Now()

	var (
		req *Request
		out outcome
	)
	defer func() {
		if r := recover(); r != nil {
			err := errors.Errorf("panic: %v", r)
			id := recoverID(line)
			if req != nil {
				id = req.ID
			}
			resp = failure(id, err)
			out = outcome{}
			log.Error().Stack().Err(err).Msg("request panicked")
		}
		w.record(ctx, corrID, req, resp, out)
		log.Info().
			RawJSON("id", idOrNull(resp.ID)).
			Bool("ok", resp.OK).
			Int("highlights", out.report.Highlights).
			Dur("elapsed", time.Since(started)).
			Msg("request handled")
	}()

	req, err := parseRequest(line)
	if err != nil {
		log.Warn().Err(err).Msg("bad request")
		id := recoverID(line)
		if req != nil {
			id = req.ID
		}
		return failure(id, err)
	}

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	out, err = w.process(ctx, req)
	if err != nil {
		log.Error().Err(err).Str("job_title", req.JobTitle).Msg("request failed")
		return failure(req.ID, err)
	}
	return &Response{ID: req.ID, OK: true, Data: out.result, Warnings: out.warnings}
}

type outcome struct {
	result   *scoring.ScoreResult
	warnings []string
	report   highlight.Report
}

func (w *Worker) process(ctx context.Context, req *Request) (outcome, error) {
	log := logger.Ctx(ctx)
	var out outcome

	data, err := w.document(ctx, req)
	if err != nil {
		return out, err
	}

	ev, err := w.oracle.Score(ctx, data, req.MIME, req.JobTitle)
	if err != nil {
		return out, errors.WithStack(err)
	}
	result := ev.Result
	marks := marksFrom(ev.Raw)

	normalized, err := w.normalizer.Normalize(ctx, data, req.MIME)
	if err != nil {
		log.Warn().Err(err).Str("mime", req.MIME).Msg("document not converted")
		out.warnings = append(out.warnings, "conversion: "+err.Error())
	}

	annotated := normalized
	if isPDF(normalized) {
		var report highlight.Report
		annotated, report, err = w.annotator.Annotate(ctx, normalized, marks)
		if err != nil {
			log.Warn().Err(err).Msg("document not annotated")
			out.warnings = append(out.warnings, "annotation: "+err.Error())
			annotated = normalized
		}
		for _, f := range report.Failures {
			out.warnings = append(out.warnings, "annotation: "+f)
		}
		out.report = report
	}

	if len(annotated) > 0 && isPDF(annotated) {
		result.AnnotatedPDFB64 = base64.StdEncoding.EncodeToString(annotated)
	}
	out.result = &result
	return out, nil
}

// document returns the request's bytes, from data_b64 or the object store.
func (w *Worker) document(ctx context.Context, req *Request) ([]byte, error) {
	if req.DataB64 == "" {
		if w.fetcher == nil {
			return nil, errors.New("missing data_b64")
		}
		data, err := w.fetcher.Fetch(ctx, req.ObjectKey)
		if err != nil {
			return nil, err
		}
		return data, nil
	}
	data, err := decodeBase64(req.DataB64)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("invalid data_b64: empty document")
	}
	return data, nil
}

// marksFrom reads the annotation list from the oracle's JSON. A missing or
// malformed list yields no marks.
func marksFrom(raw []byte) []highlight.Mark {
	var marks []highlight.Mark
	gjson.GetBytes(raw, "annotations").ForEach(func(_, v gjson.Result) bool {
		if !v.IsObject() {
			return true
		}
		marks = append(marks, highlight.Mark{
			Text:     v.Get("text").String(),
			Reason:   v.Get("reason").String(),
			Severity: v.Get("severity").String(),
		})
		return true
	})
	return marks
}

func isPDF(b []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(b, "\x00\t\r\n "), []byte("%PDF"))
}

func idOrNull(id []byte) []byte {
	if len(id) == 0 {
		return []byte("null")
	}
	return id
}
