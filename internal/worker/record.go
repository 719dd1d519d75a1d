package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/muhammadolammi/cvreviewworker/internal/database"
)

// EvaluationStore persists a summary of each response. *database.Queries
// satisfies it.
type EvaluationStore interface {
	InsertEvaluation(ctx context.Context, arg database.InsertEvaluationParams) error
}

const recordTimeout = 5 * time.Second

// record stores the outcome of a request. Failures are logged only.
func (w *Worker) record(ctx context.Context, corrID uuid.UUID, req *Request, resp *Response, out outcome) {
	if w.store == nil || resp == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	arg := database.InsertEvaluationParams{
		ID:             uuid.New(),
		CorrelationID:  corrID,
		Ok:             resp.OK,
		HighlightCount: int32(out.report.Highlights),
	}
	if id := requestID(resp.ID); id != "" {
		arg.RequestID = sql.NullString{String: id, Valid: true}
	}
	if req != nil {
		arg.JobTitle = req.JobTitle
		arg.Mime = req.MIME
	}
	if resp.OK && out.result != nil {
		arg.FitScore = sql.NullInt32{Int32: int32(out.result.FitScore), Valid: true}
		arg.OverallScore = sql.NullInt32{Int32: int32(out.result.OverallScore), Valid: true}
		// The annotated document is large and already returned to the caller.
		stored := *out.result
		stored.AnnotatedPDFB64 = ""
		if data, err := json.Marshal(stored); err == nil {
			arg.Data = data
		}
	}
	if !resp.OK {
		arg.Error = sql.NullString{String: resp.Error, Valid: true}
	}

	if err := w.store.InsertEvaluation(ctx, arg); err != nil {
		w.log.Error().Err(err).Str("correlation_id", corrID.String()).Msg("failed to record evaluation")
	}
}

// requestID renders a JSON id as text: strings unquoted, other values as
// their JSON form.
func requestID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
