package database

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
)

const insertEvaluation = `-- name: InsertEvaluation :exec
INSERT INTO cv_evaluations (
id, request_id, correlation_id, job_title, mime, ok, fit_score, overall_score, highlight_count, data, error)
VALUES ( $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
`

type InsertEvaluationParams struct {
	ID             uuid.UUID
	RequestID      sql.NullString
	CorrelationID  uuid.UUID
	JobTitle       string
	Mime           string
	Ok             bool
	FitScore       sql.NullInt32
	OverallScore   sql.NullInt32
	HighlightCount int32
	Data           json.RawMessage
	Error          sql.NullString
}

func (q *Queries) InsertEvaluation(ctx context.Context, arg InsertEvaluationParams) error {
	_, err := q.db.ExecContext(ctx, insertEvaluation,
		arg.ID,
		arg.RequestID,
		arg.CorrelationID,
		arg.JobTitle,
		arg.Mime,
		arg.Ok,
		arg.FitScore,
		arg.OverallScore,
		arg.HighlightCount,
		arg.Data,
		arg.Error,
	)
	return err
}
