package database

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type CvEvaluation struct {
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
	CreatedAt      time.Time
}
