package scoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

const validAnswer = `{
  "job_title": "Backend Developer",
  "muc_do_phu_hop": 72,
  "diem_tong": 65.6,
  "nhan_xet_tong_quan": "CV ổn nhưng thiếu số liệu.",
  "recommend_query": "golang backend",
  "diem_chi_tiet": {"trinh_bay": 70, "noi_dung": 60, "kinh_nghiem": 140, "ky_nang": 0, "thanh_tuu": 50},
  "uu_diem": ["Kinh nghiệm Go"],
  "can_cai_thien": ["Thêm metrics"],
  "goi_y_chi_tiet": "1. Thêm số liệu",
  "annotations": [{"text": "Skills: Word, Excel", "reason": "too generic", "severity": "warning"}]
}`

type fakeGenerator struct {
	text   string
	err    error
	model  string
	config *genai.GenerateContentConfig
	parts  []*genai.Part
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model, f.config = model, config
	if len(contents) > 0 {
		f.parts = contents[0].Parts
	}
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: f.text}}},
		}},
	}, nil
}

func TestParse(t *testing.T) {
	ev, err := Parse("```json\n" + validAnswer + "\n```")
	require.NoError(t, err)

	res := ev.Result
	assert.Equal(t, "Backend Developer", res.JobTitle)
	assert.Equal(t, Score(72), res.FitScore)
	assert.Equal(t, Score(66), res.OverallScore)
	assert.Equal(t, Score(100), res.SubScores.Experience)
	assert.Equal(t, Score(1), res.SubScores.Skills)
	require.Len(t, res.Annotations, 1)
	assert.Equal(t, "warning", res.Annotations[0].Severity)
	assert.JSONEq(t, validAnswer, string(ev.Raw))
}

func TestParse_DefaultsMissingAnnotations(t *testing.T) {
	answer := `{"job_title":"QA","muc_do_phu_hop":50,"diem_tong":50,"nhan_xet_tong_quan":"",
"diem_chi_tiet":{"trinh_bay":1,"noi_dung":1,"kinh_nghiem":1,"ky_nang":1,"thanh_tuu":1},
"uu_diem":[],"can_cai_thien":[],"goi_y_chi_tiet":""}`
	ev, err := Parse(answer)
	require.NoError(t, err)
	assert.NotNil(t, ev.Result.Annotations)
	assert.Empty(t, ev.Result.Annotations)
}

func TestParse_Errors(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		_, err := Parse("  ")
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})
	t.Run("not json", func(t *testing.T) {
		_, err := Parse("I cannot help with that")
		assert.Error(t, err)
	})
	t.Run("schema violation", func(t *testing.T) {
		_, err := Parse(`{"job_title": 5}`)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.NotEmpty(t, ve.Errors)
		assert.Contains(t, err.Error(), "does not match schema")
	})
}

func TestCleanJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, CleanJSON("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, CleanJSON("```\n{\"a\":1}```"))
	assert.Equal(t, `{"a":1}`, CleanJSON("  {\"a\":1}  "))
}

func TestGeminiOracle_Score(t *testing.T) {
	gen := &fakeGenerator{text: validAnswer}
	o := newGeminiOracle(gen, "")

	ev, err := o.Score(context.Background(), []byte("%PDF-1.4"), "application/pdf", "Backend Developer")
	require.NoError(t, err)
	assert.Equal(t, Score(72), ev.Result.FitScore)

	assert.Equal(t, DefaultModel, gen.model)
	assert.Equal(t, "application/json", gen.config.ResponseMIMEType)
	assert.NotNil(t, gen.config.ResponseJsonSchema)
	require.NotNil(t, gen.config.SystemInstruction)
	require.Len(t, gen.parts, 2)
	require.NotNil(t, gen.parts[0].InlineData)
	assert.Equal(t, "application/pdf", gen.parts[0].InlineData.MIMEType)
	assert.Contains(t, gen.parts[1].Text, "Backend Developer")
}

func TestGeminiOracle_Error(t *testing.T) {
	quota := genai.APIError{Code: 429, Message: "quota"}
	gen := &fakeGenerator{err: quota}
	_, err := newGeminiOracle(gen, "gemini-2.5-pro").Score(context.Background(), nil, "application/pdf", "x")
	require.Error(t, err)
	assert.Equal(t, "gemini-2.5-pro", gen.model)
	var apiErr genai.APIError
	assert.ErrorAs(t, err, &apiErr)

	// the service's own message is reported, with a stack for the trace
	assert.Equal(t, quota.Error(), err.Error())
	var traced interface{ StackTrace() pkgerrors.StackTrace }
	assert.ErrorAs(t, err, &traced)
}

type flakyOracle struct {
	errs  []error
	calls int
}

func (f *flakyOracle) Score(context.Context, []byte, string, string) (*Evaluation, error) {
	f.calls++
	if f.calls <= len(f.errs) {
		return nil, f.errs[f.calls-1]
	}
	return &Evaluation{Result: ScoreResult{JobTitle: "ok"}}, nil
}

func testRetry(next Oracle, retries int) *RetryOracle {
	o := WithRetry(next, retries, nil).(*RetryOracle)
	o.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return o
}

func TestRetryOracle(t *testing.T) {
	unavailable := genai.APIError{Code: 503, Message: "overloaded"}

	t.Run("recovers from transient errors", func(t *testing.T) {
		f := &flakyOracle{errs: []error{unavailable, errors.New("connection reset")}}
		ev, err := testRetry(f, 2).Score(context.Background(), nil, "", "")
		require.NoError(t, err)
		assert.Equal(t, "ok", ev.Result.JobTitle)
		assert.Equal(t, 3, f.calls)
	})

	t.Run("gives up after the retry budget", func(t *testing.T) {
		f := &flakyOracle{errs: []error{unavailable, unavailable, unavailable}}
		_, err := testRetry(f, 2).Score(context.Background(), nil, "", "")
		require.Error(t, err)
		assert.Equal(t, 3, f.calls)
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		bad := genai.APIError{Code: 400, Message: "bad request"}
		f := &flakyOracle{errs: []error{bad}}
		_, err := testRetry(f, 2).Score(context.Background(), nil, "", "")
		var apiErr genai.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 400, apiErr.Code)
		assert.Equal(t, 1, f.calls)
	})

	t.Run("zero retries is passthrough", func(t *testing.T) {
		f := &flakyOracle{}
		assert.Same(t, Oracle(f), WithRetry(f, 0, nil))
	})
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(context.Canceled))
	assert.False(t, Retryable(context.DeadlineExceeded))
	assert.False(t, Retryable(genai.APIError{Code: 403}))
	assert.True(t, Retryable(genai.APIError{Code: 429}))
	assert.True(t, Retryable(genai.APIError{Code: 500}))
	assert.True(t, Retryable(&ValidationError{}))
	assert.True(t, Retryable(errors.New("EOF")))
}

func TestDefaultBackOffIsJittered(t *testing.T) {
	b := defaultBackOff().(*backoff.ExponentialBackOff)
	assert.Equal(t, 500*time.Millisecond, b.InitialInterval)
	assert.Greater(t, b.RandomizationFactor, 0.0)
}
