// Package scoring asks a language model to evaluate a résumé and parses the
// answer into a ScoreResult.
package scoring

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/genai"
)

const DefaultModel = "gemini-2.5-flash"

// ErrEmptyResponse is returned when the model answers with no text.
var ErrEmptyResponse = errors.New("empty response from model")

// Oracle scores a document against a job title.
type Oracle interface {
	Score(ctx context.Context, doc []byte, mime, jobTitle string) (*Evaluation, error)
}

// CleanJSON strips markdown code fences around a JSON answer.
func CleanJSON(input string) string {
	clean := strings.TrimSpace(input)
	if strings.HasPrefix(clean, "```json") {
		clean = strings.TrimPrefix(clean, "```json")
	} else if strings.HasPrefix(clean, "```") {
		clean = strings.TrimPrefix(clean, "```")
	}
	clean = strings.TrimLeft(clean, "\r\n")
	clean = strings.TrimSuffix(strings.TrimSpace(clean), "```")
	return strings.TrimSpace(clean)
}

// Parse validates a model answer against the ScoreResult schema and decodes it.
func Parse(text string) (*Evaluation, error) {
	cleaned := CleanJSON(text)
	if cleaned == "" {
		return nil, errors.WithStack(ErrEmptyResponse)
	}
	raw := []byte(cleaned)
	if err := ValidateJSON(raw); err != nil {
		return nil, errors.WithStack(err)
	}
	var res ScoreResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, errors.Wrap(err, "decode score result")
	}
	res.normalize()
	return &Evaluation{Result: res, Raw: raw}, nil
}

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiOracle calls the Gemini API directly with a response schema.
type GeminiOracle struct {
	models contentGenerator
	model  string
	schema any
}

func NewGeminiOracle(client *genai.Client, model string) *GeminiOracle {
	return newGeminiOracle(client.Models, model)
}

func newGeminiOracle(models contentGenerator, model string) *GeminiOracle {
	if model == "" {
		model = DefaultModel
	}
	return &GeminiOracle{models: models, model: model, schema: Schema()}
}

func (o *GeminiOracle) Score(ctx context.Context, doc []byte, mime, jobTitle string) (*Evaluation, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(doc, mime),
			genai.NewPartFromText(userPrompt(jobTitle)),
		}, genai.RoleUser),
	}
	resp, err := o.models.GenerateContent(ctx, o.model, contents, &genai.GenerateContentConfig{
		SystemInstruction:  genai.NewContentFromText(systemInstruction(), genai.RoleUser),
		ResponseMIMEType:   "application/json",
		ResponseJsonSchema: o.schema,
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return Parse(resp.Text())
}
