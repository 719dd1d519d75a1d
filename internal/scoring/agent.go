package scoring

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/model/gemini"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/genai"
)

const agentUserID = "cvreviewworker"

// NewAgent builds the ADK agent used by AgentOracle. The schema is carried
// in the instruction, so answers go through the same validation as the
// direct backend.
func NewAgent(ctx context.Context, apiKey, model, name string) (agent.Agent, error) {
	if model == "" {
		model = DefaultModel
	}
	llm, err := gemini.NewModel(ctx, model, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create model")
	}
	a, err := llmagent.New(llmagent.Config{
		Name:        name,
		Model:       llm,
		Description: "Evaluate a résumé against a job title",
		Instruction: agentInstruction(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create agent")
	}
	return a, nil
}

// AgentOracle runs an ADK agent, one short-lived session per request.
type AgentOracle struct {
	runner   *runner.Runner
	sessions session.Service
	appName  string
}

func NewAgentOracle(a agent.Agent) (*AgentOracle, error) {
	sessions := session.InMemoryService()
	r, err := runner.New(runner.Config{
		AppName:        a.Name(),
		Agent:          a,
		SessionService: sessions,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create runner")
	}
	return &AgentOracle{runner: r, sessions: sessions, appName: a.Name()}, nil
}

func (o *AgentOracle) Score(ctx context.Context, doc []byte, mime, jobTitle string) (*Evaluation, error) {
	created, err := o.sessions.Create(ctx, &session.CreateRequest{
		AppName:   o.appName,
		UserID:    agentUserID,
		SessionID: uuid.NewString(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create agent session")
	}
	defer func() {
		_ = o.sessions.Delete(context.WithoutCancel(ctx), &session.DeleteRequest{
			AppName:   created.Session.AppName(),
			UserID:    created.Session.UserID(),
			SessionID: created.Session.ID(),
		})
	}()

	msg := &genai.Content{
		Role: "user",
		Parts: []*genai.Part{
			genai.NewPartFromBytes(doc, mime),
			{Text: userPrompt(jobTitle)},
		},
	}
	var output string
	for event, err := range o.runner.Run(ctx, created.Session.UserID(), created.Session.ID(), msg, agent.RunConfig{}) {
		if err != nil {
			return nil, errors.WithStack(err)
		}
		if event != nil && event.IsFinalResponse() && event.Content != nil && len(event.Content.Parts) > 0 {
			output = event.Content.Parts[0].Text
		}
	}
	return Parse(output)
}
