package main

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/genai"

	"github.com/muhammadolammi/cvreviewworker/internal/config"
	"github.com/muhammadolammi/cvreviewworker/internal/logger"
	"github.com/muhammadolammi/cvreviewworker/internal/scoring"
)

const agentName = "cv_reviewer"

// newOracle builds the scoring backend named in cfg, wrapped in the retry
// policy.
func newOracle(ctx context.Context, cfg config.GeminiConfig) (scoring.Oracle, error) {
	var oracle scoring.Oracle
	switch cfg.Backend {
	case "agent":
		reviewer, err := scoring.NewAgent(ctx, cfg.APIKey, cfg.Model, agentName)
		if err != nil {
			return nil, err
		}
		oracle, err = scoring.NewAgentOracle(reviewer)
		if err != nil {
			return nil, err
		}
	default:
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, errors.Wrap(err, "create genai client")
		}
		oracle = scoring.NewGeminiOracle(client, cfg.Model)
	}

	return scoring.WithRetry(oracle, cfg.MaxRetries, func(err error, next time.Duration) {
		logger.Warn().Err(err).Dur("retry_in", next).Msg("oracle call failed, retrying")
	}), nil
}
