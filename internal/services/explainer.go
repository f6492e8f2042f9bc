package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mathscrap/mathscrap-backend/internal/clients/openrouter"
	"github.com/mathscrap/mathscrap-backend/internal/logger"
	"github.com/mathscrap/mathscrap-backend/internal/types"
)

const explainerSystemPrompt = "You are a helpful math tutor that explains mathematical concepts clearly. Always respond with valid JSON."

const explainerUserPrompt = `You are a math tutor. Given the following mathematical expression in LaTeX format, provide a clear, step-by-step explanation.

Expression: %s
Context: %s

Please provide:
1. A brief description of what type of problem this is
2. Step-by-step solution with explanations
3. Key concepts involved
4. Common mistakes to avoid

Format your response as JSON with the following structure:
{
    "problem_type": "description of problem type",
    "steps": [
        {
            "step_number": 1,
            "description": "what we're doing in this step",
            "latex": "mathematical expression for this step",
            "explanation": "why we do this step"
        }
    ],
    "key_concepts": ["concept1", "concept2"],
    "common_mistakes": ["mistake1", "mistake2"],
    "final_answer": "final result in LaTeX"
}`

// ExplainerService turns an extracted expression into a step-by-step
// explanation via the LLM. Non-JSON model output degrades into a single-step
// explanation carrying the raw text rather than an error.
type ExplainerService interface {
	Explain(ctx context.Context, latex string, imageContext string) (types.ExplanationResult, error)
}

type explainerService struct {
	log    *logger.Logger
	client openrouter.Client
}

func NewExplainerService(log *logger.Logger, client openrouter.Client) (ExplainerService, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if client == nil {
		return nil, fmt.Errorf("openrouter client required")
	}
	return &explainerService{
		log:    log.With("service", "ExplainerService"),
		client: client,
	}, nil
}

func (s *explainerService) Explain(ctx context.Context, latex string, imageContext string) (types.ExplanationResult, error) {
	var out types.ExplanationResult
	latex = strings.TrimSpace(latex)
	if latex == "" {
		return out, fmt.Errorf("latex expression required")
	}

	user := fmt.Sprintf(explainerUserPrompt, latex, imageContext)
	content, err := s.client.Complete(ctx, explainerSystemPrompt, user)
	if err != nil {
		return out, fmt.Errorf("explanation request: %w", err)
	}

	obj, jsonErr := openrouter.ExtractJSON(content)
	if jsonErr != nil {
		s.log.Warn("Model returned non-JSON explanation; using structured fallback", "error", jsonErr.Error())
		return fallbackExplanation(latex, content), nil
	}

	raw, err := json.Marshal(obj)
	if err != nil {
		return out, fmt.Errorf("re-encode explanation: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		s.log.Warn("Explanation JSON did not match the expected shape; using structured fallback", "error", err.Error())
		return fallbackExplanation(latex, content), nil
	}
	if out.ProblemType == "" && len(out.Steps) == 0 {
		return fallbackExplanation(latex, content), nil
	}

	out.Source = "nemotron_openrouter"
	return out, nil
}

func fallbackExplanation(latex string, content string) types.ExplanationResult {
	return types.ExplanationResult{
		ProblemType: "Mathematical Expression",
		Steps: []types.ExplanationStep{
			{
				StepNumber:  1,
				Description: "Analyze the expression",
				Latex:       latex,
				Explanation: strings.TrimSpace(content),
			},
		},
		KeyConcepts:    []string{"Mathematical Analysis"},
		CommonMistakes: []string{"Parsing errors"},
		FinalAnswer:    latex,
		Source:         "nemotron_openrouter",
	}
}
