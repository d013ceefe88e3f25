// internal/workers/planning/generate-plan/handler.go
package generateplan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"ai-planner/internal/common/config"
	apperrors "ai-planner/internal/common/errors"
	apphttp "ai-planner/internal/common/http"
	"ai-planner/internal/common/logger"
	"ai-planner/internal/common/metrics"
	"ai-planner/internal/common/observability"
	"ai-planner/internal/common/validation"
	"ai-planner/internal/models"
)

const (
	TaskType = "generate-plan"
)

type Handler struct {
	config *Config
	client *openai.Client
	obs    *observability.Observability
	logger logger.Logger
}

type Option func(*options)

type options struct {
	httpClient openai.HTTPDoer
	obs        *observability.Observability
}

// WithHTTPClient replaces the instrumented default client.
func WithHTTPClient(c openai.HTTPDoer) Option {
	return func(o *options) { o.httpClient = c }
}

func WithObservability(obs *observability.Observability) Option {
	return func(o *options) { o.obs = obs }
}

func NewHandler(cfg *Config, log logger.Logger, opts ...Option) *Handler {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.httpClient == nil {
		// The context deadline fires first; the client timeout only catches a
		// stuck body read after it.
		o.httpClient = apphttp.NewClient(cfg.Timeout + 5*time.Second)
	}
	if o.obs == nil {
		o.obs = observability.NewNoop()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	clientCfg.HTTPClient = o.httpClient

	return &Handler{
		config: cfg,
		client: openai.NewClientWithConfig(clientCfg),
		obs:    o.obs,
		logger: log.With(map[string]interface{}{
			"taskType": TaskType,
		}),
	}
}

// Execute turns a brief into a validated plan with exactly one completion
// request. Every failure is a *apperrors.StandardError and no partial plan is
// ever returned alongside one.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	start := time.Now()

	output, err := h.execute(ctx, input)
	duration := time.Since(start)

	status := "success"
	if err != nil {
		status = "failure"
		metrics.PlanGenerationsFailed.WithLabelValues(string(apperrors.Normalize(err).Code)).Inc()
	} else {
		metrics.PlansGenerated.Inc()
		output.Duration = duration
	}
	metrics.PlanGenerationDuration.Observe(duration.Seconds())
	h.obs.RecordGeneration(ctx, status)
	h.obs.RecordGenerationDuration(ctx, duration, status)

	return output, err
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	brief := models.NewBrief(input.Brief, models.BriefSourcePaste)
	if brief.IsEmpty() {
		return nil, apperrors.NewBriefEmptyError()
	}
	if problem := brief.CheckLength(h.config.MaxBriefBytes); problem != "" {
		return nil, apperrors.NewBriefInvalidError(problem)
	}
	if strings.TrimSpace(h.config.APIKey) == "" {
		return nil, apperrors.NewCredentialMissingError(config.CredentialEnvVar)
	}
	h.obs.RecordBriefSize(ctx, len(brief.Text))

	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	metrics.PlanGenerationsActive.Inc()
	resp, err := h.client.CreateChatCompletion(ctx, h.buildRequest(brief.Text))
	metrics.PlanGenerationsActive.Dec()
	if err != nil {
		return nil, h.classify(ctx, err)
	}

	if len(resp.Choices) == 0 {
		return nil, apperrors.NewPlanMalformedError("completion has no choices", nil)
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return nil, apperrors.NewPlanMalformedError("completion content is empty", nil)
	}

	plan, err := h.parsePlan(content)
	if err != nil {
		h.logger.Warn("plan rejected", map[string]interface{}{
			"model":        resp.Model,
			"finishReason": string(resp.Choices[0].FinishReason),
			"error":        err.Error(),
		})
		return nil, err
	}

	h.logger.Info("plan generated", map[string]interface{}{
		"model":      resp.Model,
		"totalWeeks": plan.TotalWeeks,
		"milestones": len(plan.Milestones),
		"tokensUsed": resp.Usage.TotalTokens,
	})

	model := resp.Model
	if model == "" {
		model = h.config.Model
	}
	return &Output{
		Plan:       plan,
		Model:      model,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

// parsePlan extracts, schema-checks and decodes the completion content.
func (h *Handler) parsePlan(content string) (*models.Plan, error) {
	raw := extractJSON(content)
	if raw == "" {
		return nil, apperrors.NewPlanMalformedError("no JSON object in completion", nil)
	}

	var doc interface{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, apperrors.NewPlanMalformedError("decode completion", err)
	}
	canonicalizeLevels(doc)

	result, err := validation.ValidatePlanDocument(doc)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if !result.Valid {
		return nil, apperrors.NewPlanSchemaInvalidError(result.GetErrorMessages())
	}

	normalized, err := json.Marshal(doc)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	var plan models.Plan
	if err := json.Unmarshal(normalized, &plan); err != nil {
		return nil, apperrors.NewPlanSchemaInvalidError([]string{err.Error()})
	}

	if cross := validation.ValidatePlan(&plan); !cross.Valid {
		return nil, apperrors.NewPlanSchemaInvalidError(cross.GetErrorMessages())
	}

	plan.Normalize()
	return &plan, nil
}

func (h *Handler) classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewLLMTimeoutError(h.config.Timeout)
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	h.logger.Error("completion request failed", map[string]interface{}{
		"status": status,
		"error":  err.Error(),
	})

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperrors.NewCredentialInvalidError(err)
	case status == http.StatusTooManyRequests:
		return apperrors.NewLLMRateLimitedError(err)
	case status >= 500:
		return apperrors.NewLLMUnavailableError(fmt.Errorf("provider returned status %d: %w", status, err))
	default:
		return apperrors.NewLLMUnavailableError(err)
	}
}

// canonicalizeLevels title-cases risk impact and probability so "medium"
// passes the schema's Low/Medium/High enum. Other values are left for the
// schema to reject.
func canonicalizeLevels(doc interface{}) {
	root, ok := doc.(map[string]interface{})
	if !ok {
		return
	}
	risks, ok := root["risks"].([]interface{})
	if !ok {
		return
	}
	for _, r := range risks {
		risk, ok := r.(map[string]interface{})
		if !ok {
			continue
		}
		for _, key := range []string{"impact", "probability"} {
			s, ok := risk[key].(string)
			if !ok {
				continue
			}
			switch strings.ToLower(strings.TrimSpace(s)) {
			case "low":
				risk[key] = string(models.RiskLow)
			case "medium":
				risk[key] = string(models.RiskMedium)
			case "high":
				risk[key] = string(models.RiskHigh)
			}
		}
	}
}
