// internal/workers/planning/generate-plan/handler_test.go
package generateplan

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-planner/internal/common/config"
	apperrors "ai-planner/internal/common/errors"
	"ai-planner/internal/common/logger"
	"ai-planner/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

const conformingPlan = `{
  "project_name": "Fitness Tracker App",
  "project_summary": "Mobile app for workout tracking with social features.",
  "total_weeks": 8,
  "milestones": [
    {
      "name": "Beta Launch",
      "description": "Ship the beta to test users.",
      "week_number": 8,
      "deliverables": ["Beta build"],
      "tasks": [
        {"name": "TestFlight release", "description": "Publish beta", "estimated_hours": 6, "dependencies": ["Core tracking"], "can_parallel": false}
      ],
      "success_criteria": ["50 beta users"]
    },
    {
      "name": "Foundation",
      "description": "Set up project and core tracking.",
      "week_number": 2,
      "deliverables": ["Repo", "CI"],
      "tasks": [
        {"name": "Core tracking", "description": "Workout logging", "estimated_hours": 40, "dependencies": [], "can_parallel": true}
      ],
      "success_criteria": ["Workouts persist"]
    }
  ],
  "risks": [
    {"title": "App store review", "description": "Delays", "impact": "Medium", "probability": "Medium", "mitigation": "Submit early"},
    {"title": "Scope creep", "description": "Social features grow", "impact": "High", "probability": "Medium", "mitigation": "Freeze scope"},
    {"title": "Sync bugs", "description": "Offline sync", "impact": "Medium", "probability": "Low", "mitigation": "Test offline"}
  ],
  "monitoring_checkpoints": ["Weekly demo"],
  "parallel_opportunities": ["Design while backend is built"]
}`

type mockLLM struct {
	server   *httptest.Server
	requests int32
	lastBody atomic.Value
	lastAuth atomic.Value
}

func newMockLLM(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *mockLLM {
	t.Helper()
	m := &mockLLM{}
	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&m.requests, 1)
		m.lastAuth.Store(r.Header.Get("Authorization"))

		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			m.lastBody.Store(req)
		}
		handler(w, r)
	}))
	t.Cleanup(m.server.Close)
	return m
}

func (m *mockLLM) count() int {
	return int(atomic.LoadInt32(&m.requests))
}

func (m *mockLLM) lastRequest() openai.ChatCompletionRequest {
	v, _ := m.lastBody.Load().(openai.ChatCompletionRequest)
	return v
}

func respondWith(content string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		writeCompletion(w, content)
	}
}

func writeCompletion(w http.ResponseWriter, content string) {
	resp := openai.ChatCompletionResponse{
		ID:      "chatcmpl-test",
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   "llama-3.3-70b-versatile",
		Choices: []openai.ChatCompletionChoice{
			{
				Index:        0,
				Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
				FinishReason: openai.FinishReasonStop,
			},
		},
		Usage: openai.Usage{PromptTokens: 400, CompletionTokens: 900, TotalTokens: 1300},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func respondStatus(status int, body string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func createTestConfig(baseURL string) *Config {
	return &Config{
		BaseURL:       baseURL,
		APIKey:        "gsk_test",
		Model:         "llama-3.3-70b-versatile",
		Temperature:   0.1,
		MaxTokens:     4000,
		Timeout:       5 * time.Second,
		JSONMode:      true,
		MaxBriefBytes: models.DefaultMaxBriefBytes,
	}
}

func newTestHandler(t *testing.T, cfg *Config) *Handler {
	return NewHandler(cfg, logger.NewTestLogger(t))
}

func requireCode(t *testing.T, err error, code apperrors.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	var se *apperrors.StandardError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, code, se.Code, se.Error())
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_Success(t *testing.T) {
	mock := newMockLLM(t, respondWith(conformingPlan))
	h := newTestHandler(t, createTestConfig(mock.server.URL))

	output, err := h.Execute(context.Background(), &Input{Brief: "Build a fitness tracking app with social features"})
	require.NoError(t, err)
	require.NotNil(t, output)

	assert.Equal(t, 1, mock.count())

	plan := output.Plan
	assert.GreaterOrEqual(t, plan.WeekCount(), models.MinWeeks)
	assert.LessOrEqual(t, plan.WeekCount(), models.MaxWeeks)
	assert.Equal(t, "Fitness Tracker App", plan.ProjectName)
	assert.Len(t, plan.Risks, 3)
	assert.Equal(t, "Foundation", plan.Milestones[0].Name, "milestones are ordered by week")
	assert.Equal(t, 1300, output.TokensUsed)
	assert.Equal(t, "llama-3.3-70b-versatile", output.Model)
	assert.Greater(t, output.Duration, time.Duration(0))
}

func TestHandler_Execute_RequestShape(t *testing.T) {
	mock := newMockLLM(t, respondWith(conformingPlan))
	h := newTestHandler(t, createTestConfig(mock.server.URL+"/"))

	brief := "Redesign the company website with a CRM integration"
	_, err := h.Execute(context.Background(), &Input{Brief: "  " + brief + "\r\n"})
	require.NoError(t, err)

	req := mock.lastRequest()
	assert.Equal(t, "Bearer gsk_test", mock.lastAuth.Load())
	assert.Equal(t, "llama-3.3-70b-versatile", req.Model)
	assert.InDelta(t, 0.1, req.Temperature, 0.0001)
	assert.Equal(t, 4000, req.MaxTokens)
	require.NotNil(t, req.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, req.ResponseFormat.Type)

	require.Len(t, req.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "expert project manager")
	assert.Equal(t, openai.ChatMessageRoleUser, req.Messages[1].Role)
	assert.Contains(t, req.Messages[1].Content, "Project Brief:\n"+brief+"\n")
	assert.Contains(t, req.Messages[1].Content, "4-12 week timeline")
	assert.Contains(t, req.Messages[1].Content, "Exactly 3 risks")
}

func TestHandler_Execute_JSONModeDisabled(t *testing.T) {
	mock := newMockLLM(t, respondWith(conformingPlan))
	cfg := createTestConfig(mock.server.URL)
	cfg.JSONMode = false
	h := newTestHandler(t, cfg)

	_, err := h.Execute(context.Background(), &Input{Brief: "A brief"})
	require.NoError(t, err)
	assert.Nil(t, mock.lastRequest().ResponseFormat)
}

// ==========================
// Input Validation Tests
// ==========================

func TestHandler_Execute_RejectsBeforeRequest(t *testing.T) {
	tests := []struct {
		name   string
		brief  string
		config func(cfg *Config)
		code   apperrors.ErrorCode
	}{
		{name: "empty brief", brief: "", code: apperrors.ErrCodeBriefEmpty},
		{name: "whitespace brief", brief: " \n\t ", code: apperrors.ErrCodeBriefEmpty},
		{
			name:   "oversized brief",
			brief:  strings.Repeat("a", 101),
			config: func(cfg *Config) { cfg.MaxBriefBytes = 100 },
			code:   apperrors.ErrCodeBriefInvalid,
		},
		{name: "invalid utf-8", brief: "plan \xff\xfe", code: apperrors.ErrCodeBriefInvalid},
		{
			name:   "missing credential",
			brief:  "Build an app",
			config: func(cfg *Config) { cfg.APIKey = "  " },
			code:   apperrors.ErrCodeCredentialMissing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockLLM(t, respondWith(conformingPlan))
			cfg := createTestConfig(mock.server.URL)
			if tt.config != nil {
				tt.config(cfg)
			}
			h := newTestHandler(t, cfg)

			output, err := h.Execute(context.Background(), &Input{Brief: tt.brief})
			assert.Nil(t, output)
			requireCode(t, err, tt.code)
			assert.Equal(t, 0, mock.count(), "no request may be made")
		})
	}
}

// ==========================
// Upstream Failure Tests
// ==========================

func TestHandler_Execute_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		code      apperrors.ErrorCode
		retryable bool
	}{
		{
			name:      "server error",
			status:    http.StatusInternalServerError,
			body:      `{"error":{"message":"internal error","type":"server_error"}}`,
			code:      apperrors.ErrCodeLLMUnavailable,
			retryable: true,
		},
		{
			name:      "bad gateway with html body",
			status:    http.StatusBadGateway,
			body:      `<html>bad gateway</html>`,
			code:      apperrors.ErrCodeLLMUnavailable,
			retryable: true,
		},
		{
			name:   "invalid key",
			status: http.StatusUnauthorized,
			body:   `{"error":{"message":"Invalid API Key","type":"invalid_request_error","code":"invalid_api_key"}}`,
			code:   apperrors.ErrCodeCredentialInvalid,
		},
		{
			name:   "forbidden",
			status: http.StatusForbidden,
			body:   `{"error":{"message":"forbidden","type":"permission_error"}}`,
			code:   apperrors.ErrCodeCredentialInvalid,
		},
		{
			name:      "rate limited",
			status:    http.StatusTooManyRequests,
			body:      `{"error":{"message":"Rate limit reached","type":"tokens"}}`,
			code:      apperrors.ErrCodeLLMRateLimited,
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockLLM(t, respondStatus(tt.status, tt.body))
			h := newTestHandler(t, createTestConfig(mock.server.URL))

			output, err := h.Execute(context.Background(), &Input{Brief: "Build a data pipeline"})
			assert.Nil(t, output)
			requireCode(t, err, tt.code)
			assert.Equal(t, tt.retryable, apperrors.Normalize(err).Retryable)
			assert.Equal(t, 1, mock.count(), "failures are not retried")
		})
	}
}

func TestHandler_Execute_Timeout(t *testing.T) {
	mock := newMockLLM(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	cfg := createTestConfig(mock.server.URL)
	cfg.Timeout = 100 * time.Millisecond
	h := newTestHandler(t, cfg)

	start := time.Now()
	output, err := h.Execute(context.Background(), &Input{Brief: "Build an app"})
	elapsed := time.Since(start)

	assert.Nil(t, output)
	requireCode(t, err, apperrors.ErrCodeLLMTimeout)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestHandler_Execute_Unreachable(t *testing.T) {
	mock := newMockLLM(t, respondWith(conformingPlan))
	url := mock.server.URL
	mock.server.Close()

	h := newTestHandler(t, createTestConfig(url))
	_, err := h.Execute(context.Background(), &Input{Brief: "Build an app"})
	requireCode(t, err, apperrors.ErrCodeLLMUnavailable)
}

// ==========================
// Response Validation Tests
// ==========================

func TestHandler_Execute_MalformedResponses(t *testing.T) {
	tests := []struct {
		name    string
		handler func(w http.ResponseWriter, r *http.Request)
		code    apperrors.ErrorCode
	}{
		{
			name:    "prose only",
			handler: respondWith("Sure! Here is your plan: week one, do things."),
			code:    apperrors.ErrCodePlanMalformed,
		},
		{
			name:    "broken json",
			handler: respondWith(`{"project_name": "x", "total_weeks": }`),
			code:    apperrors.ErrCodePlanMalformed,
		},
		{
			name:    "empty content",
			handler: respondWith("   "),
			code:    apperrors.ErrCodePlanMalformed,
		},
		{
			name: "no choices",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","model":"m","choices":[]}`))
			},
			code: apperrors.ErrCodePlanMalformed,
		},
		{
			name:    "missing required fields",
			handler: respondWith(`{"project_name": "Only a name"}`),
			code:    apperrors.ErrCodePlanSchemaInvalid,
		},
		{
			name:    "timeline too long",
			handler: respondWith(strings.Replace(conformingPlan, `"total_weeks": 8`, `"total_weeks": 20`, 1)),
			code:    apperrors.ErrCodePlanSchemaInvalid,
		},
		{
			name:    "unknown risk level",
			handler: respondWith(strings.Replace(conformingPlan, `"impact": "High"`, `"impact": "Catastrophic"`, 1)),
			code:    apperrors.ErrCodePlanSchemaInvalid,
		},
		{
			name:    "milestone after last week",
			handler: respondWith(strings.Replace(conformingPlan, `"week_number": 8`, `"week_number": 9`, 1)),
			code:    apperrors.ErrCodePlanSchemaInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockLLM(t, tt.handler)
			h := newTestHandler(t, createTestConfig(mock.server.URL))

			output, err := h.Execute(context.Background(), &Input{Brief: "Build an app"})
			assert.Nil(t, output, "no partial data")
			requireCode(t, err, tt.code)
			assert.Equal(t, 1, mock.count())
		})
	}
}

func TestHandler_Execute_SchemaErrorNamesFields(t *testing.T) {
	mock := newMockLLM(t, respondWith(strings.Replace(conformingPlan, `"total_weeks": 8`, `"total_weeks": 2`, 1)))
	h := newTestHandler(t, createTestConfig(mock.server.URL))

	_, err := h.Execute(context.Background(), &Input{Brief: "Build an app"})
	requireCode(t, err, apperrors.ErrCodePlanSchemaInvalid)
	assert.Contains(t, apperrors.Normalize(err).UserMessage(), "total_weeks")
}

func TestHandler_Execute_TolerantExtraction(t *testing.T) {
	extraRisk := `{"title": "Budget", "description": "Overrun", "impact": "low", "probability": "HIGH", "mitigation": "Track spend"},`
	content := "Here is the plan you asked for:\n```json\n" +
		strings.Replace(conformingPlan, `"risks": [`, `"risks": [`+"\n    "+extraRisk, 1) +
		"\n```\nLet me know if you need changes."
	content = strings.Replace(content, `"parallel_opportunities": ["Design while backend is built"]`,
		`"parallel_opportunities": ["Design while backend is built",], // trailing`, 1)

	mock := newMockLLM(t, respondWith(content))
	h := newTestHandler(t, createTestConfig(mock.server.URL))

	output, err := h.Execute(context.Background(), &Input{Brief: "Build an app"})
	require.NoError(t, err)

	risks := output.Plan.Risks
	require.Len(t, risks, models.MaxRisks, "risks are trimmed to three")
	assert.Equal(t, "Budget", risks[0].Title)
	assert.Equal(t, models.RiskLow, risks[0].Impact)
	assert.Equal(t, models.RiskHigh, risks[0].Probability)
	assert.Equal(t, "Scope creep", risks[2].Title)
}

// ==========================
// Extraction Tests
// ==========================

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "bare object", content: `{"a": 1}`, want: `{"a": 1}`},
		{name: "fenced", content: "```json\n{\"a\": 1}\n```", want: `{"a": 1}`},
		{name: "fence without language", content: "```\n{\"a\": 1}\n```", want: `{"a": 1}`},
		{name: "surrounded by prose", content: "Plan:\n{\"a\": {\"b\": 2}}\nDone.", want: `{"a": {"b": 2}}`},
		{name: "trailing comma", content: `{"a": [1, 2,], "b": 3,}`, want: `{"a": [1, 2], "b": 3}`},
		{name: "line comment", content: "{\n\"url\": \"http://x.io\", // site\n\"b\": 1\n}", want: "{\n\"url\": \"http://x.io\",\n\"b\": 1\n}"},
		{name: "no object", content: "I cannot help with that.", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.content))
		})
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig(&config.Config{})
	assert.Equal(t, config.DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, config.DefaultModel, cfg.Model)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
	assert.Equal(t, models.DefaultMaxBriefBytes, cfg.MaxBriefBytes)
}

// ==========================
// Benchmark Tests
// ==========================

func BenchmarkHandler_Execute(b *testing.B) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeCompletion(w, conformingPlan)
	}))
	defer server.Close()

	h := NewHandler(createTestConfig(server.URL), logger.NewNoOpLogger())
	input := &Input{Brief: "Build a fitness tracking app"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = h.Execute(context.Background(), input)
	}
}
