// test/e2e/e2e_test.go
package e2e

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-planner/internal/common/config"
	"ai-planner/internal/common/logger"
	"ai-planner/internal/models"
	"ai-planner/internal/web"
	generateplan "ai-planner/internal/workers/planning/generate-plan"
	"ai-planner/pkg/registry"
)

const cannedPlan = "Here is your plan:\n```json\n" + `{
  "project_name": "Expense Tracker App",
  "project_summary": "iOS and Android expense tracking with receipt scanning and monthly reports.",
  "total_weeks": 8,
  "milestones": [
    {
      "name": "Foundation",
      "description": "Project setup, auth and data model.",
      "week_number": 2,
      "deliverables": ["Login screens", "Expense schema"],
      "tasks": [
        {"name": "Auth", "description": "Email and social login", "estimated_hours": 24, "dependencies": [], "can_parallel": true},
        {"name": "Data model", "description": "Expenses and categories", "estimated_hours": 12, "dependencies": [], "can_parallel": true}
      ],
      "success_criteria": ["Users can sign in on both platforms"]
    },
    {
      "name": "Receipt scanning",
      "description": "OCR capture and categorization.",
      "week_number": 5,
      "deliverables": ["Scanner"],
      "tasks": [
        {"name": "OCR integration", "description": "Extract totals from photos", "estimated_hours": 32, "dependencies": ["Data model"], "can_parallel": false}
      ],
      "success_criteria": ["90% of test receipts parsed"]
    },
    {
      "name": "Reports and launch",
      "description": "Monthly reports and store submission.",
      "week_number": 8,
      "deliverables": ["Monthly report", "Store listings"],
      "tasks": [
        {"name": "Reports", "description": "Aggregate by category", "estimated_hours": 20, "dependencies": ["OCR integration"], "can_parallel": true}
      ],
      "success_criteria": ["Apps approved"]
    }
  ],
  "risks": [
    {"title": "OCR accuracy", "description": "Crumpled receipts", "impact": "high", "probability": "medium", "mitigation": "Manual correction screen"},
    {"title": "Store review", "description": "Review delays", "impact": "Medium", "probability": "Low", "mitigation": "Submit a week early"},
    {"title": "Scope creep", "description": "Extra report types", "impact": "Medium", "probability": "Medium", "mitigation": "Weekly triage"}
  ],
  "monitoring_checkpoints": ["Weekly demo", "Crash-free rate"],
  "parallel_opportunities": ["Auth and data model"]
}` + "\n```"

// ==========================
// Harness
// ==========================

type harness struct {
	t       *testing.T
	app     *httptest.Server
	client  *http.Client
	llmHits *int32
	lastReq atomic.Value
}

func writeConfig(t *testing.T, llmURL, redisAddr string) string {
	t.Helper()
	body := fmt.Sprintf(`app:
  name: AI Planner Agent
  environment: test
llm:
  base_url: %s
  api_key: gsk_e2e_key
  model: llama-3.3-70b-versatile
  temperature: 0.1
  max_tokens: 4000
  timeout: 5000
  json_mode: true
session:
  ttl: 600000
redis:
  enabled: true
  address: %s
rate_limit:
  enabled: false
logging:
  level: debug
  format: console
`, llmURL, redisAddr)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// newHarness wires the binary's components against a mock LLM and miniredis.
func newHarness(t *testing.T, llm http.HandlerFunc) *harness {
	t.Helper()
	h := &harness{t: t, llmHits: new(int32)}

	llmServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(h.llmHits, 1)
		var req openai.ChatCompletionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		h.lastReq.Store(req)
		llm(w, r)
	}))
	t.Cleanup(llmServer.Close)

	mr := miniredis.RunT(t)

	cfg, _, err := config.LoadFromFile(writeConfig(t, llmServer.URL, mr.Addr()))
	require.NoError(t, err)

	log := logger.NewTestLogger(t)
	sessions, redisClient, err := web.NewSessionStore(cfg)
	require.NoError(t, err)
	require.NotNil(t, redisClient)
	t.Cleanup(func() { _ = redisClient.Close() })

	examples, err := registry.LoadRegistry(cfg.Examples.Path)
	require.NoError(t, err)

	gen := generateplan.NewHandler(generateplan.LoadConfig(cfg), log)
	srv := web.NewServer(cfg, gen, sessions, examples, log)

	h.app = httptest.NewServer(srv.Handler())
	t.Cleanup(h.app.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	h.client = &http.Client{Jar: jar}
	return h
}

func (h *harness) get(path string) (*http.Response, string) {
	h.t.Helper()
	resp, err := h.client.Get(h.app.URL + path)
	require.NoError(h.t, err)
	return resp, readBody(h.t, resp)
}

func (h *harness) generate(brief string) (*http.Response, string) {
	h.t.Helper()
	resp, err := h.client.PostForm(h.app.URL+"/generate", url.Values{"brief": {brief}})
	require.NoError(h.t, err)
	return resp, readBody(h.t, resp)
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func completion(content string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			ID:     "chatcmpl-e2e",
			Object: "chat.completion",
			Model:  "llama-3.3-70b-versatile",
			Choices: []openai.ChatCompletionChoice{{
				Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
				FinishReason: openai.FinishReasonStop,
			}},
			Usage: openai.Usage{PromptTokens: 600, CompletionTokens: 900, TotalTokens: 1500},
		})
	}
}

// ==========================
// Journeys
// ==========================

func TestPlannerJourney(t *testing.T) {
	h := newHarness(t, completion(cannedPlan))

	t.Log("🔍 Landing page")
	resp, body := h.get("/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Groq API Key configured")
	assert.Contains(t, body, "Load Mobile App Example")
	assert.NotContains(t, body, "Download Markdown")

	t.Log("📋 Load example brief")
	resp, body = h.get("/examples/mobile-app")
	require.Equal(t, http.StatusOK, resp.StatusCode, "redirect is followed back to the page")
	assert.Contains(t, body, "receipt scanning, categorization")

	t.Log("🚀 Generate plan")
	brief := "Build a mobile expense tracking app for iOS and Android with receipt scanning."
	resp, body = h.generate(brief)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Contains(t, body, "Plan generated successfully")
	assert.Contains(t, body, "Expense Tracker App")
	assert.Contains(t, body, "Week 5: Receipt scanning")
	assert.EqualValues(t, 1, atomic.LoadInt32(h.llmHits))

	req := h.lastReq.Load().(openai.ChatCompletionRequest)
	require.Len(t, req.Messages, 2)
	assert.Contains(t, req.Messages[1].Content, brief)

	t.Log("📥 Downloads")
	resp, body = h.get("/plan.json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), `filename="Expense_Tracker_App_plan.json"`)
	var plan models.Plan
	require.NoError(t, json.Unmarshal([]byte(body), &plan))
	assert.Equal(t, 8, plan.TotalWeeks)
	assert.Len(t, plan.Risks, 3)
	assert.Equal(t, models.RiskHigh, plan.Risks[0].Impact, "levels are canonicalized")

	resp, body = h.get("/plan.md")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(body, "# Expense Tracker App"))

	t.Log("🔁 Reload keeps the plan")
	_, body = h.get("/")
	assert.Contains(t, body, "Expense Tracker App")

	t.Log("📊 Ops endpoints")
	resp, _ = h.get("/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = h.get("/ready")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body = h.get("/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "planner_plans_generated_total")
	assert.Contains(t, body, "planner_http_requests_total")

	t.Log("✅ Journey complete")
}

func TestPlannerJourney_FailuresKeepServing(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"over capacity","type":"server_error"}}`))
			return
		}
		completion(cannedPlan)(w, r)
	})

	resp, body := h.generate("   ")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, `data-code="BRIEF_EMPTY"`)
	assert.EqualValues(t, 0, atomic.LoadInt32(h.llmHits), "empty brief never reaches the provider")

	resp, body = h.generate("Redesign the company website.")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, body, `data-code="LLM_UNAVAILABLE"`)
	assert.Contains(t, body, "Redesign the company website.", "brief is kept for retry")

	resp, _ = h.get("/plan.md")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	fail.Store(false)
	resp, body = h.generate("Redesign the company website.")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Contains(t, body, "Expense Tracker App")
	assert.EqualValues(t, 2, atomic.LoadInt32(h.llmHits))
}

// TestLiveGroq runs one real generation when PLANNER_E2E_LIVE=1 and a key is set.
func TestLiveGroq(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping live provider test in short mode")
	}
	if os.Getenv("PLANNER_E2E_LIVE") != "1" || os.Getenv(config.CredentialEnvVar) == "" {
		t.Skip("set PLANNER_E2E_LIVE=1 and " + config.CredentialEnvVar + " to run against Groq")
	}

	cfg := &config.Config{
		LLM: config.LLMConfig{
			BaseURL:     config.DefaultBaseURL,
			APIKey:      os.Getenv(config.CredentialEnvVar),
			Model:       config.DefaultModel,
			Temperature: 0.1,
			MaxTokens:   4000,
			Timeout:     60000,
			JSONMode:    true,
		},
	}
	gen := generateplan.NewHandler(generateplan.LoadConfig(cfg), logger.NewTestLogger(t))

	out, err := gen.Execute(t.Context(), &generateplan.Input{
		Brief: "Create an automated data pipeline to extract customer data from multiple sources, transform it, and load into a data warehouse for analytics.",
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, out.Plan.TotalWeeks, models.MinWeeks)
	assert.LessOrEqual(t, out.Plan.TotalWeeks, models.MaxWeeks)
	assert.Len(t, out.Plan.Risks, 3)
	t.Logf("✅ %s: %d weeks, %d milestones, %d tokens", out.Plan.ProjectName, out.Plan.TotalWeeks, len(out.Plan.Milestones), out.TokensUsed)
}
