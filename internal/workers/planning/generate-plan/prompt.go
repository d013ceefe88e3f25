// internal/workers/planning/generate-plan/prompt.go
package generateplan

import (
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const systemPrompt = "You are an expert project manager who creates detailed, realistic project plans. Always respond with valid JSON only."

const planSkeleton = `{
  "project_name": "string",
  "project_summary": "string",
  "total_weeks": number,
  "milestones": [
    {
      "name": "string",
      "description": "string",
      "week_number": number,
      "deliverables": ["string"],
      "tasks": [
        {
          "name": "string",
          "description": "string",
          "estimated_hours": number,
          "dependencies": ["string"],
          "can_parallel": boolean
        }
      ],
      "success_criteria": ["string"]
    }
  ],
  "risks": [
    {
      "title": "string",
      "description": "string",
      "impact": "Low|Medium|High",
      "probability": "Low|Medium|High",
      "mitigation": "string"
    }
  ],
  "monitoring_checkpoints": ["string"],
  "parallel_opportunities": ["string"]
}`

var requirements = []string{
	"Realistic 4-12 week timeline",
	"Detailed tasks & hour estimates",
	"Exactly 3 risks with mitigations",
	"Mark parallel-capable tasks",
	"Include monitoring checkpoints",
}

func (h *Handler) buildPrompt(brief string) string {
	var parts []string

	parts = append(parts, "Create a detailed project plan for the following project brief. Respond with ONLY valid JSON matching this exact structure:")
	parts = append(parts, "\n"+planSkeleton)

	parts = append(parts, "\nRequirements:")
	for _, r := range requirements {
		parts = append(parts, "- "+r)
	}

	parts = append(parts, "\nProject Brief:")
	parts = append(parts, brief)

	parts = append(parts, "\nRespond with valid JSON only:")

	return strings.Join(parts, "\n")
}

func (h *Handler) buildRequest(brief string) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model: h.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: h.buildPrompt(brief)},
		},
		Temperature: float32(h.config.Temperature),
		MaxTokens:   h.config.MaxTokens,
	}
	if h.config.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return req
}
