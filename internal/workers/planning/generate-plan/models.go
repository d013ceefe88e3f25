// internal/workers/planning/generate-plan/models.go
package generateplan

import (
	"time"

	"ai-planner/internal/models"
)

type Input struct {
	Brief string `json:"brief"`
}

type Output struct {
	Plan       *models.Plan  `json:"plan"`
	Model      string        `json:"model"`
	TokensUsed int           `json:"tokensUsed"`
	Duration   time.Duration `json:"duration"`
}
