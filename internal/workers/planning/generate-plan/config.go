// internal/workers/planning/generate-plan/config.go
package generateplan

import (
	"time"

	"ai-planner/internal/common/config"
	"ai-planner/internal/models"
)

type Config struct {
	BaseURL       string
	APIKey        string
	Model         string
	Temperature   float64
	MaxTokens     int
	Timeout       time.Duration
	JSONMode      bool
	MaxBriefBytes int
}

func LoadConfig(cfg *config.Config) *Config {
	c := &Config{
		BaseURL:       cfg.LLM.BaseURL,
		APIKey:        cfg.LLM.APIKey,
		Model:         cfg.LLM.Model,
		Temperature:   cfg.LLM.Temperature,
		MaxTokens:     cfg.LLM.MaxTokens,
		Timeout:       config.GetDuration(cfg.LLM.Timeout),
		JSONMode:      cfg.LLM.JSONMode,
		MaxBriefBytes: cfg.Upload.MaxBriefBytes,
	}
	if c.BaseURL == "" {
		c.BaseURL = config.DefaultBaseURL
	}
	if c.Model == "" {
		c.Model = config.DefaultModel
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxBriefBytes <= 0 {
		c.MaxBriefBytes = models.DefaultMaxBriefBytes
	}
	return c
}
