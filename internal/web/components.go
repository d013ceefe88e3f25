package web

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/a-h/templ"

	apperrors "ai-planner/internal/common/errors"
	"ai-planner/internal/models"
	"ai-planner/pkg/registry"
)

//go:generate templ generate

// PageData is everything the page renders. Plan may be nil.
type PageData struct {
	AppName              string
	CredentialConfigured bool
	CredentialEnvVar     string
	Examples             []registry.Example
	Brief                string
	FileName             string
	MaxUploadBytes       int64

	Notice string
	Error  *apperrors.StandardError

	Plan       *models.Plan
	PlanHTML   string
	PlanJSON   string
	Model      string
	TokensUsed int
}

var riskMarkers = map[models.RiskLevel]string{
	models.RiskHigh:   "🔴",
	models.RiskMedium: "🟡",
	models.RiskLow:    "🟢",
}

func riskMarker(level models.RiskLevel) string {
	if m, ok := riskMarkers[level]; ok {
		return m
	}
	return riskMarkers[models.RiskMedium]
}

// unsafeHTML writes html as is. Only markdown rendered with raw HTML disabled
// and the page stylesheet go through it.
func unsafeHTML(html string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, html)
		return err
	})
}

func pageStyles() templ.Component {
	return unsafeHTML("<style>" + pageCSS + "</style>")
}

func itoa(n int) string { return strconv.Itoa(n) }

func oneDecimal(f float64) string { return strconv.FormatFloat(f, 'f', 1, 64) }

func weeksLabel(n int) string { return itoa(n) + " weeks" }

func uploadHint(maxBytes int64) string {
	return fmt.Sprintf("Upload a .txt or .md file containing your project brief (max %d KB)", maxBytes/1024)
}

func generatedBy(model string, tokens int) string {
	if tokens > 0 {
		return fmt.Sprintf("Generated by %s using %d tokens", model, tokens)
	}
	return "Generated by " + model
}

func milestoneTitle(m models.Milestone) string {
	return fmt.Sprintf("Week %d: %s", m.WeekNumber, m.Name)
}

func taskLine(t models.Task) string {
	marker := "📋"
	if t.CanParallel {
		marker = "🔄"
	}
	return fmt.Sprintf("%s %s (%dh)", marker, t.Name, t.EstimatedHours)
}

func riskLine(r models.Risk) string {
	return fmt.Sprintf("Impact: %s %s | Probability: %s %s",
		riskMarker(r.Impact), r.Impact, riskMarker(r.Probability), r.Probability)
}

// timelineBar is a timeline row with its bar width relative to the busiest
// milestone.
type timelineBar struct {
	models.TimelineEntry
	Width int
}

func (b timelineBar) Style() string {
	return "width: " + itoa(b.Width) + "%"
}

func timelineBars(p *models.Plan) []timelineBar {
	entries := p.Timeline()
	maxHours := 0
	for _, e := range entries {
		maxHours = max(maxHours, e.Hours)
	}

	bars := make([]timelineBar, 0, len(entries))
	for _, e := range entries {
		b := timelineBar{TimelineEntry: e}
		if maxHours > 0 {
			b.Width = e.Hours * 100 / maxHours
		}
		bars = append(bars, b)
	}
	return bars
}

const pageCSS = `
body { font-family: system-ui, sans-serif; margin: 0; color: #222; }
header { padding: 1rem 2rem; }
.main-header { text-align: center; color: #2E86AB; margin-bottom: 0.5rem; }
.tagline { text-align: center; color: #666; }
.layout { display: flex; gap: 2rem; padding: 0 2rem 2rem; }
aside { width: 280px; flex-shrink: 0; }
main { flex: 1; min-width: 0; }
.columns { display: flex; gap: 2rem; flex-wrap: wrap; }
.column { flex: 1; min-width: 300px; }
textarea { width: 100%; box-sizing: border-box; }
label, small { display: block; margin: 0.5rem 0; }
button.primary { width: 100%; padding: 0.7rem; margin-top: 1rem; background: #2E86AB; color: #fff; border: 0; border-radius: 4px; font-size: 1rem; cursor: pointer; }
button.primary:disabled { opacity: 0.6; }
a.button { display: inline-block; padding: 0.4rem 0.8rem; margin: 0.3rem 0; border: 1px solid #2E86AB; border-radius: 4px; color: #2E86AB; text-decoration: none; }
.examples { list-style: none; padding: 0; }
.success-box { background-color: #D4F1D4; border-left: 5px solid #4CAF50; padding: 1rem; margin: 1rem 0; }
.error-box { background-color: #FFE6E6; border-left: 5px solid #F44336; padding: 1rem; margin: 1rem 0; }
.info-box { background-color: #E3F2FD; border-left: 5px solid #2196F3; padding: 1rem; margin: 1rem 0; }
.waiting { margin-top: 1rem; color: #2E86AB; }
.spinner { display: inline-block; width: 12px; height: 12px; border: 2px solid #2E86AB; border-top-color: transparent; border-radius: 50%; animation: spin 1s linear infinite; }
@keyframes spin { to { transform: rotate(360deg); } }
.metrics { display: flex; flex-wrap: wrap; gap: 1rem; }
.metric { min-width: 120px; }
.metric .label { display: block; font-size: 0.85rem; color: #666; }
.metric .value { display: block; font-size: 1.6rem; }
.meta { font-size: 0.8rem; color: #888; }
details.tab { margin: 1rem 0; border: 1px solid #ddd; border-radius: 4px; padding: 0.5rem 1rem; }
details.tab > summary { font-weight: bold; cursor: pointer; }
pre { background: #f6f8fa; padding: 1rem; overflow-x: auto; }
.timeline-entry { display: flex; align-items: center; margin: 20px 0; }
.timeline-entry .week { width: 40px; text-align: center; font-weight: bold; color: #2E86AB; }
.timeline-entry .dot { width: 20px; height: 20px; border-radius: 50%; background-color: #2E86AB; margin: 0 10px; }
.timeline-entry .card { flex: 1; background-color: #f0f2f6; padding: 10px; border-radius: 5px; }
.timeline-entry .name { font-weight: bold; color: #2E86AB; }
.timeline-entry .desc { font-size: 12px; color: #666; margin-top: 5px; }
.timeline-entry .stats { font-size: 11px; color: #888; margin-top: 5px; }
.timeline-entry .bar { height: 4px; background: #2E86AB; margin-top: 6px; }
.risk { border-bottom: 1px solid #eee; margin-bottom: 0.5rem; }
`
