package models

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	MinWeeks = 4
	MaxWeeks = 12

	// MaxRisks is the number of risks a plan keeps.
	MaxRisks = 3

	timelineDescriptionLimit = 100
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

type Risk struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Impact      RiskLevel `json:"impact"`
	Probability RiskLevel `json:"probability"`
	Mitigation  string    `json:"mitigation"`
}

type Task struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	EstimatedHours int      `json:"estimated_hours"`
	Dependencies   []string `json:"dependencies"`
	CanParallel    bool     `json:"can_parallel"`
}

type Milestone struct {
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	WeekNumber      int      `json:"week_number"`
	Deliverables    []string `json:"deliverables"`
	Tasks           []Task   `json:"tasks"`
	SuccessCriteria []string `json:"success_criteria"`
}

// Hours sums the estimates of the milestone's tasks.
func (m Milestone) Hours() int {
	total := 0
	for _, t := range m.Tasks {
		total += t.EstimatedHours
	}
	return total
}

// Plan is the validated multi-week project outline.
type Plan struct {
	ProjectName           string      `json:"project_name"`
	ProjectSummary        string      `json:"project_summary"`
	TotalWeeks            int         `json:"total_weeks"`
	Milestones            []Milestone `json:"milestones"`
	Risks                 []Risk      `json:"risks"`
	MonitoringCheckpoints []string    `json:"monitoring_checkpoints"`
	ParallelOpportunities []string    `json:"parallel_opportunities"`
}

// TimelineEntry is one row of the plan analysis timeline.
type TimelineEntry struct {
	Week        int
	Milestone   string
	Tasks       int
	Hours       int
	Description string
}

func (p *Plan) WeekCount() int {
	return p.TotalWeeks
}

func (p *Plan) TotalTasks() int {
	total := 0
	for _, m := range p.Milestones {
		total += len(m.Tasks)
	}
	return total
}

func (p *Plan) TotalHours() int {
	total := 0
	for _, m := range p.Milestones {
		total += m.Hours()
	}
	return total
}

// AverageHoursPerTask is 0 for a plan without tasks.
func (p *Plan) AverageHoursPerTask() float64 {
	tasks := p.TotalTasks()
	if tasks == 0 {
		return 0
	}
	return float64(p.TotalHours()) / float64(tasks)
}

// Timeline returns one entry per milestone ordered by week.
func (p *Plan) Timeline() []TimelineEntry {
	entries := make([]TimelineEntry, 0, len(p.Milestones))
	for _, m := range p.Milestones {
		entries = append(entries, TimelineEntry{
			Week:        m.WeekNumber,
			Milestone:   m.Name,
			Tasks:       len(m.Tasks),
			Hours:       m.Hours(),
			Description: truncate(m.Description, timelineDescriptionLimit),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Week < entries[j].Week })
	return entries
}

// Normalize trims risks to MaxRisks, orders milestones by week and replaces
// nil slices with empty ones so the JSON view never shows null.
func (p *Plan) Normalize() {
	if len(p.Risks) > MaxRisks {
		p.Risks = p.Risks[:MaxRisks]
	}
	sort.SliceStable(p.Milestones, func(i, j int) bool {
		return p.Milestones[i].WeekNumber < p.Milestones[j].WeekNumber
	})

	p.Milestones = nonNil(p.Milestones)
	p.Risks = nonNil(p.Risks)
	p.MonitoringCheckpoints = nonNil(p.MonitoringCheckpoints)
	p.ParallelOpportunities = nonNil(p.ParallelOpportunities)
	for i := range p.Milestones {
		m := &p.Milestones[i]
		m.Deliverables = nonNil(m.Deliverables)
		m.SuccessCriteria = nonNil(m.SuccessCriteria)
		m.Tasks = nonNil(m.Tasks)
		for j := range m.Tasks {
			m.Tasks[j].Dependencies = nonNil(m.Tasks[j].Dependencies)
		}
	}
}

// ToJSON renders the plan indented by two spaces.
func (p *Plan) ToJSON() ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// FileBaseName is the download name without extension.
func (p *Plan) FileBaseName() string {
	name := strings.ReplaceAll(strings.TrimSpace(p.ProjectName), " ", "_")
	name = unsafeFileChars.ReplaceAllString(name, "")
	name = strings.Trim(name, "._-")
	if name == "" {
		return "project_plan"
	}
	return name + "_plan"
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "..."
}
