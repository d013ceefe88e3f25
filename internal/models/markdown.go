package models

import (
	"fmt"
	"strings"
)

// ToMarkdown converts the plan to a human-readable document.
func (p *Plan) ToMarkdown() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", p.ProjectName)
	fmt.Fprintf(&b, "**Project Summary:** %s\n\n", p.ProjectSummary)
	fmt.Fprintf(&b, "**Total Duration:** %d weeks\n\n", p.TotalWeeks)

	b.WriteString("## Milestones\n\n")
	for _, m := range p.Milestones {
		fmt.Fprintf(&b, "### %s (Week %d)\n", m.Name, m.WeekNumber)
		fmt.Fprintf(&b, "%s\n\n", m.Description)

		b.WriteString("**Deliverables:**\n")
		for _, d := range m.Deliverables {
			fmt.Fprintf(&b, "- %s\n", d)
		}

		b.WriteString("\n**Tasks:**\n")
		for _, t := range m.Tasks {
			parallel := ""
			if t.CanParallel {
				parallel = " (Can be done in parallel)"
			}
			fmt.Fprintf(&b, "- **%s** (%dh)%s\n", t.Name, t.EstimatedHours, parallel)
			fmt.Fprintf(&b, "  %s\n", t.Description)
			if len(t.Dependencies) > 0 {
				fmt.Fprintf(&b, "  Dependencies: %s\n", strings.Join(t.Dependencies, ", "))
			}
		}

		b.WriteString("\n**Success Criteria:**\n")
		for _, c := range m.SuccessCriteria {
			fmt.Fprintf(&b, "- %s\n", c)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Top 3 Risks\n\n")
	for i, r := range p.Risks {
		fmt.Fprintf(&b, "### %d. %s\n", i+1, r.Title)
		fmt.Fprintf(&b, "**Description:** %s\n", r.Description)
		fmt.Fprintf(&b, "**Impact:** %s | **Probability:** %s\n", r.Impact, r.Probability)
		fmt.Fprintf(&b, "**Mitigation:** %s\n\n", r.Mitigation)
	}

	b.WriteString("## Monitoring Checkpoints\n\n")
	for _, c := range p.MonitoringCheckpoints {
		fmt.Fprintf(&b, "- %s\n", c)
	}

	b.WriteString("\n## Parallel Work Opportunities\n\n")
	for _, o := range p.ParallelOpportunities {
		fmt.Fprintf(&b, "- %s\n", o)
	}

	return b.String()
}
