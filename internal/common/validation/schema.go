package validation

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"ai-planner/internal/models"
)

//go:embed schemas/plan.schema.json
var planSchemaJSON []byte

var (
	planSchemaOnce sync.Once
	planSchema     *gojsonschema.Schema
	planSchemaErr  error
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// PlanSchema returns the raw JSON Schema a plan document must satisfy.
func PlanSchema() []byte {
	return planSchemaJSON
}

func compiledPlanSchema() (*gojsonschema.Schema, error) {
	planSchemaOnce.Do(func() {
		planSchema, planSchemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(planSchemaJSON))
	})
	return planSchema, planSchemaErr
}

// ValidatePlanDocument checks a decoded JSON document (as produced by
// json.Unmarshal into interface{}) against the plan schema.
func ValidatePlanDocument(doc interface{}) (*ValidationResult, error) {
	schema, err := compiledPlanSchema()
	if err != nil {
		return nil, fmt.Errorf("compile plan schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
			Code:    desc.Type(),
		})
	}
	sortErrors(out.Errors)
	return out, nil
}

// ValidatePlan checks the rules a JSON Schema cannot express.
func ValidatePlan(p *models.Plan) *ValidationResult {
	var errs []ValidationError

	for i, m := range p.Milestones {
		if m.WeekNumber > p.TotalWeeks {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("milestones.%d.week_number", i),
				Message: fmt.Sprintf("week %d is after the plan's last week %d", m.WeekNumber, p.TotalWeeks),
				Code:    "week_out_of_range",
			})
		}
	}

	for i, m := range p.Milestones {
		for j, t := range m.Tasks {
			for _, dep := range t.Dependencies {
				if dep == t.Name {
					errs = append(errs, ValidationError{
						Field:   fmt.Sprintf("milestones.%d.tasks.%d.dependencies", i, j),
						Message: fmt.Sprintf("task %q depends on itself", t.Name),
						Code:    "self_dependency",
					})
				}
			}
		}
	}

	return &ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

func sortErrors(errs []ValidationError) {
	sort.SliceStable(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
}

// GetErrorMessages returns a simple list of error messages
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}

// HasErrors checks if validation has errors for specific field
func (vr *ValidationResult) HasErrors(field string) bool {
	for _, err := range vr.Errors {
		if err.Field == field {
			return true
		}
	}
	return false
}

// GetErrorsForField returns errors for a field and everything nested under it.
func (vr *ValidationResult) GetErrorsForField(field string) []ValidationError {
	var fieldErrors []ValidationError
	for _, err := range vr.Errors {
		if err.Field == field || strings.HasPrefix(err.Field, field+".") {
			fieldErrors = append(fieldErrors, err)
		}
	}
	return fieldErrors
}
