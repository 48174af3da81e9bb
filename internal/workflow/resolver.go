package workflow

import (
	"fmt"
	"strings"

	"github.com/cutline/orchestrator/internal/domain"
	"github.com/cutline/orchestrator/internal/tools"
)

// ValidationError reports every override problem found while resolving a
// workflow. Resolution is all-or-nothing: if any override is invalid, no
// override is applied and no step runs.
type ValidationError struct {
	Workflow string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("workflow %q overrides rejected: %s", e.Workflow, strings.Join(e.Problems, "; "))
}

// Resolver expands a workflow template into a concrete step list, merging
// validated user overrides over the template defaults. The tool registry
// supplies the operation class for each step's tool.
type Resolver struct {
	catalog  *Catalog
	registry *tools.Registry
}

func NewResolver(catalog *Catalog, registry *tools.Registry) *Resolver {
	return &Resolver{catalog: catalog, registry: registry}
}

// Resolve looks up the named template, validates every override against the
// per-step argument schema, and returns the merged step list. Step order,
// dependencies, resource locks, and confirmation requirements come from the
// template and cannot be overridden.
func (r *Resolver) Resolve(name string, overrides []domain.StepOverride) (*domain.ResolvedWorkflow, error) {
	tmpl, ok := r.catalog.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown workflow %q", name)
	}

	byID := make(map[string]int, len(tmpl.Steps))
	for i, s := range tmpl.Steps {
		byID[s.ID] = i
	}

	// Validate everything before applying anything.
	var problems []string
	merged := make([]map[string]any, len(tmpl.Steps))
	for i, s := range tmpl.Steps {
		args := make(map[string]any, len(s.Arguments))
		for k, v := range s.Arguments {
			args[k] = v
		}
		merged[i] = args
	}

	for _, ov := range overrides {
		idx, label, err := r.targetStep(tmpl, byID, ov)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		step := tmpl.Steps[idx]
		for key, value := range ov.Arguments {
			if err := validateOverride(step, key, value); err != nil {
				problems = append(problems, fmt.Sprintf("step %s: %v", label, err))
				continue
			}
			merged[idx][key] = value
		}
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Workflow: name, Problems: problems}
	}

	steps := make([]domain.PlanStep, len(tmpl.Steps))
	for i, s := range tmpl.Steps {
		def, ok := r.registry.Get(s.ToolName)
		if !ok {
			return nil, fmt.Errorf("workflow %q step %q references unknown tool %q", name, s.ID, s.ToolName)
		}
		steps[i] = domain.PlanStep{
			ID:                   s.ID,
			ToolName:             s.ToolName,
			Arguments:            merged[i],
			Summary:              s.Summary,
			Operation:            def.Operation,
			RequiresConfirmation: s.RequiresConfirmation,
			DependsOn:            append([]string(nil), s.DependsOn...),
			ResourceLocks:        append([]string(nil), s.ResourceLocks...),
			Optional:             s.Optional,
		}
	}

	return &domain.ResolvedWorkflow{Name: tmpl.Name, Version: tmpl.Version, Steps: steps}, nil
}

// targetStep resolves an override's step address (ID or positional index) to
// a template step index.
func (r *Resolver) targetStep(tmpl domain.Workflow, byID map[string]int, ov domain.StepOverride) (int, string, error) {
	if ov.StepID != "" {
		idx, ok := byID[ov.StepID]
		if !ok {
			return 0, "", fmt.Errorf("step %q does not exist in workflow %q", ov.StepID, tmpl.Name)
		}
		return idx, ov.StepID, nil
	}
	if ov.Index != nil {
		if *ov.Index < 0 || *ov.Index >= len(tmpl.Steps) {
			return 0, "", fmt.Errorf("step index %d out of range for workflow %q (%d steps)", *ov.Index, tmpl.Name, len(tmpl.Steps))
		}
		return *ov.Index, tmpl.Steps[*ov.Index].ID, nil
	}
	return 0, "", fmt.Errorf("override for workflow %q names no step", tmpl.Name)
}

// validateOverride checks one overridden argument against the step's declared
// schema. Arguments without a schema entry may only override an existing
// template default.
func validateOverride(step domain.WorkflowStep, key string, value any) error {
	schema, declared := step.ArgumentSchema[key]
	if !declared {
		if _, hasDefault := step.Arguments[key]; hasDefault {
			return nil
		}
		return fmt.Errorf("argument %q is not overridable", key)
	}

	switch schema.Type {
	case "number", "integer":
		f, ok := toFloat(value)
		if !ok {
			return fmt.Errorf("argument %q must be a %s", key, schema.Type)
		}
		if schema.Min != nil && f < *schema.Min {
			return fmt.Errorf("argument %q value %v is below the minimum of %v", key, f, *schema.Min)
		}
		if schema.Max != nil && f > *schema.Max {
			return fmt.Errorf("argument %q value %v exceeds the maximum of %v", key, f, *schema.Max)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("argument %q must be a boolean", key)
		}
	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Errorf("argument %q must be a string", key)
		}
	}

	if len(schema.Enum) > 0 && !enumContains(schema.Enum, value) {
		return fmt.Errorf("argument %q value %v is not one of the allowed values %v", key, value, schema.Enum)
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func enumContains(enum []any, v any) bool {
	for _, e := range enum {
		if e == v {
			return true
		}
		// Numeric enum entries may arrive as int while the value is float64.
		ef, eok := toFloat(e)
		vf, vok := toFloat(v)
		if eok && vok && ef == vf {
			return true
		}
	}
	return false
}
