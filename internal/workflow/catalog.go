// Package workflow provides the named workflow template catalog and the
// resolver that expands a template with validated user overrides.
package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/cutline/orchestrator/internal/domain"
)

// Catalog holds the workflow templates: the built-ins plus any loaded from
// a template directory. Safe for concurrent use.
type Catalog struct {
	mu        sync.RWMutex
	templates map[string]domain.Workflow
}

// NewCatalog creates a catalog seeded with the built-in templates.
func NewCatalog() *Catalog {
	c := &Catalog{templates: make(map[string]domain.Workflow)}
	for _, w := range builtinTemplates() {
		c.templates[w.Name] = w
	}
	return c
}

// List returns all templates sorted by name.
func (c *Catalog) List() []domain.Workflow {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.Workflow, 0, len(c.templates))
	for _, w := range c.templates {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get returns the template with the given name.
func (c *Catalog) Get(name string) (domain.Workflow, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	w, ok := c.templates[name]
	return w, ok
}

// Put installs or replaces a template.
func (c *Catalog) Put(w domain.Workflow) error {
	if w.Name == "" {
		return fmt.Errorf("workflow name is required")
	}
	if len(w.Steps) == 0 {
		return fmt.Errorf("workflow %s has no steps", w.Name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.templates[w.Name] = w
	return nil
}

// LoadDir loads every *.yaml/*.yml template file from dir into the catalog.
// Files that fail to parse are skipped with an error so one bad template
// does not take down the rest.
func (c *Catalog) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read template dir: %w", err)
	}

	var firstErr error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if ext := strings.ToLower(filepath.Ext(name)); ext != ".yaml" && ext != ".yml" {
			continue
		}
		if err := c.loadFile(filepath.Join(dir, name)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *Catalog) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read template %s: %w", path, err)
	}
	var w domain.Workflow
	if err := yaml.Unmarshal(raw, &w); err != nil {
		return fmt.Errorf("failed to parse template %s: %w", path, err)
	}
	if err := c.Put(w); err != nil {
		return fmt.Errorf("failed to install template %s: %w", path, err)
	}
	return nil
}

func floatPtr(v float64) *float64 { return &v }

// builtinTemplates is the static template set shipped with the engine.
func builtinTemplates() []domain.Workflow {
	return []domain.Workflow{
		{
			Name:        "podcast-to-clips",
			Version:     1,
			Description: "Turn a long-form recording into a short highlight clip with captions.",
			Scenario:    "long-form podcast or interview footage",
			Steps: []domain.WorkflowStep{
				{
					ID:       "generate-captions",
					ToolName: "generate_captions",
					Summary:  "Transcribe the audio into a caption track",
					Arguments: map[string]any{
						"source": "timeline",
					},
					ArgumentSchema: map[string]domain.FieldSchema{
						"source": {Type: "string", Enum: []any{"timeline", "selection"}},
					},
				},
				{
					ID:       "score-highlights",
					ToolName: "score_highlights",
					Summary:  "Score transcript segments for highlight potential",
					Arguments: map[string]any{
						"videoAssetId": "timeline",
					},
				},
				{
					ID:        "generate-plan",
					ToolName:  "generate_highlight_plan",
					Summary:   "Build the highlight cut list",
					DependsOn: []string{"score-highlights"},
					Arguments: map[string]any{
						"videoAssetId":   "timeline",
						"targetDuration": 60.0,
						"tolerance":      0.2,
						"includeHook":    true,
					},
					ArgumentSchema: map[string]domain.FieldSchema{
						"targetDuration": {Type: "number", Min: floatPtr(10), Max: floatPtr(180)},
						"tolerance":      {Type: "number", Min: floatPtr(0.05), Max: floatPtr(0.5)},
						"includeHook":    {Type: "boolean", Enum: []any{true, false}},
					},
				},
				{
					ID:                   "apply-cut",
					ToolName:             "apply_highlight_cut",
					Summary:              "Rebuild the timeline from the planned segments",
					DependsOn:            []string{"generate-plan"},
					ResourceLocks:        []string{"timeline"},
					RequiresConfirmation: true,
					Arguments: map[string]any{
						"videoAssetId": "timeline",
					},
				},
				{
					ID:        "validate",
					ToolName:  "validate_highlights_visual",
					Summary:   "Verify the planned segments made it onto the timeline",
					DependsOn: []string{"apply-cut"},
					Arguments: map[string]any{
						"videoAssetId": "timeline",
					},
				},
				{
					ID:            "cleanup-captions",
					ToolName:      "remove_filler_words",
					Summary:       "Strip filler words from the captions",
					DependsOn:     []string{"apply-cut"},
					ResourceLocks: []string{"timeline"},
					Optional:      true,
					Arguments:     map[string]any{},
				},
			},
		},
		{
			Name:        "caption-cleanup",
			Version:     1,
			Description: "Caption the timeline and strip filler words.",
			Steps: []domain.WorkflowStep{
				{
					ID:       "generate-captions",
					ToolName: "generate_captions",
					Summary:  "Transcribe the audio into a caption track",
					Arguments: map[string]any{
						"source": "timeline",
					},
					ArgumentSchema: map[string]domain.FieldSchema{
						"source": {Type: "string", Enum: []any{"timeline", "selection"}},
					},
				},
				{
					ID:            "remove-fillers",
					ToolName:      "remove_filler_words",
					Summary:       "Strip filler words from the captions",
					DependsOn:     []string{"generate-captions"},
					ResourceLocks: []string{"timeline"},
					Arguments:     map[string]any{},
				},
				{
					ID:            "trim-silence",
					ToolName:      "trim_silence",
					Summary:       "Close long silent gaps",
					ResourceLocks: []string{"timeline"},
					Optional:      true,
					Arguments: map[string]any{
						"minGap": 0.5,
					},
					ArgumentSchema: map[string]domain.FieldSchema{
						"minGap": {Type: "number", Min: floatPtr(0), Max: floatPtr(5)},
					},
				},
			},
		},
	}
}
