package tools

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/cutline/orchestrator/internal/domain"
	"github.com/cutline/orchestrator/internal/editor"
)

// highlightKeywords raise a segment's score when present in its transcript.
var highlightKeywords = []string{"best", "amazing", "important", "secret", "key", "never", "top"}

func registerHighlightTools(r *Registry) {
	r.MustRegister(Definition{
		Name:        "score_highlights",
		Description: "Score transcript segments of a source asset for highlight potential.",
		Operation:   domain.OperationWrite,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"videoAssetId": map[string]any{"type": "string"},
			},
			"additionalProperties": false,
		},
		Execute: scoreHighlights,
	})

	r.MustRegister(Definition{
		Name:        "generate_highlight_plan",
		Description: "Build an ordered cut list from cached highlight scores.",
		Operation:   domain.OperationWrite,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"videoAssetId":   map[string]any{"type": "string"},
				"targetDuration": map[string]any{"type": "number", "minimum": 1},
				"tolerance":      map[string]any{"type": "number", "minimum": 0, "maximum": 1},
				"includeHook":    map[string]any{"type": "boolean"},
			},
			"required":             []any{"targetDuration"},
			"additionalProperties": false,
		},
		Execute: generateHighlightPlan,
	})

	r.MustRegister(Definition{
		Name:        "apply_highlight_cut",
		Description: "Rebuild the timeline keeping only the planned highlight segments.",
		Operation:   domain.OperationWrite,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"videoAssetId":   map[string]any{"type": "string"},
				"targetDuration": map[string]any{"type": "number"},
				"tolerance":      map[string]any{"type": "number"},
				"includeHook":    map[string]any{"type": "boolean"},
			},
			"additionalProperties": false,
		},
		Execute: applyHighlightCut,
	})

	r.MustRegister(Definition{
		Name:        "set_target_duration",
		Description: "Adjust the target duration of the current highlight plan.",
		Operation:   domain.OperationWrite,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"targetDuration": map[string]any{"type": "number", "minimum": 1},
				"tolerance":      map[string]any{"type": "number", "minimum": 0, "maximum": 1},
			},
			"required":             []any{"targetDuration"},
			"additionalProperties": false,
		},
		Execute: setTargetDuration,
	})

	r.MustRegister(Definition{
		Name:        "validate_highlights_visual",
		Description: "Verify that planned highlight segments are present on the timeline.",
		Operation:   domain.OperationRead,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"videoAssetId": map[string]any{"type": "string"},
				"topN":         map[string]any{"type": "integer", "minimum": 1},
			},
			"additionalProperties": false,
		},
		Execute: validateHighlightsVisual,
	})
}

func assetKey(args map[string]any) string {
	id, _ := args["videoAssetId"].(string)
	if id == "" {
		return "timeline"
	}
	return id
}

func scoreHighlights(ctx context.Context, doc editor.DocumentMutator, args map[string]any) domain.ToolResult {
	asset := assetKey(args)

	var speech []domain.Element
	for _, t := range doc.GetTracks() {
		if t.Kind != domain.TrackKindAudio {
			continue
		}
		for _, e := range t.Elements {
			if asset != "timeline" && e.AssetID != asset {
				continue
			}
			if strings.TrimSpace(e.Transcript) != "" {
				speech = append(speech, e)
			}
		}
	}
	if len(speech) == 0 {
		return domain.ToolResult{
			Success: false,
			Message: fmt.Sprintf("no transcribed audio for asset %q", asset),
			Data:    map[string]any{"errorCode": "NO_SPEECH_AUDIO"},
		}
	}

	var scores []domain.HighlightScore
	for n, e := range speech {
		ReportProgress(ctx, "scoring element %d/%d", n+1, len(speech))
		sentences := splitSentences(e.Transcript)
		span := e.Duration / float64(len(sentences))
		for i, s := range sentences {
			start := e.Start + float64(i)*span
			scores = append(scores, domain.HighlightScore{
				SegmentID: fmt.Sprintf("%s-seg-%d", e.ID, i),
				Start:     start,
				End:       start + span,
				Score:     scoreSentence(s),
				Summary:   s,
			})
		}
	}

	doc.SetHighlightScores(domain.HighlightScoreSet{
		AssetID:  asset,
		Revision: doc.Revision(),
		Scores:   scores,
	})
	return domain.ToolResult{
		Success: true,
		Message: fmt.Sprintf("scored %d segments for asset %q", len(scores), asset),
		Data:    map[string]any{"segments": len(scores), "videoAssetId": asset},
	}
}

func generateHighlightPlan(ctx context.Context, doc editor.DocumentMutator, args map[string]any) domain.ToolResult {
	asset := assetKey(args)
	target, _ := args["targetDuration"].(float64)
	tolerance := 0.2
	if v, ok := args["tolerance"].(float64); ok {
		tolerance = v
	}
	includeHook, _ := args["includeHook"].(bool)

	set := doc.HighlightScores(asset)
	if set == nil || set.Revision != doc.Revision() {
		return domain.ToolResult{
			Success: false,
			Message: fmt.Sprintf("highlight scores for asset %q are missing or outdated", asset),
			Data:    map[string]any{"errorCode": domain.ErrCodeHighlightCacheStale, "videoAssetId": asset},
		}
	}

	ranked := append([]domain.HighlightScore(nil), set.Scores...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	maxTotal := target * (1 + tolerance)
	var picked []domain.HighlightScore
	var total float64

	if includeHook && len(ranked) > 0 {
		// The hook is the earliest of the strong segments.
		strong := ranked[:(len(ranked)+1)/2]
		hook := strong[0]
		for _, s := range strong {
			if s.Start < hook.Start {
				hook = s
			}
		}
		picked = append(picked, hook)
		total += hook.End - hook.Start
	}

	for _, s := range ranked {
		if containsSegment(picked, s.SegmentID) {
			continue
		}
		length := s.End - s.Start
		if total+length > maxTotal {
			continue
		}
		picked = append(picked, s)
		total += length
		if total >= target*(1-tolerance) {
			break
		}
	}
	if len(picked) == 0 {
		return domain.ToolResult{
			Success: false,
			Message: fmt.Sprintf("no segment fits within %.1fs (±%.0f%%)", target, tolerance*100),
		}
	}

	sort.Slice(picked, func(i, j int) bool { return picked[i].Start < picked[j].Start })
	segments := make([]domain.HighlightSegment, len(picked))
	for i, s := range picked {
		segments[i] = domain.HighlightSegment{
			SegmentID: s.SegmentID,
			Start:     s.Start,
			End:       s.End,
			Hook:      includeHook && i == 0,
		}
	}

	doc.SetHighlightPlan(&domain.HighlightPlan{
		AssetID:        asset,
		Revision:       doc.Revision(),
		TargetDuration: target,
		Tolerance:      tolerance,
		IncludeHook:    includeHook,
		Segments:       segments,
	})
	return domain.ToolResult{
		Success: true,
		Message: fmt.Sprintf("planned %d segments totalling %.1fs", len(segments), total),
		Data:    map[string]any{"segments": len(segments), "plannedDuration": total},
	}
}

func applyHighlightCut(ctx context.Context, doc editor.DocumentMutator, args map[string]any) domain.ToolResult {
	plan := doc.HighlightPlan()
	if plan == nil {
		return domain.ToolResult{
			Success: false,
			Message: "no highlight plan: generate one before applying the cut",
			Data:    map[string]any{"errorCode": domain.ErrCodeHighlightPlanMissing},
		}
	}
	if plan.Revision != doc.Revision() {
		return domain.ToolResult{
			Success: false,
			Message: "the highlight plan was computed against an older timeline",
			Data:    map[string]any{"errorCode": domain.ErrCodeHighlightCacheStale, "videoAssetId": plan.AssetID},
		}
	}

	tracks := doc.GetTracks()
	out := make([]domain.Track, len(tracks))
	for i, t := range tracks {
		out[i] = domain.Track{ID: t.ID, Kind: t.Kind}
		var cursor float64
		for _, seg := range plan.Segments {
			for _, e := range t.Elements {
				start := math.Max(e.Start, seg.Start)
				end := math.Min(e.Start+e.Duration, seg.End)
				if end <= start {
					continue
				}
				kept := e
				kept.Start = cursor + (start - seg.Start)
				kept.Duration = end - start
				kept.SegmentID = seg.SegmentID
				out[i].Elements = append(out[i].Elements, kept)
			}
			cursor += seg.End - seg.Start
		}
	}

	if err := doc.ReplaceTracks(out, nil); err != nil {
		return domain.ToolResult{Success: false, Message: fmt.Sprintf("failed to apply cut: %v", err)}
	}

	// Re-stamp the plan against the cut timeline so later steps can verify
	// it without tripping the staleness check on the plan itself.
	plan.Revision = doc.Revision()
	doc.SetHighlightPlan(plan)

	var total float64
	for _, seg := range plan.Segments {
		total += seg.End - seg.Start
	}
	return domain.ToolResult{
		Success: true,
		Message: fmt.Sprintf("cut timeline to %d segments, %.1fs", len(plan.Segments), total),
		Data:    map[string]any{"segments": len(plan.Segments), "duration": total},
	}
}

func setTargetDuration(ctx context.Context, doc editor.DocumentMutator, args map[string]any) domain.ToolResult {
	plan := doc.HighlightPlan()
	if plan == nil {
		return domain.ToolResult{
			Success: false,
			Message: "no highlight plan: generate one before changing its target duration",
			Data:    map[string]any{"errorCode": domain.ErrCodeHighlightPlanMissing},
		}
	}

	target, _ := args["targetDuration"].(float64)
	plan.TargetDuration = target
	if v, ok := args["tolerance"].(float64); ok {
		plan.Tolerance = v
	}
	doc.SetHighlightPlan(plan)

	return domain.ToolResult{
		Success: true,
		Message: fmt.Sprintf("target duration set to %.1fs (±%.0f%%)", target, plan.Tolerance*100),
		Data:    map[string]any{"targetDuration": target, "tolerance": plan.Tolerance},
	}
}

func validateHighlightsVisual(ctx context.Context, doc editor.DocumentMutator, args map[string]any) domain.ToolResult {
	asset := assetKey(args)

	set := doc.HighlightScores(asset)
	if set == nil || set.Revision != doc.Revision() {
		return domain.ToolResult{
			Success: false,
			Message: fmt.Sprintf("highlight scores for asset %q are missing or outdated", asset),
			Data:    map[string]any{"errorCode": domain.ErrCodeHighlightCacheStale, "videoAssetId": asset},
		}
	}

	plan := doc.HighlightPlan()
	if plan == nil {
		return domain.ToolResult{
			Success: true,
			Message: "no highlight plan to verify; scores are fresh",
			Data:    map[string]any{"verified": 0, "missing": 0},
		}
	}

	present := map[string]bool{}
	for _, t := range doc.GetTracks() {
		for _, e := range t.Elements {
			if e.SegmentID != "" {
				present[e.SegmentID] = true
			}
		}
	}

	verified, missing := 0, 0
	for _, seg := range plan.Segments {
		if present[seg.SegmentID] {
			verified++
		} else {
			missing++
		}
	}
	return domain.ToolResult{
		Success: missing == 0,
		Message: fmt.Sprintf("%d/%d planned segments present on the timeline", verified, len(plan.Segments)),
		Data:    map[string]any{"verified": verified, "missing": missing},
	}
}

func containsSegment(scores []domain.HighlightScore, id string) bool {
	for _, s := range scores {
		if s.SegmentID == id {
			return true
		}
	}
	return false
}

func splitSentences(text string) []string {
	var out []string
	for _, s := range strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	}) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		out = []string{strings.TrimSpace(text)}
	}
	return out
}

func scoreSentence(s string) float64 {
	lower := strings.ToLower(s)
	score := 0.3 + 0.02*float64(len(strings.Fields(s)))
	for _, kw := range highlightKeywords {
		if strings.Contains(lower, kw) {
			score += 0.15
		}
	}
	return math.Min(score, 1.0)
}
