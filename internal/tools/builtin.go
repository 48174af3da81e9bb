package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/cutline/orchestrator/internal/domain"
	"github.com/cutline/orchestrator/internal/editor"
)

// DefaultFillerWords are stripped by remove_filler_words when the caller
// does not supply its own list.
var DefaultFillerWords = []string{"um", "uh", "like", "you know", "so", "actually"}

// RegisterBuiltins installs the timeline tool set.
func RegisterBuiltins(r *Registry) {
	r.MustRegister(Definition{
		Name:        "get_timeline_summary",
		Description: "Summarize the timeline: tracks, element counts, total duration, playhead.",
		Operation:   domain.OperationRead,
		Parameters: map[string]any{
			"type":                 "object",
			"properties":           map[string]any{},
			"additionalProperties": false,
		},
		Execute: getTimelineSummary,
	})

	r.MustRegister(Definition{
		Name:        "seek_to",
		Description: "Move the playhead to a time in seconds.",
		Operation:   domain.OperationRead,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"time": map[string]any{"type": "number", "minimum": 0},
			},
			"required":             []any{"time"},
			"additionalProperties": false,
		},
		Execute: seekTo,
	})

	r.MustRegister(Definition{
		Name:        "select_elements",
		Description: "Select timeline elements by ID.",
		Operation:   domain.OperationWrite,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"elementIds": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string"},
				},
			},
			"required":             []any{"elementIds"},
			"additionalProperties": false,
		},
		Execute: selectElements,
	})

	r.MustRegister(Definition{
		Name:        "generate_captions",
		Description: "Generate a caption track from the transcripts of the audio elements.",
		Operation:   domain.OperationWrite,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"source":   map[string]any{"type": "string", "enum": []any{"timeline", "selection"}},
				"language": map[string]any{"type": "string"},
			},
			"additionalProperties": false,
		},
		Execute: generateCaptions,
	})

	r.MustRegister(Definition{
		Name:        "remove_filler_words",
		Description: "Remove filler words from the caption track.",
		Operation:   domain.OperationWrite,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"fillers": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string"},
				},
			},
			"additionalProperties": false,
		},
		Execute: removeFillerWords,
	})

	r.MustRegister(Definition{
		Name:        "trim_silence",
		Description: "Close gaps longer than minGap seconds on every track.",
		Operation:   domain.OperationWrite,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"minGap": map[string]any{"type": "number", "minimum": 0},
			},
			"additionalProperties": false,
		},
		Execute: trimSilence,
	})

	registerHighlightTools(r)
}

func getTimelineSummary(ctx context.Context, doc editor.DocumentMutator, args map[string]any) domain.ToolResult {
	tracks := doc.GetTracks()
	elements := 0
	byKind := map[string]int{}
	for _, t := range tracks {
		elements += len(t.Elements)
		byKind[string(t.Kind)] += len(t.Elements)
	}

	return domain.ToolResult{
		Success: true,
		Message: fmt.Sprintf("timeline has %d tracks, %d elements, %.1fs total", len(tracks), elements, doc.GetTotalDuration()),
		Data: map[string]any{
			"tracks":        len(tracks),
			"elements":      elements,
			"byKind":        byKind,
			"totalDuration": doc.GetTotalDuration(),
		},
	}
}

func seekTo(ctx context.Context, doc editor.DocumentMutator, args map[string]any) domain.ToolResult {
	t, _ := args["time"].(float64)
	if err := doc.Seek(t); err != nil {
		return domain.ToolResult{Success: false, Message: fmt.Sprintf("seek failed: %v", err)}
	}
	return domain.ToolResult{
		Success: true,
		Message: fmt.Sprintf("moved playhead to %.2fs", t),
		Data:    map[string]any{"time": t},
	}
}

func selectElements(ctx context.Context, doc editor.DocumentMutator, args map[string]any) domain.ToolResult {
	rawIDs, _ := args["elementIds"].([]any)
	ids := make([]string, 0, len(rawIDs))
	for _, v := range rawIDs {
		if s, ok := v.(string); ok {
			ids = append(ids, s)
		}
	}

	known := map[string]bool{}
	tracks := doc.GetTracks()
	for _, t := range tracks {
		for _, e := range t.Elements {
			known[e.ID] = true
		}
	}
	for _, id := range ids {
		if !known[id] {
			return domain.ToolResult{
				Success: false,
				Message: fmt.Sprintf("element %q not found on the timeline", id),
			}
		}
	}

	if err := doc.ReplaceTracks(tracks, &domain.Selection{ElementIDs: ids}); err != nil {
		return domain.ToolResult{Success: false, Message: fmt.Sprintf("failed to update selection: %v", err)}
	}
	return domain.ToolResult{
		Success: true,
		Message: fmt.Sprintf("selected %d elements", len(ids)),
		Data:    map[string]any{"selected": len(ids)},
	}
}

func generateCaptions(ctx context.Context, doc editor.DocumentMutator, args map[string]any) domain.ToolResult {
	source, _ := args["source"].(string)
	if source == "" {
		source = "timeline"
	}

	var speech []domain.Element
	if source == "selection" {
		speech = doc.GetSelectedElements()
	} else {
		for _, t := range doc.GetTracks() {
			if t.Kind == domain.TrackKindAudio {
				speech = append(speech, t.Elements...)
			}
		}
	}

	var captions []domain.Element
	for i, e := range speech {
		ReportProgress(ctx, "captioning element %d/%d", i+1, len(speech))
		if strings.TrimSpace(e.Transcript) == "" {
			continue
		}
		captions = append(captions, domain.Element{
			ID:       "cap_" + uuid.New().String()[:8],
			Label:    "caption",
			Start:    e.Start,
			Duration: e.Duration,
			AssetID:  e.AssetID,
			Text:     e.Transcript,
			Words:    append([]domain.Word(nil), e.Words...),
		})
	}
	if len(captions) == 0 {
		return domain.ToolResult{
			Success: false,
			Message: "no transcribed audio to caption",
			Data:    map[string]any{"errorCode": "NO_SPEECH_AUDIO"},
		}
	}

	tracks := doc.GetTracks()
	captionTrack := domain.Track{ID: "captions", Kind: domain.TrackKindCaption, Elements: captions}
	replaced := false
	for i, t := range tracks {
		if t.Kind == domain.TrackKindCaption {
			tracks[i] = captionTrack
			replaced = true
			break
		}
	}
	if !replaced {
		tracks = append(tracks, captionTrack)
	}

	if err := doc.ReplaceTracks(tracks, nil); err != nil {
		return domain.ToolResult{Success: false, Message: fmt.Sprintf("failed to write caption track: %v", err)}
	}
	return domain.ToolResult{
		Success: true,
		Message: fmt.Sprintf("generated %d captions", len(captions)),
		Data:    map[string]any{"captions": len(captions)},
	}
}

func removeFillerWords(ctx context.Context, doc editor.DocumentMutator, args map[string]any) domain.ToolResult {
	fillers := DefaultFillerWords
	if raw, ok := args["fillers"].([]any); ok && len(raw) > 0 {
		fillers = nil
		for _, v := range raw {
			if s, ok := v.(string); ok {
				fillers = append(fillers, strings.ToLower(s))
			}
		}
	}
	fillerSet := map[string]bool{}
	for _, f := range fillers {
		fillerSet[strings.ToLower(f)] = true
	}

	tracks := doc.GetTracks()
	captionIdx := -1
	for i, t := range tracks {
		if t.Kind == domain.TrackKindCaption && len(t.Elements) > 0 {
			captionIdx = i
			break
		}
	}
	if captionIdx < 0 {
		return domain.ToolResult{
			Success: false,
			Message: "no caption track: generate captions before removing filler words",
			Data:    map[string]any{"errorCode": domain.ErrCodeNoTranscript},
		}
	}

	removed := 0
	track := tracks[captionIdx]
	for i, e := range track.Elements {
		var kept []domain.Word
		var words []string
		for _, w := range e.Words {
			if w.Filler || fillerSet[strings.ToLower(w.Text)] {
				removed++
				continue
			}
			kept = append(kept, w)
			words = append(words, w.Text)
		}
		if len(e.Words) > 0 {
			track.Elements[i].Words = kept
			track.Elements[i].Text = strings.Join(words, " ")
			continue
		}
		// No word timings: filter the text directly.
		var cleaned []string
		for _, w := range strings.Fields(e.Text) {
			if fillerSet[strings.ToLower(strings.Trim(w, ".,!?"))] {
				removed++
				continue
			}
			cleaned = append(cleaned, w)
		}
		track.Elements[i].Text = strings.Join(cleaned, " ")
	}
	tracks[captionIdx] = track

	if err := doc.ReplaceTracks(tracks, nil); err != nil {
		return domain.ToolResult{Success: false, Message: fmt.Sprintf("failed to update captions: %v", err)}
	}
	return domain.ToolResult{
		Success: true,
		Message: fmt.Sprintf("removed %d filler words", removed),
		Data:    map[string]any{"removed": removed},
	}
}

func trimSilence(ctx context.Context, doc editor.DocumentMutator, args map[string]any) domain.ToolResult {
	minGap := 0.5
	if v, ok := args["minGap"].(float64); ok {
		minGap = v
	}

	tracks := doc.GetTracks()
	closed := 0
	for i := range tracks {
		editor.SortElements(&tracks[i])
		var cursor float64
		for j := range tracks[i].Elements {
			e := &tracks[i].Elements[j]
			if gap := e.Start - cursor; gap > minGap {
				e.Start = cursor + minGap
				closed++
			}
			cursor = e.Start + e.Duration
		}
	}
	if closed == 0 {
		return domain.ToolResult{Success: true, Message: "no gaps to close"}
	}

	if err := doc.ReplaceTracks(tracks, nil); err != nil {
		return domain.ToolResult{Success: false, Message: fmt.Sprintf("failed to apply trim: %v", err)}
	}
	return domain.ToolResult{
		Success: true,
		Message: fmt.Sprintf("closed %d gaps", closed),
		Data:    map[string]any{"closed": closed},
	}
}
