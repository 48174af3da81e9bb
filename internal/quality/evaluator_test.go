package quality

import (
	"math"
	"testing"

	"github.com/cutline/orchestrator/internal/domain"
	"github.com/cutline/orchestrator/internal/editor"
)

func TestClampIterations(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, 2},
		{-3, 1},
		{1, 1},
		{2, 2},
		{4, 4},
		{9, 4},
	}
	for _, c := range cases {
		if got := ClampIterations(c.in); got != c.want {
			t.Fatalf("ClampIterations(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestDurationCompliance(t *testing.T) {
	if got := durationCompliance(30, 30, 0.2); got != 1 {
		t.Fatalf("on-target duration must score 1, got %v", got)
	}
	if got := durationCompliance(35, 30, 0.2); got != 1 {
		t.Fatalf("in-window duration must score 1, got %v", got)
	}
	// 45s against a 30s±20% window: 9s outside, 1 - 9/30 = 0.7.
	if got := durationCompliance(45, 30, 0.2); math.Abs(got-0.7) > 1e-9 {
		t.Fatalf("out-of-window falloff wrong: %v", got)
	}
	if got := durationCompliance(300, 30, 0.2); got != 0 {
		t.Fatalf("far outside must floor at 0, got %v", got)
	}
	if got := durationCompliance(300, 0, 0.2); got != 1 {
		t.Fatalf("no target disables the metric, got %v", got)
	}
}

func TestEvaluatePassesWellFormedCut(t *testing.T) {
	doc := editor.NewDocumentWithTracks([]domain.Track{
		{ID: "video", Kind: domain.TrackKindVideo, Elements: []domain.Element{
			{ID: "v1", Start: 0, Duration: 30, SegmentID: "seg-1"},
		}},
		{ID: "audio", Kind: domain.TrackKindAudio, Elements: []domain.Element{
			{ID: "a1", Start: 0, Duration: 30, Transcript: "hello", SegmentID: "seg-1"},
		}},
		{ID: "captions", Kind: domain.TrackKindCaption, Elements: []domain.Element{
			{ID: "c1", Start: 0, Duration: 30, Text: "hello"},
		}},
	})
	doc.SetHighlightPlan(&domain.HighlightPlan{
		AssetID:  "timeline",
		Revision: doc.Revision(),
		Segments: []domain.HighlightSegment{{SegmentID: "seg-1", Start: 0, End: 30}},
	})

	report := NewEvaluator(0).Evaluate(doc, 30, 0.2)
	if report.SemanticCompleteness != 1 {
		t.Fatalf("all planned segments present, got %v", report.SemanticCompleteness)
	}
	if report.SilenceRate != 0 {
		t.Fatalf("fully covered audio, got silence %v", report.SilenceRate)
	}
	if report.SubtitleCoverage != 1 {
		t.Fatalf("fully captioned speech, got %v", report.SubtitleCoverage)
	}
	if report.CompositeScore < 0.99 {
		t.Fatalf("composite should be ~1, got %v", report.CompositeScore)
	}
	if !report.Passed {
		t.Fatalf("expected pass: %+v", report)
	}
	if len(report.Reasons) != 0 {
		t.Fatalf("no reasons expected on a clean pass: %v", report.Reasons)
	}
}

func TestEvaluateFlagsDefects(t *testing.T) {
	// 60s timeline, audio only in the first 20s, no captions, one of two
	// planned segments lost.
	doc := editor.NewDocumentWithTracks([]domain.Track{
		{ID: "video", Kind: domain.TrackKindVideo, Elements: []domain.Element{
			{ID: "v1", Start: 0, Duration: 60, SegmentID: "seg-1"},
		}},
		{ID: "audio", Kind: domain.TrackKindAudio, Elements: []domain.Element{
			{ID: "a1", Start: 0, Duration: 20, Transcript: "hello"},
		}},
	})
	doc.SetHighlightPlan(&domain.HighlightPlan{
		AssetID:  "timeline",
		Revision: doc.Revision(),
		Segments: []domain.HighlightSegment{
			{SegmentID: "seg-1", Start: 0, End: 30},
			{SegmentID: "seg-2", Start: 30, End: 60},
		},
	})

	report := NewEvaluator(0.75).Evaluate(doc, 30, 0.2)
	if report.SemanticCompleteness != 0.5 {
		t.Fatalf("expected half the segments kept, got %v", report.SemanticCompleteness)
	}
	if math.Abs(report.SilenceRate-2.0/3.0) > 1e-9 {
		t.Fatalf("expected 2/3 silence, got %v", report.SilenceRate)
	}
	if report.SubtitleCoverage != 0 {
		t.Fatalf("expected zero caption coverage, got %v", report.SubtitleCoverage)
	}
	if report.Passed {
		t.Fatalf("defective cut must not pass: %+v", report)
	}
	if len(report.Reasons) == 0 {
		t.Fatalf("expected reasons explaining the failure")
	}
}

func TestEvaluateWithoutPlanOrSpeech(t *testing.T) {
	doc := editor.NewDocumentWithTracks([]domain.Track{
		{ID: "video", Kind: domain.TrackKindVideo, Elements: []domain.Element{
			{ID: "v1", Start: 0, Duration: 10},
		}},
	})

	report := NewEvaluator(0).Evaluate(doc, 0, 0)
	if report.SemanticCompleteness != 1 || report.SubtitleCoverage != 1 || report.DurationCompliance != 1 {
		t.Fatalf("neutral metrics expected without plan/speech/target: %+v", report)
	}
	// Video-only timeline is all silence.
	if report.SilenceRate != 1 {
		t.Fatalf("expected full silence, got %v", report.SilenceRate)
	}
}
