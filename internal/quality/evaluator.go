// Package quality scores a cut timeline against target criteria and drives
// the bounded re-iteration loop of workflow runs.
package quality

import (
	"fmt"
	"math"
	"sort"

	"github.com/cutline/orchestrator/internal/domain"
	"github.com/cutline/orchestrator/internal/editor"
)

// Composite weights. Silence enters inverted: less silence scores higher.
const (
	weightSemantic = 0.35
	weightSilence  = 0.25
	weightSubtitle = 0.20
	weightDuration = 0.20
)

const (
	DefaultPassThreshold = 0.75
	DefaultMaxIterations = 2
	MinIterations        = 1
	MaxIterations        = 4
)

// ClampIterations normalizes a requested iteration count to the allowed
// range. Zero means "use the default".
func ClampIterations(n int) int {
	if n == 0 {
		return DefaultMaxIterations
	}
	if n < MinIterations {
		return MinIterations
	}
	if n > MaxIterations {
		return MaxIterations
	}
	return n
}

// Evaluator scores timeline documents. The zero threshold falls back to the
// default.
type Evaluator struct {
	PassThreshold float64
}

func NewEvaluator(passThreshold float64) *Evaluator {
	if passThreshold <= 0 {
		passThreshold = DefaultPassThreshold
	}
	return &Evaluator{PassThreshold: passThreshold}
}

// Evaluate scores the document's current state. target and tolerance bound
// the duration-compliance metric; a non-positive target disables it (scores
// as fully compliant).
func (e *Evaluator) Evaluate(doc editor.DocumentMutator, target, tolerance float64) domain.QualityReport {
	threshold := e.PassThreshold
	tracks := doc.GetTracks()

	report := domain.QualityReport{
		SemanticCompleteness: semanticCompleteness(doc, tracks),
		SilenceRate:          silenceRate(tracks, doc.GetTotalDuration()),
		SubtitleCoverage:     subtitleCoverage(tracks),
		DurationCompliance:   durationCompliance(doc.GetTotalDuration(), target, tolerance),
	}
	report.CompositeScore = weightSemantic*report.SemanticCompleteness +
		weightSilence*(1-report.SilenceRate) +
		weightSubtitle*report.SubtitleCoverage +
		weightDuration*report.DurationCompliance
	report.Passed = report.CompositeScore >= threshold

	if report.SemanticCompleteness < 1 {
		report.Reasons = append(report.Reasons, fmt.Sprintf("only %.0f%% of planned highlight segments survive on the timeline", report.SemanticCompleteness*100))
	}
	if report.SilenceRate > 0.2 {
		report.Reasons = append(report.Reasons, fmt.Sprintf("%.0f%% of the timeline has no audio coverage", report.SilenceRate*100))
	}
	if report.SubtitleCoverage < 0.8 {
		report.Reasons = append(report.Reasons, fmt.Sprintf("captions cover only %.0f%% of the speech", report.SubtitleCoverage*100))
	}
	if report.DurationCompliance < 1 && target > 0 {
		report.Reasons = append(report.Reasons, fmt.Sprintf("timeline duration %.1fs misses the %.1fs target window", doc.GetTotalDuration(), target))
	}
	return report
}

// semanticCompleteness is the fraction of planned highlight segments still
// present on the timeline. Without a plan there is nothing to lose.
func semanticCompleteness(doc editor.DocumentMutator, tracks []domain.Track) float64 {
	plan := doc.HighlightPlan()
	if plan == nil || len(plan.Segments) == 0 {
		return 1
	}
	present := map[string]bool{}
	for _, t := range tracks {
		for _, el := range t.Elements {
			if el.SegmentID != "" {
				present[el.SegmentID] = true
			}
		}
	}
	kept := 0
	for _, seg := range plan.Segments {
		if present[seg.SegmentID] {
			kept++
		}
	}
	return float64(kept) / float64(len(plan.Segments))
}

// silenceRate is the share of the timeline not covered by any audio element.
func silenceRate(tracks []domain.Track, total float64) float64 {
	if total <= 0 {
		return 0
	}
	covered := coveredTime(tracks, domain.TrackKindAudio, total)
	return math.Max(0, (total-covered)/total)
}

// subtitleCoverage is the share of speech time covered by caption elements.
func subtitleCoverage(tracks []domain.Track) float64 {
	var speech, captioned []interval
	for _, t := range tracks {
		for _, el := range t.Elements {
			iv := interval{el.Start, el.Start + el.Duration}
			switch {
			case t.Kind == domain.TrackKindAudio && el.Transcript != "":
				speech = append(speech, iv)
			case t.Kind == domain.TrackKindCaption:
				captioned = append(captioned, iv)
			}
		}
	}
	speechTotal := unionLength(speech)
	if speechTotal <= 0 {
		return 1
	}
	return math.Min(1, overlapLength(speech, captioned)/speechTotal)
}

// durationCompliance is 1 inside target±target·tolerance and falls off
// linearly with the relative distance outside the window.
func durationCompliance(total, target, tolerance float64) float64 {
	if target <= 0 {
		return 1
	}
	lo := target * (1 - tolerance)
	hi := target * (1 + tolerance)
	if total >= lo && total <= hi {
		return 1
	}
	var outside float64
	if total < lo {
		outside = lo - total
	} else {
		outside = total - hi
	}
	return math.Max(0, 1-outside/target)
}

type interval struct{ start, end float64 }

func coveredTime(tracks []domain.Track, kind domain.TrackKind, limit float64) float64 {
	var ivs []interval
	for _, t := range tracks {
		if t.Kind != kind {
			continue
		}
		for _, el := range t.Elements {
			end := math.Min(el.Start+el.Duration, limit)
			if end > el.Start {
				ivs = append(ivs, interval{el.Start, end})
			}
		}
	}
	return unionLength(ivs)
}

func unionLength(ivs []interval) float64 {
	if len(ivs) == 0 {
		return 0
	}
	sort.Slice(ivs, func(i, j int) bool { return ivs[i].start < ivs[j].start })
	var total float64
	cur := ivs[0]
	for _, iv := range ivs[1:] {
		if iv.start <= cur.end {
			if iv.end > cur.end {
				cur.end = iv.end
			}
			continue
		}
		total += cur.end - cur.start
		cur = iv
	}
	return total + cur.end - cur.start
}

func overlapLength(a, b []interval) float64 {
	var total float64
	for _, x := range a {
		for _, y := range b {
			lo := math.Max(x.start, y.start)
			hi := math.Min(x.end, y.end)
			if hi > lo {
				total += hi - lo
			}
		}
	}
	return total
}
