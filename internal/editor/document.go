// Package editor provides the timeline document abstraction the agent
// mutates. The orchestrator and every tool receive a DocumentMutator handle
// explicitly; there is no process-wide editor singleton.
package editor

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cutline/orchestrator/internal/domain"
)

// DocumentMutator is the contract the engine uses to read and mutate one
// session's timeline document. Implementations must be safe for concurrent
// use.
type DocumentMutator interface {
	GetTracks() []domain.Track
	GetTotalDuration() float64
	ReplaceTracks(tracks []domain.Track, selection *domain.Selection) error
	Seek(time float64) error
	GetSelectedElements() []domain.Element

	// Revision increases on every mutation; highlight caches are stamped
	// with it so the engine can detect staleness.
	Revision() int64
	Snapshot() domain.DocumentSnapshot

	HighlightScores(assetID string) *domain.HighlightScoreSet
	SetHighlightScores(set domain.HighlightScoreSet)
	HighlightPlan() *domain.HighlightPlan
	SetHighlightPlan(plan *domain.HighlightPlan)
}

// Document is the in-memory DocumentMutator implementation.
type Document struct {
	mu        sync.RWMutex
	tracks    []domain.Track
	playhead  float64
	selection domain.Selection
	revision  int64

	scores map[string]domain.HighlightScoreSet
	plan   *domain.HighlightPlan
}

// NewDocument creates an empty timeline document.
func NewDocument() *Document {
	return &Document{scores: make(map[string]domain.HighlightScoreSet)}
}

// NewDocumentWithTracks creates a document pre-populated with tracks.
func NewDocumentWithTracks(tracks []domain.Track) *Document {
	d := NewDocument()
	d.tracks = cloneTracks(tracks)
	return d
}

// GetTracks returns a copy of the current tracks.
func (d *Document) GetTracks() []domain.Track {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return cloneTracks(d.tracks)
}

// GetTotalDuration returns the end time of the last element across all
// tracks.
func (d *Document) GetTotalDuration() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return totalDuration(d.tracks)
}

// ReplaceTracks swaps the whole track list and optionally the selection.
func (d *Document) ReplaceTracks(tracks []domain.Track, selection *domain.Selection) error {
	for _, t := range tracks {
		if t.ID == "" {
			return fmt.Errorf("track without id")
		}
		for _, e := range t.Elements {
			if e.Duration < 0 || e.Start < 0 {
				return fmt.Errorf("element %s has negative timing", e.ID)
			}
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.tracks = cloneTracks(tracks)
	if selection != nil {
		d.selection = *selection
	}
	d.revision++
	return nil
}

// Seek moves the playhead. Seeking past the document end clamps to the end.
func (d *Document) Seek(time float64) error {
	if time < 0 {
		return fmt.Errorf("seek time must be >= 0")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if total := totalDuration(d.tracks); time > total {
		time = total
	}
	d.playhead = time
	return nil
}

// GetSelectedElements resolves the current selection to elements.
func (d *Document) GetSelectedElements() []domain.Element {
	d.mu.RLock()
	defer d.mu.RUnlock()

	selected := make(map[string]bool, len(d.selection.ElementIDs))
	for _, id := range d.selection.ElementIDs {
		selected[id] = true
	}

	var elements []domain.Element
	for _, t := range d.tracks {
		for _, e := range t.Elements {
			if selected[e.ID] {
				elements = append(elements, e)
			}
		}
	}
	return elements
}

// Revision returns the current mutation counter.
func (d *Document) Revision() int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.revision
}

// Snapshot returns a read-only copy of the document state.
func (d *Document) Snapshot() domain.DocumentSnapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()

	snap := domain.DocumentSnapshot{
		Tracks:        cloneTracks(d.tracks),
		TotalDuration: totalDuration(d.tracks),
		Playhead:      d.playhead,
		Selection:     d.selection,
		Revision:      d.revision,
	}
	if d.plan != nil {
		plan := *d.plan
		plan.Segments = append([]domain.HighlightSegment(nil), d.plan.Segments...)
		snap.HighlightPlan = &plan
	}
	return snap
}

// HighlightScores returns the cached score set for an asset, or nil.
func (d *Document) HighlightScores(assetID string) *domain.HighlightScoreSet {
	d.mu.RLock()
	defer d.mu.RUnlock()
	set, ok := d.scores[assetID]
	if !ok {
		return nil
	}
	set.Scores = append([]domain.HighlightScore(nil), set.Scores...)
	return &set
}

// SetHighlightScores stores a score set for its asset.
func (d *Document) SetHighlightScores(set domain.HighlightScoreSet) {
	d.mu.Lock()
	defer d.mu.Unlock()
	set.Scores = append([]domain.HighlightScore(nil), set.Scores...)
	d.scores[set.AssetID] = set
}

// HighlightPlan returns the current cut plan, or nil.
func (d *Document) HighlightPlan() *domain.HighlightPlan {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.plan == nil {
		return nil
	}
	plan := *d.plan
	plan.Segments = append([]domain.HighlightSegment(nil), d.plan.Segments...)
	return &plan
}

// SetHighlightPlan stores (or clears) the cut plan.
func (d *Document) SetHighlightPlan(plan *domain.HighlightPlan) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if plan == nil {
		d.plan = nil
		return
	}
	p := *plan
	p.Segments = append([]domain.HighlightSegment(nil), plan.Segments...)
	d.plan = &p
}

func cloneTracks(tracks []domain.Track) []domain.Track {
	out := make([]domain.Track, len(tracks))
	for i, t := range tracks {
		out[i] = t
		out[i].Elements = make([]domain.Element, len(t.Elements))
		for j, e := range t.Elements {
			out[i].Elements[j] = e
			out[i].Elements[j].Words = append([]domain.Word(nil), e.Words...)
		}
	}
	return out
}

func totalDuration(tracks []domain.Track) float64 {
	var total float64
	for _, t := range tracks {
		for _, e := range t.Elements {
			if end := e.Start + e.Duration; end > total {
				total = end
			}
		}
	}
	return total
}

// SortElements orders a track's elements by start time in place.
func SortElements(t *domain.Track) {
	sort.Slice(t.Elements, func(i, j int) bool {
		return t.Elements[i].Start < t.Elements[j].Start
	})
}
