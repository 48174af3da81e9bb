package domain

// TrackKind classifies a timeline track.
type TrackKind string

const (
	TrackKindVideo   TrackKind = "video"
	TrackKindAudio   TrackKind = "audio"
	TrackKindCaption TrackKind = "caption"
)

// Word is one transcribed word of an audio element, timed relative to the
// element start.
type Word struct {
	Text   string  `json:"text"`
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	Filler bool    `json:"filler,omitempty"`
}

// Element is one clip on a track. Start and Duration are seconds on the
// timeline.
type Element struct {
	ID         string  `json:"id"`
	Label      string  `json:"label,omitempty"`
	Start      float64 `json:"start"`
	Duration   float64 `json:"duration"`
	AssetID    string  `json:"asset_id,omitempty"`
	Transcript string  `json:"transcript,omitempty"`
	Words      []Word  `json:"words,omitempty"`
	Text       string  `json:"text,omitempty"` // caption elements only
	SegmentID  string  `json:"segment_id,omitempty"`
}

// Track is an ordered lane of non-overlapping elements.
type Track struct {
	ID       string    `json:"id"`
	Kind     TrackKind `json:"kind"`
	Elements []Element `json:"elements"`
}

// Selection identifies the elements currently selected in the editor.
type Selection struct {
	ElementIDs []string `json:"element_ids,omitempty"`
}

// HighlightScore rates one transcript span of a source asset.
type HighlightScore struct {
	SegmentID string  `json:"segment_id"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Score     float64 `json:"score"`
	Summary   string  `json:"summary,omitempty"`
}

// HighlightScoreSet is the cached highlight scoring for one asset, stamped
// with the document revision it was computed against. A later document
// mutation makes the set stale.
type HighlightScoreSet struct {
	AssetID  string           `json:"asset_id"`
	Revision int64            `json:"revision"`
	Scores   []HighlightScore `json:"scores"`
}

// HighlightSegment is one planned cut of a highlight plan.
type HighlightSegment struct {
	SegmentID string  `json:"segment_id"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Hook      bool    `json:"hook,omitempty"`
}

// HighlightPlan is the ordered cut list derived from highlight scores.
type HighlightPlan struct {
	AssetID        string             `json:"asset_id"`
	Revision       int64              `json:"revision"`
	TargetDuration float64            `json:"target_duration"`
	Tolerance      float64            `json:"tolerance"`
	IncludeHook    bool               `json:"include_hook"`
	Segments       []HighlightSegment `json:"segments"`
}

// DocumentSnapshot is the read-only view of a session's timeline handed to
// the quality evaluator.
type DocumentSnapshot struct {
	Tracks        []Track        `json:"tracks"`
	TotalDuration float64        `json:"total_duration"`
	Playhead      float64        `json:"playhead"`
	Selection     Selection      `json:"selection"`
	HighlightPlan *HighlightPlan `json:"highlight_plan,omitempty"`
	Revision      int64          `json:"revision"`
}
