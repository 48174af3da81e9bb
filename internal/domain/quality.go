package domain

// QualityReport is a scored assessment of a completed workflow's output
// against target criteria. All metrics are normalized to 0..1.
type QualityReport struct {
	SemanticCompleteness float64  `json:"semantic_completeness"`
	SilenceRate          float64  `json:"silence_rate"`
	SubtitleCoverage     float64  `json:"subtitle_coverage"`
	DurationCompliance   float64  `json:"duration_compliance"`
	CompositeScore       float64  `json:"composite_score"`
	Passed               bool     `json:"passed"`
	Reasons              []string `json:"reasons,omitempty"`
}

// QualityLoopConfig bounds the workflow re-iteration loop. MaxIterations is
// clamped to [1,4] before use.
type QualityLoopConfig struct {
	Enabled        bool     `json:"enabled"`
	MaxIterations  int      `json:"max_iterations,omitempty"`
	PassThreshold  *float64 `json:"pass_threshold,omitempty"`
	TargetDuration *float64 `json:"target_duration,omitempty"`
	Tolerance      *float64 `json:"tolerance,omitempty"`
}
