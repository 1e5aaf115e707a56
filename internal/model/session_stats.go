package model

import "time"

// SessionStats is the aggregated dashboard view of one session. Not a table;
// computed from text_analyses and cached in redis.
type SessionStats struct {
	SessionID          uint             `json:"session_id"`
	Filename           string           `json:"filename"`
	CreatedAt          time.Time        `json:"created_at"`
	TotalTexts         int64            `json:"total_texts"`
	AnalyzedTexts      int64            `json:"analyzed_texts"`
	AvgConfidence      *float64         `json:"avg_confidence"`
	MinConfidence      *float64         `json:"min_confidence"`
	MaxConfidence      *float64         `json:"max_confidence"`
	ClassDistribution  map[int]int64    `json:"class_distribution"`
	SourceDistribution map[string]int64 `json:"source_distribution,omitempty"`
}

// PredictionRunEvent is published after a batch run so the artifact worker
// can persist the exported CSV to object storage out of the request path.
type PredictionRunEvent struct {
	SessionID    uint      `json:"session_id"`
	PredictionID string    `json:"prediction_id"`
	RowsCount    int       `json:"rows_count"`
	ProcessingMs int64     `json:"processing_ms"`
	CreatedAt    time.Time `json:"created_at"`
}
