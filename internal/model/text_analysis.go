package model

// TextAnalysis is one uploaded text row and its labels. PredLabel and
// Confidence are written together by a single prediction run (both nil until
// then); TrueLabel can be patched independently at any time.
type TextAnalysis struct {
	ID         uint     `gorm:"primaryKey" json:"id"`
	SessionID  uint     `gorm:"not null;index" json:"session_id"`
	Text       string   `gorm:"type:text;not null" json:"text"`
	PredLabel  *int     `json:"pred_label"`
	Confidence *float64 `json:"confidence"`
	Source     *string  `gorm:"size:256" json:"source"`
	TrueLabel  *int     `json:"true_label"`
}
