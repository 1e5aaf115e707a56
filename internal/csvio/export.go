package csvio

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
)

// ExportRecord is one result row headed for a CSV or JSON export.
type ExportRecord struct {
	ID         uint     `json:"id"`
	Text       string   `json:"text"`
	PredLabel  *int     `json:"pred_label"`
	Confidence *float64 `json:"confidence,omitempty"`
	Source     *string  `json:"source,omitempty"`
	TrueLabel  *int     `json:"true_label,omitempty"`
}

// ExportCSV renders records with the fixed column order
// text, pred_label[, confidence][, source][, true_label]; the optional
// columns appear only when at least one record populates them.
func ExportCSV(records []ExportRecord) (string, error) {
	hasConfidence, hasSource, hasTrueLabel := false, false, false
	for _, rec := range records {
		if rec.Confidence != nil {
			hasConfidence = true
		}
		if rec.Source != nil {
			hasSource = true
		}
		if rec.TrueLabel != nil {
			hasTrueLabel = true
		}
	}

	header := []string{"text", "pred_label"}
	if hasConfidence {
		header = append(header, "confidence")
	}
	if hasSource {
		header = append(header, "source")
	}
	if hasTrueLabel {
		header = append(header, "true_label")
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("write csv header failed: %w", err)
	}

	for _, rec := range records {
		fields := []string{rec.Text, formatIntPtr(rec.PredLabel)}
		if hasConfidence {
			fields = append(fields, formatFloatPtr(rec.Confidence))
		}
		if hasSource {
			fields = append(fields, formatStrPtr(rec.Source))
		}
		if hasTrueLabel {
			fields = append(fields, formatIntPtr(rec.TrueLabel))
		}
		if err := w.Write(fields); err != nil {
			return "", fmt.Errorf("write csv record failed: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush csv failed: %w", err)
	}
	return buf.String(), nil
}

func formatIntPtr(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func formatFloatPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 4, 64)
}

func formatStrPtr(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
