// Package metrics computes classification quality metrics over the fixed
// three-class sentiment label set.
package metrics

import "math"

// ClassLabels is the closed label set; classes are never inferred from data.
var ClassLabels = []int{0, 1, 2}

const decimalPlaces = 4

type ClassMetrics struct {
	ClassLabel int     `json:"class_label"`
	Precision  float64 `json:"precision"`
	Recall     float64 `json:"recall"`
	F1         float64 `json:"f1"`
}

type Report struct {
	MacroF1      float64        `json:"macro_f1"`
	ClassMetrics []ClassMetrics `json:"class_metrics"`
}

// ComputeMacroF1 computes per-class precision/recall/F1 and their unweighted
// mean over ClassLabels. Inputs must be the same length; callers validate
// that before invoking. A zero denominator yields 0 for the affected metric.
// All values are rounded to 4 decimal places.
func ComputeMacroF1(yTrue, yPred []int) Report {
	type counts struct {
		tp, fp, fn int
	}
	byClass := make(map[int]*counts, len(ClassLabels))
	for _, label := range ClassLabels {
		byClass[label] = &counts{}
	}

	for i := range yTrue {
		t, p := yTrue[i], yPred[i]
		if t == p {
			if c, ok := byClass[t]; ok {
				c.tp++
			}
			continue
		}
		if c, ok := byClass[p]; ok {
			c.fp++
		}
		if c, ok := byClass[t]; ok {
			c.fn++
		}
	}

	classMetrics := make([]ClassMetrics, 0, len(ClassLabels))
	var f1Sum float64
	for _, label := range ClassLabels {
		c := byClass[label]
		precision := safeDiv(float64(c.tp), float64(c.tp+c.fp))
		recall := safeDiv(float64(c.tp), float64(c.tp+c.fn))
		f1 := safeDiv(2*precision*recall, precision+recall)
		f1Sum += f1

		classMetrics = append(classMetrics, ClassMetrics{
			ClassLabel: label,
			Precision:  round(precision),
			Recall:     round(recall),
			F1:         round(f1),
		})
	}

	return Report{
		MacroF1:      round(f1Sum / float64(len(ClassLabels))),
		ClassMetrics: classMetrics,
	}
}

func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

func round(v float64) float64 {
	shift := math.Pow10(decimalPlaces)
	return math.Round(v*shift) / shift
}
