package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeMacroF1_PerfectPrediction(t *testing.T) {
	yTrue := []int{0, 0, 1, 1, 2, 2}
	yPred := []int{0, 0, 1, 1, 2, 2}

	report := ComputeMacroF1(yTrue, yPred)

	assert.InDelta(t, 1.0, report.MacroF1, 1e-9)
	require.Len(t, report.ClassMetrics, 3)
	for _, cm := range report.ClassMetrics {
		assert.InDelta(t, 1.0, cm.Precision, 1e-9, "class %d precision", cm.ClassLabel)
		assert.InDelta(t, 1.0, cm.Recall, 1e-9, "class %d recall", cm.ClassLabel)
		assert.InDelta(t, 1.0, cm.F1, 1e-9, "class %d f1", cm.ClassLabel)
	}
}

func TestComputeMacroF1_AbsentClassYieldsZero(t *testing.T) {
	// Class 2 never occurs in either array; its metrics must be 0, not NaN.
	yTrue := []int{0, 0, 1, 1}
	yPred := []int{0, 1, 1, 0}

	report := ComputeMacroF1(yTrue, yPred)

	require.Len(t, report.ClassMetrics, 3)
	cm2 := report.ClassMetrics[2]
	assert.Equal(t, 2, cm2.ClassLabel)
	assert.Zero(t, cm2.Precision)
	assert.Zero(t, cm2.Recall)
	assert.Zero(t, cm2.F1)

	assert.False(t, report.MacroF1 != report.MacroF1, "macro F1 must not be NaN")
}

func TestComputeMacroF1_AllWrong(t *testing.T) {
	yTrue := []int{0, 1, 2}
	yPred := []int{1, 2, 0}

	report := ComputeMacroF1(yTrue, yPred)

	assert.Zero(t, report.MacroF1)
	for _, cm := range report.ClassMetrics {
		assert.Zero(t, cm.F1)
	}
}

func TestComputeMacroF1_KnownValues(t *testing.T) {
	// Class 0: tp=2 fp=1 fn=0 -> P=2/3, R=1, F1=0.8
	// Class 1: tp=1 fp=1 fn=1 -> P=0.5, R=0.5, F1=0.5
	// Class 2: tp=1 fp=0 fn=1 -> P=1, R=0.5, F1=2/3
	yTrue := []int{0, 0, 1, 1, 2, 2}
	yPred := []int{0, 0, 1, 0, 2, 1}

	report := ComputeMacroF1(yTrue, yPred)

	assert.InDelta(t, 0.8, report.ClassMetrics[0].F1, 1e-4)
	assert.InDelta(t, 0.5, report.ClassMetrics[1].F1, 1e-4)
	assert.InDelta(t, 0.6667, report.ClassMetrics[2].F1, 1e-4)
	assert.InDelta(t, 0.6556, report.MacroF1, 1e-4)
}

func TestComputeMacroF1_BoundedAndMeanOfClassF1(t *testing.T) {
	cases := [][2][]int{
		{{0, 1, 2, 0, 1, 2}, {0, 0, 0, 0, 0, 0}},
		{{2, 2, 2}, {2, 2, 2}},
		{{0, 1}, {1, 0}},
		{{1, 1, 2, 0, 0, 2, 1}, {1, 2, 2, 0, 1, 0, 1}},
	}

	for _, c := range cases {
		report := ComputeMacroF1(c[0], c[1])
		assert.GreaterOrEqual(t, report.MacroF1, 0.0)
		assert.LessOrEqual(t, report.MacroF1, 1.0)

		sum := 0.0
		for _, cm := range report.ClassMetrics {
			sum += cm.F1
		}
		assert.InDelta(t, sum/3, report.MacroF1, 1e-3)
	}
}

func TestComputeMacroF1_Rounding(t *testing.T) {
	// One of three class-0 predictions correct: P=1/3 -> 0.3333.
	yTrue := []int{0, 1, 1}
	yPred := []int{0, 0, 0}

	report := ComputeMacroF1(yTrue, yPred)

	assert.InDelta(t, 0.3333, report.ClassMetrics[0].Precision, 1e-9)
}
