package assess

import (
	"math"
	"testing"
	"time"

	"github.com/chippeddog/english.now-sub000/internal/session"
)

func TestComposite_FourTerms(t *testing.T) {
	t.Parallel()

	// Sorted ascending the terms are [60 70 80 90]; the weakest dimension
	// carries the 0.4 weight: 0.4*60 + 0.2*70 + 0.2*80 + 0.2*90 = 72.
	got := Composite([]float64{90, 80, 70, 60})
	if got != 72 {
		t.Fatalf("Composite([90 80 70 60]) = %v, want 72", got)
	}
}

func TestComposite_DegradedTermCounts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		terms []float64
		want  float64
	}{
		{"three terms", []float64{80, 60, 100}, 0.6*60 + 0.2*80 + 0.2*100},
		{"two terms", []float64{90, 50}, 0.6*50 + 0.4*90},
		{"one term", []float64{75}, 0},
		{"no terms", nil, 0},
		{"negative dropped", []float64{90, 80, 70, -1}, 0.6*70 + 0.2*80 + 0.2*90},
		{"nan dropped", []float64{90, 80, math.NaN(), 60}, 0.6*60 + 0.2*80 + 0.2*90},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Composite(tc.terms)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("Composite(%v) = %v, want %v", tc.terms, got, tc.want)
			}
		})
	}
}

func TestCompletenessScore_Capped(t *testing.T) {
	t.Parallel()

	if got := completenessScore(10, 8); got != 100 {
		t.Errorf("completenessScore(10, 8) = %v, want capped at 100", got)
	}
	if got := completenessScore(4, 8); got != 50 {
		t.Errorf("completenessScore(4, 8) = %v, want 50", got)
	}
	// Zero denominator must not divide by zero.
	if got := completenessScore(0, 0); got != 0 {
		t.Errorf("completenessScore(0, 0) = %v, want 0", got)
	}
}

func TestScore_Fluency(t *testing.T) {
	t.Parallel()

	words := []session.AlignedWord{
		{
			Text: "hello", ErrorType: session.ErrorNone, AccuracyScore: 90,
			Offset: 0, Duration: 400 * time.Millisecond,
		},
		{
			Text: "world", ErrorType: session.ErrorNone, AccuracyScore: 90,
			Offset: 1 * time.Second, Duration: 600 * time.Millisecond,
		},
	}

	scores := Score(words, []float64{85})

	// Speech time: (400+100) + (600+100) = 1200ms over a 1600ms span.
	if scores.Fluency != 75 {
		t.Errorf("Fluency = %d, want 75", scores.Fluency)
	}
	if scores.Accuracy != 90 {
		t.Errorf("Accuracy = %d, want 90", scores.Accuracy)
	}
	if scores.Completeness != 100 {
		t.Errorf("Completeness = %d, want 100", scores.Completeness)
	}
	if scores.Prosody != 85 {
		t.Errorf("Prosody = %d, want 85", scores.Prosody)
	}
}

func TestScore_InsertionsExcluded(t *testing.T) {
	t.Parallel()

	words := []session.AlignedWord{
		{Text: "good", ErrorType: session.ErrorNone, AccuracyScore: 80, Duration: 300 * time.Millisecond},
		{Text: "uh", ErrorType: session.ErrorInsertion, AccuracyScore: 10, Offset: 300 * time.Millisecond, Duration: 200 * time.Millisecond},
	}

	scores := Score(words, nil)

	// The insertion's accuracy must not drag the mean down.
	if scores.Accuracy != 80 {
		t.Errorf("Accuracy = %d, want 80 (insertion excluded)", scores.Accuracy)
	}
	// Nor does the insertion count against completeness.
	if scores.Completeness != 100 {
		t.Errorf("Completeness = %d, want 100", scores.Completeness)
	}
}

func TestScore_EmptyInput(t *testing.T) {
	t.Parallel()

	scores := Score(nil, nil)
	want := session.Scores{}
	if scores != want {
		t.Errorf("Score(nil, nil) = %+v, want all zero", scores)
	}
}

func TestScore_AllOmitted(t *testing.T) {
	t.Parallel()

	words := []session.AlignedWord{
		{Text: "a", ErrorType: session.ErrorOmission},
		{Text: "b", ErrorType: session.ErrorOmission},
	}

	scores := Score(words, nil)

	// No timing span exists, so fluency degrades to 0 instead of failing.
	if scores.Fluency != 0 {
		t.Errorf("Fluency = %d, want 0", scores.Fluency)
	}
	if scores.Accuracy != 0 {
		t.Errorf("Accuracy = %d, want 0", scores.Accuracy)
	}
	if scores.Completeness != 0 {
		t.Errorf("Completeness = %d, want 0", scores.Completeness)
	}
}
