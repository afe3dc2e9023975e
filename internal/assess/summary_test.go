package assess_test

import (
	"errors"
	"testing"

	"github.com/chippeddog/english.now-sub000/internal/assess"
	"github.com/chippeddog/english.now-sub000/internal/session"
)

// scoredAttempt builds an attempt with the given composite score and word
// results; the remaining sub-scores mirror the composite.
func scoredAttempt(score int, words ...session.AlignedWord) session.Attempt {
	return session.Attempt{
		Scores: &session.Scores{
			Accuracy:      score,
			Fluency:       score,
			Completeness:  score,
			Prosody:       score,
			Pronunciation: score,
		},
		WordResults: words,
	}
}

func word(text string, errType session.ErrorType, accuracy float64, phonemes ...session.PhonemeScore) session.AlignedWord {
	return session.AlignedWord{Text: text, ErrorType: errType, AccuracyScore: accuracy, Phonemes: phonemes}
}

func TestSummarize_EmptyFails(t *testing.T) {
	t.Parallel()

	if _, err := assess.Summarize(nil); !errors.Is(err, assess.ErrNoAttempts) {
		t.Fatalf("Summarize(nil): err = %v, want ErrNoAttempts", err)
	}
	if _, err := assess.Summarize([]session.Attempt{}); !errors.Is(err, assess.ErrNoAttempts) {
		t.Fatalf("Summarize([]): err = %v, want ErrNoAttempts", err)
	}
}

func TestSummarize_AveragesAndExtremes(t *testing.T) {
	t.Parallel()

	attempts := []session.Attempt{
		scoredAttempt(90),
		scoredAttempt(70),
		scoredAttempt(80),
	}

	summary, err := assess.Summarize(attempts)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	if summary.AverageScore != 80 {
		t.Errorf("AverageScore = %d, want 80", summary.AverageScore)
	}
	if summary.BestScore != 90 {
		t.Errorf("BestScore = %d, want 90", summary.BestScore)
	}
	if summary.WorstScore != 70 {
		t.Errorf("WorstScore = %d, want 70", summary.WorstScore)
	}
	if summary.TotalAttempts != 3 {
		t.Errorf("TotalAttempts = %d, want 3", summary.TotalAttempts)
	}
}

func TestSummarize_UnscoredAttemptsCountedButExcluded(t *testing.T) {
	t.Parallel()

	attempts := []session.Attempt{
		scoredAttempt(80),
		{}, // assessment failed for this one; it stays unscored
	}

	summary, err := assess.Summarize(attempts)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	if summary.TotalAttempts != 2 {
		t.Errorf("TotalAttempts = %d, want 2 (unscored attempts still count)", summary.TotalAttempts)
	}
	if summary.AverageScore != 80 {
		t.Errorf("AverageScore = %d, want 80 (unscored attempts excluded from means)", summary.AverageScore)
	}
	if summary.WorstScore != 80 {
		t.Errorf("WorstScore = %d, want 80", summary.WorstScore)
	}
}

func TestSummarize_WeakWordBoundary(t *testing.T) {
	t.Parallel()

	// "tricky" correct 1 of 3 → ratio 0.333, weak.
	// "steady" correct 2 of 3 → ratio 0.667, not weak.
	attempts := []session.Attempt{
		scoredAttempt(70,
			word("tricky", session.ErrorNone, 90),
			word("steady", session.ErrorNone, 90),
		),
		scoredAttempt(70,
			word("tricky", session.ErrorMispronunciation, 40),
			word("steady", session.ErrorNone, 90),
		),
		scoredAttempt(70,
			word("tricky", session.ErrorOmission, 0),
			word("steady", session.ErrorOmission, 0),
		),
	}

	summary, err := assess.Summarize(attempts)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	if got := summary.WeakWords; len(got) != 1 || got[0] != "tricky" {
		t.Fatalf("WeakWords = %v, want [tricky]", got)
	}
}

func TestSummarize_HalfCorrectIsNotWeak(t *testing.T) {
	t.Parallel()

	// Exactly half correct sits on the boundary, which is exclusive.
	attempts := []session.Attempt{
		scoredAttempt(95, word("cats", session.ErrorNone, 95)),
		scoredAttempt(40, word("cats", session.ErrorMispronunciation, 40)),
	}

	summary, err := assess.Summarize(attempts)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	if len(summary.WeakWords) != 0 {
		t.Errorf("WeakWords = %v, want none at ratio exactly 0.5", summary.WeakWords)
	}
	if summary.BestScore != 95 || summary.WorstScore != 40 {
		t.Errorf("Best/Worst = %d/%d, want 95/40", summary.BestScore, summary.WorstScore)
	}
}

func TestSummarize_WeakPhonemeBoundary(t *testing.T) {
	t.Parallel()

	attempts := []session.Attempt{
		scoredAttempt(80,
			word("this", session.ErrorNone, 90,
				session.PhonemeScore{Symbol: "ð", AccuracyScore: 79},
				session.PhonemeScore{Symbol: "s", AccuracyScore: 80},
			),
		),
	}

	summary, err := assess.Summarize(attempts)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	if len(summary.WeakPhonemes) != 1 {
		t.Fatalf("WeakPhonemes = %+v, want exactly the phoneme averaging 79", summary.WeakPhonemes)
	}
	wp := summary.WeakPhonemes[0]
	if wp.Phoneme != "ð" || wp.Score != 79 || wp.Occurrences != 1 {
		t.Errorf("WeakPhonemes[0] = %+v, want {ð 79 1}", wp)
	}
}

func TestSummarize_WeakPhonemesWorstFirst(t *testing.T) {
	t.Parallel()

	attempts := []session.Attempt{
		scoredAttempt(60,
			word("three", session.ErrorMispronunciation, 50,
				session.PhonemeScore{Symbol: "θ", AccuracyScore: 40},
				session.PhonemeScore{Symbol: "r", AccuracyScore: 70},
				session.PhonemeScore{Symbol: "i", AccuracyScore: 60},
			),
		),
	}

	summary, err := assess.Summarize(attempts)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	if len(summary.WeakPhonemes) != 3 {
		t.Fatalf("got %d weak phonemes, want 3", len(summary.WeakPhonemes))
	}
	order := []string{summary.WeakPhonemes[0].Phoneme, summary.WeakPhonemes[1].Phoneme, summary.WeakPhonemes[2].Phoneme}
	if order[0] != "θ" || order[1] != "i" || order[2] != "r" {
		t.Errorf("weak phoneme order = %v, want worst first [θ i r]", order)
	}
}

func TestSummarize_PhonemeExampleWords(t *testing.T) {
	t.Parallel()

	// Words scoring below 80 become examples; clean ones do not.
	attempts := []session.Attempt{
		scoredAttempt(70,
			word("think", session.ErrorMispronunciation, 45,
				session.PhonemeScore{Symbol: "θ", AccuracyScore: 30},
			),
			word("throw", session.ErrorNone, 95,
				session.PhonemeScore{Symbol: "θ", AccuracyScore: 90},
			),
		),
	}

	summary, err := assess.Summarize(attempts)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	if len(summary.WeakPhonemes) != 1 {
		t.Fatalf("got %d weak phonemes, want 1 (θ averages 60)", len(summary.WeakPhonemes))
	}
	examples := summary.WeakPhonemes[0].ExampleWords
	if len(examples) != 1 || examples[0] != "think" {
		t.Errorf("ExampleWords = %v, want [think]", examples)
	}
}

func TestSummarize_InsertionsNeverTallied(t *testing.T) {
	t.Parallel()

	attempts := []session.Attempt{
		scoredAttempt(70,
			word("uh", session.ErrorInsertion, 5),
			word("fine", session.ErrorNone, 90),
		),
		scoredAttempt(70,
			word("uh", session.ErrorInsertion, 5),
			word("fine", session.ErrorNone, 90),
		),
	}

	summary, err := assess.Summarize(attempts)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	for _, w := range summary.WeakWords {
		if w == "uh" {
			t.Errorf("inserted word %q tallied as weak", w)
		}
	}
}
