package assess

import (
	"math"
	"sort"
	"time"

	"github.com/chippeddog/english.now-sub000/internal/session"
)

// wordGapAllowance is added to every cleanly pronounced word's duration when
// accumulating speech time for the fluency ratio, crediting the natural
// inter-word gap.
const wordGapAllowance = 100 * time.Millisecond

// Rank weights for the composite score, worst sub-score first. The weakest
// dimension dominates so that improving it moves the composite the most.
var (
	rankWeights4 = []float64{0.4, 0.2, 0.2, 0.2}
	rankWeights3 = []float64{0.6, 0.2, 0.2}
	rankWeights2 = []float64{0.6, 0.4}
)

// Score computes the four sub-scores and the composite pronunciation score of
// a single attempt from its aligned words and the per-utterance prosody
// scores.
//
// Score never fails: missing inputs degrade the affected sub-scores to 0, so
// a partially usable provider response still yields a (low) score.
func Score(alignedWords []session.AlignedWord, prosodyScores []float64) session.Scores {
	var (
		accuracySum   float64
		nonInsertions int

		validWords  int
		speechTime  time.Duration
		spanStart   time.Duration
		spanEnd     time.Duration
		haveTimings bool
	)

	for _, w := range alignedWords {
		if w.ErrorType != session.ErrorInsertion {
			accuracySum += w.AccuracyScore
			nonInsertions++
		}
		if w.ErrorType == session.ErrorNone {
			validWords++
			speechTime += w.Duration + wordGapAllowance
		}
		// Omissions carry no timing; every recognized word does.
		if w.ErrorType != session.ErrorOmission {
			if !haveTimings || w.Offset < spanStart {
				spanStart = w.Offset
			}
			if end := w.Offset + w.Duration; !haveTimings || end > spanEnd {
				spanEnd = end
			}
			haveTimings = true
		}
	}

	var accuracy float64
	if nonInsertions > 0 {
		accuracy = accuracySum / float64(nonInsertions)
	}

	var fluency float64
	if haveTimings && spanEnd > spanStart {
		fluency = float64(speechTime) / float64(spanEnd-spanStart) * 100
	}

	completeness := completenessScore(validWords, nonInsertions)

	var prosody float64
	if len(prosodyScores) > 0 {
		var sum float64
		for _, p := range prosodyScores {
			sum += p
		}
		prosody = sum / float64(len(prosodyScores))
	}

	composite := Composite([]float64{accuracy, fluency, completeness, prosody})

	return session.Scores{
		Accuracy:      roundScore(accuracy),
		Fluency:       roundScore(fluency),
		Completeness:  roundScore(completeness),
		Prosody:       roundScore(prosody),
		Pronunciation: roundScore(composite),
	}
}

// completenessScore is the share of cleanly pronounced words among all
// reference-side words, capped at 100.
func completenessScore(validWords, nonInsertions int) float64 {
	if nonInsertions < 1 {
		nonInsertions = 1
	}
	return math.Min(100, float64(validWords)/float64(nonInsertions)*100)
}

// Composite combines sub-scores into the composite pronunciation score using
// rank weighting: NaN and negative terms are dropped, the remainder is sorted
// ascending, and each rank gets a fixed weight with the lowest score weighted
// heaviest. Fewer than two usable terms yield 0.
func Composite(terms []float64) float64 {
	usable := make([]float64, 0, len(terms))
	for _, t := range terms {
		if math.IsNaN(t) || t < 0 {
			continue
		}
		usable = append(usable, t)
	}
	sort.Float64s(usable)

	var weights []float64
	switch len(usable) {
	case 4:
		weights = rankWeights4
	case 3:
		weights = rankWeights3
	case 2:
		weights = rankWeights2
	default:
		return 0
	}

	var composite float64
	for i, w := range weights {
		composite += usable[i] * w
	}
	return composite
}

// roundScore rounds to the nearest integer for storage. Intermediate math
// stays in floating point; only final values are rounded.
func roundScore(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	return int(math.Round(v))
}
