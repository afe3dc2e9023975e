// Package assess implements the pronunciation scoring core: word alignment of
// recognized speech against a reference text, per-attempt scoring, and
// session-level summarization.
package assess

import (
	"slices"

	"github.com/chippeddog/english.now-sub000/internal/session"
	"github.com/chippeddog/english.now-sub000/pkg/provider/speech"
)

// mispronunciationThreshold is the word accuracy below which a match the
// provider labels "None" is reclassified as a mispronunciation. The service's
// own classifier under-reports this case in continuous-recognition mode.
const mispronunciationThreshold = 60

// Align matches the recognized word sequence against the normalized reference
// word sequence and returns one AlignedWord per reference or inserted word,
// in reference order.
//
// Matching is longest-common-subsequence over exact token equality. Reference
// words the learner never said become zero-score Omission entries; recognized
// words with no reference counterpart keep their scores but are relabelled
// Insertion. Matches keep the provider's scores, except that a "None" match
// scoring below 60 becomes a Mispronunciation.
//
// Empty inputs are not errors: an empty reference yields all Insertions and
// an empty recognition yields all Omissions.
func Align(referenceWords []string, recognized []speech.Word) []session.AlignedWord {
	m, n := len(referenceWords), len(recognized)

	// dp[i][j] = LCS length of referenceWords[:i] and recognized[:j].
	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			if referenceWords[i-1] == recognized[j-1].Text {
				dp[i][j] = dp[i-1][j-1] + 1
			} else if dp[i-1][j] > dp[i][j-1] {
				dp[i][j] = dp[i-1][j]
			} else {
				dp[i][j] = dp[i][j-1]
			}
		}
	}

	// Backtrack from (m, n). Prefer a match; on equal neighbours consume a
	// recognized word (Insertion) before a reference word (Omission). The
	// result comes out reversed.
	aligned := make([]session.AlignedWord, 0, max(m, n))
	i, j := m, n
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && referenceWords[i-1] == recognized[j-1].Text:
			aligned = append(aligned, fromRecognized(recognized[j-1], ""))
			i--
			j--
		case j > 0 && (i == 0 || dp[i][j-1] >= dp[i-1][j]):
			aligned = append(aligned, fromRecognized(recognized[j-1], session.ErrorInsertion))
			j--
		default:
			aligned = append(aligned, session.AlignedWord{
				Text:      referenceWords[i-1],
				ErrorType: session.ErrorOmission,
			})
			i--
		}
	}
	slices.Reverse(aligned)

	// A match the provider calls clean but scores poorly is a
	// mispronunciation.
	for k := range aligned {
		if aligned[k].ErrorType == session.ErrorNone &&
			aligned[k].AccuracyScore < mispronunciationThreshold {
			aligned[k].ErrorType = session.ErrorMispronunciation
		}
	}

	return aligned
}

// fromRecognized copies a recognized word's scores into an AlignedWord.
// When override is empty the provider's own classification is kept, defaulting
// to "None" for providers that omit it.
func fromRecognized(w speech.Word, override session.ErrorType) session.AlignedWord {
	errorType := override
	if errorType == "" {
		errorType = session.ErrorType(w.ErrorType)
		if errorType == "" {
			errorType = session.ErrorNone
		}
	}
	aw := session.AlignedWord{
		Text:          w.Text,
		ErrorType:     errorType,
		AccuracyScore: w.AccuracyScore,
		Offset:        w.Offset,
		Duration:      w.Duration,
	}
	for _, ph := range w.Phonemes {
		aw.Phonemes = append(aw.Phonemes, session.PhonemeScore{
			Symbol:        ph.Symbol,
			AccuracyScore: ph.AccuracyScore,
		})
	}
	return aw
}
