package assess

import (
	"errors"
	"math"
	"sort"

	"github.com/chippeddog/english.now-sub000/internal/session"
)

// ErrNoAttempts is returned by Summarize when a session has no attempts to
// aggregate. A session cannot be completed with zero data, so this is a hard
// failure rather than an all-zero summary.
var ErrNoAttempts = errors.New("assess: no attempts to summarize")

const (
	// weakWordRatio is the exclusive correct/total boundary below which a
	// word counts as weak. Exactly half correct is not weak.
	weakWordRatio = 0.5

	// weakPhonemeScore is the rounded average below which a phoneme counts
	// as weak. An average of exactly 80 is not weak.
	weakPhonemeScore = 80

	// phonemeExampleScore is the word accuracy below which a word qualifies
	// as an example of a troublesome phoneme.
	phonemeExampleScore = 80

	// maxExampleWords caps the example words kept per phoneme.
	maxExampleWords = 5
)

// wordTally tracks per-word correctness across a whole session.
type wordTally struct {
	correct int
	total   int
}

// phonemeTally accumulates per-phoneme scores across a whole session.
// Running sum and count instead of an average so that the zero-contributors
// case stays an explicit branch.
type phonemeTally struct {
	totalScore   float64
	count        int
	exampleWords []string
}

// Summarize aggregates every attempt of a session into a Summary: sub-score
// averages, best and worst composite, words answered incorrectly more often
// than not, and phonemes averaging below the weak threshold ranked worst
// first.
//
// Attempts that were never scored still count toward TotalAttempts but
// contribute nothing to averages or extremes.
func Summarize(attempts []session.Attempt) (*session.Summary, error) {
	if len(attempts) == 0 {
		return nil, ErrNoAttempts
	}

	var (
		scoreAcc, accuracyAcc, fluencyAcc, prosodyAcc, completenessAcc meanAcc

		best, worst int
		haveScored  bool

		words    = map[string]*wordTally{}
		phonemes = map[string]*phonemeTally{}
	)

	for _, attempt := range attempts {
		if attempt.Scores != nil {
			s := attempt.Scores
			scoreAcc.add(float64(s.Pronunciation))
			accuracyAcc.add(float64(s.Accuracy))
			fluencyAcc.add(float64(s.Fluency))
			prosodyAcc.add(float64(s.Prosody))
			completenessAcc.add(float64(s.Completeness))

			if !haveScored || s.Pronunciation > best {
				best = s.Pronunciation
			}
			if !haveScored || s.Pronunciation < worst {
				worst = s.Pronunciation
			}
			haveScored = true
		}

		for _, w := range attempt.WordResults {
			if w.ErrorType != session.ErrorInsertion {
				tally := words[w.Text]
				if tally == nil {
					tally = &wordTally{}
					words[w.Text] = tally
				}
				tally.total++
				if w.ErrorType == session.ErrorNone {
					tally.correct++
				}
			}

			for _, ph := range w.Phonemes {
				tally := phonemes[ph.Symbol]
				if tally == nil {
					tally = &phonemeTally{}
					phonemes[ph.Symbol] = tally
				}
				tally.totalScore += ph.AccuracyScore
				tally.count++
				if w.AccuracyScore < phonemeExampleScore {
					tally.addExample(w.Text)
				}
			}
		}
	}

	summary := &session.Summary{
		AverageScore:        roundScore(scoreAcc.mean()),
		AverageAccuracy:     roundScore(accuracyAcc.mean()),
		AverageFluency:      roundScore(fluencyAcc.mean()),
		AverageProsody:      roundScore(prosodyAcc.mean()),
		AverageCompleteness: roundScore(completenessAcc.mean()),
		TotalAttempts:       len(attempts),
		BestScore:           best,
		WorstScore:          worst,
		WeakWords:           weakWords(words),
		WeakPhonemes:        weakPhonemes(phonemes),
	}
	return summary, nil
}

// addExample appends word as an example unless it is already recorded or the
// cap is reached.
func (t *phonemeTally) addExample(word string) {
	if len(t.exampleWords) >= maxExampleWords {
		return
	}
	for _, existing := range t.exampleWords {
		if existing == word {
			return
		}
	}
	t.exampleWords = append(t.exampleWords, word)
}

// weakWords returns every word answered correctly in less than half of its
// occurrences, sorted alphabetically for stable output.
func weakWords(tallies map[string]*wordTally) []string {
	var weak []string
	for word, t := range tallies {
		if t.total > 0 && float64(t.correct)/float64(t.total) < weakWordRatio {
			weak = append(weak, word)
		}
	}
	sort.Strings(weak)
	return weak
}

// weakPhonemes returns every phoneme whose rounded session average is below
// the weak threshold, sorted ascending by average score (worst first). That
// ordering drives UI prioritisation and must be exact; ties break on the
// phoneme symbol.
func weakPhonemes(tallies map[string]*phonemeTally) []session.WeakPhoneme {
	type ranked struct {
		session.WeakPhoneme
		avg float64
	}
	var weak []ranked
	for symbol, t := range tallies {
		if t.count == 0 {
			continue
		}
		avg := t.totalScore / float64(t.count)
		if int(math.Round(avg)) >= weakPhonemeScore {
			continue
		}
		weak = append(weak, ranked{
			WeakPhoneme: session.WeakPhoneme{
				Phoneme:      symbol,
				Score:        int(math.Round(avg)),
				Occurrences:  t.count,
				ExampleWords: t.exampleWords,
			},
			avg: avg,
		})
	}

	sort.Slice(weak, func(i, j int) bool {
		if weak[i].avg != weak[j].avg {
			return weak[i].avg < weak[j].avg
		}
		return weak[i].Phoneme < weak[j].Phoneme
	})

	result := make([]session.WeakPhoneme, len(weak))
	for i, r := range weak {
		result[i] = r.WeakPhoneme
	}
	return result
}

// meanAcc is an explicit sum/count accumulator; mean of zero contributors is
// 0, never NaN.
type meanAcc struct {
	sum   float64
	count int
}

func (a *meanAcc) add(v float64) {
	a.sum += v
	a.count++
}

func (a *meanAcc) mean() float64 {
	if a.count == 0 {
		return 0
	}
	return a.sum / float64(a.count)
}
