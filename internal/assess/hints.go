package assess

import (
	"github.com/antzucaro/matchr"

	"github.com/chippeddog/english.now-sub000/internal/session"
)

// likelyTargetThreshold is the minimum Jaro-Winkler similarity for an
// inserted word to be hinted as an attempt at an omitted reference word when
// the two do not already overlap phonetically.
const likelyTargetThreshold = 0.75

// AnnotateLikelyTargets pairs Insertion entries with Omission entries of the
// same alignment to mark probable substitutions: a learner who says "bats"
// for "cats" produces one insertion and one omission, and the hint records
// that the insertion was likely an attempt at the omitted word.
//
// Candidates must either share a Double Metaphone code with the omitted word
// or exceed the Jaro-Winkler threshold; among candidates the highest
// Jaro-Winkler score wins and each omission is claimed at most once. Only
// LikelyTarget is written — classifications and scores stay untouched.
func AnnotateLikelyTargets(aligned []session.AlignedWord) {
	var omissions []int
	for i, w := range aligned {
		if w.ErrorType == session.ErrorOmission {
			omissions = append(omissions, i)
		}
	}
	if len(omissions) == 0 {
		return
	}

	claimed := make(map[int]bool, len(omissions))
	for i, w := range aligned {
		if w.ErrorType != session.ErrorInsertion {
			continue
		}

		bestIdx := -1
		bestScore := 0.0
		for _, oi := range omissions {
			if claimed[oi] {
				continue
			}
			target := aligned[oi].Text
			score := matchr.JaroWinkler(w.Text, target, false)
			if !phoneticOverlap(w.Text, target) && score < likelyTargetThreshold {
				continue
			}
			if score > bestScore {
				bestScore = score
				bestIdx = oi
			}
		}
		if bestIdx >= 0 {
			aligned[i].LikelyTarget = aligned[bestIdx].Text
			claimed[bestIdx] = true
		}
	}
}

// phoneticOverlap reports whether the two words share a Double Metaphone code.
func phoneticOverlap(a, b string) bool {
	ap, as := matchr.DoubleMetaphone(a)
	bp, bs := matchr.DoubleMetaphone(b)
	for _, ac := range []string{ap, as} {
		if ac == "" {
			continue
		}
		if ac == bp || (bs != "" && ac == bs) {
			return true
		}
	}
	return false
}
