// Package session defines the domain model for pronunciation practice
// sessions: the session and attempt records, their lifecycle states, and the
// derived summary types written when a session is finalised.
package session

import "time"

// Status is the lifecycle state of a practice session. Transitions are driven
// exclusively by the processing pipeline: active → assessing → completed, or
// failed when a session cannot be completed.
type Status string

const (
	StatusActive    Status = "active"
	StatusAssessing Status = "assessing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsValid reports whether s is a recognised session status.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusAssessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether s is a final status.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// FeedbackStatus tracks qualitative feedback generation for a completed session.
type FeedbackStatus string

const (
	FeedbackPending    FeedbackStatus = "pending"
	FeedbackProcessing FeedbackStatus = "processing"
	FeedbackCompleted  FeedbackStatus = "completed"
	FeedbackFailed     FeedbackStatus = "failed"
)

// IsValid reports whether f is a recognised feedback status.
func (f FeedbackStatus) IsValid() bool {
	switch f {
	case FeedbackPending, FeedbackProcessing, FeedbackCompleted, FeedbackFailed:
		return true
	}
	return false
}

// ErrorType classifies a single aligned word. The first four values are
// produced by alignment; the break and monotone values come straight from the
// speech provider and are passed through unchanged.
type ErrorType string

const (
	ErrorNone             ErrorType = "None"
	ErrorOmission         ErrorType = "Omission"
	ErrorInsertion        ErrorType = "Insertion"
	ErrorMispronunciation ErrorType = "Mispronunciation"
	ErrorUnexpectedBreak  ErrorType = "UnexpectedBreak"
	ErrorMissingBreak     ErrorType = "MissingBreak"
	ErrorMonotone         ErrorType = "Monotone"
)

// PhonemeScore is the provider's accuracy score for a single phoneme of an
// aligned word.
type PhonemeScore struct {
	Symbol        string  `json:"symbol"`
	AccuracyScore float64 `json:"accuracyScore"`
}

// AlignedWord is one entry of an attempt's word-level result: the recognized
// word's scores (or a synthetic zero-score entry for an omission) plus the
// finalised error classification.
type AlignedWord struct {
	Text          string         `json:"text"`
	ErrorType     ErrorType      `json:"errorType"`
	AccuracyScore float64        `json:"accuracyScore"`
	Offset        time.Duration  `json:"offset"`
	Duration      time.Duration  `json:"duration"`
	Phonemes      []PhonemeScore `json:"phonemes,omitempty"`

	// LikelyTarget names the reference word an inserted word was most likely
	// an attempt at, when phonetic matching identifies one. Informational
	// only; it never changes ErrorType or any score.
	LikelyTarget string `json:"likelyTarget,omitempty"`
}

// Scores holds the four sub-scores and the composite pronunciation score of a
// single attempt, rounded to integers for storage.
type Scores struct {
	Accuracy      int `json:"accuracy"`
	Fluency       int `json:"fluency"`
	Completeness  int `json:"completeness"`
	Prosody       int `json:"prosody"`
	Pronunciation int `json:"pronunciation"`
}

// Attempt is one recorded take of a reference item within a session.
// Scores and WordResults are nil until assessment has run for this attempt.
type Attempt struct {
	ID        string
	SessionID string

	// ItemIndex selects which session item this attempt answers.
	ItemIndex int

	// Audio is the recorded take as canonical PCM (16 kHz, 16-bit, mono).
	// Empty when the upload never completed; such attempts are skipped by
	// assessment.
	Audio []byte

	Transcript  string
	Scores      *Scores
	WordResults []AlignedWord
	CreatedAt   time.Time
}

// Item is a single reference text the learner is asked to read aloud.
type Item struct {
	Text        string `json:"text"`
	Translation string `json:"translation,omitempty"`
}

// WeakPhoneme is a phoneme the learner struggled with across a whole session.
type WeakPhoneme struct {
	Phoneme      string   `json:"phoneme"`
	Score        int      `json:"score"`
	Occurrences  int      `json:"occurrences"`
	ExampleWords []string `json:"exampleWords,omitempty"`
}

// Summary is the aggregate over all attempts of a session. It is written once
// when the session transitions to completed and never recomputed afterwards.
type Summary struct {
	AverageScore        int           `json:"averageScore"`
	AverageAccuracy     int           `json:"averageAccuracy"`
	AverageFluency      int           `json:"averageFluency"`
	AverageProsody      int           `json:"averageProsody"`
	AverageCompleteness int           `json:"averageCompleteness"`
	TotalAttempts       int           `json:"totalAttempts"`
	BestScore           int           `json:"bestScore"`
	WorstScore          int           `json:"worstScore"`
	WeakWords           []string      `json:"weakWords,omitempty"`
	WeakPhonemes        []WeakPhoneme `json:"weakPhonemes,omitempty"`
}

// Session is a bounded practice activity containing one or more reference
// items and the learner's attempts at each.
type Session struct {
	ID     string
	UserID string
	Status Status

	Items []Item

	// Summary is nil until the session completes.
	Summary *Summary

	FeedbackStatus FeedbackStatus

	// Feedback is the generated qualitative feedback text, filled in by the
	// feedback worker after the session completes.
	Feedback string

	CreatedAt   time.Time
	CompletedAt *time.Time

	// DeletedAt is the tombstone timestamp. Sessions are never hard-deleted
	// while attempts reference them.
	DeletedAt *time.Time
}
