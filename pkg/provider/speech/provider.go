// Package speech defines the Provider interface for pronunciation assessment
// backends.
//
// A speech provider wraps an external speech service that, given a completed
// recording and the reference text the learner was asked to read, returns the
// recognized words with per-word and per-phoneme accuracy scores, word timing,
// and prosody quality. The central abstraction is a single blocking Assess
// call: implementations that are internally event-driven (continuous
// recognition with recognized/canceled callbacks) must accumulate their
// segments locally and resolve once the whole recording has been processed.
//
// Implementations must be safe for concurrent use; the processing pipeline
// assesses multiple attempts of a session in parallel.
package speech

import (
	"context"
	"fmt"
	"time"
)

// PhonemeScore is the accuracy score of a single phoneme within a word.
type PhonemeScore struct {
	// Symbol is the phoneme in the provider's notation (e.g., "ð", "ax").
	Symbol string

	// AccuracyScore is 0–100.
	AccuracyScore float64
}

// Word is one recognized word of an assessment result.
type Word struct {
	// Text is the recognized word, lowercased with punctuation stripped.
	Text string

	// Offset is the word's start position within the recording. Providers
	// reporting native tick units must convert at this boundary; the rest of
	// the system only ever works with [time.Duration].
	Offset time.Duration

	// Duration is the length of the spoken word.
	Duration time.Duration

	// AccuracyScore is the provider's word-level accuracy, 0–100.
	AccuracyScore float64

	// ErrorType is the provider's own classification ("None", "Omission",
	// "Insertion", "Mispronunciation", "UnexpectedBreak", "MissingBreak",
	// "Monotone"). Alignment may override it.
	ErrorType string

	// Phonemes holds the per-phoneme scores, in spoken order.
	Phonemes []PhonemeScore
}

// Result is a complete pronunciation assessment of one recording.
type Result struct {
	// Transcript is the full recognized text, segments joined with spaces.
	Transcript string

	// Words lists every recognized word in spoken order, across all
	// utterance segments of the recording.
	Words []Word

	// ProsodyScores holds one prosody score (0–100) per recognized utterance
	// segment. Empty when the provider does not report prosody.
	ProsodyScores []float64
}

// ProviderError is returned by Assess when the provider call itself fails
// (network error, service error, cancelled recognition). Such failures are
// transient from the caller's perspective and safe to retry.
type ProviderError struct {
	// Code is the provider-specific error or cancellation code, when known.
	Code string

	// Message describes the failure.
	Message string

	// Err is the underlying error, if any.
	Err error
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("speech provider: %s (code %s)", e.Message, e.Code)
	}
	return "speech provider: " + e.Message
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Provider is the abstraction over any pronunciation assessment backend.
type Provider interface {
	// Name identifies the backend in logs and metrics (e.g., "azure").
	Name() string

	// Assess runs pronunciation assessment of pcm (canonical PCM: 16 kHz,
	// 16-bit, mono) against referenceText. It blocks until the whole
	// recording has been processed and returns the complete result, or a
	// [*ProviderError] when the provider call fails.
	//
	// Assess respects ctx cancellation between utterance segments but does
	// not interrupt a segment already being recognized.
	Assess(ctx context.Context, pcm []byte, referenceText string) (*Result, error)
}
