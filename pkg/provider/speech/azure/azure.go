// Package azure implements the speech.Provider interface using the Azure
// Cognitive Services Speech SDK with pronunciation assessment enabled.
//
// The SDK exposes continuous recognition through callbacks (Recognized,
// Canceled, SessionStopped). Assess drives that event stream internally,
// accumulating recognized segments in a buffer local to the call, and returns
// only once the whole recording has been processed. Word-, phoneme- and
// prosody-level detail is extracted from the service's JSON result payload
// via explicit deserialization; malformed payloads are rejected here rather
// than propagated into scoring.
package azure

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Microsoft/cognitive-services-speech-sdk-go/audio"
	"github.com/Microsoft/cognitive-services-speech-sdk-go/common"
	azspeech "github.com/Microsoft/cognitive-services-speech-sdk-go/speech"

	"github.com/chippeddog/english.now-sub000/pkg/provider/speech"
)

// Compile-time interface check.
var _ speech.Provider = (*Provider)(nil)

const (
	defaultLanguage = "en-US"

	// writeChunkBytes is the push-stream write granularity: 100 ms of
	// 16 kHz 16-bit mono PCM.
	writeChunkBytes = 3200
)

// Option is a functional option for Provider.
type Option func(*Provider)

// WithLanguage sets the BCP-47 recognition language. Default: "en-US".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithMiscue controls miscue detection (omission/insertion labelling by the
// service itself). Default: enabled.
func WithMiscue(enabled bool) Option {
	return func(p *Provider) {
		p.enableMiscue = enabled
	}
}

// Provider implements speech.Provider against the Azure Speech service.
// Safe for concurrent use; each Assess call owns its recognizer and streams.
type Provider struct {
	subscriptionKey string
	region          string
	language        string
	enableMiscue    bool
}

// New constructs a Provider for the given Azure Speech subscription.
func New(subscriptionKey, region string, opts ...Option) (*Provider, error) {
	if subscriptionKey == "" {
		return nil, fmt.Errorf("azure: subscription key must not be empty")
	}
	if region == "" {
		return nil, fmt.Errorf("azure: region must not be empty")
	}
	p := &Provider{
		subscriptionKey: subscriptionKey,
		region:          region,
		language:        defaultLanguage,
		enableMiscue:    true,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// assessmentParams is the pronunciation assessment configuration serialised
// into the SDK's JSON config format.
type assessmentParams struct {
	ReferenceText           string `json:"ReferenceText"`
	GradingSystem           string `json:"GradingSystem"`
	Granularity             string `json:"Granularity"`
	EnableMiscue            bool   `json:"EnableMiscue"`
	EnableProsodyAssessment bool   `json:"EnableProsodyAssessment"`
}

// Name implements speech.Provider.
func (p *Provider) Name() string { return "azure" }

// Assess implements speech.Provider.
func (p *Provider) Assess(ctx context.Context, pcm []byte, referenceText string) (*speech.Result, error) {
	pushStream, err := audio.CreatePushAudioInputStream()
	if err != nil {
		return nil, &speech.ProviderError{Message: "create push stream", Err: err}
	}
	defer pushStream.Close()

	audioConfig, err := audio.NewAudioConfigFromStreamInput(pushStream)
	if err != nil {
		return nil, &speech.ProviderError{Message: "create audio config", Err: err}
	}
	defer audioConfig.Close()

	speechConfig, err := azspeech.NewSpeechConfigFromSubscription(p.subscriptionKey, p.region)
	if err != nil {
		return nil, &speech.ProviderError{Message: "create speech config", Err: err}
	}
	defer speechConfig.Close()

	if err := speechConfig.SetSpeechRecognitionLanguage(p.language); err != nil {
		return nil, &speech.ProviderError{Message: "set language", Err: err}
	}

	recognizer, err := azspeech.NewSpeechRecognizerFromConfig(speechConfig, audioConfig)
	if err != nil {
		return nil, &speech.ProviderError{Message: "create recognizer", Err: err}
	}
	defer recognizer.Close()

	paramsJSON, err := json.Marshal(assessmentParams{
		ReferenceText:           referenceText,
		GradingSystem:           "HundredMark",
		Granularity:             "Phoneme",
		EnableMiscue:            p.enableMiscue,
		EnableProsodyAssessment: true,
	})
	if err != nil {
		return nil, &speech.ProviderError{Message: "marshal assessment params", Err: err}
	}

	assessmentConfig, err := azspeech.NewPronunciationAssessmentConfigFromJson(string(paramsJSON))
	if err != nil {
		return nil, &speech.ProviderError{Message: "create assessment config", Err: err}
	}
	defer assessmentConfig.Close()

	if err := assessmentConfig.ApplyTo(recognizer); err != nil {
		return nil, &speech.ProviderError{Message: "apply assessment config", Err: err}
	}

	// Segment accumulation. The handlers run on SDK callback goroutines;
	// results are collected here and read only after the session stops.
	var (
		acc     accumulator
		stopped = make(chan struct{})
	)

	recognizer.Recognized(func(evt azspeech.SpeechRecognitionEventArgs) {
		defer evt.Close()
		if evt.Result.Reason != common.RecognizedSpeech {
			return
		}
		payload := evt.Result.Properties.GetProperty(common.SpeechServiceResponseJSONResult, "")
		acc.addSegment(evt.Result.Text, payload)
	})

	recognizer.Canceled(func(evt azspeech.SpeechRecognitionCanceledEventArgs) {
		defer evt.Close()
		if evt.Reason == common.Error {
			acc.setError(&speech.ProviderError{
				Code:    fmt.Sprintf("%d", evt.ErrorCode),
				Message: evt.ErrorDetails,
			})
		}
	})

	recognizer.SessionStopped(func(evt azspeech.SessionEventArgs) {
		defer evt.Close()
		close(stopped)
	})

	// Feed the whole recording, then signal end of stream so continuous
	// recognition terminates on its own.
	for off := 0; off < len(pcm); off += writeChunkBytes {
		end := off + writeChunkBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		if err := pushStream.Write(pcm[off:end]); err != nil {
			return nil, &speech.ProviderError{Message: "write audio", Err: err}
		}
	}
	pushStream.CloseStream()

	if err := <-recognizer.StartContinuousRecognitionAsync(); err != nil {
		return nil, &speech.ProviderError{Message: "start recognition", Err: err}
	}

	select {
	case <-stopped:
	case <-ctx.Done():
		<-recognizer.StopContinuousRecognitionAsync()
		return nil, ctx.Err()
	}
	<-recognizer.StopContinuousRecognitionAsync()

	return acc.result()
}

// ── Result accumulation ──────────────────────────────────────────────────────

// detailPayload mirrors the detailed JSON result the service attaches to each
// recognized segment. Only the fields the core needs are declared; everything
// else in the payload is ignored.
type detailPayload struct {
	NBest []struct {
		Lexical                 string `json:"Lexical"`
		PronunciationAssessment struct {
			AccuracyScore     float64 `json:"AccuracyScore"`
			FluencyScore      float64 `json:"FluencyScore"`
			CompletenessScore float64 `json:"CompletenessScore"`
			ProsodyScore      float64 `json:"ProsodyScore"`
			PronScore         float64 `json:"PronScore"`
		} `json:"PronunciationAssessment"`
		Words []struct {
			Word                    string `json:"Word"`
			Offset                  int64  `json:"Offset"`
			Duration                int64  `json:"Duration"`
			PronunciationAssessment struct {
				AccuracyScore float64 `json:"AccuracyScore"`
				ErrorType     string  `json:"ErrorType"`
			} `json:"PronunciationAssessment"`
			Phonemes []struct {
				Phoneme                 string `json:"Phoneme"`
				PronunciationAssessment struct {
					AccuracyScore float64 `json:"AccuracyScore"`
				} `json:"PronunciationAssessment"`
			} `json:"Phonemes"`
		} `json:"Words"`
	} `json:"NBest"`
}

// accumulator gathers per-segment results delivered by SDK callbacks.
// Handlers only append under the lock; result is read after the session has
// stopped.
type accumulator struct {
	mu        sync.Mutex
	segments  []string
	words     []speech.Word
	prosody   []float64
	firstErr  error
	malformed error
}

func (a *accumulator) addSegment(displayText, payload string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var detail detailPayload
	if err := json.Unmarshal([]byte(payload), &detail); err != nil {
		a.malformed = &speech.ProviderError{Message: "malformed result payload", Err: err}
		return
	}
	if len(detail.NBest) == 0 {
		a.malformed = &speech.ProviderError{Message: "result payload has no hypothesis"}
		return
	}

	best := detail.NBest[0]
	a.segments = append(a.segments, displayText)
	a.prosody = append(a.prosody, best.PronunciationAssessment.ProsodyScore)

	for _, w := range best.Words {
		word := speech.Word{
			Text:          strings.ToLower(w.Word),
			Offset:        ticksToDuration(w.Offset),
			Duration:      ticksToDuration(w.Duration),
			AccuracyScore: w.PronunciationAssessment.AccuracyScore,
			ErrorType:     w.PronunciationAssessment.ErrorType,
		}
		for _, ph := range w.Phonemes {
			word.Phonemes = append(word.Phonemes, speech.PhonemeScore{
				Symbol:        ph.Phoneme,
				AccuracyScore: ph.PronunciationAssessment.AccuracyScore,
			})
		}
		a.words = append(a.words, word)
	}
}

func (a *accumulator) setError(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.firstErr == nil {
		a.firstErr = err
	}
}

func (a *accumulator) result() (*speech.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.firstErr != nil {
		return nil, a.firstErr
	}
	if a.malformed != nil {
		return nil, a.malformed
	}
	return &speech.Result{
		Transcript:    strings.Join(a.segments, " "),
		Words:         a.words,
		ProsodyScores: a.prosody,
	}, nil
}

// ticksToDuration converts the service's native 100 ns ticks to a
// [time.Duration]. Everything past this boundary is unit-agnostic.
func ticksToDuration(ticks int64) time.Duration {
	return time.Duration(ticks) * 100 * time.Nanosecond
}
