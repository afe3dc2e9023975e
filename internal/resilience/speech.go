package resilience

import (
	"context"
	"time"

	"github.com/chippeddog/english.now-sub000/pkg/provider/speech"
)

// Speech-specific breaker defaults. An Assess call processes a whole
// recording, so failures are expensive and slow to accumulate: trip earlier
// than the generic breaker, wait a full minute before probing, and let a
// single successful probe close again.
const (
	speechMaxFailures  = 3
	speechResetTimeout = time.Minute
	speechHalfOpenMax  = 1
)

// SpeechProvider wraps an inner [speech.Provider] with a [CircuitBreaker].
// While the breaker is open, Assess returns [ErrCircuitOpen] immediately
// without contacting the backend; the error is transient and callers retry
// through their normal retry policy.
type SpeechProvider struct {
	inner   speech.Provider
	breaker *CircuitBreaker
}

var _ speech.Provider = (*SpeechProvider)(nil)

// NewSpeechProvider wraps inner with a circuit breaker built from cfg.
// Zero-value fields get the speech-specific defaults above; cfg.Name
// defaults to the inner provider's name.
func NewSpeechProvider(inner speech.Provider, cfg CircuitBreakerConfig) *SpeechProvider {
	if cfg.Name == "" {
		cfg.Name = inner.Name()
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = speechMaxFailures
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = speechResetTimeout
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = speechHalfOpenMax
	}
	return &SpeechProvider{
		inner:   inner,
		breaker: NewCircuitBreaker(cfg),
	}
}

// Name returns the inner provider's name, unchanged. The wrapper is
// transparent in logs and metrics.
func (p *SpeechProvider) Name() string { return p.inner.Name() }

// Assess forwards to the inner provider through the breaker. Context
// cancellation counts as a failure like any other error; a caller tearing
// down mid-recognition is indistinguishable from a hung backend here, and
// the breaker recovers through its half-open probes either way.
func (p *SpeechProvider) Assess(ctx context.Context, pcm []byte, referenceText string) (*speech.Result, error) {
	var res *speech.Result
	err := p.breaker.Execute(func() error {
		var err error
		res, err = p.inner.Assess(ctx, pcm, referenceText)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// State reports the breaker's current state, for readiness checks.
func (p *SpeechProvider) State() State {
	return p.breaker.State()
}
