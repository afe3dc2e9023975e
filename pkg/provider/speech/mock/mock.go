// Package mock provides a test double for the speech package interfaces.
//
// Use Provider to feed controlled assessment results and to inspect which
// recordings were assessed. Results are matched by reference text; AssessFunc
// overrides everything when full control is needed.
package mock

import (
	"context"
	"sync"

	"github.com/chippeddog/english.now-sub000/pkg/provider/speech"
)

// AssessCall records a single invocation of Provider.Assess.
type AssessCall struct {
	// PCMLen is the length of the audio passed to Assess.
	PCMLen int
	// ReferenceText is the reference text passed to Assess.
	ReferenceText string
}

// Provider is a mock implementation of speech.Provider.
type Provider struct {
	mu sync.Mutex

	// Results maps reference text to the result Assess returns for it.
	Results map[string]*speech.Result

	// Errs maps reference text to the error Assess returns for it. Takes
	// precedence over Results.
	Errs map[string]error

	// AssessFunc, if non-nil, handles every call instead of Results/Errs.
	AssessFunc func(ctx context.Context, pcm []byte, referenceText string) (*speech.Result, error)

	// AssessCalls records every call to Assess.
	AssessCalls []AssessCall
}

// Name implements speech.Provider.
func (p *Provider) Name() string { return "mock" }

// Assess records the call and returns the configured result or error for the
// given reference text. An unconfigured reference text yields an empty result.
func (p *Provider) Assess(ctx context.Context, pcm []byte, referenceText string) (*speech.Result, error) {
	p.mu.Lock()
	p.AssessCalls = append(p.AssessCalls, AssessCall{PCMLen: len(pcm), ReferenceText: referenceText})
	fn := p.AssessFunc
	err := p.Errs[referenceText]
	res := p.Results[referenceText]
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, pcm, referenceText)
	}
	if err != nil {
		return nil, err
	}
	if res != nil {
		return res, nil
	}
	return &speech.Result{}, nil
}

// Calls returns a copy of all recorded calls. Thread-safe.
func (p *Provider) Calls() []AssessCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]AssessCall(nil), p.AssessCalls...)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.AssessCalls = nil
}
