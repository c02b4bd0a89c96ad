// Package cost estimates what generations cost from their token usage.
package cost

import (
	"context"
	"sync"

	"github.com/manash/clickgenius/internal/log"
	"github.com/manash/clickgenius/internal/provider"
	"github.com/manash/clickgenius/pkg/models"
)

const CurrencyUSD = "USD"

type Estimate struct {
	Model    string
	Usage    models.Usage
	Total    float64
	Currency string
	// Known is false when the model has no pricing entry and Total is zero.
	Known bool
}

func Calculate(model string, usage models.Usage) Estimate {
	e := Estimate{Model: model, Usage: usage, Currency: CurrencyUSD}
	p, ok := GetPricing(model)
	if !ok {
		return e
	}
	e.Known = true
	e.Total = float64(usage.PromptTokens)/1_000_000*p.InputPerMillion +
		float64(usage.CandidateTokens)/1_000_000*p.OutputPerMillion
	return e
}

type Summary struct {
	Generations  int
	PromptTokens int64
	OutputTokens int64
	Total        float64
	// Unpriced counts generations whose model had no pricing entry.
	Unpriced int
}

// Meter wraps a generator and keeps a running estimate of what its
// successful calls cost.
type Meter struct {
	next     provider.Generator
	modelFor func(models.Mode) string

	mu      sync.Mutex
	entries []Estimate
}

var _ provider.Generator = (*Meter)(nil)

// NewMeter wraps next. modelFor maps a request's mode to the model that
// serves it.
func NewMeter(next provider.Generator, modelFor func(models.Mode) string) *Meter {
	return &Meter{next: next, modelFor: modelFor}
}

func (m *Meter) Generate(ctx context.Context, req *models.GenerationRequest) (*models.GenerationResponse, error) {
	resp, err := m.next.Generate(ctx, req)
	if err != nil {
		return resp, err
	}

	est := Calculate(m.modelFor(req.Mode), resp.Usage)
	m.mu.Lock()
	m.entries = append(m.entries, est)
	m.mu.Unlock()

	log.FromContextOrDiscard(ctx).Debug("generation cost",
		"model", est.Model,
		"usd", est.Total,
		"known", est.Known)
	return resp, nil
}

func (m *Meter) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	var s Summary
	for _, e := range m.entries {
		s.Generations++
		s.PromptTokens += int64(e.Usage.PromptTokens)
		s.OutputTokens += int64(e.Usage.CandidateTokens)
		s.Total += e.Total
		if !e.Known {
			s.Unpriced++
		}
	}
	return s
}

func (m *Meter) Last() (Estimate, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) == 0 {
		return Estimate{}, false
	}
	return m.entries[len(m.entries)-1], true
}
