// Package pricing maps token counts to monetary cost using a static
// per-model price table.
package pricing

import (
	"math"
	"strings"
)

// Entry defines per-1K-token pricing for a model. Model supports a
// trailing-* prefix wildcard.
type Entry struct {
	Model           string
	InputCostPer1K  float64
	OutputCostPer1K float64
}

// DefaultModel is the fallback entry applied to unknown models. Falling
// back is documented policy, not an error: budgeting must not fail a
// request just because a model is missing from the table.
const DefaultModel = "gpt-3.5-turbo"

// DefaultPricing contains per-1K USD prices for common models.
var DefaultPricing = []Entry{
	// OpenAI
	{Model: "gpt-4o", InputCostPer1K: 0.005, OutputCostPer1K: 0.015},
	{Model: "gpt-4o-mini", InputCostPer1K: 0.00015, OutputCostPer1K: 0.0006},
	{Model: "gpt-4-turbo*", InputCostPer1K: 0.01, OutputCostPer1K: 0.03},
	{Model: "gpt-4*", InputCostPer1K: 0.03, OutputCostPer1K: 0.06},
	{Model: "gpt-3.5-turbo-16k", InputCostPer1K: 0.003, OutputCostPer1K: 0.004},
	{Model: "gpt-3.5-turbo", InputCostPer1K: 0.0005, OutputCostPer1K: 0.0015},

	// Anthropic
	{Model: "claude-3-opus*", InputCostPer1K: 0.015, OutputCostPer1K: 0.075},
	{Model: "claude-3-sonnet*", InputCostPer1K: 0.003, OutputCostPer1K: 0.015},
	{Model: "claude-3-haiku*", InputCostPer1K: 0.00025, OutputCostPer1K: 0.00125},
	{Model: "claude-2*", InputCostPer1K: 0.008, OutputCostPer1K: 0.024},
}

// Table resolves models to pricing entries.
type Table struct {
	entries      map[string]Entry
	defaultEntry Entry
}

// NewTable builds a pricing table. A nil entries slice uses DefaultPricing.
func NewTable(entries []Entry) *Table {
	if entries == nil {
		entries = DefaultPricing
	}
	t := &Table{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		t.entries[e.Model] = e
	}
	if def, ok := t.entries[DefaultModel]; ok {
		t.defaultEntry = def
	} else if len(entries) > 0 {
		t.defaultEntry = entries[0]
	}
	return t
}

// Cost computes the USD cost for the given token counts, rounded to six
// decimal places. Unknown models use the default entry.
func (t *Table) Cost(model string, inputTokens, outputTokens int) float64 {
	entry := t.Lookup(model)
	inputCost := float64(inputTokens) / 1000.0 * entry.InputCostPer1K
	outputCost := float64(outputTokens) / 1000.0 * entry.OutputCostPer1K
	return round6(inputCost + outputCost)
}

// Lookup finds a model's pricing entry: exact match first, then the most
// specific trailing-* wildcard, then the default entry.
func (t *Table) Lookup(model string) Entry {
	if e, ok := t.entries[model]; ok {
		return e
	}

	modelLower := strings.ToLower(model)
	for pattern, e := range t.entries {
		if strings.EqualFold(pattern, model) {
			return e
		}
	}

	var best *Entry
	bestLen := -1
	for pattern, e := range t.entries {
		if !strings.HasSuffix(pattern, "*") {
			continue
		}
		prefix := strings.ToLower(strings.TrimSuffix(pattern, "*"))
		if strings.HasPrefix(modelLower, prefix) && len(prefix) > bestLen {
			matched := e
			best = &matched
			bestLen = len(prefix)
		}
	}
	if best != nil {
		return *best
	}
	return t.defaultEntry
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
