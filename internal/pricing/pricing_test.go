package pricing

import (
	"math"
	"testing"
)

func TestTable_Cost(t *testing.T) {
	table := NewTable(nil)

	tests := []struct {
		name         string
		model        string
		inputTokens  int
		outputTokens int
		want         float64
	}{
		{
			name:         "gpt-3.5-turbo exact formula",
			model:        "gpt-3.5-turbo",
			inputTokens:  1000,
			outputTokens: 500,
			want:         math.Round((1000.0/1000*0.0005+500.0/1000*0.0015)*1e6) / 1e6,
		},
		{
			name:         "gpt-4o exact match",
			model:        "gpt-4o",
			inputTokens:  1000,
			outputTokens: 1000,
			want:         0.02,
		},
		{
			name:         "gpt-4-turbo wildcard match",
			model:        "gpt-4-turbo-preview",
			inputTokens:  1000,
			outputTokens: 500,
			want:         0.025,
		},
		{
			name:         "claude-3-haiku wildcard match",
			model:        "claude-3-haiku-20240307",
			inputTokens:  2000,
			outputTokens: 1000,
			want:         0.00175,
		},
		{
			name:         "unknown model uses default entry",
			model:        "some-future-model",
			inputTokens:  1000,
			outputTokens: 500,
			want:         0.00125,
		},
		{
			name:         "zero tokens cost nothing",
			model:        "gpt-4o",
			inputTokens:  0,
			outputTokens: 0,
			want:         0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := table.Cost(tt.model, tt.inputTokens, tt.outputTokens)
			if got != tt.want {
				t.Errorf("Cost(%s, %d, %d) = %v, want %v", tt.model, tt.inputTokens, tt.outputTokens, got, tt.want)
			}
		})
	}
}

func TestTable_CostMonotonicity(t *testing.T) {
	table := NewTable(nil)
	models := []string{"gpt-4o", "gpt-3.5-turbo", "claude-3-sonnet-20240229", "unknown-model"}

	for _, model := range models {
		prev := table.Cost(model, 0, 0)
		for tokens := 100; tokens <= 10000; tokens += 700 {
			cur := table.Cost(model, tokens, tokens/2)
			if cur < prev {
				t.Errorf("cost for %s decreased: %v < %v at %d tokens", model, cur, prev, tokens)
			}
			prev = cur
		}
	}
}

func TestTable_CostRounding(t *testing.T) {
	table := NewTable(nil)
	// 7 input tokens of gpt-4o: 7/1000*0.005 = 0.000035 exactly at 6dp.
	got := table.Cost("gpt-4o", 7, 0)
	if got != 0.000035 {
		t.Errorf("expected 6-decimal rounding, got %v", got)
	}
}

func TestTable_LookupWildcardSpecificity(t *testing.T) {
	table := NewTable(nil)
	// gpt-4-turbo-x must hit the gpt-4-turbo* entry, not gpt-4*.
	e := table.Lookup("gpt-4-turbo-2024-04-09")
	if e.InputCostPer1K != 0.01 {
		t.Errorf("expected most specific wildcard, got input price %v", e.InputCostPer1K)
	}
}
