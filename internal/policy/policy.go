// Package policy defines the governance policy snapshot consumed by the
// pipeline. A Policy is materialized per request by a Provider and treated
// as read-only by every stage.
package policy

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Action is the PII handling action. The string form is parsed once at the
// policy boundary; the hot path only compares Action values.
type Action string

const (
	ActionRedact Action = "redact"
	ActionBlock  Action = "block"
	ActionWarn   Action = "warn"
	ActionHash   Action = "hash"
)

// ParseAction validates and converts a configured action string.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionRedact, ActionBlock, ActionWarn, ActionHash:
		return Action(s), nil
	case "":
		return ActionRedact, nil
	default:
		return "", fmt.Errorf("unknown pii action %q", s)
	}
}

// UnmarshalYAML validates the action at load time.
func (a *Action) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseAction(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// CostLimits caps spend per request and per day. Zero values disable the
// corresponding check.
type CostLimits struct {
	MaxPerRequest float64 `yaml:"max_per_request"`
	DailyCap      float64 `yaml:"daily_cap"`
}

// RateLimits holds per-granularity request ceilings. Zero disables a
// granularity.
type RateLimits struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	RequestsPerHour   int `yaml:"requests_per_hour"`
	RequestsPerDay    int `yaml:"requests_per_day"`
}

// PIIDetection configures the scanner stage.
type PIIDetection struct {
	Enabled  bool     `yaml:"enabled"`
	Action   Action   `yaml:"action"`
	Entities []string `yaml:"entities"`
}

// Caching configures the response cache stage.
type Caching struct {
	Enabled    bool `yaml:"enabled"`
	TTLSeconds int  `yaml:"ttl_seconds"`
}

// Policy is a full governance configuration snapshot.
type Policy struct {
	Name         string       `yaml:"name"`
	Description  string       `yaml:"description"`
	Enabled      bool         `yaml:"enabled"`
	CostLimits   CostLimits   `yaml:"cost_limits"`
	RateLimits   RateLimits   `yaml:"rate_limits"`
	PIIDetection PIIDetection `yaml:"pii_detection"`
	Caching      Caching      `yaml:"caching"`
}

// Default returns the policy applied when no policy file is configured.
func Default() *Policy {
	return &Policy{
		Name:    "default",
		Enabled: true,
		CostLimits: CostLimits{
			MaxPerRequest: 0.03,
			DailyCap:      100.0,
		},
		RateLimits: RateLimits{
			RequestsPerMinute: 60,
			RequestsPerHour:   1000,
			RequestsPerDay:    10000,
		},
		PIIDetection: PIIDetection{
			Enabled:  false,
			Action:   ActionRedact,
			Entities: []string{"email", "phone", "ssn", "credit_card"},
		},
		Caching: Caching{
			Enabled:    true,
			TTLSeconds: 3600,
		},
	}
}

// Validate checks a loaded policy for consistency.
func (p *Policy) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("policy must have a name")
	}
	if p.CostLimits.MaxPerRequest < 0 {
		return fmt.Errorf("cost_limits.max_per_request must be >= 0")
	}
	if p.CostLimits.DailyCap < 0 {
		return fmt.Errorf("cost_limits.daily_cap must be >= 0")
	}
	if p.RateLimits.RequestsPerMinute < 0 || p.RateLimits.RequestsPerHour < 0 || p.RateLimits.RequestsPerDay < 0 {
		return fmt.Errorf("rate_limits values must be >= 0")
	}
	if p.PIIDetection.Enabled {
		if _, err := ParseAction(string(p.PIIDetection.Action)); err != nil {
			return err
		}
	}
	if p.Caching.Enabled && p.Caching.TTLSeconds <= 0 {
		return fmt.Errorf("caching.ttl_seconds must be > 0 when caching is enabled")
	}
	return nil
}

// Provider materializes the active policy for a request. The pipeline never
// reads policy files itself.
type Provider interface {
	Active() *Policy
}

// StaticProvider returns a fixed policy. Used in tests and when the gateway
// runs without a policy directory.
type StaticProvider struct {
	Policy *Policy
}

// Active implements Provider.
func (s *StaticProvider) Active() *Policy {
	if s.Policy == nil {
		return Default()
	}
	return s.Policy
}
