package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAction(t *testing.T) {
	tests := []struct {
		in      string
		want    Action
		wantErr bool
	}{
		{"redact", ActionRedact, false},
		{"block", ActionBlock, false},
		{"warn", ActionWarn, false},
		{"hash", ActionHash, false},
		{"", ActionRedact, false},
		{"REDACT", "", true},
		{"delete", "", true},
	}
	for _, tt := range tests {
		got, err := ParseAction(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
		} else {
			require.NoError(t, err, "input %q", tt.in)
			assert.Equal(t, tt.want, got)
		}
	}
}

func TestPolicy_Validate(t *testing.T) {
	p := Default()
	require.NoError(t, p.Validate())

	p = Default()
	p.Name = ""
	assert.Error(t, p.Validate())

	p = Default()
	p.CostLimits.MaxPerRequest = -1
	assert.Error(t, p.Validate())

	p = Default()
	p.Caching = Caching{Enabled: true, TTLSeconds: 0}
	assert.Error(t, p.Validate())
}

func TestLoader_LoadsFirstEnabledPolicy(t *testing.T) {
	dir := t.TempDir()

	writePolicy(t, dir, "a-disabled.yaml", `
name: disabled-one
enabled: false
`)
	writePolicy(t, dir, "b-active.yaml", `
name: strict
enabled: true
cost_limits:
  max_per_request: 0.01
  daily_cap: 5.0
pii_detection:
  enabled: true
  action: block
  entities: [email, ssn]
`)

	l, err := NewLoader(dir, nil)
	require.NoError(t, err)
	defer l.Close()

	p := l.Active()
	assert.Equal(t, "strict", p.Name)
	assert.Equal(t, 0.01, p.CostLimits.MaxPerRequest)
	assert.Equal(t, ActionBlock, p.PIIDetection.Action)
	assert.Equal(t, []string{"email", "ssn"}, p.PIIDetection.Entities)
}

func TestLoader_PrefersDefaultName(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "a.yaml", "name: alpha\nenabled: true\n")
	writePolicy(t, dir, "z.yaml", "name: default\nenabled: true\n")

	l, err := NewLoader(dir, nil)
	require.NoError(t, err)
	defer l.Close()

	assert.Equal(t, "default", l.Active().Name)
}

func TestLoader_EmptyDirUsesDefault(t *testing.T) {
	l, err := NewLoader(t.TempDir(), nil)
	require.NoError(t, err)
	defer l.Close()

	p := l.Active()
	assert.Equal(t, "default", p.Name)
	assert.True(t, p.Caching.Enabled)
	assert.False(t, p.PIIDetection.Enabled)
}

func TestLoader_InvalidActionRejected(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "bad.yaml", `
name: bad
enabled: true
pii_detection:
  enabled: true
  action: obliterate
`)

	_, err := NewLoader(dir, nil)
	assert.Error(t, err)
}

func writePolicy(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}
