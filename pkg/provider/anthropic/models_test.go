package anthropic

import (
	"strings"
	"testing"
)

func TestResolveModel(t *testing.T) {
	tests := []struct {
		in           string
		wantName     string
		wantThinking bool
	}{
		{"api/claude-3-5-sonnet-latest-thinking", "claude-3-5-sonnet-latest", true},
		{"api/claude-sonnet-4-0", "claude-sonnet-4-0", false},
		{"claude-opus-4-0-thinking", "claude-opus-4-0", true},
		{"anthropic.api/claude-3-7-sonnet-latest", "claude-3-7-sonnet-latest", false},
		{"a/b/claude-opus-4-5-20250514-thinking", "claude-opus-4-5-20250514", true},
		{"plain-model", "plain-model", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			name, thinking := ResolveModel(tt.in)
			if name != tt.wantName || thinking != tt.wantThinking {
				t.Errorf("ResolveModel(%q) = (%q, %v), want (%q, %v)", tt.in, name, thinking, tt.wantName, tt.wantThinking)
			}
		})
	}
}

func TestClampMaxTokens(t *testing.T) {
	n := func(v int) *int { return &v }
	tests := []struct {
		name      string
		model     string
		requested *int
		want      int
	}{
		{"absent uses ceiling", "claude-sonnet-4-0", nil, 64000},
		{"below ceiling kept", "claude-sonnet-4-0", n(1000), 1000},
		{"above ceiling clamped", "claude-3-5-sonnet-latest", n(100000), 8192},
		{"zero uses ceiling", "claude-opus-4-0", n(0), 32000},
		{"unknown model default", "claude-unknown", nil, DefaultMaxTokens},
		{"unknown model clamped", "claude-unknown", n(9000), DefaultMaxTokens},
		{"3.7 ceiling", "claude-3-7-sonnet-latest", n(200000), 128000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClampMaxTokens(tt.model, tt.requested); got != tt.want {
				t.Errorf("ClampMaxTokens = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCatalogue(t *testing.T) {
	models := Catalogue("api")
	if len(models) != len(catalogue) {
		t.Fatalf("len = %d, want %d", len(models), len(catalogue))
	}
	thinking := 0
	for _, m := range models {
		if !strings.HasPrefix(m.ID, "api/") {
			t.Errorf("id %q lacks prefix", m.ID)
		}
		if m.ContextLength != 200000 || !m.SupportsVision {
			t.Errorf("model %q has context %d vision %v", m.ID, m.ContextLength, m.SupportsVision)
		}
		if strings.HasSuffix(m.Name, "-thinking") {
			thinking++
			base, ok := ResolveModel(m.ID)
			if !ok {
				t.Errorf("thinking alias %q did not resolve as thinking", m.ID)
			}
			if _, known := modelMaxTokens[base]; !known {
				t.Errorf("thinking alias %q resolves to %q, which has no ceiling", m.ID, base)
			}
		}
	}
	if thinking != 4 {
		t.Errorf("thinking aliases = %d, want 4", thinking)
	}

	if got := Catalogue("")[0].ID; got != "claude-opus-4-5-20250514" {
		t.Errorf("unprefixed id = %q", got)
	}
}
