package api

import (
	"strings"
	"testing"
)

func TestNewChatCompletionID(t *testing.T) {
	id := NewChatCompletionID()
	if !ValidateChatCompletionID(id) {
		t.Errorf("NewChatCompletionID() = %q, does not match format", id)
	}
}

func TestChatCompletionIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for range 1000 {
		id := NewChatCompletionID()
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestNewToolCallID(t *testing.T) {
	id := NewToolCallID()
	if !strings.HasPrefix(id, "call_") || len(id) != len("call_")+24 {
		t.Errorf("NewToolCallID() = %q", id)
	}
}

func TestValidateChatCompletionID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"chatcmpl-abcdefghijklmnopqrstuvwx", true},
		{"chatcmpl-ABCDEFGHIJKLMNOPQRSTUVWX", true},
		{"chatcmpl-short", false},
		{"resp_abcdefghijklmnopqrstuvwx", false},
		{"chatcmpl-abcdefghijklmnopqrstuv-x", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidateChatCompletionID(tt.id); got != tt.want {
			t.Errorf("ValidateChatCompletionID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
