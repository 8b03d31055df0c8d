package provider

import (
	"testing"

	"github.com/rhuss/claudepipe/pkg/api"
)

func TestValidateCapabilities(t *testing.T) {
	noStream := false
	textMsg := []api.ChatMessage{{Role: api.RoleUser, Content: api.TextContent("hello")}}
	imageMsg := []api.ChatMessage{{Role: api.RoleUser, Content: api.PartsContent(
		api.ContentPart{Type: api.PartImageURL, ImageURL: &api.URLRef{URL: "https://example.com/cat.png"}},
	)}}
	pdfMsg := []api.ChatMessage{{Role: api.RoleUser, Content: api.PartsContent(
		api.ContentPart{Type: api.PartPDFURL, PDFURL: &api.URLRef{URL: "https://example.com/doc.pdf"}},
	)}}

	tests := []struct {
		name      string
		caps      ProviderCapabilities
		req       *api.ChatCompletionRequest
		wantParam string
	}{
		{
			name: "non-streaming text request with minimal caps",
			caps: ProviderCapabilities{},
			req:  &api.ChatCompletionRequest{Model: "m", Messages: textMsg, Stream: &noStream},
		},
		{
			name:      "default streaming without streaming support",
			caps:      ProviderCapabilities{},
			req:       &api.ChatCompletionRequest{Model: "m", Messages: textMsg},
			wantParam: "stream",
		},
		{
			name: "tools without tool calling",
			caps: ProviderCapabilities{Streaming: true},
			req: &api.ChatCompletionRequest{Model: "m", Messages: textMsg,
				Tools: []api.Tool{{Type: "function", Function: api.FunctionDef{Name: "f"}}}},
			wantParam: "tools",
		},
		{
			name:      "image without vision",
			caps:      ProviderCapabilities{Streaming: true},
			req:       &api.ChatCompletionRequest{Model: "m", Messages: imageMsg},
			wantParam: "messages",
		},
		{
			name: "image with vision",
			caps: ProviderCapabilities{Streaming: true, Vision: true},
			req:  &api.ChatCompletionRequest{Model: "m", Messages: imageMsg},
		},
		{
			name:      "pdf without documents",
			caps:      ProviderCapabilities{Streaming: true, Vision: true},
			req:       &api.ChatCompletionRequest{Model: "m", Messages: pdfMsg},
			wantParam: "messages",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCapabilities(tt.caps, tt.req)
			if tt.wantParam == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if err.Param != tt.wantParam {
				t.Errorf("Param = %q, want %q", err.Param, tt.wantParam)
			}
		})
	}
}
