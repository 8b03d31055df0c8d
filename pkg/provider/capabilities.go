package provider

import (
	"github.com/rhuss/claudepipe/pkg/api"
)

// ValidateCapabilities checks whether the given request is compatible with
// the provider's declared capabilities. Returns an APIError identifying
// the specific unsupported feature, or nil if the request is compatible.
func ValidateCapabilities(caps ProviderCapabilities, req *api.ChatCompletionRequest) *api.APIError {
	if req.IsStream() && !caps.Streaming {
		return api.NewInvalidRequestError("stream",
			"the configured provider does not support streaming responses")
	}

	if len(req.Tools) > 0 && !caps.ToolCalling {
		return api.NewInvalidRequestError("tools",
			"the configured provider does not support tool calling")
	}

	for _, msg := range req.Messages {
		for _, part := range msg.Content.Parts {
			switch part.Type {
			case api.PartImageURL:
				if !caps.Vision {
					return api.NewInvalidRequestError("messages",
						"the configured provider does not support image inputs")
				}
			case api.PartPDFURL, api.PartDocument, api.PartFileReference:
				if !caps.Documents {
					return api.NewInvalidRequestError("messages",
						"the configured provider does not support document inputs")
				}
			}
		}
	}

	return nil
}
