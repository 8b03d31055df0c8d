package anthropic

import "github.com/rhuss/claudepipe/pkg/api"

// anthropic-beta capability flags.
const (
	BetaPDFs                = "pdfs-2024-09-25"
	BetaPromptCaching       = "prompt-caching-2024-07-31"
	BetaOutput128k          = "output-128k-2025-02-19"
	BetaExtendedCacheTTL    = "extended-cache-ttl-2025-04-11"
	BetaInterleavedThinking = "interleaved-thinking-2025-05-14"
	BetaFilesAPI            = "files-api-2025-04-14"
)

// betaFlags scans the request for features that need an opt-in flag. The
// result has no duplicates and a fixed order.
func betaFlags(model string, thinking bool, req *api.ChatCompletionRequest) []string {
	var hasPDF, hasCache, has1hCache, hasFiles bool
	for _, msg := range req.Messages {
		for _, part := range msg.Content.Parts {
			switch part.Type {
			case api.PartPDFURL:
				hasPDF = true
			case api.PartFileReference:
				hasFiles = true
			}
			if part.CacheControl != nil {
				hasCache = true
				if part.CacheControl.TTL == "1h" {
					has1hCache = true
				}
			}
		}
	}

	var flags []string
	if output128kModels[model] {
		flags = append(flags, BetaOutput128k)
	}
	if hasPDF {
		flags = append(flags, BetaPDFs)
	}
	if hasCache {
		flags = append(flags, BetaPromptCaching)
	}
	if has1hCache {
		flags = append(flags, BetaExtendedCacheTTL)
	}
	if hasFiles {
		flags = append(flags, BetaFilesAPI)
	}
	if thinking && req.InterleavedThinking {
		flags = append(flags, BetaInterleavedThinking)
	}
	return flags
}
