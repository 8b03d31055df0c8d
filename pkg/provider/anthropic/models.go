package anthropic

import (
	"strings"

	"github.com/rhuss/claudepipe/pkg/api"
)

// DefaultMaxTokens applies to models missing from the ceiling table.
const DefaultMaxTokens = 4096

const (
	thinkingSuffix = "-thinking"
	contextWindow  = 200000
)

// modelMaxTokens is the output ceiling per vendor model. Requests above the
// ceiling are clamped, not rejected.
var modelMaxTokens = map[string]int{
	"claude-opus-4-5-20250514":   32000,
	"claude-4-5-opus-20250514":   32000,
	"claude-opus-4-20250514":     32000,
	"claude-opus-4-0":            32000,
	"claude-sonnet-4-20250514":   64000,
	"claude-sonnet-4-0":          64000,
	"claude-3-7-sonnet-20250219": 128000,
	"claude-3-7-sonnet-latest":   128000,
	"claude-3-5-sonnet-20241022": 8192,
	"claude-3-5-sonnet-20240620": 8192,
	"claude-3-5-sonnet-latest":   8192,
}

// output128kModels need the output-128k beta flag.
var output128kModels = map[string]bool{
	"claude-3-7-sonnet-20250219": true,
	"claude-3-7-sonnet-latest":   true,
	"claude-opus-4-5-20250514":   true,
	"claude-4-5-opus-20250514":   true,
	"claude-opus-4-20250514":     true,
	"claude-opus-4-0":            true,
	"claude-sonnet-4-20250514":   true,
	"claude-sonnet-4-0":          true,
}

// catalogue is the advertised model list, in display order. The
// "-thinking" entries are aliases that enable extended thinking.
var catalogue = []string{
	"claude-opus-4-5-20250514",
	"claude-opus-4-5-20250514-thinking",
	"claude-4-5-opus-20250514",
	"claude-opus-4-20250514",
	"claude-opus-4-0",
	"claude-opus-4-0-thinking",
	"claude-sonnet-4-20250514",
	"claude-sonnet-4-0",
	"claude-sonnet-4-0-thinking",
	"claude-3-7-sonnet-20250219",
	"claude-3-7-sonnet-latest",
	"claude-3-7-sonnet-latest-thinking",
	"claude-3-5-sonnet-20241022",
	"claude-3-5-sonnet-20240620",
	"claude-3-5-sonnet-latest",
}

// ResolveModel maps a client model id onto the vendor model name. Anything
// up to the last "/" is a routing prefix and is dropped. A trailing
// "-thinking" is a flag, not part of the vendor name.
//
//	ResolveModel("api/claude-3-5-sonnet-latest-thinking") // "claude-3-5-sonnet-latest", true
func ResolveModel(id string) (name string, thinking bool) {
	name = id
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if strings.HasSuffix(name, thinkingSuffix) {
		return strings.TrimSuffix(name, thinkingSuffix), true
	}
	return name, false
}

// MaxTokensFor returns the output ceiling for a vendor model name.
func MaxTokensFor(model string) int {
	if n, ok := modelMaxTokens[model]; ok {
		return n
	}
	return DefaultMaxTokens
}

// ClampMaxTokens returns the ceiling when requested is unset or non-positive,
// and min(requested, ceiling) otherwise.
func ClampMaxTokens(model string, requested *int) int {
	ceiling := MaxTokensFor(model)
	if requested == nil || *requested <= 0 {
		return ceiling
	}
	return min(*requested, ceiling)
}

// Catalogue returns the advertised models with ids "<prefix>/<name>".
func Catalogue(prefix string) []api.Model {
	models := make([]api.Model, 0, len(catalogue))
	for _, name := range catalogue {
		id := name
		if prefix != "" {
			id = prefix + "/" + name
		}
		models = append(models, api.Model{
			ID:             id,
			Object:         "model",
			Name:           name,
			OwnedBy:        "anthropic",
			ContextLength:  contextWindow,
			SupportsVision: true,
		})
	}
	return models
}
