package engine

import "github.com/rhuss/claudepipe/pkg/api"

// Config holds configuration for the engine.
type Config struct {
	// DefaultModel is used when the request omits the model field.
	// Empty string means a model is always required in the request.
	DefaultModel string

	// Validation bounds the request shape. Zero limits disable the check.
	Validation api.ValidationConfig
}
